package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kozaktomas/face-registry/internal/ai"
	"github.com/kozaktomas/face-registry/internal/camera"
	"github.com/kozaktomas/face-registry/internal/capture"
	"github.com/kozaktomas/face-registry/internal/crop"
	"github.com/kozaktomas/face-registry/internal/imagestore"
	"github.com/kozaktomas/face-registry/internal/ingest"
	"github.com/kozaktomas/face-registry/internal/naming"
	"github.com/spf13/cobra"
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Work with the captured image directory",
	Long: `Capture, name, crop and register the images in FACE_IMAGE_DIR.

A typical session:
  face-registry images execute-task capture
  face-registry images execute-task name
  face-registry images execute-task crop
  face-registry images execute-task verify`,
}

var imagesTaskCmd = &cobra.Command{
	Use:   "execute-task",
	Short: "Run one task over the image directory",
}

var imagesCaptureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Take a picture of a face with the camera",
	Long: `Preview the camera with circles around the detected faces for
FACE_CAPTURE_SECONDS seconds (or until ESC), then save the last frame as the
next face_<n>.jpg if it contains a face.`,
	Args: cobra.NoArgs,
	RunE: runImagesCapture,
}

var imagesNameCmd = &cobra.Command{
	Use:   "name",
	Short: "Rename face_ images after the text visible in them",
	Long: `Read the text in every face_ image with the configured OCR provider
(OCR_PROVIDER: openai or gemini), confirm it on the terminal and rename the file.`,
	Args: cobra.NoArgs,
	RunE: runImagesName,
}

var imagesCropCmd = &cobra.Command{
	Use:   "crop",
	Short: "Replace every image with the crop of its first face",
	Args:  cobra.NoArgs,
	RunE:  runImagesCrop,
}

var imagesVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Register new faces and delete duplicates",
	Long: `Compare every image against the stored identities. Images of a known
face are deleted; new faces are stored under the file name. Named images are
processed before face_ captures.`,
	Args: cobra.NoArgs,
	RunE: runImagesVerify,
}

func init() {
	rootCmd.AddCommand(imagesCmd)
	imagesCmd.AddCommand(imagesTaskCmd)
	imagesTaskCmd.AddCommand(imagesCaptureCmd)
	imagesTaskCmd.AddCommand(imagesNameCmd)
	imagesTaskCmd.AddCommand(imagesCropCmd)
	imagesTaskCmd.AddCommand(imagesVerifyCmd)

	imagesTaskCmd.PersistentFlags().Bool("gpu", false, "Use the accurate (CNN) face detector")

	imagesCaptureCmd.Flags().Int("seconds", 5, "Preview duration (overrides FACE_CAPTURE_SECONDS)")
	imagesCaptureCmd.Flags().Int("device", 0, "Camera device index (overrides FACE_CAMERA_DEVICE)")

	imagesVerifyCmd.Flags().Float64("tolerance", 0.6, "Match tolerance (overrides FACE_TOLERANCE)")
}

// imageTask is one locked run over the image directory.
type imageTask struct {
	*session
	ctx    context.Context
	images *imagestore.Store
	unlock func()
	cancel context.CancelFunc
}

// startImageTask checks the identities table, creates the image directory and
// takes the directory lock.
func startImageTask(cmd *cobra.Command, name string) (*imageTask, error) {
	sess, err := startSession(cmd, name)
	if err != nil {
		return nil, err
	}
	ctx, cancel := signalContext(cmd)

	fail := func(err error) (*imageTask, error) {
		sess.log.WithError(err).Error("cannot start task")
		cancel()
		sess.Close()
		return nil, err
	}

	store, err := openStore(ctx, sess.cfg, sess.log, true)
	if err != nil {
		return fail(err)
	}
	_ = store.Close()

	images := imagestore.New(sess.cfg.Images.Dir)
	if err := images.Ensure(); err != nil {
		return fail(err)
	}
	unlock, err := images.Lock()
	if err != nil {
		return fail(err)
	}

	return &imageTask{session: sess, ctx: ctx, images: images, unlock: unlock, cancel: cancel}, nil
}

func (t *imageTask) Close() {
	t.unlock()
	t.cancel()
	t.session.Close()
}

func runImagesCapture(cmd *cobra.Command, args []string) error {
	task, err := startImageTask(cmd, "capture")
	if err != nil {
		return err
	}
	defer task.Close()

	seconds := intOverride(cmd, "seconds", task.cfg.Images.CaptureSeconds)
	if seconds <= 0 {
		return fmt.Errorf("--seconds must be positive, got %d", seconds)
	}
	device := intOverride(cmd, "device", task.cfg.Camera.Device)

	embedder, err := openEmbedder(task.cfg, mustGetBool(cmd, "gpu"))
	if err != nil {
		return err
	}
	defer embedder.Close()

	cam, err := camera.Open(device)
	if err != nil {
		task.log.WithError(err).Error("camera unavailable")
		return err
	}
	defer cam.Close()

	window := camera.NewWindow("Capture")
	defer window.Close()

	capturer := &capture.Capturer{
		Frames:   cam,
		Preview:  window,
		Faces:    embedder,
		Images:   task.images,
		Duration: time.Duration(seconds) * time.Second,
		Log:      task.log,
	}
	name, err := capturer.Run(task.ctx)
	if err != nil {
		task.log.WithError(err).Error("capture failed")
		return err
	}
	if name == "" {
		fmt.Println("No face found, nothing saved.")
		return nil
	}
	fmt.Printf("Saved %s\n", name)
	return nil
}

func runImagesName(cmd *cobra.Command, args []string) error {
	task, err := startImageTask(cmd, "name")
	if err != nil {
		return err
	}
	defer task.Close()

	reader, err := ai.NewTextReader(task.ctx, task.cfg)
	if err != nil {
		return err
	}

	namer := &naming.Namer{
		Images: task.images,
		Reader: reader,
		Prompt: naming.NewLinePrompter(os.Stdin, os.Stdout),
		Log:    task.log.WithField("provider", reader.Name()),
	}
	summary, err := namer.Run(task.ctx)

	usage := reader.GetUsage()
	task.log.WithField("input_tokens", usage.InputTokens).
		WithField("output_tokens", usage.OutputTokens).
		WithField("cost_usd", usage.TotalCost).
		Info("OCR usage")

	if err != nil {
		task.log.WithError(err).Error("naming aborted")
		return err
	}
	fmt.Printf("Renamed %d, skipped %d, failed %d\n", summary.Renamed, summary.Skipped, summary.Failed)
	fmt.Printf("OCR cost: $%.4f (%d input / %d output tokens)\n", usage.TotalCost, usage.InputTokens, usage.OutputTokens)
	return nil
}

func runImagesCrop(cmd *cobra.Command, args []string) error {
	task, err := startImageTask(cmd, "crop")
	if err != nil {
		return err
	}
	defer task.Close()

	embedder, err := openEmbedder(task.cfg, mustGetBool(cmd, "gpu"))
	if err != nil {
		return err
	}
	defer embedder.Close()

	cropper := &crop.Cropper{
		Images:   task.images,
		Faces:    embedder,
		Log:      task.log,
		Progress: os.Stderr,
	}
	summary, err := cropper.Run(task.ctx)
	if err != nil {
		task.log.WithError(err).Error("crop failed")
		return err
	}
	fmt.Printf("Cropped %d, skipped %d\n", summary.Cropped, summary.Skipped)
	return nil
}

func runImagesVerify(cmd *cobra.Command, args []string) error {
	task, err := startImageTask(cmd, "verify")
	if err != nil {
		return err
	}
	defer task.Close()

	tolerance := float64Override(cmd, "tolerance", task.cfg.Matching.Tolerance)
	if tolerance <= 0 {
		return fmt.Errorf("--tolerance must be positive, got %g", tolerance)
	}

	embedder, err := openEmbedder(task.cfg, mustGetBool(cmd, "gpu"))
	if err != nil {
		return err
	}
	defer embedder.Close()

	store, err := openStore(task.ctx, task.cfg, task.log, true)
	if err != nil {
		return err
	}
	defer store.Close()

	verifier := &ingest.Verifier{
		Store:     store,
		Images:    task.images,
		Encoder:   embedder,
		Tolerance: tolerance,
		Log:       task.log,
		Progress:  os.Stderr,
	}
	summary, err := verifier.Run(task.ctx)
	if err != nil {
		task.log.WithError(err).Error("verification aborted")
		return err
	}
	fmt.Printf("Processed %d: %d registered, %d duplicates removed, %d failed\n",
		summary.Processed, summary.Registered, summary.Duplicates, summary.Failed)
	return nil
}
