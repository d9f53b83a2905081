package cmd

import (
	"fmt"

	"github.com/kozaktomas/face-registry/internal/camera"
	"github.com/kozaktomas/face-registry/internal/live"
	"github.com/spf13/cobra"
)

var recognitionCmd = &cobra.Command{
	Use:   "recognition",
	Short: "Recognize faces against the stored identities",
}

var recognitionLiveCmd = &cobra.Command{
	Use:   "live",
	Short: "Label faces seen by the camera",
	Long: `Open the camera and label every face with the name of the matching
stored identity, or UNKNOWN. Known faces are circled green, unknown faces red.
Press ESC or Ctrl+C to stop.

The identities are read once at start; faces registered while the
recognizer runs are not picked up until it is restarted.`,
	Args: cobra.NoArgs,
	RunE: runRecognitionLive,
}

func init() {
	rootCmd.AddCommand(recognitionCmd)
	recognitionCmd.AddCommand(recognitionLiveCmd)

	recognitionLiveCmd.Flags().Bool("gpu", false, "Use the accurate (CNN) face detector")
	recognitionLiveCmd.Flags().Int("device", 0, "Camera device index (overrides FACE_CAMERA_DEVICE)")
	recognitionLiveCmd.Flags().Float64("tolerance", 0.6, "Match tolerance (overrides FACE_TOLERANCE)")
}

func runRecognitionLive(cmd *cobra.Command, args []string) error {
	sess, err := startSession(cmd, "recognition")
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	device := intOverride(cmd, "device", sess.cfg.Camera.Device)
	tolerance := float64Override(cmd, "tolerance", sess.cfg.Matching.Tolerance)
	if tolerance <= 0 {
		return fmt.Errorf("--tolerance must be positive, got %g", tolerance)
	}

	store, err := openStore(ctx, sess.cfg, sess.log, true)
	if err != nil {
		sess.log.WithError(err).Error("store unavailable")
		return err
	}
	defer store.Close()

	embedder, err := openEmbedder(sess.cfg, mustGetBool(cmd, "gpu"))
	if err != nil {
		return err
	}
	defer embedder.Close()

	cam, err := camera.Open(device)
	if err != nil {
		sess.log.WithError(err).Error("camera unavailable")
		return err
	}
	defer cam.Close()

	window := camera.NewWindow("Face Recognition")
	defer window.Close()

	recognizer := &live.Recognizer{
		Store:     store,
		Frames:    cam,
		Display:   window,
		Faces:     embedder,
		Tolerance: tolerance,
		Log:       sess.log,
	}
	if err := recognizer.Run(ctx); err != nil {
		sess.log.WithError(err).Error("recognition stopped")
		return fmt.Errorf("live recognition: %w", err)
	}
	return nil
}
