// Package live classifies faces in a camera stream against the registered identities.
package live

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
)

// ScaleFactor is the size of the processed frame relative to the captured one.
const ScaleFactor = 0.25

// UnknownLabel is shown for faces that match no identity.
const UnknownLabel = "UNKNOWN"

var (
	// ErrDeviceNotReady is returned when the frame source cannot deliver frames.
	ErrDeviceNotReady = errors.New("video device is not ready")
	// ErrFrameRead wraps a failure to read a frame.
	ErrFrameRead = errors.New("failed to read frame")
)

// FrameSource delivers camera frames.
type FrameSource interface {
	Ready() bool
	Read(ctx context.Context) (image.Image, error)
}

// Display shows a frame with its detections and reports the quit key.
type Display interface {
	Show(frame image.Image, detections []Detection) error
	QuitRequested() bool
}

// FaceEncoder locates and encodes faces.
type FaceEncoder interface {
	Locate(ctx context.Context, img image.Image) ([]facematch.Location, error)
	Encode(ctx context.Context, img image.Image, locations []facematch.Location) ([]database.Encoding, error)
}

// Detection is one labelled face in full-frame coordinates.
type Detection struct {
	Location facematch.Location
	Name     string
	Known    bool
}

// Recognizer runs the recognition loop. The known identities are read once at
// start and never refreshed.
type Recognizer struct {
	Store     database.IdentityReader
	Frames    FrameSource
	Display   Display
	Faces     FaceEncoder
	Tolerance float64
	Log       *logrus.Entry
}

// Run loops until ctx is cancelled or the quit key is pressed, both of which
// return nil. A frame read or display failure ends the run with an error.
func (r *Recognizer) Run(ctx context.Context) error {
	if !r.Frames.Ready() {
		return ErrDeviceNotReady
	}

	known, err := facematch.LoadSnapshot(ctx, r.Store)
	if err != nil {
		return err
	}
	r.Log.WithField("known", known.Len()).Info("recognition started")

	var current []Detection
	processThisFrame := true
	for {
		select {
		case <-ctx.Done():
			r.Log.Info("recognition cancelled")
			return nil
		default:
		}

		frame, err := r.Frames.Read(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrFrameRead, err)
		}

		if processThisFrame {
			current = r.detect(ctx, frame, known)
		}
		processThisFrame = !processThisFrame

		if err := r.Display.Show(frame, current); err != nil {
			return fmt.Errorf("showing frame: %w", err)
		}
		if r.Display.QuitRequested() {
			r.Log.Info("recognition stopped by user")
			return nil
		}
	}
}

// detect labels the faces of one frame. Extraction failures yield no detections.
func (r *Recognizer) detect(ctx context.Context, frame image.Image, known facematch.Snapshot) []Detection {
	small := Downscale(frame, ScaleFactor)

	locations, err := r.Faces.Locate(ctx, small)
	if err != nil {
		r.Log.WithError(err).Warn("face location failed")
		return nil
	}
	if len(locations) == 0 {
		return []Detection{}
	}

	encodings, err := r.Faces.Encode(ctx, small, locations)
	if err != nil {
		r.Log.WithError(err).Warn("face encoding failed")
		return nil
	}

	detections := make([]Detection, 0, len(encodings))
	for i, enc := range encodings {
		d := Detection{
			Location: locations[i].Scale(1 / ScaleFactor),
			Name:     UnknownLabel,
		}
		res, name, err := known.Match(enc, r.Tolerance)
		if err != nil {
			r.Log.WithError(err).Warn("face match failed")
			return nil
		}
		if res.Matched() {
			d.Name = name
			d.Known = true
			r.Log.WithFields(logrus.Fields{"name": name, "distance": res.Distance}).Info("face detected")
		}
		detections = append(detections, d)
	}
	return detections
}

// Downscale resizes img by factor with bilinear interpolation.
func Downscale(img image.Image, factor float64) *image.RGBA {
	b := img.Bounds()
	w := max(1, int(math.Round(float64(b.Dx())*factor)))
	h := max(1, int(math.Round(float64(b.Dy())*factor)))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
