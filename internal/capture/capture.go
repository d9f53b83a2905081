// Package capture takes a face picture from the camera and stores it under the next free face_<n> name.
package capture

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/kozaktomas/face-registry/internal/live"
	"github.com/sirupsen/logrus"
)

// Preview shows frames with circles around the located faces.
type Preview interface {
	ShowFaces(frame image.Image, locations []facematch.Location) error
	QuitRequested() bool
}

// Locator finds faces in an image.
type Locator interface {
	Locate(ctx context.Context, img image.Image) ([]facematch.Location, error)
}

// ImageSink stores the captured picture.
type ImageSink interface {
	NextCaptureName() string
	Save(name string, img image.Image) error
}

// Capturer previews the camera for Duration, or until the quit key, and then
// saves the last frame if it contains a face.
type Capturer struct {
	Frames   live.FrameSource
	Preview  Preview
	Faces    Locator
	Images   ImageSink
	Duration time.Duration
	Log      *logrus.Entry

	// Now defaults to time.Now.
	Now func() time.Time
}

// Run returns the saved file name, or "" when the last frame had no face.
func (c *Capturer) Run(ctx context.Context) (string, error) {
	if !c.Frames.Ready() {
		return "", live.ErrDeviceNotReady
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}

	c.Log.WithField("seconds", c.Duration.Seconds()).Info("capturing")
	last, err := c.preview(ctx, now)
	if err != nil {
		return "", err
	}

	c.Log.Info("looking for faces")
	locations, err := c.Faces.Locate(ctx, last)
	if err != nil {
		return "", fmt.Errorf("locating faces: %w", err)
	}
	if len(locations) == 0 {
		c.Log.Warn("no face detected, nothing saved")
		return "", nil
	}

	name := c.Images.NextCaptureName()
	if err := c.Images.Save(name, last); err != nil {
		return "", err
	}
	c.Log.WithFields(logrus.Fields{"file": name, "faces": len(locations)}).Info("face saved")
	return name, nil
}

func (c *Capturer) preview(ctx context.Context, now func() time.Time) (image.Image, error) {
	var last image.Image
	start := now()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := c.Frames.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", live.ErrFrameRead, err)
		}
		last = frame
		if now().Sub(start) > c.Duration {
			return last, nil
		}

		small := live.Downscale(frame, live.ScaleFactor)
		locations, err := c.Faces.Locate(ctx, small)
		if err != nil {
			c.Log.WithError(err).Warn("face location failed")
			locations = nil
		}
		for i := range locations {
			locations[i] = locations[i].Scale(1 / live.ScaleFactor)
		}

		if err := c.Preview.ShowFaces(frame, locations); err != nil {
			return nil, err
		}
		if c.Preview.QuitRequested() {
			return last, nil
		}
	}
}
