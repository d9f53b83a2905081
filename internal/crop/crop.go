// Package crop replaces each stored image with the crop of its first face.
package crop

import (
	"context"
	"image"
	"io"

	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
)

// Images is the directory being cropped.
type Images interface {
	List() ([]string, error)
	Load(name string) (image.Image, error)
	Save(name string, img image.Image) error
}

// Locator finds faces in an image.
type Locator interface {
	Locate(ctx context.Context, img image.Image) ([]facematch.Location, error)
}

// Summary counts the outcome of a run.
type Summary struct {
	Cropped int
	Skipped int
}

// Cropper crops every image in a directory.
type Cropper struct {
	Images Images
	Faces  Locator
	Log    *logrus.Entry

	// Progress receives the progress bar. Nil disables it.
	Progress io.Writer
}

// Run crops every image in place. Images without a face, or that fail to
// load or save, are logged and left untouched.
func (c *Cropper) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	names, err := c.Images.List()
	if err != nil {
		return summary, err
	}

	w := c.Progress
	if w == nil {
		w = io.Discard
	}
	bar := progressbar.NewOptions(len(names),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Cropping faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionFullWidth(),
	)
	defer bar.Finish()

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if c.cropOne(ctx, name) {
			summary.Cropped++
		} else {
			summary.Skipped++
		}
		_ = bar.Add(1)
	}
	return summary, nil
}

func (c *Cropper) cropOne(ctx context.Context, name string) bool {
	log := c.Log.WithField("image", name)

	img, err := c.Images.Load(name)
	if err != nil {
		log.WithError(err).Warn("skipping image")
		return false
	}
	locations, err := c.Faces.Locate(ctx, img)
	if err != nil {
		log.WithError(err).Warn("skipping image")
		return false
	}
	if len(locations) == 0 {
		log.Warn("no face found, image left as is")
		return false
	}

	cropped := Crop(img, locations[0])
	if cropped == nil {
		log.WithField("location", locations[0]).Warn("face outside image, image left as is")
		return false
	}
	if err := c.Images.Save(name, cropped); err != nil {
		log.WithError(err).Error("failed to save cropped image")
		return false
	}
	log.WithField("size", cropped.Bounds().Size()).Info("image cropped")
	return true
}

// Crop copies the part of img inside loc, clipped to the image. It returns nil
// when nothing of loc lies inside the image.
func Crop(img image.Image, loc facematch.Location) *image.RGBA {
	r := loc.Rect().Intersect(img.Bounds())
	if r.Empty() {
		return nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}
