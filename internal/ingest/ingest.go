// Package ingest registers captured face images as identities, discarding
// images whose face is already known.
package ingest

import (
	"context"
	"fmt"
	"image"
	"io"
	"sort"
	"strings"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/embedding"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/kozaktomas/face-registry/internal/imagestore"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

// ImageSource is the directory of images to verify.
type ImageSource interface {
	List() ([]string, error)
	Load(name string) (image.Image, error)
	Delete(name string) error
}

// Encoder computes face encodings. With nil locations it returns one encoding
// per detected face.
type Encoder interface {
	Encode(ctx context.Context, img image.Image, locations []facematch.Location) ([]database.Encoding, error)
}

// Summary counts the outcome of a run.
type Summary struct {
	Processed  int
	Registered int
	Duplicates int
	Failed     int
}

// Verifier deduplicates an image directory against the identity store.
type Verifier struct {
	Store     database.EncodingStore
	Images    ImageSource
	Encoder   Encoder
	Tolerance float64
	Log       *logrus.Entry

	// Progress receives the progress bar. Nil disables it.
	Progress io.Writer
}

// Order sorts image names so that named images come before synthesized
// face_ captures, each group in byte order. The input is not modified.
func Order(names []string) []string {
	out := make([]string, len(names))
	copy(out, names)
	sort.SliceStable(out, func(i, j int) bool {
		gi, gj := group(out[i]), group(out[j])
		if gi != gj {
			return gi < gj
		}
		return out[i] < out[j]
	})
	return out
}

func group(name string) int {
	if strings.HasPrefix(name, database.SynthesizedPrefix) {
		return 1
	}
	return 0
}

// Run processes every image once. Only a failure to reload the known
// identities, or cancellation, aborts the run; other failures skip the image.
func (v *Verifier) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	known, err := facematch.LoadSnapshot(ctx, v.Store)
	if err != nil {
		return summary, err
	}

	names, err := v.Images.List()
	if err != nil {
		return summary, fmt.Errorf("listing images: %w", err)
	}
	queue := Order(names)
	v.Log.WithFields(logrus.Fields{"images": len(queue), "known": known.Len()}).Info("verifying images")

	bar := v.newBar(len(queue))
	defer bar.Finish()

	for _, name := range queue {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Processed++
		log := v.Log.WithField("image", name)

		enc, err := v.encode(ctx, name)
		if err != nil {
			log.WithError(err).Warn("skipping image")
			summary.Failed++
			_ = bar.Add(1)
			continue
		}

		res, matchedName, err := known.Match(enc, v.Tolerance)
		if err != nil {
			log.WithError(err).Warn("skipping image")
			summary.Failed++
			_ = bar.Add(1)
			continue
		}

		if res.Matched() {
			if err := v.Images.Delete(name); err != nil {
				log.WithError(err).Error("failed to delete duplicate image")
				summary.Failed++
			} else {
				log.WithFields(logrus.Fields{"match": matchedName, "distance": res.Distance}).Info("deleted duplicate image")
				summary.Duplicates++
			}
			_ = bar.Add(1)
			continue
		}

		identity := imagestore.BaseName(name)
		rec := database.IdentityRecord{
			Name:     identity,
			Type:     database.TypeForName(identity),
			Encoding: enc,
		}
		if !v.Store.Insert(ctx, rec) {
			summary.Failed++
			_ = bar.Add(1)
			continue
		}
		summary.Registered++

		known, err = facematch.LoadSnapshot(ctx, v.Store)
		if err != nil {
			return summary, fmt.Errorf("reloading after %s: %w", identity, err)
		}
		_ = bar.Add(1)
	}

	v.Log.WithFields(logrus.Fields{
		"processed":  summary.Processed,
		"registered": summary.Registered,
		"duplicates": summary.Duplicates,
		"failed":     summary.Failed,
	}).Info("verification finished")
	return summary, nil
}

// encode returns the encoding of the first face in the image.
func (v *Verifier) encode(ctx context.Context, name string) (database.Encoding, error) {
	img, err := v.Images.Load(name)
	if err != nil {
		return nil, err
	}
	encs, err := v.Encoder.Encode(ctx, img, nil)
	if err != nil {
		return nil, fmt.Errorf("encoding face: %w", err)
	}
	if len(encs) == 0 {
		return nil, embedding.ErrNoFace
	}
	return encs[0], nil
}

func (v *Verifier) newBar(n int) *progressbar.ProgressBar {
	w := v.Progress
	if w == nil {
		w = io.Discard
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Verifying faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}
