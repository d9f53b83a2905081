// Package dlib computes 128-dimensional face encodings locally with dlib
// through github.com/Kagami/go-face.
package dlib

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/Kagami/go-face"
	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/embedding"
	"github.com/kozaktomas/face-registry/internal/facematch"
)

// Embedder wraps a go-face recognizer. The recognizer is not safe for
// concurrent use, so calls are serialized.
type Embedder struct {
	rec  *face.Recognizer
	mode embedding.Mode
	mu   sync.Mutex
}

// New loads the dlib models from cfg.ModelsDir.
func New(cfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	if cfg.ModelsDir == "" {
		return nil, errors.New("dlib models directory is required")
	}
	rec, err := face.NewRecognizer(cfg.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load recognizer: %w", err)
	}
	return &Embedder{rec: rec, mode: embedding.ModeFor(cfg.GPU)}, nil
}

func (e *Embedder) detect(ctx context.Context, img image.Image) ([]embedding.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := embedding.EncodeJPEG(img)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var faces []face.Face
	if e.mode == embedding.ModeCNN {
		faces, err = e.rec.RecognizeCNN(data)
	} else {
		faces, err = e.rec.Recognize(data)
	}
	if err != nil {
		return nil, fmt.Errorf("dlib recognize: %w", err)
	}

	detections := make([]embedding.Detection, len(faces))
	for i, f := range faces {
		detections[i] = embedding.Detection{
			Location: facematch.LocationFromRect(f.Rectangle),
			Encoding: database.FromFloat32(f.Descriptor[:]),
		}
	}
	return detections, nil
}

// Locate returns the bounding boxes of every face in img.
func (e *Embedder) Locate(ctx context.Context, img image.Image) ([]facematch.Location, error) {
	detections, err := e.detect(ctx, img)
	if err != nil {
		return nil, err
	}
	locations := make([]facematch.Location, len(detections))
	for i, d := range detections {
		locations[i] = d.Location
	}
	return locations, nil
}

// Encode returns one encoding per location, detecting faces when locations is nil.
func (e *Embedder) Encode(ctx context.Context, img image.Image, locations []facematch.Location) ([]database.Encoding, error) {
	detections, err := e.detect(ctx, img)
	if err != nil {
		return nil, err
	}
	return embedding.Select(detections, locations)
}

// Close frees the dlib models.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec.Close()
	return nil
}
