// Package mock provides a deterministic embedding.Embedder for tests.
package mock

import (
	"context"
	"image"
	"image/color"
	"sync"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/embedding"
	"github.com/kozaktomas/face-registry/internal/facematch"
)

// MockEmbedder identifies an image by the red channel of its top-left pixel
// and returns the faces registered for that key. Images with an unregistered
// key have no face.
type MockEmbedder struct {
	mu    sync.Mutex
	faces map[uint8][]embedding.Detection

	// Error injection
	EncodeError error

	// Call counters and the sizes of the images seen, in call order.
	LocateCalls int
	EncodeCalls int
	Sizes       []image.Point
}

// NewMockEmbedder creates an embedder with no known faces.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{faces: make(map[uint8][]embedding.Detection)}
}

// AddFace registers a face for images whose key is key.
func (m *MockEmbedder) AddFace(key uint8, loc facematch.Location, enc database.Encoding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces[key] = append(m.faces[key], embedding.Detection{Location: loc, Encoding: enc})
}

// Key returns the key the embedder reads from img.
func Key(img image.Image) uint8 {
	b := img.Bounds()
	if b.Empty() {
		return 0
	}
	r, _, _, _ := img.At(b.Min.X, b.Min.Y).RGBA()
	return uint8(r >> 8)
}

// KeyedImage returns a solid w x h image carrying key.
func KeyedImage(key uint8, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	c := color.RGBA{R: key, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func (m *MockEmbedder) detections(img image.Image) []embedding.Detection {
	m.Sizes = append(m.Sizes, img.Bounds().Size())
	return m.faces[Key(img)]
}

// Locate returns the registered locations for the image key.
func (m *MockEmbedder) Locate(ctx context.Context, img image.Image) ([]facematch.Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LocateCalls++

	dets := m.detections(img)
	locs := make([]facematch.Location, len(dets))
	for i, d := range dets {
		locs[i] = d.Location
	}
	return locs, nil
}

// Encode follows the embedding.Embedder contract over the registered faces.
func (m *MockEmbedder) Encode(ctx context.Context, img image.Image, locations []facematch.Location) ([]database.Encoding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EncodeCalls++

	if m.EncodeError != nil {
		return nil, m.EncodeError
	}
	return embedding.Select(m.detections(img), locations)
}

// Close does nothing.
func (m *MockEmbedder) Close() error { return nil }
