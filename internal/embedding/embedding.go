// Package embedding turns face images into encodings. Backends register
// themselves by kind; New picks one from configuration.
package embedding

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sort"
	"strings"
	"sync"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/facematch"
)

// ErrNoFace is returned when an image contains no detectable face.
var ErrNoFace = errors.New("no face found")

// ErrLocationNotFound is returned by Encode when a requested location does not
// overlap any detected face.
var ErrLocationNotFound = errors.New("no face at requested location")

// Mode selects the detector. HOG is fast on CPU; CNN is accurate and wants a GPU.
type Mode int

const (
	ModeHOG Mode = iota
	ModeCNN
)

func (m Mode) String() string {
	if m == ModeCNN {
		return "cnn"
	}
	return "hog"
}

// ModeFor maps the GPU flag to a detector mode.
func ModeFor(gpu bool) Mode {
	if gpu {
		return ModeCNN
	}
	return ModeHOG
}

// Embedder finds faces and computes their encodings.
type Embedder interface {
	// Locate returns the bounding boxes of every face in img.
	Locate(ctx context.Context, img image.Image) ([]facematch.Location, error)
	// Encode returns one encoding per location. With nil locations the faces are
	// detected first and the result follows detection order; ErrNoFace is
	// returned when there are none.
	Encode(ctx context.Context, img image.Image, locations []facematch.Location) ([]database.Encoding, error)
	// Close releases model resources.
	Close() error
}

// Factory builds an embedder from configuration.
type Factory func(cfg *config.EmbeddingConfig) (Embedder, error)

var (
	registry   = map[string]Factory{}
	registryMu sync.RWMutex
)

// Register makes a backend available under kind.
func Register(kind string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(kind)] = f
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// New creates the embedder selected by cfg.Backend.
func New(cfg *config.EmbeddingConfig) (Embedder, error) {
	kind := strings.ToLower(cfg.Backend)

	registryMu.RLock()
	f, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown embedder %q (registered: %s)", kind, strings.Join(Kinds(), ", "))
	}

	e, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating %s embedder: %w", kind, err)
	}
	return e, nil
}

// Detection is a face found by a backend together with its encoding.
type Detection struct {
	Location facematch.Location
	Encoding database.Encoding
}

// Select resolves Encode's contract over a backend's detections: nil locations
// return every detection's encoding, otherwise each location takes the
// encoding of the detection it overlaps most.
func Select(detections []Detection, locations []facematch.Location) ([]database.Encoding, error) {
	if locations == nil {
		if len(detections) == 0 {
			return nil, ErrNoFace
		}
		out := make([]database.Encoding, len(detections))
		for i, d := range detections {
			out[i] = d.Encoding
		}
		return out, nil
	}

	found := make([]facematch.Location, len(detections))
	for i, d := range detections {
		found[i] = d.Location
	}

	out := make([]database.Encoding, len(locations))
	for i, loc := range locations {
		best, _ := facematch.BestOverlap(loc, found)
		if best < 0 {
			return nil, fmt.Errorf("%w: %+v", ErrLocationNotFound, loc)
		}
		out[i] = detections[best].Encoding
	}
	return out, nil
}

// EncodeJPEG serializes img for backends that take compressed bytes.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
