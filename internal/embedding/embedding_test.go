package embedding

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"testing"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/facematch"
)

type nopEmbedder struct{ Embedder }

func TestRegistry(t *testing.T) {
	Register("Test-Kind", func(cfg *config.EmbeddingConfig) (Embedder, error) {
		return nopEmbedder{}, nil
	})
	Register("broken", func(cfg *config.EmbeddingConfig) (Embedder, error) {
		return nil, errors.New("no models")
	})

	if _, err := New(&config.EmbeddingConfig{Backend: "test-kind"}); err != nil {
		t.Errorf("expected registered kind to be found case-insensitively: %v", err)
	}
	if _, err := New(&config.EmbeddingConfig{Backend: "broken"}); err == nil {
		t.Error("expected factory error to be returned")
	}
	if _, err := New(&config.EmbeddingConfig{Backend: "missing"}); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestModeFor(t *testing.T) {
	if ModeFor(true) != ModeCNN || ModeFor(false) != ModeHOG {
		t.Error("unexpected mode mapping")
	}
	if ModeCNN.String() != "cnn" || ModeHOG.String() != "hog" {
		t.Error("unexpected mode names")
	}
}

func TestSelect(t *testing.T) {
	detections := []Detection{
		{Location: facematch.Location{Top: 0, Right: 10, Bottom: 10, Left: 0}, Encoding: database.Encoding{1}},
		{Location: facematch.Location{Top: 50, Right: 70, Bottom: 70, Left: 50}, Encoding: database.Encoding{2}},
	}

	t.Run("nil locations returns all", func(t *testing.T) {
		got, err := Select(detections, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 || got[0][0] != 1 || got[1][0] != 2 {
			t.Errorf("got %v", got)
		}
	})

	t.Run("no detections", func(t *testing.T) {
		if _, err := Select(nil, nil); !errors.Is(err, ErrNoFace) {
			t.Errorf("expected ErrNoFace, got %v", err)
		}
	})

	t.Run("locations pick by overlap", func(t *testing.T) {
		locs := []facematch.Location{
			{Top: 52, Right: 69, Bottom: 69, Left: 52},
			{Top: 1, Right: 9, Bottom: 9, Left: 1},
		}
		got, err := Select(detections, locs)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got[0][0] != 2 || got[1][0] != 1 {
			t.Errorf("got %v", got)
		}
	})

	t.Run("location without face", func(t *testing.T) {
		locs := []facematch.Location{{Top: 200, Right: 210, Bottom: 210, Left: 200}}
		if _, err := Select(detections, locs); !errors.Is(err, ErrLocationNotFound) {
			t.Errorf("expected ErrLocationNotFound, got %v", err)
		}
	})

	t.Run("empty locations", func(t *testing.T) {
		got, err := Select(detections, []facematch.Location{})
		if err != nil || len(got) != 0 {
			t.Errorf("expected empty result, got %v %v", got, err)
		}
	})
}

func TestEncodeJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	data, err := EncodeJPEG(img)
	if err != nil {
		t.Fatalf("EncodeJPEG: %v", err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Bounds().Dx() != 8 || decoded.Bounds().Dy() != 6 {
		t.Errorf("unexpected bounds %v", decoded.Bounds())
	}
}
