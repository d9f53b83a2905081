package capture

import (
	"context"
	"errors"
	"image"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/face-registry/internal/database"
	embmock "github.com/kozaktomas/face-registry/internal/embedding/mock"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/kozaktomas/face-registry/internal/imagestore"
	"github.com/kozaktomas/face-registry/internal/live"
	"github.com/kozaktomas/face-registry/internal/logging"
)

type fakeFrames struct {
	ready bool
	keys  []uint8
	reads int
}

func (f *fakeFrames) Ready() bool { return f.ready }

func (f *fakeFrames) Read(context.Context) (image.Image, error) {
	if f.reads >= len(f.keys) {
		return nil, io.EOF
	}
	img := embmock.KeyedImage(f.keys[f.reads], 16, 16)
	f.reads++
	return img, nil
}

type fakePreview struct {
	shown  [][]facematch.Location
	quitAt int
}

func (p *fakePreview) ShowFaces(_ image.Image, locations []facematch.Location) error {
	p.shown = append(p.shown, locations)
	return nil
}

func (p *fakePreview) QuitRequested() bool {
	return p.quitAt > 0 && len(p.shown) >= p.quitAt
}

// tickingClock advances one second per call.
func tickingClock() func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		now := t
		t = t.Add(time.Second)
		return now
	}
}

func newCapturer(t *testing.T, keys ...uint8) (*Capturer, *fakeFrames, *fakePreview, *imagestore.Store) {
	t.Helper()
	images := imagestore.New(filepath.Join(t.TempDir(), "images"))
	if err := images.Ensure(); err != nil {
		t.Fatal(err)
	}
	embedder := embmock.NewMockEmbedder()
	embedder.AddFace(10, facematch.Location{Top: 1, Right: 3, Bottom: 3, Left: 1}, database.Encoding{0, 0})

	frames := &fakeFrames{ready: true, keys: keys}
	preview := &fakePreview{}
	return &Capturer{
		Frames:   frames,
		Preview:  preview,
		Faces:    embedder,
		Images:   images,
		Duration: 3 * time.Second,
		Log:      logging.Discard(),
		Now:      tickingClock(),
	}, frames, preview, images
}

func TestRun_SavesLastFrameAfterDuration(t *testing.T) {
	c, frames, preview, images := newCapturer(t, 10, 10, 10, 10, 10, 10)

	name, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if name != "face_0.jpg" {
		t.Errorf("saved as %q", name)
	}
	if !images.Exists("face_0.jpg") {
		t.Error("expected capture on disk")
	}
	if frames.reads != 4 || len(preview.shown) != 3 {
		t.Errorf("reads=%d previews=%d", frames.reads, len(preview.shown))
	}
	want := facematch.Location{Top: 4, Right: 12, Bottom: 12, Left: 4}
	if len(preview.shown[0]) != 1 || preview.shown[0][0] != want {
		t.Errorf("preview circles should be in full-frame coordinates, got %+v", preview.shown[0])
	}
}

func TestRun_NextFreeCounter(t *testing.T) {
	c, _, _, images := newCapturer(t, 10, 10, 10, 10)
	if err := images.Save("face_0.jpg", embmock.KeyedImage(1, 2, 2)); err != nil {
		t.Fatal(err)
	}

	name, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if name != "face_1.jpg" {
		t.Errorf("saved as %q", name)
	}
}

func TestRun_NoFaceSavesNothing(t *testing.T) {
	c, _, _, images := newCapturer(t, 10, 10, 10, 50)

	name, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if name != "" {
		t.Errorf("expected nothing saved, got %q", name)
	}
	files, _ := images.List()
	if len(files) != 0 {
		t.Errorf("unexpected files %v", files)
	}
}

func TestRun_QuitKeyEndsPreviewEarly(t *testing.T) {
	c, frames, preview, _ := newCapturer(t, 10, 10, 10, 10)
	c.Duration = time.Hour
	preview.quitAt = 1

	name, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if frames.reads != 1 || name != "face_0.jpg" {
		t.Errorf("reads=%d name=%q", frames.reads, name)
	}
}

func TestRun_DeviceErrors(t *testing.T) {
	c, frames, _, _ := newCapturer(t)
	frames.ready = false
	if _, err := c.Run(context.Background()); !errors.Is(err, live.ErrDeviceNotReady) {
		t.Errorf("expected ErrDeviceNotReady, got %v", err)
	}

	c, _, _, _ = newCapturer(t, 10)
	c.Duration = time.Hour
	if _, err := c.Run(context.Background()); !errors.Is(err, live.ErrFrameRead) {
		t.Errorf("expected ErrFrameRead, got %v", err)
	}
}
