package live

import (
	"context"
	"errors"
	"image"
	"io"
	"testing"

	"github.com/kozaktomas/face-registry/internal/database"
	dbmock "github.com/kozaktomas/face-registry/internal/database/mock"
	embmock "github.com/kozaktomas/face-registry/internal/embedding/mock"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/kozaktomas/face-registry/internal/logging"
)

type fakeFrames struct {
	ready  bool
	frames []image.Image
	reads  int
}

func (f *fakeFrames) Ready() bool { return f.ready }

func (f *fakeFrames) Read(ctx context.Context) (image.Image, error) {
	if f.reads >= len(f.frames) {
		return nil, io.EOF
	}
	frame := f.frames[f.reads]
	f.reads++
	return frame, nil
}

type fakeDisplay struct {
	shown  [][]Detection
	quitAt int
	onShow func(n int)
}

func (d *fakeDisplay) Show(_ image.Image, detections []Detection) error {
	d.shown = append(d.shown, detections)
	if d.onShow != nil {
		d.onShow(len(d.shown))
	}
	return nil
}

func (d *fakeDisplay) QuitRequested() bool {
	return d.quitAt > 0 && len(d.shown) >= d.quitAt
}

var smallBox = facematch.Location{Top: 1, Right: 3, Bottom: 3, Left: 1}

func frames(keys ...uint8) []image.Image {
	out := make([]image.Image, len(keys))
	for i, k := range keys {
		out[i] = embmock.KeyedImage(k, 16, 16)
	}
	return out
}

func setup(t *testing.T, keys ...uint8) (*Recognizer, *fakeFrames, *fakeDisplay, *embmock.MockEmbedder, *dbmock.MockEncodingStore) {
	t.Helper()
	store := dbmock.NewMockEncodingStore(2)
	if !store.Insert(context.Background(), database.IdentityRecord{Name: "alice", Encoding: database.Encoding{0, 0}}) {
		t.Fatal("seeding store failed")
	}

	embedder := embmock.NewMockEmbedder()
	embedder.AddFace(10, smallBox, database.Encoding{0.1, 0})
	embedder.AddFace(20, smallBox, database.Encoding{9, 9})

	src := &fakeFrames{ready: true, frames: frames(keys...)}
	display := &fakeDisplay{}
	r := &Recognizer{
		Store:     store,
		Frames:    src,
		Display:   display,
		Faces:     embedder,
		Tolerance: facematch.DefaultTolerance,
		Log:       logging.Discard(),
	}
	return r, src, display, embedder, store
}

func TestRun_DeviceNotReady(t *testing.T) {
	r, src, _, _, store := setup(t)
	src.ready = false
	readsBefore := store.ReadCalls

	if err := r.Run(context.Background()); !errors.Is(err, ErrDeviceNotReady) {
		t.Fatalf("expected ErrDeviceNotReady, got %v", err)
	}
	if store.ReadCalls != readsBefore {
		t.Error("store must not be read when the device is not ready")
	}
}

func TestRun_AlternatesFrames(t *testing.T) {
	r, _, display, embedder, _ := setup(t, 10, 20, 20, 10)

	err := r.Run(context.Background())
	if !errors.Is(err, ErrFrameRead) {
		t.Fatalf("expected ErrFrameRead at end of stream, got %v", err)
	}
	if embedder.LocateCalls != 2 {
		t.Errorf("expected 2 processed frames, got %d", embedder.LocateCalls)
	}
	if len(display.shown) != 4 {
		t.Fatalf("expected 4 shown frames, got %d", len(display.shown))
	}
	// Frame 2 is skipped and reuses the detections of frame 1.
	if display.shown[1][0].Name != "alice" {
		t.Errorf("skipped frame should reuse previous detections, got %+v", display.shown[1])
	}
	// Frame 3 is processed and shows an unknown face.
	if display.shown[2][0].Name != UnknownLabel || display.shown[2][0].Known {
		t.Errorf("unexpected detection %+v", display.shown[2][0])
	}
}

func TestRun_LabelsAndScalesBack(t *testing.T) {
	r, _, display, embedder, _ := setup(t, 10)

	_ = r.Run(context.Background())

	if len(display.shown) != 1 || len(display.shown[0]) != 1 {
		t.Fatalf("unexpected detections %+v", display.shown)
	}
	got := display.shown[0][0]
	if !got.Known || got.Name != "alice" {
		t.Errorf("expected known alice, got %+v", got)
	}
	want := facematch.Location{Top: 4, Right: 12, Bottom: 12, Left: 4}
	if got.Location != want {
		t.Errorf("location = %+v, want %+v", got.Location, want)
	}
	if len(embedder.Sizes) == 0 || embedder.Sizes[0] != image.Pt(4, 4) {
		t.Errorf("expected frames downscaled to 4x4, got %v", embedder.Sizes)
	}
}

func TestRun_SnapshotIsNotRefreshed(t *testing.T) {
	r, _, display, _, store := setup(t, 20, 20, 20)
	display.onShow = func(n int) {
		if n == 1 {
			store.Insert(context.Background(), database.IdentityRecord{Name: "bob", Encoding: database.Encoding{9, 9}})
		}
	}

	_ = r.Run(context.Background())

	if len(display.shown) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(display.shown))
	}
	if display.shown[2][0].Known {
		t.Error("identity stored during the run must not be recognized")
	}
}

func TestRun_QuitKey(t *testing.T) {
	r, src, display, _, _ := setup(t, 10, 10, 10, 10, 10)
	display.quitAt = 3

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	if src.reads != 3 {
		t.Errorf("expected 3 reads, got %d", src.reads)
	}
}

func TestRun_Cancelled(t *testing.T) {
	r, src, _, _, _ := setup(t, 10, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := r.Run(ctx); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	if src.reads != 0 {
		t.Errorf("expected no reads after cancellation, got %d", src.reads)
	}
}

func TestRun_ExtractionFailureYieldsNoDetections(t *testing.T) {
	r, _, display, embedder, _ := setup(t, 10, 10, 10)
	embedder.EncodeError = errors.New("model crashed")

	_ = r.Run(context.Background())

	if len(display.shown) != 3 {
		t.Fatalf("loop should continue after extraction failures, got %d frames", len(display.shown))
	}
	for i, d := range display.shown {
		if len(d) != 0 {
			t.Errorf("frame %d: expected no detections, got %+v", i, d)
		}
	}
}

func TestDownscale(t *testing.T) {
	img := embmock.KeyedImage(77, 640, 480)
	small := Downscale(img, ScaleFactor)
	if small.Bounds().Dx() != 160 || small.Bounds().Dy() != 120 {
		t.Errorf("unexpected size %v", small.Bounds())
	}
	if embmock.Key(small) != 77 {
		t.Errorf("downscaling a solid image changed its color: %d", embmock.Key(small))
	}
}
