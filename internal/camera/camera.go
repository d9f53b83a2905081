// Package camera reads webcam frames and shows annotated frames in a window, using OpenCV.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/kozaktomas/face-registry/internal/live"
	"gocv.io/x/gocv"
)

// EscapeKey quits the window loop.
const EscapeKey = 27

var (
	// ErrOpen is returned when the video device cannot be opened.
	ErrOpen = errors.New("cannot open video device")
	// ErrEmptyFrame is returned when the device delivers no image.
	ErrEmptyFrame = errors.New("empty frame")
)

var (
	knownColor   = color.RGBA{G: 255, A: 255}
	unknownColor = color.RGBA{R: 255, A: 255}
	captureColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	labelColor   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// Camera is an opened video device.
type Camera struct {
	capture *gocv.VideoCapture
	frame   gocv.Mat
}

// Open opens the numbered video device.
func Open(device int) (*Camera, error) {
	capture, err := gocv.VideoCaptureDevice(device)
	if err != nil {
		return nil, fmt.Errorf("%w %d: %w", ErrOpen, device, err)
	}
	return &Camera{capture: capture, frame: gocv.NewMat()}, nil
}

// Ready reports whether the device is open.
func (c *Camera) Ready() bool {
	return c.capture.IsOpened()
}

// Read grabs the next frame.
func (c *Camera) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := c.capture.Read(&c.frame); !ok || c.frame.Empty() {
		return nil, ErrEmptyFrame
	}
	img, err := c.frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("converting frame: %w", err)
	}
	return img, nil
}

// Close releases the device.
func (c *Camera) Close() error {
	c.frame.Close()
	return c.capture.Close()
}

// Window is an on-screen preview. The quit key is polled once per shown frame.
type Window struct {
	window *gocv.Window
	quit   bool
}

// NewWindow opens a window with the given title.
func NewWindow(title string) *Window {
	return &Window{window: gocv.NewWindow(title)}
}

// Show draws a circle around every detection, green for known faces and red
// for unknown ones, with the label above it.
func (w *Window) Show(frame image.Image, detections []live.Detection) error {
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return fmt.Errorf("converting frame: %w", err)
	}
	defer mat.Close()

	for _, d := range detections {
		c := unknownColor
		if d.Known {
			c = knownColor
		}
		drawCircle(&mat, d.Location, c)
		drawLabel(&mat, d.Location, d.Name)
	}
	return w.show(mat)
}

// ShowFaces draws a plain circle around every location.
func (w *Window) ShowFaces(frame image.Image, locations []facematch.Location) error {
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return fmt.Errorf("converting frame: %w", err)
	}
	defer mat.Close()

	for _, loc := range locations {
		drawCircle(&mat, loc, captureColor)
	}
	return w.show(mat)
}

func (w *Window) show(mat gocv.Mat) error {
	w.window.IMShow(mat)
	if w.window.WaitKey(1)&0xff == EscapeKey {
		w.quit = true
	}
	return nil
}

// QuitRequested reports whether ESC was pressed.
func (w *Window) QuitRequested() bool {
	return w.quit
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.window.Close()
}

func drawCircle(mat *gocv.Mat, loc facematch.Location, c color.RGBA) {
	gocv.Circle(mat, loc.Center(), loc.Radius(), c, 2)
}

func drawLabel(mat *gocv.Mat, loc facematch.Location, label string) {
	if label == "" {
		return
	}
	size := gocv.GetTextSize(label, gocv.FontHersheyDuplex, 1.0, 1)
	center := loc.Center()
	origin := image.Pt(center.X-size.X/2, center.Y-(loc.Radius()+5))
	gocv.PutText(mat, label, origin, gocv.FontHersheyDuplex, 1.0, labelColor, 2)
}
