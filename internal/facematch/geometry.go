package facematch

import (
	"image"
	"math"
)

// Location is a face bounding box in pixel coordinates, in the
// (top, right, bottom, left) order face detectors usually report.
type Location struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// LocationFromRect converts an image rectangle.
func LocationFromRect(r image.Rectangle) Location {
	return Location{Top: r.Min.Y, Right: r.Max.X, Bottom: r.Max.Y, Left: r.Min.X}
}

// Rect converts the location to an image rectangle.
func (l Location) Rect() image.Rectangle {
	return image.Rect(l.Left, l.Top, l.Right, l.Bottom)
}

// Scale multiplies every coordinate by f, rounding to the nearest pixel.
// Scaling by 4 maps a location found on a quarter-size frame back to the full frame.
func (l Location) Scale(f float64) Location {
	s := func(v int) int { return int(math.Round(float64(v) * f)) }
	return Location{Top: s(l.Top), Right: s(l.Right), Bottom: s(l.Bottom), Left: s(l.Left)}
}

// Center returns the middle of the box.
func (l Location) Center() image.Point {
	return image.Pt((l.Left+l.Right)/2, (l.Top+l.Bottom)/2)
}

// Radius is half the box width, the radius of the circle drawn around a face.
func (l Location) Radius() int {
	return (l.Right - l.Left) / 2
}

// BBox returns [x1, y1, x2, y2] for ComputeIoU.
func (l Location) BBox() []float64 {
	return []float64{float64(l.Left), float64(l.Top), float64(l.Right), float64(l.Bottom)}
}

// Empty reports whether the box has no area.
func (l Location) Empty() bool {
	return l.Rect().Empty()
}

// ComputeIoU calculates Intersection over Union between two bounding boxes.
// bbox1 and bbox2 are [x1, y1, x2, y2] in the same coordinate system.
func ComputeIoU(bbox1, bbox2 []float64) float64 {
	if len(bbox1) != 4 || len(bbox2) != 4 {
		return 0
	}

	// Calculate intersection.
	x1 := max(bbox1[0], bbox2[0])
	y1 := max(bbox1[1], bbox2[1])
	x2 := min(bbox1[2], bbox2[2])
	y2 := min(bbox1[3], bbox2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)

	// Calculate union.
	area1 := (bbox1[2] - bbox1[0]) * (bbox1[3] - bbox1[1])
	area2 := (bbox2[2] - bbox2[0]) * (bbox2[3] - bbox2[1])
	union := area1 + area2 - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// BestOverlap returns the index of the candidate with the highest IoU against
// target and that IoU, or -1 when nothing overlaps.
func BestOverlap(target Location, candidates []Location) (int, float64) {
	best, bestIoU := -1, 0.0
	for i, c := range candidates {
		if iou := ComputeIoU(target.BBox(), c.BBox()); iou > bestIoU {
			best, bestIoU = i, iou
		}
	}
	return best, bestIoU
}
