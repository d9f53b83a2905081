// Package facematch decides whether a face encoding belongs to a known identity.
package facematch

import (
	"errors"
	"fmt"
	"math"

	"github.com/kozaktomas/face-registry/internal/database"
	"gonum.org/v1/gonum/floats"
)

// DefaultTolerance is the Euclidean distance at or below which two dlib
// encodings are considered the same person.
const DefaultTolerance = 0.6

// ErrDimensionMismatch is returned when the query and a known encoding differ in length.
var ErrDimensionMismatch = errors.New("encoding dimension mismatch")

// Status is the outcome of a match.
type Status int

const (
	// StatusNew means no known encoding is close enough.
	StatusNew Status = 0
	// StatusMatch means the nearest known encoding is within tolerance.
	StatusMatch Status = 1
)

// Result describes a match decision.
type Result struct {
	Status Status
	// BestIndex is the index of the nearest known encoding, -1 when there are none.
	BestIndex int
	// Distance to the nearest known encoding, +Inf when there are none.
	Distance float64
}

// Matched reports whether the query belongs to the identity at BestIndex.
func (r Result) Matched() bool {
	return r.Status == StatusMatch
}

// Distances returns the Euclidean distance from query to every known encoding.
func Distances(query database.Encoding, known []database.Encoding) ([]float64, error) {
	dists := make([]float64, len(known))
	for i, k := range known {
		if len(k) != len(query) {
			return nil, fmt.Errorf("%w: query has %d values, known encoding %d has %d",
				ErrDimensionMismatch, len(query), i, len(k))
		}
		dists[i] = floats.Distance(query, k, 2)
	}
	return dists, nil
}

// Match compares query against known. Every known encoding within tolerance is
// a candidate, but only the nearest one (the first on ties) can be reported:
// Status is StatusMatch iff the nearest is within tolerance.
func Match(query database.Encoding, known []database.Encoding, tolerance float64) (Result, error) {
	if len(known) == 0 {
		return Result{Status: StatusNew, BestIndex: -1, Distance: math.Inf(1)}, nil
	}

	dists, err := Distances(query, known)
	if err != nil {
		return Result{}, err
	}

	within := make([]bool, len(dists))
	for i, d := range dists {
		within[i] = d <= tolerance
	}

	best := floats.MinIdx(dists)
	res := Result{Status: StatusNew, BestIndex: best, Distance: dists[best]}
	if within[best] {
		res.Status = StatusMatch
	}
	return res, nil
}
