package database

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultEncodingDim is the dimensionality of dlib face descriptors.
const DefaultEncodingDim = 128

// Encoding is a face embedding vector.
type Encoding []float64

// ErrCorruptEncoding is matched by every EncodingError.
var ErrCorruptEncoding = errors.New("corrupt encoding")

// EncodingError reports a stored or supplied encoding that cannot be used.
// RecordID is zero when the encoding did not come from a stored row.
type EncodingError struct {
	RecordID int64
	Reason   string
}

func (e *EncodingError) Error() string {
	if e.RecordID != 0 {
		return fmt.Sprintf("corrupt encoding in record %d: %s", e.RecordID, e.Reason)
	}
	return "corrupt encoding: " + e.Reason
}

// Is makes errors.Is(err, ErrCorruptEncoding) hold for any EncodingError.
func (e *EncodingError) Is(target error) bool {
	return target == ErrCorruptEncoding
}

// Validate checks the dimensionality and that every value is finite.
func (e Encoding) Validate(dim int) error {
	if len(e) != dim {
		return &EncodingError{Reason: fmt.Sprintf("expected %d values, got %d", dim, len(e))}
	}
	for i, v := range e {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &EncodingError{Reason: fmt.Sprintf("value %d is not finite", i)}
		}
	}
	return nil
}

// String renders the encoding as "[v0 v1 ...]" using the shortest representation
// that parses back to the same float64.
func (e Encoding) String() string {
	var b strings.Builder
	b.Grow(len(e)*12 + 2)
	b.WriteByte('[')
	for i, v := range e {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}

// Float32 converts the encoding for libraries that work in single precision.
func (e Encoding) Float32() []float32 {
	out := make([]float32, len(e))
	for i, v := range e {
		out[i] = float32(v)
	}
	return out
}

// FromFloat32 widens a single precision vector.
func FromFloat32(v []float32) Encoding {
	out := make(Encoding, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

// ParseEncoding parses the text form written by Encoding.String. Any whitespace may
// separate values, so renderings wrapped over several lines are accepted. The
// result must have exactly dim finite values.
func ParseEncoding(s string, dim int) (Encoding, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, &EncodingError{Reason: "missing brackets"}
	}
	fields := strings.Fields(s[1 : len(s)-1])
	if len(fields) != dim {
		return nil, &EncodingError{Reason: fmt.Sprintf("expected %d values, got %d", dim, len(fields))}
	}
	enc := make(Encoding, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, &EncodingError{Reason: fmt.Sprintf("value %d (%q) is not a number", i, f)}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &EncodingError{Reason: fmt.Sprintf("value %d is not finite", i)}
		}
		enc[i] = v
	}
	return enc, nil
}
