package selection

import (
	"fmt"
	"math"
)

// MaxRow is the largest row index accepted from callers. Bounding rows
// keeps Len and Tracker.Total from overflowing.
const MaxRow = math.MaxInt32

// Range is an inclusive span of selected row indices.
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// NewRange returns the range [minVal, maxVal]. Callers must pass
// minVal <= maxVal; use Span when the order of the two rows is unknown.
func NewRange(minVal, maxVal int) Range {
	return Range{Min: minVal, Max: maxVal}
}

// Span returns the range covering both rows regardless of their order.
func Span(a, b int) Range {
	if a > b {
		a, b = b, a
	}

	return Range{Min: a, Max: b}
}

// Len returns the number of rows in the range.
func (r Range) Len() int {
	return r.Max - r.Min + 1
}

// Valid reports whether the range is well formed.
func (r Range) Valid() bool {
	return r.Min <= r.Max
}

// InBounds reports whether both ends are valid row indices in [0, MaxRow].
func (r Range) InBounds() bool {
	return r.Min >= 0 && r.Max <= MaxRow
}

// Contains reports whether row falls inside the range.
func (r Range) Contains(row int) bool {
	return row >= r.Min && row <= r.Max
}

// Covers reports whether other lies entirely inside r.
func (r Range) Covers(other Range) bool {
	return other.Min >= r.Min && other.Max <= r.Max
}

func (r Range) String() string {
	if r.Min == r.Max {
		return fmt.Sprintf("%d", r.Min)
	}

	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}
