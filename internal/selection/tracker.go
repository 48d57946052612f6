package selection

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

var (
	// ErrAnchorOutOfRange is returned when an extension is requested from a
	// range index the tracker does not hold. The index must come from
	// FindRangeIndex on the same tracker value.
	ErrAnchorOutOfRange = errors.New("anchor range index out of range")

	// ErrInvalidRange is returned for ranges with Min > Max, or with rows
	// outside [0, MaxRow] where rows come from callers.
	ErrInvalidRange = errors.New("invalid selection range")
)

// Tracker holds the selected rows of one result set as a sorted list of
// disjoint, non-adjacent ranges. Memory and time are proportional to the
// number of contiguous groups, not to the number of selected rows.
//
// Tracker is a value: every operation that changes the selection returns a
// new Tracker and leaves the receiver untouched, so a caller still holding
// the previous value can keep reading it.
type Tracker struct {
	ranges []Range
}

// NewTracker returns an empty selection.
func NewTracker() Tracker {
	return Tracker{}
}

// NewTrackerWithRange returns a selection holding [minVal, maxVal].
func NewTrackerWithRange(minVal, maxVal int) Tracker {
	return Tracker{ranges: []Range{Span(minVal, maxVal)}}
}

// FromRanges builds a tracker from an arbitrary list of valid ranges,
// normalizing order, overlaps and adjacency. Every row must lie in
// [0, MaxRow].
func FromRanges(ranges []Range) (Tracker, error) {
	for i, r := range ranges {
		if !r.Valid() || !r.InBounds() {
			return Tracker{}, fmt.Errorf("%w: ranges[%d] = %d-%d", ErrInvalidRange, i, r.Min, r.Max)
		}
	}

	return Tracker{ranges: MergeAdjacentRanges(ranges)}, nil
}

// Ranges returns a copy of the selected ranges in ascending order.
func (t Tracker) Ranges() []Range {
	out := make([]Range, len(t.ranges))
	copy(out, t.ranges)

	return out
}

// Len returns the number of disjoint ranges.
func (t Tracker) Len() int {
	return len(t.ranges)
}

// Clone returns a tracker with its own copy of the range list.
func (t Tracker) Clone() Tracker {
	return Tracker{ranges: slices.Clone(t.ranges)}
}

// IsSelected reports whether row is part of the selection.
func (t Tracker) IsSelected(row int) bool {
	return t.FindRangeIndex(row) != -1
}

// FindRangeIndex returns the index of the range containing row, or -1.
func (t Tracker) FindRangeIndex(row int) int {
	i := sort.Search(len(t.ranges), func(i int) bool {
		return t.ranges[i].Max >= row
	})

	if i < len(t.ranges) && t.ranges[i].Min <= row {
		return i
	}

	return -1
}

// Total returns the number of selected rows.
func (t Tracker) Total() int {
	total := 0

	for _, r := range t.ranges {
		total += r.Len()
	}

	return total
}

// Insert adds r to the selection, merging it with every range it overlaps
// or touches. An invalid range leaves the selection unchanged.
func (t Tracker) Insert(r Range) Tracker {
	if !r.Valid() {
		return t.Clone()
	}

	next := make([]Range, 0, len(t.ranges)+1)

	switch {
	case len(t.ranges) == 0 || r.Min < t.ranges[0].Min:
		next = append(next, r)
		next = append(next, t.ranges...)
	case r.Min > t.ranges[len(t.ranges)-1].Max:
		next = append(next, t.ranges...)
		next = append(next, r)
	default:
		pos := sort.Search(len(t.ranges), func(i int) bool {
			return t.ranges[i].Min > r.Min
		})

		next = append(next, t.ranges[:pos]...)
		next = append(next, r)
		next = append(next, t.ranges[pos:]...)
	}

	return Tracker{ranges: MergeAdjacentRanges(next)}
}

// Remove drops a single row from the selection, splitting its range if
// the row sits in the middle.
func (t Tracker) Remove(row int) Tracker {
	idx := t.FindRangeIndex(row)
	if idx == -1 {
		return t.Clone()
	}

	target := t.ranges[idx]
	next := make([]Range, 0, len(t.ranges)+1)
	next = append(next, t.ranges[:idx]...)

	if target.Min < row {
		next = append(next, Range{Min: target.Min, Max: row - 1})
	}

	if row < target.Max {
		next = append(next, Range{Min: row + 1, Max: target.Max})
	}

	next = append(next, t.ranges[idx+1:]...)

	return Tracker{ranges: next}
}

// Toggle flips the selection state of a single row.
func (t Tracker) Toggle(row int) Tracker {
	if t.IsSelected(row) {
		return t.Remove(row)
	}

	return t.Insert(Range{Min: row, Max: row})
}

// ExtendForward grows the range at anchorIdx so it ends at r.Max, drops
// every later range the grown range now covers and restores the invariants.
// The anchor range never shrinks.
func (t Tracker) ExtendForward(anchorIdx int, r Range) (Tracker, error) {
	extended, err := t.extension(anchorIdx, r)
	if err != nil {
		return t, err
	}

	next := make([]Range, 0, len(t.ranges))
	next = append(next, t.ranges[:anchorIdx]...)
	next = append(next, extended)

	for _, target := range t.ranges[anchorIdx+1:] {
		if extended.Covers(target) {
			continue
		}

		next = append(next, target)
	}

	return Tracker{ranges: MergeAdjacentRanges(next)}, nil
}

// ExtendBackward grows the range at anchorIdx so it starts at r.Min, drops
// every earlier range the grown range now covers and restores the
// invariants. The anchor range never shrinks.
func (t Tracker) ExtendBackward(anchorIdx int, r Range) (Tracker, error) {
	extended, err := t.extension(anchorIdx, r)
	if err != nil {
		return t, err
	}

	before := make([]Range, 0, anchorIdx)

	for i := anchorIdx - 1; i >= 0; i-- {
		if extended.Covers(t.ranges[i]) {
			continue
		}

		before = append(before, t.ranges[i])
	}

	slices.Reverse(before)

	next := make([]Range, 0, len(t.ranges))
	next = append(next, before...)
	next = append(next, extended)
	next = append(next, t.ranges[anchorIdx+1:]...)

	return Tracker{ranges: MergeAdjacentRanges(next)}, nil
}

func (t Tracker) extension(anchorIdx int, r Range) (Range, error) {
	if anchorIdx < 0 || anchorIdx >= len(t.ranges) {
		return Range{}, fmt.Errorf("%w: index %d, tracker holds %d ranges", ErrAnchorOutOfRange, anchorIdx, len(t.ranges))
	}

	if !r.Valid() {
		return Range{}, fmt.Errorf("%w: %d-%d", ErrInvalidRange, r.Min, r.Max)
	}

	anchor := t.ranges[anchorIdx]

	return Range{
		Min: min(anchor.Min, r.Min),
		Max: max(anchor.Max, r.Max),
	}, nil
}

func (t Tracker) String() string {
	parts := make([]string, 0, len(t.ranges))
	for _, r := range t.ranges {
		parts = append(parts, r.String())
	}

	return "[" + strings.Join(parts, " ") + "]"
}

// MergeAdjacentRanges returns a sorted copy of ranges in which every pair
// that touches (a.Max+1 == b.Min) or overlaps is collapsed into one range.
// The input slice is not modified.
func MergeAdjacentRanges(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}

	sorted := slices.Clone(ranges)
	slices.SortStableFunc(sorted, func(a, b Range) int {
		return cmp.Compare(a.Min, b.Min)
	})

	merged := make([]Range, 0, len(sorted))
	current := sorted[0]

	for _, r := range sorted[1:] {
		if r.Min <= current.Max+1 {
			current.Max = max(current.Max, r.Max)

			continue
		}

		merged = append(merged, current)
		current = r
	}

	return append(merged, current)
}
