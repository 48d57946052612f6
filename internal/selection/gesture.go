package selection

import (
	"errors"
	"fmt"
)

// Action identifies a user selection gesture.
type Action string

const (
	// ActionSelect is a plain click: the row is added to the selection.
	ActionSelect Action = "select"
	// ActionToggle is a ctrl-click: the row flips between selected and not.
	ActionToggle Action = "toggle"
	// ActionExtend is a shift-click: the selection grows from the anchor row
	// to the clicked row.
	ActionExtend Action = "extend"
	// ActionClear drops the whole selection.
	ActionClear Action = "clear"
)

// ErrInvalidGesture is returned for gestures that cannot be applied.
var ErrInvalidGesture = errors.New("invalid selection gesture")

// Gesture is one selection interaction on the grid.
type Gesture struct {
	Action Action `json:"action"`
	Row    int    `json:"row"`
	// Anchor is the last row the user explicitly selected. Only used by
	// ActionExtend; without one the extension degrades to a plain select.
	Anchor *int `json:"anchor,omitempty"`
}

// Apply returns the selection that results from g.
func Apply(t Tracker, g Gesture) (Tracker, error) {
	if g.Action != ActionClear && (g.Row < 0 || g.Row > MaxRow) {
		return t, fmt.Errorf("%w: row %d outside [0, %d]", ErrInvalidGesture, g.Row, MaxRow)
	}

	switch g.Action {
	case ActionSelect:
		return t.Insert(NewRange(g.Row, g.Row)), nil
	case ActionToggle:
		return t.Toggle(g.Row), nil
	case ActionClear:
		return NewTracker(), nil
	case ActionExtend:
		return extend(t, g)
	default:
		return t, fmt.Errorf("%w: unknown action %q", ErrInvalidGesture, g.Action)
	}
}

func extend(t Tracker, g Gesture) (Tracker, error) {
	if g.Anchor == nil {
		return t.Insert(NewRange(g.Row, g.Row)), nil
	}

	anchor := *g.Anchor
	if anchor < 0 || anchor > MaxRow {
		return t, fmt.Errorf("%w: anchor %d outside [0, %d]", ErrInvalidGesture, anchor, MaxRow)
	}

	span := Span(anchor, g.Row)

	// The anchor row may have been deselected since it was clicked.
	anchorIdx := t.FindRangeIndex(anchor)
	if anchorIdx == -1 {
		return t.Insert(span), nil
	}

	if g.Row >= anchor {
		return t.ExtendForward(anchorIdx, span)
	}

	return t.ExtendBackward(anchorIdx, span)
}
