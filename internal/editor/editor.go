// Package editor implements the per-gesture editing rules of a mapping entry:
// what a retype keeps, what a captured point does to an entry and which
// interval shapes each gesture accepts.
//
// Functions here never mutate their argument. Bounds of points are checked by
// the caller (store), the editor only deals with entry shapes.
package editor

import (
	"fmt"

	"touchmap/internal/keymap"
)

// Defaults used when an entry is synthesized
const (
	ClickMS       = 18 // CLICK touch duration
	AutoFireGapMS = 20 // AUTO_FIRE pause between pulses
	DragMS        = 18 // DRAG time per leg
)

// FreshPos is where a single-point entry lands when no position can be carried over
var FreshPos = keymap.Pt(0.4, 0.4)

// NewEntry is the entry created the first time a point is assigned to an unmapped key
func NewEntry(key keymap.KeyID, p keymap.Point) keymap.Entry {
	if key.IsWheel() {
		return keymap.ClickEntry{Pos: p, Duration: ClickMS}
	}
	return keymap.PressEntry{Pos: p}
}

// Retype replaces old by a fresh entry of gesture g.
// POS is carried between PRESS, CLICK and AUTO_FIRE; intervals are always reset
// to their defaults. DRAG and MULT_PRESS always start with no points. old may
// be nil, in which case single-point gestures start at FreshPos.
func Retype(key keymap.KeyID, old keymap.Entry, g keymap.Gesture) (keymap.Entry, error) {
	if _, err := keymap.ParseGesture(string(g)); err != nil {
		return nil, err
	}
	if !g.AllowedFor(key) {
		return nil, fmt.Errorf("%w: %s on %s", ErrGestureNotAllowed, g, key)
	}

	pos := FreshPos
	if old != nil {
		if p, ok := keymap.Position(old); ok {
			pos = p
		}
	}

	switch g {
	case keymap.Press:
		return keymap.PressEntry{Pos: pos}, nil
	case keymap.Click:
		return keymap.ClickEntry{Pos: pos, Duration: ClickMS}, nil
	case keymap.AutoFire:
		return keymap.AutoFireEntry{Pos: pos, Down: ClickMS, Gap: AutoFireGapMS}, nil
	case keymap.Drag:
		return keymap.DragEntry{Path: []keymap.Point{}, Dwell: DragMS}, nil
	default:
		return keymap.MultiPressEntry{Touches: []keymap.Point{}}, nil
	}
}

// Assign applies a captured point to an existing entry: single-point entries
// move to p, DRAG and MULT_PRESS get p appended.
func Assign(old keymap.Entry, p keymap.Point) keymap.Entry {
	switch v := old.(type) {
	case keymap.PressEntry:
		v.Pos = p
		return v
	case keymap.ClickEntry:
		v.Pos = p
		return v
	case keymap.AutoFireEntry:
		v.Pos = p
		return v
	default:
		out, _ := AppendPoint(old, p)
		return out
	}
}

// AppendPoint adds p to the end of the point list of a DRAG or MULT_PRESS entry
func AppendPoint(e keymap.Entry, p keymap.Point) (keymap.Entry, error) {
	switch v := e.(type) {
	case keymap.DragEntry:
		return keymap.DragEntry{Path: appendPoint(v.Path, p), Dwell: v.Dwell}, nil
	case keymap.MultiPressEntry:
		return keymap.MultiPressEntry{Touches: appendPoint(v.Touches, p)}, nil
	default:
		return e, notMultiPoint(e)
	}
}

// RemovePoint drops the point at index i from a DRAG or MULT_PRESS entry
func RemovePoint(e keymap.Entry, i int) (keymap.Entry, error) {
	switch v := e.(type) {
	case keymap.DragEntry:
		path, err := removePoint(v.Path, i)
		if err != nil {
			return e, err
		}
		return keymap.DragEntry{Path: path, Dwell: v.Dwell}, nil
	case keymap.MultiPressEntry:
		touches, err := removePoint(v.Touches, i)
		if err != nil {
			return e, err
		}
		return keymap.MultiPressEntry{Touches: touches}, nil
	default:
		return e, notMultiPoint(e)
	}
}

// SetInterval replaces the INTERVAL values of e.
// CLICK and DRAG take one value, AUTO_FIRE two; PRESS and MULT_PRESS have none.
func SetInterval(e keymap.Entry, values []int) (keymap.Entry, error) {
	for _, v := range values {
		if v < 0 {
			return e, fmt.Errorf("%w: negative value %d", ErrBadInterval, v)
		}
	}

	want := len(keymap.Interval(e))
	if e == nil || want == 0 {
		return e, fmt.Errorf("%w: %s has no interval", ErrBadInterval, gestureOf(e))
	}
	if len(values) != want {
		return e, fmt.Errorf("%w: %s takes %d values, got %d", ErrBadInterval, e.Gesture(), want, len(values))
	}

	switch v := e.(type) {
	case keymap.ClickEntry:
		v.Duration = values[0]
		return v, nil
	case keymap.AutoFireEntry:
		v.Down, v.Gap = values[0], values[1]
		return v, nil
	default:
		d := keymap.CloneEntry(e).(keymap.DragEntry)
		d.Dwell = values[0]
		return d, nil
	}
}

func appendPoint(ps []keymap.Point, p keymap.Point) []keymap.Point {
	out := make([]keymap.Point, 0, len(ps)+1)
	out = append(out, ps...)
	return append(out, p)
}

func removePoint(ps []keymap.Point, i int) ([]keymap.Point, error) {
	if i < 0 || i >= len(ps) {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(ps))
	}
	out := make([]keymap.Point, 0, len(ps)-1)
	out = append(out, ps[:i]...)
	return append(out, ps[i+1:]...), nil
}

func notMultiPoint(e keymap.Entry) error {
	return fmt.Errorf("%w: %s", ErrNotMultiPoint, gestureOf(e))
}

func gestureOf(e keymap.Entry) keymap.Gesture {
	if e == nil {
		return "unmapped"
	}
	return e.Gesture()
}
