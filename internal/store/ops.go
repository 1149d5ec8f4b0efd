package store

import (
	"fmt"
	"math"

	"touchmap/internal/editor"
	"touchmap/internal/geometry"
	"touchmap/internal/keymap"
)

// Every operation in this file is a copy-on-write transformation: the input
// document is never modified, and on error (or when there is nothing to do) the
// input is returned as is.

// SetImage replaces the reference screenshot and its natural size.
// Stored points are fractions, so every mapping follows the new image.
func SetImage(doc keymap.Document, payload string, natural keymap.Size) (keymap.Document, error) {
	if natural.Degenerate() {
		return doc, fmt.Errorf("%w: image size %dx%d", geometry.ErrDegenerateGeometry, natural.W, natural.H)
	}
	out := doc.Clone()
	out.Img = payload
	out.Screen.Size = natural
	return out, nil
}

// SetAnchor moves the mouse-look center or the wheel center
func SetAnchor(doc keymap.Document, which keymap.Anchor, p keymap.Point) (keymap.Document, error) {
	if _, err := keymap.ParseAnchor(string(which)); err != nil {
		return doc, err
	}
	if err := checkPoint(p); err != nil {
		return doc, err
	}

	out := doc.Clone()
	if which == keymap.WheelCenter {
		out.Wheel.Pos = p
	} else {
		out.Mouse.Pos = p
	}
	return out, nil
}

// SetKeyMapping assigns a captured point to key. An unmapped key gets a new
// entry; a single-point entry moves; DRAG and MULT_PRESS get the point appended.
func SetKeyMapping(doc keymap.Document, key keymap.KeyID, p keymap.Point) (keymap.Document, error) {
	if err := checkKey(key); err != nil {
		return doc, err
	}
	if err := checkPoint(p); err != nil {
		return doc, err
	}

	var next keymap.Entry
	if old, ok := doc.KeyMaps.Get(key); ok && old != nil {
		next = editor.Assign(old, p)
	} else {
		next = editor.NewEntry(key, p)
	}
	return withEntry(doc, key, next), nil
}

// RetypeKeyMapping replaces the entry of key by a fresh entry of gesture g
func RetypeKeyMapping(doc keymap.Document, key keymap.KeyID, g keymap.Gesture) (keymap.Document, error) {
	old, err := mapped(doc, key)
	if err != nil {
		return doc, err
	}
	next, err := editor.Retype(key, old, g)
	if err != nil {
		return doc, err
	}
	return withEntry(doc, key, next), nil
}

// DeleteKeyMapping unmaps key. Deleting an absent key is not an error.
func DeleteKeyMapping(doc keymap.Document, key keymap.KeyID) keymap.Document {
	if _, ok := doc.KeyMaps.Get(key); !ok {
		return doc
	}
	out := doc.Clone()
	out.KeyMaps.Delete(key)
	return out
}

// AddSwitchKey appends key to the mapping-mode toggles
func AddSwitchKey(doc keymap.Document, key keymap.KeyID) (keymap.Document, error) {
	if err := checkKey(key); err != nil {
		return doc, err
	}
	if doc.HasSwitchKey(key) {
		return doc, fmt.Errorf("%w: %s", ErrDuplicateSwitchKey, key)
	}
	out := doc.Clone()
	out.Mouse.SwitchKeys = append(out.Mouse.SwitchKeys, key)
	return out, nil
}

// RemoveSwitchKey drops the switch key at index i
func RemoveSwitchKey(doc keymap.Document, i int) (keymap.Document, error) {
	keys := doc.Mouse.SwitchKeys
	if i < 0 || i >= len(keys) {
		return doc, fmt.Errorf("%w: switch key %d of %d", ErrIndexOutOfRange, i, len(keys))
	}
	out := doc.Clone()
	out.Mouse.SwitchKeys = append(out.Mouse.SwitchKeys[:i], out.Mouse.SwitchKeys[i+1:]...)
	return out, nil
}

// SetWheelGeometry commits the joystick radius and, when given, the shift radius.
// The shift radius is then raised to the radius if it ended up smaller.
func SetWheelGeometry(doc keymap.Document, rng float64, shift *float64) (keymap.Document, error) {
	if err := checkRange("RANGE", rng); err != nil {
		return doc, err
	}
	if shift != nil {
		if err := checkRange("SHIFT_RANGE", *shift); err != nil {
			return doc, err
		}
	}

	out := doc.Clone()
	out.Wheel.Range = rng
	if shift != nil {
		out.Wheel.ShiftRange = *shift
	}
	clampShift(&out.Wheel)
	return out, nil
}

// SetShiftRange commits the shift radius alone, never below the radius
func SetShiftRange(doc keymap.Document, shift float64) (keymap.Document, error) {
	return SetWheelGeometry(doc, doc.Wheel.Range, &shift)
}

// SetShiftRangeEnabled toggles the shift ring
func SetShiftRangeEnabled(doc keymap.Document, on bool) keymap.Document {
	out := doc.Clone()
	out.Wheel.ShiftRangeEnable = on
	return out
}

// SetShiftRangeSwitchEnabled toggles whether shift latches instead of being held
func SetShiftRangeSwitchEnabled(doc keymap.Document, on bool) keymap.Document {
	out := doc.Clone()
	out.Wheel.ShiftRangeSwitchEnable = on
	return out
}

// SetMouseSpeed sets the per-axis mouse-look sensitivity
func SetMouseSpeed(doc keymap.Document, sx, sy float64) (keymap.Document, error) {
	for _, s := range []float64{sx, sy} {
		if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
			return doc, fmt.Errorf("%w: mouse speed %g", ErrValueOutOfRange, s)
		}
	}
	out := doc.Clone()
	out.Mouse.Speed = [2]float64{sx, sy}
	return out, nil
}

// SetWASD sets the up, left, down and right keys of the joystick
func SetWASD(doc keymap.Document, keys [4]keymap.KeyID) (keymap.Document, error) {
	for _, k := range keys {
		if err := checkKey(k); err != nil {
			return doc, err
		}
	}
	out := doc.Clone()
	out.Wheel.WASD = keys
	return out, nil
}

// SetInterval replaces the INTERVAL of the entry bound to key
func SetInterval(doc keymap.Document, key keymap.KeyID, values []int) (keymap.Document, error) {
	old, err := mapped(doc, key)
	if err != nil {
		return doc, err
	}
	next, err := editor.SetInterval(old, values)
	if err != nil {
		return doc, err
	}
	return withEntry(doc, key, next), nil
}

// AppendKeyPoint appends p to the point list of a DRAG or MULT_PRESS entry
func AppendKeyPoint(doc keymap.Document, key keymap.KeyID, p keymap.Point) (keymap.Document, error) {
	if err := checkPoint(p); err != nil {
		return doc, err
	}
	old, err := mapped(doc, key)
	if err != nil {
		return doc, err
	}
	next, err := editor.AppendPoint(old, p)
	if err != nil {
		return doc, err
	}
	return withEntry(doc, key, next), nil
}

// RemoveKeyPoint drops point i from a DRAG or MULT_PRESS entry
func RemoveKeyPoint(doc keymap.Document, key keymap.KeyID, i int) (keymap.Document, error) {
	old, err := mapped(doc, key)
	if err != nil {
		return doc, err
	}
	next, err := editor.RemovePoint(old, i)
	if err != nil {
		return doc, err
	}
	return withEntry(doc, key, next), nil
}

func withEntry(doc keymap.Document, key keymap.KeyID, e keymap.Entry) keymap.Document {
	out := doc.Clone()
	out.KeyMaps.Set(key, e)
	return out
}

func mapped(doc keymap.Document, key keymap.KeyID) (keymap.Entry, error) {
	e, ok := doc.KeyMaps.Get(key)
	if !ok || e == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotMapped, key)
	}
	return e, nil
}

func checkPoint(p keymap.Point) error {
	if !p.InBounds() {
		return fmt.Errorf("%w: %s", ErrOutOfBounds, p)
	}
	return nil
}

func checkKey(key keymap.KeyID) error {
	if key == "" {
		return fmt.Errorf("%w: empty key id", ErrInvalidKey)
	}
	return nil
}

func checkRange(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > keymap.MaxWheelRange {
		return fmt.Errorf("%w: %s %g outside [0, %g]", ErrValueOutOfRange, name, v, keymap.MaxWheelRange)
	}
	return nil
}

func clampShift(w *keymap.Wheel) {
	if w.ShiftRange < w.Range {
		w.ShiftRange = w.Range
	}
}
