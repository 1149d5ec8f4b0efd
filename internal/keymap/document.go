package keymap

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/bitly/go-simplejson"
)

// MaxWheelRange is the largest joystick radius, as a fraction of the screen width
const MaxWheelRange = 0.5

// Document is the mapping configuration consumed by the touch runtime
type Document struct {
	Screen  Screen  `json:"SCREEN"`
	Mouse   Mouse   `json:"MOUSE"`
	Wheel   Wheel   `json:"WHEEL"`
	KeyMaps KeyMaps `json:"KEY_MAPS"`

	// Img is the reference screenshot, usually a data URL. It is carried through untouched.
	Img string `json:"IMG"`
}

// Screen describes the reference image
type Screen struct {
	// Size is the natural pixel size of the screenshot
	Size Size `json:"SIZE"`
}

// Mouse configures mouse-look
type Mouse struct {
	// SwitchKeys toggle mapping mode on the runtime. No duplicates.
	SwitchKeys []KeyID `json:"SWITCH_KEYS"`

	// Pos is the look-center anchor
	Pos Point `json:"POS"`

	// Speed scales raw mouse deltas per axis
	Speed [2]float64 `json:"SPEED"`
}

// Wheel configures the virtual joystick driven by WASD
type Wheel struct {
	Pos Point `json:"POS"`

	// Range is the joystick radius as a fraction of the screen width
	Range float64 `json:"RANGE"`

	// ShiftRange is the enlarged radius used while shift is active. Never smaller than Range.
	ShiftRange float64 `json:"SHIFT_RANGE"`

	ShiftRangeEnable       bool `json:"SHIFT_RANGE_ENABLE"`
	ShiftRangeSwitchEnable bool `json:"SHIFT_RANGE_SWITCH_ENABLE"`

	// WASD lists the up, left, down and right keys
	WASD [4]KeyID `json:"WASD"`
}

// Anchor returns the position of an anchor
func (d Document) Anchor(which Anchor) Point {
	if which == WheelCenter {
		return d.Wheel.Pos
	}
	return d.Mouse.Pos
}

// Clone returns a deep copy sharing no slices or maps with d
func (d Document) Clone() Document {
	out := d
	out.Mouse.SwitchKeys = make([]KeyID, len(d.Mouse.SwitchKeys))
	copy(out.Mouse.SwitchKeys, d.Mouse.SwitchKeys)
	out.KeyMaps = d.KeyMaps.Clone()
	return out
}

// HasSwitchKey reports whether key is already a switch key
func (d Document) HasSwitchKey(key KeyID) bool {
	for _, k := range d.Mouse.SwitchKeys {
		if k == key {
			return true
		}
	}
	return false
}

type documentJSON Document

// MarshalJSON encodes the document in the runtime wire format
func (d Document) MarshalJSON() ([]byte, error) {
	if d.Mouse.SwitchKeys == nil {
		d.Mouse.SwitchKeys = []KeyID{}
	}
	return json.Marshal(documentJSON(d))
}

// Validate checks every constraint of the document and reports all violations at once
func (d Document) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if d.Screen.Size.Degenerate() {
		add("SCREEN.SIZE %dx%d has no area", d.Screen.Size.W, d.Screen.Size.H)
	}
	if !d.Mouse.Pos.InBounds() {
		add("MOUSE.POS %s outside the image", d.Mouse.Pos)
	}
	for i, s := range d.Mouse.Speed {
		if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
			add("MOUSE.SPEED[%d] = %g is not a non-negative number", i, s)
		}
	}
	seen := make(map[KeyID]bool, len(d.Mouse.SwitchKeys))
	for _, k := range d.Mouse.SwitchKeys {
		if k == "" {
			add("MOUSE.SWITCH_KEYS contains an empty key")
			continue
		}
		if seen[k] {
			add("MOUSE.SWITCH_KEYS contains %s twice", k)
		}
		seen[k] = true
	}

	if !d.Wheel.Pos.InBounds() {
		add("WHEEL.POS %s outside the image", d.Wheel.Pos)
	}
	if d.Wheel.Range < 0 || d.Wheel.Range > MaxWheelRange {
		add("WHEEL.RANGE %g outside [0, %g]", d.Wheel.Range, MaxWheelRange)
	}
	if d.Wheel.ShiftRange < d.Wheel.Range || d.Wheel.ShiftRange > MaxWheelRange {
		add("WHEEL.SHIFT_RANGE %g outside [RANGE, %g]", d.Wheel.ShiftRange, MaxWheelRange)
	}

	for _, key := range d.KeyMaps.Keys() {
		e, _ := d.KeyMaps.Get(key)
		if key == "" {
			add("KEY_MAPS contains an empty key")
		}
		if e == nil {
			add("KEY_MAPS.%s has no entry", key)
			continue
		}
		if !e.Gesture().AllowedFor(key) {
			add("KEY_MAPS.%s: %s cannot be bound to a wheel pulse", key, e.Gesture())
		}
		if err := e.validate(); err != nil {
			add("KEY_MAPS.%s: %w", key, err)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidDocument, errors.Join(errs...))
}

// Encode serializes the document for the runtime
func Encode(d Document) ([]byte, error) {
	return json.Marshal(d)
}

// Decode parses a document, upgrades legacy fields and validates it
func Decode(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if err := upgradeLegacy(data, &doc); err != nil {
		return Document{}, err
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// upgradeLegacy fills fields that older runtimes wrote differently:
// a single MOUSE.SWITCH_KEY string, documents without SHIFT_RANGE, and a
// SHIFT_RANGE left below RANGE, which is raised to RANGE.
func upgradeLegacy(data []byte, doc *Document) error {
	js, err := simplejson.NewJson(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	mouse := js.Get("MOUSE")
	if _, ok := mouse.CheckGet("SWITCH_KEYS"); !ok {
		if legacy, ok := mouse.CheckGet("SWITCH_KEY"); ok {
			if key, err := legacy.String(); err == nil && key != "" {
				log.Printf("Keymap: Upgrading legacy MOUSE.SWITCH_KEY %q", key)
				doc.Mouse.SwitchKeys = []KeyID{KeyID(key)}
			}
		}
	}

	if _, ok := js.Get("WHEEL").CheckGet("SHIFT_RANGE"); !ok {
		doc.Wheel.ShiftRange = doc.Wheel.Range
	} else if doc.Wheel.ShiftRange < doc.Wheel.Range {
		log.Printf("Keymap: Raising WHEEL.SHIFT_RANGE %g to RANGE %g", doc.Wheel.ShiftRange, doc.Wheel.Range)
		doc.Wheel.ShiftRange = doc.Wheel.Range
	}
	return nil
}

// Equal reports whether two documents encode to the same wire bytes
func Equal(a, b Document) bool {
	ea, errA := Encode(a)
	eb, errB := Encode(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ea) == string(eb)
}
