// Package keymap defines the touch-mapping document: the schema of a mapping
// entry, the wire codec consumed by the touch runtime and its validation rules.
//
// All positions are stored as fractions of the reference screenshot, so a
// document stays valid when the screenshot is replaced by one of another
// resolution.
package keymap

import (
	"encoding/json"
	"fmt"
	"math"
)

// KeyID identifies a physical input source (e.g. "KEY_W", "BTN_LEFT", "REL_WHEEL_UP")
type KeyID string

// Scroll wheel pulses. They have no hold semantics.
const (
	KeyWheelUp   KeyID = "REL_WHEEL_UP"
	KeyWheelDown KeyID = "REL_WHEEL_DOWN"
)

// oneShotKeys release their selection after a single assignment.
var oneShotKeys = map[KeyID]bool{
	"BTN_LEFT":   true,
	"BTN_MIDDLE": true,
	"BTN_RIGHT":  true,
	"BTN_SIDE":   true,
	"BTN_EXTRA":  true,
	KeyWheelUp:   true,
	KeyWheelDown: true,
}

// IsWheel reports whether the key is a scroll wheel pulse
func (k KeyID) IsWheel() bool {
	return k == KeyWheelUp || k == KeyWheelDown
}

// IsOneShot reports whether the key is assigned with a single click
// (mouse buttons and wheel pulses) rather than held while clicking.
func (k KeyID) IsOneShot() bool {
	return oneShotKeys[k]
}

// Point is a position expressed as fractions of the reference image width and height
type Point struct {
	X float64
	Y float64
}

// Pt is shorthand for Point{X: x, Y: y}
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// InBounds reports whether the point lies on the reference image
func (p Point) InBounds() bool {
	return p.X >= 0 && p.Y >= 0 && p.X <= 1 && p.Y <= 1
}

// String formats the point as (x, y)
func (p Point) String() string {
	return fmt.Sprintf("(%g, %g)", p.X, p.Y)
}

// MarshalJSON encodes the point as a two element array
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

// UnmarshalJSON decodes a two element array
func (p *Point) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("point: %w", err)
	}
	if len(v) != 2 {
		return fmt.Errorf("point: expected 2 coordinates, got %d", len(v))
	}
	if math.IsNaN(v[0]) || math.IsNaN(v[1]) {
		return fmt.Errorf("point: coordinate is NaN")
	}
	p.X, p.Y = v[0], v[1]
	return nil
}

// Size is a pixel size
type Size struct {
	W int
	H int
}

// Degenerate reports whether the size has no area
func (s Size) Degenerate() bool {
	return s.W <= 0 || s.H <= 0
}

// MarshalJSON encodes the size as [width, height]
func (s Size) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{s.W, s.H})
}

// UnmarshalJSON decodes [width, height]
func (s *Size) UnmarshalJSON(data []byte) error {
	var v []int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("size: %w", err)
	}
	if len(v) != 2 {
		return fmt.Errorf("size: expected 2 values, got %d", len(v))
	}
	s.W, s.H = v[0], v[1]
	return nil
}

// Anchor is a reference point that is not tied to a key
type Anchor string

const (
	// MouseCenter is where the mouse-look touch starts
	MouseCenter Anchor = "mouse_center"
	// WheelCenter is the center of the virtual joystick
	WheelCenter Anchor = "wheel_center"
)

// ParseAnchor converts a wire name into an Anchor
func ParseAnchor(s string) (Anchor, error) {
	switch Anchor(s) {
	case MouseCenter, WheelCenter:
		return Anchor(s), nil
	default:
		return "", fmt.Errorf("unknown anchor %q", s)
	}
}
