package keymap

import (
	"encoding/json"
	"fmt"
)

// Gesture is the TYPE of a mapping entry
type Gesture string

const (
	// Press holds a touch at one location for as long as the key is held
	Press Gesture = "PRESS"
	// Click sends one touch of fixed duration per key-down edge
	Click Gesture = "CLICK"
	// AutoFire repeats clicks while the key is held
	AutoFire Gesture = "AUTO_FIRE"
	// Drag moves one touch through an ordered list of points
	Drag Gesture = "DRAG"
	// MultPress holds one concurrent touch per listed point
	MultPress Gesture = "MULT_PRESS"
)

// Gestures lists every gesture in menu order
var Gestures = []Gesture{Press, Click, AutoFire, Drag, MultPress}

// ParseGesture converts a wire TYPE into a Gesture
func ParseGesture(s string) (Gesture, error) {
	switch g := Gesture(s); g {
	case Press, Click, AutoFire, Drag, MultPress:
		return g, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownGesture, s)
	}
}

// SinglePoint reports whether entries of this gesture carry one POS
func (g Gesture) SinglePoint() bool {
	return g == Press || g == Click || g == AutoFire
}

// AllowedFor reports whether the gesture can be bound to the key.
// Wheel pulses cannot be held, so they only accept CLICK and DRAG.
func (g Gesture) AllowedFor(key KeyID) bool {
	if key.IsWheel() {
		return g == Click || g == Drag
	}
	return true
}

// Entry is the gesture bound to one key. The concrete types are PressEntry,
// ClickEntry, AutoFireEntry, DragEntry and MultiPressEntry.
type Entry interface {
	Gesture() Gesture
	// Points returns the entry positions in order
	Points() []Point

	clone() Entry
	validate() error
	wire() any
}

// PressEntry mirrors the key hold at a single location
type PressEntry struct {
	Pos Point
}

// ClickEntry taps once per key-down
type ClickEntry struct {
	Pos      Point
	Duration int // ms
}

// AutoFireEntry taps repeatedly while the key is held
type AutoFireEntry struct {
	Pos  Point
	Down int // ms per pulse
	Gap  int // ms between pulses
}

// DragEntry slides a single touch through Path
type DragEntry struct {
	Path  []Point
	Dwell int // ms per leg
}

// MultiPressEntry holds every point of Touches at once
type MultiPressEntry struct {
	Touches []Point
}

func (PressEntry) Gesture() Gesture      { return Press }
func (ClickEntry) Gesture() Gesture      { return Click }
func (AutoFireEntry) Gesture() Gesture   { return AutoFire }
func (DragEntry) Gesture() Gesture       { return Drag }
func (MultiPressEntry) Gesture() Gesture { return MultPress }

func (e PressEntry) Points() []Point      { return []Point{e.Pos} }
func (e ClickEntry) Points() []Point      { return []Point{e.Pos} }
func (e AutoFireEntry) Points() []Point   { return []Point{e.Pos} }
func (e DragEntry) Points() []Point       { return clonePoints(e.Path) }
func (e MultiPressEntry) Points() []Point { return clonePoints(e.Touches) }

func (e PressEntry) clone() Entry      { return e }
func (e ClickEntry) clone() Entry      { return e }
func (e AutoFireEntry) clone() Entry   { return e }
func (e DragEntry) clone() Entry       { return DragEntry{Path: clonePoints(e.Path), Dwell: e.Dwell} }
func (e MultiPressEntry) clone() Entry { return MultiPressEntry{Touches: clonePoints(e.Touches)} }

// Position returns the POS of single-point entries
func Position(e Entry) (Point, bool) {
	switch v := e.(type) {
	case PressEntry:
		return v.Pos, true
	case ClickEntry:
		return v.Pos, true
	case AutoFireEntry:
		return v.Pos, true
	default:
		return Point{}, false
	}
}

// Interval returns the INTERVAL values of the entry, nil when it has none
func Interval(e Entry) []int {
	switch v := e.(type) {
	case ClickEntry:
		return []int{v.Duration}
	case AutoFireEntry:
		return []int{v.Down, v.Gap}
	case DragEntry:
		return []int{v.Dwell}
	default:
		return nil
	}
}

// CloneEntry returns a deep copy of e
func CloneEntry(e Entry) Entry {
	if e == nil {
		return nil
	}
	return e.clone()
}

func clonePoints(ps []Point) []Point {
	out := make([]Point, len(ps))
	copy(out, ps)
	return out
}

func validatePoints(ps ...Point) error {
	for i, p := range ps {
		if !p.InBounds() {
			return fmt.Errorf("%w: point %d %s outside the image", ErrInvalidEntry, i, p)
		}
	}
	return nil
}

func validateDurations(ms ...int) error {
	for _, v := range ms {
		if v < 0 {
			return fmt.Errorf("%w: negative interval %d", ErrInvalidEntry, v)
		}
	}
	return nil
}

func (e PressEntry) validate() error { return validatePoints(e.Pos) }

func (e ClickEntry) validate() error {
	if err := validatePoints(e.Pos); err != nil {
		return err
	}
	return validateDurations(e.Duration)
}

func (e AutoFireEntry) validate() error {
	if err := validatePoints(e.Pos); err != nil {
		return err
	}
	return validateDurations(e.Down, e.Gap)
}

func (e DragEntry) validate() error {
	if err := validatePoints(e.Path...); err != nil {
		return err
	}
	return validateDurations(e.Dwell)
}

func (e MultiPressEntry) validate() error { return validatePoints(e.Touches...) }

// Wire shapes. Each gesture writes exactly its own fields.
type (
	pressWire struct {
		Type Gesture `json:"TYPE"`
		Pos  Point   `json:"POS"`
	}
	clickWire struct {
		Type     Gesture `json:"TYPE"`
		Pos      Point   `json:"POS"`
		Interval [1]int  `json:"INTERVAL"`
	}
	autoFireWire struct {
		Type     Gesture `json:"TYPE"`
		Pos      Point   `json:"POS"`
		Interval [2]int  `json:"INTERVAL"`
	}
	dragWire struct {
		Type     Gesture `json:"TYPE"`
		PosS     []Point `json:"POS_S"`
		Interval [1]int  `json:"INTERVAL"`
	}
	multPressWire struct {
		Type Gesture `json:"TYPE"`
		PosS []Point `json:"POS_S"`
	}
)

func (e PressEntry) wire() any { return pressWire{Type: Press, Pos: e.Pos} }

func (e ClickEntry) wire() any {
	return clickWire{Type: Click, Pos: e.Pos, Interval: [1]int{e.Duration}}
}

func (e AutoFireEntry) wire() any {
	return autoFireWire{Type: AutoFire, Pos: e.Pos, Interval: [2]int{e.Down, e.Gap}}
}

func (e DragEntry) wire() any {
	return dragWire{Type: Drag, PosS: clonePoints(e.Path), Interval: [1]int{e.Dwell}}
}

func (e MultiPressEntry) wire() any {
	return multPressWire{Type: MultPress, PosS: clonePoints(e.Touches)}
}

// MarshalEntry encodes an entry in its wire shape
func MarshalEntry(e Entry) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil entry", ErrInvalidEntry)
	}
	return json.Marshal(e.wire())
}

// rawEntry accepts the union of all wire fields so the decoder can check which are present
type rawEntry struct {
	Type     string   `json:"TYPE"`
	Pos      *Point   `json:"POS"`
	PosS     *[]Point `json:"POS_S"`
	Interval []int    `json:"INTERVAL"`
}

// UnmarshalEntry decodes an entry and checks that its fields match its TYPE
func UnmarshalEntry(data []byte) (Entry, error) {
	var raw rawEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	g, err := ParseGesture(raw.Type)
	if err != nil {
		return nil, err
	}

	needPos := func() (Point, error) {
		if raw.Pos == nil {
			return Point{}, fmt.Errorf("%w: %s requires POS", ErrInvalidEntry, g)
		}
		return *raw.Pos, nil
	}
	needPosS := func() ([]Point, error) {
		if raw.PosS == nil {
			return nil, fmt.Errorf("%w: %s requires POS_S", ErrInvalidEntry, g)
		}
		return clonePoints(*raw.PosS), nil
	}
	needInterval := func(n int) error {
		if len(raw.Interval) != n {
			return fmt.Errorf("%w: %s requires INTERVAL of %d values, got %d", ErrInvalidEntry, g, n, len(raw.Interval))
		}
		return nil
	}

	switch g {
	case Press:
		pos, err := needPos()
		if err != nil {
			return nil, err
		}
		return PressEntry{Pos: pos}, nil
	case Click:
		pos, err := needPos()
		if err != nil {
			return nil, err
		}
		if err := needInterval(1); err != nil {
			return nil, err
		}
		return ClickEntry{Pos: pos, Duration: raw.Interval[0]}, nil
	case AutoFire:
		pos, err := needPos()
		if err != nil {
			return nil, err
		}
		if err := needInterval(2); err != nil {
			return nil, err
		}
		return AutoFireEntry{Pos: pos, Down: raw.Interval[0], Gap: raw.Interval[1]}, nil
	case Drag:
		path, err := needPosS()
		if err != nil {
			return nil, err
		}
		if err := needInterval(1); err != nil {
			return nil, err
		}
		return DragEntry{Path: path, Dwell: raw.Interval[0]}, nil
	default:
		points, err := needPosS()
		if err != nil {
			return nil, err
		}
		return MultiPressEntry{Touches: points}, nil
	}
}
