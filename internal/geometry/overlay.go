package geometry

import (
	"image"

	"touchmap/internal/keymap"
)

// Marker is one key binding placed in pixels
type Marker struct {
	Key     keymap.KeyID   `json:"key"`
	Gesture keymap.Gesture `json:"type"`
	Points  []image.Point  `json:"points"`
}

// WheelMarker is the joystick ring placed in pixels
type WheelMarker struct {
	Center image.Point `json:"center"`
	Radius int         `json:"radius"`

	// ShiftRadius is zero when the shift ring is disabled
	ShiftRadius int `json:"shift_radius"`
}

// Overlay holds everything a renderer draws on top of the screenshot
type Overlay struct {
	Size       keymap.Size `json:"size"`
	Keys       []Marker    `json:"keys"`
	Wheel      WheelMarker `json:"wheel"`
	ViewCenter image.Point `json:"view_center"`
}

// BuildOverlay converts every position of doc into pixels of an image rendered at size
func BuildOverlay(doc keymap.Document, size keymap.Size) (Overlay, error) {
	if err := checkSize(size); err != nil {
		return Overlay{}, err
	}

	ov := Overlay{Size: size, Keys: make([]Marker, 0, doc.KeyMaps.Len())}
	for _, key := range doc.KeyMaps.Keys() {
		e, _ := doc.KeyMaps.Get(key)
		m := Marker{Key: key, Gesture: e.Gesture(), Points: []image.Point{}}
		for _, p := range e.Points() {
			px, _ := toPixels(p, size)
			m.Points = append(m.Points, px)
		}
		ov.Keys = append(ov.Keys, m)
	}

	ov.ViewCenter, _ = toPixels(doc.Mouse.Pos, size)
	ov.Wheel.Center, _ = toPixels(doc.Wheel.Pos, size)
	ov.Wheel.Radius, _ = ScaleRadius(doc.Wheel.Range, size)
	if doc.Wheel.ShiftRangeEnable {
		ov.Wheel.ShiftRadius, _ = ScaleRadius(doc.Wheel.ShiftRange, size)
	}
	return ov, nil
}
