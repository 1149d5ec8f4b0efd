// Package geometry converts between pixel coordinates on a screenshot and the
// resolution independent fractions stored in a mapping document.
//
// Two pixel spaces are involved: the natural size of the reference image
// (SCREEN.SIZE) and the size the image is currently rendered at, which differs
// whenever the editor scales the image to fit the window.
package geometry

import (
	"errors"
	"fmt"
	"image"
	"math"

	"touchmap/internal/keymap"
)

// ErrDegenerateGeometry is returned when a conversion is asked to use a size with no area
var ErrDegenerateGeometry = errors.New("degenerate geometry")

// snap absorbs float representation error when truncating, so 0.29*100 lands on 29
const snap = 1e-9

func checkSize(s keymap.Size) error {
	if s.Degenerate() {
		return fmt.Errorf("%w: size %dx%d", ErrDegenerateGeometry, s.W, s.H)
	}
	return nil
}

func truncate(v float64) int {
	return int(math.Trunc(v + math.Copysign(snap, v)))
}

// ToNormalized converts a pixel position on an image displayed at the given
// size into fractions. Bounds are not checked here; callers decide whether a
// point outside the image is rejected.
func ToNormalized(px, py float64, displayed keymap.Size) (keymap.Point, error) {
	if err := checkSize(displayed); err != nil {
		return keymap.Point{}, err
	}
	return keymap.Point{
		X: px / float64(displayed.W),
		Y: py / float64(displayed.H),
	}, nil
}

// ToDisplayPixels places a point on the natural reference image (SCREEN.SIZE)
func ToDisplayPixels(p keymap.Point, screen keymap.Size) (image.Point, error) {
	return toPixels(p, screen)
}

// ToRenderedPixels places a point on the image as currently rendered
func ToRenderedPixels(p keymap.Point, displayed keymap.Size) (image.Point, error) {
	return toPixels(p, displayed)
}

func toPixels(p keymap.Point, s keymap.Size) (image.Point, error) {
	if err := checkSize(s); err != nil {
		return image.Point{}, err
	}
	return image.Pt(truncate(p.X*float64(s.W)), truncate(p.Y*float64(s.H))), nil
}

// ScaleRadius converts a one dimensional fraction (joystick radius) into pixels.
// Such quantities are always relative to the width.
func ScaleRadius(r float64, s keymap.Size) (int, error) {
	if err := checkSize(s); err != nil {
		return 0, err
	}
	return truncate(r * float64(s.W)), nil
}
