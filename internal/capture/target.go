package capture

import (
	"fmt"

	"touchmap/internal/keymap"
)

// Target is what the next captured input will be applied to.
// The concrete types are AnchorTarget, SwitchKeyTarget and PointTarget;
// a nil Target means nothing is pending.
type Target interface {
	fmt.Stringer
	target()
}

// AnchorTarget moves the mouse-look center or the wheel center to the next click
type AnchorTarget struct {
	Which keymap.Anchor
}

// SwitchKeyTarget adds the next pressed key to the switch keys
type SwitchKeyTarget struct{}

// PointTarget appends the next click to the point list of Key
type PointTarget struct {
	Key keymap.KeyID
}

func (AnchorTarget) target()    {}
func (SwitchKeyTarget) target() {}
func (PointTarget) target()     {}

func (t AnchorTarget) String() string  { return "anchor:" + string(t.Which) }
func (SwitchKeyTarget) String() string { return "switch_key" }
func (t PointTarget) String() string   { return "point:" + string(t.Key) }

// Describe names a possibly nil target
func Describe(t Target) string {
	if t == nil {
		return "none"
	}
	return t.String()
}
