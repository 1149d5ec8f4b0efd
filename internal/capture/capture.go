// Package capture tracks the session-local input state of the editor: which
// keys are held, which key is selected for assignment and the single pending
// capture target. None of it is part of the mapping document.
package capture

import (
	"log"
	"sort"
	"sync"

	"touchmap/internal/keymap"
)

// Tracker holds the capture state of one editing session
type Tracker struct {
	mu       sync.RWMutex
	pressed  map[keymap.KeyID]bool
	selected keymap.KeyID
	pending  Target
}

// State is a snapshot of the tracker, shaped for the editor page
type State struct {
	Pressed  []keymap.KeyID `json:"pressed"`
	Selected keymap.KeyID   `json:"selected,omitempty"`
	Pending  string         `json:"pending"`
}

// NewTracker creates a tracker with nothing held, selected or pending
func NewTracker() *Tracker {
	return &Tracker{
		pressed: make(map[keymap.KeyID]bool),
	}
}

// KeyDown records a key press. A held key becomes the selected key.
func (t *Tracker) KeyDown(key keymap.KeyID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pressed[key] = true
	t.selected = key
}

// KeyUp records a key release. The selection is dropped only if it was this key.
func (t *Tracker) KeyUp(key keymap.KeyID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pressed, key)
	if t.selected == key {
		t.selected = ""
	}
}

// IsPressed reports whether key is currently held
func (t *Tracker) IsPressed(key keymap.KeyID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pressed[key]
}

// Select marks key for assignment without a key press, used for mouse
// buttons and wheel pulses that cannot be held while clicking.
func (t *Tracker) Select(key keymap.KeyID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.selected = key
}

// Selected returns the key selected for assignment
func (t *Tracker) Selected() (keymap.KeyID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.selected, t.selected != ""
}

// ClearSelection drops the selected key
func (t *Tracker) ClearSelection() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.selected = ""
}

// Arm sets the pending target, replacing any previous one, and returns the previous one
func (t *Tracker) Arm(target Target) Target {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.pending
	t.pending = target
	log.Printf("Capture: Armed %s (was %s)", Describe(target), Describe(prev))
	return prev
}

// Pending returns the pending target, nil when none
func (t *Tracker) Pending() Target {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pending
}

// Consume clears the pending target if it is still want, and reports whether it did.
// Comparing against want keeps a target armed concurrently from being lost.
func (t *Tracker) Consume(want Target) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil || t.pending != want {
		return false
	}
	t.pending = nil
	return true
}

// Cancel abandons the pending target and returns it
func (t *Tracker) Cancel() Target {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.pending
	t.pending = nil
	if prev != nil {
		log.Printf("Capture: Cancelled %s", prev)
	}
	return prev
}

// Snapshot returns the current state with held keys sorted
func (t *Tracker) Snapshot() State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pressed := make([]keymap.KeyID, 0, len(t.pressed))
	for k := range t.pressed {
		pressed = append(pressed, k)
	}
	sort.Slice(pressed, func(i, j int) bool { return pressed[i] < pressed[j] })

	return State{
		Pressed:  pressed,
		Selected: t.selected,
		Pending:  Describe(t.pending),
	}
}
