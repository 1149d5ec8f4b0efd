// Package session routes captured input to document edits and runs the
// export and screenshot round trips of one editing session.
package session

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"sync"
	"time"

	_ "golang.org/x/image/webp"

	"touchmap/internal/capture"
	"touchmap/internal/editor"
	"touchmap/internal/geometry"
	"touchmap/internal/keymap"
	"touchmap/internal/store"
)

// DefaultStatusTTL is how long an export status stays visible
const DefaultStatusTTL = time.Second

// exportTimeout bounds one export round trip
const exportTimeout = 10 * time.Second

// Exporter persists a document and returns the status text of the remote side
type Exporter interface {
	Push(ctx context.Context, doc keymap.Document) (string, error)
}

// ScreenshotSource provides a fresh screenshot of the device
type ScreenshotSource interface {
	FetchScreenshot(ctx context.Context) ([]byte, error)
}

// Outcome tells what a captured click did
type Outcome string

const (
	// Ignored means the click fell outside the image or nothing wanted it
	Ignored Outcome = "ignored"
	// AnchorMoved means a pending anchor target consumed the click
	AnchorMoved Outcome = "anchor"
	// KeyAssigned means the selected key was mapped to the click
	KeyAssigned Outcome = "key"
	// PointAdded means a pending point target consumed the click
	PointAdded Outcome = "point"
)

// Session is one editor attached to a store
type Session struct {
	store    *store.Store
	tracker  *capture.Tracker
	exporter Exporter
	shots    ScreenshotSource

	statusTTL time.Duration
	now       func() time.Time

	mu          sync.Mutex
	status      string
	statusUntil time.Time
	exportSeq   uint64

	exports sync.WaitGroup
}

// New creates a session. exporter and shots may be nil, in which case export
// and screenshot refresh report an error.
func New(st *store.Store, tracker *capture.Tracker, exporter Exporter, shots ScreenshotSource, statusTTL time.Duration) *Session {
	if statusTTL <= 0 {
		statusTTL = DefaultStatusTTL
	}
	return &Session{
		store:     st,
		tracker:   tracker,
		exporter:  exporter,
		shots:     shots,
		statusTTL: statusTTL,
		now:       time.Now,
	}
}

// Document returns the current document
func (s *Session) Document() keymap.Document {
	return s.store.Get()
}

// Capture returns the capture state
func (s *Session) Capture() capture.State {
	return s.tracker.Snapshot()
}

// Overlay computes marker positions for an image rendered at size
func (s *Session) Overlay(size keymap.Size) (geometry.Overlay, error) {
	return geometry.BuildOverlay(s.store.Get(), size)
}

func (s *Session) apply(op store.Op) (keymap.Document, error) {
	return s.store.Apply(op)
}

// KeyDown handles a key press. With a pending switch-key target the key is
// added to the switch keys; otherwise it becomes the selected key.
func (s *Session) KeyDown(key keymap.KeyID) error {
	if key == "" {
		return fmt.Errorf("%w: empty key id", store.ErrInvalidKey)
	}
	if pending := s.tracker.Pending(); pending == (capture.SwitchKeyTarget{}) {
		_, err := s.apply(func(d keymap.Document) (keymap.Document, error) {
			return store.AddSwitchKey(d, key)
		})
		if errors.Is(err, store.ErrDuplicateSwitchKey) {
			s.setStatus(fmt.Sprintf("%s is already a switch key", key))
			return err
		}
		if err != nil {
			return err
		}
		s.tracker.Consume(pending)
		log.Printf("Session: Added switch key %s", key)
		return nil
	}

	s.tracker.KeyDown(key)
	return nil
}

// KeyUp handles a key release
func (s *Session) KeyUp(key keymap.KeyID) {
	s.tracker.KeyUp(key)
}

// Select marks key for assignment by the next click
func (s *Session) Select(key keymap.KeyID) error {
	if key == "" {
		return fmt.Errorf("%w: empty key id", store.ErrInvalidKey)
	}
	s.tracker.Select(key)
	return nil
}

// ClearSelection drops the selected key
func (s *Session) ClearSelection() {
	s.tracker.ClearSelection()
}

// ArmAnchor makes the next click move an anchor
func (s *Session) ArmAnchor(which keymap.Anchor) error {
	if _, err := keymap.ParseAnchor(string(which)); err != nil {
		return err
	}
	s.tracker.Arm(capture.AnchorTarget{Which: which})
	return nil
}

// ArmSwitchKey makes the next key press a switch key
func (s *Session) ArmSwitchKey() {
	s.tracker.Arm(capture.SwitchKeyTarget{})
}

// ArmPoint makes the next click extend the point list of key, which must be a DRAG or MULT_PRESS entry
func (s *Session) ArmPoint(key keymap.KeyID) error {
	doc := s.store.Get()
	e, ok := doc.KeyMaps.Get(key)
	if !ok || e == nil {
		return fmt.Errorf("%w: %s", store.ErrNotMapped, key)
	}
	if e.Gesture().SinglePoint() {
		return fmt.Errorf("%w: %s is %s", editor.ErrNotMultiPoint, key, e.Gesture())
	}
	s.tracker.Arm(capture.PointTarget{Key: key})
	return nil
}

// Cancel abandons the pending capture target. The document is not touched.
func (s *Session) Cancel() {
	s.tracker.Cancel()
}

// Click routes a click given in pixels of the image as rendered at displayed.
// Clicks outside the image are ignored without error. Otherwise the click goes,
// in order, to a pending mouse-center target, to the selected key, then to a
// pending wheel-center or point target.
func (s *Session) Click(px, py float64, displayed keymap.Size) (Outcome, error) {
	p, err := geometry.ToNormalized(px, py, displayed)
	if err != nil {
		return Ignored, err
	}
	if !p.InBounds() {
		return Ignored, nil
	}

	pending := s.tracker.Pending()
	if pending == (capture.AnchorTarget{Which: keymap.MouseCenter}) {
		return s.moveAnchor(pending, keymap.MouseCenter, p)
	}

	if key, ok := s.tracker.Selected(); ok {
		if _, err := s.apply(func(d keymap.Document) (keymap.Document, error) {
			return store.SetKeyMapping(d, key, p)
		}); err != nil {
			return Ignored, err
		}
		if key.IsOneShot() {
			s.tracker.ClearSelection()
		}
		return KeyAssigned, nil
	}

	switch t := pending.(type) {
	case capture.AnchorTarget:
		return s.moveAnchor(pending, t.Which, p)
	case capture.PointTarget:
		if _, err := s.apply(func(d keymap.Document) (keymap.Document, error) {
			return store.AppendKeyPoint(d, t.Key, p)
		}); err != nil {
			return Ignored, err
		}
		s.tracker.Consume(pending)
		return PointAdded, nil
	}
	return Ignored, nil
}

func (s *Session) moveAnchor(pending capture.Target, which keymap.Anchor, p keymap.Point) (Outcome, error) {
	if _, err := s.apply(func(d keymap.Document) (keymap.Document, error) {
		return store.SetAnchor(d, which, p)
	}); err != nil {
		return Ignored, err
	}
	s.tracker.Consume(pending)
	return AnchorMoved, nil
}

// Retype changes the gesture of a mapped key
func (s *Session) Retype(key keymap.KeyID, g keymap.Gesture) (keymap.Document, error) {
	doc, err := s.apply(func(d keymap.Document) (keymap.Document, error) {
		return store.RetypeKeyMapping(d, key, g)
	})
	if err == nil {
		s.dropPointTarget(key)
	}
	return doc, err
}

// Delete unmaps key
func (s *Session) Delete(key keymap.KeyID) (keymap.Document, error) {
	doc, err := s.apply(func(d keymap.Document) (keymap.Document, error) {
		return store.DeleteKeyMapping(d, key), nil
	})
	if err == nil {
		s.dropPointTarget(key)
	}
	return doc, err
}

// dropPointTarget disarms a pending point target for key. Its point list was
// reset or removed, so the armed click no longer has anything to extend.
func (s *Session) dropPointTarget(key keymap.KeyID) {
	if s.tracker.Consume(capture.PointTarget{Key: key}) {
		log.Printf("Session: Disarmed point capture for %s", key)
	}
}

// RemoveSwitchKey drops the switch key at index i
func (s *Session) RemoveSwitchKey(i int) (keymap.Document, error) {
	return s.apply(func(d keymap.Document) (keymap.Document, error) {
		return store.RemoveSwitchKey(d, i)
	})
}

// SetWheelGeometry commits the joystick radii
func (s *Session) SetWheelGeometry(rng float64, shift *float64) (keymap.Document, error) {
	return s.apply(func(d keymap.Document) (keymap.Document, error) {
		return store.SetWheelGeometry(d, rng, shift)
	})
}

// SetShiftRange commits the shift radius
func (s *Session) SetShiftRange(shift float64) (keymap.Document, error) {
	return s.apply(func(d keymap.Document) (keymap.Document, error) {
		return store.SetShiftRange(d, shift)
	})
}

// SetShiftRangeEnabled toggles the shift ring
func (s *Session) SetShiftRangeEnabled(on bool) (keymap.Document, error) {
	return s.apply(func(d keymap.Document) (keymap.Document, error) {
		return store.SetShiftRangeEnabled(d, on), nil
	})
}

// SetShiftRangeSwitchEnabled toggles latching shift
func (s *Session) SetShiftRangeSwitchEnabled(on bool) (keymap.Document, error) {
	return s.apply(func(d keymap.Document) (keymap.Document, error) {
		return store.SetShiftRangeSwitchEnabled(d, on), nil
	})
}

// SetMouseSpeed sets the mouse-look sensitivity
func (s *Session) SetMouseSpeed(sx, sy float64) (keymap.Document, error) {
	return s.apply(func(d keymap.Document) (keymap.Document, error) {
		return store.SetMouseSpeed(d, sx, sy)
	})
}

// SetWASD sets the joystick keys
func (s *Session) SetWASD(keys [4]keymap.KeyID) (keymap.Document, error) {
	return s.apply(func(d keymap.Document) (keymap.Document, error) {
		return store.SetWASD(d, keys)
	})
}

// SetInterval replaces the INTERVAL of key
func (s *Session) SetInterval(key keymap.KeyID, values []int) (keymap.Document, error) {
	return s.apply(func(d keymap.Document) (keymap.Document, error) {
		return store.SetInterval(d, key, values)
	})
}

// RemovePoint drops point i of key
func (s *Session) RemovePoint(key keymap.KeyID, i int) (keymap.Document, error) {
	return s.apply(func(d keymap.Document) (keymap.Document, error) {
		return store.RemoveKeyPoint(d, key, i)
	})
}

// Replace swaps in a whole document, for example one pushed by the backend
func (s *Session) Replace(doc keymap.Document) error {
	if err := s.store.Set(doc); err != nil {
		return err
	}
	if pt, ok := s.tracker.Pending().(capture.PointTarget); ok {
		if e, mapped := doc.KeyMaps.Get(pt.Key); !mapped || e == nil || e.Gesture().SinglePoint() {
			s.dropPointTarget(pt.Key)
		}
	}
	return nil
}

// SetImage installs encoded image bytes (png, jpeg, gif or webp) as the reference screenshot
func (s *Session) SetImage(data []byte) (keymap.Document, error) {
	payload, size, err := DataURL(data)
	if err != nil {
		return s.store.Get(), err
	}
	doc, err := s.apply(func(d keymap.Document) (keymap.Document, error) {
		return store.SetImage(d, payload, size)
	})
	if err == nil {
		log.Printf("Session: Reference image set to %dx%d", size.W, size.H)
	}
	return doc, err
}

// RefreshScreenshot fetches a screenshot from the device, after waiting delay, and installs it
func (s *Session) RefreshScreenshot(ctx context.Context, delay time.Duration) (keymap.Document, error) {
	if s.shots == nil {
		return s.store.Get(), errNoRemote
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return s.store.Get(), ctx.Err()
		}
	}
	data, err := s.shots.FetchScreenshot(ctx)
	if err != nil {
		return s.store.Get(), err
	}
	return s.SetImage(data)
}

// DataURL decodes the header of an encoded image and returns it as a data URL with its natural size
func DataURL(data []byte) (string, keymap.Size, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", keymap.Size{}, fmt.Errorf("%w: %w", ErrBadImage, err)
	}
	size := keymap.Size{W: cfg.Width, H: cfg.Height}
	if size.Degenerate() {
		return "", size, fmt.Errorf("%w: image size %dx%d", geometry.ErrDegenerateGeometry, size.W, size.H)
	}
	return "data:image/" + format + ";base64," + base64.StdEncoding.EncodeToString(data), size, nil
}

// Export sends the current document to the exporter in the background and
// returns the sequence number of this export. Only the newest export updates
// the status when it completes.
func (s *Session) Export() uint64 {
	doc := s.store.Get()

	s.mu.Lock()
	s.exportSeq++
	seq := s.exportSeq
	s.mu.Unlock()

	s.exports.Add(1)
	go func() {
		defer s.exports.Done()

		var text string
		if s.exporter == nil {
			text = errNoRemote.Error()
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
			defer cancel()
			status, err := s.exporter.Push(ctx, doc)
			if err != nil {
				log.Printf("Session: Export %d failed: %v", seq, err)
				text = err.Error()
			} else {
				text = status
			}
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if seq != s.exportSeq {
			log.Printf("Session: Export %d superseded by %d", seq, s.exportSeq)
			return
		}
		s.setStatusLocked(text)
	}()
	return seq
}

// WaitExports blocks until every export started so far has completed
func (s *Session) WaitExports() {
	s.exports.Wait()
}

// Status returns the transient status text, empty once it has expired
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != "" && !s.now().Before(s.statusUntil) {
		s.status = ""
	}
	return s.status
}

func (s *Session) setStatus(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStatusLocked(text)
}

func (s *Session) setStatusLocked(text string) {
	s.status = text
	s.statusUntil = s.now().Add(s.statusTTL)
}
