package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"touchmap/internal/capture"
	"touchmap/internal/editor"
	"touchmap/internal/embedded"
	"touchmap/internal/keymap"
	"touchmap/internal/store"
)

var view = keymap.Size{W: 800, H: 360}

type fakeExporter struct {
	mu      sync.Mutex
	pushed  []keymap.Document
	release map[int]chan struct{}
	replies map[int]string
	err     error
}

func (f *fakeExporter) Push(ctx context.Context, doc keymap.Document) (string, error) {
	f.mu.Lock()
	n := len(f.pushed)
	f.pushed = append(f.pushed, doc)
	wait := f.release[n]
	reply := f.replies[n]
	err := f.err
	f.mu.Unlock()

	if wait != nil {
		<-wait
	}
	return reply, err
}

type fakeShots struct {
	data []byte
	err  error
}

func (f fakeShots) FetchScreenshot(context.Context) ([]byte, error) {
	return f.data, f.err
}

func newSession(t *testing.T, exp Exporter, shots ScreenshotSource) (*Session, *store.Store) {
	t.Helper()
	doc, err := embedded.Default()
	require.NoError(t, err)
	st := store.New(doc)
	return New(st, capture.NewTracker(), exp, shots, time.Second), st
}

func entryOf(t *testing.T, s *Session, key keymap.KeyID) keymap.Entry {
	t.Helper()
	doc := s.Document()
	e, ok := doc.KeyMaps.Get(key)
	require.True(t, ok, "%s not mapped", key)
	return e
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestClickAssignsHeldKey(t *testing.T) {
	s, st := newSession(t, nil, nil)

	require.NoError(t, s.KeyDown("KEY_X"))
	out, err := s.Click(400, 180, view)
	require.NoError(t, err)
	assert.Equal(t, KeyAssigned, out)
	assert.Equal(t, keymap.PressEntry{Pos: keymap.Pt(0.5, 0.5)}, entryOf(t, s, "KEY_X"))

	// Held keyboard keys stay selected
	out, err = s.Click(200, 90, view)
	require.NoError(t, err)
	assert.Equal(t, KeyAssigned, out)
	assert.Equal(t, keymap.PressEntry{Pos: keymap.Pt(0.25, 0.25)}, entryOf(t, s, "KEY_X"))

	s.KeyUp("KEY_X")
	version := st.Version()
	out, err = s.Click(100, 100, view)
	require.NoError(t, err)
	assert.Equal(t, Ignored, out)
	assert.Equal(t, version, st.Version())
}

func TestClickOutsideImageIsIgnored(t *testing.T) {
	s, st := newSession(t, nil, nil)
	require.NoError(t, s.KeyDown("KEY_X"))
	require.NoError(t, s.ArmAnchor(keymap.MouseCenter))

	out, err := s.Click(960, 180, view)
	require.NoError(t, err)
	assert.Equal(t, Ignored, out)
	assert.Zero(t, st.Version())
	assert.Equal(t, capture.AnchorTarget{Which: keymap.MouseCenter}, s.tracker.Pending(), "target stays armed")
	assert.Empty(t, s.Status())
}

func TestClickDegenerateView(t *testing.T) {
	s, _ := newSession(t, nil, nil)
	_, err := s.Click(1, 1, keymap.Size{})
	assert.Error(t, err)
}

func TestOneShotSelectionClears(t *testing.T) {
	s, _ := newSession(t, nil, nil)

	require.NoError(t, s.Select(keymap.KeyWheelUp))
	out, err := s.Click(400, 180, view)
	require.NoError(t, err)
	assert.Equal(t, KeyAssigned, out)
	assert.Equal(t, keymap.ClickEntry{Pos: keymap.Pt(0.5, 0.5), Duration: 18}, entryOf(t, s, keymap.KeyWheelUp))

	_, ok := s.tracker.Selected()
	assert.False(t, ok)
}

func TestAnchorTargets(t *testing.T) {
	s, _ := newSession(t, nil, nil)

	// The mouse center target wins over a held key
	require.NoError(t, s.KeyDown("KEY_X"))
	require.NoError(t, s.ArmAnchor(keymap.MouseCenter))
	out, err := s.Click(400, 90, view)
	require.NoError(t, err)
	assert.Equal(t, AnchorMoved, out)
	assert.Equal(t, keymap.Pt(0.5, 0.25), s.Document().Mouse.Pos)
	assert.Nil(t, s.tracker.Pending())
	s.KeyUp("KEY_X")

	require.NoError(t, s.ArmAnchor(keymap.WheelCenter))
	out, err = s.Click(80, 270, view)
	require.NoError(t, err)
	assert.Equal(t, AnchorMoved, out)
	assert.Equal(t, keymap.Pt(0.1, 0.75), s.Document().Wheel.Pos)

	assert.Error(t, s.ArmAnchor("elsewhere"))
}

func TestPointTarget(t *testing.T) {
	s, _ := newSession(t, nil, nil)

	assert.ErrorIs(t, s.ArmPoint("KEY_NOPE"), store.ErrNotMapped)
	assert.ErrorIs(t, s.ArmPoint("KEY_F"), editor.ErrNotMultiPoint)

	_, err := s.Retype("KEY_F", keymap.Drag)
	require.NoError(t, err)
	require.NoError(t, s.ArmPoint("KEY_F"))

	out, err := s.Click(400, 180, view)
	require.NoError(t, err)
	assert.Equal(t, PointAdded, out)
	assert.Equal(t, []keymap.Point{keymap.Pt(0.5, 0.5)}, entryOf(t, s, "KEY_F").Points())

	out, err = s.Click(200, 180, view)
	require.NoError(t, err)
	assert.Equal(t, Ignored, out, "target is consumed by one click")

	_, err = s.RemovePoint("KEY_F", 0)
	require.NoError(t, err)
	assert.Empty(t, entryOf(t, s, "KEY_F").Points())
}

func TestPointTargetDroppedWithItsKey(t *testing.T) {
	s, _ := newSession(t, nil, nil)

	_, err := s.Retype("KEY_Z", keymap.MultPress)
	require.NoError(t, err)
	require.NoError(t, s.ArmPoint("KEY_Z"))
	_, err = s.Delete("KEY_Z")
	require.NoError(t, err)
	assert.Equal(t, "none", s.Capture().Pending)

	for i := 0; i < 3; i++ {
		out, err := s.Click(400, 180, view)
		require.NoError(t, err)
		assert.Equal(t, Ignored, out)
	}

	// Retype resets the point list, so the armed click goes too
	_, err = s.Retype("KEY_F", keymap.Drag)
	require.NoError(t, err)
	require.NoError(t, s.ArmPoint("KEY_F"))
	_, err = s.Retype("KEY_F", keymap.MultPress)
	require.NoError(t, err)
	assert.Equal(t, "none", s.Capture().Pending)

	// A replacement document that still maps the key keeps the target
	require.NoError(t, s.ArmPoint("KEY_F"))
	require.NoError(t, s.Replace(s.Document()))
	assert.Equal(t, "point:KEY_F", s.Capture().Pending)

	replaced := s.Document()
	replaced.KeyMaps.Delete("KEY_F")
	require.NoError(t, s.Replace(replaced))
	assert.Equal(t, "none", s.Capture().Pending)
}

func TestCancelLeavesDocument(t *testing.T) {
	s, st := newSession(t, nil, nil)
	before := s.Document()

	require.NoError(t, s.ArmAnchor(keymap.WheelCenter))
	s.Cancel()
	out, err := s.Click(10, 10, view)
	require.NoError(t, err)
	assert.Equal(t, Ignored, out)
	assert.True(t, keymap.Equal(before, s.Document()))
	assert.Zero(t, st.Version())
}

func TestSwitchKeyCapture(t *testing.T) {
	s, _ := newSession(t, nil, nil)
	s.now = func() time.Time { return time.Unix(100, 0) }

	s.ArmSwitchKey()
	require.NoError(t, s.KeyDown("KEY_TAB"))
	assert.Equal(t, []keymap.KeyID{"KEY_GRAVE", "KEY_TAB"}, s.Document().Mouse.SwitchKeys)
	assert.Nil(t, s.tracker.Pending())
	_, ok := s.tracker.Selected()
	assert.False(t, ok, "a captured switch key is not selected")

	s.ArmSwitchKey()
	err := s.KeyDown("KEY_GRAVE")
	assert.True(t, errors.Is(err, store.ErrDuplicateSwitchKey))
	assert.Equal(t, []keymap.KeyID{"KEY_GRAVE", "KEY_TAB"}, s.Document().Mouse.SwitchKeys)
	assert.Equal(t, capture.SwitchKeyTarget{}, s.tracker.Pending(), "still waiting for a new key")
	assert.Contains(t, s.Status(), "KEY_GRAVE")

	_, err = s.RemoveSwitchKey(0)
	require.NoError(t, err)
	assert.Equal(t, []keymap.KeyID{"KEY_TAB"}, s.Document().Mouse.SwitchKeys)
}

func TestPanelEdits(t *testing.T) {
	s, _ := newSession(t, nil, nil)

	doc, err := s.SetWheelGeometry(0.3, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.3, doc.Wheel.ShiftRange)

	doc, err = s.SetShiftRange(0.4)
	require.NoError(t, err)
	assert.Equal(t, 0.4, doc.Wheel.ShiftRange)

	doc, err = s.SetShiftRangeEnabled(false)
	require.NoError(t, err)
	assert.False(t, doc.Wheel.ShiftRangeEnable)

	doc, err = s.SetShiftRangeSwitchEnabled(false)
	require.NoError(t, err)
	assert.False(t, doc.Wheel.ShiftRangeSwitchEnable)

	doc, err = s.SetMouseSpeed(1, 2)
	require.NoError(t, err)
	assert.Equal(t, [2]float64{1, 2}, doc.Mouse.Speed)

	doc, err = s.SetWASD([4]keymap.KeyID{"KEY_I", "KEY_J", "KEY_K", "KEY_L"})
	require.NoError(t, err)
	assert.Equal(t, keymap.KeyID("KEY_I"), doc.Wheel.WASD[0])

	_, err = s.Retype("KEY_F", keymap.Click)
	require.NoError(t, err)
	doc, err = s.SetInterval("KEY_F", []int{35})
	require.NoError(t, err)
	e, _ := doc.KeyMaps.Get("KEY_F")
	assert.Equal(t, []int{35}, keymap.Interval(e))

	doc, err = s.Delete("KEY_F")
	require.NoError(t, err)
	_, ok := doc.KeyMaps.Get("KEY_F")
	assert.False(t, ok)
}

func TestSetImage(t *testing.T) {
	s, _ := newSession(t, nil, nil)

	doc, err := s.SetImage(encodePNG(t, 64, 32))
	require.NoError(t, err)
	assert.Equal(t, keymap.Size{W: 64, H: 32}, doc.Screen.Size)
	assert.True(t, strings.HasPrefix(doc.Img, "data:image/png;base64,"))

	_, err = s.SetImage([]byte("not an image"))
	assert.ErrorIs(t, err, ErrBadImage)
	assert.Equal(t, keymap.Size{W: 64, H: 32}, s.Document().Screen.Size)
}

func TestRefreshScreenshot(t *testing.T) {
	s, _ := newSession(t, nil, fakeShots{data: encodePNG(t, 20, 10)})
	doc, err := s.RefreshScreenshot(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, keymap.Size{W: 20, H: 10}, doc.Screen.Size)

	s, _ = newSession(t, nil, fakeShots{err: errors.New("device offline")})
	_, err = s.RefreshScreenshot(context.Background(), 0)
	assert.EqualError(t, err, "device offline")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.RefreshScreenshot(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)

	s, _ = newSession(t, nil, nil)
	_, err = s.RefreshScreenshot(context.Background(), 0)
	assert.Error(t, err)
}

func TestExportStatusExpires(t *testing.T) {
	exp := &fakeExporter{replies: map[int]string{0: "saved"}}
	s, _ := newSession(t, exp, nil)

	clock := time.Unix(1000, 0)
	s.now = func() time.Time { return clock }

	s.Export()
	s.WaitExports()
	assert.Equal(t, "saved", s.Status())

	clock = clock.Add(999 * time.Millisecond)
	assert.Equal(t, "saved", s.Status())

	clock = clock.Add(time.Millisecond)
	assert.Empty(t, s.Status())

	require.Len(t, exp.pushed, 1)
	assert.True(t, keymap.Equal(s.Document(), exp.pushed[0]))
}

func TestExportFailureBecomesStatus(t *testing.T) {
	exp := &fakeExporter{err: errors.New("connection refused")}
	s, _ := newSession(t, exp, nil)

	s.Export()
	s.WaitExports()
	assert.Equal(t, "connection refused", s.Status())
}

func TestNewestExportWins(t *testing.T) {
	first := make(chan struct{})
	exp := &fakeExporter{
		release: map[int]chan struct{}{0: first},
		replies: map[int]string{0: "old", 1: "new"},
	}
	s, _ := newSession(t, exp, nil)

	assert.Equal(t, uint64(1), s.Export())
	require.Eventually(t, func() bool {
		exp.mu.Lock()
		defer exp.mu.Unlock()
		return len(exp.pushed) == 1
	}, time.Second, 5*time.Millisecond)

	// Editing continues while an export is in flight
	require.NoError(t, s.KeyDown("KEY_X"))
	_, err := s.Click(400, 180, view)
	require.NoError(t, err)

	assert.Equal(t, uint64(2), s.Export())
	require.Eventually(t, func() bool { return s.Status() == "new" }, time.Second, 5*time.Millisecond)

	close(first)
	s.WaitExports()
	assert.Equal(t, "new", s.Status(), "a stale export does not overwrite the status")

	_, ok := exp.pushed[1].KeyMaps.Get("KEY_X")
	assert.True(t, ok)
	_, ok = exp.pushed[0].KeyMaps.Get("KEY_X")
	assert.False(t, ok)
}

func TestExportWithoutRemote(t *testing.T) {
	s, _ := newSession(t, nil, nil)
	s.Export()
	s.WaitExports()
	assert.Equal(t, errNoRemote.Error(), s.Status())
}

func TestOverlay(t *testing.T) {
	s, _ := newSession(t, nil, nil)
	ov, err := s.Overlay(keymap.Size{W: 1600, H: 720})
	require.NoError(t, err)
	assert.Len(t, ov.Keys, 13)
	assert.Equal(t, image.Pt(832, 360), ov.ViewCenter)
}
