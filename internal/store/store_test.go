package store

import (
	"errors"
	"sync"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"touchmap/internal/editor"
	"touchmap/internal/embedded"
	"touchmap/internal/geometry"
	"touchmap/internal/keymap"
)

func defaultDoc(t *testing.T) keymap.Document {
	t.Helper()
	doc, err := embedded.Default()
	require.NoError(t, err)
	return doc
}

func entryOf(t *testing.T, doc keymap.Document, key keymap.KeyID) keymap.Entry {
	t.Helper()
	e, ok := doc.KeyMaps.Get(key)
	require.True(t, ok, "%s not mapped", key)
	return e
}

func TestEndToEnd(t *testing.T) {
	doc := defaultDoc(t)

	got, err := SetKeyMapping(doc, "KEY_X", keymap.Pt(1.2, 0.5))
	assert.ErrorIs(t, err, ErrOutOfBounds)
	assert.True(t, keymap.Equal(doc, got))
	_, ok := got.KeyMaps.Get("KEY_X")
	assert.False(t, ok)

	doc, err = SetKeyMapping(doc, "KEY_X", keymap.Pt(0.5, 0.5))
	require.NoError(t, err)
	assert.Equal(t, keymap.PressEntry{Pos: keymap.Pt(0.5, 0.5)}, entryOf(t, doc, "KEY_X"))

	doc, err = RetypeKeyMapping(doc, "KEY_X", keymap.AutoFire)
	require.NoError(t, err)
	assert.Equal(t, keymap.AutoFireEntry{Pos: keymap.Pt(0.5, 0.5), Down: 18, Gap: 20}, entryOf(t, doc, "KEY_X"))

	doc, err = RetypeKeyMapping(doc, "KEY_X", keymap.Drag)
	require.NoError(t, err)
	assert.Equal(t, keymap.DragEntry{Path: []keymap.Point{}, Dwell: 18}, entryOf(t, doc, "KEY_X"))

	data, err := keymap.Encode(doc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"KEY_X":{"TYPE":"DRAG","POS_S":[],"INTERVAL":[18]}`)
}

func TestOpsDoNotModifyInput(t *testing.T) {
	doc := defaultDoc(t)
	before, err := keymap.Encode(doc)
	require.NoError(t, err)

	_, _ = SetKeyMapping(doc, "BTN_LEFT", keymap.Pt(0.1, 0.1))
	_, _ = RetypeKeyMapping(doc, "KEY_Q", keymap.MultPress)
	_, _ = AddSwitchKey(doc, "KEY_TAB")
	_, _ = RemoveSwitchKey(doc, 0)
	_ = DeleteKeyMapping(doc, "KEY_M")
	_, _ = SetWheelGeometry(doc, 0.3, nil)
	_, _ = SetImage(doc, "data:,", keymap.Size{W: 10, H: 10})

	after, err := keymap.Encode(doc)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestSetKeyMappingRules(t *testing.T) {
	doc := defaultDoc(t)
	p := keymap.Pt(0.3, 0.6)

	doc, err := SetKeyMapping(doc, keymap.KeyWheelUp, p)
	require.NoError(t, err)
	assert.Equal(t, keymap.ClickEntry{Pos: p, Duration: 18}, entryOf(t, doc, keymap.KeyWheelUp))

	doc, err = SetInterval(doc, keymap.KeyWheelUp, []int{60})
	require.NoError(t, err)
	q := keymap.Pt(0.7, 0.7)
	doc, err = SetKeyMapping(doc, keymap.KeyWheelUp, q)
	require.NoError(t, err)
	assert.Equal(t, keymap.ClickEntry{Pos: q, Duration: 60}, entryOf(t, doc, keymap.KeyWheelUp), "type and interval are kept")

	doc, err = RetypeKeyMapping(doc, "KEY_Q", keymap.MultPress)
	require.NoError(t, err)
	doc, err = SetKeyMapping(doc, "KEY_Q", p)
	require.NoError(t, err)
	doc, err = SetKeyMapping(doc, "KEY_Q", q)
	require.NoError(t, err)
	assert.Equal(t, []keymap.Point{p, q}, entryOf(t, doc, "KEY_Q").Points())

	keys := doc.KeyMaps.Keys()
	assert.Equal(t, keymap.KeyID("KEY_Q"), keys[9], "retyped key keeps its position")

	_, err = SetKeyMapping(doc, "", p)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestRetypeErrors(t *testing.T) {
	doc := defaultDoc(t)

	got, err := RetypeKeyMapping(doc, "KEY_NOPE", keymap.Click)
	assert.ErrorIs(t, err, ErrNotMapped)
	assert.True(t, keymap.Equal(doc, got))

	doc, err = SetKeyMapping(doc, keymap.KeyWheelDown, keymap.Pt(0.5, 0.5))
	require.NoError(t, err)
	_, err = RetypeKeyMapping(doc, keymap.KeyWheelDown, keymap.Press)
	assert.ErrorIs(t, err, editor.ErrGestureNotAllowed)
}

func TestRetypeRoundTripRestoresPos(t *testing.T) {
	doc := defaultDoc(t)
	want := entryOf(t, doc, "KEY_F")

	for _, via := range []keymap.Gesture{keymap.Click, keymap.AutoFire} {
		mid, err := RetypeKeyMapping(doc, "KEY_F", via)
		require.NoError(t, err)
		back, err := RetypeKeyMapping(mid, "KEY_F", keymap.Press)
		require.NoError(t, err)
		assert.Equal(t, want, entryOf(t, back, "KEY_F"))
	}
}

func TestDeleteKeyMappingIsIdempotent(t *testing.T) {
	doc := defaultDoc(t)

	got := DeleteKeyMapping(doc, "KEY_NOPE")
	assert.True(t, keymap.Equal(doc, got))

	got = DeleteKeyMapping(doc, "KEY_M")
	_, ok := got.KeyMaps.Get("KEY_M")
	assert.False(t, ok)
	assert.Equal(t, doc.KeyMaps.Len()-1, got.KeyMaps.Len())

	again := DeleteKeyMapping(got, "KEY_M")
	assert.True(t, keymap.Equal(got, again))
}

func TestSwitchKeys(t *testing.T) {
	doc := defaultDoc(t)

	once, err := AddSwitchKey(doc, "KEY_TAB")
	require.NoError(t, err)
	twice, err := AddSwitchKey(once, "KEY_TAB")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateSwitchKey))
	assert.Equal(t, once.Mouse.SwitchKeys, twice.Mouse.SwitchKeys)
	assert.Equal(t, []keymap.KeyID{"KEY_GRAVE", "KEY_TAB"}, twice.Mouse.SwitchKeys)

	removed, err := RemoveSwitchKey(twice, 0)
	require.NoError(t, err)
	assert.Equal(t, []keymap.KeyID{"KEY_TAB"}, removed.Mouse.SwitchKeys)
	assert.Equal(t, []keymap.KeyID{"KEY_GRAVE", "KEY_TAB"}, twice.Mouse.SwitchKeys)

	_, err = RemoveSwitchKey(removed, 1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestWheelClamp(t *testing.T) {
	doc := defaultDoc(t)
	doc.Wheel.Range, doc.Wheel.ShiftRange = 0.1, 0.2

	got, err := SetWheelGeometry(doc, 0.3, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.3, got.Wheel.Range)
	assert.Equal(t, 0.3, got.Wheel.ShiftRange, "shift range raised to range")

	doc.Wheel.ShiftRange = 0.4
	got, err = SetWheelGeometry(doc, 0.1, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.4, got.Wheel.ShiftRange, "shift range left alone")

	shift := 0.05
	got, err = SetWheelGeometry(doc, 0.1, &shift)
	require.NoError(t, err)
	assert.Equal(t, 0.1, got.Wheel.ShiftRange, "explicit shift below range is clamped")

	got, err = SetShiftRange(doc, 0.02)
	require.NoError(t, err)
	assert.Equal(t, 0.1, got.Wheel.ShiftRange)

	for _, bad := range []float64{-0.01, 0.51} {
		_, err = SetWheelGeometry(doc, bad, nil)
		assert.ErrorIs(t, err, ErrValueOutOfRange)
	}
}

func TestAnchorsAndImage(t *testing.T) {
	doc := defaultDoc(t)

	got, err := SetAnchor(doc, keymap.WheelCenter, keymap.Pt(0.2, 0.8))
	require.NoError(t, err)
	assert.Equal(t, keymap.Pt(0.2, 0.8), got.Wheel.Pos)
	assert.Equal(t, doc.Mouse.Pos, got.Mouse.Pos)

	_, err = SetAnchor(doc, keymap.MouseCenter, keymap.Pt(0.2, 1.01))
	assert.ErrorIs(t, err, ErrOutOfBounds)

	got, err = SetImage(doc, "data:image/png;base64,AA==", keymap.Size{W: 1920, H: 1080})
	require.NoError(t, err)
	assert.Equal(t, keymap.Size{W: 1920, H: 1080}, got.Screen.Size)
	assert.Equal(t, entryOf(t, doc, "KEY_F"), entryOf(t, got, "KEY_F"), "points are fractions and stay put")

	_, err = SetImage(doc, "x", keymap.Size{W: 0, H: 1080})
	assert.ErrorIs(t, err, geometry.ErrDegenerateGeometry)
}

func TestPanelSettings(t *testing.T) {
	doc := defaultDoc(t)

	got, err := SetMouseSpeed(doc, 0.5, 0.7)
	require.NoError(t, err)
	assert.Equal(t, [2]float64{0.5, 0.7}, got.Mouse.Speed)
	_, err = SetMouseSpeed(doc, -1, 0)
	assert.ErrorIs(t, err, ErrValueOutOfRange)

	got, err = SetWASD(doc, [4]keymap.KeyID{"KEY_UP", "KEY_LEFT", "KEY_DOWN", "KEY_RIGHT"})
	require.NoError(t, err)
	assert.Equal(t, keymap.KeyID("KEY_LEFT"), got.Wheel.WASD[1])
	_, err = SetWASD(doc, [4]keymap.KeyID{"KEY_UP"})
	assert.ErrorIs(t, err, ErrInvalidKey)

	got = SetShiftRangeEnabled(doc, false)
	assert.False(t, got.Wheel.ShiftRangeEnable)
	got = SetShiftRangeSwitchEnabled(got, false)
	assert.False(t, got.Wheel.ShiftRangeSwitchEnable)
	assert.True(t, doc.Wheel.ShiftRangeEnable)
}

func TestKeyPointEdits(t *testing.T) {
	doc := defaultDoc(t)
	doc, err := RetypeKeyMapping(doc, "KEY_R", keymap.Drag)
	require.NoError(t, err)

	a, b := keymap.Pt(0.1, 0.2), keymap.Pt(0.3, 0.4)
	doc, err = AppendKeyPoint(doc, "KEY_R", a)
	require.NoError(t, err)
	doc, err = AppendKeyPoint(doc, "KEY_R", b)
	require.NoError(t, err)
	_, err = AppendKeyPoint(doc, "KEY_R", keymap.Pt(2, 2))
	assert.ErrorIs(t, err, ErrOutOfBounds)

	doc, err = RemoveKeyPoint(doc, "KEY_R", 0)
	require.NoError(t, err)
	assert.Equal(t, []keymap.Point{b}, entryOf(t, doc, "KEY_R").Points())

	_, err = RemoveKeyPoint(doc, "KEY_R", 5)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = AppendKeyPoint(doc, "KEY_F", a)
	assert.ErrorIs(t, err, editor.ErrNotMultiPoint)
	_, err = SetInterval(doc, "KEY_F", []int{1})
	assert.ErrorIs(t, err, editor.ErrBadInterval)
}

func TestStoreApply(t *testing.T) {
	s := New(defaultDoc(t))

	var seen []keymap.Document
	s.RegisterChangeCallback(func(doc keymap.Document) { seen = append(seen, doc) })

	doc, err := s.Apply(func(d keymap.Document) (keymap.Document, error) {
		return SetKeyMapping(d, "KEY_X", keymap.Pt(0.5, 0.5))
	})
	require.NoError(t, err)
	_, ok := doc.KeyMaps.Get("KEY_X")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), s.Version())
	require.Len(t, seen, 1)

	cur, err := s.Apply(func(d keymap.Document) (keymap.Document, error) {
		return AddSwitchKey(d, "KEY_GRAVE")
	})
	assert.ErrorIs(t, err, ErrDuplicateSwitchKey)
	assert.Equal(t, uint64(1), s.Version(), "failed op commits nothing")
	assert.Len(t, seen, 1)
	assert.True(t, keymap.Equal(doc, cur), spew.Sdump(cur.Mouse))
}

func TestStoreRejectsInvalidResult(t *testing.T) {
	s := New(defaultDoc(t))

	_, err := s.Apply(func(d keymap.Document) (keymap.Document, error) {
		d.Wheel.ShiftRange = d.Wheel.Range / 2
		return d, nil
	})
	assert.ErrorIs(t, err, keymap.ErrInvalidDocument)
	assert.Zero(t, s.Version())

	bad := defaultDoc(t)
	bad.Screen.Size = keymap.Size{}
	assert.ErrorIs(t, s.Set(bad), keymap.ErrInvalidDocument)
}

func TestStoreGetIsASnapshot(t *testing.T) {
	s := New(defaultDoc(t))

	got := s.Get()
	got.KeyMaps.Delete("BTN_LEFT")
	got.Mouse.SwitchKeys[0] = "KEY_TAB"

	cur := s.Get()
	_, ok := cur.KeyMaps.Get("BTN_LEFT")
	assert.True(t, ok)
	assert.Equal(t, keymap.KeyID("KEY_GRAVE"), cur.Mouse.SwitchKeys[0])
}

func TestStoreConcurrentApply(t *testing.T) {
	s := New(defaultDoc(t))
	keys := []keymap.KeyID{"KEY_A1", "KEY_A2", "KEY_A3", "KEY_A4", "KEY_A5", "KEY_A6", "KEY_A7", "KEY_A8"}

	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(1)
		go func(k keymap.KeyID) {
			defer wg.Done()
			_, err := s.Apply(func(d keymap.Document) (keymap.Document, error) {
				return SetKeyMapping(d, k, keymap.Pt(0.5, 0.5))
			})
			assert.NoError(t, err)
		}(k)
	}
	wg.Wait()

	doc := s.Get()
	for _, k := range keys {
		_, ok := doc.KeyMaps.Get(k)
		assert.True(t, ok, "%s lost", k)
	}
	assert.Equal(t, uint64(len(keys)), s.Version())
}
