package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"touchmap/internal/config"
	"touchmap/internal/embedded"
	"touchmap/internal/keymap"
	"touchmap/internal/protocol"
)

func newBackend(t *testing.T, cfg config.BackendConfig) (*Server, *httptest.Server) {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "mapping.json"))
	require.NoError(t, err)

	s := NewServer(repo, cfg)
	go s.Hub().Run()
	t.Cleanup(s.Hub().Stop)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func encodeDefault(t *testing.T, edit func(*keymap.Document)) []byte {
	t.Helper()
	doc, err := embedded.Default()
	require.NoError(t, err)
	if edit != nil {
		edit(&doc)
	}
	data, err := keymap.Encode(doc)
	require.NoError(t, err)
	return data
}

func readDocumentMessage(t *testing.T, conn *websocket.Conn) (protocol.DocumentPayload, keymap.Document) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg protocol.Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, protocol.TypeDocument, msg.Type)

	var payload protocol.DocumentPayload
	require.NoError(t, protocol.DecodePayload(msg, &payload))
	doc, err := keymap.Decode(payload.Document)
	require.NoError(t, err)
	return payload, doc
}

func TestGetServesSeededDefault(t *testing.T) {
	_, ts := newBackend(t, config.BackendConfig{})

	resp, err := http.Get(ts.URL + "/configure/get")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	doc, err := keymap.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 13, doc.KeyMaps.Len())
}

func TestSetStoresDocument(t *testing.T) {
	s, ts := newBackend(t, config.BackendConfig{})

	body := encodeDefault(t, func(d *keymap.Document) {
		d.KeyMaps.Delete("KEY_TAB")
		d.KeyMaps.Set("KEY_X", keymap.DragEntry{Path: []keymap.Point{}, Dwell: 18})
	})
	resp, err := http.Post(ts.URL+"/configure/set", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	text, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Saved 13 key mappings", string(text))

	stored, err := s.repo.Load()
	require.NoError(t, err)
	e, ok := stored.KeyMaps.Get("KEY_X")
	require.True(t, ok)
	assert.Equal(t, keymap.Drag, e.Gesture())
	assert.Equal(t, keymap.KeyID("KEY_X"), stored.KeyMaps.Keys()[12])
}

func TestSetRejectsInvalidDocument(t *testing.T) {
	s, ts := newBackend(t, config.BackendConfig{})
	before, err := os.ReadFile(s.repo.Path())
	require.NoError(t, err)

	body := encodeDefault(t, func(d *keymap.Document) {
		d.Mouse.Pos = keymap.Pt(1.5, 0.5)
	})
	resp, err := http.Post(ts.URL+"/configure/set", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/configure/set", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	after, err := os.ReadFile(s.repo.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMethodChecks(t *testing.T) {
	_, ts := newBackend(t, config.BackendConfig{})

	resp, err := http.Get(ts.URL + "/configure/set")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/configure/get", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestScreenshot(t *testing.T) {
	_, ts := newBackend(t, config.BackendConfig{})

	resp, err := http.Get(ts.URL + "/screen.png")
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, embedded.Screenshot(), data)

	shot := filepath.Join(t.TempDir(), "shot.png")
	require.NoError(t, os.WriteFile(shot, []byte("png bytes"), 0644))
	_, ts = newBackend(t, config.BackendConfig{ScreenshotFile: shot})
	resp, err = http.Get(ts.URL + "/screen.png")
	require.NoError(t, err)
	data, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "png bytes", string(data))

	_, ts = newBackend(t, config.BackendConfig{ScreenshotFile: filepath.Join(t.TempDir(), "missing.png")})
	resp, err = http.Get(ts.URL + "/screen.png")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAuth(t *testing.T) {
	_, ts := newBackend(t, config.BackendConfig{APIToken: "secret"})

	resp, err := http.Get(ts.URL + "/configure/get")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest("GET", ts.URL+"/configure/get", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health.Status)
}

func TestRecoverMiddleware(t *testing.T) {
	s := &Server{}
	h := s.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPushOnSet(t *testing.T) {
	_, ts := newBackend(t, config.BackendConfig{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadLimit(maxDocumentBytes)

	payload, doc := readDocumentMessage(t, conn)
	assert.Equal(t, "sync", payload.Origin)
	assert.Equal(t, 13, doc.KeyMaps.Len())

	// The sync arrives after registration, so the listener is counted
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, 1, health.Clients)

	body := encodeDefault(t, func(d *keymap.Document) { d.KeyMaps.Delete("KEY_M") })
	resp, err = http.Post(ts.URL+"/configure/set", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()

	payload, doc = readDocumentMessage(t, conn)
	assert.Equal(t, "set", payload.Origin)
	assert.Equal(t, 12, doc.KeyMaps.Len())

	require.NoError(t, conn.WriteJSON(protocol.Message{Type: protocol.TypeSyncRequest}))
	payload, _ = readDocumentMessage(t, conn)
	assert.Equal(t, "sync", payload.Origin)
}

func TestWatcherReportsExternalEdits(t *testing.T) {
	repo, err := NewRepository(filepath.Join(t.TempDir(), "mapping.json"))
	require.NoError(t, err)

	changes := make(chan keymap.Document, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- NewWatcher(repo, func(d keymap.Document) { changes <- d }).Run(ctx) }()

	// Give the watcher time to subscribe
	time.Sleep(100 * time.Millisecond)

	// Our own save is not reported
	doc, err := repo.Load()
	require.NoError(t, err)
	require.NoError(t, repo.Save(doc))

	// An external edit is
	external := encodeDefault(t, func(d *keymap.Document) { d.KeyMaps.Delete("KEY_1") })
	require.NoError(t, os.WriteFile(repo.Path(), external, 0644))

	select {
	case got := <-changes:
		assert.Equal(t, 12, got.KeyMaps.Len())
	case <-time.After(5 * time.Second):
		t.Fatal("external edit not reported")
	}

	// An invalid edit is ignored
	require.NoError(t, os.WriteFile(repo.Path(), []byte("{"), 0644))
	select {
	case got := <-changes:
		t.Fatalf("invalid edit reported: %d keys", got.KeyMaps.Len())
	case <-time.After(500 * time.Millisecond):
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestRepositorySaveValidates(t *testing.T) {
	repo, err := NewRepository(filepath.Join(t.TempDir(), "mapping.json"))
	require.NoError(t, err)

	doc, err := repo.Load()
	require.NoError(t, err)
	doc.Screen.Size = keymap.Size{}
	assert.ErrorIs(t, repo.Save(doc), keymap.ErrInvalidDocument)
}

func TestServeAndShutdown(t *testing.T) {
	repo, err := NewRepository(filepath.Join(t.TempDir(), "mapping.json"))
	require.NoError(t, err)
	s := NewServer(repo, config.BackendConfig{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Shutdown(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

func TestShutdownBeforeServe(t *testing.T) {
	repo, err := NewRepository(filepath.Join(t.TempDir(), "mapping.json"))
	require.NoError(t, err)
	s := NewServer(repo, config.BackendConfig{})
	require.NoError(t, s.Shutdown(context.Background()))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.NoError(t, s.Serve(ln))
}
