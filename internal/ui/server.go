// Package ui provides the local editor: a browser page that captures keys and
// clicks over the device screenshot, and the JSON endpoints behind it.
package ui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"

	"touchmap/internal/api"
	"touchmap/internal/config"
	"touchmap/internal/editor"
	"touchmap/internal/geometry"
	"touchmap/internal/keymap"
	"touchmap/internal/protocol"
	"touchmap/internal/remote"
	"touchmap/internal/session"
	"touchmap/internal/store"
)

// maxImageBytes bounds an uploaded screenshot
const maxImageBytes = 16 << 20

// Server provides the web-based mapping editor
type Server struct {
	session *session.Session
	store   *store.Store
	cfg     config.EditorConfig
	hub     *api.Hub

	server *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new editor server. Every committed change of st is
// pushed to the connected pages.
func NewServer(sess *session.Session, st *store.Store, cfg config.EditorConfig) *Server {
	s := &Server{
		session: sess,
		store:   st,
		cfg:     cfg,
	}
	s.hub = api.NewHub("editor", s.snapshotMessage)
	s.server = &http.Server{Handler: s.Handler()}
	st.RegisterChangeCallback(func(keymap.Document) { s.push() })
	return s
}

// Handler returns the editor routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.hub.HandleWebSocket)

	mux.HandleFunc("/api/document", s.handleDocument)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/overlay", s.handleOverlay)

	mux.HandleFunc("/api/keydown", s.handleKeyDown)
	mux.HandleFunc("/api/keyup", s.handleKeyUp)
	mux.HandleFunc("/api/select", s.handleSelect)
	mux.HandleFunc("/api/click", s.handleClick)
	mux.HandleFunc("/api/arm", s.handleArm)
	mux.HandleFunc("/api/cancel", s.handleCancel)

	mux.HandleFunc("/api/retype", s.handleRetype)
	mux.HandleFunc("/api/delete", s.handleDelete)
	mux.HandleFunc("/api/switch-key/remove", s.handleRemoveSwitchKey)
	mux.HandleFunc("/api/wheel", s.handleWheel)
	mux.HandleFunc("/api/shift", s.handleShift)
	mux.HandleFunc("/api/toggles", s.handleToggles)
	mux.HandleFunc("/api/speed", s.handleSpeed)
	mux.HandleFunc("/api/wasd", s.handleWASD)
	mux.HandleFunc("/api/interval", s.handleInterval)
	mux.HandleFunc("/api/point/remove", s.handleRemovePoint)

	mux.HandleFunc("/api/image", s.handleImage)
	mux.HandleFunc("/api/screenshot", s.handleScreenshot)
	mux.HandleFunc("/api/export", s.handleExport)
	mux.HandleFunc("/api/discover", s.handleDiscover)
	return mux
}

// Hub returns the push hub of the editor
func (s *Server) Hub() *api.Hub {
	return s.hub
}

// URL returns the address the editor is served on, once started
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return "http://" + s.cfg.Listen
	}
	return "http://" + s.listener.Addr().String()
}

// Start starts the editor server and opens the browser. It blocks until Stop.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go s.hub.Run()

	url := s.URL()
	log.Printf("Starting editor at %s", url)
	if s.cfg.OpenBrowser {
		go OpenBrowser(url)
	}

	if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop stops the editor server
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Stop()
	return s.server.Shutdown(ctx)
}

// OpenBrowser opens url with the default browser of the platform
func OpenBrowser(url string) {
	var err error
	switch runtime.GOOS {
	case "darwin":
		err = exec.Command("open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		err = exec.Command("xdg-open", url).Start()
	}
	if err != nil {
		log.Printf("Failed to open browser: %v", err)
	}
}

// Export starts an export of the current document, for callers outside HTTP such as the tray
func (s *Server) Export() uint64 {
	return s.session.Export()
}

// push sends the current state to every connected page
func (s *Server) push() {
	if msg, ok := s.snapshotMessage(); ok {
		s.hub.Broadcast(msg)
	}
}

func (s *Server) snapshot() (protocol.SnapshotPayload, error) {
	doc := s.session.Document()
	data, err := keymap.Encode(doc)
	if err != nil {
		return protocol.SnapshotPayload{}, err
	}
	return protocol.SnapshotPayload{
		Version:  s.store.Version(),
		Document: data,
		Capture:  s.session.Capture(),
		Status:   s.session.Status(),
	}, nil
}

func (s *Server) snapshotMessage() (protocol.Message, bool) {
	payload, err := s.snapshot()
	if err != nil {
		log.Printf("UI: Failed to encode snapshot: %v", err)
		return protocol.Message{}, false
	}
	return protocol.Message{Type: protocol.TypeSnapshot, Payload: payload}, true
}

// statusCode maps an editing error to the HTTP status reported to the page
func statusCode(err error) int {
	switch {
	case errors.Is(err, store.ErrDuplicateSwitchKey):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotMapped):
		return http.StatusNotFound
	case errors.Is(err, store.ErrOutOfBounds),
		errors.Is(err, store.ErrInvalidKey),
		errors.Is(err, store.ErrValueOutOfRange),
		errors.Is(err, store.ErrIndexOutOfRange),
		errors.Is(err, geometry.ErrDegenerateGeometry),
		errors.Is(err, editor.ErrGestureNotAllowed),
		errors.Is(err, editor.ErrNotMultiPoint),
		errors.Is(err, editor.ErrBadInterval),
		errors.Is(err, keymap.ErrUnknownGesture),
		errors.Is(err, keymap.ErrInvalidDocument),
		errors.Is(err, keymap.ErrInvalidEntry),
		errors.Is(err, session.ErrBadImage):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		log.Printf("UI: %v", err)
	}
	http.Error(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// decodePost checks the method and decodes the JSON body into v
func decodePost(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if v == nil {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// writeResult answers a document edit with the committed document or the error
func writeResult(w http.ResponseWriter, doc keymap.Document, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, doc)
}

type keyRequest struct {
	Key keymap.KeyID `json:"key"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	tmpl.Execute(w, pageData{Remote: s.cfg.RemoteURL, Gestures: keymap.Gestures})
}

// handleDocument returns the current document on GET and replaces it on POST
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		writeJSON(w, s.session.Document())
	case "POST":
		data, err := io.ReadAll(io.LimitReader(r.Body, 2*maxImageBytes))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		doc, err := keymap.Decode(data)
		if err == nil {
			err = s.session.Replace(doc)
		}
		writeResult(w, s.session.Document(), err)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	payload, err := s.snapshot()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, payload)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, protocol.StatusPayload{Text: s.session.Status()})
}

// handleOverlay returns marker pixels for the image rendered at ?w=&h=
func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	width, errW := strconv.Atoi(r.URL.Query().Get("w"))
	height, errH := strconv.Atoi(r.URL.Query().Get("h"))
	if errW != nil || errH != nil {
		http.Error(w, "Invalid size", http.StatusBadRequest)
		return
	}
	ov, err := s.session.Overlay(keymap.Size{W: width, H: height})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, ov)
}

func (s *Server) handleKeyDown(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if !decodePost(w, r, &req) {
		return
	}
	if err := s.session.KeyDown(req.Key); err != nil {
		writeError(w, err)
		return
	}
	s.push()
	writeJSON(w, s.session.Capture())
}

func (s *Server) handleKeyUp(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if !decodePost(w, r, &req) {
		return
	}
	s.session.KeyUp(req.Key)
	s.push()
	writeJSON(w, s.session.Capture())
}

// handleSelect selects a key for assignment; an empty key clears the selection
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.Key == "" {
		s.session.ClearSelection()
	} else if err := s.session.Select(req.Key); err != nil {
		writeError(w, err)
		return
	}
	s.push()
	writeJSON(w, s.session.Capture())
}

type clickRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	// W and H are the displayed size of the image
	W int `json:"w"`
	H int `json:"h"`
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req clickRequest
	if !decodePost(w, r, &req) {
		return
	}
	outcome, err := s.session.Click(req.X, req.Y, keymap.Size{W: req.W, H: req.H})
	if err != nil {
		writeError(w, err)
		return
	}
	if outcome != session.Ignored {
		s.push()
	}
	writeJSON(w, map[string]interface{}{
		"outcome": outcome,
		"capture": s.session.Capture(),
	})
}

type armRequest struct {
	// Target is "mouse_center", "wheel_center", "switch_key" or "point"
	Target string       `json:"target"`
	Key    keymap.KeyID `json:"key,omitempty"`
}

func (s *Server) handleArm(w http.ResponseWriter, r *http.Request) {
	var req armRequest
	if !decodePost(w, r, &req) {
		return
	}

	var err error
	switch req.Target {
	case "switch_key":
		s.session.ArmSwitchKey()
	case "point":
		err = s.session.ArmPoint(req.Key)
	default:
		var which keymap.Anchor
		which, err = keymap.ParseAnchor(req.Target)
		if err == nil {
			err = s.session.ArmAnchor(which)
		} else {
			err = fmt.Errorf("%w: unknown capture target %q", store.ErrInvalidKey, req.Target)
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s.push()
	writeJSON(w, s.session.Capture())
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if !decodePost(w, r, nil) {
		return
	}
	s.session.Cancel()
	s.push()
	writeJSON(w, s.session.Capture())
}

type retypeRequest struct {
	Key  keymap.KeyID `json:"key"`
	Type string       `json:"type"`
}

func (s *Server) handleRetype(w http.ResponseWriter, r *http.Request) {
	var req retypeRequest
	if !decodePost(w, r, &req) {
		return
	}
	g, err := keymap.ParseGesture(req.Type)
	if err != nil {
		writeError(w, err)
		return
	}
	doc, err := s.session.Retype(req.Key, g)
	writeResult(w, doc, err)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if !decodePost(w, r, &req) {
		return
	}
	doc, err := s.session.Delete(req.Key)
	writeResult(w, doc, err)
}

type indexRequest struct {
	Key   keymap.KeyID `json:"key,omitempty"`
	Index int          `json:"index"`
}

func (s *Server) handleRemoveSwitchKey(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if !decodePost(w, r, &req) {
		return
	}
	doc, err := s.session.RemoveSwitchKey(req.Index)
	writeResult(w, doc, err)
}

type wheelRequest struct {
	Range float64  `json:"range"`
	Shift *float64 `json:"shift,omitempty"`
}

func (s *Server) handleWheel(w http.ResponseWriter, r *http.Request) {
	var req wheelRequest
	if !decodePost(w, r, &req) {
		return
	}
	doc, err := s.session.SetWheelGeometry(req.Range, req.Shift)
	writeResult(w, doc, err)
}

func (s *Server) handleShift(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Shift float64 `json:"shift"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	doc, err := s.session.SetShiftRange(req.Shift)
	writeResult(w, doc, err)
}

type togglesRequest struct {
	ShiftRangeEnable       *bool `json:"shift_range_enable,omitempty"`
	ShiftRangeSwitchEnable *bool `json:"shift_range_switch_enable,omitempty"`
}

func (s *Server) handleToggles(w http.ResponseWriter, r *http.Request) {
	var req togglesRequest
	if !decodePost(w, r, &req) {
		return
	}

	doc := s.session.Document()
	var err error
	if req.ShiftRangeEnable != nil {
		doc, err = s.session.SetShiftRangeEnabled(*req.ShiftRangeEnable)
	}
	if err == nil && req.ShiftRangeSwitchEnable != nil {
		doc, err = s.session.SetShiftRangeSwitchEnabled(*req.ShiftRangeSwitchEnable)
	}
	writeResult(w, doc, err)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	doc, err := s.session.SetMouseSpeed(req.X, req.Y)
	writeResult(w, doc, err)
}

func (s *Server) handleWASD(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keys [4]keymap.KeyID `json:"keys"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	doc, err := s.session.SetWASD(req.Keys)
	writeResult(w, doc, err)
}

func (s *Server) handleInterval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key    keymap.KeyID `json:"key"`
		Values []int        `json:"values"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	doc, err := s.session.SetInterval(req.Key, req.Values)
	writeResult(w, doc, err)
}

func (s *Server) handleRemovePoint(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if !decodePost(w, r, &req) {
		return
	}
	doc, err := s.session.RemovePoint(req.Key, req.Index)
	writeResult(w, doc, err)
}

// handleImage installs the raw request body (an encoded image) as the screenshot
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	if !decodePost(w, r, nil) {
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImageBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	doc, err := s.session.SetImage(data)
	writeResult(w, doc, err)
}

// handleScreenshot schedules a screenshot refresh from the device. With
// ?delay=true it waits the configured delay first so the user can switch to
// the game.
func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	if !decodePost(w, r, nil) {
		return
	}
	var delay time.Duration
	if r.URL.Query().Get("delay") == "true" {
		delay = time.Duration(s.cfg.ScreenshotDelayMillis) * time.Millisecond
	}

	log.Printf("UI: Screenshot refresh requested (delay %v)", delay)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), delay+30*time.Second)
		defer cancel()
		if _, err := s.session.RefreshScreenshot(ctx, delay); err != nil {
			log.Printf("UI: Screenshot refresh failed: %v", err)
		}
	}()

	writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if !decodePost(w, r, nil) {
		return
	}
	seq := s.session.Export()
	log.Printf("UI: Export %d started", seq)
	writeJSONStatus(w, http.StatusAccepted, map[string]uint64{"seq": seq})
}

// handleDiscover scans the local network for backends on the port of the configured remote
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	port := remote.Port(s.cfg.RemoteURL)
	log.Printf("UI: Scanning for backends on port %d", port)
	found, err := remote.ScanLAN(r.Context(), port, s.cfg.APIToken)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if found == nil {
		found = []remote.Backend{}
	}
	writeJSON(w, found)
}
