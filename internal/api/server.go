// Package api provides the mapping backend: the HTTP endpoints the editor
// exports to and the touch runtime loads from, backed by a mapping file.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"

	"touchmap/internal/config"
	"touchmap/internal/embedded"
	"touchmap/internal/keymap"
	"touchmap/internal/protocol"
)

// maxDocumentBytes bounds an uploaded document; screenshots make them large
const maxDocumentBytes = 32 << 20

// Server provides the mapping backend
type Server struct {
	repo   *Repository
	cfg    config.BackendConfig
	hub    *Hub
	server *http.Server
}

// NewServer creates a new backend server
func NewServer(repo *Repository, cfg config.BackendConfig) *Server {
	s := &Server{
		repo: repo,
		cfg:  cfg,
	}
	s.hub = NewHub("backend", s.syncMessage)
	s.server = &http.Server{Handler: s.Handler()}
	return s
}

// Handler returns the routes wrapped in the auth and recover middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/configure/get", s.handleGet)
	mux.HandleFunc("/configure/set", s.handleSet)
	mux.HandleFunc("/screen.png", s.handleScreen)
	mux.HandleFunc("/ws", s.hub.HandleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return s.authMiddleware(s.recoverMiddleware(mux))
}

// Hub returns the push hub of the backend
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start listens on the configured address and serves until Shutdown. It blocks.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		log.Printf("ERROR: API server failed to listen on %s: %v", s.cfg.Listen, err)
		return err
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener until Shutdown. After Shutdown it
// returns nil at once.
func (s *Server) Serve(ln net.Listener) error {
	go s.hub.Run()

	log.Printf("Starting API server on %s (mapping file %s)", ln.Addr(), s.repo.Path())

	if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		log.Printf("ERROR: API server stopped: %v", err)
		return err
	}
	return nil
}

// Shutdown stops the server and disconnects push clients
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	return s.server.Shutdown(ctx)
}

// Watch re-broadcasts the mapping file whenever another program edits it, until ctx is done
func (s *Server) Watch(ctx context.Context) error {
	w := NewWatcher(s.repo, func(doc keymap.Document) {
		s.notify(doc, "file")
	})
	return w.Run(ctx)
}

// recoverMiddleware prevents panics from crashing the whole server
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("PANIC RECOV: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware checks API token if configured
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("API: %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)

		// Skip auth for health check
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		if s.cfg.APIToken != "" {
			authHeader := r.Header.Get("Authorization")
			expectedAuth := "Bearer " + s.cfg.APIToken

			if authHeader != expectedAuth {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// handleGet handles GET /configure/get
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	doc, err := s.repo.Load()
	if err != nil {
		log.Printf("API: Load error: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

// handleSet handles POST /configure/set. The reply is a short status text shown by the editor.
func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentBytes))
	if err != nil {
		http.Error(w, "Failed to read document", http.StatusBadRequest)
		return
	}
	doc, err := keymap.Decode(data)
	if err != nil {
		log.Printf("API: Rejected document from %s: %v", r.RemoteAddr, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.repo.Save(doc); err != nil {
		log.Printf("API: Failed to save received document: %v", err)
		http.Error(w, "Failed to save document", http.StatusInternalServerError)
		return
	}
	s.notify(doc, "set")

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Saved %d key mappings", doc.KeyMaps.Len())
}

// handleScreen handles GET /screen.png
func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data := embedded.Screenshot()
	if s.cfg.ScreenshotFile != "" {
		shot, err := os.ReadFile(s.cfg.ScreenshotFile)
		if err != nil {
			log.Printf("API: Screenshot error: %v", err)
			http.Error(w, "Screenshot unavailable", http.StatusServiceUnavailable)
			return
		}
		data = shot
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// healthResponse is the body of GET /health
type healthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

// handleHealth handles GET /health (for monitoring). Clients counts the
// connected push listeners.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthResponse{Status: "ok", Clients: s.hub.Clients()})
}

func (s *Server) notify(doc keymap.Document, origin string) {
	msg, err := documentMessage(doc, origin)
	if err != nil {
		log.Printf("API: Failed to encode push: %v", err)
		return
	}
	s.hub.Broadcast(msg)
}

// syncMessage is the state sent to every new push client
func (s *Server) syncMessage() (protocol.Message, bool) {
	doc, err := s.repo.Load()
	if err != nil {
		return protocol.Message{}, false
	}
	msg, err := documentMessage(doc, "sync")
	return msg, err == nil
}

func documentMessage(doc keymap.Document, origin string) (protocol.Message, error) {
	data, err := keymap.Encode(doc)
	if err != nil {
		return protocol.Message{}, err
	}
	return protocol.Message{
		Type: protocol.TypeDocument,
		Payload: protocol.DocumentPayload{
			Origin:   origin,
			Document: data,
		},
	}, nil
}
