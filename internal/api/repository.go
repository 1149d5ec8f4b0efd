package api

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"touchmap/internal/embedded"
	"touchmap/internal/keymap"
)

// Repository stores the mapping document in a single JSON file
type Repository struct {
	mu          sync.Mutex
	path        string
	lastWritten []byte
}

// NewRepository opens the mapping file at path, writing the embedded default when it does not exist
func NewRepository(path string) (*Repository, error) {
	if _, err := embedded.WriteDefault(path); err != nil {
		return nil, fmt.Errorf("failed to seed %s: %w", path, err)
	}
	return &Repository{path: path}, nil
}

// Path returns the mapping file
func (r *Repository) Path() string {
	return r.path
}

// Load reads and validates the stored document
func (r *Repository) Load() (keymap.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, _, err := r.read()
	return doc, err
}

func (r *Repository) read() (keymap.Document, []byte, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return keymap.Document{}, nil, err
	}
	doc, err := keymap.Decode(data)
	if err != nil {
		return keymap.Document{}, data, fmt.Errorf("%s: %w", r.path, err)
	}
	return doc, data, nil
}

// Save validates doc and replaces the file contents. The write goes through a
// temporary file so a reader never sees a truncated document.
func (r *Repository) Save(doc keymap.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	data, err := keymap.Encode(doc)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".mapping-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return err
	}

	r.lastWritten = data
	log.Printf("API: Saved mapping to %s (%d bytes, %d keys)", r.path, len(data), doc.KeyMaps.Len())
	return nil
}

// changedOnDisk reloads the file and reports whether it differs from the last Save
func (r *Repository) changedOnDisk() (keymap.Document, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, data, err := r.read()
	if err != nil {
		return keymap.Document{}, false, err
	}
	if bytes.Equal(data, r.lastWritten) {
		return doc, false, nil
	}
	r.lastWritten = data
	return doc, true, nil
}
