// Package store holds the mapping document being edited and the pure
// operations that transform it.
package store

import (
	"fmt"
	"sync"

	"touchmap/internal/keymap"
)

// Op transforms a document. It must not modify its argument.
type Op func(keymap.Document) (keymap.Document, error)

// Store holds exactly one current document. Every commit swaps the whole
// snapshot, so readers never observe a half-applied edit.
type Store struct {
	mu        sync.RWMutex
	doc       keymap.Document
	version   uint64
	callbacks []func(keymap.Document)
}

// New creates a store holding doc
func New(doc keymap.Document) *Store {
	return &Store{doc: doc.Clone()}
}

// Get returns a copy of the current document
func (s *Store) Get() keymap.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone()
}

// Version increases by one on every commit
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Set replaces the current document after validating it
func (s *Store) Set(doc keymap.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	s.commit(doc.Clone())
	return nil
}

// Apply runs op against the current document and commits the result.
// On error nothing is committed and the current document is returned with it.
func (s *Store) Apply(op Op) (keymap.Document, error) {
	s.mu.Lock()
	cur := s.doc
	next, err := op(cur.Clone())
	if err == nil {
		err = next.Validate()
	}
	if err != nil {
		s.mu.Unlock()
		return cur.Clone(), err
	}
	s.doc = next
	s.version++
	callbacks := s.callbacks
	s.mu.Unlock()

	notify(callbacks, next)
	return next.Clone(), nil
}

// RegisterChangeCallback registers a function called with every committed document
func (s *Store) RegisterChangeCallback(fn func(keymap.Document)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, fn)
}

func (s *Store) commit(doc keymap.Document) {
	s.mu.Lock()
	s.doc = doc
	s.version++
	callbacks := s.callbacks
	s.mu.Unlock()

	notify(callbacks, doc)
}

func notify(callbacks []func(keymap.Document), doc keymap.Document) {
	for _, fn := range callbacks {
		fn(doc.Clone())
	}
}

// String describes the store for logs
func (s *Store) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("store v%d (%d keys)", s.version, s.doc.KeyMaps.Len())
}
