package keymap

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// KeyMaps is the KEY_MAPS object: entries keyed by KeyID in insertion order.
// The zero value is an empty map ready to use.
type KeyMaps struct {
	order   []KeyID
	entries map[KeyID]Entry
}

// Len returns the number of mapped keys
func (m KeyMaps) Len() int {
	return len(m.order)
}

// Keys returns the mapped keys in insertion order
func (m KeyMaps) Keys() []KeyID {
	out := make([]KeyID, len(m.order))
	copy(out, m.order)
	return out
}

// Get returns the entry bound to key
func (m KeyMaps) Get(key KeyID) (Entry, bool) {
	e, ok := m.entries[key]
	return e, ok
}

// Set binds key to e. A new key is appended; an existing key keeps its position.
func (m *KeyMaps) Set(key KeyID, e Entry) {
	if m.entries == nil {
		m.entries = make(map[KeyID]Entry)
	}
	if _, ok := m.entries[key]; !ok {
		m.order = append(m.order, key)
	}
	m.entries[key] = e
}

// Delete removes key. Removing an absent key is a no-op.
func (m *KeyMaps) Delete(key KeyID) {
	if _, ok := m.entries[key]; !ok {
		return
	}
	delete(m.entries, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
}

// Clone returns a deep copy
func (m KeyMaps) Clone() KeyMaps {
	out := KeyMaps{
		order:   make([]KeyID, len(m.order)),
		entries: make(map[KeyID]Entry, len(m.entries)),
	}
	copy(out.order, m.order)
	for k, e := range m.entries {
		out.entries[k] = CloneEntry(e)
	}
	return out
}

// MarshalJSON writes the entries in insertion order
func (m KeyMaps) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range m.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(string(key))
		if err != nil {
			return nil, err
		}
		v, err := MarshalEntry(m.entries[key])
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the entries keeping the object order of the input
func (m *KeyMaps) UnmarshalJSON(data []byte) error {
	*m = KeyMaps{}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: KEY_MAPS must be an object", ErrInvalidDocument)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: KEY_MAPS key is not a string", ErrInvalidDocument)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		e, err := UnmarshalEntry(raw)
		if err != nil {
			return fmt.Errorf("key %s: %w", key, err)
		}
		m.Set(KeyID(key), e)
	}

	_, err = dec.Token()
	return err
}
