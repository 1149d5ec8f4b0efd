// Package protocol defines the WebSocket messages pushed by the backend and the editor.
package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// TypeSyncRequest is sent by a client to ask for the current state
	TypeSyncRequest MessageType = "sync_req"

	// TypeDocument carries a full mapping document
	TypeDocument MessageType = "document"

	// TypeSnapshot carries the editor state: document, capture mode and status
	TypeSnapshot MessageType = "snapshot"

	// TypeStatus carries a transient status line
	TypeStatus MessageType = "status"

	// TypePing can be used for application-level heartbeats if needed
	TypePing MessageType = "ping"
)

// Message is the generic container for all WebSocket messages
type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// DocumentPayload is the payload for TypeDocument
type DocumentPayload struct {
	// Origin names what changed the document ("set", "file")
	Origin   string          `json:"origin"`
	Document json.RawMessage `json:"document"`
}

// SnapshotPayload is the payload for TypeSnapshot
type SnapshotPayload struct {
	Version  uint64          `json:"version"`
	Document json.RawMessage `json:"document"`
	Capture  interface{}     `json:"capture"`
	Status   string          `json:"status"`
}

// StatusPayload is the payload for TypeStatus
type StatusPayload struct {
	Text string `json:"text"`
}

// DecodePayload converts the generic payload of a received message into v
func DecodePayload(msg Message, v interface{}) error {
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", msg.Type, err)
	}
	return nil
}
