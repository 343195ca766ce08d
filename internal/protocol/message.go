package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is the envelope for every server → client WebSocket message.
type Event struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent creates a server-originated event with the current timestamp.
func NewEvent(eventType string, data interface{}) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	return &Event{
		Type:      eventType,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Server → Client event types, in the order a generation emits them.
const (
	TypeThinking  = "thinking"
	TypeWriting   = "writing"
	TypeStream    = "stream"
	TypeAnalyzing = "analyzing"
	TypeCompleted = "completed"
	TypeError     = "error"
)

// Client → Server message types.
const (
	TypeGenerate = "generate"
)

// Server → Client payloads.

// MessagePayload carries the informational text of thinking, writing and
// analyzing events.
type MessagePayload struct {
	Message string `json:"message"`
}

// FilesPayload carries a single streamed file.
type FilesPayload struct {
	Files FileSet `json:"files"`
}

type CompletedPayload struct {
	Files   FileSet `json:"files"`
	Message string  `json:"message"`
}

type ErrorPayload struct {
	Message string  `json:"message"`
	Files   FileSet `json:"files"`
}

// ErrorEventFiles is the one-file set attached to every error event so the
// client editor always has something to show.
func ErrorEventFiles() FileSet {
	return NewFileSet(File{
		Name:     "App.tsx",
		Content:  "// Error generating code",
		Language: "typescript",
	})
}

// NewErrorEvent creates an error event ready to send to clients.
func NewErrorEvent(message string) (*Event, error) {
	return NewEvent(TypeError, ErrorPayload{
		Message: message,
		Files:   ErrorEventFiles(),
	})
}

// Client → Server payloads.

// ClientMessage is an inbound WebSocket message. Only generate messages are
// acted upon; Template is an optional project template name.
type ClientMessage struct {
	Type     string `json:"type"`
	Prompt   string `json:"prompt"`
	Template string `json:"template,omitempty"`
}

// FileNode represents a file or directory in the project tree.
type FileNode struct {
	Name     string     `json:"name"`
	Path     string     `json:"path"`
	IsDir    bool       `json:"isDir"`
	Children []FileNode `json:"children,omitempty"`
	Size     int64      `json:"size,omitempty"`
}
