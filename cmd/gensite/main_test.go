package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"gensite/internal/project"
	"gensite/internal/protocol"
)

func TestSessionURL(t *testing.T) {
	tests := []struct {
		server string
		want   string
		ok     bool
	}{
		{"ws://localhost:8000", "ws://localhost:8000/ws/brave-otter", true},
		{"http://localhost:8000/", "ws://localhost:8000/ws/brave-otter", true},
		{"https://gensite.example.com/base", "wss://gensite.example.com/base/ws/brave-otter", true},
		{"ftp://localhost", "", false},
	}

	for _, tt := range tests {
		got, err := sessionURL(tt.server, "brave-otter")
		if (err == nil) != tt.ok {
			t.Errorf("%s: unexpected error %v", tt.server, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.server, tt.want, got)
		}
	}
}

func mustEvent(t *testing.T, eventType string, data interface{}) []byte {
	t.Helper()
	e, err := protocol.NewEvent(eventType, data)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

// serveEvents starts a WebSocket server that writes frames after the first
// client message.
func serveEvents(t *testing.T, frames [][]byte) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		for _, f := range frames {
			conn.WriteMessage(websocket.TextMessage, f)
		}
		conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialAndConsume(t *testing.T, url string, store *project.Store, out io.Writer) error {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.WriteJSON(protocol.ClientMessage{Type: protocol.TypeGenerate, Prompt: "x"})
	return consume(conn, store, out)
}

func TestConsume_WritesStreamedFiles(t *testing.T) {
	files := protocol.NewFileSet(protocol.File{Name: "src/App.tsx", Content: "export {}", Language: "typescript"})
	url := serveEvents(t, [][]byte{
		mustEvent(t, protocol.TypeThinking, protocol.MessagePayload{Message: "Analyzing your request..."}),
		mustEvent(t, protocol.TypeStream, protocol.FilesPayload{Files: files}),
		mustEvent(t, protocol.TypeCompleted, protocol.CompletedPayload{Files: files, Message: "Files generated successfully"}),
	})

	store := project.NewStore(filepath.Join(t.TempDir(), "out"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	var out bytes.Buffer
	if err := dialAndConsume(t, url, store, &out); err != nil {
		t.Fatalf("consume: %v", err)
	}

	got, err := store.ReadFile("src/App.tsx")
	if err != nil || got != "export {}" {
		t.Errorf("streamed file not written: %q %v", got, err)
	}
	for _, want := range []string{"Analyzing your request...", "src/App.tsx", "Files generated successfully"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestConsume_ErrorEvent(t *testing.T) {
	url := serveEvents(t, [][]byte{
		mustEvent(t, protocol.TypeError, protocol.ErrorPayload{Message: "Error: boom", Files: protocol.ErrorEventFiles()}),
	})

	store := project.NewStore(filepath.Join(t.TempDir(), "out"), nil)
	var out bytes.Buffer
	err := dialAndConsume(t, url, store, &out)
	if !errors.Is(err, errGenerationFailed) {
		t.Fatalf("expected errGenerationFailed, got %v", err)
	}
	if !strings.Contains(out.String(), "Error: boom") {
		t.Errorf("error message not shown:\n%s", out.String())
	}
}

func TestRender_MalformedPayload(t *testing.T) {
	store := project.NewStore(filepath.Join(t.TempDir(), "out"), nil)
	for _, eventType := range []string{
		protocol.TypeThinking,
		protocol.TypeWriting,
		protocol.TypeAnalyzing,
		protocol.TypeCompleted,
		protocol.TypeError,
	} {
		event := protocol.Event{Type: eventType, Data: json.RawMessage(`"not an object"`)}
		var out bytes.Buffer
		_, err := render(event, store, &out)
		if err == nil || errors.Is(err, errGenerationFailed) {
			t.Errorf("%s: expected decode error, got %v", eventType, err)
		}
		if out.Len() != 0 {
			t.Errorf("%s: nothing should be rendered, got %q", eventType, out.String())
		}
	}
}
