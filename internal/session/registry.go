package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"gensite/internal/protocol"
)

// Conn is one live client connection.
type Conn interface {
	ID() string
	// Send queues data for delivery; an error means the connection is gone.
	Send(data []byte) error
}

// Registry tracks live connections keyed by session id. A session may have
// any number of connections; its entry disappears with the last one.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string][]Conn
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string][]Conn),
		logger:   logger,
	}
}

// Connect registers c under sessionID. Registering the same connection
// twice has no effect.
func (r *Registry) Connect(c Conn, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.sessions[sessionID] {
		if existing.ID() == c.ID() {
			return
		}
	}
	r.sessions[sessionID] = append(r.sessions[sessionID], c)
	r.logger.Debug("connection registered", "session", sessionID, "conn", c.ID(), "total", len(r.sessions[sessionID]))
}

// Disconnect removes c from sessionID, deleting the session entry when it
// was the last connection.
func (r *Registry) Disconnect(c Conn, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	kept := conns[:0]
	for _, existing := range conns {
		if existing.ID() != c.ID() {
			kept = append(kept, existing)
		}
	}
	if len(kept) == 0 {
		delete(r.sessions, sessionID)
	} else {
		r.sessions[sessionID] = kept
	}
	r.logger.Debug("connection removed", "session", sessionID, "conn", c.ID(), "remaining", len(kept))
}

// Broadcast delivers event to every connection of sessionID and returns the
// number of successful deliveries. Connections that fail are removed and do
// not stop delivery to the others. Unknown sessions are a no-op.
func (r *Registry) Broadcast(sessionID string, event *protocol.Event) int {
	r.mu.RLock()
	conns := make([]Conn, len(r.sessions[sessionID]))
	copy(conns, r.sessions[sessionID])
	r.mu.RUnlock()

	if len(conns) == 0 {
		return 0
	}

	data, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("failed to marshal event", "session", sessionID, "type", event.Type, "err", err)
		return 0
	}

	delivered := 0
	for _, c := range conns {
		if err := c.Send(data); err != nil {
			r.logger.Warn("send failed, dropping connection", "session", sessionID, "conn", c.ID(), "err", err)
			r.Disconnect(c, sessionID)
			continue
		}
		delivered++
	}
	return delivered
}

// Send delivers event to a single connection.
func (r *Registry) Send(c Conn, event *protocol.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return c.Send(data)
}

// Count returns the number of connections of sessionID.
func (r *Registry) Count(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[sessionID])
}

// Sessions returns the ids of all sessions with at least one connection.
func (r *Registry) Sessions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
