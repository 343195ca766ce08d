// Package history keeps the recent events of each session so clients that
// reconnect can catch up.
package history

import (
	"context"
	"sync"
	"time"

	"gensite/internal/protocol"
)

const DefaultCapacity = 200

// Store records and returns recent session events.
type Store interface {
	Append(ctx context.Context, sessionID string, event *protocol.Event) error
	Recent(ctx context.Context, sessionID string) ([]protocol.Event, error)
	Close() error
}

// MemoryStore keeps one ring buffer per session in process memory. A
// session's buffer expires ttl after its last append, like the Redis key.
type MemoryStore struct {
	mu        sync.Mutex
	buffers   map[string]*memoryBuffer
	capacity  int
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

type memoryBuffer struct {
	events  *RingBuffer
	touched time.Time
}

// NewMemoryStore creates a store keeping at most capacity events per session.
// A ttl of zero keeps buffers until Close.
func NewMemoryStore(capacity int, ttl time.Duration) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		buffers:  make(map[string]*memoryBuffer),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, event *protocol.Event) error {
	s.mu.Lock()
	now := s.now()
	s.sweep(now)
	b, ok := s.buffers[sessionID]
	if !ok {
		b = &memoryBuffer{events: NewRingBuffer(s.capacity)}
		s.buffers[sessionID] = b
	}
	b.touched = now
	s.mu.Unlock()

	b.events.Write(*event)
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, sessionID string) ([]protocol.Event, error) {
	s.mu.Lock()
	b, ok := s.buffers[sessionID]
	if ok && s.expired(b, s.now()) {
		delete(s.buffers, sessionID)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return []protocol.Event{}, nil
	}
	return b.events.ReadAll(), nil
}

// Len returns the number of sessions with a live buffer.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep(s.now())
	return len(s.buffers)
}

func (s *MemoryStore) expired(b *memoryBuffer, now time.Time) bool {
	return s.ttl > 0 && now.Sub(b.touched) >= s.ttl
}

// sweep drops expired buffers, at most once per ttl. Callers hold mu.
func (s *MemoryStore) sweep(now time.Time) {
	if s.ttl <= 0 || now.Sub(s.lastSweep) < s.ttl {
		return
	}
	s.lastSweep = now
	for id, b := range s.buffers {
		if s.expired(b, now) {
			delete(s.buffers, id)
		}
	}
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.buffers = make(map[string]*memoryBuffer)
	s.mu.Unlock()
	return nil
}
