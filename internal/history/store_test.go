package history

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	session := "test-" + uuid.New().String()

	events, err := store.Recent(ctx, session)
	if err != nil {
		t.Fatalf("Recent on unknown session: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}

	for i := 0; i < 5; i++ {
		e := makeEvent(i)
		if err := store.Append(ctx, session, &e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	events, err = store.Recent(ctx, session)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events (capacity), got %d", len(events))
	}
	for i, e := range events {
		if got, want := messageOf(t, e), fmt.Sprintf("line-%d", i+2); got != want {
			t.Errorf("event %d: expected %s, got %s", i, want, got)
		}
	}

	other, _ := store.Recent(ctx, session+"-other")
	if len(other) != 0 {
		t.Errorf("sessions must not share history, got %d events", len(other))
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(3, time.Minute)
	defer store.Close()
	testStore(t, store)
}

func TestMemoryStore_DefaultCapacity(t *testing.T) {
	store := NewMemoryStore(0, 0)
	if store.capacity != DefaultCapacity {
		t.Errorf("expected default capacity %d, got %d", DefaultCapacity, store.capacity)
	}
}

func TestMemoryStore_ExpiresIdleSessions(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	store := NewMemoryStore(3, time.Minute)
	store.now = func() time.Time { return now }

	e := makeEvent(0)
	store.Append(ctx, "idle", &e)
	store.Append(ctx, "busy", &e)

	now = now.Add(45 * time.Second)
	store.Append(ctx, "busy", &e)

	now = now.Add(30 * time.Second)
	if events, _ := store.Recent(ctx, "idle"); len(events) != 0 {
		t.Errorf("expected idle session to expire, got %d events", len(events))
	}
	if events, _ := store.Recent(ctx, "busy"); len(events) != 2 {
		t.Errorf("expected busy session to keep 2 events, got %d", len(events))
	}
	if n := store.Len(); n != 1 {
		t.Errorf("expected 1 live session, got %d", n)
	}

	now = now.Add(2 * time.Minute)
	store.Append(ctx, "fresh", &e)
	if n := store.Len(); n != 1 {
		t.Errorf("expected expired sessions swept on append, got %d live", n)
	}
}

func TestMemoryStore_ZeroTTLKeepsHistory(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	store := NewMemoryStore(3, 0)
	store.now = func() time.Time { return now }

	e := makeEvent(0)
	store.Append(ctx, "s1", &e)
	now = now.Add(24 * 365 * time.Hour)
	if events, _ := store.Recent(ctx, "s1"); len(events) != 1 {
		t.Errorf("expected history to be kept, got %d events", len(events))
	}
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("GENSITE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("GENSITE_TEST_REDIS_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := NewRedisStore(ctx, url, 3, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer store.Close()
	testStore(t, store)
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "not a url", 3, time.Minute)
	if err == nil {
		t.Fatal("expected error for invalid url")
	}
}
