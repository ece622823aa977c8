package memory

import (
	"testing"
	"time"

	"timed-quiz-bot/internal/app"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()

	if _, ok := store.Get(7); ok {
		t.Fatalf("expected no session before Put")
	}

	session := &app.Session{
		UserID:    7,
		AttemptID: 42,
		Order:     []int{2, 0, 1},
		StartedAt: time.Unix(1_700_000_000, 0),
	}
	store.Put(session)

	got, ok := store.Get(7)
	if !ok || got.AttemptID != 42 {
		t.Fatalf("expected stored session, got %+v ok=%v", got, ok)
	}

	// Put for the same user overwrites: one live session per identity.
	store.Put(&app.Session{UserID: 7, AttemptID: 43, Order: []int{0}})
	if got, _ := store.Get(7); got.AttemptID != 43 {
		t.Fatalf("expected overwrite, got attempt %d", got.AttemptID)
	}

	store.Delete(7)
	if _, ok := store.Get(7); ok {
		t.Fatalf("expected session removed")
	}
}
