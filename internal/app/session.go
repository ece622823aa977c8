package app

import "time"

// Session is the live in-memory progress of one user's current attempt.
// Exactly one session may exist per user identity; it is created by
// StartAttempt and discarded when the attempt is finalized. Fields are
// exported so stores can serialize the session as-is.
type Session struct {
	UserID     int64     `json:"userId"`
	AttemptID  int64     `json:"attemptId"`
	Order      []int     `json:"order"`    // distinct bank indices, len = quiz size
	Position   int       `json:"position"` // 0-based cursor into Order
	StartedAt  time.Time `json:"startedAt"`
	PenaltyMS  int       `json:"penaltyMs"`
	WrongCount int       `json:"wrongCount"`
}

// TotalMS is the elapsed-plus-penalty time at now.
func (s *Session) TotalMS(now time.Time) int {
	return int(now.Sub(s.StartedAt).Milliseconds()) + s.PenaltyMS
}

// CurrentQuestionIndex returns the bank index at the cursor, or false when
// the order is exhausted.
func (s *Session) CurrentQuestionIndex() (int, bool) {
	if s.Position < 0 || s.Position >= len(s.Order) {
		return 0, false
	}
	return s.Order[s.Position], true
}

// SessionStore abstracts how live sessions are kept (in-memory map, Redis).
// Implementations key sessions on user identity; Put overwrites any prior
// session for the same user.
type SessionStore interface {
	Get(userID int64) (*Session, bool)
	Put(s *Session)
	Delete(userID int64)
}
