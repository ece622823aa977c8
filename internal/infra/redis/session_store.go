package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"timed-quiz-bot/internal/app"
	"github.com/redis/go-redis/v9"
)

// SessionStore keeps live sessions in Redis, one JSON value per user key.
// The key TTL doubles as idle-session expiry: a session untouched for the
// whole TTL simply disappears and the next answer is rejected as having no
// active session. Redis errors are swallowed best-effort; a miss is treated
// the same as no session.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) Get(userID int64) (*app.Session, bool) {
	raw, err := s.client.Get(context.Background(), s.key(userID)).Bytes()
	if err != nil {
		return nil, false
	}
	var session app.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, false
	}
	return &session, true
}

func (s *SessionStore) Put(session *app.Session) {
	raw, err := json.Marshal(session)
	if err != nil {
		return
	}
	_ = s.client.Set(context.Background(), s.key(session.UserID), raw, s.ttl).Err()
}

func (s *SessionStore) Delete(userID int64) {
	_ = s.client.Del(context.Background(), s.key(userID)).Err()
}

func (s *SessionStore) key(userID int64) string {
	return "quiz:session:" + strconv.FormatInt(userID, 10)
}
