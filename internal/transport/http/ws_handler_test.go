package http

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"timed-quiz-bot/internal/app"
	"timed-quiz-bot/internal/bank"
	"timed-quiz-bot/internal/domain"
	"timed-quiz-bot/internal/infra/memory"
	"timed-quiz-bot/internal/report"
	"github.com/gorilla/websocket"
)

const testToken = "router-secret"

func TestWebSocketQuizFlow(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	conn := dial(t, server, "?token="+testToken+"&userId=7&username=alice")
	defer conn.Close()

	// Start and read the first (only) question.
	writeMsg(t, conn, map[string]any{"type": "start_quiz"})
	_, payload := readNext(t, conn, "question")
	questionIndex := int(payload["questionIndex"].(float64))
	if questionIndex != 0 {
		t.Fatalf("expected bank index 0 with a single-question bank, got %d", questionIndex)
	}

	// Wrong answer: penalized, same question again.
	writeMsg(t, conn, map[string]any{"type": "submit_answer", "payload": map[string]any{
		"questionIndex": questionIndex, "optionIndex": 0,
	}})
	_, payload = readNext(t, conn, "answer_result")
	if payload["correct"].(bool) {
		t.Fatalf("expected wrong answer result")
	}
	next := payload["next"].(map[string]any)
	if int(next["questionIndex"].(float64)) != questionIndex {
		t.Fatalf("expected the same question re-presented")
	}
	if int(next["penaltyMs"].(float64)) != 5000 {
		t.Fatalf("expected 5000ms penalty, got %v", next["penaltyMs"])
	}

	// Correct answer on a quiz of size 1 finishes the attempt.
	writeMsg(t, conn, map[string]any{"type": "submit_answer", "payload": map[string]any{
		"questionIndex": questionIndex, "optionIndex": 1,
	}})
	_, payload = readNext(t, conn, "answer_result")
	if !payload["correct"].(bool) {
		t.Fatalf("expected correct answer result")
	}
	finished := payload["finished"].(map[string]any)
	if finished["status"].(string) != domain.AttemptFinished {
		t.Fatalf("expected finished status, got %v", finished["status"])
	}
	if int(finished["wrongCount"].(float64)) != 1 || int(finished["penaltyMs"].(float64)) != 5000 {
		t.Fatalf("unexpected summary: %v", finished)
	}

	// No session anymore: further answers are benign notices.
	writeMsg(t, conn, map[string]any{"type": "submit_answer", "payload": map[string]any{
		"questionIndex": questionIndex, "optionIndex": 1,
	}})
	readNext(t, conn, "notice")
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws?token=wrong&userId=7"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected handshake failure with bad token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestWebSocketAdminDenied(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	conn := dial(t, server, "?token="+testToken+"&userId=7")
	defer conn.Close()

	writeMsg(t, conn, map[string]any{"type": "admin_command", "payload": map[string]any{"action": "overview"}})
	_, payload := readNext(t, conn, "notice")
	if payload["message"].(string) != "Access denied." {
		t.Fatalf("expected access denied notice, got %v", payload["message"])
	}
}

func TestWebSocketMenuAndTheory(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	conn := dial(t, server, "?token="+testToken+"&userId=7")
	defer conn.Close()

	writeMsg(t, conn, map[string]any{"type": "view_menu"})
	_, payload := readNext(t, conn, "menu")
	if int(payload["quizSize"].(float64)) != 1 || int(payload["penaltyMs"].(float64)) != 5000 {
		t.Fatalf("unexpected menu payload: %v", payload)
	}

	writeMsg(t, conn, map[string]any{"type": "view_theory", "payload": map[string]any{"page": 0}})
	_, payload = readNext(t, conn, "theory")
	if payload["text"].(string) != "study hard" {
		t.Fatalf("unexpected theory page: %v", payload)
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	b := bank.Bank{ID: "default", Questions: []domain.Question{{
		Text:         "Pick the right one",
		Options:      []string{"wrong", "right"},
		CorrectIndex: 1,
		HintWrong:    "not that one",
		ExplainRight: "that is it",
	}}}
	banks := bank.NewRepository(bank.NewStaticLoader(map[string]bank.Bank{"default": b}), "default", time.Minute)
	store := &wsFakeStore{attempts: map[int64]*domain.Attempt{}}
	engine := app.NewEngine(memory.NewSessionStore(), store, banks, 1, 5000)
	theory := app.NewTheoryBook("study hard", 100)
	reports := report.NewService(store, banks, map[int64]bool{})
	handler := NewWSHandler(engine, theory, reports, testToken)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	return httptest.NewServer(mux)
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func writeMsg(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readNext(t *testing.T, conn *websocket.Conn, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s (%v)", expect, msg.Type, msg.Payload)
	}
	return msg.Type, msg.Payload
}

// wsFakeStore is a minimal in-memory app.Store and report.Store for
// transport tests.
type wsFakeStore struct {
	mu       sync.Mutex
	attempts map[int64]*domain.Attempt
	nextID   int64
}

func (f *wsFakeStore) UpsertUser(context.Context, domain.Identity, int64) error { return nil }
func (f *wsFakeStore) LogEvent(context.Context, int64, int64, string, string) error {
	return nil
}

func (f *wsFakeStore) CreateAttempt(_ context.Context, userID int64, ts int64, quizSize, penaltyMS int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.attempts[f.nextID] = &domain.Attempt{ID: f.nextID, UserID: userID, StartedTS: ts, Status: domain.AttemptStarted, QuizSize: quizSize, WrongPenaltyMS: penaltyMS}
	return f.nextID, nil
}

func (f *wsFakeStore) UpdateAttemptProgress(_ context.Context, attemptID int64, wrongCount, penaltyMS int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[attemptID]
	if !ok {
		return fmt.Errorf("attempt %d not found", attemptID)
	}
	a.WrongCount, a.PenaltyMS = wrongCount, penaltyMS
	return nil
}

func (f *wsFakeStore) FinalizeAttempt(_ context.Context, attemptID int64, status string, endedTS int64, elapsedMS, penaltyMS, wrongCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[attemptID]
	if !ok {
		return fmt.Errorf("attempt %d not found", attemptID)
	}
	total := elapsedMS + penaltyMS
	a.Status, a.EndedTS, a.ElapsedMS, a.PenaltyMS, a.WrongCount, a.TotalMS = status, &endedTS, &elapsedMS, penaltyMS, wrongCount, &total
	return nil
}

func (f *wsFakeStore) InsertAnswer(context.Context, domain.Answer) error { return nil }
func (f *wsFakeStore) Leaderboard(context.Context, int) ([]domain.LeaderboardEntry, error) {
	return nil, nil
}

func (f *wsFakeStore) Overview(context.Context) (domain.OverviewStats, error) {
	return domain.OverviewStats{}, nil
}
func (f *wsFakeStore) RecentUsers(context.Context, int) ([]domain.User, error) { return nil, nil }
func (f *wsFakeStore) RecentAttempts(context.Context, int) ([]domain.AttemptSummary, error) {
	return nil, nil
}
func (f *wsFakeStore) HardestQuestions(context.Context, int) ([]domain.QuestionDifficulty, error) {
	return nil, nil
}
func (f *wsFakeStore) RecentEvents(context.Context, int) ([]domain.EventSummary, error) {
	return nil, nil
}
func (f *wsFakeStore) ExportUsers(context.Context) ([]domain.User, error)       { return nil, nil }
func (f *wsFakeStore) ExportAttempts(context.Context) ([]domain.Attempt, error) { return nil, nil }
func (f *wsFakeStore) ExportAnswers(context.Context) ([]domain.Answer, error)   { return nil, nil }
func (f *wsFakeStore) ExportEvents(context.Context) ([]domain.Event, error)     { return nil, nil }
func (f *wsFakeStore) ClearAll(context.Context) error                           { return nil }
