package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"timed-quiz-bot/internal/bank"
	"timed-quiz-bot/internal/domain"
)

const adminID = int64(100)

func TestNonAdminDenied(t *testing.T) {
	svc, store := newTestService()

	for _, action := range []string{ActionOverview, ActionExport, ActionClearConfirm, ActionClearYes} {
		if _, err := svc.Handle(context.Background(), 999, action); !errors.Is(err, domain.ErrAccessDenied) {
			t.Fatalf("action %s: expected ErrAccessDenied, got %v", action, err)
		}
	}
	if store.cleared {
		t.Fatalf("denied admin action must not mutate anything")
	}
}

func TestUnknownActionRejected(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.Handle(context.Background(), adminID, "drop_tables"); !errors.Is(err, domain.ErrUnknownAdminAction) {
		t.Fatalf("expected ErrUnknownAdminAction, got %v", err)
	}
}

func TestClearRequiresConfirmation(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()

	// Direct clear without prior confirmation must not truncate.
	if _, err := svc.Handle(ctx, adminID, ActionClearYes); !errors.Is(err, domain.ErrClearNotArmed) {
		t.Fatalf("expected ErrClearNotArmed, got %v", err)
	}
	if store.cleared {
		t.Fatalf("unconfirmed clear truncated tables")
	}

	if _, err := svc.Handle(ctx, adminID, ActionClearConfirm); err != nil {
		t.Fatalf("clear_confirm: %v", err)
	}
	if _, err := svc.Handle(ctx, adminID, ActionClearNo); err != nil {
		t.Fatalf("clear_no: %v", err)
	}
	if _, err := svc.Handle(ctx, adminID, ActionClearYes); !errors.Is(err, domain.ErrClearNotArmed) {
		t.Fatalf("clear_no must disarm, got %v", err)
	}

	if _, err := svc.Handle(ctx, adminID, ActionClearConfirm); err != nil {
		t.Fatalf("clear_confirm: %v", err)
	}
	if _, err := svc.Handle(ctx, adminID, ActionClearYes); err != nil {
		t.Fatalf("confirmed clear: %v", err)
	}
	if !store.cleared {
		t.Fatalf("confirmed clear did not truncate")
	}

	// The confirmation is consumed; a second clear needs re-arming.
	if _, err := svc.Handle(ctx, adminID, ActionClearYes); !errors.Is(err, domain.ErrClearNotArmed) {
		t.Fatalf("expected confirmation consumed, got %v", err)
	}
}

func TestOverviewFormatting(t *testing.T) {
	svc, store := newTestService()
	avgTotal := 65123.0
	avgWrong := 1.5
	store.overview = domain.OverviewStats{
		Users: 3, Attempts: 5, Finished: 2, Quit: 1,
		AvgTotalMS: &avgTotal, AvgWrongPerQuiz: &avgWrong,
	}

	result, err := svc.Handle(context.Background(), adminID, ActionOverview)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	for _, want := range []string{"Users: 3", "Attempts: 5", "Finished: 2", "Quit: 1", "1:05.123", "1.50"} {
		if !strings.Contains(result.Text, want) {
			t.Fatalf("overview missing %q:\n%s", want, result.Text)
		}
	}
}

func TestOverviewWithoutFinishedAttempts(t *testing.T) {
	svc, _ := newTestService()
	result, err := svc.Handle(context.Background(), adminID, ActionOverview)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if !strings.Contains(result.Text, "Avg total time: -") {
		t.Fatalf("expected dash placeholder for missing average:\n%s", result.Text)
	}
}

func TestHardQuestionsUsesBankText(t *testing.T) {
	svc, store := newTestService()
	store.hard = []domain.QuestionDifficulty{
		{QuestionIndex: 0, Wrong: 4, Total: 6},
		{QuestionIndex: 99, Wrong: 1, Total: 1}, // index outside the bank
	}
	result, err := svc.Handle(context.Background(), adminID, ActionHardQuestions)
	if err != nil {
		t.Fatalf("hard questions: %v", err)
	}
	if !strings.Contains(result.Text, "What is 2 + 2?") {
		t.Fatalf("expected question text in report:\n%s", result.Text)
	}
	if !strings.Contains(result.Text, "question #99") {
		t.Fatalf("expected fallback title for unknown index:\n%s", result.Text)
	}
}

func TestExportContainsAllFourTables(t *testing.T) {
	svc, store := newTestService()
	ended := int64(1_700_000_100)
	elapsed, total := 9000, 14000
	store.exportUsers = []domain.User{{UserID: 7, Username: "alice", FirstSeenTS: 1, LastSeenTS: 2}}
	store.exportAttempts = []domain.Attempt{{
		ID: 1, UserID: 7, StartedTS: 1_700_000_000, EndedTS: &ended,
		Status: domain.AttemptFinished, QuizSize: 2, WrongPenaltyMS: 5000,
		WrongCount: 1, PenaltyMS: 5000, ElapsedMS: &elapsed, TotalMS: &total,
	}}
	store.exportAnswers = []domain.Answer{{ID: 1, AttemptID: 1, UserID: 7, TS: 5, Pos: 0, QuestionIndex: 1, OptionIndex: 0, IsCorrect: false, PenaltyMSAfter: 5000, TotalMSNow: 7000}}
	store.exportEvents = []domain.Event{{ID: 1, TS: 5, UserID: 7, EventType: "quiz_start"}}

	result, err := svc.Handle(context.Background(), adminID, ActionExport)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if result.File == nil {
		t.Fatalf("expected export file")
	}
	if result.File.Name != "quiz_stats_export_1700000000.csv" {
		t.Fatalf("unexpected filename %q", result.File.Name)
	}
	body := string(result.File.Data)
	for _, section := range []string{"=== USERS ===", "=== ATTEMPTS ===", "=== ANSWERS ===", "=== EVENTS ==="} {
		if !strings.Contains(body, section) {
			t.Fatalf("export missing section %s:\n%s", section, body)
		}
	}
	if !strings.Contains(body, "7,alice") {
		t.Fatalf("export missing user row:\n%s", body)
	}
	if !strings.Contains(body, "14000") {
		t.Fatalf("export missing attempt total:\n%s", body)
	}
}

func TestFormatMS(t *testing.T) {
	cases := map[int]string{
		0:      "0:00.000",
		999:    "0:00.999",
		65123:  "1:05.123",
		600000: "10:00.000",
	}
	for ms, want := range cases {
		if got := FormatMS(ms); got != want {
			t.Fatalf("FormatMS(%d) = %q, want %q", ms, got, want)
		}
	}
}

func newTestService() (*Service, *stubStore) {
	store := &stubStore{}
	b := bank.Bank{ID: "default", Questions: []domain.Question{{
		Text: "What is 2 + 2?", Options: []string{"3", "4"}, CorrectIndex: 1,
	}}}
	banks := bank.NewRepository(bank.NewStaticLoader(map[string]bank.Bank{"default": b}), "default", time.Minute)
	now := func() time.Time { return time.Unix(1_700_000_000, 0) }
	return NewServiceWithClock(store, banks, map[int64]bool{adminID: true}, now), store
}

type stubStore struct {
	overview       domain.OverviewStats
	hard           []domain.QuestionDifficulty
	exportUsers    []domain.User
	exportAttempts []domain.Attempt
	exportAnswers  []domain.Answer
	exportEvents   []domain.Event
	cleared        bool
}

func (s *stubStore) Overview(context.Context) (domain.OverviewStats, error) { return s.overview, nil }
func (s *stubStore) RecentUsers(context.Context, int) ([]domain.User, error) {
	return s.exportUsers, nil
}
func (s *stubStore) RecentAttempts(context.Context, int) ([]domain.AttemptSummary, error) {
	return nil, nil
}
func (s *stubStore) HardestQuestions(context.Context, int) ([]domain.QuestionDifficulty, error) {
	return s.hard, nil
}
func (s *stubStore) RecentEvents(context.Context, int) ([]domain.EventSummary, error) {
	return nil, nil
}
func (s *stubStore) ExportUsers(context.Context) ([]domain.User, error)       { return s.exportUsers, nil }
func (s *stubStore) ExportAttempts(context.Context) ([]domain.Attempt, error) { return s.exportAttempts, nil }
func (s *stubStore) ExportAnswers(context.Context) ([]domain.Answer, error)   { return s.exportAnswers, nil }
func (s *stubStore) ExportEvents(context.Context) ([]domain.Event, error)     { return s.exportEvents, nil }
func (s *stubStore) ClearAll(context.Context) error {
	s.cleared = true
	return nil
}
