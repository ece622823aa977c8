package report

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"timed-quiz-bot/internal/bank"
	"timed-quiz-bot/internal/domain"
)

// Admin action names, matching the inbound admin_command vocabulary.
const (
	ActionOverview      = "overview"
	ActionUsers         = "users"
	ActionAttempts      = "attempts"
	ActionHardQuestions = "hard_questions"
	ActionEvents        = "events"
	ActionExport        = "export"
	ActionClearConfirm  = "clear_confirm"
	ActionClearYes      = "clear_yes"
	ActionClearNo       = "clear_no"
)

const (
	usersLimit    = 20
	attemptsLimit = 20
	hardLimit     = 10
	eventsLimit   = 25
)

// Store is the read side of the persistence layer plus the destructive wipe.
type Store interface {
	Overview(ctx context.Context) (domain.OverviewStats, error)
	RecentUsers(ctx context.Context, limit int) ([]domain.User, error)
	RecentAttempts(ctx context.Context, limit int) ([]domain.AttemptSummary, error)
	HardestQuestions(ctx context.Context, limit int) ([]domain.QuestionDifficulty, error)
	RecentEvents(ctx context.Context, limit int) ([]domain.EventSummary, error)
	ExportUsers(ctx context.Context) ([]domain.User, error)
	ExportAttempts(ctx context.Context) ([]domain.Attempt, error)
	ExportAnswers(ctx context.Context) ([]domain.Answer, error)
	ExportEvents(ctx context.Context) ([]domain.Event, error)
	ClearAll(ctx context.Context) error
}

// BankRepository resolves question indices to text for the difficulty report.
type BankRepository interface {
	Bank(ctx context.Context) (bank.Bank, error)
}

// File is a downloadable artifact (the CSV export).
type File struct {
	Name string
	Data []byte
}

// Result is what an admin action produces: report text and optionally a file.
type Result struct {
	Text string
	File *File
}

// Service formats read-only reports over the persistence layer and gates the
// destructive clear behind a per-admin two-step confirmation.
type Service struct {
	store  Store
	banks  BankRepository
	admins map[int64]bool
	now    func() time.Time

	mu           sync.Mutex
	pendingClear map[int64]bool
}

func NewService(store Store, banks BankRepository, admins map[int64]bool) *Service {
	return NewServiceWithClock(store, banks, admins, time.Now)
}

// NewServiceWithClock is for deterministic filenames and timestamps in tests.
func NewServiceWithClock(store Store, banks BankRepository, admins map[int64]bool, now func() time.Time) *Service {
	return &Service{
		store:        store,
		banks:        banks,
		admins:       admins,
		now:          now,
		pendingClear: make(map[int64]bool),
	}
}

// Authorized reports whether the identity belongs to the privileged set.
func (s *Service) Authorized(userID int64) bool {
	return s.admins[userID]
}

// Handle dispatches one admin action. Non-privileged identities are denied
// before anything is read or mutated.
func (s *Service) Handle(ctx context.Context, userID int64, action string) (Result, error) {
	if !s.Authorized(userID) {
		return Result{}, domain.ErrAccessDenied
	}
	switch action {
	case ActionOverview:
		return s.overview(ctx)
	case ActionUsers:
		return s.users(ctx)
	case ActionAttempts:
		return s.attempts(ctx)
	case ActionHardQuestions:
		return s.hardQuestions(ctx)
	case ActionEvents:
		return s.events(ctx)
	case ActionExport:
		return s.export(ctx)
	case ActionClearConfirm:
		s.armClear(userID)
		return Result{Text: "WARNING: this wipes ALL statistics (users/events/attempts/answers) irreversibly.\nSend clear_yes to proceed or clear_no to cancel."}, nil
	case ActionClearYes:
		return s.clearAll(ctx, userID)
	case ActionClearNo:
		s.disarmClear(userID)
		return Result{Text: "Cancelled, nothing was deleted."}, nil
	default:
		return Result{}, domain.ErrUnknownAdminAction
	}
}

func (s *Service) overview(ctx context.Context) (Result, error) {
	stats, err := s.store.Overview(ctx)
	if err != nil {
		return Result{}, err
	}
	avgTotal := "-"
	if stats.AvgTotalMS != nil {
		avgTotal = FormatMS(int(*stats.AvgTotalMS))
	}
	avgWrong := "-"
	if stats.AvgWrongPerQuiz != nil {
		avgWrong = fmt.Sprintf("%.2f", *stats.AvgWrongPerQuiz)
	}
	var b strings.Builder
	b.WriteString("Overview\n\n")
	fmt.Fprintf(&b, "Users: %d\n", stats.Users)
	fmt.Fprintf(&b, "Attempts: %d\n", stats.Attempts)
	fmt.Fprintf(&b, "Finished: %d\n", stats.Finished)
	fmt.Fprintf(&b, "Quit: %d\n", stats.Quit)
	fmt.Fprintf(&b, "Avg total time: %s\n", avgTotal)
	fmt.Fprintf(&b, "Avg wrong answers: %s\n", avgWrong)
	return Result{Text: b.String()}, nil
}

func (s *Service) users(ctx context.Context) (Result, error) {
	users, err := s.store.RecentUsers(ctx, usersLimit)
	if err != nil {
		return Result{}, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Users (last %d)\n", usersLimit)
	for _, u := range users {
		id := domain.Identity{ID: u.UserID, Username: u.Username, FullName: u.FullName}
		name := id.DisplayName()
		if name == "" {
			name = fmt.Sprintf("#%d", u.UserID)
		}
		fmt.Fprintf(&b, "- %s, last seen %s\n", name, formatTS(u.LastSeenTS))
	}
	return Result{Text: b.String()}, nil
}

func (s *Service) attempts(ctx context.Context) (Result, error) {
	attempts, err := s.store.RecentAttempts(ctx, attemptsLimit)
	if err != nil {
		return Result{}, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Attempts (last %d)\n", attemptsLimit)
	for _, a := range attempts {
		total := "-"
		if a.TotalMS != nil {
			total = FormatMS(*a.TotalMS)
		}
		fmt.Fprintf(&b, "- #%d %s: %s, total %s, wrong %d, penalty %s\n",
			a.ID, a.Name, a.Status, total, a.WrongCount, FormatMS(a.PenaltyMS))
	}
	return Result{Text: b.String()}, nil
}

func (s *Service) hardQuestions(ctx context.Context) (Result, error) {
	ranked, err := s.store.HardestQuestions(ctx, hardLimit)
	if err != nil {
		return Result{}, err
	}
	if len(ranked) == 0 {
		return Result{Text: "Hardest questions\n\nNo answers recorded yet."}, nil
	}
	bnk, err := s.banks.Bank(ctx)
	if err != nil {
		return Result{}, err
	}
	var b strings.Builder
	b.WriteString("Hardest questions (by wrong answers)\n")
	for _, q := range ranked {
		title := fmt.Sprintf("question #%d", q.QuestionIndex)
		if question, ok := bnk.Question(q.QuestionIndex); ok {
			title = question.Text
		}
		fmt.Fprintf(&b, "- %s\n  wrong %d of %d\n", title, q.Wrong, q.Total)
	}
	return Result{Text: b.String()}, nil
}

func (s *Service) events(ctx context.Context) (Result, error) {
	events, err := s.store.RecentEvents(ctx, eventsLimit)
	if err != nil {
		return Result{}, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Events (last %d)\n", eventsLimit)
	for _, e := range events {
		fmt.Fprintf(&b, "- %s %s %s\n", formatTS(e.TS), e.Name, e.EventType)
	}
	return Result{Text: b.String()}, nil
}

func (s *Service) clearAll(ctx context.Context, userID int64) (Result, error) {
	s.mu.Lock()
	armed := s.pendingClear[userID]
	delete(s.pendingClear, userID)
	s.mu.Unlock()
	if !armed {
		return Result{}, domain.ErrClearNotArmed
	}
	if err := s.store.ClearAll(ctx); err != nil {
		return Result{}, err
	}
	return Result{Text: "All statistics cleared."}, nil
}

func (s *Service) armClear(userID int64) {
	s.mu.Lock()
	s.pendingClear[userID] = true
	s.mu.Unlock()
}

func (s *Service) disarmClear(userID int64) {
	s.mu.Lock()
	delete(s.pendingClear, userID)
	s.mu.Unlock()
}

// FormatMS renders milliseconds as m:ss.mmm.
func FormatMS(ms int) string {
	sec := float64(ms) / 1000.0
	m := int(sec) / 60
	s := sec - float64(60*m)
	return fmt.Sprintf("%d:%06.3f", m, s)
}

func formatTS(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02 15:04:05")
}
