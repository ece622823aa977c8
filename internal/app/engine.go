package app

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"timed-quiz-bot/internal/bank"
	"timed-quiz-bot/internal/domain"
)

// Store is the durable side of the quiz lifecycle. Every call is one atomic,
// immediately committed write; failures are not retried here.
type Store interface {
	UpsertUser(ctx context.Context, id domain.Identity, ts int64) error
	LogEvent(ctx context.Context, userID int64, ts int64, eventType, payloadJSON string) error
	CreateAttempt(ctx context.Context, userID int64, ts int64, quizSize, penaltyMS int) (int64, error)
	UpdateAttemptProgress(ctx context.Context, attemptID int64, wrongCount, penaltyMS int) error
	FinalizeAttempt(ctx context.Context, attemptID int64, status string, endedTS int64, elapsedMS, penaltyMS, wrongCount int) error
	InsertAnswer(ctx context.Context, ans domain.Answer) error
	Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

// BankRepository loads the question bank (from cache/backing store).
type BankRepository interface {
	Bank(ctx context.Context) (bank.Bank, error)
}

// Engine orchestrates the attempt lifecycle: start, answer loop, finish or
// quit, with write-through to the Store. Database writes happen before the
// in-memory session mutation commits, so a failed write leaves the session
// unchanged.
type Engine struct {
	sessions  SessionStore
	store     Store
	banks     BankRepository
	quizSize  int
	penaltyMS int
	now       func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewEngine(sessions SessionStore, store Store, banks BankRepository, quizSize, penaltyMS int) *Engine {
	return newEngine(sessions, store, banks, quizSize, penaltyMS, time.Now)
}

// NewEngineWithClock is for deterministic timing in tests.
func NewEngineWithClock(sessions SessionStore, store Store, banks BankRepository, quizSize, penaltyMS int, now func() time.Time) *Engine {
	return newEngine(sessions, store, banks, quizSize, penaltyMS, now)
}

func newEngine(sessions SessionStore, store Store, banks BankRepository, quizSize, penaltyMS int, now func() time.Time) *Engine {
	return &Engine{
		sessions:  sessions,
		store:     store,
		banks:     banks,
		quizSize:  quizSize,
		penaltyMS: penaltyMS,
		now:       now,
		rnd:       rand.New(rand.NewSource(now().UnixNano())),
	}
}

// Menu returns the quiz parameters shown on the main screen.
func (e *Engine) Menu() domain.MenuInfo {
	return domain.MenuInfo{QuizSize: e.quizSize, PenaltyMS: e.penaltyMS}
}

// RecordInteraction upserts the user row (name, last-seen) and appends one
// event. Called on every inbound action.
func (e *Engine) RecordInteraction(ctx context.Context, id domain.Identity, eventType string, payload any) error {
	ts := e.now().Unix()
	if err := e.store.UpsertUser(ctx, id, ts); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	if err := e.store.LogEvent(ctx, id.ID, ts, eventType, marshalPayload(payload)); err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// StartAttempt begins a fresh quiz run: samples a new order without
// replacement, creates the persisted attempt and returns the first question.
// Any live session for the user is finalized as quit first.
func (e *Engine) StartAttempt(ctx context.Context, id domain.Identity) (*domain.QuestionView, error) {
	b, err := e.banks.Bank(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bank: %w", err)
	}
	if err := b.Validate(e.quizSize); err != nil {
		return nil, err
	}

	if prev, ok := e.sessions.Get(id.ID); ok {
		// A session whose order is exhausted answered everything correctly
		// and only failed to finalize; its attempt finished, it did not quit.
		status := domain.AttemptQuit
		if _, live := prev.CurrentQuestionIndex(); !live {
			status = domain.AttemptFinished
		}
		if _, err := e.finalize(ctx, id, prev, status); err != nil {
			return nil, err
		}
	}

	now := e.now()
	ts := now.Unix()
	if err := e.RecordInteraction(ctx, id, domain.EventQuizStart, nil); err != nil {
		return nil, err
	}

	attemptID, err := e.store.CreateAttempt(ctx, id.ID, ts, e.quizSize, e.penaltyMS)
	if err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	if err := e.store.LogEvent(ctx, id.ID, ts, domain.EventAttemptStarted,
		marshalPayload(map[string]int64{"attempt_id": attemptID})); err != nil {
		return nil, fmt.Errorf("log event: %w", err)
	}

	session := &Session{
		UserID:    id.ID,
		AttemptID: attemptID,
		Order:     e.sampleOrder(b.Size()),
		StartedAt: now,
	}
	e.sessions.Put(session)
	return e.questionView(b, session), nil
}

// SubmitAnswer processes one choice for the question at the current
// position. Stale input (old buttons, no session) is rejected with a
// sentinel error and no mutation.
func (e *Engine) SubmitAnswer(ctx context.Context, id domain.Identity, questionIndex, optionIndex int) (domain.SubmitResult, error) {
	session, ok := e.sessions.Get(id.ID)
	if !ok {
		return domain.SubmitResult{}, domain.ErrNoActiveSession
	}
	current, ok := session.CurrentQuestionIndex()
	if !ok {
		return domain.SubmitResult{}, domain.ErrNoActiveSession
	}
	if questionIndex != current {
		return domain.SubmitResult{}, domain.ErrStaleAnswer
	}

	b, err := e.banks.Bank(ctx)
	if err != nil {
		return domain.SubmitResult{}, fmt.Errorf("load bank: %w", err)
	}
	question, ok := b.Question(current)
	if !ok {
		return domain.SubmitResult{}, domain.ErrStaleAnswer
	}

	now := e.now()
	ts := now.Unix()
	if err := e.store.UpsertUser(ctx, id, ts); err != nil {
		return domain.SubmitResult{}, fmt.Errorf("upsert user: %w", err)
	}

	if optionIndex == question.CorrectIndex {
		return e.applyCorrect(ctx, id, session, b, question, optionIndex, now)
	}
	return e.applyWrong(ctx, id, session, b, question, optionIndex, now)
}

func (e *Engine) applyCorrect(ctx context.Context, id domain.Identity, session *Session, b bank.Bank, question domain.Question, optionIndex int, now time.Time) (domain.SubmitResult, error) {
	err := e.store.InsertAnswer(ctx, domain.Answer{
		AttemptID:      session.AttemptID,
		UserID:         id.ID,
		TS:             now.Unix(),
		Pos:            session.Position,
		QuestionIndex:  session.Order[session.Position],
		OptionIndex:    optionIndex,
		IsCorrect:      true,
		PenaltyMSAfter: session.PenaltyMS,
		TotalMSNow:     session.TotalMS(now),
	})
	if err != nil {
		return domain.SubmitResult{}, fmt.Errorf("insert answer: %w", err)
	}

	session.Position++
	e.sessions.Put(session)

	result := domain.SubmitResult{Correct: true, Feedback: question.ExplainRight}
	if session.Position >= len(session.Order) {
		summary, err := e.finalize(ctx, id, session, domain.AttemptFinished)
		if err != nil {
			return domain.SubmitResult{}, err
		}
		result.Finished = summary
		return result, nil
	}
	result.Next = e.questionView(b, session)
	return result, nil
}

func (e *Engine) applyWrong(ctx context.Context, id domain.Identity, session *Session, b bank.Bank, question domain.Question, optionIndex int, now time.Time) (domain.SubmitResult, error) {
	// Flat penalty per wrong answer; repeated wrong guesses on the same
	// question each add the full penalty.
	wrongCount := session.WrongCount + 1
	penaltyMS := session.PenaltyMS + e.penaltyMS
	totalMS := int(now.Sub(session.StartedAt).Milliseconds()) + penaltyMS

	if err := e.store.UpdateAttemptProgress(ctx, session.AttemptID, wrongCount, penaltyMS); err != nil {
		return domain.SubmitResult{}, fmt.Errorf("update attempt progress: %w", err)
	}
	err := e.store.InsertAnswer(ctx, domain.Answer{
		AttemptID:      session.AttemptID,
		UserID:         id.ID,
		TS:             now.Unix(),
		Pos:            session.Position,
		QuestionIndex:  session.Order[session.Position],
		OptionIndex:    optionIndex,
		IsCorrect:      false,
		PenaltyMSAfter: penaltyMS,
		TotalMSNow:     totalMS,
	})
	if err != nil {
		return domain.SubmitResult{}, fmt.Errorf("insert answer: %w", err)
	}

	session.WrongCount = wrongCount
	session.PenaltyMS = penaltyMS
	e.sessions.Put(session)

	// Position does not advance: the same question is re-presented.
	return domain.SubmitResult{
		Correct:  false,
		Feedback: question.HintWrong,
		Next:     e.questionView(b, session),
	}, nil
}

// QuitAttempt finalizes the user's in-progress attempt as quit.
func (e *Engine) QuitAttempt(ctx context.Context, id domain.Identity) (*domain.FinishSummary, error) {
	session, ok := e.sessions.Get(id.ID)
	if !ok {
		return nil, domain.ErrNoActiveSession
	}
	return e.finalize(ctx, id, session, domain.AttemptQuit)
}

// finalize fixes the attempt's end timestamp and totals exactly once, logs
// the summary event and discards the session.
func (e *Engine) finalize(ctx context.Context, id domain.Identity, session *Session, status string) (*domain.FinishSummary, error) {
	now := e.now()
	elapsedMS := int(now.Sub(session.StartedAt).Milliseconds())
	totalMS := elapsedMS + session.PenaltyMS

	err := e.store.FinalizeAttempt(ctx, session.AttemptID, status, now.Unix(), elapsedMS, session.PenaltyMS, session.WrongCount)
	if err != nil {
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}
	if err := e.store.LogEvent(ctx, id.ID, now.Unix(), domain.EventAttemptEnded, marshalPayload(map[string]any{
		"attempt_id": session.AttemptID,
		"status":     status,
		"wrong":      session.WrongCount,
		"penalty_ms": session.PenaltyMS,
		"total_ms":   totalMS,
	})); err != nil {
		return nil, fmt.Errorf("log event: %w", err)
	}

	e.sessions.Delete(session.UserID)
	return &domain.FinishSummary{
		Status:     status,
		TotalMS:    totalMS,
		ElapsedMS:  elapsedMS,
		PenaltyMS:  session.PenaltyMS,
		WrongCount: session.WrongCount,
	}, nil
}

// Leaderboard returns the best finished total per user, ascending.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	return e.store.Leaderboard(ctx, limit)
}

func (e *Engine) questionView(b bank.Bank, session *Session) *domain.QuestionView {
	index, ok := session.CurrentQuestionIndex()
	if !ok {
		return nil
	}
	question, ok := b.Question(index)
	if !ok {
		return nil
	}
	return &domain.QuestionView{
		Position:      session.Position,
		QuizSize:      len(session.Order),
		QuestionIndex: index,
		Text:          question.Text,
		Options:       question.Options,
		ImageRef:      question.ImageRef,
		TotalMSNow:    session.TotalMS(e.now()),
		PenaltyMS:     session.PenaltyMS,
	}
}

// sampleOrder picks quizSize distinct bank indices uniformly at random.
func (e *Engine) sampleOrder(bankSize int) []int {
	e.rndMu.Lock()
	defer e.rndMu.Unlock()
	return e.rnd.Perm(bankSize)[:e.quizSize]
}

func marshalPayload(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
