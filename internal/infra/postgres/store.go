package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"timed-quiz-bot/internal/domain"
	"github.com/uptrace/bun"
)

// displayName renders a user as handle, full name or bare id, in that order.
const displayName = `COALESCE(NULLIF(u.username, ''), NULLIF(u.full_name, ''), CAST(u.user_id AS TEXT))`

// Store is the bun-backed persistence layer over the four core tables.
// Every method runs one implicit transaction and commits before returning;
// failures surface to the caller unretried.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// UpsertUser creates the user on first interaction and refreshes name and
// last-seen on every later one.
func (s *Store) UpsertUser(ctx context.Context, id domain.Identity, ts int64) error {
	user := &domain.User{
		UserID:      id.ID,
		Username:    id.Username,
		FullName:    id.FullName,
		FirstSeenTS: ts,
		LastSeenTS:  ts,
	}
	_, err := s.db.NewInsert().
		Model(user).
		On("CONFLICT (user_id) DO UPDATE").
		Set("username = EXCLUDED.username").
		Set("full_name = EXCLUDED.full_name").
		Set("last_seen_ts = EXCLUDED.last_seen_ts").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", id.ID, err)
	}
	return nil
}

// LogEvent appends one write-once event row.
func (s *Store) LogEvent(ctx context.Context, userID int64, ts int64, eventType, payloadJSON string) error {
	event := &domain.Event{TS: ts, UserID: userID, EventType: eventType, PayloadJSON: payloadJSON}
	if _, err := s.db.NewInsert().Model(event).Exec(ctx); err != nil {
		return fmt.Errorf("log event %s: %w", eventType, err)
	}
	return nil
}

// CreateAttempt inserts a new attempt in the started state and returns its id.
func (s *Store) CreateAttempt(ctx context.Context, userID int64, ts int64, quizSize, penaltyMS int) (int64, error) {
	attempt := &domain.Attempt{
		UserID:         userID,
		StartedTS:      ts,
		Status:         domain.AttemptStarted,
		QuizSize:       quizSize,
		WrongPenaltyMS: penaltyMS,
	}
	if _, err := s.db.NewInsert().Model(attempt).Exec(ctx); err != nil {
		return 0, fmt.Errorf("create attempt: %w", err)
	}
	return attempt.ID, nil
}

// UpdateAttemptProgress refreshes the running wrong-count and penalty.
func (s *Store) UpdateAttemptProgress(ctx context.Context, attemptID int64, wrongCount, penaltyMS int) error {
	_, err := s.db.NewUpdate().
		Model((*domain.Attempt)(nil)).
		Set("wrong_count = ?", wrongCount).
		Set("penalty_ms = ?", penaltyMS).
		Where("id = ?", attemptID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update attempt %d progress: %w", attemptID, err)
	}
	return nil
}

// FinalizeAttempt fixes the attempt's terminal status and totals. total_ms
// is always elapsed_ms + penalty_ms.
func (s *Store) FinalizeAttempt(ctx context.Context, attemptID int64, status string, endedTS int64, elapsedMS, penaltyMS, wrongCount int) error {
	_, err := s.db.NewUpdate().
		Model((*domain.Attempt)(nil)).
		Set("ended_ts = ?", endedTS).
		Set("status = ?", status).
		Set("elapsed_ms = ?", elapsedMS).
		Set("penalty_ms = ?", penaltyMS).
		Set("wrong_count = ?", wrongCount).
		Set("total_ms = ?", elapsedMS+penaltyMS).
		Where("id = ?", attemptID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("finalize attempt %d: %w", attemptID, err)
	}
	return nil
}

// InsertAnswer appends one write-once answer row.
func (s *Store) InsertAnswer(ctx context.Context, ans domain.Answer) error {
	if _, err := s.db.NewInsert().Model(&ans).Exec(ctx); err != nil {
		return fmt.Errorf("insert answer for attempt %d: %w", ans.AttemptID, err)
	}
	return nil
}

// Leaderboard returns each user's minimum finished total, ascending.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	var rows []struct {
		Name        string `bun:"name"`
		BestTotalMS int    `bun:"best_total_ms"`
	}
	err := s.db.NewRaw(`
		SELECT `+displayName+` AS name, MIN(a.total_ms) AS best_total_ms
		FROM attempts a
		JOIN users u ON u.user_id = a.user_id
		WHERE a.status = ? AND a.total_ms IS NOT NULL
		GROUP BY u.user_id, name
		ORDER BY best_total_ms ASC
		LIMIT ?`, domain.AttemptFinished, limit).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	entries := make([]domain.LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, domain.LeaderboardEntry{Name: r.Name, BestTotalMS: r.BestTotalMS})
	}
	return entries, nil
}

// Overview aggregates the counters for the admin summary report.
func (s *Store) Overview(ctx context.Context) (domain.OverviewStats, error) {
	var stats domain.OverviewStats
	var err error

	if stats.Users, err = s.db.NewSelect().Model((*domain.User)(nil)).Count(ctx); err != nil {
		return stats, fmt.Errorf("overview users: %w", err)
	}
	if stats.Attempts, err = s.db.NewSelect().Model((*domain.Attempt)(nil)).Count(ctx); err != nil {
		return stats, fmt.Errorf("overview attempts: %w", err)
	}
	if stats.Finished, err = s.db.NewSelect().Model((*domain.Attempt)(nil)).Where("status = ?", domain.AttemptFinished).Count(ctx); err != nil {
		return stats, fmt.Errorf("overview finished: %w", err)
	}
	if stats.Quit, err = s.db.NewSelect().Model((*domain.Attempt)(nil)).Where("status = ?", domain.AttemptQuit).Count(ctx); err != nil {
		return stats, fmt.Errorf("overview quit: %w", err)
	}

	var avgTotal, avgWrong sql.NullFloat64
	err = s.db.NewRaw(`SELECT AVG(total_ms) FROM attempts WHERE status = ? AND total_ms IS NOT NULL`,
		domain.AttemptFinished).Scan(ctx, &avgTotal)
	if err != nil {
		return stats, fmt.Errorf("overview avg total: %w", err)
	}
	err = s.db.NewRaw(`SELECT AVG(wrong_count) FROM attempts WHERE status = ?`,
		domain.AttemptFinished).Scan(ctx, &avgWrong)
	if err != nil {
		return stats, fmt.Errorf("overview avg wrong: %w", err)
	}
	if avgTotal.Valid {
		stats.AvgTotalMS = &avgTotal.Float64
	}
	if avgWrong.Valid {
		stats.AvgWrongPerQuiz = &avgWrong.Float64
	}
	return stats, nil
}

// RecentUsers lists users by last interaction, newest first.
func (s *Store) RecentUsers(ctx context.Context, limit int) ([]domain.User, error) {
	var users []domain.User
	err := s.db.NewSelect().
		Model(&users).
		Order("last_seen_ts DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("recent users: %w", err)
	}
	return users, nil
}

// RecentAttempts lists attempts joined with display names, newest first.
func (s *Store) RecentAttempts(ctx context.Context, limit int) ([]domain.AttemptSummary, error) {
	var rows []struct {
		ID         int64  `bun:"id"`
		Name       string `bun:"name"`
		Status     string `bun:"status"`
		TotalMS    *int   `bun:"total_ms"`
		WrongCount int    `bun:"wrong_count"`
		PenaltyMS  int    `bun:"penalty_ms"`
	}
	err := s.db.NewRaw(`
		SELECT a.id, `+displayName+` AS name, a.status, a.total_ms, a.wrong_count, a.penalty_ms
		FROM attempts a
		JOIN users u ON u.user_id = a.user_id
		ORDER BY a.id DESC
		LIMIT ?`, limit).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("recent attempts: %w", err)
	}
	summaries := make([]domain.AttemptSummary, 0, len(rows))
	for _, r := range rows {
		summaries = append(summaries, domain.AttemptSummary{
			ID:         r.ID,
			Name:       r.Name,
			Status:     r.Status,
			TotalMS:    r.TotalMS,
			WrongCount: r.WrongCount,
			PenaltyMS:  r.PenaltyMS,
		})
	}
	return summaries, nil
}

// HardestQuestions ranks bank entries by wrong-answer count desc, then by
// total answers desc.
func (s *Store) HardestQuestions(ctx context.Context, limit int) ([]domain.QuestionDifficulty, error) {
	var rows []struct {
		QuestionIndex int `bun:"question_index"`
		Wrong         int `bun:"wrong"`
		Total         int `bun:"total"`
	}
	err := s.db.NewRaw(`
		SELECT question_index,
		       SUM(CASE WHEN is_correct = false THEN 1 ELSE 0 END) AS wrong,
		       COUNT(*) AS total
		FROM answers
		GROUP BY question_index
		ORDER BY wrong DESC, total DESC
		LIMIT ?`, limit).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("hardest questions: %w", err)
	}
	ranked := make([]domain.QuestionDifficulty, 0, len(rows))
	for _, r := range rows {
		ranked = append(ranked, domain.QuestionDifficulty{QuestionIndex: r.QuestionIndex, Wrong: r.Wrong, Total: r.Total})
	}
	return ranked, nil
}

// RecentEvents lists events joined with display names, newest first. Users
// are joined loosely: an event survives its user being wiped.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]domain.EventSummary, error) {
	var rows []struct {
		TS        int64  `bun:"ts"`
		Name      string `bun:"name"`
		EventType string `bun:"event_type"`
	}
	err := s.db.NewRaw(`
		SELECT e.ts, COALESCE(`+displayName+`, CAST(e.user_id AS TEXT)) AS name, e.event_type
		FROM events e
		LEFT JOIN users u ON u.user_id = e.user_id
		ORDER BY e.id DESC
		LIMIT ?`, limit).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	summaries := make([]domain.EventSummary, 0, len(rows))
	for _, r := range rows {
		summaries = append(summaries, domain.EventSummary{TS: r.TS, Name: r.Name, EventType: r.EventType})
	}
	return summaries, nil
}

// ExportUsers returns all user rows for the CSV export.
func (s *Store) ExportUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	if err := s.db.NewSelect().Model(&users).Order("last_seen_ts DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("export users: %w", err)
	}
	return users, nil
}

// ExportAttempts returns all attempt rows for the CSV export.
func (s *Store) ExportAttempts(ctx context.Context) ([]domain.Attempt, error) {
	var attempts []domain.Attempt
	if err := s.db.NewSelect().Model(&attempts).Order("id DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("export attempts: %w", err)
	}
	return attempts, nil
}

// ExportAnswers returns all answer rows for the CSV export.
func (s *Store) ExportAnswers(ctx context.Context) ([]domain.Answer, error) {
	var answers []domain.Answer
	if err := s.db.NewSelect().Model(&answers).Order("id DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("export answers: %w", err)
	}
	return answers, nil
}

// ExportEvents returns all event rows for the CSV export.
func (s *Store) ExportEvents(ctx context.Context) ([]domain.Event, error) {
	var events []domain.Event
	if err := s.db.NewSelect().Model(&events).Order("id DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("export events: %w", err)
	}
	return events, nil
}

// ClearAll truncates all four tables. Callers must gate this behind the
// two-step admin confirmation.
func (s *Store) ClearAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE TABLE answers, attempts, events, users RESTART IDENTITY`)
	if err != nil {
		return fmt.Errorf("clear all: %w", err)
	}
	return nil
}

// ExpireStaleAttempts marks attempts stuck in the started state since before
// cutoffTS as quit. Run at startup: a process restart loses in-memory
// sessions while their rows would otherwise stay started forever.
func (s *Store) ExpireStaleAttempts(ctx context.Context, cutoffTS, endedTS int64) (int64, error) {
	res, err := s.db.NewUpdate().
		Model((*domain.Attempt)(nil)).
		Set("status = ?", domain.AttemptQuit).
		Set("ended_ts = ?", endedTS).
		Where("status = ?", domain.AttemptStarted).
		Where("started_ts < ?", cutoffTS).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("expire stale attempts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire stale attempts: %w", err)
	}
	return n, nil
}
