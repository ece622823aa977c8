package domain

import "github.com/uptrace/bun"

// Attempt status values. An attempt is finalized exactly once; finished and
// quit rows are immutable afterwards.
const (
	AttemptStarted  = "started"
	AttemptFinished = "finished"
	AttemptQuit     = "quit"
)

// Event types written by the engine. Transport layers may log additional
// free-form tags (menu_open, theory_open, ...); the column is not an enum.
const (
	EventQuizStart      = "quiz_start"
	EventAttemptStarted = "attempt_started"
	EventAttemptEnded   = "attempt_ended"
)

// Identity is the chat-side identity of the person acting.
type Identity struct {
	ID       int64
	Username string
	FullName string
}

// DisplayName prefers the handle, falls back to the full name.
func (id Identity) DisplayName() string {
	if id.Username != "" {
		return id.Username
	}
	return id.FullName
}

// Question is one immutable multiple-choice entry in the bank. The option
// count varies per question (2-4 in practice); CorrectIndex points into
// Options.
type Question struct {
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	HintWrong    string   `json:"hintWrong"`
	ExplainRight string   `json:"explainRight"`
	ImageRef     string   `json:"imageRef,omitempty"`
}

// User is the persisted record of anyone who ever interacted with the bot.
type User struct {
	bun.BaseModel `bun:"table:users"`

	UserID      int64  `bun:"user_id,pk"`
	Username    string `bun:"username"`
	FullName    string `bun:"full_name"`
	FirstSeenTS int64  `bun:"first_seen_ts,notnull"`
	LastSeenTS  int64  `bun:"last_seen_ts,notnull"`
}

// Event is one append-only log row. PayloadJSON is free-form JSON or empty.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID          int64  `bun:"id,pk,autoincrement"`
	TS          int64  `bun:"ts,notnull"`
	UserID      int64  `bun:"user_id,notnull"`
	EventType   string `bun:"event_type,notnull"`
	PayloadJSON string `bun:"payload_json"`
}

// Attempt is one quiz run by one user. EndedTS, ElapsedMS and TotalMS stay
// unset until the attempt is finalized; once set, TotalMS = ElapsedMS +
// PenaltyMS.
type Attempt struct {
	bun.BaseModel `bun:"table:attempts"`

	ID             int64  `bun:"id,pk,autoincrement"`
	UserID         int64  `bun:"user_id,notnull"`
	StartedTS      int64  `bun:"started_ts,notnull"`
	EndedTS        *int64 `bun:"ended_ts"`
	Status         string `bun:"status,notnull"`
	QuizSize       int    `bun:"quiz_size,notnull"`
	WrongPenaltyMS int    `bun:"wrong_penalty_ms,notnull"`
	WrongCount     int    `bun:"wrong_count,notnull"`
	PenaltyMS      int    `bun:"penalty_ms,notnull"`
	ElapsedMS      *int   `bun:"elapsed_ms"`
	TotalMS        *int   `bun:"total_ms"`
}

// Answer is one submitted choice within one attempt, write-once and ordered
// by Pos. PenaltyMSAfter and TotalMSNow snapshot the timing right after the
// answer was applied.
type Answer struct {
	bun.BaseModel `bun:"table:answers"`

	ID             int64 `bun:"id,pk,autoincrement"`
	AttemptID      int64 `bun:"attempt_id,notnull"`
	UserID         int64 `bun:"user_id,notnull"`
	TS             int64 `bun:"ts,notnull"`
	Pos            int   `bun:"pos,notnull"`
	QuestionIndex  int   `bun:"question_index,notnull"`
	OptionIndex    int   `bun:"option_index,notnull"`
	IsCorrect      bool  `bun:"is_correct,notnull"`
	PenaltyMSAfter int   `bun:"penalty_ms_after,notnull"`
	TotalMSNow     int   `bun:"total_ms_now,notnull"`
}

// QuestionView is what the router renders for the current question.
type QuestionView struct {
	Position      int      `json:"position"` // 0-based cursor into the order
	QuizSize      int      `json:"quizSize"`
	QuestionIndex int      `json:"questionIndex"` // echoed back in submit_answer
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	ImageRef      string   `json:"imageRef,omitempty"`
	TotalMSNow    int      `json:"totalMsNow"`
	PenaltyMS     int      `json:"penaltyMs"`
}

// FinishSummary describes a finalized attempt for display.
type FinishSummary struct {
	Status     string `json:"status"`
	TotalMS    int    `json:"totalMs"`
	ElapsedMS  int    `json:"elapsedMs"`
	PenaltyMS  int    `json:"penaltyMs"`
	WrongCount int    `json:"wrongCount"`
}

// SubmitResult is the outcome of one submit_answer action. Exactly one of
// Next or Finished is set when Correct; on a wrong answer Next re-presents
// the same question.
type SubmitResult struct {
	Correct  bool           `json:"correct"`
	Feedback string         `json:"feedback"` // explanation when correct, hint when wrong
	Next     *QuestionView  `json:"next,omitempty"`
	Finished *FinishSummary `json:"finished,omitempty"`
}

// LeaderboardEntry is one ranked row: a user's best (minimum) total over
// their finished attempts.
type LeaderboardEntry struct {
	Name        string `json:"name"`
	BestTotalMS int    `json:"bestTotalMs"`
}

// TheoryPage is one page of the configured theory text.
type TheoryPage struct {
	Page  int    `json:"page"`
	Pages int    `json:"pages"`
	Text  string `json:"text"`
}

// MenuInfo describes the quiz parameters shown on the main screen.
type MenuInfo struct {
	QuizSize  int `json:"quizSize"`
	PenaltyMS int `json:"penaltyMs"`
}

// OverviewStats backs the admin overview report. Averages are nil when no
// finished attempts exist yet.
type OverviewStats struct {
	Users           int
	Attempts        int
	Finished        int
	Quit            int
	AvgTotalMS      *float64
	AvgWrongPerQuiz *float64
}

// AttemptSummary is one row of the recent-attempts report, joined with the
// user's display name.
type AttemptSummary struct {
	ID         int64
	Name       string
	Status     string
	TotalMS    *int
	WrongCount int
	PenaltyMS  int
}

// QuestionDifficulty ranks a bank entry by how often it was answered wrong.
type QuestionDifficulty struct {
	QuestionIndex int
	Wrong         int
	Total         int
}

// EventSummary is one row of the recent-events report.
type EventSummary struct {
	TS        int64
	Name      string
	EventType string
}
