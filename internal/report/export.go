package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
)

// export renders all four tables into one CSV file with section headers.
func (s *Service) export(ctx context.Context) (Result, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	users, err := s.store.ExportUsers(ctx)
	if err != nil {
		return Result{}, err
	}
	buf.WriteString("=== USERS ===\n")
	_ = w.Write([]string{"user_id", "username", "full_name", "first_seen_ts", "last_seen_ts"})
	for _, u := range users {
		_ = w.Write([]string{
			strconv.FormatInt(u.UserID, 10), u.Username, u.FullName,
			strconv.FormatInt(u.FirstSeenTS, 10), strconv.FormatInt(u.LastSeenTS, 10),
		})
	}
	w.Flush()

	attempts, err := s.store.ExportAttempts(ctx)
	if err != nil {
		return Result{}, err
	}
	buf.WriteString("\n=== ATTEMPTS ===\n")
	_ = w.Write([]string{"id", "user_id", "status", "started_ts", "ended_ts", "quiz_size", "wrong_penalty_ms", "wrong_count", "penalty_ms", "elapsed_ms", "total_ms"})
	for _, a := range attempts {
		_ = w.Write([]string{
			strconv.FormatInt(a.ID, 10), strconv.FormatInt(a.UserID, 10), a.Status,
			strconv.FormatInt(a.StartedTS, 10), optInt64(a.EndedTS),
			strconv.Itoa(a.QuizSize), strconv.Itoa(a.WrongPenaltyMS),
			strconv.Itoa(a.WrongCount), strconv.Itoa(a.PenaltyMS),
			optInt(a.ElapsedMS), optInt(a.TotalMS),
		})
	}
	w.Flush()

	answers, err := s.store.ExportAnswers(ctx)
	if err != nil {
		return Result{}, err
	}
	buf.WriteString("\n=== ANSWERS ===\n")
	_ = w.Write([]string{"id", "attempt_id", "user_id", "ts", "pos", "question_index", "option_index", "is_correct", "penalty_ms_after", "total_ms_now"})
	for _, a := range answers {
		_ = w.Write([]string{
			strconv.FormatInt(a.ID, 10), strconv.FormatInt(a.AttemptID, 10), strconv.FormatInt(a.UserID, 10),
			strconv.FormatInt(a.TS, 10), strconv.Itoa(a.Pos),
			strconv.Itoa(a.QuestionIndex), strconv.Itoa(a.OptionIndex),
			strconv.FormatBool(a.IsCorrect), strconv.Itoa(a.PenaltyMSAfter), strconv.Itoa(a.TotalMSNow),
		})
	}
	w.Flush()

	events, err := s.store.ExportEvents(ctx)
	if err != nil {
		return Result{}, err
	}
	buf.WriteString("\n=== EVENTS ===\n")
	_ = w.Write([]string{"id", "ts", "user_id", "event_type", "payload_json"})
	for _, e := range events {
		_ = w.Write([]string{
			strconv.FormatInt(e.ID, 10), strconv.FormatInt(e.TS, 10),
			strconv.FormatInt(e.UserID, 10), e.EventType, e.PayloadJSON,
		})
	}
	w.Flush()

	name := fmt.Sprintf("quiz_stats_export_%d.csv", s.now().Unix())
	return Result{
		Text: "Statistics export",
		File: &File{Name: name, Data: buf.Bytes()},
	}, nil
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func optInt64(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
