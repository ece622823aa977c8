package bank

import (
	"context"
	"errors"
	"fmt"

	"timed-quiz-bot/internal/domain"
)

// Bank is the static ordered catalog of questions a quiz run samples from.
type Bank struct {
	ID        string            `json:"id"`
	Questions []domain.Question `json:"questions"`
}

// Size returns the number of questions in the bank.
func (b Bank) Size() int {
	return len(b.Questions)
}

// Question returns the entry at index, or false when out of range.
func (b Bank) Question(index int) (domain.Question, bool) {
	if index < 0 || index >= len(b.Questions) {
		return domain.Question{}, false
	}
	return b.Questions[index], true
}

// Validate checks the bank can serve a quiz of quizSize questions sampled
// without replacement, and that every entry is well-formed.
func (b Bank) Validate(quizSize int) error {
	if len(b.Questions) < quizSize {
		return fmt.Errorf("%w: bank %q has %d questions, quiz size is %d",
			domain.ErrBankTooSmall, b.ID, len(b.Questions), quizSize)
	}
	for i, q := range b.Questions {
		if len(q.Options) < 2 {
			return fmt.Errorf("question %d in bank %q has %d options, need at least 2", i, b.ID, len(q.Options))
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			return fmt.Errorf("question %d in bank %q has correct index %d out of range", i, b.ID, q.CorrectIndex)
		}
	}
	return nil
}

// Loader fetches bank content from a backing store.
type Loader interface {
	LoadBank(ctx context.Context, bankID string) (Bank, error)
}

// StaticLoader serves banks from an in-memory map (demos and tests).
type StaticLoader struct {
	banks map[string]Bank
}

func NewStaticLoader(banks map[string]Bank) *StaticLoader {
	return &StaticLoader{banks: banks}
}

func (l *StaticLoader) LoadBank(_ context.Context, bankID string) (Bank, error) {
	if b, ok := l.banks[bankID]; ok {
		return b, nil
	}
	return Bank{}, domain.ErrBankNotFound
}

// FallbackLoader tries the primary loader and falls back when the bank does
// not exist there yet (fresh database, built-in bank still in code).
type FallbackLoader struct {
	primary  Loader
	fallback Loader
}

func NewFallbackLoader(primary, fallback Loader) *FallbackLoader {
	return &FallbackLoader{primary: primary, fallback: fallback}
}

func (l *FallbackLoader) LoadBank(ctx context.Context, bankID string) (Bank, error) {
	b, err := l.primary.LoadBank(ctx, bankID)
	if errors.Is(err, domain.ErrBankNotFound) {
		return l.fallback.LoadBank(ctx, bankID)
	}
	return b, err
}
