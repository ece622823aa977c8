package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"timed-quiz-bot/internal/bank"
	"timed-quiz-bot/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// BankLoader loads question bank JSONB from Postgres.
type BankLoader struct {
	pool *pgxpool.Pool
}

func NewBankLoader(pool *pgxpool.Pool) *BankLoader {
	return &BankLoader{pool: pool}
}

func (l *BankLoader) LoadBank(ctx context.Context, bankID string) (bank.Bank, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM question_banks WHERE id=$1`, bankID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return bank.Bank{}, domain.ErrBankNotFound
	}
	if err != nil {
		return bank.Bank{}, fmt.Errorf("load bank: %w", err)
	}
	var b bank.Bank
	if err := json.Unmarshal(raw, &b); err != nil {
		return bank.Bank{}, fmt.Errorf("unmarshal bank: %w", err)
	}
	b.ID = bankID
	return b, nil
}
