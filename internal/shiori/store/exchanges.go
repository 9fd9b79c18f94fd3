package store

import (
	"context"
	"fmt"
	"time"
)

// Exchange outcomes.
const (
	OutcomeReplied    = "replied"
	OutcomeIgnored    = "ignored"
	OutcomeNoText     = "no_text"
	OutcomeUnresolved = "unresolved"
	OutcomeNLUFailed  = "nlu_failed"
	OutcomeSendFailed = "send_failed"
)

// Exchange records what happened to one inbound message.
type Exchange struct {
	ID           int64     `db:"id"`
	CreatedAt    time.Time `db:"created_at"`
	TraceID      string    `db:"trace_id"`
	SenderID     string    `db:"sender_id"`
	Distribution string    `db:"distribution"`
	ThreadID     string    `db:"thread_id"`
	Action       string    `db:"action"`
	Outcome      string    `db:"outcome"`
	ErrorMessage string    `db:"error_message"`
}

// RecordExchange inserts ex. CreatedAt defaults to now.
func (s *Store) RecordExchange(ctx context.Context, ex Exchange) error {
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO exchanges (created_at, trace_id, sender_id, distribution, thread_id, action, outcome, error_message)
		VALUES (:created_at, :trace_id, :sender_id, :distribution, :thread_id, :action, :outcome, :error_message)
	`, ex)
	if err != nil {
		return fmt.Errorf("failed to record exchange: %w", err)
	}
	return nil
}

// RecentExchanges returns the newest limit exchanges, newest first.
func (s *Store) RecentExchanges(ctx context.Context, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Exchange
	if err := s.db.SelectContext(ctx, &out, `
		SELECT id, created_at, trace_id, sender_id, distribution, thread_id, action, outcome, error_message
		FROM exchanges
		ORDER BY id DESC
		LIMIT ?
	`, limit); err != nil {
		return nil, fmt.Errorf("failed to query exchanges: %w", err)
	}
	return out, nil
}

// ExchangeCount returns the number of recorded exchanges.
func (s *Store) ExchangeCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM exchanges"); err != nil {
		return 0, fmt.Errorf("failed to count exchanges: %w", err)
	}
	return n, nil
}
