package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Envelope is a queued submission awaiting delivery.
type Envelope struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Attempts   int             `json:"attempts"`
}

// Enqueue appends env to the submissions backlog.
// Fails without side effects if the id already exists or the store is
// unavailable.
func (s *Store) Enqueue(ctx context.Context, env Envelope) error {
	if env.ID == "" {
		return fmt.Errorf("enqueue: envelope id is required")
	}
	if env.Attempts < 0 {
		return fmt.Errorf("enqueue: attempts must be >= 0, got %d", env.Attempts)
	}
	payload := string(env.Payload)
	if payload == "" {
		payload = "null"
	}
	if !json.Valid([]byte(payload)) {
		return fmt.Errorf("enqueue: payload is not valid JSON")
	}
	enqueuedAt := env.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = s.now()
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO submissions (id, payload, enqueued_at, attempts)
			VALUES (?, ?, ?, ?)
		`, env.ID, payload, enqueuedAt.UnixMilli(), env.Attempts)
		return err
	})
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// List returns all queued envelopes in FIFO order.
// Returns an empty slice (not nil) when the backlog is empty.
func (s *Store) List(ctx context.Context) ([]Envelope, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payload, enqueued_at, attempts
		FROM submissions
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	envs := []Envelope{}
	for rows.Next() {
		var (
			env     Envelope
			payload string
			at      int64
		)
		if err := rows.Scan(&env.ID, &payload, &at, &env.Attempts); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		env.Payload = json.RawMessage(payload)
		env.EnqueuedAt = time.UnixMilli(at).UTC()
		envs = append(envs, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return envs, nil
}

// Remove deletes the envelope with the given id.
// Returns ErrNotFound if it was not queued.
func (s *Store) Remove(ctx context.Context, id string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM submissions WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove submission %s: %w", id, err)
	}
	return nil
}

// MarkAttempt increments the attempt counter of an envelope and returns the
// new count.
func (s *Store) MarkAttempt(ctx context.Context, id string) (int, error) {
	var attempts int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE submissions SET attempts = attempts + 1 WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return tx.QueryRowContext(ctx, `SELECT attempts FROM submissions WHERE id = ?`, id).Scan(&attempts)
	})
	if err != nil {
		return 0, fmt.Errorf("mark attempt %s: %w", id, err)
	}
	return attempts, nil
}

// Count returns the number of queued envelopes.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return n, nil
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
