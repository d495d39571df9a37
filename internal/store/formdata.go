package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// SaveFormData upserts the whole-form record for formID.
func (s *Store) SaveFormData(ctx context.Context, formID string, data map[string]string) error {
	if formID == "" {
		return fmt.Errorf("save form data: form id is required")
	}
	encoded, err := encodeValue(data)
	if err != nil {
		return fmt.Errorf("save form data %s: %w", formID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO form_data (form_id, data, saved_at)
		VALUES (?, ?, ?)
		ON CONFLICT(form_id) DO UPDATE SET data = excluded.data, saved_at = excluded.saved_at
	`, formID, encoded, s.stamp())
	if err != nil {
		return fmt.Errorf("save form data %s: %w", formID, err)
	}
	return nil
}

// LoadFormData returns the record for formID and whether one was found.
// A corrupt record is reported as absent.
func (s *Store) LoadFormData(ctx context.Context, formID string) (map[string]string, bool, error) {
	var encoded string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM form_data WHERE form_id = ?`, formID).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load form data %s: %w", formID, err)
	}

	data := map[string]string{}
	if err := decodeValue(encoded, &data); err != nil {
		slog.Warn("discarding corrupt stored value", "form", formID, "error", err)
		return nil, false, nil
	}
	return data, true, nil
}

// DeleteFormData removes the record for formID.
func (s *Store) DeleteFormData(ctx context.Context, formID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM form_data WHERE form_id = ?`, formID); err != nil {
		return fmt.Errorf("delete form data %s: %w", formID, err)
	}
	return nil
}
