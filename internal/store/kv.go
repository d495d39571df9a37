package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// SetItem stores value under key in the synchronous tier.
// Overwrites any previous value. The write is atomic per key only;
// updates spanning several keys are separate writes.
func (s *Store) SetItem(key string, value any) error {
	data, err := encodeValue(value)
	if err != nil {
		return fmt.Errorf("set item %q: %w", key, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, data, s.stamp())
	if err != nil {
		return fmt.Errorf("set item %q: %w", key, err)
	}
	return nil
}

// GetItem decodes the value stored under key into dst.
//
// Returns false when the key is missing, the stored JSON is corrupt, or the
// store cannot be read. It never returns an error: absent and unreadable
// data are the same thing to callers.
func (s *Store) GetItem(key string, dst any) bool {
	var data string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false
	}
	if err != nil {
		slog.Warn("store read failed", "key", key, "error", err)
		return false
	}

	if err := decodeValue(data, dst); err != nil {
		slog.Warn("discarding corrupt stored value", "key", key, "error", err)
		return false
	}
	return true
}

// SetRaw stores an already-serialized string without encoding it.
// Used to simulate data written by older clients or partial writes.
func (s *Store) SetRaw(key, raw string) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, raw, s.stamp())
	if err != nil {
		return fmt.Errorf("set raw %q: %w", key, err)
	}
	return nil
}

// RemoveItem deletes key. Removing a missing key is not an error.
func (s *Store) RemoveItem(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove item %q: %w", key, err)
	}
	return nil
}

// Keys returns every key that starts with prefix, sorted.
func (s *Store) Keys(prefix string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT key FROM kv
		WHERE substr(key, 1, length(?)) = ?
		ORDER BY key COLLATE BINARY ASC
	`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

// RemovePrefix deletes every key starting with prefix and reports how many
// were removed.
func (s *Store) RemovePrefix(prefix string) (int, error) {
	if strings.TrimSpace(prefix) == "" {
		return 0, fmt.Errorf("remove prefix: empty prefix")
	}
	res, err := s.db.Exec(`DELETE FROM kv WHERE substr(key, 1, length(?)) = ?`, prefix, prefix)
	if err != nil {
		return 0, fmt.Errorf("remove prefix %q: %w", prefix, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("remove prefix %q: rows affected: %w", prefix, err)
	}
	return int(n), nil
}

// Clear empties the synchronous tier. The submissions backlog is kept.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM kv`); err != nil {
		return fmt.Errorf("clear kv: %w", err)
	}
	return nil
}
