package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// encodeValue converts a Go value to JSON TEXT for storage.
// HTML escaping is disabled so stored text matches what callers wrote.
func encodeValue(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode value: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// decodeValue parses JSON TEXT into dst.
func decodeValue(data string, dst any) error {
	if data == "" {
		return fmt.Errorf("decode value: empty")
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	return nil
}
