package util

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Common timeout durations.
const (
	DefaultConnectTimeout = 3 * time.Second
	DefaultPublishTimeout = 10 * time.Second
)

// WriteJSONFile writes a JSON object to a file, creating parent directories
// if needed.
func WriteJSONFile(path string, v any) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// NormalizeURL trims whitespace and a trailing slash so URLs can be joined
// with path fragments without doubling separators.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	return strings.TrimRight(raw, "/")
}
