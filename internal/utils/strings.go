package utils

import (
	"fmt"
	"strings"
)

// ParseCSV splits a comma-separated string and returns trimmed non-empty values.
// Returns nil for empty/whitespace-only input.
func ParseCSV(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	for _, v := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return nil
	}

	return result
}

// KeyValue is one entry of a "key=value" list
type KeyValue struct {
	Key   string
	Value string
}

// ParseKeyValueCSV parses "a=1,b=2" into ordered pairs. Keys must be unique
// and non-empty; the value is everything after the first '='.
func ParseKeyValueCSV(s string) ([]KeyValue, error) {
	items := ParseCSV(s)
	if len(items) == 0 {
		return nil, nil
	}

	pairs := make([]KeyValue, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		key, value, ok := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("malformed entry %q, expected key=value", item)
		}
		if seen[key] {
			return nil, fmt.Errorf("duplicate key %q", key)
		}
		seen[key] = true
		pairs = append(pairs, KeyValue{Key: key, Value: value})
	}

	return pairs, nil
}
