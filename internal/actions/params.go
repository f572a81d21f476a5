package actions

import (
	"fmt"
	"time"
)

// Param readers for the free-form maps that survive CUE validation. The
// schemas guarantee presence and type for required keys, so a failure here
// means the caller skipped validation - it is reported, not assumed away.

func strParam(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing parameter %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q: expected string, got %T", key, v)
	}
	return s, nil
}

func optStrParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

func optBoolParam(params map[string]any, key string) bool {
	if v, ok := params[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func timeParam(params map[string]any, key string) (time.Time, error) {
	s, err := strParam(params, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parameter %q: %w", key, err)
	}
	return t, nil
}
