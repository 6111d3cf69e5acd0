package dispatch

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/aandersen2323/filemaker-mcp-server/internal/toolerr"
)

// Args are the untyped arguments of one tool call, as decoded from JSON.
type Args map[string]any

// String returns the trimmed string at key. A missing key is "", a value of
// another type is a validation error.
func (a Args) String(op, key string) (string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", toolerr.Validation(op, nil, "%s must be a string", key)
	}
	return strings.TrimSpace(s), nil
}

// Required is String with an empty result rejected.
func (a Args) Required(op, key string) (string, error) {
	s, err := a.String(op, key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", toolerr.Validation(op, nil, "%s is required", key)
	}
	return s, nil
}

// Text is Required without trimming: the value is returned exactly as sent.
func (a Args) Text(op, key string) (string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", toolerr.Validation(op, nil, "%s is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", toolerr.Validation(op, nil, "%s must be a string", key)
	}
	if strings.TrimSpace(s) == "" {
		return "", toolerr.Validation(op, nil, "%s is required", key)
	}
	return s, nil
}

// FirstString returns the first non-empty string among keys.
func (a Args) FirstString(op string, keys ...string) (string, error) {
	for _, k := range keys {
		s, err := a.String(op, k)
		if err != nil || s != "" {
			return s, err
		}
	}
	return "", nil
}

// Int returns the integer at key, or def when the key is absent.
func (a Args) Int(op, key string, def int) (int, error) {
	switch v := a[key].(type) {
	case nil:
		return def, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, toolerr.Validation(op, nil, "%s must be an integer", key)
		}
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, toolerr.Validation(op, nil, "%s must be an integer", key)
		}
		return int(n), nil
	default:
		return 0, toolerr.Validation(op, nil, "%s must be an integer", key)
	}
}

// Object returns the JSON object at key. A missing key is nil.
func (a Args) Object(op, key string) (map[string]any, error) {
	switch v := a[key].(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	case string:
		return nil, toolerr.Validation(op, nil, "%s must be an object of column to value, not a SQL string", key)
	default:
		return nil, toolerr.Validation(op, nil, "%s must be an object", key)
	}
}
