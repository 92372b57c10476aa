package builtin

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Coercion helpers over decoded JSON values. Parsing is strict: a value that
// does not already have the right shape is an error, never repaired.

// AsFloat converts v to float64.
// Accepted: json.Number, float64, float32, int, int64 and numeric strings.
func AsFloat(v any) (float64, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Float64()
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", x)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float", v)
	}
}

// AsInt converts v to int64.
//
// Numbers with a fractional part are truncated toward zero; strings must be
// plain base-10 integers.
func AsInt(v any) (int64, error) {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", string(x))
		}
		return truncate(f)
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		return truncate(x)
	case float32:
		return truncate(float64(x))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("not an integer: %q", x)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to int", v)
	}
}

func truncate(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("number out of range: %v", f)
	}
	return int64(f), nil
}

// AsString renders scalar v as a string. nil and composite values are errors.
func AsString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return "", fmt.Errorf("cannot convert %T to string", v)
	}
}

// Truthy reports whether v carries a value.
//
// nil, false, empty strings, empty collections and numeric zero are false.
// A string holding a number is judged by the number, so "0" is false.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f != 0
		}
		return true
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	case float64:
		return x != 0
	case float32:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}
