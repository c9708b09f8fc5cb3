// Package redact masks PII in payloads before they are persisted to the
// trace log or published to subscribers. Redaction is value-to-value: inputs
// are never mutated in place, and applying it twice yields the same result
// as applying it once.
package redact

import "strings"

// DefaultPIIKeys are the keys automatically redacted wherever they appear.
var DefaultPIIKeys = []string{
	"name", "email", "phone", "ssn", "social_security",
	"address", "date_of_birth", "dob", "passport",
	"credit_card", "card_number", "pan", "cvv", "password",
	"cardholder", "device_id",
}

// MaskValue replaces a value with "***". Numbers and bools are preserved.
func MaskValue(v any) any {
	switch v.(type) {
	case int, int64, float64, bool:
		return v
	case nil:
		return nil
	default:
		return "***"
	}
}

// Map redacts PII keys in a flat map, returning a new map.
func Map(data map[string]any, keys []string) map[string]any {
	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[strings.ToLower(k)] = true
	}

	result := make(map[string]any, len(data))
	for k, v := range data {
		if keySet[strings.ToLower(k)] {
			result[k] = MaskValue(v)
		} else {
			result[k] = v
		}
	}
	return result
}

// Payload walks a payload of nested maps and slices and masks every default
// PII key at any depth. Scalars pass through unchanged. The input is copied,
// never mutated.
func Payload(v any) any {
	return walk(v, keySet())
}

func keySet() map[string]bool {
	set := make(map[string]bool, len(DefaultPIIKeys))
	for _, k := range DefaultPIIKeys {
		set[k] = true
	}
	return set
}

func walk(v any, keys map[string]bool) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if keys[strings.ToLower(k)] {
				out[k] = MaskValue(inner)
			} else {
				out[k] = walk(inner, keys)
			}
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = walk(inner, keys)
		}
		return out
	default:
		return v
	}
}
