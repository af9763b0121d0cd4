// Package normalizer converts raw provider webhook payloads into the
// canonical NormalizedPaymentEvent. Mapping is pure and total: malformed or
// missing fields become zero values, never errors.
package normalizer

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// Parse decodes a raw payload into a generic envelope. Invalid JSON yields
// an empty envelope, matching the never-throw contract of the extractors.
func Parse(raw []byte) map[string]any {
	return decode(raw)
}

func decode(raw []byte) map[string]any {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return map[string]any{}
	}
	return payload
}

func getMap(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	child, _ := m[key].(map[string]any)
	return child
}

func getString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// getInt64 reads an integer field. JSON numbers decode as float64; anything
// non-integral or non-finite is treated as absent.
func getInt64(m map[string]any, key string) *int64 {
	if m == nil {
		return nil
	}
	f, ok := m[key].(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil
	}
	v := int64(f)
	return &v
}

func getInt(m map[string]any, key string) *int {
	v := getInt64(m, key)
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}

// firstList returns the first element of an array field, when it is an
// object.
func firstOfList(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	list, _ := m[key].([]any)
	if len(list) == 0 {
		return nil
	}
	first, _ := list[0].(map[string]any)
	return first
}

func upper(s string) string {
	return strings.ToUpper(s)
}

func parseUnixSeconds(m map[string]any, key string) *time.Time {
	secs := getInt64(m, key)
	if secs == nil {
		return nil
	}
	t := time.Unix(*secs, 0).UTC()
	return &t
}

func parseTimestamp(m map[string]any, keys ...string) *time.Time {
	for _, key := range keys {
		s := getString(m, key)
		if s == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				utc := t.UTC()
				return &utc
			}
		}
	}
	return nil
}
