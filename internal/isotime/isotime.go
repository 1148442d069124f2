// Package isotime provides a time.Time wrapper for the JSON state files.
//
// Timestamps are written as RFC3339Nano in UTC. Reading also accepts the naive
// ISO-8601 form without offset ("2006-01-02T15:04:05.999999"), interpreted in local time,
// which older state files contain.
package isotime

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Time marshals as an ISO-8601 string.
type Time struct {
	time.Time
}

// Of wraps t.
func Of(t time.Time) Time { return Time{Time: t} }

// Parse parses RFC3339 (with or without fraction) or a naive local timestamp.
func Parse(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
}

// MarshalJSON implements json.Marshaler.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`null`), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Time) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if strings.TrimSpace(raw) == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}
