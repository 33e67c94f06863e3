package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TimestampLayout is the encoding used when writing timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Layouts accepted when reading timestamps. Zone-less values, as produced by
// HTML datetime-local inputs, are read in host local time.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Timestamp is a time.Time with tolerant decoding for persisted task data.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t, returning nil for the zero time. Values are held in
// UTC at millisecond precision so they survive an encode/decode cycle intact.
func NewTimestamp(t time.Time) *Timestamp {
	if t.IsZero() {
		return nil
	}
	return &Timestamp{Time: canonical(t)}
}

func canonical(t time.Time) time.Time {
	return t.Truncate(time.Millisecond).UTC()
}

// ParseTimestamp parses any of the accepted layouts. An empty string yields nil.
func ParseTimestamp(value string) (*Timestamp, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return NewTimestamp(t), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return NewTimestamp(t), nil
		}
	}
	return nil, fmt.Errorf("unrecognized time %q", value)
}

// Clone copies ts; nil stays nil.
func (ts *Timestamp) Clone() *Timestamp {
	if ts == nil {
		return nil
	}
	c := *ts
	return &c
}

// Same reports whether two optional timestamps denote the same instant.
func (ts *Timestamp) Same(o *Timestamp) bool {
	if ts == nil || o == nil {
		return ts == nil && o == nil
	}
	return ts.Time.Equal(o.Time)
}

func (ts Timestamp) String() string {
	return ts.Time.Format(TimestampLayout)
}

// MarshalJSON implements json.Marshaler.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.Time.Format(TimestampLayout))
}

// UnmarshalJSON implements json.Unmarshaler. null, "" and non-positive
// numbers leave ts zero; other numbers are read as Unix milliseconds.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] != '"' {
		var ms int64
		if err := json.Unmarshal(data, &ms); err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		if ms <= 0 {
			// unset numeric fields were stored as 0
			return nil
		}
		ts.Time = canonical(time.UnixMilli(ms))
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	if parsed != nil {
		ts.Time = parsed.Time
	}
	return nil
}

// MarshalYAML renders the same text as the JSON encoding.
func (ts Timestamp) MarshalYAML() (interface{}, error) {
	return ts.String(), nil
}

// UnmarshalYAML accepts the same text forms as UnmarshalJSON.
func (ts *Timestamp) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!null" {
		return nil
	}
	parsed, err := ParseTimestamp(value.Value)
	if err != nil {
		return err
	}
	if parsed != nil {
		ts.Time = parsed.Time
	}
	return nil
}
