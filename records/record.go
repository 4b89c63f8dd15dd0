package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for record store operations.
var (
	ErrNotConfigured = errors.New("records: storage is not configured")
	ErrMissingID     = errors.New("records: record id is required")
	ErrMissingTag    = errors.New("records: task tag is required")
	ErrNotFound      = errors.New("records: record not found")
	ErrInvalidRange  = errors.New("records: range end precedes start")
)

// Record is a conversation snapshot.
type Record struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Category  string          `json:"category,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// UnmarshalJSON accepts the timestamp either as an RFC 3339 string or as
// Unix milliseconds, which is what browser clients send.
func (r *Record) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID        string          `json:"id"`
		Timestamp json.RawMessage `json:"timestamp"`
		Category  string          `json:"category"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	ts, err := parseTimestamp(wire.Timestamp)
	if err != nil {
		return fmt.Errorf("records: timestamp: %w", err)
	}

	*r = Record{
		ID:        wire.ID,
		Timestamp: ts,
		Category:  wire.Category,
		Payload:   wire.Payload,
	}
	return nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return time.Time{}, nil
	}
	if strings.HasPrefix(s, `"`) {
		var t time.Time
		if err := json.Unmarshal(raw, &t); err != nil {
			return time.Time{}, err
		}
		return t.UTC(), nil
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}

// Validate checks that the record can be stored.
func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrMissingID
	}
	return nil
}

// Task is a persisted deferred-sync registration.
type Task struct {
	Tag          string
	RegisteredAt time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}
