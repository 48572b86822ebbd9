package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority normalizes a priority label. Unknown labels are reported as false.
func ParsePriority(s string) (Priority, bool) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, true
	default:
		return p, false
	}
}

func (p *Priority) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("priority: %w", err)
	}
	parsed, _ := ParsePriority(raw)
	*p = parsed
	return nil
}

// Entities maps entity names to values. The classifier may return numbers or
// other scalars as values; they are kept in their JSON text form.
type Entities map[string]string

func (e *Entities) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("extracted_entities: %w", err)
	}
	if raw == nil {
		*e = nil
		return nil
	}
	out := make(Entities, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		out[k] = string(v)
	}
	*e = out
	return nil
}

// Clone returns an independent copy.
func (e Entities) Clone() Entities {
	if e == nil {
		return nil
	}
	out := make(Entities, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Timestamp accepts RFC 3339 as well as the naive ISO-8601 form emitted by
// backends that store timestamps without a zone (treated as UTC).
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if raw == nil || *raw == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, *raw); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", *raw)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

type Ticket struct {
	ID                   int64     `json:"id"`
	Title                string    `json:"title"`
	Description          string    `json:"description"`
	Category             string    `json:"category"`
	Priority             Priority  `json:"priority"`
	Status               string    `json:"status"`
	ExtractedEntities    Entities  `json:"extracted_entities"`
	Rating               *int      `json:"rating"`
	FirstResponseSeconds *float64  `json:"first_response_seconds"`
	CreatedAt            Timestamp `json:"created_at"`
}

// Clone returns a deep copy so callers cannot mutate repository state.
func (t Ticket) Clone() Ticket {
	out := t
	out.ExtractedEntities = t.ExtractedEntities.Clone()
	if t.Rating != nil {
		r := *t.Rating
		out.Rating = &r
	}
	if t.FirstResponseSeconds != nil {
		s := *t.FirstResponseSeconds
		out.FirstResponseSeconds = &s
	}
	return out
}

type CreateTicketRequest struct {
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Category          string   `json:"category"`
	Priority          Priority `json:"priority"`
	ExtractedEntities Entities `json:"extracted_entities"`
}

type ReviewRequest struct {
	Rating int `json:"rating"`
}

type PredictRequest struct {
	Text string `json:"text"`
}

type Prediction struct {
	Category          string   `json:"category"`
	Priority          Priority `json:"priority"`
	ExtractedEntities Entities `json:"extracted_entities"`
}
