package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// Record is the emitted result of one run. Field order is the serialized key order.
type Record struct {
	URL             string `json:"url"`
	DurationSeconds int    `json:"duration_seconds"`
	StartedAt       string `json:"started_at"`
	EndedAt         string `json:"ended_at"`
	Transcript      string `json:"transcript"`
}

// NewRecord packages timing metadata and transcript text.
func NewRecord(url, transcript string, startedAt, endedAt time.Time, durationSeconds int) Record {
	return Record{
		URL:             url,
		DurationSeconds: durationSeconds,
		StartedAt:       startedAt.Format(time.RFC3339Nano),
		EndedAt:         endedAt.Format(time.RFC3339Nano),
		Transcript:      transcript,
	}
}

// MarshalIndented serializes the record with two-space indentation and without
// HTML escaping, so non-ASCII transcripts stay readable.
func (r Record) MarshalIndented() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
