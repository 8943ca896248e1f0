package domain

import (
	"path/filepath"
	"strings"
)

// Segment is a time-bounded slice of the canonical artifact, always below the size ceiling.
type Segment struct {
	Index     int     `json:"index"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	SizeBytes int64   `json:"sizeBytes"`
	FilePath  string  `json:"filePath"`
}

// Duration is the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.EndTime - s.StartTime
}

// TranscriptResult is the text produced for one segment or for a whole artifact.
type TranscriptResult struct {
	Text             string  `json:"text"`
	DetectedLanguage string  `json:"language"`
	DurationSeconds  float64 `json:"duration"`
}

// Merge appends a segment result: non-empty texts joined by a single space, durations
// summed, language taken from the latest segment.
func (r TranscriptResult) Merge(next TranscriptResult) TranscriptResult {
	text := strings.TrimSpace(next.Text)
	merged := TranscriptResult{
		Text:             r.Text,
		DetectedLanguage: r.DetectedLanguage,
		DurationSeconds:  r.DurationSeconds + next.DurationSeconds,
	}
	if text != "" {
		if merged.Text == "" {
			merged.Text = text
		} else {
			merged.Text += " " + text
		}
	}
	if next.DetectedLanguage != "" {
		merged.DetectedLanguage = next.DetectedLanguage
	}
	return merged
}

// FormatOf returns the lower-cased extension of path without the dot.
func FormatOf(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}
