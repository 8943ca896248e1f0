package domain

import (
	"time"
)

// MeetingStatus tracks a transcription job run by the service.
type MeetingStatus string

const (
	StatusInitializing MeetingStatus = "initializing"
	StatusJoining      MeetingStatus = "joining"
	StatusRecording    MeetingStatus = "recording"
	StatusTranscribing MeetingStatus = "transcribing"
	StatusCompleted    MeetingStatus = "completed"
	StatusFailed       MeetingStatus = "failed"
)

// MeetingRequest describes one run: which call to join and how to transcribe it.
type MeetingRequest struct {
	MeetingURL  string `json:"url"`
	DisplayName string `json:"displayName,omitempty"`
	Language    string `json:"language,omitempty"`
	KeepAudio   bool   `json:"keepAudio,omitempty"`
	// WaitForEnd stops on end-of-call detection; otherwise recording runs until cancelled.
	WaitForEnd bool `json:"waitForEnd"`
}

// MeetingSession is the service's view of a running or finished job.
type MeetingSession struct {
	ID         string        `json:"sessionId"`
	MeetingURL string        `json:"meetingUrl"`
	Status     MeetingStatus `json:"status"`
	StartTime  *time.Time    `json:"startTime,omitempty"`
	EndTime    *time.Time    `json:"endTime,omitempty"`
	FilePath   string        `json:"filePath,omitempty"`
	Duration   string        `json:"duration,omitempty"`
	Error      string        `json:"error,omitempty"`
	Result     *Record       `json:"result,omitempty"`
}

// CalculateDuration formats the elapsed recording time.
func (s *MeetingSession) CalculateDuration() {
	if s.StartTime != nil && s.EndTime != nil {
		s.Duration = s.EndTime.Sub(*s.StartTime).Round(time.Second).String()
	}
}

// Done reports whether the job reached a terminal status.
func (s *MeetingSession) Done() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}
