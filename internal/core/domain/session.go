package domain

import (
	"time"
)

// SessionState is the lifecycle position of a live call as inferred from probe polls.
type SessionState string

const (
	StateJoining            SessionState = "joining"
	StateInWaitingRoom      SessionState = "in_waiting_room"
	StateConnectedAlone     SessionState = "connected_alone"
	StateConnectedWithPeers SessionState = "connected_with_peers"
	StateEnded              SessionState = "ended"
)

// UnknownParticipants is reported when the participant count cannot be read from the page.
const UnknownParticipants = -1

// CallStatus is a single probe reading. It is fetched fresh on every poll.
type CallStatus struct {
	ConnectionCount   int
	AudioTrackCount   int
	ParticipantCount  int
	AudioContextState string
	ChunksRecorded    int
}

// RecordingArtifact is the captured call audio on disk.
type RecordingArtifact struct {
	Path      string
	Format    string // container tag, e.g. "webm" or "mp3"
	StartedAt time.Time
	EndedAt   time.Time
}

// SessionResult is what the lifecycle controller hands to transcription.
type SessionResult struct {
	ArtifactPath    string    `json:"artifactPath"`
	StartedAt       time.Time `json:"startedAt"`
	EndedAt         time.Time `json:"endedAt"`
	DurationSeconds int       `json:"durationSeconds"`
	Interrupted     bool      `json:"interrupted,omitempty"`
}

// NewSessionResult computes the whole-second duration between the recording bounds.
func NewSessionResult(path string, startedAt, endedAt time.Time) SessionResult {
	duration := int(endedAt.Sub(startedAt) / time.Second)
	if duration < 0 {
		duration = 0
	}
	return SessionResult{
		ArtifactPath:    path,
		StartedAt:       startedAt,
		EndedAt:         endedAt,
		DurationSeconds: duration,
	}
}

// Artifact returns the recording described by the result.
func (r SessionResult) Artifact() RecordingArtifact {
	return RecordingArtifact{
		Path:      r.ArtifactPath,
		Format:    FormatOf(r.ArtifactPath),
		StartedAt: r.StartedAt,
		EndedAt:   r.EndedAt,
	}
}
