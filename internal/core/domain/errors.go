package domain

import "errors"

// Session outcomes a caller must be able to tell apart.
var (
	ErrNoParticipants     = errors.New("no one joined the meeting within timeout")
	ErrWaitingRoomTimeout = errors.New("timed out in the waiting room: not admitted to meeting")
	ErrConnectionTimeout  = errors.New("timed out waiting for the call to connect")
	ErrProbeLost          = errors.New("browser was closed unexpectedly")
	ErrNoAudioRecorded    = errors.New("no audio data recorded")
	ErrInvalidMeetingURL  = errors.New("invalid meeting url")
)

// Transcription pipeline failures.
var (
	ErrConversionFailed    = errors.New("audio conversion failed")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrSegmentTooLarge     = errors.New("segment exceeds size ceiling")
	ErrToolTimeout         = errors.New("audio tool timed out")
)

// ErrConfig marks configuration problems detected before a session starts.
var ErrConfig = errors.New("configuration error")

// ErrSessionNotFound is returned by the service for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")
