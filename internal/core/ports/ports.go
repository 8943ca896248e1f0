package ports

import (
	"context"

	"go-meeting-transcriber/internal/core/domain"
)

// StatusFunc receives human-readable progress lines. Implementations must not block.
type StatusFunc func(message string)

// Primary Port (Driving) - implemented by Service
type TranscriptionService interface {
	StartSession(ctx context.Context, req domain.MeetingRequest) (*domain.MeetingSession, error)
	StopSession(ctx context.Context, sessionId string) (*domain.MeetingSession, error)
	GetSession(ctx context.Context, sessionId string) (*domain.MeetingSession, error)
	Subscribe(sessionId string) (<-chan string, func(), error)
}

// Secondary Port (Driven) - implemented by Adapters

// ControlIntent names a page control by purpose instead of by selector.
type ControlIntent string

const (
	IntentContinueInBrowser ControlIntent = "continue-in-browser"
	IntentNameInput         ControlIntent = "name-input"
	IntentMuteMic           ControlIntent = "mute-mic"
	IntentMuteCamera        ControlIntent = "mute-camera"
	IntentJoin              ControlIntent = "join"
	IntentEndIndicator      ControlIntent = "end-indicator"
)

// ControlHandle is a located page control.
type ControlHandle interface {
	Click(ctx context.Context) error
	Fill(ctx context.Context, text string) error
	// Active reports whether a toggle control is currently switched on.
	Active(ctx context.Context) (bool, error)
	Label(ctx context.Context) string
}

// CallProbe is the read-mostly status surface of the live call.
type CallProbe interface {
	Status(ctx context.Context) (domain.CallStatus, error)
	StartRecording(ctx context.Context) (bool, error)
	// StopRecording returns the decoded recording, or nil when nothing was captured.
	StopRecording(ctx context.Context) ([]byte, error)
}

// MeetingPage drives the call page.
type MeetingPage interface {
	CallProbe
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	FindControl(ctx context.Context, intent ControlIntent) (ControlHandle, bool, error)
	Snapshot(ctx context.Context, name string)
	Close() error
}

// BrowserOptions configure a fresh browser for one call.
type BrowserOptions struct {
	Headless      bool
	BrowserBin    string
	FakeVideoPath string
	Debug         bool
}

// BrowserLauncher opens an isolated browser page per session.
type BrowserLauncher interface {
	Open(ctx context.Context, opts BrowserOptions) (MeetingPage, error)
}

// ConvertOptions configure transcoding to the canonical codec.
type ConvertOptions struct {
	SilenceDuration  float64
	SilenceThreshold string
}

// AudioTool is the process-boundary contract of the audio command-line tool.
type AudioTool interface {
	Duration(ctx context.Context, path string) (float64, error)
	DetectSilence(ctx context.Context, path string, threshold string, minDuration float64) ([]float64, error)
	Extract(ctx context.Context, src, dst string, start, duration float64) error
	Convert(ctx context.Context, src, dst string, opts ConvertOptions) error
}

// TranscriptionRequest is one audio blob sent to the hosted service.
type TranscriptionRequest struct {
	FileName string
	Audio    []byte
	Language string
}

// Transcriber is the hosted speech-to-text client.
type Transcriber interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (domain.TranscriptResult, error)
}
