package cli

import (
	"context"
	"errors"

	"go-meeting-transcriber/internal/core/domain"
	"go-meeting-transcriber/internal/output"
)

// ErrInterrupted is returned when the user stopped a run before it finished.
var ErrInterrupted = errors.New("interrupted by user")

const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitNoMeeting   = 2
	ExitInterrupted = 130
)

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrInterrupted), errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, domain.ErrNoParticipants), errors.Is(err, domain.ErrConnectionTimeout):
		return ExitNoMeeting
	default:
		return ExitFailure
	}
}

// Report prints a one-line explanation of err.
func Report(f *output.Formatter, err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrInterrupted), errors.Is(err, context.Canceled):
		f.Warning("Interrupted by user")
	case errors.Is(err, domain.ErrNoParticipants):
		f.Warning("No one joined the meeting: %v", err)
	case errors.Is(err, domain.ErrConnectionTimeout):
		f.Warning("Could not connect to the meeting: %v", err)
	case errors.Is(err, domain.ErrConfig):
		f.Error("Configuration error: %v", err)
	default:
		f.Error("Error: %v", err)
	}
}
