package services

import (
	"go-meeting-transcriber/internal/core/domain"
)

// AssembleRecord packages a finished session and its transcript into the output record.
func AssembleRecord(sourceURL, transcript string, session domain.SessionResult) domain.Record {
	return domain.NewRecord(sourceURL, transcript, session.StartedAt, session.EndedAt, session.DurationSeconds)
}
