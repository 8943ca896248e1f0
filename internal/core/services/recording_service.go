package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-meeting-transcriber/internal/core/domain"
	"go-meeting-transcriber/internal/core/ports"
)

// SessionRunner is the two-stage job the service runs per session. *Pipeline implements it.
type SessionRunner interface {
	Record(ctx context.Context, req domain.MeetingRequest, status ports.StatusFunc, onRecording func(time.Time)) (domain.SessionResult, error)
	Transcribe(ctx context.Context, req domain.MeetingRequest, session domain.SessionResult, status ports.StatusFunc) (domain.Record, error)
}

type recordingService struct {
	sessions map[string]*domain.MeetingSession
	cancels  map[string]context.CancelFunc
	hubs     map[string]*statusHub
	mu       sync.RWMutex
	runner   SessionRunner
	log      *slog.Logger
	wg       sync.WaitGroup
}

// RecordingService is the service-mode implementation of ports.TranscriptionService.
type RecordingService interface {
	ports.TranscriptionService
	// Wait blocks until every background job has returned.
	Wait()
}

func NewRecordingService(runner SessionRunner, logger *slog.Logger) RecordingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &recordingService{
		sessions: make(map[string]*domain.MeetingSession),
		cancels:  make(map[string]context.CancelFunc),
		hubs:     make(map[string]*statusHub),
		runner:   runner,
		log:      logger.With("component", "services.RecordingService"),
	}
}

func (s *recordingService) StartSession(ctx context.Context, req domain.MeetingRequest) (*domain.MeetingSession, error) {
	if err := ValidateMeetingURL(req.MeetingURL); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	session := &domain.MeetingSession{
		ID:         id,
		MeetingURL: req.MeetingURL,
		Status:     domain.StatusInitializing,
	}

	// The job outlives the request that started it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	hub := newStatusHub(historyLimit)

	s.mu.Lock()
	s.sessions[id] = session
	s.cancels[id] = cancel
	s.hubs[id] = hub
	snapshot := *session
	s.mu.Unlock()

	s.log.Info("session started", "session_id", id, "url", req.MeetingURL, "wait_for_end", req.WaitForEnd)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer hub.Close()
		s.run(runCtx, id, req, hub)
	}()

	return &snapshot, nil
}

func (s *recordingService) run(ctx context.Context, id string, req domain.MeetingRequest, hub *statusHub) {
	status := hub.Publish

	s.updateStatus(id, domain.StatusJoining)
	result, err := s.runner.Record(ctx, req, status, func(startedAt time.Time) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if session, ok := s.sessions[id]; ok {
			session.Status = domain.StatusRecording
			session.StartTime = &startedAt
		}
		hub.Publish("Recording started")
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.updateError(id, "stopped before recording started")
		} else {
			s.updateError(id, err.Error())
		}
		hub.Publish(fmt.Sprintf("Failed: %v", err))
		s.log.Warn("session recording failed", "session_id", id, "error", err)
		return
	}

	s.mu.Lock()
	if session, ok := s.sessions[id]; ok {
		session.Status = domain.StatusTranscribing
		endedAt := result.EndedAt
		session.EndTime = &endedAt
		session.CalculateDuration()
		if req.KeepAudio {
			session.FilePath = result.ArtifactPath
		}
	}
	s.mu.Unlock()

	// A stop request ends the recording; the transcription still has to finish.
	record, err := s.runner.Transcribe(context.WithoutCancel(ctx), req, result, status)
	if err != nil {
		s.updateError(id, err.Error())
		hub.Publish(fmt.Sprintf("Failed: %v", err))
		s.log.Warn("session transcription failed", "session_id", id, "error", err)
		return
	}

	s.mu.Lock()
	if session, ok := s.sessions[id]; ok {
		session.Status = domain.StatusCompleted
		session.Result = &record
	}
	s.mu.Unlock()
	hub.Publish("Completed")
	s.log.Info("session completed", "session_id", id, "duration_seconds", result.DurationSeconds)
}

func (s *recordingService) StopSession(ctx context.Context, sessionId string) (*domain.MeetingSession, error) {
	s.mu.RLock()
	session, exists := s.sessions[sessionId]
	cancel := s.cancels[sessionId]
	var snapshot domain.MeetingSession
	if exists {
		snapshot = *session
	}
	s.mu.RUnlock()

	if !exists {
		return nil, domain.ErrSessionNotFound
	}
	if snapshot.Done() {
		return &snapshot, nil
	}

	s.log.Info("stop requested", "session_id", sessionId, "status", snapshot.Status)
	cancel()
	return &snapshot, nil
}

func (s *recordingService) GetSession(ctx context.Context, sessionId string) (*domain.MeetingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionId]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}

	snapshot := *session
	// Recalculate duration if ongoing
	if snapshot.Status == domain.StatusRecording && snapshot.StartTime != nil {
		snapshot.Duration = time.Since(*snapshot.StartTime).Round(time.Second).String()
	}
	return &snapshot, nil
}

func (s *recordingService) Subscribe(sessionId string) (<-chan string, func(), error) {
	s.mu.RLock()
	hub, exists := s.hubs[sessionId]
	s.mu.RUnlock()
	if !exists {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, unsubscribe := hub.Subscribe()
	return ch, unsubscribe, nil
}

func (s *recordingService) Wait() {
	s.wg.Wait()
}

func (s *recordingService) updateStatus(id string, status domain.MeetingStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok {
		session.Status = status
	}
}

func (s *recordingService) updateError(id string, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok {
		session.Status = domain.StatusFailed
		session.Error = msg
		if session.EndTime == nil {
			now := time.Now()
			session.EndTime = &now
		}
	}
}
