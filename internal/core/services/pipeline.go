package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go-meeting-transcriber/internal/core/domain"
	"go-meeting-transcriber/internal/core/ports"
)

// PipelineConfig bundles everything a run needs besides the adapters.
type PipelineConfig struct {
	Lifecycle LifecycleConfig
	Engine    EngineConfig
	Browser   ports.BrowserOptions
	Language  string
}

// Pipeline records a call in its own browser and transcribes the result.
// The two stages are separate so callers choose the context each one runs under.
type Pipeline struct {
	launcher ports.BrowserLauncher
	tool     ports.AudioTool
	client   ports.Transcriber
	cfg      PipelineConfig
	log      *slog.Logger
}

func NewPipeline(launcher ports.BrowserLauncher, tool ports.AudioTool, client ports.Transcriber, cfg PipelineConfig, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		launcher: launcher,
		tool:     tool,
		client:   client,
		cfg:      cfg,
		log:      logger,
	}
}

// Record joins the meeting and returns once recording has stopped.
// onRecording, when set, is called with the recording start time.
func (p *Pipeline) Record(ctx context.Context, req domain.MeetingRequest, status ports.StatusFunc, onRecording func(time.Time)) (domain.SessionResult, error) {
	if err := ValidateMeetingURL(req.MeetingURL); err != nil {
		return domain.SessionResult{}, err
	}

	page, err := p.launcher.Open(ctx, p.cfg.Browser)
	if err != nil {
		return domain.SessionResult{}, fmt.Errorf("open browser: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			p.log.Warn("failed to close browser", "error", err)
		}
	}()

	cfg := p.cfg.Lifecycle
	if req.DisplayName != "" {
		cfg.DisplayName = req.DisplayName
	}
	controller := NewLifecycleController(page, cfg, status, p.log)
	controller.OnRecordingStarted = onRecording
	return controller.Run(ctx, req.MeetingURL, req.WaitForEnd)
}

// Transcribe turns a recorded session into the output record.
func (p *Pipeline) Transcribe(ctx context.Context, req domain.MeetingRequest, session domain.SessionResult, status ports.StatusFunc) (domain.Record, error) {
	language := req.Language
	if language == "" {
		language = p.cfg.Language
	}
	engine := NewTranscriptionEngine(p.tool, p.client, p.cfg.Engine, status, p.log)
	result, err := engine.Transcribe(ctx, session.Artifact(), TranscribeOptions{
		Language:     language,
		KeepArtifact: req.KeepAudio,
	})
	if err != nil {
		return domain.Record{}, err
	}
	return AssembleRecord(req.MeetingURL, result.Text, session), nil
}
