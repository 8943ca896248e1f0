package app

import (
	"context"
	"log/slog"
	"time"

	"go-meeting-transcriber/internal/adapters/secondary/ffmpeg"
	"go-meeting-transcriber/internal/adapters/secondary/groq"
	"go-meeting-transcriber/internal/adapters/secondary/rod"
	"go-meeting-transcriber/internal/config"
	"go-meeting-transcriber/internal/core/ports"
	"go-meeting-transcriber/internal/core/services"
)

// Options are the per-invocation settings that do not live in Config.
type Options struct {
	FakeVideoPath string
	Debug         bool
}

type App struct {
	Pipeline *services.Pipeline
}

// New resolves the external tools and wires the adapters into a pipeline.
func New(ctx context.Context, cfg config.Config, opts Options, logger *slog.Logger) (*App, error) {
	bins, err := ffmpeg.Locate(ctx, cfg.Audio.FFmpegPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("resolved audio tools", "ffmpeg", bins.FFmpeg, "ffprobe", bins.FFprobe)

	tool := ffmpeg.NewTool(bins, ffmpeg.DefaultTimeouts(), logger)
	client := groq.NewClient(groq.Config{
		APIKey:  cfg.Groq.APIKey,
		BaseURL: cfg.Groq.BaseURL,
		Model:   cfg.Groq.Model,
		Timeout: cfg.Groq.Timeout,
	}, logger)
	launcher := rod.NewLauncher(logger)

	pipeline := services.NewPipeline(launcher, tool, client, PipelineConfig(cfg, opts), logger)
	return &App{Pipeline: pipeline}, nil
}

// PipelineConfig maps the resolved configuration onto the service settings.
func PipelineConfig(cfg config.Config, opts Options) services.PipelineConfig {
	lifecycle := services.DefaultLifecycleConfig()
	lifecycle.DisplayName = cfg.Meeting.DisplayName
	lifecycle.WaitingRoomTimeout = cfg.Meeting.WaitingRoomTimeout
	lifecycle.AloneGraceSeconds = cfg.Meeting.AloneWaitSeconds
	lifecycle.EmptyMeetingTimeout = cfg.Meeting.EmptyMeetingTimeout
	lifecycle.PollIntervalSeconds = cfg.Meeting.PollIntervalSeconds
	lifecycle.RecordingsDir = cfg.RecordingsDir

	engine := services.DefaultEngineConfig()
	engine.SilenceDuration = cfg.Audio.SilenceDuration
	engine.SilenceThreshold = cfg.Audio.SilenceThreshold
	engine.MaxFileSize = cfg.Audio.MaxFileSize
	engine.TargetSegmentSize = cfg.Audio.TargetSegmentSize
	engine.RetryDelay = 2 * time.Second

	return services.PipelineConfig{
		Lifecycle: lifecycle,
		Engine:    engine,
		Browser: ports.BrowserOptions{
			Headless:      cfg.Browser.Headless,
			BrowserBin:    cfg.Browser.Bin,
			FakeVideoPath: opts.FakeVideoPath,
			Debug:         opts.Debug,
		},
		Language: cfg.Meeting.Language,
	}
}
