package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-meeting-transcriber/internal/core/domain"
	"go-meeting-transcriber/internal/core/ports"
)

const megabyte = 1024 * 1024

// EngineConfig controls conversion, segmentation and retry behaviour.
type EngineConfig struct {
	// MaxFileSize is kept a few percent below the service's hard upload limit.
	MaxFileSize       int64
	TargetSegmentSize int64
	TargetFormat      string

	SilenceDuration  float64
	SilenceThreshold string
	SilenceDetectMin float64

	MinSegmentSeconds float64
	MinTailSeconds    float64
	CutRatio          float64

	MaxAttempts int
	RetryDelay  time.Duration
	WorkDir     string
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxFileSize:       24 * megabyte,
		TargetSegmentSize: 20 * megabyte,
		TargetFormat:      "mp3",
		SilenceDuration:   1.0,
		SilenceThreshold:  "-40dB",
		SilenceDetectMin:  0.5,
		MinSegmentSeconds: 0.5,
		MinTailSeconds:    1.0,
		CutRatio:          0.8,
		MaxAttempts:       3,
		RetryDelay:        2 * time.Second,
	}
}

// TranscribeOptions are per-call settings.
type TranscribeOptions struct {
	Language string
	// KeepArtifact leaves the source recording on disk.
	KeepArtifact bool
}

// TranscriptionEngine turns a recording of any size into one transcript.
type TranscriptionEngine struct {
	tool   ports.AudioTool
	client ports.Transcriber
	cfg    EngineConfig
	status ports.StatusFunc
	log    *slog.Logger

	Sleep func(ctx context.Context, d time.Duration) error
}

func NewTranscriptionEngine(tool ports.AudioTool, client ports.Transcriber, cfg EngineConfig, status ports.StatusFunc, logger *slog.Logger) *TranscriptionEngine {
	defaults := DefaultEngineConfig()
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaults.MaxFileSize
	}
	if cfg.TargetSegmentSize <= 0 || cfg.TargetSegmentSize >= cfg.MaxFileSize {
		cfg.TargetSegmentSize = cfg.MaxFileSize * 5 / 6
	}
	if cfg.TargetFormat == "" {
		cfg.TargetFormat = defaults.TargetFormat
	}
	if cfg.SilenceThreshold == "" {
		cfg.SilenceThreshold = defaults.SilenceThreshold
	}
	if cfg.SilenceDetectMin <= 0 {
		cfg.SilenceDetectMin = defaults.SilenceDetectMin
	}
	if cfg.MinSegmentSeconds <= 0 {
		cfg.MinSegmentSeconds = defaults.MinSegmentSeconds
	}
	if cfg.MinTailSeconds <= 0 {
		cfg.MinTailSeconds = defaults.MinTailSeconds
	}
	if cfg.CutRatio <= 0 || cfg.CutRatio > 1 {
		cfg.CutRatio = defaults.CutRatio
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	if status == nil {
		status = func(string) {}
	}
	return &TranscriptionEngine{
		tool:   tool,
		client: client,
		cfg:    cfg,
		status: status,
		log:    logger.With("component", "services.TranscriptionEngine"),
		Sleep:  sleepContext,
	}
}

func (e *TranscriptionEngine) report(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	e.log.Debug(msg)
	e.status(msg)
}

// Transcribe converts, segments when needed and transcribes the artifact.
// Every intermediate file is removed before it returns, on success and on failure.
func (e *TranscriptionEngine) Transcribe(ctx context.Context, artifact domain.RecordingArtifact, opts TranscribeOptions) (domain.TranscriptResult, error) {
	if !opts.KeepArtifact {
		defer removeQuietly(artifact.Path)
	}

	workDir, err := os.MkdirTemp(e.cfg.WorkDir, "telemost_work_")
	if err != nil {
		return domain.TranscriptResult{}, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	canonical, err := e.canonicalize(ctx, artifact, workDir)
	if err != nil {
		return domain.TranscriptResult{}, err
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return domain.TranscriptResult{}, fmt.Errorf("stat canonical audio: %w", err)
	}

	if info.Size() < e.cfg.MaxFileSize {
		return e.transcribeFile(ctx, canonical, opts.Language)
	}

	e.report("Audio file is %.1f MB, splitting into segments...", float64(info.Size())/megabyte)
	return e.transcribeSegmented(ctx, canonical, info.Size(), workDir, opts.Language)
}

func (e *TranscriptionEngine) canonicalize(ctx context.Context, artifact domain.RecordingArtifact, workDir string) (string, error) {
	format := artifact.Format
	if format == "" {
		format = domain.FormatOf(artifact.Path)
	}
	if strings.EqualFold(format, e.cfg.TargetFormat) {
		return artifact.Path, nil
	}

	e.report("Converting %s to %s...", format, strings.ToUpper(e.cfg.TargetFormat))
	out := filepath.Join(workDir, "canonical."+e.cfg.TargetFormat)
	err := e.tool.Convert(ctx, artifact.Path, out, ports.ConvertOptions{
		SilenceDuration:  e.cfg.SilenceDuration,
		SilenceThreshold: e.cfg.SilenceThreshold,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrConversionFailed, err)
	}
	if info, err := os.Stat(out); err == nil {
		e.report("Converted to %s: %.1f KB", strings.ToUpper(e.cfg.TargetFormat), float64(info.Size())/1024)
	}
	return out, nil
}

func (e *TranscriptionEngine) transcribeSegmented(ctx context.Context, path string, size int64, workDir, language string) (domain.TranscriptResult, error) {
	total, err := e.tool.Duration(ctx, path)
	if err != nil {
		return domain.TranscriptResult{}, fmt.Errorf("read duration: %w", err)
	}
	if total <= 0 {
		return domain.TranscriptResult{}, fmt.Errorf("read duration: non-positive duration %.2f", total)
	}

	bytesPerSecond := float64(size) / total
	target := float64(e.cfg.TargetSegmentSize) / bytesPerSecond

	silence, err := e.tool.DetectSilence(ctx, path, e.cfg.SilenceThreshold, e.cfg.SilenceDetectMin)
	if err != nil {
		if ctx.Err() != nil {
			return domain.TranscriptResult{}, ctx.Err()
		}
		e.log.Warn("silence detection failed, using fixed segments", "error", err)
		silence = nil
	}
	e.report("Found %d silence points", len(silence))

	seg := &segmenter{
		tool:       e.tool,
		src:        path,
		dir:        workDir,
		ext:        e.cfg.TargetFormat,
		ceiling:    e.cfg.MaxFileSize,
		minSegment: e.cfg.MinSegmentSeconds,
		minTail:    e.cfg.MinTailSeconds,
		cutRatio:   e.cfg.CutRatio,
		retry: backoff{
			attempts:    e.cfg.MaxAttempts,
			base:        e.cfg.RetryDelay,
			sleep:       e.Sleep,
			shouldRetry: func(err error) bool { return errors.Is(err, domain.ErrToolTimeout) },
		},
		report: e.report,
	}
	segments, err := seg.plan(ctx, silence, total, target)
	if err != nil {
		return domain.TranscriptResult{}, err
	}
	for i := range segments {
		segments[i].Index = i
	}

	e.report("Processing %d segments...", len(segments))

	combined := domain.TranscriptResult{DetectedLanguage: language}
	for i, segment := range segments {
		e.report("Segment %d/%d (%.1f MB)...", i+1, len(segments), float64(segment.SizeBytes)/megabyte)
		result, err := e.transcribeFile(ctx, segment.FilePath, language)
		removeQuietly(segment.FilePath)
		if err != nil {
			seg.discard(segments[i+1:])
			return domain.TranscriptResult{}, err
		}
		combined = combined.Merge(result)
	}

	e.report("Combined transcription: %d characters from %d segments", len(combined.Text), len(segments))
	combined.Text = strings.TrimSpace(combined.Text)
	return combined, nil
}

// transcribeFile sends one file with exponential backoff between attempts.
func (e *TranscriptionEngine) transcribeFile(ctx context.Context, path, language string) (domain.TranscriptResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.TranscriptResult{}, fmt.Errorf("read audio: %w", err)
	}

	e.report("Sending to transcription service...")
	req := ports.TranscriptionRequest{
		FileName: filepath.Base(path),
		Audio:    data,
		Language: language,
	}

	var result domain.TranscriptResult
	policy := backoff{
		attempts: e.cfg.MaxAttempts,
		base:     e.cfg.RetryDelay,
		sleep:    e.Sleep,
		onRetry: func(attempt int, delay time.Duration, err error) {
			e.log.Warn("transcription attempt failed", "attempt", attempt, "retry_in", delay, "error", err)
			e.report("Transcription error, retrying in %s: %v", delay, err)
		},
	}
	err = policy.run(ctx, func() error {
		r, err := e.client.Transcribe(ctx, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return domain.TranscriptResult{}, ctx.Err()
		}
		e.report("Transcription failed after %d attempts", e.cfg.MaxAttempts)
		return domain.TranscriptResult{}, fmt.Errorf("%w: %w", domain.ErrTranscriptionFailed, err)
	}

	result.Text = strings.TrimSpace(result.Text)
	if result.DetectedLanguage == "" {
		result.DetectedLanguage = language
	}
	e.report("Transcription complete: %d characters", len(result.Text))
	return result, nil
}
