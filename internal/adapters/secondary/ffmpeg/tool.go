package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go-meeting-transcriber/internal/core/domain"
	"go-meeting-transcriber/internal/core/ports"
)

// Timeouts bound each kind of invocation.
type Timeouts struct {
	Probe   time.Duration
	Silence time.Duration
	Extract time.Duration
	Convert time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Probe:   30 * time.Second,
		Silence: 300 * time.Second,
		Extract: 60 * time.Second,
		Convert: 300 * time.Second,
	}
}

// ToolError is a non-zero exit of ffmpeg or ffprobe.
type ToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
}

func (e *ToolError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, e.Stderr)
}

// Tool implements ports.AudioTool on top of the ffmpeg and ffprobe binaries.
type Tool struct {
	ffmpeg   string
	ffprobe  string
	timeouts Timeouts
	log      *slog.Logger
}

var _ ports.AudioTool = (*Tool)(nil)

func NewTool(bins Binaries, timeouts Timeouts, logger *slog.Logger) *Tool {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultTimeouts()
	if timeouts.Probe <= 0 {
		timeouts.Probe = defaults.Probe
	}
	if timeouts.Silence <= 0 {
		timeouts.Silence = defaults.Silence
	}
	if timeouts.Extract <= 0 {
		timeouts.Extract = defaults.Extract
	}
	if timeouts.Convert <= 0 {
		timeouts.Convert = defaults.Convert
	}
	return &Tool{
		ffmpeg:   bins.FFmpeg,
		ffprobe:  bins.FFprobe,
		timeouts: timeouts,
		log:      logger.With("component", "ffmpeg.Tool"),
	}
}

func (t *Tool) Duration(ctx context.Context, path string) (float64, error) {
	stdout, _, err := t.run(ctx, t.timeouts.Probe, t.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}
	value := strings.TrimSpace(stdout)
	duration, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", value, err)
	}
	return duration, nil
}

func (t *Tool) DetectSilence(ctx context.Context, path string, threshold string, minDuration float64) ([]float64, error) {
	filter := fmt.Sprintf("silencedetect=noise=%s:d=%s", threshold, formatSeconds(minDuration))
	_, stderr, err := t.run(ctx, t.timeouts.Silence, t.ffmpeg,
		"-nostdin",
		"-i", path,
		"-af", filter,
		"-f", "null",
		"-",
	)
	if err != nil {
		return nil, err
	}
	return parseSilence(stderr), nil
}

func (t *Tool) Extract(ctx context.Context, src, dst string, start, duration float64) error {
	_, _, err := t.run(ctx, t.timeouts.Extract, t.ffmpeg,
		"-nostdin",
		"-i", src,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-acodec", "copy",
		"-y", dst,
	)
	return err
}

func (t *Tool) Convert(ctx context.Context, src, dst string, opts ports.ConvertOptions) error {
	filter := fmt.Sprintf("silenceremove=stop_periods=-1:stop_duration=%s:stop_threshold=%s",
		formatSeconds(opts.SilenceDuration), opts.SilenceThreshold)
	_, _, err := t.run(ctx, t.timeouts.Convert, t.ffmpeg,
		"-nostdin",
		"-i", src,
		"-vn",
		"-af", filter,
		"-acodec", "libmp3lame",
		"-ab", "128k",
		"-ar", "16000",
		"-ac", "1",
		"-y", dst,
	)
	return err
}

// run executes one bounded invocation. A deadline hit that is not the caller's
// surfaces as domain.ErrToolTimeout.
func (t *Tool) run(ctx context.Context, timeout time.Duration, bin string, args ...string) (string, string, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	t.log.Debug("command finished", "bin", filepath.Base(bin), "args", args, "elapsed", time.Since(started), "error", err)
	if err == nil {
		return stdout.String(), stderr.String(), nil
	}

	if ctx.Err() != nil {
		return "", "", ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return "", "", fmt.Errorf("%w: %s after %s", domain.ErrToolTimeout, filepath.Base(bin), timeout)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return "", "", &ToolError{
			Tool:     filepath.Base(bin),
			ExitCode: exitErr.ExitCode(),
			Stderr:   tail(stderr.String(), 500),
		}
	}
	return "", "", fmt.Errorf("run %s: %w", filepath.Base(bin), err)
}

var silenceEndPattern = regexp.MustCompile(`silence_end: ([\d.]+)`)

// parseSilence returns the silence_end timestamps in the order ffmpeg printed them.
func parseSilence(stderr string) []float64 {
	var points []float64
	for _, match := range silenceEndPattern.FindAllStringSubmatch(stderr, -1) {
		v, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		points = append(points, v)
	}
	return points
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
