package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go-meeting-transcriber/internal/core/domain"
	"go-meeting-transcriber/internal/core/ports"
)

type sentFile struct {
	name     string
	size     int
	language string
}

// fakeTranscriber answers "part N" for the Nth successful call.
type fakeTranscriber struct {
	mu sync.Mutex

	failFirst int
	failCall  int
	language  string

	calls int
	sent  []sentFile
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, req ports.TranscriptionRequest) (domain.TranscriptResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failFirst || (f.failCall > 0 && len(f.sent)+1 == f.failCall) {
		return domain.TranscriptResult{}, fmt.Errorf("status 503: service unavailable")
	}
	f.sent = append(f.sent, sentFile{name: req.FileName, size: len(req.Audio), language: req.Language})
	return domain.TranscriptResult{
		Text:             fmt.Sprintf("  part %d \n", len(f.sent)),
		DetectedLanguage: f.language,
		DurationSeconds:  1.5,
	}, nil
}

type engineFixture struct {
	engine  *TranscriptionEngine
	tool    *fakeAudioTool
	client  *fakeTranscriber
	sleeps  *sleepLog
	workDir string
	srcDir  string
}

func newEngineFixture(t *testing.T, rate, total float64) *engineFixture {
	t.Helper()
	f := &engineFixture{
		tool:    newFakeAudioTool(rate, total),
		client:  &fakeTranscriber{},
		sleeps:  &sleepLog{},
		workDir: t.TempDir(),
		srcDir:  t.TempDir(),
	}
	cfg := DefaultEngineConfig()
	cfg.WorkDir = f.workDir
	f.engine = NewTranscriptionEngine(f.tool, f.client, cfg, nil, nil)
	f.engine.Sleep = f.sleeps.sleep
	return f
}

func (f *engineFixture) artifact(t *testing.T, name string, size int64) domain.RecordingArtifact {
	t.Helper()
	path := filepath.Join(f.srcDir, name)
	if err := writeSized(path, size); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return domain.RecordingArtifact{Path: path, Format: domain.FormatOf(path)}
}

func (f *engineFixture) assertClean(t *testing.T, artifact domain.RecordingArtifact, keep bool) {
	t.Helper()
	entries, err := os.ReadDir(f.workDir)
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no intermediate files, found %d entries", len(entries))
	}
	_, err = os.Stat(artifact.Path)
	if keep && err != nil {
		t.Fatalf("expected artifact kept: %v", err)
	}
	if !keep && !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected artifact removed, stat err=%v", err)
	}
}

func TestTranscribeShortRecordingInOneRequest(t *testing.T) {
	t.Parallel()

	// three minutes of webm audio
	f := newEngineFixture(t, 16_000, 180)
	artifact := f.artifact(t, "telemost_call.webm", 2_000_000)

	result, err := f.engine.Transcribe(context.Background(), artifact, TranscribeOptions{Language: "ru"})
	if err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if f.tool.converts != 1 {
		t.Fatalf("expected one conversion, got %d", f.tool.converts)
	}
	if len(f.client.sent) != 1 {
		t.Fatalf("expected one request, got %d", len(f.client.sent))
	}
	if f.client.sent[0].name != "canonical.mp3" {
		t.Fatalf("expected the converted file to be sent, got %s", f.client.sent[0].name)
	}
	if f.tool.extracts != 0 {
		t.Fatalf("short audio must not be segmented")
	}
	if result.Text != "part 1" {
		t.Fatalf("expected trimmed text, got %q", result.Text)
	}
	if result.DetectedLanguage != "ru" {
		t.Fatalf("expected requested language as fallback, got %q", result.DetectedLanguage)
	}
	f.assertClean(t, artifact, false)
}

func TestTranscribeSkipsConversionForCanonicalFormat(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, 16_000, 180)
	f.client.language = "en"
	artifact := f.artifact(t, "notes.mp3", 1_000_000)

	result, err := f.engine.Transcribe(context.Background(), artifact, TranscribeOptions{KeepArtifact: true})
	if err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if f.tool.converts != 0 {
		t.Fatalf("expected no conversion, got %d", f.tool.converts)
	}
	if f.client.sent[0].size != 1_000_000 {
		t.Fatalf("expected the original bytes to be sent, got %d", f.client.sent[0].size)
	}
	if result.DetectedLanguage != "en" {
		t.Fatalf("expected detected language, got %q", result.DetectedLanguage)
	}
	f.assertClean(t, artifact, true)
}

func TestTranscribeLongRecordingInSegments(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, longRate, longTotal)
	f.tool.silence = everyN(60, longTotal)
	artifact := f.artifact(t, "telemost_call.webm", 28*megabyte)

	result, err := f.engine.Transcribe(context.Background(), artifact, TranscribeOptions{Language: "ru"})
	if err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if len(f.client.sent) < 2 {
		t.Fatalf("expected at least 2 segment requests, got %d", len(f.client.sent))
	}

	ceiling := DefaultEngineConfig().MaxFileSize
	prevEnd := 0.0
	for i, sent := range f.client.sent {
		if int64(sent.size) >= ceiling {
			t.Fatalf("segment %d is %d bytes, ceiling %d", i, sent.size, ceiling)
		}
		r, ok := f.tool.ranges[sent.name]
		if !ok {
			t.Fatalf("segment %d (%s) was never extracted", i, sent.name)
		}
		if r[0] != prevEnd {
			t.Fatalf("segment %d starts at %.1f, want %.1f", i, r[0], prevEnd)
		}
		prevEnd = r[1]
	}
	if prevEnd != longTotal {
		t.Fatalf("segments end at %.1f, want %.1f", prevEnd, longTotal)
	}

	want := "part 1"
	for i := 2; i <= len(f.client.sent); i++ {
		want += fmt.Sprintf(" part %d", i)
	}
	if result.Text != want {
		t.Fatalf("expected %q, got %q", want, result.Text)
	}
	if result.DurationSeconds != 1.5*float64(len(f.client.sent)) {
		t.Fatalf("expected summed durations, got %.1f", result.DurationSeconds)
	}
	f.assertClean(t, artifact, false)
}

func TestTranscribeFallsBackToFixedSplitWithoutSilence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		silence    []float64
		silenceErr error
	}{
		{name: "no silence found"},
		{name: "silence detection failed", silenceErr: errors.New("silencedetect: exit status 1")},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newEngineFixture(t, longRate, longTotal)
			f.tool.silence = tt.silence
			f.tool.silenceErr = tt.silenceErr
			artifact := f.artifact(t, "telemost_call.webm", 28*megabyte)

			result, err := f.engine.Transcribe(context.Background(), artifact, TranscribeOptions{})
			if err != nil {
				t.Fatalf("transcribe failed: %v", err)
			}
			if len(f.client.sent) != 2 {
				t.Fatalf("expected 2 fixed segments, got %d", len(f.client.sent))
			}
			if result.Text != "part 1 part 2" {
				t.Fatalf("unexpected text %q", result.Text)
			}
		})
	}
}

func TestTranscribeRetriesWithBackoff(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, 16_000, 180)
	f.client.failFirst = 2
	artifact := f.artifact(t, "notes.mp3", 500_000)

	result, err := f.engine.Transcribe(context.Background(), artifact, TranscribeOptions{})
	if err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if f.client.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.client.calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if fmt.Sprint(f.sleeps.delays) != fmt.Sprint(want) {
		t.Fatalf("expected delays %v, got %v", want, f.sleeps.delays)
	}
	if result.Text != "part 1" {
		t.Fatalf("unexpected text %q", result.Text)
	}
}

func TestTranscribeFailsAfterExhaustedRetries(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, 16_000, 180)
	f.client.failFirst = 10
	artifact := f.artifact(t, "notes.webm", 500_000)

	_, err := f.engine.Transcribe(context.Background(), artifact, TranscribeOptions{})
	if !errors.Is(err, domain.ErrTranscriptionFailed) {
		t.Fatalf("expected transcription failure, got %v", err)
	}
	if f.client.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.client.calls)
	}
	f.assertClean(t, artifact, false)
}

func TestTranscribeSegmentFailureIsAllOrNothing(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, longRate, longTotal)
	f.tool.silence = everyN(60, longTotal)
	f.client.failCall = 2
	artifact := f.artifact(t, "telemost_call.webm", 28*megabyte)

	result, err := f.engine.Transcribe(context.Background(), artifact, TranscribeOptions{KeepArtifact: true})
	if !errors.Is(err, domain.ErrTranscriptionFailed) {
		t.Fatalf("expected transcription failure, got %v", err)
	}
	if result.Text != "" {
		t.Fatalf("partial transcript leaked: %q", result.Text)
	}
	if len(f.client.sent) != 1 {
		t.Fatalf("expected only the first segment to succeed, got %d", len(f.client.sent))
	}
	f.assertClean(t, artifact, true)
}

func TestTranscribeConversionFailure(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, 16_000, 180)
	f.tool.convertErr = errors.New("ffmpeg exited with status 1: invalid data")
	artifact := f.artifact(t, "telemost_call.webm", 1000)

	_, err := f.engine.Transcribe(context.Background(), artifact, TranscribeOptions{})
	if !errors.Is(err, domain.ErrConversionFailed) {
		t.Fatalf("expected conversion failure, got %v", err)
	}
	if f.client.calls != 0 {
		t.Fatalf("client must not be called, got %d calls", f.client.calls)
	}
	f.assertClean(t, artifact, false)
}

func TestTranscribeDurationFailureIsFatal(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, longRate, longTotal)
	f.tool.durationErr = errors.New("ffprobe exited with status 1")
	artifact := f.artifact(t, "telemost_call.webm", 28*megabyte)

	if _, err := f.engine.Transcribe(context.Background(), artifact, TranscribeOptions{}); err == nil {
		t.Fatalf("expected duration failure")
	}
	if f.client.calls != 0 {
		t.Fatalf("client must not be called, got %d calls", f.client.calls)
	}
	f.assertClean(t, artifact, false)
}

func TestTranscribeStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, 16_000, 180)
	f.client.failFirst = 10
	artifact := f.artifact(t, "notes.mp3", 500_000)

	ctx, cancel := context.WithCancel(context.Background())
	f.engine.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := f.engine.Transcribe(ctx, artifact, TranscribeOptions{KeepArtifact: true})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if f.client.calls != 1 {
		t.Fatalf("expected no attempts after cancellation, got %d", f.client.calls)
	}
}
