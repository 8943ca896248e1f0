package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go-meeting-transcriber/internal/app"
	"go-meeting-transcriber/internal/config"
	"go-meeting-transcriber/internal/core/domain"
	"go-meeting-transcriber/internal/core/ports"
	"go-meeting-transcriber/internal/core/services"
	"go-meeting-transcriber/internal/version"
)

const meetingURL = "https://telemost.yandex.ru/j/12345678901234"

type fakeRunner struct {
	recordErr     error
	transcribeErr error
	interrupted   bool

	cfg        config.Config
	opts       app.Options
	req        domain.MeetingRequest
	transcribe int
}

func (r *fakeRunner) Record(ctx context.Context, req domain.MeetingRequest, status ports.StatusFunc, onRecording func(time.Time)) (domain.SessionResult, error) {
	r.req = req
	status("Navigating to " + req.MeetingURL)
	if r.recordErr != nil {
		return domain.SessionResult{}, r.recordErr
	}
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	onRecording(start)
	result := domain.NewSessionResult("/tmp/telemost_x.webm", start, start.Add(3*time.Minute))
	result.Interrupted = r.interrupted
	return result, nil
}

func (r *fakeRunner) Transcribe(ctx context.Context, req domain.MeetingRequest, session domain.SessionResult, status ports.StatusFunc) (domain.Record, error) {
	r.transcribe++
	if r.transcribeErr != nil {
		return domain.Record{}, r.transcribeErr
	}
	return services.AssembleRecord(req.MeetingURL, "Привет, коллеги", session), nil
}

type harness struct {
	runner *fakeRunner
	stdout bytes.Buffer
	stderr bytes.Buffer
	env    map[string]string
}

func newHarness() *harness {
	return &harness{
		runner: &fakeRunner{},
		env:    map[string]string{"GROQ_API_KEY": "gsk_test"},
	}
}

func (h *harness) run(args ...string) error {
	deps := &Dependencies{
		Stdout: &h.stdout,
		Stderr: &h.stderr,
		Lookup: func(key string) (string, bool) {
			v, ok := h.env[key]
			return v, ok
		},
		NewRunner: func(ctx context.Context, cfg config.Config, opts app.Options, logger *slog.Logger) (services.SessionRunner, error) {
			h.runner.cfg = cfg
			h.runner.opts = opts
			return h.runner, nil
		},
	}
	cmd := NewRootCmd(deps)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func TestRootRecordsToStdout(t *testing.T) {
	h := newHarness()
	if err := h.run(meetingURL); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	var record domain.Record
	if err := json.Unmarshal(h.stdout.Bytes(), &record); err != nil {
		t.Fatalf("stdout is not a record: %v\n%s", err, h.stdout.String())
	}
	if record.URL != meetingURL || record.DurationSeconds != 180 || record.Transcript != "Привет, коллеги" {
		t.Fatalf("unexpected record %+v", record)
	}
	if !strings.Contains(h.stdout.String(), "Привет") {
		t.Fatalf("transcript should not be escaped: %s", h.stdout.String())
	}
	if !h.runner.req.WaitForEnd {
		t.Fatalf("expected wait-for-end by default")
	}
	if h.runner.req.DisplayName != config.DefaultDisplayName || h.runner.req.Language != "ru" {
		t.Fatalf("unexpected request %+v", h.runner.req)
	}
	if !strings.Contains(h.stderr.String(), "[telemost] Navigating to") {
		t.Fatalf("expected progress on stderr, got %q", h.stderr.String())
	}
}

func TestRecordSubcommandFlags(t *testing.T) {
	h := newHarness()
	out := filepath.Join(t.TempDir(), "meeting.json")

	err := h.run("record", meetingURL,
		"-o", out, "-l", "en", "--name", "Notes", "--keep-audio", "--no-wait",
		"--headed", "--ffmpeg", "/opt/ffmpeg", "--fake-video", "cam.y4m")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("output file missing: %v", err)
	}
	if !strings.HasSuffix(string(data), "}\n") {
		t.Fatalf("expected trailing newline in file output")
	}
	if h.stdout.Len() != 0 {
		t.Fatalf("nothing should go to stdout with -o, got %q", h.stdout.String())
	}

	req := h.runner.req
	if req.WaitForEnd || !req.KeepAudio || req.Language != "en" || req.DisplayName != "Notes" {
		t.Fatalf("flags not applied to request: %+v", req)
	}
	cfg := h.runner.cfg
	if cfg.Browser.Headless || cfg.Audio.FFmpegPath != "/opt/ffmpeg" {
		t.Fatalf("flags not applied to config: %+v", cfg)
	}
	if h.runner.opts.FakeVideoPath != "cam.y4m" {
		t.Fatalf("fake video not passed, got %+v", h.runner.opts)
	}
	if !strings.Contains(h.stderr.String(), "Audio saved to: /tmp/telemost_x.webm") {
		t.Fatalf("expected kept audio path, got %q", h.stderr.String())
	}
}

func TestRecordRequiresAPIKey(t *testing.T) {
	h := newHarness()
	delete(h.env, "GROQ_API_KEY")

	err := h.run(meetingURL)
	if !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
	if ExitCode(err) != ExitFailure {
		t.Fatalf("expected exit 1, got %d", ExitCode(err))
	}
}

func TestRecordFailuresMapToExitCodes(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *fakeRunner)
		code  int
	}{
		{name: "nobody joined", setup: func(r *fakeRunner) { r.recordErr = domain.ErrNoParticipants }, code: ExitNoMeeting},
		{name: "never connected", setup: func(r *fakeRunner) { r.recordErr = domain.ErrConnectionTimeout }, code: ExitNoMeeting},
		{name: "waiting room", setup: func(r *fakeRunner) { r.recordErr = domain.ErrWaitingRoomTimeout }, code: ExitFailure},
		{name: "interrupted", setup: func(r *fakeRunner) { r.interrupted = true }, code: ExitInterrupted},
		{name: "transcription failed", setup: func(r *fakeRunner) { r.transcribeErr = domain.ErrTranscriptionFailed }, code: ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			tt.setup(h.runner)

			err := h.run(meetingURL)
			if got := ExitCode(err); got != tt.code {
				t.Fatalf("expected exit %d, got %d (%v)", tt.code, got, err)
			}
			if h.stdout.Len() != 0 {
				t.Fatalf("no record expected on failure, got %q", h.stdout.String())
			}
		})
	}
}

func TestInterruptedRunKeepsAudio(t *testing.T) {
	h := newHarness()
	h.runner.interrupted = true

	err := h.run(meetingURL)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected interrupted, got %v", err)
	}
	if h.runner.transcribe != 0 {
		t.Fatalf("interrupted run must not transcribe")
	}
	if !strings.Contains(h.stderr.String(), "/tmp/telemost_x.webm") {
		t.Fatalf("expected the audio path to be reported, got %q", h.stderr.String())
	}
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	h := newHarness()
	h.env["WAITING_ROOM_TIMEOUT"] = "soon"

	if err := h.run(meetingURL); !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	h := newHarness()
	h.env["WAITING_ROOM_TIMEOUT"] = "ignored by version"

	if err := h.run("version"); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if strings.TrimSpace(h.stdout.String()) != version.Full() {
		t.Fatalf("unexpected version output %q", h.stdout.String())
	}
}

func TestDoctorCommand(t *testing.T) {
	dir := t.TempDir()
	script := "#!/usr/bin/env bash\necho 'ffmpeg version 6.1'\n"
	for _, name := range []string{"ffmpeg", "ffprobe"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(script), 0o700); err != nil {
			t.Fatalf("write script: %v", err)
		}
	}
	browser := filepath.Join(dir, "chromium")
	if err := os.WriteFile(browser, nil, 0o700); err != nil {
		t.Fatalf("write browser: %v", err)
	}

	h := newHarness()
	h.env["FFMPEG_PATH"] = filepath.Join(dir, "ffmpeg")
	h.env["CHROME_BIN"] = browser

	if err := h.run("doctor"); err != nil {
		t.Fatalf("doctor failed: %v", err)
	}
	out := h.stdout.String()
	for _, want := range []string{
		"[ok] ffmpeg: " + filepath.Join(dir, "ffmpeg"),
		"[ok] ffprobe: " + filepath.Join(dir, "ffprobe"),
		"[ok] Groq API key: configured",
		"[ok] Browser: " + browser,
		"All prerequisites met",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for value, want := range tests {
		if got := parseLevel(value).Level(); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", value, got, want)
		}
	}
}
