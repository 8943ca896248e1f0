package app

import (
	"testing"

	"go-meeting-transcriber/internal/config"
)

func TestPipelineConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Meeting.DisplayName = "Протокол"
	cfg.Meeting.WaitingRoomTimeout = 120
	cfg.Meeting.AloneWaitSeconds = 30
	cfg.Meeting.EmptyMeetingTimeout = 900
	cfg.Meeting.PollIntervalSeconds = 10
	cfg.Meeting.Language = "en"
	cfg.Audio.SilenceThreshold = "-35dB"
	cfg.Audio.MaxFileSize = 10 << 20
	cfg.Audio.TargetSegmentSize = 8 << 20
	cfg.Browser.Headless = false
	cfg.Browser.Bin = "/usr/bin/chromium"
	cfg.RecordingsDir = "/var/lib/telemost"

	got := PipelineConfig(cfg, Options{FakeVideoPath: "cam.y4m", Debug: true})

	lc := got.Lifecycle
	if lc.DisplayName != "Протокол" || lc.WaitingRoomTimeout != 120 || lc.AloneGraceSeconds != 30 ||
		lc.EmptyMeetingTimeout != 900 || lc.PollIntervalSeconds != 10 || lc.RecordingsDir != "/var/lib/telemost" {
		t.Fatalf("unexpected lifecycle config %+v", lc)
	}
	if lc.ConnectTick == 0 || lc.LoadDelay == 0 {
		t.Fatalf("expected default delays to be kept, got %+v", lc)
	}

	ec := got.Engine
	if ec.SilenceThreshold != "-35dB" || ec.MaxFileSize != 10<<20 || ec.TargetSegmentSize != 8<<20 || ec.TargetFormat != "mp3" {
		t.Fatalf("unexpected engine config %+v", ec)
	}

	b := got.Browser
	if b.Headless || b.BrowserBin != "/usr/bin/chromium" || b.FakeVideoPath != "cam.y4m" || !b.Debug {
		t.Fatalf("unexpected browser options %+v", b)
	}
	if got.Language != "en" {
		t.Fatalf("expected language en, got %q", got.Language)
	}
}
