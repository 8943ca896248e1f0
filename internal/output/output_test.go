package output

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFormatterPlain(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := NewFormatter(&buf)
	f.Status("Connected! Peer connections: 1, Audio tracks: 2")
	f.Warning("Interrupted, audio kept at %s", "/tmp/a.webm")
	f.SetupCheck("ffmpeg", true, "/usr/bin/ffmpeg")
	f.SetupCheck("GROQ_API_KEY", false, "not set")

	want := "[telemost] Connected! Peer connections: 1, Audio tracks: 2\n" +
		"Interrupted, audio kept at /tmp/a.webm\n" +
		"  [ok] ffmpeg: /usr/bin/ffmpeg\n" +
		"  [missing] GROQ_API_KEY: not set\n"
	if buf.String() != want {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
}

func TestFormatterColor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := NewFormatter(&buf).WithColor(true)
	f.Error("boom")

	if got := buf.String(); got != colorRed+"boom"+colorReset+"\n" {
		t.Fatalf("unexpected colored output %q", got)
	}
}

func TestFormatterDoesNotColorBuffers(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewFormatter(&buf).Success("done")
	if strings.Contains(buf.String(), "\033[") {
		t.Fatalf("unexpected escape codes in %q", buf.String())
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := map[time.Duration]string{
		0:                                         "0s",
		1500 * time.Millisecond:                   "2s",
		2*time.Minute + 3*time.Second:             "2m03s",
		time.Hour + 2*time.Minute + 3*time.Second: "1h02m03s",
	}
	for d, want := range tests {
		if got := FormatDuration(d); got != want {
			t.Fatalf("FormatDuration(%s) = %q, want %q", d, got, want)
		}
	}
}

func TestWriteRecordToStdout(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteRecord("", []byte(`{"url":"x"}`), &buf); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if buf.String() != "{\"url\":\"x\"}\n" {
		t.Fatalf("unexpected stdout %q", buf.String())
	}
}

func TestWriteRecordToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "meeting.json")
	var buf bytes.Buffer
	if err := WriteRecord(path, []byte(`{"url":"x"}`), &buf); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "{\"url\":\"x\"}\n" {
		t.Fatalf("unexpected file contents %q", data)
	}
	if buf.Len() != 0 {
		t.Fatalf("nothing should be printed when writing a file")
	}
}
