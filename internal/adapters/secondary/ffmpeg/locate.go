package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go-meeting-transcriber/internal/core/domain"
)

const versionTimeout = 5 * time.Second

// Binaries are the resolved executables.
type Binaries struct {
	FFmpeg  string
	FFprobe string
}

// CommonPaths are checked after the explicit candidates and PATH.
var CommonPaths = []string{
	"/usr/local/bin/ffmpeg",
	"/usr/bin/ffmpeg",
	"/opt/homebrew/bin/ffmpeg",
	"/opt/local/bin/ffmpeg",
	`C:\ffmpeg\bin\ffmpeg.exe`,
	`C:\Program Files\ffmpeg\bin\ffmpeg.exe`,
}

const installHint = `Install it via:
  macOS: brew install ffmpeg
  Ubuntu: sudo apt install ffmpeg
  Windows: download from https://ffmpeg.org/download.html
Or point to it with FFMPEG_PATH or --ffmpeg`

// Locate resolves ffmpeg from the explicit candidates, PATH, then CommonPaths, and
// ffprobe next to it. Each ffmpeg candidate must answer -version.
func Locate(ctx context.Context, explicit ...string) (Binaries, error) {
	var candidates []string
	for _, c := range explicit {
		if c != "" {
			candidates = append(candidates, c)
		}
	}
	if p, err := exec.LookPath("ffmpeg"); err == nil {
		candidates = append(candidates, p)
	}
	candidates = append(candidates, CommonPaths...)

	for _, path := range candidates {
		if !Validate(ctx, path) {
			continue
		}
		probe, err := locateProbe(path)
		if err != nil {
			return Binaries{}, err
		}
		return Binaries{FFmpeg: path, FFprobe: probe}, nil
	}
	return Binaries{}, fmt.Errorf("%w: FFmpeg not found. %s", domain.ErrConfig, installHint)
}

// Validate reports whether path runs and prints an ffmpeg version banner.
func Validate(ctx context.Context, path string) bool {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(out)), "version")
}

func locateProbe(ffmpegPath string) (string, error) {
	name := "ffprobe"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	sibling := filepath.Join(filepath.Dir(ffmpegPath), name)
	if p, err := exec.LookPath(sibling); err == nil {
		return p, nil
	}
	if p, err := exec.LookPath("ffprobe"); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("%w: ffprobe not found next to %s or on PATH. %s", domain.ErrConfig, ffmpegPath, installHint)
}
