package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"go-meeting-transcriber/internal/core/domain"
)

const appDirName = "telemost-transcribe"

// Loader resolves configuration from defaults, a config file, .env files and the
// environment, in increasing precedence. Flags are applied by the caller on top.
// Tests can override Lookup to inject deterministic maps.
type Loader struct {
	Lookup func(string) (string, bool)
	// ConfigPath is an explicit config file; it must exist when set.
	ConfigPath string
	// EnvFiles default to ".env" in the working directory. Missing files are skipped.
	EnvFiles []string
}

type fileConfig struct {
	GroqAPIKey          string   `toml:"groq_api_key" yaml:"groq_api_key"`
	GroqBaseURL         string   `toml:"groq_base_url" yaml:"groq_base_url"`
	GroqModel           string   `toml:"groq_model" yaml:"groq_model"`
	FFmpegPath          string   `toml:"ffmpeg_path" yaml:"ffmpeg_path"`
	SilenceDuration     *float64 `toml:"silence_duration" yaml:"silence_duration"`
	SilenceThreshold    string   `toml:"silence_threshold" yaml:"silence_threshold"`
	DisplayName         string   `toml:"display_name" yaml:"display_name"`
	Language            string   `toml:"language" yaml:"language"`
	AloneWaitSeconds    *int     `toml:"alone_wait_seconds" yaml:"alone_wait_seconds"`
	EmptyMeetingTimeout *int     `toml:"empty_meeting_timeout" yaml:"empty_meeting_timeout"`
	WaitingRoomTimeout  *int     `toml:"waiting_room_timeout" yaml:"waiting_room_timeout"`
	PollIntervalSeconds *int     `toml:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	ChromeBin           string   `toml:"chrome_bin" yaml:"chrome_bin"`
	ListenAddr          string   `toml:"listen_addr" yaml:"listen_addr"`
	LogLevel            string   `toml:"log_level" yaml:"log_level"`
	RecordingsDir       string   `toml:"recordings_dir" yaml:"recordings_dir"`
}

// Load builds and validates the configuration.
func (l Loader) Load() (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}
	if l.EnvFiles == nil {
		l.EnvFiles = []string{".env"}
	}

	cfg := Default()

	path, err := l.configFile()
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		fc, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		fc.apply(&cfg)
	}

	dotenv, err := readEnvFiles(l.EnvFiles)
	if err != nil {
		return Config{}, err
	}
	// Real environment wins over .env entries.
	lookup := func(key string) (string, bool) {
		if v, ok := l.Lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := applyEnv(lookup, &cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (l Loader) configFile() (string, error) {
	if l.ConfigPath != "" {
		if _, err := os.Stat(l.ConfigPath); err != nil {
			return "", fmt.Errorf("%w: config file: %w", domain.ErrConfig, err)
		}
		return l.ConfigPath, nil
	}

	var dir string
	if xdg, ok := l.Lookup("XDG_CONFIG_HOME"); ok && xdg != "" {
		dir = filepath.Join(xdg, appDirName)
	} else if home, ok := l.Lookup("HOME"); ok && home != "" {
		dir = filepath.Join(home, ".config", appDirName)
	} else {
		return "", nil
	}
	for _, name := range []string{"config.toml", "config.yaml", "config.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}

func readFile(path string) (fileConfig, error) {
	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		md, err := toml.DecodeFile(path, &fc)
		if err != nil {
			return fileConfig{}, fmt.Errorf("%w: decode %s: %w", domain.ErrConfig, path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fileConfig{}, fmt.Errorf("%w: %s: unknown key %q", domain.ErrConfig, path, undecoded[0].String())
		}
	case ".yaml", ".yml":
		raw, err := os.ReadFile(path)
		if err != nil {
			return fileConfig{}, fmt.Errorf("%w: %w", domain.ErrConfig, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
			return fileConfig{}, fmt.Errorf("%w: decode %s: %w", domain.ErrConfig, path, err)
		}
	default:
		return fileConfig{}, fmt.Errorf("%w: unsupported config format %q", domain.ErrConfig, filepath.Ext(path))
	}
	return fc, nil
}

func (fc fileConfig) apply(cfg *Config) {
	setString(&cfg.Groq.APIKey, fc.GroqAPIKey)
	setString(&cfg.Groq.BaseURL, fc.GroqBaseURL)
	setString(&cfg.Groq.Model, fc.GroqModel)
	setString(&cfg.Audio.FFmpegPath, expandTilde(fc.FFmpegPath))
	setString(&cfg.Audio.SilenceThreshold, fc.SilenceThreshold)
	setString(&cfg.Meeting.DisplayName, fc.DisplayName)
	setString(&cfg.Meeting.Language, fc.Language)
	setString(&cfg.Browser.Bin, expandTilde(fc.ChromeBin))
	setString(&cfg.ListenAddr, fc.ListenAddr)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.RecordingsDir, expandTilde(fc.RecordingsDir))
	if fc.SilenceDuration != nil {
		cfg.Audio.SilenceDuration = *fc.SilenceDuration
	}
	if fc.AloneWaitSeconds != nil {
		cfg.Meeting.AloneWaitSeconds = *fc.AloneWaitSeconds
	}
	if fc.EmptyMeetingTimeout != nil {
		cfg.Meeting.EmptyMeetingTimeout = *fc.EmptyMeetingTimeout
	}
	if fc.WaitingRoomTimeout != nil {
		cfg.Meeting.WaitingRoomTimeout = *fc.WaitingRoomTimeout
	}
	if fc.PollIntervalSeconds != nil {
		cfg.Meeting.PollIntervalSeconds = *fc.PollIntervalSeconds
	}
}

func readEnvFiles(files []string) (map[string]string, error) {
	merged := make(map[string]string)
	for _, file := range files {
		values, err := godotenv.Read(file)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("%w: read %s: %w", domain.ErrConfig, file, err)
		}
		for k, v := range values {
			// Earlier files take precedence, matching godotenv.Load.
			if _, exists := merged[k]; !exists {
				merged[k] = v
			}
		}
	}
	return merged, nil
}

func applyEnv(lookup func(string) (string, bool), cfg *Config) error {
	overrideString(lookup, "GROQ_API_KEY", &cfg.Groq.APIKey)
	overrideString(lookup, "GROQ_BASE_URL", &cfg.Groq.BaseURL)
	overrideString(lookup, "GROQ_MODEL", &cfg.Groq.Model)
	overrideString(lookup, "FFMPEG_PATH", &cfg.Audio.FFmpegPath)
	overrideString(lookup, "SILENCE_THRESHOLD", &cfg.Audio.SilenceThreshold)
	overrideString(lookup, "TELEMOST_LOG_LEVEL", &cfg.LogLevel)
	overrideString(lookup, "TELEMOST_LISTEN_ADDR", &cfg.ListenAddr)
	overrideString(lookup, "TELEMOST_RECORDINGS_DIR", &cfg.RecordingsDir)
	overrideString(lookup, "CHROME_BIN", &cfg.Browser.Bin)

	if err := overrideFloat(lookup, "SILENCE_DURATION", &cfg.Audio.SilenceDuration); err != nil {
		return err
	}
	ints := []struct {
		key    string
		target *int
	}{
		{"ALONE_WAIT_SECONDS", &cfg.Meeting.AloneWaitSeconds},
		{"EMPTY_MEETING_TIMEOUT", &cfg.Meeting.EmptyMeetingTimeout},
		{"WAITING_ROOM_TIMEOUT", &cfg.Meeting.WaitingRoomTimeout},
		{"POLL_INTERVAL_SECONDS", &cfg.Meeting.PollIntervalSeconds},
	}
	for _, entry := range ints {
		if err := overrideInt(lookup, entry.key, entry.target); err != nil {
			return err
		}
	}
	return nil
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideInt(lookup func(string) (string, bool), key string, target *int) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("%w: %s must be an integer, got %q", domain.ErrConfig, key, value)
	}
	*target = n
	return nil
}

func overrideFloat(lookup func(string) (string, bool), key string, target *float64) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fmt.Errorf("%w: %s must be a number, got %q", domain.ErrConfig, key, value)
	}
	*target = f
	return nil
}

func setString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
