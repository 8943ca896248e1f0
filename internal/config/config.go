package config

import (
	"fmt"
	"time"

	"go-meeting-transcriber/internal/core/domain"
)

const (
	DefaultListenAddr       = ":8081"
	DefaultLogLevel         = "info"
	DefaultLanguage         = "ru"
	DefaultDisplayName      = "Transcriber Bot"
	DefaultSilenceDuration  = 1.0
	DefaultSilenceThreshold = "-40dB"
	DefaultGroqBaseURL      = "https://api.groq.com/openai/v1"
	DefaultGroqModel        = "whisper-large-v3-turbo"
	DefaultGroqTimeout      = 10 * time.Minute

	megabyte = 1024 * 1024
)

// Config is the resolved runtime configuration.
type Config struct {
	Groq    GroqConfig
	Audio   AudioConfig
	Meeting MeetingConfig
	Browser BrowserConfig

	ListenAddr    string
	LogLevel      string
	RecordingsDir string
}

type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type AudioConfig struct {
	FFmpegPath        string
	SilenceDuration   float64
	SilenceThreshold  string
	MaxFileSize       int64
	TargetSegmentSize int64
}

type MeetingConfig struct {
	DisplayName         string
	Language            string
	AloneWaitSeconds    int
	EmptyMeetingTimeout int
	WaitingRoomTimeout  int
	PollIntervalSeconds int
}

type BrowserConfig struct {
	Bin      string
	Headless bool
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Groq: GroqConfig{
			BaseURL: DefaultGroqBaseURL,
			Model:   DefaultGroqModel,
			Timeout: DefaultGroqTimeout,
		},
		Audio: AudioConfig{
			SilenceDuration:   DefaultSilenceDuration,
			SilenceThreshold:  DefaultSilenceThreshold,
			MaxFileSize:       24 * megabyte,
			TargetSegmentSize: 20 * megabyte,
		},
		Meeting: MeetingConfig{
			DisplayName:         DefaultDisplayName,
			Language:            DefaultLanguage,
			AloneWaitSeconds:    15,
			EmptyMeetingTimeout: 600,
			WaitingRoomTimeout:  300,
			PollIntervalSeconds: 5,
		},
		Browser: BrowserConfig{
			Headless: true,
		},
		ListenAddr: DefaultListenAddr,
		LogLevel:   DefaultLogLevel,
	}
}

// Validate applies defaults to empty fields and rejects out-of-range values.
func (c *Config) Validate() error {
	d := Default()
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Groq.BaseURL == "" {
		c.Groq.BaseURL = d.Groq.BaseURL
	}
	if c.Groq.Model == "" {
		c.Groq.Model = d.Groq.Model
	}
	if c.Groq.Timeout <= 0 {
		c.Groq.Timeout = d.Groq.Timeout
	}
	if c.Audio.SilenceThreshold == "" {
		c.Audio.SilenceThreshold = d.Audio.SilenceThreshold
	}
	if c.Audio.MaxFileSize == 0 {
		c.Audio.MaxFileSize = d.Audio.MaxFileSize
	}
	if c.Audio.TargetSegmentSize == 0 {
		c.Audio.TargetSegmentSize = d.Audio.TargetSegmentSize
	}
	if c.Meeting.DisplayName == "" {
		c.Meeting.DisplayName = d.Meeting.DisplayName
	}
	if c.Meeting.Language == "" {
		c.Meeting.Language = d.Meeting.Language
	}
	if c.Meeting.PollIntervalSeconds == 0 {
		c.Meeting.PollIntervalSeconds = d.Meeting.PollIntervalSeconds
	}

	if c.Audio.SilenceDuration < 0 {
		return fmt.Errorf("%w: silence duration must be >= 0, got %v", domain.ErrConfig, c.Audio.SilenceDuration)
	}
	if c.Audio.MaxFileSize < 0 || c.Audio.TargetSegmentSize < 0 {
		return fmt.Errorf("%w: file size limits must be positive", domain.ErrConfig)
	}
	if c.Audio.TargetSegmentSize >= c.Audio.MaxFileSize {
		return fmt.Errorf("%w: target segment size %d must be below max file size %d",
			domain.ErrConfig, c.Audio.TargetSegmentSize, c.Audio.MaxFileSize)
	}
	timeouts := []struct {
		name  string
		value int
	}{
		{"alone wait", c.Meeting.AloneWaitSeconds},
		{"empty meeting timeout", c.Meeting.EmptyMeetingTimeout},
		{"waiting room timeout", c.Meeting.WaitingRoomTimeout},
	}
	for _, tm := range timeouts {
		if tm.value < 0 {
			return fmt.Errorf("%w: %s must be >= 0, got %d", domain.ErrConfig, tm.name, tm.value)
		}
	}
	if c.Meeting.PollIntervalSeconds < 0 {
		return fmt.Errorf("%w: poll interval must be > 0, got %d", domain.ErrConfig, c.Meeting.PollIntervalSeconds)
	}
	return nil
}

// RequireTranscription checks what a transcription run needs beyond Validate.
func (c Config) RequireTranscription() error {
	if c.Groq.APIKey == "" {
		return fmt.Errorf("%w: GROQ_API_KEY not set. Get your key at https://console.groq.com/ and set it via: export GROQ_API_KEY='gsk_...'", domain.ErrConfig)
	}
	return nil
}
