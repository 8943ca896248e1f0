package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go-meeting-transcriber/internal/core/domain"
	"go-meeting-transcriber/internal/core/ports"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "whisper-large-v3-turbo"
	DefaultTimeout = 10 * time.Minute
)

// prompts steer the model away from inventing speech during pauses.
var prompts = map[string]string{
	"ru": "Это запись рабочей видеоконференции. Транскрибируй только то, что реально было сказано.",
	"en": "This is a work video conference recording. Transcribe only what was actually said.",
}

const defaultPrompt = "Transcribe the audio accurately."

// PromptFor returns the transcription prompt for a language code.
func PromptFor(language string) string {
	if p, ok := prompts[strings.ToLower(language)]; ok {
		return p
	}
	return defaultPrompt
}

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client calls the OpenAI-compatible audio transcription endpoint.
type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

var _ ports.Transcriber = (*Client)(nil)

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logger.With("component", "groq.Client"),
	}
}

type verboseResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// APIError is a non-2xx answer from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("groq http %d: %s", e.StatusCode, e.Message)
}

func (c *Client) Transcribe(ctx context.Context, req ports.TranscriptionRequest) (domain.TranscriptResult, error) {
	body, contentType, err := c.buildForm(req)
	if err != nil {
		return domain.TranscriptResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/audio/transcriptions", body)
	if err != nil {
		return domain.TranscriptResult{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", contentType)

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.TranscriptResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return domain.TranscriptResult{}, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(b)}
	}

	var out verboseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.TranscriptResult{}, fmt.Errorf("decode transcription response: %w", err)
	}
	c.log.Debug("transcription received", "file", req.FileName, "bytes", len(req.Audio), "elapsed", time.Since(started), "chars", len(out.Text))

	language := out.Language
	if language == "" {
		language = req.Language
	}
	return domain.TranscriptResult{
		Text:             strings.TrimSpace(out.Text),
		DetectedLanguage: language,
		DurationSeconds:  out.Duration,
	}, nil
}

func (c *Client) buildForm(req ports.TranscriptionRequest) (io.Reader, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fields := [][2]string{
		{"model", c.cfg.Model},
		{"response_format", "verbose_json"},
		{"prompt", PromptFor(req.Language)},
	}
	if req.Language != "" && req.Language != "auto" {
		fields = append(fields, [2]string{"language", req.Language})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	name := req.FileName
	if name == "" {
		name = "audio.mp3"
	}
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(req.Audio); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &body, mw.FormDataContentType(), nil
}

func errorMessage(body []byte) string {
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty response"
	}
	return msg
}
