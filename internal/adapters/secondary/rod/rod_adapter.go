package rod

import (
	"context"
	_ "embed"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"go-meeting-transcriber/internal/core/domain"
	"go-meeting-transcriber/internal/core/ports"
)

//go:embed assets/rtc_interceptor.js
var interceptorJS string

const (
	viewportWidth  = 1280
	viewportHeight = 720
	pageLocale     = "ru-RU"
)

// DebugDir is where Snapshot writes screenshots when debugging is on.
var DebugDir = os.TempDir()

// Launcher starts one isolated headless Chrome per call.
type Launcher struct {
	log *slog.Logger
}

func NewLauncher(logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{log: logger.With("component", "rod.Launcher")}
}

var _ ports.BrowserLauncher = (*Launcher)(nil)

func (r *Launcher) Open(ctx context.Context, opts ports.BrowserOptions) (ports.MeetingPage, error) {
	r.log.Debug("launching browser", "headless", opts.Headless, "bin", opts.BrowserBin)

	l := launcher.New().
		Headless(opts.Headless).
		Set("no-sandbox").
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("disable-blink-features", "AutomationControlled").
		Set("use-fake-ui-for-media-stream").
		Set("use-fake-device-for-media-stream").
		Set("autoplay-policy", "no-user-gesture-required").
		Set("disable-web-security").
		Set("allow-running-insecure-content").
		Set("disable-notifications").
		Set("lang", pageLocale)
	if opts.BrowserBin != "" {
		l = l.Bin(opts.BrowserBin)
	}
	if opts.FakeVideoPath != "" {
		l = l.Set("use-file-for-fake-video-capture", opts.FakeVideoPath)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// The browser is not bound to ctx; every later call carries its own context.
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	p := &Page{
		browser:  browser,
		launcher: l,
		debug:    opts.Debug,
		log:      r.log,
	}
	if err := p.setup(); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

// Page is a live call page with the audio interceptor installed.
type Page struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
	debug    bool
	log      *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

var _ ports.MeetingPage = (*Page)(nil)

func (p *Page) setup() error {
	err := proto.BrowserGrantPermissions{
		Permissions: []proto.BrowserPermissionType{
			proto.BrowserPermissionTypeAudioCapture,
			proto.BrowserPermissionTypeVideoCapture,
		},
	}.Call(p.browser)
	if err != nil {
		return fmt.Errorf("grant media permissions: %w", err)
	}

	page, err := stealth.Page(p.browser)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	p.page = page

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             viewportWidth,
		Height:            viewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}
	if err := (proto.EmulationSetLocaleOverride{Locale: pageLocale}).Call(page); err != nil {
		p.log.Warn("failed to override locale", "error", err)
	}
	if _, err := page.SetExtraHeaders([]string{"Accept-Language", "ru-RU,ru;q=0.9,en;q=0.8"}); err != nil {
		p.log.Warn("failed to set extra headers", "error", err)
	}
	if _, err := page.EvalOnNewDocument(interceptorJS); err != nil {
		return fmt.Errorf("install audio interceptor: %w", err)
	}
	return nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)
	wait := pg.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := pg.Navigate(url); err != nil {
		return classify(err)
	}
	wait()
	return nil
}

func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", classify(err)
	}
	return info.URL, nil
}

func (p *Page) FindControl(ctx context.Context, intent ports.ControlIntent) (ports.ControlHandle, bool, error) {
	candidates, ok := controlCandidates[intent]
	if !ok {
		return nil, false, fmt.Errorf("unknown control intent %q", intent)
	}
	pg := p.page.Context(ctx)
	for _, c := range candidates {
		el, err := firstVisible(pg, c)
		if err != nil {
			if errors.Is(err, domain.ErrProbeLost) || ctx.Err() != nil {
				return nil, false, err
			}
			p.log.Debug("candidate lookup failed", "intent", intent, "selector", c.Selector, "error", err)
			continue
		}
		if el != nil {
			return &control{el: el, intent: intent}, true, nil
		}
	}
	return nil, false, nil
}

func firstVisible(pg *rod.Page, c candidate) (*rod.Element, error) {
	if c.Text != "" {
		has, el, err := pg.HasR(c.Selector, c.Text)
		if err != nil {
			return nil, classify(err)
		}
		if !has {
			return nil, nil
		}
		visible, err := el.Visible()
		if err != nil || !visible {
			return nil, classify(err)
		}
		return el, nil
	}

	els, err := pg.Elements(c.Selector)
	if err != nil {
		return nil, classify(err)
	}
	for _, el := range els {
		if visible, err := el.Visible(); err == nil && visible {
			return el, nil
		}
	}
	return nil, nil
}

func (p *Page) Status(ctx context.Context) (domain.CallStatus, error) {
	res, err := p.page.Context(ctx).Eval(statusJS)
	if err != nil {
		return domain.CallStatus{}, classify(err)
	}
	return decodeStatus(res.Value), nil
}

func (p *Page) StartRecording(ctx context.Context) (bool, error) {
	res, err := p.page.Context(ctx).Eval(startRecordingJS)
	if err != nil {
		return false, classify(err)
	}
	return res.Value.Bool(), nil
}

func (p *Page) StopRecording(ctx context.Context) ([]byte, error) {
	res, err := p.page.Context(ctx).Eval(stopRecordingJS)
	if err != nil {
		return nil, classify(err)
	}
	encoded := recordingPayload(res.Value)
	if encoded == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode recording: %w", err)
	}
	return data, nil
}

func (p *Page) Snapshot(ctx context.Context, name string) {
	if !p.debug {
		return
	}
	buf, err := p.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		p.log.Debug("screenshot failed", "name", name, "error", err)
		return
	}
	path := filepath.Join(DebugDir, fmt.Sprintf("telemost_debug_%s.png", name))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		p.log.Debug("failed to write screenshot", "path", path, "error", err)
		return
	}
	p.log.Debug("screenshot saved", "path", path)
}

func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.browser.Close()
		p.launcher.Kill()
		p.launcher.Cleanup()
		if p.closeErr != nil && isLost(p.closeErr) {
			p.closeErr = nil
		}
	})
	return p.closeErr
}

// lostMarkers are fragments of CDP and transport errors seen when the page or browser
// is gone.
var lostMarkers = []string{
	"target closed",
	"browser has been closed",
	"browser has disconnected",
	"no target with given id",
	"session with given id not found",
	"use of closed network connection",
	"websocket: close",
	"connection reset by peer",
	"broken pipe",
}

func isLost(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range lostMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// classify maps transport failures to domain.ErrProbeLost and leaves the rest untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isLost(err) {
		return fmt.Errorf("%w: %w", domain.ErrProbeLost, err)
	}
	return err
}

// LookupBrowser reports the browser binary Open would start. When nothing is found
// rod downloads a browser on first launch.
func LookupBrowser(bin string) (string, bool) {
	if bin != "" {
		_, err := os.Stat(bin)
		return bin, err == nil
	}
	return launcher.LookPath()
}
