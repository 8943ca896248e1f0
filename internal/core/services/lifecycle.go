package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-meeting-transcriber/internal/core/domain"
	"go-meeting-transcriber/internal/core/ports"
)

// LifecycleConfig holds the timing knobs of a call session. Timeouts are in seconds.
type LifecycleConfig struct {
	DisplayName         string
	WaitingRoomTimeout  int
	AloneGraceSeconds   int
	EmptyMeetingTimeout int
	PollIntervalSeconds int

	ConnectTick   time.Duration
	LoadDelay     time.Duration
	JoinDelay     time.Duration
	SettleDelay   time.Duration
	RetrieveLimit time.Duration
	RecordingsDir string
}

// DefaultLifecycleConfig mirrors the defaults used by the CLI.
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		DisplayName:         "Transcriber Bot",
		WaitingRoomTimeout:  300,
		AloneGraceSeconds:   15,
		EmptyMeetingTimeout: 600,
		PollIntervalSeconds: 5,
		ConnectTick:         time.Second,
		LoadDelay:           3 * time.Second,
		JoinDelay:           2 * time.Second,
		SettleDelay:         5 * time.Second,
		RetrieveLimit:       time.Minute,
	}
}

// LifecycleController drives one call from navigation to the end of recording.
type LifecycleController struct {
	page   ports.MeetingPage
	cfg    LifecycleConfig
	status ports.StatusFunc
	log    *slog.Logger

	// Sleep and Now are replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time

	OnRecordingStarted func(startedAt time.Time)

	mu    sync.Mutex
	state domain.SessionState
}

func NewLifecycleController(page ports.MeetingPage, cfg LifecycleConfig, status ports.StatusFunc, logger *slog.Logger) *LifecycleController {
	if logger == nil {
		logger = slog.Default()
	}
	if status == nil {
		status = func(string) {}
	}
	if cfg.PollIntervalSeconds <= 0 {
		cfg.PollIntervalSeconds = 5
	}
	if cfg.ConnectTick <= 0 {
		cfg.ConnectTick = time.Second
	}
	if cfg.RetrieveLimit <= 0 {
		cfg.RetrieveLimit = time.Minute
	}
	if cfg.RecordingsDir == "" {
		cfg.RecordingsDir = os.TempDir()
	}
	return &LifecycleController{
		page:   page,
		cfg:    cfg,
		status: status,
		log:    logger.With("component", "services.LifecycleController"),
		Sleep:  sleepContext,
		Now:    time.Now,
		state:  domain.StateJoining,
	}
}

// State returns the current inferred call state.
func (c *LifecycleController) State() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *LifecycleController) setState(state domain.SessionState) {
	c.mu.Lock()
	prev := c.state
	c.state = state
	c.mu.Unlock()
	if prev != state {
		c.log.Debug("state changed", "from", prev, "to", state)
	}
}

func (c *LifecycleController) report(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.log.Debug(msg)
	c.status(msg)
}

// Run joins the call, records it and returns once recording stopped.
// With waitForEnd false the recording runs until ctx is cancelled, which is the normal stop.
// With waitForEnd true a cancellation still retrieves the recording and marks the result
// as interrupted.
func (c *LifecycleController) Run(ctx context.Context, meetingURL string, waitForEnd bool) (domain.SessionResult, error) {
	if err := ValidateMeetingURL(meetingURL); err != nil {
		return domain.SessionResult{}, err
	}
	c.setState(domain.StateJoining)

	c.report("Navigating to %s", meetingURL)
	if err := c.page.Navigate(ctx, meetingURL); err != nil {
		return domain.SessionResult{}, fmt.Errorf("navigate: %w", err)
	}
	if err := c.Sleep(ctx, c.cfg.LoadDelay); err != nil {
		return domain.SessionResult{}, err
	}
	c.page.Snapshot(ctx, "01_loaded")

	if err := c.prepareJoin(ctx); err != nil {
		return domain.SessionResult{}, err
	}
	c.page.Snapshot(ctx, "04_after_join_click")

	if err := c.waitForConnection(ctx); err != nil {
		return domain.SessionResult{}, err
	}
	c.page.Snapshot(ctx, "05_connected")

	c.report("Waiting for audio tracks...")
	if err := c.Sleep(ctx, c.cfg.SettleDelay); err != nil {
		return domain.SessionResult{}, err
	}

	startedAt := c.Now()
	if err := c.startRecording(ctx); err != nil {
		return domain.SessionResult{}, err
	}
	if c.OnRecordingStarted != nil {
		c.OnRecordingStarted(startedAt)
	}

	interrupted := false
	if waitForEnd {
		err := c.waitForEnd(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil && errors.Is(err, ctx.Err()):
			c.report("Interrupted, stopping recording")
			interrupted = true
		default:
			return domain.SessionResult{}, err
		}
	} else {
		c.report("Recording... Press Ctrl+C to stop")
		<-ctx.Done()
	}

	endedAt := c.Now()
	c.setState(domain.StateEnded)

	path, err := c.retrieveRecording(ctx)
	if err != nil {
		return domain.SessionResult{}, err
	}

	result := domain.NewSessionResult(path, startedAt, endedAt)
	result.Interrupted = interrupted
	c.report("Recording complete: %d seconds", result.DurationSeconds)
	return result, nil
}

func (c *LifecycleController) prepareJoin(ctx context.Context) error {
	c.report("Looking for 'Continue in browser' button...")
	clicked, err := c.clickControl(ctx, ports.IntentContinueInBrowser)
	if err != nil {
		return err
	}
	if clicked {
		c.report("Clicked 'Continue in browser'")
		if err := c.Sleep(ctx, c.cfg.LoadDelay); err != nil {
			return err
		}
	}

	c.report("Looking for name input...")
	input, found, err := c.findControl(ctx, ports.IntentNameInput)
	if err != nil {
		return err
	}
	if found {
		if err := input.Fill(ctx, c.cfg.DisplayName); err != nil {
			c.log.Warn("failed to enter display name", "error", err)
		} else {
			c.report("Entered name: %s", c.cfg.DisplayName)
		}
	} else {
		c.report("No name input found (may not be required)")
	}

	// Mute before joining so the bot never transmits.
	c.report("Muting microphone and camera...")
	for _, intent := range []ports.ControlIntent{ports.IntentMuteMic, ports.IntentMuteCamera} {
		if err := c.switchOff(ctx, intent); err != nil {
			return err
		}
	}

	c.report("Looking for join button...")
	join, found, err := c.findControl(ctx, ports.IntentJoin)
	if err != nil {
		return err
	}
	if !found {
		c.report("No join button found - may already be in call or page structure changed")
		return nil
	}
	c.report("Found button: '%s' - clicking...", join.Label(ctx))
	if err := join.Click(ctx); err != nil {
		if errors.Is(err, domain.ErrProbeLost) {
			return err
		}
		c.log.Warn("join click failed", "error", err)
	}
	return c.Sleep(ctx, c.cfg.JoinDelay)
}

func (c *LifecycleController) switchOff(ctx context.Context, intent ports.ControlIntent) error {
	control, found, err := c.findControl(ctx, intent)
	if err != nil {
		return err
	}
	if !found {
		c.report("%s control not found", intent)
		return nil
	}
	active, err := control.Active(ctx)
	if err != nil {
		c.log.Warn("failed to read control state", "intent", intent, "error", err)
		return nil
	}
	if !active {
		c.report("%s already off", intent)
		return nil
	}
	if err := control.Click(ctx); err != nil {
		if errors.Is(err, domain.ErrProbeLost) {
			return err
		}
		c.log.Warn("failed to switch off control", "intent", intent, "error", err)
		return nil
	}
	c.report("%s done", intent)
	return nil
}

// findControl treats lookup failures as "not found" unless the page is gone.
func (c *LifecycleController) findControl(ctx context.Context, intent ports.ControlIntent) (ports.ControlHandle, bool, error) {
	control, found, err := c.page.FindControl(ctx, intent)
	if err != nil {
		if errors.Is(err, domain.ErrProbeLost) {
			return nil, false, err
		}
		c.log.Debug("control lookup failed", "intent", intent, "error", err)
		return nil, false, nil
	}
	return control, found, nil
}

func (c *LifecycleController) clickControl(ctx context.Context, intent ports.ControlIntent) (bool, error) {
	control, found, err := c.findControl(ctx, intent)
	if err != nil || !found {
		return false, err
	}
	if err := control.Click(ctx); err != nil {
		if errors.Is(err, domain.ErrProbeLost) {
			return false, err
		}
		c.log.Debug("click failed", "intent", intent, "error", err)
		return false, nil
	}
	return true, nil
}

// waitForConnection polls once per tick for up to WaitingRoomTimeout ticks.
func (c *LifecycleController) waitForConnection(ctx context.Context) error {
	c.report("Waiting for WebRTC connection...")

	waitingRoomTime := 0
	inWaitingRoom := false

	for i := 0; i < c.cfg.WaitingRoomTimeout; i++ {
		status, err := c.page.Status(ctx)
		switch {
		case err != nil:
			if errors.Is(err, domain.ErrProbeLost) {
				return err
			}
			c.log.Debug("status check failed", "error", err)
		case status.ConnectionCount > 0 && status.AudioTrackCount > 0:
			c.setState(domain.StateConnectedAlone)
			c.report("Connected! Peer connections: %d, Audio tracks: %d", status.ConnectionCount, status.AudioTrackCount)
			return nil
		case status.ConnectionCount > 0:
			inWaitingRoom = true
			c.setState(domain.StateInWaitingRoom)
			waitingRoomTime++
			if i%10 == 0 {
				c.report("In waiting room... (%ds until timeout)", c.cfg.WaitingRoomTimeout-waitingRoomTime)
			}
		}

		if i%10 == 0 && i > 0 && !inWaitingRoom {
			c.report("Still waiting for connection... (%ds)", i)
		}

		if err := c.Sleep(ctx, c.cfg.ConnectTick); err != nil {
			return err
		}
	}

	if inWaitingRoom {
		return domain.ErrWaitingRoomTimeout
	}
	return domain.ErrConnectionTimeout
}

func (c *LifecycleController) startRecording(ctx context.Context) error {
	ok, err := c.page.StartRecording(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrProbeLost) {
			return err
		}
		c.log.Warn("start recording failed", "error", err)
	}
	if ok {
		c.report("Recording started")
	} else {
		c.report("Warning: Recording may not have started properly")
	}

	if status, err := c.page.Status(ctx); err == nil {
		c.report("Status: peers=%d, tracks=%d, ctx=%s", status.ConnectionCount, status.AudioTrackCount, status.AudioContextState)
	}
	return nil
}

// waitForEnd polls every PollIntervalSeconds until the call ends.
func (c *LifecycleController) waitForEnd(ctx context.Context) error {
	c.report("Waiting for meeting to end (Ctrl+C to stop manually)...")

	interval := c.cfg.PollIntervalSeconds
	maxAlone := aloneTicks(c.cfg.AloneGraceSeconds, interval)
	aloneCount := 0
	totalAlone := 0
	hadParticipants := false

	for {
		if err := c.Sleep(ctx, time.Duration(interval)*time.Second); err != nil {
			return err
		}

		ended, err := c.meetingEnded(ctx)
		if err != nil {
			return err
		}
		if ended {
			c.report("Meeting ended (detected end screen)")
			return nil
		}

		status, err := c.page.Status(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrProbeLost) {
				return err
			}
			c.report("Status check error: %v", err)
			continue
		}

		switch count := status.ParticipantCount; {
		case count == 1:
			aloneCount++
			totalAlone += interval
			c.setState(domain.StateConnectedAlone)

			if hadParticipants {
				c.report("Recording: %d chunks | Alone in meeting (%d/%d)", status.ChunksRecorded, aloneCount, maxAlone)
				if aloneCount >= maxAlone {
					c.report("All participants left - ending recording")
					return nil
				}
			} else {
				c.report("Recording: %d chunks | Waiting for participants (%ds remaining)", status.ChunksRecorded, c.cfg.EmptyMeetingTimeout-totalAlone)
				if totalAlone >= c.cfg.EmptyMeetingTimeout {
					c.report("No one joined the meeting - timeout reached")
					return domain.ErrNoParticipants
				}
			}
		case count > 1:
			aloneCount = 0
			hadParticipants = true
			c.setState(domain.StateConnectedWithPeers)
			c.report("Recording: %d chunks | %d participants, %d audio tracks", status.ChunksRecorded, count, status.AudioTrackCount)
		default:
			c.report("Recording: %d chunks | %d audio tracks", status.ChunksRecorded, status.AudioTrackCount)
		}
	}
}

func (c *LifecycleController) meetingEnded(ctx context.Context) (bool, error) {
	_, found, err := c.findControl(ctx, ports.IntentEndIndicator)
	if err != nil {
		return false, err
	}
	if found {
		return true, nil
	}

	current, err := c.page.CurrentURL(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrProbeLost) {
			return false, err
		}
		return false, nil
	}
	return LeftCall(current), nil
}

// retrieveRecording survives a cancelled ctx so an interrupt does not lose the audio.
func (c *LifecycleController) retrieveRecording(ctx context.Context) (string, error) {
	c.report("Retrieving recording...")

	retrieveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.RetrieveLimit)
	defer cancel()

	data, err := c.page.StopRecording(retrieveCtx)
	if err != nil {
		return "", fmt.Errorf("stop recording: %w", err)
	}
	if len(data) == 0 {
		if status, err := c.page.Status(retrieveCtx); err == nil {
			c.report("Final status: peers=%d, tracks=%d, chunks=%d", status.ConnectionCount, status.AudioTrackCount, status.ChunksRecorded)
		}
		return "", domain.ErrNoAudioRecorded
	}
	c.report("Retrieved %.2f MB of audio", float64(len(data))/(1024*1024))

	if err := os.MkdirAll(c.cfg.RecordingsDir, 0o755); err != nil {
		return "", fmt.Errorf("create recordings dir: %w", err)
	}
	path := filepath.Join(c.cfg.RecordingsDir, "telemost_"+uuid.New().String()+".webm")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write recording: %w", err)
	}
	return path, nil
}

// aloneTicks converts the alone grace period into poll ticks, rounding up, minimum one.
func aloneTicks(graceSeconds, intervalSeconds int) int {
	if intervalSeconds <= 0 {
		intervalSeconds = 1
	}
	ticks := (graceSeconds + intervalSeconds - 1) / intervalSeconds
	return max(1, ticks)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
