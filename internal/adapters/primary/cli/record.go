package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go-meeting-transcriber/internal/app"
	"go-meeting-transcriber/internal/config"
	"go-meeting-transcriber/internal/core/domain"
	"go-meeting-transcriber/internal/output"
)

type recordOptions struct {
	output    string
	language  string
	keepAudio bool
	headed    bool
	ffmpeg    string
	name      string
	fakeVideo string
	debug     bool
	noWait    bool
}

func (o *recordOptions) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&o.output, "output", "o", "", "Write the JSON record to this file instead of stdout")
	flags.StringVarP(&o.language, "language", "l", "", "Transcription language code (default from config, ru)")
	flags.BoolVar(&o.keepAudio, "keep-audio", false, "Keep the recorded audio file")
	flags.BoolVar(&o.headed, "headed", false, "Show the browser window")
	flags.StringVar(&o.ffmpeg, "ffmpeg", "", "Path to the ffmpeg binary")
	flags.StringVar(&o.name, "name", "", "Display name in the meeting (default \"Transcriber Bot\")")
	flags.StringVar(&o.fakeVideo, "fake-video", "", "Video file (.y4m or .mjpeg) to use as the camera feed")
	flags.BoolVar(&o.debug, "debug", false, "Verbose logs and step screenshots")
	flags.BoolVar(&o.noWait, "no-wait", false, "Record until Ctrl+C instead of waiting for the meeting to end")
}

// apply layers explicitly set flags over the loaded configuration.
func (o *recordOptions) apply(cfg *config.Config) {
	if o.language != "" {
		cfg.Meeting.Language = o.language
	}
	if o.name != "" {
		cfg.Meeting.DisplayName = o.name
	}
	if o.ffmpeg != "" {
		cfg.Audio.FFmpegPath = o.ffmpeg
	}
	if o.headed {
		cfg.Browser.Headless = false
	}
	if o.debug {
		cfg.LogLevel = "debug"
	}
}

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	opts := &recordOptions{}
	cmd := &cobra.Command{
		Use:   "record <meeting-url>",
		Short: "Record and transcribe one meeting (the default command)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd, deps, opts, args[0])
		},
	}
	opts.bind(cmd)
	return cmd
}

func runRecord(cmd *cobra.Command, deps *Dependencies, opts *recordOptions, meetingURL string) error {
	cfg := *deps.Config
	opts.apply(&cfg)

	logger := deps.Logger
	if opts.debug {
		logger = newLogger(deps.Stderr, cfg.LogLevel)
	}
	f := output.NewFormatter(deps.Stderr)

	if err := cfg.RequireTranscription(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := deps.NewRunner(ctx, cfg, app.Options{
		FakeVideoPath: opts.fakeVideo,
		Debug:         opts.debug,
	}, logger)
	if err != nil {
		return err
	}

	req := domain.MeetingRequest{
		MeetingURL:  meetingURL,
		DisplayName: cfg.Meeting.DisplayName,
		Language:    cfg.Meeting.Language,
		KeepAudio:   opts.keepAudio,
		WaitForEnd:  !opts.noWait,
	}

	f.Info("Joining meeting: %s", meetingURL)
	session, err := runner.Record(ctx, req, f.Status, func(time.Time) {
		if opts.noWait {
			f.Info("Recording... press Ctrl+C to stop")
		} else {
			f.Info("Recording... will stop when the meeting ends")
		}
	})
	stop()
	if err != nil {
		return err
	}
	f.RecordingStopped(session.EndedAt.Sub(session.StartedAt))

	if session.Interrupted {
		f.Warning("Audio saved to: %s", session.ArtifactPath)
		return ErrInterrupted
	}

	// A fresh signal scope: the first Ctrl+C in --no-wait mode only stopped recording.
	tctx, tstop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer tstop()

	f.Info("Transcribing audio...")
	record, err := runner.Transcribe(tctx, req, session, f.Status)
	if err != nil {
		if opts.keepAudio {
			f.Warning("Audio saved to: %s", session.ArtifactPath)
		}
		return err
	}

	data, err := record.MarshalIndented()
	if err != nil {
		return err
	}
	if err := output.WriteRecord(opts.output, data, deps.Stdout); err != nil {
		return err
	}
	if opts.output != "" {
		f.Success("Transcript saved: %s", opts.output)
	}
	if opts.keepAudio {
		f.Info("Audio saved to: %s", session.ArtifactPath)
	}
	return nil
}
