package cli

import (
	"github.com/spf13/cobra"

	"go-meeting-transcriber/internal/adapters/secondary/ffmpeg"
	"go-meeting-transcriber/internal/adapters/secondary/rod"
	"go-meeting-transcriber/internal/output"
)

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(deps.Stdout)
			cfg := deps.Config
			ok := true

			if bins, err := ffmpeg.Locate(cmd.Context(), cfg.Audio.FFmpegPath); err != nil {
				f.SetupCheck("ffmpeg", false, "not found. Install it or set FFMPEG_PATH")
				ok = false
			} else {
				f.SetupCheck("ffmpeg", true, bins.FFmpeg)
				f.SetupCheck("ffprobe", true, bins.FFprobe)
			}

			if cfg.Groq.APIKey != "" {
				f.SetupCheck("Groq API key", true, "configured")
			} else {
				f.SetupCheck("Groq API key", false, "not set. Set GROQ_API_KEY or add groq_api_key to the config file")
				ok = false
			}

			if bin, found := rod.LookupBrowser(cfg.Browser.Bin); found {
				f.SetupCheck("Browser", true, bin)
			} else if cfg.Browser.Bin != "" {
				f.SetupCheck("Browser", false, cfg.Browser.Bin+" does not exist")
				ok = false
			} else {
				f.SetupCheck("Browser", true, "not installed, Chromium will be downloaded on first run")
			}

			if cfg.RecordingsDir != "" {
				f.SetupCheck("Recordings directory", true, cfg.RecordingsDir)
			}

			if ok {
				f.Success("\nAll prerequisites met. Ready to record!")
			} else {
				f.Warning("\nSome prerequisites are missing.")
			}
			return nil
		},
	}
}
