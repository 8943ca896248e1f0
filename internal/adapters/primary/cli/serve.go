package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go-meeting-transcriber/internal/app"
	httpadapter "go-meeting-transcriber/internal/adapters/primary/http"
	"go-meeting-transcriber/internal/core/services"
)

const shutdownTimeout = 5 * time.Second

func NewServeCmd(deps *Dependencies) *cobra.Command {
	var addr string
	var headed bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API that records and transcribes meetings on request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *deps.Config
			if addr != "" {
				cfg.ListenAddr = addr
			}
			if headed {
				cfg.Browser.Headless = false
			}
			if err := cfg.RequireTranscription(); err != nil {
				return err
			}
			logger := deps.Logger

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner, err := deps.NewRunner(ctx, cfg, app.Options{}, logger)
			if err != nil {
				return err
			}
			service := services.NewRecordingService(runner, logger)

			mux := http.NewServeMux()
			httpadapter.NewHandler(service, logger).RegisterRoutes(mux)

			lis, err := net.Listen("tcp", cfg.ListenAddr)
			if err != nil {
				return err
			}
			server := &http.Server{
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}
			logger.Info("server listening", "addr", lis.Addr().String())

			go func() {
				<-ctx.Done()
				logger.Info("shutdown requested, stopping HTTP server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.Warn("graceful shutdown timed out, forcing close", "error", err)
					_ = server.Close()
				}
			}()

			if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from TELEMOST_LISTEN_ADDR, :8081)")
	cmd.Flags().BoolVar(&headed, "headed", false, "Show browser windows")
	return cmd
}
