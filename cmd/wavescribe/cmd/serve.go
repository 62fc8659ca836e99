package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wavescribe/wavescribe/pkg/logger"
	"github.com/wavescribe/wavescribe/pkg/server"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the transcription service with its HTTP API",
	Long: `Run the transcription pipeline as a long-lived service.

The service accepts jobs over an HTTP API, streams per-job progress over
WebSocket, exposes Prometheus metrics, and periodically reclaims finished
job records and stale temp files.

Examples:
  # Serve on the default port
  wavescribe serve

  # Serve on a specific address
  wavescribe serve --host 127.0.0.1 --port 9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "listen address")
	serveCmd.Flags().Int("port", 8585, "listen port")
	serveCmd.Flags().Int("max-jobs", 3, "maximum concurrent jobs")
	serveCmd.Flags().Int("max-chunks", 1, "maximum concurrent chunks per job")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("scheduler.max_concurrent_jobs", serveCmd.Flags().Lookup("max-jobs"))
	_ = viper.BindPFlag("scheduler.max_concurrent_chunks", serveCmd.Flags().Lookup("max-chunks"))
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p := buildPipeline(cfg)

	janCtx, janCancel := context.WithCancel(context.Background())
	defer janCancel()
	go p.janitor.Run(janCtx)

	srv := server.New(cfg.Server, p.sched, p.registry)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	janCancel()
	if err := p.sched.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Scheduler shutdown incomplete, jobs cancelled")
	}
	return nil
}
