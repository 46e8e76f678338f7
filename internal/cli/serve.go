package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deskpilot/deskpilot/internal/config"
	"github.com/deskpilot/deskpilot/internal/logger"
	"github.com/deskpilot/deskpilot/pkg/desktop"
	"github.com/deskpilot/deskpilot/pkg/model"
	"github.com/deskpilot/deskpilot/pkg/orchestrator"
	"github.com/deskpilot/deskpilot/pkg/server"
	"github.com/deskpilot/deskpilot/pkg/session"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Deskpilot chat server",
	Long: `Connect to the configured desktop backend, then serve the chat API
over HTTP and websocket until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer lg.Close()
	zl := lg.GetZerolog()

	for _, warning := range cfg.Warnings() {
		zl.Warn().Msg(warning)
	}

	controller, err := buildController(cfg)
	if err != nil {
		return err
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	err = controller.Connect(connectCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect desktop backend: %w", err)
	}
	defer controller.Disconnect()
	zl.Info().
		Str("backend", cfg.Desktop.Backend).
		Int("tools", controller.Catalog().Len()).
		Msg("Desktop backend connected")

	provider, err := model.NewProvider(cfg.Model.Provider, cfg.Model.APIKey)
	if err != nil {
		return fmt.Errorf("failed to create model provider: %w", err)
	}

	gateway, err := model.New(model.Config{
		Provider:     provider,
		Model:        cfg.Model.Name,
		Temperature:  cfg.Model.Temperature,
		MaxTokens:    cfg.Model.MaxTokens,
		MaxRetries:   cfg.Model.MaxRetries,
		RetryBackoff: time.Duration(cfg.Model.RetryBackoffMs) * time.Millisecond,
		HistoryLimit: cfg.Model.HistoryLimit,
		Logger:       zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create model gateway: %w", err)
	}

	registry := session.NewRegistry(
		time.Duration(cfg.Session.IdleTimeoutMin)*time.Minute,
		gateway,
	)

	transcripts, err := session.NewTranscriptStore(cfg.Session.TranscriptDir)
	if err != nil {
		return fmt.Errorf("failed to initialize transcript store: %w", err)
	}

	sweeper := session.NewSweeper(
		registry,
		transcripts,
		time.Duration(cfg.Session.SweepIntervalMin)*time.Minute,
		time.Duration(cfg.Session.TranscriptRetentionDays)*24*time.Hour,
	)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start session sweeper: %w", err)
	}
	defer sweeper.Stop()

	orch, err := orchestrator.New(orchestrator.Config{
		Controller:  controller,
		Gateway:     gateway,
		Sessions:    registry,
		Transcripts: transcripts,
		Logger:      zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	srv, err := server.New(server.Config{
		Host:       cfg.Server.Host,
		Port:       cfg.Server.Port,
		Handler:    orch,
		Controller: controller,
		Logger:     zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create chat server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start chat server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		zl.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-srv.Err():
		zl.Error().Err(err).Msg("Chat server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		zl.Warn().Err(err).Msg("Chat server shutdown incomplete")
	}
	return nil
}

// buildController picks the desktop backend from config.
func buildController(cfg *config.Config) (desktop.Controller, error) {
	switch cfg.Desktop.Backend {
	case "local":
		return desktop.NewLocal(), nil
	case "remote":
		return desktop.NewClient(desktop.Config{
			Command: cfg.Desktop.Command,
			Args:    cfg.Desktop.Args,
			Env: desktop.ServerEnv(
				cfg.Desktop.Host,
				cfg.Desktop.Port,
				cfg.Desktop.Username,
				cfg.Desktop.Password,
				cfg.Desktop.Encryption,
				time.Duration(cfg.Desktop.VNCTimeoutSec)*time.Second,
			),
			RequestTimeout:   time.Duration(cfg.Desktop.RequestTimeoutSec) * time.Second,
			HandshakeTimeout: time.Duration(cfg.Desktop.HandshakeTimeoutSec) * time.Second,
			SettleDelay:      time.Duration(cfg.Desktop.SettleDelayMs) * time.Millisecond,
		}), nil
	default:
		return nil, fmt.Errorf("unknown desktop backend %q", cfg.Desktop.Backend)
	}
}
