package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/chat-template-codecs/internal/auth"
	"github.com/tjfontaine/chat-template-codecs/internal/backend"
	"github.com/tjfontaine/chat-template-codecs/internal/config"
	"github.com/tjfontaine/chat-template-codecs/internal/domain"
	"github.com/tjfontaine/chat-template-codecs/internal/recorder"
	"github.com/tjfontaine/chat-template-codecs/internal/server"
	"github.com/tjfontaine/chat-template-codecs/internal/session"
	"github.com/tjfontaine/chat-template-codecs/internal/storage"
	"github.com/tjfontaine/chat-template-codecs/internal/storage/memory"
	"github.com/tjfontaine/chat-template-codecs/internal/storage/sqlite"
	"github.com/tjfontaine/chat-template-codecs/internal/telemetry"
	"github.com/tjfontaine/chat-template-codecs/internal/tokens"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the codec HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), cfg, slog.Default())
	},
}

func init() {
	serveCmd.Flags().Int("server.port", 8080, "listen port")
	serveCmd.Flags().String("backend.base_url", "http://localhost:8000/v1", "completion backend base URL")
	serveCmd.Flags().String("backend.model", "", "model name sent to the backend")
	serveCmd.Flags().String("storage.type", "memory", "interaction storage (memory, sqlite, none)")
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(telemetry.Options{
			ServiceName: cfg.Telemetry.ServiceName,
			Writer:      os.Stdout,
			SampleRatio: cfg.Telemetry.SampleRatio,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	store, err := openStore(cfg.Storage)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	timeout, err := time.ParseDuration(cfg.Server.RequestTimeout)
	if err != nil {
		return fmt.Errorf("invalid server.request_timeout %q: %w", cfg.Server.RequestTimeout, err)
	}

	client := backend.NewClient(
		backend.WithBaseURL(cfg.Backend.BaseURL),
		backend.WithAPIKey(cfg.Backend.APIKey),
		backend.WithKeepSpecialTokens(cfg.Backend.KeepSpecialTokens),
	)

	opts := []server.Option{
		server.WithDefaults(server.Defaults{
			Family: cfg.Codec.Family,
			Effort: domain.Effort(cfg.Codec.Effort),
		}),
		server.WithCompleter(client, runnerOptions(cfg, client, logger)...),
		server.WithRequestTimeout(timeout),
	}
	if store != nil {
		opts = append(opts, server.WithRecorder(recorder.New(store, logger)))
	}

	if len(cfg.Server.APIKeys) > 0 {
		keys := make([]auth.Key, 0, len(cfg.Server.APIKeys))
		for _, k := range cfg.Server.APIKeys {
			keys = append(keys, auth.Key{KeyHash: k.KeyHash, Description: k.Description})
		}
		opts = append(opts, server.WithAuthenticator(auth.NewAuthenticator(keys)))
	}

	srv := server.New(cfg.Server.Port, logger, opts...)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			slog.Int("port", cfg.Server.Port),
			slog.String("default_family", cfg.Codec.Family),
			slog.String("backend", cfg.Backend.BaseURL),
			slog.String("storage", cfg.Storage.Type),
			slog.Bool("auth", len(cfg.Server.APIKeys) > 0),
		)
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-sigCtx.Done():
	}

	logger.Info("shutdown signal received, stopping server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server shutdown complete")
	return nil
}

// openStore returns nil when recording is disabled.
func openStore(cfg config.StorageConfig) (storage.InteractionStore, error) {
	switch cfg.Type {
	case "memory", "":
		return memory.New(), nil
	case "sqlite":
		store, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, nil
	case "none":
		return nil, nil
	default:
		return nil, errors.New("unknown storage type: " + cfg.Type)
	}
}

// runnerOptions carries the backend settings into every turn the server runs.
func runnerOptions(cfg *config.Config, client *backend.Client, logger *slog.Logger) []session.Option {
	return []session.Option{
		session.WithTokenRegistry(newTokenRegistry(cfg, client)),
		session.WithModel(cfg.Backend.Model),
		session.WithSampling(cfg.Backend.Temperature, cfg.Backend.MaxTokens),
		session.WithStop(cfg.Backend.Stop...),
		session.WithLogger(logger),
	}
}

// newTokenRegistry counts with the backend tokenizer for the configured model
// when asked to and tiktoken for everything else.
func newTokenRegistry(cfg *config.Config, client *backend.Client) *tokens.Registry {
	registry := tokens.NewRegistry()
	if cfg.Tokens.UseBackend && cfg.Backend.Model != "" {
		registry.Register(tokens.NewBackendCounter(client, cfg.Backend.Model))
	}
	registry.SetFallback(tokens.NewTiktokenCounter(tokens.WithEncoding(cfg.Tokens.Encoding)))
	return registry
}
