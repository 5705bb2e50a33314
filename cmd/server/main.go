package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/afroash/station-monitor/internal/codec"
	"github.com/afroash/station-monitor/internal/config"
	"github.com/afroash/station-monitor/internal/server"
	"github.com/afroash/station-monitor/internal/storage"
)

const version = "v0.3.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("station-server", pflag.ContinueOnError)
	configPath := flagSet.StringP("config", "c", "configs/server.yaml", "path to config file")
	showVersion := flagSet.Bool("version", false, "print version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Println("station-server", version)
		return nil
	}

	cfg, err := config.LoadAppConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, closeLog, err := cfg.Logging.NewLogger(os.Stdout)
	if err != nil {
		return err
	}
	defer closeLog()

	schema, err := cfg.Schema.Build()
	if err != nil {
		return err
	}
	loc := cfg.Location()

	store, err := storage.NewLogStore(cfg.Storage.LogPath, codec.New(schema, loc), logger)
	if err != nil {
		return fmt.Errorf("failed to open reading log: %w", err)
	}

	logger.Info().
		Str("version", version).
		Str("log_path", cfg.Storage.LogPath).
		Str("schema", schema.Version).
		Int("metrics", len(schema.Fields())).
		Str("timezone", loc.String()).
		Msg("Starting station server")
	logger.Debug().Msg(cfg.String())

	srv := server.New(store, schema, server.Options{
		AuthToken:      cfg.Server.AuthToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxRows:        cfg.Storage.MaxRows,
		Location:       loc,
	}, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down server...")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
	}

	if stats, err := store.Stat(); err == nil {
		logger.Info().
			Int64("appends", stats.TotalAppends).
			Int64("errors", stats.TotalErrors).
			Int64("size_bytes", stats.SizeBytes).
			Msg("Server stopped")
	}
	return nil
}
