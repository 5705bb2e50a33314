package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/afroash/station-monitor/internal/client"
	"github.com/afroash/station-monitor/internal/config"
	"github.com/afroash/station-monitor/internal/models"
	"github.com/afroash/station-monitor/internal/sensor"
)

const version = "v0.3.0"

// flushInterval retries buffered samples while the connection is down
const flushInterval = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("station-uplink", pflag.ContinueOnError)
	configPath := flagSet.StringP("config", "c", "configs/uplink.yaml", "path to config file")
	dryRun := flagSet.Bool("dry-run", false, "sample and buffer without connecting to the server")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.LoadUplinkConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, closeLog, err := cfg.Logging.NewLogger(os.Stdout)
	if err != nil {
		return err
	}
	defer closeLog()

	logger.Info().Str("version", version).Msg(cfg.String())

	unit, err := sensor.NewUnit(cfg.Station.Unit)
	if err != nil {
		return fmt.Errorf("failed to open sensor unit: %w", err)
	}

	info := models.NewStationInfo(cfg.Station.ID, cfg.Station.Location, cfg.Station.Unit, version)
	reader := sensor.NewReader(unit, info, cfg.Station.ReadInterval, logger)
	defer reader.Close()

	buffer := client.NewSampleBuffer(cfg.Buffer.Size, cfg.Buffer.DropOldest)

	var conn *client.Connection
	if !*dryRun {
		conn = client.NewConnection(client.ConnectionConfig{
			URL:                  cfg.Server.URL,
			AuthToken:            cfg.Server.AuthToken,
			ReconnectInterval:    cfg.Server.ReconnectInterval,
			MaxReconnectInterval: cfg.Server.MaxReconnectInterval,
			PingInterval:         cfg.Server.PingInterval,
			PongTimeout:          cfg.Server.PongTimeout,
			HandshakeTimeout:     cfg.Server.ConnectTimeout,
		}, info, logger)
		defer conn.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := forward(ctx, cfg, reader, buffer, conn, logger); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("uplink stopped: %w", err)
	}
	logger.Info().Str("buffer", buffer.String()).Msg("Uplink stopped")
	return nil
}

// forward samples, buffers and sends until ctx ends. A nil conn only
// buffers.
func forward(ctx context.Context, cfg *config.UplinkConfig, reader *sensor.Reader, buffer *client.SampleBuffer, conn *client.Connection, logger zerolog.Logger) error {
	go func() {
		if err := reader.Start(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			logger.Error().Err(err).Msg("Reader stopped")
		}
	}()

	if conn != nil {
		conn.SetBufferSizeFunc(buffer.Size)
		conn.OnAck(func(ack models.AckMessage) {
			if ack.Stored > 0 {
				logger.Debug().Str("message_id", ack.MessageID).Int("stored", ack.Stored).Msg("Server stored samples")
			}
		})
		go conn.Run(ctx)
	}

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sample := <-reader.Samples():
			if !buffer.Push(sample) {
				logger.Warn().Str("buffer", buffer.String()).Msg("Buffer full, sample dropped")
			}
			flush(conn, buffer, cfg.Buffer.BatchSize, logger)
		case <-ticker.C:
			flush(conn, buffer, cfg.Buffer.BatchSize, logger)
		}
	}
}

// flush sends buffered samples in batches while the connection is up.
// A failed batch goes back to the front of the buffer.
func flush(conn *client.Connection, buffer *client.SampleBuffer, batchSize int, logger zerolog.Logger) {
	if conn == nil {
		return
	}
	for conn.IsConnected() && !buffer.IsEmpty() {
		batch := buffer.PopBatch(batchSize)
		if err := conn.SendBatch(batch); err != nil {
			buffer.Requeue(batch)
			logger.Warn().Err(err).Int("pending", buffer.Size()).Msg("Failed to send batch")
			return
		}
	}
}
