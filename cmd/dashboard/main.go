package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"github.com/afroash/station-monitor/internal/config"
	"github.com/afroash/station-monitor/internal/dashboard"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("station-dashboard", pflag.ContinueOnError)
	configPath := flagSet.StringP("config", "c", "configs/dashboard.yaml", "path to config file")
	serverURL := flagSet.String("server", "", "station server base URL (overrides config)")
	once := flagSet.Bool("once", false, "render a single frame and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.LoadDashboardConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *serverURL != "" {
		cfg.Server.URL = *serverURL
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}

	// Frames go to stdout; keep logs off it.
	logger, closeLog, err := cfg.Logging.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()
	logger.Debug().Msg(cfg.String())

	loc := cfg.Location()
	cfg.Aggregate.Location = loc

	fetcher, err := dashboard.NewHTTPFetcher(cfg.Server.URL, &http.Client{Timeout: cfg.Refresh.FetchTimeout})
	if err != nil {
		return err
	}

	tty := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	renderer := dashboard.NewTerminalRenderer(os.Stdout, dashboard.RendererOptions{
		Width:     cfg.Display.Width,
		Clear:     cfg.Display.Clear && tty && !*once,
		Location:  loc,
		TableRows: cfg.Aggregate.TableRows,
		ChartSpan: cfg.Aggregate.Span,
	})

	scheduler := dashboard.NewScheduler(fetcher, renderer, dashboard.SchedulerConfig{
		Interval:     cfg.Refresh.Interval,
		FetchTimeout: cfg.Refresh.FetchTimeout,
		Aggregate:    cfg.Aggregate,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		return scheduler.RunOnce(ctx)
	}

	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	stats := scheduler.Stats()
	logger.Info().Int64("cycles", stats.Cycles).Int64("failures", stats.Failures).Msg("Dashboard stopped")
	return nil
}
