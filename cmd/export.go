package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/auth"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/browser"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/config"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/download"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/locator"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/metrics"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/observability"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/runner"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/surface"
)

// watchdogGrace is how long past the run budget the process may take to
// shut down cleanly before it is killed.
const watchdogGrace = 30 * time.Second

func runExport(cmd *cobra.Command, _ []string) error {
	cfg := configFrom(cmd.Context())
	logger := observability.GetLogger()

	ctx := cmd.Context()
	if cfg.Run.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Run.Budget)
		defer cancel()
		stop := startWatchdog(cfg.Run.Budget+watchdogGrace, logger, osExit)
		defer stop()
	}

	out, err := export(ctx, cfg, logger)
	if out != nil {
		out.Stats.Print(cmd.OutOrStdout())
	}
	return err
}

// startWatchdog terminates the process with the watchdog exit code once
// after has elapsed. The returned func disarms it.
func startWatchdog(after time.Duration, logger *zap.Logger, exit func(int)) func() {
	t := time.AfterFunc(after, func() {
		logger.Error("Run budget exceeded, terminating", zap.Duration("after", after))
		observability.Sync()
		exit(runner.ExitWatchdog)
	})
	return func() { t.Stop() }
}

func export(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*runner.Outcome, error) {
	bopts := cfg.BrowserOptions()
	if bopts.ExecPath == "" {
		return nil, errors.New("could not find Chrome/Chromium: install it or set browser.exec_path")
	}
	logger.Info("Exporter configured",
		zap.String("exec", bopts.ExecPath),
		zap.Bool("headless", bopts.Headless),
		zap.String("output", cfg.Output.Path(cfg.Output.File)),
		zap.Duration("budget", cfg.Run.Budget),
	)

	downloads, err := download.NewDir(cfg.Output.DownloadDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := downloads.Cleanup(); err != nil {
			logger.Warn("Could not remove download dir", zap.String("path", downloads.Path()), zap.Error(err))
		}
	}()

	b, err := browser.New(bopts, logger)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	state, src, err := auth.Establish(ctx, b, sessionOptions(cfg), logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Session established", zap.String("source", string(src)), zap.Int("cookies", len(state.Cookies)))

	var scripts []string
	if s := state.InitScript(); s != "" {
		scripts = append(scripts, s)
	}
	if err := b.Prepare(ctx, downloads, scripts...); err != nil {
		return nil, err
	}

	r := runner.New(runner.Config{
		Surfaces:       surface.Enumerate(cfg.Surfaces),
		Ladder:         locator.Ladder(cfg.LocatorOptions()),
		OutputPath:     cfg.Output.Path(cfg.Output.File),
		ScreenshotPath: cfg.Output.Path(cfg.Output.Screenshot),
		TracePath:      cfg.Output.Path(cfg.Output.Trace),
		MetricsFile:    cfg.Metrics.Textfile,
		Budgets:        cfg.Budgets(),
		OverlayWords:   locator.NewPattern(locator.DismissWords...),
		ClimbLimit:     cfg.Locator.ClimbLimit,
		Settle:         cfg.Locator.Settle,
	}, runner.Deps{
		Driver:  b,
		Session: auth.NewChecker(b),
		Metrics: metrics.New(),
		Logger:  logger,
	})
	return r.Run(ctx)
}

func sessionOptions(cfg *config.Config) auth.Options {
	return auth.Options{
		StorageB64:  cfg.Session.StorageB64,
		StorageFile: cfg.Session.StorageFile,
		Email:       cfg.Session.Email,
		Password:    cfg.Session.Password,
		LoginURL:    cfg.Session.LoginURL,
		Interactive: cfg.Session.Interactive,
	}
}
