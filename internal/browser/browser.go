// Package browser drives a single Chrome tab through chromedp and exposes it
// as the page, channels and diagnostics the export run works with.
package browser

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/download"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/navigation"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/surface"
)

//go:embed scripts/instrument.js
var instrumentJS string

// Config holds browser launch and page timing options.
type Config struct {
	ExecPath        string
	ProfileDir      string
	Headless        bool
	WindowWidth     int
	WindowHeight    int
	NavigateTimeout time.Duration
	ReadyTimeout    time.Duration
	ClickTimeout    time.Duration
	Settle          time.Duration
}

// DefaultConfig returns headless defaults with an auto-detected executable.
func DefaultConfig() Config {
	return Config{
		ExecPath:        DetectBrowser(),
		Headless:        true,
		WindowWidth:     1440,
		WindowHeight:    900,
		NavigateTimeout: 45 * time.Second,
		ReadyTimeout:    60 * time.Second,
		ClickTimeout:    5 * time.Second,
		Settle:          1500 * time.Millisecond,
	}
}

// Browser owns the Chrome process and its single tab.
type Browser struct {
	ctx         context.Context
	allocCancel context.CancelFunc
	ctxCancel   context.CancelFunc
	cfg         Config
	logger      *zap.Logger
	downloads   *download.Dir
}

// New launches Chrome and opens the tab every later call works in.
func New(cfg Config, logger *zap.Logger) (*Browser, error) {
	logger = logger.Named("browser")

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.ProfileDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.ProfileDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	sugar := logger.Sugar()
	ctx, ctxCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	// The first Run starts the browser.
	if err := chromedp.Run(ctx); err != nil {
		ctxCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser %q: %w", cfg.ExecPath, err)
	}
	logger.Info("Browser started", zap.String("exec", cfg.ExecPath), zap.Bool("headless", cfg.Headless))

	return &Browser{
		ctx:         ctx,
		allocCancel: allocCancel,
		ctxCancel:   ctxCancel,
		cfg:         cfg,
		logger:      logger,
	}, nil
}

// Close shuts the tab and the browser down.
func (b *Browser) Close() {
	if b.ctxCancel != nil {
		b.ctxCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
}

// Context is the chromedp context of the tab.
func (b *Browser) Context() context.Context { return b.ctx }

// Alive reports whether the tab is still attached.
func (b *Browser) Alive() bool { return b.ctx.Err() == nil }

// Prepare enables the instrumentation the capture channels depend on. It
// must run before the first navigation.
func (b *Browser) Prepare(ctx context.Context, downloads *download.Dir, initScripts ...string) error {
	rctx, cancel := Bind(b.ctx, ctx)
	defer cancel()

	scripts := append([]string{instrumentJS}, initScripts...)
	err := chromedp.Run(rctx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, src := range scripts {
				if _, err := page.AddScriptToEvaluateOnNewDocument(src).Do(ctx); err != nil {
					return fmt.Errorf("add init script: %w", err)
				}
			}
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("prepare tab: %w", err)
	}

	if downloads != nil {
		if err := downloads.Configure(rctx); err != nil {
			return err
		}
		b.downloads = downloads
	}
	return nil
}

// Navigate loads url without waiting for any particular element.
func (b *Browser) Navigate(ctx context.Context, url string) error {
	nctx, cancel := Bind(b.ctx, ctx)
	defer cancel()
	nctx, cancelNav := context.WithTimeout(nctx, b.cfg.NavigateTimeout)
	defer cancelNav()

	err := chromedp.Run(nctx, chromedp.Navigate(url))
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case b.ctx.Err() != nil:
		return fmt.Errorf("navigate to %s: %w", url, b.ctx.Err())
	case errors.Is(err, context.DeadlineExceeded):
		// Hash-route changes in single-page apps never fire a load event.
		b.logger.Debug("Navigation did not report load in time", zap.String("url", url))
		return nil
	}
	return fmt.Errorf("navigate to %s: %w", url, err)
}

// Open navigates to the surface and waits, bounded, for its toolbar. A
// surface that never becomes ready is still returned as opened.
func (b *Browser) Open(ctx context.Context, s surface.Surface) error {
	log := b.logger.With(zap.String("surface", s.Name), zap.String("url", s.URL))
	log.Info("Opening surface")

	if err := b.Navigate(ctx, s.URL); err != nil {
		return err
	}

	rctx, cancel := Bind(b.ctx, ctx)
	defer cancel()
	if err := navigation.WaitReady(rctx, s.ReadySelectors, b.cfg.ReadyTimeout); err != nil {
		if !errors.Is(err, navigation.ErrNotReady) {
			return fmt.Errorf("wait for %s: %w", s.Name, err)
		}
		log.Warn("Surface not ready in time, attempting anyway", zap.Duration("timeout", b.cfg.ReadyTimeout))
	}
	if err := chromedp.Run(rctx, chromedp.Sleep(b.cfg.Settle)); err != nil {
		return err
	}
	if err := navigation.ScrollToTop(rctx); err != nil {
		log.Debug("Scroll to top failed", zap.Error(err))
	}
	return nil
}

// CurrentURL returns the tab's location.
func (b *Browser) CurrentURL(ctx context.Context) (string, error) {
	rctx, cancel := Bind(b.ctx, ctx)
	defer cancel()
	var url string
	if err := chromedp.Run(rctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// Screenshot captures the full page as PNG.
func (b *Browser) Screenshot(ctx context.Context) ([]byte, error) {
	rctx, cancel := Bind(b.ctx, ctx)
	defer cancel()
	var buf []byte
	if err := chromedp.Run(rctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

// Bind returns a context that carries tab's chromedp values but ends when
// either tab or ctx ends, keeping ctx's deadline.
func Bind(tab, ctx context.Context) (context.Context, context.CancelFunc) {
	out, cancel := context.WithCancel(tab)
	if d, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		out, cancelDeadline = context.WithDeadline(out, d)
		base := cancel
		cancel = func() {
			cancelDeadline()
			base()
		}
	}
	stop := context.AfterFunc(ctx, cancel)
	return out, func() {
		stop()
		cancel()
	}
}
