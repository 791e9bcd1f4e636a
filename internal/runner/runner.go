// Package runner drives one export run: it walks the candidate surfaces,
// climbs the locator ladder on each and hands every located control to the
// capture arbiter until one validated export has been written.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/artifact"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/auth"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/browser"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/capture"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/locator"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/metrics"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/navigation"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/report"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/surface"
)

const diagnosticsTimeout = 30 * time.Second

// Driver is the browser tab a run works in.
type Driver interface {
	Open(ctx context.Context, s surface.Surface) error
	Page() locator.Page
	Channels() capture.Channels
	Screenshot(ctx context.Context) ([]byte, error)
	Alive() bool
}

// SessionCheck verifies, once a surface is open, that the page is still
// signed in.
type SessionCheck interface {
	Valid(ctx context.Context) (bool, error)
}

// Capturer turns one activation into a validated artifact.
type Capturer interface {
	ArmAndClick(ctx context.Context, ch capture.Channels, confirm capture.Confirmer, trigger capture.Trigger) (*artifact.Artifact, error)
}

// Metrics receives run counters.
type Metrics interface {
	Attempt(strategy, result string)
	Captured(ch artifact.Channel)
	Rejected(ch artifact.Channel)
	Finish(success bool, elapsed time.Duration)
	WriteTextfile(path string) error
}

// Config holds the parameters of a run.
type Config struct {
	Surfaces       []surface.Surface
	Ladder         []locator.Strategy
	OutputPath     string
	ScreenshotPath string
	TracePath      string
	MetricsFile    string
	Budgets        capture.Budgets
	OverlayWords   locator.Pattern
	ClimbLimit     int
	Settle         time.Duration
}

// Deps are the collaborators of a run. Session and Metrics are optional.
// When Capturer is nil an arbiter with cfg.Budgets is created.
type Deps struct {
	Driver   Driver
	Session  SessionCheck
	Capturer Capturer
	Metrics  Metrics
	Logger   *zap.Logger
}

// Outcome summarizes a finished run.
type Outcome struct {
	RunID      string
	OutputPath string
	Channel    artifact.Channel
	Surface    string
	Strategy   string
	Screenshot string
	Trace      string
	Err        error
	Stats      *report.Stats
}

// Runner executes one run. It is not reusable.
type Runner struct {
	cfg      Config
	driver   Driver
	session  SessionCheck
	capturer Capturer
	metrics  Metrics
	logger   *zap.Logger

	id    string
	stats *report.Stats
	trace recorder
}

func New(cfg Config, deps Deps) *Runner {
	id := uuid.NewString()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		cfg:     cfg,
		driver:  deps.Driver,
		session: deps.Session,
		metrics: deps.Metrics,
		logger:  logger.Named("runner").With(zap.String("run_id", id)),
		id:      id,
		stats:   report.New(),
	}
	if r.metrics == nil {
		r.metrics = metrics.New()
	}
	r.capturer = deps.Capturer
	if r.capturer == nil {
		r.capturer = capture.NewArbiter(cfg.Budgets, logger, r)
	}
	return r
}

// Rejected implements capture.Metrics.
func (r *Runner) Rejected(ch artifact.Channel) {
	r.stats.IncrementRejected()
	r.metrics.Rejected(ch)
	r.trace.record("", "", "validate", "rejected", fmt.Errorf("payload from %s", ch))
}

// Run tries every surface and strategy in order until an export is
// written. The returned error is nil on success, wraps
// auth.ErrSessionUnavailable when the session is gone and is ErrExhausted
// when nothing worked.
func (r *Runner) Run(ctx context.Context) (*Outcome, error) {
	out := &Outcome{RunID: r.id, Stats: r.stats}
	r.logger.Info("Run started", zap.Int("surfaces", len(r.cfg.Surfaces)), zap.Int("strategies", len(r.cfg.Ladder)))

	err := r.run(ctx, out)
	out.Err = err
	r.finish(ctx, out)
	return out, err
}

func (r *Runner) run(ctx context.Context, out *Outcome) error {
	checked := r.session == nil
	for _, s := range r.cfg.Surfaces {
		if err := r.abort(ctx, nil); err != nil {
			return err
		}
		log := r.logger.With(zap.String("surface", s.Name))
		r.stats.IncrementSurfaces()

		if err := r.driver.Open(ctx, s); err != nil {
			if fatal := r.abort(ctx, err); fatal != nil {
				return fatal
			}
			log.Warn("Could not open surface", zap.Error(err))
			r.stats.AddError(s.Name, err.Error())
			r.trace.record(s.Name, "", "open", "failed", err)
			continue
		}
		r.trace.record(s.Name, "", "open", "ok", nil)

		if !checked {
			ok, err := r.session.Valid(ctx)
			switch {
			case err != nil:
				if fatal := r.abort(ctx, err); fatal != nil {
					return fatal
				}
				log.Warn("Session check failed, will retry on next surface", zap.Error(err))
			case !ok:
				err := fmt.Errorf("%w: redirected to sign-in", auth.ErrSessionUnavailable)
				r.trace.record(s.Name, "", "session", "failed", err)
				return err
			default:
				checked = true
			}
		}

		page := r.driver.Page()
		if n := navigation.DismissOverlays(ctx, page, r.cfg.OverlayWords, log); n > 0 {
			r.trace.record(s.Name, "", "overlays", fmt.Sprintf("dismissed %d", n), nil)
		}

		for _, st := range r.cfg.Ladder {
			done, err := r.attempt(ctx, s, st, page, out)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
	return ErrExhausted
}

// attempt runs one strategy on the open surface. It returns true once an
// export was written and an error only when the run must stop.
func (r *Runner) attempt(ctx context.Context, s surface.Surface, st locator.Strategy, page locator.Page, out *Outcome) (bool, error) {
	log := r.logger.With(zap.String("surface", s.Name), zap.String("strategy", st.Name()))
	r.stats.IncrementAttempts()

	target, err := locator.Locate(ctx, page, st)
	if err != nil {
		result := metrics.ResultError
		if errors.Is(err, locator.ErrNotFound) {
			result = metrics.ResultNotFound
		}
		r.metrics.Attempt(st.Name(), result)
		return false, r.recoverFrom(ctx, s, st, "locate", err, page, log)
	}
	r.metrics.Attempt(st.Name(), metrics.ResultFound)
	log.Info("Export control located", zap.String("name", target.Name), zap.Int("ref", target.Ref))
	r.trace.record(s.Name, st.Name(), "locate", "found", nil)

	chooser := locator.NewFormatChooser(page, r.cfg.ClimbLimit, r.cfg.Settle)
	trigger := func(ctx context.Context) error { return page.Click(ctx, target.Ref) }
	art, err := r.capturer.ArmAndClick(ctx, r.driver.Channels(), chooser, trigger)
	if err != nil {
		return false, r.recoverFrom(ctx, s, st, "capture", err, page, log)
	}

	if err := artifact.Write(r.cfg.OutputPath, art); err != nil {
		r.trace.record(s.Name, st.Name(), "write", "failed", err)
		return false, fmt.Errorf("write export: %w", err)
	}
	r.metrics.Captured(art.Channel)
	r.trace.record(s.Name, st.Name(), "write", "ok", nil)
	r.stats.Succeed(r.cfg.OutputPath, s.Name, st.Name(), string(art.Channel), art.Size())

	out.OutputPath = r.cfg.OutputPath
	out.Channel = art.Channel
	out.Surface = s.Name
	out.Strategy = st.Name()
	log.Info("Export written",
		zap.String("path", r.cfg.OutputPath),
		zap.String("channel", string(art.Channel)),
		zap.String("source", art.Source),
		zap.Int64("bytes", art.Size()),
	)
	return true, nil
}

// recoverFrom logs a failed step and cleans up transient UI. It returns a
// non-nil error only when the run cannot continue.
func (r *Runner) recoverFrom(ctx context.Context, s surface.Surface, st locator.Strategy, step string, err error, page locator.Page, log *zap.Logger) error {
	if fatal := r.abort(ctx, err); fatal != nil {
		r.trace.record(s.Name, st.Name(), step, "aborted", err)
		return fatal
	}
	if expected(err) {
		log.Info("Strategy did not produce an export", zap.String("step", step), zap.Error(err))
	} else {
		log.Warn("Strategy failed", zap.String("step", step), zap.Error(err))
	}
	r.stats.AddError(s.Name+"/"+st.Name(), err.Error())
	r.trace.record(s.Name, st.Name(), step, "failed", err)

	if derr := page.Dismiss(ctx); derr != nil {
		if fatal := r.abort(ctx, derr); fatal != nil {
			return fatal
		}
		log.Debug("Dismiss after failure failed", zap.Error(derr))
	}
	return nil
}

// abort returns the error that ends the run, if any: a done context or a
// browser that went away.
func (r *Runner) abort(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if browser.IsBrowserClosed(err) || !r.driver.Alive() {
		if err == nil {
			err = errors.New("browser closed")
		}
		return fmt.Errorf("browser is gone: %w", err)
	}
	return nil
}

func (r *Runner) finish(ctx context.Context, out *Outcome) {
	r.stats.Finish()
	success := out.Err == nil

	if !success && r.cfg.ScreenshotPath != "" {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), diagnosticsTimeout)
		if err := r.screenshot(dctx, ctx.Err() == nil); err != nil {
			r.logger.Warn("Failure screenshot not saved", zap.Error(err))
		} else {
			out.Screenshot = r.cfg.ScreenshotPath
			r.logger.Info("Failure screenshot saved", zap.String("path", r.cfg.ScreenshotPath))
		}
		cancel()
	}

	r.metrics.Finish(success, r.stats.Duration())
	if err := r.metrics.WriteTextfile(r.cfg.MetricsFile); err != nil {
		r.logger.Warn("Metrics not written", zap.Error(err))
	}

	if r.cfg.TracePath != "" {
		t := Trace{
			RunID:      r.id,
			StartedAt:  r.stats.StartTime.UTC(),
			FinishedAt: r.stats.EndTime.UTC(),
			Success:    success,
			Output:     out.OutputPath,
			Channel:    string(out.Channel),
			Events:     r.trace.snapshot(),
		}
		if out.Err != nil {
			t.Error = out.Err.Error()
		}
		if err := writeTrace(r.cfg.TracePath, t); err != nil {
			r.logger.Warn("Trace not written", zap.Error(err))
		} else {
			out.Trace = r.cfg.TracePath
		}
	}

	if success {
		r.logger.Info("Run finished", zap.String("summary", r.stats.Summary()))
	} else {
		r.logger.Error("Run failed", zap.Error(out.Err), zap.String("summary", r.stats.Summary()))
	}
}

// screenshot captures the current page. When that fails and reopen is set
// it navigates back to the first surface and captures that instead.
func (r *Runner) screenshot(ctx context.Context, reopen bool) error {
	if !r.driver.Alive() {
		return errors.New("browser closed")
	}
	data, err := r.driver.Screenshot(ctx)
	if (err != nil || len(data) == 0) && reopen && len(r.cfg.Surfaces) > 0 {
		r.logger.Debug("Screenshot of current page failed, reopening first surface", zap.Error(err))
		if oerr := r.driver.Open(ctx, r.cfg.Surfaces[0]); oerr != nil {
			return errors.Join(err, oerr)
		}
		data, err = r.driver.Screenshot(ctx)
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("empty screenshot")
	}
	if err := os.MkdirAll(filepath.Dir(r.cfg.ScreenshotPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(r.cfg.ScreenshotPath, data, 0o644)
}
