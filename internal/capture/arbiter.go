package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/artifact"
)

// Metrics receives rejected payload counts.
type Metrics interface {
	Rejected(ch artifact.Channel)
}

// Arbiter arms every channel around an activation and commits to at most
// one artifact per call.
type Arbiter struct {
	budgets Budgets
	logger  *zap.Logger
	metrics Metrics
}

// NewArbiter creates an arbiter. metrics may be nil.
func NewArbiter(budgets Budgets, logger *zap.Logger, metrics Metrics) *Arbiter {
	return &Arbiter{budgets: budgets, logger: logger.Named("capture"), metrics: metrics}
}

// ArmAndClick arms all channels, runs trigger and races the channels. A
// payload only wins after artifact.Accept; rejected payloads are dropped
// and the race goes on. When nothing arrives within the dialog probe and
// confirm offers a format choice, the round is restarted around that
// choice. Finally the in-page log is polled for a short window.
func (a *Arbiter) ArmAndClick(ctx context.Context, ch Channels, confirm Confirmer, trigger Trigger) (*artifact.Artifact, error) {
	var mark int64
	if ch.Log != nil {
		m, err := ch.Log.Mark(ctx)
		if err != nil {
			a.logger.Debug("In-page log unavailable", zap.Error(err))
		}
		mark = m
	}

	r, err := a.arm(ctx, ch)
	if err != nil {
		return nil, err
	}
	if err := trigger(ctx); err != nil {
		r.close()
		return nil, fmt.Errorf("activate control: %w", err)
	}
	r.start()

	// seen is the newest in-page entry already rejected.
	seen := mark
	probe := time.NewTimer(a.budgets.DialogProbe)
	art := a.next(ctx, r, probe.C, &seen)
	probe.Stop()
	if art != nil {
		r.close()
		return art, nil
	}

	if confirm != nil && ctx.Err() == nil {
		choose, err := confirm.FormatChoice(ctx)
		if err != nil {
			a.logger.Debug("Dialog inspection failed", zap.Error(err))
		}
		if choose != nil {
			a.logger.Info("Confirmation dialog found, re-arming channels")
			r.close()
			if r, err = a.arm(ctx, ch); err != nil {
				return nil, err
			}
			if err := choose(ctx); err != nil {
				r.close()
				return nil, fmt.Errorf("confirm dialog: %w", err)
			}
			r.start()
		}
	}

	art = a.next(ctx, r, nil, &seen)
	r.close()
	if art != nil {
		return art, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if ch.Log != nil {
		if art := a.poll(ctx, ch.Log, seen); art != nil {
			return art, nil
		}
	}
	return nil, ErrNotCaptured
}

type armed struct {
	channel artifact.Channel
	pending Pending
}

type result struct {
	channel artifact.Channel
	payload *Payload
	err     error
}

// round is one armed set of channels. Its goroutines stop sending once the
// round is cancelled, so abandoning a round never blocks them.
type round struct {
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	armed   []armed
	results chan result
	left    int
	budget  func(artifact.Channel) time.Duration
}

func (a *Arbiter) arm(ctx context.Context, ch Channels) (*round, error) {
	observers := ch.Observers
	if ch.Log != nil {
		observers = append(append([]Observer(nil), observers...), newLogObserver(ch.Log, a.budgets.PollInterval))
	}

	rctx, cancel := context.WithCancel(ctx)
	r := &round{cancel: cancel, budget: a.budgets.forChannel}
	r.group, r.ctx = errgroup.WithContext(rctx)
	for _, o := range observers {
		p, err := o.Arm(r.ctx)
		if err != nil {
			a.logger.Warn("Channel failed to arm", zap.String("channel", string(o.Channel())), zap.Error(err))
			continue
		}
		r.armed = append(r.armed, armed{channel: o.Channel(), pending: p})
	}
	if len(r.armed) == 0 {
		cancel()
		return nil, fmt.Errorf("arm channels: %w", ErrNotCaptured)
	}
	r.results = make(chan result, len(r.armed))
	return r, nil
}

func (r *round) start() {
	r.left = len(r.armed)
	for _, ar := range r.armed {
		r.group.Go(func() error {
			wctx, cancel := context.WithTimeout(r.ctx, r.budget(ar.channel))
			defer cancel()
			// A channel keeps delivering until it settles or its budget ends,
			// so a rejected payload does not end it.
			for {
				p, err := ar.pending.Wait(wctx)
				if err != nil {
					p = nil
				}
				select {
				case r.results <- result{channel: ar.channel, payload: p, err: err}:
				case <-r.ctx.Done():
					return nil
				}
				if p == nil {
					return nil
				}
			}
		})
	}
}

// close cancels every wait, joins the goroutines and releases the
// channels. Safe to call on a round that never started.
func (r *round) close() {
	r.cancel()
	_ = r.group.Wait()
	for _, ar := range r.armed {
		_ = ar.pending.Close()
	}
}

// next returns the first accepted payload. Rejected payloads are dropped
// while their channel keeps waiting. It gives up when every channel has
// settled, ctx ends, or stop fires.
func (a *Arbiter) next(ctx context.Context, r *round, stop <-chan time.Time, seen *int64) *artifact.Artifact {
	for r.left > 0 {
		select {
		case res := <-r.results:
			if res.payload == nil {
				// The channel settled.
				r.left--
				if res.err != nil && !errors.Is(res.err, context.DeadlineExceeded) && !errors.Is(res.err, context.Canceled) {
					a.logger.Debug("Channel failed", zap.String("channel", string(res.channel)), zap.Error(res.err))
				}
				continue
			}
			if art := a.accept(res.payload); art != nil {
				return art
			}
			if res.payload.Seq > *seen {
				*seen = res.payload.Seq
			}
		case <-stop:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

func (a *Arbiter) accept(p *Payload) *artifact.Artifact {
	art, err := artifact.Accept(p.Data, p.Channel, p.Source)
	if err != nil {
		a.logger.Warn("Payload rejected",
			zap.String("channel", string(p.Channel)),
			zap.String("source", p.Source),
			zap.Int("bytes", len(p.Data)),
			zap.Error(err))
		if a.metrics != nil {
			a.metrics.Rejected(p.Channel)
		}
		return nil
	}
	a.logger.Info("Payload captured",
		zap.String("channel", string(art.Channel)),
		zap.String("source", art.Source),
		zap.Int64("bytes", art.Size()))
	return art
}

// poll re-reads the in-page log for late entries after the race settled.
func (a *Arbiter) poll(ctx context.Context, log InPageLog, since int64) *artifact.Artifact {
	pctx, cancel := context.WithTimeout(ctx, a.budgets.PollWindow)
	defer cancel()
	interval := a.budgets.PollInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		p, err := log.Latest(pctx, since)
		if err == nil && p != nil {
			if art := a.accept(p); art != nil {
				return art
			}
			since = p.Seq
		}
		select {
		case <-pctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
