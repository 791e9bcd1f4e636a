package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/artifact"
)

// logObserver turns an InPageLog into a racing channel by polling it.
type logObserver struct {
	log      InPageLog
	interval time.Duration
}

func newLogObserver(log InPageLog, interval time.Duration) *logObserver {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &logObserver{log: log, interval: interval}
}

func (o *logObserver) Channel() artifact.Channel { return artifact.InPageObject }

func (o *logObserver) Arm(ctx context.Context) (Pending, error) {
	mark, err := o.log.Mark(ctx)
	if err != nil {
		return nil, fmt.Errorf("mark in-page log: %w", err)
	}
	return &logPending{log: o.log, since: mark, interval: o.interval}, nil
}

type logPending struct {
	log      InPageLog
	since    int64
	interval time.Duration
}

func (p *logPending) Wait(ctx context.Context) (*Payload, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			payload, err := p.log.Latest(ctx, p.since)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}
			if payload != nil {
				p.since = payload.Seq
				return payload, nil
			}
		}
	}
}

func (p *logPending) Close() error { return nil }
