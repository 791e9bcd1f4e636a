package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/artifact"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/capture"
)

// networkObserver captures export-looking HTTP responses of the tab.
type networkObserver struct {
	b *Browser
}

func (networkObserver) Channel() artifact.Channel { return artifact.NetworkResponse }

func (o networkObserver) Arm(context.Context) (capture.Pending, error) {
	lctx, cancel := context.WithCancel(o.b.ctx)
	p := &networkPending{
		b:       o.b,
		cancel:  cancel,
		matched: make(map[network.RequestID]string),
		bodies:  make(chan *capture.Payload, 4),
		errs:    make(chan error, 4),
	}

	chromedp.ListenTarget(lctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if e.Response == nil || !capture.LooksLikeExport(responseMeta(e)) {
				return
			}
			p.mu.Lock()
			p.matched[e.RequestID] = e.Response.URL
			p.mu.Unlock()
		case *network.EventLoadingFinished:
			p.mu.Lock()
			url, ok := p.matched[e.RequestID]
			delete(p.matched, e.RequestID)
			p.mu.Unlock()
			if ok {
				// CDP calls must not run inside a listener callback.
				go p.fetch(lctx, e.RequestID, url)
			}
		}
	})
	return p, nil
}

func responseMeta(e *network.EventResponseReceived) capture.ResponseMeta {
	headers := make(map[string]string, len(e.Response.Headers))
	for k, v := range e.Response.Headers {
		headers[strings.ToLower(k)] = fmt.Sprint(v)
	}
	return capture.ResponseMeta{
		URL:          e.Response.URL,
		MimeType:     e.Response.MimeType,
		ResourceType: string(e.Type),
		Headers:      headers,
	}
}

type networkPending struct {
	b       *Browser
	cancel  context.CancelFunc
	mu      sync.Mutex
	matched map[network.RequestID]string
	bodies  chan *capture.Payload
	errs    chan error
}

func (p *networkPending) fetch(ctx context.Context, id network.RequestID, url string) {
	var body []byte
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(id).Do(ctx)
		return err
	}))
	if err != nil {
		select {
		case p.errs <- fmt.Errorf("response body of %s: %w", url, err):
		default:
		}
		return
	}
	select {
	case p.bodies <- &capture.Payload{Channel: artifact.NetworkResponse, Data: body, Source: url}:
	default:
		p.b.logger.Debug("Dropping extra export response", zap.String("url", url))
	}
}

// Wait returns the first fetched body. Body fetch failures are only
// reported when nothing else arrives.
func (p *networkPending) Wait(ctx context.Context) (*capture.Payload, error) {
	var lastErr error
	for {
		select {
		case body := <-p.bodies:
			return body, nil
		case err := <-p.errs:
			lastErr = err
		case <-ctx.Done():
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, ctx.Err()
		}
	}
}

func (p *networkPending) Close() error {
	p.cancel()
	return nil
}
