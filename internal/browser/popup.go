package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/artifact"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/capture"
)

// popupObserver captures documents opened in a new tab by our tab.
type popupObserver struct {
	b *Browser
}

func (popupObserver) Channel() artifact.Channel { return artifact.PopupDocument }

func (o popupObserver) Arm(context.Context) (capture.Pending, error) {
	lctx, cancel := context.WithCancel(o.b.ctx)
	opened := chromedp.WaitNewTarget(lctx, func(info *target.Info) bool {
		return info.Type == "page"
	})
	return &popupPending{b: o.b, opened: opened, cancel: cancel}, nil
}

type popupPending struct {
	b      *Browser
	opened <-chan target.ID
	cancel context.CancelFunc

	mu       sync.Mutex
	targetID target.ID
	detach   context.CancelFunc
}

func (p *popupPending) Wait(ctx context.Context) (*capture.Payload, error) {
	var id target.ID
	var ok bool
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case id, ok = <-p.opened:
	}
	if !ok {
		// One popup per arming; a second Wait settles the channel.
		return nil, nil
	}

	pctx, detach := chromedp.NewContext(p.b.ctx, chromedp.WithTargetID(id))
	p.mu.Lock()
	p.targetID, p.detach = id, detach
	p.mu.Unlock()

	rctx, cancel := Bind(pctx, ctx)
	defer cancel()
	location, html, err := readPopup(rctx)
	if err != nil {
		return nil, fmt.Errorf("read popup %s: %w", id, err)
	}
	p.b.logger.Debug("Popup document loaded", zap.String("url", location), zap.Int("bytes", len(html)))

	text, err := documentText(html)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return &capture.Payload{Channel: artifact.PopupDocument, Data: []byte(text), Source: location}, nil
}

// readPopup waits until the popup left about:blank and its document
// finished loading, then returns its location and markup.
func readPopup(ctx context.Context) (location, html string, err error) {
	const waitJS = `document.readyState === 'complete' && location.href !== 'about:blank'`
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		var ready bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(waitJS, &ready)); err != nil && ctx.Err() != nil {
			return "", "", ctx.Err()
		}
		if ready {
			break
		}
		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case <-ticker.C:
		}
	}
	err = chromedp.Run(ctx,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return location, html, err
}

// documentText extracts the text a browser shows for a plain-text
// response, which Chrome wraps in a single <pre>.
func documentText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse popup document: %w", err)
	}
	if pre := doc.Find("body > pre").First(); pre.Length() > 0 {
		return pre.Text(), nil
	}
	return doc.Find("body").Text(), nil
}

func (p *popupPending) Close() error {
	p.cancel()
	p.mu.Lock()
	id, detach := p.targetID, p.detach
	p.mu.Unlock()
	if id == "" {
		return nil
	}
	defer detach()
	ctx, cancel := context.WithTimeout(p.b.ctx, 5*time.Second)
	defer cancel()
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.CloseTarget(id).Do(ctx)
	}))
}
