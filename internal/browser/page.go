package browser

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/dom"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/locator"
)

//go:embed scripts/snapshot.js
var snapshotJS string

// clickJS is the fallback for elements the mouse cannot reach, e.g. ones
// covered by a sticky header.
const clickJS = `(function () {
  var el = document.querySelector('[data-exporter-ref="%d"]');
  if (!el) return false;
  el.click();
  return true;
})()`

func refSelector(ref int) string {
	return fmt.Sprintf(`[data-exporter-ref="%d"]`, ref)
}

// Page returns the tab as the locator sees it.
func (b *Browser) Page() locator.Page { return b }

// Snapshot implements locator.Page.
func (b *Browser) Snapshot(ctx context.Context) (*dom.Snapshot, error) {
	rctx, cancel := Bind(b.ctx, ctx)
	defer cancel()
	var nodes []dom.Node
	if err := chromedp.Run(rctx, chromedp.Evaluate(snapshotJS, &nodes)); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return dom.NewSnapshot(nodes), nil
}

// Click implements locator.Page. It tries a real mouse click first.
func (b *Browser) Click(ctx context.Context, ref int) error {
	rctx, cancel := Bind(b.ctx, ctx)
	defer cancel()

	sel := refSelector(ref)
	cctx, cancelClick := context.WithTimeout(rctx, b.cfg.ClickTimeout)
	err := chromedp.Run(cctx,
		chromedp.ScrollIntoView(sel, chromedp.ByQuery),
		chromedp.Click(sel, chromedp.ByQuery),
	)
	cancelClick()
	if err == nil {
		return nil
	}
	if rctx.Err() != nil {
		return rctx.Err()
	}

	b.logger.Debug("Mouse click failed, using DOM click", zap.Int("ref", ref), zap.Error(err))
	var clicked bool
	if jsErr := chromedp.Run(rctx, chromedp.Evaluate(fmt.Sprintf(clickJS, ref), &clicked)); jsErr != nil {
		return fmt.Errorf("click ref %d: %w", ref, jsErr)
	}
	if !clicked {
		return fmt.Errorf("click ref %d: element is gone", ref)
	}
	return nil
}

// Dismiss implements locator.Page by pressing Escape.
func (b *Browser) Dismiss(ctx context.Context) error {
	rctx, cancel := Bind(b.ctx, ctx)
	defer cancel()
	return chromedp.Run(rctx,
		chromedp.KeyEvent(kb.Escape),
		chromedp.Sleep(b.cfg.Settle/3),
	)
}
