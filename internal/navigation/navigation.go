// Package navigation prepares a freshly opened page for control lookup:
// readiness, scroll position and overlays that cover the toolbar.
package navigation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// ErrNotReady means no ready selector became visible in time.
var ErrNotReady = errors.New("page not ready")

const readyPollInterval = 500 * time.Millisecond

const readyJS = `(function (selectors) {
  if (document.readyState !== 'complete') return false;
  if (!selectors.length) return true;
  for (var i = 0; i < selectors.length; i++) {
    var nodes;
    try { nodes = document.querySelectorAll(selectors[i]); } catch (e) { continue; }
    for (var j = 0; j < nodes.length; j++) {
      var r = nodes[j].getBoundingClientRect();
      if (r.width > 0 && r.height > 0) return true;
    }
  }
  return false;
})(%s)`

// WaitReady polls until the document has loaded and one of selectors is
// visible, or timeout passes. An empty selector list only waits for load.
func WaitReady(ctx context.Context, selectors []string, timeout time.Duration) error {
	if selectors == nil {
		selectors = []string{}
	}
	list, err := json.Marshal(selectors)
	if err != nil {
		return fmt.Errorf("encode ready selectors: %w", err)
	}
	script := fmt.Sprintf(readyJS, list)

	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()
	for {
		var ready bool
		err := chromedp.Run(wctx, chromedp.Evaluate(script, &ready))
		if err == nil && ready {
			return nil
		}
		select {
		case <-wctx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrNotReady
		case <-ticker.C:
		}
	}
}

// ScrollToTop moves the viewport back to the page origin, where toolbars live.
func ScrollToTop(ctx context.Context) error {
	if err := chromedp.Run(ctx, chromedp.Evaluate(`window.scrollTo(0, 0)`, nil)); err != nil {
		return fmt.Errorf("scroll to top: %w", err)
	}
	return nil
}
