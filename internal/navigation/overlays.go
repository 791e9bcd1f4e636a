package navigation

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/dom"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/locator"
)

// maxOverlayClicks bounds how many consent or notice buttons are pressed.
const maxOverlayClicks = 3

// DismissOverlays presses consent, cookie and notice buttons whose name
// matches words, then sends Escape. It returns how many buttons were
// clicked. Failures are logged and never fatal.
func DismissOverlays(ctx context.Context, page locator.Page, words locator.Pattern, logger *zap.Logger) int {
	snap, err := page.Snapshot(ctx)
	if err != nil {
		logger.Debug("Overlay snapshot failed", zap.Error(err))
		return 0
	}

	clicked := 0
	for _, n := range overlayButtons(snap, words) {
		if clicked == maxOverlayClicks {
			break
		}
		if err := page.Click(ctx, n.Ref); err != nil {
			logger.Debug("Overlay button click failed", zap.String("name", n.Name), zap.Error(err))
			continue
		}
		logger.Info("Dismissed overlay", zap.String("button", n.Name))
		clicked++
	}
	if err := page.Dismiss(ctx); err != nil {
		logger.Debug("Escape failed", zap.Error(err))
	}
	return clicked
}

func overlayButtons(snap *dom.Snapshot, words locator.Pattern) []*dom.Node {
	var out []*dom.Node
	for _, n := range snap.Nodes() {
		if !n.Visible || !n.Clickable || (n.Role != "button" && n.Tag != "button") {
			continue
		}
		label := strings.ToLower(n.Attr("aria-label"))
		if words.MatchExact(n.Name) || strings.Contains(label, "close") || strings.Contains(label, "dismiss") {
			out = append(out, n)
		}
	}
	return out
}
