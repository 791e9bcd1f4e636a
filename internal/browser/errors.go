package browser

import (
	"errors"
	"strings"

	"github.com/chromedp/chromedp"
)

var closedPatterns = []string{
	"websocket: close",
	"target closed",
	"browser: not connected",
	"session closed",
	"page closed",
	"connection refused",
	"broken pipe",
	"invalid context",
}

// IsBrowserClosed reports whether err means the browser or the tab is gone,
// as opposed to a single action failing on a live page.
func IsBrowserClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, chromedp.ErrInvalidContext) || errors.Is(err, chromedp.ErrChannelClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range closedPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
