// Package auth establishes and verifies the authenticated back-office
// session the exporter runs in.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/browser"
)

const (
	// LoginCheckInterval is how often to check login status when waiting.
	LoginCheckInterval = 2 * time.Second
	// LoginTimeout is the maximum time to wait for a login to complete.
	LoginTimeout = 5 * time.Minute
)

// loginURLMarkers are path fragments of sign-in pages. A session that was
// redirected to one of them is gone.
var loginURLMarkers = []string{"signin", "sign-in", "login", "/auth", "passport"}

const loginFormJS = `(function () {
  function visible(el) {
    var r = el.getBoundingClientRect();
    return r.width > 0 && r.height > 0;
  }
  var pw = document.querySelectorAll('input[type="password"]');
  for (var i = 0; i < pw.length; i++) {
    if (visible(pw[i])) return true;
  }
  var forms = document.querySelectorAll('form[action*="signin"], form[action*="login"]');
  for (var j = 0; j < forms.length; j++) {
    if (visible(forms[j])) return true;
  }
  return false;
})()`

// IsLoginURL reports whether url points at a sign-in page.
func IsLoginURL(url string) bool {
	lower := strings.ToLower(url)
	for _, m := range loginURLMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// CheckLoginStatus reports whether the tab behind ctx shows the signed-in
// console rather than a sign-in page.
func CheckLoginStatus(ctx context.Context) (bool, error) {
	var url string
	if err := chromedp.Run(ctx, chromedp.Location(&url)); err != nil {
		return false, fmt.Errorf("could not get current URL: %w", err)
	}
	if IsLoginURL(url) {
		return false, nil
	}

	var loginForm bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(loginFormJS, &loginForm)); err != nil {
		return false, fmt.Errorf("could not check login elements: %w", err)
	}
	return !loginForm, nil
}

// WaitForLogin polls the login status until it turns true, timeout passes
// or ctx ends.
func WaitForLogin(ctx context.Context, interval, timeout time.Duration, logger *zap.Logger) error {
	logger.Info("Waiting for login", zap.Duration("interval", interval), zap.Duration("timeout", timeout))

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	check := time.NewTicker(interval)
	defer check.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w: no login within %v", ErrSessionUnavailable, timeout)
		case <-check.C:
			ok, err := CheckLoginStatus(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Debug("Login check failed", zap.Error(err))
				continue
			}
			if ok {
				logger.Info("Login detected")
				return nil
			}
		}
	}
}

// Checker verifies the session of a live browser tab.
type Checker struct {
	b *browser.Browser
}

func NewChecker(b *browser.Browser) *Checker {
	return &Checker{b: b}
}

// Valid reports whether the current page is still signed in.
func (c *Checker) Valid(ctx context.Context) (bool, error) {
	rctx, cancel := browser.Bind(c.b.Context(), ctx)
	defer cancel()
	return CheckLoginStatus(rctx)
}
