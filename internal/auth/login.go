package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/browser"
)

// DefaultLoginURL is the back-office sign-in page.
const DefaultLoginURL = "https://loyverse.com/signin"

const (
	emailSelector    = `input[type="email"], input[name="email"]`
	passwordSelector = `input[type="password"], input[name="password"]`
	formTimeout      = 60 * time.Second
	submitTimeout    = 90 * time.Second
)

const submitJS = `(function () {
  var names = /^(sign in|log in|login|เข้าสู่ระบบ)$/i;
  var buttons = document.querySelectorAll('button, input[type="submit"], [role="button"]');
  for (var i = 0; i < buttons.length; i++) {
    var b = buttons[i];
    var text = (b.innerText || b.value || '').trim();
    if (b.type === 'submit' || names.test(text)) {
      b.click();
      return true;
    }
  }
  return false;
})()`

// Establish returns a session for b. Stored sessions are applied to the
// browser directly. Otherwise a credential login and then, when allowed, a
// manual login are attempted, and the resulting state is persisted to
// opts.StorageFile.
func Establish(ctx context.Context, b *browser.Browser, opts Options, logger *zap.Logger) (*State, Source, error) {
	state, src, err := Resolve(opts, logger)
	if err == nil {
		rctx, cancel := browser.Bind(b.Context(), ctx)
		defer cancel()
		if err := state.Apply(rctx); err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
		}
		return state, src, nil
	}

	switch {
	case opts.CanLogin():
		state, err = Login(ctx, b, opts, logger)
		src = SourceCredentials
	case opts.Interactive:
		state, err = Interactive(ctx, b, opts.LoginURL, LoginTimeout, logger)
		src = SourceInteractive
	default:
		return nil, "", fmt.Errorf("%w: provide a storage state or credentials", ErrSessionUnavailable)
	}
	if err != nil {
		return nil, "", err
	}

	if opts.StorageFile != "" {
		if err := Save(opts.StorageFile, state); err != nil {
			logger.Warn("Could not persist storage state", zap.String("path", opts.StorageFile), zap.Error(err))
		} else {
			logger.Info("Storage state saved", zap.String("path", opts.StorageFile))
		}
	}
	return state, src, nil
}

// Login signs in with email and password. CAPTCHA or two-factor prompts
// make it time out with ErrSessionUnavailable.
func Login(ctx context.Context, b *browser.Browser, opts Options, logger *zap.Logger) (*State, error) {
	logger = logger.Named("login")
	url := opts.LoginURL
	if url == "" {
		url = DefaultLoginURL
	}
	logger.Info("Signing in with credentials", zap.String("url", url))

	if err := b.Navigate(ctx, url); err != nil {
		return nil, fmt.Errorf("%w: open sign-in page: %v", ErrSessionUnavailable, err)
	}

	rctx, cancel := browser.Bind(b.Context(), ctx)
	defer cancel()

	fctx, cancelForm := context.WithTimeout(rctx, formTimeout)
	err := chromedp.Run(fctx,
		chromedp.WaitVisible(emailSelector, chromedp.ByQuery),
		chromedp.SendKeys(emailSelector, opts.Email, chromedp.ByQuery),
		chromedp.SendKeys(passwordSelector, opts.Password, chromedp.ByQuery),
	)
	cancelForm()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: fill sign-in form: %v", ErrSessionUnavailable, err)
	}

	var submitted bool
	if err := chromedp.Run(rctx, chromedp.Evaluate(submitJS, &submitted)); err != nil || !submitted {
		logger.Debug("No submit button, pressing Enter", zap.Error(err))
		if err := chromedp.Run(rctx, chromedp.SendKeys(passwordSelector, kb.Enter, chromedp.ByQuery)); err != nil {
			return nil, fmt.Errorf("%w: submit sign-in form: %v", ErrSessionUnavailable, err)
		}
	}

	if err := WaitForLogin(rctx, LoginCheckInterval, submitTimeout, logger); err != nil {
		if errors.Is(err, ErrSessionUnavailable) {
			return nil, fmt.Errorf("%w (captcha or two-factor prompt?)", err)
		}
		return nil, err
	}
	return Capture(rctx)
}

// Interactive opens the sign-in page and waits for a person to finish
// logging in by hand, then captures the session.
func Interactive(ctx context.Context, b *browser.Browser, loginURL string, timeout time.Duration, logger *zap.Logger) (*State, error) {
	logger = logger.Named("login")
	if loginURL == "" {
		loginURL = DefaultLoginURL
	}
	if err := b.Navigate(ctx, loginURL); err != nil {
		return nil, fmt.Errorf("open sign-in page: %w", err)
	}
	logger.Warn("Please log in to the back office in the browser window", zap.String("url", loginURL))

	rctx, cancel := browser.Bind(b.Context(), ctx)
	defer cancel()
	if err := WaitForLogin(rctx, LoginCheckInterval, timeout, logger); err != nil {
		return nil, err
	}
	// Let the console finish writing its own storage.
	if err := chromedp.Run(rctx, chromedp.Sleep(2*time.Second)); err != nil {
		return nil, err
	}
	return Capture(rctx)
}
