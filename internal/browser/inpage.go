package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/artifact"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/capture"
)

const markJS = `(window.__exporterCapture ? window.__exporterCapture.seq : 0)`

const latestJS = `(function (since) {
  var log = window.__exporterCapture;
  if (!log || !log.entries.length) return { seq: 0 };
  var e = log.entries[log.entries.length - 1];
  if (e.seq <= since) return { seq: 0 };
  return e;
})(%d)`

const fetchTextJS = `fetch(%q, { credentials: 'include' })
  .then(function (r) { return r.ok ? r.text() : ''; })
  .catch(function () { return ''; })`

type logEntry struct {
	Seq  int64   `json:"seq"`
	Kind string  `json:"kind"`
	URL  string  `json:"url"`
	Text *string `json:"text"`
}

// inPageLog reads the entries recorded by scripts/instrument.js.
type inPageLog struct {
	b *Browser
}

func (l inPageLog) Mark(ctx context.Context) (int64, error) {
	rctx, cancel := Bind(l.b.ctx, ctx)
	defer cancel()
	var seq int64
	if err := chromedp.Run(rctx, chromedp.Evaluate(markJS, &seq)); err != nil {
		return 0, err
	}
	return seq, nil
}

func (l inPageLog) Latest(ctx context.Context, since int64) (*capture.Payload, error) {
	rctx, cancel := Bind(l.b.ctx, ctx)
	defer cancel()

	var e logEntry
	if err := chromedp.Run(rctx, chromedp.Evaluate(fmt.Sprintf(latestJS, since), &e)); err != nil {
		return nil, err
	}
	if e.Seq == 0 {
		return nil, nil
	}

	data, err := l.resolve(rctx, e)
	if err != nil {
		return nil, fmt.Errorf("resolve %s entry %d: %w", e.Kind, e.Seq, err)
	}
	if data == nil {
		return nil, nil
	}
	return &capture.Payload{Channel: artifact.InPageObject, Data: data, Source: e.URL, Seq: e.Seq}, nil
}

// resolve turns an entry into bytes: recorded Blob text first, then data
// URLs, then a same-session fetch of blob: or http(s) URLs.
func (l inPageLog) resolve(ctx context.Context, e logEntry) ([]byte, error) {
	if e.Text != nil && *e.Text != "" {
		return []byte(*e.Text), nil
	}
	switch {
	case strings.HasPrefix(e.URL, "data:"):
		return decodeDataURL(e.URL)
	case strings.HasPrefix(e.URL, "blob:"), strings.HasPrefix(e.URL, "http:"), strings.HasPrefix(e.URL, "https:"):
		var text string
		err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(fetchTextJS, e.URL), &text,
			func(p *runtime.EvaluateParams) *runtime.EvaluateParams { return p.WithAwaitPromise(true) }))
		if err != nil {
			return nil, err
		}
		if text == "" {
			return nil, nil
		}
		return []byte(text), nil
	}
	return nil, nil
}

var errDataURL = errors.New("malformed data URL")

// decodeDataURL decodes RFC 2397 data URLs in base64 or percent encoding.
func decodeDataURL(s string) ([]byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, errDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, errDataURL
	}
	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		if b, err := base64.StdEncoding.DecodeString(payload); err == nil {
			return b, nil
		}
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errDataURL, err)
		}
		b, err := base64.StdEncoding.DecodeString(unescaped)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errDataURL, err)
		}
		return b, nil
	}
	text, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errDataURL, err)
	}
	return []byte(text), nil
}
