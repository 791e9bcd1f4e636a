// Package download captures browser file downloads into a private
// directory and hands their bytes to the capture arbiter.
package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/artifact"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/capture"
)

const cancelTimeout = 5 * time.Second

// Dir is the directory Chrome saves downloads into. Files are named by
// download GUID, so concurrent downloads never collide.
type Dir struct {
	path    string
	created bool

	mu sync.Mutex
	// orphans are downloads still running when their round closed. They
	// may land after the round, so Cleanup removes them again.
	orphans map[string]struct{}
}

// NewDir prepares path for downloads. An empty path creates a temporary
// directory that Cleanup removes.
func NewDir(path string) (*Dir, error) {
	if path == "" {
		tmp, err := os.MkdirTemp("", "exporter-downloads-")
		if err != nil {
			return nil, fmt.Errorf("create download dir: %w", err)
		}
		return &Dir{path: tmp, created: true}, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve download dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	return &Dir{path: abs}, nil
}

// Path is the absolute directory path.
func (d *Dir) Path() string { return d.path }

// Configure tells the browser of ctx to save downloads into d and to emit
// download progress events.
func (d *Dir) Configure(ctx context.Context) error {
	if err := chromedp.Run(ctx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(d.path).
			WithEventsEnabled(true),
	); err != nil {
		return fmt.Errorf("configure downloads: %w", err)
	}
	return nil
}

// Take reads and removes the file saved for guid.
func (d *Dir) Take(guid string) ([]byte, error) {
	p := filepath.Join(d.path, guid)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read download %s: %w", guid, err)
	}
	_ = os.Remove(p)
	return data, nil
}

// Discard removes the file saved for guid, if any.
func (d *Dir) Discard(guid string) {
	_ = os.Remove(filepath.Join(d.path, guid))
}

// abandon discards guid now and remembers it for Cleanup.
func (d *Dir) abandon(guid string) {
	d.Discard(guid)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.orphans == nil {
		d.orphans = make(map[string]struct{})
	}
	d.orphans[guid] = struct{}{}
}

// Cleanup removes a temporary directory created by NewDir. In a
// configured directory it removes downloads abandoned by closed rounds.
func (d *Dir) Cleanup() error {
	if d.created {
		return os.RemoveAll(d.path)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for guid := range d.orphans {
		d.Discard(guid)
	}
	d.orphans = nil
	return nil
}

// Observer watches download events of one tab.
type Observer struct {
	tab    context.Context
	dir    *Dir
	logger *zap.Logger
}

// NewObserver returns an observer for the tab behind the chromedp context tab.
func NewObserver(tab context.Context, dir *Dir, logger *zap.Logger) *Observer {
	return &Observer{tab: tab, dir: dir, logger: logger}
}

func (o *Observer) Channel() artifact.Channel { return artifact.FileDownload }

// Arm starts listening for downloads that begin from now on.
func (o *Observer) Arm(context.Context) (capture.Pending, error) {
	lctx, cancel := context.WithCancel(o.tab)
	p := &pending{
		tab:     o.tab,
		dir:     o.dir,
		logger:  o.logger,
		cancel:  cancel,
		started: make(map[string]string),
		done:    make(chan event, 4),
	}
	chromedp.ListenTarget(lctx, p.handle)
	return p, nil
}

type event struct {
	guid     string
	url      string
	canceled bool
}

type pending struct {
	tab    context.Context
	dir    *Dir
	logger *zap.Logger
	cancel context.CancelFunc

	mu      sync.Mutex
	started map[string]string
	done    chan event
}

func (p *pending) handle(ev interface{}) {
	switch e := ev.(type) {
	case *browser.EventDownloadWillBegin:
		p.mu.Lock()
		p.started[e.GUID] = e.URL
		p.mu.Unlock()
		p.logger.Info("Download started", zap.String("file", e.SuggestedFilename), zap.String("url", e.URL))
	case *browser.EventDownloadProgress:
		if e.State != browser.DownloadProgressStateCompleted && e.State != browser.DownloadProgressStateCanceled {
			return
		}
		p.mu.Lock()
		url, ok := p.started[e.GUID]
		delete(p.started, e.GUID)
		p.mu.Unlock()
		if !ok {
			return
		}
		select {
		case p.done <- event{guid: e.GUID, url: url, canceled: e.State == browser.DownloadProgressStateCanceled}:
		default:
			p.dir.Discard(e.GUID)
		}
	}
}

// Wait returns the first completed download. A canceled download settles
// the channel empty.
func (p *pending) Wait(ctx context.Context) (*capture.Payload, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ev := <-p.done:
		if ev.canceled {
			p.dir.Discard(ev.guid)
			return nil, nil
		}
		data, err := p.dir.Take(ev.guid)
		if err != nil {
			return nil, err
		}
		return &capture.Payload{Channel: artifact.FileDownload, Data: data, Source: ev.url}, nil
	}
}

// Close stops listening and deletes downloads nobody collected. Downloads
// still in progress are cancelled and left to Dir.Cleanup in case they
// finish anyway.
func (p *pending) Close() error {
	p.cancel()

	p.mu.Lock()
	running := make([]string, 0, len(p.started))
	for guid := range p.started {
		running = append(running, guid)
	}
	p.started = make(map[string]string)
	p.mu.Unlock()

	for _, guid := range running {
		p.cancelDownload(guid)
		p.dir.abandon(guid)
	}

	for {
		select {
		case ev := <-p.done:
			p.dir.Discard(ev.guid)
		default:
			return nil
		}
	}
}

func (p *pending) cancelDownload(guid string) {
	if p.tab == nil || p.tab.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(p.tab, cancelTimeout)
	defer cancel()
	if err := chromedp.Run(ctx, browser.CancelDownload(guid)); err != nil {
		p.logger.Debug("Could not cancel download", zap.String("guid", guid), zap.Error(err))
	}
}
