package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/artifact"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/capture"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/dom"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/locator"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/metrics"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/surface"
)

// These tests drive the real locator ladder and capture arbiter against a
// scripted page.

// scriptedPage serves a fixed DOM per surface. Clicking a ref runs the
// action registered for it, which may reveal nodes or push a delivery.
type scriptedPage struct {
	mu      sync.Mutex
	surface string
	base    map[string][]dom.Node
	shown   []dom.Node
	actions map[string]map[int]func(*scriptedPage)
	clicks  []string
}

func newScriptedPage() *scriptedPage {
	return &scriptedPage{
		base:    map[string][]dom.Node{},
		actions: map[string]map[int]func(*scriptedPage){},
	}
}

func (p *scriptedPage) on(name string, ref int, action func(*scriptedPage)) {
	if p.actions[name] == nil {
		p.actions[name] = map[int]func(*scriptedPage){}
	}
	p.actions[name][ref] = action
}

func (p *scriptedPage) open(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.surface = name
	p.shown = nil
}

func (p *scriptedPage) reveal(nodes ...dom.Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown = append(p.shown, nodes...)
}

func (p *scriptedPage) Snapshot(context.Context) (*dom.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	nodes := append(append([]dom.Node(nil), p.base[p.surface]...), p.shown...)
	return dom.NewSnapshot(nodes), nil
}

func (p *scriptedPage) Click(_ context.Context, ref int) error {
	p.mu.Lock()
	p.clicks = append(p.clicks, fmt.Sprintf("%s/%d", p.surface, ref))
	action := p.actions[p.surface][ref]
	p.mu.Unlock()
	if action != nil {
		action(p)
	}
	return nil
}

func (p *scriptedPage) Dismiss(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown = nil
	return nil
}

func (p *scriptedPage) clicked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

type scriptedDriver struct {
	page     *scriptedPage
	channels capture.Channels
	shot     []byte
}

func (d *scriptedDriver) Open(_ context.Context, s surface.Surface) error {
	d.page.open(s.Name)
	return nil
}

func (d *scriptedDriver) Page() locator.Page         { return d.page }
func (d *scriptedDriver) Channels() capture.Channels { return d.channels }
func (d *scriptedDriver) Alive() bool                { return true }

func (d *scriptedDriver) Screenshot(context.Context) ([]byte, error) {
	return d.shot, nil
}

// feedObserver races whatever the page pushes on its feed once armed.
type feedObserver struct {
	channel artifact.Channel
	feed    chan *capture.Payload
}

func newFeedObserver(ch artifact.Channel) *feedObserver {
	return &feedObserver{channel: ch, feed: make(chan *capture.Payload, 4)}
}

func (o *feedObserver) Channel() artifact.Channel { return o.channel }

func (o *feedObserver) Arm(context.Context) (capture.Pending, error) {
	return feedPending{feed: o.feed}, nil
}

type feedPending struct {
	feed <-chan *capture.Payload
}

func (p feedPending) Wait(ctx context.Context) (*capture.Payload, error) {
	select {
	case payload := <-p.feed:
		return payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p feedPending) Close() error { return nil }

type fakeResponse struct {
	meta capture.ResponseMeta
	body string
}

// responseObserver delivers only the responses the network filter accepts.
type responseObserver struct {
	responses chan fakeResponse
}

func (o *responseObserver) Channel() artifact.Channel { return artifact.NetworkResponse }

func (o *responseObserver) Arm(context.Context) (capture.Pending, error) {
	return responsePending{responses: o.responses}, nil
}

type responsePending struct {
	responses <-chan fakeResponse
}

func (p responsePending) Wait(ctx context.Context) (*capture.Payload, error) {
	for {
		select {
		case r := <-p.responses:
			if !capture.LooksLikeExport(r.meta) {
				continue
			}
			return &capture.Payload{Channel: artifact.NetworkResponse, Data: []byte(r.body), Source: r.meta.URL}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p responsePending) Close() error { return nil }

// memoryLog is an in-page log the page appends to.
type memoryLog struct {
	mu      sync.Mutex
	entries []capture.Payload
}

func (l *memoryLog) add(data, source string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, capture.Payload{
		Channel: artifact.InPageObject,
		Data:    []byte(data),
		Source:  source,
		Seq:     int64(len(l.entries) + 1),
	})
}

func (l *memoryLog) Mark(context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int64(len(l.entries)), nil
}

func (l *memoryLog) Latest(_ context.Context, since int64) (*capture.Payload, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if int64(len(l.entries)) <= since {
		return nil, nil
	}
	p := l.entries[len(l.entries)-1]
	return &p, nil
}

type ladderHarness struct {
	t       *testing.T
	page    *scriptedPage
	driver  *scriptedDriver
	metrics *metrics.Recorder
	cfg     Config
}

func newLadderHarness(t *testing.T, surfaces ...string) *ladderHarness {
	dir := t.TempDir()
	page := newScriptedPage()
	h := &ladderHarness{
		t:       t,
		page:    page,
		driver:  &scriptedDriver{page: page},
		metrics: metrics.New(),
	}
	opts := locator.DefaultOptions()
	opts.Settle = time.Millisecond
	h.cfg = Config{
		Ladder:         locator.Ladder(opts),
		OutputPath:     filepath.Join(dir, "out", "inventory.csv"),
		ScreenshotPath: filepath.Join(dir, "out", "error.png"),
		TracePath:      filepath.Join(dir, "out", "trace.json"),
		Budgets: capture.Budgets{
			Download:     150 * time.Millisecond,
			Popup:        150 * time.Millisecond,
			Network:      150 * time.Millisecond,
			InPage:       150 * time.Millisecond,
			DialogProbe:  30 * time.Millisecond,
			PollWindow:   2 * time.Second,
			PollInterval: 5 * time.Millisecond,
		},
		OverlayWords: locator.NewPattern(locator.DismissWords...),
		ClimbLimit:   opts.ClimbLimit,
		Settle:       time.Millisecond,
	}
	for _, name := range surfaces {
		h.cfg.Surfaces = append(h.cfg.Surfaces, surface.Surface{Name: name, URL: "https://r.loyverse.com/dashboard/#/" + name})
		h.page.base[name] = []dom.Node{
			{Ref: 1, Tag: "main", Visible: true},
			{Ref: 2, Parent: 1, Tag: "h1", Text: name, Visible: true},
		}
	}
	return h
}

func (h *ladderHarness) add(name string, nodes ...dom.Node) {
	h.page.base[name] = append(h.page.base[name], nodes...)
}

func (h *ladderHarness) run() (*Outcome, error) {
	r := New(h.cfg, Deps{Driver: h.driver, Metrics: h.metrics, Logger: zaptest.NewLogger(h.t)})
	return r.Run(context.Background())
}

func (h *ladderHarness) output() string {
	raw, err := os.ReadFile(h.cfg.OutputPath)
	require.NoError(h.t, err)
	return string(raw)
}

func TestLadderFreeTextOnSecondSurfaceByDownload(t *testing.T) {
	h := newLadderHarness(t, "price-list", "items")
	h.add("items",
		dom.Node{Ref: 3, Parent: 1, Tag: "div", Clickable: true, Visible: true},
		dom.Node{Ref: 4, Parent: 3, Tag: "span", Text: "Export", Visible: true},
	)
	downloads := newFeedObserver(artifact.FileDownload)
	h.driver.channels = capture.Channels{Observers: []capture.Observer{downloads}}
	h.page.on("items", 3, func(*scriptedPage) {
		downloads.feed <- &capture.Payload{Channel: artifact.FileDownload, Data: []byte(validCSV), Source: "items.csv"}
	})

	out, err := h.run()
	require.NoError(t, err)
	assert.Equal(t, ExitOK, ExitCode(err))
	assert.Equal(t, "items", out.Surface)
	assert.Equal(t, "free_text", out.Strategy)
	assert.Equal(t, artifact.FileDownload, out.Channel)
	assert.Equal(t, 2, out.Stats.SurfacesTried)
	assert.Equal(t, len(h.cfg.Ladder)+2, out.Stats.Attempts)
	assert.Equal(t, []string{"items/3"}, h.page.clicked())
	assert.Equal(t, validCSV, h.output())
}

func TestLadderSemanticThroughFormatDialogByNetwork(t *testing.T) {
	h := newLadderHarness(t, "items")
	h.add("items", dom.Node{Ref: 3, Parent: 1, Tag: "button", Role: "button", Name: "Export", Clickable: true, Visible: true})
	h.page.on("items", 3, func(p *scriptedPage) {
		p.reveal(
			dom.Node{Ref: 10, Tag: "div", Role: "dialog", Region: dom.RegionDialog, Visible: true},
			dom.Node{Ref: 11, Parent: 10, Tag: "h2", Text: "Export items", Region: dom.RegionDialog, Visible: true},
			dom.Node{Ref: 12, Parent: 10, Tag: "input", Role: "radio", Name: "Excel", Clickable: true, Visible: true, Region: dom.RegionDialog},
			dom.Node{Ref: 13, Parent: 10, Tag: "input", Role: "radio", Name: "CSV", Clickable: true, Visible: true, Region: dom.RegionDialog},
			dom.Node{Ref: 14, Parent: 10, Tag: "button", Role: "button", Name: "Download", Clickable: true, Visible: true, Region: dom.RegionDialog},
		)
	})

	network := &responseObserver{responses: make(chan fakeResponse, 4)}
	h.driver.channels = capture.Channels{Observers: []capture.Observer{network, newFeedObserver(artifact.FileDownload)}}
	const attachment = "https://r.loyverse.com/data/ownercab/getwares?format=csv"
	h.page.on("items", 14, func(*scriptedPage) {
		network.responses <- fakeResponse{
			meta: capture.ResponseMeta{URL: "https://r.loyverse.com/static/app.css", ResourceType: "stylesheet", MimeType: "text/css"},
			body: "body{}",
		}
		network.responses <- fakeResponse{
			meta: capture.ResponseMeta{URL: "https://r.loyverse.com/api/export/prepare", MimeType: "application/json"},
			body: `{"status":"queued"}`,
		}
		network.responses <- fakeResponse{
			meta: capture.ResponseMeta{
				URL:      attachment,
				MimeType: "text/plain",
				Headers:  map[string]string{"content-disposition": `attachment; filename="items.csv"`},
			},
			body: validCSV,
		}
	})

	out, err := h.run()
	require.NoError(t, err)
	assert.Equal(t, "semantic", out.Strategy)
	assert.Equal(t, artifact.NetworkResponse, out.Channel)
	assert.Equal(t, []string{"items/3", "items/13", "items/14"}, h.page.clicked(), "CSV is chosen over Excel, then confirmed")
	assert.Equal(t, 1, out.Stats.Rejected, "the JSON job response is rejected")
	assert.Equal(t, validCSV, h.output())
}

func TestLadderInPageObjectCaughtByFinalPoll(t *testing.T) {
	h := newLadderHarness(t, "items")
	h.cfg.Budgets.Download = 30 * time.Millisecond
	h.cfg.Budgets.InPage = 30 * time.Millisecond
	h.add("items", dom.Node{Ref: 3, Parent: 1, Tag: "button", Role: "button", Name: "Export", Clickable: true, Visible: true})

	log := &memoryLog{}
	h.driver.channels = capture.Channels{
		Observers: []capture.Observer{newFeedObserver(artifact.FileDownload)},
		Log:       log,
	}
	done := make(chan struct{})
	h.page.on("items", 3, func(*scriptedPage) {
		time.AfterFunc(200*time.Millisecond, func() {
			defer close(done)
			log.add(validCSV, "blob:https://r.loyverse.com/3f2a")
		})
	})

	out, err := h.run()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("export control was never clicked")
	}
	require.NoError(t, err)
	assert.Equal(t, "semantic", out.Strategy)
	assert.Equal(t, artifact.InPageObject, out.Channel)
	assert.Equal(t, validCSV, h.output())
}

func TestLadderExhaustedWritesScreenshot(t *testing.T) {
	h := newLadderHarness(t, "price-list", "items")
	h.driver.channels = capture.Channels{Observers: []capture.Observer{newFeedObserver(artifact.FileDownload)}}
	h.driver.shot = []byte("\x89PNG")

	out, err := h.run()
	require.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, ExitCode(err))
	assert.Equal(t, 2*len(h.cfg.Ladder), out.Stats.Attempts)
	assert.Empty(t, h.page.clicked())

	shot, err := os.ReadFile(h.cfg.ScreenshotPath)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(shot))
	assert.Equal(t, h.cfg.ScreenshotPath, out.Screenshot)

	_, err = os.Stat(h.cfg.OutputPath)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
