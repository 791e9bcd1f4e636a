package download

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/artifact"
)

func newPending(t *testing.T, dir *Dir) *pending {
	t.Helper()
	return &pending{
		dir:     dir,
		logger:  zaptest.NewLogger(t),
		cancel:  func() {},
		started: make(map[string]string),
		done:    make(chan event, 4),
	}
}

func TestNewDirTemporary(t *testing.T) {
	d, err := NewDir("")
	require.NoError(t, err)
	assert.DirExists(t, d.Path())
	require.NoError(t, d.Cleanup())
	assert.NoDirExists(t, d.Path())
}

func TestNewDirKeepsExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dl")
	d, err := NewDir(path)
	require.NoError(t, err)
	require.NoError(t, d.Cleanup())
	assert.DirExists(t, path, "explicit directories are not removed")
}

func TestPendingDeliversCompletedDownload(t *testing.T) {
	d, err := NewDir(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(d.Path(), "guid-1"), []byte("a,b\n1,2"), 0o644))

	p := newPending(t, d)
	p.handle(&browser.EventDownloadWillBegin{GUID: "guid-1", URL: "https://x.test/export.csv", SuggestedFilename: "export.csv"})
	p.handle(&browser.EventDownloadProgress{GUID: "guid-1", State: browser.DownloadProgressStateInProgress})
	p.handle(&browser.EventDownloadProgress{GUID: "guid-1", State: browser.DownloadProgressStateCompleted})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := p.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, artifact.FileDownload, got.Channel)
	assert.Equal(t, "a,b\n1,2", string(got.Data))
	assert.Equal(t, "https://x.test/export.csv", got.Source)
	assert.NoFileExists(t, filepath.Join(d.Path(), "guid-1"), "collected downloads are removed")
}

func TestPendingIgnoresDownloadsStartedBeforeArming(t *testing.T) {
	d, err := NewDir(t.TempDir())
	require.NoError(t, err)

	p := newPending(t, d)
	p.handle(&browser.EventDownloadProgress{GUID: "old", State: browser.DownloadProgressStateCompleted})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPendingCanceledDownloadSettlesEmpty(t *testing.T) {
	d, err := NewDir(t.TempDir())
	require.NoError(t, err)

	p := newPending(t, d)
	p.handle(&browser.EventDownloadWillBegin{GUID: "g", URL: "https://x.test/e"})
	p.handle(&browser.EventDownloadProgress{GUID: "g", State: browser.DownloadProgressStateCanceled})

	got, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCloseDiscardsUncollectedFiles(t *testing.T) {
	d, err := NewDir(t.TempDir())
	require.NoError(t, err)
	file := filepath.Join(d.Path(), "late")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	p := newPending(t, d)
	p.handle(&browser.EventDownloadWillBegin{GUID: "late", URL: "https://x.test/e"})
	p.handle(&browser.EventDownloadProgress{GUID: "late", State: browser.DownloadProgressStateCompleted})
	require.NoError(t, p.Close())
	assert.NoFileExists(t, file)
}

func TestCloseAbandonsRunningDownloads(t *testing.T) {
	d, err := NewDir(t.TempDir())
	require.NoError(t, err)

	p := newPending(t, d)
	p.handle(&browser.EventDownloadWillBegin{GUID: "running", URL: "https://x.test/e"})
	require.NoError(t, p.Close())

	// The browser finishes writing after the round is gone.
	late := filepath.Join(d.Path(), "running")
	require.NoError(t, os.WriteFile(late, []byte("x"), 0o644))
	other := filepath.Join(d.Path(), "unrelated.csv")
	require.NoError(t, os.WriteFile(other, []byte("y"), 0o644))

	require.NoError(t, d.Cleanup())
	assert.NoFileExists(t, late)
	assert.FileExists(t, other, "only abandoned downloads are swept")
	assert.DirExists(t, d.Path())
}
