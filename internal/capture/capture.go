// Package capture races the delivery channels an export can use and keeps
// the first payload that validates as a table.
package capture

import (
	"context"
	"errors"
	"time"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/artifact"
)

// ErrNotCaptured means no channel produced a valid payload within budget.
var ErrNotCaptured = errors.New("no export payload captured")

// Payload is raw data delivered by one channel, not yet validated.
type Payload struct {
	Channel artifact.Channel
	Data    []byte
	Source  string
	// Seq orders in-page log entries; zero for other channels.
	Seq int64
}

// Observer watches one delivery channel.
type Observer interface {
	Channel() artifact.Channel
	// Arm subscribes before the trigger fires. Events from before Arm are
	// never reported.
	Arm(ctx context.Context) (Pending, error)
}

// Pending is an armed channel.
type Pending interface {
	// Wait blocks until the next payload arrives or ctx ends. It is called
	// again after a payload is rejected, so it must not return the same
	// payload twice. A nil payload with a nil error means the channel
	// settled and has nothing more to deliver.
	Wait(ctx context.Context) (*Payload, error)
	// Close releases listeners and any browser resources the channel
	// opened, such as popup tabs.
	Close() error
}

// InPageLog reads the append-only record of object URLs, download anchors
// and window.open calls kept by the page instrumentation.
type InPageLog interface {
	// Mark returns the sequence number of the newest entry.
	Mark(ctx context.Context) (int64, error)
	// Latest resolves the newest entry after since, or returns nil.
	Latest(ctx context.Context, since int64) (*Payload, error)
}

// Channels is everything the arbiter arms for one attempt.
type Channels struct {
	Observers []Observer
	// Log backs the in-page object channel and the final polling window.
	Log InPageLog
}

// Trigger performs the activation the channels are armed for.
type Trigger = func(ctx context.Context) error

// Confirmer inspects the page after an activation produced nothing and
// returns the action answering a format or confirmation dialog, or nil.
type Confirmer interface {
	FormatChoice(ctx context.Context) (func(context.Context) error, error)
}

// Budgets bounds every wait of an attempt.
type Budgets struct {
	Download     time.Duration
	Popup        time.Duration
	Network      time.Duration
	InPage       time.Duration
	DialogProbe  time.Duration
	PollWindow   time.Duration
	PollInterval time.Duration
}

// DefaultBudgets are sized for a slow admin console.
func DefaultBudgets() Budgets {
	return Budgets{
		Download:     2 * time.Minute,
		Popup:        10 * time.Second,
		Network:      60 * time.Second,
		InPage:       15 * time.Second,
		DialogProbe:  2 * time.Second,
		PollWindow:   5 * time.Second,
		PollInterval: 250 * time.Millisecond,
	}
}

func (b Budgets) forChannel(ch artifact.Channel) time.Duration {
	switch ch {
	case artifact.FileDownload:
		return b.Download
	case artifact.PopupDocument:
		return b.Popup
	case artifact.NetworkResponse:
		return b.Network
	case artifact.InPageObject:
		return b.InPage
	}
	return b.Popup
}
