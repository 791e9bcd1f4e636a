package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/artifact"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/capture"
)

func newNetworkPending() *networkPending {
	return &networkPending{
		cancel:  func() {},
		matched: make(map[network.RequestID]string),
		bodies:  make(chan *capture.Payload, 4),
		errs:    make(chan error, 4),
	}
}

// pendingObserver hands out an already built Pending.
type pendingObserver struct {
	channel artifact.Channel
	pending capture.Pending
}

func (o pendingObserver) Channel() artifact.Channel { return o.channel }

func (o pendingObserver) Arm(context.Context) (capture.Pending, error) { return o.pending, nil }

func TestNetworkPendingDeliversEachBody(t *testing.T) {
	p := newNetworkPending()
	p.bodies <- &capture.Payload{Channel: artifact.NetworkResponse, Data: []byte(`{"ok":true}`), Source: "a"}
	p.bodies <- &capture.Payload{Channel: artifact.NetworkResponse, Data: []byte("x,y\n1,2\n"), Source: "b"}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	first, err := p.Wait(ctx)
	require.NoError(t, err)
	second, err := p.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", first.Source)
	assert.Equal(t, "b", second.Source)
}

func TestNetworkChannelSurvivesRejectedResponse(t *testing.T) {
	p := newNetworkPending()
	budgets := capture.DefaultBudgets()
	budgets.Network = time.Second
	budgets.DialogProbe = time.Second

	a := capture.NewArbiter(budgets, zaptest.NewLogger(t), nil)
	ch := capture.Channels{Observers: []capture.Observer{pendingObserver{channel: artifact.NetworkResponse, pending: p}}}
	art, err := a.ArmAndClick(context.Background(), ch, nil, func(context.Context) error {
		p.bodies <- &capture.Payload{
			Channel: artifact.NetworkResponse,
			Data:    []byte(`{"job":"queued"}`),
			Source:  "https://r.loyverse.com/api/export/prepare",
		}
		time.AfterFunc(50*time.Millisecond, func() {
			p.bodies <- &capture.Payload{
				Channel: artifact.NetworkResponse,
				Data:    []byte("name,price\nApple,10\n"),
				Source:  "https://r.loyverse.com/api/export/download",
			}
		})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "https://r.loyverse.com/api/export/download", art.Source)
	assert.Equal(t, "name,price\nApple,10\n", string(art.Bytes()))
}
