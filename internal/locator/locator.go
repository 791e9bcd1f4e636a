// Package locator finds the control that starts an export on a page whose
// markup is unknown. It runs a ladder of strategies from most to least
// reliable; every strategy works on a fresh DOM snapshot.
package locator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/dom"
)

// ErrNotFound means a strategy found no export-like control.
var ErrNotFound = errors.New("export control not found")

// Page is the view of a live page the locator needs.
type Page interface {
	// Snapshot captures the current element tree.
	Snapshot(ctx context.Context) (*dom.Snapshot, error)
	// Click activates the element with the given ref.
	Click(ctx context.Context, ref int) error
	// Dismiss closes transient UI such as menus and popovers.
	Dismiss(ctx context.Context) error
}

// Target is a control resolved by a strategy. It is only meaningful for the
// snapshot it came from.
type Target struct {
	Ref      int
	Name     string
	Strategy string
}

func (t Target) String() string {
	return fmt.Sprintf("%s[ref=%d %q]", t.Strategy, t.Ref, t.Name)
}

// Strategy is one rung of the ladder.
type Strategy interface {
	Name() string
	Locate(ctx context.Context, page Page) (*Target, error)
}

// Locate runs s against page. A nil target is always reported as
// ErrNotFound.
func Locate(ctx context.Context, page Page, s Strategy) (*Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := s.Locate(ctx, page)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%s: %w", s.Name(), ErrNotFound)
	}
	t.Strategy = s.Name()
	return t, nil
}

// Options parameterizes the default ladder.
type Options struct {
	Export     Pattern
	Overflow   Pattern
	Anchor     Pattern
	ClimbLimit int
	SweepLimit int
	Settle     time.Duration
	// DisableSweep drops the positional toolbar strategy.
	DisableSweep bool
}

// DefaultOptions returns the built-in vocabularies and limits.
func DefaultOptions() Options {
	return Options{
		Export:     NewPattern(ExportWords...),
		Overflow:   NewPattern(OverflowWords...),
		Anchor:     NewPattern(AnchorWords...),
		ClimbLimit: 4,
		SweepLimit: 6,
		Settle:     400 * time.Millisecond,
	}
}

// Ladder builds the strategies in the order they must be tried.
func Ladder(o Options) []Strategy {
	ladder := []Strategy{
		Semantic{Pattern: o.Export},
		FreeText{Pattern: o.Export, ClimbLimit: o.ClimbLimit},
		Overflow{Pattern: o.Export, Menu: o.Overflow, ClimbLimit: o.ClimbLimit, Settle: o.Settle},
	}
	if !o.DisableSweep {
		ladder = append(ladder, ToolbarSweep{
			Pattern:    o.Export,
			Anchor:     o.Anchor,
			ClimbLimit: o.ClimbLimit,
			Limit:      o.SweepLimit,
			Settle:     o.Settle,
		})
	}
	return ladder
}

var actionRoles = map[string]bool{
	"button":           true,
	"link":             true,
	"menuitem":         true,
	"menuitemradio":    true,
	"menuitemcheckbox": true,
	"tab":              true,
	"option":           true,
}

func actionable(n *dom.Node) bool {
	return n.Visible && (actionRoles[n.Role] || n.Tag == "button")
}

// findSemantic returns the action-role element whose accessible name best
// matches p. An exact name beats a near-exact one; ties go to document order.
func findSemantic(snap *dom.Snapshot, p Pattern, scope dom.Scope) *dom.Node {
	var best *dom.Node
	bestScore := 0
	for _, n := range snap.Nodes() {
		if !actionable(n) || !scope(n) {
			continue
		}
		score := 0
		switch {
		case p.MatchExact(n.Name):
			score = 2
		case p.MatchName(n.Name):
			score = 1
		}
		if score > bestScore {
			best, bestScore = n, score
		}
	}
	return best
}

// findByText returns the nearest clickable element wrapping the first
// visible short text that contains a synonym.
func findByText(snap *dom.Snapshot, p Pattern, climb int, scope dom.Scope) *dom.Node {
	for _, n := range snap.Nodes() {
		if !n.Visible || !scope(n) {
			continue
		}
		if !p.MatchText(n.Text) && !(n.Text == "" && n.Clickable && p.MatchText(n.Name)) {
			continue
		}
		if c, ok := snap.ClickableAncestor(n, climb); ok {
			return c
		}
	}
	return nil
}

func target(n *dom.Node) *Target {
	name := n.Name
	if name == "" {
		name = n.Text
	}
	return &Target{Ref: n.Ref, Name: strings.TrimSpace(name)}
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
