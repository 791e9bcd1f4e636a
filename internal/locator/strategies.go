package locator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/dom"
)

// Semantic matches interactive elements by accessible name.
type Semantic struct {
	Pattern Pattern
}

func (Semantic) Name() string { return "semantic" }

func (s Semantic) Locate(ctx context.Context, page Page) (*Target, error) {
	snap, err := page.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("semantic: %w", err)
	}
	if n := findSemantic(snap, s.Pattern, dom.Everywhere); n != nil {
		return target(n), nil
	}
	return nil, nil
}

// FreeText matches any short visible text and climbs to a clickable
// ancestor.
type FreeText struct {
	Pattern    Pattern
	ClimbLimit int
}

func (FreeText) Name() string { return "free_text" }

func (f FreeText) Locate(ctx context.Context, page Page) (*Target, error) {
	snap, err := page.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("free text: %w", err)
	}
	if n := findByText(snap, f.Pattern, f.ClimbLimit, dom.Everywhere); n != nil {
		return target(n), nil
	}
	return nil, nil
}

// Overflow opens "more actions" menus and looks for an export entry in what
// they reveal.
type Overflow struct {
	Pattern    Pattern
	Menu       Pattern
	ClimbLimit int
	Settle     time.Duration
	// MaxCandidates caps how many menus are opened; 0 means 3.
	MaxCandidates int
}

func (Overflow) Name() string { return "overflow_menu" }

func (o Overflow) Locate(ctx context.Context, page Page) (*Target, error) {
	snap, err := page.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("overflow: %w", err)
	}
	limit := o.MaxCandidates
	if limit <= 0 {
		limit = 3
	}
	candidates := overflowCandidates(snap, o.Menu)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	for _, c := range candidates {
		t, err := revealAndSearch(ctx, page, snap, c.Ref, o.Pattern, o.ClimbLimit, o.Settle)
		if err != nil || t != nil {
			return t, err
		}
	}
	return nil, nil
}

// overflowCandidates lists "more" controls, icon-signalled ones first.
func overflowCandidates(snap *dom.Snapshot, menu Pattern) []*dom.Node {
	var byIcon, byName []*dom.Node
	for _, n := range snap.Nodes() {
		if !n.Visible || !n.Clickable {
			continue
		}
		switch {
		case overflowIcon(n):
			byIcon = append(byIcon, n)
		case menu.MatchExact(n.Name):
			byName = append(byName, n)
		}
	}
	return append(byIcon, byName...)
}

func overflowIcon(n *dom.Node) bool {
	if strings.EqualFold(n.Attr("data-icon"), "more") {
		return true
	}
	testID := strings.ToLower(n.Attr("data-testid"))
	for _, k := range []string{"kebab", "overflow", "more"} {
		if strings.Contains(testID, k) {
			return true
		}
	}
	label := strings.ToLower(n.Attr("aria-label"))
	if strings.HasPrefix(label, "more") {
		return true
	}
	hasPopup := n.Attr("aria-haspopup")
	return hasPopup != "" && hasPopup != "false" && strings.TrimSpace(n.Name) == ""
}

// ToolbarSweep activates the siblings of a stable toolbar anchor one by one,
// middle first, looking for a revealed export entry. It is positional
// guessing and runs last.
type ToolbarSweep struct {
	Pattern    Pattern
	Anchor     Pattern
	ClimbLimit int
	Limit      int
	Settle     time.Duration
}

func (ToolbarSweep) Name() string { return "toolbar_sweep" }

func (t ToolbarSweep) Locate(ctx context.Context, page Page) (*Target, error) {
	snap, err := page.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("toolbar sweep: %w", err)
	}
	anchor := findAnchor(snap, t.Anchor)
	if anchor == nil {
		return nil, nil
	}
	siblings := toolbarSiblings(snap, anchor)
	order := middleOut(len(siblings))
	if t.Limit > 0 && len(order) > t.Limit {
		order = order[:t.Limit]
	}
	for _, i := range order {
		found, err := revealAndSearch(ctx, page, snap, siblings[i].Ref, t.Pattern, t.ClimbLimit, t.Settle)
		if err != nil || found != nil {
			return found, err
		}
	}
	return nil, nil
}

// findAnchor prefers anchors identified by test ids or aria labels over
// visible text.
func findAnchor(snap *dom.Snapshot, p Pattern) *dom.Node {
	var byText *dom.Node
	for _, n := range snap.Nodes() {
		if !n.Visible || !(n.Clickable || n.Role == "textbox" || n.Role == "searchbox") {
			continue
		}
		if p.MatchName(n.Attr("data-testid")) || p.MatchName(n.Attr("aria-label")) {
			return n
		}
		if byText == nil && p.MatchName(n.Name) {
			byText = n
		}
	}
	return byText
}

// toolbarSiblings walks up from the anchor to the first container holding
// at least two other top-level clickable elements.
func toolbarSiblings(snap *dom.Snapshot, anchor *dom.Node) []*dom.Node {
	const maxLevels = 6
	cur := anchor
	for level := 0; level < maxLevels; level++ {
		parent, ok := snap.Parent(cur)
		if !ok {
			return nil
		}
		var out []*dom.Node
		for _, d := range snap.Descendants(parent.Ref) {
			if d.Ref == anchor.Ref || snap.Contains(anchor.Ref, d.Ref) || !sweepable(d) {
				continue
			}
			if nestedInClickable(snap, d, parent.Ref) {
				continue
			}
			out = append(out, d)
		}
		if len(out) >= 2 {
			return out
		}
		cur = parent
	}
	return nil
}

func sweepable(n *dom.Node) bool {
	if !n.Visible || !n.Clickable {
		return false
	}
	switch n.Tag {
	case "input", "select", "textarea":
		return false
	}
	href := strings.TrimSpace(n.Attr("href"))
	return href == "" || href == "#" || strings.HasPrefix(href, "javascript:")
}

func nestedInClickable(snap *dom.Snapshot, n *dom.Node, container int) bool {
	for p, ok := snap.Parent(n); ok && p.Ref != container; p, ok = snap.Parent(p) {
		if p.Clickable {
			return true
		}
	}
	return false
}

// middleOut orders n indices from the center outwards: 5 -> 2 3 1 4 0.
func middleOut(n int) []int {
	if n == 0 {
		return nil
	}
	mid := n / 2
	order := []int{mid}
	for d := 1; len(order) < n; d++ {
		if mid+d < n {
			order = append(order, mid+d)
		}
		if mid-d >= 0 {
			order = append(order, mid-d)
		}
	}
	return order
}

// revealAndSearch clicks ref, then searches only the UI the click revealed.
// When nothing export-like appeared the page is dismissed before returning.
func revealAndSearch(ctx context.Context, page Page, before *dom.Snapshot, ref int, p Pattern, climb int, settle time.Duration) (*Target, error) {
	if err := page.Click(ctx, ref); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, nil
	}
	if err := pause(ctx, settle); err != nil {
		return nil, err
	}
	after, err := page.Snapshot(ctx)
	if err != nil {
		_ = page.Dismiss(ctx)
		return nil, fmt.Errorf("snapshot after reveal: %w", err)
	}
	scope := after.RevealedSince(before)
	n := findSemantic(after, p, scope)
	if n == nil {
		n = findByText(after, p, climb, scope)
	}
	if n != nil {
		return target(n), nil
	}
	if err := page.Dismiss(ctx); err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, nil
}
