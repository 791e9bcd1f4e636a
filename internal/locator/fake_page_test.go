package locator

import (
	"context"
	"errors"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/dom"
)

// fakePage serves a base snapshot and swaps in a revealed one when a
// configured ref is clicked. Dismiss restores the base snapshot.
type fakePage struct {
	base     []dom.Node
	reveals  map[int][]dom.Node
	current  []dom.Node
	clicks   []int
	dismiss  int
	clickErr map[int]error
}

func newFakePage(base []dom.Node) *fakePage {
	return &fakePage{base: base, current: base, reveals: map[int][]dom.Node{}}
}

func (p *fakePage) Snapshot(ctx context.Context) (*dom.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return dom.NewSnapshot(append([]dom.Node(nil), p.current...)), nil
}

func (p *fakePage) Click(ctx context.Context, ref int) error {
	p.clicks = append(p.clicks, ref)
	if err := p.clickErr[ref]; err != nil {
		return err
	}
	if extra, ok := p.reveals[ref]; ok {
		p.current = append(append([]dom.Node(nil), p.base...), extra...)
	}
	return nil
}

func (p *fakePage) Dismiss(context.Context) error {
	p.dismiss++
	p.current = p.base
	return nil
}

var errClick = errors.New("element detached")

func button(ref, parent int, name string) dom.Node {
	return dom.Node{Ref: ref, Parent: parent, Tag: "button", Role: "button", Name: name, Clickable: true, Visible: true}
}

func text(ref, parent int, tag, s string) dom.Node {
	return dom.Node{Ref: ref, Parent: parent, Tag: tag, Text: s, Visible: true}
}
