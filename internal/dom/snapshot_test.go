package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Snapshot {
	return NewSnapshot([]Node{
		{Ref: 1, Tag: "div", Visible: true},
		{Ref: 2, Parent: 1, Tag: "button", Role: "button", Name: "Export", Clickable: true, Visible: true},
		{Ref: 3, Parent: 2, Tag: "span", Text: "Export", Visible: true},
		{Ref: 4, Parent: 3, Tag: "i", Visible: true},
		{Ref: 5, Parent: 1, Tag: "ul", Region: RegionMenu},
		{Ref: 6, Parent: 5, Tag: "li", Text: "Download CSV", Region: RegionMenu},
	})
}

func TestSnapshotNavigation(t *testing.T) {
	s := sample()
	require.Equal(t, 6, s.Len())

	n, ok := s.Node(3)
	require.True(t, ok)
	p, ok := s.Parent(n)
	require.True(t, ok)
	assert.Equal(t, 2, p.Ref)

	_, ok = s.Node(99)
	assert.False(t, ok)

	var kids []int
	for _, c := range s.Children(1) {
		kids = append(kids, c.Ref)
	}
	assert.Equal(t, []int{2, 5}, kids)

	var desc []int
	for _, d := range s.Descendants(2) {
		desc = append(desc, d.Ref)
	}
	assert.Equal(t, []int{3, 4}, desc)

	assert.True(t, s.Contains(1, 4))
	assert.True(t, s.Contains(4, 4))
	assert.False(t, s.Contains(5, 4))
}

func TestClickableAncestor(t *testing.T) {
	s := sample()
	leaf, _ := s.Node(4)

	c, ok := s.ClickableAncestor(leaf, 2)
	require.True(t, ok)
	assert.Equal(t, 2, c.Ref)

	_, ok = s.ClickableAncestor(leaf, 1)
	assert.False(t, ok, "button is two levels above the icon")

	li, _ := s.Node(6)
	_, ok = s.ClickableAncestor(li, 4)
	assert.False(t, ok)
}

func TestRevealedSince(t *testing.T) {
	before := sample()
	after := NewSnapshot([]Node{
		{Ref: 1, Tag: "div", Visible: true},
		{Ref: 2, Parent: 1, Tag: "button", Clickable: true, Visible: true},
		{Ref: 5, Parent: 1, Tag: "ul", Region: RegionMenu, Visible: true},
		{Ref: 6, Parent: 5, Tag: "li", Region: RegionMenu, Visible: true},
		{Ref: 7, Parent: 1, Tag: "div", Visible: true},
		{Ref: 8, Parent: 1, Tag: "div", Visible: false},
	})

	revealed := after.RevealedSince(before)
	var got []int
	for _, n := range after.Nodes() {
		if revealed(n) {
			got = append(got, n.Ref)
		}
	}
	assert.Equal(t, []int{5, 6, 7}, got)
	assert.True(t, after.HasRegion(RegionMenu))
	assert.False(t, before.HasRegion(RegionMenu), "hidden menus do not count")
}
