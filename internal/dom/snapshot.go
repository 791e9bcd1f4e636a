// Package dom models a flattened snapshot of a page's element tree, the
// input every control-locating strategy works from.
package dom

// Region values mark elements rendered inside transient UI.
const (
	RegionNone   = ""
	RegionMenu   = "menu"
	RegionDialog = "dialog"
)

// Node is one element of a snapshot. Ref is stable for the element's
// lifetime within a document and is never reused after a navigation.
// Parent is 0 for top-level elements.
type Node struct {
	Ref       int               `json:"ref"`
	Parent    int               `json:"parent"`
	Tag       string            `json:"tag"`
	Role      string            `json:"role"`
	Name      string            `json:"name"`
	Text      string            `json:"text"`
	Clickable bool              `json:"clickable"`
	Visible   bool              `json:"visible"`
	Region    string            `json:"region"`
	Attrs     map[string]string `json:"attrs"`
}

// Attr returns the attribute value, or "" when absent.
func (n *Node) Attr(name string) string {
	if n.Attrs == nil {
		return ""
	}
	return n.Attrs[name]
}

// Snapshot is an immutable, document-ordered set of nodes with parent links.
type Snapshot struct {
	nodes    []Node
	index    map[int]int
	children map[int][]int
}

// NewSnapshot indexes nodes, which must be in document order.
func NewSnapshot(nodes []Node) *Snapshot {
	s := &Snapshot{
		nodes:    nodes,
		index:    make(map[int]int, len(nodes)),
		children: make(map[int][]int),
	}
	for i, n := range nodes {
		s.index[n.Ref] = i
		s.children[n.Parent] = append(s.children[n.Parent], n.Ref)
	}
	return s
}

// Len is the number of nodes.
func (s *Snapshot) Len() int { return len(s.nodes) }

// Nodes returns pointers to every node in document order.
func (s *Snapshot) Nodes() []*Node {
	out := make([]*Node, len(s.nodes))
	for i := range s.nodes {
		out[i] = &s.nodes[i]
	}
	return out
}

// Node looks a node up by ref.
func (s *Snapshot) Node(ref int) (*Node, bool) {
	i, ok := s.index[ref]
	if !ok {
		return nil, false
	}
	return &s.nodes[i], true
}

// Parent returns the parent of n, if it is part of the snapshot.
func (s *Snapshot) Parent(n *Node) (*Node, bool) {
	if n.Parent == 0 {
		return nil, false
	}
	return s.Node(n.Parent)
}

// Children returns the direct children of ref in document order.
func (s *Snapshot) Children(ref int) []*Node {
	var out []*Node
	for _, c := range s.children[ref] {
		if n, ok := s.Node(c); ok {
			out = append(out, n)
		}
	}
	return out
}

// Descendants returns every node below ref in document order.
func (s *Snapshot) Descendants(ref int) []*Node {
	var out []*Node
	var walk func(int)
	walk = func(r int) {
		for _, c := range s.children[r] {
			if n, ok := s.Node(c); ok {
				out = append(out, n)
				walk(c)
			}
		}
	}
	walk(ref)
	return out
}

// Contains reports whether ref is ancestor itself or lies below it.
func (s *Snapshot) Contains(ancestor, ref int) bool {
	for n, ok := s.Node(ref); ok; n, ok = s.Parent(n) {
		if n.Ref == ancestor {
			return true
		}
	}
	return false
}

// ClickableAncestor returns n itself when it is clickable, or the nearest
// clickable ancestor at most limit levels up.
func (s *Snapshot) ClickableAncestor(n *Node, limit int) (*Node, bool) {
	cur := n
	for level := 0; level <= limit; level++ {
		if cur.Clickable {
			return cur, true
		}
		p, ok := s.Parent(cur)
		if !ok {
			return nil, false
		}
		cur = p
	}
	return nil, false
}

// Scope restricts a search to part of a snapshot.
type Scope func(*Node) bool

// Everywhere matches every node.
func Everywhere(*Node) bool { return true }

// InRegion matches nodes rendered inside the given region kind.
func InRegion(region string) Scope {
	return func(n *Node) bool { return n.Region == region }
}

// RevealedSince matches nodes of s that are visible now but were absent or
// hidden in prev, i.e. the UI an activation just opened.
func (s *Snapshot) RevealedSince(prev *Snapshot) Scope {
	return func(n *Node) bool {
		if !n.Visible {
			return false
		}
		old, ok := prev.Node(n.Ref)
		return !ok || !old.Visible
	}
}

// HasRegion reports whether any visible node sits in the given region.
func (s *Snapshot) HasRegion(region string) bool {
	for i := range s.nodes {
		if s.nodes[i].Visible && s.nodes[i].Region == region {
			return true
		}
	}
	return false
}
