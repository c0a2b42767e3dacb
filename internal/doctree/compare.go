package doctree

import "slices"

// Clone returns a deep copy of n.
func Clone(n *Node) *Node {
	if n == nil {
		return nil
	}
	c := &Node{
		Kind:  n.Kind,
		Attrs: cloneAttrs(n.Attrs),
		Text:  n.Text,
	}
	if n.Marks != nil {
		c.Marks = make([]Mark, len(n.Marks))
		for i, m := range n.Marks {
			c.Marks[i] = Mark{Type: m.Type, Attrs: cloneAttrs(m.Attrs)}
		}
	}
	if n.Content != nil {
		c.Content = make([]*Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = Clone(child)
		}
	}
	return c
}

func cloneAttrs(a Attrs) Attrs {
	if a == nil {
		return nil
	}
	c := make(Attrs, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}

// Equal reports exact structural equality. Nil and empty attribute maps,
// mark lists and child lists are considered equal.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind || a.Text != b.Text {
		return false
	}
	if !attrsEqual(a.Attrs, b.Attrs) {
		return false
	}
	if !marksEqual(a.Marks, b.Marks) {
		return false
	}
	if len(a.Content) != len(b.Content) {
		return false
	}
	for i := range a.Content {
		if !Equal(a.Content[i], b.Content[i]) {
			return false
		}
	}
	return true
}

func attrsEqual(a, b Attrs) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || av != bv {
			return false
		}
	}
	return true
}

func marksEqual(a, b []Mark) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type != b[i].Type || !attrsEqual(a[i].Attrs, b[i].Attrs) {
			return false
		}
	}
	return true
}

// Normalize returns a copy of n with marks in canonical order and adjacent
// text runs carrying identical marks merged into one run.
func Normalize(n *Node) *Node {
	c := Clone(n)
	normalize(c)
	return c
}

func normalize(n *Node) {
	SortMarks(n.Marks)
	for _, child := range n.Content {
		normalize(child)
	}
	if len(n.Content) < 2 {
		return
	}
	merged := n.Content[:1]
	for _, child := range n.Content[1:] {
		last := merged[len(merged)-1]
		if last.Kind == KindText && child.Kind == KindText && marksEqual(last.Marks, child.Marks) {
			last.Text += child.Text
			continue
		}
		merged = append(merged, child)
	}
	n.Content = slices.Clip(merged)
}

// Equivalent reports whether a and b are equal after normalization.
func Equivalent(a, b *Node) bool {
	return Equal(Normalize(a), Normalize(b))
}

// Walk visits n and its descendants depth-first. Returning false from fn
// skips the node's children.
func Walk(n *Node, fn func(n *Node, depth int) bool) {
	walk(n, 0, fn)
}

func walk(n *Node, depth int, fn func(*Node, int) bool) {
	if n == nil || !fn(n, depth) {
		return
	}
	for _, c := range n.Content {
		walk(c, depth+1, fn)
	}
}

// Stats summarizes a tree.
type Stats struct {
	Nodes int          `json:"nodes"`
	Depth int          `json:"depth"`
	Kinds map[Kind]int `json:"kinds"`
}

// Summarize counts the nodes of a tree per kind.
func Summarize(root *Node) Stats {
	s := Stats{Kinds: make(map[Kind]int)}
	Walk(root, func(n *Node, depth int) bool {
		s.Nodes++
		s.Kinds[n.Kind]++
		if depth > s.Depth {
			s.Depth = depth
		}
		return true
	})
	return s
}
