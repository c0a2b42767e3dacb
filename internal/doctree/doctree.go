package doctree

// Kind identifies a node type. Values are the ADF type names.
type Kind string

const (
	KindDoc         Kind = "doc"
	KindParagraph   Kind = "paragraph"
	KindHeading     Kind = "heading"
	KindBulletList  Kind = "bulletList"
	KindOrderedList Kind = "orderedList"
	KindListItem    Kind = "listItem"
	KindCodeBlock   Kind = "codeBlock"
	KindBlockquote  Kind = "blockquote"
	KindRule        Kind = "rule"
	KindTable       Kind = "table"
	KindTableRow    Kind = "tableRow"
	KindTableHeader Kind = "tableHeader"
	KindTableCell   Kind = "tableCell"
	KindMediaSingle Kind = "mediaSingle"
	KindMedia       Kind = "media"
	KindText        Kind = "text"
	KindHardBreak   Kind = "hardBreak"
)

// MarkType identifies an inline formatting mark.
type MarkType string

const (
	MarkLink      MarkType = "link"
	MarkStrong    MarkType = "strong"
	MarkEm        MarkType = "em"
	MarkUnderline MarkType = "underline"
	MarkStrike    MarkType = "strike"
	MarkCode      MarkType = "code"
)

// Attrs maps attribute names to scalar values (int, string or bool).
type Attrs map[string]any

// Mark is a formatting mark applied to a text node.
type Mark struct {
	Type  MarkType
	Attrs Attrs // only link marks carry attributes
}

// Node is one node of a document tree. A tree is owned by whoever built it;
// nodes are never shared between parents.
type Node struct {
	Kind    Kind
	Attrs   Attrs
	Content []*Node // ordered children, empty for leaves
	Marks   []Mark  // text nodes only
	Text    string  // text nodes only
}

// New returns a node of the given kind with the given children.
func New(kind Kind, content ...*Node) *Node {
	return &Node{Kind: kind, Content: content}
}

// NewDoc returns a document root holding the given blocks.
func NewDoc(blocks ...*Node) *Node {
	return New(KindDoc, blocks...)
}

// NewText returns a text run with the given marks.
func NewText(text string, marks ...Mark) *Node {
	return &Node{Kind: KindText, Text: text, Marks: marks}
}

// NewHeading returns a heading of the given level.
func NewHeading(level int, content ...*Node) *Node {
	n := New(KindHeading, content...)
	n.SetAttr("level", level)
	return n
}

// NewMark returns a mark without attributes.
func NewMark(t MarkType) Mark {
	return Mark{Type: t}
}

// LinkMark returns a link mark pointing at href.
func LinkMark(href string) Mark {
	return Mark{Type: MarkLink, Attrs: Attrs{"href": href}}
}

// SetAttr sets an attribute, allocating the map on first use.
func (n *Node) SetAttr(name string, value any) *Node {
	if n.Attrs == nil {
		n.Attrs = Attrs{}
	}
	n.Attrs[name] = value
	return n
}

// Append adds children to n and returns n.
func (n *Node) Append(children ...*Node) *Node {
	n.Content = append(n.Content, children...)
	return n
}

// IntAttr returns an integer attribute.
func (n *Node) IntAttr(name string) (int, bool) {
	v, ok := n.Attrs[name].(int)
	return v, ok
}

// StringAttr returns a string attribute.
func (n *Node) StringAttr(name string) (string, bool) {
	v, ok := n.Attrs[name].(string)
	return v, ok
}

// HasMark reports whether a text node carries a mark of type t.
func (n *Node) HasMark(t MarkType) bool {
	for _, m := range n.Marks {
		if m.Type == t {
			return true
		}
	}
	return false
}

// Href returns the link target of a link mark.
func (m Mark) Href() string {
	href, _ := m.Attrs["href"].(string)
	return href
}
