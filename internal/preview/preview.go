// Package preview renders document trees as HTML fragments.
package preview

import (
	"bytes"
	"io"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dgallion1/wikiadf/internal/doctree"
)

var blockTags = map[doctree.Kind]string{
	doctree.KindParagraph:   "p",
	doctree.KindBulletList:  "ul",
	doctree.KindOrderedList: "ol",
	doctree.KindListItem:    "li",
	doctree.KindBlockquote:  "blockquote",
	doctree.KindRule:        "hr",
	doctree.KindTableRow:    "tr",
	doctree.KindTableHeader: "th",
	doctree.KindTableCell:   "td",
	doctree.KindMediaSingle: "figure",
	doctree.KindHardBreak:   "br",
}

var markTags = map[doctree.MarkType]string{
	doctree.MarkStrong:    "strong",
	doctree.MarkEm:        "em",
	doctree.MarkUnderline: "u",
	doctree.MarkStrike:    "s",
	doctree.MarkCode:      "code",
}

// Render writes tree as an HTML fragment wrapped in
// <div class="wikiadf-preview">. The tree is validated first.
func Render(w io.Writer, tree *doctree.Node) error {
	if err := doctree.Validate(tree); err != nil {
		return err
	}
	return html.Render(w, build(tree))
}

// HTML returns the fragment produced by Render.
func HTML(tree *doctree.Node) (string, error) {
	var buf bytes.Buffer
	if err := Render(&buf, tree); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func element(tag string, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     attrs,
	}
}

func attr(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

func build(n *doctree.Node) *html.Node {
	switch n.Kind {
	case doctree.KindDoc:
		root := element("div", attr("class", "wikiadf-preview"))
		appendChildren(root, n)
		return root
	case doctree.KindText:
		return text(n)
	case doctree.KindHeading:
		level, _ := n.IntAttr("level")
		h := element("h" + strconv.Itoa(level))
		appendChildren(h, n)
		return h
	case doctree.KindCodeBlock:
		pre := element("pre")
		code := element("code")
		if lang, ok := n.StringAttr("language"); ok && lang != "" {
			code.Attr = append(code.Attr, attr("class", "language-"+lang))
		}
		appendChildren(code, n)
		pre.AppendChild(code)
		return pre
	case doctree.KindTable:
		t := element("table")
		body := element("tbody")
		appendChildren(body, n)
		t.AppendChild(body)
		return t
	case doctree.KindMedia:
		return media(n)
	}

	el := element(blockTags[n.Kind])
	switch n.Kind {
	case doctree.KindOrderedList:
		if order, ok := n.IntAttr("order"); ok && order > 1 {
			el.Attr = append(el.Attr, attr("start", strconv.Itoa(order)))
		}
	case doctree.KindTableHeader, doctree.KindTableCell:
		for _, key := range []string{"colspan", "rowspan"} {
			if v, ok := n.IntAttr(key); ok && v > 1 {
				el.Attr = append(el.Attr, attr(key, strconv.Itoa(v)))
			}
		}
	}
	appendChildren(el, n)
	return el
}

func appendChildren(parent *html.Node, n *doctree.Node) {
	for _, c := range n.Content {
		parent.AppendChild(build(c))
	}
}

// text wraps a run in one element per mark, link outermost.
func text(n *doctree.Node) *html.Node {
	node := &html.Node{Type: html.TextNode, Data: n.Text}
	marks := append([]doctree.Mark(nil), n.Marks...)
	doctree.SortMarks(marks)
	for i := len(marks) - 1; i >= 0; i-- {
		m := marks[i]
		var wrap *html.Node
		if m.Type == doctree.MarkLink {
			wrap = element("a")
			if href := m.Href(); safeURL(href) {
				wrap.Attr = append(wrap.Attr, attr("href", href))
			}
			if title, ok := m.Attrs["title"].(string); ok && title != "" {
				wrap.Attr = append(wrap.Attr, attr("title", title))
			}
		} else {
			wrap = element(markTags[m.Type])
		}
		wrap.AppendChild(node)
		node = wrap
	}
	return node
}

func media(n *doctree.Node) *html.Node {
	if typ, _ := n.StringAttr("type"); typ == "file" {
		id, _ := n.StringAttr("id")
		span := element("span", attr("class", "wikiadf-media-file"), attr("data-id", id))
		span.AppendChild(&html.Node{Type: html.TextNode, Data: "attachment " + id})
		return span
	}
	src, _ := n.StringAttr("url")
	img := element("img")
	if safeURL(src) {
		img.Attr = append(img.Attr, attr("src", src))
	}
	for _, key := range []string{"width", "height"} {
		if v, ok := n.IntAttr(key); ok {
			img.Attr = append(img.Attr, attr(key, strconv.Itoa(v)))
		}
	}
	return img
}

// safeURL accepts relative references and http, https and mailto URLs.
func safeURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "", "http", "https", "mailto":
		return raw != ""
	}
	return false
}
