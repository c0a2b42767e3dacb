package importer

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/dgallion1/wikiadf/internal/doctree"
)

// HTMLImporter handles HTML files.
type HTMLImporter struct{}

func (p *HTMLImporter) Import(r io.Reader, filename string) (*doctree.Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	// Find <body> or use whole document.
	root := findBody(doc)
	if root == nil {
		root = doc
	}
	return doctree.NewDoc(htmlBlocks(root)...), nil
}

// htmlBlocks converts the children of n. Loose inline content between block
// elements is gathered into paragraphs.
func htmlBlocks(n *html.Node) []*doctree.Node {
	var (
		out     []*doctree.Node
		pending []*doctree.Node
	)
	flush := func() {
		if p := paragraph(pending); p != nil {
			out = append(out, p)
		}
		pending = nil
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && isBlockElement(c.Data) {
			flush()
			out = append(out, htmlBlock(c)...)
			continue
		}
		pending = append(pending, htmlInlines(c, nil)...)
	}
	flush()
	return compact(out)
}

func htmlBlock(n *html.Node) []*doctree.Node {
	if level := headingLevel(n.Data); level > 0 {
		return []*doctree.Node{doctree.NewHeading(level, trimInline(htmlInlines(n, nil))...)}
	}
	switch n.Data {
	// Skip non-content elements.
	case "script", "style", "nav", "footer", "header", "template", "noscript":
		return nil
	case "p":
		return []*doctree.Node{paragraph(htmlInlines(n, nil))}
	case "ul", "ol":
		var items []*doctree.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == "li" {
				items = append(items, listItem(htmlBlocks(c)))
			}
		}
		return []*doctree.Node{list(n.Data == "ol", intAttr(n, "start"), items)}
	case "pre":
		return []*doctree.Node{codeBlock(strings.TrimRight(rawText(n), "\n"), codeLanguage(n))}
	case "blockquote":
		return []*doctree.Node{blockquote(htmlBlocks(n))}
	case "hr":
		return []*doctree.Node{doctree.New(doctree.KindRule)}
	case "img":
		if src := attr(n, "src"); src != "" {
			return []*doctree.Node{externalMedia(src)}
		}
		return nil
	case "table":
		return []*doctree.Node{htmlTable(n)}
	}
	// Generic containers (div, section, article, main, figure...).
	return htmlBlocks(n)
}

func htmlTable(n *html.Node) *doctree.Node {
	var rows []*doctree.Node
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.Data {
			case "thead", "tbody", "tfoot":
				collect(c)
			case "tr":
				row := doctree.New(doctree.KindTableRow)
				for cell := c.FirstChild; cell != nil; cell = cell.NextSibling {
					if cell.Type != html.ElementNode || (cell.Data != "th" && cell.Data != "td") {
						continue
					}
					tc := tableCell(cell.Data == "th", htmlBlocks(cell))
					if span := intAttr(cell, "colspan"); span > 1 {
						tc.SetAttr("colspan", span)
					}
					if span := intAttr(cell, "rowspan"); span > 1 {
						tc.SetAttr("rowspan", span)
					}
					row.Append(tc)
				}
				rows = append(rows, row)
			}
		}
	}
	collect(n)
	return table(rows)
}

var inlineMarks = map[string]doctree.MarkType{
	"strong": doctree.MarkStrong,
	"b":      doctree.MarkStrong,
	"em":     doctree.MarkEm,
	"i":      doctree.MarkEm,
	"u":      doctree.MarkUnderline,
	"ins":    doctree.MarkUnderline,
	"s":      doctree.MarkStrike,
	"del":    doctree.MarkStrike,
	"strike": doctree.MarkStrike,
	"code":   doctree.MarkCode,
	"kbd":    doctree.MarkCode,
	"tt":     doctree.MarkCode,
}

func htmlInlines(n *html.Node, marks []doctree.Mark) []*doctree.Node {
	switch n.Type {
	case html.TextNode:
		return []*doctree.Node{textRun(collapseSpace(n.Data), marks)}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "template", "noscript":
			return nil
		case "br":
			return []*doctree.Node{hardBreak()}
		case "img":
			src := attr(n, "src")
			if src == "" {
				return nil
			}
			label := attr(n, "alt")
			if label == "" {
				label = src
			}
			return []*doctree.Node{textRun(label, withMark(marks, doctree.LinkMark(src)))}
		case "a":
			if href := attr(n, "href"); href != "" {
				marks = withMark(marks, doctree.LinkMark(href))
			}
		default:
			if m, ok := inlineMarks[n.Data]; ok {
				marks = withMark(marks, doctree.NewMark(m))
			}
		}
	case html.DocumentNode:
	default:
		return nil
	}

	var out []*doctree.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, htmlInlines(c, marks)...)
	}
	return out
}

func isBlockElement(tag string) bool {
	if headingLevel(tag) > 0 {
		return true
	}
	switch tag {
	case "p", "ul", "ol", "pre", "blockquote", "hr", "img", "table", "div", "section",
		"article", "main", "aside", "figure", "figcaption", "dl", "dd", "dt",
		"nav", "footer", "header", "script", "style", "template", "noscript", "address", "form":
		return true
	}
	return false
}

func headingLevel(tag string) int {
	switch tag {
	case "h1":
		return 1
	case "h2":
		return 2
	case "h3":
		return 3
	case "h4":
		return 4
	case "h5":
		return 5
	case "h6":
		return 6
	}
	return 0
}

// collapseSpace folds runs of white space into one space, as browsers do.
func collapseSpace(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f':
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	if space {
		b.WriteByte(' ')
	}
	return b.String()
}

// rawText returns all text below n without collapsing white space.
func rawText(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return buf.String()
}

// codeLanguage reads "language-x" or "lang-x" from the class of a <pre> or
// its <code> child.
func codeLanguage(pre *html.Node) string {
	candidates := []*html.Node{pre}
	for c := pre.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "code" {
			candidates = append(candidates, c)
		}
	}
	for _, n := range candidates {
		for _, class := range strings.Fields(attr(n, "class")) {
			for _, prefix := range []string{"language-", "lang-"} {
				if lang, ok := strings.CutPrefix(class, prefix); ok && lang != "" {
					return lang
				}
			}
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func intAttr(n *html.Node, key string) int {
	v, err := strconv.Atoi(attr(n, key))
	if err != nil {
		return 0
	}
	return v
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
