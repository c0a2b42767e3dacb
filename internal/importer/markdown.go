package importer

import (
	"bytes"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"

	"github.com/dgallion1/wikiadf/internal/doctree"
)

// MarkdownImporter handles Markdown files using goldmark with the GFM
// extensions (tables, strikethrough, autolinks).
type MarkdownImporter struct{}

func (p *MarkdownImporter) Import(r io.Reader, filename string) (*doctree.Node, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	reader := text.NewReader(src)
	root := md.Parser().Parse(reader)

	w := &mdWalker{src: src}
	return doctree.NewDoc(w.blocks(root)...), nil
}

type mdWalker struct {
	src []byte
}

func (w *mdWalker) blocks(parent ast.Node) []*doctree.Node {
	var out []*doctree.Node
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		out = append(out, w.block(n)...)
	}
	return compact(out)
}

func (w *mdWalker) block(n ast.Node) []*doctree.Node {
	switch node := n.(type) {
	case *ast.Heading:
		inlines := trimInline(w.inlines(node, nil))
		return []*doctree.Node{doctree.NewHeading(node.Level, inlines...)}
	case *ast.Paragraph, *ast.TextBlock:
		return w.paragraph(n)
	case *ast.List:
		var items []*doctree.Node
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			items = append(items, listItem(w.blocks(c)))
		}
		return []*doctree.Node{list(node.IsOrdered(), node.Start, items)}
	case *ast.FencedCodeBlock:
		return []*doctree.Node{codeBlock(w.code(node), string(node.Language(w.src)))}
	case *ast.CodeBlock:
		return []*doctree.Node{codeBlock(w.code(node), "")}
	case *ast.Blockquote:
		return []*doctree.Node{blockquote(w.blocks(node))}
	case *ast.ThematicBreak:
		return []*doctree.Node{doctree.New(doctree.KindRule)}
	case *extast.Table:
		return []*doctree.Node{w.table(node)}
	}
	// Raw HTML blocks and link reference definitions carry no content.
	return nil
}

// paragraph returns media blocks for a paragraph made only of images, a
// single paragraph otherwise.
func (w *mdWalker) paragraph(n ast.Node) []*doctree.Node {
	var images []*doctree.Node
	onlyImages := n.FirstChild() != nil
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.Image:
			images = append(images, externalMedia(string(node.Destination)))
		case *ast.Text:
			if len(bytes.TrimSpace(node.Segment.Value(w.src))) != 0 {
				onlyImages = false
			}
		default:
			onlyImages = false
		}
	}
	if onlyImages && len(images) > 0 {
		return images
	}
	return []*doctree.Node{paragraph(w.inlines(n, nil))}
}

func (w *mdWalker) table(t *extast.Table) *doctree.Node {
	var rows []*doctree.Node
	for r := t.FirstChild(); r != nil; r = r.NextSibling() {
		_, header := r.(*extast.TableHeader)
		row := doctree.New(doctree.KindTableRow)
		for c := r.FirstChild(); c != nil; c = c.NextSibling() {
			row.Append(tableCell(header, []*doctree.Node{paragraph(w.inlines(c, nil))}))
		}
		rows = append(rows, row)
	}
	return table(rows)
}

func (w *mdWalker) inlines(parent ast.Node, marks []doctree.Mark) []*doctree.Node {
	var out []*doctree.Node
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.Text:
			out = append(out, textRun(unescapeMarkdown(string(node.Segment.Value(w.src))), marks))
			if node.HardLineBreak() || node.SoftLineBreak() {
				out = append(out, hardBreak())
			}
		case *ast.String:
			out = append(out, textRun(string(node.Value), marks))
		case *ast.CodeSpan:
			out = append(out, textRun(w.plain(node), withMark(marks, doctree.NewMark(doctree.MarkCode))))
		case *ast.Emphasis:
			mark := doctree.MarkEm
			if node.Level >= 2 {
				mark = doctree.MarkStrong
			}
			out = append(out, w.inlines(node, withMark(marks, doctree.NewMark(mark)))...)
		case *extast.Strikethrough:
			out = append(out, w.inlines(node, withMark(marks, doctree.NewMark(doctree.MarkStrike)))...)
		case *ast.Link:
			out = append(out, w.inlines(node, withMark(marks, doctree.LinkMark(string(node.Destination))))...)
		case *ast.AutoLink:
			out = append(out, textRun(string(node.Label(w.src)), withMark(marks, doctree.LinkMark(string(node.URL(w.src))))))
		case *ast.Image:
			label := w.plain(node)
			if label == "" {
				label = string(node.Destination)
			}
			out = append(out, textRun(label, withMark(marks, doctree.LinkMark(string(node.Destination)))))
		case *ast.RawHTML:
		default:
			out = append(out, w.inlines(c, marks)...)
		}
	}
	return out
}

// plain returns the unformatted text below n.
func (w *mdWalker) plain(n ast.Node) string {
	var buf strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(w.src))
		case *ast.String:
			buf.Write(node.Value)
		default:
			buf.WriteString(w.plain(c))
		}
	}
	return buf.String()
}

func (w *mdWalker) code(n ast.Node) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(w.src))
	}
	return strings.TrimRight(buf.String(), "\n")
}

// unescapeMarkdown resolves backslash escapes and entity references the way
// goldmark's HTML renderer does.
func unescapeMarkdown(s string) string {
	if strings.IndexByte(s, '\\') >= 0 {
		var b strings.Builder
		for i := 0; i < len(s); i++ {
			if s[i] == '\\' && i+1 < len(s) && isASCIIPunct(s[i+1]) {
				i++
			}
			b.WriteByte(s[i])
		}
		s = b.String()
	}
	if strings.IndexByte(s, '&') >= 0 {
		s = html.UnescapeString(s)
	}
	return s
}

func isASCIIPunct(c byte) bool {
	return strings.IndexByte("!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~", c) >= 0
}
