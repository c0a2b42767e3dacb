package importer

import (
	"strings"

	"github.com/dgallion1/wikiadf/internal/doctree"
)

// textRun returns a text node carrying a private copy of marks, or nil for
// empty text.
func textRun(s string, marks []doctree.Mark) *doctree.Node {
	if s == "" {
		return nil
	}
	var own []doctree.Mark
	if len(marks) > 0 {
		own = make([]doctree.Mark, len(marks))
		copy(own, marks)
	}
	return doctree.NewText(s, own...)
}

// withMark returns marks plus m. An existing mark of the same type is
// replaced, so nested emphasis never duplicates a mark.
func withMark(marks []doctree.Mark, m doctree.Mark) []doctree.Mark {
	out := make([]doctree.Mark, 0, len(marks)+1)
	for _, have := range marks {
		if have.Type != m.Type {
			out = append(out, have)
		}
	}
	return append(out, m)
}

func hardBreak() *doctree.Node {
	return doctree.New(doctree.KindHardBreak)
}

// compact drops nil nodes.
func compact(nodes []*doctree.Node) []*doctree.Node {
	out := nodes[:0]
	for _, n := range nodes {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

// trimInline removes blank runs and breaks at the edges of a paragraph.
func trimInline(nodes []*doctree.Node) []*doctree.Node {
	nodes = compact(nodes)
	for len(nodes) > 0 {
		first := nodes[0]
		if first.Kind == doctree.KindHardBreak {
			nodes = nodes[1:]
			continue
		}
		if first.Kind == doctree.KindText {
			first.Text = strings.TrimLeft(first.Text, " \t\n")
			if first.Text == "" {
				nodes = nodes[1:]
				continue
			}
		}
		break
	}
	for len(nodes) > 0 {
		last := nodes[len(nodes)-1]
		if last.Kind == doctree.KindHardBreak {
			nodes = nodes[:len(nodes)-1]
			continue
		}
		if last.Kind == doctree.KindText {
			last.Text = strings.TrimRight(last.Text, " \t\n")
			if last.Text == "" {
				nodes = nodes[:len(nodes)-1]
				continue
			}
		}
		break
	}
	return nodes
}

// paragraph wraps inline nodes, returning nil when nothing is left after
// trimming.
func paragraph(inlines []*doctree.Node) *doctree.Node {
	inlines = trimInline(inlines)
	if len(inlines) == 0 {
		return nil
	}
	return doctree.New(doctree.KindParagraph, inlines...)
}

// linesParagraph joins lines with hard breaks.
func linesParagraph(lines []string) *doctree.Node {
	var inlines []*doctree.Node
	for i, line := range lines {
		if i > 0 {
			inlines = append(inlines, hardBreak())
		}
		inlines = append(inlines, textRun(line, nil))
	}
	return paragraph(inlines)
}

// textBlocks splits plain text into paragraphs on blank lines. Lines within
// a paragraph are joined with hard breaks.
func textBlocks(text string) []*doctree.Node {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var (
		blocks  []*doctree.Node
		current []string
	)
	flush := func() {
		if p := linesParagraph(current); p != nil {
			blocks = append(blocks, p)
		}
		current = nil
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, strings.TrimRight(line, " \t"))
	}
	flush()
	return blocks
}

func codeBlock(code, language string) *doctree.Node {
	n := doctree.New(doctree.KindCodeBlock)
	if code != "" {
		n.Append(doctree.NewText(code))
	}
	if language != "" {
		n.SetAttr("language", language)
	}
	return n
}

func externalMedia(url string) *doctree.Node {
	return doctree.New(doctree.KindMediaSingle,
		doctree.New(doctree.KindMedia).SetAttr("type", "external").SetAttr("url", url),
	)
}

// nested adapts blocks for containers that only hold paragraphs, lists, code
// and media. Headings become paragraphs, quotes and tables are flattened and
// rules are dropped.
func nested(blocks []*doctree.Node) []*doctree.Node {
	var out []*doctree.Node
	for _, b := range compact(blocks) {
		switch b.Kind {
		case doctree.KindParagraph, doctree.KindBulletList, doctree.KindOrderedList,
			doctree.KindCodeBlock, doctree.KindMediaSingle:
			out = append(out, b)
		case doctree.KindHeading:
			if p := paragraph(b.Content); p != nil {
				out = append(out, p)
			}
		case doctree.KindBlockquote:
			out = append(out, nested(b.Content)...)
		case doctree.KindTable:
			for _, row := range b.Content {
				for _, cell := range row.Content {
					out = append(out, nested(cell.Content)...)
				}
			}
		}
	}
	return out
}

func listItem(blocks []*doctree.Node) *doctree.Node {
	content := nested(blocks)
	if len(content) == 0 {
		content = []*doctree.Node{doctree.New(doctree.KindParagraph)}
	}
	return doctree.New(doctree.KindListItem, content...)
}

func blockquote(blocks []*doctree.Node) *doctree.Node {
	content := nested(blocks)
	if len(content) == 0 {
		return nil
	}
	return doctree.New(doctree.KindBlockquote, content...)
}

// list wraps items, returning nil for a list without items.
func list(ordered bool, start int, items []*doctree.Node) *doctree.Node {
	if len(items) == 0 {
		return nil
	}
	if !ordered {
		return doctree.New(doctree.KindBulletList, items...)
	}
	n := doctree.New(doctree.KindOrderedList, items...)
	if start > 1 {
		n.SetAttr("order", start)
	}
	return n
}

// tableCell builds a header or body cell. Tables cannot nest, so a nested
// table is flattened into its cell paragraphs.
func tableCell(header bool, blocks []*doctree.Node) *doctree.Node {
	kind := doctree.KindTableCell
	if header {
		kind = doctree.KindTableHeader
	}
	var content []*doctree.Node
	for _, b := range compact(blocks) {
		if b.Kind == doctree.KindTable {
			content = append(content, nested([]*doctree.Node{b})...)
			continue
		}
		content = append(content, b)
	}
	if len(content) == 0 {
		content = []*doctree.Node{doctree.New(doctree.KindParagraph)}
	}
	return doctree.New(kind, content...)
}

// table drops empty rows and returns nil for a table without rows.
func table(rows []*doctree.Node) *doctree.Node {
	var kept []*doctree.Node
	for _, r := range rows {
		if r != nil && len(r.Content) > 0 {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return doctree.New(doctree.KindTable, kept...)
}
