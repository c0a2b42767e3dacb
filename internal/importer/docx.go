package importer

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/dgallion1/wikiadf/internal/doctree"
)

// DOCXImporter handles .docx files. Heading styles become headings,
// numbered paragraphs become bullet lists nested by indent level and run
// formatting becomes marks.
type DOCXImporter struct{}

func (p *DOCXImporter) Import(r io.Reader, filename string) (*doctree.Node, error) {
	// go-docx needs a ReaderAt+size, so write to temp file.
	tmp, err := os.CreateTemp("", "wikiadf-docx-*.docx")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("seek temp file: %w", err)
	}

	doc, err := docx.Parse(tmp, size)
	tmp.Close()
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	w := &docxWalker{doc: doc}
	return doctree.NewDoc(w.blocks(doc.Document.Body.Items)...), nil
}

type docxWalker struct {
	doc *docx.Docx
}

type docxListEntry struct {
	level int
	para  *doctree.Node
}

func (w *docxWalker) blocks(items []interface{}) []*doctree.Node {
	var (
		out     []*doctree.Node
		pending []docxListEntry
	)
	flushList := func() {
		if len(pending) > 0 {
			out = append(out, nestList(pending))
		}
		pending = nil
	}

	for _, item := range items {
		switch it := item.(type) {
		case *docx.Paragraph:
			inlines := w.inlines(it)
			if level, ok := docxListLevel(it); ok {
				pending = append(pending, docxListEntry{level: level, para: paragraph(inlines)})
				continue
			}
			flushList()
			if level := docxHeadingLevel(it); level > 0 {
				if inlines = trimInline(inlines); len(inlines) > 0 {
					out = append(out, doctree.NewHeading(level, inlines...))
				}
				continue
			}
			out = append(out, paragraph(inlines))
		case *docx.Table:
			flushList()
			out = append(out, w.table(it))
		}
	}
	flushList()
	return compact(out)
}

func (w *docxWalker) table(t *docx.Table) *doctree.Node {
	var rows []*doctree.Node
	for _, tr := range t.TableRows {
		row := doctree.New(doctree.KindTableRow)
		for _, tc := range tr.TableCells {
			items := make([]interface{}, 0, len(tc.Paragraphs)+len(tc.Tables))
			for _, para := range tc.Paragraphs {
				items = append(items, para)
			}
			for _, nested := range tc.Tables {
				items = append(items, nested)
			}
			row.Append(tableCell(false, w.blocks(items)))
		}
		rows = append(rows, row)
	}
	return table(rows)
}

func (w *docxWalker) inlines(para *docx.Paragraph) []*doctree.Node {
	var out []*doctree.Node
	for _, child := range para.Children {
		switch c := child.(type) {
		case *docx.Run:
			out = append(out, runInlines(c, nil)...)
		case *docx.Hyperlink:
			var marks []doctree.Mark
			if target, err := w.doc.ReferTarget(c.ID); err == nil && target != "" {
				marks = []doctree.Mark{doctree.LinkMark(target)}
			}
			out = append(out, runInlines(&c.Run, marks)...)
		}
	}
	return out
}

func runInlines(run *docx.Run, marks []doctree.Mark) []*doctree.Node {
	marks = append(marks, runMarks(run.RunProperties)...)
	var out []*doctree.Node
	for _, rc := range run.Children {
		switch t := rc.(type) {
		case *docx.Text:
			out = append(out, textRun(t.Text, marks))
		case *docx.Tab:
			out = append(out, textRun("\t", marks))
		case *docx.BarterRabbet:
			out = append(out, hardBreak())
		}
	}
	if len(out) == 0 && run.InstrText != "" {
		out = append(out, textRun(run.InstrText, marks))
	}
	return out
}

func runMarks(props *docx.RunProperties) []doctree.Mark {
	if props == nil {
		return nil
	}
	var marks []doctree.Mark
	if props.Bold != nil {
		marks = append(marks, doctree.NewMark(doctree.MarkStrong))
	}
	if props.Italic != nil {
		marks = append(marks, doctree.NewMark(doctree.MarkEm))
	}
	if props.Underline != nil && props.Underline.Val != "none" {
		marks = append(marks, doctree.NewMark(doctree.MarkUnderline))
	}
	if props.Strike != nil && props.Strike.Val != "false" && props.Strike.Val != "0" {
		marks = append(marks, doctree.NewMark(doctree.MarkStrike))
	}
	return marks
}

// nestList builds a bullet list from consecutive numbered paragraphs. A level
// deeper than the previous one opens a list inside the last item; a skipped
// level gets an empty item.
func nestList(entries []docxListEntry) *doctree.Node {
	root := doctree.New(doctree.KindBulletList)
	stack := []*doctree.Node{root}
	for _, e := range entries {
		level := e.level
		if level < 0 {
			level = 0
		}
		if level > len(stack) {
			level = len(stack)
		}
		for len(stack) > level+1 {
			stack = stack[:len(stack)-1]
		}
		if level == len(stack) {
			top := stack[len(stack)-1]
			if len(top.Content) == 0 {
				top.Append(listItem(nil))
			}
			sub := doctree.New(doctree.KindBulletList)
			item := top.Content[len(top.Content)-1]
			item.Append(sub)
			stack = append(stack, sub)
		}
		stack[level].Append(listItem([]*doctree.Node{e.para}))
	}
	return root
}

func docxListLevel(para *docx.Paragraph) (int, bool) {
	if para.Properties == nil || para.Properties.NumProperties == nil {
		return 0, false
	}
	np := para.Properties.NumProperties
	if np.NumID == nil || np.NumID.Val == "0" {
		return 0, false
	}
	if np.Ilvl == nil {
		return 0, true
	}
	level, err := strconv.Atoi(np.Ilvl.Val)
	if err != nil {
		return 0, true
	}
	return level, true
}

func docxHeadingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	if style == "title" {
		return 1
	}
	if rest, ok := strings.CutPrefix(style, "heading"); ok {
		if level, err := strconv.Atoi(rest); err == nil && level >= 1 && level <= 6 {
			return level
		}
	}
	return 0
}
