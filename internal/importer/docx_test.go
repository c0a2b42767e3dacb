package importer

import (
	"bytes"
	"testing"

	"github.com/fumiama/go-docx"

	"github.com/dgallion1/wikiadf/internal/doctree"
)

func buildDocx(t *testing.T, build func(w *docx.Docx)) []byte {
	t.Helper()
	w := docx.New().WithDefaultTheme()
	build(w)
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		t.Fatalf("write docx: %v", err)
	}
	return buf.Bytes()
}

func TestDOCXImporter_HeadingsRunsAndLists(t *testing.T) {
	data := buildDocx(t, func(w *docx.Docx) {
		w.AddParagraph().Style("Heading1").AddText("Title")
		p := w.AddParagraph()
		p.AddText("bold").Bold()
		p.AddText("plain")
		w.AddParagraph().NumPr("1", "0").AddText("first")
		w.AddParagraph().NumPr("1", "1").AddText("inner")
		w.AddParagraph().NumPr("1", "0").AddText("second")
		w.AddParagraph().AddText("after")
	})

	doc, err := Import(bytes.NewReader(data), "design.docx", Options{})
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	want := []doctree.Kind{doctree.KindHeading, doctree.KindParagraph, doctree.KindBulletList, doctree.KindParagraph}
	got := kinds(doc.Content)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	if lvl, _ := doc.Content[0].IntAttr("level"); lvl != 1 {
		t.Errorf("expected level 1, got %d", lvl)
	}
	if n := findText(doc, "bold"); n == nil || !n.HasMark(doctree.MarkStrong) {
		t.Errorf("expected bold run, got %+v", n)
	}
	if n := findText(doc, "plain"); n == nil || len(n.Marks) != 0 {
		t.Errorf("expected plain run, got %+v", n)
	}

	items := doc.Content[2].Content
	if len(items) != 2 {
		t.Fatalf("expected 2 top-level items, got %d", len(items))
	}
	if got := kinds(items[0].Content); len(got) != 2 || got[1] != doctree.KindBulletList {
		t.Errorf("expected nested list in first item, got %v", got)
	}
	if plainText(items[1]) != "second" {
		t.Errorf("unexpected second item %q", plainText(items[1]))
	}
}

func TestDOCXImporter_InvalidFile(t *testing.T) {
	_, err := Import(bytes.NewReader([]byte("not a zip")), "broken.docx", Options{})
	if err == nil {
		t.Fatal("expected error for invalid docx")
	}
}

func TestNestList_SkippedLevel(t *testing.T) {
	list := nestList([]docxListEntry{
		{level: 2, para: doctree.New(doctree.KindParagraph, doctree.NewText("deep"))},
	})
	// level 2 without parents: an empty item holds the nested list.
	if len(list.Content) != 1 {
		t.Fatalf("expected one item, got %d", len(list.Content))
	}
	item := list.Content[0]
	if got := kinds(item.Content); len(got) != 2 || got[0] != doctree.KindParagraph || got[1] != doctree.KindBulletList {
		t.Fatalf("expected empty paragraph and nested list, got %v", got)
	}
	if err := doctree.Validate(doctree.NewDoc(list)); err != nil {
		t.Errorf("expected a valid list: %v", err)
	}
}

func TestDocxHeadingLevel(t *testing.T) {
	tests := []struct {
		style string
		want  int
	}{
		{"Heading1", 1},
		{"heading 3", 3},
		{"Title", 1},
		{"Heading9", 0},
		{"Normal", 0},
	}
	for _, tc := range tests {
		para := &docx.Paragraph{Properties: &docx.ParagraphProperties{Style: &docx.Style{Val: tc.style}}}
		if got := docxHeadingLevel(para); got != tc.want {
			t.Errorf("docxHeadingLevel(%q) = %d, want %d", tc.style, got, tc.want)
		}
	}
}
