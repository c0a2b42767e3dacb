package doctree

import (
	"errors"
	"strings"
	"testing"
)

func sampleDoc() *Node {
	return NewDoc(
		NewHeading(1, NewText("Title")),
		New(KindParagraph,
			NewText("plain "),
			NewText("bold", NewMark(MarkStrong)),
			New(KindHardBreak),
			NewText("site", LinkMark("https://example.com")),
		),
		New(KindBulletList,
			New(KindListItem, New(KindParagraph, NewText("one"))),
			New(KindListItem,
				New(KindParagraph, NewText("two")),
				New(KindOrderedList, New(KindListItem, New(KindParagraph, NewText("nested")))),
			),
		),
		New(KindCodeBlock, NewText("x := 1")).SetAttr("language", "go"),
		New(KindRule),
	)
}

func TestValidate_ValidTree(t *testing.T) {
	if err := Validate(sampleDoc()); err != nil {
		t.Fatalf("expected valid tree, got %v", err)
	}
}

func TestValidate_EmptyDocIsValid(t *testing.T) {
	if err := Validate(NewDoc()); err != nil {
		t.Fatalf("expected empty doc to be valid, got %v", err)
	}
}

func TestValidate_Violations(t *testing.T) {
	tests := []struct {
		name     string
		tree     *Node
		wantCode Code
		wantPath string
	}{
		{
			name:     "nil root",
			tree:     nil,
			wantCode: CodeSchemaViolation,
			wantPath: "$",
		},
		{
			name:     "root not doc",
			tree:     New(KindParagraph),
			wantCode: CodeSchemaViolation,
			wantPath: "$",
		},
		{
			name:     "list holds paragraph",
			tree:     NewDoc(New(KindBulletList, New(KindParagraph, NewText("x")))),
			wantCode: CodeSchemaViolation,
			wantPath: "$.content[0].content[0]",
		},
		{
			name:     "empty list",
			tree:     NewDoc(New(KindBulletList)),
			wantCode: CodeSchemaViolation,
			wantPath: "$.content[0].content",
		},
		{
			name:     "heading level out of range",
			tree:     NewDoc(NewHeading(7, NewText("x"))),
			wantCode: CodeSchemaViolation,
			wantPath: "$.content[0].attrs.level",
		},
		{
			name:     "heading without level",
			tree:     NewDoc(New(KindHeading, NewText("x"))),
			wantCode: CodeSchemaViolation,
			wantPath: "$.content[0].attrs",
		},
		{
			name:     "unknown attribute",
			tree:     NewDoc(New(KindParagraph).SetAttr("color", "red")),
			wantCode: CodeSchemaViolation,
			wantPath: "$.content[0].attrs.color",
		},
		{
			name:     "wrong attribute type",
			tree:     NewDoc(New(KindCodeBlock).SetAttr("language", 3)),
			wantCode: CodeSchemaViolation,
			wantPath: "$.content[0].attrs.language",
		},
		{
			name:     "empty text",
			tree:     NewDoc(New(KindParagraph, NewText(""))),
			wantCode: CodeSchemaViolation,
			wantPath: "$.content[0].content[0]",
		},
		{
			name:     "text on paragraph",
			tree:     NewDoc(&Node{Kind: KindParagraph, Text: "oops"}),
			wantCode: CodeSchemaViolation,
			wantPath: "$.content[0].text",
		},
		{
			name:     "duplicate marks",
			tree:     NewDoc(New(KindParagraph, NewText("x", NewMark(MarkEm), NewMark(MarkEm)))),
			wantCode: CodeSchemaViolation,
			wantPath: "$.content[0].content[0].marks[1]",
		},
		{
			name:     "link without href",
			tree:     NewDoc(New(KindParagraph, NewText("x", Mark{Type: MarkLink}))),
			wantCode: CodeSchemaViolation,
			wantPath: "$.content[0].content[0].marks[0].attrs",
		},
		{
			name:     "marked code block text",
			tree:     NewDoc(New(KindCodeBlock, NewText("x", NewMark(MarkStrong)))),
			wantCode: CodeSchemaViolation,
			wantPath: "$.content[0].content[0].marks",
		},
		{
			name:     "unknown kind",
			tree:     NewDoc(New(Kind("panel"))),
			wantCode: CodeUnsupportedNodeKind,
			wantPath: "$.content[0]",
		},
		{
			name:     "external media without url",
			tree:     NewDoc(New(KindMediaSingle, New(KindMedia).SetAttr("type", "external"))),
			wantCode: CodeSchemaViolation,
			wantPath: "$.content[0].content[0].attrs",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.tree)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if verr.Code != tc.wantCode {
				t.Errorf("expected code %s, got %s (%v)", tc.wantCode, verr.Code, err)
			}
			if verr.Path != tc.wantPath {
				t.Errorf("expected path %q, got %q", tc.wantPath, verr.Path)
			}
		})
	}
}

func TestValidate_SharedNodeRejected(t *testing.T) {
	shared := New(KindParagraph, NewText("twice"))
	err := Validate(NewDoc(shared, shared))
	if !errors.Is(err, ErrSchemaViolation) {
		t.Fatalf("expected schema violation for shared node, got %v", err)
	}
	if !strings.Contains(err.Error(), "more than one parent") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestError_IsMatchesCode(t *testing.T) {
	err := Errorf(CodeDepthExceeded, "$", "too deep")
	if !errors.Is(err, ErrDepthExceeded) {
		t.Error("expected errors.Is to match on code")
	}
	if errors.Is(err, ErrParse) {
		t.Error("expected errors.Is not to match a different code")
	}
	if got := CodeOf(err); got != CodeDepthExceeded {
		t.Errorf("CodeOf = %s, want %s", got, CodeDepthExceeded)
	}
	if got := err.Error(); got != "DepthExceeded at $: too deep" {
		t.Errorf("Error() = %q", got)
	}
}

func TestClone_IsDeepAndEqual(t *testing.T) {
	orig := sampleDoc()
	c := Clone(orig)
	if !Equal(orig, c) {
		t.Fatal("expected clone to equal original")
	}
	c.Content[0].Attrs["level"] = 2
	c.Content[1].Content[1].Marks[0] = NewMark(MarkEm)
	if lvl, _ := orig.Content[0].IntAttr("level"); lvl != 1 {
		t.Errorf("mutating clone changed original heading level to %d", lvl)
	}
	if orig.Content[1].Content[1].Marks[0].Type != MarkStrong {
		t.Error("mutating clone changed original marks")
	}
}

func TestEqual_NilAndEmptyEquivalent(t *testing.T) {
	a := &Node{Kind: KindParagraph}
	b := &Node{Kind: KindParagraph, Attrs: Attrs{}, Content: []*Node{}, Marks: []Mark{}}
	if !Equal(a, b) {
		t.Error("expected nil and empty collections to compare equal")
	}
}

func TestNormalize_MergesRunsAndSortsMarks(t *testing.T) {
	tree := NewDoc(New(KindParagraph,
		NewText("a", NewMark(MarkEm), NewMark(MarkStrong)),
		NewText("b", NewMark(MarkStrong), NewMark(MarkEm)),
		NewText("c"),
	))
	want := NewDoc(New(KindParagraph,
		NewText("ab", NewMark(MarkStrong), NewMark(MarkEm)),
		NewText("c"),
	))
	got := Normalize(tree)
	if !Equal(got, want) {
		t.Errorf("normalize mismatch: got %+v", got.Content[0].Content)
	}
	if !Equivalent(tree, want) {
		t.Error("expected trees to be equivalent")
	}
	if len(tree.Content[0].Content) != 3 {
		t.Error("normalize must not modify its input")
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleDoc())
	if s.Kinds[KindListItem] != 3 {
		t.Errorf("expected 3 list items, got %d", s.Kinds[KindListItem])
	}
	if s.Kinds[KindDoc] != 1 {
		t.Errorf("expected 1 doc, got %d", s.Kinds[KindDoc])
	}
	// doc > bulletList > listItem > orderedList > listItem > paragraph > text
	if s.Depth != 6 {
		t.Errorf("expected depth 6, got %d", s.Depth)
	}
}

func TestSortMarks_CanonicalOrder(t *testing.T) {
	marks := []Mark{NewMark(MarkCode), NewMark(MarkEm), LinkMark("x"), NewMark(MarkStrong)}
	SortMarks(marks)
	want := []MarkType{MarkLink, MarkStrong, MarkEm, MarkCode}
	for i, w := range want {
		if marks[i].Type != w {
			t.Errorf("marks[%d] = %s, want %s", i, marks[i].Type, w)
		}
	}
}
