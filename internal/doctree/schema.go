package doctree

import "slices"

type attrType int

const (
	attrInt attrType = iota
	attrString
	attrBool
)

func (t attrType) String() string {
	switch t {
	case attrInt:
		return "integer"
	case attrString:
		return "string"
	default:
		return "boolean"
	}
}

type attrSpec struct {
	typ      attrType
	required bool
	min, max int      // integer bounds, max 0 = unbounded
	enum     []string // allowed string values, nil = any
}

type kindSpec struct {
	children    []Kind // legal child kinds, nil for leaves
	minChildren int
	maxChildren int // 0 = unbounded
	attrs       map[string]attrSpec
}

var (
	blockKinds  = []Kind{KindParagraph, KindHeading, KindBulletList, KindOrderedList, KindCodeBlock, KindBlockquote, KindRule, KindTable, KindMediaSingle}
	inlineKinds = []Kind{KindText, KindHardBreak}
	nestedKinds = []Kind{KindParagraph, KindBulletList, KindOrderedList, KindCodeBlock, KindMediaSingle}
	cellKinds   = []Kind{KindParagraph, KindHeading, KindBulletList, KindOrderedList, KindCodeBlock, KindBlockquote, KindRule, KindMediaSingle}
	cellAttrs   = map[string]attrSpec{
		"colspan": {typ: attrInt, min: 1},
		"rowspan": {typ: attrInt, min: 1},
	}
)

var kindSpecs = map[Kind]kindSpec{
	KindDoc:       {children: blockKinds},
	KindParagraph: {children: inlineKinds},
	KindHeading: {
		children: inlineKinds,
		attrs:    map[string]attrSpec{"level": {typ: attrInt, required: true, min: 1, max: 6}},
	},
	KindBulletList: {children: []Kind{KindListItem}, minChildren: 1},
	KindOrderedList: {
		children:    []Kind{KindListItem},
		minChildren: 1,
		attrs:       map[string]attrSpec{"order": {typ: attrInt, min: 1}},
	},
	KindListItem: {children: nestedKinds, minChildren: 1},
	KindCodeBlock: {
		children: []Kind{KindText},
		attrs:    map[string]attrSpec{"language": {typ: attrString}},
	},
	KindBlockquote: {children: nestedKinds, minChildren: 1},
	KindRule:       {},
	KindTable: {
		children:    []Kind{KindTableRow},
		minChildren: 1,
		attrs: map[string]attrSpec{
			"isNumberColumnEnabled": {typ: attrBool},
			"layout":                {typ: attrString},
		},
	},
	KindTableRow:    {children: []Kind{KindTableHeader, KindTableCell}, minChildren: 1},
	KindTableHeader: {children: cellKinds, minChildren: 1, attrs: cellAttrs},
	KindTableCell:   {children: cellKinds, minChildren: 1, attrs: cellAttrs},
	KindMediaSingle: {
		children:    []Kind{KindMedia},
		minChildren: 1,
		maxChildren: 1,
		attrs:       map[string]attrSpec{"layout": {typ: attrString}},
	},
	KindMedia: {
		attrs: map[string]attrSpec{
			"type":       {typ: attrString, required: true, enum: []string{"external", "file"}},
			"url":        {typ: attrString},
			"id":         {typ: attrString},
			"collection": {typ: attrString},
			"width":      {typ: attrInt, min: 1},
			"height":     {typ: attrInt, min: 1},
		},
	},
	KindText:      {},
	KindHardBreak: {},
}

var markSpecs = map[MarkType]map[string]attrSpec{
	MarkLink: {
		"href":  {typ: attrString, required: true},
		"title": {typ: attrString},
	},
	MarkStrong:    nil,
	MarkEm:        nil,
	MarkUnderline: nil,
	MarkStrike:    nil,
	MarkCode:      nil,
}

// markOrder is the canonical mark order, outermost first.
var markOrder = []MarkType{MarkLink, MarkStrong, MarkEm, MarkUnderline, MarkStrike, MarkCode}

// Kinds returns every known node kind.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(kindSpecs))
	for k := range kindSpecs {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// IsKnown reports whether k belongs to the closed kind set.
func IsKnown(k Kind) bool {
	_, ok := kindSpecs[k]
	return ok
}

// IsKnownMark reports whether t is a known mark type.
func IsKnownMark(t MarkType) bool {
	_, ok := markSpecs[t]
	return ok
}

// IsBlock reports whether k may appear directly under the document root.
func IsBlock(k Kind) bool {
	return slices.Contains(blockKinds, k)
}

// IsInline reports whether k is an inline kind.
func IsInline(k Kind) bool {
	return slices.Contains(inlineKinds, k)
}

// AllowsChild reports whether a node of kind parent may contain child.
func AllowsChild(parent, child Kind) bool {
	return slices.Contains(kindSpecs[parent].children, child)
}

// MarkRank returns the position of t in the canonical mark order.
func MarkRank(t MarkType) int {
	if i := slices.Index(markOrder, t); i >= 0 {
		return i
	}
	return len(markOrder)
}

// SortMarks orders marks canonically in place.
func SortMarks(marks []Mark) {
	slices.SortStableFunc(marks, func(a, b Mark) int {
		return MarkRank(a.Type) - MarkRank(b.Type)
	})
}
