package wiki

// Support describes how a construct survives conversion to markup.
type Support string

const (
	SupportFull        Support = "full"
	SupportLossy       Support = "lossy"
	SupportUnsupported Support = "unsupported"
)

// CompatEntry documents one construct of the document tree.
type CompatEntry struct {
	Construct string  `json:"construct" yaml:"construct"`
	Support   Support `json:"support" yaml:"support"`
	Detail    string  `json:"detail" yaml:"detail"`
}

// Compatibility lists every construct that does not survive a tree to
// markup conversion intact. Everything else round-trips.
var Compatibility = []CompatEntry{
	{Construct: "orderedList.attrs.order", Support: SupportLossy, Detail: "markup lists always start at 1; the start number is dropped"},
	{Construct: "codeBlock.attrs.language", Support: SupportLossy, Detail: "written as {code:language}; other {code} parameters such as title are ignored when parsing"},
	{Construct: "link.attrs.title", Support: SupportLossy, Detail: "link titles have no markup form and are dropped"},
	{Construct: "mediaSingle.attrs.layout", Support: SupportLossy, Detail: "dropped"},
	{Construct: "media.attrs.width", Support: SupportLossy, Detail: "dropped"},
	{Construct: "media.attrs.height", Support: SupportLossy, Detail: "dropped"},
	{Construct: "media.attrs.collection", Support: SupportLossy, Detail: "dropped"},
	{Construct: "paragraph (empty)", Support: SupportLossy, Detail: "empty or blank paragraphs outside list items are omitted; a quote left without blocks reads back holding one empty paragraph"},
	{Construct: "text (leading or trailing whitespace)", Support: SupportLossy, Detail: "whitespace at the start or end of a markup line is trimmed when parsing"},
	{Construct: "text (newline)", Support: SupportLossy, Detail: "newlines inside text are written as hard breaks"},
	{Construct: "media (type file)", Support: SupportUnsupported, Detail: "attachments have no markup form; only external media is written as !url!"},
	{Construct: "table", Support: SupportUnsupported, Detail: "tables are parsed from markup but cannot be written back"},
	{Construct: "tableRow", Support: SupportUnsupported, Detail: "see table"},
	{Construct: "tableHeader", Support: SupportUnsupported, Detail: "see table"},
	{Construct: "tableCell", Support: SupportUnsupported, Detail: "see table"},
	{Construct: "listItem (other content)", Support: SupportUnsupported, Detail: "a list item may hold one leading paragraph followed by nested lists"},
	{Construct: "code (text containing }})", Support: SupportUnsupported, Detail: "monospace spans cannot contain their own terminator"},
	{Construct: "text (backslash before punctuation)", Support: SupportUnsupported, Detail: "a literal backslash before punctuation, another backslash or following markup has no markup form"},
	{Construct: "codeBlock (text containing {code})", Support: SupportUnsupported, Detail: "code blocks cannot contain their own terminator"},
}
