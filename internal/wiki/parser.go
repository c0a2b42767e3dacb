// Package wiki reads and writes Jira wiki markup.
package wiki

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/wikiadf/internal/doctree"
)

const (
	DefaultMaxDepth      = 64
	DefaultMaxInputBytes = 1 << 20
)

// Parser converts wiki markup into a document tree. The zero value uses the
// default limits.
type Parser struct {
	MaxDepth      int // deepest allowed tree level, root is 0
	MaxInputBytes int
}

// Parse converts markup with the default limits.
func Parse(text string) (*doctree.Node, error) {
	var p Parser
	return p.Parse(text)
}

// Parse converts markup into a document tree. Blank input, or input that
// yields no blocks, returns doctree.ErrEmpty. Malformed block syntax degrades to paragraph text.
func (p *Parser) Parse(text string) (*doctree.Node, error) {
	maxDepth := p.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	maxBytes := p.MaxInputBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxInputBytes
	}

	if len(text) > maxBytes {
		return nil, doctree.Errorf(doctree.CodeInputTooLarge, "", "input is %d bytes, limit is %d", len(text), maxBytes)
	}
	if !utf8.ValidString(text) {
		return nil, doctree.Errorf(doctree.CodeParseError, "", "input is not valid UTF-8")
	}
	if strings.TrimSpace(text) == "" {
		return nil, doctree.ErrEmpty
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	bp := &blockParser{
		lines:    strings.Split(text, "\n"),
		maxDepth: maxDepth,
	}
	blocks, err := bp.parse(1)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, doctree.ErrEmpty
	}

	doc := doctree.NewDoc(blocks...)
	if depth := doctree.Summarize(doc).Depth; depth > maxDepth {
		return nil, depthError(depth, maxDepth)
	}
	if err := doctree.Validate(doc); err != nil {
		return nil, &doctree.Error{Code: doctree.CodeParseError, Message: "markup produced an invalid tree", Err: err}
	}
	return doc, nil
}

func depthError(depth, limit int) error {
	return doctree.Errorf(doctree.CodeDepthExceeded, "", "nesting depth %d exceeds limit %d", depth, limit)
}

var (
	headingRe  = regexp.MustCompile(`^h([1-6])\.(?:\s+(.*))?$`)
	quoteLine  = regexp.MustCompile(`^bq\.(?:\s+(.*))?$`)
	ruleRe     = regexp.MustCompile(`^-{4,}$`)
	listRe     = regexp.MustCompile(`^([*#]+|-)(?:\s+(.*))?$`)
	codeOpenRe = regexp.MustCompile(`^\{(code|noformat)(?::([^}]*))?\}(.*)$`)
	quoteOpen  = regexp.MustCompile(`^\{quote\}(.*)$`)
	mediaRe    = regexp.MustCompile(`^!([^\s!|][^!|]*)(?:\|[^!]*)?!$`)
)

type lineKind int

const (
	lineBlank lineKind = iota
	lineParagraph
	lineHeading
	lineBlockquote
	lineRule
	lineList
	lineTable
	lineCode
	lineQuote
	lineMedia
)

// classify decides what block a trimmed line opens. Inside a {quote} block
// only paragraphs, lists, code and media are recognised.
func classify(s string, inQuote bool) lineKind {
	switch {
	case s == "":
		return lineBlank
	case codeOpenRe.MatchString(s):
		return lineCode
	case mediaRe.MatchString(s):
		return lineMedia
	case ruleRe.MatchString(s):
		if inQuote {
			return lineParagraph
		}
		return lineRule
	case listRe.MatchString(s):
		return lineList
	}
	if inQuote {
		return lineParagraph
	}
	switch {
	case headingRe.MatchString(s):
		return lineHeading
	case quoteLine.MatchString(s):
		return lineBlockquote
	case quoteOpen.MatchString(s):
		return lineQuote
	case strings.HasPrefix(s, "|") && len(splitRow(s)) > 0:
		return lineTable
	}
	return lineParagraph
}

type blockParser struct {
	lines    []string
	pos      int
	inQuote  bool
	maxDepth int
}

func (p *blockParser) peek() (string, bool) {
	if p.pos >= len(p.lines) {
		return "", false
	}
	return strings.TrimSpace(p.lines[p.pos]), true
}

// parse reads blocks until the input is exhausted. depth is the tree depth
// of the blocks produced.
func (p *blockParser) parse(depth int) ([]*doctree.Node, error) {
	var blocks []*doctree.Node
	for {
		line, ok := p.peek()
		if !ok {
			return blocks, nil
		}

		var (
			block *doctree.Node
			err   error
		)
		switch classify(line, p.inQuote) {
		case lineBlank:
			p.pos++
			continue
		case lineHeading:
			block = p.heading(line)
		case lineBlockquote:
			block = p.shortQuote(line)
		case lineRule:
			p.pos++
			block = doctree.New(doctree.KindRule)
		case lineList:
			var lists []*doctree.Node
			lists, err = p.lists(depth)
			blocks = append(blocks, lists...)
		case lineTable:
			block = p.table()
		case lineCode:
			block = p.code(line)
		case lineQuote:
			block, err = p.quote(line, depth)
		case lineMedia:
			p.pos++
			block = media(line)
		default:
			block = p.paragraph()
		}
		if err != nil {
			return nil, err
		}
		if block != nil {
			blocks = append(blocks, block)
		}
	}
}

func (p *blockParser) heading(line string) *doctree.Node {
	p.pos++
	m := headingRe.FindStringSubmatch(line)
	level := int(m[1][0] - '0')
	return doctree.NewHeading(level, parseInline(m[2])...)
}

func (p *blockParser) shortQuote(line string) *doctree.Node {
	p.pos++
	m := quoteLine.FindStringSubmatch(line)
	return doctree.New(doctree.KindBlockquote, doctree.New(doctree.KindParagraph, parseInline(m[1])...))
}

// paragraph joins consecutive plain lines with hard breaks. It returns nil
// when the lines carry no inline content.
func (p *blockParser) paragraph() *doctree.Node {
	para := doctree.New(doctree.KindParagraph)
	first := true
	for {
		line, ok := p.peek()
		if !ok || (!first && classify(line, p.inQuote) != lineParagraph) {
			break
		}
		if !first {
			para.Append(doctree.New(doctree.KindHardBreak))
		}
		para.Append(parseInline(line)...)
		p.pos++
		first = false
	}
	if len(para.Content) == 0 {
		return nil
	}
	return para
}

type openList struct {
	node   *doctree.Node
	marker byte
}

// lists reads a run of list lines. Marker strings such as "*#*" give the
// list type at each nesting level. Plain lines directly after an item
// continue that item's paragraph.
func (p *blockParser) lists(depth int) ([]*doctree.Node, error) {
	var (
		roots    []*doctree.Node
		stack    []openList
		lastPara *doctree.Node
	)
	for {
		line, ok := p.peek()
		if !ok {
			break
		}
		kind := classify(line, p.inQuote)
		if kind == lineParagraph && lastPara != nil {
			lastPara.Append(doctree.New(doctree.KindHardBreak))
			lastPara.Append(parseInline(line)...)
			p.pos++
			continue
		}
		if kind != lineList {
			break
		}
		p.pos++

		m := listRe.FindStringSubmatch(line)
		markers := []byte(m[1])
		if m[1] == "-" {
			markers = []byte{'*'}
		}
		level := len(markers)
		// list, item, paragraph and text for each level below the container.
		if d := depth + 2*level + 1; d > p.maxDepth {
			return nil, depthError(d, p.maxDepth)
		}

		keep := 0
		for keep < len(stack) && keep < level && stack[keep].marker == markers[keep] {
			keep++
		}
		stack = stack[:keep]

		for len(stack) < level {
			i := len(stack)
			list := doctree.New(listKind(markers[i]))
			if i == 0 {
				roots = append(roots, list)
			} else {
				parent := stack[i-1].node
				if len(parent.Content) == 0 {
					parent.Append(doctree.New(doctree.KindListItem))
				}
				item := parent.Content[len(parent.Content)-1]
				item.Append(list)
			}
			stack = append(stack, openList{node: list, marker: markers[i]})
		}

		lastPara = doctree.New(doctree.KindParagraph, parseInline(m[2])...)
		stack[level-1].node.Append(doctree.New(doctree.KindListItem, lastPara))
	}
	return roots, nil
}

func listKind(marker byte) doctree.Kind {
	if marker == '#' {
		return doctree.KindOrderedList
	}
	return doctree.KindBulletList
}

func (p *blockParser) table() *doctree.Node {
	table := doctree.New(doctree.KindTable)
	for {
		line, ok := p.peek()
		if !ok || classify(line, p.inQuote) != lineTable {
			break
		}
		p.pos++
		row := doctree.New(doctree.KindTableRow)
		for _, c := range splitRow(line) {
			kind := doctree.KindTableCell
			if c.header {
				kind = doctree.KindTableHeader
			}
			row.Append(doctree.New(kind, doctree.New(doctree.KindParagraph, parseInline(c.text)...)))
		}
		table.Append(row)
	}
	return table
}

type rowCell struct {
	header bool
	text   string
}

// splitRow splits "||a||b||" or "|a|b|" into cells. Pipes inside links,
// monospace spans and escapes do not split.
func splitRow(s string) []rowCell {
	var cells []rowCell
	i := 0
	for i < len(s) && s[i] == '|' {
		header := strings.HasPrefix(s[i:], "||")
		if header {
			i += 2
		} else {
			i++
		}
		j := cellEnd(s, i)
		text := strings.TrimSpace(s[i:j])
		if j == len(s) && text == "" {
			break
		}
		cells = append(cells, rowCell{header: header, text: text})
		i = j
	}
	return cells
}

func cellEnd(s string, i int) int {
	inLink := false
	for i < len(s) {
		switch {
		case s[i] == '\\' && i+1 < len(s):
			i += 2
			continue
		case strings.HasPrefix(s[i:], "{{"):
			if end := strings.Index(s[i+2:], "}}"); end >= 0 {
				i += end + 4
				continue
			}
		case s[i] == '[':
			inLink = true
		case s[i] == ']':
			inLink = false
		case s[i] == '|' && !inLink:
			return i
		}
		i++
	}
	return len(s)
}

// code reads {code}/{noformat} blocks. Content is taken verbatim; an
// unclosed block runs to the end of the input.
func (p *blockParser) code(line string) *doctree.Node {
	m := codeOpenRe.FindStringSubmatch(line)
	closer := "{" + m[1] + "}"
	p.pos++

	block := doctree.New(doctree.KindCodeBlock)
	if m[1] == "code" {
		if lang := codeLanguage(m[2]); lang != "" {
			block.SetAttr("language", lang)
		}
	}

	var content []string
	rest := m[3]
	closed := false
	if idx := strings.Index(rest, closer); idx >= 0 {
		if idx > 0 {
			content = append(content, rest[:idx])
		}
		p.requeue(rest[idx+len(closer):])
		closed = true
	} else if rest != "" {
		content = append(content, rest)
	}

	for !closed && p.pos < len(p.lines) {
		raw := p.lines[p.pos]
		p.pos++
		if idx := strings.Index(raw, closer); idx >= 0 {
			if idx > 0 {
				content = append(content, raw[:idx])
			}
			p.requeue(raw[idx+len(closer):])
			break
		}
		content = append(content, raw)
	}

	if text := strings.Join(content, "\n"); text != "" {
		block.Append(doctree.NewText(text))
	}
	return block
}

// requeue puts trailing text after a closing tag back as the next line.
func (p *blockParser) requeue(rest string) {
	if strings.TrimSpace(rest) == "" {
		return
	}
	p.pos--
	p.lines[p.pos] = rest
}

// codeLanguage picks the language from "java" or "title=x|language=java".
func codeLanguage(params string) string {
	var lang string
	for _, param := range strings.Split(params, "|") {
		param = strings.TrimSpace(param)
		key, value, found := strings.Cut(param, "=")
		switch {
		case !found && lang == "":
			lang = param
		case found && (key == "language" || key == "lang"):
			lang = strings.TrimSpace(value)
		}
	}
	return lang
}

// quote reads a {quote} block and parses its body with the restricted
// quote grammar.
func (p *blockParser) quote(line string, depth int) (*doctree.Node, error) {
	const closer = "{quote}"
	m := quoteOpen.FindStringSubmatch(line)
	p.pos++

	var body []string
	rest := m[1]
	closed := false
	if idx := strings.Index(rest, closer); idx >= 0 {
		body = append(body, rest[:idx])
		p.requeue(rest[idx+len(closer):])
		closed = true
	} else {
		body = append(body, rest)
	}
	for !closed && p.pos < len(p.lines) {
		raw := p.lines[p.pos]
		p.pos++
		if idx := strings.Index(raw, closer); idx >= 0 {
			body = append(body, raw[:idx])
			p.requeue(raw[idx+len(closer):])
			break
		}
		body = append(body, raw)
	}

	if depth+1 > p.maxDepth {
		return nil, depthError(depth+1, p.maxDepth)
	}
	inner := &blockParser{lines: body, inQuote: true, maxDepth: p.maxDepth}
	blocks, err := inner.parse(depth + 1)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		blocks = []*doctree.Node{doctree.New(doctree.KindParagraph)}
	}
	return doctree.New(doctree.KindBlockquote, blocks...), nil
}

func media(line string) *doctree.Node {
	m := mediaRe.FindStringSubmatch(line)
	item := doctree.New(doctree.KindMedia).
		SetAttr("type", "external").
		SetAttr("url", strings.TrimSpace(m[1]))
	return doctree.New(doctree.KindMediaSingle, item)
}
