package wiki

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/dgallion1/wikiadf/internal/doctree"
)

// Serialize renders a document tree as wiki markup. Blocks are separated by
// a blank line and the output has no trailing newline. Constructs without a
// markup equivalent fail with an UnsupportedNodeKind error naming the path
// of the offending node; attributes markup cannot carry are dropped as
// listed in Compatibility.
func Serialize(root *doctree.Node) (string, error) {
	if err := doctree.Validate(root); err != nil {
		return "", err
	}
	return serializeBlocks(root.Content, doctree.RootPath, false)
}

func unsupported(path, format string, args ...any) error {
	return doctree.Errorf(doctree.CodeUnsupportedNodeKind, path, format, args...)
}

func serializeBlocks(nodes []*doctree.Node, path string, inQuote bool) (string, error) {
	parts := make([]string, 0, len(nodes))
	for i, n := range nodes {
		s, err := serializeBlock(n, doctree.ChildPath(path, i), inQuote)
		if err != nil {
			return "", err
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func serializeBlock(n *doctree.Node, path string, inQuote bool) (string, error) {
	switch n.Kind {
	case doctree.KindParagraph:
		text, err := renderInline(n.Content, path, true)
		if err != nil {
			return "", err
		}
		return escapeLineStart(text), nil

	case doctree.KindHeading:
		level, _ := n.IntAttr("level")
		text, err := renderInline(n.Content, path, false)
		if err != nil {
			return "", err
		}
		return prefixed(fmt.Sprintf("h%d.", level), text), nil

	case doctree.KindRule:
		return "----", nil

	case doctree.KindBulletList, doctree.KindOrderedList:
		var lines []string
		if err := serializeList(n, "", path, &lines); err != nil {
			return "", err
		}
		return strings.Join(lines, "\n"), nil

	case doctree.KindCodeBlock:
		return serializeCode(n, path, inQuote)

	case doctree.KindBlockquote:
		if len(n.Content) == 1 && n.Content[0].Kind == doctree.KindParagraph {
			text, err := renderInline(n.Content[0].Content, doctree.ChildPath(path, 0), false)
			if err != nil {
				return "", err
			}
			return prefixed("bq.", text), nil
		}
		body, err := serializeBlocks(n.Content, path, true)
		if err != nil {
			return "", err
		}
		return "{quote}\n" + body + "\n{quote}", nil

	case doctree.KindMediaSingle:
		return serializeMedia(n.Content[0], doctree.ChildPath(path, 0))

	case doctree.KindTable:
		return "", unsupported(path, "tables have no wiki markup equivalent in this converter")
	}
	return "", unsupported(path, "%s cannot be written as a block", n.Kind)
}

func prefixed(prefix, text string) string {
	if text == "" {
		return prefix
	}
	return prefix + " " + text
}

func serializeList(list *doctree.Node, prefix, path string, lines *[]string) error {
	marker := "*"
	if list.Kind == doctree.KindOrderedList {
		marker = "#"
	}
	prefix += marker

	for i, item := range list.Content {
		itemPath := doctree.ChildPath(path, i)
		start := 0
		if len(item.Content) > 0 && item.Content[0].Kind == doctree.KindParagraph {
			text, err := renderInline(item.Content[0].Content, doctree.ChildPath(itemPath, 0), true)
			if err != nil {
				return err
			}
			*lines = append(*lines, prefixed(prefix, text))
			start = 1
		}
		for j := start; j < len(item.Content); j++ {
			child := item.Content[j]
			childPath := doctree.ChildPath(itemPath, j)
			switch child.Kind {
			case doctree.KindBulletList, doctree.KindOrderedList:
				if err := serializeList(child, prefix, childPath, lines); err != nil {
					return err
				}
			default:
				return unsupported(childPath, "list items hold one leading paragraph and nested lists, not %s", child.Kind)
			}
		}
	}
	return nil
}

func serializeCode(n *doctree.Node, path string, inQuote bool) (string, error) {
	var b strings.Builder
	for _, c := range n.Content {
		b.WriteString(c.Text)
	}
	text := b.String()
	if strings.Contains(text, "{code}") {
		return "", unsupported(path, "code block text contains the {code} terminator")
	}
	if inQuote && strings.Contains(text, "{quote}") {
		return "", unsupported(path, "quoted code block text contains the {quote} terminator")
	}

	open := "{code}"
	if lang, ok := n.StringAttr("language"); ok && lang != "" {
		if strings.ContainsAny(lang, "}|\n") {
			return "", unsupported(path+".attrs.language", "language %q cannot be written as markup", lang)
		}
		if strings.Contains(lang, "=") {
			open = "{code:language=" + lang + "}"
		} else {
			open = "{code:" + lang + "}"
		}
	}
	return open + "\n" + text + "\n{code}", nil
}

func serializeMedia(n *doctree.Node, path string) (string, error) {
	if t, _ := n.StringAttr("type"); t != "external" {
		return "", unsupported(path, "only external media can be written as markup, got type %q", t)
	}
	url, _ := n.StringAttr("url")
	line := "!" + url + "!"
	if m := mediaRe.FindStringSubmatch(line); m == nil || m[1] != url {
		return "", unsupported(path+".attrs.url", "media url %q cannot be written as markup", url)
	}
	return line, nil
}

// escapeLineStart escapes the first line of a paragraph when it would
// otherwise open a different block. Blank text stays as it is so the
// paragraph is dropped.
func escapeLineStart(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	first, _, _ := strings.Cut(text, "\n")
	if !isBlockStart(first) {
		return text
	}
	lead := len(text) - len(strings.TrimLeftFunc(text, unicode.IsSpace))
	body := text[lead:]
	if headingRe.MatchString(first[lead:]) || quoteLine.MatchString(first[lead:]) {
		dot := strings.IndexByte(body, '.')
		return text[:lead] + body[:dot] + `\` + body[dot:]
	}
	return text[:lead] + `\` + body
}

// isBlockStart reports whether a line would be read as anything but
// paragraph text.
func isBlockStart(line string) bool {
	return classify(strings.TrimSpace(line), false) != lineParagraph
}

type segKind int

const (
	segText segKind = iota
	segCode
	segToggle
	segLinkOpen
	segLinkClose
	segBreak
)

type segment struct {
	kind    segKind
	text    string           // text, code or link target
	mark    doctree.MarkType // toggled mark
	opening bool             // toggle turns the mark on
	short   bool             // link written as [target]
	path    string           // node a text segment came from
}

// phraseOrder is the canonical order of the marks written as delimiters.
var phraseOrder = []doctree.MarkType{doctree.MarkStrong, doctree.MarkEm, doctree.MarkUnderline, doctree.MarkStrike}

type segmenter struct {
	segs []segment
	path string
}

func (s *segmenter) add(seg segment) {
	s.segs = append(s.segs, seg)
}

// transition emits the toggles that turn the marks in set into want.
func (s *segmenter) transition(set, want map[doctree.MarkType]bool) {
	for i := len(phraseOrder) - 1; i >= 0; i-- {
		m := phraseOrder[i]
		if set[m] && !want[m] {
			s.add(segment{kind: segToggle, mark: m})
			set[m] = false
		}
	}
	for _, m := range phraseOrder {
		if want[m] && !set[m] {
			s.add(segment{kind: segToggle, mark: m})
			set[m] = true
		}
	}
}

func phraseMarks(n *doctree.Node) map[doctree.MarkType]bool {
	want := make(map[doctree.MarkType]bool, len(n.Marks))
	for _, m := range n.Marks {
		if _, ok := delimiterFor[m.Type]; ok {
			want[m.Type] = true
		}
	}
	return want
}

func linkOf(n *doctree.Node) (doctree.Mark, bool) {
	for _, m := range n.Marks {
		if m.Type == doctree.MarkLink {
			return m, true
		}
	}
	return doctree.Mark{}, false
}

func sameSet(a, b map[doctree.MarkType]bool) bool {
	for _, m := range phraseOrder {
		if a[m] != b[m] {
			return false
		}
	}
	return true
}

// run emits one text node. Newlines inside text become hard breaks outside
// links.
func (s *segmenter) run(n *doctree.Node, set map[doctree.MarkType]bool, path string, inLink bool) error {
	if n.Kind == doctree.KindHardBreak {
		if inLink {
			return unsupported(path, "hard break inside link text")
		}
		s.transition(set, nil)
		s.add(segment{kind: segBreak})
		return nil
	}

	pieces := strings.Split(n.Text, "\n")
	if len(pieces) > 1 && inLink {
		return unsupported(path, "line break inside link text")
	}
	code := n.HasMark(doctree.MarkCode)
	for i, piece := range pieces {
		if i > 0 {
			s.transition(set, nil)
			s.add(segment{kind: segBreak})
		}
		if piece == "" {
			continue
		}
		s.transition(set, phraseMarks(n))
		if code {
			if strings.Contains(piece, "}}") || strings.HasSuffix(piece, "}") {
				return unsupported(path, "monospace text %q cannot be written as markup", piece)
			}
			s.add(segment{kind: segCode, text: piece})
			continue
		}
		if err := checkBackslashes(piece, path); err != nil {
			return err
		}
		s.add(segment{kind: segText, text: piece, path: path})
	}
	return nil
}

// checkBackslashes rejects text where a backslash precedes punctuation or
// another backslash. The parser reads those pairs as an escape or a hard
// break and no markup form keeps the backslash.
func checkBackslashes(text, path string) error {
	rs := []rune(text)
	for i := 0; i+1 < len(rs); i++ {
		if rs[i] == '\\' && (rs[i+1] == '\\' || isPunct(rs[i+1])) {
			return unsupported(path, "text %q has a backslash before %q, which markup reads as an escape", text, rs[i+1])
		}
	}
	return nil
}

func (s *segmenter) build(nodes []*doctree.Node) error {
	set := map[doctree.MarkType]bool{}
	for i := 0; i < len(nodes); {
		n := nodes[i]
		path := doctree.ChildPath(s.path, i)
		link, ok := linkOf(n)
		if !ok {
			if err := s.run(n, set, path, false); err != nil {
				return err
			}
			i++
			continue
		}

		href := link.Href()
		if strings.ContainsAny(href, "]\n") || strings.TrimSpace(href) != href || strings.HasSuffix(href, `\`) {
			return unsupported(path, "link target %q cannot be written as markup", href)
		}
		j := i + 1
		for j < len(nodes) {
			next, ok := linkOf(nodes[j])
			if !ok || next.Href() != href {
				break
			}
			j++
		}

		group := nodes[i:j]
		s.add(segment{kind: segLinkOpen})
		if len(group) == 1 && n.Text == href && !n.HasMark(doctree.MarkCode) &&
			!strings.Contains(href, "|") && sameSet(set, phraseMarks(n)) {
			s.add(segment{kind: segLinkClose, text: href, short: true})
			i = j
			continue
		}

		inner := make(map[doctree.MarkType]bool, len(set))
		for m, v := range set {
			inner[m] = v
		}
		for k, g := range group {
			if err := s.run(g, inner, doctree.ChildPath(s.path, i+k), true); err != nil {
				return err
			}
		}
		for p := len(phraseOrder) - 1; p >= 0; p-- {
			m := phraseOrder[p]
			if inner[m] && !set[m] {
				s.add(segment{kind: segToggle, mark: m})
			}
		}
		s.add(segment{kind: segLinkClose, text: href})
		i = j
	}
	s.transition(set, nil)
	return nil
}

// renderInline writes inline content on one or more lines. When newlines
// are not allowed every hard break is written as \\.
func renderInline(nodes []*doctree.Node, path string, allowNewline bool) (string, error) {
	s := &segmenter{path: path}
	if err := s.build(nodes); err != nil {
		return "", err
	}
	return render(s.segs, allowNewline)
}

func render(segs []segment, allowNewline bool) (string, error) {
	// First pass: text with escapes. Toggles and breaks are decided later.
	out := make([]string, len(segs))
	active := map[doctree.MarkType]bool{}
	var saved map[doctree.MarkType]bool
	inLink := false
	for i, seg := range segs {
		switch seg.kind {
		case segText:
			out[i] = escapeText(seg.text, active, inLink)
		case segCode:
			out[i] = "{{" + seg.text + "}}"
		case segToggle:
			segs[i].opening = !active[seg.mark]
			active[seg.mark] = !active[seg.mark]
		case segLinkOpen:
			out[i] = "["
			saved = make(map[doctree.MarkType]bool, len(active))
			for m, v := range active {
				saved[m] = v
			}
			inLink = true
		case segLinkClose:
			if seg.short {
				out[i] = seg.text + "]"
			} else {
				out[i] = "|" + seg.text + "]"
			}
			active = saved
			inLink = false
		}
	}

	// Second pass: delimiter forms depend on the neighbouring characters.
	var prev rune
	hasPrev := false
	for i, seg := range segs {
		switch seg.kind {
		case segBreak:
			hasPrev = false
			continue
		case segToggle:
			next, hasNext := firstRune(segs, out, i+1)
			out[i] = delimiter(seg.mark, seg.opening, prev, hasPrev, next, hasNext)
		}
		if out[i] != "" {
			prev, hasPrev = lastRune(out[i]), true
		}
	}

	// A text run ending in a backslash must be followed by plain text the
	// backslash cannot escape, or by nothing.
	for i, seg := range segs {
		if seg.kind != segText || !strings.HasSuffix(seg.text, `\`) || i+1 == len(segs) {
			continue
		}
		next := segs[i+1]
		r, _ := firstRune(segs, out, i+1)
		if next.kind != segText || r == '\\' || isPunct(r) {
			return "", unsupported(seg.path, "text %q ends in a backslash that would escape the markup after it", seg.text)
		}
	}

	// Third pass: join lines, writing each break as a newline only when the
	// next line cannot be mistaken for another block.
	var lines []string
	var cur strings.Builder
	for i, seg := range segs {
		if seg.kind == segBreak {
			lines = append(lines, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteString(out[i])
	}
	lines = append(lines, cur.String())

	var b strings.Builder
	b.WriteString(lines[0])
	line := lines[0]
	for k := 1; k < len(lines); k++ {
		next := lines[k]
		rest := strings.Join(lines[k:], `\\`)
		if allowNewline && strings.TrimSpace(line) != "" && !endsWithSpace(line) &&
			next != "" && !startsWithSpace(next) && !isBlockStart(next) && !isBlockStart(rest) {
			b.WriteString("\n")
			line = next
		} else {
			b.WriteString(`\\`)
			line += `\\` + next
		}
		b.WriteString(next)
	}
	return b.String(), nil
}

func firstRune(segs []segment, out []string, i int) (rune, bool) {
	if i >= len(segs) {
		return 0, false
	}
	switch segs[i].kind {
	case segBreak:
		return 0, false
	case segToggle:
		return '{', true
	}
	for _, r := range out[i] {
		return r, true
	}
	return 0, false
}

func lastRune(s string) rune {
	rs := []rune(s)
	return rs[len(rs)-1]
}

func startsWithSpace(s string) bool {
	return s != "" && unicode.IsSpace([]rune(s)[0])
}

func endsWithSpace(s string) bool {
	return s != "" && unicode.IsSpace(lastRune(s))
}

// delimiter returns the plain delimiter when the parser would read it as a
// toggle at this position, and the braced form otherwise.
func delimiter(m doctree.MarkType, opening bool, prev rune, hasPrev bool, next rune, hasNext bool) string {
	c := delimiterFor[m]
	plain := canClose(prev, hasPrev, next, hasNext)
	if opening {
		plain = canOpen(prev, hasPrev, next, hasNext)
	}
	if c == '-' && ((hasPrev && prev == '-') || (hasNext && next == '-')) {
		plain = false
	}
	if plain {
		return string(c)
	}
	return "{" + string(c) + "}"
}

// escapeText escapes the characters of a text run that the parser would
// otherwise read as markup. Characters at the run edges are escaped whenever
// a neighbour could make them significant.
func escapeText(text string, active map[doctree.MarkType]bool, inLink bool) string {
	rs := []rune(text)
	var b strings.Builder
	for i, c := range rs {
		var prev, next rune
		hasPrev, hasNext := i > 0, i+1 < len(rs)
		if hasPrev {
			prev = rs[i-1]
		}
		if hasNext {
			next = rs[i+1]
		}
		if needsEscape(c, prev, hasPrev, next, hasNext, active, inLink) {
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

func needsEscape(c, prev rune, hasPrev bool, next rune, hasNext bool, active map[doctree.MarkType]bool, inLink bool) bool {
	switch c {
	case '[', '{':
		return true
	case ']', '|':
		return inLink
	}
	m, ok := delimiters[c]
	if !ok {
		return false
	}
	if c == '-' && ((hasPrev && prev == '-') || (hasNext && next == '-')) {
		return false
	}
	if active[m] {
		return (!hasPrev || !unicode.IsSpace(prev)) && (!hasNext || !isAlnum(next))
	}
	return (!hasPrev || !isAlnum(prev)) && (!hasNext || !unicode.IsSpace(next))
}
