package wiki

import (
	"strings"
	"unicode"

	"github.com/dgallion1/wikiadf/internal/doctree"
)

// delimiters maps phrase delimiter characters to their marks.
var delimiters = map[rune]doctree.MarkType{
	'*': doctree.MarkStrong,
	'_': doctree.MarkEm,
	'+': doctree.MarkUnderline,
	'-': doctree.MarkStrike,
}

var delimiterFor = map[doctree.MarkType]rune{
	doctree.MarkStrong:    '*',
	doctree.MarkEm:        '_',
	doctree.MarkUnderline: '+',
	doctree.MarkStrike:    '-',
}

// markSet is the set of active phrase marks plus an optional link.
type markSet struct {
	on   map[doctree.MarkType]bool
	href string
}

func (s markSet) clone() markSet {
	c := markSet{on: make(map[doctree.MarkType]bool, len(s.on)), href: s.href}
	for m, v := range s.on {
		c.on[m] = v
	}
	return c
}

func (s markSet) marks(extra ...doctree.MarkType) []doctree.Mark {
	var out []doctree.Mark
	if s.href != "" {
		out = append(out, doctree.LinkMark(s.href))
	}
	for m, v := range s.on {
		if v {
			out = append(out, doctree.NewMark(m))
		}
	}
	for _, m := range extra {
		if !s.on[m] {
			out = append(out, doctree.NewMark(m))
		}
	}
	doctree.SortMarks(out)
	return out
}

// inlineScanner turns one line of markup into text runs and hard breaks.
type inlineScanner struct {
	rs  []rune
	buf strings.Builder
	out []*doctree.Node
}

// parseInline scans a single line. Unclosed phrase marks close at the end of
// the line.
func parseInline(line string) []*doctree.Node {
	if line == "" {
		return nil
	}
	s := &inlineScanner{rs: []rune(line)}
	active := markSet{on: map[doctree.MarkType]bool{}}
	s.scan(0, len(s.rs), active)
	return trimEdges(s.out)
}

// trimEdges removes the whitespace that empty spans such as {{}} leave at
// the ends of a line. Text carrying marks keeps its spaces.
func trimEdges(nodes []*doctree.Node) []*doctree.Node {
	for len(nodes) > 0 && nodes[0].Kind == doctree.KindText && len(nodes[0].Marks) == 0 {
		nodes[0].Text = strings.TrimLeftFunc(nodes[0].Text, unicode.IsSpace)
		if nodes[0].Text != "" {
			break
		}
		nodes = nodes[1:]
	}
	for n := len(nodes); n > 0 && nodes[n-1].Kind == doctree.KindText && len(nodes[n-1].Marks) == 0; n = len(nodes) {
		nodes[n-1].Text = strings.TrimRightFunc(nodes[n-1].Text, unicode.IsSpace)
		if nodes[n-1].Text != "" {
			break
		}
		nodes = nodes[:n-1]
	}
	return nodes
}

func (s *inlineScanner) at(i int) (rune, bool) {
	if i < 0 || i >= len(s.rs) {
		return 0, false
	}
	return s.rs[i], true
}

func (s *inlineScanner) flush(active markSet) {
	if s.buf.Len() == 0 {
		return
	}
	s.emit(s.buf.String(), active.marks())
	s.buf.Reset()
}

func (s *inlineScanner) emit(text string, marks []doctree.Mark) {
	if n := len(s.out); n > 0 {
		last := s.out[n-1]
		if last.Kind == doctree.KindText && sameMarks(last.Marks, marks) {
			last.Text += text
			return
		}
	}
	s.out = append(s.out, doctree.NewText(text, marks...))
}

func sameMarks(a, b []doctree.Mark) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type != b[i].Type || a[i].Href() != b[i].Href() {
			return false
		}
	}
	return true
}

// scan processes rs[start:end] with the given marks active. Mark changes
// made inside the range do not leak out of it.
func (s *inlineScanner) scan(start, end int, active markSet) {
	active = active.clone()
	i := start
	for i < end {
		c := s.rs[i]
		next, hasNext := s.at(i + 1)
		if i+1 >= end {
			hasNext = false
		}

		switch {
		case c == '\\' && hasNext && next == '\\':
			s.flush(active)
			s.out = append(s.out, doctree.New(doctree.KindHardBreak))
			i += 2
			continue

		case c == '\\' && hasNext && isPunct(next):
			s.buf.WriteRune(next)
			i += 2
			continue

		case c == '{' && hasNext && next == '{':
			closeAt := s.find(i+2, end, "}}")
			stop := closeAt + 2
			if closeAt < 0 {
				closeAt, stop = end, end
			}
			s.flush(active)
			if code := string(s.rs[i+2 : closeAt]); code != "" {
				s.emit(code, active.marks(doctree.MarkCode))
			}
			i = stop
			continue

		case c == '{' && i+2 < end && s.rs[i+2] == '}' && isDelimiter(next):
			// {*} toggles regardless of the surrounding characters.
			m := delimiters[next]
			s.flush(active)
			active.on[m] = !active.on[m]
			i += 3
			continue

		case c == '[':
			if n, ok := s.link(i, end, active); ok {
				i = n
				continue
			}

		case isDelimiter(c):
			if s.toggle(i, end, active) {
				i++
				continue
			}
		}

		s.buf.WriteRune(c)
		i++
	}
	s.flush(active)
}

// toggle opens or closes the phrase mark for the delimiter at i if its
// neighbours allow it.
func (s *inlineScanner) toggle(i, end int, active markSet) bool {
	c := s.rs[i]
	prev, hasPrev := s.at(i - 1)
	next, hasNext := s.at(i + 1)
	if i+1 >= end {
		hasNext = false
	}
	if c == '-' && ((hasPrev && prev == '-') || (hasNext && next == '-')) {
		return false
	}

	m := delimiters[c]
	switch {
	case active.on[m] && canClose(prev, hasPrev, next, hasNext):
		s.flush(active)
		active.on[m] = false
	case !active.on[m] && canOpen(prev, hasPrev, next, hasNext):
		s.flush(active)
		active.on[m] = true
	default:
		return false
	}
	return true
}

// link handles [text|url] and [url]. It returns the index after the closing
// bracket, or false when the bracket is literal. Separators inside a closed
// {{monospace}} span belong to the span.
func (s *inlineScanner) link(i, end int, active markSet) (int, bool) {
	closeAt := -1
	sep := -1
	for j := i + 1; j < end; j++ {
		if s.rs[j] == '{' && j+1 < end && s.rs[j+1] == '{' {
			if c := s.find(j+2, end, "}}"); c >= 0 {
				j = c + 1
				continue
			}
		}
		switch s.rs[j] {
		case '\\':
			j++
			continue
		case '|':
			if sep < 0 {
				sep = j
			}
			continue
		case ']':
			closeAt = j
		}
		if closeAt >= 0 {
			break
		}
	}
	if closeAt < 0 {
		return 0, false
	}

	textStart, textEnd := i+1, closeAt
	var href string
	if sep >= 0 {
		href = strings.TrimSpace(string(s.rs[sep+1 : closeAt]))
		textEnd = sep
	} else {
		href = strings.TrimSpace(string(s.rs[i+1 : closeAt]))
	}
	if href == "" {
		return 0, false
	}

	s.flush(active)
	inner := active.clone()
	inner.href = href
	if sep < 0 || strings.TrimSpace(string(s.rs[textStart:textEnd])) == "" {
		s.emit(href, inner.marks())
	} else {
		s.scan(textStart, textEnd, inner)
	}
	return closeAt + 1, true
}

// find returns the index of the first occurrence of pat in rs[from:end], or -1.
func (s *inlineScanner) find(from, end int, pat string) int {
	p := []rune(pat)
	for j := from; j+len(p) <= end; j++ {
		match := true
		for k := range p {
			if s.rs[j+k] != p[k] {
				match = false
				break
			}
		}
		if match {
			return j
		}
	}
	return -1
}

func isDelimiter(r rune) bool {
	_, ok := delimiters[r]
	return ok
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

const asciiPunct = "!\"#$%&'()*+,-./:;<=>?@[]^_`{|}~"

// isPunct reports whether r is ASCII punctuation other than backslash.
func isPunct(r rune) bool {
	return strings.ContainsRune(asciiPunct, r)
}

// canOpen: an opening delimiter follows a non-alphanumeric character (or the
// line start) and precedes a non-space character.
func canOpen(prev rune, hasPrev bool, next rune, hasNext bool) bool {
	return (!hasPrev || !isAlnum(prev)) && hasNext && !unicode.IsSpace(next)
}

// canClose: a closing delimiter follows a non-space character and precedes a
// non-alphanumeric character (or the line end).
func canClose(prev rune, hasPrev bool, next rune, hasNext bool) bool {
	return hasPrev && !unicode.IsSpace(prev) && (!hasNext || !isAlnum(next))
}
