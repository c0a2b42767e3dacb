package importer

import (
	"bufio"
	"io"
	"strings"

	"github.com/dgallion1/wikiadf/internal/doctree"
)

// TextImporter handles plain text files. Blank lines separate paragraphs;
// line breaks inside a paragraph are kept as hard breaks.
type TextImporter struct{}

func (p *TextImporter) Import(r io.Reader, filename string) (*doctree.Node, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var blocks []*doctree.Node
	var current []string

	flush := func() {
		if para := linesParagraph(current); para != nil {
			blocks = append(blocks, para)
		}
		current = nil
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return doctree.NewDoc(blocks...), nil
}
