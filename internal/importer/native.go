package importer

import (
	"fmt"
	"io"

	"github.com/dgallion1/wikiadf/internal/adf"
	"github.com/dgallion1/wikiadf/internal/doctree"
	"github.com/dgallion1/wikiadf/internal/wiki"
)

// WikiImporter reads Jira wiki markup files.
type WikiImporter struct {
	MaxDepth int
}

func (p *WikiImporter) Import(r io.Reader, filename string) (*doctree.Node, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	parser := wiki.Parser{MaxDepth: p.MaxDepth}
	return parser.Parse(string(src))
}

// ADFImporter reads ADF JSON documents.
type ADFImporter struct {
	MaxDepth int
}

func (p *ADFImporter) Import(r io.Reader, filename string) (*doctree.Node, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if !adf.Detect(src) {
		return nil, fmt.Errorf("%s is not an ADF document", filename)
	}
	v, err := adf.Unmarshal(src)
	if err != nil {
		return nil, err
	}
	d := adf.Decoder{MaxDepth: p.MaxDepth}
	return d.Decode(v)
}
