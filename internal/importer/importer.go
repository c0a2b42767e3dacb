// Package importer turns uploaded documents into document trees so they can
// be emitted as ADF or wiki markup.
package importer

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/wikiadf/internal/doctree"
)

// Importer converts raw document bytes into a document tree.
type Importer interface {
	Import(r io.Reader, filename string) (*doctree.Node, error)
}

// Options configures importers returned by ForFile.
type Options struct {
	MaxDepth          int  // 0 disables the depth check
	FallbackPdftotext bool // shell out to pdftotext when the PDF library fails
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
	".wiki":     true,
	".jira":     true,
	".json":     true,
}

// ForFile returns the appropriate importer for a filename.
func ForFile(filename string, opts Options) (Importer, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextImporter{}, nil
	case ".md", ".markdown":
		return &MarkdownImporter{}, nil
	case ".csv":
		return &CSVImporter{}, nil
	case ".html", ".htm":
		return &HTMLImporter{}, nil
	case ".pdf":
		return &PDFImporter{FallbackPdftotext: opts.FallbackPdftotext}, nil
	case ".docx":
		return &DOCXImporter{}, nil
	case ".wiki", ".jira":
		return &WikiImporter{MaxDepth: opts.MaxDepth}, nil
	case ".json":
		return &ADFImporter{MaxDepth: opts.MaxDepth}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// Import picks the importer for filename and returns a normalized, valid
// document. A document without blocks yields doctree.ErrEmpty.
func Import(r io.Reader, filename string, opts Options) (*doctree.Node, error) {
	imp, err := ForFile(filename, opts)
	if err != nil {
		return nil, err
	}
	doc, err := imp.Import(r, filename)
	if err != nil {
		return nil, err
	}
	return finish(doc, opts.MaxDepth)
}

func finish(doc *doctree.Node, maxDepth int) (*doctree.Node, error) {
	if doc == nil || len(doc.Content) == 0 {
		return nil, doctree.ErrEmpty
	}
	doc = doctree.Normalize(doc)
	if maxDepth > 0 {
		if d := doctree.Summarize(doc).Depth; d > maxDepth {
			return nil, doctree.Errorf(doctree.CodeDepthExceeded, doctree.RootPath, "document nests %d levels, limit is %d", d, maxDepth)
		}
	}
	if err := doctree.Validate(doc); err != nil {
		return nil, fmt.Errorf("imported document is invalid: %w", err)
	}
	return doc, nil
}
