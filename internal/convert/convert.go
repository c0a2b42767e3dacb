// Package convert runs markup and ADF conversions end to end.
package convert

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgallion1/wikiadf/internal/adf"
	"github.com/dgallion1/wikiadf/internal/doctree"
	"github.com/dgallion1/wikiadf/internal/wiki"
)

// Mode selects the conversion direction.
type Mode string

const (
	MarkupToStructured Mode = "wiki-to-adf"
	StructuredToMarkup Mode = "adf-to-wiki"
)

// ErrUnknownMode is returned for a mode that is neither direction.
var ErrUnknownMode = errors.New("unknown conversion mode")

// ParseMode accepts the wire names and a few short aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(MarkupToStructured), "wiki", "jwm-to-adf", "to-adf":
		return MarkupToStructured, nil
	case string(StructuredToMarkup), "adf", "adf-to-jwm", "to-wiki":
		return StructuredToMarkup, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Valid reports whether m is one of the two directions.
func (m Mode) Valid() bool {
	return m == MarkupToStructured || m == StructuredToMarkup
}

// Status is the outcome of a conversion.
type Status string

const (
	StatusOK    Status = "ok"
	StatusEmpty Status = "empty"
	StatusError Status = "error"
)

// Result holds a successful or empty conversion.
type Result struct {
	Status Status        `json:"status"`
	Mode   Mode          `json:"mode"`
	Target string        `json:"target,omitempty"`
	Tree   *doctree.Node `json:"-"`
	Stats  doctree.Stats `json:"stats"`
}

func (r Result) clone() Result {
	r.Tree = doctree.Clone(r.Tree)
	return r
}

// Error is a conversion failure as reported to callers.
type Error struct {
	Kind    doctree.Code `json:"kind"`
	Message string       `json:"message"`
	Path    string       `json:"path,omitempty"`
	Err     error        `json:"-"`
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s at %s: %s", e.Kind, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError maps any error to *Error. Errors without a code are reported as
// ParseError.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	var de *doctree.Error
	if errors.As(err, &de) {
		msg := de.Message
		if msg == "" && de.Err != nil {
			msg = de.Err.Error()
		}
		return &Error{Kind: de.Code, Message: msg, Path: de.Path, Err: err}
	}
	return &Error{Kind: doctree.CodeParseError, Message: err.Error(), Err: err}
}

// Options bounds the work a single conversion may do.
type Options struct {
	MaxDepth      int
	MaxInputBytes int
}

// Converter runs conversions. It is safe for concurrent use.
type Converter struct {
	opts  Options
	cache *Cache
}

// New returns a converter. cache may be nil.
func New(opts Options, cache *Cache) *Converter {
	return &Converter{opts: opts, cache: cache}
}

// Convert converts source in the given direction. Blank source yields a
// StatusEmpty result and no error. Failures are returned as *Error.
func (c *Converter) Convert(source string, mode Mode) (res Result, err error) {
	if !mode.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if strings.TrimSpace(source) == "" {
		return Result{Status: StatusEmpty, Mode: mode}, nil
	}
	if cached, ok := c.cache.Get(mode, source); ok {
		return cached, nil
	}

	defer func() {
		if r := recover(); r != nil {
			res = Result{Status: StatusError, Mode: mode}
			err = &Error{Kind: doctree.CodeParseError, Message: fmt.Sprintf("conversion failed: %v", r)}
		}
	}()

	var (
		tree   *doctree.Node
		target string
	)
	switch mode {
	case MarkupToStructured:
		tree, target, err = c.toStructured(source)
	case StructuredToMarkup:
		tree, target, err = c.toMarkup(source)
	}
	if errors.Is(err, doctree.ErrEmpty) {
		return Result{Status: StatusEmpty, Mode: mode}, nil
	}
	if err != nil {
		return Result{Status: StatusError, Mode: mode}, AsError(err)
	}

	res = Result{
		Status: StatusOK,
		Mode:   mode,
		Target: target,
		Tree:   tree,
		Stats:  doctree.Summarize(tree),
	}
	c.cache.Put(mode, source, res)
	return res, nil
}

func (c *Converter) toStructured(source string) (*doctree.Node, string, error) {
	p := wiki.Parser{MaxDepth: c.opts.MaxDepth, MaxInputBytes: c.opts.MaxInputBytes}
	tree, err := p.Parse(source)
	if err != nil {
		return nil, "", err
	}
	data, err := adf.Marshal(tree)
	if err != nil {
		return nil, "", err
	}
	return tree, string(data), nil
}

func (c *Converter) toMarkup(source string) (*doctree.Node, string, error) {
	if c.opts.MaxInputBytes > 0 && len(source) > c.opts.MaxInputBytes {
		return nil, "", doctree.Errorf(doctree.CodeInputTooLarge, "", "input is %d bytes, limit is %d", len(source), c.opts.MaxInputBytes)
	}
	v, err := adf.Unmarshal([]byte(source))
	if err != nil {
		return nil, "", err
	}
	d := adf.Decoder{MaxDepth: c.opts.MaxDepth}
	tree, err := d.Decode(v)
	if err != nil {
		return nil, "", err
	}
	text, err := wiki.Serialize(tree)
	if err != nil {
		return nil, "", err
	}
	return tree, text, nil
}

// Tree converts source to a document tree without producing the target
// text. It is used by previews.
func (c *Converter) Tree(source string, mode Mode) (*doctree.Node, error) {
	res, err := c.Convert(source, mode)
	if err != nil {
		return nil, err
	}
	return res.Tree, nil
}
