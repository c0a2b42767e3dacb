package convert

import "github.com/dgallion1/wikiadf/internal/doctree"

// Session holds the state of one interactive conversion: the selected mode,
// the latest source and the outcome of converting it. A Session is not safe
// for concurrent use.
type Session struct {
	conv   *Converter
	mode   Mode
	source string
	result Result
	err    *Error
}

// NewSession starts an empty session in mode.
func NewSession(conv *Converter, mode Mode) *Session {
	return &Session{conv: conv, mode: mode}
}

// Mode returns the current direction.
func (s *Session) Mode() Mode { return s.mode }

// Source returns the last source passed to Update.
func (s *Session) Source() string { return s.source }

// SetMode switches direction. Changing the mode discards the source, the
// target, the tree and any error.
func (s *Session) SetMode(m Mode) {
	if m == s.mode {
		return
	}
	*s = Session{conv: s.conv, mode: m}
}

// Update converts source and keeps the outcome. On failure the target and
// tree are cleared and the error is kept.
func (s *Session) Update(source string) (Result, error) {
	s.source = source
	res, err := s.conv.Convert(source, s.mode)
	if err != nil {
		s.result = Result{Status: StatusError, Mode: s.mode}
		s.err = AsError(err)
		return s.result, s.err
	}
	s.result = res
	s.err = nil
	return res, nil
}

// Target returns the converted text, empty when there is none.
func (s *Session) Target() string { return s.result.Target }

// Status returns the outcome of the last Update.
func (s *Session) Status() Status { return s.result.Status }

// Err returns the last failure, or nil.
func (s *Session) Err() *Error { return s.err }

// Preview returns the document tree of the last successful conversion, or
// nil when the source was empty or failed.
func (s *Session) Preview() *doctree.Node { return s.result.Tree }
