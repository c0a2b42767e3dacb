package doctree

import (
	"errors"
	"fmt"
)

// Code classifies conversion failures.
type Code string

const (
	CodeParseError          Code = "ParseError"
	CodeDepthExceeded       Code = "DepthExceeded"
	CodeSchemaViolation     Code = "SchemaViolation"
	CodeUnsupportedNodeKind Code = "UnsupportedNodeKind"
	CodeUnsupportedVersion  Code = "UnsupportedVersion"
	CodeInvalidJSON         Code = "InvalidJson"
	CodeInputTooLarge       Code = "InputTooLarge"
)

// ErrEmpty is returned by parsers for blank input. It is not a failure:
// callers should treat it as "nothing to convert yet".
var ErrEmpty = errors.New("empty document")

// Sentinels for errors.Is matching on a code.
var (
	ErrParse               = &Error{Code: CodeParseError}
	ErrDepthExceeded       = &Error{Code: CodeDepthExceeded}
	ErrSchemaViolation     = &Error{Code: CodeSchemaViolation}
	ErrUnsupportedNodeKind = &Error{Code: CodeUnsupportedNodeKind}
	ErrUnsupportedVersion  = &Error{Code: CodeUnsupportedVersion}
	ErrInvalidJSON         = &Error{Code: CodeInvalidJSON}
	ErrInputTooLarge       = &Error{Code: CodeInputTooLarge}
)

// Error is a typed conversion failure.
type Error struct {
	Code    Code   // failure class
	Path    string // location in the structured document, e.g. "$.content[0].attrs.level"
	Message string // human-readable cause
	Err     error  // underlying error, if any
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Path != "" {
		msg += " at " + e.Path
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so errors.Is(err, ErrSchemaViolation) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Errorf builds an *Error with a formatted message.
func Errorf(code Code, path, format string, args ...any) *Error {
	return &Error{Code: code, Path: path, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
