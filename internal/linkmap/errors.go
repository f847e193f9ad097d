package linkmap

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingRegion is returned when one of the four region markers is absent or out of order.
	ErrMissingRegion = errors.New("missing region")
	// ErrMalformedSection is returned for a section row that is not "address size segment section".
	ErrMalformedSection = errors.New("malformed section row")
	// ErrMalformedObjectFile is returned for an object row without a valid "[index]" tag.
	ErrMalformedObjectFile = errors.New("malformed object file row")
	// ErrMalformedSymbolRow is returned for a symbol or dead-stripped row of the wrong shape.
	ErrMalformedSymbolRow = errors.New("malformed symbol row")
	// ErrUnknownObjectIndex is returned when a symbol refers to an object file that was not declared.
	ErrUnknownObjectIndex = errors.New("unknown object index")
	// ErrUnresolvedSection is returned when no section, or more than one, contains a symbol's address.
	ErrUnresolvedSection = errors.New("unresolved section")
)

// ParseError carries the position of a parse failure. Err is always one of the
// sentinels above.
type ParseError struct {
	Err     error
	Line    int // 1-based, 0 when the failure is not tied to a line
	Content string
	Detail  string
}

func (e *ParseError) Error() string {
	msg := e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Line > 0 {
		msg = fmt.Sprintf("line %d: %s: %q", e.Line, msg, e.Content)
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func lineError(err error, l line, format string, args ...any) *ParseError {
	return &ParseError{Err: err, Line: l.num, Content: l.text, Detail: fmt.Sprintf(format, args...)}
}
