package parser

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyTree is returned when the input produced no nodes at all. The
// kind name is part of the message: clients match on it in error events.
var ErrEmptyTree = errors.New("EmptyTree: input produced no nodes")

// ParseError represents malformed input at a specific byte position
type ParseError struct {
	Line    int    // The line number where the error occurred
	Column  int    // The column number where the error occurred
	Message string // The error message
	Context string // The line of text where the error occurred
}

// Error formats the parse error as a string with visual context
func (e *ParseError) Error() string {
	if e.Context == "" || e.Column < 1 || e.Column > len(e.Context)+1 {
		return fmt.Sprintf("MalformedInput: line %d: %s", e.Line, e.Message)
	}

	// Visual error indicator with an arrow pointing at the offending column
	pointer := strings.Repeat(" ", e.Column-1) + "^"

	return fmt.Sprintf("MalformedInput: line %d: %s\n%s\n%s",
		e.Line,
		e.Message,
		e.Context,
		pointer)
}

// NewParseError creates a new ParseError without context
func NewParseError(line int, format string, args ...interface{}) *ParseError {
	return &ParseError{
		Line:    line,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewDetailedParseError creates a ParseError with context information
func NewDetailedParseError(line, column int, context, format string, args ...interface{}) *ParseError {
	return &ParseError{
		Line:    line,
		Column:  column,
		Context: context,
		Message: fmt.Sprintf(format, args...),
	}
}

// contextLine extracts the source line for error reporting. Newick inputs
// are routinely a single multi-megabyte line, so the excerpt is capped.
func contextLine(input string, line int) string {
	lines := strings.Split(input, "\n")
	if line < 1 || line > len(lines) {
		return ""
	}
	s := lines[line-1]
	if len(s) > 80 {
		s = s[:77] + "..."
	}
	return s
}
