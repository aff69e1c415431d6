package syntax

import "fmt"

// ParseError reports source that the grammar could not parse.
type ParseError struct {
	Path   string
	Line   int // 1-based
	Column int // 1-based, in bytes
	Kind   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s:%d:%d: unexpected %s", e.Path, e.Line, e.Column, e.Kind)
}
