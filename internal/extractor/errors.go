package extractor

import "fmt"

// ParseError reports a malformed source unit. Extraction is all-or-nothing:
// a unit that fails to parse contributes nothing to the graph.
type ParseError struct {
	UnitID string
	Line   int
	Column int
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s at %d:%d: %s", e.UnitID, e.Line, e.Column, e.Detail)
}
