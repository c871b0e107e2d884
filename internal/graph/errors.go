package graph

import "fmt"

// ConsistencyError reports a violated structural invariant, such as a method
// claim whose owner entity is missing from the same unit. It signals a bug in
// the extraction pipeline, never a property of user input.
type ConsistencyError struct {
	UnitID string
	Detail string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("graph consistency violation in unit %q: %s", e.UnitID, e.Detail)
}

func consistencyErr(unitID, format string, args ...any) error {
	return &ConsistencyError{UnitID: unitID, Detail: fmt.Sprintf(format, args...)}
}
