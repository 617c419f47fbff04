package tracker

import (
	"errors"
	"fmt"
)

// Structural violations are detected synchronously at definition or
// construction time and abort the operation before any linking happens.
// Runtime transition guards are deliberately not errors; ineligible nodes
// are skipped silently and reflected in returned counts.
var (
	ErrInvalidDefinition = errors.New("invalid task definition")
	ErrDuplicateName     = errors.New("duplicate task name")
	ErrCyclicHierarchy   = errors.New("cyclic task hierarchy")
	ErrInvalidParent     = errors.New("invalid parent")
	ErrMismatchedRevival = errors.New("mismatched revival")
)

func invalidDefinitionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDefinition, fmt.Sprintf(format, args...))
}
