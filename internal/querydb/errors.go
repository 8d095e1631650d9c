package querydb

import (
	"errors"
	"strings"
)

// CycleError reports a query that transitively depended on itself. Callers
// resolve it with a fixed-value policy (the semantic layer substitutes an
// unresolved result and records an internal diagnostic); it is never fatal.
type CycleError struct {
	Path []Key
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, k := range e.Path {
		parts[i] = k.String()
	}
	return "querydb: dependency cycle: " + strings.Join(parts, " -> ")
}

// IsCycle reports whether err is (or wraps) a cycle error.
func IsCycle(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}

// NoInputError reports a read of an input that was removed or never set.
// For file inputs this is the normal outcome after a file is closed.
type NoInputError struct {
	Key Key
}

func (e *NoInputError) Error() string {
	return "querydb: no input for " + e.Key.String()
}

// IsNoInput reports whether err is (or wraps) a missing-input error.
func IsNoInput(err error) bool {
	var ne *NoInputError
	return errors.As(err, &ne)
}
