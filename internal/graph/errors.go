package graph

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("node not found")
	ErrAlreadyExists = errors.New("node already exists")
	ErrRootOperation = errors.New("operation not permitted on the root node")
	ErrUnsupported   = errors.New("command not supported")
	ErrReadOnly      = errors.New("repository is read-only")
	ErrInvalidTarget = errors.New("invalid target location")
)

// PathNotFoundError reports a missing node together with the lowest
// ancestor that does exist, so callers can resume population from there.
type PathNotFoundError struct {
	Path           Path
	LowestExisting Path
}

func (e *PathNotFoundError) Error() string {
	return fmt.Sprintf("node not found at %s (lowest existing ancestor %s)", e.Path, e.LowestExisting)
}

// Is makes PathNotFoundError match ErrNotFound.
func (e *PathNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NotFound builds a PathNotFoundError.
func NotFound(p, lowestExisting Path) error {
	return &PathNotFoundError{Path: p, LowestExisting: lowestExisting}
}
