package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("document not found")
	ErrUnknownTemplate   = errors.New("unknown template kind")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrRefreshInProgress = errors.New("refresh already in progress")
	ErrInvalidFrequency  = errors.New("invalid refresh frequency")
	ErrRefreshNotDue     = errors.New("document is not due for refresh")
)

// GenerationError reports a failed call to the generation service.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation %s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
