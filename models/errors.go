package models

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyViews         = errors.New("no views to classify")
	ErrClassCountMismatch = errors.New("class count mismatch")
	ErrInvalidClassTable  = errors.New("invalid class table")
	ErrEmptyImage         = errors.New("image has no pixels")
)

// Kind classifies a ProcessingError for the HTTP and CLI layers.
type Kind int

const (
	KindInternal Kind = iota
	KindConfiguration
	KindInput
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindInput:
		return "input"
	case KindInvariant:
		return "invariant"
	default:
		return "internal"
	}
}

type ProcessingError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

func Configuration(message string, cause error) error {
	return &ProcessingError{Kind: KindConfiguration, Message: message, Cause: cause}
}

func Input(message string, cause error) error {
	return &ProcessingError{Kind: KindInput, Message: message, Cause: cause}
}

func Invariant(message string, cause error) error {
	return &ProcessingError{Kind: KindInvariant, Message: message, Cause: cause}
}

// KindOf returns the kind of the first ProcessingError in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}
