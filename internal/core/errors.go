package core

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure. The HTTP layer maps each kind to a
// status code in one place.
type Kind int

const (
	// KindUnhandled is any failure that does not fit another kind.
	KindUnhandled Kind = iota
	// KindValidation means the client input was malformed.
	KindValidation
	// KindConfiguration means the server is missing storage settings.
	KindConfiguration
	// KindSynthesis means the TTS engine failed.
	KindSynthesis
	// KindPublish means the object storage upload failed.
	KindPublish
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfiguration:
		return "configuration"
	case KindSynthesis:
		return "synthesis"
	case KindPublish:
		return "publish"
	case KindUnhandled:
		return "unhandled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a classified pipeline error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error returns the message of the wrapped error. Op is kept out of the
// message because it is echoed to clients.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String() + " error"
	}

	return e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError classifies err under kind. A nil err yields nil.
func NewError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}

	return &Error{Kind: kind, Op: op, Err: err}
}

// Validationf builds a validation error from a format string.
func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: "validate", Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindUnhandled when there is none.
func KindOf(err error) Kind {
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Kind
	}

	return KindUnhandled
}
