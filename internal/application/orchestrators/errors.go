package orchestrators

import "errors"

// InvalidInputError marks a failure caused by the caller's data rather than
// by storage, so transports can report it as a client error.
type InvalidInputError struct {
	Err error
}

// Error implements the error interface.
func (e *InvalidInputError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the validation failure.
func (e *InvalidInputError) Unwrap() error {
	return e.Err
}

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return &InvalidInputError{Err: err}
}

// IsInvalidInput returns true if err, or anything it wraps, is an InvalidInputError.
func IsInvalidInput(err error) bool {
	var ie *InvalidInputError
	return errors.As(err, &ie)
}
