package contract

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks every error caused by the caller's request
var ErrInvalidInput = errors.New("invalid input")

const (
	missingCommandFields = "Missing required fields: type, contractAddress, or functionName"
	missingClaimFields   = "Missing required fields: contractAddress, longitudes, latitudes, time_started, time_ended, demanded_tokens, or ipfs_hashes"
)

// InputError is reported to the client verbatim with status 400
type InputError struct {
	Message string
	Err     error
}

func (e *InputError) Error() string {
	return e.Message
}

func (e *InputError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidInput}
	}
	return []error{ErrInvalidInput, e.Err}
}

func invalidf(format string, args ...interface{}) error {
	return &InputError{Message: fmt.Sprintf(format, args...)}
}

func invalidWrap(err error) error {
	return &InputError{Message: err.Error(), Err: err}
}
