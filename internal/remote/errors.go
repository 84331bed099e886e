package remote

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested experiment or component does not
// exist on the CDN. Callers distinguish it from transport failures so a
// missing config can fall back silently.
var ErrNotFound = errors.New("remote: not found")

// TransportError wraps a network-level failure or a server error status.
type TransportError struct {
	URL   string
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("remote: request %s failed: %v", e.URL, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// DecodeError wraps a payload that arrived but could not be validated or
// decoded. Never retried.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("remote: decode payload: %v", e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}
