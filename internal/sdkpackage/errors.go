package sdkpackage

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable: no override, no candidate and no sibling fallback worked.
	ErrSourceUnavailable = errors.New("no source available")
	// ErrTransport: a single candidate could not be retrieved.
	ErrTransport = errors.New("transport failure")
	// ErrStructureMismatch: the package root could not be located after extraction.
	ErrStructureMismatch = errors.New("could not locate package root")
	// ErrVerificationGap: an expected artifact is missing after installation.
	ErrVerificationGap = errors.New("verification gap")
)

// TransportError records why one candidate failed.
type TransportError struct {
	URL    string
	Status int // HTTP status, 0 for non-HTTP failures
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetching %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}
