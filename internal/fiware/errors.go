package fiware

import (
	"errors"
	"fmt"
)

// Domain errors for the fiware package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, fiware.ErrConflict) {
//	    // entity/device already provisioned
//	}
var (
	// ErrConflict is returned when a create call hits an already-provisioned
	// entity or device. The documented workaround is delete-then-recreate.
	ErrConflict = errors.New("fiware: already exists")

	// ErrNotFound is returned when the target does not exist. Delete calls
	// tolerate it internally; it propagates from any other operation.
	ErrNotFound = errors.New("fiware: not found")

	// ErrUnauthorized is returned when the token is missing, expired, or
	// rejected by the platform.
	ErrUnauthorized = errors.New("fiware: unauthorized")

	// ErrTransport is returned for network failures, timeouts, and 5xx
	// responses. Callers may treat it as a retryable transient failure.
	ErrTransport = errors.New("fiware: transport failure")

	// ErrNoToken is returned when a provisioning call is issued before
	// Authenticate has obtained a token.
	ErrNoToken = errors.New("fiware: not authenticated")
)

// StatusError is an unexpected HTTP response. It wraps one of the sentinel
// errors above so callers can classify it with errors.Is.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   string
	Err    error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Status, e.Body)
}

func (e *StatusError) Unwrap() error { return e.Err }

// classifyStatus maps an HTTP status code to the sentinel error family.
// NGSI v2 reports an existing entity as 422 "Already Exists"; the IoT-Agent
// uses a plain 409.
func classifyStatus(status int) error {
	switch {
	case status == 409 || status == 422:
		return ErrConflict
	case status == 404:
		return ErrNotFound
	case status == 401 || status == 403:
		return ErrUnauthorized
	default:
		return ErrTransport
	}
}
