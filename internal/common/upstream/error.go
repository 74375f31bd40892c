package upstream

import (
	"errors"
	"fmt"
)

const (
	Provider = "provider"
	Store    = "store"
	SMS      = "sms"
)

var ErrUpstream = errors.New("upstream call failed")

// Error describes a failed call to one of the external services. Either Err
// is set (transport failure, timeout, malformed response) or StatusCode and
// Body carry the rejected response.
type Error struct {
	Err        error
	Service    string
	Body       string
	StatusCode int
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d: %v", e.Service, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.StatusCode, e.Body)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrUpstream
}

// Wrap marks err as a failure of service unless it already is an upstream
// error.
func Wrap(service string, err error) error {
	if err == nil {
		return nil
	}
	var upstreamErr *Error
	if errors.As(err, &upstreamErr) {
		return err
	}
	return &Error{Service: service, Err: err}
}

// IsRejection reports whether err carries a non-2xx answer from the service,
// as opposed to a transport failure where the outcome is unknown.
func IsRejection(err error) bool {
	var upstreamErr *Error
	if !errors.As(err, &upstreamErr) {
		return false
	}
	return upstreamErr.StatusCode != 0 && upstreamErr.Err == nil
}
