package fleet

import (
	"errors"
	"fmt"
)

var ErrInvalidSelection = errors.New("invalid node selection")

// ConnectionError means the node could not be reached at all.
type ConnectionError struct {
	Pool string
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: connection failed: %v", e.Pool, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError means the node did not answer within the request timeout.
type TimeoutError struct {
	Pool string
	Addr string
	Err  error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s %s: request timed out: %v", e.Pool, e.Addr, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ProtocolError means the node answered, but not with a usable 2xx response.
type ProtocolError struct {
	Pool       string
	Addr       string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: protocol error: %v", e.Pool, e.Addr, e.Err)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Pool, e.Addr, e.StatusCode, e.Body)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsTransient reports whether another node may succeed where this one failed.
func IsTransient(err error) bool {
	var connErr *ConnectionError
	var timeoutErr *TimeoutError
	return errors.As(err, &connErr) || errors.As(err, &timeoutErr)
}
