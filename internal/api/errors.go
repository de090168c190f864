package api

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth is returned by Login when the backend rejects the credentials.
	ErrAuth = errors.New("authorization failed: invalid credentials")
	// ErrSessionVerify is returned by Me when the backend rejects a token.
	ErrSessionVerify = errors.New("session verification failed")
)

// NetworkError reports a request that never produced an HTTP response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError reports a non-success response or a body that could not be
// decoded. Message carries the backend's "message" field when present.
type ServerError struct {
	Op      string
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: server status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: server status %d", e.Op, e.Status)
}

// Message extracts a user-facing message from err, or fallback.
func Message(err error, fallback string) string {
	var se *ServerError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return fallback
}
