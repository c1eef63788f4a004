package realtime

import (
	"errors"
	"fmt"
)

// ErrSessionClosed is returned by Send after Close.
var ErrSessionClosed = errors.New("realtime session closed")

// ServerError is reported by the server through an error event.
type ServerError struct {
	Type    string
	Code    string
	Message string
	EventID string
}

func (e *ServerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("realtime server error (%s/%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("realtime server error (%s): %s", e.Type, e.Message)
}

var _ error = (*ServerError)(nil)

// NewServerError converts the error carried by ev. It falls back to a generic
// message when the event has no error payload.
func NewServerError(ev ServerEvent) *ServerError {
	if ev.Error == nil {
		return &ServerError{Type: "unknown", Message: "server sent an error event without details", EventID: ev.EventID}
	}
	return &ServerError{
		Type:    ev.Error.Type,
		Code:    ev.Error.Code,
		Message: ev.Error.Message,
		EventID: ev.Error.EventID,
	}
}

// ConnectionError is returned when the WebSocket handshake fails.
// StatusCode is zero when no HTTP response was received.
type ConnectionError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to connect to %s (HTTP %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("failed to connect to %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

var _ error = (*ConnectionError)(nil)
