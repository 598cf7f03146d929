package tools

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind tags a tool failure so nodes can decide between retry, fallback
// and the error path without parsing message text.
type ErrorKind string

const (
	ErrValidation          ErrorKind = "validation_error"
	ErrUpstreamUnavailable ErrorKind = "upstream_unavailable"
	ErrTool                ErrorKind = "tool_error"
	ErrParse               ErrorKind = "parse_error"
	ErrTimeout             ErrorKind = "timeout"
	ErrInternal            ErrorKind = "internal_error"
)

// Error is the explicit error channel of every tool adapter. Adapters return
// it instead of propagating transport errors, so nodes stay free of transport
// concerns.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError creates a tagged tool error.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// wrapTransportError classifies a transport-level failure into timeout or
// upstream-unavailable.
func wrapTransportError(upstream string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrTimeout, "%s request timed out: %v", upstream, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(ErrTimeout, "%s request timed out: %v", upstream, err)
	}
	return NewError(ErrUpstreamUnavailable, "%s not available: %v", upstream, err)
}
