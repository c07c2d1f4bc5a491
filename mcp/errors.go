package mcp

import (
	"errors"
	"fmt"
)

// Domain errors recognized at the dispatch boundary. Handlers wrap these with
// context and the dispatcher maps them to the corresponding protocol codes.
var (
	// ErrToolNotFound indicates the named tool is not registered.
	ErrToolNotFound = errors.New("tool not found")
	// ErrToolDisabled indicates the tool exists but its enabled flag is false.
	ErrToolDisabled = errors.New("tool is disabled")
	// ErrResourceNotFound indicates no resource or template matches the URI.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrPromptNotFound indicates the named prompt is not registered.
	ErrPromptNotFound = errors.New("prompt not found")
	// ErrInvalidParams indicates arguments that fail structural validation.
	ErrInvalidParams = errors.New("invalid params")
	// ErrLoggingDisabled indicates logging/setLevel was called on a session
	// that does not advertise the logging capability.
	ErrLoggingDisabled = errors.New("logging is disabled")
	// ErrNotInitialized indicates a method was called before the
	// initialization handshake completed.
	ErrNotInitialized = errors.New("session not initialized")
	// ErrAlreadyInitialized indicates a second initialize call on a session
	// that is already ready.
	ErrAlreadyInitialized = errors.New("session already initialized")
	// ErrSessionClosed indicates an operation on a closed session.
	ErrSessionClosed = errors.New("session is closed")
)

// protocolError converts a handler error into the wire error object. Domain
// errors map to their dedicated codes; anything unrecognized becomes an
// internal error with the message passed through.
func protocolError(err error) *ProtocolError {
	var pe ProtocolError
	if errors.As(err, &pe) {
		return &pe
	}

	code := codeInternalError
	switch {
	case errors.Is(err, ErrToolNotFound):
		code = codeToolNotFound
	case errors.Is(err, ErrResourceNotFound):
		code = codeResourceNotFound
	case errors.Is(err, ErrPromptNotFound):
		code = codePromptNotFound
	case errors.Is(err, ErrToolDisabled):
		code = codeToolExecutionError
	case errors.Is(err, ErrInvalidParams):
		code = codeInvalidParams
	case errors.Is(err, ErrLoggingDisabled):
		// The capability is not advertised, so the method does not exist as
		// far as the client is concerned.
		code = codeMethodNotFound
	case errors.Is(err, ErrNotInitialized):
		code = codeNotInitialized
	case errors.Is(err, ErrAlreadyInitialized):
		code = codeAlreadyInitialized
	case errors.Is(err, ErrSessionClosed):
		code = codeInvalidRequest
	}

	return &ProtocolError{
		Code:    code,
		Message: err.Error(),
	}
}

func invalidParamsError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
}
