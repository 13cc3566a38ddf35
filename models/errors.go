package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMessageProperty is returned when a Message is built with missing or invalid data, callback or priority.
	// The specific property error is wrapped alongside it, check for either with errors.Is.
	ErrInvalidMessageProperty = errors.New("invalid message property")

	// ErrInvalidData is returned when message data is absent or can't be copied.
	ErrInvalidData = errors.New("invalid message data")

	// ErrInvalidCallback is returned when a message callback is absent.
	ErrInvalidCallback = errors.New("invalid message callback")

	// ErrInvalidPriority is returned when a message priority is outside the accepted range.
	ErrInvalidPriority = errors.New("invalid message priority")

	// ErrInvalidTunnelID is returned when an empty tunnel id is assigned.
	ErrInvalidTunnelID = errors.New("invalid tunnel id")

	// ErrDuplicateTunnel is returned when a tunnel id is already registered.
	ErrDuplicateTunnel = errors.New("tunnel with id already exists")

	// ErrTunnelNotFound is returned when a tunnel lookup misses.
	ErrTunnelNotFound = errors.New("not able to find the tunnel")

	// ErrNoMatchingTunnel is returned when no conditional tunnel matched a routed message.
	ErrNoMatchingTunnel = errors.New("no matching tunnel found")

	// ErrEmptyTunnel is returned when polling a tunnel with no queued messages.
	ErrEmptyTunnel = errors.New("tunnel is empty")

	// ErrNoMessageFound is returned when no queued message has the requested id.
	ErrNoMessageFound = errors.New("cannot find message with given message id")

	// ErrUndefinedMessage is returned when a nil message is added to a tunnel.
	ErrUndefinedMessage = errors.New("cannot add undefined values in tunnel")

	// ErrMissingRequiredProperty is returned when a message reaches a tunnel without its data or callback.
	ErrMissingRequiredProperty = errors.New("required property not found")

	// ErrCurrentlyProcessing is returned when a worker is asked to process while it already is.
	ErrCurrentlyProcessing = errors.New("worker is currently processing")

	// ErrTransformAlreadyBound is returned on a second attempt to bind a tunnel transform.
	ErrTransformAlreadyBound = errors.New("transform already bound for tunnel")

	// ErrTransformNotBound is returned when a worker processes a tunnel that has no transform yet.
	ErrTransformNotBound = errors.New("no transform bound for tunnel")

	// ErrMissingMatcher is returned when a conditional tunnel is built without a match function.
	ErrMissingMatcher = errors.New("conditional tunnel requires a match function")

	// ErrMissingAutoCreateTransform is returned when auto-create is enabled without a transform.
	ErrMissingAutoCreateTransform = errors.New("cannot auto create tunnels without a transform function")

	// ErrWorkerDisposed is returned when a disposed worker is asked to process.
	ErrWorkerDisposed = errors.New("worker has been disposed")

	// ErrFunctionNotRegistered is returned when a config references a transform, pre-transform or matcher by an unknown name.
	ErrFunctionNotRegistered = errors.New("function is not registered")

	// ErrServiceShutdown is returned when the service is shutting down.
	ErrServiceShutdown = errors.New("service is shutting down")
)

// ProcessingError scopes a failed transform or callback to the single message it was processing.
type ProcessingError struct {
	MessageID string
	TunnelID  string
	Err       error
}

// NewProcessingError creates a new ProcessingError.
func NewProcessingError(messageID, tunnelID string, err error) *ProcessingError {

	return &ProcessingError{
		MessageID: messageID,
		TunnelID:  tunnelID,
		Err:       err,
	}
}

// Error allows you to quickly log the ProcessingError struct as a string.
func (pe *ProcessingError) Error() string {
	return fmt.Sprintf("[MessageID: %s] [TunnelID: %s] processing failed: %s", pe.MessageID, pe.TunnelID, pe.Err)
}

func (pe *ProcessingError) Unwrap() error {
	return pe.Err
}

func invalidProperty(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidMessageProperty, err)
}
