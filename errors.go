package bus

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrNoHandlerFound matches NoHandlerFoundError.
	ErrNoHandlerFound = errors.New("no handler found")
	// ErrMultipleHandlerFound matches MultipleHandlerFoundError.
	ErrMultipleHandlerFound = errors.New("multiple handlers found")
	// ErrRegistrySealed is returned when registering into a sealed registry.
	ErrRegistrySealed = errors.New("registry is sealed")
	// ErrNilMessage is returned when a nil message is dispatched.
	ErrNilMessage = errors.New("message is nil")
	// ErrStreamConsumed is yielded when a result stream is iterated twice.
	ErrStreamConsumed = errors.New("stream already consumed")
	// ErrResultType is returned when a handler result cannot be converted to
	// the type requested by the caller.
	ErrResultType = errors.New("unexpected result type")
)

// NoHandlerFoundError reports that no descriptor, or no handler of the
// required execution mode, exists for a message type. It is a wiring
// mistake and never retried.
type NoHandlerFoundError struct {
	MessageType reflect.Type
	Mode        ExecutionMode // zero when discovery found no descriptor
}

func (e *NoHandlerFoundError) Error() string {
	if e.Mode == 0 {
		return fmt.Sprintf("bus: no handler found for %s", e.MessageType)
	}
	return fmt.Sprintf("bus: no %s handler found for %s", e.Mode, e.MessageType)
}

// Is reports whether target is ErrNoHandlerFound.
func (e *NoHandlerFoundError) Is(target error) bool { return target == ErrNoHandlerFound }

// MultipleHandlerFoundError reports more than one handler of the required
// execution mode for a single-handler strategy.
type MultipleHandlerFoundError struct {
	MessageType reflect.Type
	Mode        ExecutionMode
	Count       int
}

func (e *MultipleHandlerFoundError) Error() string {
	return fmt.Sprintf("bus: %d %s handlers found for %s, expected one", e.Count, e.Mode, e.MessageType)
}

// Is reports whether target is ErrMultipleHandlerFound.
func (e *MultipleHandlerFoundError) Is(target error) bool { return target == ErrMultipleHandlerFound }

// IsConfigurationError reports whether err is rooted in a registration
// mistake rather than a handler failure.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrNoHandlerFound) || errors.Is(err, ErrMultipleHandlerFound)
}

// ValidationError wraps the error returned by a message's Validate method.
type ValidationError struct {
	err error
}

func (e *ValidationError) Error() string { return "bus: validate message: " + e.err.Error() }
func (e *ValidationError) Unwrap() error { return e.err }

// ErrorHookError reports that an error hook failed while handling a
// pipeline failure. Both errors are reachable with errors.Is and errors.As.
type ErrorHookError struct {
	Hook  reflect.Type
	Err   error
	Cause error
}

func (e *ErrorHookError) Error() string {
	return fmt.Sprintf("bus: error hook %s: %v (handling: %v)", e.Hook, e.Err, e.Cause)
}

func (e *ErrorHookError) Unwrap() []error { return []error{e.Err, e.Cause} }
