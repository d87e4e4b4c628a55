package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	// ErrConnectivity means the container runtime could not be reached.
	ErrConnectivity = errors.New("container runtime unreachable")

	// ErrConflict means a resource that must be unique already exists.
	ErrConflict = errors.New("already exists")

	// ErrAbsent means the target resource does not exist or is not running.
	ErrAbsent = errors.New("not found")

	// ErrPortInUse means a caller-supplied host port is already bound.
	ErrPortInUse = errors.New("port already in use")

	// ErrInvalid means the caller passed options that can never succeed.
	ErrInvalid = errors.New("invalid argument")
)

// Error carries one of the error kinds above together with the operation
// and resource it happened on.
type Error struct {
	Kind     error
	Op       string
	Resource string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Resource != "" {
		msg = fmt.Sprintf("%s %s: %s", e.Op, e.Resource, msg)
	} else if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Connectivity wraps a failure to reach the runtime.
func Connectivity(op string, err error) *Error {
	return &Error{Kind: ErrConnectivity, Op: op, Message: "the container runtime did not respond", Err: err}
}

// Conflict reports that resource already exists.
func Conflict(op, resource, message string) *Error {
	return &Error{Kind: ErrConflict, Op: op, Resource: resource, Message: message}
}

// Absent reports that resource is missing or not running.
func Absent(op, resource, message string) *Error {
	return &Error{Kind: ErrAbsent, Op: op, Resource: resource, Message: message}
}

// PortInUse reports that a host port is already bound.
func PortInUse(port int) *Error {
	return &Error{Kind: ErrPortInUse, Op: "allocate", Resource: fmt.Sprintf("port %d", port)}
}

// Invalid reports unusable caller input.
func Invalid(op, message string) *Error {
	return &Error{Kind: ErrInvalid, Op: op, Message: message}
}
