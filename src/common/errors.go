package common

import (
	"errors"
	"fmt"
)

// ErrType identifies the kind of failure carried by a GridErr. The values are
// sent over the wire, so new types must be appended.
type ErrType uint32

const (
	// ConfigMissing indicates that required local configuration is absent.
	ConfigMissing ErrType = iota
	// NotFound indicates that the requested object or service does not exist.
	NotFound
	// PermissionDenied indicates that the request is not allowed.
	PermissionDenied
	// NoConnection indicates that there is no live connection to the target.
	NoConnection
	// PersistenceFailure indicates that durable state could not be written.
	PersistenceFailure
	// RemoteFailure is any other error raised by a remote object.
	RemoteFailure
)

// String ...
func (t ErrType) String() string {
	switch t {
	case ConfigMissing:
		return "Config Missing"
	case NotFound:
		return "Not Found"
	case PermissionDenied:
		return "Permission Denied"
	case NoConnection:
		return "No Connection"
	case PersistenceFailure:
		return "Persistence Failure"
	case RemoteFailure:
		return "Remote Failure"
	default:
		return "Unknown"
	}
}

// GridErr is the error type shared by all gridnode packages. Subject names the
// thing the error is about, such as a file, a service name, or a peer ID.
type GridErr struct {
	subject string
	errType ErrType
	msg     string
	cause   error
}

// NewGridErr ...
func NewGridErr(subject string, errType ErrType, msg string) GridErr {
	return GridErr{
		subject: subject,
		errType: errType,
		msg:     msg,
	}
}

// WrapGridErr returns a GridErr that wraps cause.
func WrapGridErr(subject string, errType ErrType, cause error) GridErr {
	return GridErr{
		subject: subject,
		errType: errType,
		cause:   cause,
	}
}

// Error ...
func (e GridErr) Error() string {
	detail := e.msg
	if e.cause != nil {
		if detail != "" {
			detail = fmt.Sprintf("%s: %v", detail, e.cause)
		} else {
			detail = e.cause.Error()
		}
	}

	if detail == "" {
		return fmt.Sprintf("%s, %s", e.subject, e.errType)
	}

	return fmt.Sprintf("%s, %s, %s", e.subject, e.errType, detail)
}

// Type returns the ErrType of the error.
func (e GridErr) Type() ErrType {
	return e.errType
}

// Subject ...
func (e GridErr) Subject() string {
	return e.subject
}

// Message returns the error text without the subject and type prefix. It is
// what travels over the wire next to the ErrType.
func (e GridErr) Message() string {
	if e.cause != nil {
		if e.msg != "" {
			return fmt.Sprintf("%s: %v", e.msg, e.cause)
		}
		return e.cause.Error()
	}
	return e.msg
}

// Unwrap ...
func (e GridErr) Unwrap() error {
	return e.cause
}

// Is checks that err, or any error it wraps, is a GridErr of type t.
func Is(err error, t ErrType) bool {
	var gridErr GridErr
	return errors.As(err, &gridErr) && gridErr.errType == t
}

// TypeOf returns the ErrType of err and true if err wraps a GridErr.
func TypeOf(err error) (ErrType, bool) {
	var gridErr GridErr
	if errors.As(err, &gridErr) {
		return gridErr.errType, true
	}
	return 0, false
}
