package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess     Code = 0
	CodeInternal    Code = 1
	CodeUsage       Code = 2
	CodeAuth        Code = 10
	CodeRateLimited Code = 11
	CodeUnavailable Code = 12
	CodeUnsupported Code = 13
	CodeRejected    Code = 14
	CodeSigner      Code = 15
	CodeStore       Code = 16
)

// Error is a typed error that carries a stable error code. Status holds the
// HTTP status of the remote response, 0 when no response was received.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Status  int
	Remote  string
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Remote != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Remote)
	}
	if e.Cause == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// HTTP builds an error for a well-formed remote response with a non-2xx status.
func HTTP(code Code, status int, remote string) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf("remote returned status %d", status),
		Status:  status,
		Remote:  remote,
	}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// StatusOf returns the HTTP status carried by err, 0 if none.
func StatusOf(err error) int {
	if e, ok := As(err); ok {
		return e.Status
	}
	return 0
}

// RemoteMessage prefers the remote error text over the local message.
func RemoteMessage(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok && e.Remote != "" {
		return e.Remote
	}
	return err.Error()
}

func IsCode(err error, code Code) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if cliErr, ok := As(err); ok {
		return int(cliErr.Code)
	}
	return int(CodeInternal)
}
