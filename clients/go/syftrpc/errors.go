package syftrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies a failed request.
type Kind string

const (
	// KindValidation means required input was missing; no request was made.
	KindValidation Kind = "validation"
	// KindTransport means the request never produced a usable response.
	KindTransport Kind = "transport"
	// KindServer means the server answered with an error.
	KindServer Kind = "server"
	// KindTimeout means polling gave up while the operation may still be running.
	KindTimeout Kind = "timeout"
)

// RequestError is the uniform failure value returned by every network call.
type RequestError struct {
	Kind    Kind
	Status  int             // HTTP status, 0 when none was received
	Message string          // human-readable
	Detail  json.RawMessage // raw error payload, when the server sent one
	Err     error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s error (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// ValidationError builds a KindValidation error.
func ValidationError(message string) error {
	return &RequestError{Kind: KindValidation, Message: message}
}

func transportError(err error) error {
	return &RequestError{Kind: KindTransport, Message: err.Error(), Err: err}
}

// KindOf returns the Kind of err, or "" if err is not a RequestError.
func KindOf(err error) Kind {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// ErrValidation checks if an error is a validation failure.
func ErrValidation(err error) bool { return KindOf(err) == KindValidation }

// ErrTransport checks if an error is a transport failure.
func ErrTransport(err error) bool { return KindOf(err) == KindTransport }

// ErrServer checks if an error was reported by the server.
func ErrServer(err error) bool { return KindOf(err) == KindServer }

// ErrTimeout checks if an error is a poll timeout.
func ErrTimeout(err error) bool { return KindOf(err) == KindTimeout }
