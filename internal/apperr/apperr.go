// Package apperr defines the error taxonomy shared by the ingestion pipeline
// and the read API, and the JSON payload errors are rendered as.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the coarse error class that decides the HTTP status.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindBadRequest
	KindUnprocessableEntity
)

// Error codes identifying where a failure originated.
const (
	CodeFetch     = "FETCH_ERROR"
	CodeDecode    = "XML_DECODE_ERROR"
	CodeDatabase  = "DATABASE_ERROR"
	CodeScheduler = "SCHEDULER_ERROR"
	CodePublish   = "PUBLISH_ERROR"
	CodeCache     = "CACHE_ERROR"
	CodeIO        = "IO_ERROR"
	CodeNotFound  = "NOT_FOUND"
	CodeDefault   = "ERROR"
)

// DefaultIdentifier is used when an error was never tagged with an operation.
const DefaultIdentifier = "UNIMPLEMENTED"

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnprocessableEntity:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "Unauthorized"
	case KindForbidden:
		return "Forbidden"
	case KindNotFound:
		return "Not Found"
	case KindBadRequest:
		return "Bad Request"
	case KindUnprocessableEntity:
		return "Unprocessable Entity"
	default:
		return "Internal Server Error"
	}
}

// Error is a classified application error.
type Error struct {
	Kind       Kind
	Code       string
	Identifier string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s [%s/%s]: %s", e.Kind, e.Identifier, e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status code for the error.
func (e *Error) Status() int {
	return e.Kind.Status()
}

// Payload is the JSON body written for failed requests.
type Payload struct {
	Message    string `json:"message"`
	Status     int    `json:"status"`
	Identifier string `json:"identifier"`
	Code       string `json:"code"`
}

// Payload renders the error as its wire representation.
func (e *Error) Payload() Payload {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return Payload{
		Message:    msg,
		Status:     e.Status(),
		Identifier: e.Identifier,
		Code:       e.Code,
	}
}

// Internal wraps err as an InternalServerError tagged with code.
func Internal(identifier, code string, err error) *Error {
	return &Error{
		Kind:       KindInternal,
		Code:       code,
		Identifier: identifier,
		Err:        err,
	}
}

// NotFound builds a NotFound error with a fixed message.
func NotFound(identifier, message string) *Error {
	return &Error{
		Kind:       KindNotFound,
		Code:       CodeNotFound,
		Identifier: identifier,
		Message:    message,
	}
}

// From returns err as an *Error, classifying unknown errors as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(DefaultIdentifier, CodeDefault, err)
}

// CodeOf returns the code of a classified error, or CodeDefault.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeDefault
}
