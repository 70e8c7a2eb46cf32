package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// PostgresErrorMessage describes database failures.
	PostgresErrorMessage = "database operation failed"
	// PostgresNotFoundMessage describes an empty result for a single-row lookup.
	PostgresNotFoundMessage = "record not found"
	// UpstreamErrorMessage describes a failed call to the model provider or a lookup service.
	UpstreamErrorMessage = "upstream call failed"
	// ConfigErrorMessage describes a missing or invalid server configuration.
	ConfigErrorMessage = "service is not configured"
	// BadRequestMessage describes a malformed client request.
	BadRequestMessage = "invalid request"
)

// Error wraps an underlying error with an HTTP status and safe message.
type Error struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error with the provided information.
func New(err error, status int, message string) *Error {
	return &Error{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Config reports a missing credential or setting detected at request entry.
func Config(err error) *Error {
	return New(err, http.StatusServiceUnavailable, ConfigErrorMessage)
}

// BadRequest reports a request the client must fix before retrying.
func BadRequest(err error) *Error {
	return New(err, http.StatusBadRequest, BadRequestMessage)
}

// Upstream reports a failed model or lookup call. Nil stays nil.
func Upstream(err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return New(err, http.StatusBadGateway, UpstreamErrorMessage)
}

// StatusOf returns the HTTP status carried by err, or 500 when err is not an *Error.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}
