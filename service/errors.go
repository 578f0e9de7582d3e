package service

import (
	"fmt"
	"net/http"
)

// Error is a domain error carrying the HTTP status code it renders as.
// Codes in the 400-499 range are rendered as {"status": <message>} with the
// same numeric status; 404 always renders the fixed {"status":"not found"}.
type Error struct {
	// Code is the HTTP status code to return.
	Code int

	// Message is the textual status rendered to the caller.
	Message string
}

// Error returns the error message.
func (e *Error) Error() string {
	return e.Message
}

// NotFound reports a domain lookup miss.
func NotFound(format string, args ...any) *Error {
	return &Error{Code: http.StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

// BadRequest reports a missing or invalid request body or parameter.
func BadRequest(format string, args ...any) *Error {
	return &Error{Code: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// Forbidden reports a permission check failure.
func Forbidden(format string, args ...any) *Error {
	return &Error{Code: http.StatusForbidden, Message: fmt.Sprintf(format, args...)}
}

// MethodNotAllowed reports an operation disabled for the target entity.
func MethodNotAllowed(format string, args ...any) *Error {
	return &Error{Code: http.StatusMethodNotAllowed, Message: fmt.Sprintf(format, args...)}
}
