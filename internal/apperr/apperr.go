// Package apperr defines the closed error taxonomy surfaced at the API
// boundary. Every internal failure is mapped into one of these kinds before
// crossing the HTTP boundary; raw detail is logged but only exposed through
// the Details field.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind enumerates the classifications a caller can observe.
type Kind int

const (
	KindServer Kind = iota
	KindUnauthorized
	KindValidation
	KindPaymentRequired
	KindExternalService
	KindTimeout
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string
	// Field names the offending field for validation errors.
	Field string
	// Required and Available carry the credit shortfall for payment errors.
	Required  int64
	Available int64
	// Details holds internal debug detail, never the primary message.
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the classification to its response status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindPaymentRequired:
		return http.StatusPaymentRequired
	case KindExternalService:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Unauthorized reports a missing or malformed caller identity.
func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

// Validation reports a request field outside its declared domain. Validation
// failures are terminal; a malformed request cannot become valid by retrying.
func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: msg}
}

// PaymentRequired reports an insufficient credit balance with the exact
// shortfall so the caller can decide whether to top up.
func PaymentRequired(required, available int64) *Error {
	return &Error{
		Kind:      KindPaymentRequired,
		Message:   fmt.Sprintf("insufficient credits: %d required, %d available", required, available),
		Required:  required,
		Available: available,
	}
}

// ExternalService reports a terminal failure from the prediction service.
func ExternalService(detail string, err error) *Error {
	return &Error{Kind: KindExternalService, Message: "generation failed", Details: detail, Err: err}
}

// Timeout reports an exhausted polling budget. It is distinct from
// ExternalService: the external job may still complete later.
func Timeout(msg string) *Error {
	return &Error{Kind: KindTimeout, Message: msg}
}

// Server wraps an unexpected internal failure.
func Server(err error) *Error {
	return &Error{Kind: KindServer, Message: "internal server error", Err: err}
}

// Classify coerces an arbitrary error into the taxonomy. Errors that already
// carry a classification pass through unchanged; everything else is a server
// error.
func Classify(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Server(err)
}
