package idp

import (
	"errors"
	"net/http"
)

// Kind classifies authentication failures. Client kinds map to 4xx statuses
// with a message safe to show the caller; infrastructure kinds map to 500
// and keep their detail in the server log.
type Kind int

const (
	// KindMissingField is a login form missing a required field.
	KindMissingField Kind = iota
	// KindInvalidCredentials is a credential mismatch.
	KindInvalidCredentials
	// KindMalformedRequest is an undecodable or incomplete AuthnRequest.
	KindMalformedRequest
	// KindMissingAttribute is a profile lacking a non-optional schema
	// attribute. The profile and schema both come from deployment
	// configuration, so the caller cannot correct this.
	KindMissingAttribute
	// KindReplayedRequest is an AuthnRequest ID seen before.
	KindReplayedRequest
	// KindMissingConfiguration is required server configuration left unset.
	KindMissingConfiguration
	// KindAssetUnavailable is a deployment asset that could not be loaded.
	KindAssetUnavailable
	// KindSigningFailure is a failure producing the XML signature.
	KindSigningFailure
)

// Error is a classified authentication failure.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus maps the error kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindMissingField, KindMalformedRequest, KindReplayedRequest:
		return http.StatusBadRequest
	case KindInvalidCredentials:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// ClientMessage is the message shown to the caller. Infrastructure errors
// collapse to a generic message so internal detail never leaves the server.
func (e *Error) ClientMessage() string {
	if e.HTTPStatus() == http.StatusInternalServerError {
		return "Internal server error"
	}
	return e.Message
}

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// AsError extracts a classified *Error, wrapping unknown errors as
// infrastructure failures.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newError(KindSigningFailure, "Internal server error", err)
}
