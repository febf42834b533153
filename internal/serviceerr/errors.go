package serviceerr

import "errors"

type Code string

// RFC6749 Authorization errors, as returned on the callback by the provider.
const (
	CodeInvalidRequest          Code = "invalid_request"
	CodeUnauthorizedClient      Code = "unauthorized_client"
	CodeAccessDenied            Code = "access_denied"
	CodeUnsupportedResponseType Code = "unsupported_response_type"
	CodeInvalidScope            Code = "invalid_scope"
	CodeServerError             Code = "server_error"
	CodeTemporarilyUnavailable  Code = "temporarily_unavailable"
)

// RFC6749 Token errors
const (
	CodeInvalidClient        Code = "invalid_client"
	CodeInvalidGrant         Code = "invalid_grant"
	CodeUnsupportedGrantType Code = "unsupported_grant_type"
)

// Login flow codes
const (
	CodeDiscovery             Code = "discovery_error"
	CodeMissingProof          Code = "missing_proof"
	CodeMissingCallbackParams Code = "missing_callback_params"
	CodeInvalidState          Code = "invalid_state"
	CodeTokenExchange         Code = "token_exchange_error"
	CodeTransport             Code = "transport_error"
)

// Custom codes
const (
	CodeUnknown  Code = "unknown"
	CodeNotFound Code = "not_found"
)

type Error struct {
	Err         Code
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Err)
	}

	return string(e.Err) + ": " + e.Description
}

// Is matches any *Error carrying the same code, so that provider errors built
// from a callback compare equal to the predefined values.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}

	return e == t || (t.Description == "" && e.Err == t.Err)
}

// FromOAuth builds an error from the error and error_description parameters
// an authorization server sends back instead of a code.
func FromOAuth(code, description string) *Error {
	if code == "" {
		code = string(CodeUnknown)
	}

	return &Error{Err: Code(code), Description: description}
}

// RFC6749 Authorization errors
var (
	ErrInvalidRequest          = &Error{Err: CodeInvalidRequest}
	ErrUnauthorizedClient      = &Error{Err: CodeUnauthorizedClient}
	ErrAccessDenied            = &Error{Err: CodeAccessDenied}
	ErrUnsupportedResponseType = &Error{Err: CodeUnsupportedResponseType}
	ErrInvalidScope            = &Error{Err: CodeInvalidScope}
	ErrServerError             = &Error{Err: CodeServerError}
	ErrTemporarilyUnavailable  = &Error{Err: CodeTemporarilyUnavailable}
)

// RFC6749 Token errors
var (
	ErrInvalidClient        = &Error{Err: CodeInvalidClient}
	ErrInvalidGrant         = &Error{Err: CodeInvalidGrant}
	ErrUnsupportedGrantType = &Error{Err: CodeUnsupportedGrantType}
)

// Login flow errors
var (
	ErrDiscovery             = &Error{Err: CodeDiscovery, Description: "fetching the provider metadata failed"}
	ErrMissingProof          = &Error{Err: CodeMissingProof, Description: "no persisted login proof, restart the login"}
	ErrMissingCallbackParams = &Error{Err: CodeMissingCallbackParams, Description: "callback is missing code or state"}
	ErrInvalidState          = &Error{Err: CodeInvalidState, Description: "callback state does not match"}
	ErrTokenExchange         = &Error{Err: CodeTokenExchange, Description: "exchanging the authorization code failed"}
	ErrTransport             = &Error{Err: CodeTransport, Description: "request failed after retries"}
)

// Custom errors
var (
	ErrNotFound = &Error{Err: CodeNotFound, Description: "not found"}
)
