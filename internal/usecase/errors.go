package usecase

import "fmt"

type ErrorCode string

const (
	ErrorInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrorPayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrorPaymentRequired ErrorCode = "PAYMENT_REQUIRED"
	ErrorForbidden       ErrorCode = "FORBIDDEN"
	ErrorNotConfigured   ErrorCode = "NOT_CONFIGURED"
	ErrorUpstream        ErrorCode = "UPSTREAM_ERROR"
	ErrorInternal        ErrorCode = "INTERNAL_ERROR"
)

// Error is returned by every service in this package. Message is safe to
// show to the caller; Details carries upstream diagnostic text when there is
// any.
type Error struct {
	Code    ErrorCode
	Reason  string
	Message string
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason, message string, err error) *Error {
	return &Error{Code: code, Reason: reason, Message: message, Err: err}
}

func (e *Error) withDetails(details string) *Error {
	e.Details = details
	return e
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// upstreamBodier is implemented by upstream HTTP errors that keep the raw
// response body.
type upstreamBodier interface {
	UpstreamBody() string
}

type providerMessager interface {
	ProviderMessage() string
}
