package captcha

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotConfigured means the integration has no keys. The field is
	// hidden from the form, never failed.
	ErrNotConfigured = errors.New("captcha: integration is not configured")

	ErrMissingField  = errors.New("captcha: missing field")
	ErrInvalidFormat = errors.New("captcha: field has invalid format")

	// ErrProviderUnreachable wraps transport and decode failures from an
	// external verification endpoint. A network outage must not look
	// identical to "user failed the CAPTCHA" in the logs.
	ErrProviderUnreachable = errors.New("captcha: provider verification endpoint unreachable")
)

func NewError(verb, publicReason string, privateReason error) *Error {
	return &Error{
		Verb:          verb,
		PublicReason:  publicReason,
		PrivateReason: privateReason,
		StatusCode:    http.StatusForbidden,
	}
}

// Error carries a public reason (a localization message ID safe to show the
// submitter) separately from the private reason that goes to the logs.
type Error struct {
	PrivateReason error
	Verb          string
	PublicReason  string
	StatusCode    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("captcha: error when processing verification: %s: %v", e.Verb, e.PrivateReason)
}

func (e *Error) Unwrap() error {
	return e.PrivateReason
}
