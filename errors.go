package login

import (
	"fmt"
	"net/http"
)

// Reason is a machine-readable code carried by every rejected login,
// connect or registration attempt.
type Reason string

// Reason codes
const (
	ReasonUnknownProvider          Reason = "unknown_provider"
	ReasonStateMismatch            Reason = "state_mismatch"
	ReasonProviderError            Reason = "provider_error"
	ReasonIdentityData             Reason = "identity_data_error"
	ReasonAccountAlreadyExists     Reason = "account_already_exists"
	ReasonAccountLinkConflict      Reason = "account_link_conflict"
	ReasonUnvettedAccount          Reason = "unvetted_account"
	ReasonSecurityViolation        Reason = "security_violation"
	ReasonTimeout                  Reason = "timeout"
	ReasonNoSuchAccount            Reason = "no_such_account"
	ReasonAccountNotVerified       Reason = "account_not_verified"
	ReasonAccountNotApproved       Reason = "account_not_approved"
	ReasonRegistrationNotSupported Reason = "registration_not_supported"
	ReasonRegistrationDisabled     Reason = "registration_disabled"
	ReasonIncompleteIdentity       Reason = "incomplete_identity"
	ReasonInvalidRequest           Reason = "invalid_request"
	ReasonServerError              Reason = "server_error"
)

// Error is the error type returned across the login core. Message is safe to
// show to end users; Err carries operator detail and is only logged.
type Error struct {
	Reason  Reason
	Message string
	Status  int
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Reason, so the sentinels below work
// with errors.Is regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

// NewError creates a new login error
func NewError(reason Reason, message string, status int, cause error) *Error {
	return &Error{
		Reason:  reason,
		Message: message,
		Status:  status,
		Err:     cause,
	}
}

// Sentinels for errors.Is matching
var (
	ErrUnknownProvider      = &Error{Reason: ReasonUnknownProvider}
	ErrStateMismatch        = &Error{Reason: ReasonStateMismatch}
	ErrProvider             = &Error{Reason: ReasonProviderError}
	ErrIdentityData         = &Error{Reason: ReasonIdentityData}
	ErrAccountAlreadyExists = &Error{Reason: ReasonAccountAlreadyExists}
	ErrAccountLinkConflict  = &Error{Reason: ReasonAccountLinkConflict}
	ErrUnvettedAccount      = &Error{Reason: ReasonUnvettedAccount}
	ErrSecurityViolation    = &Error{Reason: ReasonSecurityViolation}
	ErrTimeout              = &Error{Reason: ReasonTimeout}
)

// UnknownProvider is returned when a provider name is not configured.
func UnknownProvider(name string) *Error {
	return NewError(ReasonUnknownProvider,
		"The requested authorization provider could not be found",
		http.StatusNotFound,
		fmt.Errorf("provider %q is not configured", name))
}

// StateMismatch never says which check failed.
func StateMismatch(cause error) *Error {
	return NewError(ReasonStateMismatch,
		"Invalid state in communication with the authorization provider",
		http.StatusBadRequest,
		cause)
}

// ProviderFailure wraps a token exchange or resource-owner failure. The HTTP
// status and reason phrase of the provider response end up in the cause for
// operators; the message stays generic.
func ProviderFailure(operation string, status int, cause error) *Error {
	detail := cause
	if status != 0 {
		detail = fmt.Errorf("%s failed with status %d (%s): %w", operation, status, http.StatusText(status), cause)
	} else if cause != nil {
		detail = fmt.Errorf("%s failed: %w", operation, cause)
	}
	return NewError(ReasonProviderError,
		"Failed to get the access token or the user details from the authorization provider",
		http.StatusBadGateway,
		detail)
}

// IdentityDataFailure is returned when a resource-owner payload is unusable.
func IdentityDataFailure(detail string) *Error {
	return NewError(ReasonIdentityData,
		"Invalid user data received from the authorization provider",
		http.StatusBadGateway,
		fmt.Errorf("%s", detail))
}

// AccountAlreadyExists tells the user to link the account instead.
func AccountAlreadyExists(providerLabel string) *Error {
	return NewError(ReasonAccountAlreadyExists,
		fmt.Sprintf("Login denied. The email address or username already exists. To connect an existing user with %s, sign in and select Connect with %s on the account page", providerLabel, providerLabel),
		http.StatusConflict,
		nil)
}

// AccountLinkConflict is returned when the provider identity already belongs
// to another account.
func AccountLinkConflict() *Error {
	return NewError(ReasonAccountLinkConflict,
		"The identity received from the authorization provider cannot be connected to the requested user, because it is already used to sign in by another user",
		http.StatusConflict,
		nil)
}

// UnvettedAccount is returned when a connect targets an account that never
// signed in and has no linkage yet.
func UnvettedAccount() *Error {
	return NewError(ReasonUnvettedAccount,
		"The identity received from the authorization provider cannot be connected to the requested user, because the user has not signed in yet",
		http.StatusConflict,
		nil)
}

// SecurityViolation is returned for cross-user connect attempts.
func SecurityViolation() *Error {
	return NewError(ReasonSecurityViolation,
		"Failed security check: a user who is currently not signed in requested to connect an authorization provider",
		http.StatusForbidden,
		nil)
}

// Timeout is returned when a connect session expired.
func Timeout(providerLabel string) *Error {
	return NewError(ReasonTimeout,
		fmt.Sprintf("Timeout for connecting with authorization provider %s. Please restart connecting with the authorization provider", providerLabel),
		http.StatusRequestTimeout,
		nil)
}

// Rejected builds a plain rejection with a reason and message.
func Rejected(reason Reason, message string) *Error {
	return NewError(reason, message, http.StatusForbidden, nil)
}
