// api/schemas/errors.go
package schemas

import "fmt"

// ErrorKind classifies everything that can go wrong during an acquisition
// attempt. Only fatal kinds abort the state machine; the rest are recorded
// as diagnostics alongside a still-possible success.
type ErrorKind string

const (
	ErrKindConsentControlNotFound     ErrorKind = "consent_control_not_found"
	ErrKindConsentCookieNotConfirmed  ErrorKind = "consent_cookie_not_confirmed"
	ErrKindLoginFormNotFound          ErrorKind = "login_form_not_found"
	ErrKindIncompleteCredentials      ErrorKind = "incomplete_credentials"
	ErrKindCredentialStoreUnreachable ErrorKind = "credential_store_unreachable"
	ErrKindConsentEchoFailed          ErrorKind = "consent_echo_failed"
	ErrKindUnexpectedNavigationTarget ErrorKind = "unexpected_navigation_target"
	ErrKindDriverFailure              ErrorKind = "driver_failure"
	ErrKindUnknownProvider            ErrorKind = "unknown_provider"
)

// Fatal reports whether this kind aborts the attempt.
func (k ErrorKind) Fatal() bool {
	switch k {
	case ErrKindLoginFormNotFound,
		ErrKindIncompleteCredentials,
		ErrKindCredentialStoreUnreachable,
		ErrKindDriverFailure,
		ErrKindUnknownProvider:
		return true
	}
	return false
}

// ClientFault reports whether this kind is caused by the caller's input
// rather than a system failure. The HTTP layer maps these to 4xx.
func (k ErrorKind) ClientFault() bool {
	return k == ErrKindUnknownProvider || k == ErrKindIncompleteCredentials
}

// EngineError is a classified failure surfaced on an AcquisitionResult.
type EngineError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// NewEngineError builds an EngineError with a formatted message.
func NewEngineError(kind ErrorKind, format string, args ...interface{}) *EngineError {
	return &EngineError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}
