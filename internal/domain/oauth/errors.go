package oauth

import "errors"

var (
	// ErrProviderNotFound signals a provider that is unknown or not configured.
	ErrProviderNotFound = errors.New("oauth: provider not found")
	// ErrInvalidRequest indicates caller input validation errors.
	ErrInvalidRequest = errors.New("oauth: invalid request")
	// ErrInvalidState indicates a missing, blank, or mismatched state nonce.
	ErrInvalidState = errors.New("oauth: invalid state")
	// ErrMissingCode indicates the provider callback carried no authorization code.
	ErrMissingCode = errors.New("oauth: missing code")
	// ErrTransactionNotFound indicates the state nonce matched no live transaction.
	ErrTransactionNotFound = errors.New("oauth: transaction not found")
	// ErrMembershipRequired indicates a connect attempt by a user outside the target scope.
	ErrMembershipRequired = errors.New("oauth: membership required")
	// ErrTokenInvalid indicates the provider returned no usable token or identity.
	ErrTokenInvalid = errors.New("oauth: token invalid")
)

// ErrorCode maps a coordinator error onto the short code placed in the
// rejection redirect query string.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrMissingCode):
		return "missing_code"
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrTransactionNotFound):
		return "invalid_state"
	case errors.Is(err, ErrMembershipRequired):
		return "membership_required"
	case errors.Is(err, ErrProviderNotFound):
		return "provider_not_configured"
	case errors.Is(err, ErrTokenInvalid):
		return "token_invalid"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return "server_error"
	}
}
