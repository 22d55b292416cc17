// Package credentials verifies bearer credentials and resolves the caller's roles.
package credentials

import (
	"errors"
	"fmt"
)

// Public failure kinds. Their text is what callers see after "Authentication error - ".
var (
	// ErrMissingCredential is returned when the request carries no Authorization header
	ErrMissingCredential = errors.New("missing bearer token")

	// ErrMalformedCredential is returned when the Authorization header is not a bearer token
	ErrMalformedCredential = errors.New("malformed authorization header")

	// ErrInvalidToken is returned when the token is invalid
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrUnknownIdentity is returned when the token subject is not in the identity store
	ErrUnknownIdentity = errors.New("unknown user")

	// ErrIdentityDisabled is returned when the account exists but is disabled
	ErrIdentityDisabled = errors.New("user is disabled")

	// ErrIdentityUnavailable is returned when the identity store cannot be reached
	ErrIdentityUnavailable = errors.New("identity store unavailable")

	// ErrVerificationTimeout is returned when verification exceeds its time bound
	ErrVerificationTimeout = errors.New("verification timed out")

	// ErrRequestCanceled is returned when the caller went away during verification
	ErrRequestCanceled = errors.New("request canceled")
)

// Internal causes, always wrapped under ErrInvalidToken.
var (
	// ErrInvalidIssuer is returned when the token issuer is invalid
	ErrInvalidIssuer = errors.New("invalid issuer")

	// ErrInvalidAudience is returned when the token audience is invalid
	ErrInvalidAudience = errors.New("invalid audience")

	// ErrJWKSFetchFailed is returned when JWKS fetching fails
	ErrJWKSFetchFailed = errors.New("failed to fetch JWKS")

	// ErrMissingClaim is returned when a required claim is missing
	ErrMissingClaim = errors.New("missing required claim")
)

// AuthError is the single error type returned by Verify. Kind is one of the public
// sentinels above; Err is the internal cause and must never reach the caller.
type AuthError struct {
	Kind error
	Err  error
}

func newAuthError(kind, cause error) *AuthError {
	return &AuthError{Kind: kind, Err: cause}
}

// Error implements the error interface
func (e *AuthError) Error() string {
	if e.Err == nil || e.Err == e.Kind {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As
func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// PublicReason is the short detail that may be shown to the caller
func (e *AuthError) PublicReason() string {
	return e.Kind.Error()
}

// AsAuthError converts any error into an *AuthError, classifying unknown errors as ErrInvalidToken
func AsAuthError(err error) *AuthError {
	if err == nil {
		return nil
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	if errors.Is(err, ErrTokenExpired) {
		return newAuthError(ErrTokenExpired, err)
	}
	return newAuthError(ErrInvalidToken, err)
}
