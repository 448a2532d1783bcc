package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy for the session gateway
var (
	// Token errors
	ErrMalformedToken     = errors.New("malformed token")
	ErrSignatureInvalid   = errors.New("token signature invalid")
	ErrTokenExpired       = errors.New("token expired")
	ErrSessionInvalidated = errors.New("session invalidated")
	ErrUnauthenticated    = errors.New("unauthenticated")

	// Tenant errors
	ErrTenantNotFound        = errors.New("tenant not found")
	ErrTenantAccessForbidden = errors.New("clients aren't allowed to access root app")

	// Credential exchange errors
	ErrProviderUnknown          = errors.New("unknown identity provider")
	ErrCredentialExchangeFailed = errors.New("credential exchange failed")
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrMalformedCredential      = errors.New("malformed credential")

	// Account errors
	ErrAccountInactive = errors.New("account inactive")
	ErrAccountNotFound = errors.New("account not found")

	// General errors
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrNotFound         = errors.New("not found")
	ErrInvalidRequest   = errors.New("invalid request")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Mark joins a sentinel onto err so that errors.Is matches both the sentinel
// and the original cause.
func Mark(err, sentinel error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
