// Package common defines shared constants and sentinel errors used across
// the vidaccounts server layers. Callers should use errors.Is to match these
// values; derived errors wrap their parent so that, for example,
// errors.Is(ErrTokenExpired, ErrInvalidToken) holds.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrConflict   = errors.New("username or email already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal      = errors.New("internal error")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUpstreamFailure = errors.New("upstream unavailable")

	// Auth errors.
	ErrUnauthenticated    = errors.New("unauthorized request")
	ErrForbidden          = errors.New("invalid user credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenReuseDetected = errors.New("refresh token is expired or used")

	// Token lifecycle errors. All of them are invalid tokens.
	ErrTokenExpired        = fmt.Errorf("%w: token expired", ErrInvalidToken)
	ErrRefreshTokenExpired = fmt.Errorf("%w: refresh token expired, log in again", ErrInvalidToken)
	ErrSessionEnded        = fmt.Errorf("%w: no active session", ErrInvalidToken)
)

// InvalidArgument returns an ErrInvalidArgument carrying msg.
func InvalidArgument(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}

// Upstream wraps a persistence or media failure as ErrUpstreamFailure,
// keeping the original error in the chain.
func Upstream(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUpstreamFailure, op, err)
}

// IsDomainError reports whether err already belongs to the error taxonomy
// and can be handed to the transport layer unchanged.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrorNotFound, ErrConflict, ErrInvalidArgument, ErrUpstreamFailure,
		ErrUnauthenticated, ErrForbidden, ErrInvalidToken, ErrTokenReuseDetected,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
