// Package services contains server-side business logic: the auth flows
// (login, refresh, logout, authentication, password change), account
// management and channel subscriptions.
package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/vidaccounts/internal/common"
)

// TokenPair bundles a short-lived access token and a long-lived refresh
// token together with their lifetimes.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

func storeContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// storeError passes taxonomy errors through and turns anything else
// (driver errors, deadlines) into ErrUpstreamFailure.
func storeError(op string, err error) error {
	if common.IsDomainError(err) {
		return err
	}
	return common.Upstream(op, err)
}

// withStore runs one bounded persistence call.
func withStore[T any](ctx context.Context, timeout time.Duration, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := storeContext(ctx, timeout)
	defer cancel()

	v, err := fn(ctx)
	if err != nil {
		var zero T
		return zero, storeError(op, err)
	}
	return v, nil
}

func withStoreErr(ctx context.Context, timeout time.Duration, op string, fn func(ctx context.Context) error) error {
	_, err := withStore(ctx, timeout, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
