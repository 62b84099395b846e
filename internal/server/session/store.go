// Package session adapts the refresh token slot of a user record into the
// session operations used by the auth flows.
package session

import (
	"context"

	"github.com/dmitrijs2005/vidaccounts/internal/common"
)

// TokenSlots is the narrow view of a user record store that session needs.
// Every write touches only the refresh token field.
type TokenSlots interface {
	SetRefreshToken(ctx context.Context, userID, token string) error
	GetRefreshToken(ctx context.Context, userID string) (string, error)
	ClearRefreshToken(ctx context.Context, userID string) error
	// SwapRefreshToken replaces expected with next atomically and reports
	// whether the stored value matched.
	SwapRefreshToken(ctx context.Context, userID, expected, next string) (bool, error)
}

type Store struct {
	slots TokenSlots
}

func NewStore(slots TokenSlots) *Store {
	return &Store{slots: slots}
}

// SetCurrent overwrites whatever session the user had.
func (s *Store) SetCurrent(ctx context.Context, userID, token string) error {
	return s.slots.SetRefreshToken(ctx, userID, token)
}

// Current returns the stored refresh token; ok is false when there is no
// active session.
func (s *Store) Current(ctx context.Context, userID string) (string, bool, error) {
	token, err := s.slots.GetRefreshToken(ctx, userID)
	if err != nil {
		return "", false, err
	}
	return token, token != "", nil
}

// Clear ends the session. Clearing an absent session is not an error.
func (s *Store) Clear(ctx context.Context, userID string) error {
	return s.slots.ClearRefreshToken(ctx, userID)
}

// Rotate replaces presented with next only if presented is still the stored
// token. Otherwise it returns common.ErrTokenReuseDetected and leaves the
// stored value alone.
func (s *Store) Rotate(ctx context.Context, userID, presented, next string) error {
	if presented == "" {
		return common.ErrTokenReuseDetected
	}
	swapped, err := s.slots.SwapRefreshToken(ctx, userID, presented, next)
	if err != nil {
		return err
	}
	if !swapped {
		return common.ErrTokenReuseDetected
	}
	return nil
}
