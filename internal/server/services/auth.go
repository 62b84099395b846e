package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/vidaccounts/internal/common"
	"github.com/dmitrijs2005/vidaccounts/internal/server/models"
)

// LoginResult is what a successful login hands back to the transport.
type LoginResult struct {
	User   *models.PublicUser
	Tokens *TokenPair
}

// Login verifies the password of the account named by identifier (username
// or email) and starts a new session, replacing any previous one.
func (s *UserService) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	identifier = normalizeIdentifier(identifier)
	if identifier == "" {
		return nil, common.InvalidArgument("username or email is required")
	}
	if password == "" {
		return nil, common.InvalidArgument("password is required")
	}

	repo := s.repomanager.Users()
	user, err := withStore(ctx, s.storeTimeout, "find user", func(ctx context.Context) (*models.User, error) {
		return repo.GetUserByLogin(ctx, identifier)
	})
	if err != nil {
		return nil, err
	}

	if !s.passwords.Verify(user.PasswordHash, password) {
		return nil, common.ErrForbidden
	}

	pair, err := s.generateTokenPair(user)
	if err != nil {
		return nil, err
	}

	if err := withStoreErr(ctx, s.storeTimeout, "start session", func(ctx context.Context) error {
		return s.sessions.SetCurrent(ctx, user.ID, pair.RefreshToken)
	}); err != nil {
		return nil, err
	}

	s.log.Info(ctx, "user logged in", "user_id", user.ID)
	return &LoginResult{User: user.Public(), Tokens: pair}, nil
}

// Logout ends the session of userID. Ending an absent session succeeds.
func (s *UserService) Logout(ctx context.Context, userID string) error {
	err := withStoreErr(ctx, s.storeTimeout, "end session", func(ctx context.Context) error {
		return s.sessions.Clear(ctx, userID)
	})
	if err != nil {
		return err
	}
	s.log.Info(ctx, "user logged out", "user_id", userID)
	return nil
}

// RefreshToken exchanges the presented refresh token for a new pair. The
// presented token must be the one currently stored for its user; each value
// can be exchanged at most once.
func (s *UserService) RefreshToken(ctx context.Context, presented string) (*TokenPair, error) {
	if presented == "" {
		return nil, common.ErrUnauthenticated
	}

	claims, err := s.tokens.ParseRefreshToken(presented)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, common.ErrRefreshTokenExpired
		}
		return nil, errInvalidRefreshToken
	}

	repo := s.repomanager.Users()
	user, err := withStore(ctx, s.storeTimeout, "find user", func(ctx context.Context) (*models.User, error) {
		return repo.GetByID(ctx, claims.UserID())
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, errInvalidRefreshToken
		}
		return nil, err
	}

	current, err := withStore(ctx, s.storeTimeout, "read session", func(ctx context.Context) (sessionSlot, error) {
		token, ok, err := s.sessions.Current(ctx, user.ID)
		return sessionSlot{token: token, active: ok}, err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, errInvalidRefreshToken
		}
		return nil, err
	}
	if !current.active {
		return nil, common.ErrSessionEnded
	}
	if subtle.ConstantTimeCompare([]byte(current.token), []byte(presented)) != 1 {
		s.log.Warn(ctx, "refresh token reuse detected", "user_id", user.ID)
		return nil, common.ErrTokenReuseDetected
	}

	pair, err := s.generateTokenPair(user)
	if err != nil {
		return nil, err
	}

	if err := withStoreErr(ctx, s.storeTimeout, "rotate session", func(ctx context.Context) error {
		return s.sessions.Rotate(ctx, user.ID, presented, pair.RefreshToken)
	}); err != nil {
		if errors.Is(err, common.ErrTokenReuseDetected) {
			s.log.Warn(ctx, "concurrent refresh lost rotation", "user_id", user.ID)
		}
		return nil, err
	}

	return pair, nil
}

// Authenticate resolves an access token to the user it was issued for.
// It never writes.
func (s *UserService) Authenticate(ctx context.Context, accessToken string) (*models.PublicUser, error) {
	if accessToken == "" {
		return nil, common.ErrUnauthenticated
	}

	claims, err := s.tokens.ParseAccessToken(accessToken)
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Users()
	user, err := withStore(ctx, s.storeTimeout, "find user", func(ctx context.Context) (*models.User, error) {
		return repo.GetByID(ctx, claims.UserID())
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, err
	}
	return user.Public(), nil
}

// ChangePassword replaces the password after checking the current one. The
// active session is left as is.
func (s *UserService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return common.InvalidArgument("new password is required")
	}

	repo := s.repomanager.Users()
	user, err := withStore(ctx, s.storeTimeout, "find user", func(ctx context.Context) (*models.User, error) {
		return repo.GetByID(ctx, userID)
	})
	if err != nil {
		return err
	}

	if !s.passwords.Verify(user.PasswordHash, oldPassword) {
		return common.ErrForbidden
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return common.ErrorInternal
	}

	if err := withStoreErr(ctx, s.storeTimeout, "update password", func(ctx context.Context) error {
		return repo.UpdatePasswordHash(ctx, userID, hash)
	}); err != nil {
		return err
	}

	s.log.Info(ctx, "password changed", "user_id", userID)
	return nil
}

type sessionSlot struct {
	token  string
	active bool
}

var errInvalidRefreshToken = fmt.Errorf("%w: invalid refresh token", common.ErrInvalidToken)

func (s *UserService) generateTokenPair(user *models.User) (*TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := s.tokens.IssueRefreshToken(user)
	if err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		AccessTTL:    s.tokens.AccessTTL(),
		RefreshTTL:   s.tokens.RefreshTTL(),
	}, nil
}
