// Package users stores account records, their single refresh token slot and
// the watch history kept beside each account.
package users

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/vidaccounts/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	// GetUserByLogin matches identifier against email when it looks like one
	// and against username otherwise.
	GetUserByLogin(ctx context.Context, identifier string) (*models.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)

	UpdateAccount(ctx context.Context, id, fullName, email string) (*models.User, error)
	UpdateAvatar(ctx context.Context, id, url string) (*models.User, error)
	UpdateCoverImage(ctx context.Context, id, url string) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error

	SetRefreshToken(ctx context.Context, id, token string) error
	GetRefreshToken(ctx context.Context, id string) (string, error)
	ClearRefreshToken(ctx context.Context, id string) error
	SwapRefreshToken(ctx context.Context, id, expected, next string) (bool, error)

	WatchHistory(ctx context.Context, id string) ([]models.WatchHistoryEntry, error)
	AppendWatchHistory(ctx context.Context, id, videoID string) error
}

// IsEmailLogin reports whether a login identifier names an email address.
// Usernames never contain '@', so the two namespaces cannot overlap.
func IsEmailLogin(identifier string) bool {
	return strings.Contains(identifier, "@")
}
