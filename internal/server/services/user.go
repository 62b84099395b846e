package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/vidaccounts/internal/common"
	"github.com/dmitrijs2005/vidaccounts/internal/logging"
	"github.com/dmitrijs2005/vidaccounts/internal/server/auth"
	"github.com/dmitrijs2005/vidaccounts/internal/server/config"
	"github.com/dmitrijs2005/vidaccounts/internal/server/media"
	"github.com/dmitrijs2005/vidaccounts/internal/server/models"
	"github.com/dmitrijs2005/vidaccounts/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/vidaccounts/internal/server/repositories/users"
	"github.com/dmitrijs2005/vidaccounts/internal/server/session"
)

// UserService provides the account operations:
//   - Register, UpdateAccount, UpdateAvatar, UpdateCoverImage
//   - Login, Logout, RefreshToken, ChangePassword (auth.go)
//   - Authenticate, used by the transport to resolve the caller
//   - WatchHistory, AddToWatchHistory
type UserService struct {
	repomanager  repomanager.RepositoryManager
	sessions     *session.Store
	tokens       *auth.TokenIssuer
	passwords    *auth.Passwords
	media        media.Store
	log          logging.Logger
	storeTimeout time.Duration
}

// NewUserService wires the service to the repositories, the token issuer,
// the password hasher and the media host.
func NewUserService(m repomanager.RepositoryManager, tokens *auth.TokenIssuer, passwords *auth.Passwords,
	mediaStore media.Store, cfg *config.Config, log logging.Logger) *UserService {
	return &UserService{
		repomanager:  m,
		sessions:     session.NewStore(m.Users()),
		tokens:       tokens,
		passwords:    passwords,
		media:        mediaStore,
		log:          log.With("module", "users"),
		storeTimeout: cfg.StoreTimeout,
	}
}

type RegisterInput struct {
	FullName       string
	Username       string
	Email          string
	Password       string
	AvatarPath     string
	CoverImagePath string
}

// Register creates an account. The avatar is mandatory; a cover image that
// fails to upload is dropped rather than failing the registration.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.PublicUser, error) {
	fullName := strings.TrimSpace(in.FullName)
	username := normalizeIdentifier(in.Username)
	email := normalizeIdentifier(in.Email)
	if fullName == "" || username == "" || email == "" || strings.TrimSpace(in.Password) == "" {
		return nil, common.InvalidArgument("all fields are required")
	}
	if err := checkLoginNames(username, email); err != nil {
		return nil, err
	}
	if in.AvatarPath == "" {
		return nil, common.InvalidArgument("avatar file is required")
	}

	repo := s.repomanager.Users()
	exists, err := withStore(ctx, s.storeTimeout, "check user", func(ctx context.Context) (bool, error) {
		return repo.ExistsByUsernameOrEmail(ctx, username, email)
	})
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, common.ErrConflict
	}

	avatarURL, err := s.upload(ctx, in.AvatarPath)
	if err != nil {
		return nil, err
	}

	var coverURL string
	if in.CoverImagePath != "" {
		coverURL, err = s.upload(ctx, in.CoverImagePath)
		if err != nil {
			s.log.Warn(ctx, "cover image upload failed, continuing without it", "username", username, "error", err)
			coverURL = ""
		}
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, common.ErrorInternal
	}

	user := &models.User{
		Username:      username,
		Email:         email,
		FullName:      fullName,
		AvatarURL:     avatarURL,
		CoverImageURL: coverURL,
		PasswordHash:  hash,
	}
	created, err := withStore(ctx, s.storeTimeout, "create user", func(ctx context.Context) (*models.User, error) {
		return repo.Create(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "user registered", "user_id", created.ID)
	return created.Public(), nil
}

// UpdateAccount changes the full name and email.
func (s *UserService) UpdateAccount(ctx context.Context, userID, fullName, email string) (*models.PublicUser, error) {
	fullName = strings.TrimSpace(fullName)
	email = normalizeIdentifier(email)
	if fullName == "" || email == "" {
		return nil, common.InvalidArgument("all fields are required")
	}
	if !users.IsEmailLogin(email) {
		return nil, common.InvalidArgument("email must contain '@'")
	}

	repo := s.repomanager.Users()
	u, err := withStore(ctx, s.storeTimeout, "update account", func(ctx context.Context) (*models.User, error) {
		return repo.UpdateAccount(ctx, userID, fullName, email)
	})
	if err != nil {
		return nil, err
	}
	return u.Public(), nil
}

func (s *UserService) UpdateAvatar(ctx context.Context, userID, localPath string) (*models.PublicUser, error) {
	if localPath == "" {
		return nil, common.InvalidArgument("avatar file is missing")
	}
	url, err := s.upload(ctx, localPath)
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Users()
	u, err := withStore(ctx, s.storeTimeout, "update avatar", func(ctx context.Context) (*models.User, error) {
		return repo.UpdateAvatar(ctx, userID, url)
	})
	if err != nil {
		return nil, err
	}
	return u.Public(), nil
}

func (s *UserService) UpdateCoverImage(ctx context.Context, userID, localPath string) (*models.PublicUser, error) {
	if localPath == "" {
		return nil, common.InvalidArgument("cover image file is missing")
	}
	url, err := s.upload(ctx, localPath)
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Users()
	u, err := withStore(ctx, s.storeTimeout, "update cover image", func(ctx context.Context) (*models.User, error) {
		return repo.UpdateCoverImage(ctx, userID, url)
	})
	if err != nil {
		return nil, err
	}
	return u.Public(), nil
}

// WatchHistory lists the watched videos, newest first.
func (s *UserService) WatchHistory(ctx context.Context, userID string) ([]models.WatchHistoryEntry, error) {
	repo := s.repomanager.Users()
	return withStore(ctx, s.storeTimeout, "watch history", func(ctx context.Context) ([]models.WatchHistoryEntry, error) {
		return repo.WatchHistory(ctx, userID)
	})
}

func (s *UserService) AddToWatchHistory(ctx context.Context, userID, videoID string) error {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return common.InvalidArgument("video id is required")
	}
	repo := s.repomanager.Users()
	return withStoreErr(ctx, s.storeTimeout, "append watch history", func(ctx context.Context) error {
		return repo.AppendWatchHistory(ctx, userID, videoID)
	})
}

func (s *UserService) upload(ctx context.Context, localPath string) (string, error) {
	url, err := s.media.Upload(ctx, localPath)
	if err != nil {
		if errors.Is(err, media.ErrNoFile) || common.IsDomainError(err) {
			return "", err
		}
		return "", common.Upstream("media upload", err)
	}
	return url, nil
}

// checkLoginNames keeps usernames and emails apart so a login identifier
// can only ever name one account.
func checkLoginNames(username, email string) error {
	if users.IsEmailLogin(username) {
		return common.InvalidArgument("username must not contain '@'")
	}
	if !users.IsEmailLogin(email) {
		return common.InvalidArgument("email must contain '@'")
	}
	return nil
}

func normalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
