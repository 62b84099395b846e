package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/vidaccounts/internal/common"
	"github.com/dmitrijs2005/vidaccounts/internal/logging"
	"github.com/dmitrijs2005/vidaccounts/internal/server/auth"
	"github.com/dmitrijs2005/vidaccounts/internal/server/config"
	"github.com/dmitrijs2005/vidaccounts/internal/server/models"
	"github.com/dmitrijs2005/vidaccounts/internal/server/repositories/subscriptions"
	"github.com/dmitrijs2005/vidaccounts/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- users ---

type fakeUsersRepo struct {
	mu      sync.Mutex
	byID    map[string]*models.User
	history map[string][]models.WatchHistoryEntry
	videos  map[string]bool
	nextID  int

	err   error // returned by every call when set
	block bool  // wait for ctx to expire on reads

	tokenReads int // GetRefreshToken calls
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{
		byID:    map[string]*models.User{},
		history: map[string][]models.WatchHistoryEntry{},
		videos:  map[string]bool{},
	}
}

func (f *fakeUsersRepo) fail(ctx context.Context) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func (f *fakeUsersRepo) find(pred func(*models.User) bool) (*models.User, error) {
	for _, u := range f.byID {
		if pred(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if err := f.fail(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, other := range f.byID {
		if other.Username == u.Username || other.Email == u.Email {
			return nil, common.ErrConflict
		}
	}
	f.nextID++
	u.ID = fmt.Sprintf("u-%d", f.nextID)
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	f.byID[u.ID] = &cp
	return u, nil
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	if err := f.fail(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.find(func(u *models.User) bool { return u.ID == id })
}

func (f *fakeUsersRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if err := f.fail(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.find(func(u *models.User) bool { return u.Username == username })
}

func (f *fakeUsersRepo) GetUserByLogin(ctx context.Context, identifier string) (*models.User, error) {
	if err := f.fail(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if users.IsEmailLogin(identifier) {
		return f.find(func(u *models.User) bool { return u.Email == identifier })
	}
	return f.find(func(u *models.User) bool { return u.Username == identifier })
}

func (f *fakeUsersRepo) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	if err := f.fail(ctx); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.find(func(u *models.User) bool { return u.Username == username || u.Email == email })
	return err == nil, nil
}

func (f *fakeUsersRepo) update(ctx context.Context, id string, fn func(*models.User) error) (*models.User, error) {
	if err := f.fail(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if err := fn(u); err != nil {
		return nil, err
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsersRepo) UpdateAccount(ctx context.Context, id, fullName, email string) (*models.User, error) {
	return f.update(ctx, id, func(u *models.User) error {
		for _, other := range f.byID {
			if other.ID != id && other.Email == email {
				return common.ErrConflict
			}
		}
		u.FullName, u.Email = fullName, email
		return nil
	})
}

func (f *fakeUsersRepo) UpdateAvatar(ctx context.Context, id, url string) (*models.User, error) {
	return f.update(ctx, id, func(u *models.User) error { u.AvatarURL = url; return nil })
}

func (f *fakeUsersRepo) UpdateCoverImage(ctx context.Context, id, url string) (*models.User, error) {
	return f.update(ctx, id, func(u *models.User) error { u.CoverImageURL = url; return nil })
}

func (f *fakeUsersRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	_, err := f.update(ctx, id, func(u *models.User) error { u.PasswordHash = hash; return nil })
	return err
}

func (f *fakeUsersRepo) SetRefreshToken(ctx context.Context, id, token string) error {
	_, err := f.update(ctx, id, func(u *models.User) error { u.RefreshToken = token; return nil })
	return err
}

func (f *fakeUsersRepo) GetRefreshToken(ctx context.Context, id string) (string, error) {
	f.mu.Lock()
	f.tokenReads++
	f.mu.Unlock()

	u, err := f.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.RefreshToken, nil
}

func (f *fakeUsersRepo) ClearRefreshToken(ctx context.Context, id string) error {
	return f.SetRefreshToken(ctx, id, "")
}

func (f *fakeUsersRepo) SwapRefreshToken(ctx context.Context, id, expected, next string) (bool, error) {
	if err := f.fail(ctx); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok || u.RefreshToken != expected {
		return false, nil
	}
	u.RefreshToken = next
	return true, nil
}

func (f *fakeUsersRepo) WatchHistory(ctx context.Context, id string) ([]models.WatchHistoryEntry, error) {
	if err := f.fail(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.history[id]
	out := make([]models.WatchHistoryEntry, 0, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		out = append(out, h[i])
	}
	return out, nil
}

func (f *fakeUsersRepo) AppendWatchHistory(ctx context.Context, id, videoID string) error {
	if err := f.fail(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok || !f.videos[videoID] {
		return common.ErrorNotFound
	}
	f.history[id] = append(f.history[id], models.WatchHistoryEntry{VideoID: videoID, WatchedAt: time.Now()})
	return nil
}

// stored returns the persisted record, secrets included.
func (f *fakeUsersRepo) stored(id string) models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.byID[id]
}

// --- subscriptions ---

type fakeSubsRepo struct {
	mu   sync.Mutex
	subs map[[2]string]bool
	err  error
}

func newFakeSubsRepo() *fakeSubsRepo { return &fakeSubsRepo{subs: map[[2]string]bool{}} }

func (f *fakeSubsRepo) Toggle(_ context.Context, subscriberID, channelID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k := [2]string{subscriberID, channelID}
	if f.subs[k] {
		delete(f.subs, k)
		return false, nil
	}
	f.subs[k] = true
	return true, nil
}

func (f *fakeSubsRepo) count(match func(k [2]string) bool) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k := range f.subs {
		if match(k) {
			n++
		}
	}
	return n, nil
}

func (f *fakeSubsRepo) CountSubscribers(_ context.Context, channelID string) (int64, error) {
	return f.count(func(k [2]string) bool { return k[1] == channelID })
}

func (f *fakeSubsRepo) CountSubscribedTo(_ context.Context, subscriberID string) (int64, error) {
	return f.count(func(k [2]string) bool { return k[0] == subscriberID })
}

func (f *fakeSubsRepo) IsSubscribed(_ context.Context, subscriberID, channelID string) (bool, error) {
	n, err := f.count(func(k [2]string) bool { return k == [2]string{subscriberID, channelID} })
	return n > 0, err
}

// --- manager & media ---

type fakeRepoManager struct {
	u *fakeUsersRepo
	s *fakeSubsRepo
}

func (m *fakeRepoManager) Users() users.Repository                 { return m.u }
func (m *fakeRepoManager) Subscriptions() subscriptions.Repository { return m.s }
func (m *fakeRepoManager) RunMigrations(context.Context) error     { return nil }
func (m *fakeRepoManager) Close(context.Context) error             { return nil }

type fakeMedia struct {
	mu       sync.Mutex
	failFor  map[string]error
	uploaded []string
}

func (f *fakeMedia) Upload(_ context.Context, localPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[localPath]; ok {
		return "", err
	}
	f.uploaded = append(f.uploaded, localPath)
	return "https://cdn.test/" + filepath.Base(localPath), nil
}

// --- environment ---

var (
	testAccessSecret  = []byte("access-secret")
	testRefreshSecret = []byte("refresh-secret")
)

type testEnv struct {
	users    *fakeUsersRepo
	subs     *fakeSubsRepo
	media    *fakeMedia
	issuer   *auth.TokenIssuer
	svc      *UserService
	channels *ChannelService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	issuer, err := auth.NewTokenIssuer(auth.IssuerConfig{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	})
	require.NoError(t, err)

	passwords, err := auth.NewPasswords(auth.AlgorithmBcrypt, bcrypt.MinCost)
	require.NoError(t, err)

	env := &testEnv{
		users:  newFakeUsersRepo(),
		subs:   newFakeSubsRepo(),
		media:  &fakeMedia{failFor: map[string]error{}},
		issuer: issuer,
	}
	rm := &fakeRepoManager{u: env.users, s: env.subs}
	cfg := &config.Config{StoreTimeout: time.Second}
	env.svc = NewUserService(rm, issuer, passwords, env.media, cfg, logging.NopLogger{})
	env.channels = NewChannelService(rm, cfg, logging.NopLogger{})
	return env
}

// seedUser stores a user with the given password and returns its ID.
func (e *testEnv) seedUser(t *testing.T, username, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u, err := e.users.Create(context.Background(), &models.User{
		Username:     username,
		Email:        username + "@x.com",
		FullName:     username,
		AvatarURL:    "https://cdn.test/" + username + ".png",
		PasswordHash: string(hash),
	})
	require.NoError(t, err)
	return u.ID
}

func (f *fakeUsersRepo) sessionReads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenReads
}
