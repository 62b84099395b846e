package users

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/vidaccounts/internal/common"
	"github.com/dmitrijs2005/vidaccounts/internal/server/models"
	"github.com/google/uuid"
)

// Video is the part of a video record the watch history needs.
type Video struct {
	ID           string
	Title        string
	VideoURL     string
	ThumbnailURL string
	Duration     float64
	OwnerID      string
}

type watched struct {
	videoID string
	at      time.Time
}

// MemoryRepository keeps accounts in process memory. A single mutex makes
// every method, SwapRefreshToken included, atomic.
type MemoryRepository struct {
	mu      sync.RWMutex
	users   map[string]*models.User
	videos  map[string]Video
	history map[string][]watched
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:   map[string]*models.User{},
		videos:  map[string]Video{},
		history: map[string][]watched{},
		now:     time.Now,
	}
}

// AddVideo registers a video so it can be appended to watch histories.
func (r *MemoryRepository) AddVideo(v Video) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.videos[v.ID] = v
}

// Exists reports whether an account with id is stored.
func (r *MemoryRepository) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[id]
	return ok
}

func (r *MemoryRepository) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username || u.Email == user.Email {
			return nil, common.ErrConflict
		}
	}
	user.ID = uuid.NewString()
	user.CreatedAt = r.now()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	r.users[user.ID] = &cp
	return user, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	return r.findOne(func(u *models.User) bool { return u.ID == id })
}

func (r *MemoryRepository) GetByUsername(_ context.Context, username string) (*models.User, error) {
	return r.findOne(func(u *models.User) bool { return u.Username == username })
}

func (r *MemoryRepository) GetUserByLogin(_ context.Context, identifier string) (*models.User, error) {
	if IsEmailLogin(identifier) {
		return r.findOne(func(u *models.User) bool { return u.Email == identifier })
	}
	return r.findOne(func(u *models.User) bool { return u.Username == identifier })
}

func (r *MemoryRepository) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	_, err := r.findOne(func(u *models.User) bool { return u.Username == username || u.Email == email })
	return err == nil, nil
}

func (r *MemoryRepository) UpdateAccount(_ context.Context, id, fullName, email string) (*models.User, error) {
	return r.update(id, func(u *models.User) error {
		for _, other := range r.users {
			if other.ID != id && other.Email == email {
				return common.ErrConflict
			}
		}
		u.FullName = fullName
		u.Email = email
		u.UpdatedAt = r.now()
		return nil
	})
}

func (r *MemoryRepository) UpdateAvatar(_ context.Context, id, url string) (*models.User, error) {
	return r.update(id, func(u *models.User) error {
		u.AvatarURL = url
		u.UpdatedAt = r.now()
		return nil
	})
}

func (r *MemoryRepository) UpdateCoverImage(_ context.Context, id, url string) (*models.User, error) {
	return r.update(id, func(u *models.User) error {
		u.CoverImageURL = url
		u.UpdatedAt = r.now()
		return nil
	})
}

func (r *MemoryRepository) UpdatePasswordHash(_ context.Context, id, hash string) error {
	_, err := r.update(id, func(u *models.User) error {
		u.PasswordHash = hash
		u.UpdatedAt = r.now()
		return nil
	})
	return err
}

func (r *MemoryRepository) SetRefreshToken(_ context.Context, id, token string) error {
	_, err := r.update(id, func(u *models.User) error {
		u.RefreshToken = token
		return nil
	})
	return err
}

func (r *MemoryRepository) GetRefreshToken(ctx context.Context, id string) (string, error) {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.RefreshToken, nil
}

func (r *MemoryRepository) ClearRefreshToken(ctx context.Context, id string) error {
	return r.SetRefreshToken(ctx, id, "")
}

func (r *MemoryRepository) SwapRefreshToken(_ context.Context, id, expected, next string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || u.RefreshToken != expected {
		return false, nil
	}
	u.RefreshToken = next
	return true, nil
}

func (r *MemoryRepository) WatchHistory(_ context.Context, id string) ([]models.WatchHistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.users[id]; !ok {
		return nil, common.ErrorNotFound
	}

	items := r.history[id]
	entries := make([]models.WatchHistoryEntry, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		v, ok := r.videos[items[i].videoID]
		if !ok {
			continue
		}
		e := models.WatchHistoryEntry{
			VideoID:      v.ID,
			Title:        v.Title,
			VideoURL:     v.VideoURL,
			ThumbnailURL: v.ThumbnailURL,
			Duration:     v.Duration,
			OwnerID:      v.OwnerID,
			WatchedAt:    items[i].at,
		}
		if owner, ok := r.users[v.OwnerID]; ok {
			e.OwnerUsername = owner.Username
			e.OwnerAvatarURL = owner.AvatarURL
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].WatchedAt.After(entries[j].WatchedAt)
	})
	return entries, nil
}

func (r *MemoryRepository) AppendWatchHistory(_ context.Context, id, videoID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return common.ErrorNotFound
	}
	if _, ok := r.videos[videoID]; !ok {
		return common.ErrorNotFound
	}
	r.history[id] = append(r.history[id], watched{videoID: videoID, at: r.now()})
	return nil
}

func (r *MemoryRepository) findOne(match func(*models.User) bool) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) update(id string, fn func(*models.User) error) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if err := fn(u); err != nil {
		return nil, err
	}
	cp := *u
	return &cp, nil
}
