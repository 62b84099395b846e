package subscriptions

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/vidaccounts/internal/common"
)

// MemoryRepository keeps subscriptions in process memory. channelExists
// reports whether a channel may be subscribed to.
type MemoryRepository struct {
	mu            sync.RWMutex
	subs          map[pair]struct{}
	channelExists func(id string) bool
}

type pair struct{ subscriber, channel string }

func NewMemoryRepository(channelExists func(id string) bool) *MemoryRepository {
	return &MemoryRepository{subs: map[pair]struct{}{}, channelExists: channelExists}
}

func (r *MemoryRepository) Toggle(_ context.Context, subscriberID, channelID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := pair{subscriberID, channelID}
	if _, ok := r.subs[k]; ok {
		delete(r.subs, k)
		return false, nil
	}
	if !r.channelExists(channelID) {
		return false, common.ErrorNotFound
	}
	r.subs[k] = struct{}{}
	return true, nil
}

func (r *MemoryRepository) CountSubscribers(_ context.Context, channelID string) (int64, error) {
	return r.count(func(k pair) bool { return k.channel == channelID }), nil
}

func (r *MemoryRepository) CountSubscribedTo(_ context.Context, subscriberID string) (int64, error) {
	return r.count(func(k pair) bool { return k.subscriber == subscriberID }), nil
}

func (r *MemoryRepository) IsSubscribed(_ context.Context, subscriberID, channelID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[pair{subscriberID, channelID}]
	return ok, nil
}

func (r *MemoryRepository) count(match func(pair) bool) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for k := range r.subs {
		if match(k) {
			n++
		}
	}
	return n
}
