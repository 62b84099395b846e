package services

import (
	"context"
	"strings"
	"time"

	"github.com/dmitrijs2005/vidaccounts/internal/common"
	"github.com/dmitrijs2005/vidaccounts/internal/logging"
	"github.com/dmitrijs2005/vidaccounts/internal/server/config"
	"github.com/dmitrijs2005/vidaccounts/internal/server/models"
	"github.com/dmitrijs2005/vidaccounts/internal/server/repositories/repomanager"
)

// ChannelService serves users seen as channels: profiles with subscription
// counts and subscribe/unsubscribe.
type ChannelService struct {
	repomanager  repomanager.RepositoryManager
	log          logging.Logger
	storeTimeout time.Duration
}

func NewChannelService(m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger) *ChannelService {
	return &ChannelService{
		repomanager:  m,
		log:          log.With("module", "channels"),
		storeTimeout: cfg.StoreTimeout,
	}
}

// ToggleSubscription subscribes subscriberID to channelID, or unsubscribes
// if already subscribed, and reports the resulting state.
func (s *ChannelService) ToggleSubscription(ctx context.Context, subscriberID, channelID string) (bool, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return false, common.InvalidArgument("channel id is required")
	}
	if channelID == subscriberID {
		return false, common.InvalidArgument("cannot subscribe to own channel")
	}

	users := s.repomanager.Users()
	if _, err := withStore(ctx, s.storeTimeout, "find channel", func(ctx context.Context) (*models.User, error) {
		return users.GetByID(ctx, channelID)
	}); err != nil {
		return false, err
	}

	subs := s.repomanager.Subscriptions()
	subscribed, err := withStore(ctx, s.storeTimeout, "toggle subscription", func(ctx context.Context) (bool, error) {
		return subs.Toggle(ctx, subscriberID, channelID)
	})
	if err != nil {
		return false, err
	}

	s.log.Debug(ctx, "subscription toggled", "subscriber_id", subscriberID, "channel_id", channelID, "subscribed", subscribed)
	return subscribed, nil
}

// ChannelProfile returns the public profile of username with its counters.
// IsSubscribed is relative to viewerID, which may be empty.
func (s *ChannelService) ChannelProfile(ctx context.Context, username, viewerID string) (*models.ChannelProfile, error) {
	username = normalizeIdentifier(username)
	if username == "" {
		return nil, common.InvalidArgument("username is missing")
	}

	users := s.repomanager.Users()
	channel, err := withStore(ctx, s.storeTimeout, "find channel", func(ctx context.Context) (*models.User, error) {
		return users.GetByUsername(ctx, username)
	})
	if err != nil {
		return nil, err
	}

	subs := s.repomanager.Subscriptions()
	profile := &models.ChannelProfile{PublicUser: *channel.Public()}

	profile.SubscribersCount, err = withStore(ctx, s.storeTimeout, "count subscribers", func(ctx context.Context) (int64, error) {
		return subs.CountSubscribers(ctx, channel.ID)
	})
	if err != nil {
		return nil, err
	}

	profile.ChannelsSubscribedToCount, err = withStore(ctx, s.storeTimeout, "count subscriptions", func(ctx context.Context) (int64, error) {
		return subs.CountSubscribedTo(ctx, channel.ID)
	})
	if err != nil {
		return nil, err
	}

	if viewerID != "" {
		profile.IsSubscribed, err = withStore(ctx, s.storeTimeout, "check subscription", func(ctx context.Context) (bool, error) {
			return subs.IsSubscribed(ctx, viewerID, channel.ID)
		})
		if err != nil {
			return nil, err
		}
	}

	return profile, nil
}
