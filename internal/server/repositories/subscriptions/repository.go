// Package subscriptions stores which accounts follow which channels.
package subscriptions

import "context"

type Repository interface {
	// Toggle flips the subscription and reports whether it now exists.
	Toggle(ctx context.Context, subscriberID, channelID string) (bool, error)
	CountSubscribers(ctx context.Context, channelID string) (int64, error)
	CountSubscribedTo(ctx context.Context, subscriberID string) (int64, error)
	IsSubscribed(ctx context.Context, subscriberID, channelID string) (bool, error)
}
