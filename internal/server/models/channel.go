package models

import "time"

// ChannelProfile is a user seen as a channel, with subscription counters.
type ChannelProfile struct {
	PublicUser
	SubscribersCount          int64 `json:"subscribersCount"`
	ChannelsSubscribedToCount int64 `json:"channelsSubscribedToCount"`
	IsSubscribed              bool  `json:"isSubscribed"`
}

// WatchHistoryEntry is one watched video, newest first when listed.
type WatchHistoryEntry struct {
	VideoID        string    `json:"_id"`
	Title          string    `json:"title"`
	VideoURL       string    `json:"videoFile"`
	ThumbnailURL   string    `json:"thumbnail"`
	Duration       float64   `json:"duration"`
	OwnerID        string    `json:"ownerId"`
	OwnerUsername  string    `json:"ownerUsername"`
	OwnerAvatarURL string    `json:"ownerAvatar"`
	WatchedAt      time.Time `json:"watchedAt"`
}
