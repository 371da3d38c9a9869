package store

import "time"

// Store defines the storage operations used by the harvest pipeline and the
// mention validator. It is satisfied by *DB and can be replaced with a mock
// for testing.
type Store interface {
	// UpsertChannelStub inserts a newly discovered channel with minimal
	// detail, reporting whether it was previously unseen.
	UpsertChannelStub(id, login, displayName string) (bool, error)

	// UpsertChannelDetails inserts or updates a channel's full profile.
	UpsertChannelDetails(ch *Channel) error

	// TouchChannelRefreshed advances a channel's staleness cursor.
	TouchChannelRefreshed(id string, at time.Time) error

	// ChannelsByLogins resolves a batch of logins, keyed by lowercase login.
	ChannelsByLogins(logins []string) (map[string]*Channel, error)

	// StalestChannels returns the channels most overdue for a refresh.
	StalestChannels(limit int) ([]Channel, error)

	// UpsertCategories inserts categories not already present.
	UpsertCategories(categories []Category) error

	// InsertVideos inserts fetched videos, ignoring known ids.
	InsertVideos(videos []Video) (int, error)

	// UnprocessedVideos returns the mention-processing backlog.
	UnprocessedVideos(limit int) ([]Video, error)

	// LatestPublishedAt returns a channel's newest stored video date.
	LatestPublishedAt(channelID string) (*time.Time, error)

	// RecordMentionBatch atomically folds one video's mentions into the graph.
	RecordMentionBatch(videoID, sourceChannelID string, targetIDs []string, categoryID string, publishedAt time.Time, durationSeconds int64) error

	// GetStats returns aggregate counts for stability detection.
	GetStats() (*HarvestStats, error)
}

// Compile-time check that *DB satisfies the Store interface.
var _ Store = (*DB)(nil)
