package twitch

import (
	"context"
	"fmt"
	"time"

	"github.com/nicklaw5/helix/v2"
)

// TopCategories fetches up to count of the most-viewed categories, chaining
// continuation cursors until count is reached or the API runs out.
func (c *Client) TopCategories(ctx context.Context, count int) ([]Category, error) {
	var all []Category
	cursor := ""

	for len(all) < count {
		var resp *helix.TopGamesResponse
		err := c.call(ctx, "top categories", func() (*helix.ResponseCommon, error) {
			var callErr error
			resp, callErr = c.api.GetTopGames(&helix.TopGamesParams{
				First: min(count-len(all), maxPageSize),
				After: cursor,
			})
			if callErr != nil {
				return nil, callErr
			}
			return &resp.ResponseCommon, nil
		})
		if err != nil {
			return all, fmt.Errorf("fetching top categories: %w", err)
		}
		if len(resp.Data.Games) == 0 {
			break
		}

		for _, g := range resp.Data.Games {
			all = append(all, categoryFromHelix(g))
		}
		cursor = resp.Data.Pagination.Cursor
		if cursor == "" {
			break
		}
	}

	if len(all) > count {
		all = all[:count]
	}
	return all, nil
}

// StreamsForCategory fetches up to count of the top live streams in a
// category.
func (c *Client) StreamsForCategory(ctx context.Context, categoryID string, count int) ([]Stream, error) {
	var resp *helix.StreamsResponse
	err := c.call(ctx, "streams", func() (*helix.ResponseCommon, error) {
		var callErr error
		resp, callErr = c.api.GetStreams(&helix.StreamsParams{
			GameIDs: []string{categoryID},
			First:   min(count, maxPageSize),
		})
		if callErr != nil {
			return nil, callErr
		}
		return &resp.ResponseCommon, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching streams for category %s: %w", categoryID, err)
	}

	streams := make([]Stream, 0, len(resp.Data.Streams))
	for _, s := range resp.Data.Streams {
		streams = append(streams, streamFromHelix(s))
	}
	return streams, nil
}

// UsersByLogin fetches profiles for the given login names, batching requests
// at the API's per-call limit. Logins that resolve to no user are simply
// absent from the result.
func (c *Client) UsersByLogin(ctx context.Context, logins []string) ([]User, error) {
	return c.users(ctx, "login", logins, func(batch []string) *helix.UsersParams {
		return &helix.UsersParams{Logins: batch}
	})
}

// UsersByID fetches profiles for the given channel ids, batched like
// UsersByLogin.
func (c *Client) UsersByID(ctx context.Context, ids []string) ([]User, error) {
	return c.users(ctx, "id", ids, func(batch []string) *helix.UsersParams {
		return &helix.UsersParams{IDs: batch}
	})
}

func (c *Client) users(ctx context.Context, param string, values []string, params func([]string) *helix.UsersParams) ([]User, error) {
	var all []User

	for start := 0; start < len(values); start += maxIDsPerLookup {
		end := min(start+maxIDsPerLookup, len(values))

		var resp *helix.UsersResponse
		err := c.call(ctx, "users", func() (*helix.ResponseCommon, error) {
			var callErr error
			resp, callErr = c.api.GetUsers(params(values[start:end]))
			if callErr != nil {
				return nil, callErr
			}
			return &resp.ResponseCommon, nil
		})
		if err != nil {
			return all, fmt.Errorf("fetching users by %s: %w", param, err)
		}

		for _, u := range resp.Data.Users {
			all = append(all, userFromHelix(u))
		}
	}

	return all, nil
}

// ChannelVideos fetches up to limit archived videos for a channel, newest
// first, stopping early once a video published at or before the after cutoff
// is seen (pages are time-sorted, so everything beyond it is older too).
// A zero after disables the cutoff.
func (c *Client) ChannelVideos(ctx context.Context, channelID string, limit int, after time.Time) ([]Video, error) {
	var all []Video
	cursor := ""

	for len(all) < limit {
		var resp *helix.VideosResponse
		err := c.call(ctx, "videos", func() (*helix.ResponseCommon, error) {
			var callErr error
			resp, callErr = c.api.GetVideos(&helix.VideosParams{
				UserID: channelID,
				Type:   "archive",
				Sort:   "time",
				First:  min(limit-len(all), maxPageSize),
				After:  cursor,
			})
			if callErr != nil {
				return nil, callErr
			}
			return &resp.ResponseCommon, nil
		})
		if err != nil {
			return all, fmt.Errorf("fetching videos for channel %s: %w", channelID, err)
		}
		if len(resp.Data.Videos) == 0 {
			break
		}

		hitCutoff := false
		for _, hv := range resp.Data.Videos {
			v := videoFromHelix(hv)
			if !after.IsZero() && !v.PublishedAt.After(after) {
				hitCutoff = true
				break
			}
			all = append(all, v)
			if len(all) >= limit {
				break
			}
		}
		if hitCutoff {
			break
		}

		cursor = resp.Data.Pagination.Cursor
		if cursor == "" {
			break
		}
	}

	return all, nil
}

// FollowerCount fetches the total follower count for a channel. The endpoint
// pages followers, but the total rides along on a minimal first=1 request.
func (c *Client) FollowerCount(ctx context.Context, channelID string) (int64, error) {
	var resp *helix.GetChannelFollowersResponse
	err := c.call(ctx, "channel followers", func() (*helix.ResponseCommon, error) {
		var callErr error
		resp, callErr = c.api.GetChannelFollows(&helix.GetChannelFollowsParams{
			BroadcasterID: channelID,
			First:         1,
		})
		if callErr != nil {
			return nil, callErr
		}
		return &resp.ResponseCommon, nil
	})
	if err != nil {
		return 0, fmt.Errorf("fetching follower count for channel %s: %w", channelID, err)
	}
	return int64(resp.Data.Total), nil
}
