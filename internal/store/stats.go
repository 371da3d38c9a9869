package store

import (
	"database/sql"
	"fmt"
	"time"
)

// HarvestStats holds aggregate counts for the status command and for
// stability detection in the outer run loop.
type HarvestStats struct {
	Channels          int64
	Videos            int64
	UnprocessedVideos int64
	Categories        int64
	Edges             int64
	StalestRefreshed  *time.Time
	NeverRefreshed    int64
}

// GetStats returns aggregate statistics over the whole store.
func (d *DB) GetStats() (*HarvestStats, error) {
	stats := &HarvestStats{}

	counts := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM channels`, &stats.Channels},
		{`SELECT COUNT(*) FROM videos`, &stats.Videos},
		{`SELECT COUNT(*) FROM videos WHERE mentions_processed_at IS NULL`, &stats.UnprocessedVideos},
		{`SELECT COUNT(*) FROM categories`, &stats.Categories},
		{`SELECT COUNT(*) FROM collab_edges`, &stats.Edges},
		{`SELECT COUNT(*) FROM channels WHERE last_refreshed_at IS NULL`, &stats.NeverRefreshed},
	}
	for _, c := range counts {
		if err := d.db.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("counting: %w", err)
		}
	}

	var stalest sql.NullString
	err := d.db.QueryRow(`SELECT MIN(last_refreshed_at) FROM channels WHERE last_refreshed_at IS NOT NULL`).Scan(&stalest)
	if err != nil {
		return nil, fmt.Errorf("finding stalest refresh: %w", err)
	}
	stats.StalestRefreshed = parseNullTime(stalest)

	return stats, nil
}
