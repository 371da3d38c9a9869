package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Video is a stored video row. MentionsProcessedAt is nil until the mention
// pipeline has scanned its title exactly once.
type Video struct {
	ID                  string
	ChannelID           string
	Title               string
	PublishedAt         time.Time
	DurationSeconds     int64
	ViewCount           int64
	CategoryID          string
	FetchedAt           time.Time
	MentionsProcessedAt *time.Time
}

// InsertVideos inserts a batch of videos in one transaction, ignoring ids
// that already exist so re-fetching after an interruption never resets a
// video's processed state. Returns the number of newly inserted rows.
func (d *DB) InsertVideos(videos []Video) (int, error) {
	if len(videos) == 0 {
		return 0, nil
	}

	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning video insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO videos (id, channel_id, title, published_at, duration_seconds, view_count, category_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("preparing video insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, v := range videos {
		var categoryID any
		if v.CategoryID != "" {
			categoryID = v.CategoryID
		}
		res, err := stmt.Exec(v.ID, v.ChannelID, v.Title, fmtTime(v.PublishedAt),
			v.DurationSeconds, v.ViewCount, categoryID)
		if err != nil {
			return 0, fmt.Errorf("inserting video %s: %w", v.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing video insert: %w", err)
	}
	return inserted, nil
}

// UnprocessedVideos returns up to limit videos whose titles have not been
// scanned for mentions, oldest fetch first, ties broken by id.
func (d *DB) UnprocessedVideos(limit int) ([]Video, error) {
	rows, err := d.db.Query(`
		SELECT id, channel_id, title, published_at, duration_seconds, view_count, category_id, fetched_at, mentions_processed_at
		FROM videos
		WHERE mentions_processed_at IS NULL
		ORDER BY fetched_at ASC, id ASC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying unprocessed videos: %w", err)
	}
	defer rows.Close()

	var videos []Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, *v)
	}
	return videos, rows.Err()
}

// VideoByID retrieves a single video. Returns nil, nil when absent.
func (d *DB) VideoByID(id string) (*Video, error) {
	rows, err := d.db.Query(`
		SELECT id, channel_id, title, published_at, duration_seconds, view_count, category_id, fetched_at, mentions_processed_at
		FROM videos WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying video: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanVideo(rows)
}

// LatestPublishedAt returns the newest published_at across a channel's
// stored videos, or nil when the channel has none. Refresh cycles use it as
// the fetch cutoff so only genuinely new videos are pulled.
func (d *DB) LatestPublishedAt(channelID string) (*time.Time, error) {
	var latest sql.NullString
	err := d.db.QueryRow(
		`SELECT MAX(published_at) FROM videos WHERE channel_id = ?`,
		channelID,
	).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("querying latest video date for %s: %w", channelID, err)
	}
	return parseNullTime(latest), nil
}

func scanVideo(rows *sql.Rows) (*Video, error) {
	var v Video
	var title, publishedAt, categoryID, processedAt sql.NullString
	var fetchedAt string

	err := rows.Scan(&v.ID, &v.ChannelID, &title, &publishedAt, &v.DurationSeconds,
		&v.ViewCount, &categoryID, &fetchedAt, &processedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning video: %w", err)
	}

	v.Title = title.String
	if publishedAt.Valid {
		v.PublishedAt = parseTime(publishedAt.String)
	}
	v.CategoryID = categoryID.String
	v.FetchedAt = parseTime(fetchedAt)
	v.MentionsProcessedAt = parseNullTime(processedAt)

	return &v, nil
}
