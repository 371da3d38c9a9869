package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Channel is a stored channel row. FollowerCount is nil until a refresh
// cycle has fetched it; LastRefreshedAt is nil for channels discovered but
// never refreshed, which ranks them stalest of all.
type Channel struct {
	ID              string
	Login           string
	DisplayName     string
	Description     string
	ViewCount       int64
	FollowerCount   *int64
	ImageURL        string
	FirstSeenAt     time.Time
	LastRefreshedAt *time.Time
}

const channelColumns = `id, login, display_name, description, view_count, follower_count, image_url, first_seen_at, last_refreshed_at`

// UpsertChannelStub inserts a minimal channel row for a newly discovered
// channel, leaving profile detail for a later refresh cycle. Reports whether
// the channel was previously unseen. Logins are stored lowercased.
func (d *DB) UpsertChannelStub(id, login, displayName string) (bool, error) {
	res, err := d.db.Exec(`
		INSERT INTO channels (id, login, display_name)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, strings.ToLower(login), displayName,
	)
	if err != nil {
		return false, fmt.Errorf("upserting channel stub %s: %w", login, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking channel stub insert: %w", err)
	}
	return n > 0, nil
}

// UpsertChannelDetails inserts or updates a channel's full profile. A nil
// FollowerCount leaves any previously stored count in place. The staleness
// cursor is advanced separately by TouchChannelRefreshed.
func (d *DB) UpsertChannelDetails(ch *Channel) error {
	_, err := d.db.Exec(`
		INSERT INTO channels (id, login, display_name, description, view_count, follower_count, image_url)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			login = excluded.login,
			display_name = excluded.display_name,
			description = excluded.description,
			view_count = excluded.view_count,
			follower_count = COALESCE(excluded.follower_count, follower_count),
			image_url = excluded.image_url`,
		ch.ID, strings.ToLower(ch.Login), ch.DisplayName, ch.Description,
		ch.ViewCount, ch.FollowerCount, ch.ImageURL,
	)
	if err != nil {
		return fmt.Errorf("upserting channel details %s: %w", ch.Login, err)
	}
	return nil
}

// TouchChannelRefreshed advances a channel's last_refreshed_at. Called at
// the end of a refresh even when the channel yielded nothing, so dead
// channels do not wedge the staleness queue.
func (d *DB) TouchChannelRefreshed(id string, at time.Time) error {
	_, err := d.db.Exec(
		`UPDATE channels SET last_refreshed_at = ? WHERE id = ?`,
		fmtTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("touching channel %s: %w", id, err)
	}
	return nil
}

// ChannelByID retrieves a channel by its canonical id. Returns nil, nil when
// the channel does not exist.
func (d *DB) ChannelByID(id string) (*Channel, error) {
	row := d.db.QueryRow(`SELECT `+channelColumns+` FROM channels WHERE id = ?`, id)
	return scanChannel(row)
}

// ChannelByLogin retrieves a channel by login, case-insensitively. Returns
// nil, nil when no channel has that login.
func (d *DB) ChannelByLogin(login string) (*Channel, error) {
	row := d.db.QueryRow(`SELECT `+channelColumns+` FROM channels WHERE login = ?`, strings.ToLower(login))
	return scanChannel(row)
}

// ChannelsByLogins resolves a batch of logins in one query, returning a map
// keyed by lowercase login. Absent logins are simply missing from the map.
func (d *DB) ChannelsByLogins(logins []string) (map[string]*Channel, error) {
	found := make(map[string]*Channel)
	if len(logins) == 0 {
		return found, nil
	}

	placeholders := make([]string, len(logins))
	args := make([]any, len(logins))
	for i, l := range logins {
		placeholders[i] = "?"
		args[i] = strings.ToLower(l)
	}

	rows, err := d.db.Query(
		`SELECT `+channelColumns+` FROM channels WHERE login IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying channels by login: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ch, err := scanChannelRows(rows)
		if err != nil {
			return nil, err
		}
		found[ch.Login] = ch
	}
	return found, rows.Err()
}

// StalestChannels returns up to limit channels ordered by ascending
// last_refreshed_at, never-refreshed channels first, ties broken by id for
// determinism.
func (d *DB) StalestChannels(limit int) ([]Channel, error) {
	rows, err := d.db.Query(
		`SELECT `+channelColumns+` FROM channels
		 ORDER BY last_refreshed_at ASC NULLS FIRST, id ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying stalest channels: %w", err)
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		ch, err := scanChannelRows(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *ch)
	}
	return channels, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannelFrom(s rowScanner) (*Channel, error) {
	var ch Channel
	var displayName, description, imageURL sql.NullString
	var followerCount sql.NullInt64
	var firstSeen string
	var lastRefreshed sql.NullString

	err := s.Scan(&ch.ID, &ch.Login, &displayName, &description, &ch.ViewCount,
		&followerCount, &imageURL, &firstSeen, &lastRefreshed)
	if err != nil {
		return nil, err
	}

	ch.DisplayName = displayName.String
	ch.Description = description.String
	ch.ImageURL = imageURL.String
	if followerCount.Valid {
		ch.FollowerCount = &followerCount.Int64
	}
	ch.FirstSeenAt = parseTime(firstSeen)
	ch.LastRefreshedAt = parseNullTime(lastRefreshed)

	return &ch, nil
}

func scanChannel(row *sql.Row) (*Channel, error) {
	ch, err := scanChannelFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning channel: %w", err)
	}
	return ch, nil
}

func scanChannelRows(rows *sql.Rows) (*Channel, error) {
	ch, err := scanChannelFrom(rows)
	if err != nil {
		return nil, fmt.Errorf("scanning channel: %w", err)
	}
	return ch, nil
}
