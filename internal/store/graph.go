package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Edge is an undirected weighted collaboration between two channels. Rows
// are keyed by the canonicalized pair: ChannelA < ChannelB always.
type Edge struct {
	ChannelA             string
	ChannelB             string
	Count                int64
	TotalDurationSeconds int64
	FirstSeenAt          time.Time
	LastSeenAt           time.Time
}

// EdgeContext is the per-category breakdown of an edge. For every edge the
// context counts and durations sum back to the edge's own totals.
type EdgeContext struct {
	ChannelA             string
	ChannelB             string
	CategoryID           string
	Count                int64
	TotalDurationSeconds int64
}

// canonicalPair orders two channel ids so the smaller is first.
func canonicalPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// RecordMentionBatch folds one video's validated mentions into the graph as
// a single transaction: raw ledger rows, edge increments, context
// increments, the conservation check, and the video's processed mark either
// all land or none do. Replaying the call for an already-processed video is a no-op, so a
// crash between commit and the caller observing it cannot double-count.
//
// targets must already be deduplicated and free of the video's own channel;
// the source channel is rejected here as a last line of defense.
func (d *DB) RecordMentionBatch(videoID, sourceChannelID string, targetIDs []string, categoryID string, publishedAt time.Time, durationSeconds int64) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning mention batch: %w", err)
	}
	defer tx.Rollback()

	// Guard: a processed video contributes its mentions exactly once.
	var processedAt sql.NullString
	err = tx.QueryRow(`SELECT mentions_processed_at FROM videos WHERE id = ?`, videoID).Scan(&processedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("recording mentions: video %s not found", videoID)
		}
		return fmt.Errorf("checking video %s processed state: %w", videoID, err)
	}
	if processedAt.Valid {
		return nil
	}

	seenAt := fmtTime(publishedAt)
	type pair struct{ a, b string }
	touched := make(map[pair]bool)

	for _, targetID := range targetIDs {
		if targetID == sourceChannelID {
			continue
		}
		a, b := canonicalPair(sourceChannelID, targetID)
		p := pair{a, b}
		if touched[p] {
			continue
		}
		touched[p] = true

		_, err = tx.Exec(`
			INSERT INTO mention_log (video_id, source_channel_id, target_channel_id, category_id, published_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(video_id, target_channel_id) DO NOTHING`,
			videoID, sourceChannelID, targetID, categoryID, seenAt,
		)
		if err != nil {
			return fmt.Errorf("logging mention %s->%s: %w", sourceChannelID, targetID, err)
		}

		_, err = tx.Exec(`
			INSERT INTO collab_edges (channel_a, channel_b, count, total_duration_seconds, first_seen_at, last_seen_at)
			VALUES (?, ?, 1, ?, ?, ?)
			ON CONFLICT(channel_a, channel_b) DO UPDATE SET
				count = count + 1,
				total_duration_seconds = total_duration_seconds + excluded.total_duration_seconds,
				first_seen_at = MIN(first_seen_at, excluded.first_seen_at),
				last_seen_at = MAX(last_seen_at, excluded.last_seen_at)`,
			a, b, durationSeconds, seenAt, seenAt,
		)
		if err != nil {
			return fmt.Errorf("upserting edge %s-%s: %w", a, b, err)
		}

		_, err = tx.Exec(`
			INSERT INTO collab_contexts (channel_a, channel_b, category_id, count, total_duration_seconds)
			VALUES (?, ?, ?, 1, ?)
			ON CONFLICT(channel_a, channel_b, category_id) DO UPDATE SET
				count = count + 1,
				total_duration_seconds = total_duration_seconds + excluded.total_duration_seconds`,
			a, b, categoryID, durationSeconds,
		)
		if err != nil {
			return fmt.Errorf("upserting context %s-%s/%s: %w", a, b, categoryID, err)
		}
	}

	// Conservation: context rows must sum back to the edge for every pair
	// this batch touched. A mismatch aborts the whole transaction.
	for p := range touched {
		if err := verifyConservation(tx, p.a, p.b); err != nil {
			return err
		}
	}

	_, err = tx.Exec(`UPDATE videos SET mentions_processed_at = ? WHERE id = ?`,
		fmtTime(time.Now()), videoID)
	if err != nil {
		return fmt.Errorf("marking video %s processed: %w", videoID, err)
	}

	return tx.Commit()
}

func verifyConservation(tx *sql.Tx, a, b string) error {
	var edgeCount, edgeDuration, ctxCount, ctxDuration int64
	err := tx.QueryRow(`
		SELECT e.count, e.total_duration_seconds,
		       COALESCE(SUM(c.count), 0), COALESCE(SUM(c.total_duration_seconds), 0)
		FROM collab_edges e
		LEFT JOIN collab_contexts c ON c.channel_a = e.channel_a AND c.channel_b = e.channel_b
		WHERE e.channel_a = ? AND e.channel_b = ?
		GROUP BY e.channel_a, e.channel_b`,
		a, b,
	).Scan(&edgeCount, &edgeDuration, &ctxCount, &ctxDuration)
	if err != nil {
		return fmt.Errorf("verifying edge %s-%s: %w", a, b, err)
	}

	if edgeCount != ctxCount || edgeDuration != ctxDuration {
		return fmt.Errorf("integrity violation on edge %s-%s: edge (count=%d, duration=%d) vs context sums (count=%d, duration=%d)",
			a, b, edgeCount, edgeDuration, ctxCount, ctxDuration)
	}
	return nil
}

// EdgeBetween retrieves the edge for a channel pair in either order.
// Returns nil, nil when no collaboration has been recorded.
func (d *DB) EdgeBetween(channelA, channelB string) (*Edge, error) {
	a, b := canonicalPair(channelA, channelB)

	rows, err := d.db.Query(`
		SELECT channel_a, channel_b, count, total_duration_seconds, first_seen_at, last_seen_at
		FROM collab_edges WHERE channel_a = ? AND channel_b = ?`,
		a, b,
	)
	if err != nil {
		return nil, fmt.Errorf("querying edge: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanEdge(rows)
}

// Edges returns every stored edge, for read-only consumers.
func (d *DB) Edges() ([]Edge, error) {
	rows, err := d.db.Query(`
		SELECT channel_a, channel_b, count, total_duration_seconds, first_seen_at, last_seen_at
		FROM collab_edges ORDER BY channel_a, channel_b`)
	if err != nil {
		return nil, fmt.Errorf("querying edges: %w", err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, *e)
	}
	return edges, rows.Err()
}

// ContextsFor returns the per-category breakdown of an edge, accepting the
// pair in either order.
func (d *DB) ContextsFor(channelA, channelB string) ([]EdgeContext, error) {
	a, b := canonicalPair(channelA, channelB)

	rows, err := d.db.Query(`
		SELECT channel_a, channel_b, category_id, count, total_duration_seconds
		FROM collab_contexts WHERE channel_a = ? AND channel_b = ?
		ORDER BY category_id`,
		a, b,
	)
	if err != nil {
		return nil, fmt.Errorf("querying contexts: %w", err)
	}
	defer rows.Close()

	var contexts []EdgeContext
	for rows.Next() {
		var c EdgeContext
		if err := rows.Scan(&c.ChannelA, &c.ChannelB, &c.CategoryID, &c.Count, &c.TotalDurationSeconds); err != nil {
			return nil, fmt.Errorf("scanning context: %w", err)
		}
		contexts = append(contexts, c)
	}
	return contexts, rows.Err()
}

// Mention is one raw ledger row behind the aggregated graph: a single
// channel mentioning another in a single video.
type Mention struct {
	VideoID         string
	SourceChannelID string
	TargetChannelID string
	CategoryID      string
	PublishedAt     time.Time
	RecordedAt      time.Time
}

// MentionsForVideo returns the mentions logged for one video, ordered by
// target channel.
func (d *DB) MentionsForVideo(videoID string) ([]Mention, error) {
	return d.queryMentions(`
		SELECT video_id, source_channel_id, target_channel_id, category_id, published_at, recorded_at
		FROM mention_log WHERE video_id = ?
		ORDER BY target_channel_id`,
		videoID,
	)
}

// MentionsBetween returns the ledger rows backing the edge between two
// channels, in either direction, oldest first.
func (d *DB) MentionsBetween(channelA, channelB string) ([]Mention, error) {
	return d.queryMentions(`
		SELECT video_id, source_channel_id, target_channel_id, category_id, published_at, recorded_at
		FROM mention_log
		WHERE (source_channel_id = ? AND target_channel_id = ?)
		   OR (source_channel_id = ? AND target_channel_id = ?)
		ORDER BY published_at, video_id`,
		channelA, channelB, channelB, channelA,
	)
}

func (d *DB) queryMentions(query string, args ...any) ([]Mention, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying mention log: %w", err)
	}
	defer rows.Close()

	var ms []Mention
	for rows.Next() {
		var m Mention
		var published, recorded sql.NullString
		if err := rows.Scan(&m.VideoID, &m.SourceChannelID, &m.TargetChannelID, &m.CategoryID, &published, &recorded); err != nil {
			return nil, fmt.Errorf("scanning mention: %w", err)
		}
		if published.Valid {
			m.PublishedAt = parseTime(published.String)
		}
		if recorded.Valid {
			m.RecordedAt = parseTime(recorded.String)
		}
		ms = append(ms, m)
	}
	return ms, rows.Err()
}

func scanEdge(rows *sql.Rows) (*Edge, error) {
	var e Edge
	var firstSeen, lastSeen sql.NullString

	err := rows.Scan(&e.ChannelA, &e.ChannelB, &e.Count, &e.TotalDurationSeconds, &firstSeen, &lastSeen)
	if err != nil {
		return nil, fmt.Errorf("scanning edge: %w", err)
	}

	if firstSeen.Valid {
		e.FirstSeenAt = parseTime(firstSeen.String)
	}
	if lastSeen.Valid {
		e.LastSeenAt = parseTime(lastSeen.String)
	}
	return &e, nil
}
