// Package graph turns validated video mentions into collaboration edges.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nlefebvre/collabnet/internal/mentions"
	"github.com/nlefebvre/collabnet/internal/store"
)

// EdgeStore is the subset of the store the accumulator writes through.
type EdgeStore interface {
	RecordMentionBatch(videoID, sourceChannelID string, targetIDs []string, categoryID string, publishedAt time.Time, durationSeconds int64) error
}

// Resolver validates candidate handles against the channel universe.
type Resolver interface {
	ResolveLogins(ctx context.Context, handles []string) (*mentions.Resolution, error)
}

// BatchReport summarizes one pass over a batch of unprocessed videos.
type BatchReport struct {
	Processed   int // videos marked as mention-processed
	Failed      int // videos left unprocessed due to a store error
	Mentions    int // resolved mention targets handed to the graph
	NewChannels int // channels discovered via mentions
	Diag        mentions.Diagnostics
}

// Accumulator scans video titles for mentions and folds them into the
// collaboration graph. Handle resolution is batched across the whole
// video batch so a batch of N videos costs at most one user lookup.
type Accumulator struct {
	store    EdgeStore
	resolver Resolver
	logger   *slog.Logger
}

// NewAccumulator creates an Accumulator.
func NewAccumulator(st EdgeStore, r Resolver, logger *slog.Logger) *Accumulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Accumulator{store: st, resolver: r, logger: logger}
}

// ProcessBatch extracts mentions from every video title, resolves the
// combined handle set once, then records each video's mentions in its own
// transaction. Every video is marked processed exactly once, including
// videos whose titles mention nobody. A store failure on one video is
// logged and skipped so the rest of the batch still lands; the failed
// video stays unprocessed and is retried on a later cycle.
func (a *Accumulator) ProcessBatch(ctx context.Context, videos []store.Video) (*BatchReport, error) {
	report := &BatchReport{}
	if len(videos) == 0 {
		return report, nil
	}

	handlesByVideo := make(map[string][]string, len(videos))
	var all []string
	for _, v := range videos {
		hs := mentions.Extract(v.Title)
		handlesByVideo[v.ID] = hs
		all = append(all, hs...)
	}

	res, err := a.resolver.ResolveLogins(ctx, all)
	if err != nil {
		return nil, fmt.Errorf("resolving mention batch: %w", err)
	}
	report.NewChannels = res.NewChannels
	report.Diag = res.Diag

	for _, v := range videos {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		var targets []string
		for _, h := range handlesByVideo[v.ID] {
			id, ok := res.IDByLogin[h]
			if !ok || id == v.ChannelID {
				// Self-mentions are not collaborations; keep them out of
				// the count as well as the graph.
				continue
			}
			targets = append(targets, id)
		}

		if err := a.store.RecordMentionBatch(v.ID, v.ChannelID, targets, v.CategoryID, v.PublishedAt, v.DurationSeconds); err != nil {
			report.Failed++
			a.logger.Error("recording video mentions", "video", v.ID, "error", err)
			continue
		}
		report.Processed++
		report.Mentions += len(targets)
	}

	return report, nil
}
