package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nlefebvre/collabnet/internal/config"
	"github.com/nlefebvre/collabnet/internal/events"
	"github.com/nlefebvre/collabnet/internal/graph"
	"github.com/nlefebvre/collabnet/internal/store"
	"github.com/nlefebvre/collabnet/internal/twitch"
)

// Gateway is the API surface the harvester consumes. *twitch.Client
// satisfies it.
type Gateway interface {
	TopCategories(ctx context.Context, count int) ([]twitch.Category, error)
	StreamsForCategory(ctx context.Context, categoryID string, count int) ([]twitch.Stream, error)
	UsersByID(ctx context.Context, ids []string) ([]twitch.User, error)
	ChannelVideos(ctx context.Context, channelID string, limit int, after time.Time) ([]twitch.Video, error)
	FollowerCount(ctx context.Context, channelID string) (int64, error)
}

// Accumulator folds a batch of videos into the collaboration graph.
// *graph.Accumulator satisfies it.
type Accumulator interface {
	ProcessBatch(ctx context.Context, videos []store.Video) (*graph.BatchReport, error)
}

// CycleReport summarizes what one cycle accomplished.
type CycleReport struct {
	Ordinal     int
	Kind        CycleKind
	Processed   int // videos processed (backlog) or channels refreshed (refresh)
	NewChannels int
	NewVideos   int
	Failed      int // items skipped due to an error, retried on a later cycle
	Stable      bool
	Elapsed     time.Duration
}

// Harvester executes harvest cycles. It is the single writer to the store;
// run at most one instance per database file.
type Harvester struct {
	store       store.Store
	gateway     Gateway
	accumulator Accumulator
	scheduler   *Scheduler
	cfg         config.HarvestConfig
	videoCutoff time.Time
	logger      *slog.Logger
	bus         *events.Bus[CycleReport]

	now func() time.Time
}

// New wires a Harvester. The bus may be nil when nobody observes progress.
func New(st store.Store, gw Gateway, acc Accumulator, sched *Scheduler, cfg config.HarvestConfig, logger *slog.Logger, bus *events.Bus[CycleReport]) (*Harvester, error) {
	cutoff, err := cfg.VideoCutoff()
	if err != nil {
		return nil, fmt.Errorf("parsing video cutoff: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Harvester{
		store:       st,
		gateway:     gw,
		accumulator: acc,
		scheduler:   sched,
		cfg:         cfg,
		videoCutoff: cutoff,
		logger:      logger,
		bus:         bus,
		now:         time.Now,
	}, nil
}

// RunCycle executes cycle number ordinal (1-based): it inspects the store,
// lets the scheduler pick the work, and performs it. The error return is
// reserved for failures that make further cycles pointless; per-item
// failures are absorbed into the report instead.
func (h *Harvester) RunCycle(ctx context.Context, ordinal int) (*CycleReport, error) {
	start := h.now()

	stats, err := h.store.GetStats()
	if err != nil {
		return nil, fmt.Errorf("inspecting store: %w", err)
	}

	kind := h.scheduler.Choose(ordinal, stats, start)
	report := &CycleReport{Ordinal: ordinal, Kind: kind}

	h.logger.Info("cycle starting", "ordinal", ordinal, "kind", kind.String(),
		"backlog", stats.UnprocessedVideos, "channels", stats.Channels)

	switch kind {
	case CycleBacklog:
		err = h.runBacklog(ctx, report)
	case CycleRefresh:
		err = h.runRefresh(ctx, report)
	case CycleDiscovery:
		err = h.runDiscovery(ctx, report)
	}
	if err != nil {
		return report, err
	}

	// The graph has converged when there is nothing left to process,
	// nobody is overdue for a refresh, and a discovery pass turned up
	// nothing new.
	report.Stable = kind == CycleDiscovery &&
		report.NewChannels == 0 &&
		report.Failed == 0 &&
		stats.UnprocessedVideos == 0 &&
		!h.scheduler.refreshDue(stats, start)

	report.Elapsed = h.now().Sub(start)
	h.logger.Info("cycle finished", "ordinal", ordinal, "kind", kind.String(),
		"processed", report.Processed, "new_channels", report.NewChannels,
		"new_videos", report.NewVideos, "failed", report.Failed,
		"elapsed", report.Elapsed.Round(time.Millisecond))

	if h.bus != nil {
		h.bus.Publish(events.CycleCompleted, *report)
		if report.Stable {
			h.bus.Publish(events.GraphStable, *report)
		}
	}
	return report, nil
}

// Run executes cycles until the graph is stable, maxCycles is reached
// (zero means unbounded), or ctx is cancelled. pause is slept between
// cycles to spread request load.
func (h *Harvester) Run(ctx context.Context, maxCycles int, pause time.Duration) (*CycleReport, error) {
	var last *CycleReport
	for ordinal := 1; maxCycles == 0 || ordinal <= maxCycles; ordinal++ {
		if last != nil && pause > 0 {
			select {
			case <-ctx.Done():
				return last, ctx.Err()
			case <-time.After(pause):
			}
		}
		report, err := h.RunCycle(ctx, ordinal)
		if err != nil {
			return last, err
		}
		last = report
		if report.Stable {
			h.logger.Info("graph stable, stopping", "cycles", ordinal)
			break
		}
	}
	return last, nil
}

// runBacklog drains one batch of unscanned videos into the graph.
func (h *Harvester) runBacklog(ctx context.Context, report *CycleReport) error {
	videos, err := h.store.UnprocessedVideos(h.cfg.MentionBatchSize)
	if err != nil {
		return fmt.Errorf("loading backlog: %w", err)
	}

	batch, err := h.accumulator.ProcessBatch(ctx, videos)
	if err != nil {
		return fmt.Errorf("processing backlog: %w", err)
	}
	report.Processed = batch.Processed
	report.Failed = batch.Failed
	report.NewChannels = batch.NewChannels

	if batch.Diag.Unknown > 0 || batch.Diag.Malformed > 0 {
		h.logger.Debug("discarded mentions",
			"unknown", batch.Diag.Unknown, "malformed", batch.Diag.Malformed)
	}
	return nil
}

// runRefresh re-fetches profiles and recent videos for the channels most
// overdue. A channel's refresh cursor advances even when its fetches fail,
// so one broken channel cannot pin itself to the front of the rotation.
func (h *Harvester) runRefresh(ctx context.Context, report *CycleReport) error {
	channels, err := h.store.StalestChannels(h.cfg.RefreshBatchSize)
	if err != nil {
		return fmt.Errorf("selecting stale channels: %w", err)
	}
	if len(channels) == 0 {
		return nil
	}

	ids := make([]string, len(channels))
	for i, ch := range channels {
		ids[i] = ch.ID
	}
	users, err := h.gateway.UsersByID(ctx, ids)
	if err != nil {
		return fmt.Errorf("fetching channel profiles: %w", err)
	}
	byID := make(map[string]twitch.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	for _, ch := range channels {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.refreshChannel(ctx, ch.ID, byID, report); err != nil {
			report.Failed++
			h.logger.Error("refreshing channel", "channel", ch.ID, "error", err)
		}
		if err := h.store.TouchChannelRefreshed(ch.ID, h.now()); err != nil {
			return fmt.Errorf("advancing refresh cursor for %s: %w", ch.ID, err)
		}
		report.Processed++
	}
	return nil
}

// refreshChannel updates one channel's profile, follower count and videos.
func (h *Harvester) refreshChannel(ctx context.Context, id string, byID map[string]twitch.User, report *CycleReport) error {
	u, ok := byID[id]
	if !ok {
		// Deactivated or banned account. Keep the node; its edges are
		// still part of the graph's history.
		h.logger.Debug("channel no longer resolvable", "channel", id)
		return nil
	}

	followers, err := h.gateway.FollowerCount(ctx, id)
	if err != nil {
		return fmt.Errorf("fetching follower count: %w", err)
	}
	ch := &store.Channel{
		ID:            u.ID,
		Login:         u.Login,
		DisplayName:   u.DisplayName,
		Description:   u.Description,
		ViewCount:     u.ViewCount,
		FollowerCount: &followers,
		ImageURL:      u.ProfileImageURL,
	}
	if err := h.store.UpsertChannelDetails(ch); err != nil {
		return fmt.Errorf("updating channel details: %w", err)
	}

	// Only fetch video pages back to what we already hold.
	after := h.videoCutoff
	latest, err := h.store.LatestPublishedAt(id)
	if err != nil {
		return fmt.Errorf("finding newest stored video: %w", err)
	}
	if latest != nil && latest.After(after) {
		after = *latest
	}

	videos, err := h.gateway.ChannelVideos(ctx, id, h.cfg.VideosPerChannel, after)
	if err != nil {
		return fmt.Errorf("fetching videos: %w", err)
	}
	rows := make([]store.Video, 0, len(videos))
	for _, v := range videos {
		rows = append(rows, store.Video{
			ID:              v.ID,
			ChannelID:       v.UserID,
			Title:           v.Title,
			PublishedAt:     v.PublishedAt,
			DurationSeconds: v.DurationSeconds(),
			ViewCount:       v.ViewCount,
			CategoryID:      v.CategoryID,
		})
	}
	inserted, err := h.store.InsertVideos(rows)
	if err != nil {
		return fmt.Errorf("storing videos: %w", err)
	}
	report.NewVideos += inserted
	return nil
}

// runDiscovery walks the top categories and their live streams, stubbing
// every broadcaster not yet in the store. Full profiles arrive later via
// refresh cycles.
func (h *Harvester) runDiscovery(ctx context.Context, report *CycleReport) error {
	categories, err := h.gateway.TopCategories(ctx, h.cfg.TopCategories)
	if err != nil {
		return fmt.Errorf("fetching top categories: %w", err)
	}
	cats := make([]store.Category, len(categories))
	for i, c := range categories {
		cats[i] = store.Category{ID: c.ID, Name: c.Name}
	}
	if err := h.store.UpsertCategories(cats); err != nil {
		return fmt.Errorf("storing categories: %w", err)
	}

	for _, cat := range categories {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := h.gateway.StreamsForCategory(ctx, cat.ID, h.cfg.StreamsPerCategory)
		if err != nil {
			report.Failed++
			h.logger.Error("fetching streams", "category", cat.ID, "error", err)
			continue
		}
		for _, s := range streams {
			created, err := h.store.UpsertChannelStub(s.UserID, s.UserLogin, s.UserName)
			if err != nil {
				return fmt.Errorf("stubbing channel %s: %w", s.UserLogin, err)
			}
			if created {
				report.NewChannels++
			}
			report.Processed++
		}
	}
	return nil
}
