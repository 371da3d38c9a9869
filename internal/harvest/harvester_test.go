package harvest

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/nlefebvre/collabnet/internal/config"
	"github.com/nlefebvre/collabnet/internal/events"
	"github.com/nlefebvre/collabnet/internal/graph"
	"github.com/nlefebvre/collabnet/internal/mentions"
	"github.com/nlefebvre/collabnet/internal/store"
	"github.com/nlefebvre/collabnet/internal/twitch"
)

// fakeGateway serves canned API responses and records video cursors.
type fakeGateway struct {
	categories   []twitch.Category
	streams      map[string][]twitch.Stream // by category id
	users        map[string]twitch.User     // by id
	usersByLogin map[string]twitch.User     // by lowercase login
	followers    map[string]int64           // by channel id
	videos       map[string][]twitch.Video  // by channel id

	videoAfter  map[string]time.Time // last cursor seen per channel
	followerErr error
	streamsErr  error
}

func (f *fakeGateway) TopCategories(ctx context.Context, count int) ([]twitch.Category, error) {
	return f.categories, nil
}

func (f *fakeGateway) StreamsForCategory(ctx context.Context, categoryID string, count int) ([]twitch.Stream, error) {
	if f.streamsErr != nil {
		return nil, f.streamsErr
	}
	return f.streams[categoryID], nil
}

func (f *fakeGateway) UsersByID(ctx context.Context, ids []string) ([]twitch.User, error) {
	var out []twitch.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeGateway) UsersByLogin(ctx context.Context, logins []string) ([]twitch.User, error) {
	var out []twitch.User
	for _, l := range logins {
		if u, ok := f.usersByLogin[l]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeGateway) ChannelVideos(ctx context.Context, channelID string, limit int, after time.Time) ([]twitch.Video, error) {
	if f.videoAfter == nil {
		f.videoAfter = make(map[string]time.Time)
	}
	f.videoAfter[channelID] = after
	var out []twitch.Video
	for _, v := range f.videos[channelID] {
		if !after.IsZero() && !v.PublishedAt.After(after) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeGateway) FollowerCount(ctx context.Context, channelID string) (int64, error) {
	if f.followerErr != nil {
		return 0, f.followerErr
	}
	return f.followers[channelID], nil
}

func testConfig() config.HarvestConfig {
	return config.HarvestConfig{
		MentionBatchSize:   100,
		RefreshBatchSize:   10,
		TopCategories:      5,
		StreamsPerCategory: 10,
		VideosPerChannel:   20,
		StalenessAgeRaw:    "168h",
		DiscoveryInterval:  10,
	}
}

func setupHarvester(t *testing.T, gw *fakeGateway) (*Harvester, *store.DB) {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.DiscardHandler)
	validator := mentions.NewValidator(db, gw, logger)
	acc := graph.NewAccumulator(db, validator, logger)
	sched := &Scheduler{DiscoveryInterval: 10, StalenessAge: 168 * time.Hour}

	h, err := New(db, gw, acc, sched, testConfig(), logger, nil)
	if err != nil {
		t.Fatalf("creating harvester: %v", err)
	}
	return h, db
}

func TestDiscoveryCycleStubsChannels(t *testing.T) {
	gw := &fakeGateway{
		categories: []twitch.Category{{ID: "509658", Name: "Just Chatting"}},
		streams: map[string][]twitch.Stream{
			"509658": {
				{UserID: "100", UserLogin: "selfcaster", UserName: "SelfCaster"},
				{UserID: "200", UserLogin: "foorunner", UserName: "FooRunner"},
			},
		},
	}
	h, db := setupHarvester(t, gw)

	report, err := h.RunCycle(context.Background(), 1)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Kind != CycleDiscovery {
		t.Fatalf("Kind = %s, want discovery on an empty store", report.Kind)
	}
	if report.NewChannels != 2 {
		t.Errorf("NewChannels = %d, want 2", report.NewChannels)
	}

	ch, err := db.ChannelByLogin("foorunner")
	if err != nil || ch == nil {
		t.Fatalf("ChannelByLogin(foorunner) = %v, %v", ch, err)
	}
	if ch.ID != "200" {
		t.Errorf("discovered channel id = %s, want 200", ch.ID)
	}

	cat, err := db.CategoryByID("509658")
	if err != nil || cat == nil {
		t.Fatalf("CategoryByID = %v, %v", cat, err)
	}

	// Re-running discovery over the same streams finds nothing new.
	report, err = h.RunCycle(context.Background(), 10)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.NewChannels != 0 {
		t.Errorf("NewChannels on repeat = %d, want 0", report.NewChannels)
	}
}

func TestRefreshCycleFetchesDetailsAndVideos(t *testing.T) {
	published := time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)
	gw := &fakeGateway{
		users: map[string]twitch.User{
			"100": {ID: "100", Login: "selfcaster", DisplayName: "SelfCaster", Description: "variety", ViewCount: 9000},
		},
		followers: map[string]int64{"100": 1234},
		videos: map[string][]twitch.Video{
			"100": {{ID: "v1", UserID: "100", Title: "duo with @foorunner", PublishedAt: published, Duration: "1h0m0s", ViewCount: 50}},
		},
	}
	h, db := setupHarvester(t, gw)

	if _, err := db.UpsertChannelStub("100", "selfcaster", "SelfCaster"); err != nil {
		t.Fatalf("stubbing channel: %v", err)
	}

	report, err := h.RunCycle(context.Background(), 1)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Kind != CycleRefresh {
		t.Fatalf("Kind = %s, want refresh for a never-refreshed channel", report.Kind)
	}
	if report.Processed != 1 || report.NewVideos != 1 {
		t.Errorf("report = %+v, want 1 processed, 1 new video", report)
	}

	ch, err := db.ChannelByID("100")
	if err != nil || ch == nil {
		t.Fatalf("ChannelByID = %v, %v", ch, err)
	}
	if ch.FollowerCount == nil || *ch.FollowerCount != 1234 {
		t.Errorf("FollowerCount = %v, want 1234", ch.FollowerCount)
	}
	if ch.LastRefreshedAt == nil {
		t.Error("LastRefreshedAt still nil after refresh")
	}

	v, err := db.VideoByID("v1")
	if err != nil || v == nil {
		t.Fatalf("VideoByID = %v, %v", v, err)
	}
	if v.DurationSeconds != 3600 {
		t.Errorf("DurationSeconds = %d, want 3600", v.DurationSeconds)
	}
}

func TestRefreshUsesStoredVideoCursor(t *testing.T) {
	latest := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	gw := &fakeGateway{
		users:     map[string]twitch.User{"100": {ID: "100", Login: "selfcaster"}},
		followers: map[string]int64{"100": 1},
	}
	h, db := setupHarvester(t, gw)

	if _, err := db.UpsertChannelStub("100", "selfcaster", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertVideos([]store.Video{{ID: "old", ChannelID: "100", PublishedAt: latest}}); err != nil {
		t.Fatal(err)
	}
	// Drain the backlog so the next cycle is a refresh.
	if _, err := h.RunCycle(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	if _, err := h.RunCycle(context.Background(), 2); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	got := gw.videoAfter["100"]
	if !got.Equal(latest) {
		t.Errorf("video fetch cursor = %v, want newest stored date %v", got, latest)
	}
}

func TestRefreshAdvancesCursorDespiteFetchFailure(t *testing.T) {
	gw := &fakeGateway{
		users:       map[string]twitch.User{"100": {ID: "100", Login: "selfcaster"}},
		followerErr: errors.New("api down"),
	}
	h, db := setupHarvester(t, gw)

	if _, err := db.UpsertChannelStub("100", "selfcaster", ""); err != nil {
		t.Fatal(err)
	}

	report, err := h.RunCycle(context.Background(), 1)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Failed != 1 {
		t.Errorf("Failed = %d, want 1", report.Failed)
	}

	ch, err := db.ChannelByID("100")
	if err != nil || ch == nil {
		t.Fatal(err)
	}
	if ch.LastRefreshedAt == nil {
		t.Error("failed refresh left the channel pinned at the front of the rotation")
	}
}

func TestBacklogCycleBuildsEdges(t *testing.T) {
	gw := &fakeGateway{}
	h, db := setupHarvester(t, gw)

	mustStub := func(id, login string) {
		t.Helper()
		if _, err := db.UpsertChannelStub(id, login, ""); err != nil {
			t.Fatal(err)
		}
	}
	mustStub("100", "selfcaster")
	mustStub("200", "foorunner")

	published := time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)
	if _, err := db.InsertVideos([]store.Video{{
		ID: "v1", ChannelID: "100", Title: "duos with @foorunner",
		PublishedAt: published, DurationSeconds: 3600,
	}}); err != nil {
		t.Fatal(err)
	}

	report, err := h.RunCycle(context.Background(), 1)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Kind != CycleBacklog {
		t.Fatalf("Kind = %s, want backlog", report.Kind)
	}
	if report.Processed != 1 {
		t.Errorf("Processed = %d, want 1", report.Processed)
	}

	edge, err := db.EdgeBetween("100", "200")
	if err != nil || edge == nil {
		t.Fatalf("EdgeBetween = %v, %v", edge, err)
	}
	if edge.Count != 1 || edge.TotalDurationSeconds != 3600 {
		t.Errorf("edge = %+v, want count 1, duration 3600", edge)
	}
}

func TestRunStopsWhenStable(t *testing.T) {
	// Nothing to discover, nothing to process: the first discovery cycle
	// declares stability.
	gw := &fakeGateway{}
	h, _ := setupHarvester(t, gw)

	bus := events.NewBus[CycleReport]()
	h.bus = bus
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := bus.Subscribe(ctx)

	last, err := h.Run(context.Background(), 50, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if last == nil || !last.Stable {
		t.Fatalf("last report = %+v, want stable", last)
	}
	if last.Ordinal != 1 {
		t.Errorf("stabilized after %d cycles, want 1", last.Ordinal)
	}

	// Both the cycle event and the stability event are published.
	kinds := map[events.Kind]bool{}
	for i := 0; i < 2; i++ {
		select {
		case evt := <-sub:
			kinds[evt.Kind] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	if !kinds[events.CycleCompleted] || !kinds[events.GraphStable] {
		t.Errorf("published kinds = %v, want cycle_completed and graph_stable", kinds)
	}
}

func TestRunHonorsMaxCycles(t *testing.T) {
	// Discovery on cycle 1 stubs a channel, refresh on cycle 2 fills it
	// in, so the loop needs all three allotted cycles.
	gw := &fakeGateway{
		categories: []twitch.Category{{ID: "1", Name: "Chess"}},
		streams: map[string][]twitch.Stream{
			"1": {{UserID: "100", UserLogin: "selfcaster", UserName: "SelfCaster"}},
		},
		users:     map[string]twitch.User{"100": {ID: "100", Login: "selfcaster"}},
		followers: map[string]int64{"100": 5},
	}
	h, _ := setupHarvester(t, gw)

	last, err := h.Run(context.Background(), 3, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if last == nil {
		t.Fatal("no cycles ran")
	}
	if last.Ordinal != 3 {
		t.Errorf("last ordinal = %d, want 3", last.Ordinal)
	}
}

func TestDiscoveryIsolatesCategoryFailures(t *testing.T) {
	gw := &fakeGateway{
		categories: []twitch.Category{{ID: "1", Name: "Chess"}, {ID: "2", Name: "Poker"}},
		streamsErr: errors.New("api down"),
	}
	h, _ := setupHarvester(t, gw)

	report, err := h.RunCycle(context.Background(), 1)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Failed != 2 {
		t.Errorf("Failed = %d, want 2 failed categories", report.Failed)
	}
}

func TestRunCycleCancelled(t *testing.T) {
	gw := &fakeGateway{
		categories: []twitch.Category{{ID: "1", Name: "Chess"}},
	}
	h, _ := setupHarvester(t, gw)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := h.RunCycle(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
