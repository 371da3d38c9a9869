package store

import (
	"testing"
	"time"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustStub(t *testing.T, db *DB, id, login string) {
	t.Helper()
	if _, err := db.UpsertChannelStub(id, login, login); err != nil {
		t.Fatalf("UpsertChannelStub(%s) failed: %v", login, err)
	}
}

func mustInsertVideo(t *testing.T, db *DB, v Video) {
	t.Helper()
	if _, err := db.InsertVideos([]Video{v}); err != nil {
		t.Fatalf("InsertVideos(%s) failed: %v", v.ID, err)
	}
}

func TestMigration(t *testing.T) {
	db := setupTestDB(t)

	var version int
	err := db.Conn().QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		t.Fatalf("failed to read user_version: %v", err)
	}
	if version != currentVersion {
		t.Errorf("expected user_version %d, got %d", currentVersion, version)
	}
}

func TestChannelStubIdempotent(t *testing.T) {
	db := setupTestDB(t)

	created, err := db.UpsertChannelStub("1001", "FooBar", "FooBar")
	if err != nil {
		t.Fatalf("UpsertChannelStub failed: %v", err)
	}
	if !created {
		t.Error("first insert should report a new channel")
	}

	created, err = db.UpsertChannelStub("1001", "foobar", "FooBar")
	if err != nil {
		t.Fatalf("second UpsertChannelStub failed: %v", err)
	}
	if created {
		t.Error("second insert should not report a new channel")
	}

	// Logins are stored lowercased and looked up case-insensitively.
	ch, err := db.ChannelByLogin("FOOBAR")
	if err != nil {
		t.Fatalf("ChannelByLogin failed: %v", err)
	}
	if ch == nil || ch.ID != "1001" {
		t.Fatalf("expected channel 1001, got %+v", ch)
	}
	if ch.Login != "foobar" {
		t.Errorf("expected lowercased login, got %q", ch.Login)
	}
	if ch.LastRefreshedAt != nil {
		t.Error("stub channel should have nil LastRefreshedAt")
	}
}

func TestChannelDetailsUpsert(t *testing.T) {
	db := setupTestDB(t)
	mustStub(t, db, "1001", "foo")

	followers := int64(5000)
	err := db.UpsertChannelDetails(&Channel{
		ID:            "1001",
		Login:         "foo",
		DisplayName:   "Foo",
		Description:   "streams stuff",
		ViewCount:     99,
		FollowerCount: &followers,
		ImageURL:      "https://img.example/foo.png",
	})
	if err != nil {
		t.Fatalf("UpsertChannelDetails failed: %v", err)
	}

	// A later update without follower data keeps the stored count.
	err = db.UpsertChannelDetails(&Channel{
		ID: "1001", Login: "foo", DisplayName: "Foo!", ViewCount: 120,
	})
	if err != nil {
		t.Fatalf("second UpsertChannelDetails failed: %v", err)
	}

	ch, err := db.ChannelByID("1001")
	if err != nil {
		t.Fatalf("ChannelByID failed: %v", err)
	}
	if ch.DisplayName != "Foo!" || ch.ViewCount != 120 {
		t.Errorf("details not updated: %+v", ch)
	}
	if ch.FollowerCount == nil || *ch.FollowerCount != 5000 {
		t.Errorf("expected follower count preserved, got %v", ch.FollowerCount)
	}
}

func TestChannelsByLogins(t *testing.T) {
	db := setupTestDB(t)
	mustStub(t, db, "1", "alpha")
	mustStub(t, db, "2", "beta")

	found, err := db.ChannelsByLogins([]string{"Alpha", "beta", "ghost"})
	if err != nil {
		t.Fatalf("ChannelsByLogins failed: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 resolved logins, got %d", len(found))
	}
	if found["alpha"].ID != "1" || found["beta"].ID != "2" {
		t.Errorf("unexpected resolution: %+v", found)
	}
	if _, ok := found["ghost"]; ok {
		t.Error("unknown login should be absent from the result")
	}
}

func TestStalestChannelsOrdering(t *testing.T) {
	db := setupTestDB(t)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	mustStub(t, db, "30", "old")
	mustStub(t, db, "10", "never_a")
	mustStub(t, db, "20", "never_b")
	mustStub(t, db, "40", "fresh")

	if err := db.TouchChannelRefreshed("30", base); err != nil {
		t.Fatalf("TouchChannelRefreshed failed: %v", err)
	}
	if err := db.TouchChannelRefreshed("40", base.Add(72*time.Hour)); err != nil {
		t.Fatalf("TouchChannelRefreshed failed: %v", err)
	}

	got, err := db.StalestChannels(3)
	if err != nil {
		t.Fatalf("StalestChannels failed: %v", err)
	}

	// Never-refreshed first (id order), then oldest refresh.
	wantIDs := []string{"10", "20", "30"}
	if len(got) != len(wantIDs) {
		t.Fatalf("expected %d channels, got %d", len(wantIDs), len(got))
	}
	for i, want := range wantIDs {
		if got[i].ID != want {
			t.Errorf("position %d: expected channel %s, got %s", i, want, got[i].ID)
		}
	}
}

func TestInsertVideosIgnoresKnownIDs(t *testing.T) {
	db := setupTestDB(t)
	mustStub(t, db, "1", "src")
	published := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	n, err := db.InsertVideos([]Video{
		{ID: "v1", ChannelID: "1", Title: "first", PublishedAt: published, DurationSeconds: 60},
		{ID: "v2", ChannelID: "1", Title: "second", PublishedAt: published.Add(time.Hour), DurationSeconds: 90},
	})
	if err != nil {
		t.Fatalf("InsertVideos failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 inserted, got %d", n)
	}

	n, err = db.InsertVideos([]Video{
		{ID: "v1", ChannelID: "1", Title: "renamed", PublishedAt: published},
		{ID: "v3", ChannelID: "1", Title: "third", PublishedAt: published.Add(2 * time.Hour)},
	})
	if err != nil {
		t.Fatalf("second InsertVideos failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected only v3 inserted on replay, got %d", n)
	}

	v, err := db.VideoByID("v1")
	if err != nil {
		t.Fatalf("VideoByID failed: %v", err)
	}
	if v.Title != "first" {
		t.Errorf("replay must not overwrite existing video, got title %q", v.Title)
	}
}

func TestUnprocessedVideosOrderAndLimit(t *testing.T) {
	db := setupTestDB(t)
	mustStub(t, db, "1", "src")

	for _, id := range []string{"vb", "va", "vc"} {
		mustInsertVideo(t, db, Video{ID: id, ChannelID: "1", PublishedAt: time.Now()})
	}

	videos, err := db.UnprocessedVideos(2)
	if err != nil {
		t.Fatalf("UnprocessedVideos failed: %v", err)
	}
	if len(videos) != 2 {
		t.Fatalf("expected 2 videos, got %d", len(videos))
	}
	// Identical fetched_at: id breaks the tie.
	if videos[0].ID != "va" || videos[1].ID != "vb" {
		t.Errorf("unexpected order: %s, %s", videos[0].ID, videos[1].ID)
	}
}

func TestLatestPublishedAt(t *testing.T) {
	db := setupTestDB(t)
	mustStub(t, db, "1", "src")

	if latest, err := db.LatestPublishedAt("1"); err != nil || latest != nil {
		t.Fatalf("expected nil for empty channel, got %v, %v", latest, err)
	}

	older := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	mustInsertVideo(t, db, Video{ID: "v1", ChannelID: "1", PublishedAt: newer})
	mustInsertVideo(t, db, Video{ID: "v2", ChannelID: "1", PublishedAt: older})

	latest, err := db.LatestPublishedAt("1")
	if err != nil {
		t.Fatalf("LatestPublishedAt failed: %v", err)
	}
	if latest == nil || !latest.Equal(newer) {
		t.Errorf("expected %v, got %v", newer, latest)
	}
}

func TestUpsertCategoriesImmutable(t *testing.T) {
	db := setupTestDB(t)

	err := db.UpsertCategories([]Category{{ID: "509658", Name: "Just Chatting"}})
	if err != nil {
		t.Fatalf("UpsertCategories failed: %v", err)
	}
	err = db.UpsertCategories([]Category{{ID: "509658", Name: "Renamed"}})
	if err != nil {
		t.Fatalf("second UpsertCategories failed: %v", err)
	}

	c, err := db.CategoryByID("509658")
	if err != nil {
		t.Fatalf("CategoryByID failed: %v", err)
	}
	if c.Name != "Just Chatting" {
		t.Errorf("category name must be immutable, got %q", c.Name)
	}
}

func TestGetStats(t *testing.T) {
	db := setupTestDB(t)
	mustStub(t, db, "1", "a")
	mustStub(t, db, "2", "b")
	mustInsertVideo(t, db, Video{ID: "v1", ChannelID: "1", PublishedAt: time.Now()})

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.Channels != 2 || stats.Videos != 1 || stats.UnprocessedVideos != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.NeverRefreshed != 2 {
		t.Errorf("expected 2 never-refreshed channels, got %d", stats.NeverRefreshed)
	}
	if stats.StalestRefreshed != nil {
		t.Errorf("expected nil stalest refresh, got %v", stats.StalestRefreshed)
	}
}
