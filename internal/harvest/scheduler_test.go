package harvest

import (
	"testing"
	"time"

	"github.com/nlefebvre/collabnet/internal/store"
)

func TestChoose(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fresh := now.Add(-time.Hour)
	stale := now.Add(-200 * time.Hour)

	sched := &Scheduler{DiscoveryInterval: 10, StalenessAge: 168 * time.Hour}

	tests := []struct {
		name    string
		ordinal int
		stats   store.HarvestStats
		want    CycleKind
	}{
		{
			name:    "backlog takes priority",
			ordinal: 1,
			stats:   store.HarvestStats{UnprocessedVideos: 42, NeverRefreshed: 3},
			want:    CycleBacklog,
		},
		{
			name:    "never refreshed channels trigger refresh",
			ordinal: 2,
			stats:   store.HarvestStats{NeverRefreshed: 1},
			want:    CycleRefresh,
		},
		{
			name:    "stale channel triggers refresh",
			ordinal: 3,
			stats:   store.HarvestStats{StalestRefreshed: &stale},
			want:    CycleRefresh,
		},
		{
			name:    "fresh channels fall through to discovery",
			ordinal: 4,
			stats:   store.HarvestStats{StalestRefreshed: &fresh},
			want:    CycleDiscovery,
		},
		{
			name:    "empty store discovers",
			ordinal: 1,
			stats:   store.HarvestStats{},
			want:    CycleDiscovery,
		},
		{
			name:    "interval forces discovery over backlog",
			ordinal: 10,
			stats:   store.HarvestStats{UnprocessedVideos: 500},
			want:    CycleDiscovery,
		},
		{
			name:    "interval forces discovery over refresh",
			ordinal: 20,
			stats:   store.HarvestStats{NeverRefreshed: 5},
			want:    CycleDiscovery,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sched.Choose(tt.ordinal, &tt.stats, now); got != tt.want {
				t.Errorf("Choose(%d) = %s, want %s", tt.ordinal, got, tt.want)
			}
		})
	}
}

func TestChooseIntervalDisabled(t *testing.T) {
	now := time.Now()
	sched := &Scheduler{DiscoveryInterval: 0, StalenessAge: 168 * time.Hour}

	stats := &store.HarvestStats{UnprocessedVideos: 1}
	for _, ordinal := range []int{1, 10, 100, 1000} {
		if got := sched.Choose(ordinal, stats, now); got != CycleBacklog {
			t.Errorf("Choose(%d) = %s, want backlog when forcing is disabled", ordinal, got)
		}
	}
}

func TestRefreshDueBoundary(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sched := &Scheduler{StalenessAge: time.Hour}

	exactly := now.Add(-time.Hour)
	if !sched.refreshDue(&store.HarvestStats{StalestRefreshed: &exactly}, now) {
		t.Error("channel exactly at the threshold should be due")
	}

	justUnder := now.Add(-time.Hour + time.Second)
	if sched.refreshDue(&store.HarvestStats{StalestRefreshed: &justUnder}, now) {
		t.Error("channel just under the threshold should not be due")
	}

	if sched.refreshDue(&store.HarvestStats{}, now) {
		t.Error("empty store has nothing due")
	}
}
