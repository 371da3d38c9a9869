// Package harvest drives the incremental collection loop: choosing what
// kind of work each cycle does and executing it against the API gateway
// and the store.
package harvest

import (
	"time"

	"github.com/nlefebvre/collabnet/internal/store"
)

// CycleKind names the three kinds of work a cycle can perform.
type CycleKind int

const (
	// CycleBacklog processes unscanned video titles into graph edges.
	CycleBacklog CycleKind = iota
	// CycleRefresh re-fetches the stalest channels and their recent videos.
	CycleRefresh
	// CycleDiscovery finds new channels through top categories and streams.
	CycleDiscovery
)

// String returns the cycle kind's name as used in logs.
func (k CycleKind) String() string {
	switch k {
	case CycleBacklog:
		return "backlog"
	case CycleRefresh:
		return "refresh"
	case CycleDiscovery:
		return "discovery"
	default:
		return "unknown"
	}
}

// Scheduler decides what each cycle should do. It carries no mutable
// state: the decision is a pure function of the cycle ordinal and the
// store's current shape, so a restarted process resumes sensibly without
// any persisted scheduler position.
type Scheduler struct {
	// DiscoveryInterval forces a discovery cycle every Nth cycle so a
	// deep backlog can never starve discovery. Zero disables forcing.
	DiscoveryInterval int

	// StalenessAge is how old a channel's last refresh must be before it
	// is worth spending requests on again.
	StalenessAge time.Duration
}

// Choose picks the work for cycle number ordinal (1-based) given the
// store's aggregate state. Backlog drains first, then overdue channels
// refresh, and discovery fills otherwise idle cycles.
func (s *Scheduler) Choose(ordinal int, stats *store.HarvestStats, now time.Time) CycleKind {
	if s.DiscoveryInterval > 0 && ordinal%s.DiscoveryInterval == 0 {
		return CycleDiscovery
	}
	if stats.UnprocessedVideos > 0 {
		return CycleBacklog
	}
	if s.refreshDue(stats, now) {
		return CycleRefresh
	}
	return CycleDiscovery
}

// refreshDue reports whether any channel is overdue for a refresh.
func (s *Scheduler) refreshDue(stats *store.HarvestStats, now time.Time) bool {
	if stats.NeverRefreshed > 0 {
		return true
	}
	return stats.StalestRefreshed != nil && now.Sub(*stats.StalestRefreshed) >= s.StalenessAge
}
