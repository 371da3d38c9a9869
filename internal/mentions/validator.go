package mentions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nlefebvre/collabnet/internal/store"
	"github.com/nlefebvre/collabnet/internal/twitch"
)

// Outcome classifies what happened to one candidate handle.
type Outcome int

const (
	OutcomeResolved  Outcome = iota // handle maps to a known or newly discovered channel
	OutcomeUnknown                  // handle resolves to no channel; routine noise
	OutcomeMalformed                // handle fails the syntax check
)

// String returns a human-readable name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeResolved:
		return "resolved"
	case OutcomeUnknown:
		return "unknown"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "invalid"
	}
}

// Diagnostics counts validation outcomes across a batch. Unknown and
// malformed handles are not errors; they are only visible here.
type Diagnostics struct {
	Resolved  int
	Unknown   int
	Malformed int
}

// Resolution is the result of validating a batch of handles.
type Resolution struct {
	// IDByLogin maps each resolved lowercase login to its channel id.
	IDByLogin map[string]string

	// NewChannels is how many resolved handles were previously unseen and
	// were inserted as stub channels (discovery by mention).
	NewChannels int

	Diag Diagnostics
}

// ChannelStore is the subset of the store the validator needs.
type ChannelStore interface {
	ChannelsByLogins(logins []string) (map[string]*store.Channel, error)
	UpsertChannelStub(id, login, displayName string) (bool, error)
}

// UserLookup is the gateway endpoint the validator needs.
type UserLookup interface {
	UsersByLogin(ctx context.Context, logins []string) ([]twitch.User, error)
}

// Validator resolves candidate handles to canonical channel ids. The store
// is consulted first; only unknown logins go out over the API, batched
// across the whole processing batch to minimize call count.
type Validator struct {
	store   ChannelStore
	gateway UserLookup
	logger  *slog.Logger
}

// NewValidator creates a Validator.
func NewValidator(st ChannelStore, gw UserLookup, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{store: st, gateway: gw, logger: logger}
}

// ResolveLogins validates a batch of candidate handles. A handle that
// resolves to nothing is discarded, not an error; an API failure on the
// lookup leaves its handles unresolved so their videos are retried on a
// later cycle.
func (v *Validator) ResolveLogins(ctx context.Context, handles []string) (*Resolution, error) {
	res := &Resolution{IDByLogin: make(map[string]string)}

	var candidates []string
	seen := make(map[string]bool)
	for _, h := range handles {
		h = strings.ToLower(h)
		if seen[h] {
			continue
		}
		seen[h] = true
		if !wellFormed(h) {
			res.Diag.Malformed++
			continue
		}
		candidates = append(candidates, h)
	}
	if len(candidates) == 0 {
		return res, nil
	}

	// Cheap path: logins already in the store.
	known, err := v.store.ChannelsByLogins(candidates)
	if err != nil {
		return nil, fmt.Errorf("looking up mentioned logins: %w", err)
	}

	var misses []string
	for _, login := range candidates {
		if ch, ok := known[login]; ok {
			res.IDByLogin[login] = ch.ID
			res.Diag.Resolved++
		} else {
			misses = append(misses, login)
		}
	}
	if len(misses) == 0 {
		return res, nil
	}

	// Remote path: one batched lookup for everything the store has never
	// seen. UsersByLogin chunks internally.
	users, err := v.gateway.UsersByLogin(ctx, misses)
	if err != nil {
		return nil, fmt.Errorf("resolving mentioned logins via api: %w", err)
	}

	resolved := make(map[string]bool, len(users))
	for _, u := range users {
		login := strings.ToLower(u.Login)
		resolved[login] = true
		res.IDByLogin[login] = u.ID
		res.Diag.Resolved++

		created, err := v.store.UpsertChannelStub(u.ID, u.Login, u.DisplayName)
		if err != nil {
			return nil, fmt.Errorf("inserting discovered channel %s: %w", u.Login, err)
		}
		if created {
			res.NewChannels++
			v.logger.Debug("discovered channel via mention", "login", login, "id", u.ID)
		}
	}

	for _, login := range misses {
		if !resolved[login] {
			res.Diag.Unknown++
		}
	}

	return res, nil
}
