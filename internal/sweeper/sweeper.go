// Package sweeper bounds local storage size with cheap, randomized
// maintenance passes that respect the exclusion cache.
package sweeper

import (
	"context"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/roach88/plume/internal/cache"
	"github.com/roach88/plume/internal/relay"
	"github.com/roach88/plume/internal/store"
)

// Targets holds per-category retention targets. A category is swept only
// once its row count exceeds twice its target, preventing thrashing on
// small datasets.
type Targets struct {
	Posts        int
	Profiles     int
	ContactLists int
	RelayLists   int
}

// DefaultTargets is a sensible bound for a single-account client.
var DefaultTargets = Targets{
	Posts:        500,
	Profiles:     500,
	ContactLists: 250,
	RelayLists:   250,
}

// category is one maintenance unit; each sweep picks exactly one.
type category int

const (
	categoryPosts category = iota
	categoryProfiles
	categoryContactLists
	categoryRelayLists
	numCategories
)

func (c category) String() string {
	switch c {
	case categoryPosts:
		return "posts"
	case categoryProfiles:
		return "profiles"
	case categoryContactLists:
		return "contact lists"
	case categoryRelayLists:
		return "relay lists"
	}
	return "unknown"
}

// Sweeper deletes old rows around the exclusion cache. At most one sweep
// runs at a time; a losing concurrent caller skips its cycle rather than
// queuing.
type Sweeper struct {
	store     *store.Store
	exclusion *cache.Exclusion
	identity  relay.Identity
	targets   Targets
	intn      func(n int) int

	inFlight atomic.Bool
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithRand injects the category picker's random source, for deterministic
// tests. intn must behave like rand.Intn.
func WithRand(intn func(n int) int) Option {
	return func(s *Sweeper) { s.intn = intn }
}

// New creates a sweeper.
func New(st *store.Store, excl *cache.Exclusion, identity relay.Identity, targets Targets, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:     st,
		exclusion: excl,
		identity:  identity,
		targets:   targets,
		intn:      rand.Intn,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep runs one maintenance pass over a single randomly chosen category.
// Spreading the work over many cheap sweeps keeps any one pass short and
// the write lock uncontended.
//
// Returns nil when the sweep is skipped, either because another sweep is
// in flight or because the category is under its thrash threshold.
func (s *Sweeper) Sweep(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		slog.Debug("sweep already in flight, skipping cycle")
		return nil
	}
	defer s.inFlight.Store(false)

	switch category(s.intn(int(numCategories))) {
	case categoryPosts:
		return s.sweepPosts(ctx)
	case categoryProfiles:
		return s.sweepOrphans(ctx, categoryProfiles, cache.Profiles, s.targets.Profiles,
			s.store.CountProfiles, s.store.DeleteOrphanedProfiles)
	case categoryContactLists:
		return s.sweepOrphans(ctx, categoryContactLists, cache.ContactLists, s.targets.ContactLists,
			s.store.CountContactAuthors, s.store.DeleteOrphanedContactLists)
	case categoryRelayLists:
		return s.sweepOrphans(ctx, categoryRelayLists, cache.RelayLists, s.targets.RelayLists,
			s.store.CountRelayListPubkeys, s.store.DeleteOrphanedRelayLists)
	}
	return nil
}

func (s *Sweeper) sweepPosts(ctx context.Context) error {
	count, err := s.store.CountPosts(ctx)
	if err != nil {
		return err
	}
	if count < 2*s.targets.Posts {
		slog.Debug("skipping posts sweep", "count", count, "target", s.targets.Posts)
		return nil
	}

	exclude := s.exclusion.Snapshot(cache.Posts)
	start := time.Now()

	deleted, err := s.store.DeletePostsExceptNewest(ctx, s.targets.Posts, exclude, s.identity.OwnPubkey())
	if err != nil {
		return err
	}
	s.exclusion.Clear(cache.Posts)
	if deleted == 0 {
		return nil
	}

	// Rows referencing deleted posts are garbage now.
	reactions, err := s.store.DeleteOrphanedReactions(ctx)
	if err != nil {
		return err
	}
	relays, err := s.store.DeleteOrphanedEventRelays(ctx)
	if err != nil {
		return err
	}
	hashtags, err := s.store.DeleteOrphanedHashtags(ctx)
	if err != nil {
		return err
	}

	slog.Info("posts sweep complete",
		"deleted", deleted,
		"reactions", reactions,
		"event_relays", relays,
		"hashtags", hashtags,
		"excluded", len(exclude),
		"took", time.Since(start))
	return nil
}

// sweepOrphans handles the three snapshot categories, which share one
// shape: delete rows whose pubkey no longer has a referencing post and is
// neither excluded nor our own, then clear that exclusion set.
func (s *Sweeper) sweepOrphans(
	ctx context.Context,
	cat category,
	exclCat cache.Category,
	target int,
	count func(context.Context) (int, error),
	deleteRows func(context.Context, []string) (int64, error),
) error {
	n, err := count(ctx)
	if err != nil {
		return err
	}
	if n < 2*target {
		slog.Debug("skipping sweep", "category", cat.String(), "count", n, "target", target)
		return nil
	}

	exclude := append(s.exclusion.Snapshot(exclCat), s.identity.OwnPubkey())
	start := time.Now()

	deleted, err := deleteRows(ctx, exclude)
	if err != nil {
		return err
	}
	s.exclusion.Clear(exclCat)

	slog.Info("sweep complete",
		"category", cat.String(),
		"deleted", deleted,
		"excluded", len(exclude)-1,
		"took", time.Since(start))
	return nil
}

// Run sweeps on the given interval until ctx is cancelled. Errors are
// logged, never fatal: the next tick gets another chance.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				slog.Error("sweep failed", "error", err)
			}
		}
	}
}
