// Package subscriber resolves embedded references in stored posts and
// decides what else to fetch from the network.
//
// Resolution is pure over the already-materialized post content; the only
// I/O is issuing relay subscriptions (and the post-id existence check
// against storage).
package subscriber

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/roach88/plume/internal/cache"
	"github.com/roach88/plume/internal/nostr"
	"github.com/roach88/plume/internal/relay"
	"github.com/roach88/plume/internal/store"
)

// Subscriber issues reference subscriptions sharded by relay hint.
type Subscriber struct {
	transport relay.Subscriber
	relays    relay.Provider
	exclusion *cache.Exclusion
	store     *store.Store
	intn      func(n int) int

	mu     sync.Mutex
	issued []string
}

// Option configures a Subscriber.
type Option func(*Subscriber)

// WithRand injects the re-subscription sampler's random source.
func WithRand(intn func(n int) int) Option {
	return func(s *Subscriber) { s.intn = intn }
}

// New creates a subscriber.
func New(transport relay.Subscriber, relays relay.Provider, excl *cache.Exclusion, st *store.Store, opts ...Option) *Subscriber {
	s := &Subscriber{
		transport: transport,
		relays:    relays,
		exclusion: excl,
		store:     st,
		intn:      rand.Intn,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveMentionedPosts extracts post references from the posts' content
// and subscribes to the ones not in local storage, one subscription per
// relay. Hintless ids fall back to the default read relays; a hinted id
// additionally lands in the default-relay group - intentional
// over-fetching to raise delivery odds.
//
// Returns every mentioned post pointer, fetched or not.
func (s *Subscriber) ResolveMentionedPosts(ctx context.Context, posts []nostr.Post) ([]nostr.PostPointer, error) {
	if len(posts) == 0 {
		return nil, nil
	}

	mentioned := nostr.ExtractPostPointers(contents(posts))
	if len(mentioned) == 0 {
		return nil, nil
	}

	existing, err := s.store.FilterExistingPostIDs(ctx, pointerIDs(mentioned))
	if err != nil {
		return nil, err
	}
	existingSet := toSet(existing)

	var unknown []nostr.PostPointer
	for _, ptr := range mentioned {
		if _, ok := existingSet[ptr.ID]; !ok {
			unknown = append(unknown, ptr)
		}
	}
	slog.Info("resolving mentioned posts", "mentioned", len(mentioned), "new", len(unknown))

	idsByRelay := buildRelayMap(unknown,
		func(p nostr.PostPointer) string { return p.ID },
		func(p nostr.PostPointer) []string { return p.Relays },
		s.relays.ReadRelays())
	for relayURL, ids := range idsByRelay {
		s.subscribe(ctx, []relay.Filter{{IDs: ids, Kinds: []int{nostr.KindTextNote}}}, relayURL)
	}

	return mentioned, nil
}

// Resolved is the outcome of a profile resolution pass: the full set of
// mentioned pubkeys plus the batch's author pubkeys, regardless of which
// subset was actually re-subscribed. Consumers need the full set for
// trust and annotation display.
type Resolved struct {
	MentionedPubkeys []string
	AuthorPubkeys    []string
}

// ResolveMentionedProfiles extracts profile references and subscribes to
// them, bounding request volume: unknown pubkeys are always subscribed,
// but among the ones already known locally only a random half (rounded
// up, minimum 1) is refreshed per call.
func (s *Subscriber) ResolveMentionedProfiles(ctx context.Context, posts []nostr.Post) (Resolved, error) {
	if len(posts) == 0 {
		return Resolved{}, nil
	}

	authors := make([]string, 0, len(posts))
	for _, post := range posts {
		authors = append(authors, post.Pubkey)
	}

	mentioned := nostr.ExtractProfilePointers(contents(posts))
	if len(mentioned) == 0 {
		return Resolved{AuthorPubkeys: authors}, nil
	}

	var known, toSub []nostr.ProfilePointer
	for _, ptr := range mentioned {
		if s.exclusion.Contains(cache.Profiles, ptr.Pubkey) {
			known = append(known, ptr)
		} else {
			toSub = append(toSub, ptr)
		}
	}
	toSub = append(toSub, s.sampleHalf(known)...)
	slog.Info("resolving mentioned profiles", "mentioned", len(mentioned), "subscribed", len(toSub))

	pubkeysByRelay := buildRelayMap(toSub,
		func(p nostr.ProfilePointer) string { return p.Pubkey },
		func(p nostr.ProfilePointer) []string { return p.Relays },
		s.relays.ReadRelays())
	for relayURL, pubkeys := range pubkeysByRelay {
		s.subscribe(ctx, []relay.Filter{{
			Authors: pubkeys,
			Kinds:   []int{nostr.KindProfileMetadata, nostr.KindRelayList},
		}}, relayURL)
	}

	return Resolved{MentionedPubkeys: pointerPubkeys(mentioned), AuthorPubkeys: authors}, nil
}

// sampleHalf picks a uniformly random half (rounded up, minimum 1) of the
// known pointers for re-subscription.
func (s *Subscriber) sampleHalf(known []nostr.ProfilePointer) []nostr.ProfilePointer {
	if len(known) == 0 {
		return nil
	}
	shuffled := make([]nostr.ProfilePointer, len(known))
	copy(shuffled, known)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := s.intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	take := (len(known) + 1) / 2
	if take < 1 {
		take = 1
	}
	return shuffled[:take]
}

// subscribe opens one fire-and-forget subscription; failures are logged
// and skipped, resolved only by the next periodic pass.
func (s *Subscriber) subscribe(ctx context.Context, filters []relay.Filter, relayURL string) {
	ids, err := s.transport.OpenSubscription(ctx, filters, []string{relayURL})
	if err != nil {
		slog.Warn("reference subscription failed", "relay", relayURL, "error", err)
		return
	}
	s.mu.Lock()
	s.issued = append(s.issued, ids...)
	s.mu.Unlock()
}

// CloseIssued closes every reference subscription opened since the last
// call. Advisory, like all unsubscription; callers use it as a resource
// bound when restarting a feed.
func (s *Subscriber) CloseIssued() {
	s.mu.Lock()
	issued := s.issued
	s.issued = nil
	s.mu.Unlock()

	if len(issued) > 0 {
		s.transport.CloseSubscription(issued)
	}
}

// buildRelayMap groups ids by relay hint, then hands the complete id list
// to every default relay as a fallback. Overlap between a hint group and
// the default group is deliberate.
func buildRelayMap[T any](objs []T, id func(T) string, relays func(T) []string, defaults []string) map[string][]string {
	if len(objs) == 0 {
		return nil
	}

	byRelay := make(map[string]map[string]struct{})
	add := func(relayURL, objID string) {
		set, ok := byRelay[relayURL]
		if !ok {
			set = make(map[string]struct{})
			byRelay[relayURL] = set
		}
		set[objID] = struct{}{}
	}

	for _, obj := range objs {
		for _, relayURL := range relays(obj) {
			add(relayURL, id(obj))
		}
	}
	for _, relayURL := range defaults {
		for _, obj := range objs {
			add(relayURL, id(obj))
		}
	}

	out := make(map[string][]string, len(byRelay))
	for relayURL, set := range byRelay {
		ids := make([]string, 0, len(set))
		for objID := range set {
			ids = append(ids, objID)
		}
		out[relayURL] = ids
	}
	return out
}

func contents(posts []nostr.Post) []string {
	out := make([]string, 0, len(posts))
	for _, post := range posts {
		out = append(out, post.Content)
	}
	return out
}

func pointerIDs(pointers []nostr.PostPointer) []string {
	out := make([]string, 0, len(pointers))
	for _, ptr := range pointers {
		out = append(out, ptr.ID)
	}
	return out
}

func pointerPubkeys(pointers []nostr.ProfilePointer) []string {
	out := make([]string, 0, len(pointers))
	for _, ptr := range pointers {
		out = append(out, ptr.Pubkey)
	}
	return out
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
