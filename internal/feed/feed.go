// Package feed composes author and relay filters into storage queries
// plus relay subscriptions, yielding a live, newest-first post stream.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/plume/internal/nostr"
	"github.com/roach88/plume/internal/relay"
	"github.com/roach88/plume/internal/store"
	"github.com/roach88/plume/internal/subscriber"
)

// AuthorSelection picks whose posts the feed shows.
type AuthorSelection int

const (
	// AuthorEveryone applies no author filter.
	AuthorEveryone AuthorSelection = iota
	// AuthorContacts restricts to the local account's follow list.
	AuthorContacts
	// AuthorSingle restricts to Settings.AuthorPubkey.
	AuthorSingle
)

// RelaySelection picks which relays the feed reads from.
type RelaySelection int

const (
	// RelayAll applies no relay filter.
	RelayAll RelaySelection = iota
	// RelayExplicit restricts to Settings.RelayURLs.
	RelayExplicit
	// RelayAutopilot shards the subscription by each author's declared
	// write relays.
	RelayAutopilot
)

// Settings selects a feed's content, author and relay filters.
type Settings struct {
	IsPosts      bool
	IsReplies    bool
	Hashtag      string
	Authors      AuthorSelection
	AuthorPubkey string
	Relays       RelaySelection
	RelayURLs    []string
}

// Post is an enriched feed row.
type Post struct {
	store.PostWithMeta
	IsMine bool
}

// refreshInterval is how often the live stream re-checks storage for
// writes landed by the subscriptions the feed itself issued.
const refreshInterval = time.Second

// Provider produces live feed streams. A provider keeps at most one
// active feed-plus-references subscription set: a new GetFeed call
// supersedes the previous stream and unsubscribes it best-effort.
type Provider struct {
	store      *store.Store
	transport  relay.Subscriber
	subscriber *subscriber.Subscriber
	relays     relay.Provider
	identity   relay.Identity
	now        func() time.Time

	mu         sync.Mutex
	feedSubIDs []string
	cancelPrev context.CancelFunc
}

// Option configures a Provider.
type Option func(*Provider)

// WithNow injects the clock used for the default time cursor.
func WithNow(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// New creates a feed provider.
func New(st *store.Store, transport relay.Subscriber, sub *subscriber.Subscriber, relays relay.Provider, identity relay.Identity, opts ...Option) *Provider {
	p := &Provider{
		store:      st,
		transport:  transport,
		subscriber: sub,
		relays:     relays,
		identity:   identity,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetFeed opens a new feed: it cancels the provider's previous feed and
// reference subscriptions, subscribes to matching posts with an inflated
// limit, optionally waits for initial responses to land in storage,
// queries up to limit posts older than until (0 means now), resolves
// mentions, and returns a stream that keeps reflecting storage writes
// until ctx is cancelled or a newer GetFeed supersedes it.
func (p *Provider) GetFeed(ctx context.Context, settings Settings, limit int, until int64, wait time.Duration) (<-chan []Post, error) {
	streamCtx := p.restart(ctx)

	authors, err := p.authorPubkeys(ctx, settings)
	if err != nil {
		return nil, err
	}

	if err := p.subscribeFeed(ctx, settings, authors, limit, until); err != nil {
		// A dead relay is not a feed error: storage still answers.
		slog.Warn("feed subscription failed", "error", err)
	}

	// Plain wait, not a completion signal: a deliberate
	// latency/completeness trade-off.
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-streamCtx.Done():
			return nil, streamCtx.Err()
		}
	}

	if until == 0 {
		until = p.now().Unix()
	}
	query := store.FeedQuery{
		IsPosts:   settings.IsPosts,
		IsReplies: settings.IsReplies,
		Hashtag:   settings.Hashtag,
		Authors:   authors,
		Relays:    p.relayFilter(settings),
		Until:     until,
		Limit:     limit,
	}
	posts, err := p.store.SelectFeedPosts(ctx, query)
	if err != nil {
		return nil, err
	}
	p.resolveReferences(ctx, posts)

	out := make(chan []Post, 1)
	go p.stream(streamCtx, query, out)
	return out, nil
}

// restart cancels the previous stream and closes its subscriptions,
// returning the context governing the new stream.
func (p *Provider) restart(ctx context.Context) context.Context {
	streamCtx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	prevCancel, prevIDs := p.cancelPrev, p.feedSubIDs
	p.cancelPrev, p.feedSubIDs = cancel, nil
	p.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}
	if len(prevIDs) > 0 {
		p.transport.CloseSubscription(prevIDs)
	}
	p.subscriber.CloseIssued()
	return streamCtx
}

func (p *Provider) authorPubkeys(ctx context.Context, settings Settings) ([]string, error) {
	switch settings.Authors {
	case AuthorContacts:
		contacts, err := p.store.ContactPubkeys(ctx, p.identity.OwnPubkey())
		if err != nil {
			return nil, err
		}
		if contacts == nil {
			contacts = []string{}
		}
		return contacts, nil
	case AuthorSingle:
		return []string{settings.AuthorPubkey}, nil
	default:
		return nil, nil
	}
}

func (p *Provider) relayFilter(settings Settings) []string {
	if settings.Relays == RelayExplicit {
		return settings.RelayURLs
	}
	return nil
}

// subscribeFeed opens the relay-side half of the feed. Relay filters
// cannot exclude replies, so the limit is inflated: x2 when replies are
// included, x3 for posts-only.
func (p *Provider) subscribeFeed(ctx context.Context, settings Settings, authors []string, limit int, until int64) error {
	if authors != nil && len(authors) == 0 {
		return nil
	}
	adjustedLimit := 3 * limit
	if settings.IsReplies {
		adjustedLimit = 2 * limit
	}

	filter := relay.Filter{
		Kinds:   []int{nostr.KindTextNote},
		Authors: authors,
		Until:   until,
		Limit:   adjustedLimit,
	}

	if settings.Relays == RelayAutopilot && authors != nil {
		return p.subscribeAutopilot(ctx, filter, authors)
	}

	relays := settings.RelayURLs
	if settings.Relays != RelayExplicit {
		relays = p.relays.ReadRelays()
	}
	ids, err := p.transport.OpenSubscription(ctx, []relay.Filter{filter}, relays)
	if err != nil {
		return err
	}
	p.trackSubIDs(ids)
	return nil
}

// subscribeAutopilot shards the author set across each author's declared
// write relays; authors without a relay-list snapshot fall back to the
// default read relays.
func (p *Provider) subscribeAutopilot(ctx context.Context, filter relay.Filter, authors []string) error {
	mapping, err := p.store.PubkeysByWriteRelay(ctx, authors)
	if err != nil {
		return err
	}

	mapped := make(map[string]bool)
	for relayURL, pubkeys := range mapping {
		shard := filter
		shard.Authors = pubkeys
		ids, err := p.transport.OpenSubscription(ctx, []relay.Filter{shard}, []string{relayURL})
		if err != nil {
			slog.Warn("autopilot shard subscription failed", "relay", relayURL, "error", err)
			continue
		}
		p.trackSubIDs(ids)
		for _, pk := range pubkeys {
			mapped[pk] = true
		}
	}

	var unmapped []string
	for _, author := range authors {
		if !mapped[author] {
			unmapped = append(unmapped, author)
		}
	}
	if len(unmapped) > 0 {
		shard := filter
		shard.Authors = unmapped
		ids, err := p.transport.OpenSubscription(ctx, []relay.Filter{shard}, p.relays.ReadRelays())
		if err != nil {
			return err
		}
		p.trackSubIDs(ids)
	}
	return nil
}

// resolveReferences triggers the mention/profile subscriber for a batch
// and subscribes to its not-yet-known authors.
func (p *Provider) resolveReferences(ctx context.Context, posts []nostr.Post) {
	if len(posts) == 0 {
		return
	}
	if _, err := p.subscriber.ResolveMentionedProfiles(ctx, posts); err != nil {
		slog.Warn("mentioned profile resolution failed", "error", err)
	}
	if _, err := p.subscriber.ResolveMentionedPosts(ctx, posts); err != nil {
		slog.Warn("mentioned post resolution failed", "error", err)
	}

	ids := make([]string, 0, len(posts))
	for _, post := range posts {
		ids = append(ids, post.ID)
	}
	unknown, err := p.store.UnknownAuthors(ctx, ids)
	if err != nil {
		slog.Warn("unknown author lookup failed", "error", err)
		return
	}
	if len(unknown) == 0 {
		return
	}
	subIDs, err := p.transport.OpenSubscription(ctx, []relay.Filter{{
		Kinds:   []int{nostr.KindProfileMetadata, nostr.KindRelayList},
		Authors: unknown,
	}}, p.relays.ReadRelays())
	if err != nil {
		slog.Warn("unknown author subscription failed", "error", err)
		return
	}
	p.trackSubIDs(subIDs)
}

func (p *Provider) trackSubIDs(ids []string) {
	p.mu.Lock()
	p.feedSubIDs = append(p.feedSubIDs, ids...)
	p.mu.Unlock()
}

// stream emits the enriched batch whenever the stored rows behind the
// query change, so writes landed by just-issued subscriptions appear
// without re-invocation.
func (p *Provider) stream(ctx context.Context, query store.FeedQuery, out chan<- []Post) {
	defer close(out)

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	var (
		last    []Post
		emitted bool
	)
	emit := func() {
		posts, err := p.loadEnriched(ctx, query)
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("feed refresh failed", "error", err)
			}
			return
		}
		// The first batch always goes out, even empty: consumers render
		// it as the initial state. After that only changes are emitted.
		if emitted && equalPosts(posts, last) {
			return
		}
		last = posts
		emitted = true
		select {
		case out <- posts:
		case <-ctx.Done():
		}
	}

	emit()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			emit()
		}
	}
}

func (p *Provider) loadEnriched(ctx context.Context, query store.FeedQuery) ([]Post, error) {
	base, err := p.store.SelectFeedPosts(ctx, query)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(base))
	for _, post := range base {
		ids = append(ids, post.ID)
	}

	own := p.identity.OwnPubkey()
	meta, err := p.store.SelectPostsWithMeta(ctx, ids, own)
	if err != nil {
		return nil, err
	}

	posts := make([]Post, 0, len(meta))
	for _, m := range meta {
		posts = append(posts, Post{PostWithMeta: m, IsMine: m.Pubkey == own})
	}
	return posts, nil
}

// equalPosts compares batches on the fields a renderer shows, keeping
// refresh emissions quiet when nothing visible changed.
func equalPosts(a, b []Post) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ID != y.ID ||
			x.AuthorName != y.AuthorName ||
			x.AuthorPicture != y.AuthorPicture ||
			x.ReplyToName != y.ReplyToName ||
			x.ReplyToPubkey != y.ReplyToPubkey ||
			x.LikedByMe != y.LikedByMe ||
			x.ReplyCount != y.ReplyCount {
			return false
		}
	}
	return true
}
