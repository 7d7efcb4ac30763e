// Package processor validates, classifies, deduplicates and persists the
// unordered event stream arriving from relay connections.
//
// Validation is synchronous - malformed events never reach storage.
// Persistence is dispatched to a bounded background queue and is not
// guaranteed to complete in delivery order; "latest wins" decisions are
// timestamp-based, never arrival-based.
package processor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/plume/internal/cache"
	"github.com/roach88/plume/internal/nostr"
	"github.com/roach88/plume/internal/store"
)

// futureTolerance is how far ahead of local time an event's created_at
// may sit before the event is discarded.
const futureTolerance = 60 * time.Second

// Processor ingests events from any number of concurrent relay-delivery
// goroutines. All methods are safe for concurrent use.
type Processor struct {
	store      *store.Store
	exclusion  *cache.Exclusion
	dispatcher *Dispatcher
	now        func() time.Time

	// upperBound is the rolling future-tolerance boundary, recomputed
	// lazily on violation so clock drift across a burst of events is not
	// repeatedly penalized.
	upperBound atomic.Int64

	mu         sync.Mutex
	seenByKind map[int]map[string]struct{} // snapshot kinds: skip repeat verify+upsert
	seenRelays map[string]struct{}         // eventID+relayURL pairs already recorded
}

// Option configures a Processor.
type Option func(*Processor)

// WithNow injects the clock, for deterministic future-boundary tests.
func WithNow(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// New creates a processor writing through the given dispatcher.
func New(st *store.Store, excl *cache.Exclusion, d *Dispatcher, opts ...Option) *Processor {
	p := &Processor{
		store:      st,
		exclusion:  excl,
		dispatcher: d,
		now:        time.Now,
		seenByKind: make(map[int]map[string]struct{}),
		seenRelays: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.upperBound.Store(p.now().Add(futureTolerance).Unix())
	return p
}

// Process validates and classifies the event synchronously, then
// dispatches its persistence. originRelay is the delivering relay's URL,
// or "" when unknown. Rejections are silent: no error is surfaced and no
// distinction exists between "never seen" and "rejected".
func (p *Processor) Process(event *nostr.Event, originRelay string) {
	if p.isFromFuture(event.CreatedAt) {
		slog.Warn("discarding event from the future", "id", event.ID, "created_at", event.CreatedAt)
		return
	}

	classified, err := nostr.Classify(event)
	if err != nil {
		slog.Debug("discarding unclassifiable event", "error", err)
		return
	}

	switch classified.Class {
	case nostr.ClassPost:
		p.processPost(event, classified.Post, originRelay)
	case nostr.ClassProfile:
		p.processSnapshot(event, "profile", func(ctx context.Context) error {
			if err := p.store.UpsertProfile(ctx, classified.Profile); err != nil {
				return err
			}
			p.exclusion.Add(cache.Profiles, event.Pubkey)
			return nil
		})
	case nostr.ClassContactList:
		p.processSnapshot(event, "contact list", func(ctx context.Context) error {
			if err := p.store.UpsertContactList(ctx, classified.ContactList); err != nil {
				return err
			}
			p.exclusion.Add(cache.ContactLists, event.Pubkey)
			return nil
		})
	case nostr.ClassRelayList:
		p.processSnapshot(event, "relay list", func(ctx context.Context) error {
			if err := p.store.UpsertRelayList(ctx, classified.RelayList); err != nil {
				return err
			}
			p.exclusion.Add(cache.RelayLists, event.Pubkey)
			return nil
		})
	case nostr.ClassReaction:
		reaction := classified.Reaction
		p.processSnapshot(event, "reaction", func(ctx context.Context) error {
			return p.store.InsertReaction(ctx, reaction.PostID, reaction.Pubkey)
		})
	}
}

func (p *Processor) processPost(event *nostr.Event, post *nostr.Post, originRelay string) {
	if !p.verify(event) {
		return
	}
	p.recordEventRelay(event.ID, originRelay)

	p.dispatcher.Dispatch("insert post", func(ctx context.Context) error {
		if _, err := p.store.InsertPost(ctx, post); err != nil {
			return err
		}
		p.exclusion.Add(cache.Posts, post.ID)
		return nil
	})
}

// processSnapshot handles the kinds deduplicated by event id: the seen
// set skips both the repeat signature check and the repeat upsert.
func (p *Processor) processSnapshot(event *nostr.Event, name string, persist func(ctx context.Context) error) {
	if p.alreadySeen(event.Kind, event.ID) {
		return
	}
	if !p.verify(event) {
		return
	}
	p.markSeen(event.Kind, event.ID)
	p.dispatcher.Dispatch("upsert "+name, persist)
}

// recordEventRelay stores (eventId, relayUrl) provenance when a relay
// hint exists, deduplicated in memory to spare the queue.
func (p *Processor) recordEventRelay(eventID, relayURL string) {
	if relayURL == "" {
		return
	}
	relayURL = nostr.TrimRelayURL(relayURL)

	p.mu.Lock()
	key := eventID + relayURL
	if _, ok := p.seenRelays[key]; ok {
		p.mu.Unlock()
		return
	}
	p.seenRelays[key] = struct{}{}
	p.mu.Unlock()

	p.dispatcher.Dispatch("insert event relay", func(ctx context.Context) error {
		return p.store.InsertEventRelay(ctx, eventID, relayURL)
	})
}

func (p *Processor) verify(event *nostr.Event) bool {
	if event.Verify() {
		return true
	}
	slog.Warn("invalid event signature", "kind", event.Kind, "id", event.ID)
	return false
}

func (p *Processor) alreadySeen(kind int, id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.seenByKind[kind][id]
	return ok
}

func (p *Processor) markSeen(kind int, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.seenByKind[kind]
	if !ok {
		set = make(map[string]struct{})
		p.seenByKind[kind] = set
	}
	set[id] = struct{}{}
}

// isFromFuture checks created_at against the rolling boundary. On
// violation the boundary is recomputed from the current clock once before
// the final verdict.
func (p *Processor) isFromFuture(createdAt int64) bool {
	if createdAt <= p.upperBound.Load() {
		return false
	}
	bound := p.now().Add(futureTolerance).Unix()
	p.upperBound.Store(bound)
	return createdAt > bound
}
