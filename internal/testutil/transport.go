// Package testutil provides deterministic doubles for the engine's
// injected collaborators: the relay transport, random sources and
// signed-event construction.
package testutil

import (
	"context"
	"sync"

	"github.com/roach88/plume/internal/relay"
)

// Subscription is one recorded OpenSubscription call.
type Subscription struct {
	ID      string
	Filters []relay.Filter
	Relays  []string
}

// FakeTransport records subscriptions instead of talking to relays.
// Safe for concurrent use.
type FakeTransport struct {
	mu     sync.Mutex
	gen    relay.IDGenerator
	opened []Subscription
	closed []string

	// OpenErr, when set, fails every OpenSubscription call.
	OpenErr error
}

// NewFakeTransport creates an empty recording transport minting UUIDv7
// subscription ids, the same generator a live transport uses.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{gen: relay.UUIDv7Generator{}}
}

// NewFakeTransportWithGenerator creates a recording transport over a
// pinned id sequence.
func NewFakeTransportWithGenerator(gen relay.IDGenerator) *FakeTransport {
	return &FakeTransport{gen: gen}
}

// OpenSubscription records the call and returns a generated id.
func (t *FakeTransport) OpenSubscription(_ context.Context, filters []relay.Filter, relays []string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.OpenErr != nil {
		return nil, t.OpenErr
	}
	id := t.gen.Generate()
	t.opened = append(t.opened, Subscription{ID: id, Filters: filters, Relays: relays})
	return []string{id}, nil
}

// CloseSubscription records the closed ids.
func (t *FakeTransport) CloseSubscription(subscriptionIDs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = append(t.closed, subscriptionIDs...)
}

// Opened returns a copy of the recorded subscriptions.
func (t *FakeTransport) Opened() []Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Subscription, len(t.opened))
	copy(out, t.opened)
	return out
}

// Closed returns a copy of the recorded closed ids.
func (t *FakeTransport) Closed() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.closed))
	copy(out, t.closed)
	return out
}

// OpenedForRelay returns the subscriptions that include the relay.
func (t *FakeTransport) OpenedForRelay(relayURL string) []Subscription {
	var out []Subscription
	for _, sub := range t.Opened() {
		for _, r := range sub.Relays {
			if r == relayURL {
				out = append(out, sub)
				break
			}
		}
	}
	return out
}

// Reset forgets all recorded calls.
func (t *FakeTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opened = nil
	t.closed = nil
}
