// Package relay defines the interfaces the sync core consumes from the
// wire-level relay client. Sockets, message framing and signing live
// outside this module; the core only opens and closes subscriptions and
// receives already-parsed events through the processor.
package relay

import "context"

// Filter selects events on the relay side. Zero fields are omitted from
// the wire request. Relay-side filtering is coarse: it cannot exclude
// replies, which is why callers inflate limits.
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Until   int64
	Limit   int
}

// Subscriber opens and closes relay subscriptions.
//
// CloseSubscription is advisory and fire-and-forget: a relay may keep
// delivering for a while after close. Callers use it as a best-effort
// resource bound, never as a correctness mechanism.
type Subscriber interface {
	OpenSubscription(ctx context.Context, filters []Filter, relays []string) ([]string, error)
	CloseSubscription(subscriptionIDs []string)
}

// Identity exposes the local account's pubkey, used to exclude
// self-authored data from deletion and to power is-mine predicates.
type Identity interface {
	OwnPubkey() string
}

// Provider yields the relays used when nothing more specific is known.
type Provider interface {
	ReadRelays() []string
}

// StaticProvider is a Provider over a fixed relay set, typically from
// configuration.
type StaticProvider struct {
	Relays []string
}

// ReadRelays returns the configured relays.
func (p StaticProvider) ReadRelays() []string {
	return p.Relays
}

// NopSubscriber is a Subscriber for offline use: subscriptions succeed
// with no ids and deliver nothing. Storage reads still answer.
type NopSubscriber struct{}

// OpenSubscription returns no ids.
func (NopSubscriber) OpenSubscription(context.Context, []Filter, []string) ([]string, error) {
	return nil, nil
}

// CloseSubscription does nothing.
func (NopSubscriber) CloseSubscription([]string) {}

// StaticIdentity is an Identity over a fixed pubkey.
type StaticIdentity struct {
	Pubkey string
}

// OwnPubkey returns the configured pubkey.
func (i StaticIdentity) OwnPubkey() string {
	return i.Pubkey
}
