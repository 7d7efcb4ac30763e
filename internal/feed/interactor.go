package feed

import (
	"context"
	"fmt"

	"github.com/roach88/plume/internal/relay"
	"github.com/roach88/plume/internal/store"
)

// Interactor records the local account's post interactions. Publishing
// the corresponding events to relays is the wire client's job; the local
// row is written immediately so the feed's liked-by-me state does not
// wait on the network round trip.
type Interactor struct {
	store    *store.Store
	identity relay.Identity
}

// NewInteractor creates an interactor.
func NewInteractor(st *store.Store, identity relay.Identity) *Interactor {
	return &Interactor{store: st, identity: identity}
}

// Like records a like on the post by the local account. Idempotent.
func (i *Interactor) Like(ctx context.Context, postID string) error {
	if err := i.store.InsertReaction(ctx, postID, i.identity.OwnPubkey()); err != nil {
		return fmt.Errorf("record like: %w", err)
	}
	return nil
}
