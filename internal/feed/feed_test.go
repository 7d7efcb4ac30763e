package feed

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/plume/internal/cache"
	"github.com/roach88/plume/internal/nostr"
	"github.com/roach88/plume/internal/relay"
	"github.com/roach88/plume/internal/store"
	"github.com/roach88/plume/internal/subscriber"
	"github.com/roach88/plume/internal/testutil"
)

const (
	ownKey       = "97c70a44366a6535c145b333f973ea86dfdc2d7a99da618c40c64705ad98e322"
	otherKey     = "3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d"
	defaultRelay = "wss://default.example"
)

// The sql.DB opener goroutine lives until the store closes in cleanup,
// which runs after the deferred leak check.
var ignoreDBOpener = goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener")

type fixture struct {
	store     *store.Store
	transport *testutil.FakeTransport
	provider  *Provider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	transport := testutil.NewFakeTransport()
	relays := relay.StaticProvider{Relays: []string{defaultRelay}}
	sub := subscriber.New(transport, relays, cache.NewExclusion(), st)
	identity := relay.StaticIdentity{Pubkey: ownKey}

	return &fixture{
		store:     st,
		transport: transport,
		provider: New(st, transport, sub, relays, identity,
			WithNow(func() time.Time { return time.Unix(10000, 0) })),
	}
}

func (f *fixture) insertPost(t *testing.T, n int, pubkey string, createdAt int64) {
	t.Helper()
	_, err := f.store.InsertPost(context.Background(), &nostr.Post{
		ID:        fmt.Sprintf("%060d%04d", 0, n),
		Pubkey:    pubkey,
		CreatedAt: createdAt,
		Content:   fmt.Sprintf("post %d", n),
	})
	require.NoError(t, err)
}

func feedID(n int) string {
	return fmt.Sprintf("%060d%04d", 0, n)
}

func receive(t *testing.T, stream <-chan []Post) []Post {
	t.Helper()
	select {
	case posts := <-stream:
		return posts
	case <-time.After(5 * time.Second):
		t.Fatal("no feed batch arrived")
		return nil
	}
}

func TestGetFeed_InitialBatchFromStorage(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreDBOpener)

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.insertPost(t, 1, otherKey, 100)
	f.insertPost(t, 2, ownKey, 200)

	stream, err := f.provider.GetFeed(ctx, Settings{IsPosts: true}, 10, 0, 0)
	require.NoError(t, err)

	posts := receive(t, stream)
	require.Len(t, posts, 2)
	assert.Equal(t, feedID(2), posts[0].ID)
	assert.True(t, posts[0].IsMine)
	assert.False(t, posts[1].IsMine)

	cancel()
	assertClosed(t, stream)
}

func assertClosed(t *testing.T, stream <-chan []Post) {
	t.Helper()
	select {
	case _, ok := <-stream:
		if ok {
			// Drain the batch emitted before cancellation, then expect
			// closure.
			assertClosed(t, stream)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not close after cancel")
	}
}

func TestGetFeed_SubscribesWithInflatedLimit(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreDBOpener)

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := f.provider.GetFeed(ctx, Settings{IsPosts: true}, 10, 500, 0)
	require.NoError(t, err)

	subs := f.transport.OpenedForRelay(defaultRelay)
	require.NotEmpty(t, subs)
	filter := subs[0].Filters[0]
	assert.Equal(t, []int{nostr.KindTextNote}, filter.Kinds)
	assert.Equal(t, 30, filter.Limit, "posts-only inflates x3")
	assert.Equal(t, int64(500), filter.Until)

	cancel()
	assertClosed(t, stream)
}

func TestGetFeed_RepliesInflateByTwo(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreDBOpener)

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := f.provider.GetFeed(ctx, Settings{IsPosts: true, IsReplies: true}, 10, 500, 0)
	require.NoError(t, err)

	subs := f.transport.OpenedForRelay(defaultRelay)
	require.NotEmpty(t, subs)
	assert.Equal(t, 20, subs[0].Filters[0].Limit)

	cancel()
	assertClosed(t, stream)
}

func TestGetFeed_ContactsWithEmptyFollowList(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreDBOpener)

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.insertPost(t, 1, otherKey, 100)

	stream, err := f.provider.GetFeed(ctx, Settings{IsPosts: true, Authors: AuthorContacts}, 10, 0, 0)
	require.NoError(t, err)

	// No contacts: nothing to subscribe and an empty initial batch, but
	// not an error and not "everyone".
	assert.Empty(t, f.transport.Opened())
	assert.Empty(t, receive(t, stream))

	cancel()
	assertClosed(t, stream)
}

func TestGetFeed_NewCallSupersedesPrevious(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreDBOpener)

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := f.provider.GetFeed(ctx, Settings{IsPosts: true}, 10, 0, 0)
	require.NoError(t, err)
	firstSubs := f.transport.Opened()
	require.NotEmpty(t, firstSubs)

	second, err := f.provider.GetFeed(ctx, Settings{IsPosts: true}, 10, 0, 0)
	require.NoError(t, err)

	// The previous feed's subscriptions are closed and its stream ends.
	closed := f.transport.Closed()
	assert.Contains(t, closed, firstSubs[0].ID)
	assertClosed(t, first)

	cancel()
	assertClosed(t, second)
}

func TestGetFeed_AutopilotShardsByWriteRelay(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreDBOpener)

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ownKey follows otherKey and a relay-less author.
	unmappedKey := "0000000000000000000000000000000000000000000000000000000000000009"
	require.NoError(t, f.store.UpsertContactList(ctx, &nostr.ContactList{
		Pubkey: ownKey, CreatedAt: 1, Contacts: []string{otherKey, unmappedKey},
	}))
	require.NoError(t, f.store.UpsertRelayList(ctx, &nostr.RelayList{
		Pubkey: otherKey, CreatedAt: 1,
		Entries: []nostr.RelayListEntry{{URL: "wss://write.example", IsRead: false, IsWrite: true}},
	}))

	stream, err := f.provider.GetFeed(ctx,
		Settings{IsPosts: true, Authors: AuthorContacts, Relays: RelayAutopilot}, 10, 0, 0)
	require.NoError(t, err)

	sharded := f.transport.OpenedForRelay("wss://write.example")
	require.Len(t, sharded, 1)
	assert.Equal(t, []string{otherKey}, sharded[0].Filters[0].Authors)

	fallback := f.transport.OpenedForRelay(defaultRelay)
	require.Len(t, fallback, 1)
	assert.Equal(t, []string{unmappedKey}, fallback[0].Filters[0].Authors)

	cancel()
	assertClosed(t, stream)
}

func TestGetFeed_StreamReflectsNewWrites(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreDBOpener)

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.insertPost(t, 1, otherKey, 100)

	stream, err := f.provider.GetFeed(ctx, Settings{IsPosts: true}, 10, 0, 0)
	require.NoError(t, err)

	first := receive(t, stream)
	require.Len(t, first, 1)

	// A late subscription write lands in storage; the stream notices.
	f.insertPost(t, 2, otherKey, 200)

	second := receive(t, stream)
	require.Len(t, second, 2)
	assert.Equal(t, feedID(2), second[0].ID)

	cancel()
	assertClosed(t, stream)
}

func TestGetFeed_ResolvesUnknownAuthors(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreDBOpener)

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.insertPost(t, 1, otherKey, 100)

	stream, err := f.provider.GetFeed(ctx, Settings{IsPosts: true}, 10, 0, 0)
	require.NoError(t, err)

	var found bool
	for _, sub := range f.transport.OpenedForRelay(defaultRelay) {
		for _, filter := range sub.Filters {
			if len(filter.Authors) == 1 && filter.Authors[0] == otherKey &&
				len(filter.Kinds) == 2 {
				found = true
			}
		}
	}
	assert.True(t, found, "the unknown author's profile and relay list are requested")

	cancel()
	assertClosed(t, stream)
}

func TestInteractor_Like(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.insertPost(t, 1, otherKey, 100)
	interactor := NewInteractor(f.store, relay.StaticIdentity{Pubkey: ownKey})

	require.NoError(t, interactor.Like(ctx, feedID(1)))
	require.NoError(t, interactor.Like(ctx, feedID(1)))

	posts, err := f.store.SelectPostsWithMeta(ctx, []string{feedID(1)}, ownKey)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.True(t, posts[0].LikedByMe)
}
