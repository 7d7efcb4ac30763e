package processor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plume/internal/cache"
	"github.com/roach88/plume/internal/nostr"
	"github.com/roach88/plume/internal/store"
	"github.com/roach88/plume/internal/testutil"
)

type fixture struct {
	store      *store.Store
	exclusion  *cache.Exclusion
	dispatcher *Dispatcher
	processor  *Processor
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	excl := cache.NewExclusion()
	d := NewDispatcher(context.Background(), 1, 64)
	t.Cleanup(d.Close)

	return &fixture{
		store:      st,
		exclusion:  excl,
		dispatcher: d,
		processor:  New(st, excl, d, opts...),
	}
}

func fixedNow(unix int64) func() time.Time {
	return func() time.Time { return time.Unix(unix, 0) }
}

func TestProcess_Post(t *testing.T) {
	f := newFixture(t)
	signer := testutil.NewSigner(1)

	event := signer.Event(t, nostr.KindTextNote, 100, "hello", nostr.Tag{"t", "Golang"})
	f.processor.Process(event, "wss://relay.example/")
	f.dispatcher.Wait()

	posts, err := f.store.SelectFeedPosts(context.Background(),
		store.FeedQuery{IsPosts: true, Until: 200, Limit: 10})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, event.ID, posts[0].ID)
	assert.Equal(t, signer.Pubkey, posts[0].Pubkey)

	assert.True(t, f.exclusion.Contains(cache.Posts, event.ID),
		"a freshly written post must be sweep-protected")

	// Provenance is recorded with the trailing slash normalized away.
	relays, err := f.store.SelectFeedPosts(context.Background(), store.FeedQuery{
		IsPosts: true, Relays: []string{"wss://relay.example"}, Until: 200, Limit: 10,
	})
	require.NoError(t, err)
	assert.Len(t, relays, 1)
}

func TestProcess_PostRedeliveryIsIdempotent(t *testing.T) {
	f := newFixture(t)
	signer := testutil.NewSigner(1)
	event := signer.Event(t, nostr.KindTextNote, 100, "hello")

	for i := 0; i < 3; i++ {
		f.processor.Process(event, "")
	}
	f.dispatcher.Wait()

	count, err := f.store.CountPosts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProcess_InvalidSignatureDropped(t *testing.T) {
	f := newFixture(t)
	signer := testutil.NewSigner(1)

	event := signer.Event(t, nostr.KindTextNote, 100, "hello")
	event.Content = "tampered"
	id, err := event.ComputeID()
	require.NoError(t, err)
	event.ID = id // id matches content again, signature does not

	f.processor.Process(event, "")
	f.dispatcher.Wait()

	count, err := f.store.CountPosts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestProcess_FutureBoundary(t *testing.T) {
	f := newFixture(t, WithNow(fixedNow(1000)))
	signer := testutil.NewSigner(1)

	within := signer.Event(t, nostr.KindTextNote, 1059, "just inside")
	beyond := signer.Event(t, nostr.KindTextNote, 1061, "too far ahead")

	f.processor.Process(within, "")
	f.processor.Process(beyond, "")
	f.dispatcher.Wait()

	posts, err := f.store.SelectFeedPosts(context.Background(),
		store.FeedQuery{IsPosts: true, Until: 2000, Limit: 10})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, within.ID, posts[0].ID)
}

func TestProcess_FutureBoundaryAdvancesWithClock(t *testing.T) {
	now := int64(1000)
	f := newFixture(t, WithNow(func() time.Time { return time.Unix(now, 0) }))
	signer := testutil.NewSigner(1)

	// Rejected against the initial boundary of 1060.
	early := signer.Event(t, nostr.KindTextNote, 1100, "early")
	f.processor.Process(early, "")

	// Same timestamp is acceptable once the clock has moved on: the
	// boundary is recomputed on violation.
	now = 1050
	late := signer.Event(t, nostr.KindTextNote, 1100, "late")
	f.processor.Process(late, "")
	f.dispatcher.Wait()

	posts, err := f.store.SelectFeedPosts(context.Background(),
		store.FeedQuery{IsPosts: true, Until: 2000, Limit: 10})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, late.ID, posts[0].ID)
}

func TestProcess_ProfileSnapshot(t *testing.T) {
	f := newFixture(t)
	signer := testutil.NewSigner(1)

	event := signer.Event(t, nostr.KindProfileMetadata, 100, `{"name":"alice"}`)
	f.processor.Process(event, "")
	f.dispatcher.Wait()

	names, err := f.store.NamesByPubkey(context.Background(), []string{signer.Pubkey})
	require.NoError(t, err)
	assert.Equal(t, "alice", names[signer.Pubkey])
	assert.True(t, f.exclusion.Contains(cache.Profiles, signer.Pubkey))
}

func TestProcess_SnapshotSeenSetSkipsRedelivery(t *testing.T) {
	f := newFixture(t)
	signer := testutil.NewSigner(1)

	event := signer.Event(t, nostr.KindProfileMetadata, 100, `{"name":"alice"}`)
	f.processor.Process(event, "")
	f.dispatcher.Wait()

	// Corrupt the signature: a redelivery of a seen id is skipped before
	// verification, so this must still be a silent no-op.
	event.Sig = "00"
	f.processor.Process(event, "")
	f.dispatcher.Wait()

	count, err := f.store.CountProfiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProcess_ContactListAndRelayList(t *testing.T) {
	f := newFixture(t)
	signer := testutil.NewSigner(1)
	other := testutil.NewSigner(2)

	contacts := signer.Event(t, nostr.KindContactList, 100, "", nostr.Tag{"p", other.Pubkey})
	relays := signer.Event(t, nostr.KindRelayList, 100, "", nostr.Tag{"r", "wss://relay.example", "read"})

	f.processor.Process(contacts, "")
	f.processor.Process(relays, "")
	f.dispatcher.Wait()

	followed, err := f.store.ContactPubkeys(context.Background(), signer.Pubkey)
	require.NoError(t, err)
	assert.Equal(t, []string{other.Pubkey}, followed)
	assert.True(t, f.exclusion.Contains(cache.ContactLists, signer.Pubkey))

	reads, err := f.store.ReadRelays(context.Background(), signer.Pubkey)
	require.NoError(t, err)
	assert.Equal(t, []string{"wss://relay.example"}, reads)
	assert.True(t, f.exclusion.Contains(cache.RelayLists, signer.Pubkey))
}

func TestProcess_Reaction(t *testing.T) {
	f := newFixture(t)
	author := testutil.NewSigner(1)
	reactor := testutil.NewSigner(2)

	post := author.Event(t, nostr.KindTextNote, 100, "likeable")
	f.processor.Process(post, "")

	like := reactor.Event(t, nostr.KindReaction, 110, "+", nostr.Tag{"e", post.ID})
	downvote := reactor.Event(t, nostr.KindReaction, 111, "-", nostr.Tag{"e", post.ID})
	f.processor.Process(like, "")
	f.processor.Process(downvote, "")
	f.dispatcher.Wait()

	posts, err := f.store.SelectPostsWithMeta(context.Background(), []string{post.ID}, reactor.Pubkey)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.True(t, posts[0].LikedByMe, "the + reaction must be stored")
}

func TestProcess_UnrecognizedKindDropped(t *testing.T) {
	f := newFixture(t)
	signer := testutil.NewSigner(1)

	event := signer.Event(t, 30023, 100, "long form")
	f.processor.Process(event, "")
	f.dispatcher.Wait()

	count, err := f.store.CountPosts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
