package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plume/internal/nostr"
)

func TestDeletePostsExceptNewest_KeepsNewest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		mustInsertPost(t, s, testPost(i, pkAlice, int64(i*100)))
	}

	deleted, err := s.DeletePostsExceptNewest(ctx, 3, nil, "")
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)

	remaining, err := s.SelectFeedPosts(ctx, FeedQuery{IsPosts: true, Until: 10000, Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, []string{"post-010", "post-009", "post-008"}, postIDs(remaining))
}

func TestDeletePostsExceptNewest_ExcludedDoNotOccupySlots(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 6; i++ {
		mustInsertPost(t, s, testPost(i, pkAlice, int64(i*100)))
	}

	// Exclude two old posts; the keep budget still covers the two
	// newest non-excluded rows.
	deleted, err := s.DeletePostsExceptNewest(ctx, 2, []string{"post-001", "post-002"}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	remaining, err := s.SelectFeedPosts(ctx, FeedQuery{IsPosts: true, Until: 10000, Limit: 100})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"post-001", "post-002", "post-005", "post-006"}, postIDs(remaining))
}

func TestDeletePostsExceptNewest_OwnPostsSurvive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustInsertPost(t, s, testPost(1, pkAlice, 100))
	for i := 2; i <= 5; i++ {
		mustInsertPost(t, s, testPost(i, pkBob, int64(i*100)))
	}

	_, err := s.DeletePostsExceptNewest(ctx, 1, nil, pkAlice)
	require.NoError(t, err)

	remaining, err := s.SelectFeedPosts(ctx, FeedQuery{IsPosts: true, Until: 10000, Limit: 100})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"post-001", "post-005"}, postIDs(remaining))
}

func TestDeleteOrphanedRows_AfterPostSweep(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := testPost(1, pkAlice, 100)
	old.Hashtags = []string{"golang"}
	mustInsertPost(t, s, old)
	mustInsertPost(t, s, testPost(2, pkBob, 200))
	require.NoError(t, s.InsertReaction(ctx, old.ID, pkBob))
	require.NoError(t, s.InsertEventRelay(ctx, old.ID, "wss://relay.example"))

	_, err := s.DeletePostsExceptNewest(ctx, 1, nil, "")
	require.NoError(t, err)

	reactions, err := s.DeleteOrphanedReactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reactions)

	relays, err := s.DeleteOrphanedEventRelays(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), relays)

	hashtags, err := s.DeleteOrphanedHashtags(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), hashtags)
}

func TestDeleteOrphanedProfiles_KeepsReferencedAndExcluded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Alice still has a post; bob is orphaned but excluded; a third key
	// is orphaned and unguarded.
	mustInsertPost(t, s, testPost(1, pkAlice, 100))
	third := "0000000000000000000000000000000000000000000000000000000000000003"
	for _, pk := range []string{pkAlice, pkBob, third} {
		require.NoError(t, s.UpsertProfile(ctx, &nostr.Profile{
			Pubkey: pk, CreatedAt: 50, Metadata: nostr.Metadata{Name: "n"},
		}))
	}

	deleted, err := s.DeleteOrphanedProfiles(ctx, []string{pkBob})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	count, err := s.CountProfiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDeleteOrphanedContactLists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustInsertPost(t, s, testPost(1, pkAlice, 100))
	require.NoError(t, s.UpsertContactList(ctx, &nostr.ContactList{
		Pubkey: pkAlice, CreatedAt: 50, Contacts: []string{"c1"},
	}))
	require.NoError(t, s.UpsertContactList(ctx, &nostr.ContactList{
		Pubkey: pkBob, CreatedAt: 50, Contacts: []string{"c2", "c3"},
	}))

	deleted, err := s.DeleteOrphanedContactLists(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted, "all rows of the orphaned author go at once")

	count, err := s.CountContactAuthors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDeleteOrphanedRelayLists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustInsertPost(t, s, testPost(1, pkAlice, 100))
	require.NoError(t, s.UpsertRelayList(ctx, &nostr.RelayList{
		Pubkey: pkAlice, CreatedAt: 50,
		Entries: []nostr.RelayListEntry{{URL: "wss://a.example", IsRead: true, IsWrite: true}},
	}))
	require.NoError(t, s.UpsertRelayList(ctx, &nostr.RelayList{
		Pubkey: pkBob, CreatedAt: 50,
		Entries: []nostr.RelayListEntry{{URL: "wss://b.example", IsRead: true, IsWrite: true}},
	}))

	deleted, err := s.DeleteOrphanedRelayLists(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	count, err := s.CountRelayListPubkeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustInsertPost(t, s, testPost(1, pkAlice, 100))
	mustInsertPost(t, s, testPost(2, pkBob, 200))
	require.NoError(t, s.UpsertContactList(ctx, &nostr.ContactList{
		Pubkey: pkAlice, CreatedAt: 50, Contacts: []string{"c1", "c2", "c3"},
	}))

	posts, err := s.CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, posts)

	authors, err := s.CountContactAuthors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, authors, "distinct authors, not rows")
}
