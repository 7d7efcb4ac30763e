package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/plume/internal/nostr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// testPost builds a root post with a deterministic id.
func testPost(n int, pubkey string, createdAt int64) *nostr.Post {
	return &nostr.Post{
		ID:        fmt.Sprintf("post-%03d", n),
		Pubkey:    pubkey,
		CreatedAt: createdAt,
		Content:   fmt.Sprintf("content %d", n),
	}
}

func mustInsertPost(t *testing.T, s *Store, post *nostr.Post) {
	t.Helper()
	inserted, err := s.InsertPost(context.Background(), post)
	require.NoError(t, err)
	require.True(t, inserted)
}

func postIDs(posts []nostr.Post) []string {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	return ids
}
