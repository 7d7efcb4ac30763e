package store

import (
	"context"
	"fmt"
)

// CountPosts returns the posts table's row count.
func (s *Store) CountPosts(ctx context.Context) (int, error) {
	return s.countQuery(ctx, `SELECT COUNT(*) FROM posts`)
}

// CountProfiles returns the profiles table's row count.
func (s *Store) CountProfiles(ctx context.Context) (int, error) {
	return s.countQuery(ctx, `SELECT COUNT(*) FROM profiles`)
}

// CountContactAuthors returns the number of distinct contact-list authors.
func (s *Store) CountContactAuthors(ctx context.Context) (int, error) {
	return s.countQuery(ctx, `SELECT COUNT(DISTINCT author) FROM contacts`)
}

// CountRelayListPubkeys returns the number of distinct relay-list owners.
func (s *Store) CountRelayListPubkeys(ctx context.Context) (int, error) {
	return s.countQuery(ctx, `SELECT COUNT(DISTINCT pubkey) FROM relay_lists`)
}

// DeletePostsExceptNewest deletes all posts except the keep newest,
// excluded ids, and self-authored rows. Excluded and self-authored posts
// do not occupy retention slots: exactly the keep newest non-excluded
// rows survive alongside them.
func (s *Store) DeletePostsExceptNewest(ctx context.Context, keep int, exclude []string, ownPubkey string) (int64, error) {
	ph := placeholders(len(exclude))
	if len(exclude) == 0 {
		ph = "''"
	}
	query := fmt.Sprintf(`
		DELETE FROM posts
		WHERE id NOT IN (%[1]s)
		AND pubkey != ?
		AND id NOT IN (
			SELECT id FROM posts
			WHERE id NOT IN (%[1]s) AND pubkey != ?
			ORDER BY created_at DESC
			LIMIT ?
		)
	`, ph)

	var vals []any
	vals = append(vals, args(exclude)...)
	vals = append(vals, ownPubkey)
	vals = append(vals, args(exclude)...)
	vals = append(vals, ownPubkey, keep)

	return s.deleteQuery(ctx, "delete posts", query, vals...)
}

// DeleteOrphanedReactions removes reactions whose post is gone.
func (s *Store) DeleteOrphanedReactions(ctx context.Context) (int64, error) {
	return s.deleteQuery(ctx, "delete orphaned reactions",
		`DELETE FROM reactions WHERE post_id NOT IN (SELECT id FROM posts)`)
}

// DeleteOrphanedEventRelays removes provenance rows whose event is gone.
func (s *Store) DeleteOrphanedEventRelays(ctx context.Context) (int64, error) {
	return s.deleteQuery(ctx, "delete orphaned event relays",
		`DELETE FROM event_relays WHERE event_id NOT IN (SELECT id FROM posts)`)
}

// DeleteOrphanedHashtags removes hashtag rows whose post is gone.
func (s *Store) DeleteOrphanedHashtags(ctx context.Context) (int64, error) {
	return s.deleteQuery(ctx, "delete orphaned hashtags",
		`DELETE FROM hashtags WHERE post_id NOT IN (SELECT id FROM posts)`)
}

// DeleteOrphanedProfiles removes profile snapshots for pubkeys with no
// remaining referencing post and not present in exclude. The caller adds
// its own pubkey to exclude.
func (s *Store) DeleteOrphanedProfiles(ctx context.Context, exclude []string) (int64, error) {
	return s.deleteOrphanedByPubkey(ctx, "profiles", "pubkey", exclude)
}

// DeleteOrphanedContactLists removes contact rows for authors with no
// remaining referencing post and not present in exclude.
func (s *Store) DeleteOrphanedContactLists(ctx context.Context, exclude []string) (int64, error) {
	return s.deleteOrphanedByPubkey(ctx, "contacts", "author", exclude)
}

// DeleteOrphanedRelayLists removes relay-list rows for pubkeys with no
// remaining referencing post and not present in exclude.
func (s *Store) DeleteOrphanedRelayLists(ctx context.Context, exclude []string) (int64, error) {
	return s.deleteOrphanedByPubkey(ctx, "relay_lists", "pubkey", exclude)
}

func (s *Store) deleteOrphanedByPubkey(ctx context.Context, table, keyCol string, exclude []string) (int64, error) {
	ph := placeholders(len(exclude))
	if len(exclude) == 0 {
		ph = "''"
	}
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE %s NOT IN (SELECT DISTINCT pubkey FROM posts)
		AND %s NOT IN (%s)
	`, table, keyCol, keyCol, ph)

	return s.deleteQuery(ctx, "delete orphaned "+table, query, args(exclude)...)
}

func (s *Store) countQuery(ctx context.Context, query string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return count, nil
}

func (s *Store) deleteQuery(ctx context.Context, op, query string, vals ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, vals...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
