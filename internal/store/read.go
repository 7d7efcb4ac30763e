package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/plume/internal/nostr"
)

// FeedQuery selects posts for a feed page. Nil Authors means everyone;
// nil Relays means all known relays; Hashtag "" means no hashtag filter.
// Results are newest-first, strictly older than Until, at most Limit.
type FeedQuery struct {
	IsPosts   bool
	IsReplies bool
	Hashtag   string
	Authors   []string
	Relays    []string
	Until     int64
	Limit     int
}

// SelectFeedPosts runs a feed query against the posts table.
// Returns nothing when both content flags are off or a provided author or
// relay set is empty: an empty explicit filter matches nothing, unlike a
// nil one.
func (s *Store) SelectFeedPosts(ctx context.Context, q FeedQuery) ([]nostr.Post, error) {
	if !q.IsPosts && !q.IsReplies {
		return nil, nil
	}
	if q.Authors != nil && len(q.Authors) == 0 {
		return nil, nil
	}
	if q.Relays != nil && len(q.Relays) == 0 {
		return nil, nil
	}

	var (
		where []string
		vals  []any
	)
	where = append(where, "((? AND reply_to_id IS NOT NULL) OR (? AND reply_to_id IS NULL))")
	vals = append(vals, q.IsReplies, q.IsPosts)

	if q.Authors != nil {
		where = append(where, fmt.Sprintf("pubkey IN (%s)", placeholders(len(q.Authors))))
		vals = append(vals, args(q.Authors)...)
	}
	if q.Relays != nil {
		where = append(where, fmt.Sprintf(
			"id IN (SELECT DISTINCT event_id FROM event_relays WHERE relay_url IN (%s))",
			placeholders(len(q.Relays))))
		vals = append(vals, args(q.Relays)...)
	}
	if q.Hashtag != "" {
		where = append(where, "id IN (SELECT post_id FROM hashtags WHERE hashtag = ?)")
		vals = append(vals, strings.ToLower(q.Hashtag))
	}
	where = append(where, "created_at < ?")
	vals = append(vals, q.Until)

	query := fmt.Sprintf(`
		SELECT id, pubkey, created_at, content, reply_to_id, reply_relay_hint
		FROM posts
		WHERE %s
		ORDER BY created_at DESC
		LIMIT ?
	`, strings.Join(where, " AND "))
	vals = append(vals, q.Limit)

	rows, err := s.db.QueryContext(ctx, query, vals...)
	if err != nil {
		return nil, fmt.Errorf("select feed posts: %w", err)
	}
	defer rows.Close()

	var posts []nostr.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("select feed posts: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// PostWithMeta is a post enriched for rendering: author metadata,
// interaction state and reply context joined in.
type PostWithMeta struct {
	nostr.Post
	AuthorName    string
	AuthorPicture string
	ReplyToPubkey string
	ReplyToName   string
	LikedByMe     bool
	ReplyCount    int
}

// SelectPostsWithMeta loads enriched rows for the given post ids, newest
// first. ownPubkey powers the liked-by-me predicate.
func (s *Store) SelectPostsWithMeta(ctx context.Context, postIDs []string, ownPubkey string) ([]PostWithMeta, error) {
	if len(postIDs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT
			p.id, p.pubkey, p.created_at, p.content, p.reply_to_id, p.reply_relay_hint,
			IFNULL(author.name, ''),
			IFNULL(author.picture, ''),
			IFNULL((SELECT parent.pubkey FROM posts parent WHERE parent.id = p.reply_to_id), ''),
			IFNULL((SELECT pr.name FROM profiles pr
				JOIN posts parent ON pr.pubkey = parent.pubkey
				WHERE parent.id = p.reply_to_id), ''),
			EXISTS(SELECT 1 FROM reactions r WHERE r.post_id = p.id AND r.pubkey = ?),
			(SELECT COUNT(*) FROM posts c WHERE c.reply_to_id = p.id)
		FROM posts p
		LEFT JOIN profiles author ON p.pubkey = author.pubkey
		WHERE p.id IN (%s)
		ORDER BY p.created_at DESC
	`, placeholders(len(postIDs)))

	vals := append([]any{ownPubkey}, args(postIDs)...)
	rows, err := s.db.QueryContext(ctx, query, vals...)
	if err != nil {
		return nil, fmt.Errorf("select posts with meta: %w", err)
	}
	defer rows.Close()

	var posts []PostWithMeta
	for rows.Next() {
		var (
			p                  PostWithMeta
			replyTo, relayHint sql.NullString
		)
		if err := rows.Scan(
			&p.ID, &p.Pubkey, &p.CreatedAt, &p.Content, &replyTo, &relayHint,
			&p.AuthorName, &p.AuthorPicture, &p.ReplyToPubkey, &p.ReplyToName,
			&p.LikedByMe, &p.ReplyCount,
		); err != nil {
			return nil, fmt.Errorf("select posts with meta: %w", err)
		}
		p.ReplyToID = replyTo.String
		p.ReplyRelayHint = relayHint.String
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// FilterExistingPostIDs returns the subset of ids already stored.
func (s *Store) FilterExistingPostIDs(ctx context.Context, postIDs []string) ([]string, error) {
	if len(postIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT id FROM posts WHERE id IN (%s)`, placeholders(len(postIDs)))
	return s.selectStrings(ctx, query, args(postIDs)...)
}

// UnknownAuthors returns authors of the given posts that have no profile
// snapshot yet.
func (s *Store) UnknownAuthors(ctx context.Context, postIDs []string) ([]string, error) {
	if len(postIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT DISTINCT pubkey FROM posts
		WHERE id IN (%s)
		AND pubkey NOT IN (SELECT pubkey FROM profiles)
	`, placeholders(len(postIDs)))
	return s.selectStrings(ctx, query, args(postIDs)...)
}

// NamesByPubkey returns the known display names for the given pubkeys.
// Pubkeys without a profile row or with an empty name are absent from the
// result, which is what the annotator's fallback rendering keys on.
func (s *Store) NamesByPubkey(ctx context.Context, pubkeys []string) (map[string]string, error) {
	if len(pubkeys) == 0 {
		return map[string]string{}, nil
	}
	query := fmt.Sprintf(
		`SELECT pubkey, name FROM profiles WHERE pubkey IN (%s) AND name != ''`,
		placeholders(len(pubkeys)))

	rows, err := s.db.QueryContext(ctx, query, args(pubkeys)...)
	if err != nil {
		return nil, fmt.Errorf("names by pubkey: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var pubkey, name string
		if err := rows.Scan(&pubkey, &name); err != nil {
			return nil, fmt.Errorf("names by pubkey: %w", err)
		}
		names[pubkey] = name
	}
	return names, rows.Err()
}

// ContactPubkeys returns the author's followed pubkeys.
func (s *Store) ContactPubkeys(ctx context.Context, author string) ([]string, error) {
	return s.selectStrings(ctx, `SELECT contact FROM contacts WHERE author = ?`, author)
}

// ReadRelays returns the pubkey's read relays from its relay-list snapshot.
func (s *Store) ReadRelays(ctx context.Context, pubkey string) ([]string, error) {
	return s.selectStrings(ctx,
		`SELECT relay_url FROM relay_lists WHERE pubkey = ? AND is_read`, pubkey)
}

// PubkeysByWriteRelay groups the given pubkeys by their declared write
// relays: the per-author best-relay mapping the feed's relay filter uses.
// Pubkeys without a relay-list snapshot are absent from the result.
func (s *Store) PubkeysByWriteRelay(ctx context.Context, pubkeys []string) (map[string][]string, error) {
	if len(pubkeys) == 0 {
		return map[string][]string{}, nil
	}
	query := fmt.Sprintf(`
		SELECT relay_url, pubkey FROM relay_lists
		WHERE is_write AND pubkey IN (%s)
	`, placeholders(len(pubkeys)))

	rows, err := s.db.QueryContext(ctx, query, args(pubkeys)...)
	if err != nil {
		return nil, fmt.Errorf("pubkeys by write relay: %w", err)
	}
	defer rows.Close()

	mapping := make(map[string][]string)
	for rows.Next() {
		var relay, pubkey string
		if err := rows.Scan(&relay, &pubkey); err != nil {
			return nil, fmt.Errorf("pubkeys by write relay: %w", err)
		}
		mapping[relay] = append(mapping[relay], pubkey)
	}
	return mapping, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (nostr.Post, error) {
	var (
		post               nostr.Post
		replyTo, relayHint sql.NullString
	)
	if err := row.Scan(&post.ID, &post.Pubkey, &post.CreatedAt, &post.Content, &replyTo, &relayHint); err != nil {
		return nostr.Post{}, err
	}
	post.ReplyToID = replyTo.String
	post.ReplyRelayHint = relayHint.String
	return post, nil
}

func (s *Store) selectStrings(ctx context.Context, query string, vals ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, vals...)
	if err != nil {
		return nil, fmt.Errorf("select strings: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("select strings: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
