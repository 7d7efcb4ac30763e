package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/plume/internal/nostr"
)

// InsertPost inserts a post if its id is absent, along with its hashtag
// associations. Returns true only on first insertion; a re-delivered id
// is silently ignored and its hashtags are not re-extracted.
func (s *Store) InsertPost(ctx context.Context, post *nostr.Post) (bool, error) {
	inserted := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO posts (id, pubkey, created_at, content, reply_to_id, reply_relay_hint)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`,
			post.ID,
			post.Pubkey,
			post.CreatedAt,
			post.Content,
			nullable(post.ReplyToID),
			nullable(post.ReplyRelayHint),
		)
		if err != nil {
			return fmt.Errorf("insert post: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert post: %w", err)
		}
		if n == 0 {
			return nil
		}
		inserted = true

		for _, hashtag := range post.Hashtags {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO hashtags (post_id, hashtag) VALUES (?, ?)
				ON CONFLICT DO NOTHING
			`, post.ID, hashtag); err != nil {
				return fmt.Errorf("insert hashtag %q: %w", hashtag, err)
			}
		}
		return nil
	})
	return inserted, err
}

// UpsertProfile writes a profile snapshot with monotonic last-write-wins:
// within one transaction, rows with an older created_at for the pubkey are
// deleted and the new row inserted. An incoming snapshot older than the
// stored one is a no-op.
func (s *Store) UpsertProfile(ctx context.Context, p *nostr.Profile) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		newer, err := hasNewerSnapshot(ctx, tx, "profiles", "pubkey", p.Pubkey, p.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert profile: %w", err)
		}
		if newer {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM profiles WHERE pubkey = ? AND created_at < ?`, p.Pubkey, p.CreatedAt); err != nil {
			return fmt.Errorf("upsert profile: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO profiles (pubkey, created_at, name, about, picture, nip05, lud16)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`,
			p.Pubkey,
			p.CreatedAt,
			p.Metadata.Name,
			p.Metadata.About,
			p.Metadata.Picture,
			p.Metadata.Nip05,
			p.Metadata.Lud16,
		); err != nil {
			return fmt.Errorf("upsert profile: %w", err)
		}
		return nil
	})
}

// UpsertContactList replaces an author's follow-list snapshot when the
// incoming one is at least as new. Same monotonic discipline as profiles,
// applied to the whole row set at once.
func (s *Store) UpsertContactList(ctx context.Context, cl *nostr.ContactList) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		newer, err := hasNewerSnapshot(ctx, tx, "contacts", "author", cl.Pubkey, cl.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert contact list: %w", err)
		}
		if newer {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM contacts WHERE author = ? AND created_at < ?`, cl.Pubkey, cl.CreatedAt); err != nil {
			return fmt.Errorf("upsert contact list: %w", err)
		}
		for _, contact := range cl.Contacts {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO contacts (author, contact, created_at) VALUES (?, ?, ?)
				ON CONFLICT DO NOTHING
			`, cl.Pubkey, contact, cl.CreatedAt); err != nil {
				return fmt.Errorf("upsert contact list: %w", err)
			}
		}
		return nil
	})
}

// UpsertRelayList replaces a pubkey's relay-list snapshot when the
// incoming one is at least as new.
func (s *Store) UpsertRelayList(ctx context.Context, rl *nostr.RelayList) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		newer, err := hasNewerSnapshot(ctx, tx, "relay_lists", "pubkey", rl.Pubkey, rl.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert relay list: %w", err)
		}
		if newer {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM relay_lists WHERE pubkey = ? AND created_at < ?`, rl.Pubkey, rl.CreatedAt); err != nil {
			return fmt.Errorf("upsert relay list: %w", err)
		}
		for _, entry := range rl.Entries {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO relay_lists (pubkey, relay_url, is_read, is_write, created_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT DO NOTHING
			`, rl.Pubkey, entry.URL, entry.IsRead, entry.IsWrite, rl.CreatedAt); err != nil {
				return fmt.Errorf("upsert relay list: %w", err)
			}
		}
		return nil
	})
}

// InsertReaction records a deduplicated (post, reactor) like.
func (s *Store) InsertReaction(ctx context.Context, postID, pubkey string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reactions (post_id, pubkey) VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`, postID, pubkey)
	if err != nil {
		return fmt.Errorf("insert reaction: %w", err)
	}
	return nil
}

// InsertEventRelay records that an event was delivered by a relay.
func (s *Store) InsertEventRelay(ctx context.Context, eventID, relayURL string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_relays (event_id, relay_url) VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`, eventID, relayURL)
	if err != nil {
		return fmt.Errorf("insert event relay: %w", err)
	}
	return nil
}

// hasNewerSnapshot reports whether the keyed table already holds rows
// strictly newer than createdAt for the key. Insert-or-ignore alone is
// not enough for multi-row snapshots: stale rows absent from the newer
// set must never sneak in beside it.
func hasNewerSnapshot(ctx context.Context, tx *sql.Tx, table, keyCol, key string, createdAt int64) (bool, error) {
	var count int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = ? AND created_at > ?`, table, keyCol)
	if err := tx.QueryRowContext(ctx, query, key, createdAt).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
