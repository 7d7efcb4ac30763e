// Package store provides SQLite-backed storage for the sync engine's
// local view of the relay network.
//
// Tables:
//   - posts: text notes, the feed's raw material
//   - profiles: one metadata snapshot per pubkey
//   - contacts: follow-list rows, one snapshot per author
//   - relay_lists: read/write relay preferences, one snapshot per pubkey
//   - reactions: deduplicated (post, reactor) likes
//   - hashtags: post-id to hashtag associations
//   - event_relays: (event, relay) provenance powering the relay filter
//
// # Write discipline
//
// All inserts are insert-or-ignore: event ids content-address their rows,
// so re-delivery is a no-op. Snapshot tables (profiles, contacts,
// relay_lists) use a transactional monotonic upsert - delete rows with an
// older created_at for the pubkey, then insert - so last-write-wins is
// decided by event timestamp, never by arrival order.
//
// # Sweep discipline
//
// Deletion happens only through the sweep methods, which take the
// exclusion-cache snapshot as an explicit parameter and never delete
// excluded or self-authored rows.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
