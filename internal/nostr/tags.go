package nostr

import "strings"

// RelayListEntry is one row of a kind-10002 relay list: a relay URL plus
// read/write flags. A bare "r" tag means both read and write.
type RelayListEntry struct {
	URL     string
	IsRead  bool
	IsWrite bool
}

// Hashtags returns the distinct lowercased values of all "t" tags.
func (e *Event) Hashtags() []string {
	seen := make(map[string]bool)
	var hashtags []string
	for _, tag := range e.Tags {
		if len(tag) < 2 || tag[0] != "t" || tag[1] == "" {
			continue
		}
		h := strings.ToLower(tag[1])
		if !seen[h] {
			seen[h] = true
			hashtags = append(hashtags, h)
		}
	}
	return hashtags
}

// ContactPubkeys returns the distinct, hex-valid pubkeys of all "p" tags.
// Invalid keys are skipped, not errors: contact lists in the wild carry
// plenty of garbage.
func (e *Event) ContactPubkeys() []string {
	seen := make(map[string]bool)
	var pubkeys []string
	for _, tag := range e.Tags {
		if len(tag) < 2 || tag[0] != "p" {
			continue
		}
		pk := tag[1]
		if !IsValidHexKey(pk) || seen[pk] {
			continue
		}
		seen[pk] = true
		pubkeys = append(pubkeys, pk)
	}
	return pubkeys
}

// ReplyTo returns the id of the post this event replies to plus an
// optional relay hint, or ok=false for a root post.
//
// Marker resolution: a "reply"-marked e-tag wins, then a "root"-marked
// one, then the last unmarked e-tag. "mention"-marked e-tags never make a
// post a reply.
func (e *Event) ReplyTo() (id, relayHint string, ok bool) {
	var root, reply, lastPlain Tag
	for _, tag := range e.Tags {
		if len(tag) < 2 || tag[0] != "e" || !IsValidHexKey(tag[1]) {
			continue
		}
		marker := ""
		if len(tag) >= 4 {
			marker = tag[3]
		}
		switch marker {
		case "reply":
			reply = tag
		case "root":
			root = tag
		case "mention":
		default:
			lastPlain = tag
		}
	}

	chosen := reply
	if chosen == nil {
		chosen = root
	}
	if chosen == nil {
		chosen = lastPlain
	}
	if chosen == nil {
		return "", "", false
	}
	if len(chosen) >= 3 {
		relayHint = chosen[2]
	}
	return chosen[1], relayHint, true
}

// ReactedToID returns the id of the post a kind-7 reaction refers to: the
// last valid "e" tag, per protocol convention.
func (e *Event) ReactedToID() (string, bool) {
	for i := len(e.Tags) - 1; i >= 0; i-- {
		tag := e.Tags[i]
		if len(tag) >= 2 && tag[0] == "e" && IsValidHexKey(tag[1]) {
			return tag[1], true
		}
	}
	return "", false
}

// RelayListEntries returns the parsed "r" tags of a kind-10002 event.
// Trailing slashes are stripped so the same relay never appears under two
// spellings.
func (e *Event) RelayListEntries() []RelayListEntry {
	var entries []RelayListEntry
	for _, tag := range e.Tags {
		if len(tag) < 2 || tag[0] != "r" || tag[1] == "" {
			continue
		}
		entry := RelayListEntry{URL: TrimRelayURL(tag[1]), IsRead: true, IsWrite: true}
		if len(tag) >= 3 {
			switch tag[2] {
			case "read":
				entry.IsWrite = false
			case "write":
				entry.IsRead = false
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// TrimRelayURL strips trailing slashes from a relay URL.
func TrimRelayURL(url string) string {
	return strings.TrimRight(url, "/")
}

// IsValidHexKey reports whether s is a 64-char lowercase-hex string, the
// wire form of event ids and pubkeys.
func IsValidHexKey(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
