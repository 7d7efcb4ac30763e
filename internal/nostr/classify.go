package nostr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Class identifies the single payload variant a ClassifiedEvent carries.
type Class int

const (
	// ClassPost is a kind-1 text note.
	ClassPost Class = iota + 1
	// ClassProfile is a kind-0 metadata snapshot.
	ClassProfile
	// ClassContactList is a kind-3 follow list.
	ClassContactList
	// ClassRelayList is a kind-10002 relay list.
	ClassRelayList
	// ClassReaction is a kind-7 "+" like.
	ClassReaction
)

// Post is the stored subset of a text-note event.
type Post struct {
	ID             string
	Pubkey         string
	CreatedAt      int64
	Content        string
	ReplyToID      string // empty for root posts
	ReplyRelayHint string
	Hashtags       []string
}

// Profile is a metadata snapshot for one pubkey.
type Profile struct {
	Pubkey    string
	CreatedAt int64
	Metadata  Metadata
}

// ContactList is a follow-list snapshot for one author.
type ContactList struct {
	Pubkey    string
	CreatedAt int64
	Contacts  []string
}

// RelayList is a relay-preference snapshot for one pubkey.
type RelayList struct {
	Pubkey    string
	CreatedAt int64
	Entries   []RelayListEntry
}

// Reaction is a deduplicated (post, reactor) like.
type Reaction struct {
	PostID string
	Pubkey string
}

// ClassifiedEvent is the closed tagged variant produced by Classify.
// Exactly the field matching Class is non-nil; consumers switch on Class
// exhaustively and never re-inspect Kind.
type ClassifiedEvent struct {
	Class       Class
	Post        *Post
	Profile     *Profile
	ContactList *ContactList
	RelayList   *RelayList
	Reaction    *Reaction
}

// Classify maps a raw event onto its payload variant.
//
// Returns an error for events the pipeline must drop: unrecognized kinds,
// reactions whose content is not exactly "+", reactions without a target,
// and profile events with unparseable metadata. The error is for logging
// only; callers never surface it.
func Classify(e *Event) (ClassifiedEvent, error) {
	switch e.Kind {
	case KindTextNote:
		replyTo, relayHint, _ := e.ReplyTo()
		return ClassifiedEvent{
			Class: ClassPost,
			Post: &Post{
				ID:             e.ID,
				Pubkey:         e.Pubkey,
				CreatedAt:      e.CreatedAt,
				Content:        e.Content,
				ReplyToID:      replyTo,
				ReplyRelayHint: relayHint,
				Hashtags:       e.Hashtags(),
			},
		}, nil

	case KindProfileMetadata:
		meta, err := ParseMetadata(e.Content)
		if err != nil {
			return ClassifiedEvent{}, fmt.Errorf("classify profile %s: %w", e.ID, err)
		}
		return ClassifiedEvent{
			Class:   ClassProfile,
			Profile: &Profile{Pubkey: e.Pubkey, CreatedAt: e.CreatedAt, Metadata: meta},
		}, nil

	case KindContactList:
		return ClassifiedEvent{
			Class:       ClassContactList,
			ContactList: &ContactList{Pubkey: e.Pubkey, CreatedAt: e.CreatedAt, Contacts: e.ContactPubkeys()},
		}, nil

	case KindRelayList:
		return ClassifiedEvent{
			Class:     ClassRelayList,
			RelayList: &RelayList{Pubkey: e.Pubkey, CreatedAt: e.CreatedAt, Entries: e.RelayListEntries()},
		}, nil

	case KindReaction:
		// Only plain likes count. "-", emoji and custom reactions are dropped.
		if e.Content != "+" {
			return ClassifiedEvent{}, fmt.Errorf("classify reaction %s: content %q is not a like", e.ID, e.Content)
		}
		postID, ok := e.ReactedToID()
		if !ok {
			return ClassifiedEvent{}, fmt.Errorf("classify reaction %s: no reacted-to id", e.ID)
		}
		return ClassifiedEvent{
			Class:    ClassReaction,
			Reaction: &Reaction{PostID: postID, Pubkey: e.Pubkey},
		}, nil

	default:
		return ClassifiedEvent{}, fmt.Errorf("classify %s: unrecognized kind %d", e.ID, e.Kind)
	}
}

// Metadata is the user-editable profile payload of a kind-0 event.
type Metadata struct {
	Name    string `json:"name"`
	About   string `json:"about"`
	Picture string `json:"picture"`
	Nip05   string `json:"nip05"`
	Lud16   string `json:"lud16"`
}

// ParseMetadata decodes a kind-0 content payload. Fields are trimmed;
// unknown fields are ignored.
func ParseMetadata(content string) (Metadata, error) {
	var meta Metadata
	if err := json.Unmarshal([]byte(content), &meta); err != nil {
		return Metadata{}, fmt.Errorf("parse metadata: %w", err)
	}
	meta.Name = strings.TrimSpace(meta.Name)
	meta.About = strings.TrimSpace(meta.About)
	meta.Picture = strings.TrimSpace(meta.Picture)
	meta.Nip05 = strings.TrimSpace(meta.Nip05)
	meta.Lud16 = strings.TrimSpace(meta.Lud16)
	return meta, nil
}
