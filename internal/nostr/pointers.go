package nostr

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// PostPointer is an embedded reference to another post, optionally
// carrying relay hints ("nevent" form) or not ("note" form).
type PostPointer struct {
	ID     string
	Relays []string
}

// ProfilePointer is an embedded reference to a profile, optionally
// carrying relay hints ("nprofile" form) or not ("npub" form).
type ProfilePointer struct {
	Pubkey string
	Relays []string
}

// Human-readable prefixes of the bech32 reference encodings.
const (
	prefixNpub     = "npub"
	prefixNote     = "note"
	prefixNprofile = "nprofile"
	prefixNevent   = "nevent"
)

// TLV types used inside nprofile/nevent payloads.
const (
	tlvSpecial = 0
	tlvRelay   = 1
	tlvAuthor  = 2
)

// DecodeProfileRef decodes an npub or nprofile reference (without the
// "nostr:" scheme) into a ProfilePointer.
func DecodeProfileRef(ref string) (ProfilePointer, error) {
	hrp, data, err := decodeBech32(ref)
	if err != nil {
		return ProfilePointer{}, err
	}
	switch hrp {
	case prefixNpub:
		if len(data) != 32 {
			return ProfilePointer{}, fmt.Errorf("decode %s: npub payload is %d bytes", ref, len(data))
		}
		return ProfilePointer{Pubkey: hex.EncodeToString(data)}, nil
	case prefixNprofile:
		special, relays, _, err := parseTLV(data)
		if err != nil {
			return ProfilePointer{}, fmt.Errorf("decode %s: %w", ref, err)
		}
		return ProfilePointer{Pubkey: special, Relays: relays}, nil
	default:
		return ProfilePointer{}, fmt.Errorf("decode %s: not a profile reference", ref)
	}
}

// DecodePostRef decodes a note or nevent reference (without the "nostr:"
// scheme) into a PostPointer.
func DecodePostRef(ref string) (PostPointer, error) {
	hrp, data, err := decodeBech32(ref)
	if err != nil {
		return PostPointer{}, err
	}
	switch hrp {
	case prefixNote:
		if len(data) != 32 {
			return PostPointer{}, fmt.Errorf("decode %s: note payload is %d bytes", ref, len(data))
		}
		return PostPointer{ID: hex.EncodeToString(data)}, nil
	case prefixNevent:
		special, relays, _, err := parseTLV(data)
		if err != nil {
			return PostPointer{}, fmt.Errorf("decode %s: %w", ref, err)
		}
		return PostPointer{ID: special, Relays: relays}, nil
	default:
		return PostPointer{}, fmt.Errorf("decode %s: not a post reference", ref)
	}
}

// EncodeNpub encodes a hex pubkey as an npub reference.
func EncodeNpub(pubkey string) (string, error) {
	return encodeBech32(prefixNpub, pubkey)
}

// EncodeNote encodes a hex post id as a note reference.
func EncodeNote(id string) (string, error) {
	return encodeBech32(prefixNote, id)
}

// ShortenRef abbreviates a bech32 reference for display when no better
// name is known: prefix + first 8 + ":" + last 4 data characters.
func ShortenRef(ref string) string {
	hrp, _, err := decodeBech32(ref)
	if err != nil {
		return ref
	}
	body := ref[len(hrp)+1:]
	if len(body) <= 13 {
		return ref
	}
	return hrp + "1" + body[:8] + ":" + body[len(body)-4:]
}

func encodeBech32(hrp, hexPayload string) (string, error) {
	raw, err := hex.DecodeString(hexPayload)
	if err != nil || len(raw) != 32 {
		return "", fmt.Errorf("encode %s: bad hex payload %q", hrp, hexPayload)
	}
	conv, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", hrp, err)
	}
	encoded, err := bech32.Encode(hrp, conv)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", hrp, err)
	}
	return encoded, nil
}

func decodeBech32(ref string) (hrp string, data []byte, err error) {
	// nevent/nprofile payloads routinely exceed the 90-char checksum
	// limit, hence DecodeNoLimit.
	hrp, conv, err := bech32.DecodeNoLimit(ref)
	if err != nil {
		return "", nil, fmt.Errorf("decode %s: %w", ref, err)
	}
	data, err = bech32.ConvertBits(conv, 5, 8, false)
	if err != nil {
		return "", nil, fmt.Errorf("decode %s: %w", ref, err)
	}
	return hrp, data, nil
}

// parseTLV walks a type-length-value payload, returning the hex-encoded
// 32-byte special entry, any relay hints, and an optional author pubkey.
func parseTLV(data []byte) (special string, relays []string, author string, err error) {
	for len(data) >= 2 {
		typ, length := data[0], int(data[1])
		data = data[2:]
		if length > len(data) {
			return "", nil, "", fmt.Errorf("tlv entry type %d overruns payload", typ)
		}
		value := data[:length]
		data = data[length:]

		switch typ {
		case tlvSpecial:
			if length != 32 {
				return "", nil, "", fmt.Errorf("tlv special entry is %d bytes", length)
			}
			special = hex.EncodeToString(value)
		case tlvRelay:
			relays = append(relays, TrimRelayURL(string(value)))
		case tlvAuthor:
			if length == 32 {
				author = hex.EncodeToString(value)
			}
		}
		// Unknown TLV types are skipped for forward compatibility.
	}
	if special == "" {
		return "", nil, "", fmt.Errorf("tlv payload has no special entry")
	}
	return special, relays, author, nil
}
