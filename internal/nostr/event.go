package nostr

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Event kinds this module understands. Anything else is unclassifiable
// and dropped by the processor.
const (
	KindProfileMetadata = 0
	KindTextNote        = 1
	KindContactList     = 3
	KindReaction        = 7
	KindRelayList       = 10002
)

// Event is the signed, content-addressed unit of protocol data.
//
// ID is the lowercase-hex SHA-256 of the canonical serialization (see
// ComputeID). Sig is a 64-byte BIP-340 Schnorr signature over the raw ID
// bytes, verifiable against the 32-byte x-only Pubkey. Events are
// immutable once received.
type Event struct {
	ID        string `json:"id"`
	Pubkey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      []Tag  `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// Tag is one tag entry: a non-empty list of strings whose first element
// names the tag type ("e", "p", "t", "r", ...).
type Tag []string

// ComputeID returns the content address of the event: the hex SHA-256 of
// the canonical JSON array [0, pubkey, created_at, kind, tags, content].
// The serialization is defined by the external protocol and must not be
// reordered or reformatted.
func (e *Event) ComputeID() (string, error) {
	arr := []any{0, e.Pubkey, e.CreatedAt, e.Kind, e.Tags, e.Content}

	// The canonical form keeps <, > and & literal; json.Marshal would
	// escape them and change the hash.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(arr); err != nil {
		return "", fmt.Errorf("compute event id: %w", err)
	}
	canonical := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Verify checks that the event's ID matches its content address and that
// Sig is a valid Schnorr signature over the ID by Pubkey.
//
// Verify never returns an error: a malformed pubkey, id, or signature is
// simply an invalid event. The caller discards silently either way.
func (e *Event) Verify() bool {
	id, err := e.ComputeID()
	if err != nil || id != e.ID {
		return false
	}

	pkBytes, err := hex.DecodeString(e.Pubkey)
	if err != nil || len(pkBytes) != 32 {
		return false
	}
	pubkey, err := schnorr.ParsePubKey(pkBytes)
	if err != nil {
		return false
	}

	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}

	idBytes, err := hex.DecodeString(e.ID)
	if err != nil {
		return false
	}
	return sig.Verify(idBytes, pubkey)
}
