package testutil

import (
	"encoding/hex"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/roach88/plume/internal/nostr"
)

// Signer holds a deterministic test keypair.
type Signer struct {
	priv   *secp256k1.PrivateKey
	Pubkey string
}

// NewSigner derives a keypair from a seed byte, so tests can name
// distinct authors without shared fixtures.
func NewSigner(seed byte) *Signer {
	var raw [32]byte
	raw[31] = seed
	if seed == 0 {
		raw[31] = 1 // zero is not a valid scalar
	}
	priv := secp256k1.PrivKeyFromBytes(raw[:])
	// x-only pubkey: the compressed serialization minus the parity byte.
	return &Signer{
		priv:   priv,
		Pubkey: hex.EncodeToString(priv.PubKey().SerializeCompressed()[1:]),
	}
}

// Event builds a correctly id'd and signed event.
func (s *Signer) Event(t *testing.T, kind int, createdAt int64, content string, tags ...nostr.Tag) *nostr.Event {
	t.Helper()

	event := &nostr.Event{
		Pubkey:    s.Pubkey,
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	if event.Tags == nil {
		event.Tags = []nostr.Tag{}
	}

	id, err := event.ComputeID()
	if err != nil {
		t.Fatalf("compute event id: %v", err)
	}
	event.ID = id

	idBytes, err := hex.DecodeString(id)
	if err != nil {
		t.Fatalf("decode event id: %v", err)
	}
	sig, err := schnorr.Sign(s.priv, idBytes)
	if err != nil {
		t.Fatalf("sign event: %v", err)
	}
	event.Sig = hex.EncodeToString(sig.Serialize())
	return event
}
