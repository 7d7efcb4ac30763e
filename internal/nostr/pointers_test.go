package nostr

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The npub vector from the protocol's encoding spec.
const (
	vectorPubkey = "3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d"
	vectorNpub   = "npub180cvv07tjdrrgpa0j7j7tmnyl2yr6yr7l8j4s3evf6u64th6gkwsyjh6w6"
)

func TestEncodeNpub_KnownVector(t *testing.T) {
	npub, err := EncodeNpub(vectorPubkey)
	require.NoError(t, err)
	assert.Equal(t, vectorNpub, npub)
}

func TestDecodeProfileRef_Npub(t *testing.T) {
	ptr, err := DecodeProfileRef(vectorNpub)
	require.NoError(t, err)
	assert.Equal(t, vectorPubkey, ptr.Pubkey)
	assert.Empty(t, ptr.Relays)
}

func TestEncodeNote_RoundTrip(t *testing.T) {
	id := "97c70a44366a6535c145b333f973ea86dfdc2d7a99da618c40c64705ad98e322"

	note, err := EncodeNote(id)
	require.NoError(t, err)

	ptr, err := DecodePostRef(note)
	require.NoError(t, err)
	assert.Equal(t, id, ptr.ID)
}

func TestEncodeNpub_BadPayload(t *testing.T) {
	_, err := EncodeNpub("abcd")
	assert.Error(t, err)

	_, err = EncodeNpub("zz")
	assert.Error(t, err)
}

func TestDecodeProfileRef_WrongPrefix(t *testing.T) {
	note, err := EncodeNote(vectorPubkey)
	require.NoError(t, err)

	_, err = DecodeProfileRef(note)
	assert.Error(t, err)
}

func TestDecodePostRef_WrongPrefix(t *testing.T) {
	_, err := DecodePostRef(vectorNpub)
	assert.Error(t, err)
}

// encodeTLVRef builds an nprofile/nevent style reference for tests.
func encodeTLVRef(t *testing.T, hrp, hexKey string, relays ...string) string {
	t.Helper()

	raw, err := hex.DecodeString(hexKey)
	require.NoError(t, err)

	payload := append([]byte{tlvSpecial, 32}, raw...)
	for _, relay := range relays {
		payload = append(payload, tlvRelay, byte(len(relay)))
		payload = append(payload, relay...)
	}

	conv, err := bech32.ConvertBits(payload, 8, 5, true)
	require.NoError(t, err)
	ref, err := bech32.Encode(hrp, conv)
	require.NoError(t, err)
	return ref
}

func TestDecodePostRef_NeventWithRelayHints(t *testing.T) {
	id := "97c70a44366a6535c145b333f973ea86dfdc2d7a99da618c40c64705ad98e322"
	ref := encodeTLVRef(t, "nevent", id, "wss://one.example/", "wss://two.example")

	ptr, err := DecodePostRef(ref)
	require.NoError(t, err)
	assert.Equal(t, id, ptr.ID)
	assert.Equal(t, []string{"wss://one.example", "wss://two.example"}, ptr.Relays)
}

func TestDecodeProfileRef_Nprofile(t *testing.T) {
	ref := encodeTLVRef(t, "nprofile", vectorPubkey, "wss://relay.example")

	ptr, err := DecodeProfileRef(ref)
	require.NoError(t, err)
	assert.Equal(t, vectorPubkey, ptr.Pubkey)
	assert.Equal(t, []string{"wss://relay.example"}, ptr.Relays)
}

func TestDecodePostRef_TLVWithoutSpecialEntry(t *testing.T) {
	payload := []byte{tlvRelay, 3, 'w', 's', 's'}
	conv, err := bech32.ConvertBits(payload, 8, 5, true)
	require.NoError(t, err)
	ref, err := bech32.Encode("nevent", conv)
	require.NoError(t, err)

	_, err = DecodePostRef(ref)
	assert.Error(t, err)
}

func TestShortenRef(t *testing.T) {
	short := ShortenRef(vectorNpub)
	assert.Equal(t, "npub180cvv07t:h6w6", short)
}

func TestShortenRef_NotBech32(t *testing.T) {
	assert.Equal(t, "plain text", ShortenRef("plain text"))
}
