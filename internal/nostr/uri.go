package nostr

import (
	"regexp"
	"strings"
)

// refRegexp matches nostr URIs embedded in free text. The charset is the
// bech32 data alphabet; the scheme prefix is mandatory in post content.
var refRegexp = regexp.MustCompile(`nostr:(npub|note|nprofile|nevent)1[qpzry9x8gf2tvdw0s3jn54khce6mua7l]+`)

// RefMatch is one nostr URI found in content, with byte positions for the
// annotator's single-pass tokenizer.
type RefMatch struct {
	Start int
	End   int
	Raw   string // full match including the "nostr:" scheme
	Ref   string // bech32 reference without the scheme
}

// FindRefs returns all nostr URIs in content in order of appearance.
func FindRefs(content string) []RefMatch {
	var matches []RefMatch
	for _, loc := range refRegexp.FindAllStringIndex(content, -1) {
		raw := content[loc[0]:loc[1]]
		matches = append(matches, RefMatch{
			Start: loc[0],
			End:   loc[1],
			Raw:   raw,
			Ref:   strings.TrimPrefix(raw, "nostr:"),
		})
	}
	return matches
}

// ExtractPostPointers scans contents for note/nevent references and
// returns one pointer per distinct post id, relay hints merged.
func ExtractPostPointers(contents []string) []PostPointer {
	byID := make(map[string]*PostPointer)
	var order []string
	for _, content := range contents {
		for _, m := range FindRefs(content) {
			if !strings.HasPrefix(m.Ref, prefixNote) && !strings.HasPrefix(m.Ref, prefixNevent) {
				continue
			}
			ptr, err := DecodePostRef(m.Ref)
			if err != nil {
				continue
			}
			existing, ok := byID[ptr.ID]
			if !ok {
				p := ptr
				byID[ptr.ID] = &p
				order = append(order, ptr.ID)
				continue
			}
			existing.Relays = mergeRelays(existing.Relays, ptr.Relays)
		}
	}

	pointers := make([]PostPointer, 0, len(order))
	for _, id := range order {
		pointers = append(pointers, *byID[id])
	}
	return pointers
}

// ExtractProfilePointers scans contents for npub/nprofile references and
// returns one pointer per distinct pubkey, relay hints merged.
func ExtractProfilePointers(contents []string) []ProfilePointer {
	byPubkey := make(map[string]*ProfilePointer)
	var order []string
	for _, content := range contents {
		for _, m := range FindRefs(content) {
			if !strings.HasPrefix(m.Ref, prefixNpub) && !strings.HasPrefix(m.Ref, prefixNprofile) {
				continue
			}
			ptr, err := DecodeProfileRef(m.Ref)
			if err != nil {
				continue
			}
			existing, ok := byPubkey[ptr.Pubkey]
			if !ok {
				p := ptr
				byPubkey[ptr.Pubkey] = &p
				order = append(order, ptr.Pubkey)
				continue
			}
			existing.Relays = mergeRelays(existing.Relays, ptr.Relays)
		}
	}

	pointers := make([]ProfilePointer, 0, len(order))
	for _, pk := range order {
		pointers = append(pointers, *byPubkey[pk])
	}
	return pointers
}

func mergeRelays(existing, extra []string) []string {
	for _, relay := range extra {
		found := false
		for _, have := range existing {
			if have == relay {
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, relay)
		}
	}
	return existing
}
