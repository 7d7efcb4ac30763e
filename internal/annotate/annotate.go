// Package annotate parses raw post content into an ordered, styled
// segment list for rendering, with a memoized cache.
package annotate

import (
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/plume/internal/nostr"
)

// SegmentKind classifies one styled span of annotated content.
type SegmentKind int

const (
	// SegmentPlain is verbatim text between tokens.
	SegmentPlain SegmentKind = iota
	// SegmentHashtag is a "#topic" token.
	SegmentHashtag
	// SegmentURL is a hyperlink, rendered underlined.
	SegmentURL
	// SegmentPostRef is an embedded post reference.
	SegmentPostRef
	// SegmentProfileRef is an embedded profile reference.
	SegmentProfileRef
)

// Segment is one span of the styled representation. Text is what the
// renderer shows; Value is the underlying token (the full URL, the
// hashtag without "#", the bech32 reference without the scheme).
type Segment struct {
	Kind      SegmentKind
	Text      string
	Value     string
	Underline bool
}

// Annotated is the structured form of one piece of content.
type Annotated struct {
	Raw      string
	Segments []Segment
}

// MediaLinks returns the URLs pointing at media, in order of appearance.
func (a Annotated) MediaLinks() []string {
	var links []string
	for _, seg := range a.Segments {
		if seg.Kind == SegmentURL && isMediaURL(seg.Value) {
			links = append(links, seg.Value)
		}
	}
	return links
}

// PostRefs returns the embedded post pointers, in order of appearance.
func (a Annotated) PostRefs() []nostr.PostPointer {
	var refs []nostr.PostPointer
	for _, seg := range a.Segments {
		if seg.Kind != SegmentPostRef {
			continue
		}
		ptr, err := nostr.DecodePostRef(seg.Value)
		if err != nil {
			continue
		}
		refs = append(refs, ptr)
	}
	return refs
}

// Annotator memoizes fully-resolved annotations by raw input string.
// Safe for concurrent use.
type Annotator struct {
	mu    sync.Mutex
	cache map[string]Annotated
}

// New creates an annotator with an empty cache.
func New() *Annotator {
	return &Annotator{cache: make(map[string]Annotated)}
}

// Annotate parses content into ordered segments in a single left-to-right
// pass. URLs and protocol references are extracted first; hashtags only
// where they do not overlap the start of an already-found token. Text
// between tokens is copied verbatim.
//
// A profile reference whose pubkey is missing from namesByPubkey renders
// a shortened fallback of the reference itself - and blocks memoization,
// since resolution may complete later and caching a placeholder would
// permanently freeze stale text.
func (a *Annotator) Annotate(content string, namesByPubkey map[string]string) Annotated {
	if content == "" {
		return Annotated{}
	}

	a.mu.Lock()
	cached, ok := a.cache[content]
	a.mu.Unlock()
	if ok {
		return cached
	}

	normalized := norm.NFC.String(content)
	tokens := tokenize(normalized)
	if len(tokens) == 0 {
		return Annotated{Raw: content, Segments: []Segment{{Kind: SegmentPlain, Text: normalized}}}
	}

	var (
		segments  []Segment
		cursor    int
		cacheable = true
	)
	for _, tok := range tokens {
		if tok.start < cursor {
			// Overlaps the previous token's tail; already consumed.
			continue
		}
		if tok.start > cursor {
			segments = append(segments, Segment{Kind: SegmentPlain, Text: normalized[cursor:tok.start]})
		}

		seg, resolved := a.renderToken(tok, namesByPubkey)
		segments = append(segments, seg)
		if !resolved {
			cacheable = false
		}
		cursor = tok.end
	}
	if cursor < len(normalized) {
		segments = append(segments, Segment{Kind: SegmentPlain, Text: normalized[cursor:]})
	}

	result := Annotated{Raw: content, Segments: segments}
	if cacheable {
		a.mu.Lock()
		a.cache[content] = result
		a.mu.Unlock()
	}
	return result
}

// renderToken builds the styled segment for one token. The second return
// is false when a profile reference could not resolve to a known name.
func (a *Annotator) renderToken(tok token, namesByPubkey map[string]string) (Segment, bool) {
	switch tok.kind {
	case tokenURL:
		return Segment{Kind: SegmentURL, Text: tok.value, Value: tok.value, Underline: true}, true

	case tokenHashtag:
		return Segment{Kind: SegmentHashtag, Text: tok.value, Value: strings.TrimPrefix(tok.value, "#")}, true

	case tokenRef:
		ref := strings.TrimPrefix(tok.value, "nostr:")
		if profile, err := nostr.DecodeProfileRef(ref); err == nil {
			name, known := namesByPubkey[profile.Pubkey]
			if known && name != "" {
				return Segment{Kind: SegmentProfileRef, Text: "@" + name, Value: ref}, true
			}
			return Segment{Kind: SegmentProfileRef, Text: "@" + nostr.ShortenRef(ref), Value: ref}, false
		}
		if _, err := nostr.DecodePostRef(ref); err == nil {
			return Segment{Kind: SegmentPostRef, Text: nostr.ShortenRef(ref), Value: ref}, true
		}
		// Unparseable reference: keep the raw text, drop the styling.
		return Segment{Kind: SegmentPlain, Text: tok.value}, true
	}
	return Segment{Kind: SegmentPlain, Text: tok.value}, true
}

var mediaSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".mp4", ".mov", ".webm"}

func isMediaURL(url string) bool {
	lower := strings.ToLower(url)
	for _, suffix := range mediaSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
