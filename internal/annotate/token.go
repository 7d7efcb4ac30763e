package annotate

import (
	"regexp"
	"sort"

	"github.com/roach88/plume/internal/nostr"
)

type tokenKind int

const (
	tokenURL tokenKind = iota
	tokenRef
	tokenHashtag
)

// token is one styled candidate found in content, by byte position.
type token struct {
	kind  tokenKind
	start int
	end   int
	value string
}

var (
	urlRegexp     = regexp.MustCompile(`https?://[^\s<>"]+`)
	hashtagRegexp = regexp.MustCompile(`#[\p{L}\p{N}_]+`)
)

// tokenize extracts URLs and protocol references first, then hashtags
// that do not overlap the start of an already-found token - a "#" inside
// a reference's bech32 tail must not be tokenized twice. The result is
// ordered by position.
func tokenize(content string) []token {
	var tokens []token

	for _, loc := range urlRegexp.FindAllStringIndex(content, -1) {
		tokens = append(tokens, token{
			kind:  tokenURL,
			start: loc[0],
			end:   loc[1],
			value: content[loc[0]:loc[1]],
		})
	}
	for _, m := range nostr.FindRefs(content) {
		tokens = append(tokens, token{kind: tokenRef, start: m.Start, end: m.End, value: m.Raw})
	}

	for _, loc := range hashtagRegexp.FindAllStringIndex(content, -1) {
		overlapping := false
		for _, tok := range tokens {
			if loc[0] < tok.start && loc[1] > tok.start {
				overlapping = true
				break
			}
			// Inside another token entirely: the assembly pass would skip
			// it anyway, dropping it here keeps the slice clean.
			if loc[0] >= tok.start && loc[0] < tok.end {
				overlapping = true
				break
			}
		}
		if !overlapping {
			tokens = append(tokens, token{
				kind:  tokenHashtag,
				start: loc[0],
				end:   loc[1],
				value: content[loc[0]:loc[1]],
			})
		}
	}

	sort.Slice(tokens, func(i, j int) bool { return tokens[i].start < tokens[j].start })
	return tokens
}
