// Package normalize implements C1: deterministic canonicalization of a
// free-text genre phrase into a stable cache key.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
)

// stopwords is the fixed, closed set removed during normalization (§4.1).
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "for": {}, "of": {},
	"in": {}, "on": {}, "to": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "being": {}, "have": {}, "has": {}, "had": {},
	"do": {}, "does": {}, "did": {}, "will": {}, "would": {}, "could": {},
	"should": {}, "may": {}, "might": {}, "must": {}, "shall": {}, "can": {},
	"need": {}, "dare": {}, "ought": {}, "used": {}, "with": {}, "at": {},
	"by": {}, "from": {}, "as": {}, "into": {}, "through": {}, "during": {},
	"before": {}, "after": {}, "above": {}, "below": {}, "between": {},
	"under": {},
}

// nonAllowedChars matches everything outside [a-z0-9 \-] once the input has
// been lowercased.
var nonAllowedChars = regexp.MustCompile(`[^a-z0-9 \-]`)

// whitespaceOrHyphenRuns matches one or more consecutive spaces and/or
// hyphens, collapsed to a single space by step 3.
var whitespaceOrHyphenRuns = regexp.MustCompile(`[ \-]+`)

// Normalize implements the fixed, deterministic pipeline from §4.1:
// lowercase, strip disallowed characters, collapse whitespace/hyphen runs,
// trim, drop stopwords, sort remaining tokens lexicographically, rejoin.
//
// Idempotent: Normalize(Normalize(x)) == Normalize(x). Commutative over
// token reorderings of the input prior to stopword removal, since the
// trailing sort erases order.
func Normalize(raw string) string {
	s := strings.ToLower(raw)
	s = nonAllowedChars.ReplaceAllString(s, "")
	s = whitespaceOrHyphenRuns.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	tokens := strings.Split(s, " ")
	kept := tokens[:0:0]
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		kept = append(kept, tok)
	}

	sort.Strings(kept)
	return strings.Join(kept, " ")
}

// Digest returns the first 16 hex characters (64 bits) of the SHA-256 over
// the UTF-8 bytes of normalized.
func Digest(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}

// CacheKey returns "query:v1:"+Digest(Normalize(raw)), or
// "query:v1:empty" when normalization yields the empty string.
func CacheKey(raw string) string {
	normalized := Normalize(raw)
	if normalized == "" {
		return "query:v1:empty"
	}
	return "query:v1:" + Digest(normalized)
}
