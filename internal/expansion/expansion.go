// Package expansion implements C5: turning a normalized genre phrase into a
// set of concrete search-platform queries, via the query-digest cache, the
// token governor, and an LLM client, with a deterministic fallback whenever
// any of those paths is unavailable.
package expansion

import (
	"context"
	"strings"
	"time"

	"github.com/creatordisco/discovery/internal/governor"
	"github.com/creatordisco/discovery/internal/llmclient"
	"github.com/creatordisco/discovery/internal/normalize"
	"github.com/creatordisco/discovery/internal/querycache"
)

// checkBudgetEstimate is the fixed token estimate C5 reports to the
// governor for an expansion call before it knows the LLM's actual usage.
const checkBudgetEstimate = 300

// fallbackReportedTokens is recorded when an LLM call never happens (budget
// denied or transport failure): the fallback path costs nothing.
const fallbackReportedTokens = 0

var listMarker = "-*0123456789."

// tokenGovernor is the subset of *governor.TokenGovernor expansion needs,
// narrowed to an interface so tests can exercise every decision branch
// without driving the real atomic counters through their date-reset logic.
type tokenGovernor interface {
	CheckBudget(estimated int64) governor.TokenDecision
	RecordUsage(n int64)
}

// completer is the subset of *llmclient.Client expansion needs.
type completer interface {
	Complete(ctx context.Context, prompt string) (llmclient.Completion, error)
}

// Expander generates queries for a normalized genre phrase.
type Expander struct {
	cache  *querycache.Cache
	tokens tokenGovernor
	llm    completer
}

// New creates an Expander.
func New(cache *querycache.Cache, tokens *governor.TokenGovernor, llm *llmclient.Client) *Expander {
	return &Expander{cache: cache, tokens: tokens, llm: llm}
}

// Expansion is C5's generate(raw) result.
type Expansion struct {
	Normalized string
	Queries    []string
	Count      int
	Timestamp  time.Time
}

// Generate implements C5's generate(raw), never returning an error: every
// failure mode collapses into the deterministic fallback (§4.5 step 7).
func (e *Expander) Generate(ctx context.Context, raw string) Expansion {
	normalized := normalize.Normalize(raw)

	if cached, ok, err := e.cache.Get(ctx, raw); err == nil && ok {
		return Expansion{
			Normalized: normalized,
			Queries:    cached.Queries,
			Count:      len(cached.Queries),
			Timestamp:  cached.CreatedAt,
		}
	}

	decision := e.tokens.CheckBudget(checkBudgetEstimate)
	if decision != governor.TokenAllow {
		return e.fallback(ctx, raw, normalized)
	}

	completion, err := e.llm.Complete(ctx, llmclient.ExpansionPrompt(normalized))
	if err != nil {
		return e.fallback(ctx, raw, normalized)
	}

	llmQueries := parseLLMQueries(completion.Text)
	queries := mergeQueries(normalized, llmQueries)

	reported := completion.TotalTokens
	if reported <= 0 {
		reported = checkBudgetEstimate
	}
	e.tokens.RecordUsage(int64(reported))
	_ = e.cache.Put(ctx, raw, queries, reported)

	return Expansion{Normalized: normalized, Queries: queries, Count: len(queries), Timestamp: time.Now()}
}

// fallback builds the deterministic fallback: the three priority variants
// plus the fixed { youtuber, creator, best } suffixes, cached at zero token
// cost so repeated denials don't re-attempt the LLM within the cache TTL.
func (e *Expander) fallback(ctx context.Context, raw, normalized string) Expansion {
	queries := priorityVariants(normalized)
	for _, suffix := range []string{" youtuber", " creator", " best"} {
		queries = append(queries, normalized+suffix)
	}
	_ = e.cache.Put(ctx, raw, queries, fallbackReportedTokens)
	return Expansion{Normalized: normalized, Queries: queries, Count: len(queries), Timestamp: time.Now()}
}

// priorityVariants returns the three fixed variants §4.5 always puts first.
func priorityVariants(normalized string) []string {
	return []string{normalized, normalized + " official", normalized + " channel"}
}

// mergeQueries builds the final query list per §4.5 step 5: priority
// variants first, then LLM queries not already present case-insensitively.
func mergeQueries(normalized string, llmQueries []string) []string {
	queries := priorityVariants(normalized)
	seen := make(map[string]struct{}, len(queries))
	for _, q := range queries {
		seen[strings.ToLower(q)] = struct{}{}
	}

	for _, q := range llmQueries {
		key := strings.ToLower(q)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		queries = append(queries, q)
	}
	return queries
}

// parseLLMQueries splits the LLM's one-query-per-line response, stripping
// leading list markers and deduping case-insensitively, per §4.5 step 4.
func parseLLMQueries(text string) []string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))

	for _, line := range lines {
		q := stripListMarker(strings.TrimSpace(line))
		if q == "" {
			continue
		}
		key := strings.ToLower(q)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	return out
}

// stripListMarker strips a leading `^[-*\d.]+\s*` pattern without a regexp
// allocation per line: it consumes leading hyphens, asterisks, digits, and
// dots, then any following whitespace.
func stripListMarker(s string) string {
	i := 0
	for i < len(s) && strings.ContainsRune(listMarker, rune(s[i])) {
		i++
	}
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return s[i:]
}
