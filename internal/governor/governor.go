// Package governor implements the Token Governor (C2) and Quota Governor
// (C3): atomic, daily-resetting budget counters that gate the LLM expansion
// and platform-search paths, plus the credential rotation used when the
// platform rejects a call with a quota-shaped error.
package governor

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// TokenDecision is C2's checkBudget outcome.
type TokenDecision int

const (
	TokenAllow TokenDecision = iota
	TokenEmbeddingsOnly
	TokenFallbackOnly
	TokenDowngrade
	TokenReject
)

func (d TokenDecision) String() string {
	switch d {
	case TokenAllow:
		return "ALLOW"
	case TokenEmbeddingsOnly:
		return "EMBEDDINGS_ONLY"
	case TokenFallbackOnly:
		return "FALLBACK_ONLY"
	case TokenDowngrade:
		return "DOWNGRADE"
	case TokenReject:
		return "REJECT"
	default:
		return "UNKNOWN"
	}
}

// TokenGovernorConfig holds C2's configurable thresholds.
type TokenGovernorConfig struct {
	DailyBudget       int64
	PerRequestBudget  int64
	FallbackThreshold float64
}

// DefaultTokenGovernorConfig returns the defaults from §4.2.
func DefaultTokenGovernorConfig() TokenGovernorConfig {
	return TokenGovernorConfig{
		DailyBudget:       1_000_000,
		PerRequestBudget:  2_000,
		FallbackThreshold: 0.9,
	}
}

// TokenGovernor is C2: a daily token budget with atomic accounting and a
// graduated set of decisions as the budget is consumed.
type TokenGovernor struct {
	cfg         TokenGovernorConfig
	mu          sync.Mutex
	currentDate string
	tokensUsed  int64
}

// NewTokenGovernor creates a token governor with cfg, dated "today" in UTC.
func NewTokenGovernor(cfg TokenGovernorConfig) *TokenGovernor {
	return &TokenGovernor{cfg: cfg, currentDate: today()}
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

// resetIfNewDay resets tokensUsed to zero the first time it observes a new
// UTC date; cheap to call on every checkBudget since the common case is a
// single string comparison under the lock.
func (g *TokenGovernor) resetIfNewDay() {
	g.mu.Lock()
	defer g.mu.Unlock()
	d := today()
	if d != g.currentDate {
		g.currentDate = d
		atomic.StoreInt64(&g.tokensUsed, 0)
	}
}

// CheckBudget implements C2's checkBudget(estimated).
func (g *TokenGovernor) CheckBudget(estimated int64) TokenDecision {
	g.resetIfNewDay()

	if estimated > g.cfg.PerRequestBudget {
		return TokenDowngrade
	}

	used := atomic.LoadInt64(&g.tokensUsed)
	if used+estimated > g.cfg.DailyBudget {
		return TokenReject
	}

	ratio := float64(used) / float64(g.cfg.DailyBudget)
	switch {
	case ratio >= g.cfg.FallbackThreshold:
		return TokenFallbackOnly
	case ratio >= 0.5:
		return TokenEmbeddingsOnly
	default:
		return TokenAllow
	}
}

// RecordUsage atomically adds n to today's used-token counter. Rejected
// calls never call RecordUsage, so there is nothing to roll back.
func (g *TokenGovernor) RecordUsage(n int64) {
	atomic.AddInt64(&g.tokensUsed, n)
}

// Snapshot reports the current counters for /admin/stats.
type TokenSnapshot struct {
	CurrentDate string
	TokensUsed  int64
	DailyBudget int64
}

func (g *TokenGovernor) Snapshot() TokenSnapshot {
	g.mu.Lock()
	date := g.currentDate
	g.mu.Unlock()
	return TokenSnapshot{
		CurrentDate: date,
		TokensUsed:  atomic.LoadInt64(&g.tokensUsed),
		DailyBudget: g.cfg.DailyBudget,
	}
}

// QuotaDecision is C3's checkQuota outcome.
type QuotaDecision int

const (
	QuotaAllow QuotaDecision = iota
	QuotaReduceQueries
	QuotaReduceResults
	QuotaReject
)

func (d QuotaDecision) String() string {
	switch d {
	case QuotaAllow:
		return "ALLOW"
	case QuotaReduceQueries:
		return "REDUCE_QUERIES"
	case QuotaReduceResults:
		return "REDUCE_RESULTS"
	case QuotaReject:
		return "REJECT"
	default:
		return "UNKNOWN"
	}
}

// Caps bounds the query count and per-query result count a decision allows.
type Caps struct {
	MaxQueries int
	MaxResults int
}

// CapsForDecision returns the fixed caps associated with each decision,
// per §4.3.
func CapsForDecision(d QuotaDecision) Caps {
	switch d {
	case QuotaReduceResults:
		return Caps{MaxQueries: 2, MaxResults: 20}
	case QuotaReduceQueries:
		return Caps{MaxQueries: 3, MaxResults: 50}
	default:
		return Caps{MaxQueries: 5, MaxResults: 50}
	}
}

const (
	// SearchListCost is the quota cost of one search.list call.
	SearchListCost int64 = 100
	// ChannelsListBatchSize is the max channel IDs per channels.list call.
	ChannelsListBatchSize = 50
	// ChannelsListCost is the quota cost of one channels.list batch call.
	ChannelsListCost int64 = 1
)

// QuotaGovernorConfig holds C3's configurable thresholds.
type QuotaGovernorConfig struct {
	DailyQuota         int64
	DowngradeThreshold float64
}

// DefaultQuotaGovernorConfig returns the defaults from §4.3.
func DefaultQuotaGovernorConfig() QuotaGovernorConfig {
	return QuotaGovernorConfig{
		DailyQuota:         10_000,
		DowngradeThreshold: 0.8,
	}
}

// QuotaGovernor is C3: a daily external-API quota budget, plus round-robin
// credential rotation state for the platform adapter.
type QuotaGovernor struct {
	cfg          QuotaGovernorConfig
	mu           sync.Mutex
	currentDate  string
	unitsUsed    int64
	credentials  []string
	credIdx      int64
}

// NewQuotaGovernor creates a quota governor over the given ordered
// credential list (at least one entry is required for rotation to be
// meaningful; an empty list is accepted for a credentials-absent feature
// state).
func NewQuotaGovernor(cfg QuotaGovernorConfig, credentials []string) *QuotaGovernor {
	return &QuotaGovernor{cfg: cfg, currentDate: today(), credentials: credentials}
}

func (g *QuotaGovernor) resetIfNewDay() {
	g.mu.Lock()
	defer g.mu.Unlock()
	d := today()
	if d != g.currentDate {
		g.currentDate = d
		atomic.StoreInt64(&g.unitsUsed, 0)
	}
}

// EstimateCost implements C3's estimateCost(queryCount, maxResultsPerQuery).
func EstimateCost(queryCount, maxResultsPerQuery int) int64 {
	search := SearchListCost * int64(queryCount)
	channelsBatches := int64(math.Ceil(float64(queryCount*maxResultsPerQuery) / ChannelsListBatchSize))
	return search + channelsBatches
}

// CheckQuota implements C3's checkQuota(estimated).
func (g *QuotaGovernor) CheckQuota(estimated int64) QuotaDecision {
	g.resetIfNewDay()

	used := atomic.LoadInt64(&g.unitsUsed)
	if used+estimated > g.cfg.DailyQuota {
		return QuotaReject
	}

	ratio := float64(used) / float64(g.cfg.DailyQuota)
	switch {
	case ratio >= 0.9:
		return QuotaReduceResults
	case ratio >= g.cfg.DowngradeThreshold:
		return QuotaReduceQueries
	default:
		return QuotaAllow
	}
}

// RecordUsage atomically adds n to today's used-unit counter.
func (g *QuotaGovernor) RecordUsage(n int64) {
	atomic.AddInt64(&g.unitsUsed, n)
}

// CurrentCredential returns the credential at the current rotation index.
// Returns "", false if no credentials are configured.
func (g *QuotaGovernor) CurrentCredential() (string, bool) {
	if len(g.credentials) == 0 {
		return "", false
	}
	idx := atomic.LoadInt64(&g.credIdx) % int64(len(g.credentials))
	return g.credentials[idx], true
}

// RotateCredential advances to the next credential round-robin and reports,
// via the returned cycled flag, whether the rotation has wrapped back to the
// first credential. It does not track which credentials have failed.
func (g *QuotaGovernor) RotateCredential() (next string, cycled bool, ok bool) {
	if len(g.credentials) == 0 {
		return "", false, false
	}
	n := atomic.AddInt64(&g.credIdx, 1)
	cycled = n%int64(len(g.credentials)) == 0
	next = g.credentials[n%int64(len(g.credentials))]
	return next, cycled, true
}

// CredentialCount reports how many credentials are configured.
func (g *QuotaGovernor) CredentialCount() int {
	return len(g.credentials)
}

// QuotaSnapshot reports the current counters for /admin/stats.
type QuotaSnapshot struct {
	CurrentDate string
	UnitsUsed   int64
	DailyQuota  int64
}

func (g *QuotaGovernor) Snapshot() QuotaSnapshot {
	g.mu.Lock()
	date := g.currentDate
	g.mu.Unlock()
	return QuotaSnapshot{
		CurrentDate: date,
		UnitsUsed:   atomic.LoadInt64(&g.unitsUsed),
		DailyQuota:  g.cfg.DailyQuota,
	}
}
