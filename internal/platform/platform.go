// Package platform implements C6: the platform search adapter that turns a
// set of expanded queries into ordered CreatorProfile lists, bounded by the
// quota governor, deduped, credential-rotated on quota-shaped failures, and
// backed by a channel-metadata cache to avoid refetching recently-seen
// channels.
package platform

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/creatordisco/discovery/internal/apperr"
	"github.com/creatordisco/discovery/internal/cache"
	"github.com/creatordisco/discovery/internal/governor"
	"github.com/creatordisco/discovery/internal/platformclient"
	"github.com/creatordisco/discovery/pkg/models"
)

const (
	channelCacheCapacity = 2000
	channelCacheTTL      = time.Hour
	// softRateLimitPerSecond bounds outbound calls independently of the
	// quota governor's budget accounting, so a burst of queries can't hammer
	// the provider faster than it tolerates even while under quota.
	softRateLimitPerSecond = 5
	softRateLimitBurst     = 10
)

// searcher is the subset of *platformclient.Client the adapter needs.
type searcher interface {
	SearchChannels(ctx context.Context, credential, query string, maxResults int) ([]string, error)
	GetChannels(ctx context.Context, credential string, channelIDs []string) ([]platformclient.ChannelResult, error)
}

// Adapter is C6.
type Adapter struct {
	client    searcher
	quota     *governor.QuotaGovernor
	limiter   *rate.Limiter
	chanCache *cache.Cache
}

// New creates a platform search adapter.
func New(client searcher, quota *governor.QuotaGovernor) *Adapter {
	return &Adapter{
		client:    client,
		quota:     quota,
		limiter:   rate.NewLimiter(softRateLimitPerSecond, softRateLimitBurst),
		chanCache: cache.New(channelCacheCapacity, channelCacheTTL),
	}
}

// SearchChannels implements C6's searchChannels(queries, maxResultsPerQuery).
// The returned map preserves query insertion order only insofar as Go maps
// allow; callers that need ordering should range over the original queries
// slice and look up each key.
func (a *Adapter) SearchChannels(ctx context.Context, queries []string, maxResultsPerQuery int) (map[string][]models.CreatorProfile, int64, error) {
	estimated := governor.EstimateCost(len(queries), maxResultsPerQuery)
	decision := a.quota.CheckQuota(estimated)
	if decision == governor.QuotaReject {
		return map[string][]models.CreatorProfile{}, 0, nil
	}

	caps := governor.CapsForDecision(decision)
	deduped := dedupeQueries(queries)
	if len(deduped) > caps.MaxQueries {
		deduped = deduped[:caps.MaxQueries]
	}
	if maxResultsPerQuery > caps.MaxResults {
		maxResultsPerQuery = caps.MaxResults
	}
	if maxResultsPerQuery > 50 {
		maxResultsPerQuery = 50
	}

	results := make(map[string][]models.CreatorProfile, len(deduped))
	var totalQuotaSpent int64

	for _, query := range deduped {
		profiles, spent, err := a.searchOne(ctx, query, maxResultsPerQuery)
		if err != nil {
			a.quota.RecordUsage(totalQuotaSpent)
			return nil, totalQuotaSpent, err
		}
		results[query] = profiles
		totalQuotaSpent += spent
	}

	a.quota.RecordUsage(totalQuotaSpent)
	return results, totalQuotaSpent, nil
}

// searchOne runs §4.6 steps 4a-4f for a single query, rotating credentials
// on quota-shaped failures and giving up once every credential has failed.
func (a *Adapter) searchOne(ctx context.Context, query string, maxResults int) ([]models.CreatorProfile, int64, error) {
	credential, ok := a.quota.CurrentCredential()
	if !ok {
		return nil, 0, apperr.ErrNoCredentials
	}

	var channelIDs []string
	var err error
	attempts := a.quota.CredentialCount()
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if waitErr := a.limiter.Wait(ctx); waitErr != nil {
			return nil, 0, waitErr
		}
		channelIDs, err = a.client.SearchChannels(ctx, credential, query, maxResults)
		if err == nil {
			break
		}
		if !errors.Is(err, apperr.ErrQuotaShaped) {
			return nil, 0, err
		}
		next, _, rotated := a.quota.RotateCredential()
		if !rotated {
			return nil, 0, apperr.ErrCredentialsExhausted
		}
		credential = next
	}
	if err != nil {
		return nil, 0, apperr.ErrCredentialsExhausted
	}

	quotaSpent := governor.SearchListCost

	hits, misses := a.partitionByCache(channelIDs)
	profiles := make([]models.CreatorProfile, 0, len(channelIDs))
	for _, id := range channelIDs {
		if profile, ok := hits[id]; ok {
			profiles = append(profiles, profile)
		}
	}

	if len(misses) > 0 {
		fetched, err := a.client.GetChannels(ctx, credential, misses)
		if err != nil {
			if errors.Is(err, apperr.ErrQuotaShaped) {
				return nil, quotaSpent, apperr.ErrCredentialsExhausted
			}
			return nil, quotaSpent, err
		}
		quotaSpent += governor.ChannelsListCost

		fetchedByID := make(map[string]models.CreatorProfile, len(fetched))
		for _, ch := range fetched {
			profile := toProfile(ch)
			a.chanCache.Put(ch.ChannelID, profile)
			fetchedByID[ch.ChannelID] = profile
		}
		for _, id := range channelIDs {
			if _, wasHit := hits[id]; wasHit {
				continue
			}
			if profile, ok := fetchedByID[id]; ok {
				profiles = append(profiles, profile)
			}
		}
	}

	// Re-order profiles to match channelIDs' original order (miss-set
	// profiles were appended above in fetch order, not search order).
	byID := make(map[string]models.CreatorProfile, len(profiles))
	for _, p := range profiles {
		byID[p.ChannelID] = p
	}
	ordered := make([]models.CreatorProfile, 0, len(channelIDs))
	for _, id := range channelIDs {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
		}
	}

	return ordered, quotaSpent, nil
}

func (a *Adapter) partitionByCache(channelIDs []string) (hits map[string]models.CreatorProfile, misses []string) {
	hits = make(map[string]models.CreatorProfile, len(channelIDs))
	for _, id := range channelIDs {
		if v, ok := a.chanCache.Get(id); ok {
			hits[id] = v.(models.CreatorProfile)
			continue
		}
		misses = append(misses, id)
	}
	return hits, misses
}

func toProfile(ch platformclient.ChannelResult) models.CreatorProfile {
	return models.CreatorProfile{
		ChannelID:   ch.ChannelID,
		Handle:      ch.Handle,
		DisplayName: ch.DisplayName,
		Bio:         ch.Bio,
		ImageURL:    ch.ImageURL,
		Country:     ch.Country,
		Subscribers: ch.Subscribers,
		Videos:      ch.VideoCount,
		Views:       ch.ViewCount,
	}
}

// dedupeQueries preserves first-occurrence order, case-insensitively, per
// §4.6 step 3.
func dedupeQueries(queries []string) []string {
	out := make([]string, 0, len(queries))
	seen := make(map[string]struct{}, len(queries))
	for _, q := range queries {
		key := strings.ToLower(q)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	return out
}

// ChannelCacheStats reports the channel-metadata cache's hit/miss/eviction
// counters for /admin/stats.
func (a *Adapter) ChannelCacheStats() cache.Stats {
	return a.chanCache.Stats()
}

// ClearChannelCache empties the channel-metadata cache, for
// /admin/cache/clear.
func (a *Adapter) ClearChannelCache() {
	a.chanCache.Clear()
}
