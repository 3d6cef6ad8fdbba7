// Package scoring implements C7: five independent, pure, deterministic
// sub-scorers over a CreatorProfile, combined into a weighted finalScore,
// plus the derived labels and competitiveness tier used by the read-time
// view.
package scoring

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/creatordisco/discovery/pkg/models"
)

// PreferenceBucket is an optional user-supplied subscriber-count range that
// sharpens the audience-fit scorer (§4.7).
type PreferenceBucket struct {
	Min int64
	Max int64
}

// Calculator computes the five sub-scores and finalScore for a creator.
type Calculator struct {
	weights models.ScoringWeights
}

// NewCalculator creates a scoring calculator. A zero-value weights argument
// falls back to the fixed defaults.
func NewCalculator(weights models.ScoringWeights) *Calculator {
	if weights == (models.ScoringWeights{}) {
		weights = models.DefaultScoringWeights()
	}
	return &Calculator{weights: weights}
}

// Input bundles everything a single scoring pass needs.
type Input struct {
	Profile          models.CreatorProfile
	BaseGenre        string
	Now              time.Time
	PreferenceBucket *PreferenceBucket
	RecentVideos     []models.VideoStatistic // optional; enables the behavior-based engagement form
}

// ScoreComponents is the full breakdown of one scoring pass, mirroring
// models.CreatorScore but retained separately so callers can inspect
// intermediate values without constructing a CreatorScore first.
type ScoreComponents struct {
	GenreRelevance      float64
	AudienceFit         float64
	EngagementQuality   float64
	ActivityConsistency float64
	Freshness           float64
	FinalScore          float64
}

// nameBoostFloor is the minimum NameRelevance must clear before it boosts
// genreRelevance: NameRelevance's word-overlap fallback never scores below
// 0.4 even on total mismatch, so only its exact/prefix/contains bands (which
// start at 0.7) count as the "boost" §4.7 describes — otherwise every
// creator's relevance would floor out around 0.4 regardless of genre match.
const nameBoostFloor = 0.7

// Score computes all five sub-scores and the weighted finalScore for in.
// GenreRelevance is the text-only scorer boosted by the name-relevance
// variant (§4.7): an exact or near-exact match between baseGenre and the
// creator's display name raises genreRelevance rather than living in its
// own stored column, since SearchSessionResult carries a single relevance
// field.
func (c *Calculator) Score(in Input) ScoreComponents {
	textRelevance := genreRelevance(in.BaseGenre, in.Profile.DisplayName, in.Profile.Bio)
	genreRel := textRelevance
	if nameBoost := NameRelevance(in.BaseGenre, in.Profile.DisplayName); nameBoost >= nameBoostFloor {
		genreRel = math.Max(genreRel, nameBoost)
	}

	comp := ScoreComponents{
		GenreRelevance:      clamp01(genreRel),
		AudienceFit:         audienceFit(in.Profile.Subscribers, in.PreferenceBucket),
		EngagementQuality:   engagementQuality(in.Profile, in.RecentVideos),
		ActivityConsistency: activityConsistency(in.Profile, in.Now),
		Freshness:           freshness(in.Profile.LastVideoDate, in.Now),
	}
	comp.FinalScore = clamp01(
		c.weights.GenreRelevance*comp.GenreRelevance +
			c.weights.AudienceFit*comp.AudienceFit +
			c.weights.EngagementQuality*comp.EngagementQuality +
			c.weights.ActivityConsistency*comp.ActivityConsistency +
			c.weights.Freshness*comp.Freshness,
	)
	return comp
}

// genreRelevance implements §4.7's text-only relevance scorer: tokenize
// baseGenre into words longer than 2 characters, count how many occur in
// the combined, normalized name+description, and boost if the whole
// normalized genre is a substring of the normalized name.
func genreRelevance(baseGenre, name, description string) float64 {
	genreTokens := tokenizeLongWords(baseGenre)
	if len(genreTokens) == 0 {
		return 0
	}

	haystack := normalizeForMatch(name + " " + description)
	matches := 0
	for _, tok := range genreTokens {
		if strings.Contains(haystack, tok) {
			matches++
		}
	}
	ratio := float64(matches) / float64(len(genreTokens))

	normalizedGenre := normalizeForMatch(baseGenre)
	normalizedName := normalizeForMatch(name)
	if normalizedGenre != "" && strings.Contains(normalizedName, normalizedGenre) {
		ratio += 0.3
	}

	return clamp01(ratio)
}

// NameRelevance is the "name relevance" variant from §4.7 used to boost
// exact-name matches: 1.0 exact, 0.95 prefix, 0.8 contains(normalized),
// 0.7 contains(raw), else a floor-0.3 word-overlap ratio.
func NameRelevance(query, name string) float64 {
	normalizedQuery := normalizeForMatch(query)
	normalizedName := normalizeForMatch(name)

	if normalizedName == normalizedQuery {
		return 1.0
	}
	if strings.HasPrefix(normalizedName, normalizedQuery) {
		return 0.95
	}
	if strings.Contains(normalizedName, normalizedQuery) {
		return 0.8
	}
	if strings.Contains(strings.ToLower(name), strings.ToLower(query)) {
		return 0.7
	}

	queryWords := strings.Fields(normalizedQuery)
	if len(queryWords) == 0 {
		return 0.3
	}
	wordHits := 0
	for _, w := range queryWords {
		if strings.Contains(normalizedName, w) {
			wordHits++
		}
	}
	score := 0.4 + 0.3*float64(wordHits)/float64(len(queryWords))
	if score < 0.3 {
		score = 0.3
	}
	return score
}

// audienceFit implements §4.7's piecewise subscriber-count scorer, with an
// optional preference-bucket override.
func audienceFit(subscribers int64, bucket *PreferenceBucket) float64 {
	if bucket != nil {
		if subscribers >= bucket.Min && subscribers < bucket.Max {
			return 1.0
		}
		if subscribers >= bucket.Max {
			return 0.8
		}
		// Below bucket.Min: linear penalty from 0.7 down to 0.2 as the
		// shortfall grows to the whole of bucket.Min. The result is not
		// compared with the un-bucketed piecewise score and can be lower.
		distance := float64(bucket.Min-subscribers) / float64(max64(bucket.Min, 1))
		penalty := 0.7 - 0.5*clamp01(distance)
		if penalty < 0 {
			penalty = 0
		}
		return penalty
	}

	switch {
	case subscribers >= 10_000_000:
		return 1.0
	case subscribers >= 1_000_000:
		return 0.9
	case subscribers >= 100_000:
		return 0.7
	case subscribers >= 10_000:
		return 0.5
	case subscribers >= 1_000:
		return 0.3
	default:
		return 0.2
	}
}

// recencyWeights are the fixed per-video weights for up to the 10 most
// recent videos in the behavior-based engagement form (§4.7).
var recencyWeights = []float64{1.00, 0.85, 0.70, 0.55, 0.40, 0.40, 0.40, 0.40, 0.40, 0.40}

// engagementQuality implements §4.7: prefers the behavior-based form when
// recent per-video statistics are available, else falls back to the
// subscriber-ratio sigmoid.
func engagementQuality(profile models.CreatorProfile, recentVideos []models.VideoStatistic) float64 {
	if len(recentVideos) > 0 {
		return behaviorBasedEngagement(recentVideos)
	}

	ratio := 0.5
	if profile.Subscribers > 0 {
		ratio = float64(profile.Views) / float64(profile.Subscribers)
	}
	return 1 / (1 + math.Exp(-0.05*(ratio-50)))
}

func behaviorBasedEngagement(videos []models.VideoStatistic) float64 {
	sorted := make([]models.VideoStatistic, len(videos))
	copy(sorted, videos)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PublishedAt.After(sorted[j].PublishedAt) })

	eligible := make([]models.VideoStatistic, 0, 10)
	for _, v := range sorted {
		if v.ViewCount < 100 {
			continue
		}
		eligible = append(eligible, v)
		if len(eligible) == 10 {
			break
		}
	}
	if len(eligible) == 0 {
		return 0.5
	}

	var weightedSum, weightTotal float64
	for i, v := range eligible {
		rate := (float64(v.LikeCount) + 2*float64(v.CommentCount)) / float64(v.ViewCount)
		w := recencyWeights[i]
		weightedSum += rate * w
		weightTotal += w
	}
	meanRate := weightedSum / weightTotal

	return 1 / (1 + math.Exp(-3*(meanRate-0.15)))
}

// activityConsistency implements §4.7's piecewise uploads-per-month curve.
func activityConsistency(profile models.CreatorProfile, now time.Time) float64 {
	r := uploadsPerMonth(profile, now)
	switch {
	case r <= 0:
		return 0
	case r <= 1:
		return r * 0.3
	case r <= 4:
		return 0.3 + (r-1)/3*0.4
	case r <= 8:
		return 0.7 + (r-4)/4*0.2
	default:
		extra := math.Min(0.1, (r-8)/20*0.1)
		return 0.9 + extra
	}
}

func uploadsPerMonth(profile models.CreatorProfile, now time.Time) float64 {
	if profile.LastVideoDate == nil {
		return float64(profile.Videos)
	}
	// channelAgeMonths is approximated from lastVideoDate when no separate
	// "channel created" field is available: a channel with recent activity
	// and many videos is treated as proportionally more consistent.
	ageMonths := now.Sub(*profile.LastVideoDate).Hours() / (24 * 30)
	if ageMonths < 1 {
		ageMonths = 1
	}
	return float64(profile.Videos) / ageMonths
}

// freshness implements §4.7's piecewise-linear recency scorer.
func freshness(lastVideoDate *time.Time, now time.Time) float64 {
	if lastVideoDate == nil {
		return 0.5
	}

	days := now.Sub(*lastVideoDate).Hours() / 24
	switch {
	case days <= 7:
		return 1.0
	case days <= 30:
		return lerp(days, 7, 30, 1.0, 0.8)
	case days <= 90:
		return lerp(days, 30, 90, 0.8, 0.5)
	case days <= 180:
		return lerp(days, 90, 180, 0.5, 0.2)
	default:
		return 0.1
	}
}

func lerp(x, x0, x1, y0, y1 float64) float64 {
	if x1 == x0 {
		return y0
	}
	t := (x - x0) / (x1 - x0)
	return y0 + t*(y1-y0)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// tokenizeLongWords lowercases s, strips non-alphanumerics, and returns
// words longer than 2 characters.
func tokenizeLongWords(s string) []string {
	normalized := normalizeForMatch(s)
	words := strings.Fields(normalized)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) > 2 {
			out = append(out, w)
		}
	}
	return out
}

// normalizeForMatch lowercases s and drops everything but letters, digits,
// and spaces, matching §4.7's "lowercase and strip non-alphanumerics" rule.
func normalizeForMatch(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune(r)
		}
	}
	return b.String()
}
