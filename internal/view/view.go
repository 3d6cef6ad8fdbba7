// Package view implements C10: reading a materialized search session.
// Every operation here is a pure read — no LLM call, no platform call, no
// score or rank recomputation, no background work beyond the sliding-touch
// already performed by internal/sessions.
package view

import (
	"database/sql"
	"sort"
	"strings"

	"github.com/creatordisco/discovery/pkg/models"
)

// SortKey is the closed set of columns a session's results can be ordered
// by (§4.10). Each maps to exactly one stored column.
type SortKey string

const (
	SortFinalScore    SortKey = "FINAL_SCORE"
	SortRelevance     SortKey = "RELEVANCE"
	SortSubscribers   SortKey = "SUBSCRIBERS"
	SortEngagement    SortKey = "ENGAGEMENT"
	SortActivity      SortKey = "ACTIVITY"
	SortCompetitiveness SortKey = "COMPETITIVENESS"
)

// ParseSortKey implements fromString: case-insensitive, '-'/'_'
// interchangeable, invalid input silently maps to FINAL_SCORE.
func ParseSortKey(s string) SortKey {
	normalized := strings.ToUpper(strings.ReplaceAll(s, "-", "_"))
	switch SortKey(normalized) {
	case SortFinalScore, SortRelevance, SortSubscribers, SortEngagement, SortActivity, SortCompetitiveness:
		return SortKey(normalized)
	default:
		return SortFinalScore
	}
}

// Page is one paginated slice of a session's results.
type Page struct {
	Results      []models.SearchSessionResult
	TotalResults int
	CurrentPage  int
	TotalPages   int
}

// Paginate sorts a session's full result set by sortKey (descending, rank
// ascending tiebreak) and slices out one page. Callers are expected to have
// already done the session lookup + sliding-touch (internal/sessions); this
// function is pure over the rows it's given.
func Paginate(results []models.SearchSessionResult, page, pageSize int, sortKey SortKey) Page {
	sorted := sortResults(results, sortKey)
	return slicePage(sorted, page, pageSize)
}

// Filters holds the raw, comma-separated multi-select filter values from
// the HTTP layer, one field per category in §4.10.
type Filters struct {
	Audience        []string
	Engagement      []string
	Competitiveness []string
	Activity        []string
	Genres          []string
}

// PaginateFiltered applies the filter conjunction (AND across categories, OR
// within a category), then sorts, then paginates.
func PaginateFiltered(results []models.SearchSessionResult, page, pageSize int, sortKey SortKey, filters Filters) Page {
	filtered := make([]models.SearchSessionResult, 0, len(results))
	for _, r := range results {
		if matches(r, filters) {
			filtered = append(filtered, r)
		}
	}
	return Paginate(filtered, page, pageSize, sortKey)
}

func matches(r models.SearchSessionResult, f Filters) bool {
	if len(f.Audience) > 0 && !anyBucket(f.Audience, AudienceBucket(r.AudienceFit)) {
		return false
	}
	if len(f.Engagement) > 0 && !anyBucket(f.Engagement, EngagementBucket(r.EngagementQuality)) {
		return false
	}
	if len(f.Competitiveness) > 0 && !anyBucket(f.Competitiveness, CompetitivenessBucket(r.CompetitivenessScore)) {
		return false
	}
	if len(f.Activity) > 0 && !anyBucket(f.Activity, ActivityBucket(r.ActivityConsistency)) {
		return false
	}
	if len(f.Genres) > 0 && !genreOverlap(f.Genres, r.Labels) {
		return false
	}
	return true
}

func anyBucket(selected []string, bucket string) bool {
	for _, s := range selected {
		if strings.EqualFold(strings.TrimSpace(s), bucket) {
			return true
		}
	}
	return false
}

func genreOverlap(selected []string, labels models.JSONStringArray) bool {
	for _, s := range selected {
		for _, l := range labels {
			if strings.EqualFold(strings.TrimSpace(s), l) {
				return true
			}
		}
	}
	return false
}

// sortResults returns a new, stably-sorted slice: non-increasing in the
// sortKey's column, rank ascending as the tiebreaker. NULL lastVideoDate
// (ACTIVITY) sorts last.
func sortResults(results []models.SearchSessionResult, key SortKey) []models.SearchSessionResult {
	sorted := make([]models.SearchSessionResult, len(results))
	copy(sorted, results)

	less := func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		cmp := compareByKey(a, b, key)
		if cmp != 0 {
			return cmp > 0
		}
		return a.Rank < b.Rank
	}
	sort.SliceStable(sorted, less)
	return sorted
}

// compareByKey returns >0 if a sorts before b on key's column, <0 if after,
// 0 if equal.
func compareByKey(a, b models.SearchSessionResult, key SortKey) int {
	switch key {
	case SortRelevance:
		return compareFloat(a.GenreRelevance, b.GenreRelevance)
	case SortSubscribers:
		return compareInt64(a.SubscriberCount, b.SubscriberCount)
	case SortEngagement:
		return compareFloat(a.EngagementQuality, b.EngagementQuality)
	case SortActivity:
		return compareNullTime(a.LastVideoDate, b.LastVideoDate)
	case SortCompetitiveness:
		return compareFloat(a.CompetitivenessScore, b.CompetitivenessScore)
	default: // SortFinalScore
		return compareFloat(a.FinalScore, b.FinalScore)
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

// compareNullTime sorts more-recent first; a NULL value always sorts last
// regardless of the other operand.
func compareNullTime(a, b sql.NullTime) int {
	switch {
	case !a.Valid && !b.Valid:
		return 0
	case !a.Valid:
		return -1
	case !b.Valid:
		return 1
	case a.Time.After(b.Time):
		return 1
	case a.Time.Before(b.Time):
		return -1
	default:
		return 0
	}
}

func slicePage(sorted []models.SearchSessionResult, page, pageSize int) Page {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	total := len(sorted)
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return Page{
		Results:      sorted[start:end],
		TotalResults: total,
		CurrentPage:  page,
		TotalPages:   totalPages,
	}
}
