// Package ranking implements C8: merging per-query scored-creator lists
// into a single deduped, ranked list. Pure, deterministic, no I/O.
package ranking

import (
	"sort"
	"strings"

	"github.com/creatordisco/discovery/pkg/models"
)

// MergeAndRank implements C8's merge/dedupe/rank pipeline (§4.8):
//  1. Merge: flatten byQuery preserving the order of queries.
//  2. Dedupe by channelId, keeping the highest finalScore instance and
//     unioning all labels seen for that channel.
//  3. Rank: sort descending by finalScore, ties broken by channelName
//     ascending case-insensitive.
func MergeAndRank(byQuery map[string][]models.ScoredCreator, queryOrder []string) []models.ScoredCreator {
	best := make(map[string]models.ScoredCreator)
	labelSets := make(map[string]map[string]struct{})
	order := make([]string, 0)

	for _, query := range queryOrder {
		for _, sc := range byQuery[query] {
			id := sc.Profile.ChannelID
			if _, seen := best[id]; !seen {
				order = append(order, id)
				labelSets[id] = make(map[string]struct{})
			}
			for _, l := range sc.Labels {
				labelSets[id][l] = struct{}{}
			}

			existing, ok := best[id]
			if !ok || sc.Score.FinalScore > existing.Score.FinalScore {
				best[id] = sc
			}
		}
	}

	merged := make([]models.ScoredCreator, 0, len(order))
	for _, id := range order {
		sc := best[id]
		sc.Labels = unionLabels(labelSets[id])
		merged = append(merged, sc)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score.FinalScore != merged[j].Score.FinalScore {
			return merged[i].Score.FinalScore > merged[j].Score.FinalScore
		}
		return strings.ToLower(merged[i].Profile.DisplayName) < strings.ToLower(merged[j].Profile.DisplayName)
	})

	return merged
}

// unionLabels returns the set's members sorted for deterministic output.
func unionLabels(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
