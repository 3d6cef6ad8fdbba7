package scoring

import "github.com/creatordisco/discovery/pkg/models"

// CompetitivenessTier is the named band a competitivenessScore falls into
// (§4.7), derived at read/label-generation time, never stored.
type CompetitivenessTier string

const (
	TierNascent     CompetitivenessTier = "Nascent"
	TierEmerging    CompetitivenessTier = "Emerging"
	TierGrowing     CompetitivenessTier = "Growing"
	TierEstablished CompetitivenessTier = "Established"
	TierDominant    CompetitivenessTier = "Dominant"
)

// CompetitivenessScore combines audience fit, engagement quality, and
// activity consistency into the single score stored on each session result
// (§3/§9), using the fixed weights {0.40, 0.35, 0.25}.
func CompetitivenessScore(audienceFit, engagementQuality, activityConsistency float64) float64 {
	w := models.DefaultCompetitivenessWeights()
	return clamp01(w.AudienceFit*audienceFit + w.EngagementQuality*engagementQuality + w.ActivityConsistency*activityConsistency)
}

// Tier derives the named competitiveness band from a competitivenessScore.
func Tier(competitivenessScore float64) CompetitivenessTier {
	switch {
	case competitivenessScore >= 0.80:
		return TierDominant
	case competitivenessScore >= 0.60:
		return TierEstablished
	case competitivenessScore >= 0.40:
		return TierGrowing
	case competitivenessScore >= 0.20:
		return TierEmerging
	default:
		return TierNascent
	}
}

// Labels derives the deterministic label bag from a ScoreComponents (§4.7):
// threshold crossings over the five sub-scores, one label per crossing.
func Labels(comp ScoreComponents) []string {
	var labels []string

	if comp.EngagementQuality >= 0.75 {
		labels = append(labels, "High engagement")
	}
	if comp.AudienceFit >= 0.9 {
		labels = append(labels, "Large audience")
	}
	if comp.ActivityConsistency >= 0.7 {
		labels = append(labels, "Very active")
	}
	if comp.Freshness >= 0.8 {
		labels = append(labels, "Recently active")
	} else if comp.Freshness <= 0.2 {
		labels = append(labels, "Inactive")
	}
	if comp.GenreRelevance >= 0.8 {
		labels = append(labels, "Strong genre match")
	}

	return labels
}
