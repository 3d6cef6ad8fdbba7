package view

// BucketMapper: fixed range-to-label mappings for each filterable category
// (§4.10). Each range is a half-open interval [lower, upper); the top range
// has no upper bound, so the exact value 1.0 always falls in the top bucket.

// AudienceBucket maps an audienceFit score to its named range.
func AudienceBucket(audienceFit float64) string {
	switch {
	case audienceFit < 0.4:
		return "small"
	case audienceFit < 0.7:
		return "medium"
	default:
		return "large"
	}
}

// EngagementBucket maps an engagementQuality score to its named range.
func EngagementBucket(engagementQuality float64) string {
	switch {
	case engagementQuality < 0.4:
		return "low"
	case engagementQuality < 0.7:
		return "medium"
	default:
		return "high"
	}
}

// CompetitivenessBucket maps a competitivenessScore to its named tier. Must
// stay in lockstep with scoring.Tier's thresholds — both partition
// competitivenessScore at {0.20, 0.40, 0.60, 0.80}.
func CompetitivenessBucket(competitivenessScore float64) string {
	switch {
	case competitivenessScore < 0.20:
		return "nascent"
	case competitivenessScore < 0.40:
		return "emerging"
	case competitivenessScore < 0.60:
		return "growing"
	case competitivenessScore < 0.80:
		return "established"
	default:
		return "dominant"
	}
}

// ActivityBucket maps an activityConsistency score (not lastVideoDate — the
// filter answers "how consistently?" while the ACTIVITY sort key answers
// "how recently?") to its named range.
func ActivityBucket(activityConsistency float64) string {
	switch {
	case activityConsistency < 0.4:
		return "occasional"
	case activityConsistency < 0.7:
		return "consistent"
	default:
		return "very_active"
	}
}
