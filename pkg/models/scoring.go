package models

// ScoringWeights holds the fixed weights C7 applies to the five sub-scores
// to produce finalScore. Values are fixed by the spec, not user-configurable,
// but kept as a struct (rather than inline constants) to match this
// codebase's convention of naming a weighted-sum formula's coefficients.
type ScoringWeights struct {
	GenreRelevance      float64
	AudienceFit         float64
	EngagementQuality   float64
	ActivityConsistency float64
	Freshness           float64
}

// DefaultScoringWeights returns the fixed weight vector from §4.7: finalScore
// = 0.35·gr + 0.20·af + 0.20·eq + 0.15·ac + 0.10·fr.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		GenreRelevance:      0.35,
		AudienceFit:         0.20,
		EngagementQuality:   0.20,
		ActivityConsistency: 0.15,
		Freshness:           0.10,
	}
}

// CompetitivenessWeights holds the fixed weights used both by C9's stored
// competitivenessScore and by label generation, which must agree (§9).
type CompetitivenessWeights struct {
	AudienceFit         float64
	EngagementQuality   float64
	ActivityConsistency float64
}

// DefaultCompetitivenessWeights returns the fixed weights from §3/§9:
// competitivenessScore = 0.40·af + 0.35·eq + 0.25·ac.
func DefaultCompetitivenessWeights() CompetitivenessWeights {
	return CompetitivenessWeights{
		AudienceFit:         0.40,
		EngagementQuality:   0.35,
		ActivityConsistency: 0.25,
	}
}
