// Package models contains domain models for the creator discovery service.
package models

import (
	"database/sql"
	"time"
)

// Platform identifies a supported video platform. v1 ships one adapter
// (youtube) but the type stays open for additional platforms.
type Platform string

// CreatorStatus is the lifecycle state of a persisted Creator.
type CreatorStatus string

const (
	CreatorActive   CreatorStatus = "ACTIVE"
	CreatorInactive CreatorStatus = "INACTIVE"
	CreatorHidden   CreatorStatus = "HIDDEN"
)

// CreatorSource records how a Creator row first entered the system.
type CreatorSource string

const (
	SourceAPI      CreatorSource = "API"
	SourceManual   CreatorSource = "MANUAL"
	SourceImported CreatorSource = "IMPORTED"
)

// IngestionStatus tracks C11's async embedding/tagging pipeline.
type IngestionStatus string

const (
	IngestionPending  IngestionStatus = "pending"
	IngestionDeferred IngestionStatus = "deferred"
	IngestionComplete IngestionStatus = "complete"
	IngestionFailed   IngestionStatus = "failed"
)

// NormalizedQuery is the result of C1's normalize/digest pipeline.
type NormalizedQuery struct {
	Original   string
	Normalized string
	DigestKey  string
}

// CachedQueryExpansion is C4's cached unit: the set of platform-search
// queries generated (or deterministically derived) for a normalized genre.
type CachedQueryExpansion struct {
	CreatedAt  time.Time
	ExpiresAt  time.Time
	DigestKey  string
	Normalized string
	Queries    []string
	TokenCost  int
	HitCount   int64
}

// CreatorProfile is the in-memory, per-search view of a channel as returned
// by the platform adapter. Immutable within a single search.
type CreatorProfile struct {
	LastVideoDate *time.Time
	ChannelID     string
	Handle        string
	DisplayName   string
	Bio           string
	ImageURL      string
	Country       string
	Subscribers   int64
	Videos        int64
	Views         int64
}

// VideoStatistic is one recent video's engagement data, used by the
// behavior-based engagement scorer when the adapter fetched it (§4.7, premium
// mode). Supplemental entity — see SPEC_FULL.md §3.
type VideoStatistic struct {
	PublishedAt  time.Time
	VideoID      string
	ViewCount    int64
	LikeCount    int64
	CommentCount int64
}

// CreatorScore is the five-dimension score vector plus its derived final
// score, produced by C7 and frozen at materialization (C9).
type CreatorScore struct {
	GenreRelevance      float64
	AudienceFit         float64
	EngagementQuality   float64
	ActivityConsistency float64
	Freshness           float64
	FinalScore          float64
}

// ScoredCreator pairs a profile with its score vector and the labels derived
// from it, flowing from C7 through C8 to C9.
type ScoredCreator struct {
	Profile CreatorProfile
	Score   CreatorScore
	Labels  []string
}

// Creator is the persistent identity of a discovered channel.
// Field order favors memory alignment, matching this codebase's convention.
type Creator struct {
	DiscoveredAt        time.Time
	LastSeenAt          time.Time
	EmbeddingCreatedAt   sql.NullTime
	Platform            Platform
	ChannelID           string
	DisplayName         string
	Description         string
	ProfileImageURL      string
	BaseGenre           string
	OriginQuery         string
	Country             string
	Status              CreatorStatus
	Source              CreatorSource
	EmbeddingModel       sql.NullString
	CompressedBio        sql.NullString
	ContentTags          JSONStringArray
	ProfileEmbedding     []float32
	IngestionStatus      IngestionStatus
	ID                  int64
}

// SearchSession is a materialized result set for a unique
// (normalized query, platform) pair.
type SearchSession struct {
	CreatedAt         time.Time
	ExpiresAt         time.Time
	LastAccessedAt    time.Time
	SessionID         string
	QueryDigest       string
	Platform          Platform
	NormalizedQuery   string
	TotalResults      int
	ExternalUnitsUsed int64
	ID                int64
}

// SearchSessionResult is one ranked, scored row within a SearchSession.
// Results are a point-in-time denormalized snapshot: they never reference
// the Creator row, so later Creator mutations never retroactively alter a
// session's ranking.
type SearchSessionResult struct {
	LastVideoDate         sql.NullTime
	SessionID             string
	ChannelID             string
	ChannelName           string
	Description           string
	ImageURL              string
	Labels                JSONStringArray
	FinalScore            float64
	GenreRelevance        float64
	AudienceFit           float64
	EngagementQuality     float64
	ActivityConsistency   float64
	Freshness             float64
	CompetitivenessScore  float64
	SubscriberCount       int64
	Rank                  int
	ID                    int64
}

// FeatureState is the resolved state of one entry in the closed feature
// enumeration (§6.3).
type FeatureState string

const (
	FeatureDisabled   FeatureState = "DISABLED"
	FeatureConfigured FeatureState = "CONFIGURED"
	FeatureEnabled    FeatureState = "ENABLED"
)

// ResolveFeature implements §6.3's closed rule: ENABLED iff credentials
// present AND the explicit flag is true; CONFIGURED iff credentials present
// and the flag is false; DISABLED otherwise.
func ResolveFeature(credentialsPresent, flag bool) FeatureState {
	if !credentialsPresent {
		return FeatureDisabled
	}
	if flag {
		return FeatureEnabled
	}
	return FeatureConfigured
}
