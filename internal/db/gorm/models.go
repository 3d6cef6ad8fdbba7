// Package gorm provides GORM-based persistence for the creator discovery
// service.
package gorm

import (
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/creatordisco/discovery/pkg/models"
)

// GORM Models.
//
// Field types mirror pkg/models.go exactly (plain string rather than
// sql.NullString where the domain model uses plain string) so rows scan
// directly into their domain counterparts without an adapter struct.

// Creator is the persistent identity of a discovered channel, unique on
// (platform, channelId). Field order favors memory alignment.
type Creator struct {
	DiscoveredAt       time.Time
	LastSeenAt         time.Time
	EmbeddingCreatedAt sql.NullTime
	Platform           models.Platform        `gorm:"type:text;not null;uniqueIndex:idx_creators_platform_channel,priority:1"`
	ChannelID          string                 `gorm:"type:text;not null;uniqueIndex:idx_creators_platform_channel,priority:2"`
	DisplayName        string                 `gorm:"type:text;not null"`
	Description        string                 `gorm:"type:text"`
	ProfileImageURL    string                 `gorm:"type:text"`
	BaseGenre          string                 `gorm:"type:text;index:idx_creators_genre"`
	OriginQuery        string                 `gorm:"type:text"`
	Country            string                 `gorm:"type:text"`
	Status             models.CreatorStatus   `gorm:"type:text;default:'ACTIVE';check:status IN ('ACTIVE','INACTIVE','HIDDEN');index"`
	Source             models.CreatorSource   `gorm:"type:text;default:'API';check:source IN ('API','MANUAL','IMPORTED')"`
	EmbeddingModel     sql.NullString         `gorm:"type:text"`
	CompressedBio      sql.NullString         `gorm:"type:text"`
	ContentTags        models.JSONStringArray `gorm:"type:text"`
	ProfileEmbedding   []float32              `gorm:"type:vector(1536)"`
	IngestionStatus    models.IngestionStatus `gorm:"type:text;default:'pending';check:ingestion_status IN ('pending','deferred','complete','failed');index"`
	ID                 int64                  `gorm:"primaryKey;autoIncrement"`
}

func (Creator) TableName() string { return "creators" }

// BeforeCreate stamps discovery/last-seen timestamps and default enum values
// if the caller left them zero.
func (c *Creator) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if c.DiscoveredAt.IsZero() {
		c.DiscoveredAt = now
	}
	if c.LastSeenAt.IsZero() {
		c.LastSeenAt = now
	}
	if c.IngestionStatus == "" {
		c.IngestionStatus = models.IngestionPending
	}
	if c.Status == "" {
		c.Status = models.CreatorActive
	}
	if c.Source == "" {
		c.Source = models.SourceAPI
	}
	return nil
}

// SearchSession is a materialized result set for a unique
// (queryDigest, platform) pair (C9).
type SearchSession struct {
	CreatedAt         time.Time
	ExpiresAt         time.Time `gorm:"index:idx_sessions_expires"`
	LastAccessedAt    time.Time
	SessionID         string          `gorm:"type:text;not null;uniqueIndex"`
	QueryDigest       string          `gorm:"type:text;not null;uniqueIndex:idx_sessions_digest_platform,priority:1"`
	Platform          models.Platform `gorm:"type:text;not null;uniqueIndex:idx_sessions_digest_platform,priority:2"`
	NormalizedQuery   string          `gorm:"type:text;not null"`
	TotalResults      int
	ExternalUnitsUsed int64
	ID                int64 `gorm:"primaryKey;autoIncrement"`
}

func (SearchSession) TableName() string { return "search_sessions" }

func (s *SearchSession) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.LastAccessedAt.IsZero() {
		s.LastAccessedAt = now
	}
	return nil
}

// SearchSessionResult is one ranked, scored row within a SearchSession.
// SessionID carries an explicit foreign key with ON DELETE CASCADE so the
// 5-minute expiry sweep (C9) never has to delete results separately.
type SearchSessionResult struct {
	LastVideoDate        sql.NullTime
	SessionID            string                 `gorm:"type:text;not null;index:idx_results_session"`
	ChannelID            string                 `gorm:"type:text;not null"`
	ChannelName          string                 `gorm:"type:text;not null"`
	Description          string                 `gorm:"type:text"`
	ImageURL             string                 `gorm:"type:text"`
	Labels               models.JSONStringArray `gorm:"type:text"`
	FinalScore           float64                `gorm:"type:real;index:idx_results_score,sort:desc"`
	GenreRelevance       float64                `gorm:"type:real;index:idx_results_relevance,sort:desc"`
	AudienceFit          float64                `gorm:"type:real"`
	EngagementQuality    float64                `gorm:"type:real;index:idx_results_engagement,sort:desc"`
	ActivityConsistency  float64                `gorm:"type:real"`
	Freshness            float64                `gorm:"type:real"`
	CompetitivenessScore float64                `gorm:"type:real;index:idx_results_competitiveness,sort:desc"`
	SubscriberCount      int64                  `gorm:"index:idx_results_subscribers,sort:desc"`
	Rank                 int                    `gorm:"index:idx_results_rank"`
	ID                   int64                  `gorm:"primaryKey;autoIncrement"`

	Session SearchSession `gorm:"foreignKey:SessionID;references:SessionID;constraint:OnDelete:CASCADE"`
}

func (SearchSessionResult) TableName() string { return "search_session_results" }

// QueryExpansionCache is C4's L2 (durable) tier: one row per digestKey,
// backing the querycache.L2Store interface.
type QueryExpansionCache struct {
	CreatedAt  time.Time
	ExpiresAt  time.Time `gorm:"index:idx_expansion_expires"`
	DigestKey  string    `gorm:"type:text;primaryKey"`
	Normalized string    `gorm:"type:text;not null"`
	Queries    models.JSONStringArray `gorm:"type:text"`
	TokenCost  int
	HitCount   int64 `gorm:"default:0"`
}

func (QueryExpansionCache) TableName() string { return "query_expansion_cache" }

func (q *QueryExpansionCache) BeforeCreate(tx *gorm.DB) error {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	return nil
}
