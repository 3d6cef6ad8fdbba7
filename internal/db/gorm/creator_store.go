package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/creatordisco/discovery/pkg/models"
)

// CreatorStore persists Creator rows, keyed by (platform, channelId).
type CreatorStore struct {
	db *gorm.DB
}

// NewCreatorStore creates a new creator store.
func NewCreatorStore(store *Store) *CreatorStore {
	return &CreatorStore{db: store.GetDB()}
}

// Seen is C11 step 1: upsert a creator row by (platform, channelId),
// touching lastSeenAt, and reports whether the existing row (if any) already
// has a complete embedding — the caller's short-circuit for "already
// ingested".
func (c *CreatorStore) Seen(ctx context.Context, profile models.CreatorProfile, platform models.Platform, baseGenre, originQuery string) (alreadyComplete bool, err error) {
	now := time.Now()

	row := Creator{
		Platform:        platform,
		ChannelID:       profile.ChannelID,
		DisplayName:     profile.DisplayName,
		Description:     profile.Bio,
		ProfileImageURL: profile.ImageURL,
		BaseGenre:       baseGenre,
		OriginQuery:     originQuery,
		Country:         profile.Country,
		DiscoveredAt:    now,
		LastSeenAt:      now,
		Status:          models.CreatorActive,
		Source:          models.SourceAPI,
		IngestionStatus: models.IngestionPending,
	}

	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Creator
		lookupErr := tx.Where("platform = ? AND channel_id = ?", platform, profile.ChannelID).First(&existing).Error
		switch {
		case errors.Is(lookupErr, gorm.ErrRecordNotFound):
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "platform"}, {Name: "channel_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"last_seen_at", "display_name", "description", "profile_image_url"}),
			}).Create(&row).Error; err != nil {
				return fmt.Errorf("upsert creator: %w", err)
			}
			return nil
		case lookupErr != nil:
			return fmt.Errorf("lookup creator: %w", lookupErr)
		default:
			if existing.IngestionStatus == models.IngestionComplete && existing.EmbeddingCreatedAt.Valid {
				alreadyComplete = true
			}
			return tx.Model(&existing).Select("last_seen_at", "display_name", "description", "profile_image_url").
				Updates(map[string]any{
					"last_seen_at":      now,
					"display_name":      profile.DisplayName,
					"description":       profile.Bio,
					"profile_image_url": profile.ImageURL,
				}).Error
		}
	})

	return alreadyComplete, err
}

// MarkDeferred sets ingestionStatus=deferred for a creator row (C11 step 3,
// budget not ALLOW).
func (c *CreatorStore) MarkDeferred(ctx context.Context, platform models.Platform, channelID string) error {
	return c.setStatus(ctx, platform, channelID, models.IngestionDeferred)
}

// MarkFailed sets ingestionStatus=failed (C11 step 8).
func (c *CreatorStore) MarkFailed(ctx context.Context, platform models.Platform, channelID string) error {
	return c.setStatus(ctx, platform, channelID, models.IngestionFailed)
}

func (c *CreatorStore) setStatus(ctx context.Context, platform models.Platform, channelID string, status models.IngestionStatus) error {
	return c.db.WithContext(ctx).
		Model(&Creator{}).
		Where("platform = ? AND channel_id = ?", platform, channelID).
		Update("ingestion_status", status).Error
}

// SaveEmbedding persists the completed embedding + tag extraction (C11 steps
// 6-7).
func (c *CreatorStore) SaveEmbedding(ctx context.Context, platform models.Platform, channelID string, embedding []float32, model, compressedBio string, contentTags []string) error {
	now := time.Now()
	return c.db.WithContext(ctx).
		Model(&Creator{}).
		Where("platform = ? AND channel_id = ?", platform, channelID).
		Updates(map[string]any{
			"profile_embedding":    embedding,
			"embedding_model":      model,
			"embedding_created_at": now,
			"compressed_bio":       compressedBio,
			"content_tags":         models.JSONStringArray(contentTags),
			"ingestion_status":     models.IngestionComplete,
		}).Error
}
