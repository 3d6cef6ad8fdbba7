package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/creatordisco/discovery/pkg/models"
)

// SearchSessionStore persists the materialized, ranked results of a search
// (C9). A session is keyed by (queryDigest, platform): re-searching the same
// normalized genre against the same platform while a session is still valid
// updates that session in place rather than creating a duplicate.
type SearchSessionStore struct {
	db *gorm.DB
}

// NewSearchSessionStore creates a new session store.
func NewSearchSessionStore(store *Store) *SearchSessionStore {
	return &SearchSessionStore{db: store.GetDB()}
}

// FindValid looks up a non-expired session for (queryDigest, platform) and,
// if found, slides its expiry window forward and returns its ranked results
// in rank order. The bool return is false on a miss (expired or absent).
func (s *SearchSessionStore) FindValid(ctx context.Context, queryDigest string, platform models.Platform, ttl time.Duration) (*models.SearchSession, []models.SearchSessionResult, bool, error) {
	var sess SearchSession
	err := s.db.WithContext(ctx).
		Where("query_digest = ? AND platform = ? AND expires_at > ?", queryDigest, platform, time.Now()).
		First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, fmt.Errorf("find valid session: %w", err)
	}

	now := time.Now()
	sess.LastAccessedAt = now
	sess.ExpiresAt = now.Add(ttl)
	if err := s.db.WithContext(ctx).
		Model(&sess).
		Select("last_accessed_at", "expires_at").
		Updates(map[string]any{"last_accessed_at": sess.LastAccessedAt, "expires_at": sess.ExpiresAt}).Error; err != nil {
		return nil, nil, false, fmt.Errorf("touch session expiry: %w", err)
	}

	var rows []SearchSessionResult
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sess.SessionID).
		Order("rank ASC").
		Find(&rows).Error; err != nil {
		return nil, nil, false, fmt.Errorf("load session results: %w", err)
	}

	return toModelSession(&sess), toModelResults(rows), true, nil
}

// CreateOrReplace upserts a session keyed by (queryDigest, platform) and
// replaces its result set wholesale: delete-then-reinsert under dense rank
// assignment, inside one transaction so readers never observe a partial
// result set. sessionID is generated by the caller and only takes effect on
// first insert; a conflicting row keeps its existing sessionID.
func (s *SearchSessionStore) CreateOrReplace(ctx context.Context, session models.SearchSession, results []models.SearchSessionResult) (*models.SearchSession, error) {
	row := fromModelSession(session)
	var out *models.SearchSession

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing := SearchSession{}
		err := tx.Where("query_digest = ? AND platform = ?", row.QueryDigest, row.Platform).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("create session: %w", err)
			}
		case err != nil:
			return fmt.Errorf("lookup session: %w", err)
		default:
			row.ID = existing.ID
			row.SessionID = existing.SessionID
			row.CreatedAt = existing.CreatedAt
			row.ExternalUnitsUsed += existing.ExternalUnitsUsed
			if err := tx.Model(&existing).Select(
				"last_accessed_at", "expires_at", "normalized_query",
				"total_results", "external_units_used",
			).Updates(map[string]any{
				"last_accessed_at":    row.LastAccessedAt,
				"expires_at":          row.ExpiresAt,
				"normalized_query":    row.NormalizedQuery,
				"total_results":       row.TotalResults,
				"external_units_used": row.ExternalUnitsUsed,
			}).Error; err != nil {
				return fmt.Errorf("update session: %w", err)
			}
		}

		if err := tx.Where("session_id = ?", row.SessionID).Delete(&SearchSessionResult{}).Error; err != nil {
			return fmt.Errorf("clear stale results: %w", err)
		}

		rows := fromModelResults(row.SessionID, results)
		for i := range rows {
			rows[i].Rank = i + 1
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("insert results: %w", err)
			}
		}

		out = toModelSession(&row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindValidByID looks up a non-expired session by its public sessionID and,
// if found, slides its expiry window forward, same as FindValid but keyed by
// ID rather than (queryDigest, platform). Used by C10's read endpoints so
// browsing a session's pages counts as activity per §4.10's sliding-touch
// step. The bool return is false on a miss (expired or absent).
func (s *SearchSessionStore) FindValidByID(ctx context.Context, sessionID string, ttl time.Duration) (*models.SearchSession, []models.SearchSessionResult, bool, error) {
	var sess SearchSession
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND expires_at > ?", sessionID, time.Now()).
		First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, fmt.Errorf("find session by id: %w", err)
	}

	now := time.Now()
	sess.LastAccessedAt = now
	sess.ExpiresAt = now.Add(ttl)
	if err := s.db.WithContext(ctx).
		Model(&sess).
		Select("last_accessed_at", "expires_at").
		Updates(map[string]any{"last_accessed_at": sess.LastAccessedAt, "expires_at": sess.ExpiresAt}).Error; err != nil {
		return nil, nil, false, fmt.Errorf("touch session expiry: %w", err)
	}

	var rows []SearchSessionResult
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sess.SessionID).
		Order("rank ASC").
		Find(&rows).Error; err != nil {
		return nil, nil, false, fmt.Errorf("load session results: %w", err)
	}

	return toModelSession(&sess), toModelResults(rows), true, nil
}

// TouchExpiry slides a session's expiry window forward in a single
// conditional UPDATE, without re-reading or returning its row. Used to
// verify+touch a session already held in the L1 cache, per §9's guidance
// that sliding expiration is "a write on every read-hit" guarded by
// expiresAt > now so an already-expired session is never revived. Returns
// false if no row matched (the session is expired or gone, so the caller's
// cached copy is stale and must be discarded).
func (s *SearchSessionStore) TouchExpiry(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&SearchSession{}).
		Where("session_id = ? AND expires_at > ?", sessionID, now).
		Updates(map[string]any{
			"last_accessed_at": now,
			"expires_at":       now.Add(ttl),
		})
	if result.Error != nil {
		return false, fmt.Errorf("touch session expiry: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// DeleteExpired removes sessions whose expiresAt has passed; their result
// rows cascade via the FK constraint. Used by the maintenance sweep (C9).
func (s *SearchSessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", time.Now()).Delete(&SearchSession{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// GetExpansion implements querycache.L2Store: the durable tier of C4's
// query-expansion cache.
func (s *SearchSessionStore) GetExpansion(ctx context.Context, digestKey string) (*models.CachedQueryExpansion, bool, error) {
	var row QueryExpansionCache
	err := s.db.WithContext(ctx).
		Where("digest_key = ? AND expires_at > ?", digestKey, time.Now()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached expansion: %w", err)
	}

	go s.db.Model(&QueryExpansionCache{}).Where("digest_key = ?", row.DigestKey).UpdateColumn("hit_count", gorm.Expr("hit_count + 1"))

	return &models.CachedQueryExpansion{
		CreatedAt:  row.CreatedAt,
		ExpiresAt:  row.ExpiresAt,
		DigestKey:  row.DigestKey,
		Normalized: row.Normalized,
		Queries:    []string(row.Queries),
		TokenCost:  row.TokenCost,
		HitCount:   row.HitCount,
	}, true, nil
}

// PutExpansion implements querycache.L2Store: upserts by digestKey.
func (s *SearchSessionStore) PutExpansion(ctx context.Context, entry models.CachedQueryExpansion) error {
	row := QueryExpansionCache{
		DigestKey:  entry.DigestKey,
		Normalized: entry.Normalized,
		Queries:    models.JSONStringArray(entry.Queries),
		TokenCost:  entry.TokenCost,
		ExpiresAt:  entry.ExpiresAt,
		CreatedAt:  entry.CreatedAt,
	}

	return s.db.WithContext(ctx).
		Where("digest_key = ?", row.DigestKey).
		Assign(map[string]any{
			"normalized": row.Normalized,
			"queries":    row.Queries,
			"token_cost": row.TokenCost,
			"expires_at": row.ExpiresAt,
		}).
		FirstOrCreate(&row).Error
}

func toModelSession(row *SearchSession) *models.SearchSession {
	return &models.SearchSession{
		CreatedAt:         row.CreatedAt,
		ExpiresAt:         row.ExpiresAt,
		LastAccessedAt:    row.LastAccessedAt,
		SessionID:         row.SessionID,
		QueryDigest:       row.QueryDigest,
		Platform:          row.Platform,
		NormalizedQuery:   row.NormalizedQuery,
		TotalResults:      row.TotalResults,
		ExternalUnitsUsed: row.ExternalUnitsUsed,
		ID:                row.ID,
	}
}

func fromModelSession(m models.SearchSession) SearchSession {
	return SearchSession{
		CreatedAt:         m.CreatedAt,
		ExpiresAt:         m.ExpiresAt,
		LastAccessedAt:    m.LastAccessedAt,
		SessionID:         m.SessionID,
		QueryDigest:       m.QueryDigest,
		Platform:          m.Platform,
		NormalizedQuery:   m.NormalizedQuery,
		TotalResults:      m.TotalResults,
		ExternalUnitsUsed: m.ExternalUnitsUsed,
		ID:                m.ID,
	}
}

func toModelResults(rows []SearchSessionResult) []models.SearchSessionResult {
	out := make([]models.SearchSessionResult, len(rows))
	for i, r := range rows {
		out[i] = models.SearchSessionResult{
			LastVideoDate:        r.LastVideoDate,
			SessionID:            r.SessionID,
			ChannelID:            r.ChannelID,
			ChannelName:          r.ChannelName,
			Description:          r.Description,
			ImageURL:             r.ImageURL,
			Labels:               r.Labels,
			FinalScore:           r.FinalScore,
			GenreRelevance:       r.GenreRelevance,
			AudienceFit:          r.AudienceFit,
			EngagementQuality:    r.EngagementQuality,
			ActivityConsistency:  r.ActivityConsistency,
			Freshness:            r.Freshness,
			CompetitivenessScore: r.CompetitivenessScore,
			SubscriberCount:      r.SubscriberCount,
			Rank:                 r.Rank,
			ID:                   r.ID,
		}
	}
	return out
}

func fromModelResults(sessionID string, results []models.SearchSessionResult) []SearchSessionResult {
	out := make([]SearchSessionResult, len(results))
	for i, r := range results {
		out[i] = SearchSessionResult{
			LastVideoDate:        r.LastVideoDate,
			SessionID:            sessionID,
			ChannelID:            r.ChannelID,
			ChannelName:          r.ChannelName,
			Description:          r.Description,
			ImageURL:             r.ImageURL,
			Labels:               r.Labels,
			FinalScore:           r.FinalScore,
			GenreRelevance:       r.GenreRelevance,
			AudienceFit:          r.AudienceFit,
			EngagementQuality:    r.EngagementQuality,
			ActivityConsistency:  r.ActivityConsistency,
			Freshness:            r.Freshness,
			CompetitivenessScore: r.CompetitivenessScore,
			SubscriberCount:      r.SubscriberCount,
		}
	}
	return out
}
