// Package pgvector provides a cosine-distance nearest-neighbor query over
// creator profile embeddings, using the pgvector extension installed by
// internal/db/gorm's migrations. C11 writes embeddings straight through
// CreatorStore.SaveEmbedding; this package is the read side, used by the
// admin "similar creators" lookup rather than the main search path.
package pgvector

import (
	"context"
	"database/sql"
	"fmt"

	pgvec "github.com/pgvector/pgvector-go"

	"github.com/creatordisco/discovery/internal/vector"
	"github.com/creatordisco/discovery/pkg/models"
)

// Client runs nearest-neighbor queries against the creators table's
// profileEmbedding column.
type Client struct {
	sqlDB *sql.DB
}

// NewClient wraps the store's raw *sql.DB for cosine-distance queries GORM
// has no query-builder support for.
func NewClient(sqlDB *sql.DB) *Client {
	return &Client{sqlDB: sqlDB}
}

// FindSimilar returns up to limit creators on platform whose embedding is
// nearest (by cosine distance) to sourceChannelID's, excluding the source
// itself and any row with no embedding yet. Returns an empty slice if the
// source creator has not been ingested.
func (c *Client) FindSimilar(ctx context.Context, platform models.Platform, sourceChannelID string, limit int) ([]vector.SimilarCreator, error) {
	if limit <= 0 {
		limit = 10
	}

	var sourceVec pgvec.Vector
	err := c.sqlDB.QueryRowContext(ctx,
		`SELECT profile_embedding FROM creators WHERE platform = $1 AND channel_id = $2 AND embedding_created_at IS NOT NULL`,
		platform, sourceChannelID,
	).Scan(&sourceVec)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup source embedding: %w", err)
	}

	rows, err := c.sqlDB.QueryContext(ctx, `
		SELECT channel_id, display_name, profile_embedding <=> $1 AS distance
		FROM creators
		WHERE platform = $2
		  AND channel_id != $3
		  AND embedding_created_at IS NOT NULL
		  AND status = 'ACTIVE'
		ORDER BY distance
		LIMIT $4`,
		sourceVec, platform, sourceChannelID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query similar creators: %w", err)
	}
	defer rows.Close()

	var results []vector.SimilarCreator
	for rows.Next() {
		var (
			channelID   string
			displayName string
			distance    float64
		)
		if err := rows.Scan(&channelID, &displayName, &distance); err != nil {
			return nil, fmt.Errorf("scan similar creator row: %w", err)
		}
		results = append(results, vector.SimilarCreator{
			ChannelID:   channelID,
			DisplayName: displayName,
			Distance:    distance,
			Similarity:  vector.DistanceToSimilarity(distance),
		})
	}
	return results, rows.Err()
}
