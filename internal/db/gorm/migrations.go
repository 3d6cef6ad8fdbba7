// Package gorm provides GORM-based database operations for the creator
// discovery service.
package gorm

import (
	"database/sql"
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB, sqlDB *sql.DB) error {
	// Enable pgvector extension before running any migrations.
	// CREATE EXTENSION IF NOT EXISTS is idempotent.
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("enable pgvector extension: %w", err)
	}

	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: Creators table.
		{
			ID: "001_creators",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Creator{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("creators")
			},
		},

		// Migration 002: HNSW index for creator profile embeddings (C11's
		// similarity surface, premium-mode only; cosine distance matches the
		// embedding client's normalized vectors).
		{
			ID: "002_creators_embedding_hnsw",
			Migrate: func(tx *gorm.DB) error {
				sqls := []string{
					`CREATE INDEX IF NOT EXISTS idx_creators_embedding_hnsw
					 ON creators USING hnsw (profile_embedding vector_cosine_ops)
					 WITH (m = 16, ef_construction = 64)
					 WHERE profile_embedding IS NOT NULL`,
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						return fmt.Errorf("migration 002: %w", err)
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec("DROP INDEX IF EXISTS idx_creators_embedding_hnsw").Error
			},
		},

		// Migration 003: Search sessions and their result rows (C9).
		{
			ID: "003_search_sessions",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&SearchSession{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&SearchSessionResult{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("search_session_results", "search_sessions")
			},
		},

		// Migration 004: explicit FK with ON DELETE CASCADE from results to
		// their owning session, so the maintenance sweep only needs to delete
		// expired sessions and never touches result rows directly.
		{
			ID: "004_results_cascade_fk",
			Migrate: func(tx *gorm.DB) error {
				sqls := []string{
					`ALTER TABLE search_session_results
					 ADD CONSTRAINT fk_results_session
					 FOREIGN KEY (session_id) REFERENCES search_sessions(session_id)
					 ON DELETE CASCADE`,
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						return fmt.Errorf("migration 004: %w", err)
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec(`ALTER TABLE search_session_results DROP CONSTRAINT IF EXISTS fk_results_session`).Error
			},
		},

		// Migration 005: Durable (L2) query-expansion cache for C4.
		{
			ID: "005_query_expansion_cache",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&QueryExpansionCache{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("query_expansion_cache")
			},
		},

		// Migration 006: Covering/composite indexes for the read paths C10
		// exercises most: paginated session-result listing by rank and by
		// each sortKey, and the filtered-view bucket predicates.
		{
			ID: "006_result_read_indexes",
			Migrate: func(tx *gorm.DB) error {
				sqls := []string{
					`CREATE INDEX IF NOT EXISTS idx_results_session_rank
					 ON search_session_results(session_id, rank)`,

					`CREATE INDEX IF NOT EXISTS idx_results_session_score
					 ON search_session_results(session_id, final_score DESC)`,

					`CREATE INDEX IF NOT EXISTS idx_results_session_audience
					 ON search_session_results(session_id, audience_fit DESC)`,

					`CREATE INDEX IF NOT EXISTS idx_results_session_subscribers
					 ON search_session_results(session_id, subscriber_count DESC)`,

					// Partial index for the maintenance sweep's expiry scan.
					`CREATE INDEX IF NOT EXISTS idx_sessions_expired
					 ON search_sessions(expires_at)
					 WHERE expires_at IS NOT NULL`,
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						// Non-fatal: index may already exist.
						continue
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				sqls := []string{
					"DROP INDEX IF EXISTS idx_results_session_rank",
					"DROP INDEX IF EXISTS idx_results_session_score",
					"DROP INDEX IF EXISTS idx_results_session_audience",
					"DROP INDEX IF EXISTS idx_results_session_subscribers",
					"DROP INDEX IF EXISTS idx_sessions_expired",
				}
				for _, s := range sqls {
					_ = tx.Exec(s).Error
				}
				return nil
			},
		},

		// Migration 007: Creator lookup indexes for C11's ingestion gate
		// (find rows still pending embedding) and C6's channel-result cache
		// warm path (find a previously-seen channel by platform+id is already
		// covered by the unique index; this adds the genre/status scan used
		// by admin tooling and batch re-ingestion).
		{
			ID: "007_creator_read_indexes",
			Migrate: func(tx *gorm.DB) error {
				sqls := []string{
					`CREATE INDEX IF NOT EXISTS idx_creators_ingestion_pending
					 ON creators(ingestion_status)
					 WHERE ingestion_status IN ('pending', 'failed')`,

					`CREATE INDEX IF NOT EXISTS idx_creators_genre_status
					 ON creators(base_genre, status)`,
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						continue
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				sqls := []string{
					"DROP INDEX IF EXISTS idx_creators_ingestion_pending",
					"DROP INDEX IF EXISTS idx_creators_genre_status",
				}
				for _, s := range sqls {
					_ = tx.Exec(s).Error
				}
				return nil
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("run gormigrate migrations: %w", err)
	}

	return nil
}
