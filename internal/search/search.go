// Package search is the orchestrator wiring C1 through C11 per the data
// flow in spec.md §2: normalize -> cache lookup -> expand -> platform
// search -> score -> rank -> materialize -> first page, with creator
// ingestion enqueued asynchronously and never on the response path.
package search

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/creatordisco/discovery/internal/apperr"
	"github.com/creatordisco/discovery/internal/expansion"
	"github.com/creatordisco/discovery/internal/ingestion"
	"github.com/creatordisco/discovery/internal/normalize"
	"github.com/creatordisco/discovery/internal/ranking"
	"github.com/creatordisco/discovery/internal/scoring"
	"github.com/creatordisco/discovery/internal/sessions"
	"github.com/creatordisco/discovery/internal/view"
	"github.com/creatordisco/discovery/pkg/models"
)

// maxIngestionProfiles caps the batch handed to ingestion after a fresh
// search (§4.11): "a best-effort batch of up to 50 distinct profiles."
const maxIngestionProfiles = 50

// platformAdapter is the subset of *platform.Adapter the orchestrator needs.
type platformAdapter interface {
	SearchChannels(ctx context.Context, queries []string, maxResultsPerQuery int) (map[string][]models.CreatorProfile, int64, error)
}

// queryExpander is the subset of *expansion.Expander the orchestrator needs.
type queryExpander interface {
	Generate(ctx context.Context, raw string) expansion.Expansion
}

// scorer is the subset of *scoring.Calculator the orchestrator needs.
type scorer interface {
	Score(in scoring.Input) scoring.ScoreComponents
}

// sessionStore is the subset of *sessions.Store the orchestrator needs.
type sessionStore interface {
	FindValid(ctx context.Context, queryDigest string, platform models.Platform) (*sessions.Materialized, bool, error)
	Materialize(ctx context.Context, session models.SearchSession, results []models.SearchSessionResult) (*sessions.Materialized, error)
	BySessionID(ctx context.Context, sessionID string) (*sessions.Materialized, error)
}

// ingestionEnqueuer is the subset of *ingestion.Pool the orchestrator needs.
type ingestionEnqueuer interface {
	Enqueue(job ingestion.Job)
}

// Service orchestrates one end-to-end search, and the pure read-time view
// over an already-materialized session.
type Service struct {
	expander        queryExpander
	platform        platformAdapter
	scorer          scorer
	sessions        sessionStore
	ingestion       ingestionEnqueuer
	maxQueries      int
	maxResultsPerQ  int
	defaultPageSize int
}

// Config bundles the orchestrator's collaborators and per-search caps.
type Config struct {
	Expander            queryExpander
	Platform            platformAdapter
	Scorer              scorer
	Sessions            sessionStore
	Ingestion           ingestionEnqueuer
	MaxQueriesPerSearch int
	MaxResultsPerQuery  int
}

// New creates a search orchestrator.
func New(cfg Config) *Service {
	maxQueries := cfg.MaxQueriesPerSearch
	if maxQueries <= 0 {
		maxQueries = 5
	}
	maxResults := cfg.MaxResultsPerQuery
	if maxResults <= 0 {
		maxResults = 50
	}
	return &Service{
		expander:        cfg.Expander,
		platform:        cfg.Platform,
		scorer:          cfg.Scorer,
		sessions:        cfg.Sessions,
		ingestion:       cfg.Ingestion,
		maxQueries:      maxQueries,
		maxResultsPerQ:  maxResults,
		defaultPageSize: 20,
	}
}

// QueryInfo reports the normalized genre and the expanded queries a fresh
// search ran against the platform. On a cache hit, Queries is empty: C9
// only stores the normalized genre, not the query list that produced it.
type QueryInfo struct {
	Normalized string
	Queries    []string
}

// Result is one page of a (possibly freshly materialized) search session.
type Result struct {
	SessionID         string
	Page              view.Page
	CacheHit          bool
	ExternalUnitsUsed int64
	QueryInfo         QueryInfo
}

// Search implements spec.md §2's top-level operation: normalize, check the
// session cache, and either serve the cached page with zero external calls
// or run the full C5-C9 pipeline and materialize a new session. filters is
// applied via the same PaginateFiltered path as GET .../filtered; an empty
// Filters behaves identically to the unfiltered GET /search/session/{id}.
func (s *Service) Search(ctx context.Context, rawQuery string, platform models.Platform, page, pageSize int, sortKey view.SortKey, filters view.Filters) (Result, error) {
	if pageSize <= 0 {
		pageSize = s.defaultPageSize
	}

	queryDigest := normalize.Digest(normalize.Normalize(rawQuery))

	if mat, hit, err := s.sessions.FindValid(ctx, queryDigest, platform); err != nil {
		return Result{}, err
	} else if hit {
		return Result{
			SessionID:         mat.Session.SessionID,
			Page:              view.PaginateFiltered(mat.Results, page, pageSize, sortKey, filters),
			CacheHit:          true,
			ExternalUnitsUsed: mat.Session.ExternalUnitsUsed,
			QueryInfo:         QueryInfo{Normalized: mat.Session.NormalizedQuery},
		}, nil
	}

	mat, queries, quotaSpent, err := s.runFreshSearch(ctx, rawQuery, queryDigest, platform)
	if err != nil {
		return Result{}, err
	}

	return Result{
		SessionID:         mat.Session.SessionID,
		Page:              view.PaginateFiltered(mat.Results, page, pageSize, sortKey, filters),
		CacheHit:          false,
		ExternalUnitsUsed: quotaSpent,
		QueryInfo:         QueryInfo{Normalized: mat.Session.NormalizedQuery, Queries: queries},
	}, nil
}

// ViewSession implements C10 alone, over an already-materialized session by
// ID: a pure read with no external calls and no recomputation. Used by
// GET /search/session/{id}[/filtered].
func (s *Service) ViewSession(ctx context.Context, sessionID string, page, pageSize int, sortKey view.SortKey, filters view.Filters) (view.Page, error) {
	if pageSize <= 0 {
		pageSize = s.defaultPageSize
	}
	mat, err := s.sessions.BySessionID(ctx, sessionID)
	if err != nil {
		return view.Page{}, err
	}
	if mat == nil {
		return view.Page{}, apperr.ErrSessionNotFound
	}
	return view.PaginateFiltered(mat.Results, page, pageSize, sortKey, filters), nil
}

// runFreshSearch executes C5 through C9 for a cache-miss query, returning
// the materialized session, the queries it ran against the platform, and
// the external quota units spent doing so.
func (s *Service) runFreshSearch(ctx context.Context, rawQuery, queryDigest string, platform models.Platform) (*sessions.Materialized, []string, int64, error) {
	expanded := s.expander.Generate(ctx, rawQuery)
	baseGenre := expanded.Normalized

	queries := expanded.Queries
	if len(queries) > s.maxQueries {
		queries = queries[:s.maxQueries]
	}

	byQueryProfiles, quotaSpent, err := s.platform.SearchChannels(ctx, queries, s.maxResultsPerQ)
	if err != nil {
		return nil, nil, 0, err
	}

	now := time.Now()
	byQueryScored := make(map[string][]models.ScoredCreator, len(queries))
	var allProfiles []models.CreatorProfile
	seenForIngestion := make(map[string]struct{})

	for _, query := range queries {
		profiles := byQueryProfiles[query]
		scored := make([]models.ScoredCreator, 0, len(profiles))
		for _, profile := range profiles {
			comp, ok := func() (comp scoring.ScoreComponents, ok bool) {
				defer func() {
					if r := recover(); r != nil {
						log.Error().Interface("panic", r).Str("channelId", profile.ChannelID).Msg("search: scorer panicked, result dropped")
					}
				}()
				return s.scorer.Score(scoring.Input{
					Profile:   profile,
					BaseGenre: baseGenre,
					Now:       now,
				}), true
			}()
			if !ok {
				continue
			}
			scored = append(scored, models.ScoredCreator{
				Profile: profile,
				Score: models.CreatorScore{
					GenreRelevance:      comp.GenreRelevance,
					AudienceFit:         comp.AudienceFit,
					EngagementQuality:   comp.EngagementQuality,
					ActivityConsistency: comp.ActivityConsistency,
					Freshness:           comp.Freshness,
					FinalScore:          comp.FinalScore,
				},
				Labels: scoring.Labels(comp),
			})

			if len(allProfiles) < maxIngestionProfiles {
				if _, dup := seenForIngestion[profile.ChannelID]; !dup {
					seenForIngestion[profile.ChannelID] = struct{}{}
					allProfiles = append(allProfiles, profile)
				}
			}
		}
		byQueryScored[query] = scored
	}

	ranked := ranking.MergeAndRank(byQueryScored, queries)

	sessionID := uuid.New().String()
	session := models.SearchSession{
		SessionID:         sessionID,
		QueryDigest:       queryDigest,
		Platform:          platform,
		NormalizedQuery:   baseGenre,
		TotalResults:      len(ranked),
		ExternalUnitsUsed: quotaSpent,
	}

	results := make([]models.SearchSessionResult, 0, len(ranked))
	for i, sc := range ranked {
		row := models.SearchSessionResult{
			SessionID:           sessionID,
			ChannelID:           sc.Profile.ChannelID,
			ChannelName:         sc.Profile.DisplayName,
			Description:         sc.Profile.Bio,
			ImageURL:            sc.Profile.ImageURL,
			Labels:              models.JSONStringArray(sc.Labels),
			FinalScore:          sc.Score.FinalScore,
			GenreRelevance:      sc.Score.GenreRelevance,
			AudienceFit:         sc.Score.AudienceFit,
			EngagementQuality:   sc.Score.EngagementQuality,
			ActivityConsistency: sc.Score.ActivityConsistency,
			Freshness:           sc.Score.Freshness,
			CompetitivenessScore: scoring.CompetitivenessScore(
				sc.Score.AudienceFit, sc.Score.EngagementQuality, sc.Score.ActivityConsistency,
			),
			SubscriberCount: sc.Profile.Subscribers,
			Rank:            i + 1,
		}
		if sc.Profile.LastVideoDate != nil {
			row.LastVideoDate.Time = *sc.Profile.LastVideoDate
			row.LastVideoDate.Valid = true
		}
		results = append(results, row)
	}

	mat, err := s.sessions.Materialize(ctx, session, results)
	if err != nil {
		return nil, nil, 0, err
	}

	if s.ingestion != nil && len(allProfiles) > 0 {
		s.ingestion.Enqueue(ingestion.Job{
			Profiles:    allProfiles,
			Platform:    platform,
			BaseGenre:   baseGenre,
			OriginQuery: rawQuery,
		})
	}

	log.Debug().Str("sessionId", sessionID).Int("results", len(results)).Msg("search: materialized fresh session")

	return mat, queries, quotaSpent, nil
}
