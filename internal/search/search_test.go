package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/creatordisco/discovery/internal/apperr"
	"github.com/creatordisco/discovery/internal/expansion"
	"github.com/creatordisco/discovery/internal/ingestion"
	"github.com/creatordisco/discovery/internal/scoring"
	"github.com/creatordisco/discovery/internal/sessions"
	"github.com/creatordisco/discovery/internal/view"
	"github.com/creatordisco/discovery/pkg/models"
)

type fakeExpander struct {
	calls  int
	result expansion.Expansion
}

func (f *fakeExpander) Generate(ctx context.Context, raw string) expansion.Expansion {
	f.calls++
	return f.result
}

type fakePlatform struct {
	calls      int
	queries    []string
	result     map[string][]models.CreatorProfile
	quotaSpent int64
	err        error
}

func (f *fakePlatform) SearchChannels(ctx context.Context, queries []string, maxResultsPerQuery int) (map[string][]models.CreatorProfile, int64, error) {
	f.calls++
	f.queries = queries
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.result, f.quotaSpent, nil
}

type fakeScorer struct {
	calls int
}

func (f *fakeScorer) Score(in scoring.Input) scoring.ScoreComponents {
	f.calls++
	return scoring.ScoreComponents{
		GenreRelevance:      0.5,
		AudienceFit:         0.6,
		EngagementQuality:   0.7,
		ActivityConsistency: 0.8,
		Freshness:           0.9,
		FinalScore:          0.5 + float64(in.Profile.Subscribers%2),
	}
}

type fakeSessionStore struct {
	findValidResult  *sessions.Materialized
	findValidHit     bool
	findValidErr     error
	materializeArgs  []models.SearchSession
	materializeRows  [][]models.SearchSessionResult
	materializeOut   *sessions.Materialized
	materializeErr   error
}

func (f *fakeSessionStore) FindValid(ctx context.Context, queryDigest string, platform models.Platform) (*sessions.Materialized, bool, error) {
	return f.findValidResult, f.findValidHit, f.findValidErr
}

func (f *fakeSessionStore) Materialize(ctx context.Context, session models.SearchSession, results []models.SearchSessionResult) (*sessions.Materialized, error) {
	f.materializeArgs = append(f.materializeArgs, session)
	f.materializeRows = append(f.materializeRows, results)
	if f.materializeErr != nil {
		return nil, f.materializeErr
	}
	if f.materializeOut != nil {
		return f.materializeOut, nil
	}
	return &sessions.Materialized{Session: session, Results: results}, nil
}

func (f *fakeSessionStore) BySessionID(ctx context.Context, sessionID string) (*sessions.Materialized, error) {
	return f.findValidResult, f.findValidErr
}

type fakeIngestion struct {
	calls int
	jobs  []ingestion.Job
}

func (f *fakeIngestion) Enqueue(job ingestion.Job) {
	f.calls++
	f.jobs = append(f.jobs, job)
}

func TestSearch_CacheHitSkipsExpansionAndPlatform(t *testing.T) {
	cached := &sessions.Materialized{
		Session: models.SearchSession{SessionID: "sess-1", NormalizedQuery: "gaming", ExternalUnitsUsed: 250},
		Results: []models.SearchSessionResult{{ChannelID: "UC1", FinalScore: 0.9, Rank: 1}},
	}
	store := &fakeSessionStore{findValidResult: cached, findValidHit: true}
	expander := &fakeExpander{}
	platform := &fakePlatform{}

	svc := New(Config{
		Expander: expander,
		Platform: platform,
		Scorer:   &fakeScorer{},
		Sessions: store,
	})

	result, err := svc.Search(context.Background(), "gaming channels", models.Platform("youtube"), 1, 20, view.SortKey(""), view.Filters{})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if !result.CacheHit {
		t.Error("expected CacheHit = true")
	}
	if result.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", result.SessionID)
	}
	if result.ExternalUnitsUsed != 250 {
		t.Errorf("ExternalUnitsUsed = %d, want 250 (cache hit reuses session total, never re-spends)", result.ExternalUnitsUsed)
	}
	if result.QueryInfo.Normalized != "gaming" || len(result.QueryInfo.Queries) != 0 {
		t.Errorf("QueryInfo = %+v, want {Normalized: gaming, Queries: nil} on cache hit", result.QueryInfo)
	}
	if expander.calls != 0 {
		t.Errorf("expander.calls = %d, want 0 on cache hit", expander.calls)
	}
	if platform.calls != 0 {
		t.Errorf("platform.calls = %d, want 0 on cache hit", platform.calls)
	}
}

func TestSearch_CacheMissRunsFullPipelineAndEnqueuesIngestion(t *testing.T) {
	expander := &fakeExpander{result: expansion.Expansion{
		Normalized: "gaming",
		Queries:    []string{"gaming channels", "best gaming creators"},
	}}
	profiles := map[string][]models.CreatorProfile{
		"gaming channels":       {{ChannelID: "UC1", DisplayName: "Alpha", Subscribers: 1000}},
		"best gaming creators": {{ChannelID: "UC2", DisplayName: "Beta", Subscribers: 2000}},
	}
	platform := &fakePlatform{result: profiles, quotaSpent: 142}
	store := &fakeSessionStore{findValidHit: false}
	pool := &fakeIngestion{}

	svc := New(Config{
		Expander:  expander,
		Platform:  platform,
		Scorer:    &fakeScorer{},
		Sessions:  store,
		Ingestion: pool,
	})

	result, err := svc.Search(context.Background(), "gaming channels", models.Platform("youtube"), 1, 20, view.SortKey(""), view.Filters{})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if result.CacheHit {
		t.Error("expected CacheHit = false")
	}
	if result.ExternalUnitsUsed != 142 {
		t.Errorf("ExternalUnitsUsed = %d, want 142", result.ExternalUnitsUsed)
	}
	if result.QueryInfo.Normalized != "gaming" {
		t.Errorf("QueryInfo.Normalized = %q, want gaming", result.QueryInfo.Normalized)
	}
	if len(result.QueryInfo.Queries) != 2 {
		t.Errorf("QueryInfo.Queries = %v, want 2 entries", result.QueryInfo.Queries)
	}
	if expander.calls != 1 {
		t.Errorf("expander.calls = %d, want 1", expander.calls)
	}
	if platform.calls != 1 {
		t.Errorf("platform.calls = %d, want 1", platform.calls)
	}
	if len(store.materializeArgs) != 1 {
		t.Fatalf("materialize calls = %d, want 1", len(store.materializeArgs))
	}
	if store.materializeArgs[0].NormalizedQuery != "gaming" {
		t.Errorf("NormalizedQuery = %q, want gaming", store.materializeArgs[0].NormalizedQuery)
	}
	if pool.calls != 1 {
		t.Fatalf("ingestion.calls = %d, want 1", pool.calls)
	}
	if len(pool.jobs[0].Profiles) != 2 {
		t.Errorf("enqueued profiles = %d, want 2", len(pool.jobs[0].Profiles))
	}
	if pool.jobs[0].BaseGenre != "gaming" {
		t.Errorf("job.BaseGenre = %q, want gaming", pool.jobs[0].BaseGenre)
	}
}

func TestSearch_SkipsIngestionWhenNoProfiles(t *testing.T) {
	expander := &fakeExpander{result: expansion.Expansion{Normalized: "music", Queries: []string{"music channels"}}}
	platform := &fakePlatform{result: map[string][]models.CreatorProfile{}}
	store := &fakeSessionStore{findValidHit: false}
	pool := &fakeIngestion{}

	svc := New(Config{
		Expander:  expander,
		Platform:  platform,
		Scorer:    &fakeScorer{},
		Sessions:  store,
		Ingestion: pool,
	})

	if _, err := svc.Search(context.Background(), "music channels", models.Platform("youtube"), 1, 20, view.SortKey(""), view.Filters{}); err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if pool.calls != 0 {
		t.Errorf("ingestion.calls = %d, want 0 when no profiles found", pool.calls)
	}
}

func TestSearch_TruncatesQueriesToMaxQueriesPerSearch(t *testing.T) {
	expander := &fakeExpander{result: expansion.Expansion{
		Normalized: "tech",
		Queries:    []string{"q1", "q2", "q3", "q4", "q5", "q6"},
	}}
	platform := &fakePlatform{result: map[string][]models.CreatorProfile{}}
	store := &fakeSessionStore{findValidHit: false}

	svc := New(Config{
		Expander:            expander,
		Platform:            platform,
		Scorer:              &fakeScorer{},
		Sessions:            store,
		MaxQueriesPerSearch: 2,
	})

	if _, err := svc.Search(context.Background(), "tech reviewers", models.Platform("youtube"), 1, 20, view.SortKey(""), view.Filters{}); err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(platform.queries) != 2 {
		t.Errorf("platform queries = %v, want 2 (truncated)", platform.queries)
	}
}

func TestSearch_ResultRowsCarryRankAndCompetitivenessScore(t *testing.T) {
	expander := &fakeExpander{result: expansion.Expansion{Normalized: "gaming", Queries: []string{"gaming"}}}
	platform := &fakePlatform{result: map[string][]models.CreatorProfile{
		"gaming": {
			{ChannelID: "UC1", DisplayName: "Alpha", Subscribers: 1000, LastVideoDate: timePtr(time.Now())},
		},
	}}
	store := &fakeSessionStore{findValidHit: false}

	svc := New(Config{
		Expander: expander,
		Platform: platform,
		Scorer:   &fakeScorer{},
		Sessions: store,
	})

	if _, err := svc.Search(context.Background(), "gaming", models.Platform("youtube"), 1, 20, view.SortKey(""), view.Filters{}); err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(store.materializeRows) != 1 || len(store.materializeRows[0]) != 1 {
		t.Fatalf("expected one materialize call with one row")
	}
	row := store.materializeRows[0][0]
	if row.Rank != 1 {
		t.Errorf("Rank = %d, want 1", row.Rank)
	}
	wantComp := scoring.CompetitivenessScore(0.6, 0.7, 0.8)
	if row.CompetitivenessScore != wantComp {
		t.Errorf("CompetitivenessScore = %v, want %v", row.CompetitivenessScore, wantComp)
	}
	if !row.LastVideoDate.Valid {
		t.Error("LastVideoDate should be valid when profile has one")
	}
}

func TestViewSession_PureReadNoExternalCalls(t *testing.T) {
	mat := &sessions.Materialized{
		Session: models.SearchSession{SessionID: "sess-9"},
		Results: []models.SearchSessionResult{
			{ChannelID: "UC1", FinalScore: 0.8, Rank: 1},
			{ChannelID: "UC2", FinalScore: 0.6, Rank: 2},
		},
	}
	store := &fakeSessionStore{findValidResult: mat}
	expander := &fakeExpander{}
	platform := &fakePlatform{}

	svc := New(Config{Expander: expander, Platform: platform, Scorer: &fakeScorer{}, Sessions: store})

	page, err := svc.ViewSession(context.Background(), "sess-9", 1, 20, view.SortKey(""), view.Filters{})
	if err != nil {
		t.Fatalf("ViewSession error: %v", err)
	}
	if len(page.Results) != 2 {
		t.Errorf("len(page.Results) = %d, want 2", len(page.Results))
	}
	if expander.calls != 0 || platform.calls != 0 {
		t.Error("ViewSession must not call expander or platform")
	}
}

func TestViewSession_NotFoundReturnsSentinelError(t *testing.T) {
	store := &fakeSessionStore{findValidResult: nil, findValidErr: nil}
	svc := New(Config{Expander: &fakeExpander{}, Platform: &fakePlatform{}, Scorer: &fakeScorer{}, Sessions: store})

	_, err := svc.ViewSession(context.Background(), "missing-session", 1, 20, view.SortKey(""), view.Filters{})
	if !errors.Is(err, apperr.ErrSessionNotFound) {
		t.Errorf("err = %v, want apperr.ErrSessionNotFound", err)
	}
}

func timePtr(t time.Time) *time.Time { return &t }
