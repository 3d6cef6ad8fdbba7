package worker

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/creatordisco/discovery/pkg/models"
	"github.com/creatordisco/discovery/internal/view"
)

// writeJSON writes a JSON response with proper error handling.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// handleHealth returns 200 immediately, even during async init, so load
// balancers can connect quickly; readiness for the gated routes is reported
// via the status field.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "starting"
	if s.ready.Load() {
		status = "ready"
	} else if err := s.GetInitError(); err != nil {
		status = "error"
	}
	writeJSON(w, map[string]any{
		"status":  status,
		"version": s.version,
	})
}

// requireReady gates every route that depends on the database or an
// external collaborator behind async initialization having finished.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			if err := s.GetInitError(); err != nil {
				http.Error(w, "service initialization failed: "+err.Error(), http.StatusInternalServerError)
				return
			}
			http.Error(w, "service initializing", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// searchRequest is the POST /search body (§6.1).
type searchRequest struct {
	Filters  filterRequest `json:"filters"`
	Platform string        `json:"platform"`
	Genre    string        `json:"genre"`
	SortBy   string        `json:"sortBy"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
}

// filterRequest carries §4.10's five filter categories as comma-separated
// strings, the same shape the filtered-view GET endpoint accepts as query
// parameters.
type filterRequest struct {
	Audience        string `json:"audience"`
	Engagement      string `json:"engagement"`
	Competitiveness string `json:"competitiveness"`
	Activity        string `json:"activity"`
	Genres          string `json:"genres"`
}

func (f filterRequest) toView() view.Filters {
	return view.Filters{
		Audience:        splitCSV(f.Audience),
		Engagement:      splitCSV(f.Engagement),
		Competitiveness: splitCSV(f.Competitiveness),
		Activity:        splitCSV(f.Activity),
		Genres:          splitCSV(f.Genres),
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// queryInfoResponse mirrors search.QueryInfo for the wire response.
type queryInfoResponse struct {
	Normalized string   `json:"normalized"`
	Queries    []string `json:"queries,omitempty"`
}

// searchResponse is the POST /search response shape from spec.md §6.1.
// channelResults is deliberately not a separate field: spec.md never
// defines a distinct "channel result" entity from SearchSessionResult, so
// results doubles as both.
type searchResponse struct {
	SessionID         string                        `json:"sessionId"`
	Results           []models.SearchSessionResult `json:"results"`
	QueryInfo         queryInfoResponse             `json:"queryInfo"`
	TotalResults      int                           `json:"totalResults"`
	CurrentPage       int                           `json:"currentPage"`
	TotalPages        int                           `json:"totalPages"`
	ExternalUnitsUsed int64                         `json:"externalUnitsUsed"`
	FromCache         bool                          `json:"fromCache"`
}

// handleSearch implements POST /search: run (or replay) a genre search and
// return its first page of ranked results.
func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Genre == "" {
		http.Error(w, "genre is required", http.StatusBadRequest)
		return
	}

	result, err := s.searchSvc.Search(
		r.Context(),
		req.Genre,
		models.Platform(req.Platform),
		req.Page,
		req.PageSize,
		view.ParseSortKey(req.SortBy),
		req.Filters.toView(),
	)
	if err != nil {
		log.Error().Err(err).Str("genre", req.Genre).Msg("search failed")
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, searchResponse{
		SessionID:         result.SessionID,
		Results:           result.Page.Results,
		TotalResults:      result.Page.TotalResults,
		CurrentPage:       result.Page.CurrentPage,
		TotalPages:        result.Page.TotalPages,
		FromCache:         result.CacheHit,
		ExternalUnitsUsed: result.ExternalUnitsUsed,
		QueryInfo: queryInfoResponse{
			Normalized: result.QueryInfo.Normalized,
			Queries:    result.QueryInfo.Queries,
		},
	})
}

// sessionPageResponse is the GET /search/session/{id}[/filtered] response
// shape: a pure read over an already-materialized session, no query info or
// quota fields since no external call happens on this path.
type sessionPageResponse struct {
	SessionID    string                        `json:"sessionId"`
	Results      []models.SearchSessionResult `json:"results"`
	TotalResults int                           `json:"totalResults"`
	CurrentPage  int                           `json:"currentPage"`
	TotalPages   int                           `json:"totalPages"`
}

func pageParams(r *http.Request) (page, pageSize int, sortKey view.SortKey) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	pageSize, _ = strconv.Atoi(q.Get("pageSize"))
	sortKey = view.ParseSortKey(q.Get("sortBy"))
	return page, pageSize, sortKey
}

// handleViewSession implements GET /search/session/{sessionId}.
func (s *Service) handleViewSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	page, pageSize, sortKey := pageParams(r)

	result, err := s.searchSvc.ViewSession(r.Context(), sessionID, page, pageSize, sortKey, view.Filters{})
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	writeJSON(w, sessionPageResponse{
		SessionID:    sessionID,
		Results:      result.Results,
		TotalResults: result.TotalResults,
		CurrentPage:  result.CurrentPage,
		TotalPages:   result.TotalPages,
	})
}

// handleViewSessionFiltered implements GET /search/session/{sessionId}/filtered,
// same as handleViewSession but with §4.10's filter categories parsed from
// comma-separated query parameters.
func (s *Service) handleViewSessionFiltered(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	page, pageSize, sortKey := pageParams(r)

	q := r.URL.Query()
	filters := view.Filters{
		Audience:        splitCSV(q.Get("audience")),
		Engagement:      splitCSV(q.Get("engagement")),
		Competitiveness: splitCSV(q.Get("competitiveness")),
		Activity:        splitCSV(q.Get("activity")),
		Genres:          splitCSV(q.Get("genres")),
	}

	result, err := s.searchSvc.ViewSession(r.Context(), sessionID, page, pageSize, sortKey, filters)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	writeJSON(w, sessionPageResponse{
		SessionID:    sessionID,
		Results:      result.Results,
		TotalResults: result.TotalResults,
		CurrentPage:  result.CurrentPage,
		TotalPages:   result.TotalPages,
	})
}

// handleAdminStats implements GET /admin/stats (§4.12): token/quota
// governor snapshots, the three cache layers' hit/miss counters, database
// health, and the maintenance sweeper's run history.
func (s *Service) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"tokens":       s.tokens.Snapshot(),
		"quota":        s.quota.Snapshot(),
		"queryCache":   s.queryCache.Stats(),
		"sessionCache": s.sessionsSvc.Stats(),
		"channelCache": s.platformAdp.ChannelCacheStats(),
		"database":     s.store.HealthCheck(r.Context()),
		"maintenance":  s.maintSvc.Stats(),
	})
}

// handleAdminFeatures implements GET /admin/features (§6.3): the resolved
// state of each closed-enumeration feature flag.
func (s *Service) handleAdminFeatures(w http.ResponseWriter, r *http.Request) {
	cfg := s.config
	hasYouTubeCreds := len(cfg.YouTube.APIKeys) > 0

	writeJSON(w, map[string]models.FeatureState{
		"llm_expansion":       models.ResolveFeature(cfg.LLM.APIKey != "", cfg.LLM.Enabled),
		"platform_search":     models.ResolveFeature(hasYouTubeCreds, cfg.YouTube.Enabled),
		"creator_ingestion":   models.ResolveFeature(cfg.Embedding.APIKey != "", cfg.Ingestion.Enabled),
		"premium_video_stats": models.ResolveFeature(hasYouTubeCreds, cfg.YouTube.FetchVideoStats),
	})
}

// handleSimilarCreators implements GET /admin/creators/{channelId}/similar: a
// cosine-distance nearest-neighbor lookup over profile embeddings, gated to
// /admin since it has no product surface in v1 (spec.md never defines a
// "similar creators" operation; this exercises the pgvector column the
// ingestion pipeline already populates).
func (s *Service) handleSimilarCreators(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelId")
	platform := models.Platform(r.URL.Query().Get("platform"))
	if platform == "" {
		platform = models.Platform("youtube")
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	similar, err := s.similarity.FindSimilar(r.Context(), platform, channelID, limit)
	if err != nil {
		log.Error().Err(err).Str("channelId", channelID).Msg("similarity query failed")
		http.Error(w, "similarity query failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{"channelId": channelID, "similar": similar})
}

// handleAdminCacheClear implements POST /admin/cache/clear: empties the
// channel-metadata and query-expansion caches and runs an immediate session
// sweep out of band.
func (s *Service) handleAdminCacheClear(w http.ResponseWriter, r *http.Request) {
	s.platformAdp.ClearChannelCache()
	s.queryCache.Clear()
	s.maintSvc.RunNow(r.Context())

	writeJSON(w, map[string]string{"status": "cleared"})
}
