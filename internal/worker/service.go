// Package worker is the HTTP service: router, handlers, and middleware for
// the creator-discovery search API.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog/log"

	"github.com/creatordisco/discovery/internal/config"
	"github.com/creatordisco/discovery/internal/db/gorm"
	"github.com/creatordisco/discovery/internal/embedclient"
	"github.com/creatordisco/discovery/internal/expansion"
	"github.com/creatordisco/discovery/internal/governor"
	"github.com/creatordisco/discovery/internal/ingestion"
	"github.com/creatordisco/discovery/internal/llmclient"
	"github.com/creatordisco/discovery/internal/maintenance"
	"github.com/creatordisco/discovery/internal/platform"
	"github.com/creatordisco/discovery/internal/platformclient"
	"github.com/creatordisco/discovery/internal/querycache"
	"github.com/creatordisco/discovery/internal/scoring"
	"github.com/creatordisco/discovery/internal/search"
	"github.com/creatordisco/discovery/internal/sessions"
	"github.com/creatordisco/discovery/internal/vector/pgvector"
	"github.com/creatordisco/discovery/pkg/models"
)

// DefaultHTTPTimeout bounds how long a gated route may run before the
// timeout middleware aborts it.
const DefaultHTTPTimeout = 30 * time.Second

// Service is the search API's HTTP service orchestrator: it owns the router
// and the full C1-C11 dependency graph, wiring them together during async
// startup so the health endpoint answers immediately even while the
// database connection and background workers are still coming up.
type Service struct {
	startTime time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	server    *http.Server
	router    *chi.Mux
	version   string
	config    *config.Config

	initMu    sync.RWMutex
	initError error
	ready     atomic.Bool

	wg sync.WaitGroup

	store       *gorm.Store
	sessionsSvc *sessions.Store
	platformAdp *platform.Adapter
	queryCache  *querycache.Cache
	tokens      *governor.TokenGovernor
	quota       *governor.QuotaGovernor
	ingestionP  *ingestion.Pool
	maintSvc    *maintenance.Service
	searchSvc   *search.Service
	similarity  *pgvector.Client
}

// NewService creates the HTTP service. The router and health endpoint are
// wired synchronously so they work immediately; everything that touches the
// database or an external provider is built in the background by
// initializeAsync, gated behind requireReady.
func NewService(version string) (*Service, error) {
	cfg := config.Get()

	ctx, cancel := context.WithCancel(context.Background())
	router := chi.NewRouter()

	svc := &Service{
		version:   version,
		config:    cfg,
		router:    router,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}

	svc.setupMiddleware()
	svc.setupRoutes()

	go svc.initializeAsync()

	return svc, nil
}

// initializeAsync builds the full C1-C11 dependency graph: the database
// connection, the token/quota governors, the RPC clients (each behind its
// own circuit breaker), the query and session caches, the platform adapter,
// the search orchestrator, the ingestion pool, and the maintenance sweeper.
// Any failure here is recorded via setInitError and surfaces as a 500 from
// requireReady rather than crashing the process, so the health endpoint can
// still report the failure.
func (s *Service) initializeAsync() {
	log.Info().Msg("Starting async initialization...")
	cfg := s.config

	store, err := gorm.NewStore(gorm.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
	})
	if err != nil {
		s.setInitError(fmt.Errorf("connect database: %w", err))
		return
	}
	s.store = store

	creatorStore := gorm.NewCreatorStore(store)
	sessionStore := gorm.NewSearchSessionStore(store)

	s.sessionsSvc = sessions.NewStore(sessionStore, time.Duration(cfg.Session.TTLMinutes)*time.Minute, cfg.Cache.L1SessionSize)

	s.tokens = governor.NewTokenGovernor(governor.TokenGovernorConfig{
		DailyBudget:       cfg.LLM.DailyTokenBudget,
		PerRequestBudget:  cfg.LLM.PerRequestBudget,
		FallbackThreshold: cfg.LLM.FallbackThreshold,
	})
	s.quota = governor.NewQuotaGovernor(governor.QuotaGovernorConfig{
		DailyQuota:         cfg.YouTube.DailyQuota,
		DowngradeThreshold: cfg.YouTube.DowngradeThreshold,
	}, cfg.YouTube.APIKeys)

	s.queryCache = querycache.New(sessionStore)

	llm := llmclient.New(llmclient.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
	})
	embed := embedclient.New(embedclient.Config{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
	})
	platformCl := platformclient.New(platformclient.DefaultBaseURL)

	s.platformAdp = platform.New(platformCl, s.quota)
	expander := expansion.New(s.queryCache, s.tokens, llm)
	calculator := scoring.NewCalculator(models.DefaultScoringWeights())

	s.ingestionP = ingestion.New(ingestion.Config{
		Workers:           cfg.Ingestion.WorkerCount,
		QueueSize:         cfg.Ingestion.QueueSize,
		EmbedBudgetTokens: cfg.Ingestion.EmbedBudgetTokens,
		EmbeddingModel:    cfg.Embedding.Model,
	}, embed, s.tokens, creatorStore)
	s.ingestionP.Start(s.ctx)

	s.searchSvc = search.New(search.Config{
		Expander:            expander,
		Platform:            s.platformAdp,
		Scorer:              calculator,
		Sessions:            s.sessionsSvc,
		Ingestion:           s.ingestionP,
		MaxQueriesPerSearch: cfg.YouTube.MaxQueriesPerSearch,
		MaxResultsPerQuery:  cfg.YouTube.MaxResultsPerQuery,
	})

	s.similarity = pgvector.NewClient(store.GetRawDB())

	s.maintSvc = maintenance.NewService(
		s.sessionsSvc,
		time.Duration(cfg.Sweep.IntervalMinutes)*time.Minute,
		log.Logger,
	)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.maintSvc.Start(s.ctx)
	}()

	s.ready.Store(true)
	log.Info().Msg("async initialization complete")
}

// setupMiddleware wires the global middleware stack: request ID and
// logging/recovery first, then security headers, CORS, body-size and
// content-type guards, compression, and finally per-client rate limiting in
// front of the search endpoints.
func (s *Service) setupMiddleware() {
	s.router.Use(RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	s.router.Use(SecurityHeaders)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.router.Use(MaxBodySize(s.config.Server.MaxBodyBytes))
	s.router.Use(RequireJSONContentType)
	s.router.Use(middleware.Compress(5))
}

// setupRoutes configures HTTP routes. /health is the only route that works
// before initializeAsync finishes; every search and admin route is gated
// behind requireReady inside the group below.
func (s *Service) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Group(func(r chi.Router) {
		r.Use(s.requireReady)
		r.Use(middleware.Timeout(DefaultHTTPTimeout))

		r.With(httprate.LimitByIP(30, time.Minute)).Post("/search", s.handleSearch)
		r.Get("/search/session/{sessionId}", s.handleViewSession)
		r.Get("/search/session/{sessionId}/filtered", s.handleViewSessionFiltered)

		r.Get("/admin/stats", s.handleAdminStats)
		r.Get("/admin/features", s.handleAdminFeatures)
		r.Post("/admin/cache/clear", s.handleAdminCacheClear)
		r.Get("/admin/creators/{channelId}/similar", s.handleSimilarCreators)
	})
}

// setInitError records a fatal initialization error, read by requireReady
// and handleHealth.
func (s *Service) setInitError(err error) {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	s.initError = err
	log.Error().Err(err).Msg("async initialization failed")
}

// GetInitError returns the recorded initialization error, if any.
func (s *Service) GetInitError() error {
	s.initMu.RLock()
	defer s.initMu.RUnlock()
	return s.initError
}

// Start launches the HTTP server in a background goroutine and returns
// immediately; WriteTimeout is disabled since search requests can legitimately
// run long against a degraded upstream behind the circuit breakers.
func (s *Service) Start() error {
	s.server = &http.Server{
		Addr:              s.config.Server.HTTPAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(s.config.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	log.Info().Str("addr", s.config.Server.HTTPAddr).Msg("search API server started (initialization in progress)")
	return nil
}

// Shutdown performs a multi-phase graceful shutdown: stop accepting new
// connections, stop the ingestion pool and maintenance sweeper, wait for
// background goroutines with a deadline, then close the database last.
func (s *Service) Shutdown(ctx context.Context) error {
	log.Info().Msg("starting graceful shutdown...")
	start := time.Now()

	s.cancel()

	var shutdownErrors []error
	var mu sync.Mutex
	collectError := func(name string, err error) {
		if err != nil {
			mu.Lock()
			shutdownErrors = append(shutdownErrors, fmt.Errorf("%s: %w", name, err))
			mu.Unlock()
			log.Error().Err(err).Str("component", name).Msg("shutdown error")
		}
	}

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			collectError("http_server", err)
		}
	}

	if s.ingestionP != nil {
		s.ingestionP.Stop()
	}
	if s.maintSvc != nil {
		s.maintSvc.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("all goroutines finished")
	case <-ctx.Done():
		log.Warn().Msg("timeout waiting for goroutines - forcing shutdown")
	}

	if s.store != nil {
		collectError("database", s.store.Close())
	}

	elapsed := time.Since(start)
	if len(shutdownErrors) > 0 {
		log.Warn().Int("errors", len(shutdownErrors)).Dur("elapsed", elapsed).Msg("shutdown completed with errors")
		return shutdownErrors[0]
	}

	log.Info().Dur("elapsed", elapsed).Msg("search API service shutdown complete")
	return nil
}
