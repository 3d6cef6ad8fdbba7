// Package ingestion implements C11: a best-effort, asynchronous pipeline
// that embeds and tags newly-discovered creators without ever blocking the
// search response that discovered them.
package ingestion

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/creatordisco/discovery/internal/governor"
	"github.com/creatordisco/discovery/pkg/models"
)

// embedConcurrency bounds how many profiles in one batch embed at once
// (§4.11): the embedding provider's circuit breaker, not the worker pool's
// goroutine count, is what a burst of concurrent calls risks tripping.
const embedConcurrency = 4

// defaultEmbedBudgetTokens is the per-creator token cost charged to the token
// governor before embedding (§4.11 step 3) when Config.EmbedBudgetTokens
// (ingestion.embed-budget-tokens) is not positive.
const defaultEmbedBudgetTokens int64 = 500

// maxContentTags bounds the keyword-extracted tag set.
const maxContentTags = 5

// contentTagKeywords is the closed, ordered dictionary C11 step 6 matches
// against; first-match order is preserved in the result.
var contentTagKeywords = []string{
	"gaming", "music", "comedy", "tech", "lifestyle",
	"education", "fitness", "food", "beauty", "commentary",
}

type embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type tokenGovernor interface {
	CheckBudget(estimated int64) governor.TokenDecision
	RecordUsage(n int64)
}

// store is the persistence surface ingestion needs from internal/db/gorm's
// CreatorStore, narrowed to an interface for testability.
type store interface {
	Seen(ctx context.Context, profile models.CreatorProfile, platform models.Platform, baseGenre, originQuery string) (alreadyComplete bool, err error)
	MarkDeferred(ctx context.Context, platform models.Platform, channelID string) error
	MarkFailed(ctx context.Context, platform models.Platform, channelID string) error
	SaveEmbedding(ctx context.Context, platform models.Platform, channelID string, embedding []float32, model, compressedBio string, contentTags []string) error
}

// Job is one batch of freshly-discovered profiles to ingest, enqueued after
// a fresh search materialization.
type Job struct {
	Profiles    []models.CreatorProfile
	Platform    models.Platform
	BaseGenre   string
	OriginQuery string
}

// Pool is a bounded worker pool over a buffered job channel. Under
// backpressure (the channel full), Enqueue drops the oldest queued job
// rather than blocking the caller or growing without bound — ingestion must
// never slow down or stall a search response.
type Pool struct {
	jobs        chan Job
	workers     int
	embedder    embedder
	tokens      tokenGovernor
	store       store
	embedBudget int64
	model       string
	cancel      context.CancelFunc
	done        chan struct{}
}

// Config configures a Pool.
type Config struct {
	Workers           int
	QueueSize         int
	EmbedBudgetTokens int64
	EmbeddingModel    string
}

// New creates an ingestion pool. Call Start to begin processing.
func New(cfg Config, embedder embedder, tokens tokenGovernor, store store) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	budget := cfg.EmbedBudgetTokens
	if budget <= 0 {
		budget = defaultEmbedBudgetTokens
	}

	return &Pool{
		jobs:        make(chan Job, queueSize),
		workers:     workers,
		embedder:    embedder,
		tokens:      tokens,
		store:       store,
		embedBudget: budget,
		model:       cfg.EmbeddingModel,
	}
}

// Start launches the fixed worker pool. Workers run until ctx is done or
// Stop is called.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		var wg sync.WaitGroup
		for i := 0; i < p.workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.worker(ctx)
			}()
		}
		wg.Wait()
	}()
}

// Stop cancels all workers and waits for them to exit.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	if p.done != nil {
		<-p.done
	}
}

// Enqueue submits a job. If the queue is full, the oldest queued job is
// dropped to make room — a slow embedding provider must never cause
// ingestion to back up onto the search path.
func (p *Pool) Enqueue(job Job) {
	select {
	case p.jobs <- job:
	default:
		select {
		case <-p.jobs:
		default:
		}
		select {
		case p.jobs <- job:
		default:
		}
	}
}

func (p *Pool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			p.processJob(ctx, job)
		}
	}
}

// processJob runs the batch's profiles through ingestOne, fanning the
// embedding calls out across up to embedConcurrency goroutines (§4.11) so one
// slow or failing profile doesn't serialize the rest of the batch. A single
// profile's failure is handled inline (logged, marked failed) and never
// aborts its siblings, so g.Wait's error is always nil.
func (p *Pool) processJob(ctx context.Context, job Job) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for _, profile := range job.Profiles {
		profile := profile
		g.Go(func() error {
			if err := p.ingestOne(gctx, profile, job.Platform, job.BaseGenre, job.OriginQuery); err != nil {
				log.Warn().Err(err).Str("channelId", profile.ChannelID).Msg("ingestion: creator failed")
				_ = p.store.MarkFailed(gctx, job.Platform, profile.ChannelID)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// ingestOne runs C11 steps 1-8 for a single creator profile.
func (p *Pool) ingestOne(ctx context.Context, profile models.CreatorProfile, platform models.Platform, baseGenre, originQuery string) error {
	alreadyComplete, err := p.store.Seen(ctx, profile, platform, baseGenre, originQuery)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	if alreadyComplete {
		return nil
	}

	decision := p.tokens.CheckBudget(p.embedBudget)
	if decision != governor.TokenAllow {
		return p.store.MarkDeferred(ctx, platform, profile.ChannelID)
	}

	text := embeddingText(profile)
	vector, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	p.tokens.RecordUsage(p.embedBudget)

	tags := extractContentTags(profile.Bio + " " + profile.DisplayName)
	compressedBio := truncate(profile.Bio, 300)

	if err := p.store.SaveEmbedding(ctx, platform, profile.ChannelID, vector, p.model, compressedBio, tags); err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	return nil
}

// embeddingText builds C11 step 4's fixed-shape embedding input.
func embeddingText(profile models.CreatorProfile) string {
	var b strings.Builder
	b.WriteString(profile.DisplayName)
	b.WriteString(". ")
	b.WriteString(truncate(profile.Bio, 300))
	b.WriteString(" ")
	b.WriteString(sizeLabel(profile.Subscribers))
	if profile.Country != "" {
		b.WriteString(" Based in ")
		b.WriteString(profile.Country)
		b.WriteString(".")
	}
	return b.String()
}

func sizeLabel(subscribers int64) string {
	switch {
	case subscribers > 1_000_000:
		return "Major creator."
	case subscribers > 100_000:
		return "Established creator."
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// extractContentTags implements C11 step 6: keyword match against the fixed
// dictionary, preserving first-match order, capped at maxContentTags.
func extractContentTags(text string) []string {
	lower := strings.ToLower(text)
	var tags []string
	for _, kw := range contentTagKeywords {
		if strings.Contains(lower, kw) {
			tags = append(tags, kw)
			if len(tags) >= maxContentTags {
				break
			}
		}
	}
	return tags
}
