package ingestion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/creatordisco/discovery/internal/governor"
	"github.com/creatordisco/discovery/pkg/models"
)

type fixedDecisionGovernor struct {
	decision governor.TokenDecision
	recorded int64
}

func (g *fixedDecisionGovernor) CheckBudget(estimated int64) governor.TokenDecision { return g.decision }
func (g *fixedDecisionGovernor) RecordUsage(n int64)                                { g.recorded += n }

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  []string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type fakeStore struct {
	mu             sync.Mutex
	alreadyDone    map[string]bool
	seenCalls      []string
	deferredCalls  []string
	failedCalls    []string
	savedEmbedding map[string][]float32
	savedTags      map[string][]string
	savedBio       map[string]string
	seenErr        error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		alreadyDone:    make(map[string]bool),
		savedEmbedding: make(map[string][]float32),
		savedTags:      make(map[string][]string),
		savedBio:       make(map[string]string),
	}
}

func (f *fakeStore) Seen(ctx context.Context, profile models.CreatorProfile, platform models.Platform, baseGenre, originQuery string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seenCalls = append(f.seenCalls, profile.ChannelID)
	if f.seenErr != nil {
		return false, f.seenErr
	}
	return f.alreadyDone[profile.ChannelID], nil
}

func (f *fakeStore) MarkDeferred(ctx context.Context, platform models.Platform, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deferredCalls = append(f.deferredCalls, channelID)
	return nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, platform models.Platform, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedCalls = append(f.failedCalls, channelID)
	return nil
}

func (f *fakeStore) SaveEmbedding(ctx context.Context, platform models.Platform, channelID string, embedding []float32, model, compressedBio string, contentTags []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedEmbedding[channelID] = embedding
	f.savedTags[channelID] = contentTags
	f.savedBio[channelID] = compressedBio
	return nil
}

func newPool(embedder *fakeEmbedder, tokens *fixedDecisionGovernor, store *fakeStore) *Pool {
	return New(Config{Workers: 1, QueueSize: 4, EmbedBudgetTokens: 500, EmbeddingModel: "test-embed-v1"}, embedder, tokens, store)
}

func TestIngestOne_AlreadyCompleteShortCircuits(t *testing.T) {
	store := newFakeStore()
	store.alreadyDone["UC1"] = true
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	tokens := &fixedDecisionGovernor{decision: governor.TokenAllow}
	p := newPool(embedder, tokens, store)

	err := p.ingestOne(context.Background(), models.CreatorProfile{ChannelID: "UC1"}, models.Platform("youtube"), "gaming", "q")
	if err != nil {
		t.Fatalf("ingestOne error: %v", err)
	}
	if len(embedder.calls) != 0 {
		t.Errorf("expected no embed call for already-complete creator, got %d", len(embedder.calls))
	}
}

func TestIngestOne_BudgetDeniedDefers(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	tokens := &fixedDecisionGovernor{decision: governor.TokenReject}
	p := newPool(embedder, tokens, store)

	err := p.ingestOne(context.Background(), models.CreatorProfile{ChannelID: "UC2"}, models.Platform("youtube"), "gaming", "q")
	if err != nil {
		t.Fatalf("ingestOne error: %v", err)
	}
	if len(store.deferredCalls) != 1 || store.deferredCalls[0] != "UC2" {
		t.Errorf("deferredCalls = %v, want [UC2]", store.deferredCalls)
	}
	if len(embedder.calls) != 0 {
		t.Errorf("expected no embed call when budget denied")
	}
}

func TestIngestOne_EmbedFailureReturnsError(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{err: errors.New("provider down")}
	tokens := &fixedDecisionGovernor{decision: governor.TokenAllow}
	p := newPool(embedder, tokens, store)

	err := p.ingestOne(context.Background(), models.CreatorProfile{ChannelID: "UC3"}, models.Platform("youtube"), "gaming", "q")
	if err == nil {
		t.Fatal("expected error on embed failure")
	}
	if _, saved := store.savedEmbedding["UC3"]; saved {
		t.Errorf("embedding should not be saved on failure")
	}
}

func TestProcessJob_EmbedFailureMarksFailed(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{err: errors.New("provider down")}
	tokens := &fixedDecisionGovernor{decision: governor.TokenAllow}
	p := newPool(embedder, tokens, store)

	p.processJob(context.Background(), Job{
		Profiles:    []models.CreatorProfile{{ChannelID: "UC4"}},
		Platform:    models.Platform("youtube"),
		BaseGenre:   "gaming",
		OriginQuery: "q",
	})

	if len(store.failedCalls) != 1 || store.failedCalls[0] != "UC4" {
		t.Errorf("failedCalls = %v, want [UC4]", store.failedCalls)
	}
}

func TestIngestOne_SuccessSavesEmbeddingAndTags(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{vector: []float32{0.1, 0.2, 0.3}}
	tokens := &fixedDecisionGovernor{decision: governor.TokenAllow}
	p := newPool(embedder, tokens, store)

	profile := models.CreatorProfile{
		ChannelID:   "UC5",
		DisplayName: "GameMaster",
		Bio:         "Daily gaming and tech reviews from a small studio.",
		Country:     "Canada",
		Subscribers: 5000,
	}

	err := p.ingestOne(context.Background(), profile, models.Platform("youtube"), "gaming", "best gaming channels")
	if err != nil {
		t.Fatalf("ingestOne error: %v", err)
	}

	if tokens.recorded != 500 {
		t.Errorf("recorded usage = %d, want 500", tokens.recorded)
	}

	vec, ok := store.savedEmbedding["UC5"]
	if !ok || len(vec) != 3 {
		t.Fatalf("savedEmbedding[UC5] = %v, want 3-dim vector", vec)
	}

	tags := store.savedTags["UC5"]
	wantFirstTwo := []string{"gaming", "tech"}
	if len(tags) < 2 || tags[0] != wantFirstTwo[0] || tags[1] != wantFirstTwo[1] {
		t.Errorf("savedTags[UC5] = %v, want first two %v (first-match order)", tags, wantFirstTwo)
	}

	if len(embedder.calls) != 1 {
		t.Fatalf("expected exactly one embed call, got %d", len(embedder.calls))
	}
	text := embedder.calls[0]
	if !strings.Contains(text, "GameMaster") || !strings.Contains(text, "Based in Canada") {
		t.Errorf("embedding text = %q, missing expected fragments", text)
	}
}

func TestExtractContentTags_CapsAtFive(t *testing.T) {
	text := "gaming music comedy tech lifestyle education fitness"
	tags := extractContentTags(text)
	if len(tags) != maxContentTags {
		t.Errorf("len(tags) = %d, want %d", len(tags), maxContentTags)
	}
	want := []string{"gaming", "music", "comedy", "tech", "lifestyle"}
	for i, w := range want {
		if tags[i] != w {
			t.Errorf("tags[%d] = %q, want %q", i, tags[i], w)
		}
	}
}

func TestEnqueue_DropsOldestWhenFull(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	tokens := &fixedDecisionGovernor{decision: governor.TokenAllow}
	p := New(Config{Workers: 1, QueueSize: 1}, embedder, tokens, store)

	first := Job{Profiles: []models.CreatorProfile{{ChannelID: "first"}}, Platform: models.Platform("youtube")}
	second := Job{Profiles: []models.CreatorProfile{{ChannelID: "second"}}, Platform: models.Platform("youtube")}

	p.Enqueue(first)
	p.Enqueue(second)

	if len(p.jobs) != 1 {
		t.Fatalf("len(jobs) = %d, want 1", len(p.jobs))
	}
	queued := <-p.jobs
	if queued.Profiles[0].ChannelID != "second" {
		t.Errorf("queued job = %q, want second (oldest dropped)", queued.Profiles[0].ChannelID)
	}
}
