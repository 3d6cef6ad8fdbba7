// Package embedclient is a thin REST client for an OpenAI-compatible
// embeddings endpoint, used by creator ingestion (C11) to build profile
// embeddings. Adapted directly from the teacher's embedding provider.
package embedclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
)

const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultModel     = "text-embedding-3-small"
	DefaultDimension = 1536
	httpTimeout      = 30 * time.Second
)

// Client embeds text via an OpenAI-compatible REST endpoint behind a circuit
// breaker, so a failing embedding provider degrades ingestion quickly
// instead of stalling it (§5: ingestion never blocks the search response).
type Client struct {
	http       *http.Client
	breaker    *gobreaker.CircuitBreaker[[][]float32]
	baseURL    string
	apiKey     string
	model      string
	dimensions int
}

// Config configures the embedding client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
}

// New creates an embedding client. An empty BaseURL/Model falls back to the
// package defaults.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	dimensions := cfg.Dimensions
	if dimensions <= 0 {
		dimensions = DefaultDimension
	}

	c := &Client{
		http:       &http.Client{Timeout: httpTimeout},
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      model,
		dimensions: dimensions,
	}
	c.breaker = gobreaker.NewCircuitBreaker[[][]float32](gobreaker.Settings{
		Name:        "embedclient",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return c
}

// Dimensions reports the embedding vector size this client produces.
func (c *Client) Dimensions() int { return c.dimensions }

// Embed embeds a single text, returning a zero vector for empty input.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return make([]float32, c.dimensions), nil
	}
	results, err := c.embedRequest(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("embedclient: no results for model %s", c.model)
	}
	return results[0], nil
}

// EmbedBatch embeds multiple texts in one request, preserving input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results, err := c.embedRequest(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(results) != len(texts) {
		return nil, fmt.Errorf("embedclient: got %d results for %d inputs (model=%s)", len(results), len(texts), c.model)
	}
	return results, nil
}

type embedRequest struct {
	Input          any    `json:"input"`
	Model          string `json:"model"`
	EncodingFormat string `json:"encoding_format"`
}

type embedResponse struct {
	Model string `json:"model"`
	Data  []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *Client) embedRequest(ctx context.Context, input any) ([][]float32, error) {
	return c.breaker.Execute(func() ([][]float32, error) {
		body, err := json.Marshal(embedRequest{Input: input, Model: c.model, EncodingFormat: "float"})
		if err != nil {
			return nil, fmt.Errorf("embedclient: marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("embedclient: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("embedclient: send request to %s: %w", c.baseURL, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("embedclient: provider error (status=%d): %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		}

		var parsed embedResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("embedclient: decode response: %w", err)
		}

		sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })

		results := make([][]float32, len(parsed.Data))
		for i, d := range parsed.Data {
			results[i] = d.Embedding
		}
		return results, nil
	})
}
