// Package llmclient is a thin REST client for an OpenAI-compatible chat
// completions endpoint, used by query expansion (C5) to generate candidate
// search queries from a normalized genre phrase.
package llmclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	httpTimeout    = 20 * time.Second

	// ExpansionTemperature is the fixed temperature C5 uses for query
	// expansion (§4.5): deterministic enough to be cacheable, varied enough
	// to surface more than the priority variants.
	ExpansionTemperature = 0.3
)

// Client calls chat completions behind a circuit breaker so a failing LLM
// provider fails fast into C5's deterministic fallback instead of stalling
// every search behind individually timing-out calls.
type Client struct {
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[Completion]
	baseURL string
	apiKey  string
	model   string
}

// Config configures the LLM client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// New creates a chat-completions client. An empty BaseURL/Model falls back
// to package defaults.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	c := &Client{
		http:    &http.Client{Timeout: httpTimeout},
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   model,
	}
	c.breaker = gobreaker.NewCircuitBreaker[Completion](gobreaker.Settings{
		Name:        "llmclient",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return c
}

// Completion is the parsed result of a chat-completions call.
type Completion struct {
	Text         string
	PromptTokens int
	TotalTokens  int
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// ExpansionPrompt builds the fixed prompt C5 sends for query expansion:
// asks for 6-8 short high-signal search queries, one per line.
func ExpansionPrompt(normalized string) string {
	return fmt.Sprintf(
		"Given the genre or topic %q, list 6 to 8 short, high-signal search "+
			"queries a video platform user would type to find channels in this "+
			"space. One query per line, no numbering, no extra commentary.",
		normalized,
	)
}

// Complete sends a single-message chat-completions request at the fixed
// expansion temperature and returns the parsed text and token usage.
func (c *Client) Complete(ctx context.Context, prompt string) (Completion, error) {
	return c.breaker.Execute(func() (Completion, error) {
		body, err := json.Marshal(chatRequest{
			Model:       c.model,
			Messages:    []chatMessage{{Role: "user", Content: prompt}},
			Temperature: ExpansionTemperature,
		})
		if err != nil {
			return Completion{}, fmt.Errorf("llmclient: marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return Completion{}, fmt.Errorf("llmclient: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return Completion{}, fmt.Errorf("llmclient: send request to %s: %w", c.baseURL, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return Completion{}, fmt.Errorf("llmclient: provider error (status=%d): %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		}

		var parsed chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return Completion{}, fmt.Errorf("llmclient: decode response: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return Completion{}, fmt.Errorf("llmclient: empty choices in response")
		}

		return Completion{
			Text:         parsed.Choices[0].Message.Content,
			PromptTokens: parsed.Usage.PromptTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		}, nil
	})
}
