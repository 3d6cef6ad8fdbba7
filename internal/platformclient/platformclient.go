// Package platformclient is a thin REST client for the two video-platform
// endpoints the platform search adapter (C6) needs: search.list and
// channels.list. It recognizes quota-shaped failures and surfaces them as
// apperr.ErrQuotaShaped so the adapter can rotate credentials.
package platformclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/creatordisco/discovery/internal/apperr"
)

const (
	DefaultBaseURL = "https://www.googleapis.com/youtube/v3"
	httpTimeout    = 15 * time.Second
)

var quotaShapedReasons = []string{"quotaExceeded", "dailyLimitExceeded", "rateLimitExceeded"}

// Client calls search.list and channels.list against a video platform's
// public API, behind a circuit breaker so a provider outage fails fast into
// C6's credential-rotation/degradation path instead of stalling every search
// behind individually timing-out calls.
type Client struct {
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[fetchResult]
	baseURL string
}

// fetchResult is a raw HTTP response body paired with its status code, the
// unit the circuit breaker guards.
type fetchResult struct {
	body   []byte
	status int
}

// New creates a platform client.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{http: &http.Client{Timeout: httpTimeout}, baseURL: baseURL}
	c.breaker = gobreaker.NewCircuitBreaker[fetchResult](gobreaker.Settings{
		Name:        "platformclient",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return c
}

// ChannelResult is one channels.list row, shaped directly into the fields
// C6 needs to build a CreatorProfile (§4.6e): it prefers the highest
// available thumbnail resolution itself, so callers don't re-parse the
// raw thumbnail map.
type ChannelResult struct {
	ChannelID    string
	Handle       string
	DisplayName  string
	Bio          string
	Country      string
	ImageURL     string
	Subscribers  int64
	VideoCount   int64
	ViewCount    int64
}

type searchListResponse struct {
	Items []struct {
		ID struct {
			ChannelID string `json:"channelId"`
		} `json:"id"`
	} `json:"items"`
	Error *apiError `json:"error,omitempty"`
}

type channelsListResponse struct {
	Items []channelItem `json:"items"`
	Error *apiError     `json:"error,omitempty"`
}

type channelItem struct {
	ID      string `json:"id"`
	Snippet struct {
		Title       string               `json:"title"`
		Description string               `json:"description"`
		Country     string               `json:"country"`
		CustomURL   string               `json:"customUrl"`
		Thumbnails  map[string]thumbnail `json:"thumbnails"`
	} `json:"snippet"`
	Statistics struct {
		SubscriberCount string `json:"subscriberCount"`
		VideoCount      string `json:"videoCount"`
		ViewCount       string `json:"viewCount"`
	} `json:"statistics"`
}

type thumbnail struct {
	URL string `json:"url"`
}

type apiError struct {
	Code   int `json:"code"`
	Errors []struct {
		Reason string `json:"reason"`
	} `json:"errors"`
}

func (e *apiError) isQuotaShaped() bool {
	if e == nil {
		return false
	}
	for _, inner := range e.Errors {
		for _, reason := range quotaShapedReasons {
			if inner.Reason == reason {
				return true
			}
		}
	}
	return false
}

// SearchChannels calls search.list for a single query, returning channel IDs
// in result order. Returns apperr.ErrQuotaShaped on a quota-shaped 403.
func (c *Client) SearchChannels(ctx context.Context, credential, query string, maxResults int) ([]string, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "channel")
	params.Set("q", query)
	params.Set("maxResults", strconv.Itoa(maxResults))
	params.Set("key", credential)

	var parsed searchListResponse
	if err := c.doGet(ctx, "/search?"+params.Encode(), &parsed); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(parsed.Items))
	seen := make(map[string]struct{}, len(parsed.Items))
	for _, item := range parsed.Items {
		id := item.ID.ChannelID
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetChannels calls channels.list for up to 50 channel IDs in one batch.
// Returns apperr.ErrQuotaShaped on a quota-shaped 403.
func (c *Client) GetChannels(ctx context.Context, credential string, channelIDs []string) ([]ChannelResult, error) {
	if len(channelIDs) == 0 {
		return nil, nil
	}

	params := url.Values{}
	params.Set("part", "snippet,statistics")
	params.Set("id", strings.Join(channelIDs, ","))
	params.Set("key", credential)

	var parsed channelsListResponse
	if err := c.doGet(ctx, "/channels?"+params.Encode(), &parsed); err != nil {
		return nil, err
	}

	results := make([]ChannelResult, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		results = append(results, ChannelResult{
			ChannelID:   item.ID,
			Handle:      strings.TrimPrefix(item.Snippet.CustomURL, "@"),
			DisplayName: item.Snippet.Title,
			Bio:         item.Snippet.Description,
			Country:     item.Snippet.Country,
			ImageURL:    bestThumbnail(item.Snippet.Thumbnails),
			Subscribers: parseCount(item.Statistics.SubscriberCount),
			VideoCount:  parseCount(item.Statistics.VideoCount),
			ViewCount:   parseCount(item.Statistics.ViewCount),
		})
	}
	return results, nil
}

// bestThumbnail prefers maxres > high > medium > default, per §4.6e.
func bestThumbnail(thumbs map[string]thumbnail) string {
	for _, key := range []string{"maxres", "high", "medium", "default"} {
		if t, ok := thumbs[key]; ok && t.URL != "" {
			return t.URL
		}
	}
	return ""
}

func parseCount(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// doGet performs the request behind the circuit breaker, decodes the body
// into out, and maps a quota-shaped 403 to apperr.ErrQuotaShaped.
func (c *Client) doGet(ctx context.Context, path string, out any) error {
	body, status, err := c.fetch(ctx, path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("platformclient: decode response: %w", err)
	}

	var apiErr *apiError
	switch v := out.(type) {
	case *searchListResponse:
		apiErr = v.Error
	case *channelsListResponse:
		apiErr = v.Error
	}

	if status == http.StatusForbidden && apiErr.isQuotaShaped() {
		return fmt.Errorf("platformclient: %w", apperr.ErrQuotaShaped)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("platformclient: provider error (status=%d): %s", status, strings.TrimSpace(string(body)))
	}

	return nil
}

// fetch issues the GET through the breaker and returns the raw body and
// status. Non-2xx responses are returned alongside their body, not as an
// error, so doGet can still inspect the quota-shaped error payload; only
// transport-level failures trip the breaker.
func (c *Client) fetch(ctx context.Context, path string) ([]byte, int, error) {
	result, err := c.breaker.Execute(func() (fetchResult, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fetchResult{}, fmt.Errorf("platformclient: build request: %w", err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fetchResult{}, fmt.Errorf("platformclient: send request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fetchResult{}, fmt.Errorf("platformclient: read response: %w", err)
		}

		return fetchResult{body: body, status: resp.StatusCode}, nil
	})
	if err != nil {
		return nil, 0, err
	}

	return result.body, result.status, nil
}
