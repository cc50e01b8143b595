// Package search provides the web-search client used to gather reference
// material for article generation.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/socialads/notegen/internal/domain"
	"github.com/socialads/notegen/internal/logger"
)

const (
	defaultCount   = 20
	defaultTimeout = 30 * time.Second
)

// Config holds connection settings for the search backend.
type Config struct {
	URL     string
	APIKey  string
	Count   int
	Timeout time.Duration
}

// Client calls the vendor search API and normalizes its results.
type Client struct {
	url        string
	apiKey     string
	count      int
	httpClient *http.Client
	logger     logger.Logger
}

// NewClient builds a search client from configuration.
func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("search URL is required")
	}

	count := cfg.Count
	if count <= 0 {
		count = defaultCount
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		count:      count,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}, nil
}

type searchRequest struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

type searchResponse struct {
	Code int `json:"code"`
	Data struct {
		WebPages struct {
			Value []domain.SearchResultItem `json:"value"`
		} `json:"webPages"`
	} `json:"data"`
}

// Search runs the query and returns the result items in backend order.
// A non-200 envelope code or an empty result list is an error: a well-formed
// query with zero results is treated as a transient backend issue, so the
// caller's retry layer gets a chance before the candidate is abandoned.
func (c *Client) Search(ctx context.Context, query string) ([]domain.SearchResultItem, error) {
	body, err := json.Marshal(searchRequest{Query: query, Count: c.count})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("search backend returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	if parsed.Code != http.StatusOK {
		return nil, fmt.Errorf("search backend returned code %d", parsed.Code)
	}
	items := parsed.Data.WebPages.Value
	if len(items) == 0 {
		return nil, errors.New("search returned empty results")
	}

	c.logger.Info("web search completed",
		logger.String("query", query),
		logger.Int("results", len(items)),
		logger.Duration("duration", time.Since(start)),
	)

	return items, nil
}

// BuildContent renders the result items into the text blob fed to article
// generation: one "title:"/"summary:" block per item, blank-line separated,
// backend order preserved.
func BuildContent(items []domain.SearchResultItem) string {
	blocks := make([]string, 0, len(items))
	for _, item := range items {
		blocks = append(blocks, fmt.Sprintf("title:%s\nsummary:%s", item.Name, item.Snippet))
	}
	return strings.Join(blocks, "\n\n")
}
