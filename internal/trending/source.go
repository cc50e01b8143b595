// Package trending sources candidate seeds from a news-aggregator feed for
// the toutiao pipeline, instead of the notes table.
package trending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/socialads/notegen/internal/domain"
	"github.com/socialads/notegen/internal/logger"
)

const defaultTimeout = 15 * time.Second

// SeedTracker records which headlines have already been consumed.
type SeedTracker interface {
	FilterUsed(ctx context.Context, titles []string) (map[string]bool, error)
	MarkUsed(ctx context.Context, title string) error
}

// Config holds aggregator connection settings.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Source is the CandidateSource backed by the aggregator feed. Headlines have
// no stable upstream id, so the title doubles as the candidate id.
type Source struct {
	url        string
	httpClient *http.Client
	tracker    SeedTracker
	logger     logger.Logger
}

// NewSource creates a trending candidate source.
func NewSource(cfg Config, tracker SeedTracker, log logger.Logger) (*Source, error) {
	if cfg.URL == "" {
		return nil, errors.New("trending feed URL is required")
	}
	if tracker == nil {
		return nil, errors.New("seed tracker is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Source{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: timeout},
		tracker:    tracker,
		logger:     log,
	}, nil
}

type feedItem struct {
	Title          string `json:"title"`
	PublishTime    int64  `json:"publish_time"`
	WatchOrReadCnt int    `json:"watch_or_read_count"`
}

type feedResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    struct {
		News  []feedItem `json:"news"`
		Total int        `json:"total"`
	} `json:"data"`
}

// Next fetches the feed and returns the unconsumed headline with the highest
// read count. Returns domain.ErrNotFound when every headline has been used.
func (s *Source) Next(ctx context.Context) (domain.Candidate, error) {
	items, err := s.fetch(ctx)
	if err != nil {
		return domain.Candidate{}, err
	}

	titles := make([]string, 0, len(items))
	for _, item := range items {
		titles = append(titles, item.Title)
	}

	used, err := s.tracker.FilterUsed(ctx, titles)
	if err != nil {
		return domain.Candidate{}, fmt.Errorf("filter used headlines: %w", err)
	}

	fresh := items[:0]
	for _, item := range items {
		if !used[item.Title] {
			fresh = append(fresh, item)
		}
	}
	if len(fresh) == 0 {
		return domain.Candidate{}, domain.ErrNotFound
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].WatchOrReadCnt > fresh[j].WatchOrReadCnt
	})
	top := fresh[0]

	s.logger.Info("selected trending headline",
		logger.String("title", top.Title),
		logger.Int("read_count", top.WatchOrReadCnt),
	)

	return domain.Candidate{
		ID:              top.Title,
		Title:           top.Title,
		CreateTimestamp: top.PublishTime,
		Comment:         top.WatchOrReadCnt,
	}, nil
}

// MarkConsumed records the headline so later fetches skip it.
func (s *Source) MarkConsumed(ctx context.Context, id string) error {
	return s.tracker.MarkUsed(ctx, id)
}

func (s *Source) fetch(ctx context.Context) ([]feedItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create feed request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch trending feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trending feed returned status %d", resp.StatusCode)
	}

	var parsed feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode trending feed: %w", err)
	}
	if len(parsed.Data.News) == 0 {
		return nil, errors.New("trending feed returned no headlines")
	}

	return parsed.Data.News, nil
}
