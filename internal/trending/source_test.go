package trending_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialads/notegen/internal/domain"
	"github.com/socialads/notegen/internal/logger"
	"github.com/socialads/notegen/internal/trending"
)

type fakeTracker struct {
	used   map[string]bool
	marked []string
}

func (f *fakeTracker) FilterUsed(_ context.Context, titles []string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, title := range titles {
		if f.used[title] {
			out[title] = true
		}
	}
	return out, nil
}

func (f *fakeTracker) MarkUsed(_ context.Context, title string) error {
	f.marked = append(f.marked, title)
	return nil
}

func newFeedServer(t *testing.T, news []map[string]any) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status":  0,
			"message": "success",
			"data":    map[string]any{"news": news, "total": len(news)},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNext_PicksHighestReadCountUnused(t *testing.T) {
	srv := newFeedServer(t, []map[string]any{
		{"title": "热门新车发布", "watch_or_read_count": 90000, "publish_time": 1700000100},
		{"title": "冷门改装技巧", "watch_or_read_count": 1200, "publish_time": 1700000200},
		{"title": "已经写过的爆款", "watch_or_read_count": 500000, "publish_time": 1700000300},
	})

	tracker := &fakeTracker{used: map[string]bool{"已经写过的爆款": true}}
	source, err := trending.NewSource(trending.Config{URL: srv.URL}, tracker, logger.NewNopLogger())
	require.NoError(t, err)

	candidate, err := source.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "热门新车发布", candidate.Title)
	assert.Equal(t, candidate.Title, candidate.ID, "headline doubles as candidate id")
	assert.Equal(t, 90000, candidate.Comment)
}

func TestNext_AllConsumed(t *testing.T) {
	srv := newFeedServer(t, []map[string]any{
		{"title": "唯一标题", "watch_or_read_count": 100},
	})

	tracker := &fakeTracker{used: map[string]bool{"唯一标题": true}}
	source, err := trending.NewSource(trending.Config{URL: srv.URL}, tracker, logger.NewNopLogger())
	require.NoError(t, err)

	_, err = source.Next(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNext_EmptyFeedIsError(t *testing.T) {
	srv := newFeedServer(t, []map[string]any{})

	source, err := trending.NewSource(trending.Config{URL: srv.URL}, &fakeTracker{}, logger.NewNopLogger())
	require.NoError(t, err)

	_, err = source.Next(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound, "an empty feed is a backend problem, not exhaustion")
}

func TestNext_FeedHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	source, err := trending.NewSource(trending.Config{URL: srv.URL}, &fakeTracker{}, logger.NewNopLogger())
	require.NoError(t, err)

	_, err = source.Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestMarkConsumed_RecordsHeadline(t *testing.T) {
	srv := newFeedServer(t, []map[string]any{{"title": "标题", "watch_or_read_count": 1}})

	tracker := &fakeTracker{}
	source, err := trending.NewSource(trending.Config{URL: srv.URL}, tracker, logger.NewNopLogger())
	require.NoError(t, err)

	require.NoError(t, source.MarkConsumed(context.Background(), "标题"))
	assert.Equal(t, []string{"标题"}, tracker.marked)
}
