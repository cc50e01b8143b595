package image_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialads/notegen/internal/domain"
	"github.com/socialads/notegen/internal/image"
	"github.com/socialads/notegen/internal/logger"
)

// fakeStore plays back a scripted sequence of job states.
type fakeStore struct {
	sequence []domain.ImageJob
	calls    int
}

func (f *fakeStore) Get(_ context.Context, jobID string) (domain.ImageJob, error) {
	idx := f.calls
	if idx >= len(f.sequence) {
		idx = len(f.sequence) - 1
	}
	f.calls++
	job := f.sequence[idx]
	job.ID = jobID
	return job, nil
}

func newSubmitServer(t *testing.T, code int, jobID string) (*httptest.Server, *int) {
	t.Helper()

	submissions := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		submissions++
		json.NewEncoder(w).Encode(map[string]any{
			"code":    code,
			"message": "ok",
			"data":    jobID,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &submissions
}

func newGenerator(t *testing.T, srvURL string, store image.JobStore, mode image.Mode) *image.Generator {
	t.Helper()

	gen, err := image.NewGenerator(image.Config{
		BaseURL:      srvURL,
		Token:        "token",
		ResultPrefix: "https://assets.example.com/",
		Mode:         mode,
		PollInterval: time.Millisecond,
		MaxPolls:     10,
	}, store, func(int) int { return 0 }, logger.NewNopLogger())
	require.NoError(t, err)
	return gen
}

func TestGenerate_RunningThenSucceeded(t *testing.T) {
	srv, _ := newSubmitServer(t, 200, "job-1")

	store := &fakeStore{sequence: []domain.ImageJob{
		{Status: domain.ImageJobRunning},
		{Status: domain.ImageJobRunning},
		{Status: domain.ImageJobSucceeded, Results: []string{"x.png"}},
	}}

	gen := newGenerator(t, srv.URL, store, image.ModeTemplateEdit)

	url, err := gen.Generate(context.Background(), "测试标题")
	require.NoError(t, err)
	assert.Equal(t, "https://assets.example.com/x.png", url)
	assert.Equal(t, 3, store.calls, "two running polls then the terminal one")
}

func TestGenerate_SubmissionRejectedNeverPolls(t *testing.T) {
	srv, _ := newSubmitServer(t, 500, "")

	store := &fakeStore{sequence: []domain.ImageJob{
		{Status: domain.ImageJobSucceeded, Results: []string{"x.png"}},
	}}

	gen := newGenerator(t, srv.URL, store, image.ModeTemplateEdit)

	_, err := gen.Generate(context.Background(), "标题")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
	assert.Zero(t, store.calls, "must not enter the poll loop")
}

func TestGenerate_FailedJobStopsImmediately(t *testing.T) {
	srv, _ := newSubmitServer(t, 200, "job-2")

	store := &fakeStore{sequence: []domain.ImageJob{
		{Status: domain.ImageJobQueuing},
		{Status: domain.ImageJobFailed},
		{Status: domain.ImageJobSucceeded, Results: []string{"never.png"}},
	}}

	gen := newGenerator(t, srv.URL, store, image.ModeTemplateEdit)

	_, err := gen.Generate(context.Background(), "标题")
	require.ErrorIs(t, err, domain.ErrImageJobFailed)
	assert.Equal(t, 2, store.calls, "no polling past the failed status")
}

func TestGenerate_PollBudgetExhausted(t *testing.T) {
	srv, _ := newSubmitServer(t, 200, "job-3")

	store := &fakeStore{sequence: []domain.ImageJob{
		{Status: domain.ImageJobRunning},
	}}

	gen := newGenerator(t, srv.URL, store, image.ModeTemplateEdit)

	_, err := gen.Generate(context.Background(), "标题")
	require.ErrorIs(t, err, domain.ErrPollExhausted)
	assert.Equal(t, 10, store.calls)
}

func TestGenerate_SucceededWithoutResults(t *testing.T) {
	srv, _ := newSubmitServer(t, 200, "job-4")

	store := &fakeStore{sequence: []domain.ImageJob{
		{Status: domain.ImageJobSucceeded},
	}}

	gen := newGenerator(t, srv.URL, store, image.ModeTemplateEdit)

	_, err := gen.Generate(context.Background(), "标题")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without results")
}

func TestTemplateEdit_SubmissionBody(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/img2img/text-edit", r.URL.Path)
		assert.Equal(t, "token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]any{"code": 200, "data": "job-5"})
	}))
	t.Cleanup(srv.Close)

	store := &fakeStore{sequence: []domain.ImageJob{
		{Status: domain.ImageJobSucceeded, Results: []string{"y.png"}},
	}}

	gen := newGenerator(t, srv.URL, store, image.ModeTemplateEdit)

	_, err := gen.Generate(context.Background(), "我的新标题")
	require.NoError(t, err)

	prompt, _ := captured["prompt"].(string)
	assert.Contains(t, prompt, "我的新标题")
	assert.Contains(t, prompt, "只修改文本")
	assert.NotEmpty(t, captured["image_urls"])
}

func TestTextToImage_SubmissionBody(t *testing.T) {
	var path string
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]any{"code": 200, "data": "job-6"})
	}))
	t.Cleanup(srv.Close)

	store := &fakeStore{sequence: []domain.ImageJob{
		{Status: domain.ImageJobSucceeded, Results: []string{"z.png"}},
	}}

	gen := newGenerator(t, srv.URL, store, image.ModeTextToImage)

	_, err := gen.Generate(context.Background(), "涂鸦标题")
	require.NoError(t, err)

	assert.Equal(t, "/txt2img", path)
	prompt, _ := captured["prompt"].(string)
	assert.Contains(t, prompt, "涂鸦标题")
	assert.EqualValues(t, 1200, captured["width"])
	assert.EqualValues(t, 1600, captured["height"])
}
