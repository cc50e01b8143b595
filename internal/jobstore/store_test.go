package jobstore_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialads/notegen/internal/domain"
	"github.com/socialads/notegen/internal/jobstore"
	"github.com/socialads/notegen/internal/logger"
)

func newTestStore(t *testing.T) (*jobstore.Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return jobstore.NewStore(client, logger.NewNopLogger()), mr
}

func TestGet_SucceededJob(t *testing.T) {
	store, mr := newTestStore(t)

	mr.Set(jobstore.Key("job-1"), `{"taskGroupId":"job-1","status":"succeeded","results":["x.png"]}`)

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ImageJobSucceeded, job.Status)
	assert.Equal(t, []string{"x.png"}, job.Results)
	assert.True(t, job.Status.Terminal())
}

func TestGet_MissingKeyMeansNotSubmitted(t *testing.T) {
	store, _ := newTestStore(t)

	job, err := store.Get(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, domain.ImageJobNotSubmitted, job.Status)
	assert.Equal(t, "unknown", job.ID)
	assert.False(t, job.Status.Terminal())
}

func TestGet_FillsMissingID(t *testing.T) {
	store, mr := newTestStore(t)

	mr.Set(jobstore.Key("job-2"), `{"status":"running"}`)

	job, err := store.Get(context.Background(), "job-2")
	require.NoError(t, err)
	assert.Equal(t, "job-2", job.ID)
	assert.Equal(t, domain.ImageJobRunning, job.Status)
}

func TestGet_MalformedRecord(t *testing.T) {
	store, mr := newTestStore(t)

	mr.Set(jobstore.Key("job-3"), "not json")

	_, err := store.Get(context.Background(), "job-3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode image job")
}
