// Package jobstore reads image-job status records from Redis.
//
// The creative platform owns the keyspace: it writes a JSON record per job as
// the job moves through its lifecycle. This service only ever reads.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/socialads/notegen/internal/domain"
	"github.com/socialads/notegen/internal/logger"
)

const keyPrefix = "image:job:"

// Store queries the job-status keyspace by job id.
type Store struct {
	client redis.UniversalClient
	logger logger.Logger
}

// NewStore creates a job-status store over the given Redis client.
func NewStore(client redis.UniversalClient, log logger.Logger) *Store {
	return &Store{client: client, logger: log}
}

// Key returns the Redis key holding the status record for a job.
func Key(jobID string) string {
	return keyPrefix + jobID
}

// Get returns the current status record for jobID. A missing key means the
// platform has not published the record yet; that is reported as a
// not-submitted job, not an error, so pollers keep waiting.
func (s *Store) Get(ctx context.Context, jobID string) (domain.ImageJob, error) {
	raw, err := s.client.Get(ctx, Key(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.ImageJob{ID: jobID, Status: domain.ImageJobNotSubmitted}, nil
	}
	if err != nil {
		return domain.ImageJob{}, fmt.Errorf("get image job %s: %w", jobID, err)
	}

	var job domain.ImageJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return domain.ImageJob{}, fmt.Errorf("decode image job %s: %w", jobID, err)
	}
	if job.ID == "" {
		job.ID = jobID
	}

	s.logger.Debug("image job status read",
		logger.String("job_id", jobID),
		logger.String("status", string(job.Status)),
	)

	return job, nil
}
