package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/socialads/notegen/internal/domain"
)

// TaskRepository persists generated tasks. It is the TaskSink of the pipeline.
type TaskRepository struct {
	db *sqlx.DB
}

// NewTaskRepository creates a repository over the bot_tasks table.
func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts the task with a fresh id and millisecond timestamps and
// returns the persisted record. Tasks are written exactly once and never
// mutated afterwards.
func (r *TaskRepository) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	task.ID = uuid.NewString()
	now := domain.NowMillis()
	task.CreateTimestamp = now
	task.UpdateTimestamp = now

	if task.Images == nil {
		task.Images = []string{}
	}
	if task.Topic == nil {
		task.Topic = []string{}
	}
	if task.Ext == nil {
		task.Ext = map[string]any{}
	}

	images, err := json.Marshal(task.Images)
	if err != nil {
		return nil, fmt.Errorf("marshal task images: %w", err)
	}
	topic, err := json.Marshal(task.Topic)
	if err != nil {
		return nil, fmt.Errorf("marshal task topic: %w", err)
	}
	ext, err := json.Marshal(task.Ext)
	if err != nil {
		return nil, fmt.Errorf("marshal task ext: %w", err)
	}

	query := `
		INSERT INTO bot_tasks
			(id, account_id, platform, phone_number, report_id, title,
			 images, content, ext, status, topic, create_timestamp, update_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.db.ExecContext(ctx, query,
		task.ID, task.AccountID, task.Platform, task.PhoneNumber, task.ReportID, task.Title,
		images, task.Content, ext, task.Status, topic, task.CreateTimestamp, task.UpdateTimestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	return task, nil
}
