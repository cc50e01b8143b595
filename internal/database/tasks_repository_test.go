package database_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/socialads/notegen/internal/database"
	"github.com/socialads/notegen/internal/domain"
)

func TestTaskRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewTaskRepository(db)

	mock.ExpectExec("INSERT INTO bot_tasks").
		WillReturnResult(sqlmock.NewResult(0, 1))

	task := &domain.Task{
		AccountID:   "acct-1",
		Platform:    "xhs",
		PhoneNumber: "13800000000",
		Title:       "标题",
		Images:      []string{"https://assets.example.com/x.png"},
		Content:     "正文\n\n\n推广段落",
		Topic:       []string{"买车", "验车"},
	}

	created, err := repo.Create(context.Background(), task)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == "" {
		t.Error("Create() did not assign an id")
	}
	if created.CreateTimestamp == 0 || created.UpdateTimestamp == 0 {
		t.Error("Create() did not assign timestamps")
	}
	if created.CreateTimestamp != created.UpdateTimestamp {
		t.Error("create and update timestamps should match on insert")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestTaskRepository_Create_DefaultsNilCollections(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewTaskRepository(db)

	mock.ExpectExec("INSERT INTO bot_tasks").
		WillReturnResult(sqlmock.NewResult(0, 1))

	task := &domain.Task{AccountID: "acct-1", Platform: "toutiao", PhoneNumber: "13800000000"}

	created, err := repo.Create(context.Background(), task)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.Images == nil || created.Topic == nil || created.Ext == nil {
		t.Error("nil collections should be defaulted before insert")
	}
}

func TestTaskRepository_Create_DatabaseError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewTaskRepository(db)

	mock.ExpectExec("INSERT INTO bot_tasks").
		WillReturnError(sql.ErrConnDone)

	_, err := repo.Create(context.Background(), &domain.Task{AccountID: "a", Platform: "xhs"})
	if err == nil {
		t.Fatal("Create() expected error, got nil")
	}
}

func TestSeedRepository_FilterUsed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewSeedRepository(db)

	mock.ExpectQuery("SELECT title FROM used_seeds").
		WillReturnRows(sqlmock.NewRows([]string{"title"}).AddRow("已用标题"))

	used, err := repo.FilterUsed(context.Background(), []string{"已用标题", "新标题"})
	if err != nil {
		t.Fatalf("FilterUsed() error = %v", err)
	}
	if !used["已用标题"] {
		t.Error("expected 已用标题 to be reported used")
	}
	if used["新标题"] {
		t.Error("did not expect 新标题 to be reported used")
	}
}

func TestSeedRepository_FilterUsed_EmptyInput(t *testing.T) {
	db, _ := newMockDB(t)
	repo := database.NewSeedRepository(db)

	used, err := repo.FilterUsed(context.Background(), nil)
	if err != nil {
		t.Fatalf("FilterUsed() error = %v", err)
	}
	if len(used) != 0 {
		t.Errorf("FilterUsed() = %v, want empty map", used)
	}
}

func TestSeedRepository_MarkUsed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewSeedRepository(db)

	mock.ExpectExec("INSERT INTO used_seeds").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkUsed(context.Background(), "某标题"); err != nil {
		t.Fatalf("MarkUsed() error = %v", err)
	}

	// Conflict path: zero rows affected is still success.
	mock.ExpectExec("INSERT INTO used_seeds").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.MarkUsed(context.Background(), "某标题"); err != nil {
		t.Fatalf("MarkUsed() second call error = %v", err)
	}
}
