package gormrepository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"todosync/internal/models"
	"todosync/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(r repository.Repository) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// --- todos ------------------------------------------------------------------

func (s *Store) GetTodoByID(ctx context.Context, id int64) (*models.Todo, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Todo
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateTodo(ctx context.Context, item *models.Todo) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	item.Version = 0
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) SaveTodo(ctx context.Context, item *models.Todo) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&models.Todo{}).
		Where("id = ? AND version = ?", item.ID, item.Version).
		Updates(map[string]any{
			"title":      item.Title,
			"completed":  item.Completed,
			"user_id":    item.UserID,
			"updated_by": item.UpdatedBy,
			"updated_at": now,
			"version":    gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrVersionConflict
	}
	item.Version++
	item.UpdatedAt = now
	return nil
}

func (s *Store) ListTodosByUserID(ctx context.Context, userID int64) ([]models.Todo, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Todo
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- users ------------------------------------------------------------------

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.User
	err := s.db.WithContext(ctx).First(&item, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateUser(ctx context.Context, item *models.User) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	err := s.db.WithContext(ctx).Create(item).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return repository.ErrDuplicateUsername
	}
	return err
}

// --- sync runs --------------------------------------------------------------

func (s *Store) SaveSyncRun(ctx context.Context, run *models.SyncRun) error {
	if s == nil || s.db == nil || run == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "batch_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total",
			"processed",
			"status",
			"last_error",
			"stats_json",
			"finished_at",
		}),
	}).Create(run).Error
}

func (s *Store) GetSyncRun(ctx context.Context, batchID string) (*models.SyncRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var run models.SyncRun
	err := s.db.WithContext(ctx).First(&run, "batch_id = ?", batchID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *Store) ListSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var runs []models.SyncRun
	if err := s.db.WithContext(ctx).
		Order("started_at desc").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
