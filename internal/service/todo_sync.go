package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"todosync/internal/client/placeholder"
	"todosync/internal/config"
	"todosync/internal/messaging"
	"todosync/internal/models"
	"todosync/internal/repository"
	"todosync/internal/worker"
)

// SyncActor stamps the audit fields of rows written by the synchronizer.
const SyncActor = "SYSTEM_SYNC"

// TodoSource is the external system the pipeline reconciles against.
// Implemented by placeholder.Client.
type TodoSource interface {
	FetchTodos(ctx context.Context) ([]placeholder.ExternalTodo, error)
	FetchUsers(ctx context.Context) (map[int64]string, error)
}

// ProgressNotifier is the live push surface the coordinators drive.
// Implemented by ws.Notifier.
type ProgressNotifier interface {
	SendNotificationToUser(ctx context.Context, userID string, msg messaging.NotificationMessage)
	SendTodoSyncUpdate(ctx context.Context, userID, batchID string, processed, total int)
	SendPdfProcessingUpdate(ctx context.Context, userID, taskID, status, message string)
}

// TodoSyncService reconciles external todo records against local storage
// and drives batch runs with durable events plus live progress pushes.
type TodoSyncService struct {
	Repo      repository.Repository
	Source    TodoSource
	Publisher messaging.Publisher
	Notifier  ProgressNotifier
	Pool      *worker.Pool
	Logger    *zap.Logger
	Config    config.SyncConfig

	// Sleep replaces the backoff/throttle waits in tests. Nil means a
	// context-aware real sleep.
	Sleep func(ctx context.Context, d time.Duration)
}

// SyncTodo reconciles one record. Each attempt runs in its own
// transaction, so a permanent failure here never rolls back sibling
// records. Only version conflicts are retried; every failure is contained
// (logged, record abandoned) rather than returned.
func (s *TodoSyncService) SyncTodo(ctx context.Context, rec placeholder.ExternalTodo, userMap map[int64]string) {
	username, ok := userMap[rec.UserID]
	if !ok || strings.TrimSpace(username) == "" {
		s.logWarn("unknown owner, record dropped",
			zap.Int64("todo_id", rec.ID),
			zap.Int64("external_user_id", rec.UserID))
		return
	}

	maxRetries := s.maxRetries()
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := s.Repo.InTx(ctx, func(r repository.Repository) error {
			user, err := s.findOrCreateUser(ctx, r, username)
			if err != nil {
				return err
			}
			return s.applyRecord(ctx, r, rec, user)
		})
		if err == nil {
			s.logDebug("todo synchronized", zap.Int64("todo_id", rec.ID))
			return
		}
		if errors.Is(err, repository.ErrVersionConflict) {
			s.logWarn("optimistic lock conflict",
				zap.Int64("todo_id", rec.ID),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", maxRetries))
			if attempt >= maxRetries {
				s.logError("todo sync abandoned after retries",
					zap.Int64("todo_id", rec.ID),
					zap.Int("attempts", maxRetries))
				return
			}
			s.pause(ctx, time.Duration(attempt)*s.backoffBase())
			continue
		}
		s.logError("todo sync failed",
			zap.Int64("todo_id", rec.ID),
			zap.Error(err))
		return
	}
}

func (s *TodoSyncService) applyRecord(ctx context.Context, r repository.Repository, rec placeholder.ExternalTodo, user *models.User) error {
	existing, err := r.GetTodoByID(ctx, rec.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		existing.Title = rec.Title
		existing.Completed = rec.Completed
		existing.UserID = user.ID
		existing.UpdatedBy = SyncActor
		return r.SaveTodo(ctx, existing)
	}
	return r.CreateTodo(ctx, &models.Todo{
		ID:        rec.ID, // keep the external id as the local id
		Title:     rec.Title,
		Completed: rec.Completed,
		UserID:    user.ID,
		CreatedBy: SyncActor,
	})
}

// findOrCreateUser resolves the owner by username, the durable join key
// (external ids are not stable across sources). A provisioned account is
// disabled and carries the disabled password marker, so it can never log
// in. A duplicate-create race collapses into a second lookup.
func (s *TodoSyncService) findOrCreateUser(ctx context.Context, r repository.Repository, username string) (*models.User, error) {
	existing, err := r.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	candidate := &models.User{
		Username: username,
		Email:    strings.ToLower(username) + "@placeholder.invalid",
		Password: models.DisabledPassword,
		Role:     models.RoleUser,
		Enabled:  false,
	}
	err = r.CreateUser(ctx, candidate)
	if errors.Is(err, repository.ErrDuplicateUsername) {
		return r.GetUserByUsername(ctx, username)
	}
	if err != nil {
		return nil, err
	}
	return candidate, nil
}

// SyncTodosBatch submits a batch run to the worker pool and returns its
// batch id immediately. Progress and the outcome are observable only
// through the todo-sync and notification channels.
func (s *TodoSyncService) SyncTodosBatch(ctx context.Context, userID string, todos []placeholder.ExternalTodo, userMap map[int64]string) (string, error) {
	batchID := uuid.NewString()
	s.saveRun(ctx, &models.SyncRun{
		BatchID:   batchID,
		UserID:    userID,
		Total:     len(todos),
		Status:    string(messaging.SyncStatusStarted),
		StartedAt: time.Now().UTC(),
	})

	_, err := s.Pool.Submit("todo-sync-batch", func(jobCtx context.Context) error {
		s.runBatch(jobCtx, userID, batchID, todos, userMap)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("submit sync batch: %w", err)
	}

	s.logInfo("batch sync accepted",
		zap.String("user_id", userID),
		zap.String("batch_id", batchID),
		zap.Int("total", len(todos)))
	return batchID, nil
}

func (s *TodoSyncService) runBatch(ctx context.Context, userID, batchID string, todos []placeholder.ExternalTodo, userMap map[int64]string) {
	total := len(todos)
	processed := 0

	s.Publisher.PublishTodoSync(ctx, messaging.NewSyncStarted(userID, batchID))
	s.Notifier.SendTodoSyncUpdate(ctx, userID, batchID, 0, total)

	chunkSize := s.chunkSize()
	progressEvery := s.progressEvery()

	for i := 0; i < total; i += chunkSize {
		if err := ctx.Err(); err != nil {
			s.failBatch(ctx, userID, batchID, total, processed, err)
			return
		}
		end := i + chunkSize
		if end > total {
			end = total
		}
		for _, rec := range todos[i:end] {
			s.SyncTodo(ctx, rec, userMap)
			processed++
			if processed%progressEvery == 0 {
				s.Notifier.SendTodoSyncUpdate(ctx, userID, batchID, processed, total)
			}
		}
		// Throttle between chunks to bound storage load on large runs.
		s.pause(ctx, s.chunkPause())
	}

	s.Publisher.PublishTodoSync(ctx, messaging.TodoSyncMessage{
		UserID:         userID,
		Action:         messaging.SyncActionCompleteSync,
		BatchID:        batchID,
		TotalTodos:     total,
		ProcessedTodos: processed,
		Status:         messaging.SyncStatusCompleted,
		Timestamp:      time.Now().UTC(),
	})
	s.Notifier.SendTodoSyncUpdate(ctx, userID, batchID, processed, total)
	s.Publisher.PublishNotification(ctx, messaging.NewNotificationWithData(
		userID,
		messaging.NotificationSyncCompleted,
		"Synchronization Complete",
		fmt.Sprintf("Successfully synchronized %d/%d todos", processed, total),
		messaging.TodoSyncUpdate{BatchID: batchID, Processed: processed, Total: total},
	))

	s.finishRun(ctx, batchID, userID, total, processed, messaging.SyncStatusCompleted, nil)
	s.logInfo("batch sync completed",
		zap.String("user_id", userID),
		zap.String("batch_id", batchID),
		zap.Int("processed", processed),
		zap.Int("total", total))
}

func (s *TodoSyncService) failBatch(ctx context.Context, userID, batchID string, total, processed int, cause error) {
	s.Publisher.PublishTodoSync(ctx, messaging.TodoSyncMessage{
		UserID:         userID,
		Action:         messaging.SyncActionCompleteSync,
		BatchID:        batchID,
		TotalTodos:     total,
		ProcessedTodos: processed,
		Status:         messaging.SyncStatusFailed,
		ErrorMessage:   cause.Error(),
		Timestamp:      time.Now().UTC(),
	})
	s.Publisher.PublishNotification(ctx, messaging.NewNotification(
		userID,
		messaging.NotificationSyncFailed,
		"Synchronization Failed",
		"An error occurred during todo synchronization: "+cause.Error(),
	))
	s.finishRun(ctx, batchID, userID, total, processed, messaging.SyncStatusFailed, cause)
	s.logError("batch sync failed",
		zap.String("user_id", userID),
		zap.String("batch_id", batchID),
		zap.Error(cause))
}

// RunFullSync fetches the source and launches a batch over everything it
// returned. A failed fetch is a fatal run failure: the batch never starts
// and the initiator sees FAILED on the notification channels.
func (s *TodoSyncService) RunFullSync(ctx context.Context, userID string) (string, error) {
	todos, err := s.Source.FetchTodos(ctx)
	if err == nil {
		var userMap map[int64]string
		userMap, err = s.Source.FetchUsers(ctx)
		if err == nil {
			return s.SyncTodosBatch(ctx, userID, todos, userMap)
		}
	}

	batchID := uuid.NewString()
	s.failBatch(ctx, userID, batchID, 0, 0, err)
	return "", fmt.Errorf("fetch from source: %w", err)
}

func (s *TodoSyncService) saveRun(ctx context.Context, run *models.SyncRun) {
	if s.Repo == nil {
		return
	}
	if err := s.Repo.SaveSyncRun(ctx, run); err != nil {
		s.logWarn("sync run save failed",
			zap.String("batch_id", run.BatchID),
			zap.Error(err))
	}
}

func (s *TodoSyncService) finishRun(ctx context.Context, batchID, userID string, total, processed int, status messaging.SyncStatus, cause error) {
	now := time.Now().UTC()
	run := &models.SyncRun{
		BatchID:    batchID,
		UserID:     userID,
		Total:      total,
		Processed:  processed,
		Status:     string(status),
		FinishedAt: &now,
	}
	if cause != nil {
		msg := cause.Error()
		run.LastError = &msg
	}
	if stats, err := json.Marshal(map[string]int{"total": total, "processed": processed}); err == nil {
		run.StatsJSON = stats
	}
	s.saveRun(ctx, run)
}

func (s *TodoSyncService) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	if s.Sleep != nil {
		s.Sleep(ctx, d)
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (s *TodoSyncService) maxRetries() int {
	if s.Config.MaxRetries > 0 {
		return s.Config.MaxRetries
	}
	return 3
}

func (s *TodoSyncService) backoffBase() time.Duration {
	if s.Config.RetryBackoffBase > 0 {
		return s.Config.RetryBackoffBase
	}
	return 100 * time.Millisecond
}

func (s *TodoSyncService) chunkSize() int {
	if s.Config.ChunkSize > 0 {
		return s.Config.ChunkSize
	}
	return 10
}

func (s *TodoSyncService) progressEvery() int {
	if s.Config.ProgressEvery > 0 {
		return s.Config.ProgressEvery
	}
	return 5
}

func (s *TodoSyncService) chunkPause() time.Duration {
	if s.Config.ChunkPause > 0 {
		return s.Config.ChunkPause
	}
	return 100 * time.Millisecond
}

func (s *TodoSyncService) logDebug(msg string, fields ...zap.Field) {
	if s.Logger != nil {
		s.Logger.Debug(msg, fields...)
	}
}

func (s *TodoSyncService) logInfo(msg string, fields ...zap.Field) {
	if s.Logger != nil {
		s.Logger.Info(msg, fields...)
	}
}

func (s *TodoSyncService) logWarn(msg string, fields ...zap.Field) {
	if s.Logger != nil {
		s.Logger.Warn(msg, fields...)
	}
}

func (s *TodoSyncService) logError(msg string, fields ...zap.Field) {
	if s.Logger != nil {
		s.Logger.Error(msg, fields...)
	}
}
