package service

import (
	"context"
	"sync"

	"todosync/internal/models"
	"todosync/internal/repository"
)

// stubRepo is an in-memory repository.Repository with injectable failures
// for the conflict and duplicate-create paths.
type stubRepo struct {
	mu    sync.Mutex
	todos map[int64]models.Todo
	users map[string]models.User

	nextUserID int64

	saveConflicts   int // fail this many SaveTodo calls with ErrVersionConflict
	saveAttempts    int
	createUserErr   error
	createUserCalls int
	syncRuns        map[string]models.SyncRun
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		todos:    map[int64]models.Todo{},
		users:    map[string]models.User{},
		syncRuns: map[string]models.SyncRun{},
	}
}

func (s *stubRepo) InTx(ctx context.Context, fn func(r repository.Repository) error) error {
	return fn(s)
}

func (s *stubRepo) GetTodoByID(ctx context.Context, id int64) (*models.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.todos[id]; ok {
		copied := t
		return &copied, nil
	}
	return nil, nil
}

func (s *stubRepo) CreateTodo(ctx context.Context, item *models.Todo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.Version = 0
	s.todos[item.ID] = *item
	return nil
}

func (s *stubRepo) SaveTodo(ctx context.Context, item *models.Todo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveAttempts++
	if s.saveConflicts > 0 {
		s.saveConflicts--
		return repository.ErrVersionConflict
	}
	stored, ok := s.todos[item.ID]
	if !ok || stored.Version != item.Version {
		return repository.ErrVersionConflict
	}
	item.Version++
	s.todos[item.ID] = *item
	return nil
}

func (s *stubRepo) ListTodosByUserID(ctx context.Context, userID int64) ([]models.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []models.Todo
	for _, t := range s.todos {
		if t.UserID == userID {
			items = append(items, t)
		}
	}
	return items, nil
}

func (s *stubRepo) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[username]; ok {
		copied := u
		return &copied, nil
	}
	return nil, nil
}

func (s *stubRepo) CreateUser(ctx context.Context, item *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createUserCalls++
	if s.createUserErr != nil {
		err := s.createUserErr
		s.createUserErr = nil
		return err
	}
	if _, ok := s.users[item.Username]; ok {
		return repository.ErrDuplicateUsername
	}
	s.nextUserID++
	item.ID = s.nextUserID
	s.users[item.Username] = *item
	return nil
}

func (s *stubRepo) SaveSyncRun(ctx context.Context, run *models.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncRuns[run.BatchID] = *run
	return nil
}

func (s *stubRepo) GetSyncRun(ctx context.Context, batchID string) (*models.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.syncRuns[batchID]; ok {
		copied := r
		return &copied, nil
	}
	return nil, nil
}

func (s *stubRepo) ListSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var runs []models.SyncRun
	for _, r := range s.syncRuns {
		runs = append(runs, r)
	}
	return runs, nil
}
