package repository

import (
	"context"
	"errors"

	"todosync/internal/models"
)

// Error kinds the sync pipeline branches on. Lookups that find nothing
// return (nil, nil); only genuine failures surface as errors.
var (
	// ErrVersionConflict reports that a concurrent writer advanced the row
	// between this writer's read and its version-checked update.
	ErrVersionConflict = errors.New("optimistic version conflict")

	// ErrDuplicateUsername reports a unique-constraint violation on
	// users.username. Callers treat a duplicate create as a lookup retry.
	ErrDuplicateUsername = errors.New("duplicate username")
)

type Repository interface {
	// InTx runs fn against a transaction-bound repository. The transaction
	// commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(r Repository) error) error

	GetTodoByID(ctx context.Context, id int64) (*models.Todo, error)
	CreateTodo(ctx context.Context, item *models.Todo) error
	// SaveTodo performs a version-checked update. It increments the row's
	// version and returns ErrVersionConflict when the stored version no
	// longer matches item.Version.
	SaveTodo(ctx context.Context, item *models.Todo) error
	ListTodosByUserID(ctx context.Context, userID int64) ([]models.Todo, error)

	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, item *models.User) error

	SaveSyncRun(ctx context.Context, run *models.SyncRun) error
	GetSyncRun(ctx context.Context, batchID string) (*models.SyncRun, error)
	ListSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error)
}
