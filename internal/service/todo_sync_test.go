package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"todosync/internal/client/placeholder"
	"todosync/internal/messaging"
	"todosync/internal/models"
	"todosync/internal/repository"
	"todosync/internal/worker"
)

type recordingPublisher struct {
	mu            sync.Mutex
	syncMessages  []messaging.TodoSyncMessage
	pdfMessages   []messaging.PdfProcessingMessage
	notifications []messaging.NotificationMessage
}

func (p *recordingPublisher) PublishPdfProcessing(ctx context.Context, msg messaging.PdfProcessingMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pdfMessages = append(p.pdfMessages, msg)
}

func (p *recordingPublisher) PublishTodoSync(ctx context.Context, msg messaging.TodoSyncMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.syncMessages = append(p.syncMessages, msg)
}

func (p *recordingPublisher) PublishNotification(ctx context.Context, msg messaging.NotificationMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifications = append(p.notifications, msg)
}

type progressPush struct {
	userID    string
	batchID   string
	processed int
	total     int
}

type recordingNotifier struct {
	mu            sync.Mutex
	syncUpdates   []progressPush
	pdfUpdates    []string
	notifications []messaging.NotificationMessage
}

func (n *recordingNotifier) SendNotificationToUser(ctx context.Context, userID string, msg messaging.NotificationMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, msg)
}

func (n *recordingNotifier) SendTodoSyncUpdate(ctx context.Context, userID, batchID string, processed, total int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.syncUpdates = append(n.syncUpdates, progressPush{userID: userID, batchID: batchID, processed: processed, total: total})
}

func (n *recordingNotifier) SendPdfProcessingUpdate(ctx context.Context, userID, taskID, status, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pdfUpdates = append(n.pdfUpdates, status)
}

type stubSource struct {
	todos    []placeholder.ExternalTodo
	users    map[int64]string
	todosErr error
	usersErr error
}

func (s *stubSource) FetchTodos(ctx context.Context) ([]placeholder.ExternalTodo, error) {
	return s.todos, s.todosErr
}

func (s *stubSource) FetchUsers(ctx context.Context) (map[int64]string, error) {
	return s.users, s.usersErr
}

func newTestService(repo *stubRepo) (*TodoSyncService, *recordingPublisher, *recordingNotifier, *[]time.Duration) {
	pub := &recordingPublisher{}
	not := &recordingNotifier{}
	var sleeps []time.Duration
	svc := &TodoSyncService{
		Repo:      repo,
		Publisher: pub,
		Notifier:  not,
		Sleep: func(ctx context.Context, d time.Duration) {
			sleeps = append(sleeps, d)
		},
	}
	return svc, pub, not, &sleeps
}

func TestSyncTodoCreatesTodoAndProvisionsUser(t *testing.T) {
	repo := newStubRepo()
	svc, _, _, _ := newTestService(repo)

	rec := placeholder.ExternalTodo{ID: 42, UserID: 7, Title: "buy milk", Completed: false}
	svc.SyncTodo(context.Background(), rec, map[int64]string{7: "Antonette"})

	todo := repo.todos[42]
	if todo.Title != "buy milk" || todo.CreatedBy != SyncActor {
		t.Fatalf("unexpected todo: %+v", todo)
	}
	user, ok := repo.users["Antonette"]
	if !ok {
		t.Fatalf("user not provisioned")
	}
	if user.Enabled {
		t.Fatalf("provisioned user must be disabled")
	}
	if user.Password != "$disabled$" {
		t.Fatalf("provisioned user must carry the disabled password marker, got %q", user.Password)
	}
	if user.Email != "antonette@placeholder.invalid" {
		t.Fatalf("unexpected provisioned email %q", user.Email)
	}
	if todo.UserID != user.ID {
		t.Fatalf("todo not attributed to provisioned user")
	}
}

func TestSyncTodoUpdatesExisting(t *testing.T) {
	repo := newStubRepo()
	svc, _, _, _ := newTestService(repo)
	rec := placeholder.ExternalTodo{ID: 1, UserID: 7, Title: "v1", Completed: false}
	userMap := map[int64]string{7: "Antonette"}

	svc.SyncTodo(context.Background(), rec, userMap)
	rec.Title = "v2"
	rec.Completed = true
	svc.SyncTodo(context.Background(), rec, userMap)

	if len(repo.todos) != 1 {
		t.Fatalf("expected one todo, got %d", len(repo.todos))
	}
	todo := repo.todos[1]
	if todo.Title != "v2" || !todo.Completed {
		t.Fatalf("update not applied: %+v", todo)
	}
	if todo.UpdatedBy != SyncActor {
		t.Fatalf("expected updated_by %q, got %q", SyncActor, todo.UpdatedBy)
	}
	if todo.Version != 1 {
		t.Fatalf("expected version 1 after one update, got %d", todo.Version)
	}
}

func TestSyncTodoIdempotentAcrossRuns(t *testing.T) {
	repo := newStubRepo()
	svc, _, _, _ := newTestService(repo)
	rec := placeholder.ExternalTodo{ID: 9, UserID: 3, Title: "same", Completed: true}
	userMap := map[int64]string{3: "Samantha"}

	svc.SyncTodo(context.Background(), rec, userMap)
	svc.SyncTodo(context.Background(), rec, userMap)
	svc.SyncTodo(context.Background(), rec, userMap)

	if len(repo.todos) != 1 {
		t.Fatalf("repeated runs must not duplicate todos, got %d", len(repo.todos))
	}
	if len(repo.users) != 1 {
		t.Fatalf("repeated runs must not duplicate users, got %d", len(repo.users))
	}
}

func TestSyncTodoUnknownOwnerDropsRecord(t *testing.T) {
	repo := newStubRepo()
	svc, _, _, sleeps := newTestService(repo)

	svc.SyncTodo(context.Background(), placeholder.ExternalTodo{ID: 5, UserID: 99, Title: "orphan"}, map[int64]string{7: "Antonette"})

	if len(repo.todos) != 0 || len(repo.users) != 0 {
		t.Fatalf("unknown owner must cause no mutation: todos=%d users=%d", len(repo.todos), len(repo.users))
	}
	if len(*sleeps) != 0 {
		t.Fatalf("unknown owner must not retry")
	}
}

func TestSyncTodoRetriesVersionConflict(t *testing.T) {
	repo := newStubRepo()
	repo.users["Antonette"] = userFixture(1, "Antonette")
	repo.todos[10] = todoFixture(10, 1, "old")
	repo.saveConflicts = 2

	svc, _, _, sleeps := newTestService(repo)
	svc.SyncTodo(context.Background(), placeholder.ExternalTodo{ID: 10, UserID: 7, Title: "new"}, map[int64]string{7: "Antonette"})

	if repo.saveAttempts != 3 {
		t.Fatalf("expected 3 save attempts, got %d", repo.saveAttempts)
	}
	if got := repo.todos[10].Title; got != "new" {
		t.Fatalf("third attempt should persist, got title %q", got)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(*sleeps) != len(want) {
		t.Fatalf("expected %d backoff sleeps, got %d", len(want), len(*sleeps))
	}
	for i, d := range want {
		if (*sleeps)[i] != d {
			t.Fatalf("backoff %d: expected %v, got %v", i, d, (*sleeps)[i])
		}
	}
}

func TestSyncTodoAbandonsAfterRetryBudget(t *testing.T) {
	repo := newStubRepo()
	repo.users["Antonette"] = userFixture(1, "Antonette")
	repo.todos[10] = todoFixture(10, 1, "old")
	repo.saveConflicts = 3

	svc, _, _, _ := newTestService(repo)
	svc.SyncTodo(context.Background(), placeholder.ExternalTodo{ID: 10, UserID: 7, Title: "new"}, map[int64]string{7: "Antonette"})

	if repo.saveAttempts != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", repo.saveAttempts)
	}
	if got := repo.todos[10].Title; got != "old" {
		t.Fatalf("exhausted retries must leave row untouched, got title %q", got)
	}
}

func TestFindOrCreateUserDuplicateRaceFallsBackToLookup(t *testing.T) {
	repo := newStubRepo()
	repo.users["Antonette"] = userFixture(5, "Antonette")
	repo.createUserErr = repository.ErrDuplicateUsername

	svc, _, _, _ := newTestService(repo)
	// Force the create path even though the user exists, simulating a
	// concurrent insert between lookup and create.
	user, err := svc.findOrCreateUser(context.Background(), &raceRepo{stubRepo: repo}, "Antonette")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user == nil || user.ID != 5 {
		t.Fatalf("expected lookup fallback to find user 5, got %+v", user)
	}
}

func TestRunBatchTwentyThreeRecords(t *testing.T) {
	repo := newStubRepo()
	svc, pub, not, _ := newTestService(repo)

	userMap := map[int64]string{1: "Bret"}
	var todos []placeholder.ExternalTodo
	for i := 1; i <= 23; i++ {
		todos = append(todos, placeholder.ExternalTodo{ID: int64(i), UserID: 1, Title: fmt.Sprintf("todo %d", i)})
	}

	svc.runBatch(context.Background(), "u1", "batch-1", todos, userMap)

	if len(pub.syncMessages) != 2 {
		t.Fatalf("expected STARTED and COMPLETED events, got %d", len(pub.syncMessages))
	}
	if pub.syncMessages[0].Status != messaging.SyncStatusStarted {
		t.Fatalf("first event must be STARTED, got %s", pub.syncMessages[0].Status)
	}
	completed := pub.syncMessages[1]
	if completed.Status != messaging.SyncStatusCompleted || completed.ProcessedTodos != 23 || completed.TotalTodos != 23 {
		t.Fatalf("unexpected terminal event: %+v", completed)
	}

	// Initial 0/23, cumulative 5/10/15/20, final 23/23.
	wantCounts := []int{0, 5, 10, 15, 20, 23}
	if len(not.syncUpdates) != len(wantCounts) {
		t.Fatalf("expected %d progress pushes, got %d (%+v)", len(wantCounts), len(not.syncUpdates), not.syncUpdates)
	}
	for i, want := range wantCounts {
		if not.syncUpdates[i].processed != want || not.syncUpdates[i].total != 23 {
			t.Fatalf("push %d: expected %d/23, got %d/%d", i, want, not.syncUpdates[i].processed, not.syncUpdates[i].total)
		}
	}

	if len(pub.notifications) != 1 {
		t.Fatalf("expected one completion notification, got %d", len(pub.notifications))
	}
	n := pub.notifications[0]
	if n.Type != messaging.NotificationSyncCompleted || n.Title != "Synchronization Complete" {
		t.Fatalf("unexpected completion notification: %+v", n)
	}
	if len(repo.todos) != 23 {
		t.Fatalf("expected 23 todos persisted, got %d", len(repo.todos))
	}
}

func TestRunFullSyncFetchFailureNeverStartsBatch(t *testing.T) {
	repo := newStubRepo()
	svc, pub, _, _ := newTestService(repo)
	svc.Source = &stubSource{todosErr: errors.New("source down")}

	_, err := svc.RunFullSync(context.Background(), "u1")
	if err == nil {
		t.Fatalf("expected an error for failed fetch")
	}

	for _, msg := range pub.syncMessages {
		if msg.Status == messaging.SyncStatusStarted {
			t.Fatalf("STARTED must never be emitted for a failed fetch")
		}
	}
	if len(pub.syncMessages) != 1 || pub.syncMessages[0].Status != messaging.SyncStatusFailed {
		t.Fatalf("expected exactly one FAILED event, got %+v", pub.syncMessages)
	}
	if len(pub.notifications) != 1 || pub.notifications[0].Type != messaging.NotificationSyncFailed {
		t.Fatalf("expected a failure notification, got %+v", pub.notifications)
	}
}

func TestSyncTodosBatchReturnsImmediatelyWithBatchID(t *testing.T) {
	repo := newStubRepo()
	svc, pub, _, _ := newTestService(repo)
	svc.Pool = newTestPool(t)

	userMap := map[int64]string{1: "Bret"}
	todos := []placeholder.ExternalTodo{{ID: 1, UserID: 1, Title: "a"}}

	batchID, err := svc.SyncTodosBatch(context.Background(), "u1", todos, userMap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batchID == "" {
		t.Fatalf("expected a batch id")
	}

	waitFor(t, func() bool {
		run, err := repo.GetSyncRun(context.Background(), batchID)
		return err == nil && run != nil && run.Status == string(messaging.SyncStatusCompleted)
	})

	run, err := repo.GetSyncRun(context.Background(), batchID)
	if err != nil || run == nil {
		t.Fatalf("expected persisted run for %s: %v", batchID, err)
	}
	if run.Processed != 1 || run.Total != 1 {
		t.Fatalf("unexpected run state: %+v", run)
	}
	if len(pub.syncMessages) != 2 {
		t.Fatalf("expected STARTED and COMPLETED events, got %d", len(pub.syncMessages))
	}
}

// raceRepo reports no user on the first lookup so the create path runs,
// then delegates to the underlying stub.
type raceRepo struct {
	*stubRepo
	looked bool
}

func (r *raceRepo) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	if !r.looked {
		r.looked = true
		return nil, nil
	}
	return r.stubRepo.GetUserByUsername(ctx, username)
}

func userFixture(id int64, username string) models.User {
	return models.User{
		ID:       id,
		Username: username,
		Email:    strings.ToLower(username) + "@placeholder.invalid",
		Password: models.DisabledPassword,
		Role:     models.RoleUser,
	}
}

func todoFixture(id, userID int64, title string) models.Todo {
	return models.Todo{ID: id, UserID: userID, Title: title, CreatedBy: SyncActor}
}

func newTestPool(t *testing.T) *worker.Pool {
	t.Helper()
	pool := worker.New(2, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Shutdown(ctx)
	})
	return pool
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
