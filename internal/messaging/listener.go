package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// PushDispatcher is the live push channel the listener re-drives.
// Implemented by ws.Notifier.
type PushDispatcher interface {
	SendNotificationToUser(ctx context.Context, userID string, msg NotificationMessage)
	SendNotificationToTopic(ctx context.Context, topic string, msg NotificationMessage)
	SendPdfProcessingUpdate(ctx context.Context, userID, taskID, status, message string)
}

// Event is one durable entry as read back from a stream.
type Event struct {
	Stream  string
	EntryID string
	Key     string
	Payload []byte
}

// Handler processes one event. Returning nil acknowledges the entry;
// returning an error leaves it pending for redelivery, so handlers must
// be idempotent.
type Handler func(ctx context.Context, ev Event) error

// Listener holds the per-stream handlers completing the at-least-once
// loop: durable log back into live pushes.
type Listener struct {
	Push   PushDispatcher
	Logger *zap.Logger
}

// HandlePdfProcessing re-pushes progress for in-flight tasks. Terminal
// states only log: the coordinator already pushed those directly.
func (l *Listener) HandlePdfProcessing(ctx context.Context, ev Event) error {
	var msg PdfProcessingMessage
	if err := json.Unmarshal(ev.Payload, &msg); err != nil {
		return fmt.Errorf("decode pdf-processing event %s: %w", ev.EntryID, err)
	}

	switch msg.Status {
	case ProcessingStatusPending:
		l.logInfo("pdf task pending", zap.String("task_id", msg.TaskID))
	case ProcessingStatusProcessing:
		l.logInfo("pdf task in progress", zap.String("task_id", msg.TaskID))
		if l.Push != nil {
			l.Push.SendPdfProcessingUpdate(ctx, msg.UserID, msg.TaskID,
				string(ProcessingStatusProcessing), "PDF generation in progress...")
		}
	case ProcessingStatusCompleted:
		l.logInfo("pdf task completed", zap.String("task_id", msg.TaskID))
	case ProcessingStatusFailed:
		l.logError("pdf task failed",
			zap.String("task_id", msg.TaskID),
			zap.String("error", msg.ErrorMessage))
	default:
		l.logInfo("pdf task in unrecognized status",
			zap.String("task_id", msg.TaskID),
			zap.String("status", string(msg.Status)))
	}
	return nil
}

// HandleTodoSync observes batch lifecycle transitions. It never pushes:
// the coordinator drives progress pushes itself. The handler exists so a
// process without the in-memory coordinator can still watch sync outcomes.
func (l *Listener) HandleTodoSync(ctx context.Context, ev Event) error {
	var msg TodoSyncMessage
	if err := json.Unmarshal(ev.Payload, &msg); err != nil {
		return fmt.Errorf("decode todo-sync event %s: %w", ev.EntryID, err)
	}

	switch msg.Status {
	case SyncStatusStarted:
		l.logInfo("sync batch started",
			zap.String("batch_id", msg.BatchID),
			zap.String("user_id", msg.UserID))
	case SyncStatusInProgress:
		l.logInfo("sync batch in progress",
			zap.String("batch_id", msg.BatchID),
			zap.Int("processed", msg.ProcessedTodos),
			zap.Int("total", msg.TotalTodos))
	case SyncStatusCompleted:
		l.logInfo("sync batch completed",
			zap.String("batch_id", msg.BatchID),
			zap.String("user_id", msg.UserID))
	case SyncStatusFailed:
		l.logError("sync batch failed",
			zap.String("batch_id", msg.BatchID),
			zap.String("user_id", msg.UserID),
			zap.String("error", msg.ErrorMessage))
	default:
		l.logInfo("sync batch in unrecognized status",
			zap.String("batch_id", msg.BatchID),
			zap.String("status", string(msg.Status)))
	}
	return nil
}

// HandleNotification always re-pushes the envelope to its addressed user;
// system notifications additionally broadcast to the system topic.
func (l *Listener) HandleNotification(ctx context.Context, ev Event) error {
	var msg NotificationMessage
	if err := json.Unmarshal(ev.Payload, &msg); err != nil {
		return fmt.Errorf("decode notification event %s: %w", ev.EntryID, err)
	}

	if l.Push != nil {
		l.Push.SendNotificationToUser(ctx, msg.UserID, msg)
		if msg.Type == NotificationSystem {
			l.Push.SendNotificationToTopic(ctx, "system", msg)
		}
	}
	l.logInfo("notification delivered",
		zap.String("user_id", msg.UserID),
		zap.String("type", string(msg.Type)))
	return nil
}

func (l *Listener) logInfo(msg string, fields ...zap.Field) {
	if l != nil && l.Logger != nil {
		l.Logger.Info(msg, fields...)
	}
}

func (l *Listener) logError(msg string, fields ...zap.Field) {
	if l != nil && l.Logger != nil {
		l.Logger.Error(msg, fields...)
	}
}
