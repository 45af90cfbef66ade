package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"todosync/internal/messaging"
)

// TopicSystem is the only broadcast destination; everything else is
// addressed to a single user.
const TopicSystem = "system"

// Notifier is the push dispatcher. Every send is best-effort: transport
// failures are logged and swallowed so a disconnected user never aborts
// the workflow that triggered the notification.
type Notifier struct {
	Hub    *Hub
	Logger *zap.Logger
}

func (n *Notifier) SendNotificationToUser(ctx context.Context, userID string, msg messaging.NotificationMessage) {
	if n == nil || n.Hub == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		n.logSendError("user", userID, err)
		return
	}
	if err := n.Hub.SendToUser(ctx, userID, payload); err != nil {
		n.logSendError("user", userID, err)
		return
	}
	if n.Logger != nil {
		n.Logger.Debug("notification pushed",
			zap.String("user_id", userID),
			zap.String("type", string(msg.Type)),
			zap.String("title", msg.Title))
	}
}

func (n *Notifier) SendNotificationToTopic(ctx context.Context, topic string, msg messaging.NotificationMessage) {
	if n == nil || n.Hub == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		n.logSendError("topic", topic, err)
		return
	}
	if err := n.Hub.SendToTopic(ctx, topic, payload); err != nil {
		n.logSendError("topic", topic, err)
	}
}

// SendPdfProcessingUpdate pushes a document-progress notification with a
// structured task payload.
func (n *Notifier) SendPdfProcessingUpdate(ctx context.Context, userID, taskID, status, message string) {
	msg := messaging.NewNotificationWithData(
		userID,
		messaging.NotificationPdfProcessingCompleted,
		"PDF Processing Update",
		message,
		messaging.PdfProcessingUpdate{TaskID: taskID, Status: status},
	)
	n.SendNotificationToUser(ctx, userID, msg)
}

// SendTodoSyncUpdate pushes a sync-progress notification with the running
// processed/total counts.
func (n *Notifier) SendTodoSyncUpdate(ctx context.Context, userID, batchID string, processed, total int) {
	msg := messaging.NewNotificationWithData(
		userID,
		messaging.NotificationSyncCompleted,
		"Todo Sync Progress",
		fmt.Sprintf("Synchronized %d/%d todos", processed, total),
		messaging.TodoSyncUpdate{BatchID: batchID, Processed: processed, Total: total},
	)
	n.SendNotificationToUser(ctx, userID, msg)
}

func (n *Notifier) logSendError(kind, target string, err error) {
	if n.Logger == nil {
		return
	}
	n.Logger.Error("push delivery failed",
		zap.String(kind, target),
		zap.Error(err))
}
