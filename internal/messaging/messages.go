// Package messaging carries the durable event contract: typed messages,
// the stream publisher, and the consumer that replays events into live
// push notifications.
package messaging

import (
	"time"
)

// Stream (channel) names and their consumer groups. Entries on one stream
// preserve publish order; there is no cross-stream guarantee.
const (
	StreamPdfProcessing = "pdf-processing"
	StreamTodoSync      = "todo-sync"
	StreamNotification  = "notification"

	GroupPdfProcessing = "pdf-processing-group"
	GroupTodoSync      = "todo-sync-group"
	GroupNotification  = "notification-group"
)

type SyncAction string

const (
	SyncActionFetchFromSource  SyncAction = "FETCH_FROM_SOURCE"
	SyncActionUpdateLocalTodos SyncAction = "UPDATE_LOCAL_TODOS"
	SyncActionCompleteSync     SyncAction = "COMPLETE_SYNC"
)

type SyncStatus string

const (
	SyncStatusStarted    SyncStatus = "STARTED"
	SyncStatusInProgress SyncStatus = "IN_PROGRESS"
	SyncStatusCompleted  SyncStatus = "COMPLETED"
	SyncStatusFailed     SyncStatus = "FAILED"
)

// TodoSyncMessage is the lifecycle event of one batch synchronization.
// Partition key on the todo-sync stream is UserID.
type TodoSyncMessage struct {
	UserID         string     `json:"user_id"`
	Action         SyncAction `json:"action"`
	BatchID        string     `json:"batch_id"`
	TotalTodos     int        `json:"total_todos"`
	ProcessedTodos int        `json:"processed_todos"`
	Status         SyncStatus `json:"status"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}

func NewSyncStarted(userID, batchID string) TodoSyncMessage {
	return TodoSyncMessage{
		UserID:    userID,
		Action:    SyncActionFetchFromSource,
		BatchID:   batchID,
		Status:    SyncStatusStarted,
		Timestamp: time.Now().UTC(),
	}
}

type ProcessingStatus string

const (
	ProcessingStatusPending    ProcessingStatus = "PENDING"
	ProcessingStatusProcessing ProcessingStatus = "PROCESSING"
	ProcessingStatusCompleted  ProcessingStatus = "COMPLETED"
	ProcessingStatusFailed     ProcessingStatus = "FAILED"
)

// PdfProcessingMessage is the lifecycle event of one document-generation
// task. Partition key on the pdf-processing stream is TaskID.
type PdfProcessingMessage struct {
	TaskID       string           `json:"task_id"`
	UserID       string           `json:"user_id"`
	TodoID       string           `json:"todo_id"`
	FileName     string           `json:"file_name"`
	FilePath     string           `json:"file_path"`
	Status       ProcessingStatus `json:"status"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

func NewPdfPending(taskID, userID, todoID, fileName, filePath string) PdfProcessingMessage {
	return PdfProcessingMessage{
		TaskID:    taskID,
		UserID:    userID,
		TodoID:    todoID,
		FileName:  fileName,
		FilePath:  filePath,
		Status:    ProcessingStatusPending,
		Timestamp: time.Now().UTC(),
	}
}

type NotificationType string

const (
	NotificationTodoCreated            NotificationType = "TODO_CREATED"
	NotificationTodoUpdated            NotificationType = "TODO_UPDATED"
	NotificationTodoDeleted            NotificationType = "TODO_DELETED"
	NotificationPdfProcessingCompleted NotificationType = "PDF_PROCESSING_COMPLETED"
	NotificationPdfProcessingFailed    NotificationType = "PDF_PROCESSING_FAILED"
	NotificationSyncCompleted          NotificationType = "SYNC_COMPLETED"
	NotificationSyncFailed             NotificationType = "SYNC_FAILED"
	NotificationSystem                 NotificationType = "SYSTEM_NOTIFICATION"
)

// NotificationMessage is delivered identically on the durable notification
// stream and the live push channel, so a consumer replaying the log
// reproduces exactly what a live subscriber saw.
type NotificationMessage struct {
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      any              `json:"data,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

func NewNotification(userID string, typ NotificationType, title, message string) NotificationMessage {
	return NotificationMessage{
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

func NewNotificationWithData(userID string, typ NotificationType, title, message string, data any) NotificationMessage {
	n := NewNotification(userID, typ, title, message)
	n.Data = data
	return n
}

// Structured payloads attached to progress notifications.
type (
	PdfProcessingUpdate struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
	}

	TodoSyncUpdate struct {
		BatchID   string `json:"batch_id"`
		Processed int    `json:"processed"`
		Total     int    `json:"total"`
	}
)
