package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"todosync/internal/messaging"
	"todosync/internal/models"
	"todosync/internal/worker"
)

// Renderer produces the export document body. Document content is not
// this pipeline's concern; only the lifecycle around it is.
type Renderer interface {
	Render(ctx context.Context, todos []models.Todo) ([]byte, error)
}

// PdfService drives large-export document generation through the same
// lifecycle shape as batch sync: a durable event per state change, pushes
// for progress, and a notification at the terminal state.
type PdfService struct {
	Publisher messaging.Publisher
	Notifier  ProgressNotifier
	Pool      *worker.Pool
	Renderer  Renderer
	Logger    *zap.Logger
	ExportDir string
}

// ProcessBulkPdf accepts a bulk-export job and returns its task id
// immediately; the caller observes progress via the pdf-processing and
// notification channels.
func (s *PdfService) ProcessBulkPdf(ctx context.Context, userID, todoID string, todos []models.Todo) (string, error) {
	taskID := uuid.NewString()
	fileName := fmt.Sprintf("todos-bulk-%s.pdf", taskID)
	filePath := filepath.Join(s.exportDir(), fileName)

	s.Publisher.PublishPdfProcessing(ctx, messaging.NewPdfPending(taskID, userID, todoID, fileName, filePath))

	_, err := s.Pool.Submit("pdf-bulk-export", func(jobCtx context.Context) error {
		s.runJob(jobCtx, taskID, userID, todoID, fileName, filePath, todos)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("submit pdf job: %w", err)
	}

	s.logInfo("pdf job accepted",
		zap.String("task_id", taskID),
		zap.String("user_id", userID),
		zap.Int("todos", len(todos)))
	return taskID, nil
}

func (s *PdfService) runJob(ctx context.Context, taskID, userID, todoID, fileName, filePath string, todos []models.Todo) {
	s.publishStatus(ctx, taskID, userID, todoID, fileName, filePath, messaging.ProcessingStatusProcessing, "")
	s.Notifier.SendPdfProcessingUpdate(ctx, userID, taskID,
		string(messaging.ProcessingStatusProcessing), "PDF generation started...")

	if err := s.render(ctx, filePath, todos); err != nil {
		s.publishStatus(ctx, taskID, userID, todoID, fileName, filePath, messaging.ProcessingStatusFailed, err.Error())
		s.Notifier.SendPdfProcessingUpdate(ctx, userID, taskID,
			string(messaging.ProcessingStatusFailed), "PDF generation failed: "+err.Error())
		s.logError("pdf job failed",
			zap.String("task_id", taskID),
			zap.Error(err))
		return
	}

	s.publishStatus(ctx, taskID, userID, todoID, fileName, filePath, messaging.ProcessingStatusCompleted, "")
	s.Notifier.SendPdfProcessingUpdate(ctx, userID, taskID,
		string(messaging.ProcessingStatusCompleted), "PDF generated successfully!")
	s.Publisher.PublishNotification(ctx, messaging.NewNotificationWithData(
		userID,
		messaging.NotificationPdfProcessingCompleted,
		"PDF Ready",
		fmt.Sprintf("Your PDF with %d todos is ready for download", len(todos)),
		messaging.PdfProcessingUpdate{TaskID: taskID, Status: string(messaging.ProcessingStatusCompleted)},
	))
	s.logInfo("pdf job completed", zap.String("task_id", taskID))
}

func (s *PdfService) render(ctx context.Context, filePath string, todos []models.Todo) error {
	if s.Renderer == nil {
		return fmt.Errorf("no renderer configured")
	}
	body, err := s.Renderer.Render(ctx, todos)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(filePath, body, 0o644)
}

func (s *PdfService) publishStatus(ctx context.Context, taskID, userID, todoID, fileName, filePath string, status messaging.ProcessingStatus, errMsg string) {
	s.Publisher.PublishPdfProcessing(ctx, messaging.PdfProcessingMessage{
		TaskID:       taskID,
		UserID:       userID,
		TodoID:       todoID,
		FileName:     fileName,
		FilePath:     filePath,
		Status:       status,
		ErrorMessage: errMsg,
		Timestamp:    time.Now().UTC(),
	})
}

func (s *PdfService) exportDir() string {
	if strings.TrimSpace(s.ExportDir) != "" {
		return s.ExportDir
	}
	return "exports"
}

func (s *PdfService) logInfo(msg string, fields ...zap.Field) {
	if s.Logger != nil {
		s.Logger.Info(msg, fields...)
	}
}

func (s *PdfService) logError(msg string, fields ...zap.Field) {
	if s.Logger != nil {
		s.Logger.Error(msg, fields...)
	}
}

// TextRenderer is the default export body: a plain listing. Swapping in a
// real PDF engine only means replacing this implementation.
type TextRenderer struct{}

func (TextRenderer) Render(ctx context.Context, todos []models.Todo) ([]byte, error) {
	var b strings.Builder
	b.WriteString("Todo Report\n")
	b.WriteString(fmt.Sprintf("Generated: %s\n\n", time.Now().UTC().Format(time.RFC3339)))
	completed := 0
	for _, t := range todos {
		status := "open"
		if t.Completed {
			status = "done"
			completed++
		}
		b.WriteString(fmt.Sprintf("%6d  [%s]  %s\n", t.ID, status, t.Title))
	}
	b.WriteString(fmt.Sprintf("\nTotal: %d  Completed: %d  Open: %d\n",
		len(todos), completed, len(todos)-completed))
	return []byte(b.String()), nil
}
