package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"todosync/internal/repository"
	"todosync/internal/service"
)

type PdfHandler struct {
	Service *service.PdfService
	Repo    repository.Repository
	Logger  *zap.Logger
}

func (h *PdfHandler) Register(r *gin.Engine) {
	r.POST("/api/users/:id/todos/pdf", h.exportUserTodos)
}

// exportUserTodos starts a bulk export of one user's todos. The response
// carries only the task id; completion arrives on the notification
// channels.
func (h *PdfHandler) exportUserTodos(c *gin.Context) {
	caller := callerID(c)
	if caller == "" {
		Error(c, http.StatusBadRequest, "missing X-User-ID header", nil)
		return
	}
	ownerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid user id", nil)
		return
	}

	todos, err := h.Repo.ListTodosByUserID(c.Request.Context(), ownerID)
	if err != nil {
		Error(c, http.StatusInternalServerError, "failed to load todos", nil)
		return
	}

	taskID, err := h.Service.ProcessBulkPdf(c.Request.Context(), caller, c.Param("id"), todos)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("pdf export rejected",
				zap.String("user_id", caller),
				zap.Error(err))
		}
		Error(c, http.StatusServiceUnavailable, "export queue is full", nil)
		return
	}
	Accepted(c, gin.H{"task_id": taskID, "todos": len(todos)})
}
