package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"todosync/internal/repository"
	"todosync/internal/service"
)

// callerID returns the explicit caller identity. There is deliberately no
// ambient security context; every entry point receives the user id from
// the request.
func callerID(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader("X-User-ID"))
}

type SyncHandler struct {
	Service *service.TodoSyncService
	Repo    repository.Repository
	Logger  *zap.Logger
}

func (h *SyncHandler) Register(r *gin.Engine) {
	r.POST("/api/todos/sync", h.triggerSync)
	r.GET("/api/sync/runs", h.listRuns)
	r.GET("/api/sync/runs/:id", h.getRun)
}

func (h *SyncHandler) triggerSync(c *gin.Context) {
	userID := callerID(c)
	if userID == "" {
		Error(c, http.StatusBadRequest, "missing X-User-ID header", nil)
		return
	}
	batchID, err := h.Service.RunFullSync(c.Request.Context(), userID)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("sync trigger failed",
				zap.String("user_id", userID),
				zap.Error(err))
		}
		Error(c, http.StatusBadGateway, "failed to fetch from source", nil)
		return
	}
	Accepted(c, gin.H{"batch_id": batchID})
}

func (h *SyncHandler) listRuns(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	runs, err := h.Repo.ListSyncRuns(c.Request.Context(), limit)
	if err != nil {
		Error(c, http.StatusInternalServerError, "failed to list sync runs", nil)
		return
	}
	Ok(c, runs, map[string]any{"count": len(runs)})
}

func (h *SyncHandler) getRun(c *gin.Context) {
	run, err := h.Repo.GetSyncRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, http.StatusInternalServerError, "failed to load sync run", nil)
		return
	}
	if run == nil {
		Error(c, http.StatusNotFound, "sync run not found", nil)
		return
	}
	Ok(c, run, nil)
}
