package handlers

import (
	"context"
	"net/http"

	"cinelog/internal/logger"
	"cinelog/internal/services"
	"cinelog/internal/utils"

	"github.com/gin-gonic/gin"
)

// AdminHandler exposes the counter repair job to admins.
type AdminHandler struct {
	worker     services.RepairScheduler
	projection *services.ProjectionService
}

func NewAdminHandler(worker services.RepairScheduler, projection *services.ProjectionService) *AdminHandler {
	return &AdminHandler{worker: worker, projection: projection}
}

// RecountComment 将单条评论加入计数修复队列
func (h *AdminHandler) RecountComment(c *gin.Context) {
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Comment not found."})
		return
	}
	h.worker.Schedule(id)
	c.JSON(http.StatusAccepted, gin.H{"success": true, "scheduled": id})
}

// RecountAll 后台全量修复，立即返回
func (h *AdminHandler) RecountAll(c *gin.Context) {
	entry := logger.For(c.Request.Context())
	go func() {
		ctx := logger.NewContext(context.Background(), entry)
		if _, _, err := h.projection.RepairAll(ctx); err != nil {
			entry.WithError(err).Error("Manual counter repair failed")
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"success": true})
}
