package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fastdiary/fastdiary/services"
	"github.com/fastdiary/fastdiary/utils"
)

// APIController exposes read-only JSON views of the diary.
type APIController struct {
	diary *services.DiaryService
}

// NewAPIController returns an APIController.
func NewAPIController(diary *services.DiaryService) *APIController {
	return &APIController{diary: diary}
}

// Dashboard returns the aggregated dashboard, cached per day.
func (a *APIController) Dashboard(ctx *gin.Context) {
	d, err := a.diary.CachedDashboard()
	if err != nil {
		logger(ctx).Error("dashboard aggregation failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to build dashboard")
		return
	}
	utils.Success(ctx, d)
}

// Entries returns every entry with photos, newest first.
func (a *APIController) Entries(ctx *gin.Context) {
	entries, err := a.diary.ListEntries(false)
	if err != nil {
		logger(ctx).Error("list entries failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to list entries")
		return
	}
	utils.Success(ctx, gin.H{"items": entries, "total": len(entries)})
}

// Health reports liveness.
func Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}
