package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fastdiary/fastdiary/services"
)

// DashboardController renders the home page.
type DashboardController struct {
	diary *services.DiaryService
}

// NewDashboardController returns a DashboardController.
func NewDashboardController(diary *services.DiaryService) *DashboardController {
	return &DashboardController{diary: diary}
}

// Show renders the progress charts.
func (d *DashboardController) Show(ctx *gin.Context) {
	dash, err := d.diary.Dashboard()
	if err != nil {
		serverError(ctx, "dashboard aggregation failed", err)
		return
	}
	render(ctx, http.StatusOK, "dashboard.html", gin.H{
		"Title":     "Dashboard",
		"Dashboard": dash,
	})
}
