package handler

import (
	"net/http"
	"time"

	"crm-backend/internal/middleware"
	"crm-backend/internal/service"
	"crm-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type ReportHandler struct {
	reportService service.ReportService
}

func NewReportHandler(reportService service.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

func (h *ReportHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/reports/approvals", middleware.RequireRole("finance", "admin", "super_admin"), h.GetApprovalReport)
}

// GetApprovalReport returns aggregate approval figures for a date range
// @Summary      Approval report
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Param        start_date  query  string  false  "Start date (YYYY-MM-DD), defaults to 30 days ago"
// @Param        end_date    query  string  false  "End date (YYYY-MM-DD), defaults to today"
// @Success      200  {object}  response.Response{data=model.ApprovalReport}
// @Failure      400  {object}  response.Response
// @Router       /api/reports/approvals [get]
func (h *ReportHandler) GetApprovalReport(c *gin.Context) {
	endDate := time.Now()
	startDate := endDate.AddDate(0, 0, -30)

	if s := c.Query("start_date"); s != "" {
		parsed, err := time.Parse("2006-01-02", s)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid start_date, expected YYYY-MM-DD"))
			return
		}
		startDate = parsed
	}
	if s := c.Query("end_date"); s != "" {
		parsed, err := time.Parse("2006-01-02", s)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid end_date, expected YYYY-MM-DD"))
			return
		}
		// include the whole end day
		endDate = parsed.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	if endDate.Before(startDate) {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "end_date must not be before start_date"))
		return
	}

	report, err := h.reportService.GetApprovalReport(c.Request.Context(), startDate, endDate)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, report))
}
