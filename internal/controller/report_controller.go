package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"diagnostica-backend/internal/service"
)

type ReportController struct {
	ReportService service.ReportService
}

func NewReportController(reportService service.ReportService) *ReportController {
	return &ReportController{ReportService: reportService}
}

// GetReport handles GET /reports/:session_id
func (rc *ReportController) GetReport(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}
	report, err := rc.ReportService.GetReport(uid, c.Param("session_id"))
	if err != nil {
		rc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// DownloadReport handles GET /reports/:session_id/download
func (rc *ReportController) DownloadReport(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}
	report, err := rc.ReportService.GetReport(uid, c.Param("session_id"))
	if err != nil {
		rc.respondError(c, err)
		return
	}
	pdfContent, err := rc.ReportService.RenderPDF(report)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render report"})
		return
	}
	c.Header("Content-Disposition", "attachment; filename=diagnostic_report.pdf")
	c.Data(http.StatusOK, "application/pdf", pdfContent)
}

func (rc *ReportController) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrReportNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrSessionOwnership):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
	}
}
