// Report HTTP handlers.
//
// This file exposes the report registry:
//   - GET  /reports               (filtered, sorted, paginated listing)
//   - GET  /reports/{id}          (single report)
//   - POST /reports/{id}/submit   (mark Completed, stamp submitted_at)
//   - GET  /reports/{id}/preview  (printable HTML with image evidence)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/visionary-ai/go-report-backend/internal/domain"
	"github.com/visionary-ai/go-report-backend/internal/export"
	"github.com/visionary-ai/go-report-backend/internal/http/middleware"
	"github.com/visionary-ai/go-report-backend/internal/repo"
	"github.com/visionary-ai/go-report-backend/internal/services"
)

// ListReportsResponse contains a page of reports plus pagination metadata.
type ListReportsResponse struct {
	Reports    []domain.Report `json:"reports"`
	Pagination Pagination      `json:"pagination"`
}

// ReportResponse wraps a single report.
type ReportResponse struct {
	Report *domain.Report `json:"report"`
}

// ListReports returns reports filtered by status/priority/type, sorted by
// the "sort" query parameter (date, priority, status), newest first by
// default.
func (h *Handlers) ListReports(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	filter := repo.ReportFilter{
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
		Type:     c.Query("type"),
	}
	items, total, err := h.repSvc.ListPage(ctx, filter, c.Query("sort"), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListReportsResponse{
		Reports: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetReport returns a single report by ID.
func (h *Handlers) GetReport(c *gin.Context) {
	r, err := h.repSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrReportNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "report not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ReportResponse{Report: r})
}

// SubmitReport marks a report Completed. The confirmation step is the
// client's responsibility; reaching this endpoint is the confirmation.
func (h *Handlers) SubmitReport(c *gin.Context) {
	r, err := h.repSvc.Submit(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrReportNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "report not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeSubmitFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ReportResponse{Report: r})
}

// PreviewReport renders a standalone HTML document for the report, including
// image evidence gathered from its chat's finalized messages.
func (h *Handlers) PreviewReport(c *gin.Context) {
	ctx := c.Request.Context()

	r, err := h.repSvc.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrReportNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "report not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	var msgs []domain.Message
	if r.ChatID != "" {
		msgs, err = repo.LoadMessages(ctx, h.db, r.ChatID)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
			return
		}
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := export.RenderHTML(c.Writer, r, msgs); err != nil {
		// Headers are already out; the status cannot change anymore.
		middleware.LoggerFrom(c).Error().Err(err).Msg("render report preview failed")
	}
}
