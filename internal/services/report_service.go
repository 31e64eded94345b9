// Package services – ReportService
//
// This file implements ReportService, which owns the Report Registry: the
// create-or-update commit from an analysis detection, plus listing, lookup,
// and the explicit submission that completes a report.
//
// UpsertFromDetection is the one operation in the system requiring
// multi-record atomicity: creating a report and writing the chat's back-link
// happen in a single transaction, because a report with no chat link (or a
// chat pointing at a missing report) is a state later readers cannot safely
// interpret.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/visionary-ai/go-report-backend/internal/domain"
	"github.com/visionary-ai/go-report-backend/internal/repo"
)

// Detection field fallbacks, matching what readers expect when the analysis
// service omits a value.
const (
	defaultReportTitle       = "Untitled Report"
	defaultReportDescription = "No description provided."
	defaultReportCategory    = "Uncategorized"
)

// ReportService provides registry operations over report records.
type ReportService struct {
	DB *gorm.DB
}

// titleCaser normalizes analysis item names into display titles.
var titleCaser = cases.Title(language.English, cases.NoLower)

// reportFieldsFromDetection derives the mutable report fields from one
// detection. Priority is folded through MapAPIPriority; a fresh analysis
// always (re)opens work on the report, hence status In Progress.
func reportFieldsFromDetection(det domain.Detection) map[string]any {
	title := strings.TrimSpace(det.Item)
	if title == "" {
		title = defaultReportTitle
	} else {
		title = titleCaser.String(title)
	}
	desc := strings.TrimSpace(det.Description)
	if desc == "" {
		desc = defaultReportDescription
	}
	category := strings.TrimSpace(det.Form.IssueType)
	if category == "" {
		category = defaultReportCategory
	}
	return map[string]any{
		"title":       title,
		"description": desc,
		"category":    category,
		"priority":    MapAPIPriority(det.Priority),
		"type":        det.Type,
		"status":      domain.StatusInProgress,
	}
}

// UpsertFromDetection commits the outcome of one analysis.
//
// With an existing report ID, the mutable fields are overwritten in place:
// same identifier, same chat link, refreshed updated_at. Without one, a new
// report is allocated and written together with the chat's report_id in one
// atomic batch. The returned flag reports whether a report was created.
func (s *ReportService) UpsertFromDetection(ctx context.Context, existingReportID *string, chatID string, det domain.Detection) (*domain.Report, bool, error) {
	tr := otel.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "UpsertFromDetection",
		trace.WithAttributes(attribute.String("chat.id", chatID)),
	)
	defer span.End()

	fields := reportFieldsFromDetection(det)

	if existingReportID != nil && *existingReportID != "" {
		r, err := repo.UpdateReportFields(ctx, s.DB, *existingReportID, fields)
		if err == repo.ErrNotFound {
			return nil, false, ErrReportNotFound
		}
		if err != nil {
			return nil, false, err
		}
		return r, false, nil
	}

	now := time.Now().UTC()
	r := &domain.Report{
		ID:          uuid.NewString(),
		Title:       fields["title"].(string),
		Description: fields["description"].(string),
		Category:    fields["category"].(string),
		Type:        fields["type"].(string),
		Priority:    fields["priority"].(string),
		Status:      fields["status"].(string),
		ChatID:      chatID,
		Date:        now.Format("2006-01-02"),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.CreateReportLinked(ctx, s.DB, r); err != nil {
		return nil, false, err
	}
	return r, true, nil
}

// Get fetches a single report.
func (s *ReportService) Get(ctx context.Context, id string) (*domain.Report, error) {
	r, err := repo.GetReport(ctx, s.DB, id)
	if err == repo.ErrNotFound {
		return nil, ErrReportNotFound
	}
	return r, err
}

// Submit marks a report Completed and stamps submitted_at. This is the only
// transition to Completed and is always user-confirmed upstream.
func (s *ReportService) Submit(ctx context.Context, id string) (*domain.Report, error) {
	tr := otel.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(attribute.String("report.id", id)),
	)
	defer span.End()

	r, err := repo.SubmitReport(ctx, s.DB, id, time.Now().UTC())
	if err == repo.ErrNotFound {
		return nil, ErrReportNotFound
	}
	return r, err
}

// reportSortOrders whitelists sortable columns; the map value is the SQL
// order expression handed to the repo.
var reportSortOrders = map[string]string{
	"date":     "date desc, created_at desc",
	"priority": "CASE priority WHEN 'High' THEN 0 WHEN 'Medium' THEN 1 ELSE 2 END, date desc",
	"status":   "status asc, date desc",
	"":         "date desc, created_at desc",
}

// ListPage returns a filtered, sorted page of reports plus the total count.
// Unknown sort keys fall back to newest-first by date.
func (s *ReportService) ListPage(ctx context.Context, f repo.ReportFilter, sortBy string, page, pageSize int) ([]domain.Report, int64, error) {
	tr := otel.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("sort", sortBy),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	order, ok := reportSortOrders[strings.ToLower(sortBy)]
	if !ok {
		order = reportSortOrders[""]
	}

	total, err := repo.CountReports(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Report{}, 0, nil
	}
	items, err := repo.ListReportsPage(ctx, s.DB, f, order, offset, pageSize)
	return items, total, err
}
