// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file is the Report Registry's storage: report rows and
// the atomic chat back-link.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/visionary-ai/go-report-backend/internal/domain"
)

// CreateReportLinked writes a new report row and the owning chat's report_id
// back-link in one transaction. Both writes succeed or neither does: a report
// without a chat link, or a chat pointing at a missing report, is a state
// later readers cannot interpret.
//
// The chat row is merge-created if it does not exist yet, mirroring
// AppendMessage's create-if-missing semantics so the two paths compose in
// any order.
func CreateReportLinked(ctx context.Context, db *gorm.DB, r *domain.Report) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(r).Error; err != nil {
			return err
		}
		sess := &domain.ChatSession{
			ID:        r.ChatID,
			ReportID:  &r.ID,
			CreatedAt: r.CreatedAt,
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"report_id":  r.ID,
				"updated_at": r.UpdatedAt,
			}),
		}).Create(sess).Error
	})
}

// UpdateReportFields overwrites the given mutable fields of an existing
// report in place and refreshes updated_at. The identifier and chat link are
// never changed here. Returns ErrNotFound when the report is missing.
func UpdateReportFields(ctx context.Context, db *gorm.DB, id string, fields map[string]any) (*domain.Report, error) {
	updates := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["updated_at"] = time.Now().UTC()

	res := db.WithContext(ctx).
		Model(&domain.Report{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return GetReport(ctx, db, id)
}

// GetReport fetches a report by ID, or ErrNotFound.
func GetReport(ctx context.Context, db *gorm.DB, id string) (*domain.Report, error) {
	var r domain.Report
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// ReportFilter narrows report listings. Zero values mean "no constraint".
type ReportFilter struct {
	Status   string
	Priority string
	Type     string
}

// reportQuery composes the filtered base query for listings and counts.
func reportQuery(ctx context.Context, db *gorm.DB, f ReportFilter) *gorm.DB {
	q := db.WithContext(ctx).Model(&domain.Report{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", f.Priority)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	return q
}

// CountReports returns the number of reports matching the filter.
func CountReports(ctx context.Context, db *gorm.DB, f ReportFilter) (int64, error) {
	var total int64
	err := reportQuery(ctx, db, f).Count(&total).Error
	return total, err
}

// ListReportsPage returns a page of reports matching the filter, ordered by
// the given column expression (validated by the service layer).
func ListReportsPage(ctx context.Context, db *gorm.DB, f ReportFilter, order string, offset, limit int) ([]domain.Report, error) {
	var out []domain.Report
	err := reportQuery(ctx, db, f).
		Order(order).
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SubmitReport marks a report Completed and stamps submitted_at. The explicit
// user-confirmed submission is the only path to Completed. Returns
// ErrNotFound when the report is missing.
func SubmitReport(ctx context.Context, db *gorm.DB, id string, now time.Time) (*domain.Report, error) {
	res := db.WithContext(ctx).
		Model(&domain.Report{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       domain.StatusCompleted,
			"submitted_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return GetReport(ctx, db, id)
}

// PutReport upserts a full report row keyed by ID. Bulk import only.
func PutReport(ctx context.Context, db *gorm.DB, r *domain.Report) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(r).Error
}

// PutInspector upserts an inspector row keyed by ID. Bulk import only.
func PutInspector(ctx context.Context, db *gorm.DB, i *domain.Inspector) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(i).Error
}
