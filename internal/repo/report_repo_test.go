package repo

import (
	"context"
	"testing"
	"time"

	"github.com/visionary-ai/go-report-backend/internal/domain"
)

func newReport(id, chatID string) *domain.Report {
	now := time.Now().UTC()
	return &domain.Report{
		ID:          id,
		Title:       "Broken Tray Table",
		Description: "Tray table latch broken on seat 14C",
		Priority:    domain.PriorityMedium,
		Status:      domain.StatusInProgress,
		ChatID:      chatID,
		Date:        now.Format("2006-01-02"),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestCreateReportLinked_WritesReportAndBackLink(t *testing.T) {
	db := newRepoDB(t, &domain.ChatSession{}, &domain.Report{})
	ctx := context.Background()

	if err := db.Create(&domain.ChatSession{ID: "c1"}).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}

	r := newReport("r1", "c1")
	if err := CreateReportLinked(ctx, db, r); err != nil {
		t.Fatalf("CreateReportLinked: %v", err)
	}

	got, err := GetReport(ctx, db, "r1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.Title != "Broken Tray Table" || got.ChatID != "c1" {
		t.Fatalf("unexpected report: %+v", got)
	}

	sess, err := GetChatSession(ctx, db, "c1")
	if err != nil {
		t.Fatalf("GetChatSession: %v", err)
	}
	if sess.ReportID == nil || *sess.ReportID != "r1" {
		t.Fatalf("chat back-link not written: %+v", sess)
	}
}

func TestCreateReportLinked_CreatesSessionWhenMissing(t *testing.T) {
	db := newRepoDB(t, &domain.ChatSession{}, &domain.Report{})
	ctx := context.Background()

	if err := CreateReportLinked(ctx, db, newReport("r1", "fresh")); err != nil {
		t.Fatalf("CreateReportLinked: %v", err)
	}
	sess, err := GetChatSession(ctx, db, "fresh")
	if err != nil {
		t.Fatalf("session not merge-created: %v", err)
	}
	if sess.ReportID == nil || *sess.ReportID != "r1" {
		t.Fatalf("back-link missing on merge-created session: %+v", sess)
	}
}

func TestCreateReportLinked_Atomic_LinkFailureRollsBackReport(t *testing.T) {
	// Only the reports table exists, so the chat link write must fail and
	// take the report row down with it.
	db := newRepoDB(t, &domain.Report{})
	ctx := context.Background()

	if err := CreateReportLinked(ctx, db, newReport("r1", "c1")); err == nil {
		t.Fatalf("expected error when chat table missing")
	}
	if _, err := GetReport(ctx, db, "r1"); err != ErrNotFound {
		t.Fatalf("report row must be rolled back, got err=%v", err)
	}
}

func TestUpdateReportFields_OverwritesInPlace(t *testing.T) {
	db := newRepoDB(t, &domain.ChatSession{}, &domain.Report{})
	ctx := context.Background()

	r := newReport("r1", "c1")
	if err := CreateReportLinked(ctx, db, r); err != nil {
		t.Fatalf("create: %v", err)
	}
	before := r.UpdatedAt

	got, err := UpdateReportFields(ctx, db, "r1", map[string]any{
		"title":    "Cracked Window",
		"priority": domain.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("UpdateReportFields: %v", err)
	}
	if got.ID != "r1" || got.ChatID != "c1" {
		t.Fatalf("identity or chat link changed: %+v", got)
	}
	if got.Title != "Cracked Window" || got.Priority != domain.PriorityHigh {
		t.Fatalf("fields not overwritten: %+v", got)
	}
	if !got.UpdatedAt.After(before) {
		t.Fatalf("updated_at not refreshed: %v <= %v", got.UpdatedAt, before)
	}
}

func TestUpdateReportFields_MissingReturnsNotFound(t *testing.T) {
	db := newRepoDB(t, &domain.ChatSession{}, &domain.Report{})
	if _, err := UpdateReportFields(context.Background(), db, "nope", map[string]any{"title": "x"}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubmitReport_SetsCompletedAndStamp(t *testing.T) {
	db := newRepoDB(t, &domain.ChatSession{}, &domain.Report{})
	ctx := context.Background()

	if err := CreateReportLinked(ctx, db, newReport("r1", "c1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	now := time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)
	got, err := SubmitReport(ctx, db, "r1", now)
	if err != nil {
		t.Fatalf("SubmitReport: %v", err)
	}
	if got.Status != domain.StatusCompleted {
		t.Fatalf("status not Completed: %q", got.Status)
	}
	if got.SubmittedAt == nil || !got.SubmittedAt.Equal(now) {
		t.Fatalf("submitted_at not stamped: %v", got.SubmittedAt)
	}
}

func TestSubmitReport_MissingReturnsNotFound(t *testing.T) {
	db := newRepoDB(t, &domain.ChatSession{}, &domain.Report{})
	if _, err := SubmitReport(context.Background(), db, "nope", time.Now().UTC()); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListReportsPage_FilterAndOrder(t *testing.T) {
	db := newRepoDB(t, &domain.ChatSession{}, &domain.Report{})
	ctx := context.Background()

	mk := func(id, prio, status, date string) *domain.Report {
		r := newReport(id, "c-"+id)
		r.Priority = prio
		r.Status = status
		r.Date = date
		return r
	}
	for _, r := range []*domain.Report{
		mk("r1", domain.PriorityLow, domain.StatusInProgress, "2025-06-01"),
		mk("r2", domain.PriorityHigh, domain.StatusInProgress, "2025-06-03"),
		mk("r3", domain.PriorityMedium, domain.StatusCompleted, "2025-06-02"),
	} {
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("seed %s: %v", r.ID, err)
		}
	}

	inProgress, err := ListReportsPage(ctx, db, ReportFilter{Status: domain.StatusInProgress}, "date desc", 0, 10)
	if err != nil {
		t.Fatalf("ListReportsPage: %v", err)
	}
	if len(inProgress) != 2 || inProgress[0].ID != "r2" || inProgress[1].ID != "r1" {
		t.Fatalf("unexpected filtered listing: %#v", inProgress)
	}

	total, err := CountReports(ctx, db, ReportFilter{Priority: domain.PriorityHigh})
	if err != nil || total != 1 {
		t.Fatalf("CountReports: total=%d err=%v", total, err)
	}
}

func TestPutReport_UpsertsByID(t *testing.T) {
	db := newRepoDB(t, &domain.ChatSession{}, &domain.Report{})
	ctx := context.Background()

	r := newReport("r1", "c1")
	if err := PutReport(ctx, db, r); err != nil {
		t.Fatalf("put: %v", err)
	}
	r.Title = "Updated Title"
	if err := PutReport(ctx, db, r); err != nil {
		t.Fatalf("put again: %v", err)
	}
	got, err := GetReport(ctx, db, "r1")
	if err != nil || got.Title != "Updated Title" {
		t.Fatalf("upsert did not overwrite: %+v err=%v", got, err)
	}
}
