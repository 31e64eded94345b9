package services

import (
	"context"
	"testing"

	"github.com/visionary-ai/go-report-backend/internal/domain"
	"github.com/visionary-ai/go-report-backend/internal/repo"
)

func detBrokenTray() domain.Detection {
	return domain.Detection{
		Item:        "broken tray table",
		Description: "Tray table latch broken on seat 14C",
		Priority:    "Moderate",
		Type:        "cabin",
		Form:        domain.GeneratedForm{IssueType: "Cabin Equipment"},
	}
}

func TestUpsertFromDetection_CreatesLinkedReport(t *testing.T) {
	db := newServiceDB(t)
	svc := &ReportService{DB: db}
	ctx := context.Background()

	r, created, err := svc.UpsertFromDetection(ctx, nil, "c1", detBrokenTray())
	if err != nil {
		t.Fatalf("UpsertFromDetection: %v", err)
	}
	if !created {
		t.Fatalf("expected a created report")
	}
	if r.Title != "Broken Tray Table" {
		t.Fatalf("title not cased: %q", r.Title)
	}
	if r.Priority != domain.PriorityMedium {
		t.Fatalf("Moderate must map to Medium, got %q", r.Priority)
	}
	if r.Status != domain.StatusInProgress {
		t.Fatalf("status must be In Progress, got %q", r.Status)
	}
	if r.Category != "Cabin Equipment" {
		t.Fatalf("category not taken from form: %q", r.Category)
	}
	if r.Date == "" || len(r.Date) != 10 {
		t.Fatalf("date not yyyy-mm-dd: %q", r.Date)
	}

	sess, err := repo.GetChatSession(ctx, db, "c1")
	if err != nil {
		t.Fatalf("chat session: %v", err)
	}
	if sess.ReportID == nil || *sess.ReportID != r.ID {
		t.Fatalf("chat not linked to report: %+v", sess)
	}
}

func TestUpsertFromDetection_UpdatesExistingInPlace(t *testing.T) {
	db := newServiceDB(t)
	svc := &ReportService{DB: db}
	ctx := context.Background()

	first, _, err := svc.UpsertFromDetection(ctx, nil, "c1", detBrokenTray())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	det2 := domain.Detection{
		Item:        "cracked window",
		Description: "Hairline crack on window 22A",
		Priority:    "Severe",
		Type:        "structural",
	}
	second, created, err := svc.UpsertFromDetection(ctx, &first.ID, "c1", det2)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if created {
		t.Fatalf("update must not create a new report")
	}
	if second.ID != first.ID {
		t.Fatalf("identifier changed: %s -> %s", first.ID, second.ID)
	}
	if second.Title != "Cracked Window" || second.Priority != domain.PriorityHigh {
		t.Fatalf("fields not overwritten: %+v", second)
	}
	if second.ChatID != "c1" {
		t.Fatalf("chat link changed: %q", second.ChatID)
	}

	total, err := repo.CountReports(ctx, db, repo.ReportFilter{})
	if err != nil || total != 1 {
		t.Fatalf("expected exactly one report, got %d (err=%v)", total, err)
	}
}

func TestUpsertFromDetection_FallbacksForEmptyFields(t *testing.T) {
	db := newServiceDB(t)
	svc := &ReportService{DB: db}

	r, _, err := svc.UpsertFromDetection(context.Background(), nil, "c1", domain.Detection{})
	if err != nil {
		t.Fatalf("UpsertFromDetection: %v", err)
	}
	if r.Title != "Untitled Report" {
		t.Fatalf("title fallback: %q", r.Title)
	}
	if r.Description != "No description provided." {
		t.Fatalf("description fallback: %q", r.Description)
	}
	if r.Category != "Uncategorized" {
		t.Fatalf("category fallback: %q", r.Category)
	}
	if r.Priority != domain.PriorityLow {
		t.Fatalf("empty priority must map Low: %q", r.Priority)
	}
}

func TestUpsertFromDetection_MissingExistingReport(t *testing.T) {
	db := newServiceDB(t)
	svc := &ReportService{DB: db}
	missing := "nope"
	if _, _, err := svc.UpsertFromDetection(context.Background(), &missing, "c1", detBrokenTray()); err != ErrReportNotFound {
		t.Fatalf("expected ErrReportNotFound, got %v", err)
	}
}

func TestReportSubmit_CompletesOnce(t *testing.T) {
	db := newServiceDB(t)
	svc := &ReportService{DB: db}
	ctx := context.Background()

	r, _, err := svc.UpsertFromDetection(ctx, nil, "c1", detBrokenTray())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := svc.Submit(ctx, r.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got.Status != domain.StatusCompleted || got.SubmittedAt == nil {
		t.Fatalf("submit incomplete: %+v", got)
	}

	if _, err := svc.Submit(ctx, "missing"); err != ErrReportNotFound {
		t.Fatalf("expected ErrReportNotFound, got %v", err)
	}
}

func TestReportListPage_SortWhitelist(t *testing.T) {
	db := newServiceDB(t)
	svc := &ReportService{DB: db}
	ctx := context.Background()

	for _, det := range []domain.Detection{
		{Item: "a", Priority: "minor"},
		{Item: "b", Priority: "severe"},
		{Item: "c", Priority: "moderate"},
	} {
		if _, _, err := svc.UpsertFromDetection(ctx, nil, "chat-"+det.Item, det); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	byPriority, total, err := svc.ListPage(ctx, repo.ReportFilter{}, "priority", 1, 10)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if total != 3 || len(byPriority) != 3 {
		t.Fatalf("unexpected listing size: total=%d len=%d", total, len(byPriority))
	}
	if byPriority[0].Priority != domain.PriorityHigh {
		t.Fatalf("priority sort broken: %+v", byPriority)
	}

	// Unknown sort keys fall back instead of erroring (no injection surface).
	if _, _, err := svc.ListPage(ctx, repo.ReportFilter{}, "id; drop table reports", 1, 10); err != nil {
		t.Fatalf("unknown sort must fall back: %v", err)
	}
}
