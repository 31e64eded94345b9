package repo

import (
	"context"
	"testing"
	"time"

	"github.com/visionary-ai/go-report-backend/internal/domain"
)

func TestCreateIdempotency_ThenGetReturnsRecord(t *testing.T) {
	db := newRepoDB(t, &domain.Idempotency{})
	ctx := context.Background()

	rec, err := CreateIdempotency(ctx, db, "u1", "c1", "k1", "m1", "r1", time.Hour)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.ID == "" || rec.MessageID != "m1" || rec.ReportID != "r1" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	got, err := GetIdempotency(ctx, db, "u1", "c1", "k1", time.Now().UTC())
	if err != nil {
		t.Fatalf("GetIdempotency: %v", err)
	}
	if got.MessageID != "m1" || got.ReportID != "r1" {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestGetIdempotency_ExpiredIsNotFound(t *testing.T) {
	db := newRepoDB(t, &domain.Idempotency{})
	ctx := context.Background()

	if _, err := CreateIdempotency(ctx, db, "u1", "c1", "k1", "m1", "r1", time.Millisecond); err != nil {
		t.Fatalf("create: %v", err)
	}
	later := time.Now().UTC().Add(time.Minute)
	if _, err := GetIdempotency(ctx, db, "u1", "c1", "k1", later); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for expired record, got %v", err)
	}
}

func TestGetIdempotency_BlankKeyIsNotFound(t *testing.T) {
	db := newRepoDB(t, &domain.Idempotency{})
	if _, err := GetIdempotency(context.Background(), db, "u1", "c1", "  ", time.Now().UTC()); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for blank key, got %v", err)
	}
}

func TestCreateIdempotency_DuplicateTuple(t *testing.T) {
	db := newRepoDB(t, &domain.Idempotency{})
	ctx := context.Background()

	if _, err := CreateIdempotency(ctx, db, "u1", "c1", "k1", "m1", "r1", time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "u1", "c1", "k1", "m2", "r2", time.Hour); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	// A different key under the same user/chat is fine.
	if _, err := CreateIdempotency(ctx, db, "u1", "c1", "k2", "m2", "r2", time.Hour); err != nil {
		t.Fatalf("distinct key should insert: %v", err)
	}
}
