package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/visionary-ai/go-report-backend/internal/domain"
	"github.com/visionary-ai/go-report-backend/internal/repo"
)

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("svc_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakeReplier returns canned replies or a canned error.
type fakeReplier struct {
	reply string
	err   error
	calls int
}

func (f *fakeReplier) ReplyToText(ctx context.Context, userID, text string) (string, error) {
	f.calls++
	return f.reply, f.err
}

func TestConversationOpen_NewSessionSeedsGreeting(t *testing.T) {
	db := newServiceDB(t)
	svc := &ConversationService{DB: db, Agent: &fakeReplier{}}

	res, err := svc.Open(context.Background(), "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if res.Resumed {
		t.Fatalf("fresh open must not be a resume")
	}
	if res.Session == nil || res.Session.ID == "" {
		t.Fatalf("no session returned: %+v", res)
	}
	if len(res.Messages) != 1 || res.Messages[0].Sender != domain.SenderAI {
		t.Fatalf("greeting not seeded: %+v", res.Messages)
	}
	if res.Messages[0].Text != greetingText {
		t.Fatalf("unexpected greeting: %q", res.Messages[0].Text)
	}
}

func TestConversationOpen_ResumeReturnsHistory(t *testing.T) {
	db := newServiceDB(t)
	svc := &ConversationService{DB: db, Agent: &fakeReplier{reply: "sure"}}
	ctx := context.Background()

	first, err := svc.Open(ctx, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.Send(ctx, first.Session.ID, "hello there"); err != nil {
		t.Fatalf("send: %v", err)
	}

	res, err := svc.Open(ctx, first.Session.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !res.Resumed {
		t.Fatalf("expected resume")
	}
	// greeting + user + reply
	if len(res.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(res.Messages))
	}
	if res.Messages[1].Text != "hello there" || res.Messages[2].Text != "sure" {
		t.Fatalf("history order wrong: %+v", res.Messages)
	}
}

func TestConversationSend_AppendsUserAndReply(t *testing.T) {
	db := newServiceDB(t)
	fr := &fakeReplier{reply: "the assistant answer"}
	svc := &ConversationService{DB: db, Agent: fr}
	ctx := context.Background()

	opened, err := svc.Open(ctx, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	m, err := svc.Send(ctx, opened.Session.ID, "tell me about 14C")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if m.Sender != domain.SenderAI || m.Text != "the assistant answer" {
		t.Fatalf("unexpected reply message: %+v", m)
	}
	if fr.calls != 1 {
		t.Fatalf("replier called %d times", fr.calls)
	}

	sess, err := repo.GetChatSession(ctx, db, opened.Session.ID)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if sess.MessageCount != 3 {
		t.Fatalf("expected 3 persisted messages, got %d", sess.MessageCount)
	}
}

func TestConversationSend_AgentFailureFallsBack(t *testing.T) {
	db := newServiceDB(t)
	svc := &ConversationService{DB: db, Agent: &fakeReplier{err: errors.New("connection refused")}}
	ctx := context.Background()

	opened, err := svc.Open(ctx, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	m, err := svc.Send(ctx, opened.Session.ID, "anyone there?")
	if err != nil {
		t.Fatalf("Send must not surface agent failures: %v", err)
	}
	if m.Text != fallbackReplyText {
		t.Fatalf("expected fallback reply, got %q", m.Text)
	}
}

func TestConversationSend_EmptyReplyFallsBack(t *testing.T) {
	db := newServiceDB(t)
	svc := &ConversationService{DB: db, Agent: &fakeReplier{reply: "   "}}
	ctx := context.Background()

	opened, _ := svc.Open(ctx, "")
	m, err := svc.Send(ctx, opened.Session.ID, "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if m.Text != fallbackReplyText {
		t.Fatalf("blank reply must fall back, got %q", m.Text)
	}
}

func TestConversationSend_Validation(t *testing.T) {
	db := newServiceDB(t)
	svc := &ConversationService{DB: db, Agent: &fakeReplier{}, MaxMessageRunes: 5}
	ctx := context.Background()

	if _, err := svc.Send(ctx, "missing", "hi"); err != ErrChatNotFound {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}

	opened, _ := svc.Open(ctx, "")
	if _, err := svc.Send(ctx, opened.Session.ID, "   "); err != ErrEmptyMessage {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := svc.Send(ctx, opened.Session.ID, "way too long"); err != ErrTooLong {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
}

func TestConversationHistory_Paginates(t *testing.T) {
	db := newServiceDB(t)
	svc := &ConversationService{DB: db, Agent: &fakeReplier{reply: "ok"}}
	ctx := context.Background()

	opened, _ := svc.Open(ctx, "")
	for i := 0; i < 3; i++ {
		if _, err := svc.Send(ctx, opened.Session.ID, fmt.Sprintf("msg %d", i)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	// greeting + 3*(user+ai) = 7
	items, total, err := svc.History(ctx, opened.Session.ID, 2, 3)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if total != 7 {
		t.Fatalf("expected total=7, got %d", total)
	}
	if len(items) != 3 {
		t.Fatalf("expected page of 3, got %d", len(items))
	}

	if _, _, err := svc.History(ctx, "missing", 1, 10); err != ErrChatNotFound {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
}
