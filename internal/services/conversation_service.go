// Package services – ConversationService
//
// This file implements ConversationService, the application-level component
// that owns chat sessions and the plain-text reply flow. It validates inputs,
// opens or resumes sessions (seeding the assistant greeting for new ones),
// and persists the user/AI message pair.
//
// The text-reply flow is the simpler sibling of the image pipeline: append
// the user message, ask the analysis service for a conversational reply, and
// append that reply. When the service call fails, a fixed fallback reply is
// appended instead: a sent user message always receives a response, never a
// dangling "is typing" state and never a user-facing error.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// chat identifiers.
package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/visionary-ai/go-report-backend/internal/domain"
	"github.com/visionary-ai/go-report-backend/internal/repo"
)

const (
	// greetingText seeds every new chat session as the first AI message.
	greetingText = "Hello! I'm your AI assistant. I can help you create reports for " +
		"customer complaints, service issues, or any airline-related problems. " +
		"You can upload images and I'll analyze them to help generate comprehensive " +
		"reports. What type of issue would you like to report today?"

	// fallbackReplyText is appended when the analysis service cannot produce
	// a conversational reply.
	fallbackReplyText = "I understand your concern. Let me help you document this " +
		"issue properly. Could you provide more details?"
)

// Replier is the analysis-service capability the text flow needs: a single
// conversational reply for a user utterance. One attempt, no retries.
type Replier interface {
	ReplyToText(ctx context.Context, userID, text string) (string, error)
}

// ConversationService coordinates chat sessions and the text-reply flow.
type ConversationService struct {
	DB    *gorm.DB
	Agent Replier

	// MaxMessageRunes caps user text length; 0 disables the cap.
	MaxMessageRunes int
}

// OpenResult is the outcome of opening or resuming a chat session.
type OpenResult struct {
	Session  *domain.ChatSession `json:"session"`
	Messages []domain.Message    `json:"messages"`
	Resumed  bool                `json:"resumed"`
}

// Open creates a new chat session (seeding the greeting message) or resumes
// an existing one by ID, returning its full ordered history. An empty chatID
// always creates.
func (s *ConversationService) Open(ctx context.Context, chatID string) (*OpenResult, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Open",
		trace.WithAttributes(attribute.String("chat.id", chatID)),
	)
	defer span.End()

	if chatID != "" {
		sess, err := repo.GetChatSession(ctx, s.DB, chatID)
		if err == nil {
			msgs, err := repo.LoadMessages(ctx, s.DB, chatID)
			if err != nil {
				return nil, err
			}
			return &OpenResult{Session: sess, Messages: msgs, Resumed: true}, nil
		}
		if err != repo.ErrNotFound {
			return nil, err
		}
		// Unknown ID: fall through and create it, keeping the caller's ID so
		// resumption by report link works after bulk imports.
	}
	if chatID == "" {
		chatID = "chat_" + uuid.NewString()
	}

	greeting, err := repo.AppendMessage(ctx, s.DB, chatID, domain.Message{
		Sender: domain.SenderAI,
		Text:   greetingText,
	})
	if err != nil {
		return nil, err
	}
	sess, err := repo.GetChatSession(ctx, s.DB, chatID)
	if err != nil {
		return nil, err
	}
	return &OpenResult{Session: sess, Messages: []domain.Message{*greeting}}, nil
}

// List returns all chat sessions ordered by most recent activity.
func (s *ConversationService) List(ctx context.Context) ([]domain.ChatSession, error) {
	return repo.ListChatSessions(ctx, s.DB)
}

// Send runs the text-reply flow: append the user message, obtain a reply
// from the analysis service, and append it. A failed service call degrades
// to the fixed fallback reply with a logged diagnostic; the returned message
// is then the fallback, not an error.
func (s *ConversationService) Send(ctx context.Context, chatID, text string) (*domain.Message, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(attribute.String("chat.id", chatID)),
	)
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(text) > s.MaxMessageRunes {
		return nil, ErrTooLong
	}
	if _, err := repo.GetChatSession(ctx, s.DB, chatID); err != nil {
		if err == repo.ErrNotFound {
			return nil, ErrChatNotFound
		}
		return nil, err
	}

	if _, err := repo.AppendMessage(ctx, s.DB, chatID, domain.Message{
		Sender: domain.SenderUser,
		Text:   text,
	}); err != nil {
		return nil, err
	}

	reply, err := s.Agent.ReplyToText(ctx, chatID, text)
	if err != nil || strings.TrimSpace(reply) == "" {
		zerolog.Ctx(ctx).Warn().
			Err(err).
			Str("chat_id", chatID).
			Msg("text reply failed, using fallback")
		reply = fallbackReplyText
	}

	return repo.AppendMessage(ctx, s.DB, chatID, domain.Message{
		Sender: domain.SenderAI,
		Text:   reply,
	})
}

// History returns paginated messages for a chat.
func (s *ConversationService) History(ctx context.Context, chatID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "History",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	if _, err := repo.GetChatSession(ctx, s.DB, chatID); err != nil {
		if err == repo.ErrNotFound {
			return nil, 0, ErrChatNotFound
		}
		return nil, 0, err
	}
	total, err := repo.CountMessages(ctx, s.DB, chatID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListMessagesPage(ctx, s.DB, chatID, offset, pageSize)
	return items, total, err
}
