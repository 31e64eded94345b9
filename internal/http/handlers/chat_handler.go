// Chat HTTP handlers.
//
// This file exposes REST endpoints for chat sessions:
//   - POST /chats                (open a new session or resume one by ID)
//   - GET  /chats                (list sessions, most recent first)
//   - GET  /chats/{id}/messages  (paginated message history)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses. Service contracts are
// declared here as interfaces so transport stays decoupled from the concrete
// service structs.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/visionary-ai/go-report-backend/internal/domain"
	"github.com/visionary-ai/go-report-backend/internal/repo"
	"github.com/visionary-ai/go-report-backend/internal/services"
	"github.com/visionary-ai/go-report-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ConversationService defines the chat session operations consumed by HTTP
// handlers. Implementations must be safe for concurrent use and honor the
// provided context.
type ConversationService interface {
	// Open creates or resumes a chat session and returns its history.
	Open(ctx context.Context, chatID string) (*services.OpenResult, error)
	// List returns all sessions ordered by most recent activity.
	List(ctx context.Context) ([]domain.ChatSession, error)
	// Send appends a user message and returns the assistant reply.
	Send(ctx context.Context, chatID, text string) (*domain.Message, error)
	// History returns a page of messages and the total count.
	History(ctx context.Context, chatID string, page, pageSize int) ([]domain.Message, int64, error)
}

// PipelineService defines the image submission flow.
type PipelineService interface {
	SubmitImage(ctx context.Context, in services.SubmitImageInput) (*services.PipelineResult, error)
}

// ReportService defines report registry operations.
type ReportService interface {
	Get(ctx context.Context, id string) (*domain.Report, error)
	Submit(ctx context.Context, id string) (*domain.Report, error)
	ListPage(ctx context.Context, f repo.ReportFilter, sortBy string, page, pageSize int) ([]domain.Report, int64, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for chats, messages, and reports.
type Handlers struct {
	convSvc ConversationService
	pipeSvc PipelineService
	repSvc  ReportService
	db      *gorm.DB
}

// New constructs a Handlers instance bound to the given services. The DB
// handle backs read-only lookups the preview endpoint needs.
func New(convSvc ConversationService, pipeSvc PipelineService, repSvc ReportService, db *gorm.DB) *Handlers {
	return &Handlers{convSvc: convSvc, pipeSvc: pipeSvc, repSvc: repSvc, db: db}
}

// userID extracts the caller identity from the Gin context (set by upstream
// auth middleware when present), falling back to the X-User-ID header and
// finally to "demo-user".
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := c.GetHeader("X-User-ID"); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// OpenChatRequest is the JSON payload for opening or resuming a session.
type OpenChatRequest struct {
	// ChatID resumes the named session when set; empty opens a new one.
	ChatID string `json:"chat_id"`
}

// ListChatsResponse contains all chat sessions.
type ListChatsResponse struct {
	Chats []domain.ChatSession `json:"chats"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// clampPagination parses page/page_size query parameters with sane caps.
func clampPagination(c *gin.Context) (page, pageSize int) {
	page = utils.AtoiDefault(c.Query("page"), 1)
	if page < 1 {
		page = 1
	}
	pageSize = utils.ClampInt(utils.AtoiDefault(c.Query("page_size"), 50), 1, 200)
	return
}

//
// Handlers
//

// OpenChat opens a new chat session (seeded with the assistant greeting) or
// resumes an existing one, returning its full ordered history.
func (h *Handlers) OpenChat(c *gin.Context) {
	ctx := c.Request.Context()

	var req OpenChatRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid body")
			return
		}
	}

	res, err := h.convSvc.Open(ctx, req.ChatID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	status := http.StatusCreated
	if res.Resumed {
		status = http.StatusOK
	}
	ok(c, status, res)
}

// ListChats returns all chat sessions, most recent activity first.
func (h *Handlers) ListChats(c *gin.Context) {
	chats, err := h.convSvc.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListChatsResponse{Chats: chats})
}

// ListMessagesResponse contains a page of chat messages plus pagination.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// ListMessages returns a paginated, chronologically ordered message history.
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	chatID := c.Param("id")
	page, pageSize := clampPagination(c)

	items, total, err := h.convSvc.History(ctx, chatID, page, pageSize)
	if err != nil {
		switch err {
		case services.ErrChatNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chat not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		}
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
