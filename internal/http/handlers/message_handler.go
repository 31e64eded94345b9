// Message HTTP handlers.
//
// This file exposes the two write endpoints of a chat:
//   - POST /chats/{id}/messages  (append a user message, get the AI reply)
//   - POST /chats/{id}/images    (run the image pipeline)
//
// The image endpoint supports safe retries via the Idempotency-Key header.
// The pipeline records each completed run under (user, chat, key); a repeat
// submission with the same key returns the recorded outcome and sets
// `Idempotency-Replayed: true` instead of running again.
package handlers

import (
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/visionary-ai/go-report-backend/internal/domain"
	"github.com/visionary-ai/go-report-backend/internal/services"
	"github.com/visionary-ai/go-report-backend/internal/utils"
)

//
// DTOs
//

// PostMessageRequest is the JSON payload for sending a user text message.
type PostMessageRequest struct {
	// Text is the user utterance. It must be non-empty after trimming.
	Text string `json:"text" binding:"required,min=1"`
}

// PostMessageResponse is the JSON envelope for the assistant reply.
type PostMessageResponse struct {
	Message *domain.Message `json:"message"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeText normalizes user text: CRLF/CR to LF, collapsed blank runs,
// trimmed whitespace.
func sanitizeText(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// idempotencyKey reads the validated Idempotency-Key header, if present.
func idempotencyKey(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader("Idempotency-Key"))
}

//
// Handlers
//

// PostMessage appends a user text message and returns the assistant reply.
// A failed analysis-service call degrades to a fixed fallback reply inside
// the service, so this endpoint only errors on validation or persistence.
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()
	chatID := c.Param("id")

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text required")
		return
	}
	text := sanitizeText(req.Text)
	if text == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text required")
		return
	}

	m, err := h.convSvc.Send(ctx, chatID, text)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrChatNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chat not found")
		case errors.Is(err, services.ErrEmptyMessage):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text required")
		case errors.Is(err, services.ErrTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text too long")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeAnswerFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, PostMessageResponse{Message: m})
}

// SubmitImage runs the image pipeline for one multipart upload.
//
// Form fields: "image" (the file, required), optional "width" and "height"
// (capture-time pixel dimensions). On success the response carries the
// finalized message, the AI confirmation, and the committed report. On an
// upload or analysis failure the optimistic message has already been rolled
// back and a 502 is returned.
func (h *Handlers) SubmitImage(c *gin.Context) {
	ctx := c.Request.Context()
	chatID := c.Param("id")

	fh, err := c.FormFile("image")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "image file required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable image file")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable image file")
		return
	}

	in := services.SubmitImageInput{
		ChatID:         chatID,
		UserID:         userID(c),
		IdempotencyKey: idempotencyKey(c),
		Filename:       fh.Filename,
		ContentType:    fh.Header.Get("Content-Type"),
		Data:           data,
		Width:          utils.AtoiDefault(c.PostForm("width"), 0),
		Height:         utils.AtoiDefault(c.PostForm("height"), 0),
	}

	res, err := h.pipeSvc.SubmitImage(ctx, in)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyImage):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "image is empty")
		case errors.Is(err, services.ErrExternalService):
			fail(c, http.StatusBadGateway, ErrCodeAnalysisFailed, "image analysis failed")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	if res.Replayed {
		c.Header("Idempotency-Replayed", "true")
	}
	ok(c, http.StatusOK, res)
}
