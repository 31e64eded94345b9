// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file is the Conversation Log: append-only message
// persistence per chat session plus the session's derived summary fields.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a record is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Contract highlights:
//
//   - AppendMessage assigns the message timestamp at write time (server
//     clock, UTC) and, in the same transaction, upserts the owning session:
//     created if missing, otherwise last_message/last_message_time are
//     overwritten and message_count is incremented as an atomic SQL delta.
//     Call order between session creation and the first append therefore
//     never matters, and concurrent appends never lose increments.
//
//   - FinalizeMessage overwrites only the patched fields (text, images,
//     optimistic); the stored timestamp and sender are never touched, so a
//     finalized message keeps its original position in the chat order.
//
//   - DiscardMessage removes the row permanently. It deliberately does not
//     decrement message_count or repair last_message: the summary may
//     reference a just-deleted message until the next append overwrites it.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/visionary-ai/go-report-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// MessagePatch is the subset of message fields FinalizeMessage may overwrite.
// Nil fields are left untouched.
type MessagePatch struct {
	Text       *string
	Images     domain.ImageRefs
	Optimistic *bool
}

// AppendMessage persists one message for chatID with a store-assigned UTC
// timestamp and updates the session summary in the same transaction. The
// draft's Sender, Text, Images, and Optimistic fields are honored; ID and
// Timestamp are always assigned here.
func AppendMessage(ctx context.Context, db *gorm.DB, chatID string, draft domain.Message) (*domain.Message, error) {
	m := &domain.Message{
		ID:         uuid.NewString(),
		ChatID:     chatID,
		Sender:     draft.Sender,
		Text:       draft.Text,
		Images:     draft.Images,
		Optimistic: draft.Optimistic,
		Timestamp:  time.Now().UTC(),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		// Merge-upsert the session so appends are safe before the session
		// row exists. message_count is a SQL delta, not read-modify-write.
		sess := &domain.ChatSession{
			ID:              chatID,
			LastMessage:     m.Text,
			LastMessageTime: m.Timestamp,
			MessageCount:    1,
			CreatedAt:       m.Timestamp,
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"last_message":      m.Text,
				"last_message_time": m.Timestamp,
				"message_count":     gorm.Expr("message_count + 1"),
				"updated_at":        m.Timestamp,
			}),
		}).Create(sess).Error
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// FinalizeMessage overwrites the patched fields of a message. Timestamp and
// sender are never modified. Returns ErrNotFound when the message is missing.
func FinalizeMessage(ctx context.Context, db *gorm.DB, id string, patch MessagePatch) error {
	updates := map[string]any{}
	if patch.Text != nil {
		updates["text"] = *patch.Text
	}
	if patch.Images != nil {
		updates["images"] = patch.Images
	}
	if patch.Optimistic != nil {
		updates["optimistic"] = *patch.Optimistic
	}
	if len(updates) == 0 {
		return nil
	}
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DiscardMessage permanently removes a message. The session summary is left
// as-is. Returns ErrNotFound when the message is missing.
func DiscardMessage(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Message{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// LoadMessages returns all messages of a chat ordered deterministically
// (Timestamp ASC, ID ASC). Used once per chat resumption; live updates are a
// presentation concern, not this layer's.
func LoadMessages(ctx context.Context, db *gorm.DB, chatID string) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("timestamp ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ListMessagesPage returns a paginated slice ordered (Timestamp ASC, ID ASC).
func ListMessagesPage(ctx context.Context, db *gorm.DB, chatID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("timestamp ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, chatID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM messages WHERE chat_id = ?", chatID).
		Scan(&total).Error
	return total, err
}

// GetMessage fetches a message by ID, or ErrNotFound.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetChatSession fetches a session by ID, or ErrNotFound.
func GetChatSession(ctx context.Context, db *gorm.DB, id string) (*domain.ChatSession, error) {
	var s domain.ChatSession
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListChatSessions returns all sessions ordered by most recent activity.
func ListChatSessions(ctx context.Context, db *gorm.DB) ([]domain.ChatSession, error) {
	var out []domain.ChatSession
	err := db.WithContext(ctx).
		Order("last_message_time desc").
		Find(&out).Error
	return out, err
}

// PutChatSession upserts a full session row keyed by ID. Used by the bulk
// importer, where the CSV is authoritative for every field it carries.
func PutChatSession(ctx context.Context, db *gorm.DB, s *domain.ChatSession) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(s).Error
}

// PutMessage upserts a full message row keyed by ID. Bulk import only; the
// live append path always goes through AppendMessage.
func PutMessage(ctx context.Context, db *gorm.DB, m *domain.Message) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(m).Error
}
