// Package domain defines the persistence models for chat sessions, messages,
// reports, and inspectors. These types are mapped with GORM and form the core
// data layer of the report backend.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Message sender values. The store only ever holds these two.
const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// Report priority levels (internal three-level scale).
const (
	PriorityLow    = "Low"
	PriorityMedium = "Medium"
	PriorityHigh   = "High"
)

// Report lifecycle statuses. A report reaches Completed only through an
// explicit, user-confirmed submission.
const (
	StatusPending    = "Pending"
	StatusInProgress = "In Progress"
	StatusCompleted  = "Completed"
)

// ChatSession represents one conversation and its derived summary fields.
// A session may be linked 1:1 to a report once an analyzed image has produced
// one; the link is written atomically together with the report row.
//
// Fields:
//   - ID: stable identifier; either client-issued ("chat_…") or a UUID.
//   - ReportID: optional back-link to the report created from this chat.
//   - LastMessage / LastMessageTime: overwritten on every append. After a
//     message discard they may briefly reference a message that no longer
//     exists; that staleness window is accepted and not repaired.
//   - MessageCount: monotonically non-decreasing; incremented once per
//     persisted message via an atomic SQL delta, never decremented.
//   - DeletedAt: soft deletion marker (a session is removed only alongside
//     its report).
type ChatSession struct {
	ID              string         `json:"id"                  gorm:"type:varchar(64);primaryKey"`
	ReportID        *string        `json:"report_id,omitempty" gorm:"type:char(36);index"`
	LastMessage     string         `json:"last_message"        gorm:"type:text"`
	LastMessageTime time.Time      `json:"last_message_time"`
	MessageCount    int64          `json:"message_count"       gorm:"not null;default:0"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-"                   gorm:"index"`
}

// TableName returns the database table name for ChatSession.
func (ChatSession) TableName() string { return "chat_sessions" }

// ImageRef is one image attachment on a message: the retrieval URI plus the
// pixel dimensions the client reported at capture time.
type ImageRef struct {
	URI    string `json:"uri"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// ImageRefs is an ordered list of image attachments persisted as a JSON text
// column. It implements driver.Valuer / sql.Scanner so the list survives the
// round trip through any GORM dialect without a dialect-specific type.
type ImageRefs []ImageRef

// Value marshals the list to JSON for storage. An empty list stores NULL.
func (ir ImageRefs) Value() (driver.Value, error) {
	if len(ir) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(ir)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan unmarshals a stored JSON value back into the list.
func (ir *ImageRefs) Scan(src any) error {
	if src == nil {
		*ir = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, ir)
	case string:
		return json.Unmarshal([]byte(v), ir)
	default:
		return fmt.Errorf("images: unsupported scan type %T", src)
	}
}

// Message represents a single utterance within a chat session, authored
// either by the "user" or the "ai" assistant, optionally carrying image
// attachments.
//
// Timestamp is assigned by the store at write time, not by the client, so
// messages have a total order per chat independent of client clock skew.
//
// Optimistic marks a message that is provisionally visible while an image
// pipeline run is still reconciling it. An optimistic message is always
// either finalized (Optimistic cleared, text/images overwritten) or
// permanently deleted; it never stays optimistic. Deletion is physical, not
// soft: a discarded message must be absent from every subsequent read.
type Message struct {
	ID         string    `json:"id"         gorm:"type:char(36);primaryKey"`
	ChatID     string    `json:"chat_id"    gorm:"type:varchar(64);not null;index:idx_chat_msgs,priority:1"`
	Sender     string    `json:"sender"     gorm:"type:varchar(8);not null;check:sender IN ('user','ai')"`
	Text       string    `json:"text"       gorm:"type:text;not null"`
	Images     ImageRefs `json:"images,omitempty" gorm:"type:text"`
	Optimistic bool      `json:"optimistic" gorm:"not null;default:false"`
	Timestamp  time.Time `json:"timestamp"  gorm:"index:idx_chat_msgs,priority:2"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Report represents a structured issue record materialized from image
// analysis (or bulk import). Each report references the chat it originated
// from; the chat's ReportID points back, and the pair is established by a
// single atomic multi-record write.
//
// Fields:
//   - Title / Description / Category / Type: analysis-derived content.
//   - Priority: internal scale (Low/Medium/High), mapped from the analysis
//     service's severity vocabulary.
//   - Status: Pending → In Progress → Completed; Completed only via the
//     submit operation, which also stamps SubmittedAt.
//   - Agent: inspector attribution carried by bulk imports.
//   - Date: report date formatted yyyy-mm-dd.
type Report struct {
	ID          string         `json:"id"          gorm:"type:char(36);primaryKey"`
	Title       string         `json:"title"       gorm:"type:varchar(255);not null"`
	Description string         `json:"description" gorm:"type:text"`
	Category    string         `json:"category"    gorm:"type:varchar(128)"`
	Type        string         `json:"type"        gorm:"type:varchar(128)"`
	Priority    string         `json:"priority"    gorm:"type:varchar(16);not null;check:priority IN ('Low','Medium','High')"`
	Status      string         `json:"status"      gorm:"type:varchar(16);not null;check:status IN ('Pending','In Progress','Completed')"`
	ChatID      string         `json:"chat_id"     gorm:"type:varchar(64);index"`
	Agent       string         `json:"agent,omitempty" gorm:"type:varchar(128)"`
	Date        string         `json:"date"        gorm:"type:varchar(10)"`
	SubmittedAt *time.Time     `json:"submitted_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-"           gorm:"index"`
}

// TableName returns the database table name for Report.
func (Report) TableName() string { return "reports" }

// Inspector is a reference entity loaded by the bulk importer. The service
// never mutates inspectors at runtime; reports attribute them by name in
// their Agent field.
type Inspector struct {
	ID             string    `json:"id"              gorm:"type:varchar(64);primaryKey"`
	Name           string    `json:"name"            gorm:"type:varchar(128);not null"`
	AircraftID     string    `json:"aircraft_id"     gorm:"type:varchar(64)"`
	DateAssigned   string    `json:"date_assigned"   gorm:"type:varchar(10)"`
	Shift          string    `json:"shift"           gorm:"type:varchar(32)"`
	InspectionZone string    `json:"inspection_zone" gorm:"type:varchar(128)"`
	Location       string    `json:"location"        gorm:"type:varchar(128)"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the database table name for Inspector.
func (Inspector) TableName() string { return "inspectors" }
