// Package domain defines the persistence models for conversations, messages,
// and audit entries. These types are mapped with GORM and form the core data
// layer of the session store.
package domain

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Message roles. The set is closed; anything else is rejected.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ErrAppendOnly is returned by model hooks when code attempts to rewrite a
// record that is write-once.
var ErrAppendOnly = errors.New("record is append-only")

// ValidRole reports whether r belongs to the closed role set.
func ValidRole(r string) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Conversation is a chat thread addressed by callers through its ThreadKey.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - ThreadKey: caller-facing handle, unique across all conversations.
//   - UserID: optional owner identity (dashboard / API surfaces).
//   - ChannelID: optional numeric identity (messaging-bot surfaces).
//   - CreatedAt / UpdatedAt: UpdatedAt is written explicitly by every
//     store mutation of this row; message inserts never touch it.
//   - Metadata: caller-defined JSON document, never interpreted here.
type Conversation struct {
	ID        string            `json:"id"                   gorm:"type:char(36);primaryKey"`
	ThreadKey string            `json:"thread_key"           gorm:"type:varchar(128);not null;uniqueIndex:ux_conversations_thread_key"`
	UserID    *string           `json:"user_id,omitempty"    gorm:"type:varchar(64);index:idx_conversations_user"`
	ChannelID *int64            `json:"channel_id,omitempty" gorm:"index:idx_conversations_channel"`
	CreatedAt time.Time         `json:"created_at"           gorm:"not null;autoCreateTime:false"`
	UpdatedAt time.Time         `json:"updated_at"           gorm:"not null;autoUpdateTime:false"`
	Metadata  datatypes.JSONMap `json:"metadata"             gorm:"not null;default:'{}'"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message is a single utterance in a conversation. Ordering within a
// conversation is (CreatedAt, Seq); Seq is assigned by the store on insert
// and is strictly increasing in insertion order.
type Message struct {
	Seq            int64             `json:"seq"              gorm:"primaryKey;autoIncrement"`
	ID             string            `json:"id"               gorm:"type:char(36);not null;uniqueIndex:ux_messages_id"`
	ConversationID string            `json:"conversation_id"  gorm:"type:char(36);not null;index:idx_conversation_msgs,priority:1"`
	Role           string            `json:"role"             gorm:"type:varchar(16);not null;check:role IN ('user','assistant','system')"`
	Content        string            `json:"content"          gorm:"type:text;not null"`
	Agent          *string           `json:"agent,omitempty"  gorm:"type:varchar(64)"`
	CreatedAt      time.Time         `json:"created_at"       gorm:"not null;autoCreateTime:false;index:idx_conversation_msgs,priority:2"`
	Metadata       datatypes.JSONMap `json:"metadata"         gorm:"not null;default:'{}'"`

	// Conversation is the owning thread. Messages are cascade-deleted with it.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// BeforeUpdate rejects any rewrite of a stored message.
func (Message) BeforeUpdate(*gorm.DB) error { return ErrAppendOnly }

// AuditEntry is one row of the flat "what happened" ledger. It is not tied
// to any conversation and is never updated or deleted by this service.
//
// Success defaults to true in the schema. gorm replaces a false Success with
// that default on struct creates, so entries are written through
// repo.CreateAuditEntry.
type AuditEntry struct {
	ID        string            `json:"id"               gorm:"type:char(36);primaryKey"`
	Timestamp time.Time         `json:"timestamp"        gorm:"not null;index:idx_audit_timestamp"`
	UserID    *string           `json:"user_id,omitempty" gorm:"type:varchar(64);index:idx_audit_user"`
	Action    string            `json:"action"           gorm:"type:varchar(128);not null"`
	Agent     *string           `json:"agent,omitempty"  gorm:"type:varchar(64)"`
	Details   datatypes.JSONMap `json:"details"          gorm:"not null;default:'{}'"`
	Success   bool              `json:"success"          gorm:"not null;default:true"`
}

// TableName returns the database table name for AuditEntry.
func (AuditEntry) TableName() string { return "audit_log" }

// BeforeUpdate rejects any rewrite of an audit entry.
func (AuditEntry) BeforeUpdate(*gorm.DB) error { return ErrAppendOnly }

// BeforeDelete rejects deletion; retention is handled outside this service.
func (AuditEntry) BeforeDelete(*gorm.DB) error { return ErrAppendOnly }

// ThreadHandle is what collaborators keep to address a conversation after
// start-or-resume. ThreadKey is the value clients persist to resume later.
type ThreadHandle struct {
	ConversationID string `json:"conversation_id"`
	ThreadKey      string `json:"thread_key"`
	Created        bool   `json:"created"`
}
