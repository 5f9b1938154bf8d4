package domain

import "time"

// Turn records the progress of one inbound/outbound exchange submitted under
// a caller-chosen key, scoped to a single conversation. It lets a retried
// turn resume where it stopped instead of duplicating the inbound message.
//
// A turn is complete once OutboundID is set. A turn with only InboundID is
// partial: the user message was stored but the assistant reply was not.
type Turn struct {
	ID             string    `gorm:"type:char(36);primaryKey"`
	ConversationID string    `gorm:"type:char(36);not null;uniqueIndex:ux_turns_conversation_key,priority:1"`
	Key            string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_turns_conversation_key,priority:2"`
	InboundID      string    `gorm:"type:char(36);not null"`
	OutboundID     *string   `gorm:"type:char(36)"`
	CreatedAt      time.Time `gorm:"not null;autoCreateTime:false"`
	ExpiresAt      time.Time `gorm:"not null;index"`

	Conversation Conversation `gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName implements the GORM tabler interface.
func (Turn) TableName() string { return "turns" }

// Complete reports whether both halves of the turn were persisted.
func (t Turn) Complete() bool { return t.OutboundID != nil && *t.OutboundID != "" }
