// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model. Messages are append-only; there is no update or single-row delete.
package repo

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-session-store/internal/domain"
)

// NewMessage is the caller-supplied part of a message. Identity, Seq and
// CreatedAt are assigned on insert.
type NewMessage struct {
	ConversationID string
	Role           string
	Content        string
	Agent          *string
	Metadata       map[string]any
}

// CreateMessage appends a message to its conversation and returns
// ErrNotFound when the conversation does not exist.
//
// Appends to one conversation are serialized on the conversation row, and
// CreatedAt is raised to the newest existing message's timestamp when now is
// older, so (created_at, seq) order always equals commit order.
func CreateMessage(ctx context.Context, db *gorm.DB, in NewMessage, now time.Time) (*domain.Message, error) {
	meta := datatypes.JSONMap{}
	for k, v := range in.Metadata {
		meta[k] = v
	}
	m := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: in.ConversationID,
		Role:           in.Role,
		Content:        in.Content,
		Agent:          in.Agent,
		CreatedAt:      now.UTC(),
		Metadata:       meta,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A no-op write takes the row lock on postgres and the database
		// write lock on SQLite before the last timestamp is read.
		res := tx.Exec("UPDATE conversations SET updated_at = updated_at WHERE id = ?", in.ConversationID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		var last struct{ CreatedAt time.Time }
		err := tx.Model(&domain.Message{}).
			Select("created_at").
			Where("conversation_id = ?", in.ConversationID).
			Order("created_at DESC, seq DESC").
			Limit(1).
			Scan(&last).Error
		if err != nil {
			return err
		}
		if last.CreatedAt.After(m.CreatedAt) {
			m.CreatedAt = last.CreatedAt.UTC()
		}
		return tx.Omit("Conversation").Create(m).Error
	})
	if err != nil {
		if IsForeignKey(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns messages of a conversation in ascending
// (created_at, seq) order.
//
// With limit <= 0 and no cursor, the whole history is returned. Otherwise
// the most recent limit messages strictly older than before (when given)
// are selected newest-first and flipped back to ascending order.
func ListMessages(ctx context.Context, db *gorm.DB, conversationID string, limit int, before *domain.Message) ([]domain.Message, error) {
	var out []domain.Message
	q := db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if before != nil {
		q = q.Where("((created_at < ?) OR (created_at = ? AND seq < ?))", before.CreatedAt, before.CreatedAt, before.Seq)
	}
	if limit <= 0 {
		err := q.Order("created_at ASC, seq ASC").Find(&out).Error
		return out, err
	}
	if err := q.Order("created_at DESC, seq DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}
