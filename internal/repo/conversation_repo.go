// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only
// persistence and query composition.
//
// Error semantics:
//   - When a conversation is not found, functions return ErrNotFound
//     (an alias of gorm.ErrRecordNotFound).
//   - Unique-key violations on insert are reported as ErrDuplicate.
//   - Any other DB error is propagated unchanged.
package repo

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-session-store/internal/domain"
)

// ConversationFilter narrows conversation listings. Nil fields are ignored;
// a filter with no fields set matches every conversation.
type ConversationFilter struct {
	UserID    *string
	ChannelID *int64
}

func (f ConversationFilter) apply(q *gorm.DB) *gorm.DB {
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.ChannelID != nil {
		q = q.Where("channel_id = ?", *f.ChannelID)
	}
	return q
}

// CreateConversation inserts c as-is. The caller assigns ID, ThreadKey and
// timestamps. A thread key that already exists yields ErrDuplicate.
func CreateConversation(ctx context.Context, db *gorm.DB, c *domain.Conversation) error {
	if c.Metadata == nil {
		c.Metadata = datatypes.JSONMap{}
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// InsertConversationIfAbsent inserts c unless a conversation with the same
// thread key already exists, in which case nothing is written and inserted
// is false. The check and the insert are a single statement, so concurrent
// callers racing on one key cannot both insert.
func InsertConversationIfAbsent(ctx context.Context, db *gorm.DB, c *domain.Conversation) (inserted bool, err error) {
	if c.Metadata == nil {
		c.Metadata = datatypes.JSONMap{}
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "thread_key"}},
			DoNothing: true,
		}).
		Create(c)
	if res.Error != nil {
		// A conflict on the primary key rather than thread_key still means
		// "someone else got there first" from the caller's point of view.
		if IsDuplicate(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetConversation fetches a conversation by its internal ID.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConversationByThreadKey fetches a conversation by its external handle.
func GetConversationByThreadKey(ctx context.Context, db *gorm.DB, key string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("thread_key = ?", key).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// TouchConversation sets updated_at to now. It returns ErrNotFound when no
// row matches id.
func TouchConversation(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Update("updated_at", now.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateConversationMetadata merges patch into the stored metadata and sets
// updated_at in the same write. Keys with a nil value are removed. The
// updated conversation is returned.
func UpdateConversationMetadata(ctx context.Context, db *gorm.DB, id string, patch map[string]any, now time.Time) (*domain.Conversation, error) {
	var out *domain.Conversation
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c domain.Conversation
		if err := tx.Where("id = ?", id).First(&c).Error; err != nil {
			return err
		}
		merged := datatypes.JSONMap{}
		for k, v := range c.Metadata {
			merged[k] = v
		}
		for k, v := range patch {
			if v == nil {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}
		res := tx.Model(&domain.Conversation{}).
			Where("id = ?", id).
			Updates(map[string]any{"metadata": merged, "updated_at": now.UTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		c.Metadata = merged
		c.UpdatedAt = now.UTC()
		out = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteConversation removes the conversation with all of its messages and
// turn records in one transaction. Nothing is removed when any step fails.
// It returns ErrNotFound when the conversation does not exist.
func DeleteConversation(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&domain.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&domain.Turn{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&domain.Conversation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListConversations returns conversations matching f, newest first
// (created_at DESC, id DESC). A limit <= 0 returns every match.
func ListConversations(ctx context.Context, db *gorm.DB, f ConversationFilter, offset, limit int) ([]domain.Conversation, error) {
	var out []domain.Conversation
	q := f.apply(db.WithContext(ctx).Model(&domain.Conversation{})).
		Order("created_at DESC, id DESC")
	if offset > 0 {
		q = q.Offset(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountConversations returns the number of conversations matching f.
func CountConversations(ctx context.Context, db *gorm.DB, f ConversationFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.Conversation{})).Count(&total).Error
	return total, err
}
