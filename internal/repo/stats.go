// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-session-store/internal/domain"
)

// ConversationsStats returns the number of conversations matching f and the
// greatest UpdatedAt among them. maxUpdatedAt is nil when nothing matches.
func ConversationsStats(ctx context.Context, db *gorm.DB, f ConversationFilter) (count int64, maxUpdatedAt *time.Time, err error) {
	if count, err = CountConversations(ctx, db, f); err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	err = f.apply(db.WithContext(ctx).Model(&domain.Conversation{})).
		Select("updated_at").
		Order("updated_at DESC").
		Limit(1).
		Scan(&row).Error
	if err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// MessagesStats returns the number of messages in a conversation and the
// highest Seq among them. Since messages are append-only, the pair changes
// exactly when the history changes.
func MessagesStats(ctx context.Context, db *gorm.DB, conversationID string) (count int64, lastSeq int64, err error) {
	var row struct {
		Count   int64
		LastSeq int64
	}
	err = db.WithContext(ctx).
		Model(&domain.Message{}).
		Select("COUNT(*) AS count, COALESCE(MAX(seq), 0) AS last_seq").
		Where("conversation_id = ?", conversationID).
		Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return row.Count, row.LastSeq, nil
}
