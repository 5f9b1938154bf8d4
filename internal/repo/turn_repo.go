// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for turn records,
// which make a retried turn safe to resubmit under the same key.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-session-store/internal/domain"
)

// GetTurn returns a non-expired turn record for (conversationID, key) or
// ErrNotFound.
func GetTurn(ctx context.Context, db *gorm.DB, conversationID, key string, now time.Time) (*domain.Turn, error) {
	if strings.TrimSpace(conversationID) == "" || strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Turn
	err := db.WithContext(ctx).
		Where("conversation_id = ? AND key = ? AND expires_at > ?", conversationID, key, now.UTC()).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateTurn records that the inbound half of a turn was stored. It returns
// ErrDuplicate when a record for (conversationID, key) already exists.
func CreateTurn(ctx context.Context, db *gorm.DB, conversationID, key, inboundID string, ttl time.Duration, now time.Time) (*domain.Turn, error) {
	now = now.UTC()
	rec := &domain.Turn{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Key:            key,
		InboundID:      inboundID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}
	if err := db.WithContext(ctx).Omit("Conversation").Create(rec).Error; err != nil {
		if IsDuplicate(err) {
			return nil, ErrDuplicate
		}
		if IsForeignKey(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// CompleteTurn stores the outbound message ID, marking the turn complete.
// Only an incomplete record is updated; ErrNotFound is returned otherwise.
func CompleteTurn(ctx context.Context, db *gorm.DB, turnID, outboundID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Turn{}).
		Where("id = ? AND outbound_id IS NULL", turnID).
		Update("outbound_id", outboundID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeExpiredTurns deletes turn records whose TTL has passed and returns
// how many were removed.
func PurgeExpiredTurns(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&domain.Turn{})
	return res.RowsAffected, res.Error
}
