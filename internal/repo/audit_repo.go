// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the audit
// ledger. Entries are write-once: there is no update or delete here.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-session-store/internal/domain"
)

// AuditFilter selects audit entries. Nil fields do not constrain the query.
// From is inclusive and To is exclusive. Limit <= 0 means no limit.
type AuditFilter struct {
	From    *time.Time
	To      *time.Time
	UserID  *string
	Action  *string
	Agent   *string
	Success *bool
	Limit   int
}

// CreateAuditEntry appends one entry to the ledger, assigning its ID and
// timestamp.
func CreateAuditEntry(ctx context.Context, db *gorm.DB, userID *string, action string, agent *string, details map[string]any, success bool, now time.Time) (*domain.AuditEntry, error) {
	d := datatypes.JSONMap{}
	for k, v := range details {
		d[k] = v
	}
	e := &domain.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: now.UTC(),
		UserID:    userID,
		Action:    action,
		Agent:     agent,
		Details:   d,
		Success:   success,
	}
	// A struct create would swap a false Success for the column default, so
	// the row is written column by column.
	row := map[string]any{
		"id":        e.ID,
		"timestamp": e.Timestamp,
		"user_id":   nullable(e.UserID),
		"action":    e.Action,
		"agent":     nullable(e.Agent),
		"details":   e.Details,
		"success":   e.Success,
	}
	if err := db.WithContext(ctx).Model(&domain.AuditEntry{}).Create(row).Error; err != nil {
		return nil, err
	}
	return e, nil
}

// nullable turns a nil *string into an untyped nil for map-based writes.
func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// QueryAudit returns entries matching f, newest first (timestamp DESC,
// id DESC). Failed and successful entries are treated alike unless
// f.Success is set.
func QueryAudit(ctx context.Context, db *gorm.DB, f AuditFilter) ([]domain.AuditEntry, error) {
	q := db.WithContext(ctx).Model(&domain.AuditEntry{})
	if f.From != nil {
		q = q.Where("timestamp >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("timestamp < ?", f.To.UTC())
	}
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.Action != nil {
		q = q.Where("action = ?", *f.Action)
	}
	if f.Agent != nil {
		q = q.Where("agent = ?", *f.Agent)
	}
	if f.Success != nil {
		q = q.Where("success = ?", *f.Success)
	}
	q = q.Order("timestamp DESC, id DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []domain.AuditEntry
	err := q.Find(&out).Error
	return out, err
}
