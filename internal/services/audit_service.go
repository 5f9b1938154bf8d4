// Package services – AuditService
//
// This file implements AuditService, the recorder for the flat audit
// ledger. The ledger is write-once: entries are appended and queried, never
// changed. A failed action is still an event, so success=false entries are
// stored and returned like any other.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-session-store/internal/domain"
	"github.com/tbourn/go-session-store/internal/observability"
	"github.com/tbourn/go-session-store/internal/repo"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AuditRecord is one event to append. A nil Success means the action
// succeeded.
type AuditRecord struct {
	UserID  *string
	Action  string
	Agent   *string
	Details map[string]any
	Success *bool
}

// AuditQuery selects ledger entries; see repo.AuditFilter for semantics.
type AuditQuery = repo.AuditFilter

// Default and maximum number of entries returned by Query.
const (
	DefaultAuditLimit = 100
	MaxAuditLimit     = 1000
)

// AuditService records and queries audit entries.
type AuditService struct {
	DB  *gorm.DB
	Now func() time.Time
}

// NewAuditService constructs an AuditService.
func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

// Validate returns rec with its labels canonicalized and its user id
// trimmed, or the ErrInvalidArgument that Record would fail with. It does not
// touch the database.
func (s *AuditService) Validate(rec AuditRecord) (AuditRecord, error) {
	action, err := canonicalLabel(rec.Action, maxActionLen)
	if err != nil {
		return rec, err
	}
	if action == "" {
		return rec, ErrEmptyAction
	}
	agent, err := optionalLabel(rec.Agent, maxAgentLen)
	if err != nil {
		return rec, err
	}
	userID, err := optionalUserID(rec.UserID)
	if err != nil {
		return rec, err
	}
	rec.Action, rec.Agent, rec.UserID = action, agent, userID
	return rec, nil
}

// Record appends rec to the ledger. Beyond Validate nothing is checked, so
// the only other failure is ErrUnavailable.
func (s *AuditService) Record(ctx context.Context, rec AuditRecord) (*domain.AuditEntry, error) {
	tr := observability.Tracer("AuditService")
	ctx, span := tr.Start(ctx, "Record",
		trace.WithAttributes(attribute.String("audit.action", rec.Action)),
	)
	defer span.End()

	rec, err := s.Validate(rec)
	if err != nil {
		return nil, err
	}
	success := true
	if rec.Success != nil {
		success = *rec.Success
	}
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}

	e, err := repo.CreateAuditEntry(ctx, s.DB, rec.UserID, rec.Action, rec.Agent, rec.Details, success, now)
	if err != nil {
		err = storeErr(err, nil)
		span.RecordError(err)
		return nil, err
	}
	observability.AuditRecorded(success)
	return e, nil
}

// Query returns entries matching q, newest first. A zero limit means
// DefaultAuditLimit; larger limits are capped at MaxAuditLimit.
func (s *AuditService) Query(ctx context.Context, q AuditQuery) ([]domain.AuditEntry, error) {
	tr := observability.Tracer("AuditService")
	ctx, span := tr.Start(ctx, "Query")
	defer span.End()

	if q.Limit < 0 {
		return nil, ErrInvalidLimit
	}
	if q.Limit == 0 {
		q.Limit = DefaultAuditLimit
	}
	if q.Limit > MaxAuditLimit {
		q.Limit = MaxAuditLimit
	}
	if q.From != nil && q.To != nil && !q.From.Before(*q.To) {
		return nil, ErrInvalidTimeWindow
	}
	var err error
	if q.Action, err = optionalLabel(q.Action, maxActionLen); err != nil {
		return nil, err
	}
	if q.Agent, err = optionalLabel(q.Agent, maxAgentLen); err != nil {
		return nil, err
	}
	if q.UserID, err = optionalUserID(q.UserID); err != nil {
		return nil, err
	}

	out, err := repo.QueryAudit(ctx, s.DB, q)
	if err != nil {
		return nil, storeErr(err, nil)
	}
	if out == nil {
		out = []domain.AuditEntry{}
	}
	span.SetAttributes(attribute.Int("audit.returned", len(out)))
	return out, nil
}
