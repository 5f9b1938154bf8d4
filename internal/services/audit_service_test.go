package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAuditService_FailedEntriesAreReturned(t *testing.T) {
	db := newServiceDB(t)
	svc := NewAuditService(db)
	ctx := context.Background()

	ok, err := svc.Record(ctx, AuditRecord{UserID: strp("u1"), Action: "approve_invoice", Agent: strp("finance")})
	if err != nil {
		t.Fatalf("Record ok: %v", err)
	}
	if !ok.Success {
		t.Fatalf("nil Success should default to true")
	}
	failed, err := svc.Record(ctx, AuditRecord{UserID: strp("u1"), Action: "approve_invoice", Agent: strp("finance"), Success: boolp(false), Details: map[string]any{"reason": "limit exceeded"}})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	all, err := svc.Query(ctx, AuditQuery{UserID: strp("u1")})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("entries = %d; want 2 (failed entries are not filtered)", len(all))
	}
	seen := map[string]bool{}
	for _, e := range all {
		seen[e.ID] = e.Success
	}
	if s, found := seen[failed.ID]; !found || s {
		t.Fatalf("failed entry missing or altered: %+v", all)
	}
	if s, found := seen[ok.ID]; !found || !s {
		t.Fatalf("successful entry missing or altered: %+v", all)
	}

	onlyFailed, err := svc.Query(ctx, AuditQuery{Success: boolp(false)})
	if err != nil || len(onlyFailed) != 1 || onlyFailed[0].ID != failed.ID {
		t.Fatalf("success=false filter = %+v, %v", onlyFailed, err)
	}
	if onlyFailed[0].Details["reason"] != "limit exceeded" {
		t.Fatalf("details = %v", onlyFailed[0].Details)
	}
}

func TestAuditService_Validation(t *testing.T) {
	db := newServiceDB(t)
	svc := NewAuditService(db)
	ctx := context.Background()

	for _, action := range []string{"", "   "} {
		if _, err := svc.Record(ctx, AuditRecord{Action: action}); !errors.Is(err, ErrEmptyAction) || !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("action %q err = %v; want ErrEmptyAction", action, err)
		}
	}

	e, err := svc.Record(ctx, AuditRecord{Action: "  Export_Report ", Agent: strp("  "), UserID: strp(" ")})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if e.Action != "export_report" || e.Agent != nil || e.UserID != nil {
		t.Fatalf("labels not canonicalized: %+v", e)
	}

	// Queries canonicalize the same way.
	got, err := svc.Query(ctx, AuditQuery{Action: strp("EXPORT_REPORT")})
	if err != nil || len(got) != 1 {
		t.Fatalf("Query by action = %v, %v", got, err)
	}

	from := time.Now()
	to := from.Add(-time.Minute)
	if _, err := svc.Query(ctx, AuditQuery{From: &from, To: &to}); !errors.Is(err, ErrInvalidTimeWindow) {
		t.Fatalf("inverted window err = %v", err)
	}
	if _, err := svc.Query(ctx, AuditQuery{Limit: -1}); !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("negative limit err = %v", err)
	}
}

func TestAuditService_OrderAndLimit(t *testing.T) {
	db := newServiceDB(t)
	svc := NewAuditService(db)
	ctx := context.Background()

	base := time.Date(2025, 5, 5, 5, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		svc.Now = func() time.Time { return at }
		e, err := svc.Record(ctx, AuditRecord{Action: "tick"})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
		ids = append(ids, e.ID)
	}

	got, err := svc.Query(ctx, AuditQuery{Limit: 2})
	if err != nil || len(got) != 2 || got[0].ID != ids[2] || got[1].ID != ids[1] {
		t.Fatalf("Query = %+v, %v; want newest two", got, err)
	}

	from := base.Add(time.Minute)
	window, err := svc.Query(ctx, AuditQuery{From: &from})
	if err != nil || len(window) != 2 {
		t.Fatalf("from filter = %d, %v; want 2", len(window), err)
	}
}
