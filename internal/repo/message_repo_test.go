package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-session-store/internal/domain"
)

func TestCreateMessage_AssignsFields(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedConversation(t, db, "c1", "k1", nil, nil, now)

	agent := "finance"
	m, err := CreateMessage(ctx, db, NewMessage{
		ConversationID: "c1",
		Role:           domain.RoleAssistant,
		Content:        "Q3 revenue is up.",
		Agent:          &agent,
		Metadata:       map[string]any{"tokens": 12},
	}, now)
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if m.ID == "" || m.Seq == 0 || !m.CreatedAt.Equal(now) {
		t.Fatalf("unexpected fields: %+v", m)
	}

	got, err := GetMessage(ctx, db, m.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.Content != "Q3 revenue is up." || got.Agent == nil || *got.Agent != "finance" || got.Seq != m.Seq {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
	if got.Metadata["tokens"] != float64(12) {
		t.Fatalf("metadata = %v; want tokens=12", got.Metadata)
	}
}

func TestCreateMessage_UnknownConversation(t *testing.T) {
	db := newTestDB(t, allModels()...)
	_, err := CreateMessage(context.Background(), db, NewMessage{ConversationID: "nope", Role: domain.RoleUser, Content: "hi"}, time.Now())
	if !IsNotFound(err) {
		t.Fatalf("err = %v; want ErrNotFound", err)
	}
	if n, _, _ := MessagesStats(context.Background(), db, "nope"); n != 0 {
		t.Fatalf("orphan message stored")
	}
}

func TestMessagesStats_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	if _, _, err := MessagesStats(context.Background(), db, "c1"); err == nil {
		t.Fatalf("expected error due to missing messages table")
	}
}

func TestListMessages_OrderTieBreakLimitAndCursor(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedConversation(t, db, "c1", "k1", nil, nil, base)
	seedConversation(t, db, "c2", "k2", nil, nil, base)

	// Three messages share a timestamp; insertion order must decide.
	stamps := []time.Time{base, base.Add(time.Second), base.Add(time.Second), base.Add(time.Second), base.Add(2 * time.Second)}
	var ids []string
	for i, at := range stamps {
		m, err := CreateMessage(ctx, db, NewMessage{ConversationID: "c1", Role: domain.RoleUser, Content: string(rune('a' + i))}, at)
		if err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
		ids = append(ids, m.ID)
	}
	if _, err := CreateMessage(ctx, db, NewMessage{ConversationID: "c2", Role: domain.RoleUser, Content: "other"}, base); err != nil {
		t.Fatalf("CreateMessage c2: %v", err)
	}

	assertIDs := func(label string, got []domain.Message, want []string) {
		t.Helper()
		if len(got) != len(want) {
			t.Fatalf("%s: len = %d; want %d", label, len(got), len(want))
		}
		for i := range want {
			if got[i].ID != want[i] {
				t.Fatalf("%s: [%d] = %s; want %s", label, i, got[i].ID, want[i])
			}
		}
	}

	all, err := ListMessages(ctx, db, "c1", 0, nil)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	assertIDs("all", all, ids)

	last2, err := ListMessages(ctx, db, "c1", 2, nil)
	if err != nil {
		t.Fatalf("ListMessages limit: %v", err)
	}
	assertIDs("last2", last2, ids[3:])

	cursor, err := GetMessage(ctx, db, ids[3])
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	before, err := ListMessages(ctx, db, "c1", 2, cursor)
	if err != nil {
		t.Fatalf("ListMessages before: %v", err)
	}
	assertIDs("before", before, ids[1:3])

	unbounded, err := ListMessages(ctx, db, "c1", 0, cursor)
	if err != nil {
		t.Fatalf("ListMessages before unbounded: %v", err)
	}
	assertIDs("before-unbounded", unbounded, ids[:3])
}

func TestCreateMessage_StaleTimestampKeepsCommitOrder(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedConversation(t, db, "c1", "k1", nil, nil, t0)

	// b commits first with the later clock reading; a read its clock
	// earlier but commits second.
	b, err := CreateMessage(ctx, db, NewMessage{ConversationID: "c1", Role: domain.RoleUser, Content: "b"}, t0.Add(2*time.Second))
	if err != nil {
		t.Fatalf("CreateMessage b: %v", err)
	}
	a, err := CreateMessage(ctx, db, NewMessage{ConversationID: "c1", Role: domain.RoleUser, Content: "a"}, t0.Add(time.Second))
	if err != nil {
		t.Fatalf("CreateMessage a: %v", err)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) || a.Seq <= b.Seq {
		t.Fatalf("late insert not clamped: a=%v/%d b=%v/%d", a.CreatedAt, a.Seq, b.CreatedAt, b.Seq)
	}

	all, err := ListMessages(ctx, db, "c1", 0, nil)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(all) != 2 || all[0].ID != b.ID || all[1].ID != a.ID {
		t.Fatalf("history = %v; want [b a]", contents(all))
	}

	// Cursor windows follow the same order.
	older, err := ListMessages(ctx, db, "c1", 0, a)
	if err != nil {
		t.Fatalf("ListMessages before a: %v", err)
	}
	if len(older) != 1 || older[0].ID != b.ID {
		t.Fatalf("before a = %v; want [b]", contents(older))
	}

	// The conversation's updated_at is untouched by appends.
	var c domain.Conversation
	if err := db.First(&c, "id = ?", "c1").Error; err != nil || !c.UpdatedAt.Equal(t0) {
		t.Fatalf("updated_at = %v (err %v); want %v", c.UpdatedAt, err, t0)
	}
}

func contents(ms []domain.Message) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Content)
	}
	return out
}
