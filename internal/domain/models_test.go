package domain

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "domain.db") + "?_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Conversation{}, &Message{}, &AuditEntry{}, &Turn{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(Conversation{}).TableName(): "conversations",
		(Message{}).TableName():      "messages",
		(AuditEntry{}).TableName():   "audit_log",
		(Turn{}).TableName():         "turns",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestValidRole(t *testing.T) {
	for _, r := range []string{RoleUser, RoleAssistant, RoleSystem} {
		if !ValidRole(r) {
			t.Fatalf("ValidRole(%q) = false; want true", r)
		}
	}
	for _, r := range []string{"", "User", "tool", "bot"} {
		if ValidRole(r) {
			t.Fatalf("ValidRole(%q) = true; want false", r)
		}
	}
}

func TestTurn_Complete(t *testing.T) {
	if (Turn{InboundID: "in"}).Complete() {
		t.Fatalf("turn without outbound reported complete")
	}
	empty := ""
	if (Turn{InboundID: "in", OutboundID: &empty}).Complete() {
		t.Fatalf("turn with empty outbound reported complete")
	}
	out := "out"
	if !(Turn{InboundID: "in", OutboundID: &out}).Complete() {
		t.Fatalf("turn with outbound reported incomplete")
	}
}

func seedConversation(t *testing.T, db *gorm.DB, id, key string) {
	t.Helper()
	now := time.Now().UTC()
	c := &Conversation{ID: id, ThreadKey: key, CreatedAt: now, UpdatedAt: now, Metadata: datatypes.JSONMap{}}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("insert conversation: %v", err)
	}
}

func TestMigrations_Indexes_AndCascades(t *testing.T) {
	db := newDomainDB(t)
	m := db.Migrator()

	for _, tbl := range []any{&Conversation{}, &Message{}, &AuditEntry{}, &Turn{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	for _, idx := range []struct {
		model any
		name  string
	}{
		{&Conversation{}, "ux_conversations_thread_key"},
		{&Conversation{}, "idx_conversations_user"},
		{&Conversation{}, "idx_conversations_channel"},
		{&Message{}, "idx_conversation_msgs"},
		{&Message{}, "ux_messages_id"},
		{&AuditEntry{}, "idx_audit_timestamp"},
		{&Turn{}, "ux_turns_conversation_key"},
	} {
		if !m.HasIndex(idx.model, idx.name) {
			t.Fatalf("expected index %s on %T", idx.name, idx.model)
		}
	}

	seedConversation(t, db, "c1", "k1")

	// Duplicate thread keys are rejected by the unique index.
	now := time.Now().UTC()
	dup := &Conversation{ID: "c2", ThreadKey: "k1", CreatedAt: now, UpdatedAt: now, Metadata: datatypes.JSONMap{}}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected unique violation on thread_key")
	}

	for i, role := range []string{RoleUser, RoleAssistant} {
		msg := &Message{ID: "m" + string(rune('1'+i)), ConversationID: "c1", Role: role, Content: "x", CreatedAt: now, Metadata: datatypes.JSONMap{}}
		if err := db.Omit("Conversation").Create(msg).Error; err != nil {
			t.Fatalf("insert message: %v", err)
		}
	}

	// The check constraint keeps roles in the closed set.
	bad := &Message{ID: "m9", ConversationID: "c1", Role: "tool", Content: "x", CreatedAt: now, Metadata: datatypes.JSONMap{}}
	if err := db.Omit("Conversation").Create(bad).Error; err == nil {
		t.Fatalf("expected check constraint failure for role=tool")
	}

	// Messages cannot reference a missing conversation.
	orphan := &Message{ID: "m8", ConversationID: "nope", Role: RoleUser, Content: "x", CreatedAt: now, Metadata: datatypes.JSONMap{}}
	if err := db.Omit("Conversation").Create(orphan).Error; err == nil {
		t.Fatalf("expected foreign key failure for orphan message")
	}

	if err := db.Delete(&Conversation{}, "id = ?", "c1").Error; err != nil {
		t.Fatalf("delete conversation: %v", err)
	}
	var cnt int64
	if err := db.Model(&Message{}).Where("conversation_id = ?", "c1").Count(&cnt).Error; err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("expected messages to cascade-delete with conversation, got count=%d", cnt)
	}
}

func TestMessage_AppendOnly(t *testing.T) {
	db := newDomainDB(t)
	seedConversation(t, db, "c1", "k1")

	msg := &Message{ID: "m1", ConversationID: "c1", Role: RoleUser, Content: "hello", CreatedAt: time.Now().UTC(), Metadata: datatypes.JSONMap{}}
	if err := db.Omit("Conversation").Create(msg).Error; err != nil {
		t.Fatalf("insert message: %v", err)
	}
	err := db.Model(msg).Update("content", "edited").Error
	if !errors.Is(err, ErrAppendOnly) {
		t.Fatalf("update err = %v; want ErrAppendOnly", err)
	}

	var got Message
	if err := db.First(&got, "id = ?", "m1").Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Content != "hello" {
		t.Fatalf("content changed to %q", got.Content)
	}
}

func TestAuditEntry_WriteOnce(t *testing.T) {
	db := newDomainDB(t)

	e := &AuditEntry{ID: "a1", Timestamp: time.Now().UTC(), Action: "login", Details: datatypes.JSONMap{}, Success: true}
	if err := db.Create(e).Error; err != nil {
		t.Fatalf("insert audit: %v", err)
	}
	if err := db.Model(e).Update("success", false).Error; !errors.Is(err, ErrAppendOnly) {
		t.Fatalf("update err = %v; want ErrAppendOnly", err)
	}
	if err := db.Delete(e).Error; !errors.Is(err, ErrAppendOnly) {
		t.Fatalf("delete err = %v; want ErrAppendOnly", err)
	}

	var got AuditEntry
	if err := db.First(&got, "id = ?", "a1").Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !got.Success {
		t.Fatalf("entry changed after rejected update")
	}
}

func TestAuditEntry_SchemaDefaults(t *testing.T) {
	db := newDomainDB(t)

	// A row written without success or details takes the column defaults.
	if err := db.Exec(`INSERT INTO audit_log (id, timestamp, action) VALUES (?, ?, ?)`,
		"a2", time.Now().UTC(), "export").Error; err != nil {
		t.Fatalf("raw insert: %v", err)
	}
	var got AuditEntry
	if err := db.First(&got, "id = ?", "a2").Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !got.Success || got.Details == nil || len(got.Details) != 0 {
		t.Fatalf("defaults not applied: success=%v details=%v", got.Success, got.Details)
	}
}
