package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func ptr[T any](v T) *T { return &v }

func TestMessageDoc_Migration_Indexes_AndNullables(t *testing.T) {
	db := newTestDB(t)
	m := db.Migrator()
	if err := db.AutoMigrate(&MessageDoc{}, &AnonIdentity{}, &NameReservation{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	if !m.HasTable("messages") || !m.HasTable("anon_identities") || !m.HasTable("name_reservations") {
		t.Fatalf("expected tables to exist")
	}
	for _, idx := range []string{IndexHistory, IndexLive} {
		if !m.HasIndex(&MessageDoc{}, idx) {
			t.Fatalf("expected composite index %s", idx)
		}
	}

	// A legacy row with every optional field NULL.
	now := time.Now().UTC().Truncate(time.Microsecond)
	if err := db.Exec(`INSERT INTO messages (id, channel, created_at, content, username) VALUES (?,?,?,?,?)`,
		"00000000-0000-4000-8000-000000000001", "general", now, "hi", "Quiet Owl").Error; err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}

	var doc MessageDoc
	if err := db.First(&doc, "id = ?", "00000000-0000-4000-8000-000000000001").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	msg := FromDoc(doc)
	if msg.Reported || msg.ReportCount != 0 || msg.ReplyTo != nil || msg.AuthorID != "" {
		t.Fatalf("defaults not applied: %+v", msg)
	}
	if !msg.CreatedAt.Equal(now) {
		t.Fatalf("created_at = %v; want %v", msg.CreatedAt, now)
	}

	// NOT NULL columns reject NULL.
	for _, col := range []string{"channel", "created_at", "content", "username"} {
		vals := map[string]any{"id": "x-" + col, "channel": "general", "created_at": now, "content": "c", "username": "u"}
		vals[col] = nil
		if err := db.Table("messages").Create(vals).Error; err == nil {
			t.Fatalf("expected NOT NULL violation for %q", col)
		}
	}
}

func TestFromDoc_Defaults(t *testing.T) {
	base := MessageDoc{ID: "m-1", Channel: "support", Username: "u", Content: "c", CreatedAt: time.Unix(100, 0)}

	neg := base
	neg.ReportCount = ptr(-3)
	if FromDoc(neg).ReportCount != 0 {
		t.Fatalf("negative report count must clamp to 0")
	}

	emptyReply := base
	emptyReply.ReplyToMessageID = ptr("")
	emptyReply.ReplyToContent = ptr("orphan")
	if FromDoc(emptyReply).ReplyTo != nil {
		t.Fatalf("empty reply id must not produce a link")
	}

	partial := base
	partial.ReplyToMessageID = ptr("m-0")
	got := FromDoc(partial).ReplyTo
	if got == nil || got.MessageID != "m-0" || got.Username != "" || got.Content != "" {
		t.Fatalf("partial reply link = %+v", got)
	}

	if FromDoc(base).CreatedAt.Location() != time.UTC {
		t.Fatalf("created_at must be UTC")
	}
}

func TestToDoc_FromDoc(t *testing.T) {
	in := Message{
		ID:          "m-2",
		Channel:     "library",
		Username:    "Quiet Owl",
		Content:     "anyone here?",
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Reported:    true,
		ReportCount: 3,
		ReplyTo:     &ReplyLink{MessageID: "m-1", Username: "Loud Fox", Content: "hello"},
		AuthorID:    "subject-1",
	}
	d := ToDoc(in)
	if d.Reported == nil || !*d.Reported || d.ReportCount == nil || *d.ReportCount != 3 {
		t.Fatalf("report fields not written: %+v", d)
	}
	if d.ReplyToMessageID == nil || *d.ReplyToUsername != "Loud Fox" {
		t.Fatalf("reply fields not written: %+v", d)
	}
	out := FromDoc(d)
	if out.ID != in.ID || out.AuthorID != in.AuthorID || *out.ReplyTo != *in.ReplyTo || out.ReportCount != 3 {
		t.Fatalf("mapping lost data: %+v", out)
	}

	plain := ToDoc(Message{ID: "m-3"})
	if plain.Reported == nil || *plain.Reported || plain.ReportCount == nil || *plain.ReportCount != 0 {
		t.Fatalf("report fields must be explicit zeros")
	}
	if plain.ReplyToMessageID != nil {
		t.Fatalf("no reply expected")
	}
}
