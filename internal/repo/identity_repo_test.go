package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-campus-chat/internal/domain"
)

func TestCreateAnonIdentity(t *testing.T) {
	db := newTestDB(t)
	a, err := CreateAnonIdentity(context.Background(), db, base)
	if err != nil {
		t.Fatalf("CreateAnonIdentity: %v", err)
	}
	b, err := CreateAnonIdentity(context.Background(), db, base)
	if err != nil {
		t.Fatalf("CreateAnonIdentity: %v", err)
	}
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct ids, got %q %q", a.ID, b.ID)
	}
}

func TestReserveName_ConflictsAndRefresh(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := ReserveName(ctx, db, "quiet fox", "Quiet Fox", "s1", base); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	// Same session may re-reserve.
	if err := ReserveName(ctx, db, "quiet fox", "quiet fox", "s1", base); err != nil {
		t.Fatalf("re-reserve by owner: %v", err)
	}
	// Another session may not.
	if err := ReserveName(ctx, db, "quiet fox", "QUIET FOX", "s2", base); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}

	// Choosing a new name frees the old one.
	if err := ReserveName(ctx, db, "night owl", "Night Owl", "s1", base); err != nil {
		t.Fatalf("reserve new: %v", err)
	}
	if err := ReserveName(ctx, db, "quiet fox", "Quiet Fox", "s2", base); err != nil {
		t.Fatalf("old name should be free: %v", err)
	}

	var n int64
	db.Model(&domain.NameReservation{}).Where("session_id = ?", "s1").Count(&n)
	if n != 1 {
		t.Fatalf("session should hold one name, holds %d", n)
	}

	if err := ReleaseName(ctx, db, "s1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := ReserveName(ctx, db, "night owl", "night owl", "s3", base); err != nil {
		t.Fatalf("released name should be free: %v", err)
	}
}

func TestReserveName_RejectsBlank(t *testing.T) {
	db := newTestDB(t)
	if err := ReserveName(context.Background(), db, " ", "x", "s1", base); err == nil {
		t.Fatalf("expected error for blank key")
	}
}
