// Package repo implements the persistence layer of one backend partition,
// backed by GORM. This file provides repository helpers for anonymous
// identities and display-name reservations.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-campus-chat/internal/domain"
)

// ErrNameTaken indicates that a display name is reserved by another session.
var ErrNameTaken = errors.New("name taken")

// CreateAnonIdentity issues a new anonymous subject.
func CreateAnonIdentity(ctx context.Context, db *gorm.DB, now time.Time) (*domain.AnonIdentity, error) {
	rec := &domain.AnonIdentity{
		ID:        uuid.NewString(),
		CreatedAt: now.UTC(),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

// ReserveName claims key for sessionID. A reservation already held by the same
// session is refreshed; one held by another session yields ErrNameTaken. A
// session holds at most one name: its previous reservation is released.
func ReserveName(ctx context.Context, db *gorm.DB, key, name, sessionID string, now time.Time) error {
	if strings.TrimSpace(key) == "" || strings.TrimSpace(sessionID) == "" {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&domain.NameReservation{
			Key:       key,
			Name:      name,
			SessionID: sessionID,
			CreatedAt: now.UTC(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var cur domain.NameReservation
			if err := tx.Where("name_key = ?", key).Take(&cur).Error; err != nil {
				return err
			}
			if cur.SessionID != sessionID {
				return ErrNameTaken
			}
			if err := tx.Model(&cur).Updates(map[string]any{"name": name, "created_at": now.UTC()}).Error; err != nil {
				return err
			}
		}
		return tx.Where("session_id = ? AND name_key <> ?", sessionID, key).
			Delete(&domain.NameReservation{}).Error
	})
}

// ReleaseName drops every reservation held by sessionID.
func ReleaseName(ctx context.Context, db *gorm.DB, sessionID string) error {
	return db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&domain.NameReservation{}).Error
}
