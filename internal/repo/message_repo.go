// Package repo implements the persistence layer of one backend partition,
// backed by GORM. This file provides repository functions for the messages
// collection.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-campus-chat/internal/domain"
)

// TimestampResolution is the precision of server-assigned creation times.
const TimestampResolution = time.Microsecond

// CreateMessage inserts m, assigning its id and a creation timestamp that is
// strictly greater than every existing timestamp in the same channel. Report
// fields are reset; a new message is never pre-flagged.
//
// Callers serialize concurrent inserts into one database.
func CreateMessage(ctx context.Context, db *gorm.DB, m domain.Message, now time.Time) (domain.Message, error) {
	m.ID = uuid.NewString()
	m.Reported = false
	m.ReportCount = 0

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ts := now.UTC().Truncate(TimestampResolution)
		var last domain.MessageDoc
		err := tx.Select("created_at").
			Where("channel = ?", m.Channel).
			Order("created_at DESC").
			Limit(1).
			Take(&last).Error
		switch {
		case err == nil:
			if !ts.After(last.CreatedAt) {
				ts = last.CreatedAt.UTC().Add(TimestampResolution)
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		m.CreatedAt = ts
		doc := domain.ToDoc(m)
		return tx.Create(&doc).Error
	})
	if err != nil {
		return domain.Message{}, err
	}
	return m, nil
}

// ListBefore returns up to limit messages of channel created strictly before
// before (zero means no bound), newest first.
func ListBefore(ctx context.Context, db *gorm.DB, channel string, before time.Time, limit int) ([]domain.Message, error) {
	q := db.WithContext(ctx).Where("channel = ?", channel)
	if !before.IsZero() {
		q = q.Where("created_at < ?", before.UTC())
	}
	q = q.Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var docs []domain.MessageDoc
	if err := q.Find(&docs).Error; err != nil {
		return nil, err
	}
	return fromDocs(docs), nil
}

// ListAfter returns up to limit messages of channel created strictly after
// after, oldest first. limit <= 0 returns everything.
func ListAfter(ctx context.Context, db *gorm.DB, channel string, after time.Time, limit int) ([]domain.Message, error) {
	q := db.WithContext(ctx).
		Where("channel = ? AND created_at > ?", channel, after.UTC()).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var docs []domain.MessageDoc
	if err := q.Find(&docs).Error; err != nil {
		return nil, err
	}
	return fromDocs(docs), nil
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (domain.Message, error) {
	var d domain.MessageDoc
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&d).Error; err != nil {
		return domain.Message{}, err
	}
	return domain.FromDoc(d), nil
}

// IncrementReports atomically adds one report to the message and flags it
// once the count reaches flagAt. Both columns are computed from the stored
// row in a single UPDATE, so concurrent reporters never lose an increment.
// It returns gorm.ErrRecordNotFound when channel has no message with that id.
func IncrementReports(ctx context.Context, db *gorm.DB, channel, id string, flagAt int) (domain.Message, error) {
	res := db.WithContext(ctx).
		Model(&domain.MessageDoc{}).
		Where("id = ? AND channel = ?", id, channel).
		UpdateColumns(map[string]any{
			"report_count": gorm.Expr("COALESCE(report_count, 0) + 1"),
			"reported":     gorm.Expr("CASE WHEN COALESCE(report_count, 0) + 1 >= ? THEN 1 ELSE COALESCE(reported, 0) END", flagAt),
		})
	if res.Error != nil {
		return domain.Message{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Message{}, gorm.ErrRecordNotFound
	}
	return GetMessage(ctx, db, id)
}

func fromDocs(docs []domain.MessageDoc) []domain.Message {
	out := make([]domain.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.FromDoc(d))
	}
	return out
}
