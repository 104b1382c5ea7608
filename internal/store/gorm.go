package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pathakanu/nhacnho/internal/model"
)

// GormStore keeps reminders in a SQL database through GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an already migrated connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Insert saves a new reminder and returns its ID.
func (s *GormStore) Insert(ctx context.Context, r *model.Reminder) (string, error) {
	prepareInsert(r)
	if err := validate(r); err != nil {
		return "", err
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return "", fmt.Errorf("insert reminder: %w", err)
	}
	return r.ID, nil
}

// FindOneByKey returns one reminder matching key or ErrNotFound.
func (s *GormStore) FindOneByKey(ctx context.Context, key Key) (*model.Reminder, error) {
	return findByKey(s.db.WithContext(ctx), normalizeKey(key))
}

// DeleteByKey removes one reminder matching key.
func (s *GormStore) DeleteByKey(ctx context.Context, key Key) (bool, error) {
	key = normalizeKey(key)
	deleted := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := findByKey(tx, key)
		if err != nil {
			return err
		}
		res := tx.Delete(&model.Reminder{}, "id = ?", r.ID)
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete reminder: %w", err)
	}
	return deleted, nil
}

// UpdateDueAtByKey moves one reminder matching key to newDueAt and returns
// the updated record.
func (s *GormStore) UpdateDueAtByKey(ctx context.Context, key Key, newDueAt time.Time) (*model.Reminder, error) {
	key = normalizeKey(key)
	newDueAt = instant(newDueAt)

	var updated *model.Reminder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := findByKey(tx, key)
		if err != nil {
			return err
		}
		if err := tx.Model(r).Update("due_at", newDueAt).Error; err != nil {
			return err
		}
		r.DueAt = newDueAt
		updated = r
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update reminder due time: %w", err)
	}
	return updated, nil
}

// FindDueWindow lists reminders with the given status whose due time is in w,
// earliest first.
func (s *GormStore) FindDueWindow(ctx context.Context, w Window, status model.Status) ([]model.Reminder, error) {
	query := s.db.WithContext(ctx).Where("status = ?", status)
	if !w.Unbounded {
		if w.FromInclusive {
			query = query.Where("due_at >= ?", instant(w.From))
		} else {
			query = query.Where("due_at > ?", instant(w.From))
		}
	}

	var reminders []model.Reminder
	if err := query.Where("due_at <= ?", instant(w.To)).
		Order("due_at ASC").
		Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("find due reminders: %w", err)
	}
	return reminders, nil
}

// Save writes status and due time of r back to its row. A record deleted in
// the meantime is not recreated; ErrNotFound is returned instead.
func (s *GormStore) Save(ctx context.Context, r *model.Reminder) error {
	if r.ID == "" {
		return errors.New("store: save requires an id")
	}
	r.DueAt = instant(r.DueAt)

	res := s.db.WithContext(ctx).Model(r).
		Select("status", "due_at").
		Updates(r)
	if res.Error != nil {
		return fmt.Errorf("save reminder %s: %w", r.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkNotice sets the marker column for n on the record with id, provided it
// is still due at dueAt.
func (s *GormStore) MarkNotice(ctx context.Context, id string, n model.Notice, dueAt time.Time) error {
	column := "soon_notice_for"
	if n == model.NoticeFar {
		column = "far_notice_for"
	}
	dueAt = instant(dueAt)

	res := s.db.WithContext(ctx).Model(&model.Reminder{}).
		Where("id = ? AND due_at = ?", id, dueAt).
		Update(column, dueAt)
	if res.Error != nil {
		return fmt.Errorf("mark %s notice %s: %w", n, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func findByKey(db *gorm.DB, key Key) (*model.Reminder, error) {
	var r model.Reminder
	err := db.Where("owner = ? AND label = ? AND due_at = ?", key.Owner, key.Label, key.DueAt).
		Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find reminder: %w", err)
	}
	return &r, nil
}
