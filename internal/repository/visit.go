package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"SiteSign/internal/model"
	"SiteSign/pkg/errors"
	"SiteSign/storage/database"
)

// VisitRepository reads and updates site_visits rows.
type VisitRepository struct {
	db *gorm.DB
}

func NewVisitRepository(db *gorm.DB) *VisitRepository {
	return &VisitRepository{db: db}
}

// Visits returns a repository on the shared database handle.
func Visits() *VisitRepository {
	return NewVisitRepository(database.DB())
}

// GetByID returns errors.VisitNotFound when no row matches.
func (r *VisitRepository) GetByID(ctx context.Context, id string) (*model.Visit, error) {
	var visit model.Visit
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&visit).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.VisitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get visit %s: %w", id, err)
	}
	return &visit, nil
}

// UpdatePushSubscription stores sub, or clears the column when sub is nil.
// It reports whether a row matched.
func (r *VisitRepository) UpdatePushSubscription(ctx context.Context, id string, sub *model.PushSubscription) (bool, error) {
	var value interface{} = gorm.Expr("NULL")
	if sub != nil {
		value = *sub
	}

	res := r.db.WithContext(ctx).Model(&model.Visit{}).
		Where("id = ?", id).
		Update("push_subscription", value)
	if res.Error != nil {
		return false, fmt.Errorf("update push subscription of visit %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkSignedOut sets signed_out_at only while it is still NULL, so an earlier
// sign-out is never overwritten. It reports whether this call set it.
func (r *VisitRepository) MarkSignedOut(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Visit{}).
		Where("id = ? AND signed_out_at IS NULL", id).
		Update("signed_out_at", at)
	if res.Error != nil {
		return false, fmt.Errorf("sign out visit %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SnoozeUntil overwrites geofence_snoozed_until unconditionally.
func (r *VisitRepository) SnoozeUntil(ctx context.Context, id string, until time.Time) error {
	err := r.db.WithContext(ctx).Model(&model.Visit{}).
		Where("id = ?", id).
		Update("geofence_snoozed_until", until).Error
	if err != nil {
		return fmt.Errorf("snooze visit %s: %w", id, err)
	}
	return nil
}

func (r *VisitRepository) MarkNotified(ctx context.Context, id string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&model.Visit{}).
		Where("id = ?", id).
		Update("geofence_notified_at", at).Error
	if err != nil {
		return fmt.Errorf("mark visit %s notified: %w", id, err)
	}
	return nil
}

// ListOverdueNotified returns signed-in visits notified before cutoff that
// have not been snoozed since that notification, oldest first.
func (r *VisitRepository) ListOverdueNotified(ctx context.Context, cutoff time.Time, limit int) ([]model.Visit, error) {
	var visits []model.Visit
	err := r.db.WithContext(ctx).
		Where("signed_out_at IS NULL").
		Where("geofence_notified_at IS NOT NULL AND geofence_notified_at < ?", cutoff).
		Where("geofence_snoozed_until IS NULL OR geofence_snoozed_until < geofence_notified_at").
		Order("geofence_notified_at").
		Limit(limit).
		Find(&visits).Error
	if err != nil {
		return nil, fmt.Errorf("list overdue visits: %w", err)
	}
	return visits, nil
}
