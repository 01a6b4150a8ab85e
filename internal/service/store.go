package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"SiteSign/internal/model"
	"SiteSign/pkg/errors"
)

// VisitStore is the subset of the visit repository the services need.
type VisitStore interface {
	GetByID(ctx context.Context, id string) (*model.Visit, error)
	UpdatePushSubscription(ctx context.Context, id string, sub *model.PushSubscription) (bool, error)
	MarkSignedOut(ctx context.Context, id string, at time.Time) (bool, error)
	SnoozeUntil(ctx context.Context, id string, until time.Time) error
	MarkNotified(ctx context.Context, id string, at time.Time) error
}

type SiteStore interface {
	GetByID(ctx context.Context, id string) (*model.Site, error)
}

// validateVisitID rejects empty and non-UUID identifiers before they reach
// the uuid column.
func validateVisitID(visitID string) error {
	if visitID == "" {
		return errors.MissingVisitID
	}
	if _, err := uuid.Parse(visitID); err != nil {
		return errors.InvalidVisitID
	}
	return nil
}
