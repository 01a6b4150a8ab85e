package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"

	"SiteSign/internal/model"
	"SiteSign/pkg/errors"
	"SiteSign/storage/database"
)

// SiteRepository reads site geofence configuration.
type SiteRepository struct {
	db *gorm.DB
}

func NewSiteRepository(db *gorm.DB) *SiteRepository {
	return &SiteRepository{db: db}
}

func Sites() *SiteRepository {
	return NewSiteRepository(database.DB())
}

func (r *SiteRepository) GetByID(ctx context.Context, id string) (*model.Site, error) {
	var site model.Site
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&site).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.SiteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get site %s: %w", id, err)
	}
	return &site, nil
}
