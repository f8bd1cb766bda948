// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"

	"github.com/skyportal/source-query/models"
	"gorm.io/gorm"
)

type SpatialCatalogRepositoryImpl struct {
	DB *gorm.DB
}

func NewSpatialCatalogRepository(db *gorm.DB) SpatialCatalogRepository {
	return &SpatialCatalogRepositoryImpl{DB: db}
}

// EntryByName returns the entry named entryName in catalog catalogName, or nil
func (r *SpatialCatalogRepositoryImpl) EntryByName(ctx context.Context, catalogName, entryName string) (*models.SpatialCatalogEntry, error) {
	db := dbFromContext(ctx, r.DB)

	var entry models.SpatialCatalogEntry
	err := db.Model(&models.SpatialCatalogEntry{}).
		Joins("JOIN spatial_catalogs ON spatial_catalogs.id = spatial_catalog_entrys.catalog_id").
		Where("spatial_catalogs.catalog_name = ? AND spatial_catalog_entrys.entry_name = ?", catalogName, entryName).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
