// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/skyportal/source-query/models"
	"gorm.io/gorm"
)

// ObjRepositoryImpl implements ObjRepository interface
type ObjRepositoryImpl struct {
	*BaseRepository[models.Obj, models.ObjFilter]
}

// NewObjRepository creates a new object repository
func NewObjRepository(db *gorm.DB) ObjRepository {
	return &ObjRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Obj, models.ObjFilter](db),
	}
}

// ByObjID retrieves an object by its string identifier
func (r *ObjRepositoryImpl) ByObjID(ctx context.Context, id string) (*models.Obj, error) {
	db := r.getDB(ctx)

	var obj models.Obj
	err := db.Where("id = ?", id).First(&obj).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find obj %s: %w", id, err)
	}

	return &obj, nil
}

// applyFilter applies filter criteria to a GORM query
func (r *ObjRepositoryImpl) applyFilter(query *gorm.DB, filter models.ObjFilter) *gorm.DB {
	if len(filter.IDs) > 0 {
		query = query.Where("id IN ?", filter.IDs)
	}
	if filter.Origin != nil {
		query = query.Where("origin = ?", *filter.Origin)
	}
	return query
}

// ByFilter retrieves objects based on filter criteria
func (r *ObjRepositoryImpl) ByFilter(ctx context.Context, filter models.ObjFilter, orderBy string, limit, offset int) ([]*models.Obj, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Obj{}), filter)

	if orderBy == "" {
		orderBy = "id ASC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var objs []*models.Obj
	if err := query.Find(&objs).Error; err != nil {
		return nil, err
	}
	return objs, nil
}

// Count returns the number of objects matching the filter
func (r *ObjRepositoryImpl) Count(ctx context.Context, filter models.ObjFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	if err := r.applyFilter(db.Model(&models.Obj{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
