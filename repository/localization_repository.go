// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/skyportal/source-query/models"
	"gorm.io/gorm"
)

// pgUndefinedTable is raised when a registered month has no partition created yet.
const pgUndefinedTable = "42P01"

var tileTablePattern = regexp.MustCompile(`^` + models.LocalizationTilesTable + `(_[0-9]{4}_[0-9]{2}|_def)?$`)

// LocalizationRepositoryImpl implements LocalizationRepository interface
type LocalizationRepositoryImpl struct {
	*BaseRepository[models.Localization, models.LocalizationFilter]
}

// NewLocalizationRepository creates a new localization repository
func NewLocalizationRepository(db *gorm.DB) LocalizationRepository {
	return &LocalizationRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Localization, models.LocalizationFilter](db),
	}
}

func (r *LocalizationRepositoryImpl) applyFilter(query *gorm.DB, filter models.LocalizationFilter) *gorm.DB {
	if filter.Dateobs != nil {
		query = query.Where("dateobs = ?", filter.Dateobs.UTC())
	}
	if filter.Name != nil {
		query = query.Where("localization_name = ?", *filter.Name)
	}
	return query
}

// ByFilter retrieves localizations based on filter criteria
func (r *LocalizationRepositoryImpl) ByFilter(ctx context.Context, filter models.LocalizationFilter, orderBy string, limit, offset int) ([]*models.Localization, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Localization{}), filter)

	if orderBy == "" {
		orderBy = "created_at DESC, id DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.Localization
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of localizations matching the filter
func (r *LocalizationRepositoryImpl) Count(ctx context.Context, filter models.LocalizationFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	if err := r.applyFilter(db.Model(&models.Localization{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any localization matching the filter exists
func (r *LocalizationRepositoryImpl) Exists(ctx context.Context, filter models.LocalizationFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Latest returns the newest localization matching the filter: the most recently modified
// one when a name is given, otherwise the most recently created one.
func (r *LocalizationRepositoryImpl) Latest(ctx context.Context, filter models.LocalizationFilter) (*models.Localization, error) {
	db := r.getDB(ctx)

	orderBy := "created_at DESC, id DESC"
	if filter.Name != nil {
		orderBy = "modified DESC, id DESC"
	}

	var row models.Localization
	err := r.applyFilter(db.Model(&models.Localization{}), filter).
		Order(orderBy).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// HasTiles reports whether table holds at least one tile of the localization. A missing
// partition table holds none.
func (r *LocalizationRepositoryImpl) HasTiles(ctx context.Context, table string, localizationID uint) (bool, error) {
	if !tileTablePattern.MatchString(table) {
		return false, fmt.Errorf("invalid localization tile table %q", table)
	}
	db := r.getDB(ctx)

	var ids []uint
	err := db.Table(table).
		Select("localization_id").
		Where("localization_id = ?", localizationID).
		Limit(1).
		Find(&ids).Error
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
			return false, nil
		}
		return false, err
	}
	return len(ids) > 0, nil
}
