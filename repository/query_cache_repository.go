package repository

import (
	"context"
	"errors"
	"time"

	"github.com/skyportal/source-query/models"
	"gorm.io/gorm"
)

type QueryCacheRepositoryImpl struct {
	DB *gorm.DB
}

func NewQueryCacheRepository(db *gorm.DB) QueryCacheRepository {
	return &QueryCacheRepositoryImpl{DB: db}
}

func (r *QueryCacheRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	return r.DB.WithContext(ctx)
}

func (r *QueryCacheRepositoryImpl) ByQueryID(ctx context.Context, queryID string, now time.Time) (*models.QueryCacheEntry, error) {
	db := r.getDB(ctx)
	var row models.QueryCacheEntry
	err := db.Where("query_id = ? AND expires_at > ?", queryID, now).
		Order("id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *QueryCacheRepositoryImpl) Save(ctx context.Context, entry *models.QueryCacheEntry) error {
	return r.getDB(ctx).Create(entry).Error
}

// DeleteExpired removes entries whose expiry is at or before now
func (r *QueryCacheRepositoryImpl) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.getDB(ctx).Where("expires_at <= ?", now).Delete(&models.QueryCacheEntry{})
	return res.RowsAffected, res.Error
}
