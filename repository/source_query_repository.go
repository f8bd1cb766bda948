package repository

import (
	"context"
	"time"

	"github.com/skyportal/source-query/models"
	"github.com/skyportal/source-query/query"
	"gorm.io/gorm"
)

// SourceQueryRepositoryImpl runs composed statements. Each call gets its own short
// transaction so the statement timeout never leaks onto pooled connections.
type SourceQueryRepositoryImpl struct {
	DB               *gorm.DB
	statementTimeout time.Duration
}

func NewSourceQueryRepository(db *gorm.DB, statementTimeout time.Duration) SourceQueryRepository {
	return &SourceQueryRepositoryImpl{DB: db, statementTimeout: statementTimeout}
}

// IDs runs stmt and returns its first column as object IDs in row order
func (r *SourceQueryRepositoryImpl) IDs(ctx context.Context, stmt query.Expr) ([]string, error) {
	var ids []string
	err := WithStatementTimeout(ctx, r.DB, r.statementTimeout, func(tx *gorm.DB) error {
		sql, args := query.Compile(query.Question, stmt)
		return tx.Raw(sql, args...).Scan(&ids).Error
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Count runs stmt and returns its single integer result
func (r *SourceQueryRepositoryImpl) Count(ctx context.Context, stmt query.Expr) (int64, error) {
	var count int64
	err := WithStatementTimeout(ctx, r.DB, r.statementTimeout, func(tx *gorm.DB) error {
		sql, args := query.Compile(query.Question, stmt)
		return tx.Raw(sql, args...).Scan(&count).Error
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ObjsByOrderedIDs loads the page's objects and returns them in the order of ids.
// Unknown IDs are skipped.
func (r *SourceQueryRepositoryImpl) ObjsByOrderedIDs(ctx context.Context, ids []string) ([]*models.Obj, error) {
	if len(ids) == 0 {
		return []*models.Obj{}, nil
	}

	var objs []*models.Obj
	err := WithStatementTimeout(ctx, r.DB, r.statementTimeout, func(tx *gorm.DB) error {
		return tx.Where("id IN ?", ids).Find(&objs).Error
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Obj, len(objs))
	for _, o := range objs {
		byID[o.ID] = o
	}
	ordered := make([]*models.Obj, 0, len(ids))
	for _, id := range ids {
		if o, ok := byID[id]; ok {
			ordered = append(ordered, o)
			delete(byID, id)
		}
	}
	return ordered, nil
}
