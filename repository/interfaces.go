// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/skyportal/source-query/models"
	"github.com/skyportal/source-query/query"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// ObjRepository defines operations for astronomical objects
type ObjRepository interface {
	Save(ctx context.Context, entity *models.Obj) error
	SaveBatch(ctx context.Context, entities []*models.Obj) error
	ByObjID(ctx context.Context, id string) (*models.Obj, error)
	ByFilter(ctx context.Context, filter models.ObjFilter, orderBy string, limit, offset int) ([]*models.Obj, error)
	Count(ctx context.Context, filter models.ObjFilter) (int64, error)
}

// LocalizationRepository resolves localizations and the tables holding their tiles
type LocalizationRepository interface {
	Repository[models.Localization, models.LocalizationFilter]
	// Latest returns the newest localization matching filter, or nil
	Latest(ctx context.Context, filter models.LocalizationFilter) (*models.Localization, error)
	// HasTiles reports whether table holds any tile of the localization
	HasTiles(ctx context.Context, table string, localizationID uint) (bool, error)
}

// SpatialCatalogRepository resolves catalog entries by name
type SpatialCatalogRepository interface {
	EntryByName(ctx context.Context, catalogName, entryName string) (*models.SpatialCatalogEntry, error)
}

// SourceQueryRepository executes composed search statements under the statement timeout
type SourceQueryRepository interface {
	// IDs runs a statement selecting one text column of object IDs and keeps row order
	IDs(ctx context.Context, stmt query.Expr) ([]string, error)
	// Count runs a statement selecting a single integer
	Count(ctx context.Context, stmt query.Expr) (int64, error)
	// ObjsByOrderedIDs loads objects and returns them in the order of ids
	ObjsByOrderedIDs(ctx context.Context, ids []string) ([]*models.Obj, error)
}

// HydrationRepository loads the optional per-page attachments of search results.
// A nil groupIDs slice means the caller may see every group.
type HydrationRepository interface {
	SourceGroups(ctx context.Context, objIDs []string, groupIDs []int64) ([]SourceGroupRow, error)
	CandidateFilters(ctx context.Context, objIDs []string, groupIDs []int64) ([]CandidateFilterRow, error)
	Classifications(ctx context.Context, objIDs []string, groupIDs []int64) ([]ClassificationRow, error)
	ClassificationGroups(ctx context.Context, classificationIDs []uint) (map[uint][]uint, error)
	ClassificationVotes(ctx context.Context, classificationIDs []uint) ([]models.ClassificationVote, error)
	Annotations(ctx context.Context, objIDs []string, groupIDs []int64) ([]models.Annotation, error)
	Thumbnails(ctx context.Context, objIDs []string) ([]models.Thumbnail, error)
	PhotometryExists(ctx context.Context, objIDs []string, groupIDs []int64) (map[string]bool, error)
	SpectrumExists(ctx context.Context, objIDs []string, groupIDs []int64) (map[string]bool, error)
	CommentExists(ctx context.Context, objIDs []string, groupIDs []int64) (map[string]bool, error)
	PhotStats(ctx context.Context, objIDs []string) ([]models.PhotStat, error)
	Labellers(ctx context.Context, objIDs []string, groupIDs []int64) ([]LabellerRow, error)
	Galaxies(ctx context.Context, ids []uint) ([]models.Galaxy, error)
}

// QueryCacheRepository persists ordered result snapshots
type QueryCacheRepository interface {
	// ByQueryID returns the unexpired entry for queryID, or nil
	ByQueryID(ctx context.Context, queryID string, now time.Time) (*models.QueryCacheEntry, error)
	Save(ctx context.Context, entry *models.QueryCacheEntry) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
