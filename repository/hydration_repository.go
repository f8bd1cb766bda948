package repository

import (
	"context"
	"time"

	"github.com/skyportal/source-query/models"
	"gorm.io/gorm"
)

// SourceGroupRow is one group an object is saved to, with display names joined in
type SourceGroupRow struct {
	ObjID           string     `json:"obj_id"`
	GroupID         uint       `json:"group_id"`
	GroupName       string     `json:"group_name"`
	GroupNickname   *string    `json:"group_nickname"`
	Active          bool       `json:"active"`
	Requested       bool       `json:"requested"`
	SavedAt         time.Time  `json:"saved_at"`
	SavedByID       *uint      `json:"saved_by_id"`
	SavedByUsername *string    `json:"saved_by_username"`
	UnsavedAt       *time.Time `json:"unsaved_at"`
}

// CandidateFilterRow is one filter passage of a candidate
type CandidateFilterRow struct {
	ObjID      string    `json:"obj_id"`
	FilterID   uint      `json:"filter_id"`
	FilterName string    `json:"filter_name"`
	GroupID    uint      `json:"group_id"`
	PassedAt   time.Time `json:"passed_at"`
}

type ClassificationRow struct {
	ID             uint      `json:"id"`
	ObjID          string    `json:"obj_id"`
	TaxonomyID     uint      `json:"taxonomy_id"`
	TaxonomyName   string    `json:"taxonomy_name"`
	Classification string    `json:"classification"`
	Probability    *float64  `json:"probability"`
	ML             bool      `gorm:"column:ml" json:"ml"`
	AuthorID       uint      `json:"author_id"`
	AuthorName     string    `json:"author_name"`
	CreatedAt      time.Time `json:"created_at"`
	Modified       time.Time `json:"modified"`
}

type LabellerRow struct {
	ObjID     string `json:"obj_id"`
	UserID    uint   `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	GroupID   uint   `json:"group_id"`
}

type HydrationRepositoryImpl struct {
	DB *gorm.DB
}

func NewHydrationRepository(db *gorm.DB) HydrationRepository {
	return &HydrationRepositoryImpl{DB: db}
}

func (r *HydrationRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	return dbFromContext(ctx, r.DB)
}

func (r *HydrationRepositoryImpl) SourceGroups(ctx context.Context, objIDs []string, groupIDs []int64) ([]SourceGroupRow, error) {
	if len(objIDs) == 0 {
		return nil, nil
	}
	q := r.getDB(ctx).Table("sources").
		Select(`sources.obj_id, sources.group_id, groups.name AS group_name, groups.nickname AS group_nickname,
			sources.active, sources.requested, sources.saved_at, sources.saved_by_id,
			users.username AS saved_by_username, sources.unsaved_at`).
		Joins("JOIN groups ON groups.id = sources.group_id").
		Joins("LEFT JOIN users ON users.id = sources.saved_by_id").
		Where("sources.obj_id IN ?", objIDs)
	if groupIDs != nil {
		q = q.Where("sources.group_id IN ?", groupIDs)
	}

	var rows []SourceGroupRow
	if err := q.Order("sources.obj_id, sources.saved_at DESC, sources.id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *HydrationRepositoryImpl) CandidateFilters(ctx context.Context, objIDs []string, groupIDs []int64) ([]CandidateFilterRow, error) {
	if len(objIDs) == 0 {
		return nil, nil
	}
	q := r.getDB(ctx).Table("candidates").
		Select("candidates.obj_id, candidates.filter_id, filters.name AS filter_name, filters.group_id, candidates.passed_at").
		Joins("JOIN filters ON filters.id = candidates.filter_id").
		Where("candidates.obj_id IN ?", objIDs)
	if groupIDs != nil {
		q = q.Where("filters.group_id IN ?", groupIDs)
	}

	var rows []CandidateFilterRow
	if err := q.Order("candidates.obj_id, candidates.passed_at DESC, candidates.id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *HydrationRepositoryImpl) Classifications(ctx context.Context, objIDs []string, groupIDs []int64) ([]ClassificationRow, error) {
	if len(objIDs) == 0 {
		return nil, nil
	}
	q := r.getDB(ctx).Table("classifications AS c").
		Select(`c.id, c.obj_id, c.taxonomy_id, t.name AS taxonomy_name, c.classification, c.probability,
			c.ml, c.author_id, c.author_name, c.created_at, c.modified`).
		Joins("JOIN taxonomies t ON t.id = c.taxonomy_id").
		Where("c.obj_id IN ?", objIDs)
	if groupIDs != nil {
		q = q.Where("EXISTS (SELECT 1 FROM group_classifications gc WHERE gc.classification_id = c.id AND gc.group_id IN ?)", groupIDs)
	}

	var rows []ClassificationRow
	if err := q.Order("c.obj_id, c.created_at DESC, c.id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ClassificationGroups maps each classification to the groups it is shared with
func (r *HydrationRepositoryImpl) ClassificationGroups(ctx context.Context, classificationIDs []uint) (map[uint][]uint, error) {
	out := make(map[uint][]uint)
	if len(classificationIDs) == 0 {
		return out, nil
	}
	var rows []models.GroupClassification
	err := r.getDB(ctx).
		Where("classification_id IN ?", classificationIDs).
		Order("classification_id, group_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ClassificationID] = append(out[row.ClassificationID], row.GroupID)
	}
	return out, nil
}

func (r *HydrationRepositoryImpl) ClassificationVotes(ctx context.Context, classificationIDs []uint) ([]models.ClassificationVote, error) {
	if len(classificationIDs) == 0 {
		return nil, nil
	}
	var rows []models.ClassificationVote
	err := r.getDB(ctx).
		Where("classification_id IN ?", classificationIDs).
		Order("classification_id, id").
		Find(&rows).Error
	return rows, err
}

func (r *HydrationRepositoryImpl) Annotations(ctx context.Context, objIDs []string, groupIDs []int64) ([]models.Annotation, error) {
	if len(objIDs) == 0 {
		return nil, nil
	}
	q := r.getDB(ctx).Where("obj_id IN ?", objIDs)
	if groupIDs != nil {
		q = q.Where("EXISTS (SELECT 1 FROM group_annotations ga WHERE ga.annotation_id = annotations.id AND ga.group_id IN ?)", groupIDs)
	}

	var rows []models.Annotation
	if err := q.Order("obj_id, origin, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *HydrationRepositoryImpl) Thumbnails(ctx context.Context, objIDs []string) ([]models.Thumbnail, error) {
	if len(objIDs) == 0 {
		return nil, nil
	}
	var rows []models.Thumbnail
	err := r.getDB(ctx).Where("obj_id IN ?", objIDs).Order("obj_id, id").Find(&rows).Error
	return rows, err
}

func (r *HydrationRepositoryImpl) PhotometryExists(ctx context.Context, objIDs []string, groupIDs []int64) (map[string]bool, error) {
	return r.existsSet(ctx, "photometry", "group_photometry", "photometry_id", objIDs, groupIDs)
}

func (r *HydrationRepositoryImpl) SpectrumExists(ctx context.Context, objIDs []string, groupIDs []int64) (map[string]bool, error) {
	return r.existsSet(ctx, "spectra", "group_spectra", "spectrum_id", objIDs, groupIDs)
}

func (r *HydrationRepositoryImpl) CommentExists(ctx context.Context, objIDs []string, groupIDs []int64) (map[string]bool, error) {
	return r.existsSet(ctx, "comments", "group_comments", "comment_id", objIDs, groupIDs)
}

// existsSet returns the subset of objIDs having at least one visible row in table
func (r *HydrationRepositoryImpl) existsSet(ctx context.Context, table, groupTable, groupFK string, objIDs []string, groupIDs []int64) (map[string]bool, error) {
	out := make(map[string]bool, len(objIDs))
	if len(objIDs) == 0 {
		return out, nil
	}
	q := r.getDB(ctx).Table(table+" AS x").
		Select("DISTINCT x.obj_id").
		Where("x.obj_id IN ?", objIDs)
	if groupIDs != nil {
		q = q.Where("EXISTS (SELECT 1 FROM "+groupTable+" g WHERE g."+groupFK+" = x.id AND g.group_id IN ?)", groupIDs)
	}

	var found []string
	if err := q.Scan(&found).Error; err != nil {
		return nil, err
	}
	for _, id := range found {
		out[id] = true
	}
	return out, nil
}

func (r *HydrationRepositoryImpl) PhotStats(ctx context.Context, objIDs []string) ([]models.PhotStat, error) {
	if len(objIDs) == 0 {
		return nil, nil
	}
	var rows []models.PhotStat
	err := r.getDB(ctx).Where("obj_id IN ?", objIDs).Find(&rows).Error
	return rows, err
}

func (r *HydrationRepositoryImpl) Labellers(ctx context.Context, objIDs []string, groupIDs []int64) ([]LabellerRow, error) {
	if len(objIDs) == 0 {
		return nil, nil
	}
	q := r.getDB(ctx).Table("source_labels sl").
		Select("sl.obj_id, u.id AS user_id, u.username, u.first_name, u.last_name, sl.group_id").
		Joins("JOIN users u ON u.id = sl.labeller_id").
		Where("sl.obj_id IN ?", objIDs)
	if groupIDs != nil {
		q = q.Where("sl.group_id IN ?", groupIDs)
	}

	var rows []LabellerRow
	if err := q.Order("sl.obj_id, sl.created_at, sl.id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *HydrationRepositoryImpl) Galaxies(ctx context.Context, ids []uint) ([]models.Galaxy, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Galaxy
	err := r.getDB(ctx).Where("id IN ?", ids).Find(&rows).Error
	return rows, err
}
