package testing

import (
	"context"
	"fmt"
	"time"

	"github.com/skyportal/source-query/models"
	"github.com/skyportal/source-query/repository"
	"github.com/skyportal/source-query/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB   *TestDB
	Objs repository.ObjRepository
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db, Objs: repository.NewObjRepository(db.DB)}
}

func (tf *TestFixtures) CreateGroup(name string) (*models.Group, error) {
	g := &models.Group{Name: name, Nickname: name}
	if err := tf.DB.DB.Create(g).Error; err != nil {
		return nil, fmt.Errorf("failed to create group %s: %w", name, err)
	}
	return g, nil
}

func (tf *TestFixtures) CreateUser(username string) (*models.User, error) {
	u := &models.User{Username: username, FirstName: "Test", LastName: "User"}
	if err := tf.DB.DB.Create(u).Error; err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", username, err)
	}
	return u, nil
}

// CreateObj stores an object at (ra, dec); healpix is derived on save
func (tf *TestFixtures) CreateObj(id string, ra, dec float64, redshift *float64) (*models.Obj, error) {
	now := utils.UTCNow()
	obj := &models.Obj{ID: id, RA: ra, Dec: dec, Redshift: redshift, CreatedAt: now, Modified: now}
	if err := tf.Objs.Save(context.Background(), obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// SaveSource saves obj to group at savedAt
func (tf *TestFixtures) SaveSource(objID string, groupID uint, savedAt time.Time, savedBy *uint) (*models.Source, error) {
	s := &models.Source{ObjID: objID, GroupID: groupID, Active: true, SavedAt: savedAt.UTC(), SavedByID: savedBy}
	if err := tf.DB.DB.Create(s).Error; err != nil {
		return nil, fmt.Errorf("failed to save source %s: %w", objID, err)
	}
	return s, nil
}

func (tf *TestFixtures) CreateFilter(name string, groupID uint) (*models.Filter, error) {
	f := &models.Filter{Name: name, GroupID: groupID}
	if err := tf.DB.DB.Create(f).Error; err != nil {
		return nil, err
	}
	return f, nil
}

func (tf *TestFixtures) CreateCandidate(objID string, filterID uint, passedAt time.Time) (*models.Candidate, error) {
	c := &models.Candidate{ObjID: objID, FilterID: filterID, PassedAt: passedAt.UTC()}
	if err := tf.DB.DB.Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

func (tf *TestFixtures) CreateTaxonomy(name string) (*models.Taxonomy, error) {
	t := &models.Taxonomy{Name: name, Version: "1", IsLatest: true}
	if err := tf.DB.DB.Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// CreateClassification stores a classification visible to groupIDs
func (tf *TestFixtures) CreateClassification(objID string, taxonomyID uint, class string, groupIDs ...uint) (*models.Classification, error) {
	now := utils.UTCNow()
	c := &models.Classification{
		ObjID:          objID,
		TaxonomyID:     taxonomyID,
		Classification: class,
		Probability:    utils.ToPtr(1.0),
		AuthorName:     "fixtures",
		CreatedAt:      now,
		Modified:       now,
	}
	if err := tf.DB.DB.Create(c).Error; err != nil {
		return nil, err
	}
	for _, gid := range groupIDs {
		if err := tf.DB.DB.Create(&models.GroupClassification{GroupID: gid, ClassificationID: c.ID}).Error; err != nil {
			return nil, err
		}
	}
	return c, nil
}

// CreateAnnotation stores an annotation visible to groupIDs
func (tf *TestFixtures) CreateAnnotation(objID, origin string, data models.JSONMap, groupIDs ...uint) (*models.Annotation, error) {
	a := &models.Annotation{ObjID: objID, Origin: origin, Data: data, CreatedAt: utils.UTCNow()}
	if err := tf.DB.DB.Create(a).Error; err != nil {
		return nil, err
	}
	for _, gid := range groupIDs {
		if err := tf.DB.DB.Create(&models.GroupAnnotation{GroupID: gid, AnnotationID: a.ID}).Error; err != nil {
			return nil, err
		}
	}
	return a, nil
}

// CreateLocalization stores a localization and its tiles in table
func (tf *TestFixtures) CreateLocalization(dateobs time.Time, name, table string, tiles []models.LocalizationTile) (*models.Localization, error) {
	now := utils.UTCNow()
	loc := &models.Localization{Dateobs: dateobs.UTC(), LocalizationName: name, CreatedAt: now, Modified: now}
	if err := tf.DB.DB.Create(loc).Error; err != nil {
		return nil, err
	}
	for i := range tiles {
		tiles[i].LocalizationID = loc.ID
		tiles[i].Dateobs = loc.Dateobs
	}
	if len(tiles) > 0 {
		if err := tf.DB.DB.Table(table).Create(&tiles).Error; err != nil {
			return nil, err
		}
	}
	return loc, nil
}

func (tf *TestFixtures) CreatePhotStat(objID string, firstMJD, lastMJD float64, numDet int) (*models.PhotStat, error) {
	ps := &models.PhotStat{
		ObjID:            objID,
		NumObsGlobal:     numDet,
		NumDetGlobal:     numDet,
		FirstDetectedMJD: utils.ToPtr(firstMJD),
		LastDetectedMJD:  utils.ToPtr(lastMJD),
	}
	if err := tf.DB.DB.Create(ps).Error; err != nil {
		return nil, err
	}
	return ps, nil
}

// AddToList puts obj on the user's list, e.g. favorites
func (tf *TestFixtures) AddToList(userID uint, objID, listName string) (*models.Listing, error) {
	l := &models.Listing{UserID: userID, ObjID: objID, ListName: listName}
	if err := tf.DB.DB.Create(l).Error; err != nil {
		return nil, err
	}
	return l, nil
}

// SetGCNVerdict records whether obj belongs to the event at dateobs. A nil confirmed is undecided.
func (tf *TestFixtures) SetGCNVerdict(objID string, dateobs time.Time, confirmed *bool) (*models.SourcesConfirmedInGCN, error) {
	v := &models.SourcesConfirmedInGCN{ObjID: objID, Dateobs: dateobs.UTC(), Confirmed: confirmed}
	if err := tf.DB.DB.Create(v).Error; err != nil {
		return nil, err
	}
	return v, nil
}
