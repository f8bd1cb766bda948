package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/skyportal/source-query/models"
	"github.com/skyportal/source-query/query"
	"github.com/skyportal/source-query/repository"
	testingutil "github.com/skyportal/source-query/testing"
	"github.com/skyportal/source-query/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLite(t *testing.T) (*testingutil.TestDB, *testingutil.TestFixtures) {
	t.Helper()
	tdb, err := testingutil.SetupSQLiteDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = tdb.TeardownTestDB() })
	return tdb, testingutil.NewTestFixtures(tdb)
}

func TestObjRepository(t *testing.T) {
	tdb, fx := setupSQLite(t)
	ctx := context.Background()
	repo := repository.NewObjRepository(tdb.DB)

	for _, id := range []string{"ZTF21c", "ZTF21a", "ZTF21b"} {
		_, err := fx.CreateObj(id, 10, 20, nil)
		require.NoError(t, err)
	}

	obj, err := repo.ByObjID(ctx, "ZTF21a")
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.Equal(t, utils.HealpixIndex(10, 20), obj.Healpix)

	missing, err := repo.ByObjID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	objs, err := repo.ByFilter(ctx, models.ObjFilter{IDs: []string{"ZTF21b", "ZTF21c"}}, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "ZTF21b", objs[0].ID)

	n, err := repo.Count(ctx, models.ObjFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestLocalizationRepositoryLatestAndTiles(t *testing.T) {
	tdb, fx := setupSQLite(t)
	ctx := context.Background()
	repo := repository.NewLocalizationRepository(tdb.DB)

	require.NoError(t, tdb.CreateTilePartition("localizationtiles_2023_05"))
	dateobs := time.Date(2023, 5, 18, 12, 0, 0, 0, time.UTC)
	tiles := []models.LocalizationTile{{Probdensity: 1, HealpixLower: 0, HealpixUpper: 100}}

	first, err := fx.CreateLocalization(dateobs, "bayestar.fits.gz", "localizationtiles_2023_05", tiles)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := fx.CreateLocalization(dateobs, "bayestar.fits.gz", models.LocalizationTilesTable, nil)
	require.NoError(t, err)

	name := "bayestar.fits.gz"
	latest, err := repo.Latest(ctx, models.LocalizationFilter{Dateobs: &dateobs, Name: &name})
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)

	other := "other.fits"
	none, err := repo.Latest(ctx, models.LocalizationFilter{Dateobs: &dateobs, Name: &other})
	require.NoError(t, err)
	assert.Nil(t, none)

	ok, err := repo.HasTiles(ctx, "localizationtiles_2023_05", first.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.HasTiles(ctx, "localizationtiles_2023_05", second.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.HasTiles(ctx, "objs; DROP TABLE objs", first.ID)
	assert.Error(t, err)
}

func TestSpatialCatalogRepository(t *testing.T) {
	tdb, _ := setupSQLite(t)
	ctx := context.Background()
	repo := repository.NewSpatialCatalogRepository(tdb.DB)

	cat := &models.SpatialCatalog{CatalogName: "fermi"}
	require.NoError(t, tdb.DB.Create(cat).Error)
	entry := &models.SpatialCatalogEntry{CatalogID: cat.ID, EntryName: "4FGL J0001.2-0747"}
	require.NoError(t, tdb.DB.Create(entry).Error)

	got, err := repo.EntryByName(ctx, "fermi", "4FGL J0001.2-0747")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.ID, got.ID)

	got, err = repo.EntryByName(ctx, "other", "4FGL J0001.2-0747")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQueryCacheRepository(t *testing.T) {
	tdb, _ := setupSQLite(t)
	ctx := context.Background()
	repo := repository.NewQueryCacheRepository(tdb.DB)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, &models.QueryCacheEntry{
		QueryID: "live", Fingerprint: "f1", ObjIDs: []string{"b", "a"}, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, repo.Save(ctx, &models.QueryCacheEntry{
		QueryID: "stale", Fingerprint: "f2", ObjIDs: []string{"c"}, CreatedAt: now, ExpiresAt: now.Add(-time.Minute),
	}))

	live, err := repo.ByQueryID(ctx, "live", now)
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.Equal(t, []string{"b", "a"}, []string(live.ObjIDs))

	stale, err := repo.ByQueryID(ctx, "stale", now)
	require.NoError(t, err)
	assert.Nil(t, stale)

	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSourceQueryRepository(t *testing.T) {
	tdb, fx := setupSQLite(t)
	ctx := context.Background()
	repo := repository.NewSourceQueryRepository(tdb.DB, time.Second)

	_, err := fx.CreateObj("a", 10, 0, nil)
	require.NoError(t, err)
	_, err = fx.CreateObj("b", 30, 0, nil)
	require.NoError(t, err)
	_, err = fx.CreateObj("c", 20, 0, nil)
	require.NoError(t, err)

	ids, err := repo.IDs(ctx, query.Raw("SELECT id FROM objs WHERE ra > ? ORDER BY ra DESC", 15.0))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids)

	n, err := repo.Count(ctx, query.Raw("SELECT COUNT(*) FROM objs"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	objs, err := repo.ObjsByOrderedIDs(ctx, []string{"c", "missing", "a", "b"})
	require.NoError(t, err)
	require.Len(t, objs, 3)
	assert.Equal(t, "c", objs[0].ID)
	assert.Equal(t, "a", objs[1].ID)
	assert.Equal(t, "b", objs[2].ID)

	empty, err := repo.ObjsByOrderedIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestHydrationRepositoryGroupScoping(t *testing.T) {
	tdb, fx := setupSQLite(t)
	ctx := context.Background()
	repo := repository.NewHydrationRepository(tdb.DB)

	g1, err := fx.CreateGroup("public")
	require.NoError(t, err)
	g2, err := fx.CreateGroup("secret")
	require.NoError(t, err)
	u, err := fx.CreateUser("saver")
	require.NoError(t, err)
	_, err = fx.CreateObj("obj1", 10, 10, nil)
	require.NoError(t, err)

	savedAt := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	_, err = fx.SaveSource("obj1", g1.ID, savedAt, &u.ID)
	require.NoError(t, err)
	_, err = fx.SaveSource("obj1", g2.ID, savedAt.Add(time.Hour), nil)
	require.NoError(t, err)

	tax, err := fx.CreateTaxonomy("Sitewide Taxonomy")
	require.NoError(t, err)
	visible, err := fx.CreateClassification("obj1", tax.ID, "Ia", g1.ID)
	require.NoError(t, err)
	_, err = fx.CreateClassification("obj1", tax.ID, "AGN", g2.ID)
	require.NoError(t, err)

	_, err = fx.CreateAnnotation("obj1", "pipeline", models.JSONMap{"score": 0.9}, g2.ID)
	require.NoError(t, err)

	require.NoError(t, tdb.DB.Create(&models.Comment{ObjID: "obj1", Text: "nice", CreatedAt: utils.UTCNow()}).Error)
	var comment models.Comment
	require.NoError(t, tdb.DB.First(&comment).Error)
	require.NoError(t, tdb.DB.Create(&models.GroupComment{GroupID: g1.ID, CommentID: comment.ID}).Error)

	scope := []int64{int64(g1.ID)}

	groups, err := repo.SourceGroups(ctx, []string{"obj1"}, scope)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "public", groups[0].GroupName)
	require.NotNil(t, groups[0].SavedByUsername)
	assert.Equal(t, "saver", *groups[0].SavedByUsername)

	all, err := repo.SourceGroups(ctx, []string{"obj1"}, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	classes, err := repo.Classifications(ctx, []string{"obj1"}, scope)
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, "Ia", classes[0].Classification)
	assert.Equal(t, "Sitewide Taxonomy", classes[0].TaxonomyName)

	cg, err := repo.ClassificationGroups(ctx, []uint{visible.ID})
	require.NoError(t, err)
	assert.Equal(t, []uint{g1.ID}, cg[visible.ID])

	annotations, err := repo.Annotations(ctx, []string{"obj1"}, scope)
	require.NoError(t, err)
	assert.Empty(t, annotations)

	annotations, err = repo.Annotations(ctx, []string{"obj1"}, nil)
	require.NoError(t, err)
	require.Len(t, annotations, 1)
	assert.Equal(t, "pipeline", annotations[0].Origin)

	hasComment, err := repo.CommentExists(ctx, []string{"obj1"}, scope)
	require.NoError(t, err)
	assert.True(t, hasComment["obj1"])

	hasComment, err = repo.CommentExists(ctx, []string{"obj1"}, []int64{int64(g2.ID)})
	require.NoError(t, err)
	assert.False(t, hasComment["obj1"])

	hasSpectrum, err := repo.SpectrumExists(ctx, []string{"obj1"}, nil)
	require.NoError(t, err)
	assert.False(t, hasSpectrum["obj1"])
}

func TestHydrationRepositoryLabellersAndStats(t *testing.T) {
	tdb, fx := setupSQLite(t)
	ctx := context.Background()
	repo := repository.NewHydrationRepository(tdb.DB)

	g, err := fx.CreateGroup("g")
	require.NoError(t, err)
	u, err := fx.CreateUser("labeller")
	require.NoError(t, err)
	_, err = fx.CreateObj("obj1", 1, 1, nil)
	require.NoError(t, err)
	require.NoError(t, tdb.DB.Create(&models.SourceLabel{ObjID: "obj1", LabellerID: u.ID, GroupID: g.ID, CreatedAt: utils.UTCNow()}).Error)
	_, err = fx.CreatePhotStat("obj1", 59000.5, 59010.5, 4)
	require.NoError(t, err)

	labellers, err := repo.Labellers(ctx, []string{"obj1"}, []int64{int64(g.ID)})
	require.NoError(t, err)
	require.Len(t, labellers, 1)
	assert.Equal(t, "labeller", labellers[0].Username)
	assert.Equal(t, u.ID, labellers[0].UserID)

	stats, err := repo.PhotStats(ctx, []string{"obj1"})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 4, stats[0].NumDetGlobal)

	none, err := repo.PhotStats(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
