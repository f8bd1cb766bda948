package businessflow

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/skyportal/source-query/models"
	"github.com/skyportal/source-query/query"
	"github.com/skyportal/source-query/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var gw190425 = mustDate("2019-04-25T08:18:05Z")

func testRegistry() *models.TilePartitionRegistry {
	return models.NewTilePartitionRegistry(mustDate("2019-01-01T00:00:00Z"), mustDate("2019-12-01T00:00:00Z"))
}

func testLocalizations() *fakeLocalizations {
	return &fakeLocalizations{
		items: []*models.Localization{
			{ID: 1, Dateobs: gw190425, LocalizationName: "bayestar.fits", CreatedAt: gw190425.Add(time.Hour)},
			{ID: 2, Dateobs: gw190425, LocalizationName: "LALInference.fits", CreatedAt: gw190425.Add(48 * time.Hour)},
		},
		tiles: map[string]bool{"localizationtiles_2019_04": true},
	}
}

func baseObjSelect() query.Select {
	sel := query.Select{From: query.Raw("objs")}
	sel.AddWhere(query.Raw("objs.redshift >= ?", 0.0))
	return sel
}

func TestSpatialNoop(t *testing.T) {
	runner := newFakeRunner("a")
	m := newSpatialMatcher(testLocalizations(), &fakeCatalogs{}, runner, testRegistry(), 10)

	sel := baseObjSelect()
	require.NoError(t, m.apply(context.Background(), &sel, &ObjectFilters{}))
	assert.Len(t, sel.Where, 1)
	assert.Empty(t, runner.idStmts)
}

func TestLocalizationMatch(t *testing.T) {
	runner := newFakeRunner("a", "b")
	locs := testLocalizations()
	m := newSpatialMatcher(locs, &fakeCatalogs{}, runner, testRegistry(), 10)

	sel := baseObjSelect()
	f := &ObjectFilters{Localization: &LocalizationSearch{Dateobs: gw190425, Cumprob: 0.9}}
	require.NoError(t, m.apply(context.Background(), &sel, f))

	// newest localization for the dateobs wins
	require.Len(t, sel.With, 1)
	assert.Equal(t, "loc_threshold", sel.With[0].Name)
	assert.Contains(t, sel.With[0].Query.SQL, "FROM localizationtiles_2019_04 lt")
	assert.Equal(t, uint(2), sel.With[0].Query.Args[1])
	assert.Equal(t, 0.9, sel.With[0].Query.Args[2])
	assert.Equal(t, []string{"localizationtiles_2019_04"}, locs.tileChecks)

	// prefilter ran without the threshold CTE and capped at max+1
	require.Len(t, runner.idStmts, 1)
	assert.False(t, strings.HasPrefix(runner.idStmts[0].SQL, "WITH"))
	assert.True(t, strings.HasSuffix(runner.idStmts[0].SQL, "LIMIT ?"))
	assert.Equal(t, 11, runner.idStmts[0].Args[len(runner.idStmts[0].Args)-1])

	require.Len(t, sel.Where, 3)
	assert.Equal(t, "objs.id = ANY(?)", sel.Where[1].SQL)
	assert.Equal(t, pq.StringArray{"a", "b"}, sel.Where[1].Args[0])
	assert.Contains(t, sel.Where[2].SQL, "lt.probdensity >= (SELECT probdensity FROM loc_threshold)")

	stmt := sel.Build()
	assert.True(t, strings.HasPrefix(stmt.SQL, "WITH loc_threshold AS ("))
}

func TestLocalizationByName(t *testing.T) {
	runner := newFakeRunner("a")
	m := newSpatialMatcher(testLocalizations(), &fakeCatalogs{}, runner, testRegistry(), 10)

	name := "bayestar.fits"
	sel := baseObjSelect()
	f := &ObjectFilters{Localization: &LocalizationSearch{Dateobs: gw190425, Name: &name, Cumprob: 0.95}}
	require.NoError(t, m.apply(context.Background(), &sel, f))
	assert.Equal(t, uint(1), sel.With[0].Query.Args[1])
}

func TestLocalizationNotFound(t *testing.T) {
	m := newSpatialMatcher(testLocalizations(), &fakeCatalogs{}, newFakeRunner(), testRegistry(), 10)

	missing := "skymap.fits"
	for _, ls := range []LocalizationSearch{
		{Dateobs: mustDate("2020-01-01T00:00:00Z"), Cumprob: 0.95},
		{Dateobs: gw190425, Name: &missing, Cumprob: 0.95},
	} {
		sel := baseObjSelect()
		err := m.apply(context.Background(), &sel, &ObjectFilters{Localization: &ls})
		assert.True(t, IsLocalizationNotFound(err))
	}
}

func TestTileTableFallback(t *testing.T) {
	locs := testLocalizations()
	locs.tiles = map[string]bool{}
	m := newSpatialMatcher(locs, &fakeCatalogs{}, newFakeRunner("a"), testRegistry(), 10)

	sel := baseObjSelect()
	f := &ObjectFilters{Localization: &LocalizationSearch{Dateobs: gw190425, Cumprob: 0.95}}
	require.NoError(t, m.apply(context.Background(), &sel, f))
	assert.Contains(t, sel.With[0].Query.SQL, "FROM "+models.LocalizationTilesTable+" lt")

	// months without a partition never probe for tiles
	old := &fakeLocalizations{items: []*models.Localization{{ID: 9, Dateobs: mustDate("2015-09-14T09:50:45Z")}}}
	m = newSpatialMatcher(old, &fakeCatalogs{}, newFakeRunner("a"), testRegistry(), 10)
	sel = baseObjSelect()
	f = &ObjectFilters{Localization: &LocalizationSearch{Dateobs: mustDate("2015-09-14T09:50:45Z"), Cumprob: 0.95}}
	require.NoError(t, m.apply(context.Background(), &sel, f))
	assert.Empty(t, old.tileChecks)
	assert.Contains(t, sel.With[0].Query.SQL, "FROM "+models.LocalizationTilesTable+" lt")
}

func TestLocalizationGCNVerdicts(t *testing.T) {
	m := newSpatialMatcher(testLocalizations(), &fakeCatalogs{}, newFakeRunner("a"), testRegistry(), 10)

	sel := baseObjSelect()
	f := &ObjectFilters{Localization: &LocalizationSearch{
		Dateobs: gw190425, Cumprob: 0.95, IncludeConfirmed: true, RejectSources: true,
	}}
	require.NoError(t, m.apply(context.Background(), &sel, f))

	require.Len(t, sel.Where, 4)
	assert.Contains(t, sel.Where[2].SQL, ") OR (EXISTS (SELECT 1 FROM sourcesconfirmedingcns scg")
	assert.Contains(t, sel.Where[2].SQL, "scg.confirmed != false")
	assert.True(t, strings.HasPrefix(sel.Where[3].SQL, "NOT EXISTS"))
	assert.Contains(t, sel.Where[3].SQL, "scg.confirmed = false")
}

func TestSpatialCandidateCap(t *testing.T) {
	ids := make([]string, 6)
	for i := range ids {
		ids[i] = fmt.Sprintf("obj%d", i)
	}
	m := newSpatialMatcher(testLocalizations(), &fakeCatalogs{}, newFakeRunner(ids...), testRegistry(), 5)

	sel := baseObjSelect()
	err := m.apply(context.Background(), &sel, &ObjectFilters{Localization: &LocalizationSearch{Dateobs: gw190425, Cumprob: 0.95}})
	assert.True(t, IsTooManyCandidates(err))

	m = newSpatialMatcher(testLocalizations(), &fakeCatalogs{}, newFakeRunner(ids[:5]...), testRegistry(), 5)
	sel = baseObjSelect()
	assert.NoError(t, m.apply(context.Background(), &sel, &ObjectFilters{Localization: &LocalizationSearch{Dateobs: gw190425, Cumprob: 0.95}}))
}

func TestSpatialPrefilterTimeout(t *testing.T) {
	runner := newFakeRunner("a")
	runner.idsErr = repository.ErrStatementTimeout
	m := newSpatialMatcher(testLocalizations(), &fakeCatalogs{}, runner, testRegistry(), 5)

	sel := baseObjSelect()
	err := m.apply(context.Background(), &sel, &ObjectFilters{Localization: &LocalizationSearch{Dateobs: gw190425, Cumprob: 0.95}})
	assert.True(t, IsQueryTimedOut(err))
}

func TestSpatialCatalog(t *testing.T) {
	catalogs := &fakeCatalogs{entries: map[string]*models.SpatialCatalogEntry{
		"footprints/field 1": {ID: 31, EntryName: "field 1"},
	}}
	m := newSpatialMatcher(testLocalizations(), catalogs, newFakeRunner("a"), testRegistry(), 5)

	sel := baseObjSelect()
	f := &ObjectFilters{SpatialCatalog: &SpatialCatalogSearch{CatalogName: "footprints", EntryName: "field 1"}}
	require.NoError(t, m.apply(context.Background(), &sel, f))
	assert.Empty(t, sel.With)
	last := sel.Where[len(sel.Where)-1]
	assert.Contains(t, last.SQL, "spatial_catalog_entry_tiles st")
	assert.Equal(t, []any{uint(31)}, last.Args)

	sel = baseObjSelect()
	f = &ObjectFilters{SpatialCatalog: &SpatialCatalogSearch{CatalogName: "footprints", EntryName: "field 2"}}
	assert.True(t, IsSpatialCatalogNotFound(m.apply(context.Background(), &sel, f)))
}
