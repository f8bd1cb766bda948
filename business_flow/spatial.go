package businessflow

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/skyportal/source-query/models"
	"github.com/skyportal/source-query/query"
	"github.com/skyportal/source-query/repository"
	"github.com/skyportal/source-query/utils"
)

// spatialMatcher restricts a composed search to a localization region or a catalog entry
type spatialMatcher struct {
	localizations repository.LocalizationRepository
	catalogs      repository.SpatialCatalogRepository
	runner        repository.SourceQueryRepository
	partitions    *models.TilePartitionRegistry
	maxCandidates int
}

func newSpatialMatcher(
	localizations repository.LocalizationRepository,
	catalogs repository.SpatialCatalogRepository,
	runner repository.SourceQueryRepository,
	partitions *models.TilePartitionRegistry,
	maxCandidates int,
) *spatialMatcher {
	if maxCandidates <= 0 {
		maxCandidates = utils.MaxCandidatesForSpatialQuery
	}
	return &spatialMatcher{
		localizations: localizations,
		catalogs:      catalogs,
		runner:        runner,
		partitions:    partitions,
		maxCandidates: maxCandidates,
	}
}

// apply adds the spatial predicates to sel. It must run after every other filter since the
// candidate cap is checked against the already filtered set.
func (m *spatialMatcher) apply(ctx context.Context, sel *query.Select, f *ObjectFilters) error {
	if f.Localization == nil && f.SpatialCatalog == nil {
		return nil
	}

	var preds []query.Expr
	if f.Localization != nil {
		locPreds, err := m.localizationPredicates(ctx, sel, *f.Localization)
		if err != nil {
			return err
		}
		preds = append(preds, locPreds...)
	}
	if f.SpatialCatalog != nil {
		pred, err := m.catalogPredicate(ctx, *f.SpatialCatalog)
		if err != nil {
			return err
		}
		preds = append(preds, pred)
	}

	ids, err := m.prefilter(ctx, *sel)
	if err != nil {
		return err
	}
	sel.AddWhere(query.Raw("objs.id = ANY(?)", pq.StringArray(ids)))
	sel.AddWhere(preds...)
	return nil
}

// prefilter fetches the IDs already matching sel, failing when there are more than the cap
func (m *spatialMatcher) prefilter(ctx context.Context, sel query.Select) ([]string, error) {
	stmt := query.DistinctIDs(sel, "objs.id", m.maxCandidates+1)
	// nothing in the WHERE clause refers to the threshold CTE yet
	stmt.With = nil
	ids, err := m.runner.IDs(ctx, stmt.Build())
	if err != nil {
		return nil, backendError(err)
	}
	if len(ids) > m.maxCandidates {
		return nil, fmt.Errorf("%w: more than %d objects match the other filters, narrow them before a spatial search",
			ErrTooManyCandidates, m.maxCandidates)
	}
	return ids, nil
}

// resolveLocalization picks the newest localization for the dateobs, or for (dateobs, name)
func (m *spatialMatcher) resolveLocalization(ctx context.Context, ls LocalizationSearch) (*models.Localization, error) {
	dateobs := ls.Dateobs.UTC()
	loc, err := m.localizations.Latest(ctx, models.LocalizationFilter{Dateobs: &dateobs, Name: ls.Name})
	if err != nil {
		return nil, err
	}
	if loc == nil {
		if ls.Name != nil {
			return nil, fmt.Errorf("%w: no localization named %q for dateobs %s",
				ErrLocalizationNotFound, *ls.Name, dateobs.Format("2006-01-02T15:04:05"))
		}
		return nil, fmt.Errorf("%w: no localization for dateobs %s",
			ErrLocalizationNotFound, dateobs.Format("2006-01-02T15:04:05"))
	}
	return loc, nil
}

// tileTable returns the monthly partition holding the localization's tiles, or the parent
// table when the partition is unknown or empty for it
func (m *spatialMatcher) tileTable(ctx context.Context, loc *models.Localization) (string, error) {
	table := m.partitions.Table(loc.Dateobs)
	if table == m.partitions.Fallback() {
		return table, nil
	}
	ok, err := m.localizations.HasTiles(ctx, table, loc.ID)
	if err != nil {
		return "", err
	}
	if !ok {
		return m.partitions.Fallback(), nil
	}
	return table, nil
}

func (m *spatialMatcher) localizationPredicates(ctx context.Context, sel *query.Select, ls LocalizationSearch) ([]query.Expr, error) {
	loc, err := m.resolveLocalization(ctx, ls)
	if err != nil {
		return nil, err
	}
	table, err := m.tileTable(ctx, loc)
	if err != nil {
		return nil, err
	}

	sel.AddCTE("loc_threshold", localizationThreshold(table, loc.ID, ls.Cumprob))

	inRegion := query.Exists(query.Raw(
		"SELECT 1 FROM "+table+" lt WHERE lt.localization_id = ?"+
			" AND lt.probdensity >= (SELECT probdensity FROM loc_threshold)"+
			" AND objs.healpix >= lt.healpix_lower AND objs.healpix < lt.healpix_upper",
		loc.ID,
	))
	if ls.IncludeConfirmed {
		inRegion = query.Or(inRegion, query.Exists(query.Raw(
			"SELECT 1 FROM sourcesconfirmedingcns scg WHERE scg.obj_id = objs.id AND scg.dateobs = ? AND scg.confirmed != false",
			loc.Dateobs.UTC(),
		)))
	}

	preds := []query.Expr{inRegion}
	if ls.RejectSources {
		preds = append(preds, query.NotExists(query.Raw(
			"SELECT 1 FROM sourcesconfirmedingcns scg WHERE scg.obj_id = objs.id AND scg.dateobs = ? AND scg.confirmed = false",
			loc.Dateobs.UTC(),
		)))
	}
	return preds, nil
}

// localizationThreshold is the lowest tile density still inside the cumulative probability
// region. Tile probability is density times pixel count times the area of one pixel.
func localizationThreshold(table string, localizationID uint, cumprob float64) query.Expr {
	return query.Raw(
		"SELECT MIN(ranked.probdensity) AS probdensity FROM ("+
			"SELECT lt.probdensity, SUM(lt.probdensity * (lt.healpix_upper - lt.healpix_lower) * ?) "+
			"OVER (ORDER BY lt.probdensity DESC) AS cum_prob "+
			"FROM "+table+" lt WHERE lt.localization_id = ?"+
			") AS ranked WHERE ranked.cum_prob <= ?",
		utils.HealpixPixelArea(utils.HealpixNside), localizationID, cumprob,
	)
}

func (m *spatialMatcher) catalogPredicate(ctx context.Context, cs SpatialCatalogSearch) (query.Expr, error) {
	entry, err := m.catalogs.EntryByName(ctx, cs.CatalogName, cs.EntryName)
	if err != nil {
		return query.Expr{}, err
	}
	if entry == nil {
		return query.Expr{}, fmt.Errorf("%w: no entry %q in catalog %q",
			ErrSpatialCatalogNotFound, cs.EntryName, cs.CatalogName)
	}
	return query.Exists(query.Raw(
		"SELECT 1 FROM spatial_catalog_entry_tiles st WHERE st.entry_id = ?"+
			" AND objs.healpix >= st.healpix_lower AND objs.healpix < st.healpix_upper",
		entry.ID,
	)), nil
}
