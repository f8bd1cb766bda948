package businessflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/skyportal/source-query/app/dto"
	"github.com/skyportal/source-query/app/services"
	"github.com/skyportal/source-query/config"
	"github.com/skyportal/source-query/logger"
	"github.com/skyportal/source-query/models"
	"github.com/skyportal/source-query/query"
	"github.com/skyportal/source-query/repository"
)

// EngineRepositories are the data sources of the search engine
type EngineRepositories struct {
	Localizations repository.LocalizationRepository
	Catalogs      repository.SpatialCatalogRepository
	Queries       repository.SourceQueryRepository
	Hydration     repository.HydrationRepository
}

// searchPlan is a fully validated search, ready to run
type searchPlan struct {
	sel            query.Select
	filters        ObjectFilters
	order          ordering
	page           PageOptions
	include        IncludeOptions
	scope          filterScope
	passingFilters bool
}

type searchResult struct {
	items   []dto.SourceItem
	total   int64
	queryID string
	geojson *geojson.FeatureCollection
}

// queryEngine runs plans: spatial restriction, ordering, pagination, hydration
type queryEngine struct {
	kind      string
	cfg       config.QueryConfig
	spatial   *spatialMatcher
	paginator *paginator
	hydrator  *hydrator
	log       *logger.Logger
}

func newQueryEngine(
	kind string,
	repos EngineRepositories,
	partitions *models.TilePartitionRegistry,
	cache services.QueryCache,
	cosmology services.CosmologyService,
	cfg config.QueryConfig,
	cacheTTL time.Duration,
	log *logger.Logger,
) *queryEngine {
	if log == nil {
		log = logger.NewNop()
	}
	return &queryEngine{
		kind:      kind,
		cfg:       cfg,
		spatial:   newSpatialMatcher(repos.Localizations, repos.Catalogs, repos.Queries, partitions, cfg.MaxSpatialCandidates),
		paginator: newPaginator(repos.Queries, cache, cacheTTL, kind, log),
		hydrator:  newHydrator(repos.Queries, repos.Hydration, cosmology),
		log:       log,
	}
}

// baseSelect is FROM objs with the group-visibility independent object predicates applied
func (e *queryEngine) baseSelect(f *ObjectFilters, scope filterScope) query.Select {
	sel := query.Select{From: query.Raw("objs")}
	sel.AddWhere(objectPredicates(f, scope)...)
	return sel
}

func (e *queryEngine) run(ctx context.Context, plan *searchPlan) (*searchResult, error) {
	if e.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.RequestTimeout)
		defer cancel()
	}

	var (
		page *pageResult
		err  error
	)
	if e.paginator.cached(plan.page) {
		page, err = e.paginator.cachedPage(ctx, plan.page, searchFingerprint(plan), func(ctx context.Context) (query.Select, error) {
			return e.compose(ctx, plan)
		})
	} else {
		var sel query.Select
		if sel, err = e.compose(ctx, plan); err == nil {
			page, err = e.paginator.directPage(ctx, sel, plan.page)
		}
	}
	if err != nil {
		return nil, err
	}

	start := time.Now()
	items, err := e.hydrator.hydrate(ctx, hydrateRequest{
		ids:            page.IDs,
		include:        plan.include,
		groupIDs:       plan.scope.principal.ScopeGroupIDs(),
		filters:        &plan.filters,
		passingFilters: plan.passingFilters,
	})
	observeStage(e.kind, "hydrate", start)
	if err != nil {
		return nil, backendError(fmt.Errorf("failed to hydrate results: %w", err))
	}

	res := &searchResult{items: items, total: page.Total, queryID: page.QueryID}
	if plan.include.GeoJSON {
		res.geojson = featureCollection(items)
	}
	return res, nil
}

// compose restricts the plan to its spatial region and applies the ordering. The spatial
// prefilter binds the currently matching IDs, so the result is only valid for this request.
func (e *queryEngine) compose(ctx context.Context, plan *searchPlan) (query.Select, error) {
	sel := plan.sel.Clone()
	start := time.Now()
	if err := e.spatial.apply(ctx, &sel, &plan.filters); err != nil {
		return query.Select{}, err
	}
	observeStage(e.kind, "spatial", start)
	plan.order.apply(&sel)
	return sel, nil
}

// searchFingerprint identifies the search by its ordered statement before the spatial
// prefilter, plus the spatial parameters, so a snapshot stays valid while sources are saved
func searchFingerprint(plan *searchPlan) string {
	sel := plan.sel.Clone()
	plan.order.apply(&sel)
	args := []any{query.Fingerprint(query.OrderedIDs(sel, idColumn, 0, 0).Build())}
	if ls := plan.filters.Localization; ls != nil {
		name := ""
		if ls.Name != nil {
			name = *ls.Name
		}
		args = append(args, "localization", ls.Dateobs.UTC().Format(time.RFC3339Nano), name,
			ls.Cumprob, ls.RejectSources, ls.IncludeConfirmed)
	}
	if cs := plan.filters.SpatialCatalog; cs != nil {
		args = append(args, "catalog", cs.CatalogName, cs.EntryName)
	}
	return query.Fingerprint(query.Raw(strings.TrimSuffix(strings.Repeat("?,", len(args)), ","), args...))
}

// selectedGroups validates requested group IDs against the principal. Without a request it
// returns every accessible group, or nil for admins meaning all groups.
func selectedGroups(principal Principal, requested []int64) ([]int64, error) {
	if len(requested) > 0 {
		for _, id := range requested {
			if !principal.CanAccessGroup(id) {
				return nil, fmt.Errorf("%w: group %d", ErrGroupAccessDenied, id)
			}
		}
		return requested, nil
	}
	return principal.ScopeGroupIDs(), nil
}
