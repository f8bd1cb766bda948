package businessflow

import (
	"context"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/skyportal/source-query/app/dto"
	"github.com/skyportal/source-query/app/services"
	"github.com/skyportal/source-query/config"
	"github.com/skyportal/source-query/logger"
	"github.com/skyportal/source-query/models"
	"github.com/skyportal/source-query/query"
)

// Saved status values of a candidate search
const (
	SavedStatusAll                     = "all"
	SavedStatusSavedToAllSelected      = "savedToAllSelected"
	SavedStatusSavedToAnySelected      = "savedToAnySelected"
	SavedStatusSavedToAnyAccessible    = "savedToAnyAccessible"
	SavedStatusNotSavedToAnyAccessible = "notSavedToAnyAccessible"
	SavedStatusNotSavedToAnySelected   = "notSavedToAnySelected"
	SavedStatusNotSavedToAllSelected   = "notSavedToAllSelected"
)

// CandidateQueryFlow searches objects that passed alert filters
type CandidateQueryFlow interface {
	GetCandidates(ctx context.Context, principal Principal, req *dto.ListCandidatesRequest, metadata *ClientMetadata) (*dto.ListCandidatesResponse, error)
}

// CandidateQueryFlowImpl implements CandidateQueryFlow
type CandidateQueryFlowImpl struct {
	engine *queryEngine
	log    *logger.Logger
}

func NewCandidateQueryFlow(
	repos EngineRepositories,
	partitions *models.TilePartitionRegistry,
	cache services.QueryCache,
	cosmology services.CosmologyService,
	cfg config.QueryConfig,
	cacheCfg config.CacheConfig,
	log *logger.Logger,
) CandidateQueryFlow {
	if log == nil {
		log = logger.NewNop()
	}
	return &CandidateQueryFlowImpl{
		engine: newQueryEngine("candidates", repos, partitions, cache, cosmology, cfg, cacheCfg.QueryTTL(), log),
		log:    log,
	}
}

func (f *CandidateQueryFlowImpl) GetCandidates(ctx context.Context, principal Principal, req *dto.ListCandidatesRequest, metadata *ClientMetadata) (resp *dto.ListCandidatesResponse, err error) {
	started := time.Now()
	defer func() {
		if err != nil {
			countQueryError("candidates", err)
			logQueryFailure(f.log, "Candidate query failed", err, metadata)
			err = NewBusinessError("GET_CANDIDATES_FAILED", "Failed to get candidates", err)
		}
	}()

	plan, err := f.plan(principal, req)
	if err != nil {
		return nil, err
	}
	res, err := f.engine.run(ctx, plan)
	if err != nil {
		return nil, err
	}

	f.log.Info("Candidate query completed",
		"user_id", principal.UserID,
		"total", res.total,
		"page", plan.page.Page,
		"cached", res.queryID != "",
		"duration_ms", time.Since(started).Milliseconds(),
		"request_id", requestID(metadata),
	)

	return &dto.ListCandidatesResponse{
		Candidates:   res.items,
		TotalMatches: res.total,
		PageNumber:   plan.page.Page,
		NumPerPage:   plan.page.PerPage,
		QueryID:      res.queryID,
		GeoJSON:      res.geojson,
	}, nil
}

func (f *CandidateQueryFlowImpl) plan(principal Principal, req *dto.ListCandidatesRequest) (*searchPlan, error) {
	cfg := f.engine.cfg
	p := &paramParser{}
	filters := parseObjectFilters(p, req.ObjectFilterParams, cfg)
	page := parsePageOptions(p, req.PageParams, cfg)
	include := parseIncludeOptions(p, req.IncludeParams)
	groupIDs := p.int64List("groupIDs", req.GroupIDs)
	filterIDs := p.int64List("filterIDs", req.FilterIDs)

	savedStatus := strings.TrimSpace(req.SavedStatus)
	if savedStatus == "" {
		savedStatus = SavedStatusAll
	}

	sort := CandidateSort{
		AnnotationOrigin: strings.TrimSpace(req.SortByAnnotationOrigin),
		AnnotationKey:    strings.TrimSpace(req.SortByAnnotationKey),
		Order:            query.Desc,
	}
	if strings.TrimSpace(req.SortByAnnotationOrder) != "" {
		dir, ok := query.ParseDirection(req.SortByAnnotationOrder)
		if !ok {
			p.fail("sortByAnnotationOrder", "must be asc or desc")
		}
		sort.Order = dir
	}
	if (sort.AnnotationOrigin == "") != (sort.AnnotationKey == "") {
		p.fail("sortByAnnotationKey", "sortByAnnotationOrigin and sortByAnnotationKey must be given together")
	}
	if p.err != nil {
		return nil, p.err
	}

	groups, err := selectedGroups(principal, groupIDs)
	if err != nil {
		return nil, err
	}
	scope := filterScope{principal: principal, groupIDs: groups}

	savedPred, err := savedStatusPredicate(savedStatus, groups, principal)
	if err != nil {
		return nil, err
	}

	// detection dates bound the filter passes here, not the photometry statistics
	passedAfter, passedBefore := filters.StartDate, filters.EndDate
	filters.StartDate, filters.EndDate = nil, nil

	sel := f.engine.baseSelect(&filters, scope)
	sel.AddJoin(query.Join{
		Kind:   query.InnerJoin,
		Source: query.Raw("candidates"),
		Alias:  "candidates",
		On:     query.Raw("candidates.obj_id = objs.id"),
	})
	sel.AddWhere(candidateFilterPredicate(groups, filterIDs))
	if passedAfter != nil {
		sel.AddWhere(query.Raw("candidates.passed_at >= ?", passedAfter.UTC()))
	}
	if passedBefore != nil {
		sel.AddWhere(query.Raw("candidates.passed_at <= ?", passedBefore.UTC()))
	}
	sel.AddWhere(savedPred)

	return &searchPlan{
		sel:            sel,
		filters:        filters,
		order:          resolveCandidateOrdering(sort, scope),
		page:           page,
		include:        include,
		scope:          scope,
		passingFilters: true,
	}, nil
}

// candidateFilterPredicate keeps passes of filters owned by the selected groups, optionally
// narrowed to explicit filter IDs
func candidateFilterPredicate(groups, filterIDs []int64) query.Expr {
	conds := []query.Expr{query.Raw("fl.id = candidates.filter_id")}
	if groups != nil {
		conds = append(conds, query.Raw("fl.group_id = ANY(?)", pq.Int64Array(groups)))
	}
	if len(filterIDs) > 0 {
		conds = append(conds, query.Raw("fl.id = ANY(?)", pq.Int64Array(filterIDs)))
	}
	return query.Exists(subSelect("filters fl", conds))
}

// savedStatusPredicate restricts candidates by whether they are saved as sources. A nil
// groups slice selects every group.
func savedStatusPredicate(status string, groups []int64, principal Principal) (query.Expr, error) {
	savedIn := func(ids []int64) query.Expr {
		conds := []query.Expr{query.Raw("sv.obj_id = objs.id AND sv.active = true")}
		if ids != nil {
			conds = append(conds, query.Raw("sv.group_id = ANY(?)", pq.Int64Array(ids)))
		}
		return query.Exists(subSelect("sources sv", conds))
	}
	savedInAll := func(ids []int64) query.Expr {
		if ids == nil {
			return savedIn(nil)
		}
		return query.Raw(
			"(SELECT COUNT(DISTINCT sv.group_id) FROM sources sv WHERE sv.obj_id = objs.id AND sv.active = true AND sv.group_id = ANY(?)) = ?",
			pq.Int64Array(ids), len(ids),
		)
	}
	accessible := principal.ScopeGroupIDs()

	switch status {
	case SavedStatusAll:
		return query.Expr{}, nil
	case SavedStatusSavedToAllSelected:
		return savedInAll(groups), nil
	case SavedStatusSavedToAnySelected:
		return savedIn(groups), nil
	case SavedStatusSavedToAnyAccessible:
		return savedIn(accessible), nil
	case SavedStatusNotSavedToAnyAccessible:
		return query.Not(savedIn(accessible)), nil
	case SavedStatusNotSavedToAnySelected:
		return query.Not(savedIn(groups)), nil
	case SavedStatusNotSavedToAllSelected:
		return query.Not(savedInAll(groups)), nil
	}
	return query.Expr{}, newValidationError("savedStatus", "unknown saved status %q", status)
}
