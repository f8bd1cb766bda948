package businessflow

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/skyportal/source-query/app/dto"
	"github.com/skyportal/source-query/app/services"
	"github.com/skyportal/source-query/config"
	"github.com/skyportal/source-query/logger"
	"github.com/skyportal/source-query/models"
	"github.com/skyportal/source-query/query"
)

// SourceQueryFlow searches objects saved to groups
type SourceQueryFlow interface {
	GetSources(ctx context.Context, principal Principal, req *dto.ListSourcesRequest, metadata *ClientMetadata) (*dto.ListSourcesResponse, error)
	// ExportSources renders the requested page as an xlsx workbook
	ExportSources(ctx context.Context, principal Principal, req *dto.ListSourcesRequest, metadata *ClientMetadata) ([]byte, error)
}

// SourceQueryFlowImpl implements SourceQueryFlow
type SourceQueryFlowImpl struct {
	engine   *queryEngine
	exporter services.ExportService
	log      *logger.Logger
}

func NewSourceQueryFlow(
	repos EngineRepositories,
	partitions *models.TilePartitionRegistry,
	cache services.QueryCache,
	cosmology services.CosmologyService,
	exporter services.ExportService,
	cfg config.QueryConfig,
	cacheCfg config.CacheConfig,
	log *logger.Logger,
) SourceQueryFlow {
	if log == nil {
		log = logger.NewNop()
	}
	return &SourceQueryFlowImpl{
		engine:   newQueryEngine("sources", repos, partitions, cache, cosmology, cfg, cacheCfg.QueryTTL(), log),
		exporter: exporter,
		log:      log,
	}
}

// sourceSelection is the group-membership part of a source search
type sourceSelection struct {
	groupIDs         []int64
	includeRequested bool
	requestedOnly    bool
	savedBefore      *time.Time
	savedAfter       *time.Time
	savedBy          *int64
}

func (f *SourceQueryFlowImpl) GetSources(ctx context.Context, principal Principal, req *dto.ListSourcesRequest, metadata *ClientMetadata) (resp *dto.ListSourcesResponse, err error) {
	started := time.Now()
	defer func() {
		if err != nil {
			countQueryError("sources", err)
			f.logFailure("Source query failed", err, metadata)
			err = NewBusinessError("GET_SOURCES_FAILED", "Failed to get sources", err)
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

	f.log.Info("Source query completed",
		"user_id", principal.UserID,
		"total", res.total,
		"page", plan.page.Page,
		"cached", res.queryID != "",
		"duration_ms", time.Since(started).Milliseconds(),
		"request_id", requestID(metadata),
	)

	return &dto.ListSourcesResponse{
		Sources:      res.items,
		TotalMatches: res.total,
		PageNumber:   plan.page.Page,
		NumPerPage:   plan.page.PerPage,
		QueryID:      res.queryID,
		GeoJSON:      res.geojson,
	}, nil
}

func (f *SourceQueryFlowImpl) ExportSources(ctx context.Context, principal Principal, req *dto.ListSourcesRequest, metadata *ClientMetadata) ([]byte, error) {
	resp, err := f.GetSources(ctx, principal, req, metadata)
	if err != nil {
		return nil, err
	}
	if f.exporter == nil {
		return nil, NewBusinessError("EXPORT_SOURCES_FAILED", "Export is not configured", nil)
	}
	out, err := f.exporter.SourcesWorkbook(resp.Sources)
	if err != nil {
		return nil, NewBusinessError("EXPORT_SOURCES_FAILED", "Failed to export sources", err)
	}
	return out, nil
}

// plan validates every parameter and composes the search; no SQL runs here
func (f *SourceQueryFlowImpl) plan(principal Principal, req *dto.ListSourcesRequest) (*searchPlan, error) {
	cfg := f.engine.cfg
	p := &paramParser{}
	filters := parseObjectFilters(p, req.ObjectFilterParams, cfg)
	page := parsePageOptions(p, req.PageParams, cfg)
	include := parseIncludeOptions(p, req.IncludeParams)
	selection := sourceSelection{
		groupIDs:         p.int64List("groupIDs", req.GroupIDs),
		includeRequested: p.boolParam("includeRequested", req.IncludeRequested),
		requestedOnly:    p.boolParam("requestedOnly", req.RequestedOnly),
		savedBefore:      p.dateParam("savedBefore", req.SavedBefore),
		savedAfter:       p.dateParam("savedAfter", req.SavedAfter),
		savedBy:          p.int64Param("savedBy", req.SavedBy),
	}
	if p.err != nil {
		return nil, p.err
	}

	groups, err := selectedGroups(principal, selection.groupIDs)
	if err != nil {
		return nil, err
	}
	scope := filterScope{principal: principal, groupIDs: groups}

	order, err := resolveSourceOrdering(page, filters.Localization, scope)
	if err != nil {
		return nil, err
	}

	sel := f.engine.baseSelect(&filters, scope)
	sel.AddJoin(query.Join{
		Kind:   query.InnerJoin,
		Source: query.Raw("sources"),
		Alias:  "sources",
		On:     query.Raw("sources.obj_id = objs.id"),
	})
	sel.AddWhere(sourcePredicates(selection, groups)...)

	return &searchPlan{
		sel:     sel,
		filters: filters,
		order:   order,
		page:    page,
		include: include,
		scope:   scope,
	}, nil
}

// sourcePredicates restricts the sources join to the selected groups and save state
func sourcePredicates(s sourceSelection, groups []int64) []query.Expr {
	var preds []query.Expr
	if groups != nil {
		preds = append(preds, query.Raw("sources.group_id = ANY(?)", pq.Int64Array(groups)))
	}
	switch {
	case s.requestedOnly:
		preds = append(preds, query.Raw("sources.requested = true AND sources.active = false"))
	case s.includeRequested:
		preds = append(preds, query.Raw("sources.active = true OR sources.requested = true"))
	default:
		preds = append(preds, query.Raw("sources.active = true"))
	}
	if s.savedBefore != nil {
		preds = append(preds, query.Raw("sources.saved_at <= ?", s.savedBefore.UTC()))
	}
	if s.savedAfter != nil {
		preds = append(preds, query.Raw("sources.saved_at >= ?", s.savedAfter.UTC()))
	}
	if s.savedBy != nil {
		preds = append(preds, query.Raw("sources.saved_by_id = ?", *s.savedBy))
	}
	return preds
}

func (f *SourceQueryFlowImpl) logFailure(msg string, err error, metadata *ClientMetadata) {
	logQueryFailure(f.log, msg, err, metadata)
}

// logQueryFailure logs backend failures as errors and caller mistakes as warnings
func logQueryFailure(log *logger.Logger, msg string, err error, metadata *ClientMetadata) {
	kind := errorKind(err)
	if kind == "backend" || kind == "timeout" {
		log.Error(msg, "error", err, "kind", kind, "request_id", requestID(metadata))
		return
	}
	log.Warn(msg, "error", err, "kind", kind, "request_id", requestID(metadata))
}

func requestID(metadata *ClientMetadata) string {
	if metadata == nil {
		return ""
	}
	return metadata.RequestID
}
