package businessflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skyportal/source-query/app/services"
	"github.com/skyportal/source-query/logger"
	"github.com/skyportal/source-query/query"
	"github.com/skyportal/source-query/repository"
	"github.com/skyportal/source-query/utils"
)

// idColumn is the object identifier every composed search selects
const idColumn = "objs.id"

// pageResult is one page of ordered object IDs
type pageResult struct {
	IDs     []string
	Total   int64
	QueryID string
}

// paginator runs the ordered ID query for a composed search, either directly per page or
// through a cached snapshot of the whole ordered result
type paginator struct {
	runner repository.SourceQueryRepository
	cache  services.QueryCache
	ttl    time.Duration
	kind   string
	log    *logger.Logger
	newID  func() string
}

func newPaginator(runner repository.SourceQueryRepository, cache services.QueryCache, ttl time.Duration, kind string, log *logger.Logger) *paginator {
	if ttl <= 0 {
		ttl = utils.DefaultQueryCacheTTL
	}
	return &paginator{
		runner: runner,
		cache:  cache,
		ttl:    ttl,
		kind:   kind,
		log:    log,
		newID:  uuid.NewString,
	}
}

// page returns the IDs of the requested page in the order of sel.OrderBy
func (p *paginator) page(ctx context.Context, sel query.Select, opts PageOptions) (*pageResult, error) {
	if p.cached(opts) {
		stmt := query.OrderedIDs(sel, idColumn, 0, 0).Build()
		return p.cachedPage(ctx, opts, query.Fingerprint(stmt), func(context.Context) (query.Select, error) {
			return sel, nil
		})
	}
	return p.directPage(ctx, sel, opts)
}

// cached reports whether opts page through a snapshot
func (p *paginator) cached(opts PageOptions) bool {
	if !opts.UseCache {
		return false
	}
	if p.cache == nil {
		p.log.Warn("Query cache requested but not configured, paging without it", "kind", p.kind)
		return false
	}
	return true
}

func (p *paginator) directPage(ctx context.Context, sel query.Select, opts PageOptions) (*pageResult, error) {
	if opts.Page < 1 {
		return nil, ErrPageOutOfRange
	}

	var total int64
	if opts.TotalMatches != nil {
		total = *opts.TotalMatches
	} else {
		start := time.Now()
		n, err := p.runner.Count(ctx, query.CountDistinct(sel, idColumn).Build())
		observeStage(p.kind, "count", start)
		if err != nil {
			return nil, backendError(err)
		}
		total = n
	}
	if err := checkPageRange(opts.Page, opts.PerPage, total); err != nil {
		return nil, err
	}

	start := time.Now()
	stmt := query.OrderedIDs(sel, idColumn, opts.PerPage, (opts.Page-1)*opts.PerPage).Build()
	ids, err := p.runner.IDs(ctx, stmt)
	observeStage(p.kind, "ids", start)
	if err != nil {
		return nil, backendError(err)
	}
	return &pageResult{IDs: ids, Total: total}, nil
}

// cachedPage serves the page from the snapshot named by opts.QueryID when it was taken for the
// same fingerprint. Otherwise build composes the search, and a fresh snapshot is stored under a
// new query ID. build is not called on a hit.
func (p *paginator) cachedPage(
	ctx context.Context,
	opts PageOptions,
	fingerprint string,
	build func(context.Context) (query.Select, error),
) (*pageResult, error) {
	if opts.Page < 1 {
		return nil, ErrPageOutOfRange
	}

	snapshot := p.lookup(ctx, opts.QueryID, fingerprint)
	if snapshot == nil {
		sel, err := build(ctx)
		if err != nil {
			return nil, err
		}
		snapshot, err = p.takeSnapshot(ctx, sel, fingerprint)
		if err != nil {
			return nil, err
		}
	}

	total := int64(len(snapshot.IDs))
	if err := checkPageRange(opts.Page, opts.PerPage, total); err != nil {
		return nil, err
	}
	lo := (opts.Page - 1) * opts.PerPage
	hi := min(lo+opts.PerPage, len(snapshot.IDs))
	return &pageResult{
		IDs:     snapshot.IDs[lo:hi],
		Total:   total,
		QueryID: snapshot.QueryID,
	}, nil
}

// lookup returns the snapshot stored under queryID, or nil when it is missing, unreadable or
// was taken for another search
func (p *paginator) lookup(ctx context.Context, queryID, fingerprint string) *services.CachedQuery {
	if queryID == "" {
		return nil
	}
	cached, err := p.cache.Get(ctx, queryID)
	switch {
	case err != nil:
		p.log.Warn("Query cache lookup failed", "query_id", queryID, "error", err)
		countCacheLookup("error")
	case cached == nil:
		countCacheLookup("miss")
	case cached.Fingerprint != fingerprint:
		countCacheLookup("stale")
	default:
		countCacheLookup("hit")
		return cached
	}
	return nil
}

// takeSnapshot runs the full ordered ID query and stores it
func (p *paginator) takeSnapshot(ctx context.Context, sel query.Select, fingerprint string) (*services.CachedQuery, error) {
	start := time.Now()
	ids, err := p.runner.IDs(ctx, query.OrderedIDs(sel, idColumn, 0, 0).Build())
	observeStage(p.kind, "ids", start)
	if err != nil {
		return nil, backendError(err)
	}
	snapshot := &services.CachedQuery{
		QueryID:     p.newID(),
		Fingerprint: fingerprint,
		IDs:         ids,
		CreatedAt:   utils.UTCNow(),
	}
	if err := p.cache.Put(ctx, snapshot, p.ttl); err != nil {
		// the page can still be served, only later pages lose the snapshot
		p.log.Warn("Failed to store query snapshot", "query_id", snapshot.QueryID, "error", err)
		snapshot.QueryID = ""
	}
	return snapshot, nil
}

// checkPageRange rejects pages past the last one. An empty result only has page 1.
func checkPageRange(page, perPage int, total int64) error {
	if page < 1 {
		return ErrPageOutOfRange
	}
	if total == 0 {
		if page != 1 {
			return ErrPageOutOfRange
		}
		return nil
	}
	if int64(page-1)*int64(perPage) >= total {
		return ErrPageOutOfRange
	}
	return nil
}

// backendError marks statement timeouts so callers can tell them from empty results
func backendError(err error) error {
	if errors.Is(err, repository.ErrStatementTimeout) {
		return fmt.Errorf("%w: %v", ErrQueryTimedOut, err)
	}
	return err
}
