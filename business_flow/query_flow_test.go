package businessflow

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/skyportal/source-query/app/dto"
	"github.com/skyportal/source-query/app/services"
	"github.com/skyportal/source-query/config"
	"github.com/skyportal/source-query/logger"
	"github.com/skyportal/source-query/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRepos(runner *fakeRunner, lookups *fakeHydration) EngineRepositories {
	return EngineRepositories{
		Localizations: testLocalizations(),
		Catalogs:      &fakeCatalogs{},
		Queries:       runner,
		Hydration:     lookups,
	}
}

func newTestSourceFlow(runner *fakeRunner, lookups *fakeHydration, cache services.QueryCache) SourceQueryFlow {
	return NewSourceQueryFlow(
		testRepos(runner, lookups), testRegistry(), cache, fixedCosmology{dl: 100},
		services.NewExportService(), config.QueryConfig{}, config.CacheConfig{}, logger.NewNop(),
	)
}

func newTestCandidateFlow(runner *fakeRunner, lookups *fakeHydration) CandidateQueryFlow {
	return NewCandidateQueryFlow(
		testRepos(runner, lookups), testRegistry(), nil, fixedCosmology{dl: 100},
		config.QueryConfig{}, config.CacheConfig{}, logger.NewNop(),
	)
}

func TestGetSources(t *testing.T) {
	runner := newFakeRunner("a", "b", "c")
	lookups := &fakeHydration{}
	flow := newTestSourceFlow(runner, lookups, nil)

	req := &dto.ListSourcesRequest{}
	req.NumPerPage = "2"
	req.IncludeGroups = "true"

	resp, err := flow.GetSources(context.Background(), member(3, 1, 2), req, NewClientMetadata("127.0.0.1", "test"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.TotalMatches)
	assert.Equal(t, 1, resp.PageNumber)
	assert.Equal(t, 2, resp.NumPerPage)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "a", resp.Sources[0].ID)
	assert.Nil(t, resp.GeoJSON)

	require.Len(t, runner.countStmts, 1)
	sql := runner.countStmts[0].SQL
	assert.Contains(t, sql, "JOIN sources AS sources ON sources.obj_id = objs.id")
	assert.Contains(t, sql, "sources.group_id = ANY(?)")
	assert.Contains(t, sql, "sources.active = true")
	assert.Contains(t, runner.countStmts[0].Args, pq.Int64Array{1, 2})

	// attachments are scoped to every accessible group, not only the selected ones
	require.Len(t, lookups.scopes, 1)
	assert.Equal(t, []int64{1, 2}, lookups.scopes[0])
}

func TestGetSourcesSelectedGroups(t *testing.T) {
	runner := newFakeRunner("a")
	flow := newTestSourceFlow(runner, &fakeHydration{}, nil)

	req := &dto.ListSourcesRequest{GroupIDs: "2", RequestedOnly: "true", SavedBy: "9"}
	_, err := flow.GetSources(context.Background(), member(3, 1, 2), req, nil)
	require.NoError(t, err)

	stmt := runner.countStmts[0]
	assert.Contains(t, stmt.SQL, "sources.requested = true AND sources.active = false")
	assert.Contains(t, stmt.SQL, "sources.saved_by_id = ?")
	assert.Contains(t, stmt.Args, pq.Int64Array{2})
	assert.Contains(t, stmt.Args, int64(9))
}

func TestGetSourcesAdminSeesAllGroups(t *testing.T) {
	runner := newFakeRunner("a")
	lookups := &fakeHydration{}
	flow := newTestSourceFlow(runner, lookups, nil)

	req := &dto.ListSourcesRequest{}
	req.IncludeGroups = "1"
	_, err := flow.GetSources(context.Background(), admin(1), req, nil)
	require.NoError(t, err)
	assert.NotContains(t, runner.countStmts[0].SQL, "sources.group_id")
	require.Len(t, lookups.scopes, 1)
	assert.Nil(t, lookups.scopes[0])
}

func TestGetSourcesErrors(t *testing.T) {
	tests := []struct {
		name  string
		req   dto.ListSourcesRequest
		check func(error) bool
	}{
		{
			name:  "inaccessible group",
			req:   dto.ListSourcesRequest{GroupIDs: "1,5"},
			check: IsGroupAccessDenied,
		},
		{
			name:  "bad group list",
			req:   dto.ListSourcesRequest{GroupIDs: "1,x"},
			check: IsValidation,
		},
		{
			name:  "unknown sort key",
			req:   dto.ListSourcesRequest{PageParams: dto.PageParams{SortBy: "mood"}},
			check: IsValidation,
		},
		{
			name:  "gcn status without localization",
			req:   dto.ListSourcesRequest{PageParams: dto.PageParams{SortBy: "gcn_status"}},
			check: IsValidation,
		},
		{
			name:  "page out of range",
			req:   dto.ListSourcesRequest{PageParams: dto.PageParams{PageNumber: "9"}},
			check: IsPageOutOfRange,
		},
		{
			name: "unknown localization",
			req: dto.ListSourcesRequest{ObjectFilterParams: dto.ObjectFilterParams{
				LocalizationDateobs: "2021-01-01T00:00:00", StartDate: "2021-01-01", EndDate: "2021-01-10",
			}},
			check: IsLocalizationNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner("a", "b")
			flow := newTestSourceFlow(runner, &fakeHydration{}, nil)

			_, err := flow.GetSources(context.Background(), member(3, 1, 2), &tt.req, nil)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)

			var be *BusinessError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, "GET_SOURCES_FAILED", be.Code)
		})
	}
}

func TestValidationRunsBeforeSQL(t *testing.T) {
	runner := newFakeRunner("a")
	flow := newTestSourceFlow(runner, &fakeHydration{}, nil)

	req := &dto.ListSourcesRequest{}
	req.MinRedshift = "0.1"
	req.SortBy = "nonsense"
	_, err := flow.GetSources(context.Background(), member(3, 1), req, nil)
	require.Error(t, err)
	assert.Empty(t, runner.countStmts)
	assert.Empty(t, runner.idStmts)
}

func TestGetSourcesWithCacheAndGeoJSON(t *testing.T) {
	runner := newFakeRunner("a", "b", "c")
	cache := services.NewMemoryQueryCache(time.Minute, time.Minute)
	flow := newTestSourceFlow(runner, &fakeHydration{}, cache)

	req := &dto.ListSourcesRequest{}
	req.NumPerPage = "2"
	req.UseCache = "true"
	req.IncludeGeoJSON = "true"

	first, err := flow.GetSources(context.Background(), member(3, 1), req, nil)
	require.NoError(t, err)
	require.NotEmpty(t, first.QueryID)
	require.NotNil(t, first.GeoJSON)
	assert.Len(t, first.GeoJSON.Features, 2)

	req.PageNumber = "2"
	req.QueryID = first.QueryID
	second, err := flow.GetSources(context.Background(), member(3, 1), req, nil)
	require.NoError(t, err)
	assert.Equal(t, first.QueryID, second.QueryID)
	require.Len(t, second.Sources, 1)
	assert.Equal(t, "c", second.Sources[0].ID)
	assert.Equal(t, 1, runner.idCalls())
}

func TestLocalizationSearchPagesThroughSnapshot(t *testing.T) {
	runner := newFakeRunner("a", "b", "c", "d")
	cache := services.NewMemoryQueryCache(time.Minute, time.Minute)
	flow := newTestSourceFlow(runner, &fakeHydration{}, cache)
	ctx := context.Background()

	req := &dto.ListSourcesRequest{}
	req.LocalizationDateobs = "2019-04-25T08:18:05"
	req.StartDate = "2019-04-25"
	req.EndDate = "2019-05-05"
	req.NumPerPage = "2"
	req.UseCache = "true"

	first, err := flow.GetSources(ctx, admin(1), req, nil)
	require.NoError(t, err)
	require.NotEmpty(t, first.QueryID)
	assert.Equal(t, int64(4), first.TotalMatches)
	calls := runner.idCalls()

	// a source saved between page fetches must not reshape the snapshot
	runner.mu.Lock()
	runner.ordered = append(runner.ordered, "e")
	runner.mu.Unlock()

	req.PageNumber = "2"
	req.QueryID = first.QueryID
	second, err := flow.GetSources(ctx, admin(1), req, nil)
	require.NoError(t, err)
	assert.Equal(t, first.QueryID, second.QueryID)
	assert.Equal(t, int64(4), second.TotalMatches)
	require.Len(t, second.Sources, 2)
	assert.Equal(t, "c", second.Sources[0].ID)
	assert.Equal(t, "d", second.Sources[1].ID)
	assert.Equal(t, calls, runner.idCalls())

	// another window is a different search
	req.EndDate = "2019-05-06"
	req.PageNumber = "1"
	third, err := flow.GetSources(ctx, admin(1), req, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.QueryID, third.QueryID)
	assert.Equal(t, int64(5), third.TotalMatches)
}

func TestExportSources(t *testing.T) {
	runner := newFakeRunner("a", "b")
	flow := newTestSourceFlow(runner, &fakeHydration{}, nil)

	out, err := flow.ExportSources(context.Background(), member(3, 1), &dto.ListSourcesRequest{}, nil)
	require.NoError(t, err)
	// xlsx is a zip archive
	assert.True(t, bytes.HasPrefix(out, []byte("PK")))
}

func TestGetSourcesTimeout(t *testing.T) {
	runner := newFakeRunner("a")
	runner.countErr = repository.ErrStatementTimeout
	flow := newTestSourceFlow(runner, &fakeHydration{}, nil)

	_, err := flow.GetSources(context.Background(), member(3, 1), &dto.ListSourcesRequest{}, nil)
	assert.True(t, IsQueryTimedOut(err))
}

func TestGetCandidates(t *testing.T) {
	runner := newFakeRunner("a", "b")
	lookups := &fakeHydration{filters: []repository.CandidateFilterRow{{ObjID: "b", FilterID: 4, FilterName: "bright", GroupID: 1}}}
	flow := newTestCandidateFlow(runner, lookups)

	req := &dto.ListCandidatesRequest{FilterIDs: "4", SavedStatus: SavedStatusNotSavedToAnyAccessible}
	req.StartDate = "2024-01-01"
	req.EndDate = "2024-01-31"

	resp, err := flow.GetCandidates(context.Background(), member(3, 1), req, nil)
	require.NoError(t, err)
	require.Len(t, resp.Candidates, 2)
	assert.Nil(t, resp.Candidates[0].Filters)
	require.Len(t, resp.Candidates[1].Filters, 1)
	assert.Equal(t, "bright", resp.Candidates[1].Filters[0].FilterName)

	sql := runner.idStmts[0].SQL
	assert.Contains(t, sql, "JOIN candidates AS candidates ON candidates.obj_id = objs.id")
	assert.Contains(t, sql, "candidates.passed_at >= ?")
	assert.Contains(t, sql, "candidates.passed_at <= ?")
	assert.NotContains(t, sql, "phot_stats")
	assert.Contains(t, sql, "NOT (EXISTS (SELECT 1 FROM sources sv")
	assert.Contains(t, sql, "ORDER BY candidates.passed_at DESC, objs.id ASC")
}

func TestGetCandidatesAnnotationSort(t *testing.T) {
	runner := newFakeRunner("a")
	flow := newTestCandidateFlow(runner, &fakeHydration{})

	req := &dto.ListCandidatesRequest{SortByAnnotationOrigin: "kowalski", SortByAnnotationKey: "acai_h", SortByAnnotationOrder: "asc"}
	_, err := flow.GetCandidates(context.Background(), member(3, 1), req, nil)
	require.NoError(t, err)
	assert.Contains(t, runner.idStmts[0].SQL, "sort_ann.data -> ? ASC NULLS LAST")

	_, err = flow.GetCandidates(context.Background(), member(3, 1), &dto.ListCandidatesRequest{SortByAnnotationKey: "acai_h"}, nil)
	assert.True(t, IsValidation(err))

	_, err = flow.GetCandidates(context.Background(), member(3, 1), &dto.ListCandidatesRequest{SavedStatus: "sometimes"}, nil)
	assert.True(t, IsValidation(err))
}

func TestSavedStatusPredicate(t *testing.T) {
	principal := member(3, 1, 2)
	selected := []int64{2}

	tests := []struct {
		status   string
		empty    bool
		prefix   string
		contains string
	}{
		{status: SavedStatusAll, empty: true},
		{status: SavedStatusSavedToAnySelected, prefix: "EXISTS", contains: "sv.group_id = ANY(?)"},
		{status: SavedStatusSavedToAnyAccessible, prefix: "EXISTS"},
		{status: SavedStatusSavedToAllSelected, prefix: "(SELECT COUNT(DISTINCT sv.group_id)"},
		{status: SavedStatusNotSavedToAnySelected, prefix: "NOT (EXISTS"},
		{status: SavedStatusNotSavedToAnyAccessible, prefix: "NOT (EXISTS"},
		{status: SavedStatusNotSavedToAllSelected, prefix: "NOT ((SELECT COUNT(DISTINCT"},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			e, err := savedStatusPredicate(tt.status, selected, principal)
			require.NoError(t, err)
			if tt.empty {
				assert.True(t, e.IsZero())
				return
			}
			assert.True(t, strings.HasPrefix(e.SQL, tt.prefix), e.SQL)
			if tt.contains != "" {
				assert.Contains(t, e.SQL, tt.contains)
			}
		})
	}

	e, err := savedStatusPredicate(SavedStatusSavedToAllSelected, []int64{1, 2}, principal)
	require.NoError(t, err)
	assert.Equal(t, []any{pq.Int64Array{1, 2}, 2}, e.Args)

	// admins with no explicit selection match saves to any group
	e, err = savedStatusPredicate(SavedStatusSavedToAnyAccessible, nil, admin(1))
	require.NoError(t, err)
	assert.NotContains(t, e.SQL, "ANY(?)")
}
