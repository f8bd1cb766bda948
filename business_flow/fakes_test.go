package businessflow

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/skyportal/source-query/models"
	"github.com/skyportal/source-query/query"
	"github.com/skyportal/source-query/repository"
)

// fakeRunner answers composed statements from a fixed ordered result. LIMIT and OFFSET are
// read back from the trailing arguments, the rest of the statement is only recorded.
type fakeRunner struct {
	mu       sync.Mutex
	ordered  []string
	objs     map[string]*models.Obj
	idsErr   error
	countErr error

	idStmts    []query.Expr
	countStmts []query.Expr
}

func newFakeRunner(ids ...string) *fakeRunner {
	r := &fakeRunner{ordered: ids, objs: make(map[string]*models.Obj)}
	for i, id := range ids {
		r.objs[id] = &models.Obj{ID: id, RA: float64(i), Dec: float64(i) / 2}
	}
	return r
}

func (r *fakeRunner) IDs(_ context.Context, stmt query.Expr) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idStmts = append(r.idStmts, stmt)
	if r.idsErr != nil {
		return nil, r.idsErr
	}

	limit, offset := len(r.ordered), 0
	n := len(stmt.Args)
	switch {
	case strings.HasSuffix(stmt.SQL, "LIMIT ? OFFSET ?"):
		limit, offset = stmt.Args[n-2].(int), stmt.Args[n-1].(int)
	case strings.HasSuffix(stmt.SQL, "LIMIT ?"):
		limit = stmt.Args[n-1].(int)
	}
	if offset > len(r.ordered) {
		return []string{}, nil
	}
	hi := min(offset+limit, len(r.ordered))
	return append([]string(nil), r.ordered[offset:hi]...), nil
}

func (r *fakeRunner) Count(_ context.Context, stmt query.Expr) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.countStmts = append(r.countStmts, stmt)
	if r.countErr != nil {
		return 0, r.countErr
	}
	return int64(len(r.ordered)), nil
}

func (r *fakeRunner) ObjsByOrderedIDs(_ context.Context, ids []string) ([]*models.Obj, error) {
	out := make([]*models.Obj, 0, len(ids))
	for _, id := range ids {
		if o, ok := r.objs[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *fakeRunner) idCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.idStmts)
}

// fakeLocalizations serves a fixed set of localizations and reports tiles per table
type fakeLocalizations struct {
	items      []*models.Localization
	tiles      map[string]bool
	tileChecks []string
}

func (f *fakeLocalizations) ByID(_ context.Context, id uint) (*models.Localization, error) {
	for _, l := range f.items {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, nil
}

func (f *fakeLocalizations) ByFilter(_ context.Context, filter models.LocalizationFilter, _ string, _, _ int) ([]*models.Localization, error) {
	var out []*models.Localization
	for _, l := range f.items {
		if filter.Dateobs != nil && !l.Dateobs.Equal(*filter.Dateobs) {
			continue
		}
		if filter.Name != nil && l.LocalizationName != *filter.Name {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeLocalizations) Save(_ context.Context, l *models.Localization) error {
	f.items = append(f.items, l)
	return nil
}

func (f *fakeLocalizations) SaveBatch(ctx context.Context, ls []*models.Localization) error {
	for _, l := range ls {
		_ = f.Save(ctx, l)
	}
	return nil
}

func (f *fakeLocalizations) Count(ctx context.Context, filter models.LocalizationFilter) (int64, error) {
	out, _ := f.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(out)), nil
}

func (f *fakeLocalizations) Exists(ctx context.Context, filter models.LocalizationFilter) (bool, error) {
	n, _ := f.Count(ctx, filter)
	return n > 0, nil
}

func (f *fakeLocalizations) Latest(ctx context.Context, filter models.LocalizationFilter) (*models.Localization, error) {
	out, _ := f.ByFilter(ctx, filter, "", 0, 0)
	var latest *models.Localization
	for _, l := range out {
		if latest == nil || l.CreatedAt.After(latest.CreatedAt) {
			latest = l
		}
	}
	return latest, nil
}

func (f *fakeLocalizations) HasTiles(_ context.Context, table string, _ uint) (bool, error) {
	f.tileChecks = append(f.tileChecks, table)
	return f.tiles[table], nil
}

type fakeCatalogs struct {
	entries map[string]*models.SpatialCatalogEntry
}

func (f *fakeCatalogs) EntryByName(_ context.Context, catalogName, entryName string) (*models.SpatialCatalogEntry, error) {
	return f.entries[catalogName+"/"+entryName], nil
}

// fakeHydration returns canned attachments and remembers the group scope it was asked for
type fakeHydration struct {
	groups          []repository.SourceGroupRow
	filters         []repository.CandidateFilterRow
	classifications []repository.ClassificationRow
	classGroups     map[uint][]uint
	votes           []models.ClassificationVote
	annotations     []models.Annotation
	thumbnails      []models.Thumbnail
	photometry      map[string]bool
	spectra         map[string]bool
	comments        map[string]bool
	photStats       []models.PhotStat
	labellers       []repository.LabellerRow
	galaxies        []models.Galaxy

	scopes      [][]int64
	existCalls  []string
	galaxyCalls [][]uint
}

func (f *fakeHydration) SourceGroups(_ context.Context, _ []string, groupIDs []int64) ([]repository.SourceGroupRow, error) {
	f.scopes = append(f.scopes, groupIDs)
	return f.groups, nil
}

func (f *fakeHydration) CandidateFilters(_ context.Context, _ []string, groupIDs []int64) ([]repository.CandidateFilterRow, error) {
	f.scopes = append(f.scopes, groupIDs)
	return f.filters, nil
}

func (f *fakeHydration) Classifications(_ context.Context, _ []string, groupIDs []int64) ([]repository.ClassificationRow, error) {
	f.scopes = append(f.scopes, groupIDs)
	return f.classifications, nil
}

func (f *fakeHydration) ClassificationGroups(_ context.Context, _ []uint) (map[uint][]uint, error) {
	return f.classGroups, nil
}

func (f *fakeHydration) ClassificationVotes(_ context.Context, _ []uint) ([]models.ClassificationVote, error) {
	return f.votes, nil
}

func (f *fakeHydration) Annotations(_ context.Context, _ []string, groupIDs []int64) ([]models.Annotation, error) {
	f.scopes = append(f.scopes, groupIDs)
	return f.annotations, nil
}

func (f *fakeHydration) Thumbnails(_ context.Context, _ []string) ([]models.Thumbnail, error) {
	return f.thumbnails, nil
}

func (f *fakeHydration) PhotometryExists(_ context.Context, _ []string, _ []int64) (map[string]bool, error) {
	f.existCalls = append(f.existCalls, "photometry")
	return f.photometry, nil
}

func (f *fakeHydration) SpectrumExists(_ context.Context, _ []string, _ []int64) (map[string]bool, error) {
	f.existCalls = append(f.existCalls, "spectrum")
	return f.spectra, nil
}

func (f *fakeHydration) CommentExists(_ context.Context, _ []string, _ []int64) (map[string]bool, error) {
	f.existCalls = append(f.existCalls, "comment")
	return f.comments, nil
}

func (f *fakeHydration) PhotStats(_ context.Context, _ []string) ([]models.PhotStat, error) {
	return f.photStats, nil
}

func (f *fakeHydration) Labellers(_ context.Context, _ []string, groupIDs []int64) ([]repository.LabellerRow, error) {
	f.scopes = append(f.scopes, groupIDs)
	return f.labellers, nil
}

func (f *fakeHydration) Galaxies(_ context.Context, ids []uint) ([]models.Galaxy, error) {
	f.galaxyCalls = append(f.galaxyCalls, ids)
	return f.galaxies, nil
}

// fixedCosmology returns a constant distance so derived values are easy to check
type fixedCosmology struct{ dl float64 }

func (c fixedCosmology) LuminosityDistance(z float64) float64 {
	if z <= 0 {
		return 0
	}
	return c.dl
}

func member(userID uint, groups ...int64) Principal {
	return Principal{UserID: userID, AccessibleGroupIDs: groups}
}

func admin(userID uint) Principal {
	return Principal{UserID: userID, IsAdmin: true}
}

func mustDate(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}
