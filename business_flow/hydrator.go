package businessflow

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/skyportal/source-query/app/dto"
	"github.com/skyportal/source-query/app/services"
	"github.com/skyportal/source-query/models"
	"github.com/skyportal/source-query/repository"
	"github.com/skyportal/source-query/utils"
)

// hydrateRequest describes one page to hydrate
type hydrateRequest struct {
	ids     []string
	include IncludeOptions
	// groupIDs is the visibility scope of attachments; nil means every group
	groupIDs []int64
	filters  *ObjectFilters
	// passingFilters attaches the candidate filter passes restricted to these groups
	passingFilters bool
}

// hydrator loads the page's objects and the attachments requested by the include toggles.
// Lookups run one after the other, each only when its toggle is set.
type hydrator struct {
	objs      repository.SourceQueryRepository
	lookups   repository.HydrationRepository
	cosmology services.CosmologyService
}

func newHydrator(objs repository.SourceQueryRepository, lookups repository.HydrationRepository, cosmology services.CosmologyService) *hydrator {
	return &hydrator{objs: objs, lookups: lookups, cosmology: cosmology}
}

func (h *hydrator) hydrate(ctx context.Context, req hydrateRequest) ([]dto.SourceItem, error) {
	items := make([]dto.SourceItem, 0, len(req.ids))
	if len(req.ids) == 0 {
		return items, nil
	}

	objs, err := h.objs.ObjsByOrderedIDs(ctx, req.ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load objects: %w", err)
	}
	ids := make([]string, 0, len(objs))
	index := make(map[string]int, len(objs))
	for i, o := range objs {
		items = append(items, objItem(o))
		ids = append(ids, o.ID)
		index[o.ID] = i
	}

	inc := req.include
	steps := []struct {
		enabled bool
		run     func(context.Context, hydrateRequest, []string, []dto.SourceItem, map[string]int) error
	}{
		{inc.Groups, h.attachGroups},
		{req.passingFilters, h.attachPassingFilters},
		{inc.Classifications, h.attachClassifications},
		{inc.Annotations, h.attachAnnotations},
		{inc.Thumbnails, h.attachThumbnails},
		{inc.PhotometryExists || inc.SpectrumExists || inc.CommentExists, h.attachExistence},
		{inc.DetectionStats, h.attachPhotStats},
		{inc.Labellers, h.attachLabellers},
	}
	for _, s := range steps {
		if !s.enabled {
			continue
		}
		if err := s.run(ctx, req, ids, items, index); err != nil {
			return nil, err
		}
	}

	if inc.Hosts {
		if err := h.attachHosts(ctx, objs, items); err != nil {
			return nil, err
		}
	}
	if inc.Derived {
		for i, o := range objs {
			h.attachDerived(o, &items[i])
		}
	}
	return items, nil
}

func objItem(o *models.Obj) dto.SourceItem {
	alias := []string(o.Alias)
	if alias == nil {
		alias = []string{}
	}
	return dto.SourceItem{
		ID:            o.ID,
		RA:            o.RA,
		Dec:           o.Dec,
		Redshift:      o.Redshift,
		RedshiftError: o.RedshiftError,
		Alias:         alias,
		Origin:        o.Origin,
		TNSName:       o.TNSName,
		AltData:       o.AltData,
		CreatedAt:     o.CreatedAt,
		Modified:      o.Modified,
	}
}

func (h *hydrator) attachGroups(ctx context.Context, req hydrateRequest, ids []string, items []dto.SourceItem, index map[string]int) error {
	rows, err := h.lookups.SourceGroups(ctx, ids, req.groupIDs)
	if err != nil {
		return fmt.Errorf("failed to load source groups: %w", err)
	}
	for _, r := range rows {
		i, ok := index[r.ObjID]
		if !ok {
			continue
		}
		items[i].Groups = append(items[i].Groups, dto.SourceGroupItem{
			ID:              r.GroupID,
			Name:            r.GroupName,
			Nickname:        r.GroupNickname,
			Active:          r.Active,
			Requested:       r.Requested,
			SavedAt:         r.SavedAt,
			SavedByID:       r.SavedByID,
			SavedByUsername: r.SavedByUsername,
			UnsavedAt:       r.UnsavedAt,
		})
	}
	return nil
}

func (h *hydrator) attachPassingFilters(ctx context.Context, req hydrateRequest, ids []string, items []dto.SourceItem, index map[string]int) error {
	rows, err := h.lookups.CandidateFilters(ctx, ids, req.groupIDs)
	if err != nil {
		return fmt.Errorf("failed to load passing filters: %w", err)
	}
	for _, r := range rows {
		if i, ok := index[r.ObjID]; ok {
			items[i].Filters = append(items[i].Filters, dto.CandidateFilterItem{
				FilterID:   r.FilterID,
				FilterName: r.FilterName,
				GroupID:    r.GroupID,
				PassedAt:   r.PassedAt,
			})
		}
	}
	return nil
}

func (h *hydrator) attachClassifications(ctx context.Context, req hydrateRequest, ids []string, items []dto.SourceItem, index map[string]int) error {
	rows, err := h.lookups.Classifications(ctx, ids, req.groupIDs)
	if err != nil {
		return fmt.Errorf("failed to load classifications: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	classIDs := make([]uint, 0, len(rows))
	for _, r := range rows {
		classIDs = append(classIDs, r.ID)
	}
	groups, err := h.lookups.ClassificationGroups(ctx, classIDs)
	if err != nil {
		return fmt.Errorf("failed to load classification groups: %w", err)
	}
	votes, err := h.lookups.ClassificationVotes(ctx, classIDs)
	if err != nil {
		return fmt.Errorf("failed to load classification votes: %w", err)
	}
	votesByClass := make(map[uint][]dto.ClassificationVoteItem)
	for _, v := range votes {
		votesByClass[v.ClassificationID] = append(votesByClass[v.ClassificationID],
			dto.ClassificationVoteItem{VoterID: v.VoterID, Vote: v.Vote})
	}

	for _, r := range rows {
		i, ok := index[r.ObjID]
		if !ok {
			continue
		}
		groupIDs := groups[r.ID]
		if groupIDs == nil {
			groupIDs = []uint{}
		}
		classVotes := votesByClass[r.ID]
		if classVotes == nil {
			classVotes = []dto.ClassificationVoteItem{}
		}
		items[i].Classifications = append(items[i].Classifications, dto.ClassificationItem{
			ID:             r.ID,
			Taxonomy:       r.TaxonomyName,
			TaxonomyID:     r.TaxonomyID,
			Classification: r.Classification,
			Probability:    r.Probability,
			ML:             r.ML,
			AuthorName:     r.AuthorName,
			CreatedAt:      r.CreatedAt,
			GroupIDs:       groupIDs,
			Votes:          classVotes,
		})
	}
	return nil
}

func (h *hydrator) attachAnnotations(ctx context.Context, req hydrateRequest, ids []string, items []dto.SourceItem, index map[string]int) error {
	rows, err := h.lookups.Annotations(ctx, ids, req.groupIDs)
	if err != nil {
		return fmt.Errorf("failed to load annotations: %w", err)
	}
	for _, a := range rows {
		if i, ok := index[a.ObjID]; ok {
			items[i].Annotations = append(items[i].Annotations, dto.AnnotationItem{
				ID:        a.ID,
				Origin:    a.Origin,
				Data:      a.Data,
				CreatedAt: a.CreatedAt,
			})
		}
	}
	return nil
}

func (h *hydrator) attachThumbnails(ctx context.Context, _ hydrateRequest, ids []string, items []dto.SourceItem, index map[string]int) error {
	rows, err := h.lookups.Thumbnails(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load thumbnails: %w", err)
	}
	for _, t := range rows {
		if i, ok := index[t.ObjID]; ok {
			items[i].Thumbnails = append(items[i].Thumbnails, dto.ThumbnailItem{Type: t.Type, PublicURL: t.PublicURL})
		}
	}
	return nil
}

// attachExistence sets the photometry, spectrum and comment flags. A flag already decided by
// the search filters is set without a lookup.
func (h *hydrator) attachExistence(ctx context.Context, req hydrateRequest, ids []string, items []dto.SourceItem, _ map[string]int) error {
	known := knownExistence(req.filters)
	checks := []struct {
		enabled bool
		known   *bool
		lookup  func(context.Context, []string, []int64) (map[string]bool, error)
		set     func(*dto.SourceItem, *bool)
		what    string
	}{
		{req.include.PhotometryExists, known.photometry, h.lookups.PhotometryExists,
			func(it *dto.SourceItem, v *bool) { it.PhotometryExists = v }, "photometry"},
		{req.include.SpectrumExists, known.spectrum, h.lookups.SpectrumExists,
			func(it *dto.SourceItem, v *bool) { it.SpectrumExists = v }, "spectrum"},
		{req.include.CommentExists, known.comment, h.lookups.CommentExists,
			func(it *dto.SourceItem, v *bool) { it.CommentExists = v }, "comment"},
	}

	for _, c := range checks {
		if !c.enabled {
			continue
		}
		if c.known != nil {
			for i := range items {
				c.set(&items[i], utils.ToPtr(*c.known))
			}
			continue
		}
		found, err := c.lookup(ctx, ids, req.groupIDs)
		if err != nil {
			return fmt.Errorf("failed to check %s existence: %w", c.what, err)
		}
		for i := range items {
			c.set(&items[i], utils.ToPtr(found[items[i].ID]))
		}
	}
	return nil
}

type existence struct {
	photometry *bool
	spectrum   *bool
	comment    *bool
}

// knownExistence lists the flags the filters already proved for every matched object
func knownExistence(f *ObjectFilters) existence {
	var e existence
	if f == nil {
		return e
	}
	if f.NumberDetections != nil && *f.NumberDetections > 0 {
		e.photometry = utils.ToPtr(true)
	}
	switch {
	case f.HasNoSpectrum:
		e.spectrum = utils.ToPtr(false)
	case f.HasSpectrum || f.HasSpectrumAfter != nil || f.HasSpectrumBefore != nil:
		e.spectrum = utils.ToPtr(true)
	}
	if f.usesComments() {
		e.comment = utils.ToPtr(true)
	}
	return e
}

func (h *hydrator) attachPhotStats(ctx context.Context, _ hydrateRequest, ids []string, items []dto.SourceItem, index map[string]int) error {
	rows, err := h.lookups.PhotStats(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load detection statistics: %w", err)
	}
	for _, ps := range rows {
		if i, ok := index[ps.ObjID]; ok {
			items[i].PhotStats = &dto.PhotStatItem{
				NumObsGlobal:     ps.NumObsGlobal,
				NumDetGlobal:     ps.NumDetGlobal,
				FirstDetectedMJD: ps.FirstDetectedMJD,
				FirstDetectedMag: ps.FirstDetectedMag,
				LastDetectedMJD:  ps.LastDetectedMJD,
				LastDetectedMag:  ps.LastDetectedMag,
				PeakMagGlobal:    ps.PeakMagGlobal,
				PeakMJDGlobal:    ps.PeakMJDGlobal,
			}
		}
	}
	return nil
}

// attachLabellers lists each user once per object, whichever of their groups labelled it
func (h *hydrator) attachLabellers(ctx context.Context, req hydrateRequest, ids []string, items []dto.SourceItem, index map[string]int) error {
	rows, err := h.lookups.Labellers(ctx, ids, req.groupIDs)
	if err != nil {
		return fmt.Errorf("failed to load labellers: %w", err)
	}
	seen := make(map[string]map[uint]bool)
	for _, r := range rows {
		i, ok := index[r.ObjID]
		if !ok {
			continue
		}
		if seen[r.ObjID] == nil {
			seen[r.ObjID] = make(map[uint]bool)
		}
		if seen[r.ObjID][r.UserID] {
			continue
		}
		seen[r.ObjID][r.UserID] = true
		items[i].Labellers = append(items[i].Labellers, dto.LabellerItem{
			ID:        r.UserID,
			Username:  r.Username,
			FirstName: r.FirstName,
			LastName:  r.LastName,
		})
	}
	return nil
}

// attachHosts links host galaxies and their angular offset in arcseconds
func (h *hydrator) attachHosts(ctx context.Context, objs []*models.Obj, items []dto.SourceItem) error {
	var hostIDs []uint
	for _, o := range objs {
		if o.HostID != nil {
			hostIDs = append(hostIDs, *o.HostID)
		}
	}
	hostIDs = utils.Unique(hostIDs)
	if len(hostIDs) == 0 {
		return nil
	}
	galaxies, err := h.lookups.Galaxies(ctx, hostIDs)
	if err != nil {
		return fmt.Errorf("failed to load host galaxies: %w", err)
	}
	byID := make(map[uint]models.Galaxy, len(galaxies))
	for _, g := range galaxies {
		byID[g.ID] = g
	}
	for i, o := range objs {
		if o.HostID == nil {
			continue
		}
		g, ok := byID[*o.HostID]
		if !ok {
			continue
		}
		items[i].Host = &dto.HostItem{
			ID:          g.ID,
			Name:        g.Name,
			CatalogName: g.CatalogName,
			RA:          g.RA,
			Dec:         g.Dec,
			Redshift:    g.Redshift,
			Distmpc:     g.Distmpc,
		}
		items[i].HostOffset = utils.ToPtr(utils.AngularSeparationDeg(o.RA, o.Dec, g.RA, g.Dec) * 3600)
	}
	return nil
}

// attachDerived fills galactic coordinates and distances
func (h *hydrator) attachDerived(o *models.Obj, item *dto.SourceItem) {
	l, b := utils.GalacticCoordinates(o.RA, o.Dec)
	item.GalLon, item.GalLat = utils.ToPtr(l), utils.ToPtr(b)

	dl, ok := h.luminosityDistance(o)
	if !ok {
		return
	}
	item.LuminosityDistance = utils.ToPtr(dl)
	da := dl
	if o.Redshift != nil && *o.Redshift > 0 {
		zp1 := 1 + *o.Redshift
		da = dl / (zp1 * zp1)
	}
	item.AngularDiameterDistance = utils.ToPtr(da)
	item.DM = utils.ToPtr(5*math.Log10(dl*1e6) - 5)
}

// luminosityDistance in Mpc. Distances in altdata take precedence over redshift: a distance
// modulus "dm", a parallax in arcsec "parallax", or a distance in Mpc "dist".
func (h *hydrator) luminosityDistance(o *models.Obj) (float64, bool) {
	if dm, ok := o.AltData.Float("dm"); ok {
		return math.Pow(10, (dm+5)/5) / 1e6, true
	}
	if p, ok := o.AltData.Float("parallax"); ok && p > 0 {
		return 1 / p / 1e6, true
	}
	if d, ok := o.AltData.Float("dist"); ok && d > 0 {
		return d, true
	}
	if o.Redshift == nil || *o.Redshift <= 0 || h.cosmology == nil {
		return 0, false
	}
	return h.cosmology.LuminosityDistance(*o.Redshift), true
}

// featureCollection renders the page as points at (ra, dec)
func featureCollection(items []dto.SourceItem) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, it := range items {
		f := geojson.NewFeature(orb.Point{it.RA, it.Dec})
		f.Properties["name"] = it.ID
		fc.Append(f)
	}
	return fc
}
