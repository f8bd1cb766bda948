package businessflow

import (
	"math"
	"strings"

	"github.com/lib/pq"
	"github.com/skyportal/source-query/query"
	"github.com/skyportal/source-query/utils"
)

// filterScope carries the requester-dependent inputs of predicate construction
type filterScope struct {
	principal Principal
	// groupIDs restricts group-owned rows such as labels; nil means every group
	groupIDs []int64
}

// visibleThrough restricts a row of a group-shared table to the principal's groups.
// Admins see every row, so nothing is added for them.
func (s filterScope) visibleThrough(joinTable, fkColumn, rowID string) query.Expr {
	if s.principal.IsAdmin {
		return query.Expr{}
	}
	return query.Exists(query.Raw(
		"SELECT 1 FROM "+joinTable+" vg WHERE vg."+fkColumn+" = "+rowID+" AND vg.group_id = ANY(?)",
		s.principal.groupArray(),
	))
}

// objectPredicates turns the shared object filters into WHERE items on objs
func objectPredicates(f *ObjectFilters, scope filterScope) []query.Expr {
	var preds []query.Expr
	add := func(e query.Expr) {
		if !e.IsZero() {
			preds = append(preds, e)
		}
	}

	add(sourceIDPredicate(f))
	if len(f.RejectedSourceIDs) > 0 {
		add(query.Raw("NOT (objs.id = ANY(?))", pq.StringArray(f.RejectedSourceIDs)))
	}
	if f.Alias != "" {
		add(query.Raw("array_to_string(objs.alias, ',') ILIKE ?", query.Contains(f.Alias)))
	}
	if f.Origin != "" {
		add(query.Raw("objs.origin ILIKE ?", query.Contains(f.Origin)))
	}
	if f.HasTNSName {
		add(query.Raw("objs.tns_name IS NOT NULL"))
	}
	if f.HasNoTNSName {
		add(query.Raw("objs.tns_name IS NULL"))
	}
	if f.Cone != nil {
		add(conePredicate(*f.Cone))
	}
	if f.CreatedOrModifiedAfter != nil {
		add(query.Raw("objs.modified > ?", f.CreatedOrModifiedAfter.UTC()))
	}
	if f.MinRedshift != nil {
		add(query.Raw("objs.redshift >= ?", *f.MinRedshift))
	}
	if f.MaxRedshift != nil {
		add(query.Raw("objs.redshift <= ?", *f.MaxRedshift))
	}

	add(photStatsPredicate(f))
	add(spectrumPredicate(f, scope))
	add(followupPredicate(f, scope))
	add(labelPredicate(f, scope))
	add(listPredicate(f, scope))
	add(commentsPredicate(f, scope))
	preds = append(preds, classificationPredicates(f, scope)...)
	preds = append(preds, annotationPredicates(f, scope)...)

	return preds
}

// sourceIDPredicate matches the ID substring, and the stripped TNS name for designations
func sourceIDPredicate(f *ObjectFilters) query.Expr {
	if f.SourceID == "" {
		return query.Expr{}
	}
	byID := query.Raw("objs.id ILIKE ?", query.Contains(f.SourceID))
	if f.TNSName == "" {
		return byID
	}
	return query.Or(byID, query.Raw("objs.tns_name ILIKE ?", query.Contains(f.TNSName)))
}

// conePredicate keeps objects whose unit vector lies within the cone:
// dot(u(obj), u(center)) >= cos(radius)
func conePredicate(c ConeSearch) query.Expr {
	v := utils.UnitVector(c.RA, c.Dec)
	return query.Raw(
		"(cos(radians(objs.dec)) * cos(radians(objs.ra)) * ? + "+
			"cos(radians(objs.dec)) * sin(radians(objs.ra)) * ? + "+
			"sin(radians(objs.dec)) * ?) >= ?",
		v[0], v[1], v[2], math.Cos(c.RadiusDeg*math.Pi/180),
	)
}

// photStatsPredicate folds every detection statistics bound into a single EXISTS
func photStatsPredicate(f *ObjectFilters) query.Expr {
	if !f.usesPhotStats() {
		return query.Expr{}
	}
	conds := []query.Expr{query.Raw("ps.obj_id = objs.id")}
	// the detection span overlaps [startDate, endDate]
	if f.StartDate != nil {
		conds = append(conds, query.Raw("ps.last_detected_mjd >= ?", utils.TimeToMJD(*f.StartDate)))
	}
	if f.EndDate != nil {
		conds = append(conds, query.Raw("ps.first_detected_mjd <= ?", utils.TimeToMJD(*f.EndDate)))
	}
	if f.FirstDetectionAfter != nil {
		conds = append(conds, query.Raw("ps.first_detected_mjd >= ?", utils.TimeToMJD(*f.FirstDetectionAfter)))
	}
	if f.LastDetectionBefore != nil {
		conds = append(conds, query.Raw("ps.last_detected_mjd <= ?", utils.TimeToMJD(*f.LastDetectionBefore)))
	}
	if f.NumberDetections != nil {
		conds = append(conds, query.Raw("ps.num_det_global >= ?", *f.NumberDetections))
	}
	// magnitudes: smaller is brighter, bounds are applied literally
	if f.MinPeakMagnitude != nil {
		conds = append(conds, query.Raw("ps.peak_mag_global >= ?", *f.MinPeakMagnitude))
	}
	if f.MaxPeakMagnitude != nil {
		conds = append(conds, query.Raw("ps.peak_mag_global <= ?", *f.MaxPeakMagnitude))
	}
	if f.MinLatestMagnitude != nil {
		conds = append(conds, query.Raw("ps.last_detected_mag >= ?", *f.MinLatestMagnitude))
	}
	if f.MaxLatestMagnitude != nil {
		conds = append(conds, query.Raw("ps.last_detected_mag <= ?", *f.MaxLatestMagnitude))
	}
	where := query.And(conds...)
	return query.Exists(query.Expr{SQL: "SELECT 1 FROM phot_stats ps WHERE " + where.SQL, Args: where.Args})
}

func spectrumPredicate(f *ObjectFilters, scope filterScope) query.Expr {
	wantsSpectrum := f.HasSpectrum || f.HasSpectrumAfter != nil || f.HasSpectrumBefore != nil
	if !wantsSpectrum && !f.HasNoSpectrum {
		return query.Expr{}
	}
	conds := []query.Expr{
		query.Raw("sp.obj_id = objs.id"),
		scope.visibleThrough("group_spectra", "spectrum_id", "sp.id"),
	}
	if f.HasSpectrumAfter != nil {
		conds = append(conds, query.Raw("sp.observed_at >= ?", f.HasSpectrumAfter.UTC()))
	}
	if f.HasSpectrumBefore != nil {
		conds = append(conds, query.Raw("sp.observed_at <= ?", f.HasSpectrumBefore.UTC()))
	}
	sub := subSelect("spectra sp", conds)
	if f.HasNoSpectrum {
		return query.NotExists(sub)
	}
	return query.Exists(sub)
}

func followupPredicate(f *ObjectFilters, scope filterScope) query.Expr {
	if !f.HasFollowupRequest && f.FollowupRequestStatus == "" {
		return query.Expr{}
	}
	conds := []query.Expr{query.Raw("fr.obj_id = objs.id")}
	if f.FollowupRequestStatus != "" {
		conds = append(conds, query.Raw("fr.status ILIKE ?", query.Contains(f.FollowupRequestStatus)))
	}
	if !scope.principal.IsAdmin {
		conds = append(conds, query.Raw(
			"fr.allocation_id IN (SELECT al.id FROM allocations al WHERE al.group_id = ANY(?))",
			scope.principal.groupArray(),
		))
	}
	return query.Exists(subSelect("followuprequests fr", conds))
}

// labelPredicate scopes labels to the searched groups, and to the requester's own labels
// when currentUserLabeller is set
func labelPredicate(f *ObjectFilters, scope filterScope) query.Expr {
	if !f.HasBeenLabelled && !f.HasNotBeenLabelled {
		return query.Expr{}
	}
	conds := []query.Expr{query.Raw("sl.obj_id = objs.id")}
	if scope.groupIDs != nil {
		conds = append(conds, query.Raw("sl.group_id = ANY(?)", pq.Int64Array(scope.groupIDs)))
	}
	if f.CurrentUserLabeller {
		conds = append(conds, query.Raw("sl.labeller_id = ?", scope.principal.UserID))
	}
	sub := subSelect("source_labels sl", conds)
	if f.HasNotBeenLabelled {
		return query.NotExists(sub)
	}
	return query.Exists(sub)
}

func listPredicate(f *ObjectFilters, scope filterScope) query.Expr {
	if f.ListName == "" {
		return query.Expr{}
	}
	return query.Exists(query.Raw(
		"SELECT 1 FROM listings li WHERE li.obj_id = objs.id AND li.user_id = ? AND li.list_name = ?",
		scope.principal.UserID, f.ListName,
	))
}

// commentsPredicate requires a visible comment matching any of the text fragments
func commentsPredicate(f *ObjectFilters, scope filterScope) query.Expr {
	if !f.usesComments() {
		return query.Expr{}
	}
	conds := []query.Expr{
		query.Raw("cm.obj_id = objs.id"),
		scope.visibleThrough("group_comments", "comment_id", "cm.id"),
	}
	var texts []query.Expr
	for _, text := range f.CommentsFilter {
		texts = append(texts, query.Raw("cm.text ILIKE ?", query.Contains(text)))
	}
	conds = append(conds, query.Or(texts...))
	if f.CommentsFilterAuthor != "" {
		conds = append(conds, query.Raw(
			"cm.author_id IN (SELECT u.id FROM users u WHERE u.username ILIKE ?)",
			query.Contains(f.CommentsFilterAuthor),
		))
	}
	if f.CommentsFilterBefore != nil {
		conds = append(conds, query.Raw("cm.created_at <= ?", f.CommentsFilterBefore.UTC()))
	}
	if f.CommentsFilterAfter != nil {
		conds = append(conds, query.Raw("cm.created_at >= ?", f.CommentsFilterAfter.UTC()))
	}
	return query.Exists(subSelect("comments cm", conds))
}

// subSelect renders SELECT 1 FROM from WHERE conds
func subSelect(from string, conds []query.Expr) query.Expr {
	where := query.And(conds...)
	var sb strings.Builder
	sb.WriteString("SELECT 1 FROM ")
	sb.WriteString(from)
	if !where.IsZero() {
		sb.WriteString(" WHERE ")
		sb.WriteString(where.SQL)
	}
	return query.Expr{SQL: sb.String(), Args: where.Args}
}
