package businessflow

import (
	"strings"

	"github.com/skyportal/source-query/query"
	"github.com/skyportal/source-query/utils"
)

// Source sort keys
const (
	SortByID             = "id"
	SortByAlias          = "alias"
	SortByOrigin         = "origin"
	SortByRA             = "ra"
	SortByDec            = "dec"
	SortByRedshift       = "redshift"
	SortBySavedAt        = "saved_at"
	SortByClassification = "classification"
	SortByGCNStatus      = "gcn_status"
	SortByFavorites      = "favorites"
)

// columns ordered directly on objs; nullable ones always sort NULLS LAST
var objSortColumns = map[string]struct {
	column   string
	nullable bool
}{
	SortByID:       {"objs.id", false},
	SortByAlias:    {"objs.alias", true},
	SortByOrigin:   {"objs.origin", true},
	SortByRA:       {"objs.ra", false},
	SortByDec:      {"objs.dec", false},
	SortByRedshift: {"objs.redshift", true},
}

// ordering is a resolved ORDER BY together with the joins it needs. It is resolved before any
// SQL runs and applied once filtering is complete.
type ordering struct {
	joins []query.Join
	terms []query.OrderTerm
}

func (o ordering) apply(sel *query.Select) {
	for _, j := range o.joins {
		sel.AddJoin(j)
	}
	sel.AddOrder(o.terms...)
}

// tieBreak appends the primary key so every page boundary is repeatable
func (o *ordering) tieBreak() {
	o.terms = append(o.terms, query.OrderTerm{Expr: query.Raw("objs.id"), Dir: query.Asc})
}

// sortDirection applies the default direction: descending for the implicit default key,
// ascending whenever a key was named
func sortDirection(opts PageOptions) query.Direction {
	if opts.SortOrderSet {
		return opts.SortOrder
	}
	if opts.SortBy == "" {
		return query.Desc
	}
	return query.Asc
}

// resolveSourceOrdering maps sortBy/sortOrder onto the source search
func resolveSourceOrdering(opts PageOptions, localization *LocalizationSearch, scope filterScope) (ordering, error) {
	key := strings.ToLower(opts.SortBy)
	if key == "" {
		key = SortBySavedAt
		if localization != nil {
			key = SortByGCNStatus
		}
	}
	dir := sortDirection(opts)

	var o ordering
	if col, ok := objSortColumns[key]; ok {
		term := query.OrderTerm{Expr: query.Raw(col.column), Dir: dir}
		if col.nullable {
			term.Nulls = query.NullsLast
		}
		o.terms = append(o.terms, term)
		if key != SortByID {
			o.tieBreak()
		}
		return o, nil
	}

	switch key {
	case SortBySavedAt:
		o.terms = append(o.terms, query.OrderTerm{Expr: query.Raw("sources.saved_at"), Dir: dir})
	case SortByClassification:
		o.orderByClassification(dir, scope)
	case SortByGCNStatus:
		if localization == nil {
			return ordering{}, newValidationError("sortBy", "gcn_status requires localizationDateobs")
		}
		o.orderByGCNStatus(dir, localization)
	case SortByFavorites:
		o.orderByFavorites(dir, scope.principal.UserID)
	default:
		return ordering{}, newValidationError("sortBy", "unknown sort key %q", opts.SortBy)
	}
	o.tieBreak()
	return o, nil
}

// orderByClassification sorts on the greatest visible classification, unclassified last
func (o *ordering) orderByClassification(dir query.Direction, scope filterScope) {
	where := query.And(scope.visibleThrough("group_classifications", "classification_id", "c.id"))
	sub := "SELECT c.obj_id, MAX(c.classification) AS classification FROM classifications c"
	if !where.IsZero() {
		sub += " WHERE " + where.SQL
	}
	sub += " GROUP BY c.obj_id"
	o.joins = append(o.joins, query.Join{
		Kind:   query.LeftJoin,
		Source: query.Paren(query.Expr{SQL: sub, Args: where.Args}),
		Alias:  "cls",
		On:     query.Raw("cls.obj_id = objs.id"),
	})
	o.terms = append(o.terms, query.OrderTerm{
		Expr: query.Raw("cls.classification"), Dir: dir, Nulls: query.NullsLast,
	})
}

// orderByGCNStatus puts objects without a verdict for the event first when ascending and last
// when descending, then ranks confirmed, undecided and rejected verdicts in that order.
func (o *ordering) orderByGCNStatus(dir query.Direction, localization *LocalizationSearch) {
	o.joins = append(o.joins, query.Join{
		Kind: query.LeftJoin,
		Source: query.Raw(
			"(SELECT obj_id, confirmed FROM sourcesconfirmedingcns WHERE dateobs = ?)",
			localization.Dateobs.UTC(),
		),
		Alias: "scg",
		On:    query.Raw("scg.obj_id = objs.id"),
	})
	o.terms = append(o.terms,
		query.OrderTerm{Expr: query.Raw("(scg.obj_id IS NULL)"), Dir: dir.Reverse()},
		query.OrderTerm{
			Expr: query.Raw("CASE WHEN scg.confirmed = true THEN 1 WHEN scg.confirmed IS NULL THEN 2 ELSE 3 END"),
			Dir:  query.Asc,
		},
	)
}

// orderByFavorites sorts on list membership. The literal direction is the reverse of the
// requested one, so ascending lists favorites first.
func (o *ordering) orderByFavorites(dir query.Direction, userID uint) {
	o.joins = append(o.joins, query.Join{
		Kind: query.LeftJoin,
		Source: query.Raw(
			"(SELECT obj_id FROM listings WHERE user_id = ? AND list_name = ? GROUP BY obj_id)",
			userID, utils.FavoritesListName,
		),
		Alias: "fav",
		On:    query.Raw("fav.obj_id = objs.id"),
	})
	o.terms = append(o.terms, query.OrderTerm{Expr: query.Raw("(fav.obj_id IS NOT NULL)"), Dir: dir.Reverse()})
}

// CandidateSort selects the candidate ordering: latest filter pass, or an annotation value
type CandidateSort struct {
	AnnotationOrigin string
	AnnotationKey    string
	Order            query.Direction
}

// resolveCandidateOrdering sorts by an annotation value when origin and key are given,
// otherwise by the most recent filter pass
func resolveCandidateOrdering(cs CandidateSort, scope filterScope) ordering {
	var o ordering
	if cs.AnnotationOrigin != "" && cs.AnnotationKey != "" {
		conds := query.And(
			query.Raw("a.origin = ?", cs.AnnotationOrigin),
			scope.visibleThrough("group_annotations", "annotation_id", "a.id"),
		)
		o.joins = append(o.joins, query.Join{
			Kind:   query.LeftJoin,
			Source: query.Paren(query.Expr{SQL: "SELECT a.obj_id, a.data FROM annotations a WHERE " + conds.SQL, Args: conds.Args}),
			Alias:  "sort_ann",
			On:     query.Raw("sort_ann.obj_id = objs.id"),
		})
		o.terms = append(o.terms, query.OrderTerm{
			Expr: query.Raw("sort_ann.data -> ?", cs.AnnotationKey), Dir: cs.Order, Nulls: query.NullsLast,
		})
	}
	o.terms = append(o.terms, query.OrderTerm{Expr: query.Raw("candidates.passed_at"), Dir: query.Desc})
	o.tieBreak()
	return o
}
