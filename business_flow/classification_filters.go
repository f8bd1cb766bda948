package businessflow

import (
	"github.com/lib/pq"
	"github.com/skyportal/source-query/query"
)

// classificationPredicates builds the classification filters. classified and unclassified
// override any taxonomy:classification pairs.
func classificationPredicates(f *ObjectFilters, scope filterScope) []query.Expr {
	visible := scope.visibleThrough("group_classifications", "classification_id", "c.id")

	switch {
	case f.Classified:
		return []query.Expr{query.Exists(subSelect("classifications c", []query.Expr{
			query.Raw("c.obj_id = objs.id"), visible,
		}))}
	case f.Unclassified:
		return []query.Expr{query.NotExists(subSelect("classifications c", []query.Expr{
			query.Raw("c.obj_id = objs.id"), visible,
		}))}
	}

	var preds []query.Expr
	if len(f.Classifications) > 0 {
		pairs := pairsMatch(f.Classifications)
		if f.ClassificationsSimul {
			// every pair must be present on the object
			where := query.And(pairs, visible)
			preds = append(preds, query.Expr{
				SQL: "objs.id IN (SELECT c.obj_id FROM classifications c " +
					"JOIN taxonomies t ON t.id = c.taxonomy_id WHERE " + where.SQL +
					" GROUP BY c.obj_id HAVING COUNT(DISTINCT concat(t.name, ':', c.classification)) = ?)",
				Args: append(where.Args, len(f.Classifications)),
			})
		} else {
			preds = append(preds, query.Exists(subSelect(
				"classifications c JOIN taxonomies t ON t.id = c.taxonomy_id",
				[]query.Expr{query.Raw("c.obj_id = objs.id"), pairs, visible},
			)))
		}
	}

	if len(f.Nonclassifications) > 0 {
		preds = append(preds, query.NotExists(subSelect(
			"classifications c JOIN taxonomies t ON t.id = c.taxonomy_id",
			[]query.Expr{query.Raw("c.obj_id = objs.id"), pairsMatch(f.Nonclassifications), visible},
		)))
	}
	return preds
}

// pairsMatch ORs the (taxonomy name, classification) pairs over aliases t and c
func pairsMatch(pairs []ClassificationPair) query.Expr {
	terms := make([]query.Expr, 0, len(pairs))
	for _, p := range pairs {
		terms = append(terms, query.Raw("t.name = ? AND c.classification = ?", p.Taxonomy, p.Value))
	}
	return query.Or(terms...)
}

// annotationPredicates emits one EXISTS per annotation filter, all sharing the origin and
// time bounds. Bounds without any key filter still require a matching annotation.
func annotationPredicates(f *ObjectFilters, scope filterScope) []query.Expr {
	if !f.usesAnnotations() {
		return nil
	}

	common := []query.Expr{
		query.Raw("a.obj_id = objs.id"),
		scope.visibleThrough("group_annotations", "annotation_id", "a.id"),
	}
	if len(f.AnnotationsFilterOrigin) > 0 {
		common = append(common, query.Raw("a.origin = ANY(?)", pq.StringArray(f.AnnotationsFilterOrigin)))
	}
	if f.AnnotationsFilterBefore != nil {
		common = append(common, query.Raw("a.created_at <= ?", f.AnnotationsFilterBefore.UTC()))
	}
	if f.AnnotationsFilterAfter != nil {
		common = append(common, query.Raw("a.created_at >= ?", f.AnnotationsFilterAfter.UTC()))
	}

	if len(f.Annotations) == 0 {
		return []query.Expr{query.Exists(subSelect("annotations a", common))}
	}

	preds := make([]query.Expr, 0, len(f.Annotations))
	for _, af := range f.Annotations {
		conds := append(append([]query.Expr(nil), common...), annotationKeyMatch(af))
		preds = append(preds, query.Exists(subSelect("annotations a", conds)))
	}
	return preds
}

// numericLiteral matches the strings Postgres accepts as a float
const numericLiteral = `'^[-+]?([0-9]+[.]?[0-9]*|[.][0-9]+)([eE][-+]?[0-9]+)?$'`

// annotationKeyMatch compares an annotation value cast to float, or checks the key is present.
// Values stored as JSON strings take part when they hold a numeric literal.
// Op comes from a fixed operator table and is never user text.
func annotationKeyMatch(af AnnotationFilter) query.Expr {
	if af.Op == "" {
		return query.Raw("a.data ->> ? IS NOT NULL", af.Key)
	}
	return query.Raw(
		"(CASE WHEN jsonb_typeof(a.data -> ?) = 'number' THEN (a.data ->> ?)::float"+
			" WHEN jsonb_typeof(a.data -> ?) = 'string' AND btrim(a.data ->> ?) ~ "+numericLiteral+
			" THEN btrim(a.data ->> ?)::float END) "+af.Op+" ?",
		af.Key, af.Key, af.Key, af.Key, af.Key, af.Value,
	)
}
