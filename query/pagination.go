package query

// OrderedIDs wraps sel into the de-duplicated, ordered identifier query:
//
//	SELECT id FROM (
//	  SELECT DISTINCT ON (id) id, row_num FROM (
//	    SELECT <idColumn> AS id, ROW_NUMBER() OVER (ORDER BY <sel.OrderBy>) AS row_num FROM ...
//	  ) AS numbered ORDER BY id, row_num
//	) AS deduped ORDER BY row_num
//
// Each identifier keeps the position of its first row in the requested order, so fan-out
// joins never duplicate or reorder results. limit and offset apply to the outer query; zero
// disables them.
func OrderedIDs(sel Select, idColumn string, limit, offset int) Select {
	numbered := sel.Clone()
	numbered.With = nil
	numbered.Distinct = false
	numbered.DistinctOn = nil
	numbered.Limit, numbered.Offset = 0, 0

	window := Raw("ROW_NUMBER() OVER () AS row_num")
	if len(sel.OrderBy) > 0 {
		ob := OrderClause(sel.OrderBy)
		window = Expr{SQL: "ROW_NUMBER() OVER (ORDER BY " + ob.SQL + ") AS row_num", Args: ob.Args}
	}
	numbered.Columns = []Expr{Raw(idColumn + " AS id"), window}
	numbered.OrderBy = nil
	nb := numbered.Build()

	deduped := Select{
		DistinctOn: []Expr{Raw("numbered.id")},
		Columns:    []Expr{Raw("numbered.id"), Raw("numbered.row_num")},
		From:       Expr{SQL: "(" + nb.SQL + ") AS numbered", Args: nb.Args},
		OrderBy: []OrderTerm{
			{Expr: Raw("numbered.id"), Dir: Asc},
			{Expr: Raw("numbered.row_num"), Dir: Asc},
		},
	}

	dd := deduped.Build()
	return Select{
		With:    sel.With,
		Columns: []Expr{Raw("deduped.id")},
		From:    Expr{SQL: "(" + dd.SQL + ") AS deduped", Args: dd.Args},
		OrderBy: []OrderTerm{{Expr: Raw("deduped.row_num"), Dir: Asc}},
		Limit:   limit,
		Offset:  offset,
	}
}

// CountDistinct wraps sel into SELECT COUNT(*) over its distinct identifiers. Ordering is
// dropped since it cannot change the count.
func CountDistinct(sel Select, idColumn string) Select {
	matched := sel.Clone()
	matched.With = nil
	matched.Distinct = true
	matched.DistinctOn = nil
	matched.Columns = []Expr{Raw(idColumn)}
	matched.OrderBy = nil
	matched.Limit, matched.Offset = 0, 0

	m := matched.Build()
	return Select{
		With:    sel.With,
		Columns: []Expr{Raw("COUNT(*)")},
		From:    Expr{SQL: "(" + m.SQL + ") AS matched", Args: m.Args},
	}
}

// DistinctIDs selects the distinct identifiers of sel, capped at limit rows when limit > 0.
func DistinctIDs(sel Select, idColumn string, limit int) Select {
	ids := sel.Clone()
	ids.Distinct = true
	ids.DistinctOn = nil
	ids.Columns = []Expr{Raw(idColumn)}
	ids.OrderBy = nil
	ids.Offset = 0
	ids.Limit = limit
	return ids
}
