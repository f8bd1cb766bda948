package query

import (
	"strings"
)

// JoinKind is the SQL join operator.
type JoinKind string

const (
	InnerJoin JoinKind = "JOIN"
	LeftJoin  JoinKind = "LEFT OUTER JOIN"
)

// Join is a FROM-clause join. Source is a table name or a parenthesized sub-select.
type Join struct {
	Kind   JoinKind
	Source Expr
	Alias  string
	On     Expr
}

// Direction is an ORDER BY direction.
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

// Reverse flips the direction.
func (d Direction) Reverse() Direction {
	if d == Desc {
		return Asc
	}
	return Desc
}

// ParseDirection maps "asc"/"desc" (any case) to a Direction. Anything else is reported as not ok.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc":
		return Asc, true
	case "desc":
		return Desc, true
	}
	return Asc, false
}

// Nulls controls NULL placement in an ORDER BY term.
type Nulls int

const (
	NullsDefault Nulls = iota
	NullsFirst
	NullsLast
)

// OrderTerm is a single ORDER BY element.
type OrderTerm struct {
	Expr  Expr
	Dir   Direction
	Nulls Nulls
}

// CTE is a named WITH item.
type CTE struct {
	Name  string
	Query Expr
}

// Select is the statement IR. Builders append to it; Build renders it.
type Select struct {
	With       []CTE
	Distinct   bool
	DistinctOn []Expr
	Columns    []Expr
	From       Expr
	Joins      []Join
	Where      []Expr
	GroupBy    []Expr
	Having     []Expr
	OrderBy    []OrderTerm
	Limit      int
	Offset     int
}

// AddWhere appends the non-empty predicates; all WHERE items are ANDed.
func (s *Select) AddWhere(exprs ...Expr) {
	for _, e := range exprs {
		if !e.IsZero() {
			s.Where = append(s.Where, e)
		}
	}
}

// AddJoin appends j unless a join with the same alias is already present.
func (s *Select) AddJoin(j Join) {
	if s.HasJoin(j.Alias) {
		return
	}
	s.Joins = append(s.Joins, j)
}

// HasJoin reports whether a join with alias exists.
func (s *Select) HasJoin(alias string) bool {
	for _, j := range s.Joins {
		if j.Alias == alias {
			return true
		}
	}
	return false
}

// AddCTE appends a WITH item unless one with the same name exists.
func (s *Select) AddCTE(name string, q Expr) {
	for _, c := range s.With {
		if c.Name == name {
			return
		}
	}
	s.With = append(s.With, CTE{Name: name, Query: q})
}

// AddOrder appends ORDER BY terms.
func (s *Select) AddOrder(terms ...OrderTerm) {
	s.OrderBy = append(s.OrderBy, terms...)
}

// Clone returns a copy whose slices can be modified independently.
func (s Select) Clone() Select {
	c := s
	c.With = append([]CTE(nil), s.With...)
	c.DistinctOn = append([]Expr(nil), s.DistinctOn...)
	c.Columns = append([]Expr(nil), s.Columns...)
	c.Joins = append([]Join(nil), s.Joins...)
	c.Where = append([]Expr(nil), s.Where...)
	c.GroupBy = append([]Expr(nil), s.GroupBy...)
	c.Having = append([]Expr(nil), s.Having...)
	c.OrderBy = append([]OrderTerm(nil), s.OrderBy...)
	return c
}

// Build renders the statement with `?` placeholders. Args follow the textual order of the SQL.
func (s Select) Build() Expr {
	var sb strings.Builder
	var args []any
	write := func(e Expr) {
		sb.WriteString(e.SQL)
		args = append(args, e.Args...)
	}

	if len(s.With) > 0 {
		sb.WriteString("WITH ")
		for i, c := range s.With {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(c.Name)
			sb.WriteString(" AS (")
			write(c.Query)
			sb.WriteString(")")
		}
		sb.WriteString(" ")
	}

	sb.WriteString("SELECT ")
	if len(s.DistinctOn) > 0 {
		sb.WriteString("DISTINCT ON (")
		write(Concat(", ", s.DistinctOn...))
		sb.WriteString(") ")
	} else if s.Distinct {
		sb.WriteString("DISTINCT ")
	}
	if len(s.Columns) == 0 {
		sb.WriteString("*")
	} else {
		write(Concat(", ", s.Columns...))
	}

	if !s.From.IsZero() {
		sb.WriteString(" FROM ")
		write(s.From)
	}

	for _, j := range s.Joins {
		sb.WriteString(" ")
		sb.WriteString(string(j.Kind))
		sb.WriteString(" ")
		write(j.Source)
		if j.Alias != "" {
			sb.WriteString(" AS ")
			sb.WriteString(j.Alias)
		}
		if !j.On.IsZero() {
			sb.WriteString(" ON ")
			write(j.On)
		}
	}

	if len(s.Where) > 0 {
		sb.WriteString(" WHERE ")
		if len(s.Where) == 1 {
			write(s.Where[0])
		} else {
			write(And(s.Where...))
		}
	}

	if len(s.GroupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		write(Concat(", ", s.GroupBy...))
	}

	if len(s.Having) > 0 {
		sb.WriteString(" HAVING ")
		write(And(s.Having...))
	}

	if len(s.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		write(OrderClause(s.OrderBy))
	}

	if s.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, s.Limit)
	}
	if s.Offset > 0 {
		sb.WriteString(" OFFSET ?")
		args = append(args, s.Offset)
	}

	return Expr{SQL: sb.String(), Args: args}
}

// OrderClause renders terms as a comma separated ORDER BY list without the keyword.
func OrderClause(terms []OrderTerm) Expr {
	parts := make([]Expr, 0, len(terms))
	for _, t := range terms {
		sql := t.Expr.SQL + " " + t.Dir.String()
		switch t.Nulls {
		case NullsFirst:
			sql += " NULLS FIRST"
		case NullsLast:
			sql += " NULLS LAST"
		}
		parts = append(parts, Expr{SQL: sql, Args: t.Expr.Args})
	}
	return Concat(", ", parts...)
}
