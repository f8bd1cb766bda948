// Package query holds the typed SQL intermediate representation used to compose source and
// candidate searches, and the compiler that renders it into parametrized SQL.
package query

import (
	"strings"
)

// Expr is a SQL fragment written with `?` placeholders together with the values bound to them.
// User supplied values only ever travel in Args.
type Expr struct {
	SQL  string
	Args []any
}

// Raw builds an expression from a fragment and its bound values.
func Raw(sql string, args ...any) Expr {
	return Expr{SQL: sql, Args: args}
}

// IsZero reports whether the expression carries no SQL.
func (e Expr) IsZero() bool {
	return strings.TrimSpace(e.SQL) == ""
}

// And joins the non-empty expressions with AND, parenthesizing each operand.
func And(exprs ...Expr) Expr {
	return join(" AND ", exprs)
}

// Or joins the non-empty expressions with OR, parenthesizing each operand.
func Or(exprs ...Expr) Expr {
	return join(" OR ", exprs)
}

// Not negates e.
func Not(e Expr) Expr {
	if e.IsZero() {
		return e
	}
	return Expr{SQL: "NOT (" + e.SQL + ")", Args: e.Args}
}

// Exists wraps a sub-select in EXISTS (...).
func Exists(sub Expr) Expr {
	return Expr{SQL: "EXISTS (" + sub.SQL + ")", Args: sub.Args}
}

// NotExists wraps a sub-select in NOT EXISTS (...).
func NotExists(sub Expr) Expr {
	return Expr{SQL: "NOT EXISTS (" + sub.SQL + ")", Args: sub.Args}
}

// Paren wraps e in parentheses, used when a sub-select appears as a FROM item.
func Paren(e Expr) Expr {
	return Expr{SQL: "(" + e.SQL + ")", Args: e.Args}
}

// Concat appends expressions separated by sep without adding parentheses.
func Concat(sep string, exprs ...Expr) Expr {
	var parts []string
	var args []any
	for _, e := range exprs {
		if e.IsZero() {
			continue
		}
		parts = append(parts, e.SQL)
		args = append(args, e.Args...)
	}
	return Expr{SQL: strings.Join(parts, sep), Args: args}
}

func join(op string, exprs []Expr) Expr {
	var kept []Expr
	for _, e := range exprs {
		if !e.IsZero() {
			kept = append(kept, e)
		}
	}
	switch len(kept) {
	case 0:
		return Expr{}
	case 1:
		return kept[0]
	}

	var sb strings.Builder
	var args []any
	for i, e := range kept {
		if i > 0 {
			sb.WriteString(op)
		}
		sb.WriteString("(")
		sb.WriteString(e.SQL)
		sb.WriteString(")")
		args = append(args, e.Args...)
	}
	return Expr{SQL: sb.String(), Args: args}
}

// EscapeLike escapes the LIKE wildcards of s so it matches literally inside a pattern.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Contains returns the ILIKE pattern matching s anywhere in a column.
func Contains(s string) string {
	return "%" + EscapeLike(s) + "%"
}
