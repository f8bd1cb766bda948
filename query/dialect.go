package query

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Dialect renders placeholders for a specific backend.
type Dialect interface {
	Name() string
	Placeholder(n int) string
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

type questionDialect struct{}

func (questionDialect) Name() string { return "question" }

func (questionDialect) Placeholder(int) string { return "?" }

var (
	// Postgres numbers placeholders ($1, $2, ...).
	Postgres Dialect = postgresDialect{}
	// Question keeps `?` placeholders; gorm's Raw binds them itself.
	Question Dialect = questionDialect{}
)

// Compile renders e for dialect d and returns the SQL and its ordered arguments.
// Placeholders inside single-quoted literals are left alone.
func Compile(d Dialect, e Expr) (string, []any) {
	var sb strings.Builder
	sb.Grow(len(e.SQL) + 8)

	n := 0
	inQuote := false
	for i := 0; i < len(e.SQL); i++ {
		ch := e.SQL[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			sb.WriteByte(ch)
		case ch == '?' && !inQuote:
			n++
			sb.WriteString(d.Placeholder(n))
		default:
			sb.WriteByte(ch)
		}
	}

	args := make([]any, len(e.Args))
	copy(args, e.Args)
	return sb.String(), args
}

// Fingerprint hashes the compiled statement together with its arguments. Two requests that
// would produce the same ordered result set share a fingerprint.
func Fingerprint(e Expr) string {
	sql, args := Compile(Postgres, e)
	h := sha256.New()
	h.Write([]byte(sql))
	for _, a := range args {
		fmt.Fprintf(h, "\x00%T:%v", a, a)
	}
	return hex.EncodeToString(h.Sum(nil))
}
