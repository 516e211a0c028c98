package query

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Dialect describes the small set of SQL differences the builder cares about
type Dialect int

const (
	// DialectPostgres uses $n placeholders and supports row locks and RETURNING
	DialectPostgres Dialect = iota
	// DialectSQLite uses ? placeholders and has no row-level locking
	DialectSQLite
)

// DialectForDriver maps a database/sql driver name to its dialect
func DialectForDriver(driver string) (Dialect, error) {
	switch driver {
	case "postgres", "pgx":
		return DialectPostgres, nil
	case "sqlite3", "sqlite":
		return DialectSQLite, nil
	default:
		return DialectPostgres, fmt.Errorf("unsupported driver: %s", driver)
	}
}

// String returns the dialect name
func (d Dialect) String() string {
	switch d {
	case DialectSQLite:
		return "sqlite"
	default:
		return "postgres"
	}
}

// Placeholder renders the n-th (1-based) bind parameter
func (d Dialect) Placeholder(n int) string {
	if d == DialectSQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// SupportsILike reports whether ILIKE is native
func (d Dialect) SupportsILike() bool {
	return d == DialectPostgres
}

// SupportsReturning reports whether InsertGetID can use RETURNING
func (d Dialect) SupportsReturning() bool {
	return d == DialectPostgres
}

// LockClause renders the row-lock suffix for a lock mode
func (d Dialect) LockClause(mode LockMode) string {
	if d == DialectSQLite {
		return ""
	}
	switch mode {
	case LockForUpdate:
		return " FOR UPDATE"
	case LockShared:
		return " FOR SHARE"
	default:
		return ""
	}
}

// LockMode is a row-level lock requested for a SELECT
type LockMode int

const (
	LockNone LockMode = iota
	LockForUpdate
	LockShared
)

// quoteIdentifier quotes a possibly qualified identifier ("posts.id", "posts.*")
func quoteIdentifier(name string) string {
	name = strings.TrimSpace(name)
	if name == "*" {
		return name
	}
	parts := strings.Split(name, ".")
	for i, part := range parts {
		if part == "*" {
			continue
		}
		parts[i] = pq.QuoteIdentifier(part)
	}
	return strings.Join(parts, ".")
}

// quoteColumn quotes a select column, honouring "expr AS alias"
func quoteColumn(col string) string {
	lower := strings.ToLower(col)
	if idx := strings.Index(lower, " as "); idx > 0 {
		return fmt.Sprintf("%s AS %s", quoteIdentifier(col[:idx]), quoteIdentifier(col[idx+4:]))
	}
	return quoteIdentifier(col)
}

// isValidIdentifier checks if a string is a valid SQL identifier
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for _, char := range s {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '_' || char == '.' || char == '*') {
			return false
		}
	}
	return true
}
