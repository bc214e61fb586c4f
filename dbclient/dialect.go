package dbclient

import (
	"fmt"
	"strings"

	"github.com/gear6io/scylla-backfill/pkg/errors"
)

// Dialect builds the handful of statements the engine issues
type Dialect interface {
	Name() string
	QuoteIdent(name string) string
	CountQuery(table string) string
	// SelectQuery selects columns from table; limit <= 0 means no limit
	SelectQuery(table string, columns []string, limit int) string
	// UpsertQuery inserts a row, overwriting any row with the same primary key
	UpsertQuery(table string, columns, primaryKey []string) string
}

type baseDialect struct {
	name        string
	quote       string
	placeholder func(n int) string
}

func (d baseDialect) Name() string { return d.name }

func (d baseDialect) QuoteIdent(name string) string {
	return d.quote + strings.ReplaceAll(name, d.quote, d.quote+d.quote) + d.quote
}

func (d baseDialect) CountQuery(table string) string {
	return "SELECT COUNT(*) FROM " + table
}

func (d baseDialect) SelectQuery(table string, columns []string, limit int) string {
	q := fmt.Sprintf("SELECT %s FROM %s", d.columnList(columns), table)
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	return q
}

func (d baseDialect) columnList(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

func (d baseDialect) insertPrefix(verb, table string, columns []string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = d.placeholder(i + 1)
	}
	return fmt.Sprintf("%s INTO %s (%s) VALUES (%s)", verb, table, d.columnList(columns), strings.Join(placeholders, ", "))
}

func questionMark(int) string { return "?" }

// CQL inserts are upserts by primary key
type cqlDialect struct{ baseDialect }

func (d cqlDialect) UpsertQuery(table string, columns, _ []string) string {
	return d.insertPrefix("INSERT", table, columns)
}

type postgresDialect struct{ baseDialect }

func (d postgresDialect) UpsertQuery(table string, columns, primaryKey []string) string {
	q := d.insertPrefix("INSERT", table, columns)
	if len(primaryKey) == 0 {
		return q
	}
	q += fmt.Sprintf(" ON CONFLICT (%s)", d.columnList(primaryKey))

	var sets []string
	for _, c := range nonKeyColumns(columns, primaryKey) {
		ident := d.QuoteIdent(c)
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", ident, ident))
	}
	if len(sets) == 0 {
		return q + " DO NOTHING"
	}
	return q + " DO UPDATE SET " + strings.Join(sets, ", ")
}

type mysqlDialect struct{ baseDialect }

func (d mysqlDialect) UpsertQuery(table string, columns, primaryKey []string) string {
	rest := nonKeyColumns(columns, primaryKey)
	if len(primaryKey) > 0 && len(rest) == 0 {
		return d.insertPrefix("INSERT IGNORE", table, columns)
	}
	q := d.insertPrefix("INSERT", table, columns)
	if len(primaryKey) == 0 {
		return q
	}

	sets := make([]string, len(rest))
	for i, c := range rest {
		ident := d.QuoteIdent(c)
		sets[i] = fmt.Sprintf("%s = VALUES(%s)", ident, ident)
	}
	return q + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

// sqlite and duckdb share INSERT OR REPLACE
type replaceDialect struct{ baseDialect }

func (d replaceDialect) UpsertQuery(table string, columns, primaryKey []string) string {
	if len(primaryKey) == 0 {
		return d.insertPrefix("INSERT", table, columns)
	}
	return d.insertPrefix("INSERT OR REPLACE", table, columns)
}

func nonKeyColumns(columns, primaryKey []string) []string {
	keys := make(map[string]struct{}, len(primaryKey))
	for _, k := range primaryKey {
		keys[k] = struct{}{}
	}
	var rest []string
	for _, c := range columns {
		if _, ok := keys[c]; !ok {
			rest = append(rest, c)
		}
	}
	return rest
}

// DialectFor returns the dialect of a configured driver
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "cql":
		return cqlDialect{baseDialect{name: "cql", quote: `"`, placeholder: questionMark}}, nil
	case "postgres":
		return postgresDialect{baseDialect{name: "postgres", quote: `"`, placeholder: func(n int) string {
			return fmt.Sprintf("$%d", n)
		}}}, nil
	case "mysql":
		return mysqlDialect{baseDialect{name: "mysql", quote: "`", placeholder: questionMark}}, nil
	case "sqlite3":
		return replaceDialect{baseDialect{name: "sqlite3", quote: `"`, placeholder: questionMark}}, nil
	case "duckdb":
		return replaceDialect{baseDialect{name: "duckdb", quote: `"`, placeholder: questionMark}}, nil
	default:
		return nil, errors.New(ErrUnsupportedDriver, "no dialect for driver", nil).AddContext("driver", driver)
	}
}
