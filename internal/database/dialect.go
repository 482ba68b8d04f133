package database

import (
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
)

// dialect hides the differences between the SQLite and Postgres stores.
// Queries are written with "?" placeholders and id lists are always bound
// as a single parameter.
type dialect struct {
	name string
}

var (
	sqliteDialect   = dialect{name: "sqlite3"}
	postgresDialect = dialect{name: "pgx"}
)

func dialectFor(driverName string) (dialect, bool) {
	switch driverName {
	case sqliteDialect.name:
		return sqliteDialect, true
	case postgresDialect.name:
		return postgresDialect, true
	}
	return dialect{}, false
}

func (d dialect) isPostgres() bool {
	return d.name == postgresDialect.name
}

// rebind rewrites "?" placeholders to "$n" for Postgres.
func (d dialect) rebind(query string) string {
	if !d.isPostgres() {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// inList returns a predicate matching column against a list bound as one parameter.
func (d dialect) inList(column string) string {
	if d.isPostgres() {
		return column + " = ANY(?)"
	}
	return column + " IN (SELECT value FROM json_each(?))"
}

// listArg encodes ids for a placeholder produced by inList.
func (d dialect) listArg(ids []int64) (any, error) {
	if d.isPostgres() {
		return ids, nil
	}
	if ids == nil {
		ids = []int64{}
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

func (d dialect) explain(query string) string {
	if d.isPostgres() {
		return "EXPLAIN ANALYZE " + query
	}
	return "EXPLAIN QUERY PLAN " + query
}

// txOptions returns the isolation a repair transaction needs: reads and the
// following write must see one snapshot. SQLite transactions already are.
func (d dialect) txOptions() *sql.TxOptions {
	if d.isPostgres() {
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead}
	}
	return nil
}
