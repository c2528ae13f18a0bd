package projects

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// setBuilder assembles "UPDATE ... SET col = $n" statements from optional fields
type setBuilder struct {
	clauses []string
	args    []interface{}
}

func newSetBuilder() *setBuilder {
	return &setBuilder{}
}

func (b *setBuilder) add(column string, value interface{}) {
	b.args = append(b.args, value)
	b.clauses = append(b.clauses, fmt.Sprintf("%s = $%d", column, len(b.args)))
}

func (b *setBuilder) empty() bool {
	return len(b.clauses) == 0
}

// build returns the statement and its args. extra is appended to the SET list
// verbatim; the where clause matches whereColumn = whereValue, and further
// conditions may be passed as column/value pairs in and.
func (b *setBuilder) build(table, extra, whereColumn string, whereValue interface{}, returning string, and ...interface{}) (string, []interface{}) {
	clauses := b.clauses
	if extra != "" {
		clauses = append(clauses, extra)
	}
	args := append([]interface{}{}, b.args...)
	args = append(args, whereValue)
	where := []string{fmt.Sprintf("%s = $%d", whereColumn, len(args))}
	for i := 0; i+1 < len(and); i += 2 {
		args = append(args, and[i+1])
		where = append(where, fmt.Sprintf("%s = $%d", and[i], len(args)))
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING %s",
		table, strings.Join(clauses, ", "), strings.Join(where, " AND "), returning)
	return query, args
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullInt treats nil and zero as NULL so a client can be detached with 0
func nullInt(i *int64) sql.NullInt64 {
	if i == nil || *i == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
