// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package query

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/relabs-tech/resourceful/core/filter"
)

// SQLRelation describes a one-to-many relation for eager loading. The
// related table carries a foreign-key column referencing the owning
// table's primary key.
type SQLRelation struct {
	Table      string
	ForeignKey string
	Columns    []string
}

// Execer is the database surface SQLTable needs. *sql.DB, *sql.Tx and
// csql.DB all provide it, so a host can scope one transaction per request.
type Execer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SQLTable binds a queryable and a session to one postgres table.
type SQLTable struct {
	Exec        Execer
	Schema      string
	Table       string
	Primary     string
	ColumnNames []string
	Relations   map[string]SQLRelation
}

// Query returns a queryable over the table.
func (t *SQLTable) Query() Queryable {
	return &sqlQuery{table: t, limit: -1}
}

// Add stages an INSERT for the item.
func (t *SQLTable) Add(ctx context.Context, item Item) error {
	var columns []string
	var params []string
	var values []interface{}
	for _, col := range t.ColumnNames {
		v, ok := item[col]
		if !ok {
			continue
		}
		columns = append(columns, pq.QuoteIdentifier(col))
		params = append(params, "$"+strconv.Itoa(len(values)+1))
		values = append(values, v)
	}
	if len(columns) == 0 {
		return fmt.Errorf("nothing to insert into %s", t.Table)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES(%s);",
		t.qualified(), strings.Join(columns, ", "), strings.Join(params, ", "))
	_, err := t.Exec.ExecContext(ctx, q, values...)
	return err
}

// Update stages an UPDATE of all non-primary columns present in the item.
func (t *SQLTable) Update(ctx context.Context, item Item) error {
	var sets []string
	var values []interface{}
	for _, col := range t.ColumnNames {
		if col == t.Primary {
			continue
		}
		v, ok := item[col]
		if !ok {
			continue
		}
		values = append(values, v)
		sets = append(sets, pq.QuoteIdentifier(col)+" = $"+strconv.Itoa(len(values)))
	}
	if len(sets) == 0 {
		return nil
	}
	values = append(values, item[t.Primary])
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d;",
		t.qualified(), strings.Join(sets, ", "), pq.QuoteIdentifier(t.Primary), len(values))
	_, err := t.Exec.ExecContext(ctx, q, values...)
	return err
}

// Delete stages a DELETE of the item.
func (t *SQLTable) Delete(ctx context.Context, item Item) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = $1;",
		t.qualified(), pq.QuoteIdentifier(t.Primary))
	_, err := t.Exec.ExecContext(ctx, q, item[t.Primary])
	return err
}

func (t *SQLTable) qualified() string {
	if t.Schema == "" {
		return pq.QuoteIdentifier(t.Table)
	}
	return t.Schema + "." + pq.QuoteIdentifier(t.Table)
}

type sqlQuery struct {
	table  *SQLTable
	groups []conditionGroup
	orders []orderLevel
	offset int
	limit  int
	eager  []string
}

func (q *sqlQuery) clone() *sqlQuery {
	c := *q
	c.groups = append([]conditionGroup(nil), q.groups...)
	c.orders = append([]orderLevel(nil), q.orders...)
	c.eager = append([]string(nil), q.eager...)
	return &c
}

func (q *sqlQuery) Where(combinator filter.Combinator, conditions ...Condition) Queryable {
	c := q.clone()
	c.groups = append(c.groups, conditionGroup{combinator: combinator, conditions: conditions})
	return c
}

func (q *sqlQuery) OrderBy(column string, descending bool) Queryable {
	c := q.clone()
	c.orders = append(c.orders, orderLevel{column: column, descending: descending})
	return c
}

func (q *sqlQuery) OffsetLimit(offset, limit int) Queryable {
	c := q.clone()
	c.offset = offset
	c.limit = limit
	return c
}

func (q *sqlQuery) EagerLoad(relations ...string) Queryable {
	c := q.clone()
	c.eager = append(c.eager, relations...)
	return c
}

func (q *sqlQuery) Columns() []string {
	return q.table.ColumnNames
}

func (q *sqlQuery) whereClause(values *[]interface{}) string {
	var groups []string
	for _, group := range q.groups {
		var parts []string
		for _, cond := range group.conditions {
			parts = append(parts, conditionSQL("b.", cond, values))
		}
		if len(parts) == 0 {
			continue
		}
		joiner := " AND "
		if group.combinator == filter.CombinatorOr {
			joiner = " OR "
		}
		groups = append(groups, "("+strings.Join(parts, joiner)+")")
	}
	if len(groups) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(groups, " AND ")
}

func conditionSQL(prefix string, cond Condition, values *[]interface{}) string {
	column := prefix + pq.QuoteIdentifier(cond.Column)
	placeholder := func(v interface{}) string {
		*values = append(*values, v)
		return "$" + strconv.Itoa(len(*values))
	}
	switch cond.Operator {
	case filter.OpIn:
		return column + " = ANY(" + placeholder(pq.Array(toSlice(cond.Value))) + ")"
	case filter.OpNotIn:
		return column + " <> ALL(" + placeholder(pq.Array(toSlice(cond.Value))) + ")"
	case filter.OpLike:
		return column + " LIKE " + placeholder(cond.Value)
	case filter.OpNotLike:
		return column + " NOT LIKE " + placeholder(cond.Value)
	case filter.OpILike:
		return column + " ILIKE " + placeholder(cond.Value)
	case filter.OpNotILike:
		return column + " NOT ILIKE " + placeholder(cond.Value)
	case filter.OpIs:
		if cond.Value == nil {
			return column + " IS NULL"
		}
		return column + " IS NOT DISTINCT FROM " + placeholder(cond.Value)
	case filter.OpIsNot:
		if cond.Value == nil {
			return column + " IS NOT NULL"
		}
		return column + " IS DISTINCT FROM " + placeholder(cond.Value)
	default:
		return column + " " + string(cond.Operator) + " " + placeholder(cond.Value)
	}
}

func (q *sqlQuery) All(ctx context.Context) ([]Item, error) {
	t := q.table
	baseColumns := make([]string, len(t.ColumnNames))
	for i, col := range t.ColumnNames {
		baseColumns[i] = "b." + pq.QuoteIdentifier(col)
	}
	selected := strings.Join(baseColumns, ", ")
	from := " FROM " + t.qualified() + " b"

	// eager-loaded relations become left joins; the resulting row fan-out
	// is de-duplicated below by primary key
	type joinedRelation struct {
		name     string
		alias    string
		relation SQLRelation
	}
	var joins []joinedRelation
	for i, name := range q.eager {
		rel, ok := t.Relations[name]
		if !ok {
			return nil, fmt.Errorf("unknown relation: %s", name)
		}
		alias := "r" + strconv.Itoa(i)
		joins = append(joins, joinedRelation{name: name, alias: alias, relation: rel})
		for _, col := range rel.Columns {
			selected += ", " + alias + "." + pq.QuoteIdentifier(col)
		}
		from += fmt.Sprintf(" LEFT JOIN %s %s ON %s.%s = b.%s",
			relQualified(t.Schema, rel.Table), alias,
			alias, pq.QuoteIdentifier(rel.ForeignKey),
			pq.QuoteIdentifier(t.Primary))
	}

	var values []interface{}
	sqlText := "SELECT " + selected + from + q.whereClause(&values)

	if len(q.orders) > 0 {
		var orderings []string
		for _, level := range q.orders {
			direction := " ASC"
			if level.descending {
				direction = " DESC"
			}
			orderings = append(orderings, "b."+pq.QuoteIdentifier(level.column)+direction)
		}
		sqlText += " ORDER BY " + strings.Join(orderings, ", ")
	}
	if q.limit >= 0 && len(joins) == 0 {
		sqlText += " LIMIT " + strconv.Itoa(q.limit)
	}
	if q.offset > 0 && len(joins) == 0 {
		sqlText += " OFFSET " + strconv.Itoa(q.offset)
	}
	sqlText += ";"

	rows, err := t.Exec.QueryContext(ctx, sqlText, values...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Item
	index := map[string]int{}
	for rows.Next() {
		n := len(t.ColumnNames)
		for _, j := range joins {
			n += len(j.relation.Columns)
		}
		scanned := make([]interface{}, n)
		for i := range scanned {
			scanned[i] = new(interface{})
		}
		if err := rows.Scan(scanned...); err != nil {
			return nil, err
		}
		item := Item{}
		for i, col := range t.ColumnNames {
			item[col] = normalize(*(scanned[i].(*interface{})))
		}
		pos := len(t.ColumnNames)
		key := fmt.Sprint(item[t.Primary])
		existing, seen := index[key]
		if !seen {
			index[key] = len(result)
			existing = len(result)
			result = append(result, item)
		}
		for _, j := range joins {
			related := Item{}
			miss := true
			for k, col := range j.relation.Columns {
				v := normalize(*(scanned[pos+k].(*interface{})))
				if v != nil {
					miss = false
				}
				related[col] = v
			}
			pos += len(j.relation.Columns)
			if miss {
				continue
			}
			rel, _ := result[existing][j.name].([]Item)
			result[existing][j.name] = append(rel, related)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// with joins, offset and limit apply to de-duplicated entities
	if len(joins) > 0 {
		if q.offset > 0 {
			if q.offset >= len(result) {
				result = nil
			} else {
				result = result[q.offset:]
			}
		}
		if q.limit >= 0 && q.limit < len(result) {
			result = result[:q.limit]
		}
	}
	return result, nil
}

func (q *sqlQuery) Count(ctx context.Context) (int, error) {
	var values []interface{}
	sqlText := "SELECT count(*) FROM " + q.table.qualified() + " b" + q.whereClause(&values) + ";"
	rows, err := q.table.Exec.QueryContext(ctx, sqlText, values...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	count := 0
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, err
		}
	}
	return count, rows.Err()
}

func (q *sqlQuery) One(ctx context.Context) (Item, error) {
	limited, _ := q.OffsetLimit(0, 2).(*sqlQuery)
	result, err := limited.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, ErrNoRows
	}
	if len(result) > 1 {
		return nil, ErrMultipleRows
	}
	return result[0], nil
}

func relQualified(schema, table string) string {
	if schema == "" {
		return pq.QuoteIdentifier(table)
	}
	return schema + "." + pq.QuoteIdentifier(table)
}

func toSlice(v interface{}) []interface{} {
	if s, ok := v.([]interface{}); ok {
		return s
	}
	return []interface{}{v}
}

// normalize converts driver values to plain JSON-friendly values.
func normalize(v interface{}) interface{} {
	switch b := v.(type) {
	case []byte:
		return string(b)
	case int64:
		return float64(b)
	}
	return v
}
