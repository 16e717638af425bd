package query

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/relabs-tech/resourceful/core/filter"
)

// Table is an in-memory entity collection. It implements Session and
// produces Queryables over a snapshot of its rows. It is used by tests and
// is good enough for small services that do not need a database.
type Table struct {
	mu      sync.Mutex
	primary string
	columns []string
	rows    []Item
}

// NewTable creates an in-memory table. The primary column must be part of
// columns.
func NewTable(primary string, columns ...string) *Table {
	return &Table{primary: primary, columns: columns}
}

// Query returns a queryable over the table's current rows.
func (t *Table) Query() Queryable {
	t.mu.Lock()
	defer t.mu.Unlock()
	rows := make([]Item, len(t.rows))
	copy(rows, t.rows)
	return &memoryQuery{
		columns: t.columns,
		rows:    rows,
		limit:   -1,
	}
}

// Add stages a new item. A missing primary key is generated.
func (t *Table) Add(ctx context.Context, item Item) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := item[t.primary]; !ok {
		item[t.primary] = uuid.NewString()
	}
	t.rows = append(t.rows, copyItem(item))
	return nil
}

// Update replaces the stored row with the same primary key.
func (t *Table) Update(ctx context.Context, item Item) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, row := range t.rows {
		if equalValues(row[t.primary], item[t.primary]) {
			t.rows[i] = copyItem(item)
			return nil
		}
	}
	return fmt.Errorf("no row with %s = %v", t.primary, item[t.primary])
}

// Delete removes the stored row with the same primary key.
func (t *Table) Delete(ctx context.Context, item Item) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, row := range t.rows {
		if equalValues(row[t.primary], item[t.primary]) {
			t.rows = append(t.rows[:i], t.rows[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("no row with %s = %v", t.primary, item[t.primary])
}

type conditionGroup struct {
	combinator filter.Combinator
	conditions []Condition
}

type orderLevel struct {
	column     string
	descending bool
}

type memoryQuery struct {
	columns []string
	rows    []Item
	groups  []conditionGroup
	orders  []orderLevel
	offset  int
	limit   int
	eager   []string
}

func (q *memoryQuery) clone() *memoryQuery {
	c := *q
	c.groups = append([]conditionGroup(nil), q.groups...)
	c.orders = append([]orderLevel(nil), q.orders...)
	c.eager = append([]string(nil), q.eager...)
	return &c
}

func (q *memoryQuery) Where(combinator filter.Combinator, conditions ...Condition) Queryable {
	c := q.clone()
	c.groups = append(c.groups, conditionGroup{combinator: combinator, conditions: conditions})
	return c
}

func (q *memoryQuery) OrderBy(column string, descending bool) Queryable {
	c := q.clone()
	c.orders = append(c.orders, orderLevel{column: column, descending: descending})
	return c
}

func (q *memoryQuery) OffsetLimit(offset, limit int) Queryable {
	c := q.clone()
	c.offset = offset
	c.limit = limit
	return c
}

func (q *memoryQuery) EagerLoad(relations ...string) Queryable {
	c := q.clone()
	c.eager = append(c.eager, relations...)
	return c
}

func (q *memoryQuery) Columns() []string {
	return q.columns
}

func (q *memoryQuery) matching() ([]Item, error) {
	var matched []Item
	for _, row := range q.rows {
		ok, err := q.matches(row)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, row)
		}
	}
	return matched, nil
}

func (q *memoryQuery) matches(row Item) (bool, error) {
	for _, group := range q.groups {
		matched := group.combinator != filter.CombinatorOr
		for _, cond := range group.conditions {
			ok, err := evaluate(row, cond)
			if err != nil {
				return false, err
			}
			if group.combinator == filter.CombinatorOr {
				if ok {
					matched = true
					break
				}
			} else if !ok {
				matched = false
				break
			}
		}
		if len(group.conditions) == 0 {
			matched = true
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

func (q *memoryQuery) All(ctx context.Context) ([]Item, error) {
	matched, err := q.matching()
	if err != nil {
		return nil, err
	}
	q.order(matched)
	// eager loading forces de-duplication semantics
	if len(q.eager) > 0 {
		matched = dedupe(matched)
	}
	if q.offset > 0 {
		if q.offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.offset:]
		}
	}
	if q.limit >= 0 && q.limit < len(matched) {
		matched = matched[:q.limit]
	}
	result := make([]Item, len(matched))
	for i, row := range matched {
		result[i] = copyItem(row)
	}
	return result, nil
}

func (q *memoryQuery) Count(ctx context.Context) (int, error) {
	matched, err := q.matching()
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

func (q *memoryQuery) One(ctx context.Context) (Item, error) {
	matched, err := q.matching()
	if err != nil {
		return nil, err
	}
	if len(q.eager) > 0 {
		matched = dedupe(matched)
	}
	if len(matched) == 0 {
		return nil, ErrNoRows
	}
	if len(matched) > 1 {
		return nil, ErrMultipleRows
	}
	return copyItem(matched[0]), nil
}

func (q *memoryQuery) order(rows []Item) {
	if len(q.orders) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, level := range q.orders {
			a, b := rows[i][level.column], rows[j][level.column]
			cmp := compareValues(a, b)
			if cmp == 0 {
				continue
			}
			if level.descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func dedupe(rows []Item) []Item {
	seen := map[string]bool{}
	var result []Item
	for _, row := range rows {
		key := fmt.Sprint(row)
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, row)
	}
	return result
}

func evaluate(row Item, cond Condition) (bool, error) {
	value := row[cond.Column]
	switch cond.Operator {
	case filter.OpEqual:
		return equalValues(value, cond.Value), nil
	case filter.OpNotEqual:
		return !equalValues(value, cond.Value), nil
	case filter.OpLess:
		return compareValues(value, cond.Value) < 0, nil
	case filter.OpLessEqual:
		return compareValues(value, cond.Value) <= 0, nil
	case filter.OpGreater:
		return compareValues(value, cond.Value) > 0, nil
	case filter.OpGreaterEqual:
		return compareValues(value, cond.Value) >= 0, nil
	case filter.OpIn, filter.OpNotIn:
		found := false
		if seq, ok := cond.Value.([]interface{}); ok {
			for _, candidate := range seq {
				if equalValues(value, candidate) {
					found = true
					break
				}
			}
		}
		if cond.Operator == filter.OpIn {
			return found, nil
		}
		return !found, nil
	case filter.OpLike, filter.OpNotLike, filter.OpILike, filter.OpNotILike:
		pattern, _ := cond.Value.(string)
		s, _ := value.(string)
		insensitive := cond.Operator == filter.OpILike || cond.Operator == filter.OpNotILike
		matched := likeMatch(pattern, s, insensitive)
		if cond.Operator == filter.OpLike || cond.Operator == filter.OpILike {
			return matched, nil
		}
		return !matched, nil
	case filter.OpIs:
		return equalValues(value, cond.Value), nil
	case filter.OpIsNot:
		return !equalValues(value, cond.Value), nil
	}
	return false, fmt.Errorf("unsupported operator: %s", cond.Operator)
}

func likeMatch(pattern, s string, insensitive bool) bool {
	expr := regexp.QuoteMeta(pattern)
	expr = strings.ReplaceAll(expr, "%", ".*")
	expr = strings.ReplaceAll(expr, "_", ".")
	if insensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile("^" + expr + "$")
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func equalValues(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	// values of uncomparable kinds, like decoded JSON objects, must not
	// panic on ==
	return reflect.DeepEqual(a, b)
}

// compareValues orders numbers numerically and everything else by string
// representation.
func compareValues(a, b interface{}) int {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if aok && bok {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func copyItem(item Item) Item {
	copied := make(Item, len(item))
	for k, v := range item {
		copied[k] = v
	}
	return copied
}
