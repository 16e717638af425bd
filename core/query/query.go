/*
Package query turns untrusted request parameters into a safe query against
an abstract queryable and executes it in a fixed stage order: filter,
order, paginate, eager-load hints.

Two queryable implementations are provided: SQL over postgres (see
sql.go) and an in-memory table (see memory.go) for tests and small
services.
*/
package query

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/relabs-tech/resourceful/core"
	"github.com/relabs-tech/resourceful/core/filter"
	"github.com/relabs-tech/resourceful/core/param"
)

// Item is one result row.
type Item = map[string]interface{}

// Condition is a single predicate bound to a column.
type Condition struct {
	Column   string
	Operator filter.Operator
	Value    interface{}
}

// Queryable is an abstract query. Builder methods return a derived query;
// executors run it. Implementations must ignore offset and limit for
// Count, so that pagination totals reflect the full result set.
type Queryable interface {
	// Where adds a group of predicates joined by the given combinator.
	// Several groups combine with AND.
	Where(combinator filter.Combinator, conditions ...Condition) Queryable
	// OrderBy adds an ordering level.
	OrderBy(column string, descending bool) Queryable
	// OffsetLimit restricts the result window.
	OffsetLimit(offset, limit int) Queryable
	// EagerLoad declares related entities to fetch in the same round-trip.
	EagerLoad(relations ...string) Queryable
	// Columns returns the column attribute names of the target entity.
	Columns() []string

	All(ctx context.Context) ([]Item, error)
	Count(ctx context.Context) (int, error)
	// One returns exactly one row, ErrNoRows for zero rows and
	// ErrMultipleRows for more than one.
	One(ctx context.Context) (Item, error)
}

// Session stages entity mutations for persistence. The host scopes a
// session per request and commits or rolls back after the core returns.
type Session interface {
	Add(ctx context.Context, item Item) error
	Update(ctx context.Context, item Item) error
	Delete(ctx context.Context, item Item) error
}

// ErrNoRows is returned by One when the query matches no row.
var ErrNoRows = errors.New("query returned no rows")

// ErrMultipleRows is returned by One when the query matches more than one
// row.
var ErrMultipleRows = errors.New("query returned multiple rows")

// PageSizeAll is the page-size token disabling pagination for a request.
const PageSizeAll = "*"

// Pagination describes the pagination of one list response.
type Pagination struct {
	Pages        int `json:"pages"`
	CurrentPage  int `json:"current_page"`
	PreviousPage int `json:"previous_page"`
	NextPage     int `json:"next_page"`
	PageSize     int `json:"page_size"`
	Count        int `json:"count"`
}

// Pipeline applies filters, ordering, pagination and eager-load hints to a
// queryable, in this order. Each stage is optional.
type Pipeline struct {
	Filtering     bool
	FiltersToSkip []string

	Ordering        bool
	OrderingDefault []string

	Pagination      bool
	DefaultPageSize int
	MaxPageSize     int

	EagerLoadWith []string
}

// Run applies all enabled stages. The returned pagination is nil when
// pagination is disabled, either by configuration or by the "*" page-size
// token.
func (p Pipeline) Run(ctx context.Context, q Queryable, r *http.Request, filters filter.Filters) (Queryable, *Pagination, error) {
	var err error
	if p.Filtering {
		q, err = ApplyFilters(q, filters, p.FiltersToSkip)
		if err != nil {
			return nil, nil, err
		}
	}
	if p.Ordering {
		q, err = ApplyOrdering(q, r, p.OrderingDefault)
		if err != nil {
			return nil, nil, err
		}
	}
	var pagination *Pagination
	if p.Pagination {
		q, pagination, err = ApplyPagination(ctx, q, r, p.DefaultPageSize, p.MaxPageSize)
		if err != nil {
			return nil, nil, err
		}
	}
	q = ApplyEagerLoad(q, p.EagerLoadWith)
	return q, pagination, nil
}

// ApplyFilters resolves every compiled filter spec not in the skip list
// against the queryable's columns and adds the resulting predicate group.
// An unresolvable column name is a client error.
func ApplyFilters(q Queryable, filters filter.Filters, skip []string) (Queryable, error) {
	if filters.Empty() {
		return q, nil
	}
	known := columnSet(q)
	var conditions []Condition
	for name, spec := range filters.Specs {
		if contains(skip, name) {
			continue
		}
		if !known[name] {
			return nil, core.ClientErrorf("unknown column: %s", name)
		}
		conditions = append(conditions, Condition{
			Column:   name,
			Operator: spec.Operator,
			Value:    spec.Value,
		})
	}
	if len(conditions) == 0 {
		return q, nil
	}
	return q.Where(filters.Combinator, conditions...), nil
}

// ApplyOrdering applies ordering tokens from the "ordering" request
// parameter, falling back to the given default. A leading "-" marks
// descending order.
func ApplyOrdering(q Queryable, r *http.Request, def []string) (Queryable, error) {
	var ordering []string
	values, err := param.GetMulti(r, "ordering", param.Default(nil))
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			ordering = append(ordering, s)
		}
	}
	if len(ordering) == 0 {
		ordering = def
	}
	if len(ordering) == 0 {
		return q, nil
	}
	known := columnSet(q)
	for _, token := range ordering {
		descending := strings.HasPrefix(token, "-")
		column := strings.TrimPrefix(token, "-")
		if !known[column] {
			return nil, core.ClientErrorf("unknown column: %s", column)
		}
		q = q.OrderBy(column, descending)
	}
	return q, nil
}

// ApplyPagination computes pagination from the "page" and "page_size"
// request parameters and restricts the queryable to the requested window.
// The page number clamps to a minimum of 1 and the page size to the given
// maximum; the page-size token "*" disables pagination entirely. The total
// row count is taken before offset and limit are applied.
//
// NextPage is deliberately not clamped to the page count; a request past
// the last page reports a next page with no corresponding data.
func ApplyPagination(ctx context.Context, q Queryable, r *http.Request, defaultPageSize, maxPageSize int) (Queryable, *Pagination, error) {
	page := 1
	if v, err := param.Get(r, "page", param.With(param.AsInt), param.Default(1)); err != nil {
		return nil, nil, err
	} else if n, ok := v.(int); ok {
		page = n
	}

	raw, err := param.Get(r, "page_size", param.Default(nil))
	if err != nil {
		return nil, nil, err
	}
	if raw == PageSizeAll {
		return q, nil, nil
	}

	pageSize := defaultPageSize
	if v, err := param.Get(r, "page_size", param.With(param.AsInt), param.Default(defaultPageSize)); err != nil {
		return nil, nil, err
	} else if n, ok := v.(int); ok {
		pageSize = n
	}

	if page < 1 {
		page = 1
	}
	if maxPageSize > 0 && pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if pageSize < 1 {
		pageSize = 1
	}

	count, err := q.Count(ctx)
	if err != nil {
		return nil, nil, err
	}

	pages := int(math.Ceil(float64(count) / float64(pageSize)))
	offset := (page - 1) * pageSize
	q = q.OffsetLimit(offset, pageSize)

	previousPage := page - 1
	if page == 1 {
		previousPage = 1
	}
	pagination := &Pagination{
		Pages:        pages,
		CurrentPage:  page,
		PreviousPage: previousPage,
		NextPage:     page + 1,
		PageSize:     pageSize,
		Count:        count,
	}
	return q, pagination, nil
}

// ApplyEagerLoad adds eager-load hints for the given relations.
func ApplyEagerLoad(q Queryable, relations []string) Queryable {
	if len(relations) == 0 {
		return q
	}
	return q.EagerLoad(relations...)
}

func columnSet(q Queryable) map[string]bool {
	set := map[string]bool{}
	for _, c := range q.Columns() {
		set[c] = true
	}
	return set
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
