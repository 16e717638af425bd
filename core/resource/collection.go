package resource

import (
	"net/http"

	"github.com/relabs-tech/resourceful/core/filter"
	"github.com/relabs-tech/resourceful/core/param"
	"github.com/relabs-tech/resourceful/core/query"
	"github.com/relabs-tech/resourceful/core/schema"
)

// Collection is a resource over an entity collection. GET lists all or a
// filtered subset of items, POST adds a new item.
//
// Filtering, ordering and pagination are enabled by default; pagination
// is on by default to avoid huge queries.
type Collection struct {
	// Key is the payload key for the item list, "items" by default.
	Key string
	// ItemKey is the payload key for a created item, "item" by default.
	ItemKey string

	// DisableFiltering turns the filtering stage off.
	DisableFiltering bool
	// FiltersToSkip names filters which are handled specially by a
	// subclassing resource rather than by the default filtering logic.
	FiltersToSkip []string
	// FilterConverters convert filter values by name before they are
	// applied, for example date strings to timestamps.
	FilterConverters map[string]filter.ValueConverter

	// DisableOrdering turns the ordering stage off.
	DisableOrdering bool
	// OrderingDefault applies when the request carries no ordering
	// parameter. A leading "-" marks descending order.
	OrderingDefault []string

	// DisablePagination turns the pagination stage off.
	DisablePagination bool
	// DefaultPageSize is the page size when the request does not specify
	// one. Default 50.
	DefaultPageSize int
	// MaxPageSize caps the requested page size. Default 250.
	MaxPageSize int

	// EagerLoadWith names relations to fetch in the same round-trip.
	EagerLoadWith []string

	// SchemaID selects a schema from Validator to validate created items
	// with. Empty means no validation.
	SchemaID  string
	Validator *schema.Validator
}

func (c Collection) key() string {
	if c.Key != "" {
		return c.Key
	}
	return "items"
}

func (c Collection) itemKey() string {
	if c.ItemKey != "" {
		return c.ItemKey
	}
	return "item"
}

func (c Collection) defaultPageSize() int {
	if c.DefaultPageSize > 0 {
		return c.DefaultPageSize
	}
	return 50
}

func (c Collection) maxPageSize() int {
	if c.MaxPageSize > 0 {
		return c.MaxPageSize
	}
	return 250
}

// requestFilters compiles the "filters" request parameter, a JSON-encoded
// object with "column" or "column operator" keys.
func (c Collection) requestFilters(r *Request) (filter.Filters, error) {
	raw, err := param.Get(r.HTTP, "filters", param.With(param.AsJSON), param.Default(nil))
	if err != nil {
		return filter.Filters{}, err
	}
	object, _ := raw.(map[string]interface{})
	filters, err := filter.Compile(object)
	if err != nil {
		return filter.Filters{}, err
	}
	if err := filters.Convert(c.FilterConverters); err != nil {
		return filter.Filters{}, err
	}
	return filters, nil
}

// Get lists items. The response carries the projected items under the
// collection key and, unless pagination is disabled, the pagination data
// under "pagination_data".
func (c Collection) Get(r *Request) (Payload, error) {
	ctx := r.Context()
	filters, err := c.requestFilters(r)
	if err != nil {
		return nil, err
	}
	pipeline := query.Pipeline{
		Filtering:       !c.DisableFiltering,
		FiltersToSkip:   c.FiltersToSkip,
		Ordering:        !c.DisableOrdering,
		OrderingDefault: c.OrderingDefault,
		Pagination:      !c.DisablePagination,
		DefaultPageSize: c.defaultPageSize(),
		MaxPageSize:     c.maxPageSize(),
		EagerLoadWith:   c.EagerLoadWith,
	}
	q, pagination, err := pipeline.Run(ctx, r.Store.Query(), r.HTTP, filters)
	if err != nil {
		return nil, err
	}
	rows, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		item, err := projectItem(r, q, row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	data := Payload{}
	if pagination != nil {
		data["pagination_data"] = pagination
	}
	data[c.key()] = items
	return data, nil
}

// Post adds an item to the collection.
func (c Collection) Post(r *Request) (Payload, error) {
	data, err := ExtractData(r.HTTP)
	if err != nil {
		return nil, err
	}
	if err := validatePayload(c.Validator, c.SchemaID, data); err != nil {
		return nil, err
	}
	if err := r.Store.Add(r.Context(), data); err != nil {
		return nil, err
	}
	r.SetStatus(http.StatusCreated)
	return Payload{c.itemKey(): data}, nil
}

// Options reports the allowed methods of the resource.
func (c Collection) Options(r *Request) (Payload, error) {
	return allowPayload(r), nil
}
