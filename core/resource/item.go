// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package resource

import (
	"github.com/relabs-tech/resourceful/core"
	"github.com/relabs-tech/resourceful/core/filter"
	"github.com/relabs-tech/resourceful/core/query"
	"github.com/relabs-tech/resourceful/core/schema"
)

// Item is a resource over a single entity addressed by path match
// parameters: every path parameter becomes an equality filter, and the
// query must match exactly one entity.
//
// GET returns the item, PATCH updates selected fields, PUT creates or
// updates the item, DELETE removes it.
type Item struct {
	// Key is the payload key for the item, "item" by default.
	Key string

	// FilterConverters convert match parameter values by name before they
	// are applied.
	FilterConverters map[string]filter.ValueConverter

	// EagerLoadWith names relations to fetch in the same round-trip.
	EagerLoadWith []string

	// SchemaID selects a schema from Validator to validate created items
	// with. Empty means no validation.
	SchemaID  string
	Validator *schema.Validator
}

func (i Item) key() string {
	if i.Key != "" {
		return i.Key
	}
	return "item"
}

func (i Item) filters(r *Request) (filter.Filters, error) {
	filters := filter.FromMatchVars(r.Vars)
	if err := filters.Convert(i.FilterConverters); err != nil {
		return filter.Filters{}, err
	}
	return filters, nil
}

// fetch locates the single entity matching the path parameters. Zero
// matches, and the contract violation of more than one match, both fail
// as not found with a detail echoing the applied filters.
func (i Item) fetch(r *Request) (query.Item, error) {
	filters, err := i.filters(r)
	if err != nil {
		return nil, err
	}
	q, err := query.ApplyFilters(r.Store.Query(), filters, nil)
	if err != nil {
		return nil, err
	}
	q = query.ApplyEagerLoad(q, i.EagerLoadWith)
	item, err := q.One(r.Context())
	if err == query.ErrNoRows || err == query.ErrMultipleRows {
		return nil, core.NotFoundf("no item found for filters: %s", describeFilters(filters))
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Get returns the item.
func (i Item) Get(r *Request) (Payload, error) {
	item, err := i.fetch(r)
	if err != nil {
		return nil, err
	}
	projected, err := projectItem(r, r.Store.Query(), item)
	if err != nil {
		return nil, err
	}
	return Payload{i.key(): projected}, nil
}

// Patch updates selected fields on the item.
func (i Item) Patch(r *Request) (Payload, error) {
	item, err := i.fetch(r)
	if err != nil {
		return nil, err
	}
	data, err := ExtractData(r.HTTP)
	if err != nil {
		return nil, err
	}
	for name, value := range data {
		item[name] = value
	}
	if err := r.Store.Update(r.Context(), item); err != nil {
		return nil, err
	}
	return Payload{i.key(): item}, nil
}

// Put creates or updates the item. If an entity matching the path
// parameters exists, the supplied fields are written onto it; the payload
// is not validated to be a complete representation, so a partial PUT on
// an existing entity behaves like PATCH. Otherwise a new entity is
// created from the supplied data.
func (i Item) Put(r *Request) (Payload, error) {
	item, err := i.fetch(r)
	if err != nil && !core.IsNotFound(err) {
		return nil, err
	}
	data, err := ExtractData(r.HTTP)
	if err != nil {
		return nil, err
	}
	if item == nil {
		if err := validatePayload(i.Validator, i.SchemaID, data); err != nil {
			return nil, err
		}
		if err := r.Store.Add(r.Context(), data); err != nil {
			return nil, err
		}
		return Payload{i.key(): data}, nil
	}
	for name, value := range data {
		item[name] = value
	}
	if err := r.Store.Update(r.Context(), item); err != nil {
		return nil, err
	}
	return Payload{i.key(): item}, nil
}

// Delete removes the item and returns its last state.
func (i Item) Delete(r *Request) (Payload, error) {
	item, err := i.fetch(r)
	if err != nil {
		return nil, err
	}
	if err := r.Store.Delete(r.Context(), item); err != nil {
		return nil, err
	}
	return Payload{i.key(): item}, nil
}

// Options reports the allowed methods of the resource.
func (i Item) Options(r *Request) (Payload, error) {
	return allowPayload(r), nil
}
