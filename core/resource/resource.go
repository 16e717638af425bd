// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package resource defines the CRUD contract between registered resources
and the backend. A resource implements any subset of the capability
interfaces Getter, Poster, Putter, Patcher, Deleter and Optioner; the
backend introspects these once at registration time and dispatches
matched requests through them.

Collection and Item are ready-made resource types covering the common
case of a data-backed entity collection and a single entity addressed by
path parameters. Custom resource types can embed them or implement the
capability interfaces directly.
*/
package resource

import (
	"context"
	"io"
	"mime"
	"net/http"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/resourceful/core"
	"github.com/relabs-tech/resourceful/core/field"
	"github.com/relabs-tech/resourceful/core/filter"
	"github.com/relabs-tech/resourceful/core/query"
	"github.com/relabs-tech/resourceful/core/schema"
	"github.com/relabs-tech/resourceful/core/settings"
)

// Payload is the result of one resource operation, keyed by the
// resource-specific item or items key. A nil payload renders as an empty
// 204 response. The alias keeps payloads interchangeable with plain maps
// throughout rendering.
type Payload = map[string]interface{}

// Store provides a fresh queryable plus mutation staging for one entity
// collection. Both *query.Table and *query.SQLTable implement it. The
// host scopes a store per request where transactional semantics are
// needed.
type Store interface {
	Query() query.Queryable
	query.Session
}

// Request carries the per-request collaborators of a resource operation.
type Request struct {
	// HTTP is the incoming request.
	HTTP *http.Request
	// Vars are the path match parameters.
	Vars map[string]string
	// Store backs the resource's entity collection.
	Store Store
	// Settings are the framework-wide settings of the owning backend.
	Settings *settings.Settings
	// AllowedMethods are the methods the resource was registered with.
	AllowedMethods []string

	status int
}

// Context returns the request context.
func (r *Request) Context() context.Context {
	return r.HTTP.Context()
}

// SetStatus sets the response status. The first call wins; the default
// status is 200, or 204 for a nil payload.
func (r *Request) SetStatus(code int) {
	if r.status == 0 {
		r.status = code
	}
}

// Status returns the response status set by the operation, or zero.
func (r *Request) Status() int {
	return r.status
}

// Getter handles GET.
type Getter interface {
	Get(r *Request) (Payload, error)
}

// Poster handles POST.
type Poster interface {
	Post(r *Request) (Payload, error)
}

// Putter handles PUT.
type Putter interface {
	Put(r *Request) (Payload, error)
}

// Patcher handles PATCH.
type Patcher interface {
	Patch(r *Request) (Payload, error)
}

// Deleter handles DELETE.
type Deleter interface {
	Delete(r *Request) (Payload, error)
}

// Optioner handles OPTIONS.
type Optioner interface {
	Options(r *Request) (Payload, error)
}

// Configurable lets a resource accept merged resource arguments at
// registration time. An unknown argument name is a configuration error
// and aborts registration.
type Configurable interface {
	Configure(args map[string]interface{}) error
}

// ExtractData extracts the request payload from a form-encoded or JSON
// body. Blank form values are converted to nil; JSON data is left as is,
// so a JSON empty string stays an empty string. Other content types are
// client errors.
func ExtractData(r *http.Request) (map[string]interface{}, error) {
	contentType := r.Header.Get("Content-Type")
	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			contentType = mediaType
		}
	}
	switch contentType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, core.ClientErrorf("cannot parse form body: %v", err)
		}
		data := map[string]interface{}{}
		for name, values := range r.PostForm {
			// for repeated keys the last occurrence wins, blank values
			// become nil
			value := ""
			if len(values) > 0 {
				value = values[len(values)-1]
			}
			if value == "" {
				data[name] = nil
				continue
			}
			data[name] = value
		}
		return data, nil
	case "application/json":
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, core.ClientErrorf("cannot read request body: %v", err)
		}
		if len(body) == 0 {
			return nil, nil
		}
		var data map[string]interface{}
		if err := json.Unmarshal(body, &data); err != nil {
			return nil, core.ClientErrorf("cannot parse request body as json: %v", err)
		}
		return data, nil
	}
	return nil, core.ClientErrorf("cannot extract data for content type: %s", contentType)
}

// projectItem extracts the requested fields from item and runs the
// configured item processor. The queryable supplies the declared columns
// as default field set.
func projectItem(r *Request, q query.Queryable, item query.Item) (map[string]interface{}, error) {
	defaults := func() []string {
		if r.Settings != nil && r.Settings.DefaultResponseFields != nil {
			return r.Settings.DefaultResponseFields(r.HTTP, item)
		}
		return q.Columns()
	}
	fields, err := field.Requested(r.HTTP, defaults)
	if err != nil {
		return nil, err
	}
	projected, err := field.Project(r.HTTP, item, fields)
	if err != nil {
		return nil, err
	}
	if r.Settings != nil && r.Settings.ItemProcessor != nil {
		return r.Settings.ItemProcessor(r.HTTP, projected)
	}
	return projected, nil
}

func validatePayload(v *schema.Validator, schemaID string, data map[string]interface{}) error {
	if v == nil || schemaID == "" {
		return nil
	}
	if err := v.ValidateStruct(data, schemaID); err != nil {
		return core.ClientErrorf("invalid payload: %v", err)
	}
	return nil
}

func allowPayload(r *Request) Payload {
	return Payload{"Allow": strings.Join(r.AllowedMethods, ", ")}
}

// describeFilters renders filters into a deterministic detail string for
// not-found responses.
func describeFilters(filters filter.Filters) string {
	names := make([]string, 0, len(filters.Specs))
	for name := range filters.Specs {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		spec := filters.Specs[name]
		parts = append(parts, name+" "+string(spec.Operator)+" "+stringify(spec.Value))
	}
	return strings.Join(parts, ", ")
}

func stringify(value interface{}) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "?"
	}
	return string(encoded)
}
