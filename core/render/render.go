// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package render maps renderer identifiers to serialization routines and
content types.

A renderer identifier is either a plain name like "json" or "csv", or a
dotted template reference like "detail.gohtml". Template extensions
normalize to "html". Before serialization, values pass through the
registered type adapters, which turn domain types like timestamps and
UUIDs into plain strings.
*/
package render

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// extMap normalizes template-engine extensions.
var extMap = map[string]string{
	"gohtml": "html",
	"tmpl":   "html",
}

// acceptMap associates normalized extensions with content types.
var acceptMap = map[string]string{
	"csv":  "text/csv",
	"json": "application/json",
	"html": "text/html",
}

// Renderer serializes a view payload.
type Renderer interface {
	ContentType() string
	Render(w io.Writer, value interface{}) error
}

// Adapter converts a single value during rendering. It returns the adapted
// value and whether it applied.
type Adapter func(value interface{}, r *http.Request) (interface{}, bool)

// Registry maps renderer identifiers to renderers and holds the type
// adapters.
type Registry struct {
	renderers map[string]Renderer
	adapters  []Adapter
}

// NewRegistry creates a registry with the json and csv renderers and the
// default adapters for timestamps and UUIDs.
func NewRegistry() *Registry {
	reg := &Registry{renderers: map[string]Renderer{}}
	reg.Register("json", jsonRenderer{})
	reg.Register("csv", csvRenderer{})
	reg.AddAdapter(func(value interface{}, r *http.Request) (interface{}, bool) {
		if t, ok := value.(time.Time); ok {
			return t.Format(time.RFC3339), true
		}
		return nil, false
	})
	reg.AddAdapter(func(value interface{}, r *http.Request) (interface{}, bool) {
		if id, ok := value.(uuid.UUID); ok {
			return id.String(), true
		}
		return nil, false
	})
	return reg
}

// Register adds a renderer under a name.
func (reg *Registry) Register(name string, renderer Renderer) {
	reg.renderers[name] = renderer
}

// AddAdapter adds a type adapter. Later adapters take precedence.
func (reg *Registry) AddAdapter(adapter Adapter) {
	reg.adapters = append([]Adapter{adapter}, reg.adapters...)
}

// ExtAndAccept derives the URL extension and the accepted content type for
// a renderer identifier. Dotted template references use their extension,
// normalized through the template-extension table. An unknown extension
// has no content-type association and its accept string is empty.
func ExtAndAccept(renderer string) (ext, accept string) {
	ext = renderer
	if i := strings.LastIndex(renderer, "."); i >= 0 {
		ext = renderer[i+1:]
	}
	if normalized, ok := extMap[ext]; ok {
		ext = normalized
	}
	return ext, acceptMap[ext]
}

// Renderer resolves a renderer identifier. Dotted references resolve by
// their normalized extension.
func (reg *Registry) Renderer(identifier string) (Renderer, error) {
	if r, ok := reg.renderers[identifier]; ok {
		return r, nil
	}
	ext, _ := ExtAndAccept(identifier)
	if r, ok := reg.renderers[ext]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("unknown renderer: %s", identifier)
}

// Adapt applies the type adapters recursively over maps and slices.
func (reg *Registry) Adapt(value interface{}, r *http.Request) interface{} {
	for _, adapter := range reg.adapters {
		if adapted, ok := adapter(value, r); ok {
			return adapted
		}
	}
	switch v := value.(type) {
	case map[string]interface{}:
		adapted := make(map[string]interface{}, len(v))
		for k, item := range v {
			adapted[k] = reg.Adapt(item, r)
		}
		return adapted
	case []interface{}:
		adapted := make([]interface{}, len(v))
		for i, item := range v {
			adapted[i] = reg.Adapt(item, r)
		}
		return adapted
	case []map[string]interface{}:
		adapted := make([]interface{}, len(v))
		for i, item := range v {
			adapted[i] = reg.Adapt(item, r)
		}
		return adapted
	}
	return value
}

// Negotiate picks the renderer for an Accept header from the resource's
// declared renderers and their content types, in declaration order. An
// empty accepts entry matches anything; without any match the first
// renderer wins.
func Negotiate(acceptHeader string, renderers, accepts []string) string {
	if len(renderers) == 0 {
		return "json"
	}
	offered := parseAccept(acceptHeader)
	for i, name := range renderers {
		var accept string
		if i < len(accepts) {
			accept = accepts[i]
		}
		if accept == "" {
			return name
		}
		for _, o := range offered {
			if mediaTypeMatches(o, accept) {
				return name
			}
		}
	}
	return renderers[0]
}

func parseAccept(header string) []string {
	var types []string
	for _, part := range strings.Split(header, ",") {
		mediaType := strings.TrimSpace(strings.Split(part, ";")[0])
		if mediaType != "" {
			types = append(types, mediaType)
		}
	}
	return types
}

func mediaTypeMatches(offered, accept string) bool {
	if offered == "*/*" || offered == accept {
		return true
	}
	if strings.HasSuffix(offered, "/*") {
		return strings.HasPrefix(accept, strings.TrimSuffix(offered, "*"))
	}
	return false
}

type jsonRenderer struct{}

func (jsonRenderer) ContentType() string { return "application/json; charset=utf-8" }

func (jsonRenderer) Render(w io.Writer, value interface{}) error {
	return json.NewEncoder(w).Encode(value)
}

// csvRenderer renders a sequence of mappings as CSV. The field order is
// taken from the sorted keys of the first row; the header row capitalizes
// the first word of each field name.
type csvRenderer struct{}

func (csvRenderer) ContentType() string { return "text/csv; charset=utf-8" }

func (csvRenderer) Render(w io.Writer, value interface{}) error {
	rows, err := toRows(value)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	fields := sortedKeys(rows[0])
	cw := csv.NewWriter(w)
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = capitalize(strings.Join(strings.Split(f, "_"), " "))
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		record := make([]string, len(fields))
		for i, f := range fields {
			if v := row[f]; v != nil {
				record[i] = fmt.Sprint(v)
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func toRows(value interface{}) ([]map[string]interface{}, error) {
	switch v := value.(type) {
	case []map[string]interface{}:
		return v, nil
	case []interface{}:
		rows := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			row, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("csv rendering needs a sequence of mappings, got %v", reflect.TypeOf(item))
			}
			rows = append(rows, row)
		}
		return rows, nil
	case map[string]interface{}:
		// a payload wrapping a single sequence renders as that sequence
		if len(v) == 1 {
			for _, inner := range v {
				if rows, err := toRows(inner); err == nil {
					return rows, nil
				}
			}
		}
		return []map[string]interface{}{v}, nil
	}
	return nil, fmt.Errorf("csv rendering needs a sequence of mappings, got %v", reflect.TypeOf(value))
}

func sortedKeys(row map[string]interface{}) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
