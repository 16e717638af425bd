// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package field projects a requested subset of fields from a domain object
into a plain mapping.

Field names may be dotted to reach through relations: requesting "a.b" on
an item whose "a" is a list applies the sub-projection to every element.
Sub-projections for the same relation merge, so "a.b" plus "a.c" yields one
list whose elements carry both keys. Field values that are callables are
invoked with the current request to support computed fields.
*/
package field

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/relabs-tech/resourceful/core"
)

// Callable is a computed field value. It is invoked with the current
// request during projection.
type Callable func(r *http.Request) interface{}

// Requested resolves the requested field set from the repeated "field"
// parameters or the comma-separated "fields" parameter of the request. The
// token "*" expands to the given default field set. Without any field
// parameters the default set is used.
func Requested(r *http.Request, defaults func() []string) ([]string, error) {
	specified := r.URL.Query()["field"]
	if len(specified) == 0 {
		if raw := r.URL.Query().Get("fields"); raw != "" {
			for _, f := range strings.Split(raw, ",") {
				specified = append(specified, strings.TrimSpace(f))
			}
		}
	}
	if len(specified) == 0 {
		specified = []string{"*"}
	}
	var fields []string
	seen := map[string]bool{}
	add := func(f string) {
		if f != "" && !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}
	for _, f := range specified {
		if f == "*" {
			for _, d := range defaults() {
				add(d)
			}
		} else {
			add(f)
		}
	}
	return fields, nil
}

// Project extracts the given fields from the item into a plain mapping.
// Items can be mappings or structs; struct fields are matched by their
// json tag first, then by the snake-cased field name.
func Project(r *http.Request, item interface{}, fields []string) (map[string]interface{}, error) {
	projected := map[string]interface{}{}
	for _, name := range fields {
		head, rest, nested := strings.Cut(name, ".")
		value, err := attribute(item, head)
		if err != nil {
			return nil, err
		}
		if callable, ok := value.(Callable); ok {
			value = callable(r)
		} else if callable, ok := value.(func(*http.Request) interface{}); ok {
			value = callable(r)
		}
		if !nested || value == nil {
			projected[head] = value
			continue
		}
		if isSequence(value) {
			result, err := projectElements(r, value, rest)
			if err != nil {
				return nil, err
			}
			if existing, ok := projected[head].([]map[string]interface{}); ok {
				// merge positionally into the list projected so far
				for i, sub := range result {
					if i < len(existing) {
						for k, v := range sub {
							existing[i][k] = v
						}
					}
				}
			} else {
				projected[head] = result
			}
		} else {
			result, err := Project(r, value, []string{rest})
			if err != nil {
				return nil, err
			}
			if existing, ok := projected[head].(map[string]interface{}); ok {
				for k, v := range result {
					existing[k] = v
				}
			} else {
				projected[head] = result
			}
		}
	}
	return projected, nil
}

func projectElements(r *http.Request, value interface{}, rest string) ([]map[string]interface{}, error) {
	v := reflect.ValueOf(value)
	result := make([]map[string]interface{}, v.Len())
	for i := 0; i < v.Len(); i++ {
		sub, err := Project(r, v.Index(i).Interface(), []string{rest})
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func attribute(item interface{}, name string) (interface{}, error) {
	switch m := item.(type) {
	case map[string]interface{}:
		// a mapping item may be sparse; a key it does not carry projects
		// as nil, like an unset column
		return m[name], nil
	}
	v := reflect.ValueOf(item)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, core.ClientErrorf("unknown field: %s", name)
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, core.ClientErrorf("unknown field: %s", name)
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue
		}
		tag := strings.Split(f.Tag.Get("json"), ",")[0]
		if tag == name || (tag == "" && core.CamelToSnake(f.Name) == name) {
			return v.Field(i).Interface(), nil
		}
	}
	return nil, core.ClientErrorf("unknown field: %s", name)
}

func isSequence(value interface{}) bool {
	if value == nil {
		return false
	}
	switch value.(type) {
	case string, []byte:
		return false
	}
	kind := reflect.TypeOf(value).Kind()
	return kind == reflect.Slice || kind == reflect.Array
}
