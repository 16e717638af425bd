/*
Package param extracts typed values from request query parameters.

Parameters are single-valued by default; converters turn raw strings into
booleans, integers, lists or decoded JSON. Malformed values always surface
as a client error naming the offending parameter, never as a silent
default.
*/
package param

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/resourceful/core"
)

// ErrNotPresent is returned when a parameter is absent and no default value
// was given.
type ErrNotPresent struct{ Name string }

func (e ErrNotPresent) Error() string {
	return fmt.Sprintf("parameter not present: %q", e.Name)
}

// ErrMultipleValues is returned when a single-valued parameter is present
// more than once.
type ErrMultipleValues struct{ Name string }

func (e ErrMultipleValues) Error() string {
	return fmt.Sprintf("multiple values present for parameter: %q", e.Name)
}

// Converter converts a raw parameter string into a typed value.
type Converter func(string) (interface{}, error)

// AsBool accepts only the values "1", "true", "0" and "false",
// case-insensitively.
func AsBool(s string) (interface{}, error) {
	switch strings.ToLower(s) {
	case "1", "true":
		return true, nil
	case "0", "false":
		return false, nil
	}
	return nil, fmt.Errorf(`expected one of "1", "true", "0", "false"`)
}

// AsInt converts to an integer.
func AsInt(s string) (interface{}, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// AsList splits on comma, trimming whitespace from each element.
func AsList(s string) (interface{}, error) {
	items := strings.Split(strings.TrimSpace(s), ",")
	for i := range items {
		items[i] = strings.TrimSpace(items[i])
	}
	return items, nil
}

// AsJSON decodes the value as JSON.
func AsJSON(s string) (interface{}, error) {
	var value interface{}
	if err := json.Unmarshal([]byte(s), &value); err != nil {
		return nil, err
	}
	return value, nil
}

type options struct {
	converter  Converter
	strip      bool
	keepBlank  bool
	hasDefault bool
	def        interface{}
}

// Option configures a Get or GetMulti call.
type Option func(*options)

// With sets the converter applied to each raw value.
func With(c Converter) Option {
	return func(o *options) { o.converter = c }
}

// Default sets the value returned when the parameter is absent. Without a
// default, an absent parameter is an ErrNotPresent.
func Default(value interface{}) Option {
	return func(o *options) { o.hasDefault = true; o.def = value }
}

// Strip trims whitespace from raw values before conversion.
func Strip() Option {
	return func(o *options) { o.strip = true }
}

// KeepBlank disables the conversion of blank values to nil.
func KeepBlank() Option {
	return func(o *options) { o.keepBlank = true }
}

// Get returns the named parameter from the request's query string,
// converted according to the options. Blank values ("a=") convert to nil
// unless KeepBlank is given. A parameter present more than once is an
// ErrMultipleValues.
func Get(r *http.Request, name string, opts ...Option) (interface{}, error) {
	o := collect(opts)
	values, ok := r.URL.Query()[name]
	if !ok {
		if o.hasDefault {
			return o.def, nil
		}
		return nil, ErrNotPresent{Name: name}
	}
	if len(values) > 1 {
		return nil, ErrMultipleValues{Name: name}
	}
	return convert(name, values[0], o)
}

// GetMulti collects all values of the named parameter into a list, even if
// there is only one. An absent parameter without a default is an
// ErrNotPresent.
func GetMulti(r *http.Request, name string, opts ...Option) ([]interface{}, error) {
	o := collect(opts)
	values, ok := r.URL.Query()[name]
	if !ok {
		if o.hasDefault {
			if o.def == nil {
				return nil, nil
			}
			return o.def.([]interface{}), nil
		}
		return nil, ErrNotPresent{Name: name}
	}
	converted := make([]interface{}, len(values))
	for i, v := range values {
		c, err := convert(name, v, o)
		if err != nil {
			return nil, err
		}
		converted[i] = c
	}
	return converted, nil
}

// GetBool returns the named parameter converted to a boolean, with special
// handling of flag parameters: a bare "name" (no equals sign) in the query
// string is true and a bare "!name" is false. Flag form takes precedence
// over a normal "name=value" parameter, but only when exactly one flag form
// is present and the other is absent.
func GetBool(r *http.Request, name string, opts ...Option) (interface{}, error) {
	var flags []string
	// splitting is based on url.ParseQuery
	for _, p := range strings.Split(r.URL.RawQuery, "&") {
		if strings.Contains(p, "=") {
			continue
		}
		if strings.HasPrefix(p, "!") {
			if strings.TrimSpace(p[1:]) != "" {
				flags = append(flags, p)
			}
		} else if strings.TrimSpace(p) != "" {
			flags = append(flags, p)
		}
	}
	if len(flags) > 0 {
		count, negated := 0, 0
		for _, f := range flags {
			switch f {
			case name:
				count++
			case "!" + name:
				negated++
			}
		}
		if count == 1 && negated == 0 {
			return true, nil
		}
		if count == 0 && negated == 1 {
			return false, nil
		}
	}
	opts = append(opts, With(AsBool))
	return Get(r, name, opts...)
}

func collect(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func convert(name, raw string, o options) (interface{}, error) {
	if o.strip {
		raw = strings.TrimSpace(raw)
	}
	if raw == "" && !o.keepBlank {
		return nil, nil
	}
	if o.converter == nil {
		return raw, nil
	}
	value, err := o.converter(raw)
	if err != nil {
		return nil, core.ClientErrorf("could not parse parameter %s: %q", name, raw)
	}
	return value, nil
}
