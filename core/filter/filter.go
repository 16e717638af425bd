// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package filter compiles the request filter language into named predicate
specifications.

A raw filter object maps keys of the form "column" or "column operator" to
values. Without an operator token the predicate defaults to equality, or to
a membership test when the value is a sequence:

	{"a": 1, "b": ["x", "y"], "c <": 4}

compiles to a = 1, b in ('x','y'), c < 4. The reserved key "$operator"
selects the boolean combinator joining all predicates, "and" by default.
*/
package filter

import (
	"reflect"
	"strings"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/resourceful/core"
)

// Operator is a comparison operator of a compiled filter predicate.
type Operator string

// the supported operator table
const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpIn           Operator = "in"
	OpNotIn        Operator = "not in"
	OpLike         Operator = "like"
	OpNotLike      Operator = "not like"
	OpILike        Operator = "ilike"
	OpNotILike     Operator = "not ilike"
	OpIs           Operator = "is"
	OpIsNot        Operator = "is not"
)

var supportedOperators = map[Operator]bool{
	OpEqual: true, OpNotEqual: true,
	OpLess: true, OpLessEqual: true, OpGreater: true, OpGreaterEqual: true,
	OpIn: true, OpNotIn: true,
	OpLike: true, OpNotLike: true, OpILike: true, OpNotILike: true,
	OpIs: true, OpIsNot: true,
}

// Combinator joins compiled predicates into one boolean expression.
type Combinator string

// the supported boolean combinators
const (
	CombinatorAnd Combinator = "and"
	CombinatorOr  Combinator = "or"
)

// OperatorKey is the reserved filter key selecting the combinator.
const OperatorKey = "$operator"

// Spec is a compiled (operator, value) predicate bound to a column name.
type Spec struct {
	Operator Operator
	Value    interface{}
}

// Filters is the result of compiling a raw filter object.
type Filters struct {
	Specs      map[string]Spec
	Combinator Combinator
}

// Empty reports whether no predicates were compiled.
func (f Filters) Empty() bool {
	return len(f.Specs) == 0
}

// Compile parses a raw filter object into named predicate specs.
// Compilation is purely syntactic; column names are validated later, when
// predicates are applied to a query.
func Compile(raw map[string]interface{}) (Filters, error) {
	filters := Filters{
		Specs:      map[string]Spec{},
		Combinator: CombinatorAnd,
	}
	for key, value := range raw {
		if key == OperatorKey {
			s, _ := value.(string)
			switch Combinator(strings.ToLower(s)) {
			case CombinatorAnd:
				filters.Combinator = CombinatorAnd
			case CombinatorOr:
				filters.Combinator = CombinatorOr
			default:
				return Filters{}, core.ClientErrorf("unsupported boolean operator: %v", value)
			}
			continue
		}
		name := key
		var op Operator
		if i := strings.Index(key, " "); i >= 0 {
			name = key[:i]
			op = Operator(strings.ToLower(strings.TrimSpace(key[i+1:])))
			if !supportedOperators[op] {
				return Filters{}, core.ClientErrorf("unsupported filter operator: %s", op)
			}
		} else if IsSequence(value) {
			op = OpIn
		} else {
			op = OpEqual
		}
		filters.Specs[name] = Spec{Operator: op, Value: value}
	}
	return filters, nil
}

// FromMatchVars compiles path match parameters into equality predicates.
// Each raw value is JSON-decoded when possible, so numeric identifiers
// compare as numbers.
func FromMatchVars(vars map[string]string) Filters {
	filters := Filters{
		Specs:      map[string]Spec{},
		Combinator: CombinatorAnd,
	}
	for name, raw := range vars {
		var value interface{} = raw
		var decoded interface{}
		if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
			value = decoded
		}
		filters.Specs[name] = Spec{Operator: OpEqual, Value: value}
	}
	return filters
}

// ValueConverter converts a filter value before it is applied to a query,
// for example a date string into a timestamp.
type ValueConverter func(interface{}) (interface{}, error)

// Convert applies the named converters to the compiled values, element-wise
// for sequence values. A converter failure is a client error naming the
// filter.
func (f Filters) Convert(converters map[string]ValueConverter) error {
	for name, converter := range converters {
		spec, ok := f.Specs[name]
		if !ok {
			continue
		}
		if IsSequence(spec.Value) {
			v := reflect.ValueOf(spec.Value)
			converted := make([]interface{}, v.Len())
			for i := 0; i < v.Len(); i++ {
				c, err := converter(v.Index(i).Interface())
				if err != nil {
					return core.ClientErrorf("could not convert value for filter %s: %v", name, err)
				}
				converted[i] = c
			}
			spec.Value = converted
		} else {
			c, err := converter(spec.Value)
			if err != nil {
				return core.ClientErrorf("could not convert value for filter %s: %v", name, err)
			}
			spec.Value = c
		}
		f.Specs[name] = spec
	}
	return nil
}

// IsSequence reports whether the value is a non-string sequence.
func IsSequence(value interface{}) bool {
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
