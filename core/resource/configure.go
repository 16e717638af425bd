package resource

import (
	"fmt"
)

// Configure applies merged resource arguments. Argument names follow the
// snake-case convention of the wire format so that scoped argument maps
// read like request payloads.
func (c *Collection) Configure(args map[string]interface{}) error {
	for name, value := range args {
		var err error
		switch name {
		case "key":
			c.Key, err = argString(name, value)
		case "item_key":
			c.ItemKey, err = argString(name, value)
		case "filtering_enabled":
			var enabled bool
			enabled, err = argBool(name, value)
			c.DisableFiltering = !enabled
		case "filters_to_skip":
			c.FiltersToSkip, err = argStringList(name, value)
		case "ordering_enabled":
			var enabled bool
			enabled, err = argBool(name, value)
			c.DisableOrdering = !enabled
		case "ordering_default":
			c.OrderingDefault, err = argStringList(name, value)
		case "pagination_enabled":
			var enabled bool
			enabled, err = argBool(name, value)
			c.DisablePagination = !enabled
		case "pagination_default_page_size":
			c.DefaultPageSize, err = argInt(name, value)
		case "pagination_max_page_size":
			c.MaxPageSize, err = argInt(name, value)
		case "eager_load_with":
			c.EagerLoadWith, err = argStringList(name, value)
		case "schema_id":
			c.SchemaID, err = argString(name, value)
		default:
			return fmt.Errorf("unknown resource argument: %s", name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Configure applies merged resource arguments.
func (i *Item) Configure(args map[string]interface{}) error {
	for name, value := range args {
		var err error
		switch name {
		case "key":
			i.Key, err = argString(name, value)
		case "eager_load_with":
			i.EagerLoadWith, err = argStringList(name, value)
		case "schema_id":
			i.SchemaID, err = argString(name, value)
		default:
			return fmt.Errorf("unknown resource argument: %s", name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func argString(name string, value interface{}) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("resource argument %s: expected string, got %T", name, value)
	}
	return s, nil
}

func argBool(name string, value interface{}) (bool, error) {
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("resource argument %s: expected bool, got %T", name, value)
	}
	return b, nil
}

func argInt(name string, value interface{}) (int, error) {
	switch n := value.(type) {
	case int:
		return n, nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("resource argument %s: expected number, got %T", name, value)
}

func argStringList(name string, value interface{}) ([]string, error) {
	switch list := value.(type) {
	case []string:
		return list, nil
	case []interface{}:
		result := make([]string, 0, len(list))
		for _, element := range list {
			s, ok := element.(string)
			if !ok {
				return nil, fmt.Errorf("resource argument %s: expected string element, got %T", name, element)
			}
			result = append(result, s)
		}
		return result, nil
	}
	return nil, fmt.Errorf("resource argument %s: expected string list, got %T", name, value)
}
