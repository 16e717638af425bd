package core

import (
	"path"
	"strings"
	"unicode"
)

// CamelToSnake converts a camel case name to its snake case form.
//
// This is the algorithm used to derive route names from resource type names.
// Acronyms stay together: "HTTPServer" becomes "http_server".
func CamelToSnake(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if (unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower)) && prev != '_' {
				b.WriteRune('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// TypeNameToRouteName converts a resource type name to a route name. The
// name is converted to snake case and the given suffix, "resource" by
// default, is stripped from the end.
//
//	TypeNameToRouteName("WorkOrdersResource", "") -> "work_orders"
func TypeNameToRouteName(name, suffix string) string {
	if suffix == "" {
		suffix = "resource"
	}
	name = CamelToSnake(name)
	if trimmed := strings.TrimSuffix(name, "_"+suffix); trimmed != "" {
		name = trimmed
	}
	return name
}

// RouteNameToPath converts a route name to a URL path: dots become path
// separators, underscores become dashes.
//
//	RouteNameToPath("api.work_orders") -> "/api/work-orders"
func RouteNameToPath(name string) string {
	p := strings.ReplaceAll(name, ".", "/")
	p = strings.ReplaceAll(p, "_", "-")
	p = strings.Trim(p, "/")
	return "/" + p
}

// JoinPath joins path segments the posix way, keeping a single leading
// slash. Empty segments are skipped so that a prefix of "" joins cleanly.
func JoinPath(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			parts = append(parts, s)
		}
	}
	joined := path.Join(parts...)
	if !strings.HasPrefix(joined, "/") {
		joined = "/" + joined
	}
	return joined
}
