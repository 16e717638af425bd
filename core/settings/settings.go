// Package settings holds the process-wide framework settings and the
// deep-merge helper used for composable resource arguments.
package settings

import (
	"net/http"

	"github.com/relabs-tech/resourceful/core/access"
)

// DefaultResourceMethods are the methods which are considered valid
// resource methods unless configured otherwise.
var DefaultResourceMethods = []string{"delete", "get", "options", "patch", "post", "put"}

// Settings are the framework-wide settings. They are fixed at startup and
// shared read-only by all resources registered on a backend.
type Settings struct {
	// DefaultACL is attached to resources which do not bring their own ACL.
	DefaultACL access.ACL

	// ResourceMethods are the method names considered during capability
	// introspection at registration time.
	ResourceMethods []string

	// DefaultResponseFields computes the default field set for an item when
	// a request asks for "*". If nil, the declared columns are used.
	DefaultResponseFields func(r *http.Request, item interface{}) []string

	// ItemProcessor post-processes every projected item before it is
	// included in a response. If nil, items are returned as is.
	ItemProcessor func(r *http.Request, item map[string]interface{}) (map[string]interface{}, error)
}

// Default returns the default settings.
func Default() *Settings {
	return &Settings{
		ResourceMethods: DefaultResourceMethods,
	}
}

// Merge merges all maps into a new one. Maps later in the list take
// precedence over earlier ones; the merge descends into nested maps, so a
// child map extends rather than replaces its parent. Nil maps are treated
// as empty.
func Merge(maps ...map[string]interface{}) map[string]interface{} {
	merged := map[string]interface{}{}
	for _, m := range maps {
		mergeInto(merged, m)
	}
	return merged
}

func mergeInto(dst, src map[string]interface{}) {
	for k, v := range src {
		if sub, ok := v.(map[string]interface{}); ok {
			existing, _ := dst[k].(map[string]interface{})
			copied := map[string]interface{}{}
			mergeInto(copied, existing)
			mergeInto(copied, sub)
			dst[k] = copied
			continue
		}
		dst[k] = v
	}
}
