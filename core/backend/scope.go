package backend

import (
	"github.com/relabs-tech/resourceful/core"
	"github.com/relabs-tech/resourceful/core/settings"
)

// Scope is a nestable registration context. It accumulates a name prefix,
// a path prefix and merged resource arguments, and forwards AddResource
// calls to the backend with those applied.
//
// Scopes are a startup facility like the backend itself; they are not
// safe for concurrent use.
type Scope struct {
	backend      *Backend
	namePrefix   string
	pathPrefix   string
	resourceArgs map[string]interface{}
}

// Scope creates a registration scope. Name prefixes join with a dot, path
// prefixes with a slash. The resource arguments merge into the arguments
// of every AddResource call in the scope, with the call's own arguments
// winning on conflict.
func (b *Backend) Scope(namePrefix, pathPrefix string, resourceArgs map[string]interface{}) *Scope {
	return &Scope{
		backend:      b,
		namePrefix:   namePrefix,
		pathPrefix:   pathPrefix,
		resourceArgs: resourceArgs,
	}
}

// Scope creates a nested scope. The nested scope inherits and extends the
// parent's prefixes and argument mapping, it never replaces them.
func (s *Scope) Scope(namePrefix, pathPrefix string, resourceArgs map[string]interface{}) *Scope {
	if s.namePrefix != "" && namePrefix != "" {
		namePrefix = s.namePrefix + "." + namePrefix
	} else if s.namePrefix != "" {
		namePrefix = s.namePrefix
	}
	if s.pathPrefix != "" && pathPrefix != "" {
		pathPrefix = core.JoinPath(s.pathPrefix, pathPrefix)
	} else if s.pathPrefix != "" {
		pathPrefix = s.pathPrefix
	}
	return &Scope{
		backend:      s.backend,
		namePrefix:   namePrefix,
		pathPrefix:   pathPrefix,
		resourceArgs: settings.Merge(s.resourceArgs, resourceArgs),
	}
}

// AddResource forwards to Backend.AddResource with the scope's prefixes
// and merged resource arguments applied.
func (s *Scope) AddResource(res interface{}, options Options) *Descriptor {
	if s.namePrefix != "" && options.NamePrefix != "" {
		options.NamePrefix = s.namePrefix + "." + options.NamePrefix
	} else if s.namePrefix != "" {
		options.NamePrefix = s.namePrefix
	}
	if s.pathPrefix != "" && options.PathPrefix != "" {
		options.PathPrefix = core.JoinPath(s.pathPrefix, options.PathPrefix)
	} else if s.pathPrefix != "" {
		options.PathPrefix = s.pathPrefix
	}
	options.ResourceArgs = settings.Merge(s.resourceArgs, options.ResourceArgs)
	return s.backend.AddResource(res, options)
}

// WithScope runs body within a registration scope. This reads much like
// nested route declarations:
//
//	b.WithScope("api", "", nil, func(api *Scope) {
//		api.AddResource(&ArticlesResource{}, backend.Options{...})
//	})
func (b *Backend) WithScope(namePrefix, pathPrefix string, resourceArgs map[string]interface{}, body func(*Scope)) {
	body(b.Scope(namePrefix, pathPrefix, resourceArgs))
}

// WithScope runs body within a nested scope.
func (s *Scope) WithScope(namePrefix, pathPrefix string, resourceArgs map[string]interface{}, body func(*Scope)) {
	body(s.Scope(namePrefix, pathPrefix, resourceArgs))
}
