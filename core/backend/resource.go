// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/resourceful/core"
	"github.com/relabs-tech/resourceful/core/access"
	"github.com/relabs-tech/resourceful/core/logger"
	"github.com/relabs-tech/resourceful/core/render"
	"github.com/relabs-tech/resourceful/core/resource"
	"github.com/relabs-tech/resourceful/core/settings"
)

// Options configure one AddResource call.
type Options struct {
	// Name is the base route name. If empty, it is derived from the
	// resource's type name by converting to snake case and stripping a
	// trailing "Resource".
	Name string
	// Path is the base route path. If empty, it is computed from the
	// unprefixed name by replacing dots with slashes and underscores with
	// dashes.
	Path string
	// Segments are additional path segments joined to the base path, for
	// example "{id}". Segments must be relative, they must not start with
	// a slash.
	Segments []string
	// Renderers to generate routes and views for. Default: json. For each
	// renderer an extension-qualified route is generated; one additional
	// route without extension selects the renderer by Accept header.
	Renderers []string
	// AllowedMethods is an explicit allow-list of lower-case method
	// names. Every entry must exist on the resource. If empty, the
	// methods are derived from the capabilities of the resource.
	AllowedMethods []string
	// ACL is attached to the descriptor. If nil and the resource carries
	// no ACL of its own, the settings' default ACL is attached.
	ACL access.ACL
	// ResourceArgs configure the resource before registration. The
	// resource must implement resource.Configurable to accept them.
	ResourceArgs map[string]interface{}
	// ViewArgs apply to every generated view. Supported: "http_cache"
	// (seconds, response cache lifetime).
	ViewArgs map[string]interface{}
	// MethodViewArgs override ViewArgs per lower-case method name.
	MethodViewArgs map[string]map[string]interface{}
	// Store backs the resource's entity collection. It is handed to the
	// resource through the per-request resource.Request.
	Store resource.Store

	// NamePrefix and PathPrefix are prepended to the generated name and
	// path. They are normally set through scopes, not directly.
	NamePrefix string
	PathPrefix string
}

// Descriptor describes one registered resource. It is created once per
// AddResource call and immutable after registration.
type Descriptor struct {
	Name              string
	Path              string
	AllowedMethods    []string
	MethodsNotAllowed []string
	Renderers         []string
	Accepts           []string
	ACL               access.ACL
	ResourceArgs      map[string]interface{}
	Routes            []RouteBinding
}

// RouteBinding is one generated route. Accept is nil for the
// extension-qualified routes which match by URL extension; the negotiated
// route carries the ordered content types of all renderers.
type RouteBinding struct {
	RouteName string
	Path      string
	Accept    []string
	Methods   []string
}

type methodBinding struct {
	verb     string
	method   string
	viewArgs map[string]interface{}
}

// AddResource adds routes and views for a resource. The resource must
// implement at least one of the capability interfaces of the resource
// package. AddResource panics on configuration errors, it is meant to be
// called during startup only.
func (b *Backend) AddResource(res interface{}, options Options) *Descriptor {
	nillog := logger.Default()
	resourceName := typeName(res)

	name := options.Name
	if name == "" {
		name = core.TypeNameToRouteName(resourceName, "resource")
		nillog.Debugln("computed route name:", name)
	}

	// the default path derives from the unprefixed name; prefixes for the
	// path come exclusively through PathPrefix
	path := options.Path
	if path == "" {
		path = core.RouteNameToPath(name)
		nillog.Debugln("computed route path:", path)
	}

	if options.NamePrefix != "" {
		if name != "" {
			name = options.NamePrefix + "." + name
		} else {
			name = options.NamePrefix
		}
	}
	if options.PathPrefix != "" {
		path = core.JoinPath(options.PathPrefix, path)
	}
	if len(options.Segments) > 0 {
		path = core.JoinPath(append([]string{path}, options.Segments...)...)
	}

	if len(options.ResourceArgs) > 0 {
		configurable, ok := res.(resource.Configurable)
		if !ok {
			panic(fmt.Errorf("resource %s does not accept resource arguments", resourceName))
		}
		if err := configurable.Configure(options.ResourceArgs); err != nil {
			panic(fmt.Errorf("configuration of resource %s failed: %s", resourceName, err))
		}
	}

	acl := options.ACL
	if acl == nil {
		if withACL, ok := res.(access.HasACL); ok {
			acl = withACL.ACL()
		} else if b.settings.DefaultACL != nil {
			nillog.Debugln("using default ACL for resource:", resourceName)
			acl = b.settings.DefaultACL
		}
	}

	resourceMethods := b.settings.ResourceMethods
	if len(resourceMethods) == 0 {
		resourceMethods = settings.DefaultResourceMethods
	}

	var bindings []methodBinding
	var allowed, notAllowed []string

	addBinding := func(method string) bool {
		if !knownContractMethod(method) {
			panic(fmt.Errorf("view has no method %q corresponding to resource method %q on resource: %s",
				method, method, resourceName))
		}
		if !hasContractMethod(res, method) {
			return false
		}
		viewArgs, err := mergeViewArgs(options.ViewArgs, options.MethodViewArgs[method])
		if err != nil {
			panic(fmt.Errorf("resource %s: %s", resourceName, err))
		}
		bindings = append(bindings, methodBinding{
			verb:     strings.ToUpper(method),
			method:   method,
			viewArgs: viewArgs,
		})
		return true
	}

	if len(options.AllowedMethods) > 0 {
		for _, method := range options.AllowedMethods {
			method = strings.ToLower(method)
			if !addBinding(method) {
				panic(fmt.Errorf("the specified allowed method %q does not exist on resource: %s",
					strings.ToUpper(method), resourceName))
			}
			allowed = append(allowed, strings.ToUpper(method))
		}
		for _, method := range resourceMethods {
			if !containsFold(options.AllowedMethods, method) {
				notAllowed = append(notAllowed, strings.ToUpper(method))
			}
		}
	} else {
		for _, method := range resourceMethods {
			method = strings.ToLower(method)
			if addBinding(method) {
				allowed = append(allowed, strings.ToUpper(method))
			} else {
				notAllowed = append(notAllowed, strings.ToUpper(method))
			}
		}
	}

	if len(allowed) == 0 {
		panic(fmt.Errorf("no resource methods found for resource: %s", resourceName))
	}
	if len(notAllowed) > 0 {
		nillog.Debugln("resource", resourceName, "does not allow these methods:", strings.Join(notAllowed, ", "))
	}

	renderers := options.Renderers
	if len(renderers) == 0 {
		renderers = []string{"json"}
	}

	descriptor := &Descriptor{
		Name:              name,
		Path:              path,
		AllowedMethods:    allowed,
		MethodsNotAllowed: notAllowed,
		Renderers:         renderers,
		ACL:               acl,
		ResourceArgs:      options.ResourceArgs,
	}

	nillog.Debugln("create resource:", name)

	// one extension-qualified route per renderer; the extension selects
	// the renderer and the Accept header is ignored
	for _, rendererName := range renderers {
		if _, err := b.renderers.Renderer(rendererName); err != nil {
			panic(fmt.Errorf("resource %s: %s", resourceName, err))
		}
		ext, accept := render.ExtAndAccept(rendererName)
		descriptor.Accepts = append(descriptor.Accepts, accept)
		b.addRoute(descriptor, res, options.Store, name+"."+ext, path+"."+ext, rendererName, nil, bindings)
	}

	// one route without extension for all renderers; the renderer is
	// selected by the Accept header
	b.addRoute(descriptor, res, options.Store, name, path, "", descriptor.Accepts, bindings)

	b.resources = append(b.resources, descriptor)
	return descriptor
}

func (b *Backend) addRoute(d *Descriptor, res interface{}, store resource.Store,
	routeName, pattern, renderer string, accepts []string, bindings []methodBinding) {

	logger.Default().Debugln("  handle route:", pattern, strings.Join(d.AllowedMethods, ","))

	view := b.resourceView(d, res, store, renderer, bindings)
	b.router.Handle(pattern, handlers.CompressHandler(view)).Methods(d.AllowedMethods...).Name(routeName)
	if len(d.MethodsNotAllowed) > 0 {
		b.router.Handle(pattern, methodNotAllowedView(d.AllowedMethods)).Methods(d.MethodsNotAllowed...)
	}

	d.Routes = append(d.Routes, RouteBinding{
		RouteName: routeName,
		Path:      pattern,
		Accept:    accepts,
		Methods:   d.AllowedMethods,
	})
}

func (b *Backend) resourceView(d *Descriptor, res interface{}, store resource.Store,
	renderer string, bindings []methodBinding) http.HandlerFunc {

	byVerb := make(map[string]methodBinding, len(bindings))
	for _, binding := range bindings {
		byVerb[binding.verb] = binding
	}

	return func(w http.ResponseWriter, r *http.Request) {
		rlog := logger.FromContext(r.Context())
		rlog.Infoln("called route for", r.URL, r.Method)

		binding, ok := byVerb[r.Method]
		if !ok {
			w.Header().Set("Allow", strings.Join(d.AllowedMethods, ", "))
			core.WriteError(w, core.MethodNotAllowedf("method not allowed: %s", r.Method))
			return
		}

		rr := &resource.Request{
			HTTP:           r,
			Vars:           mux.Vars(r),
			Store:          store,
			Settings:       b.settings,
			AllowedMethods: d.AllowedMethods,
		}

		payload, err := callContractMethod(res, binding.method, rr)
		if err != nil {
			core.WriteError(w, err)
			return
		}

		applyViewArgs(w, binding.viewArgs)

		if r.Method == http.MethodOptions {
			for name, value := range payload {
				if s, ok := value.(string); ok {
					w.Header().Set(name, s)
				}
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if payload == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		selected := renderer
		if selected == "" {
			selected = render.Negotiate(r.Header.Get("Accept"), d.Renderers, d.Accepts)
		}
		rend, err := b.renderers.Renderer(selected)
		if err != nil {
			core.WriteError(w, err)
			return
		}

		value := b.renderers.Adapt(map[string]interface{}(payload), r)
		w.Header().Set("Content-Type", rend.ContentType())
		status := rr.Status()
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		if err := rend.Render(w, value); err != nil {
			rlog.Errorln("render failed:", err)
		}
	}
}

func knownContractMethod(method string) bool {
	switch method {
	case "get", "post", "put", "patch", "delete", "options":
		return true
	}
	return false
}

func hasContractMethod(res interface{}, method string) bool {
	switch method {
	case "get":
		_, ok := res.(resource.Getter)
		return ok
	case "post":
		_, ok := res.(resource.Poster)
		return ok
	case "put":
		_, ok := res.(resource.Putter)
		return ok
	case "patch":
		_, ok := res.(resource.Patcher)
		return ok
	case "delete":
		_, ok := res.(resource.Deleter)
		return ok
	case "options":
		_, ok := res.(resource.Optioner)
		return ok
	}
	return false
}

func callContractMethod(res interface{}, method string, r *resource.Request) (resource.Payload, error) {
	switch method {
	case "get":
		return res.(resource.Getter).Get(r)
	case "post":
		return res.(resource.Poster).Post(r)
	case "put":
		return res.(resource.Putter).Put(r)
	case "patch":
		return res.(resource.Patcher).Patch(r)
	case "delete":
		return res.(resource.Deleter).Delete(r)
	case "options":
		return res.(resource.Optioner).Options(r)
	}
	return nil, fmt.Errorf("no contract method %s", method)
}

func mergeViewArgs(common map[string]interface{}, perMethod map[string]interface{}) (map[string]interface{}, error) {
	merged := settings.Merge(common, perMethod)
	if _, ok := merged["http_cache"]; !ok {
		merged["http_cache"] = 0
	}
	for name, value := range merged {
		switch name {
		case "http_cache":
			switch value.(type) {
			case int, float64:
			default:
				return nil, fmt.Errorf("view argument http_cache: expected number, got %T", value)
			}
		default:
			return nil, fmt.Errorf("unknown view argument: %s", name)
		}
	}
	return merged, nil
}

func applyViewArgs(w http.ResponseWriter, viewArgs map[string]interface{}) {
	if seconds, ok := viewArgs["http_cache"]; ok {
		n := 0
		switch s := seconds.(type) {
		case int:
			n = s
		case float64:
			n = int(s)
		}
		if n <= 0 {
			w.Header().Set("Cache-Control", "max-age=0, must-revalidate")
		} else {
			w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d", n))
		}
	}
}

func typeName(res interface{}) string {
	t := reflect.TypeOf(res)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
