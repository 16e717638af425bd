package backend

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/resourceful/core"
	"github.com/relabs-tech/resourceful/core/logger"
	"github.com/relabs-tech/resourceful/core/render"
	"github.com/relabs-tech/resourceful/core/settings"
)

// Backend is the generic rest backend. It owns the router, the renderer
// registry and the table of registered resources.
//
// Registration runs once, single threaded, during process startup; the
// produced route table is immutable afterwards and request handling is
// stateless with respect to the backend's own state.
type Backend struct {
	router    *mux.Router
	settings  *settings.Settings
	renderers *render.Registry
	resources []*Descriptor

	// handler is the router, possibly wrapped by pre-routing middleware
	// such as post tunneling
	handler http.Handler
}

// Builder is a builder helper for the Backend
type Builder struct {
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Settings are the framework-wide settings. This is optional, the
	// defaults apply when missing.
	Settings *settings.Settings
	// Renderers is the renderer registry. This is optional; a registry
	// with the json and csv renderers and the default value adapters is
	// created when missing.
	Renderers *render.Registry
}

// New realizes the actual backend. It attaches the request logger to the
// router and installs the method-not-allowed fallback.
func New(bb *Builder) *Backend {
	if bb.Router == nil {
		panic("Router is missing")
	}

	s := bb.Settings
	if s == nil {
		s = settings.Default()
	}
	renderers := bb.Renderers
	if renderers == nil {
		renderers = render.NewRegistry()
	}

	b := &Backend{
		router:    bb.Router,
		settings:  s,
		renderers: renderers,
	}

	b.handler = b.router

	logger.AddRequestID(b.router)
	b.router.MethodNotAllowedHandler = MethodNotAllowedHandler()
	b.handleVersion(b.router)
	return b
}

// ServeHTTP makes the backend a http.Handler. Unlike serving the router
// directly, this includes the pre-routing middleware such as post
// tunneling.
func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.handler.ServeHTTP(w, r)
}

// Router returns the backend's router.
func (b *Backend) Router() *mux.Router {
	return b.router
}

// Renderers returns the backend's renderer registry.
func (b *Backend) Renderers() *render.Registry {
	return b.renderers
}

// Resources returns the descriptors of all registered resources.
func (b *Backend) Resources() []*Descriptor {
	return b.resources
}

// MethodNotAllowedHandler returns a handler which responds with 405. It
// is installed as the router's fallback and is also usable as an
// explicit view.
func MethodNotAllowedHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		core.WriteError(w, core.MethodNotAllowedf("method not allowed: %s", r.Method))
	})
}

func methodNotAllowedView(allowed []string) http.HandlerFunc {
	allow := strings.Join(allowed, ", ")
	return func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method, " (method not allowed)")
		w.Header().Set("Allow", allow)
		core.WriteError(w, core.MethodNotAllowedf("method not allowed: %s", r.Method))
	}
}
