/*
Package backend synthesizes REST routes and content-negotiated views for
data-backed resources.

A resource is any type implementing a subset of the capability interfaces
from the resource package: Getter, Poster, Putter, Patcher, Deleter and
Optioner. The backend introspects these capabilities once, at startup,
derives route names and paths from the resource's type name, and wires
one route per declared renderer plus a negotiated catch-all route on a
mux router.

Example:

	router := mux.NewRouter()
	b := backend.New(&backend.Builder{Router: router})

	articles := query.NewTable("id", "id", "title", "rating")

	b.WithScope("api", "/api", nil, func(api *backend.Scope) {
		api.AddResource(&resource.Collection{}, backend.Options{
			Name:  "articles",
			Store: articles,
		})
		api.AddResource(&resource.Item{}, backend.Options{
			Name:     "article",
			Path:     "/articles",
			Segments: []string{"{id}"},
			Store:    articles,
		})
	})

This creates the following routes:

	GET /api/articles
	GET /api/articles.json
	POST /api/articles
	POST /api/articles.json
	OPTIONS /api/articles
	GET /api/articles/{id}
	PUT /api/articles/{id}
	PATCH /api/articles/{id}
	DELETE /api/articles/{id}
	OPTIONS /api/articles/{id}
	... plus the .json variants of the item routes

Request methods outside a resource's capabilities answer 405 with an
Allow header. The extension routes select the renderer by URL extension;
the route without extension selects it from the Accept header.

Collections support filtering, ordering and pagination through request
parameters:

	GET /api/articles?filters={"rating >=": 4}&ordering=-rating&page=2

See the query package for the filter and pagination semantics and the
field package for response field selection.
*/
package backend
