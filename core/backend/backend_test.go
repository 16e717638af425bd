package backend_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/resourceful/core/backend"
	"github.com/relabs-tech/resourceful/core/client"
	"github.com/relabs-tech/resourceful/core/query"
	"github.com/relabs-tech/resourceful/core/resource"
)

// ArticlesResource is the article collection.
type ArticlesResource struct {
	resource.Collection
}

// ArticleResource is a single article, addressed by id.
type ArticleResource struct {
	resource.Item
}

func seedArticles(t *testing.T) *query.Table {
	t.Helper()
	table := query.NewTable("id", "id", "title", "rating")
	ctx := context.Background()
	require.NoError(t, table.Add(ctx, query.Item{"id": 1.0, "title": "first", "rating": 3.0}))
	require.NoError(t, table.Add(ctx, query.Item{"id": 2.0, "title": "second", "rating": 5.0}))
	require.NoError(t, table.Add(ctx, query.Item{"id": 3.0, "title": "third", "rating": 4.0}))
	return table
}

func newBackend(t *testing.T) (*backend.Backend, *query.Table) {
	t.Helper()
	b := backend.New(&backend.Builder{Router: mux.NewRouter()})
	table := seedArticles(t)
	b.AddResource(&ArticlesResource{}, backend.Options{Store: table})
	b.AddResource(&ArticleResource{}, backend.Options{
		Path:     "/articles",
		Segments: []string{"{id}"},
		Store:    table,
	})
	return b, table
}

func TestDerivedDescriptor(t *testing.T) {
	b := backend.New(&backend.Builder{Router: mux.NewRouter()})
	table := seedArticles(t)
	d := b.AddResource(&ArticlesResource{}, backend.Options{Store: table})

	assert.Equal(t, "articles", d.Name)
	assert.Equal(t, "/articles", d.Path)
	// capabilities intersected with the default method set, in the
	// default set's order
	assert.Equal(t, []string{"GET", "OPTIONS", "POST"}, d.AllowedMethods)
	assert.Equal(t, []string{"DELETE", "PATCH", "PUT"}, d.MethodsNotAllowed)

	// one extension route per renderer plus the negotiated route
	require.Len(t, d.Routes, 2)
	assert.Equal(t, "articles.json", d.Routes[0].RouteName)
	assert.Equal(t, "/articles.json", d.Routes[0].Path)
	assert.Nil(t, d.Routes[0].Accept)
	assert.Equal(t, "articles", d.Routes[1].RouteName)
	assert.Equal(t, "/articles", d.Routes[1].Path)
	assert.Equal(t, []string{"application/json"}, d.Routes[1].Accept)
}

func TestListArticles(t *testing.T) {
	b, _ := newBackend(t)
	c := client.NewWithHandler(b)

	var result map[string]interface{}
	status, err := c.Get("/articles?ordering=-rating", &result)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	items, ok := result["items"].([]interface{})
	require.True(t, ok)
	require.Len(t, items, 3)
	first := items[0].(map[string]interface{})
	assert.Equal(t, "second", first["title"])

	pagination, ok := result["pagination_data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 1.0, pagination["pages"])
	assert.Equal(t, 3.0, pagination["count"])
}

func TestListArticlesFiltered(t *testing.T) {
	b, _ := newBackend(t)
	c := client.NewWithHandler(b)

	var result map[string]interface{}
	_, err := c.Get("/articles?filters="+url.QueryEscape(`{"rating >=": 4}`), &result)
	require.NoError(t, err)
	assert.Len(t, result["items"], 2)

	status, err := c.Get("/articles?filters="+url.QueryEscape(`{"bogus": 1}`), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestListObjectValuedFilter(t *testing.T) {
	b := backend.New(&backend.Builder{Router: mux.NewRouter()})
	table := query.NewTable("id", "id", "title", "meta")
	ctx := context.Background()
	require.NoError(t, table.Add(ctx, query.Item{"id": 1.0, "title": "first", "meta": map[string]interface{}{"a": 1.0}}))
	require.NoError(t, table.Add(ctx, query.Item{"id": 2.0, "title": "second", "meta": map[string]interface{}{"a": 2.0}}))
	b.AddResource(&ArticlesResource{}, backend.Options{Store: table})
	c := client.NewWithHandler(b)

	var result map[string]interface{}
	status, err := c.Get("/articles?filters="+url.QueryEscape(`{"meta": {"a": 1}}`), &result)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	items, ok := result["items"].([]interface{})
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, "first", items[0].(map[string]interface{})["title"])
}

func TestCreateSparseItemThenList(t *testing.T) {
	b, _ := newBackend(t)
	c := client.NewWithHandler(b)

	status, err := c.Post("/articles", map[string]interface{}{"id": 9, "title": "no rating"}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)

	// the sparse row projects its missing column as null instead of
	// failing the whole listing
	var result map[string]interface{}
	_, err = c.Get("/articles", &result)
	require.NoError(t, err)
	items, ok := result["items"].([]interface{})
	require.True(t, ok)
	require.Len(t, items, 4)

	var sparse map[string]interface{}
	for _, raw := range items {
		item := raw.(map[string]interface{})
		if item["title"] == "no rating" {
			sparse = item
		}
	}
	require.NotNil(t, sparse)
	_, present := sparse["rating"]
	assert.True(t, present)
	assert.Nil(t, sparse["rating"])
}

func TestListPagination(t *testing.T) {
	b := backend.New(&backend.Builder{Router: mux.NewRouter()})
	table := query.NewTable("id", "id", "title")
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		require.NoError(t, table.Add(ctx, query.Item{"id": float64(i), "title": "x"}))
	}
	b.AddResource(&ArticlesResource{}, backend.Options{Store: table})
	c := client.NewWithHandler(b)

	var result map[string]interface{}
	_, err := c.Get("/articles?page=2&page_size=2&ordering=id", &result)
	require.NoError(t, err)
	assert.Len(t, result["items"], 2)

	pagination := result["pagination_data"].(map[string]interface{})
	assert.Equal(t, 3.0, pagination["pages"])
	assert.Equal(t, 2.0, pagination["current_page"])
	assert.Equal(t, 1.0, pagination["previous_page"])
	assert.Equal(t, 3.0, pagination["next_page"])

	// the "*" token disables pagination
	var all map[string]interface{}
	_, err = c.Get("/articles?page_size=*", &all)
	require.NoError(t, err)
	assert.Len(t, all["items"], 5)
	_, present := all["pagination_data"]
	assert.False(t, present)
}

func TestGetArticle(t *testing.T) {
	b, _ := newBackend(t)
	c := client.NewWithHandler(b)

	var result map[string]interface{}
	status, err := c.Get("/articles/2", &result)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	item := result["item"].(map[string]interface{})
	assert.Equal(t, "second", item["title"])
}

func TestGetArticleFields(t *testing.T) {
	b, _ := newBackend(t)
	c := client.NewWithHandler(b)

	var result map[string]interface{}
	_, err := c.Get("/articles/2?fields=title", &result)
	require.NoError(t, err)
	item := result["item"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"title": "second"}, item)
}

func TestGetArticleNotFound(t *testing.T) {
	b, _ := newBackend(t)
	c := client.NewWithHandler(b)

	status, err := c.Get("/articles/99", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, err.Error(), "99")
}

func TestCreateArticle(t *testing.T) {
	b, table := newBackend(t)
	c := client.NewWithHandler(b)

	var result map[string]interface{}
	status, err := c.Post("/articles", map[string]interface{}{"id": 4, "title": "fourth", "rating": 2}, &result)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)

	count, err := table.Query().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestCreateArticleFormBlankVersusJSON(t *testing.T) {
	b, table := newBackend(t)
	c := client.NewWithHandler(b)

	// a blank form value is stored as an absent value
	form := url.Values{"id": {"10"}, "title": {"ten"}, "rating": {""}}
	_, err := c.Post("/articles", form, nil)
	require.NoError(t, err)
	stored, err := table.Query().
		Where("and", query.Condition{Column: "id", Operator: "=", Value: "10"}).
		One(context.Background())
	require.NoError(t, err)
	assert.Nil(t, stored["rating"])

	// the same request as JSON stores the literal empty string
	_, err = c.Post("/articles", map[string]interface{}{"id": 11, "title": "eleven", "rating": ""}, nil)
	require.NoError(t, err)
	stored, err = table.Query().
		Where("and", query.Condition{Column: "id", Operator: "=", Value: 11.0}).
		One(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", stored["rating"])
}

func TestUpdateAndDeleteArticle(t *testing.T) {
	b, table := newBackend(t)
	c := client.NewWithHandler(b)

	var result map[string]interface{}
	_, err := c.Patch("/articles/1", map[string]interface{}{"title": "renamed"}, &result)
	require.NoError(t, err)
	assert.Equal(t, "renamed", result["item"].(map[string]interface{})["title"])

	_, err = c.Put("/articles/7", map[string]interface{}{"id": 7, "title": "seventh"}, nil)
	require.NoError(t, err)

	status, err := c.Delete("/articles/7")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	count, err := table.Query().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestMethodNotAllowed(t *testing.T) {
	b, _ := newBackend(t)
	c := client.NewWithHandler(b)

	status, header, err := c.Do(http.MethodDelete, "/articles", nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
	assert.Equal(t, "GET, OPTIONS, POST", header.Get("Allow"))
}

func TestOptionsAllowHeader(t *testing.T) {
	b, _ := newBackend(t)
	c := client.NewWithHandler(b)

	status, header, err := c.Options("/articles")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, "GET, OPTIONS, POST", header.Get("Allow"))
}

func TestHTTPCacheViewArg(t *testing.T) {
	b, _ := newBackend(t)
	c := client.NewWithHandler(b)

	_, header, err := c.GetWithHeader("/articles/1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "max-age=0, must-revalidate", header.Get("Cache-Control"))
}

func TestContentNegotiation(t *testing.T) {
	b := backend.New(&backend.Builder{Router: mux.NewRouter()})
	table := seedArticles(t)
	b.AddResource(&ArticlesResource{}, backend.Options{
		Store:        table,
		Renderers:    []string{"json", "csv"},
		ResourceArgs: map[string]interface{}{"pagination_enabled": false},
	})
	c := client.NewWithHandler(b)

	// extension wins over the Accept header
	var raw []byte
	_, header, err := c.GetWithHeader("/articles.csv?ordering=id", map[string]string{"Accept": "application/json"}, &raw)
	require.NoError(t, err)
	assert.Equal(t, "text/csv; charset=utf-8", header.Get("Content-Type"))
	assert.Equal(t, "Id,Rating,Title\n1,3,first\n2,5,second\n3,4,third\n", string(raw))

	// the route without extension negotiates on the Accept header
	_, header, err = c.GetWithHeader("/articles", map[string]string{"Accept": "text/csv"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "text/csv; charset=utf-8", header.Get("Content-Type"))

	// and falls back to the first renderer without one
	_, header, err = c.GetWithHeader("/articles", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "application/json; charset=utf-8", header.Get("Content-Type"))
}

func TestScopes(t *testing.T) {
	b := backend.New(&backend.Builder{Router: mux.NewRouter()})
	table := seedArticles(t)

	var d *backend.Descriptor
	b.WithScope("api", "/api", map[string]interface{}{"pagination_enabled": false}, func(api *backend.Scope) {
		api.WithScope("v1", "v1", map[string]interface{}{"key": "rows"}, func(v1 *backend.Scope) {
			d = v1.AddResource(&ArticlesResource{}, backend.Options{Store: table})
		})
	})

	assert.Equal(t, "api.v1.articles", d.Name)
	assert.Equal(t, "/api/v1/articles", d.Path)

	c := client.NewWithHandler(b)
	var result map[string]interface{}
	_, err := c.Get("/api/v1/articles", &result)
	require.NoError(t, err)
	// arguments merged across both scope levels
	assert.Len(t, result["rows"], 3)
	_, present := result["pagination_data"]
	assert.False(t, present)
}

func TestScopePrefixAssociativity(t *testing.T) {
	nested := backend.New(&backend.Builder{Router: mux.NewRouter()})
	flat := backend.New(&backend.Builder{Router: mux.NewRouter()})
	table := seedArticles(t)

	dNested := nested.Scope("a", "/a", nil).Scope("b", "b", nil).
		AddResource(&ArticlesResource{}, backend.Options{Store: table})
	dFlat := flat.Scope("a.b", "/a/b", nil).
		AddResource(&ArticlesResource{}, backend.Options{Store: table})

	assert.Equal(t, "a.b.articles", dNested.Name)
	assert.Equal(t, dFlat.Name, dNested.Name)
	assert.Equal(t, "/a/b/articles", dNested.Path)
	assert.Equal(t, dFlat.Path, dNested.Path)
}

func TestScopePathPrefix(t *testing.T) {
	b := backend.New(&backend.Builder{Router: mux.NewRouter()})
	table := seedArticles(t)

	// a path prefix applies to explicitly given paths
	d := b.Scope("", "/internal", nil).
		AddResource(&ArticlesResource{}, backend.Options{Path: "/articles", Store: table})

	assert.Equal(t, "articles", d.Name)
	assert.Equal(t, "/internal/articles", d.Path)
}

// probeResource records what the handler saw, to verify that tunneled
// requests carry neither the override parameter nor the header.
type probeResource struct {
	lastQuery  string
	lastHeader string
}

func (p *probeResource) Put(r *resource.Request) (resource.Payload, error) {
	p.lastQuery = r.HTTP.URL.RawQuery
	p.lastHeader = r.HTTP.Header.Get("X-HTTP-Method-Override")
	return resource.Payload{"ok": true}, nil
}

func TestPostTunneling(t *testing.T) {
	b := backend.New(&backend.Builder{Router: mux.NewRouter()})
	probe := &probeResource{}
	b.AddResource(probe, backend.Options{Name: "probe"})
	b.EnablePostTunneling()
	c := client.NewWithHandler(b)

	status, err := c.Post("/probe?$method=PUT", map[string]interface{}{}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "", probe.lastQuery)
	assert.Equal(t, "", probe.lastHeader)

	// header variant
	_, err = c.PostWithHeader("/probe", map[string]string{"X-HTTP-Method-Override": "PUT"}, map[string]interface{}{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "", probe.lastHeader)

	// methods outside the allow list are rejected before routing
	status, err = c.Post("/probe?$method=TRACE", map[string]interface{}{}, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, status)

	// a plain POST still hits the method-not-allowed view
	status, _ = c.Post("/probe", map[string]interface{}{}, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestCORS(t *testing.T) {
	b, _ := newBackend(t)
	b.EnableCORS()
	c := client.NewWithHandler(b)

	_, header, err := c.Do(http.MethodOptions, "/articles", map[string]string{
		"Access-Control-Request-Method": "POST",
		"Origin":                        "http://elsewhere.example.com",
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "*", header.Get("Access-Control-Allow-Origin"))
}

func TestVersionRoute(t *testing.T) {
	b, _ := newBackend(t)
	c := client.NewWithHandler(b)

	var result map[string]string
	_, err := c.Get("/version", &result)
	require.NoError(t, err)
	assert.Equal(t, "unset", result["version"])
}

type emptyResource struct{}

func TestConfigurationErrors(t *testing.T) {
	table := seedArticles(t)

	assert.Panics(t, func() {
		backend.New(&backend.Builder{})
	})

	b := backend.New(&backend.Builder{Router: mux.NewRouter()})

	// no resource methods at all
	assert.Panics(t, func() {
		b.AddResource(&emptyResource{}, backend.Options{Name: "empty"})
	})

	// allow-listed method missing from the resource
	assert.Panics(t, func() {
		b.AddResource(&ArticlesResource{}, backend.Options{
			Name:           "broken",
			Store:          table,
			AllowedMethods: []string{"get", "delete"},
		})
	})

	// unknown resource argument
	assert.Panics(t, func() {
		b.AddResource(&ArticlesResource{}, backend.Options{
			Name:         "misconfigured",
			Store:        table,
			ResourceArgs: map[string]interface{}{"bogus": true},
		})
	})

	// unknown renderer
	assert.Panics(t, func() {
		b.AddResource(&ArticlesResource{}, backend.Options{
			Name:      "unrenderable",
			Store:     table,
			Renderers: []string{"yaml"},
		})
	})
}
