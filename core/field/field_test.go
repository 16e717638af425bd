package field

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request(t *testing.T, rawQuery string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/items", nil)
	r.URL.RawQuery = rawQuery
	return r
}

func defaults(fields ...string) func() []string {
	return func() []string { return fields }
}

func TestRequestedStar(t *testing.T) {
	fields, err := Requested(request(t, ""), defaults("id", "title", "description"))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "title", "description"}, fields)
}

func TestRequestedExplicit(t *testing.T) {
	fields, err := Requested(request(t, "field=a&field=b&field=c"), defaults("id"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, fields)
}

func TestRequestedCommaSeparated(t *testing.T) {
	fields, err := Requested(request(t, "fields=a,%20b,c"), defaults("id"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, fields)
}

func TestRequestedStarPlusExtra(t *testing.T) {
	fields, err := Requested(request(t, "field=*&field=x"), defaults("id", "title"))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "title", "x"}, fields)
}

func TestProjectSimple(t *testing.T) {
	item := map[string]interface{}{"id": 1, "title": "first", "description": "d"}
	projected, err := Project(request(t, ""), item, []string{"id", "title"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"id": 1, "title": "first"}, projected)
}

func TestProjectUnknownStructField(t *testing.T) {
	type entity struct {
		ID int `json:"id"`
	}
	_, err := Project(request(t, ""), entity{ID: 1}, []string{"bogus"})
	assert.Error(t, err)
}

func TestProjectSparseMapItem(t *testing.T) {
	// a mapping item without one of the requested keys projects it as nil
	item := map[string]interface{}{"id": 1}
	projected, err := Project(request(t, ""), item, []string{"id", "rating"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"id": 1, "rating": nil}, projected)

	// the same holds for a dotted field over an unset relation
	projected, err = Project(request(t, ""), item, []string{"owner.name"})
	require.NoError(t, err)
	assert.Nil(t, projected["owner"])
}

func TestProjectStruct(t *testing.T) {
	type entity struct {
		ID       int `json:"id"`
		FullName string
	}
	projected, err := Project(request(t, ""), entity{ID: 7, FullName: "x"}, []string{"id", "full_name"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"id": 7, "full_name": "x"}, projected)
}

func TestProjectCallable(t *testing.T) {
	item := map[string]interface{}{
		"id": 1,
		"link": Callable(func(r *http.Request) interface{} {
			return "https://example.com" + r.URL.Path
		}),
	}
	projected, err := Project(request(t, ""), item, []string{"link"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/items", projected["link"])
}

func TestProjectNestedSingular(t *testing.T) {
	item := map[string]interface{}{
		"id": 1,
		"owner": map[string]interface{}{
			"name":  "alice",
			"email": "a@example.com",
			"role":  "admin",
		},
	}
	projected, err := Project(request(t, ""), item, []string{"owner.name", "owner.email"})
	require.NoError(t, err)
	owner := projected["owner"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"name": "alice", "email": "a@example.com"}, owner)
}

func TestProjectNestedPlural(t *testing.T) {
	item := map[string]interface{}{
		"id": 1,
		"a": []interface{}{
			map[string]interface{}{"b": 1, "c": "x", "d": true},
			map[string]interface{}{"b": 2, "c": "y", "d": false},
		},
	}

	// a.b alone yields elements with key b only
	projected, err := Project(request(t, ""), item, []string{"a.b"})
	require.NoError(t, err)
	list := projected["a"].([]map[string]interface{})
	require.Len(t, list, 2)
	assert.Equal(t, map[string]interface{}{"b": 1}, list[0])
	assert.Equal(t, map[string]interface{}{"b": 2}, list[1])

	// a.b plus a.c merge positionally
	projected, err = Project(request(t, ""), item, []string{"a.b", "a.c"})
	require.NoError(t, err)
	list = projected["a"].([]map[string]interface{})
	require.Len(t, list, 2)
	assert.Equal(t, map[string]interface{}{"b": 1, "c": "x"}, list[0])
	assert.Equal(t, map[string]interface{}{"b": 2, "c": "y"}, list[1])
}

func TestProjectDeeplyNested(t *testing.T) {
	item := map[string]interface{}{
		"a": map[string]interface{}{
			"b": map[string]interface{}{"c": 42, "d": "x"},
		},
	}
	projected, err := Project(request(t, ""), item, []string{"a.b.c"})
	require.NoError(t, err)
	a := projected["a"].(map[string]interface{})
	b := a["b"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"c": 42}, b)
}
