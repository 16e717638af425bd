package param

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/relabs-tech/resourceful/core"
)

func request(t *testing.T, rawQuery string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/endpoint", nil)
	r.URL.RawQuery = rawQuery
	return r
}

func TestGetSingle(t *testing.T) {
	r := request(t, "a=1&b=x")
	v, err := Get(r, "a")
	if err != nil {
		t.Fatal(err)
	}
	if v != "1" {
		t.Errorf("got %v", v)
	}
}

func TestGetAbsent(t *testing.T) {
	r := request(t, "a=1")
	_, err := Get(r, "missing")
	var notPresent ErrNotPresent
	if !errors.As(err, &notPresent) {
		t.Fatalf("expected ErrNotPresent, got %v", err)
	}
	v, err := Get(r, "missing", Default("fallback"))
	if err != nil || v != "fallback" {
		t.Errorf("got %v, %v", v, err)
	}
}

func TestGetMultipleValuesError(t *testing.T) {
	r := request(t, "a=1&a=2")
	_, err := Get(r, "a")
	var multiple ErrMultipleValues
	if !errors.As(err, &multiple) {
		t.Fatalf("expected ErrMultipleValues, got %v", err)
	}
}

func TestGetMulti(t *testing.T) {
	r := request(t, "field=a&field=b")
	values, err := GetMulti(r, "field")
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 2 || values[0] != "a" || values[1] != "b" {
		t.Errorf("got %v", values)
	}

	values, err = GetMulti(r, "missing", Default(nil))
	if err != nil || values != nil {
		t.Errorf("got %v, %v", values, err)
	}
}

func TestBlankConvertsToNil(t *testing.T) {
	r := request(t, "a=")
	v, err := Get(r, "a")
	if err != nil || v != nil {
		t.Errorf("got %v, %v", v, err)
	}
	v, err = Get(r, "a", KeepBlank())
	if err != nil || v != "" {
		t.Errorf("got %v, %v", v, err)
	}
}

func TestFlags(t *testing.T) {
	r := request(t, "a&!b&c=")
	v, err := GetBool(r, "a")
	if err != nil || v != true {
		t.Errorf("a: got %v, %v", v, err)
	}
	v, err = GetBool(r, "b")
	if err != nil || v != false {
		t.Errorf("b: got %v, %v", v, err)
	}
	// c has a blank value, not a flag
	v, err = GetBool(r, "c")
	if err != nil || v != nil {
		t.Errorf("c: got %v, %v", v, err)
	}
}

func TestFlagPrecedence(t *testing.T) {
	// exactly one flag form present, equals form ignored
	r := request(t, "a&a=false")
	v, err := GetBool(r, "a")
	if err != nil || v != true {
		t.Errorf("got %v, %v", v, err)
	}
	// both flag forms present: no flag handling, falls back to the
	// normal value lookup, where the bare "a" is a blank value
	r = request(t, "a&!a")
	v, err = GetBool(r, "a")
	if err != nil || v != nil {
		t.Errorf("got %v, %v", v, err)
	}
}

func TestAsBoolValues(t *testing.T) {
	r := request(t, "a=TRUE&b=0&c=yes")
	v, err := GetBool(r, "a")
	if err != nil || v != true {
		t.Errorf("got %v, %v", v, err)
	}
	v, err = GetBool(r, "b")
	if err != nil || v != false {
		t.Errorf("got %v, %v", v, err)
	}
	_, err = GetBool(r, "c")
	var herr core.HTTPError
	if !errors.As(err, &herr) || herr.Status != http.StatusBadRequest {
		t.Errorf("expected client error, got %v", err)
	}
}

func TestAsList(t *testing.T) {
	r := request(t, "fields=a,%20b%20,c")
	v, err := Get(r, "fields", With(AsList))
	if err != nil {
		t.Fatal(err)
	}
	items := v.([]string)
	if len(items) != 3 || items[0] != "a" || items[1] != "b" || items[2] != "c" {
		t.Errorf("got %v", items)
	}
}

func TestConverterFailureIsClientError(t *testing.T) {
	r := request(t, "page=two")
	_, err := Get(r, "page", With(AsInt))
	var herr core.HTTPError
	if !errors.As(err, &herr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if herr.Status != http.StatusBadRequest {
		t.Errorf("got status %d", herr.Status)
	}
}

func TestAsJSON(t *testing.T) {
	r := request(t, `filters={"a":1}`)
	v, err := Get(r, "filters", With(AsJSON))
	if err != nil {
		t.Fatal(err)
	}
	m := v.(map[string]interface{})
	if m["a"] != float64(1) {
		t.Errorf("got %v", m)
	}
}
