package client

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/goccy/go-json"
)

func TestClientAgainstHandler(t *testing.T) {
	var gotMethod, gotContentType, gotBody string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		if r.Body != nil {
			buf := make([]byte, 1024)
			n, _ := r.Body.Read(buf)
			gotBody = string(buf[:n])
		}
		w.Header().Set("Content-Type", "application/json")
		data, _ := json.Marshal(map[string]string{"hello": "world"})
		w.Write(data)
	})

	c := NewWithHandler(handler)

	var result map[string]interface{}
	status, err := c.Get("/something", &result)
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusOK {
		t.Fatal("unexpected status:", status)
	}
	if result["hello"] != "world" {
		t.Fatal("unexpected result:", result)
	}

	_, err = c.Post("/something", map[string]interface{}{"a": 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodPost || gotContentType != "application/json" {
		t.Fatal("unexpected request:", gotMethod, gotContentType)
	}
	if gotBody != `{"a":1}` {
		t.Fatal("unexpected body:", gotBody)
	}

	_, err = c.Post("/something", url.Values{"a": {"1"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Fatal("unexpected content type:", gotContentType)
	}
}

func TestClientErrorStatus(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})
	c := NewWithHandler(handler)
	status, err := c.Get("/missing", nil)
	if err == nil {
		t.Fatal("error expected")
	}
	if status != http.StatusNotFound {
		t.Fatal("unexpected status:", status)
	}
}

func TestClientHeaders(t *testing.T) {
	var gotHeader string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Custom")
	})
	c := NewWithHandler(handler).WithHeader("X-Custom", "yes")
	if _, err := c.Get("/", nil); err != nil {
		t.Fatal(err)
	}
	if gotHeader != "yes" {
		t.Fatal("default header not sent")
	}
}
