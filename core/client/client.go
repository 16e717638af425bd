// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package client provides easy and fast in-process access to a REST api

Instead of marshalling HTTP, the client talks directly to the handler. The
client is the tool of choice if one request handler needs to call other
handlers to fulfill its task. It is also perfectly suited for unit tests.
*/
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Client provides easy access to the REST API.
type Client struct {
	handler    http.Handler
	httpClient *http.Client
	url        string
	ctx        context.Context

	defaultHeaders map[string]string
}

// NewWithHandler creates a client to make pseudo-REST requests to the
// backend, through its handler.
//
// WithContext() specifies a different base context.
func NewWithHandler(handler http.Handler) Client {
	return Client{
		handler:        handler,
		defaultHeaders: map[string]string{},
	}
}

// NewWithURL creates a client to make REST requests to a remote backend.
func NewWithURL(url string) Client {
	return Client{
		url:            url,
		httpClient:     &http.Client{Timeout: 20 * time.Second},
		defaultHeaders: map[string]string{},
	}
}

// WithHeader returns a new client with a default header added
func (c Client) WithHeader(key string, value string) Client {
	headers := map[string]string{key: value}
	for k, v := range c.defaultHeaders {
		headers[k] = v
	}
	c.defaultHeaders = headers
	return c
}

// WithContext returns a new client with specific request context
func (c Client) WithContext(ctx context.Context) Client {
	c.ctx = ctx
	return c
}

// Context returns the client's base context.
func (c Client) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Get gets the resource from path. The path can be extended with query
// strings. Returns the actual http status code.
//
// result can be a map, a struct or a raw *[]byte. result can be nil.
func (c Client) Get(path string, result interface{}) (int, error) {
	status, _, err := c.Do(http.MethodGet, path, nil, nil, result)
	return status, err
}

// GetWithHeader gets the resource from path with extra request headers.
// Returns the actual http status code and the response header.
func (c Client) GetWithHeader(path string, header map[string]string, result interface{}) (int, http.Header, error) {
	return c.Do(http.MethodGet, path, header, nil, result)
}

// Post posts a resource to path. body can be a map, a struct,
// a url.Values (posted form encoded) or a raw []byte.
func (c Client) Post(path string, body interface{}, result interface{}) (int, error) {
	status, _, err := c.Do(http.MethodPost, path, nil, body, result)
	return status, err
}

// PostWithHeader posts a resource to path with extra request headers.
func (c Client) PostWithHeader(path string, header map[string]string, body interface{}, result interface{}) (int, error) {
	status, _, err := c.Do(http.MethodPost, path, header, body, result)
	return status, err
}

// Put puts a resource to path.
func (c Client) Put(path string, body interface{}, result interface{}) (int, error) {
	status, _, err := c.Do(http.MethodPut, path, nil, body, result)
	return status, err
}

// Patch patches a resource at path.
func (c Client) Patch(path string, body interface{}, result interface{}) (int, error) {
	status, _, err := c.Do(http.MethodPatch, path, nil, body, result)
	return status, err
}

// Delete deletes the resource at path.
func (c Client) Delete(path string) (int, error) {
	status, _, err := c.Do(http.MethodDelete, path, nil, nil, nil)
	return status, err
}

// Options requests the options of the resource at path. Returns the
// status code and the response header.
func (c Client) Options(path string) (int, http.Header, error) {
	return c.Do(http.MethodOptions, path, nil, nil, nil)
}

// Do makes a request against the backend. Responses outside the 2xx
// range are flagged as errors, with the response body in the error text.
func (c Client) Do(method, path string, header map[string]string, body interface{}, result interface{}) (int, http.Header, error) {
	var reader io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
		contentType = "application/json"
	case url.Values:
		reader = strings.NewReader(b.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		encoded, err := json.Marshal(body)
		if err != nil {
			return http.StatusBadRequest, nil, fmt.Errorf("%s to %s: %w", method, path, err)
		}
		reader = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	r, err := http.NewRequestWithContext(c.Context(), method, c.url+path, reader)
	if err != nil {
		return http.StatusBadRequest, nil, err
	}
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	for key, value := range c.defaultHeaders {
		r.Header.Add(key, value)
	}
	for key, value := range header {
		r.Header.Add(key, value)
	}

	var res *http.Response
	var resBody []byte
	if c.handler != nil {
		rec := httptest.NewRecorder()
		c.handler.ServeHTTP(rec, r)
		res = rec.Result()
		resBody = rec.Body.Bytes()
	} else {
		res, err = c.httpClient.Do(r)
		if err != nil {
			return http.StatusInternalServerError, nil, err
		}
		defer res.Body.Close()
		resBody, _ = io.ReadAll(res.Body)
	}

	status := res.StatusCode
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return status, res.Header, fmt.Errorf("handler returned error status code %v: %s",
			status, strings.TrimSpace(string(resBody)))
	}

	if len(resBody) > 0 && result != nil {
		if raw, ok := result.(*[]byte); ok {
			*raw = resBody
		} else {
			err = json.Unmarshal(resBody, result)
		}
	}
	return status, res.Header, err
}
