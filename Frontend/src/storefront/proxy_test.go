package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBooksResolver(t *testing.T) {
	resolve := BooksResolver("http://cat/ms-books-catalogue/v1/api/books", "http://api/v1/api/books")

	tests := map[string]string{
		"":                     "http://api/v1/api/books",
		"find-by-id/3":         "http://cat/ms-books-catalogue/v1/api/books/find-by-id/3",
		"search":               "http://cat/ms-books-catalogue/v1/api/books/search",
		"search-elastic":       "http://cat/ms-books-catalogue/v1/api/books/search-elastic",
		"catalogue/categories": "http://cat/ms-books-catalogue/v1/api/books/categories",
		"categories":           "http://api/v1/api/books/categories",
		"/category/fantasy/":   "http://api/v1/api/books/category/fantasy",
		"catalogue":            "http://cat/ms-books-catalogue/v1/api/books",
	}
	for in, want := range tests {
		assert.Equal(t, want, resolve(in), in)
	}
}

func TestCartResolver(t *testing.T) {
	resolve := CartResolver("http://orders/ms-books-orders/v1/api/carts")
	assert.Equal(t, "http://orders/ms-books-orders/v1/api/carts/get-cart/abc", resolve("get-cart/abc"))
	assert.Equal(t, "http://orders/ms-books-orders/v1/api/carts", resolve(""))
}

type seenRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
	Header http.Header
}

func mountProxy(p *Proxy) http.Handler {
	r := chi.NewRouter()
	r.Handle("/api/books", p)
	r.Handle("/api/books/*", p)
	return r
}

func TestProxyForwardsRequest(t *testing.T) {
	var seen seenRequest
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		seen = seenRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(raw), Header: r.Header.Clone()}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Upstream", "catalogue")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true,"data":[]}`))
	}))
	defer backend.Close()

	p := NewProxy("books", BooksResolver(backend.URL+"/cat", backend.URL+"/books"), backend.Client())
	h := mountProxy(p)

	req := httptest.NewRequest(http.MethodPost, "/api/books/search-elastic?page=2", strings.NewReader(`{"title":"quijote"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Version", "1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "catalogue", rec.Header().Get("X-Upstream"))
	assert.JSONEq(t, `{"success":true,"data":[]}`, rec.Body.String())

	assert.Equal(t, http.MethodPost, seen.Method)
	assert.Equal(t, "/cat/search-elastic", seen.Path)
	assert.Equal(t, "page=2", seen.Query)
	assert.Equal(t, `{"title":"quijote"}`, seen.Body)
	assert.Equal(t, "1", seen.Header.Get("X-Api-Version"))
	assert.Equal(t, "application/json", seen.Header.Get("Content-Type"))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestProxyStripsHopHeaders(t *testing.T) {
	var sent http.Header
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		sent = r.Header.Clone()
		h := http.Header{}
		h.Set("Connection", "close")
		h.Set("Transfer-Encoding", "chunked")
		h.Set("X-Upstream", "catalogue")
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     h,
			Body:       io.NopCloser(strings.NewReader(`{"success":true}`)),
			Request:    r,
		}, nil
	})}

	h := mountProxy(NewProxy("books", BooksResolver("http://cat", "http://books"), client))
	req := httptest.NewRequest(http.MethodPost, "/api/books/search", strings.NewReader(`{}`))
	req.Header.Set("Connection", "keep-alive, X-Foo")
	req.Header.Set("Host", "storefront.local")
	req.Header.Set("Content-Length", "2")
	req.Header.Set("X-Foo", "bar")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, sent)
	assert.Empty(t, sent.Values("Connection"))
	assert.Empty(t, sent.Values("Host"))
	assert.Empty(t, sent.Values("Content-Length"))
	assert.Equal(t, "bar", sent.Get("X-Foo"))

	assert.Empty(t, rec.Header().Values("Connection"))
	assert.Empty(t, rec.Header().Values("Transfer-Encoding"))
	assert.Equal(t, "catalogue", rec.Header().Get("X-Upstream"))
}

func TestProxyRejectsOversizedBody(t *testing.T) {
	called := false
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	h := mountProxy(NewProxy("books", BooksResolver(backend.URL, backend.URL), backend.Client()))
	big := strings.Repeat("x", 2*maxProxyBody)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/books/search-elastic", strings.NewReader(big)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.False(t, called)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
}

func TestProxyForwardsBodyAtLimit(t *testing.T) {
	var got int
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		got = len(raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	h := mountProxy(NewProxy("books", BooksResolver(backend.URL, backend.URL), backend.Client()))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/books/search-elastic", strings.NewReader(strings.Repeat("x", maxProxyBody))))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxProxyBody, got)
}

func TestProxyGetHasNoBody(t *testing.T) {
	var length int64 = -2
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		length = r.ContentLength
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	h := mountProxy(NewProxy("books", BooksResolver(backend.URL, backend.URL), backend.Client()))
	req := httptest.NewRequest(http.MethodGet, "/api/books", strings.NewReader("ignored"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, int64(0), length)
}

func TestProxyRejectsUnsupportedMethod(t *testing.T) {
	h := mountProxy(NewProxy("books", BooksResolver("http://x", "http://y"), http.DefaultClient))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/books/1", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST, PATCH, DELETE", rec.Header().Get("Allow"))
}

func TestProxyUnreachableBackend(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	url := backend.URL
	backend.Close()

	h := mountProxy(NewProxy("books", BooksResolver(url, url), http.DefaultClient))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/books/find-by-id/1", nil))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Proxy error", body["message"])
	assert.Equal(t, "Check server logs for more information", body["details"])
	assert.NotEmpty(t, body["error"])
}
