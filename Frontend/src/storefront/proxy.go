package main

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/ahinestrog/bookstore-storefront/pkg/httpx"
)

const maxProxyBody = 1 << 20

// Headers never forwarded to the backend.
var dropRequestHeaders = map[string]bool{"host": true, "connection": true, "content-length": true}

// Headers never relayed back to the browser.
var dropResponseHeaders = map[string]bool{"transfer-encoding": true, "connection": true}

var proxyMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Resolver maps the path after the proxy prefix to an absolute backend URL (no query).
type Resolver func(path string) string

// BooksResolver sends catalogue lookups (find-by-id, search, or an explicit catalogue/ prefix)
// to the catalogue service and everything else to the generic books API.
func BooksResolver(catalogueURL, booksURL string) Resolver {
	return func(path string) string {
		segs := splitPath(path)
		joined := strings.Join(segs, "/")
		if (len(segs) > 0 && segs[0] == "catalogue") || strings.Contains(joined, "find-by-id") || strings.Contains(joined, "search") {
			if len(segs) > 0 && segs[0] == "catalogue" {
				segs = segs[1:]
			}
			return joinURL(catalogueURL, segs)
		}
		return joinURL(booksURL, segs)
	}
}

func CartResolver(cartURL string) Resolver {
	return func(path string) string {
		return joinURL(cartURL, splitPath(path))
	}
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func joinURL(base string, segs []string) string {
	if len(segs) == 0 {
		return base
	}
	return base + "/" + strings.Join(segs, "/")
}

// Proxy relays one route family to a backend service.
type Proxy struct {
	name    string
	resolve Resolver
	client  *http.Client
}

func NewProxy(name string, resolve Resolver, client *http.Client) *Proxy {
	return &Proxy{name: name, resolve: resolve, client: client}
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !proxyMethods[r.Method] {
		w.Header().Set("Allow", "GET, POST, PATCH, DELETE")
		httpx.Fail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	path := chi.URLParam(r, "*")
	target := p.resolve(path)
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	log := hlog.FromRequest(r)
	start := time.Now()

	var body io.Reader
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxProxyBody))
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.Fail(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, "could not read request body")
			return
		}
		body = bytes.NewReader(raw)
	}

	out, err := http.NewRequestWithContext(r.Context(), r.Method, target, body)
	if err != nil {
		p.fail(w, r, target, err)
		return
	}
	for k, vs := range r.Header {
		if dropRequestHeaders[strings.ToLower(k)] {
			continue
		}
		for _, v := range vs {
			out.Header.Add(k, v)
		}
	}

	resp, err := p.client.Do(out)
	if err != nil {
		p.fail(w, r, target, err)
		return
	}
	defer resp.Body.Close()

	for k, vs := range resp.Header {
		if dropResponseHeaders[strings.ToLower(k)] {
			continue
		}
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		log.Warn().Err(err).Str("target", target).Msg("proxy body copy interrupted")
	}

	log.Info().
		Str("proxy", p.name).
		Str("method", r.Method).
		Str("path", path).
		Str("target", target).
		Int("status", resp.StatusCode).
		Int64("bytes", n).
		Dur("took", time.Since(start)).
		Msg("proxied")
}

func (p *Proxy) fail(w http.ResponseWriter, r *http.Request, target string, err error) {
	hlog.FromRequest(r).Error().Err(err).Str("proxy", p.name).Str("method", r.Method).Str("target", target).Msg("proxy error")
	httpx.WriteJSON(w, http.StatusBadGateway, httpx.Envelope{
		Success: false,
		Message: "Proxy error",
		Error:   err.Error(),
		Details: "Check server logs for more information",
	})
}
