package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/hlog"

	"github.com/ahinestrog/bookstore-storefront/pkg/httpx"
)

// Both prefixes are served: the storefront proxy sends catalogue lookups to the first and
// plain listings to the second.
var restPrefixes = []string{"/ms-books-catalogue/v1/api/books", "/v1/api/books"}

// BookSearchRequest is the body of POST /search-elastic.
type BookSearchRequest struct {
	Title           string  `json:"title"`
	AuthorName      string  `json:"authorName"`
	CategoryName    string  `json:"categoryName"`
	ISBN            string  `json:"isbn"`
	Rating          float64 `json:"rating"`
	Visible         *bool   `json:"visible"`
	PublicationDate string  `json:"publicationDate"`
}

type restHandler struct {
	svc *Service
}

func NewRouter(svc *Service) *mux.Router {
	h := &restHandler{svc: svc}
	r := mux.NewRouter()
	r.Use(apiVersion)
	for _, prefix := range restPrefixes {
		sub := r.PathPrefix(prefix).Subrouter()
		sub.HandleFunc("", h.list).Methods(http.MethodGet)
		sub.HandleFunc("/", h.list).Methods(http.MethodGet)
		sub.HandleFunc("/find-by-id/{id}", h.findByID).Methods(http.MethodGet)
		sub.HandleFunc("/search", h.search).Methods(http.MethodGet)
		sub.HandleFunc("/search-elastic", h.searchElastic).Methods(http.MethodPost)
		sub.HandleFunc("/categories", h.categories).Methods(http.MethodGet)
		sub.HandleFunc("/category/{categoryId}", h.byCategory).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.OK(w, http.StatusOK, "ok")
	}).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Fail(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Fail(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// apiVersion rejects requests asking for a version other than 1.
func apiVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v := r.Header.Get("X-Api-Version"); v != "" && v != "1" {
			httpx.Fail(w, http.StatusBadRequest, "unsupported api version "+v)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *restHandler) list(w http.ResponseWriter, r *http.Request) {
	page, size, ok := pageParams(w, r)
	if !ok {
		return
	}
	h.writePage(w, r, Filter{}, page, size)
}

func (h *restHandler) byCategory(w http.ResponseWriter, r *http.Request) {
	page, size, ok := pageParams(w, r)
	if !ok {
		return
	}
	h.writePage(w, r, Filter{CategoryID: mux.Vars(r)["categoryId"]}, page, size)
}

func (h *restHandler) findByID(w http.ResponseWriter, r *http.Request) {
	// ids are opaque to clients, so a malformed one is simply unknown
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		httpx.Fail(w, http.StatusNotFound, "book not found")
		return
	}
	b, err := h.svc.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httpx.Fail(w, http.StatusNotFound, "book not found")
		return
	}
	if err != nil {
		h.internal(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, bookToDTO(b, h.svc.now()))
}

func (h *restHandler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := Filter{
		Q:            q.Get("q"),
		Title:        q.Get("title"),
		AuthorName:   q.Get("authorName"),
		CategoryID:   q.Get("categoryId"),
		CategoryName: q.Get("category"),
		ISBN:         q.Get("isbn"),
		OnSale:       q.Get("onSale") == "true",
	}
	if v := q.Get("authorId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, "invalid authorId")
			return
		}
		f.AuthorID = id
	}
	if q.Get("isNew") == "true" {
		f.PublishedGTE = time.Date(h.svc.now().Year()-newReleaseYears, time.January, 1, 0, 0, 0, 0, time.UTC)
	}

	books, err := h.svc.Search(r.Context(), f)
	if err != nil {
		h.internal(w, r, err)
		return
	}
	now := h.svc.now()
	out := make([]BookDTO, 0, len(books))
	for _, b := range books {
		out = append(out, bookToDTO(b, now))
	}
	httpx.OK(w, http.StatusOK, out)
}

func (h *restHandler) searchElastic(w http.ResponseWriter, r *http.Request) {
	page, size, ok := pageParams(w, r)
	if !ok {
		return
	}
	var req BookSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid search body")
		return
	}
	f := Filter{
		Title:        req.Title,
		AuthorName:   req.AuthorName,
		CategoryName: req.CategoryName,
		ISBN:         req.ISBN,
		MinRating:    req.Rating,
	}
	if req.Visible != nil && !*req.Visible {
		f.IncludeHidden = true
	}
	if req.PublicationDate != "" {
		d, err := time.Parse(time.DateOnly, req.PublicationDate)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, "publicationDate must be YYYY-MM-DD")
			return
		}
		f.PublishedOn = d
	}
	h.writePage(w, r, f, page, size)
}

func (h *restHandler) categories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.Categories(r.Context())
	if err != nil {
		h.internal(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, cats)
}

func (h *restHandler) writePage(w http.ResponseWriter, r *http.Request, f Filter, page, size int32) {
	items, total, page, size, err := h.svc.Page(r.Context(), f, page, size)
	if err != nil {
		h.internal(w, r, err)
		return
	}
	now := h.svc.now()
	out := make([]BookDTO, 0, len(items))
	for _, b := range items {
		out = append(out, bookToDTO(b, now))
	}
	httpx.OK(w, http.StatusOK, newPage(out, page, size, total))
}

func (h *restHandler) internal(w http.ResponseWriter, r *http.Request, err error) {
	hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("catalog request failed")
	httpx.Fail(w, http.StatusInternalServerError, "internal error")
}

// pageParams reads ?page&size; missing values fall back to the defaults in normalizePage.
func pageParams(w http.ResponseWriter, r *http.Request) (int32, int32, bool) {
	parse := func(name string) (int32, bool) {
		v := strings.TrimSpace(r.URL.Query().Get(name))
		if v == "" {
			return 0, true
		}
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, "invalid "+name)
			return 0, false
		}
		return int32(n), true
	}
	page, ok := parse("page")
	if !ok {
		return 0, 0, false
	}
	size, ok := parse("size")
	if !ok {
		return 0, 0, false
	}
	return page, size, true
}
