package main

import (
	"io/fs"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/ahinestrog/bookstore-storefront/pkg/httpx"
)

type routerDeps struct {
	log         zerolog.Logger
	store       *Storefront
	books       http.Handler
	cart        http.Handler
	limiter     *httpx.RateLimiter
	metrics     *httpx.Metrics
	corsOrigins string
	secure      bool
}

// customerKeyFunc rate-limits per visitor and falls back to the remote address.
// A freshly minted random id changes on every cookieless request, so it is not a key.
func customerKeyFunc(r *http.Request) string {
	if id := CustomerID(r.Context()); id != "" && customerSource(r.Context()) != "random" {
		return id
	}
	return httpx.RemoteHost(r)
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CleanPath)
	r.Use(d.metrics.Instrument)
	r.Use(httpx.AccessLog(d.log))
	r.Use(httpx.Recover)
	r.Use(Customers(d.secure))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", d.metrics.Handler())

	static, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	r.Route("/api", func(api chi.Router) {
		api.Use(cors.New(cors.Options{
			AllowedOrigins:   strings.Split(d.corsOrigins, ","),
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
			AllowedHeaders:   []string{"Content-Type", "X-Api-Version"},
			AllowCredentials: true,
		}).Handler)
		api.Use(d.limiter.Handler)

		api.Handle("/books", d.books)
		api.Handle("/books/*", d.books)
		api.Handle("/cart", d.cart)
		api.Handle("/cart/*", d.cart)
	})

	s := d.store
	r.Get("/", s.handleLanding)
	r.Get("/home", s.handleHome)
	r.Get("/book/{id}", s.handleBook)
	r.Get("/categories", s.handleCategories)
	r.Get("/offers", s.handleOffers)
	r.Get("/new-releases", s.handleNewReleases)
	r.Get("/search", s.handleSearch)

	r.Get("/cart", s.handleCart)
	r.Post("/cart/add", s.handleCartAdd)
	r.Post("/cart/update", s.handleCartUpdate)
	r.Post("/cart/decrement", s.handleCartDecrement)
	r.Post("/cart/remove", s.handleCartRemove)
	r.Post("/cart/clear", s.handleCartClear)
	r.Get("/checkout", s.handleCheckout)
	r.Post("/checkout", s.handlePlaceOrder)
	r.Get("/orders", s.handleOrders)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.renderError(w, r, http.StatusNotFound, "La página que buscas no existe.", nil)
	})
	return r
}
