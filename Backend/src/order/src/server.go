package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/hlog"

	"github.com/ahinestrog/bookstore-storefront/pkg/httpx"
)

const (
	restPrefix   = "/ms-books-orders/v1/api/orders"
	defaultLimit = 20
	maxLimit     = 100
)

type OrderServer struct {
	ledger *Ledger
}

func NewOrderServer(l *Ledger) *OrderServer { return &OrderServer{ledger: l} }

func (s *OrderServer) Routes() *mux.Router {
	r := mux.NewRouter()
	sub := r.PathPrefix(restPrefix).Subrouter()
	sub.HandleFunc("/customer/{customerId}", s.listOrders).Methods(http.MethodGet)
	sub.HandleFunc("/find-by-id/{orderId}", s.getOrder).Methods(http.MethodGet)

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

func (s *OrderServer) listOrders(w http.ResponseWriter, r *http.Request) {
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httpx.Fail(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxLimit)
	}
	orders, err := s.ledger.repo.ListByCustomer(r.Context(), mux.Vars(r)["customerId"], limit)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("list orders")
		httpx.Fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderView(o))
	}
	httpx.OK(w, http.StatusOK, out)
}

func (s *OrderServer) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.ledger.repo.GetOrder(r.Context(), mux.Vars(r)["orderId"])
	if errors.Is(err, ErrNotFound) {
		httpx.Fail(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("get order")
		httpx.Fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.OK(w, http.StatusOK, toOrderView(o))
}
