package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/hlog"

	"github.com/ahinestrog/bookstore-storefront/pkg/httpx"
)

const restPrefix = "/ms-books-orders/v1/api/carts"

type addItemRequest struct {
	BookID   string `json:"bookId"`
	Quantity *int32 `json:"quantity"`
}

type updateItemRequest struct {
	Quantity *int32 `json:"quantity"`
}

// CartServer exposes the cart service over REST.
type CartServer struct {
	svc *Service
}

func NewCartServer(svc *Service) *CartServer {
	return &CartServer{svc: svc}
}

func (s *CartServer) Routes() *mux.Router {
	r := mux.NewRouter()
	sub := r.PathPrefix(restPrefix).Subrouter()
	sub.HandleFunc("/get-cart/{customerId}", s.getCart).Methods(http.MethodGet)
	sub.HandleFunc("/add-item/{customerId}/items", s.addItem).Methods(http.MethodPost)
	sub.HandleFunc("/remove-item/{customerId}/items/{bookId}", s.removeItem).Methods(http.MethodDelete)
	sub.HandleFunc("/decrement-item/{customerId}/items/{bookId}", s.decrementItem).Methods(http.MethodPatch)
	sub.HandleFunc("/update-item/{customerId}/items/{bookId}", s.updateItem).Methods(http.MethodPatch)
	sub.HandleFunc("/clear-cart/{customerId}", s.clearCart).Methods(http.MethodDelete)
	sub.HandleFunc("/checkout/{customerId}", s.checkout).Methods(http.MethodPost)

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

func (s *CartServer) getCart(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.Cart(r.Context(), mux.Vars(r)["customerId"])
	s.reply(w, r, http.StatusOK, v, err)
}

func (s *CartServer) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeBody(r, &req); err != nil || req.BookID == "" {
		httpx.Fail(w, http.StatusBadRequest, "body must be {bookId, quantity}")
		return
	}
	qty := int32(1)
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	v, err := s.svc.AddItem(r.Context(), mux.Vars(r)["customerId"], req.BookID, qty)
	s.reply(w, r, http.StatusOK, v, err)
}

func (s *CartServer) removeItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	v, err := s.svc.Remove(r.Context(), vars["customerId"], vars["bookId"])
	s.reply(w, r, http.StatusOK, v, err)
}

func (s *CartServer) decrementItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	v, err := s.svc.Decrement(r.Context(), vars["customerId"], vars["bookId"])
	s.reply(w, r, http.StatusOK, v, err)
}

func (s *CartServer) updateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := decodeBody(r, &req); err != nil || req.Quantity == nil {
		httpx.Fail(w, http.StatusBadRequest, "body must be {quantity}")
		return
	}
	vars := mux.Vars(r)
	v, err := s.svc.SetQuantity(r.Context(), vars["customerId"], vars["bookId"], *req.Quantity)
	s.reply(w, r, http.StatusOK, v, err)
}

func (s *CartServer) clearCart(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.Clear(r.Context(), mux.Vars(r)["customerId"])
	s.reply(w, r, http.StatusOK, v, err)
}

func (s *CartServer) checkout(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.svc.Checkout(r.Context(), mux.Vars(r)["customerId"])
	s.reply(w, r, http.StatusCreated, receipt, err)
}

func (s *CartServer) reply(w http.ResponseWriter, r *http.Request, status int, data any, err error) {
	if err == nil {
		httpx.OK(w, status, data)
		return
	}
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("cart request failed")
		httpx.Fail(w, code, "internal error")
		return
	}
	httpx.Fail(w, code, err.Error())
}

func statusFor(err error) int {
	var stock ErrInsufficientStock
	switch {
	case errors.As(err, &stock), errors.Is(err, ErrEmptyCart), errors.Is(err, ErrBookUnavailable):
		return http.StatusConflict
	case errors.Is(err, ErrBookNotFound), errors.Is(err, ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidCustomer):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	return dec.Decode(v)
}
