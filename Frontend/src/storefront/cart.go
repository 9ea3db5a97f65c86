package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/tidwall/gjson"

	"github.com/ahinestrog/bookstore-storefront/pkg/money"
)

// cartKey is the storage key of the cart blob.
const cartKey = "cart"

var ErrEmptyCart = errors.New("cart is empty")

type CartLine struct {
	Book     Book `json:"book"`
	Quantity int  `json:"quantity"`
}

func (l CartLine) LineTotal() money.Money { return l.Book.Price.Mul(l.Quantity) }

// Cart holds at most one line per book. Total is derived and never stored.
type Cart struct {
	Items []CartLine
	Total money.Money
}

func (c *Cart) recompute() {
	total := money.Money{}
	for _, l := range c.Items {
		total = total.Add(l.LineTotal())
	}
	c.Total = total
}

func (c *Cart) index(bookID string) int {
	for i, l := range c.Items {
		if l.Book.ID == bookID {
			return i
		}
	}
	return -1
}

// Quantity is how many copies of bookID the cart holds.
func (c *Cart) Quantity(bookID string) int {
	if i := c.index(bookID); i >= 0 {
		return c.Items[i].Quantity
	}
	return 0
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, l := range c.Items {
		n += l.Quantity
	}
	return n
}

func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

func (c *Cart) add(b Book, qty int) {
	if qty <= 0 {
		return
	}
	if i := c.index(b.ID); i >= 0 {
		c.Items[i].Quantity += qty
		c.Items[i].Book = b
	} else {
		c.Items = append(c.Items, CartLine{Book: b, Quantity: qty})
	}
	c.recompute()
}

func (c *Cart) setQuantity(bookID string, qty int) {
	i := c.index(bookID)
	if i < 0 {
		return
	}
	if qty <= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	} else {
		c.Items[i].Quantity = qty
	}
	c.recompute()
}

func (c *Cart) remove(bookID string) { c.setQuantity(bookID, 0) }

func (c *Cart) clone() *Cart {
	return &Cart{Items: append([]CartLine(nil), c.Items...), Total: c.Total}
}

func (c *Cart) clear() {
	c.Items = nil
	c.recompute()
}

// snapshot trims a book down to what a cart line needs to render.
func snapshot(b Book) Book {
	return Book{
		ID:                 b.ID,
		Title:              b.Title,
		Author:             b.Author,
		Price:              b.Price,
		OriginalPrice:      b.OriginalPrice,
		DiscountPercentage: b.DiscountPercentage,
		CoverImage:         b.CoverImage,
		Stock:              b.Stock,
	}
}

// decodeCart rebuilds a cart from its stored blob, folding duplicate lines and dropping empty ones.
func decodeCart(blob []byte) (*Cart, error) {
	c := &Cart{}
	if len(blob) == 0 {
		return c, nil
	}
	var lines []CartLine
	if err := json.Unmarshal(blob, &lines); err != nil {
		return c, fmt.Errorf("decode cart: %w", err)
	}
	for _, l := range lines {
		if l.Book.ID == "" || l.Quantity <= 0 {
			continue
		}
		c.add(l.Book, l.Quantity)
	}
	c.recompute()
	return c, nil
}

func encodeCart(c *Cart) ([]byte, error) {
	lines := c.Items
	if lines == nil {
		lines = []CartLine{}
	}
	return json.Marshal(lines)
}

type Receipt struct {
	OrderNumber string      `json:"orderNumber"`
	OrderDate   time.Time   `json:"orderDate"`
	Status      string      `json:"status,omitempty"`
	Items       []CartLine  `json:"items"`
	Total       money.Money `json:"total"`
}

// CartManager is the visitor's cart for the duration of one request.
type CartManager interface {
	Cart(ctx context.Context) (*Cart, error)
	Add(ctx context.Context, b Book, qty int) (*Cart, error)
	UpdateQuantity(ctx context.Context, bookID string, qty int) (*Cart, error)
	Decrement(ctx context.Context, bookID string) (*Cart, error)
	Remove(ctx context.Context, bookID string) (*Cart, error)
	Clear(ctx context.Context) (*Cart, error)
	Checkout(ctx context.Context) (*Receipt, error)
}

// CartManagerFactory binds a CartManager to the current visitor.
type CartManagerFactory func(w http.ResponseWriter, r *http.Request) CartManager

// StoredCarts keeps the cart as a blob in storage (signed cookie or server session).
func StoredCarts(storage Storage, now func() time.Time) CartManagerFactory {
	return func(w http.ResponseWriter, r *http.Request) CartManager {
		return &storedCartManager{storage: storage, w: w, r: r, now: now, log: hlog.FromRequest(r)}
	}
}

type storedCartManager struct {
	storage Storage
	w       http.ResponseWriter
	r       *http.Request
	now     func() time.Time
	log     *zerolog.Logger
	cart    *Cart
}

func (m *storedCartManager) load() *Cart {
	if m.cart != nil {
		return m.cart
	}
	blob, err := m.storage.Load(m.r, cartKey)
	if err != nil {
		m.log.Warn().Err(err).Str("customer", CustomerID(m.r.Context())).Msg("discarding stored cart")
		m.cart = &Cart{}
		return m.cart
	}
	c, err := decodeCart(blob)
	if err != nil {
		m.log.Warn().Err(err).Str("customer", CustomerID(m.r.Context())).Msg("discarding stored cart")
	}
	m.cart = c
	return m.cart
}

// edit returns a copy of the loaded cart; save adopts it only once it is stored.
func (m *storedCartManager) edit() *Cart { return m.load().clone() }

func (m *storedCartManager) save(c *Cart) (*Cart, error) {
	blob, err := encodeCart(c)
	if err != nil {
		return nil, err
	}
	if err := m.storage.Save(m.w, m.r, cartKey, blob); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	m.cart = c
	return c, nil
}

func (m *storedCartManager) Cart(context.Context) (*Cart, error) { return m.load(), nil }

func (m *storedCartManager) Add(_ context.Context, b Book, qty int) (*Cart, error) {
	c := m.edit()
	c.add(snapshot(b), qty)
	return m.save(c)
}

func (m *storedCartManager) UpdateQuantity(_ context.Context, bookID string, qty int) (*Cart, error) {
	c := m.edit()
	c.setQuantity(bookID, qty)
	return m.save(c)
}

func (m *storedCartManager) Decrement(_ context.Context, bookID string) (*Cart, error) {
	c := m.edit()
	c.setQuantity(bookID, c.Quantity(bookID)-1)
	return m.save(c)
}

func (m *storedCartManager) Remove(_ context.Context, bookID string) (*Cart, error) {
	c := m.edit()
	c.remove(bookID)
	return m.save(c)
}

func (m *storedCartManager) Clear(context.Context) (*Cart, error) {
	c := m.edit()
	c.clear()
	return m.save(c)
}

func (m *storedCartManager) Checkout(ctx context.Context) (*Receipt, error) {
	c := m.load()
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}
	receipt := &Receipt{
		OrderNumber: uuid.NewString(),
		OrderDate:   m.now().UTC(),
		Items:       append([]CartLine(nil), c.Items...),
		Total:       c.Total,
	}
	if _, err := m.Clear(ctx); err != nil {
		return nil, err
	}
	return receipt, nil
}

// RemoteCarts delegates every operation to the cart service, keyed by CustomerId.
func RemoteCarts(base string, client *http.Client) CartManagerFactory {
	return func(_ http.ResponseWriter, r *http.Request) CartManager {
		return &remoteCartManager{base: base, client: client, customer: CustomerID(r.Context())}
	}
}

type remoteCartManager struct {
	base     string
	client   *http.Client
	customer string
}

// remoteCartView is the cart service's JSON cart.
type remoteCartView struct {
	CustomerID string           `json:"customerId"`
	Items      []remoteCartItem `json:"items"`
	Total      money.Money      `json:"total"`
}

type remoteCartItem struct {
	BookID     string      `json:"bookId"`
	Title      string      `json:"title"`
	Quantity   int         `json:"quantity"`
	UnitPrice  money.Money `json:"unitPrice"`
	CoverImage string      `json:"coverImage"`
}

func (it remoteCartItem) line() CartLine {
	return CartLine{Book: Book{ID: it.BookID, Title: it.Title, Price: it.UnitPrice, CoverImage: it.CoverImage}, Quantity: it.Quantity}
}

func (v remoteCartView) cart() *Cart {
	c := &Cart{}
	for _, it := range v.Items {
		c.Items = append(c.Items, it.line())
	}
	c.recompute()
	return c
}

func (m *remoteCartManager) path(op string, rest ...string) string {
	p := m.base + "/" + op + "/" + url.PathEscape(m.customer)
	for _, s := range rest {
		p += "/" + url.PathEscape(s)
	}
	return p
}

func (m *remoteCartManager) do(ctx context.Context, method, target string, body any, v any) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("X-Api-Version", "1")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("cart service: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("cart service read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UpstreamError{Status: resp.StatusCode, Message: upstreamMessage(raw, resp.Status)}
	}
	data := gjson.GetBytes(raw, "data")
	if !data.Exists() {
		return errors.New("cart service: response has no data")
	}
	return json.Unmarshal([]byte(data.Raw), v)
}

func (m *remoteCartManager) cartCall(ctx context.Context, method, target string, body any) (*Cart, error) {
	var v remoteCartView
	if err := m.do(ctx, method, target, body, &v); err != nil {
		return nil, err
	}
	return v.cart(), nil
}

func (m *remoteCartManager) Cart(ctx context.Context) (*Cart, error) {
	return m.cartCall(ctx, http.MethodGet, m.path("get-cart"), nil)
}

func (m *remoteCartManager) Add(ctx context.Context, b Book, qty int) (*Cart, error) {
	return m.cartCall(ctx, http.MethodPost, m.path("add-item")+"/items", map[string]any{"bookId": b.ID, "quantity": qty})
}

func (m *remoteCartManager) UpdateQuantity(ctx context.Context, bookID string, qty int) (*Cart, error) {
	return m.cartCall(ctx, http.MethodPatch, m.path("update-item")+"/items/"+url.PathEscape(bookID), map[string]any{"quantity": qty})
}

func (m *remoteCartManager) Decrement(ctx context.Context, bookID string) (*Cart, error) {
	return m.cartCall(ctx, http.MethodPatch, m.path("decrement-item")+"/items/"+url.PathEscape(bookID), nil)
}

func (m *remoteCartManager) Remove(ctx context.Context, bookID string) (*Cart, error) {
	return m.cartCall(ctx, http.MethodDelete, m.path("remove-item")+"/items/"+url.PathEscape(bookID), nil)
}

func (m *remoteCartManager) Clear(ctx context.Context) (*Cart, error) {
	return m.cartCall(ctx, http.MethodDelete, m.path("clear-cart"), nil)
}

func (m *remoteCartManager) Checkout(ctx context.Context) (*Receipt, error) {
	var v struct {
		OrderNumber string           `json:"orderNumber"`
		OrderDate   time.Time        `json:"orderDate"`
		Items       []remoteCartItem `json:"items"`
		Total       money.Money      `json:"total"`
	}
	err := m.do(ctx, http.MethodPost, m.path("checkout"), nil, &v)
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.Status == http.StatusConflict && ue.Message == ErrEmptyCart.Error() {
		return nil, ErrEmptyCart
	}
	if err != nil {
		return nil, err
	}
	r := &Receipt{OrderNumber: v.OrderNumber, OrderDate: v.OrderDate, Total: v.Total}
	for _, it := range v.Items {
		r.Items = append(r.Items, it.line())
	}
	return r, nil
}
