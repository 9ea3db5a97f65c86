package main

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/sync/errgroup"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

const (
	relatedLimit     = 4
	newReleasesLimit = 4
	catalogueWindow  = 100
	featuredLimit    = 8
	flashCookie      = "flash"
	placeholderCover = "/static/cover-placeholder.svg"
	genericError     = "Error cargando datos. Intenta de nuevo más tarde."
)

// Storefront renders the shop pages on top of the catalogue and the visitor's cart.
type Storefront struct {
	catalogue Catalogue
	carts     CartManagerFactory
	orders    OrderHistory
	pages     map[string]*template.Template
	timeout   time.Duration
	secure    bool
}

// NewStorefront builds the page handlers. orders may be nil when no order service is configured.
func NewStorefront(catalogue Catalogue, carts CartManagerFactory, orders OrderHistory, timeout time.Duration, secure bool) (*Storefront, error) {
	pages, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	return &Storefront{catalogue: catalogue, carts: carts, orders: orders, pages: pages, timeout: timeout, secure: secure}, nil
}

func parseTemplates() (map[string]*template.Template, error) {
	funcs := template.FuncMap{
		"price": formatPrice,
		"cover": coverURL,
		"year":  func() int { return time.Now().Year() },
		"date":  func(t time.Time) string { return t.Format("02/01/2006 15:04") },
		"dict":  dict,
	}
	layout, err := template.New("layout.html").Funcs(funcs).ParseFS(templatesFS, "templates/layout.html", "templates/partials.html")
	if err != nil {
		return nil, err
	}
	names := []string{"landing", "home", "book", "list", "categories", "cart", "checkout", "receipt", "orders", "error"}
	pages := make(map[string]*template.Template, len(names))
	for _, name := range names {
		clone, err := layout.Clone()
		if err != nil {
			return nil, err
		}
		t, err := clone.ParseFS(templatesFS, "templates/"+name+".html")
		if err != nil {
			return nil, err
		}
		pages[name] = t
	}
	return pages, nil
}

// dict builds a map from alternating keys and values so partials can take several arguments.
func dict(kv ...any) (map[string]any, error) {
	if len(kv)%2 != 0 {
		return nil, errors.New("dict: odd number of arguments")
	}
	m := make(map[string]any, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			return nil, errors.New("dict: keys must be strings")
		}
		m[k] = kv[i+1]
	}
	return m, nil
}

// coverURL serves covers bundled under static/covers and falls back to a placeholder.
func coverURL(p string) string {
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	if strings.HasPrefix(p, "/") {
		if _, err := fs.Stat(staticFS, "static/covers"+p); err == nil {
			return "/static/covers" + p
		}
	}
	return placeholderCover
}

type pageData struct {
	Title     string
	Flash     string
	Error     string
	CartCount int
	Query     string
	Data      any

	// cart is the visitor's cart when the handler already holds it.
	cart *Cart
}

func (s *Storefront) render(w http.ResponseWriter, r *http.Request, status int, name string, d pageData) {
	d.Flash = s.takeFlash(w, r)
	if d.cart != nil {
		d.CartCount = d.cart.ItemCount()
	} else if c, err := s.carts(w, r).Cart(r.Context()); err == nil {
		d.CartCount = c.ItemCount()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.pages[name].ExecuteTemplate(w, "layout.html", d); err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("template", name).Msg("template execute")
	}
}

func (s *Storefront) renderError(w http.ResponseWriter, r *http.Request, status int, msg string, err error) {
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("page failed")
	}
	s.render(w, r, status, "error", pageData{Title: "Error", Error: msg})
}

func (s *Storefront) setFlash(w http.ResponseWriter, msg string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(msg),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Storefront) takeFlash(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(flashCookie)
	if err != nil || c.Value == "" {
		return ""
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1})
	msg, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}
	return msg
}

func (s *Storefront) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.timeout)
}

// ---- catalogue pages ----

func (s *Storefront) handleLanding(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "landing", pageData{Title: "Bienvenido"})
}

func (s *Storefront) handleHome(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.ctx(r)
	defer cancel()

	page, err := s.catalogue.List(ctx, 0, catalogueWindow)
	if err != nil {
		s.renderError(w, r, http.StatusBadGateway, genericError, err)
		return
	}
	featured := page.Content
	if len(featured) > featuredLimit {
		featured = featured[:featuredLimit]
	}
	s.render(w, r, http.StatusOK, "home", pageData{
		Title: "Inicio",
		Data: struct {
			Featured    []Book
			NewReleases []Book
			Offers      []Book
		}{featured, newestBooks(page.Content, newReleasesLimit), onSale(page.Content)},
	})
}

func (s *Storefront) handleBook(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.ctx(r)
	defer cancel()

	id := chi.URLParam(r, "id")
	book, err := s.catalogue.Book(ctx, id, false)
	if errors.Is(err, ErrBookNotFound) {
		s.renderError(w, r, http.StatusNotFound, "No encontramos ese libro.", nil)
		return
	}
	if err != nil {
		s.renderError(w, r, http.StatusBadGateway, genericError, err)
		return
	}

	cart, err := s.carts(w, r).Cart(ctx)
	inCart := 0
	if err == nil {
		inCart = cart.Quantity(book.ID)
	}
	s.render(w, r, http.StatusOK, "book", pageData{
		Title: book.Title,
		Data: struct {
			Book    *Book
			Related []Book
			InCart  int
		}{book, s.related(ctx, r, book), inCart},
	})
}

// related fetches the same-author and same-category lists concurrently.
func (s *Storefront) related(ctx context.Context, r *http.Request, b *Book) []Book {
	var byAuthor, byCategory []Book
	g, gctx := errgroup.WithContext(ctx)
	// An empty filter would match the whole catalogue, so unknown authors and
	// uncategorised books skip that lookup.
	if b.AuthorID != 0 {
		g.Go(func() error {
			var err error
			byAuthor, err = s.catalogue.Search(gctx, url.Values{"authorId": {strconv.FormatInt(b.AuthorID, 10)}})
			return err
		})
	}
	if b.CategoryID != "" {
		g.Go(func() error {
			var err error
			byCategory, err = s.catalogue.Search(gctx, url.Values{"categoryId": {b.CategoryID}})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("book", b.ID).Msg("related books unavailable")
		return nil
	}
	return relatedBooks(b.ID, [][]Book{byAuthor, byCategory}, relatedLimit)
}

type listData struct {
	Heading string
	Intro   string
	Books   []Book
	Empty   string
}

func (s *Storefront) handleCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.ctx(r)
	defer cancel()

	selected := r.URL.Query().Get("category")
	if selected == "" {
		selected = "all"
	}
	cats, err := s.catalogue.Categories(ctx)
	if err != nil {
		s.renderError(w, r, http.StatusBadGateway, genericError, err)
		return
	}
	var books []Book
	if selected == "all" {
		page, err := s.catalogue.List(ctx, 0, catalogueWindow)
		if err != nil {
			s.renderError(w, r, http.StatusBadGateway, genericError, err)
			return
		}
		books = page.Content
	} else {
		books, err = s.catalogue.Search(ctx, url.Values{"categoryId": {selected}})
		if err != nil {
			s.renderError(w, r, http.StatusBadGateway, genericError, err)
			return
		}
	}
	s.render(w, r, http.StatusOK, "categories", pageData{
		Title: "Categorías",
		Data: struct {
			Categories []Category
			Selected   string
			List       listData
		}{cats, selected, listData{
			Heading: "Categorías",
			Intro:   "Explora nuestra colección de libros por categorías",
			Books:   books,
			Empty:   "No hay libros disponibles en esta categoría",
		}},
	})
}

func (s *Storefront) handleOffers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.ctx(r)
	defer cancel()

	books, err := s.catalogue.Search(ctx, url.Values{"onSale": {"true"}})
	if err != nil {
		s.renderError(w, r, http.StatusBadGateway, genericError, err)
		return
	}
	s.render(w, r, http.StatusOK, "list", pageData{Title: "Ofertas", Data: listData{
		Heading: "Ofertas especiales",
		Intro:   "Descuentos por tiempo limitado en libros seleccionados",
		Books:   books,
		Empty:   "No hay ofertas disponibles en este momento",
	}})
}

func (s *Storefront) handleNewReleases(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.ctx(r)
	defer cancel()

	page, err := s.catalogue.List(ctx, 0, catalogueWindow)
	if err != nil {
		s.renderError(w, r, http.StatusBadGateway, genericError, err)
		return
	}
	s.render(w, r, http.StatusOK, "list", pageData{Title: "Novedades", Data: listData{
		Heading: "Novedades",
		Intro:   "Los libros publicados más recientemente",
		Books:   newestBooks(page.Content, newReleasesLimit),
		Empty:   "No hay novedades",
	}})
}

func (s *Storefront) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	d := listData{Heading: "Buscar", Empty: "Escribe un título, autor o ISBN para buscar"}
	if q != "" {
		ctx, cancel := s.ctx(r)
		defer cancel()
		books, err := s.catalogue.Search(ctx, url.Values{"q": {q}})
		if err != nil {
			s.renderError(w, r, http.StatusBadGateway, genericError, err)
			return
		}
		d.Heading = "Resultados para “" + q + "”"
		d.Books = books
		d.Empty = "No se encontraron libros"
	}
	s.render(w, r, http.StatusOK, "list", pageData{Title: "Buscar", Query: q, Data: d})
}

// ---- cart pages ----

func (s *Storefront) handleCart(w http.ResponseWriter, r *http.Request) {
	cart, err := s.carts(w, r).Cart(r.Context())
	if err != nil {
		s.renderError(w, r, http.StatusBadGateway, genericError, err)
		return
	}
	s.render(w, r, http.StatusOK, "cart", pageData{Title: "Carrito", Data: cart, cart: cart})
}

func formQuantity(r *http.Request, def int) (int, error) {
	v := strings.TrimSpace(r.PostFormValue("quantity"))
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// backTo is the local page to return to after a cart action.
func backTo(r *http.Request, def string) string {
	to := r.PostFormValue("redirect")
	if strings.HasPrefix(to, "/") && !strings.HasPrefix(to, "//") && !strings.HasPrefix(to, "/\\") {
		return to
	}
	return def
}

func (s *Storefront) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	bookID := r.PostFormValue("bookId")
	qty, err := formQuantity(r, 1)
	if bookID == "" || err != nil || qty < 1 {
		s.setFlash(w, "Cantidad no válida.")
		http.Redirect(w, r, backTo(r, "/home"), http.StatusSeeOther)
		return
	}
	back := backTo(r, "/book/"+url.PathEscape(bookID))

	ctx, cancel := s.ctx(r)
	defer cancel()
	carts := s.carts(w, r)

	// stock is re-read from the catalogue, never taken from a cached listing
	book, err := s.catalogue.Book(ctx, bookID, true)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("book", bookID).Msg("stock check failed")
		s.setFlash(w, "No pude validar el stock. Intenta de nuevo más tarde.")
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}
	cart, err := carts.Cart(ctx)
	if err != nil {
		s.cartFailed(w, r, back, err)
		return
	}
	if already := cart.Quantity(book.ID); already+qty > int(book.Stock) {
		s.setFlash(w, "Superaste el máximo del stock: pediste "+strconv.Itoa(qty)+
			", las unidades disponibles son "+strconv.Itoa(int(book.Stock)-already)+".")
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}
	if _, err := carts.Add(ctx, *book, qty); err != nil {
		s.cartFailed(w, r, back, err)
		return
	}
	s.setFlash(w, "¡Añadido al carrito!")
	http.Redirect(w, r, back, http.StatusSeeOther)
}

func (s *Storefront) handleCartUpdate(w http.ResponseWriter, r *http.Request) {
	bookID := r.PostFormValue("bookId")
	qty, err := formQuantity(r, 0)
	if bookID == "" || err != nil {
		s.setFlash(w, "Cantidad no válida.")
		http.Redirect(w, r, "/cart", http.StatusSeeOther)
		return
	}
	ctx, cancel := s.ctx(r)
	defer cancel()

	if qty > 0 {
		book, err := s.catalogue.Book(ctx, bookID, true)
		if err != nil {
			s.cartFailed(w, r, "/cart", err)
			return
		}
		if qty > int(book.Stock) {
			s.setFlash(w, "Solo quedan "+strconv.Itoa(int(book.Stock))+" unidades de "+book.Title+".")
			http.Redirect(w, r, "/cart", http.StatusSeeOther)
			return
		}
	}
	if _, err := s.carts(w, r).UpdateQuantity(ctx, bookID, qty); err != nil {
		s.cartFailed(w, r, "/cart", err)
		return
	}
	http.Redirect(w, r, backTo(r, "/cart"), http.StatusSeeOther)
}

func (s *Storefront) handleCartDecrement(w http.ResponseWriter, r *http.Request) {
	s.cartAction(w, r, func(ctx context.Context, m CartManager) error {
		_, err := m.Decrement(ctx, r.PostFormValue("bookId"))
		return err
	})
}

func (s *Storefront) handleCartRemove(w http.ResponseWriter, r *http.Request) {
	s.cartAction(w, r, func(ctx context.Context, m CartManager) error {
		_, err := m.Remove(ctx, r.PostFormValue("bookId"))
		return err
	})
}

func (s *Storefront) handleCartClear(w http.ResponseWriter, r *http.Request) {
	s.cartAction(w, r, func(ctx context.Context, m CartManager) error {
		_, err := m.Clear(ctx)
		return err
	})
}

func (s *Storefront) cartAction(w http.ResponseWriter, r *http.Request, fn func(context.Context, CartManager) error) {
	ctx, cancel := s.ctx(r)
	defer cancel()
	if err := fn(ctx, s.carts(w, r)); err != nil {
		s.cartFailed(w, r, "/cart", err)
		return
	}
	http.Redirect(w, r, backTo(r, "/cart"), http.StatusSeeOther)
}

func (s *Storefront) cartFailed(w http.ResponseWriter, r *http.Request, back string, err error) {
	hlog.FromRequest(r).Error().Err(err).Str("customer", CustomerID(r.Context())).Msg("cart operation failed")
	if errors.Is(err, ErrStorageFull) {
		s.setFlash(w, "Tu carrito está lleno. Finaliza la compra o quita algún libro para seguir añadiendo.")
	} else {
		s.setFlash(w, "No pudimos actualizar tu carrito. Intenta de nuevo más tarde.")
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}

func (s *Storefront) handleCheckout(w http.ResponseWriter, r *http.Request) {
	cart, err := s.carts(w, r).Cart(r.Context())
	if err != nil {
		s.renderError(w, r, http.StatusBadGateway, genericError, err)
		return
	}
	if cart.IsEmpty() {
		s.setFlash(w, "Tu carrito está vacío")
		http.Redirect(w, r, "/cart", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "checkout", pageData{Title: "Finalizar compra", Data: cart, cart: cart})
}

func (s *Storefront) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.ctx(r)
	defer cancel()

	receipt, err := s.carts(w, r).Checkout(ctx)
	if errors.Is(err, ErrEmptyCart) {
		s.setFlash(w, "Tu carrito está vacío")
		http.Redirect(w, r, "/cart", http.StatusSeeOther)
		return
	}
	if err != nil {
		s.cartFailed(w, r, "/checkout", err)
		return
	}
	hlog.FromRequest(r).Info().Str("order", receipt.OrderNumber).Str("customer", CustomerID(r.Context())).Msg("order placed")
	s.render(w, r, http.StatusOK, "receipt", pageData{Title: "Pedido realizado", Data: receipt, cart: &Cart{}})
}

func (s *Storefront) handleOrders(w http.ResponseWriter, r *http.Request) {
	var orders []Receipt
	if s.orders != nil {
		ctx, cancel := s.ctx(r)
		defer cancel()
		var err error
		orders, err = s.orders.Orders(ctx, CustomerID(r.Context()))
		if err != nil {
			s.renderError(w, r, http.StatusBadGateway, genericError, err)
			return
		}
	}
	s.render(w, r, http.StatusOK, "orders", pageData{Title: "Mis pedidos", Data: struct {
		Available bool
		Orders    []Receipt
	}{s.orders != nil, orders}})
}
