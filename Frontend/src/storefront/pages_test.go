package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahinestrog/bookstore-storefront/pkg/httpx"
	"github.com/ahinestrog/bookstore-storefront/pkg/money"
)

type fakeCatalogue struct {
	books []Book
	cats  []Category
	err   error

	mu       sync.Mutex
	fresh    []string
	searches []url.Values
}

func (f *fakeCatalogue) searched() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.searches...)
}

func (f *fakeCatalogue) freshReads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fresh...)
}

func (f *fakeCatalogue) Book(_ context.Context, id string, fresh bool) (*Book, error) {
	if f.err != nil {
		return nil, f.err
	}
	if fresh {
		f.mu.Lock()
		f.fresh = append(f.fresh, id)
		f.mu.Unlock()
	}
	for _, b := range f.books {
		if b.ID == id {
			b := b
			return &b, nil
		}
	}
	return nil, ErrBookNotFound
}

func (f *fakeCatalogue) List(_ context.Context, page, size int) (*BookPage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &BookPage{Content: f.books, PageNumber: int32(page), PageSize: int32(size), TotalElements: int64(len(f.books)), TotalPages: 1, Last: true}, nil
}

// Search ignores empty filters and authorId=0 the way the catalogue service does.
func (f *fakeCatalogue) Search(_ context.Context, q url.Values) ([]Book, error) {
	f.mu.Lock()
	f.searches = append(f.searches, q)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	author := q.Get("authorId")
	if author == "0" {
		author = ""
	}
	var out []Book
	for _, b := range f.books {
		switch {
		case author != "" && author != strconv.FormatInt(b.AuthorID, 10):
		case q.Get("categoryId") != "" && q.Get("categoryId") != b.CategoryID:
		case q.Get("onSale") == "true" && b.DiscountPercentage == 0:
		case q.Get("q") != "" && !strings.Contains(strings.ToLower(b.Title), strings.ToLower(q.Get("q"))):
		default:
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeCatalogue) Categories(context.Context) ([]Category, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cats, nil
}

func discounted(b Book, pct int32) Book {
	orig := b.Price
	b.OriginalPrice = &orig
	b.Price = orig.Discount(int(pct))
	b.DiscountPercentage = pct
	return b
}

func testCatalogue() *fakeCatalogue {
	return &fakeCatalogue{
		books: []Book{
			{ID: "2", Title: "1984", Author: "George Orwell", AuthorID: 2, Price: money.MustParse("15.50"), CategoryID: "mystery", Category: "Misterio", Stock: 8, PublishYear: 1949},
			discounted(Book{ID: "3", Title: "El principito", Author: "Antoine de Saint-Exupéry", AuthorID: 3, Price: money.MustParse("12.99"), CategoryID: "fiction", Category: "Ficción", Stock: 20, PublishYear: 1943}, 25),
			{ID: "4", Title: "Don Quijote de la Mancha", Author: "Miguel de Cervantes", AuthorID: 4, Price: money.MustParse("24.99"), CategoryID: "classic", Category: "Clásicos", Stock: 5, PublishYear: 1605},
			discounted(Book{ID: "5", Title: "Harry Potter y la piedra filosofal", Author: "J.K. Rowling", AuthorID: 5, Price: money.MustParse("17.95"), CategoryID: "fantasy", Category: "Fantasía", Stock: 2, PublishYear: 1997}, 20),
			{ID: "6", Title: "Orgullo y prejuicio", Author: "Jane Austen", AuthorID: 6, Price: money.MustParse("16.50"), CategoryID: "classic", Category: "Clásicos", Stock: 3, PublishYear: 1813},
		},
		cats: []Category{
			{ID: "classic", Name: "Clásicos", Count: 2},
			{ID: "fantasy", Name: "Fantasía", Count: 1},
			{ID: "romance", Name: "Romance", Count: 0},
		},
	}
}

func newTestStorefront(t *testing.T, cat Catalogue) *httptest.Server {
	t.Helper()
	return newTestStorefrontWithOrders(t, cat, nil)
}

func newTestStorefrontWithOrders(t *testing.T, cat Catalogue, orders OrderHistory) *httptest.Server {
	t.Helper()
	storage, err := NewCookieStorage([]byte("0123456789abcdef"), false)
	require.NoError(t, err)
	store, err := NewStorefront(cat, StoredCarts(storage, time.Now), orders, time.Second, false)
	require.NoError(t, err)

	srv := httptest.NewServer(newRouter(routerDeps{
		log:         zerolog.Nop(),
		store:       store,
		books:       http.NotFoundHandler(),
		cart:        http.NotFoundHandler(),
		limiter:     httpx.NewRateLimiter(100, 100, customerKeyFunc),
		metrics:     httpx.NewMetrics("storefront_test"),
		corsOrigins: "*",
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func fetch(t *testing.T, c *http.Client, method, target string, form url.Values) (int, string) {
	t.Helper()
	var resp *http.Response
	var err error
	if method == http.MethodPost {
		resp, err = c.PostForm(target, form)
	} else {
		resp, err = c.Get(target)
	}
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "14,36 €", formatPrice(money.MustParse("14.36")))
	assert.Equal(t, "1.234,56 €", formatPrice(money.MustParse("1234.56")))
	assert.Equal(t, "0,00 €", formatPrice(money.Money{}))
}

func TestCoverURL(t *testing.T) {
	assert.Equal(t, "https://cdn.example/c.png", coverURL("https://cdn.example/c.png"))
	assert.Equal(t, placeholderCover, coverURL("/missing-cover.png"))
	assert.Equal(t, placeholderCover, coverURL(""))
}

func TestBackTo(t *testing.T) {
	for to, want := range map[string]string{
		"/book/3":              "/book/3",
		"//evil.example":       "/cart",
		"https://evil.example": "/cart",
		"":                     "/cart",
	} {
		r := httptest.NewRequest(http.MethodPost, "/cart/add", strings.NewReader(url.Values{"redirect": {to}}.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		assert.Equal(t, want, backTo(r, "/cart"), to)
	}
}

func TestCataloguePages(t *testing.T) {
	srv := newTestStorefront(t, testCatalogue())
	browser := newBrowser(t)

	code, body := fetch(t, browser, http.MethodGet, srv.URL+"/", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Bienvenido")

	code, body = fetch(t, browser, http.MethodGet, srv.URL+"/home", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Harry Potter y la piedra filosofal")
	assert.Contains(t, body, "14,36 €")

	_, body = fetch(t, browser, http.MethodGet, srv.URL+"/offers", nil)
	assert.Contains(t, body, "El principito")
	assert.NotContains(t, body, "1984")

	_, body = fetch(t, browser, http.MethodGet, srv.URL+"/categories?category=classic", nil)
	assert.Contains(t, body, "Orgullo y prejuicio")
	assert.NotContains(t, body, "El principito")
	assert.Contains(t, body, "Romance (0)")

	_, body = fetch(t, browser, http.MethodGet, srv.URL+"/categories?category=romance", nil)
	assert.Contains(t, body, "No hay libros disponibles en esta categoría")

	_, body = fetch(t, browser, http.MethodGet, srv.URL+"/search?q=quijote", nil)
	assert.Contains(t, body, "Don Quijote de la Mancha")
	assert.NotContains(t, body, "Orgullo y prejuicio")
}

func TestBookPageShowsRelated(t *testing.T) {
	srv := newTestStorefront(t, testCatalogue())
	browser := newBrowser(t)

	code, body := fetch(t, browser, http.MethodGet, srv.URL+"/book/4", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Don Quijote de la Mancha")
	assert.Contains(t, body, "5 unidades disponibles")
	related := body[strings.Index(body, "También te puede interesar"):]
	assert.Contains(t, related, "Orgullo y prejuicio")
	assert.NotContains(t, related, "Don Quijote de la Mancha")

	code, body = fetch(t, browser, http.MethodGet, srv.URL+"/book/404", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body, "No encontramos ese libro.")
}

func TestUncategorisedBookHasNoUnrelatedSuggestions(t *testing.T) {
	cat := testCatalogue()
	cat.books = append(cat.books, Book{ID: "9", Title: "Cuaderno anónimo", Price: money.MustParse("5.00"), Stock: 1})
	srv := newTestStorefront(t, cat)

	code, body := fetch(t, newBrowser(t), http.MethodGet, srv.URL+"/book/9", nil)
	require.Equal(t, http.StatusOK, code)
	related := body[strings.Index(body, "También te puede interesar"):]
	assert.Contains(t, related, "No hay libros relacionados")
	assert.NotContains(t, related, "1984")
	assert.Empty(t, cat.searched())
}

func TestUpstreamFailureShowsGenericError(t *testing.T) {
	cat := testCatalogue()
	cat.err = errors.New("connection refused")
	srv := newTestStorefront(t, cat)

	code, body := fetch(t, newBrowser(t), http.MethodGet, srv.URL+"/home", nil)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, body, "Error cargando datos")
	assert.NotContains(t, body, "connection refused")
}

func TestAddToCartChecksStock(t *testing.T) {
	cat := testCatalogue()
	srv := newTestStorefront(t, cat)
	browser := newBrowser(t)

	_, body := fetch(t, browser, http.MethodPost, srv.URL+"/cart/add", url.Values{"bookId": {"5"}, "quantity": {"2"}})
	assert.Contains(t, body, "¡Añadido al carrito!")
	assert.Equal(t, []string{"5"}, cat.freshReads())

	_, body = fetch(t, browser, http.MethodPost, srv.URL+"/cart/add", url.Values{"bookId": {"5"}, "quantity": {"1"}})
	assert.Contains(t, body, "Superaste el máximo del stock: pediste 1, las unidades disponibles son 0.")

	_, body = fetch(t, browser, http.MethodGet, srv.URL+"/cart", nil)
	assert.Contains(t, body, "Harry Potter y la piedra filosofal")
	assert.Contains(t, body, "28,72 €")
	assert.Contains(t, body, `<span class="badge">2</span>`)

	_, body = fetch(t, browser, http.MethodPost, srv.URL+"/cart/add", url.Values{"bookId": {"5"}, "quantity": {"0"}})
	assert.Contains(t, body, "Cantidad no válida.")
}

func TestCartEditing(t *testing.T) {
	srv := newTestStorefront(t, testCatalogue())
	browser := newBrowser(t)

	fetch(t, browser, http.MethodPost, srv.URL+"/cart/add", url.Values{"bookId": {"2"}, "quantity": {"3"}})
	fetch(t, browser, http.MethodPost, srv.URL+"/cart/add", url.Values{"bookId": {"4"}})

	_, body := fetch(t, browser, http.MethodPost, srv.URL+"/cart/decrement", url.Values{"bookId": {"2"}})
	assert.Contains(t, body, `<span class="badge">3</span>`)

	_, body = fetch(t, browser, http.MethodPost, srv.URL+"/cart/update", url.Values{"bookId": {"2"}, "quantity": {"99"}})
	assert.Contains(t, body, "Solo quedan 8 unidades de 1984.")

	_, body = fetch(t, browser, http.MethodPost, srv.URL+"/cart/update", url.Values{"bookId": {"2"}, "quantity": {"0"}})
	assert.NotContains(t, body, "/book/2\"")
	assert.Contains(t, body, `<span class="badge">1</span>`)

	_, body = fetch(t, browser, http.MethodPost, srv.URL+"/cart/remove", url.Values{"bookId": {"4"}})
	assert.Contains(t, body, "Tu carrito está vacío")

	fetch(t, browser, http.MethodPost, srv.URL+"/cart/add", url.Values{"bookId": {"6"}})
	_, body = fetch(t, browser, http.MethodPost, srv.URL+"/cart/clear", nil)
	assert.Contains(t, body, "Tu carrito está vacío")
}

func TestCheckout(t *testing.T) {
	srv := newTestStorefront(t, testCatalogue())
	browser := newBrowser(t)

	_, body := fetch(t, browser, http.MethodGet, srv.URL+"/checkout", nil)
	assert.Contains(t, body, "Tu carrito está vacío")

	fetch(t, browser, http.MethodPost, srv.URL+"/cart/add", url.Values{"bookId": {"4"}, "quantity": {"2"}})

	code, body := fetch(t, browser, http.MethodGet, srv.URL+"/checkout", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "49,98 €")

	code, body = fetch(t, browser, http.MethodPost, srv.URL+"/checkout", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "¡Gracias por tu compra!")
	assert.Contains(t, body, "2 × Don Quijote de la Mancha")
	assert.Contains(t, body, `<span class="badge">0</span>`)

	_, body = fetch(t, browser, http.MethodGet, srv.URL+"/cart", nil)
	assert.Contains(t, body, "Tu carrito está vacío")

	_, body = fetch(t, browser, http.MethodPost, srv.URL+"/checkout", nil)
	assert.Contains(t, body, "Tu carrito está vacío")
}

func TestOperationalRoutes(t *testing.T) {
	srv := newTestStorefront(t, testCatalogue())
	browser := newBrowser(t)

	code, body := fetch(t, browser, http.MethodGet, srv.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, body = fetch(t, browser, http.MethodGet, srv.URL+"/static/style.css", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, ".topbar")

	code, _ = fetch(t, browser, http.MethodGet, srv.URL+"/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, code)

	fetch(t, browser, http.MethodGet, srv.URL+"/home", nil)
	_, body = fetch(t, browser, http.MethodGet, srv.URL+"/metrics", nil)
	assert.Contains(t, body, `storefront_test_http_requests_total{method="GET",path="/home",status="200"} 1`)
}
