package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/tidwall/gjson"

	"github.com/ahinestrog/bookstore-storefront/pkg/money"
)

var ErrBookNotFound = errors.New("book not found")

// Book is the storefront's view of a catalogue entry.
type Book struct {
	ID                 string       `json:"id"`
	Title              string       `json:"title"`
	Author             string       `json:"author"`
	AuthorID           int64        `json:"authorId"`
	Price              money.Money  `json:"price"`
	OriginalPrice      *money.Money `json:"originalPrice,omitempty"`
	DiscountPercentage int32        `json:"discountPercentage,omitempty"`
	CoverImage         string       `json:"coverImage"`
	Description        string       `json:"description,omitempty"`
	ISBN               string       `json:"isbn,omitempty"`
	Pages              int32        `json:"pages,omitempty"`
	PublishYear        int          `json:"publishYear,omitempty"`
	PublicationDate    string       `json:"publicationDate,omitempty"`
	CategoryID         string       `json:"categoryId,omitempty"`
	Category           string       `json:"category,omitempty"`
	Stock              int32        `json:"stock"`
	Rating             float64      `json:"rating,omitempty"`
	IsNew              bool         `json:"isNew,omitempty"`
}

type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

type BookPage struct {
	Content       []Book `json:"content"`
	PageNumber    int32  `json:"pageNumber"`
	PageSize      int32  `json:"pageSize"`
	TotalElements int64  `json:"totalElements"`
	TotalPages    int32  `json:"totalPages"`
	Last          bool   `json:"last"`
}

// UpstreamError is a non-2xx answer from a backend service.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %d: %s", e.Status, e.Message)
}

// Catalogue is what the pages need from the catalogue service.
type Catalogue interface {
	Book(ctx context.Context, id string, fresh bool) (*Book, error)
	List(ctx context.Context, page, size int) (*BookPage, error)
	Search(ctx context.Context, params url.Values) ([]Book, error)
	Categories(ctx context.Context) ([]Category, error)
}

// CatalogueClient talks to the catalogue REST surface and caches GET bodies briefly.
type CatalogueClient struct {
	base   string
	client *http.Client
	cache  *expirable.LRU[string, []byte]
}

func NewCatalogueClient(base string, client *http.Client, cacheSize int, ttl time.Duration) *CatalogueClient {
	return &CatalogueClient{
		base:   base,
		client: client,
		cache:  expirable.NewLRU[string, []byte](cacheSize, nil, ttl),
	}
}

func (c *CatalogueClient) Book(ctx context.Context, id string, fresh bool) (*Book, error) {
	var b Book
	err := c.get(ctx, "/find-by-id/"+url.PathEscape(id), fresh, &b)
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.Status == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", id, ErrBookNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *CatalogueClient) List(ctx context.Context, page, size int) (*BookPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	var p BookPage
	if err := c.get(ctx, "?"+q.Encode(), false, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *CatalogueClient) Search(ctx context.Context, params url.Values) ([]Book, error) {
	var out []Book
	if err := c.get(ctx, "/search?"+params.Encode(), false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CatalogueClient) Categories(ctx context.Context) ([]Category, error) {
	var out []Category
	if err := c.get(ctx, "/categories", false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// get fetches base+path and decodes the envelope's data field into v.
func (c *CatalogueClient) get(ctx context.Context, path string, fresh bool, v any) error {
	target := c.base + path
	body, ok := []byte(nil), false
	if !fresh {
		body, ok = c.cache.Get(target)
	}
	if !ok {
		var err error
		body, err = c.fetch(ctx, target)
		if err != nil {
			return err
		}
		c.cache.Add(target, body)
	}

	data := gjson.GetBytes(body, "data")
	if !data.Exists() {
		// empty results come back without a data field
		return nil
	}
	if err := json.Unmarshal([]byte(data.Raw), v); err != nil {
		return fmt.Errorf("catalogue %s: decode: %w", path, err)
	}
	return nil
}

func (c *CatalogueClient) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Version", "1")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalogue request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("catalogue read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Status: resp.StatusCode, Message: upstreamMessage(body, resp.Status)}
	}
	if res := gjson.GetBytes(body, "success"); res.Exists() && !res.Bool() {
		return nil, &UpstreamError{Status: resp.StatusCode, Message: upstreamMessage(body, "unsuccessful response")}
	}
	return body, nil
}

func upstreamMessage(body []byte, fallback string) string {
	if m := gjson.GetBytes(body, "message"); m.Exists() && m.String() != "" {
		return m.String()
	}
	return fallback
}

// relatedBooks merges the author and category lists, dropping duplicates and the book itself.
func relatedBooks(self string, lists [][]Book, limit int) []Book {
	seen := map[string]bool{self: true}
	out := make([]Book, 0, limit)
	for _, list := range lists {
		for _, b := range list {
			if seen[b.ID] {
				continue
			}
			seen[b.ID] = true
			out = append(out, b)
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}

// newestBooks returns up to n books, most recent publication year first.
func newestBooks(books []Book, n int) []Book {
	sorted := append([]Book(nil), books...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PublishYear > sorted[j].PublishYear })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// onSale keeps the discounted books.
func onSale(books []Book) []Book {
	out := make([]Book, 0, len(books))
	for _, b := range books {
		if b.DiscountPercentage > 0 {
			out = append(out, b)
		}
	}
	return out
}
