package main

import (
	"strconv"
	"time"

	"github.com/ahinestrog/bookstore-storefront/pkg/money"
	"github.com/ahinestrog/bookstore-storefront/rpc/catalogrpc"
)

type Book struct {
	ID                 int64
	Title              string
	Author             string
	AuthorID           int64
	PriceCents         int64
	CoverURL           string
	Description        string
	ISBN               string
	Pages              int32
	PublicationDate    time.Time
	CategoryID         string
	Category           string
	Stock              int32
	DiscountPercentage int32
	Rating             float64
	Visible            bool
	CreatedUnix        int64
}

// BookDTO is the REST shape of a book.
type BookDTO struct {
	ID                 string       `json:"id"`
	Title              string       `json:"title"`
	Author             string       `json:"author"`
	AuthorID           int64        `json:"authorId"`
	Price              money.Money  `json:"price"`
	OriginalPrice      *money.Money `json:"originalPrice,omitempty"`
	DiscountPercentage int32        `json:"discountPercentage,omitempty"`
	CoverImage         string       `json:"coverImage"`
	Description        string       `json:"description"`
	ISBN               string       `json:"isbn"`
	Pages              int32        `json:"pages"`
	PublishYear        int          `json:"publishYear"`
	PublicationDate    string       `json:"publicationDate"`
	CategoryID         string       `json:"categoryId,omitempty"`
	Category           string       `json:"category,omitempty"`
	Stock              int32        `json:"stock"`
	Rating             float64      `json:"rating,omitempty"`
	Visible            bool         `json:"visible"`
	IsNew              bool         `json:"isNew"`
}

type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Page mirrors the paged list shape the storefront consumes.
type Page[T any] struct {
	Content       []T   `json:"content"`
	PageNumber    int32 `json:"pageNumber"`
	PageSize      int32 `json:"pageSize"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int32 `json:"totalPages"`
	Last          bool  `json:"last"`
}

// newReleaseYears is how recent a publication has to be for a book to count as new.
const newReleaseYears = 30

// salePrice is the price after discount.
func (b *Book) salePrice() money.Money {
	return money.FromCents(b.PriceCents).Discount(int(b.DiscountPercentage))
}

func (b *Book) isNew(now time.Time) bool {
	return !b.PublicationDate.IsZero() && now.Year()-b.PublicationDate.Year() <= newReleaseYears
}

// ---- entity mapping ----

func bookToDTO(b *Book, now time.Time) BookDTO {
	dto := BookDTO{
		ID:              strconv.FormatInt(b.ID, 10),
		Title:           b.Title,
		Author:          b.Author,
		AuthorID:        b.AuthorID,
		Price:           b.salePrice(),
		CoverImage:      b.CoverURL,
		Description:     b.Description,
		ISBN:            b.ISBN,
		Pages:           b.Pages,
		PublishYear:     b.PublicationDate.Year(),
		PublicationDate: b.PublicationDate.Format(time.DateOnly),
		CategoryID:      b.CategoryID,
		Category:        b.Category,
		Stock:           b.Stock,
		Rating:          b.Rating,
		Visible:         b.Visible,
		IsNew:           b.isNew(now),
	}
	if b.DiscountPercentage > 0 {
		orig := money.FromCents(b.PriceCents)
		dto.OriginalPrice = &orig
		dto.DiscountPercentage = b.DiscountPercentage
	}
	return dto
}

func bookToRPC(b *Book) *catalogrpc.Book {
	return &catalogrpc.Book{
		Id:                 strconv.FormatInt(b.ID, 10),
		Title:              b.Title,
		Author:             b.Author,
		AuthorId:           b.AuthorID,
		Price:              b.salePrice(),
		CoverImage:         b.CoverURL,
		Isbn:               b.ISBN,
		CategoryId:         b.CategoryID,
		Category:           b.Category,
		Stock:              b.Stock,
		Visible:            b.Visible,
		DiscountPercentage: b.DiscountPercentage,
	}
}

func newPage[T any](content []T, page, size int32, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}
	totalPages := int32(0)
	if size > 0 {
		totalPages = int32((total + int64(size) - 1) / int64(size))
	}
	return Page[T]{
		Content:       content,
		PageNumber:    page,
		PageSize:      size,
		TotalElements: total,
		TotalPages:    totalPages,
		Last:          page+1 >= totalPages,
	}
}
