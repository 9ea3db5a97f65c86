package main

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ahinestrog/bookstore-storefront/pkg/money"
)

//go:embed seed/books.yaml
var seedYAML []byte

type seedFile struct {
	Categories []struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"categories"`
	Books []struct {
		ID                 int64   `yaml:"id"`
		Title              string  `yaml:"title"`
		Author             string  `yaml:"author"`
		AuthorID           int64   `yaml:"authorId"`
		Price              string  `yaml:"price"`
		CoverImage         string  `yaml:"coverImage"`
		Description        string  `yaml:"description"`
		ISBN               string  `yaml:"isbn"`
		Pages              int32   `yaml:"pages"`
		PublicationDate    string  `yaml:"publicationDate"`
		Category           string  `yaml:"category"`
		Stock              int32   `yaml:"stock"`
		DiscountPercentage int32   `yaml:"discountPercentage"`
		Rating             float64 `yaml:"rating"`
		Hidden             bool    `yaml:"hidden"`
	} `yaml:"books"`
}

// parseSeed decodes the embedded catalogue into rows ready for Insert.
func parseSeed(raw []byte) ([]Category, []*Book, error) {
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, nil, fmt.Errorf("decode seed: %w", err)
	}
	names := make(map[string]string, len(f.Categories))
	cats := make([]Category, 0, len(f.Categories))
	for _, c := range f.Categories {
		names[c.ID] = c.Name
		cats = append(cats, Category{ID: c.ID, Name: c.Name})
	}

	books := make([]*Book, 0, len(f.Books))
	for _, s := range f.Books {
		price, err := money.Parse(s.Price)
		if err != nil {
			return nil, nil, fmt.Errorf("seed book %d: %w", s.ID, err)
		}
		published, err := time.Parse(time.DateOnly, s.PublicationDate)
		if err != nil {
			return nil, nil, fmt.Errorf("seed book %d: %w", s.ID, err)
		}
		name, ok := names[s.Category]
		if s.Category != "" && !ok {
			return nil, nil, fmt.Errorf("seed book %d: unknown category %q", s.ID, s.Category)
		}
		books = append(books, &Book{
			ID:                 s.ID,
			Title:              s.Title,
			Author:             s.Author,
			AuthorID:           s.AuthorID,
			PriceCents:         price.Cents,
			CoverURL:           s.CoverImage,
			Description:        s.Description,
			ISBN:               s.ISBN,
			Pages:              s.Pages,
			PublicationDate:    published,
			CategoryID:         s.Category,
			Category:           name,
			Stock:              s.Stock,
			DiscountPercentage: s.DiscountPercentage,
			Rating:             s.Rating,
			Visible:            !s.Hidden,
		})
	}
	return cats, books, nil
}

// Seed loads the embedded catalogue if the books table is empty.
func Seed(ctx context.Context, repo Repository) (int, error) {
	n, err := repo.Count(ctx, Filter{IncludeHidden: true})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	cats, books, err := parseSeed(seedYAML)
	if err != nil {
		return 0, err
	}
	if err := repo.Insert(ctx, cats, books); err != nil {
		return 0, err
	}
	return len(books), nil
}
