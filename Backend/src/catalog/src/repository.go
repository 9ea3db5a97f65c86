package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("not found")

// Filter narrows List and Count. Zero fields are ignored; the rest combine with AND.
type Filter struct {
	Q            string
	Title        string
	AuthorID     int64
	AuthorName   string
	CategoryID   string
	CategoryName string
	ISBN         string
	MinRating    float64
	OnSale       bool
	PublishedGTE time.Time
	PublishedOn  time.Time
	// IncludeHidden lists books with visible=0 as well.
	IncludeHidden bool
}

type StockLine struct {
	BookID int64
	Qty    int32
}

type Repository interface {
	Init(ctx context.Context) error
	Count(ctx context.Context, f Filter) (int64, error)
	List(ctx context.Context, f Filter, limit, offset int32) ([]*Book, error)
	Get(ctx context.Context, id int64) (*Book, error)
	Categories(ctx context.Context) ([]Category, error)
	Insert(ctx context.Context, cats []Category, books []*Book) error
	// DecrementStock takes the quantities off in one transaction and returns the new levels.
	DecrementStock(ctx context.Context, lines []StockLine) (map[int64]int32, error)
}

type sqliteRepo struct{ db *sql.DB }

func NewSQLiteRepo(db *sql.DB) Repository { return &sqliteRepo{db: db} }

const schema = `
CREATE TABLE IF NOT EXISTS categories(
  id   TEXT PRIMARY KEY,
  name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS books(
  id                  INTEGER PRIMARY KEY,
  title               TEXT    NOT NULL,
  author              TEXT    NOT NULL,
  author_id           INTEGER NOT NULL DEFAULT 0,
  price_cents         INTEGER NOT NULL,
  cover_url           TEXT    NOT NULL DEFAULT '',
  description         TEXT    NOT NULL DEFAULT '',
  isbn                TEXT    NOT NULL DEFAULT '',
  pages               INTEGER NOT NULL DEFAULT 0,
  publication_date    TEXT    NOT NULL DEFAULT '',
  category_id         TEXT    REFERENCES categories(id),
  stock               INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
  discount_percentage INTEGER NOT NULL DEFAULT 0,
  rating              REAL    NOT NULL DEFAULT 0,
  visible             INTEGER NOT NULL DEFAULT 1,
  created_unix        INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);
CREATE INDEX IF NOT EXISTS idx_books_author   ON books(author_id);
CREATE INDEX IF NOT EXISTS idx_books_category ON books(category_id);
`

func (r *sqliteRepo) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const bookColumns = `b.id,b.title,b.author,b.author_id,b.price_cents,b.cover_url,b.description,b.isbn,b.pages,
	b.publication_date,COALESCE(b.category_id,''),COALESCE(c.name,''),b.stock,b.discount_percentage,b.rating,b.visible,b.created_unix`

const bookFrom = `FROM books b LEFT JOIN categories c ON c.id = b.category_id`

// where builds the WHERE clause for f.
func (f Filter) where() (string, []any) {
	var conds []string
	var args []any
	like := func(s string) string { return "%" + strings.ToLower(strings.TrimSpace(s)) + "%" }

	if !f.IncludeHidden {
		conds = append(conds, "b.visible = 1")
	}
	if strings.TrimSpace(f.Q) != "" {
		conds = append(conds, "(lower(b.title) LIKE ? OR lower(b.author) LIKE ? OR b.isbn LIKE ?)")
		args = append(args, like(f.Q), like(f.Q), like(f.Q))
	}
	if strings.TrimSpace(f.Title) != "" {
		conds = append(conds, "lower(b.title) LIKE ?")
		args = append(args, like(f.Title))
	}
	if f.AuthorID > 0 {
		conds = append(conds, "b.author_id = ?")
		args = append(args, f.AuthorID)
	}
	if strings.TrimSpace(f.AuthorName) != "" {
		conds = append(conds, "lower(b.author) LIKE ?")
		args = append(args, like(f.AuthorName))
	}
	if f.CategoryID != "" {
		conds = append(conds, "b.category_id = ?")
		args = append(args, f.CategoryID)
	}
	if strings.TrimSpace(f.CategoryName) != "" {
		conds = append(conds, "(lower(c.name) LIKE ? OR lower(c.id) LIKE ?)")
		args = append(args, like(f.CategoryName), like(f.CategoryName))
	}
	if f.ISBN != "" {
		conds = append(conds, "b.isbn = ?")
		args = append(args, f.ISBN)
	}
	if f.MinRating > 0 {
		conds = append(conds, "b.rating >= ?")
		args = append(args, f.MinRating)
	}
	if f.OnSale {
		conds = append(conds, "b.discount_percentage > 0")
	}
	if !f.PublishedGTE.IsZero() {
		conds = append(conds, "b.publication_date >= ?")
		args = append(args, f.PublishedGTE.Format(time.DateOnly))
	}
	if !f.PublishedOn.IsZero() {
		conds = append(conds, "b.publication_date = ?")
		args = append(args, f.PublishedOn.Format(time.DateOnly))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *sqliteRepo) Count(ctx context.Context, f Filter) (int64, error) {
	where, args := f.where()
	var c int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) `+bookFrom+where, args...).Scan(&c); err != nil {
		return 0, fmt.Errorf("count books: %w", err)
	}
	return c, nil
}

func (r *sqliteRepo) List(ctx context.Context, f Filter, limit, offset int32) ([]*Book, error) {
	where, args := f.where()
	args = append(args, limit, offset)
	rows, err := r.db.QueryContext(ctx, `SELECT `+bookColumns+` `+bookFrom+where+` ORDER BY b.id LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	out := make([]*Book, 0, limit)
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *sqliteRepo) Get(ctx context.Context, id int64) (*Book, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+bookColumns+` `+bookFrom+` WHERE b.id = ?`, id)
	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("book %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *sqliteRepo) Categories(ctx context.Context) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.name, COUNT(b.id)
		FROM categories c LEFT JOIN books b ON b.category_id = c.id AND b.visible = 1
		GROUP BY c.id, c.name
		ORDER BY c.name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *sqliteRepo) Insert(ctx context.Context, cats []Category, books []*Book) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range cats {
		if _, err := tx.ExecContext(ctx, `INSERT INTO categories(id,name) VALUES(?,?) ON CONFLICT(id) DO NOTHING`,
			c.ID, c.Name); err != nil {
			return fmt.Errorf("insert category %s: %w", c.ID, err)
		}
	}
	for _, b := range books {
		var category any
		if b.CategoryID != "" {
			category = b.CategoryID
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO books(id,title,author,author_id,price_cents,cover_url,description,isbn,pages,
				publication_date,category_id,stock,discount_percentage,rating,visible)
			VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			b.ID, b.Title, b.Author, b.AuthorID, b.PriceCents, b.CoverURL, b.Description, b.ISBN, b.Pages,
			b.PublicationDate.Format(time.DateOnly), category, b.Stock, b.DiscountPercentage, b.Rating, b.Visible)
		if err != nil {
			return fmt.Errorf("insert book %d: %w", b.ID, err)
		}
	}
	return tx.Commit()
}

func (r *sqliteRepo) DecrementStock(ctx context.Context, lines []StockLine) (map[int64]int32, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	levels := make(map[int64]int32, len(lines))
	for _, l := range lines {
		// never below zero
		if _, err := tx.ExecContext(ctx, `UPDATE books SET stock = MAX(stock - ?, 0) WHERE id = ?`, l.Qty, l.BookID); err != nil {
			return nil, fmt.Errorf("decrement %d: %w", l.BookID, err)
		}
		var stock int32
		err := tx.QueryRowContext(ctx, `SELECT stock FROM books WHERE id = ?`, l.BookID).Scan(&stock)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		levels[l.BookID] = stock
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return levels, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(s rowScanner) (*Book, error) {
	var b Book
	var published string
	if err := s.Scan(&b.ID, &b.Title, &b.Author, &b.AuthorID, &b.PriceCents, &b.CoverURL, &b.Description, &b.ISBN,
		&b.Pages, &published, &b.CategoryID, &b.Category, &b.Stock, &b.DiscountPercentage, &b.Rating, &b.Visible,
		&b.CreatedUnix); err != nil {
		return nil, err
	}
	if published != "" {
		t, err := time.Parse(time.DateOnly, published)
		if err != nil {
			return nil, fmt.Errorf("book %d publication date %q: %w", b.ID, published, err)
		}
		b.PublicationDate = t
	}
	return &b, nil
}
