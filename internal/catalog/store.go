package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/lotuscatalog/curator/pkg/database"
	"github.com/lotuscatalog/curator/pkg/logging"
)

// Category types for catalog entries.
const (
	CategoryPureLandBooks = "PURE_LAND_BOOKS"
	CategoryOtherBooks    = "OTHER_BOOKS"
	CategoryDharmaItems   = "DHARMA_ITEMS"
	CategoryBuddhaStatues = "BUDDHA_STATUES"
)

// CategoryTypes lists every valid category in a stable order.
var CategoryTypes = []string{
	CategoryPureLandBooks,
	CategoryOtherBooks,
	CategoryDharmaItems,
	CategoryBuddhaStatues,
}

// ValidCategory reports whether s is a known category type.
func ValidCategory(s string) bool {
	for _, c := range CategoryTypes {
		if c == s {
			return true
		}
	}
	return false
}

// ErrNotFound is returned when a book does not exist.
var ErrNotFound = errors.New("book not found")

// Book is a catalog entry. Dharma items and statues share the table; their
// item_* fields are set instead of the author/publisher ones.
type Book struct {
	ID            string    `json:"id"`
	TitleZh       string    `json:"title_zh"`
	TitleEn       string    `json:"title_en,omitempty"`
	AuthorZh      string    `json:"author_zh,omitempty"`
	AuthorEn      string    `json:"author_en,omitempty"`
	PublisherZh   string    `json:"publisher_zh,omitempty"`
	PublisherEn   string    `json:"publisher_en,omitempty"`
	DescriptionZh string    `json:"description_zh,omitempty"`
	DescriptionEn string    `json:"description_en,omitempty"`
	ItemNameZh    string    `json:"item_name_zh,omitempty"`
	ItemNameEn    string    `json:"item_name_en,omitempty"`
	ItemTypeZh    string    `json:"item_type_zh,omitempty"`
	ItemTypeEn    string    `json:"item_type_en,omitempty"`
	CategoryType  string    `json:"category_type"`
	Tags          []string  `json:"tags"`
	Quantity      int       `json:"quantity"`
	CoverURL      string    `json:"cover_url,omitempty"`
	CoverHash     string    `json:"cover_hash,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CreateParams holds fields for a new catalog entry.
type CreateParams struct {
	TitleZh       string
	TitleEn       string
	AuthorZh      string
	AuthorEn      string
	PublisherZh   string
	PublisherEn   string
	DescriptionZh string
	DescriptionEn string
	ItemNameZh    string
	ItemNameEn    string
	ItemTypeZh    string
	ItemTypeEn    string
	CategoryType  string
	Tags          []string
	Quantity      int
	CoverURL      string
	CoverHash     string
}

// UpdateParams holds optional fields for a partial update. Nil pointers are
// left untouched.
type UpdateParams struct {
	TitleZh       *string
	TitleEn       *string
	AuthorZh      *string
	AuthorEn      *string
	PublisherZh   *string
	PublisherEn   *string
	DescriptionZh *string
	DescriptionEn *string
	ItemNameZh    *string
	ItemNameEn    *string
	ItemTypeZh    *string
	ItemTypeEn    *string
	CategoryType  *string
	Tags          []string
	Quantity      *int
	CoverURL      *string
	CoverHash     *string
}

// SearchFilter narrows a catalog search. Zero values mean "no constraint".
type SearchFilter struct {
	Title        string
	Tags         []string
	CategoryType string
	MinQuantity  *int
	MaxQuantity  *int
	Limit        int
}

// Store provides access to catalog entries.
type Store struct {
	db     database.PostgresConn
	logger logging.Logger
}

func NewStore(db database.PostgresConn, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

const bookColumns = `id, title_zh, title_en, author_zh, author_en, publisher_zh, publisher_en,
	description_zh, description_en, item_name_zh, item_name_en, item_type_zh, item_type_en,
	category_type, tags, quantity, cover_url, cover_hash, created_at, updated_at`

func scanBook(row interface{ Scan(...interface{}) error }) (*Book, error) {
	var b Book
	var titleEn, authorZh, authorEn, publisherZh, publisherEn sql.NullString
	var descriptionZh, descriptionEn sql.NullString
	var itemNameZh, itemNameEn, itemTypeZh, itemTypeEn sql.NullString
	var coverURL, coverHash sql.NullString

	err := row.Scan(
		&b.ID, &b.TitleZh, &titleEn, &authorZh, &authorEn, &publisherZh, &publisherEn,
		&descriptionZh, &descriptionEn, &itemNameZh, &itemNameEn, &itemTypeZh, &itemTypeEn,
		&b.CategoryType, pq.Array(&b.Tags), &b.Quantity, &coverURL, &coverHash,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.TitleEn = titleEn.String
	b.AuthorZh = authorZh.String
	b.AuthorEn = authorEn.String
	b.PublisherZh = publisherZh.String
	b.PublisherEn = publisherEn.String
	b.DescriptionZh = descriptionZh.String
	b.DescriptionEn = descriptionEn.String
	b.ItemNameZh = itemNameZh.String
	b.ItemNameEn = itemNameEn.String
	b.ItemTypeZh = itemTypeZh.String
	b.ItemTypeEn = itemTypeEn.String
	b.CoverURL = coverURL.String
	b.CoverHash = coverHash.String
	return &b, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// CreateBook inserts a new catalog entry and returns the stored row.
func (s *Store) CreateBook(ctx context.Context, params CreateParams) (*Book, error) {
	if params.TitleZh == "" {
		return nil, errors.New("title_zh is required")
	}
	if !ValidCategory(params.CategoryType) {
		return nil, fmt.Errorf("invalid category type %q", params.CategoryType)
	}
	if params.Tags == nil {
		params.Tags = []string{}
	}

	query := `INSERT INTO books (title_zh, title_en, author_zh, author_en, publisher_zh, publisher_en,
		description_zh, description_en, item_name_zh, item_name_en, item_type_zh, item_type_en,
		category_type, tags, quantity, cover_url, cover_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING ` + bookColumns

	row := s.db.QueryRowContext(ctx, query,
		params.TitleZh, nullable(params.TitleEn),
		nullable(params.AuthorZh), nullable(params.AuthorEn),
		nullable(params.PublisherZh), nullable(params.PublisherEn),
		nullable(params.DescriptionZh), nullable(params.DescriptionEn),
		nullable(params.ItemNameZh), nullable(params.ItemNameEn),
		nullable(params.ItemTypeZh), nullable(params.ItemTypeEn),
		params.CategoryType, pq.Array(params.Tags), params.Quantity,
		nullable(params.CoverURL), nullable(params.CoverHash),
	)

	book, err := scanBook(row)
	if err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}
	return book, nil
}

// UpdateBook applies a partial update and returns the stored row.
func (s *Store) UpdateBook(ctx context.Context, id string, params UpdateParams) (*Book, error) {
	sets := []string{}
	args := []interface{}{}
	idx := 1

	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, value)
		idx++
	}

	if params.TitleZh != nil {
		add("title_zh", *params.TitleZh)
	}
	if params.TitleEn != nil {
		add("title_en", nullable(*params.TitleEn))
	}
	if params.AuthorZh != nil {
		add("author_zh", nullable(*params.AuthorZh))
	}
	if params.AuthorEn != nil {
		add("author_en", nullable(*params.AuthorEn))
	}
	if params.PublisherZh != nil {
		add("publisher_zh", nullable(*params.PublisherZh))
	}
	if params.PublisherEn != nil {
		add("publisher_en", nullable(*params.PublisherEn))
	}
	if params.DescriptionZh != nil {
		add("description_zh", nullable(*params.DescriptionZh))
	}
	if params.DescriptionEn != nil {
		add("description_en", nullable(*params.DescriptionEn))
	}
	if params.ItemNameZh != nil {
		add("item_name_zh", nullable(*params.ItemNameZh))
	}
	if params.ItemNameEn != nil {
		add("item_name_en", nullable(*params.ItemNameEn))
	}
	if params.ItemTypeZh != nil {
		add("item_type_zh", nullable(*params.ItemTypeZh))
	}
	if params.ItemTypeEn != nil {
		add("item_type_en", nullable(*params.ItemTypeEn))
	}
	if params.CategoryType != nil {
		if !ValidCategory(*params.CategoryType) {
			return nil, fmt.Errorf("invalid category type %q", *params.CategoryType)
		}
		add("category_type", *params.CategoryType)
	}
	if params.Tags != nil {
		add("tags", pq.Array(params.Tags))
	}
	if params.Quantity != nil {
		add("quantity", *params.Quantity)
	}
	if params.CoverURL != nil {
		add("cover_url", nullable(*params.CoverURL))
	}
	if params.CoverHash != nil {
		add("cover_hash", nullable(*params.CoverHash))
	}

	if len(sets) == 0 {
		return s.GetBook(ctx, id)
	}

	sets = append(sets, "updated_at = NOW()")
	query := fmt.Sprintf("UPDATE books SET %s WHERE id = $%d RETURNING %s",
		strings.Join(sets, ", "), idx, bookColumns)
	args = append(args, id)

	book, err := scanBook(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update book: %w", err)
	}
	return book, nil
}

// GetBook fetches one catalog entry by id.
func (s *Store) GetBook(ctx context.Context, id string) (*Book, error) {
	query := "SELECT " + bookColumns + " FROM books WHERE id = $1"
	book, err := scanBook(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return book, nil
}

// AdjustQuantity changes quantity by delta atomically. The quantity never
// drops below zero.
func (s *Store) AdjustQuantity(ctx context.Context, id string, delta int) (*Book, error) {
	query := `UPDATE books SET quantity = GREATEST(quantity + $2, 0), updated_at = NOW()
		WHERE id = $1 RETURNING ` + bookColumns
	book, err := scanBook(s.db.QueryRowContext(ctx, query, id, delta))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("adjust quantity: %w", err)
	}
	return book, nil
}

// SearchBooks lists catalog entries matching the filter, newest first.
func (s *Store) SearchBooks(ctx context.Context, filter SearchFilter) ([]Book, error) {
	where := []string{}
	args := []interface{}{}
	idx := 1

	if filter.Title != "" {
		where = append(where, fmt.Sprintf("(title_zh ILIKE $%d OR title_en ILIKE $%d OR item_name_zh ILIKE $%d OR item_name_en ILIKE $%d)", idx, idx, idx, idx))
		args = append(args, "%"+filter.Title+"%")
		idx++
	}
	if len(filter.Tags) > 0 {
		where = append(where, fmt.Sprintf("tags && $%d", idx))
		args = append(args, pq.Array(filter.Tags))
		idx++
	}
	if filter.CategoryType != "" {
		where = append(where, fmt.Sprintf("category_type = $%d", idx))
		args = append(args, filter.CategoryType)
		idx++
	}
	if filter.MinQuantity != nil {
		where = append(where, fmt.Sprintf("quantity >= $%d", idx))
		args = append(args, *filter.MinQuantity)
		idx++
	}
	if filter.MaxQuantity != nil {
		where = append(where, fmt.Sprintf("quantity <= $%d", idx))
		args = append(args, *filter.MaxQuantity)
		idx++
	}

	query := "SELECT " + bookColumns + " FROM books"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}
	defer rows.Close()

	var books []Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("search books: scan: %w", err)
		}
		books = append(books, *book)
	}
	return books, rows.Err()
}

// FindByCoverHash fetches the entry whose stored cover carries the given
// content hash, if any.
func (s *Store) FindByCoverHash(ctx context.Context, hash string) (*Book, error) {
	query := "SELECT " + bookColumns + " FROM books WHERE cover_hash = $1 LIMIT 1"
	book, err := scanBook(s.db.QueryRowContext(ctx, query, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find by cover hash: %w", err)
	}
	return book, nil
}

// FindSimilarByText is the degraded duplicate lookup used when vector search
// is unavailable: exact title matches plus substring matches on title and
// author fields.
func (s *Store) FindSimilarByText(ctx context.Context, title, author string, limit int) ([]Book, error) {
	if title == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	where := []string{"(title_zh = $1 OR title_en = $1 OR title_zh ILIKE $2 OR title_en ILIKE $2 OR item_name_zh ILIKE $2 OR item_name_en ILIKE $2)"}
	args := []interface{}{title, "%" + prefixForFuzzyMatch(title) + "%"}
	idx := 3

	if author != "" {
		where = append(where, fmt.Sprintf("(author_zh ILIKE $%d OR author_en ILIKE $%d)", idx, idx))
		args = append(args, "%"+author+"%")
		idx++
	}

	query := fmt.Sprintf("SELECT %s FROM books WHERE %s ORDER BY updated_at DESC LIMIT $%d",
		bookColumns, strings.Join(where, " AND "), idx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find similar by text: %w", err)
	}
	defer rows.Close()

	var books []Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("find similar by text: scan: %w", err)
		}
		books = append(books, *book)
	}
	return books, rows.Err()
}

// prefixForFuzzyMatch takes roughly the first 70% of the title so retitled
// editions with trailing volume markers still match.
func prefixForFuzzyMatch(title string) string {
	runes := []rune(title)
	n := (len(runes)*7 + 9) / 10
	if n < 1 {
		n = 1
	}
	return string(runes[:n])
}
