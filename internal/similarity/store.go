package similarity

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/lotuscatalog/curator/pkg/database"
	"github.com/lotuscatalog/curator/pkg/logging"
)

// Neighbor is a nearest-neighbor hit from a vector search.
type Neighbor struct {
	BookID     string  `json:"book_id"`
	Similarity float64 `json:"similarity"`
}

// MissingRow is a catalog entry lacking an embedding, with the fields needed
// to produce one.
type MissingRow struct {
	BookID      string
	TitleZh     string
	TitleEn     string
	AuthorZh    string
	AuthorEn    string
	PublisherZh string
	PublisherEn string
	Tags        []string
	CoverURL    string
}

// Store provides access to text and image embedding tables.
type Store struct {
	db     database.PostgresConn
	logger logging.Logger
}

func NewStore(db database.PostgresConn, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// CanonicalText builds the embedding input for a catalog entry. Field order
// is fixed so stored vectors stay comparable across backfills.
func CanonicalText(titleZh, titleEn, authorZh, authorEn, publisherZh, publisherEn string, tags []string) string {
	fields := []string{}
	for _, f := range []string{titleZh, titleEn, authorZh, authorEn, publisherZh, publisherEn} {
		if strings.TrimSpace(f) != "" {
			fields = append(fields, f)
		}
	}
	text := strings.Join(fields, " \n ")
	if len(tags) > 0 {
		text += "\n tags: " + strings.Join(tags, ", ")
	}
	return text
}

// UpsertTextEmbedding stores or replaces the text embedding for a book.
func (s *Store) UpsertTextEmbedding(ctx context.Context, bookID string, vec []float32) error {
	query := `INSERT INTO book_embeddings (book_id, embedding, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (book_id) DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = NOW()`
	if _, err := s.db.ExecContext(ctx, query, bookID, pgvector.NewVector(vec)); err != nil {
		return fmt.Errorf("upsert text embedding: %w", err)
	}
	return nil
}

// UpsertImageEmbedding stores or replaces the cover image embedding for a book.
func (s *Store) UpsertImageEmbedding(ctx context.Context, bookID string, vec []float32) error {
	query := `INSERT INTO book_image_embeddings (book_id, embedding, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (book_id) DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = NOW()`
	if _, err := s.db.ExecContext(ctx, query, bookID, pgvector.NewVector(vec)); err != nil {
		return fmt.Errorf("upsert image embedding: %w", err)
	}
	return nil
}

// SearchText returns the nearest text-embedding neighbors for a query
// vector, optionally restricted to one category.
func (s *Store) SearchText(ctx context.Context, vec []float32, limit int, categoryType string) ([]Neighbor, error) {
	return s.search(ctx, "book_embeddings", vec, limit, categoryType)
}

// SearchImage returns the nearest image-embedding neighbors for a query
// vector, optionally restricted to one category.
func (s *Store) SearchImage(ctx context.Context, vec []float32, limit int, categoryType string) ([]Neighbor, error) {
	return s.search(ctx, "book_image_embeddings", vec, limit, categoryType)
}

func (s *Store) search(ctx context.Context, table string, vec []float32, limit int, categoryType string) ([]Neighbor, error) {
	if limit <= 0 {
		limit = 10
	}

	var query string
	var args []interface{}
	if categoryType != "" {
		query = fmt.Sprintf(`SELECT e.book_id, 1 - (e.embedding <=> $1) AS similarity
			FROM %s e
			JOIN books b ON b.id = e.book_id
			WHERE b.category_type = $2
			ORDER BY e.embedding <=> $1
			LIMIT $3`, table)
		args = []interface{}{pgvector.NewVector(vec), categoryType, limit}
	} else {
		query = fmt.Sprintf(`SELECT e.book_id, 1 - (e.embedding <=> $1) AS similarity
			FROM %s e
			ORDER BY e.embedding <=> $1
			LIMIT $2`, table)
		args = []interface{}{pgvector.NewVector(vec), limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search %s: %w", table, err)
	}
	defer rows.Close()

	var neighbors []Neighbor
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.BookID, &n.Similarity); err != nil {
			return nil, fmt.Errorf("vector search %s: scan: %w", table, err)
		}
		neighbors = append(neighbors, n)
	}
	return neighbors, rows.Err()
}

// BooksMissingTextEmbeddings lists entries with no stored text embedding.
func (s *Store) BooksMissingTextEmbeddings(ctx context.Context, limit int) ([]MissingRow, error) {
	query := `SELECT b.id, b.title_zh, COALESCE(b.title_en, ''), COALESCE(b.author_zh, ''), COALESCE(b.author_en, ''),
		COALESCE(b.publisher_zh, ''), COALESCE(b.publisher_en, ''), b.tags, COALESCE(b.cover_url, '')
		FROM books b
		LEFT JOIN book_embeddings e ON e.book_id = b.id
		WHERE e.book_id IS NULL
		ORDER BY b.created_at
		LIMIT $1`
	return s.missingRows(ctx, query, limit)
}

// BooksMissingImageEmbeddings lists entries that have a cover but no stored
// image embedding.
func (s *Store) BooksMissingImageEmbeddings(ctx context.Context, limit int) ([]MissingRow, error) {
	query := `SELECT b.id, b.title_zh, COALESCE(b.title_en, ''), COALESCE(b.author_zh, ''), COALESCE(b.author_en, ''),
		COALESCE(b.publisher_zh, ''), COALESCE(b.publisher_en, ''), b.tags, COALESCE(b.cover_url, '')
		FROM books b
		LEFT JOIN book_image_embeddings e ON e.book_id = b.id
		WHERE e.book_id IS NULL AND b.cover_url IS NOT NULL AND b.cover_url <> ''
		ORDER BY b.created_at
		LIMIT $1`
	return s.missingRows(ctx, query, limit)
}

func (s *Store) missingRows(ctx context.Context, query string, limit int) ([]MissingRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("missing embeddings scan: %w", err)
	}
	defer rows.Close()

	var result []MissingRow
	for rows.Next() {
		var r MissingRow
		var tags []string
		if err := rows.Scan(&r.BookID, &r.TitleZh, &r.TitleEn, &r.AuthorZh, &r.AuthorEn,
			&r.PublisherZh, &r.PublisherEn, pq.Array(&tags), &r.CoverURL); err != nil {
			return nil, fmt.Errorf("missing embeddings scan: %w", err)
		}
		r.Tags = tags
		result = append(result, r)
	}
	return result, rows.Err()
}
