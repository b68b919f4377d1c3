package catalog

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/lotuscatalog/curator/pkg/logging"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db, logging.NewLogger()), mock
}

func bookRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "title_zh", "title_en", "author_zh", "author_en", "publisher_zh", "publisher_en",
		"description_zh", "description_en", "item_name_zh", "item_name_en", "item_type_zh", "item_type_en",
		"category_type", "tags", "quantity", "cover_url", "cover_hash", "created_at", "updated_at",
	})
}

func sampleRow(rows *sqlmock.Rows, id, titleZh string) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(
		id, titleZh, "Infinite Life Sutra", "夏莲居", nil, "净宗学会", nil,
		nil, nil, nil, nil, nil, nil,
		CategoryPureLandBooks, pq.Array([]string{"sutra"}), 12, "https://cdn/x.jpg", "a1b2", now, now,
	)
}

func TestCreateBook(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO books`).
		WithArgs(
			"无量寿经", "Infinite Life Sutra", "夏莲居", nil, "净宗学会", nil,
			nil, nil, nil, nil, nil, nil,
			CategoryPureLandBooks, pq.Array([]string{"sutra"}), 12, "https://cdn/x.jpg", "a1b2",
		).
		WillReturnRows(sampleRow(bookRows(), "b-1", "无量寿经"))

	book, err := store.CreateBook(context.Background(), CreateParams{
		TitleZh:      "无量寿经",
		TitleEn:      "Infinite Life Sutra",
		AuthorZh:     "夏莲居",
		PublisherZh:  "净宗学会",
		CategoryType: CategoryPureLandBooks,
		Tags:         []string{"sutra"},
		Quantity:     12,
		CoverURL:     "https://cdn/x.jpg",
		CoverHash:    "a1b2",
	})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	if book.ID != "b-1" {
		t.Fatalf("unexpected id %q", book.ID)
	}
	if book.TitleEn != "Infinite Life Sutra" {
		t.Fatalf("unexpected title_en %q", book.TitleEn)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateBookRequiresTitle(t *testing.T) {
	store, _ := newMockStore(t)
	if _, err := store.CreateBook(context.Background(), CreateParams{CategoryType: CategoryOtherBooks}); err == nil {
		t.Fatal("expected error without title_zh")
	}
}

func TestCreateBookRejectsBadCategory(t *testing.T) {
	store, _ := newMockStore(t)
	if _, err := store.CreateBook(context.Background(), CreateParams{TitleZh: "x", CategoryType: "COMICS"}); err == nil {
		t.Fatal("expected error for invalid category")
	}
}

func TestUpdateBookPartial(t *testing.T) {
	store, mock := newMockStore(t)

	title := "无量寿经（修订）"
	qty := 20
	mock.ExpectQuery(`UPDATE books SET title_zh = \$1, quantity = \$2, updated_at = NOW\(\) WHERE id = \$3 RETURNING`).
		WithArgs(title, qty, "b-1").
		WillReturnRows(sampleRow(bookRows(), "b-1", title))

	book, err := store.UpdateBook(context.Background(), "b-1", UpdateParams{TitleZh: &title, Quantity: &qty})
	if err != nil {
		t.Fatalf("update book: %v", err)
	}
	if book.TitleZh != title {
		t.Fatalf("unexpected title %q", book.TitleZh)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateBookNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	title := "x"
	mock.ExpectQuery(`UPDATE books SET`).
		WithArgs(title, "missing").
		WillReturnRows(bookRows())

	if _, err := store.UpdateBook(context.Background(), "missing", UpdateParams{TitleZh: &title}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAdjustQuantityClampsAtZero(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`UPDATE books SET quantity = GREATEST\(quantity \+ \$2, 0\)`).
		WithArgs("b-1", -99).
		WillReturnRows(sampleRow(bookRows(), "b-1", "无量寿经"))

	if _, err := store.AdjustQuantity(context.Background(), "b-1", -99); err != nil {
		t.Fatalf("adjust quantity: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSearchBooksFilters(t *testing.T) {
	store, mock := newMockStore(t)

	min := 1
	mock.ExpectQuery(`SELECT .+ FROM books WHERE \(title_zh ILIKE \$1 OR title_en ILIKE \$1 OR item_name_zh ILIKE \$1 OR item_name_en ILIKE \$1\) AND tags && \$2 AND category_type = \$3 AND quantity >= \$4 ORDER BY updated_at DESC LIMIT \$5`).
		WithArgs("%经%", pq.Array([]string{"sutra"}), CategoryPureLandBooks, min, 50).
		WillReturnRows(sampleRow(bookRows(), "b-1", "无量寿经"))

	books, err := store.SearchBooks(context.Background(), SearchFilter{
		Title:        "经",
		Tags:         []string{"sutra"},
		CategoryType: CategoryPureLandBooks,
		MinQuantity:  &min,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(books) != 1 {
		t.Fatalf("expected 1 book, got %d", len(books))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestFindByCoverHashNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM books WHERE cover_hash = \$1`).
		WithArgs("deadbeef").
		WillReturnRows(bookRows())

	if _, err := store.FindByCoverHash(context.Background(), "deadbeef"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindSimilarByTextUsesPrefix(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM books WHERE \(title_zh = \$1 OR title_en = \$1`).
		WithArgs("无量寿经", "%无量寿%", 10).
		WillReturnRows(sampleRow(bookRows(), "b-1", "无量寿经"))

	books, err := store.FindSimilarByText(context.Background(), "无量寿经", "", 10)
	if err != nil {
		t.Fatalf("find similar: %v", err)
	}
	if len(books) != 1 {
		t.Fatalf("expected 1 match, got %d", len(books))
	}
}

func TestPrefixForFuzzyMatch(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"无量寿经", "无量寿"},
		{"经", "经"},
		{"abcdefghij", "abcdefg"},
	}
	for _, c := range cases {
		if got := prefixForFuzzyMatch(c.in); got != c.want {
			t.Errorf("prefixForFuzzyMatch(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
