package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/lotuscatalog/curator/internal/adminctx"
	"github.com/lotuscatalog/curator/internal/adminlog"
	"github.com/lotuscatalog/curator/internal/catalog"
	"github.com/lotuscatalog/curator/internal/duplicates"
	"github.com/lotuscatalog/curator/internal/similarity"
	"github.com/lotuscatalog/curator/pkg/llm"
	"github.com/lotuscatalog/curator/pkg/logging"
)

type bookStore interface {
	CreateBook(ctx context.Context, params catalog.CreateParams) (*catalog.Book, error)
	UpdateBook(ctx context.Context, id string, params catalog.UpdateParams) (*catalog.Book, error)
	GetBook(ctx context.Context, id string) (*catalog.Book, error)
	AdjustQuantity(ctx context.Context, id string, delta int) (*catalog.Book, error)
	SearchBooks(ctx context.Context, filter catalog.SearchFilter) ([]catalog.Book, error)
}

type duplicateChecker interface {
	Check(ctx context.Context, req duplicates.Request) duplicates.Result
}

type embeddingIndex interface {
	UpsertTextEmbedding(ctx context.Context, bookID string, vec []float32) error
	UpsertImageEmbedding(ctx context.Context, bookID string, vec []float32) error
}

type inventoryTools struct {
	books         bookStore
	checker       duplicateChecker
	index         embeddingIndex
	embedder      llm.EmbeddingClient
	imageEmbedder llm.ImageEmbeddingClient
	audit         adminlog.Recorder
	logger        logging.Logger
}

// RegisterInventoryTools registers the catalog tools: create, update,
// search, quantity adjustment and duplicate checking.
func RegisterInventoryTools(reg *Registry, books bookStore, checker duplicateChecker, index embeddingIndex, embedder llm.EmbeddingClient, imageEmbedder llm.ImageEmbeddingClient, audit adminlog.Recorder, logger logging.Logger) {
	it := &inventoryTools{
		books:         books,
		checker:       checker,
		index:         index,
		embedder:      embedder,
		imageEmbedder: imageEmbedder,
		audit:         audit,
		logger:        logger,
	}

	reg.Register(&Tool{
		Name:        "create_book",
		Description: "Create a catalog entry for a donated book, dharma item or statue. Run check_duplicates first; requires an uploaded cover image and explicit user confirmation.",
		Mutating:    true,
		Schema:      createBookSchema(),
		Execute:     it.createBook,
	})
	reg.Register(&Tool{
		Name:        "update_book",
		Description: "Update fields of an existing catalog entry. Only the provided fields change; requires explicit user confirmation.",
		Mutating:    true,
		Schema:      updateBookSchema(),
		Execute:     it.updateBook,
	})
	reg.Register(&Tool{
		Name:        "search_books",
		Description: "Search catalog entries by title, tags, category or quantity range.",
		Cacheable:   true,
		Schema:      searchBooksSchema(),
		Execute:     it.searchBooks,
	})
	reg.Register(&Tool{
		Name:        "adjust_book_quantity",
		Description: "Add to or subtract from an entry's stock quantity. Quantity never goes below zero; requires explicit user confirmation.",
		Mutating:    true,
		Schema: objectSchema(map[string]*jsonschema.Schema{
			"book_id":   stringProp("Catalog entry id"),
			"delta":     intProp("Signed change to apply, e.g. -2 after shipping two copies"),
			"confirmed": confirmedProp(),
		}, "book_id", "delta"),
		Execute: it.adjustQuantity,
	})
	reg.Register(&Tool{
		Name:        "check_duplicates",
		Description: "Check whether a prospective entry duplicates an existing one. Always run this before create_book.",
		Cacheable:   true,
		Schema:      checkDuplicatesSchema(),
		Execute:     it.checkDuplicates,
	})
}

func bilingualBookProps() map[string]*jsonschema.Schema {
	return map[string]*jsonschema.Schema{
		"title_zh":       stringProp("Chinese title"),
		"title_en":       stringProp("English title"),
		"author_zh":      stringProp("Chinese author name"),
		"author_en":      stringProp("English author name"),
		"publisher_zh":   stringProp("Chinese publisher name"),
		"publisher_en":   stringProp("English publisher name"),
		"description_zh": stringProp("Chinese description"),
		"description_en": stringProp("English description"),
		"item_name_zh":   stringProp("Chinese item name, for non-book items"),
		"item_name_en":   stringProp("English item name, for non-book items"),
		"item_type_zh":   stringProp("Chinese item type, for non-book items"),
		"item_type_en":   stringProp("English item type, for non-book items"),
		"category_type":  enumProp("Catalog category", catalog.CategoryTypes),
		"tags":           stringArrayProp("Free-form tags"),
	}
}

func createBookSchema() *jsonschema.Schema {
	props := bilingualBookProps()
	props["quantity"] = intProp("Initial stock quantity; defaults to 1")
	props["cover_image"] = stringProp("URL of the uploaded cover photo")
	props["confirmed"] = confirmedProp()
	return objectSchema(props, "title_zh", "category_type")
}

func updateBookSchema() *jsonschema.Schema {
	props := bilingualBookProps()
	props["book_id"] = stringProp("Catalog entry id")
	props["quantity"] = intProp("New absolute stock quantity")
	props["cover_image"] = stringProp("URL of a replacement cover photo")
	props["confirmed"] = confirmedProp()
	return objectSchema(props, "book_id")
}

func searchBooksSchema() *jsonschema.Schema {
	return objectSchema(map[string]*jsonschema.Schema{
		"title":         stringProp("Substring matched against titles and item names"),
		"tags":          stringArrayProp("Entries carrying any of these tags"),
		"category_type": enumProp("Restrict to one category", catalog.CategoryTypes),
		"min_quantity":  intProp("Minimum stock quantity"),
		"max_quantity":  intProp("Maximum stock quantity"),
		"limit":         intProp("Maximum results; defaults to 50"),
	})
}

func checkDuplicatesSchema() *jsonschema.Schema {
	props := bilingualBookProps()
	delete(props, "description_zh")
	delete(props, "description_en")
	props["cover_image"] = stringProp("URL of the uploaded cover photo, if any")
	return objectSchema(props)
}

func (t *inventoryTools) createBook(ctx context.Context, args map[string]interface{}) Result {
	coverImage := stringArg(args, "cover_image")
	if coverImage == "" {
		return Failure(CodeValidationError,
			"cover_image is required. Upload and analyze the cover photo before creating the entry.",
			"cover_image")
	}

	params := catalog.CreateParams{
		TitleZh:       stringArg(args, "title_zh"),
		TitleEn:       stringArg(args, "title_en"),
		AuthorZh:      stringArg(args, "author_zh"),
		AuthorEn:      stringArg(args, "author_en"),
		PublisherZh:   stringArg(args, "publisher_zh"),
		PublisherEn:   stringArg(args, "publisher_en"),
		DescriptionZh: stringArg(args, "description_zh"),
		DescriptionEn: stringArg(args, "description_en"),
		ItemNameZh:    stringArg(args, "item_name_zh"),
		ItemNameEn:    stringArg(args, "item_name_en"),
		ItemTypeZh:    stringArg(args, "item_type_zh"),
		ItemTypeEn:    stringArg(args, "item_type_en"),
		CategoryType:  stringArg(args, "category_type"),
		Tags:          stringSliceArg(args, "tags"),
		Quantity:      1,
		CoverURL:      coverImage,
		CoverHash:     duplicates.CoverContentHash(coverImage),
	}
	if q, ok := intArg(args, "quantity"); ok {
		if q < 0 {
			return Failure(CodeValidationError, "quantity cannot be negative.", "quantity")
		}
		params.Quantity = q
	}

	book, err := t.books.CreateBook(ctx, params)
	if err != nil {
		return Failure(CodeDatabaseError, "Could not create the catalog entry.", err.Error())
	}

	t.indexEmbeddings(ctx, book)
	return Success(fmt.Sprintf("Created %q (id %s) with quantity %d.", displayTitle(book), book.ID, book.Quantity),
		map[string]interface{}{"book": book})
}

func (t *inventoryTools) updateBook(ctx context.Context, args map[string]interface{}) Result {
	bookID := stringArg(args, "book_id")

	params := catalog.UpdateParams{
		TitleZh:       stringPtrArg(args, "title_zh"),
		TitleEn:       stringPtrArg(args, "title_en"),
		AuthorZh:      stringPtrArg(args, "author_zh"),
		AuthorEn:      stringPtrArg(args, "author_en"),
		PublisherZh:   stringPtrArg(args, "publisher_zh"),
		PublisherEn:   stringPtrArg(args, "publisher_en"),
		DescriptionZh: stringPtrArg(args, "description_zh"),
		DescriptionEn: stringPtrArg(args, "description_en"),
		ItemNameZh:    stringPtrArg(args, "item_name_zh"),
		ItemNameEn:    stringPtrArg(args, "item_name_en"),
		ItemTypeZh:    stringPtrArg(args, "item_type_zh"),
		ItemTypeEn:    stringPtrArg(args, "item_type_en"),
		CategoryType:  stringPtrArg(args, "category_type"),
		Tags:          stringSliceArg(args, "tags"),
		Quantity:      intPtrArg(args, "quantity"),
	}
	if cover := stringPtrArg(args, "cover_image"); cover != nil {
		params.CoverURL = cover
		hash := duplicates.CoverContentHash(*cover)
		params.CoverHash = &hash
	}

	book, err := t.books.UpdateBook(ctx, bookID, params)
	if errors.Is(err, catalog.ErrNotFound) {
		return Failure(CodeNotFound, fmt.Sprintf("No catalog entry with id %s.", bookID), bookID)
	}
	if err != nil {
		return Failure(CodeDatabaseError, "Could not update the catalog entry.", err.Error())
	}

	t.indexEmbeddings(ctx, book)
	return Success(fmt.Sprintf("Updated %q (id %s).", displayTitle(book), book.ID),
		map[string]interface{}{"book": book})
}

func (t *inventoryTools) searchBooks(ctx context.Context, args map[string]interface{}) Result {
	filter := catalog.SearchFilter{
		Title:        stringArg(args, "title"),
		Tags:         stringSliceArg(args, "tags"),
		CategoryType: stringArg(args, "category_type"),
		MinQuantity:  intPtrArg(args, "min_quantity"),
		MaxQuantity:  intPtrArg(args, "max_quantity"),
	}
	if limit, ok := intArg(args, "limit"); ok {
		filter.Limit = limit
	}

	books, err := t.books.SearchBooks(ctx, filter)
	if err != nil {
		return Failure(CodeDatabaseError, "Catalog search failed.", err.Error())
	}
	if books == nil {
		books = []catalog.Book{}
	}
	return Success(fmt.Sprintf("Found %d matching entries.", len(books)), map[string]interface{}{
		"found": len(books) > 0,
		"count": len(books),
		"books": books,
	})
}

func (t *inventoryTools) adjustQuantity(ctx context.Context, args map[string]interface{}) Result {
	bookID := stringArg(args, "book_id")
	delta, ok := intArg(args, "delta")
	if !ok || delta == 0 {
		return Failure(CodeValidationError, "delta must be a non-zero integer.", "delta")
	}

	book, err := t.books.AdjustQuantity(ctx, bookID, delta)
	if errors.Is(err, catalog.ErrNotFound) {
		return Failure(CodeNotFound, fmt.Sprintf("No catalog entry with id %s.", bookID), bookID)
	}
	if err != nil {
		return Failure(CodeDatabaseError, "Could not adjust the quantity.", err.Error())
	}
	return Success(fmt.Sprintf("Quantity of %q is now %d.", displayTitle(book), book.Quantity),
		map[string]interface{}{"book": book})
}

func (t *inventoryTools) checkDuplicates(ctx context.Context, args map[string]interface{}) Result {
	var req duplicates.Request
	raw, err := json.Marshal(args)
	if err == nil {
		err = json.Unmarshal(raw, &req)
	}
	if err != nil {
		return Failure(CodeValidationError, "Invalid duplicate-check arguments.", err.Error())
	}

	result := t.checker.Check(ctx, req)
	analysis := result.DuplicateDetection.Analysis

	if t.audit != nil {
		t.audit.Record(ctx, adminlog.ActionCheckDuplicate, adminctx.GetAdminEmail(ctx), map[string]interface{}{
			"recommendation": analysis.Recommendation,
			"has_duplicates": analysis.HasDuplicates,
		})
	}

	message := "No duplicates found."
	if analysis.HasDuplicates {
		message = fmt.Sprintf("Possible duplicates found; recommendation: %s.", analysis.Recommendation)
	}
	return Success(message, result)
}

// indexEmbeddings refreshes the entry's similarity vectors. Best effort:
// the entry is already stored and the backfill endpoints cover gaps.
func (t *inventoryTools) indexEmbeddings(ctx context.Context, book *catalog.Book) {
	if t.index == nil {
		return
	}

	text := similarity.CanonicalText(
		coalesce(book.TitleZh, book.ItemNameZh),
		coalesce(book.TitleEn, book.ItemNameEn),
		book.AuthorZh, book.AuthorEn, book.PublisherZh, book.PublisherEn, book.Tags,
	)
	if t.embedder != nil && strings.TrimSpace(text) != "" {
		if vecs, err := t.embedder.Embed(ctx, []string{text}); err != nil {
			t.logger.WithError(err).WithField("book_id", book.ID).Warn("Text embedding refresh failed")
		} else if err := t.index.UpsertTextEmbedding(ctx, book.ID, vecs[0]); err != nil {
			t.logger.WithError(err).WithField("book_id", book.ID).Warn("Text embedding upsert failed")
		}
	}

	if t.imageEmbedder != nil && book.CoverURL != "" {
		if vec, err := t.imageEmbedder.EmbedImage(ctx, book.CoverURL); err != nil {
			t.logger.WithError(err).WithField("book_id", book.ID).Warn("Image embedding refresh failed")
		} else if err := t.index.UpsertImageEmbedding(ctx, book.ID, vec); err != nil {
			t.logger.WithError(err).WithField("book_id", book.ID).Warn("Image embedding upsert failed")
		}
	}
}

func displayTitle(book *catalog.Book) string {
	return coalesce(book.TitleZh, book.TitleEn, book.ItemNameZh, book.ItemNameEn, book.ID)
}
