package similarity

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lotuscatalog/curator/pkg/llm"
	"github.com/lotuscatalog/curator/pkg/logging"
)

const defaultBatchSize = 10

// Report summarizes a backfill run.
type Report struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Errors    int `json:"errors"`
}

// Backfiller populates missing embeddings for existing catalog entries.
// Batches run concurrently inside, sequentially across, so a large catalog
// backfills without hammering the embedding services.
type Backfiller struct {
	store         *Store
	embedder      llm.EmbeddingClient
	imageEmbedder llm.ImageEmbeddingClient
	logger        logging.Logger
}

func NewBackfiller(store *Store, embedder llm.EmbeddingClient, imageEmbedder llm.ImageEmbeddingClient, logger logging.Logger) *Backfiller {
	return &Backfiller{
		store:         store,
		embedder:      embedder,
		imageEmbedder: imageEmbedder,
		logger:        logger,
	}
}

// BackfillTextEmbeddings embeds canonical text for every entry missing a
// text embedding.
func (b *Backfiller) BackfillTextEmbeddings(ctx context.Context, batchSize int) (Report, error) {
	return b.run(ctx, batchSize, b.store.BooksMissingTextEmbeddings, func(ctx context.Context, row MissingRow) error {
		text := CanonicalText(row.TitleZh, row.TitleEn, row.AuthorZh, row.AuthorEn, row.PublisherZh, row.PublisherEn, row.Tags)
		vecs, err := b.embedder.Embed(ctx, []string{text})
		if err != nil {
			return err
		}
		return b.store.UpsertTextEmbedding(ctx, row.BookID, vecs[0])
	})
}

// BackfillImageEmbeddings embeds the cover for every entry missing an image
// embedding.
func (b *Backfiller) BackfillImageEmbeddings(ctx context.Context, batchSize int) (Report, error) {
	return b.run(ctx, batchSize, b.store.BooksMissingImageEmbeddings, func(ctx context.Context, row MissingRow) error {
		vec, err := b.imageEmbedder.EmbedImage(ctx, row.CoverURL)
		if err != nil {
			return err
		}
		return b.store.UpsertImageEmbedding(ctx, row.BookID, vec)
	})
}

func (b *Backfiller) run(ctx context.Context, batchSize int, fetch func(context.Context, int) ([]MissingRow, error), process func(context.Context, MissingRow) error) (Report, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	var report Report
	for {
		rows, err := fetch(ctx, batchSize)
		if err != nil {
			return report, err
		}
		if len(rows) == 0 {
			return report, nil
		}

		var mu sync.Mutex
		created, failed := 0, 0

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(batchSize)
		for _, row := range rows {
			row := row
			g.Go(func() error {
				if err := process(gctx, row); err != nil {
					b.logger.WithError(err).WithField("book_id", row.BookID).Warn("Embedding backfill entry failed")
					mu.Lock()
					failed++
					mu.Unlock()
					return nil
				}
				mu.Lock()
				created++
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return report, err
		}

		report.Processed += len(rows)
		report.Created += created
		report.Errors += failed

		// Failed rows stay missing and would be refetched forever; stop once
		// a whole batch makes no progress.
		if created == 0 {
			return report, nil
		}
	}
}
