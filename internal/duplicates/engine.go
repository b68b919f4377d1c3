package duplicates

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lotuscatalog/curator/internal/catalog"
	"github.com/lotuscatalog/curator/internal/similarity"
	"github.com/lotuscatalog/curator/internal/vision"
	"github.com/lotuscatalog/curator/pkg/llm"
	"github.com/lotuscatalog/curator/pkg/logging"
)

// Recommendations returned by a duplicate check.
const (
	RecommendUpdateExisting = "update_existing"
	RecommendNeedsReview    = "needs_review"
	RecommendCreateNew      = "create_new"
)

const (
	textWeight        = 0.6
	imageWeight       = 0.4
	tieBreakThreshold = 0.6
	updateThreshold   = 0.9
	reviewThreshold   = 0.7
	neighborLimit     = 10
	maxComparisons    = 3
)

// Request carries the fields of a prospective catalog entry.
type Request struct {
	TitleZh      string   `json:"title_zh,omitempty"`
	TitleEn      string   `json:"title_en,omitempty"`
	AuthorZh     string   `json:"author_zh,omitempty"`
	AuthorEn     string   `json:"author_en,omitempty"`
	PublisherZh  string   `json:"publisher_zh,omitempty"`
	PublisherEn  string   `json:"publisher_en,omitempty"`
	ItemNameZh   string   `json:"item_name_zh,omitempty"`
	ItemNameEn   string   `json:"item_name_en,omitempty"`
	ItemTypeZh   string   `json:"item_type_zh,omitempty"`
	ItemTypeEn   string   `json:"item_type_en,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	CategoryType string   `json:"category_type,omitempty"`
	CoverImage   string   `json:"cover_image,omitempty"`
}

// Match is one scored duplicate candidate.
type Match struct {
	BookID           string        `json:"book_id"`
	Book             *catalog.Book `json:"book,omitempty"`
	TextSimilarity   float64       `json:"text_similarity"`
	ImageSimilarity  float64       `json:"image_similarity"`
	FusedScore       float64       `json:"fused_score"`
	VisualScore      *float64      `json:"visual_score,omitempty"`
	VisualConfidence *float64      `json:"visual_confidence,omitempty"`
}

// Analysis is the engine's verdict.
type Analysis struct {
	HasDuplicates  bool    `json:"has_duplicates"`
	Confidence     float64 `json:"confidence"`
	Recommendation string  `json:"recommendation"`
	Reason         string  `json:"reason,omitempty"`
}

// Result bundles the verdict with the plain search view of the candidates.
type Result struct {
	DuplicateDetection struct {
		Matches  []Match  `json:"matches"`
		Analysis Analysis `json:"analysis"`
	} `json:"duplicate_detection"`
	Search struct {
		Found bool           `json:"found"`
		Books []catalog.Book `json:"books"`
	} `json:"search"`
}

type vectorIndex interface {
	SearchText(ctx context.Context, vec []float32, limit int, categoryType string) ([]similarity.Neighbor, error)
	SearchImage(ctx context.Context, vec []float32, limit int, categoryType string) ([]similarity.Neighbor, error)
}

type catalogLookup interface {
	GetBook(ctx context.Context, id string) (*catalog.Book, error)
	FindByCoverHash(ctx context.Context, hash string) (*catalog.Book, error)
	FindSimilarByText(ctx context.Context, title, author string, limit int) ([]catalog.Book, error)
}

type coverComparer interface {
	CompareCovers(ctx context.Context, newCoverURL, existingCoverURL string) (*vision.Comparison, error)
}

// Engine detects likely duplicates for a prospective catalog entry. It never
// returns an error: every degradation path ends in a usable verdict.
type Engine struct {
	index         vectorIndex
	books         catalogLookup
	comparer      coverComparer
	embedder      llm.EmbeddingClient
	imageEmbedder llm.ImageEmbeddingClient
	logger        logging.Logger
}

func NewEngine(index vectorIndex, books catalogLookup, comparer coverComparer, embedder llm.EmbeddingClient, imageEmbedder llm.ImageEmbeddingClient, logger logging.Logger) *Engine {
	return &Engine{
		index:         index,
		books:         books,
		comparer:      comparer,
		embedder:      embedder,
		imageEmbedder: imageEmbedder,
		logger:        logger,
	}
}

var contentHashPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// CoverContentHash extracts a 40-hex content hash from any path segment of
// an image URL, ignoring a file extension.
func CoverContentHash(imageURL string) string {
	if imageURL == "" {
		return ""
	}
	parsed, err := url.Parse(imageURL)
	path := imageURL
	if err == nil && parsed.Path != "" {
		path = parsed.Path
	}
	for _, segment := range strings.Split(path, "/") {
		if dot := strings.IndexByte(segment, '.'); dot >= 0 {
			segment = segment[:dot]
		}
		if contentHashPattern.MatchString(segment) {
			return segment
		}
	}
	return ""
}

// Check runs the full duplicate pipeline.
func (e *Engine) Check(ctx context.Context, req Request) Result {
	start := time.Now()
	result := e.check(ctx, req)
	checkDuration.Observe(time.Since(start).Seconds())
	checksTotal.WithLabelValues(result.DuplicateDetection.Analysis.Recommendation).Inc()
	return result
}

func (e *Engine) check(ctx context.Context, req Request) Result {
	var result Result

	// Exact cover re-upload resolves without any model calls.
	if hash := CoverContentHash(req.CoverImage); hash != "" {
		if book, err := e.books.FindByCoverHash(ctx, hash); err == nil && book != nil {
			hashFastPathTotal.Inc()
			match := Match{BookID: book.ID, Book: book, ImageSimilarity: 1, FusedScore: 1}
			result.DuplicateDetection.Matches = []Match{match}
			result.DuplicateDetection.Analysis = Analysis{
				HasDuplicates:  true,
				Confidence:     1,
				Recommendation: RecommendUpdateExisting,
				Reason:         "cover image matches an existing entry exactly",
			}
			result.Search.Found = true
			result.Search.Books = []catalog.Book{*book}
			return result
		}
	}

	textNeighbors, indexDown := e.textNeighbors(ctx, req)
	if indexDown {
		return e.fallback(ctx, req)
	}
	imageNeighbors := e.imageNeighbors(ctx, req)

	matches := fuse(textNeighbors, imageNeighbors)
	if len(matches) == 0 {
		result.DuplicateDetection.Matches = []Match{}
		result.DuplicateDetection.Analysis = Analysis{
			HasDuplicates:  false,
			Confidence:     1,
			Recommendation: RecommendCreateNew,
			Reason:         "no nearby entries found",
		}
		return result
	}

	e.attachBooks(ctx, matches)

	analysis := Analysis{
		HasDuplicates:  false,
		Confidence:     1,
		Recommendation: RecommendCreateNew,
		Reason:         "no candidate scored high enough to compare",
	}

	if matches[0].FusedScore >= tieBreakThreshold && req.CoverImage != "" {
		analysis = e.tieBreak(ctx, req, matches, textNeighbors, imageNeighbors)
	}

	result.DuplicateDetection.Matches = matches
	result.DuplicateDetection.Analysis = analysis
	for _, m := range matches {
		if m.Book != nil {
			result.Search.Books = append(result.Search.Books, *m.Book)
		}
	}
	result.Search.Found = len(result.Search.Books) > 0
	return result
}

// textNeighbors embeds the canonical query and searches the text index. The
// second return is true when the index itself failed and the whole check
// should degrade to substring search.
func (e *Engine) textNeighbors(ctx context.Context, req Request) ([]similarity.Neighbor, bool) {
	query := similarity.CanonicalText(
		firstNonEmpty(req.TitleZh, req.ItemNameZh),
		firstNonEmpty(req.TitleEn, req.ItemNameEn),
		req.AuthorZh, req.AuthorEn, req.PublisherZh, req.PublisherEn, req.Tags,
	)
	if strings.TrimSpace(query) == "" {
		return nil, false
	}

	vecs, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		embeddingFailuresTotal.WithLabelValues("text").Inc()
		e.logger.WithError(err).Warn("Text embedding failed during duplicate check")
		return nil, false
	}

	neighbors, err := e.index.SearchText(ctx, vecs[0], neighborLimit, req.CategoryType)
	if err != nil {
		e.logger.WithError(err).Warn("Text vector search failed; degrading to substring search")
		return nil, true
	}
	return neighbors, false
}

func (e *Engine) imageNeighbors(ctx context.Context, req Request) []similarity.Neighbor {
	if req.CoverImage == "" {
		return nil
	}
	vec, err := e.imageEmbedder.EmbedImage(ctx, req.CoverImage)
	if err != nil {
		embeddingFailuresTotal.WithLabelValues("image").Inc()
		e.logger.WithError(err).Warn("Image embedding failed during duplicate check")
		return nil
	}
	neighbors, err := e.index.SearchImage(ctx, vec, neighborLimit, req.CategoryType)
	if err != nil {
		e.logger.WithError(err).Warn("Image vector search failed; continuing text-only")
		return nil
	}
	return neighbors
}

// fuse combines per-modality similarities into one ranked candidate list. A
// candidate absent from a modality contributes zero for it.
func fuse(text, image []similarity.Neighbor) []Match {
	byID := map[string]*Match{}
	for _, n := range text {
		byID[n.BookID] = &Match{BookID: n.BookID, TextSimilarity: n.Similarity}
	}
	for _, n := range image {
		if m, ok := byID[n.BookID]; ok {
			m.ImageSimilarity = n.Similarity
		} else {
			byID[n.BookID] = &Match{BookID: n.BookID, ImageSimilarity: n.Similarity}
		}
	}

	matches := make([]Match, 0, len(byID))
	for _, m := range byID {
		m.FusedScore = textWeight*m.TextSimilarity + imageWeight*m.ImageSimilarity
		matches = append(matches, *m)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].FusedScore != matches[j].FusedScore {
			return matches[i].FusedScore > matches[j].FusedScore
		}
		return matches[i].BookID < matches[j].BookID
	})
	return matches
}

func (e *Engine) attachBooks(ctx context.Context, matches []Match) {
	for i := range matches {
		book, err := e.books.GetBook(ctx, matches[i].BookID)
		if err != nil {
			e.logger.WithError(err).WithField("book_id", matches[i].BookID).Warn("Duplicate candidate fetch failed")
			continue
		}
		matches[i].Book = book
	}
}

// tieBreak visually compares the new cover against a small candidate
// subset: the best image neighbor plus up to two of the best text neighbors
// not already selected.
func (e *Engine) tieBreak(ctx context.Context, req Request, matches []Match, textNeighbors, imageNeighbors []similarity.Neighbor) Analysis {
	selected := map[string]bool{}
	subset := make([]*Match, 0, maxComparisons)

	if len(imageNeighbors) > 0 {
		if m := findMatch(matches, imageNeighbors[0].BookID); m != nil {
			subset = append(subset, m)
			selected[m.BookID] = true
		}
	}
	textAdded := 0
	for _, n := range textNeighbors {
		if textAdded >= 2 || len(subset) >= maxComparisons {
			break
		}
		if selected[n.BookID] {
			continue
		}
		if m := findMatch(matches, n.BookID); m != nil {
			subset = append(subset, m)
			selected[n.BookID] = true
			textAdded++
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxComparisons)
	for _, m := range subset {
		m := m
		g.Go(func() error {
			existingCover := ""
			if m.Book != nil {
				existingCover = m.Book.CoverURL
			}
			cmp, err := e.comparer.CompareCovers(gctx, req.CoverImage, existingCover)
			if err != nil {
				visualComparisonsTotal.WithLabelValues("error").Inc()
				e.logger.WithError(err).WithField("book_id", m.BookID).Warn("Visual comparison failed")
				// Inconclusive comparison: neutral similarity, low confidence.
				score, confidence := 0.5, 0.3
				m.VisualScore = &score
				m.VisualConfidence = &confidence
				return nil
			}
			visualComparisonsTotal.WithLabelValues("ok").Inc()
			score := (cmp.LayoutSimilarity + cmp.ContentSimilarity) / 2
			m.VisualScore = &score
			m.VisualConfidence = &cmp.Confidence
			return nil
		})
	}
	_ = g.Wait()

	var best *Match
	for _, m := range subset {
		if m.VisualScore == nil {
			continue
		}
		if best == nil || *m.VisualScore > *best.VisualScore {
			best = m
		}
	}
	if best == nil {
		return Analysis{
			HasDuplicates:  false,
			Confidence:     1,
			Recommendation: RecommendCreateNew,
			Reason:         "no candidate could be compared",
		}
	}

	score := *best.VisualScore
	confidence := *best.VisualConfidence
	differs := publisherDiffers(req, best.Book)

	switch {
	case score > updateThreshold && !differs:
		return Analysis{
			HasDuplicates:  true,
			Confidence:     confidence,
			Recommendation: RecommendUpdateExisting,
			Reason:         "cover visually matches an existing entry",
		}
	case score > reviewThreshold:
		return Analysis{
			HasDuplicates:  true,
			Confidence:     confidence,
			Recommendation: RecommendNeedsReview,
			Reason:         "cover is close to an existing entry but details differ",
		}
	default:
		return Analysis{
			HasDuplicates:  false,
			Confidence:     confidence,
			Recommendation: RecommendCreateNew,
			Reason:         "compared covers look different",
		}
	}
}

// fallback is the substring search used when the vector index is down.
func (e *Engine) fallback(ctx context.Context, req Request) Result {
	indexFallbacksTotal.Inc()

	var result Result
	title := firstNonEmpty(req.TitleZh, req.TitleEn, req.ItemNameZh, req.ItemNameEn)
	author := firstNonEmpty(req.AuthorZh, req.AuthorEn)

	books, err := e.books.FindSimilarByText(ctx, title, author, neighborLimit)
	if err != nil {
		e.logger.WithError(err).Warn("Substring fallback search failed")
		books = nil
	}

	result.DuplicateDetection.Matches = []Match{}
	if len(books) == 0 {
		result.DuplicateDetection.Analysis = Analysis{
			HasDuplicates:  false,
			Confidence:     1,
			Recommendation: RecommendCreateNew,
			Reason:         "similarity index unavailable; no title matches found",
		}
		return result
	}

	for i := range books {
		result.DuplicateDetection.Matches = append(result.DuplicateDetection.Matches, Match{
			BookID: books[i].ID,
			Book:   &books[i],
		})
	}
	result.DuplicateDetection.Analysis = Analysis{
		HasDuplicates:  true,
		Confidence:     0.5,
		Recommendation: RecommendNeedsReview,
		Reason:         "similarity index unavailable; title matches need manual review",
	}
	result.Search.Found = true
	result.Search.Books = books
	return result
}

func findMatch(matches []Match, bookID string) *Match {
	for i := range matches {
		if matches[i].BookID == bookID {
			return &matches[i]
		}
	}
	return nil
}

func publisherDiffers(req Request, book *catalog.Book) bool {
	if book == nil {
		return false
	}
	if req.PublisherZh != "" && book.PublisherZh != "" && req.PublisherZh != book.PublisherZh {
		return true
	}
	if req.PublisherEn != "" && book.PublisherEn != "" && !strings.EqualFold(req.PublisherEn, book.PublisherEn) {
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
