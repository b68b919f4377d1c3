package tools

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/lotuscatalog/curator/internal/vision"
	"github.com/lotuscatalog/curator/pkg/logging"
)

type photoAnalyzer interface {
	AnalyzeBookCover(ctx context.Context, imageURL string) (*vision.BookAnalysis, error)
	AnalyzeItemPhoto(ctx context.Context, imageURL string) (*vision.ItemAnalysis, error)
}

type visionTools struct {
	analyzer photoAnalyzer
	logger   logging.Logger
}

// RegisterVisionTools registers the photo-analysis tools. Both are
// cacheable so one photo is analyzed at most once per request.
func RegisterVisionTools(reg *Registry, analyzer photoAnalyzer, logger logging.Logger) {
	vt := &visionTools{analyzer: analyzer, logger: logger}

	reg.Register(&Tool{
		Name:        "analyze_book_cover",
		Description: "Read a book cover photo and extract bilingual title, author, publisher, category and tags.",
		Cacheable:   true,
		Schema:      imageURLSchema(),
		Execute:     vt.analyzeBookCover,
	})
	reg.Register(&Tool{
		Name:        "analyze_item_photo",
		Description: "Read a dharma item or statue photo and extract bilingual name, type, category and tags.",
		Cacheable:   true,
		Schema:      imageURLSchema(),
		Execute:     vt.analyzeItemPhoto,
	})
}

func imageURLSchema() *jsonschema.Schema {
	return objectSchema(map[string]*jsonschema.Schema{
		"image_url": stringProp("URL of the uploaded photo"),
	}, "image_url")
}

func (t *visionTools) analyzeBookCover(ctx context.Context, args map[string]interface{}) Result {
	imageURL := stringArg(args, "image_url")

	analysis, err := t.analyzer.AnalyzeBookCover(ctx, imageURL)
	if err != nil {
		t.logger.WithError(err).Warn("Book cover analysis failed")
		return Failure(CodeUnknownError, "Cover analysis failed.", err.Error())
	}
	return Success(fmt.Sprintf("Cover read as %q.", coalesce(analysis.TitleZh, analysis.TitleEn)),
		map[string]interface{}{"analysis": analysis})
}

func (t *visionTools) analyzeItemPhoto(ctx context.Context, args map[string]interface{}) Result {
	imageURL := stringArg(args, "image_url")

	analysis, err := t.analyzer.AnalyzeItemPhoto(ctx, imageURL)
	if err != nil {
		t.logger.WithError(err).Warn("Item photo analysis failed")
		return Failure(CodeUnknownError, "Photo analysis failed.", err.Error())
	}
	return Success(fmt.Sprintf("Photo read as %q.", coalesce(analysis.ItemNameZh, analysis.ItemNameEn)),
		map[string]interface{}{"analysis": analysis})
}
