package vision

import (
	"context"
	"fmt"

	"github.com/lotuscatalog/curator/pkg/llm"
	"github.com/lotuscatalog/curator/pkg/logging"
)

// BookAnalysis is the structured reading of a book cover photo.
type BookAnalysis struct {
	TitleZh       string   `json:"title_zh"`
	TitleEn       string   `json:"title_en"`
	AuthorZh      string   `json:"author_zh"`
	AuthorEn      string   `json:"author_en"`
	PublisherZh   string   `json:"publisher_zh"`
	PublisherEn   string   `json:"publisher_en"`
	DescriptionZh string   `json:"description_zh"`
	CategoryType  string   `json:"category_type"`
	Tags          []string `json:"tags"`
}

// ItemAnalysis is the structured reading of a dharma item or statue photo.
type ItemAnalysis struct {
	ItemNameZh    string   `json:"item_name_zh"`
	ItemNameEn    string   `json:"item_name_en"`
	ItemTypeZh    string   `json:"item_type_zh"`
	ItemTypeEn    string   `json:"item_type_en"`
	DescriptionZh string   `json:"description_zh"`
	CategoryType  string   `json:"category_type"`
	Tags          []string `json:"tags"`
}

// Comparison scores two cover photos against each other.
type Comparison struct {
	LayoutSimilarity  float64 `json:"layout_similarity"`
	ContentSimilarity float64 `json:"content_similarity"`
	Confidence        float64 `json:"confidence"`
}

// Analyzer runs vision-model calls for the catalog domain.
type Analyzer struct {
	client llm.VisionClient
	logger logging.Logger
}

func NewAnalyzer(client llm.VisionClient, logger logging.Logger) *Analyzer {
	return &Analyzer{client: client, logger: logger}
}

func stringProp() map[string]interface{} {
	return map[string]interface{}{"type": "string"}
}

func numberProp() map[string]interface{} {
	return map[string]interface{}{"type": "number"}
}

var bookAnalysisSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"title_zh":       stringProp(),
		"title_en":       stringProp(),
		"author_zh":      stringProp(),
		"author_en":      stringProp(),
		"publisher_zh":   stringProp(),
		"publisher_en":   stringProp(),
		"description_zh": stringProp(),
		"category_type":  stringProp(),
		"tags":           map[string]interface{}{"type": "array", "items": stringProp()},
	},
	"required": []string{
		"title_zh", "title_en", "author_zh", "author_en", "publisher_zh", "publisher_en",
		"description_zh", "category_type", "tags",
	},
	"additionalProperties": false,
}

var itemAnalysisSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"item_name_zh":   stringProp(),
		"item_name_en":   stringProp(),
		"item_type_zh":   stringProp(),
		"item_type_en":   stringProp(),
		"description_zh": stringProp(),
		"category_type":  stringProp(),
		"tags":           map[string]interface{}{"type": "array", "items": stringProp()},
	},
	"required": []string{
		"item_name_zh", "item_name_en", "item_type_zh", "item_type_en",
		"description_zh", "category_type", "tags",
	},
	"additionalProperties": false,
}

var comparisonSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"layout_similarity":  numberProp(),
		"content_similarity": numberProp(),
		"confidence":         numberProp(),
	},
	"required":             []string{"layout_similarity", "content_similarity", "confidence"},
	"additionalProperties": false,
}

const bookAnalysisPrompt = `You are cataloging a Buddhist book donation. Read the cover photo and extract the
title, author, and publisher in both Chinese and English where printed. Write a short Chinese
description. Pick category_type from PURE_LAND_BOOKS, OTHER_BOOKS, DHARMA_ITEMS, BUDDHA_STATUES
and suggest a few short tags. Leave fields you cannot read as empty strings.`

const itemAnalysisPrompt = `You are cataloging a donated dharma item or Buddha statue. From the photo, name the
item in Chinese and English, give its type (e.g. mala, incense, statue material), a short Chinese
description, the category_type (DHARMA_ITEMS or BUDDHA_STATUES), and a few short tags. Leave fields
you cannot determine as empty strings.`

const comparisonPrompt = `Compare these two cover photos. The first is a newly uploaded cover, the second an
existing catalog cover. Score layout_similarity and content_similarity between 0 and 1, where 1
means visually the same edition. Report your confidence between 0 and 1.`

// AnalyzeBookCover extracts bibliographic fields from a cover photo.
func (a *Analyzer) AnalyzeBookCover(ctx context.Context, imageURL string) (*BookAnalysis, error) {
	var out BookAnalysis
	if err := a.client.CompleteJSON(ctx, bookAnalysisPrompt, []string{imageURL}, "book_cover_analysis", bookAnalysisSchema, &out); err != nil {
		return nil, fmt.Errorf("analyze book cover: %w", err)
	}
	return &out, nil
}

// AnalyzeItemPhoto extracts item fields from a photo.
func (a *Analyzer) AnalyzeItemPhoto(ctx context.Context, imageURL string) (*ItemAnalysis, error) {
	var out ItemAnalysis
	if err := a.client.CompleteJSON(ctx, itemAnalysisPrompt, []string{imageURL}, "item_photo_analysis", itemAnalysisSchema, &out); err != nil {
		return nil, fmt.Errorf("analyze item photo: %w", err)
	}
	return &out, nil
}

// CompareCovers scores a new cover against an existing one. An existing
// entry without a stored cover cannot be the same edition, so the comparison
// is a confident zero rather than an error.
func (a *Analyzer) CompareCovers(ctx context.Context, newCoverURL, existingCoverURL string) (*Comparison, error) {
	if existingCoverURL == "" {
		return &Comparison{LayoutSimilarity: 0, ContentSimilarity: 0, Confidence: 1}, nil
	}
	var out Comparison
	if err := a.client.CompleteJSON(ctx, comparisonPrompt, []string{newCoverURL, existingCoverURL}, "cover_comparison", comparisonSchema, &out); err != nil {
		return nil, fmt.Errorf("compare covers: %w", err)
	}
	return &out, nil
}
