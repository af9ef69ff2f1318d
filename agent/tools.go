package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fitfinderapi/models"
	"fitfinderapi/services"
	"fitfinderapi/vectorindex"
	"github.com/getsentry/sentry-go"
)

// Registered tool identifiers. The model may only request these; anything
// else is a configuration bug surfaced as ErrUnknownTool.
const (
	ToolCaptionImage  = "caption_image"
	ToolEmbedText     = "embed_text"
	ToolEmbedImage    = "embed_image"
	ToolSearchItems   = "search_items"
	ToolSearchOutfits = "search_outfits"
	ToolCreateOutfit  = "create_outfit"
)

const DefaultTopK = 5

// Toolbox wires the tool adapters to their external collaborators. Every
// adapter has the uniform contract execute(args, state) -> (result, error)
// where result is the serialized payload handed back to the model.
type Toolbox struct {
	LLM      services.StylistLLMProvider
	Embedder services.EmbeddingServiceProvider
	Index    vectorindex.Index
	Store    Store
	Model    services.LLMModelName

	// FetchFile downloads image bytes; swapped out in tests.
	FetchFile func(url string) ([]byte, error)
}

func NewToolbox(llm services.StylistLLMProvider, embedder services.EmbeddingServiceProvider, index vectorindex.Index, store Store) *Toolbox {
	return &Toolbox{
		LLM:       llm,
		Embedder:  embedder,
		Index:     index,
		Store:     store,
		Model:     services.Flash25,
		FetchFile: services.ReadFileFromUrl,
	}
}

// Definitions describes the tool set for the reasoning model.
func (tb *Toolbox) Definitions() []services.ToolDefinition {
	return []services.ToolDefinition{
		{
			Name:        ToolCaptionImage,
			Description: "Describe the clothing item shown in an image URL.",
			Params: map[string]services.ToolParamSpec{
				"image_url": {Type: "string", Description: "URL of the clothing image"},
			},
			Required: []string{"image_url"},
		},
		{
			Name:        ToolEmbedText,
			Description: "Embed a clothing description so wardrobe searches can use it as the query vector.",
			Params: map[string]services.ToolParamSpec{
				"text": {Type: "string", Description: "Clothing description to embed"},
			},
			Required: []string{"text"},
		},
		{
			Name:        ToolEmbedImage,
			Description: "Embed a clothing image so wardrobe searches can use it as the query vector.",
			Params: map[string]services.ToolParamSpec{
				"image_url": {Type: "string", Description: "URL of the clothing image"},
			},
			Required: []string{"image_url"},
		},
		{
			Name:        ToolSearchItems,
			Description: "Search the user's clothing items by similarity to a query, optionally filtered by category and season.",
			Params: map[string]services.ToolParamSpec{
				"query":    {Type: "string", Description: "Free-text description of what to find. Omit to reuse the last embedded query."},
				"category": {Type: "string", Description: "Restrict to one category", Enum: []string{"top", "bottom", "shoes", "outerwear", "accessory"}},
				"season":   {Type: "string", Description: "Restrict to one season", Enum: []string{"spring", "summer", "fall", "winter", "any"}},
				"top_k":    {Type: "integer", Description: "Number of results, default 5"},
			},
		},
		{
			Name:        ToolSearchOutfits,
			Description: "Search the user's saved outfits by similarity to a query.",
			Params: map[string]services.ToolParamSpec{
				"query": {Type: "string", Description: "Free-text description of the occasion or style"},
				"top_k": {Type: "integer", Description: "Number of results, default 5"},
			},
		},
		{
			Name:        ToolCreateOutfit,
			Description: "Persist the currently assembled outfit. Only valid once top, bottom and shoes are all selected.",
			Params: map[string]services.ToolParamSpec{
				"name": {Type: "string", Description: "Optional outfit name"},
			},
		},
	}
}

func stringArg(args map[string]interface{}, key string) string {
	if value, ok := args[key].(string); ok {
		return value
	}
	return ""
}

func intArg(args map[string]interface{}, key string, fallback int) int {
	switch value := args[key].(type) {
	case float64:
		return int(value)
	case int:
		return value
	}
	return fallback
}

// retryOnce runs op and retries a single time after a short backoff, per the
// recoverable branch of the failure taxonomy.
func retryOnce[T any](op func() (T, error)) (T, error) {
	result, err := op()
	if err == nil {
		return result, nil
	}
	time.Sleep(300 * time.Millisecond)
	return op()
}

func (tb *Toolbox) fetchImage(url string) ([]byte, string, error) {
	if url == "" {
		return nil, "", fmt.Errorf("%w: empty image url", ErrInvalidImage)
	}
	imageBytes, err := tb.FetchFile(url)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	mimeType := http.DetectContentType(imageBytes)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, "", fmt.Errorf("%w: unexpected content type %s", ErrInvalidImage, mimeType)
	}
	return imageBytes, mimeType, nil
}

// CaptionImage calls the captioning service for an image URL. It mutates no
// persisted storage; the caption only flows back to the model.
func (tb *Toolbox) CaptionImage(ctx context.Context, ownerID uint, args map[string]interface{}, state *OutfitState) (string, error) {
	imageBytes, mimeType, err := tb.fetchImage(stringArg(args, "image_url"))
	if err != nil {
		return "", err
	}
	caption, err := retryOnce(func() (*services.ItemCaption, error) {
		return tb.LLM.CaptionImage(ctx, imageBytes, mimeType, tb.Model)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	payload, _ := json.Marshal(caption)
	return string(payload), nil
}

// EmbedText embeds a description and keeps the vector on the state as the
// current query vector for the search adapters.
func (tb *Toolbox) EmbedText(ctx context.Context, ownerID uint, args map[string]interface{}, state *OutfitState) (string, error) {
	text := stringArg(args, "text")
	if text == "" {
		return "", fmt.Errorf("%w: empty text", ErrEmbeddingFailure)
	}
	vector, err := retryOnce(func() ([]float32, error) {
		return tb.Embedder.EmbedText(ctx, text)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEmbeddingFailure, err)
	}
	state.CurrentEmbedding = vector
	return fmt.Sprintf("embedded text into a %d-dimension vector", len(vector)), nil
}

func (tb *Toolbox) EmbedImage(ctx context.Context, ownerID uint, args map[string]interface{}, state *OutfitState) (string, error) {
	imageBytes, mimeType, err := tb.fetchImage(stringArg(args, "image_url"))
	if err != nil {
		return "", err
	}
	vector, err := retryOnce(func() ([]float32, error) {
		return tb.Embedder.EmbedImage(ctx, imageBytes, mimeType)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEmbeddingFailure, err)
	}
	state.CurrentEmbedding = vector
	return fmt.Sprintf("embedded image into a %d-dimension vector", len(vector)), nil
}

func (tb *Toolbox) queryVector(ctx context.Context, args map[string]interface{}, state *OutfitState) ([]float32, error) {
	if query := stringArg(args, "query"); query != "" {
		vector, err := retryOnce(func() ([]float32, error) {
			return tb.Embedder.EmbedText(ctx, query)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailure, err)
		}
		state.CurrentEmbedding = vector
		return vector, nil
	}
	if len(state.CurrentEmbedding) > 0 {
		return state.CurrentEmbedding, nil
	}
	return nil, fmt.Errorf("%w: no query text and no previously embedded vector", ErrEmbeddingFailure)
}

type itemSearchEntry struct {
	ID          uint     `json:"id"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Season      string   `json:"season"`
	Tags        []string `json:"tags,omitempty"`
}

// SearchItems runs a ranked nearest-neighbor query over the user's items.
// Empty results are a valid outcome reported to the model, never an error.
func (tb *Toolbox) SearchItems(ctx context.Context, ownerID uint, args map[string]interface{}, state *OutfitState) (string, error) {
	vector, err := tb.queryVector(ctx, args, state)
	if err != nil {
		return "", err
	}
	filter := vectorindex.Filter{
		Category: stringArg(args, "category"),
		Season:   stringArg(args, "season"),
	}
	if filter.Season == string(models.SeasonAny) {
		filter.Season = ""
	}
	matches, err := tb.Index.Search(ctx, vectorindex.KindItem, vector, filter, intArg(args, "top_k", DefaultTopK))
	if err != nil {
		return "", fmt.Errorf("item search failed: %w", err)
	}
	ids := make([]uint, len(matches))
	for i, match := range matches {
		ids[i] = match.RecordID
	}
	items, err := tb.Store.GetItems(ctx, ownerID, ids)
	if err != nil {
		return "", err
	}
	state.ItemCandidates = items
	if len(items) == 0 {
		return "no matching items found", nil
	}
	entries := make([]itemSearchEntry, len(items))
	for i, item := range items {
		entries[i] = itemSearchEntry{
			ID:          item.ID,
			Description: descriptionOf(item),
			Category:    item.Category.Value(),
			Season:      item.Season.Value(),
			Tags:        []string(item.Tags),
		}
	}
	payload, _ := json.Marshal(entries)
	return string(payload), nil
}

type outfitSearchEntry struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Season      string `json:"season"`
}

func (tb *Toolbox) SearchOutfits(ctx context.Context, ownerID uint, args map[string]interface{}, state *OutfitState) (string, error) {
	vector, err := tb.queryVector(ctx, args, state)
	if err != nil {
		return "", err
	}
	matches, err := tb.Index.Search(ctx, vectorindex.KindOutfit, vector, vectorindex.Filter{}, intArg(args, "top_k", DefaultTopK))
	if err != nil {
		return "", fmt.Errorf("outfit search failed: %w", err)
	}
	ids := make([]uint, len(matches))
	for i, match := range matches {
		ids[i] = match.RecordID
	}
	outfits, err := tb.Store.GetOutfits(ctx, ownerID, ids)
	if err != nil {
		return "", err
	}
	state.OutfitCandidates = outfits
	if len(outfits) == 0 {
		return "no matching outfits found", nil
	}
	entries := make([]outfitSearchEntry, len(outfits))
	for i, outfit := range outfits {
		description := ""
		if outfit.Description != nil {
			description = *outfit.Description
		}
		entries[i] = outfitSearchEntry{
			ID:          outfit.ID,
			Name:        outfit.Name,
			Description: description,
			Season:      outfit.Season.Value(),
		}
	}
	payload, _ := json.Marshal(entries)
	return string(payload), nil
}

// CreateOutfit persists the assembled outfit. The completeness precondition
// is checked before any write: calling this with required categories missing
// is a contract violation, rejected up front.
func (tb *Toolbox) CreateOutfit(ctx context.Context, ownerID uint, args map[string]interface{}, state *OutfitState) (string, error) {
	outfit, err := tb.PersistOutfit(ctx, ownerID, state, stringArg(args, "name"))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`{"outfit_id": %d, "name": %q}`, outfit.ID, outfit.Name), nil
}

// PersistOutfit is the shared write path behind the create_outfit adapter
// and the engine's Done state.
func (tb *Toolbox) PersistOutfit(ctx context.Context, ownerID uint, state *OutfitState, name string) (*models.Outfit, error) {
	if !state.Complete() {
		return nil, &IncompleteOutfitError{
			MissingCategories: append([]models.Category{}, state.MissingCategories...),
			Reason:            "refusing to persist an outfit with required categories missing",
		}
	}

	outfit := models.Outfit{
		Name:    name,
		Season:  state.Season,
		OwnerID: ownerID,
	}
	var descriptions []string
	for _, item := range state.SelectedItems {
		descriptions = append(descriptions, descriptionOf(item))
		switch item.Category {
		case models.CategoryTop:
			outfit.TopItemID = item.ID
		case models.CategoryBottom:
			outfit.BottomItemID = item.ID
		case models.CategoryShoes:
			outfit.ShoesItemID = item.ID
		case models.CategoryOuterwear:
			outfit.OuterwearItemID = services.UintPointer(item.ID)
		case models.CategoryAccessory:
			outfit.AccessoryItemID = services.UintPointer(item.ID)
		}
	}
	combined := strings.Join(descriptions, "; ")
	outfit.Description = services.StrPointer(combined)
	if outfit.Name == "" {
		outfit.Name = fmt.Sprintf("%s outfit", outfit.Season.Value())
	}

	if err := tb.Store.CreateOutfit(ctx, &outfit); err != nil {
		return nil, err
	}

	// index upsert is idempotent, retried once; a persisted outfit is never
	// rolled back because indexing lagged
	if _, err := retryOnce(func() (struct{}, error) {
		vector, err := tb.Embedder.EmbedText(ctx, combined)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, tb.Index.Upsert(ctx, vectorindex.KindOutfit, outfit.ID, vector, "", outfit.Season.Value())
	}); err != nil {
		fmt.Printf("[Outfit: %v] failed to index outfit: %v\n", outfit.ID, err)
		sentry.CaptureException(fmt.Errorf("[Outfit: %v] failed to index outfit: %w", outfit.ID, err))
	}

	return &outfit, nil
}

func descriptionOf(item models.ClothingItem) string {
	if item.Description != nil {
		return *item.Description
	}
	return fmt.Sprintf("%s item %d", item.Category.Value(), item.ID)
}
