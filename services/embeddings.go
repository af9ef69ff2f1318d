package services

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const EmbeddingModelName = "text-embedding-004"

// EmbeddingDim is the fixed vector length all stored embeddings share.
const EmbeddingDim = 768

// EmbeddingServiceProvider turns text or images into fixed-length vectors.
// Same input should produce the same vector, but the provider does not
// guarantee it, so callers never assume memoized correctness across calls.
type EmbeddingServiceProvider interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedImage(ctx context.Context, imageBytes []byte, mimeType string) ([]float32, error)
}

// GoogleEmbeddingService embeds text with the GenAI embedding model. Images
// are captioned first and the caption embedded, so that item and query
// vectors live in the same text space.
type GoogleEmbeddingService struct {
	LLM StylistLLMProvider
}

func (s GoogleEmbeddingService) EmbedText(ctx context.Context, text string) ([]float32, error) {
	client, err := newGenAIClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("error creating genai client: %v", err)
	}

	result, err := client.Models.EmbedContent(ctx, EmbeddingModelName, []*genai.Content{
		{Parts: []*genai.Part{{Text: text}}},
	}, &genai.EmbedContentConfig{
		OutputDimensionality: Int32Pointer(EmbeddingDim),
	})
	if err != nil {
		fmt.Println("Error in EmbedContent:", err)
		return nil, fmt.Errorf("%v", err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("empty embedding returned for text of length %d", len(text))
	}
	return result.Embeddings[0].Values, nil
}

func (s GoogleEmbeddingService) EmbedImage(ctx context.Context, imageBytes []byte, mimeType string) ([]float32, error) {
	caption, err := s.LLM.CaptionImage(ctx, imageBytes, mimeType, Flash25)
	if err != nil {
		return nil, err
	}
	if caption.Description == "" {
		return nil, fmt.Errorf("no clothing item recognized in image")
	}
	return s.EmbedText(ctx, caption.Description)
}
