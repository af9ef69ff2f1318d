// Package vectorindex is the nearest-neighbor collaborator of the agent
// core. Records are embeddings keyed by (kind, record id) with category and
// season metadata for filtering.
package vectorindex

import "context"

const (
	KindItem   = "item"
	KindOutfit = "outfit"
)

// Filter narrows a search by item metadata. Empty fields match everything.
type Filter struct {
	Category string
	Season   string
}

// Match is one ranked search result. Score is cosine similarity.
type Match struct {
	RecordID uint
	Score    float64
}

// Index ranks stored embeddings by similarity to a query vector. An empty
// result list is a valid outcome, not an error. Ranking is deterministic:
// score descending, ties broken by insertion order.
type Index interface {
	Upsert(ctx context.Context, kind string, recordID uint, vector []float32, category string, season string) error
	Delete(ctx context.Context, kind string, recordID uint) error
	Search(ctx context.Context, kind string, vector []float32, filter Filter, topK int) ([]Match, error)
}
