package vectorindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	index, err := NewSQLiteIndex(filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })
	return index
}

func TestSearchRanksBySimilarity(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx, KindItem, 1, []float32{1, 0, 0}, "top", "summer"))
	require.NoError(t, index.Upsert(ctx, KindItem, 2, []float32{0, 1, 0}, "top", "summer"))
	require.NoError(t, index.Upsert(ctx, KindItem, 3, []float32{0.9, 0.1, 0}, "top", "summer"))

	matches, err := index.Search(ctx, KindItem, []float32{1, 0, 0}, Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, uint(1), matches[0].RecordID)
	assert.Equal(t, uint(3), matches[1].RecordID)
	assert.Equal(t, uint(2), matches[2].RecordID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestSearchTiesBreakByInsertionOrder(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	// identical vectors, identical scores
	require.NoError(t, index.Upsert(ctx, KindItem, 7, []float32{0, 1, 0}, "shoes", "any"))
	require.NoError(t, index.Upsert(ctx, KindItem, 4, []float32{0, 1, 0}, "shoes", "any"))
	require.NoError(t, index.Upsert(ctx, KindItem, 9, []float32{0, 1, 0}, "shoes", "any"))

	for i := 0; i < 3; i++ {
		matches, err := index.Search(ctx, KindItem, []float32{0, 1, 0}, Filter{}, 10)
		require.NoError(t, err)
		require.Len(t, matches, 3)
		assert.Equal(t, uint(7), matches[0].RecordID)
		assert.Equal(t, uint(4), matches[1].RecordID)
		assert.Equal(t, uint(9), matches[2].RecordID)
	}
}

func TestSearchFiltersByCategoryAndSeason(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx, KindItem, 1, []float32{1, 0}, "top", "summer"))
	require.NoError(t, index.Upsert(ctx, KindItem, 2, []float32{1, 0}, "top", "winter"))
	require.NoError(t, index.Upsert(ctx, KindItem, 3, []float32{1, 0}, "shoes", "summer"))

	matches, err := index.Search(ctx, KindItem, []float32{1, 0}, Filter{Category: "top", Season: "summer"}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, uint(1), matches[0].RecordID)

	matches, err = index.Search(ctx, KindItem, []float32{1, 0}, Filter{Category: "top"}, 10)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestSeasonFilterAdmitsAnySeasonItems(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx, KindItem, 1, []float32{1, 0}, "shoes", "any"))
	require.NoError(t, index.Upsert(ctx, KindItem, 2, []float32{1, 0}, "shoes", "winter"))

	// an all-season item satisfies a summer-constrained search
	matches, err := index.Search(ctx, KindItem, []float32{1, 0}, Filter{Category: "shoes", Season: "summer"}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, uint(1), matches[0].RecordID)

	matches, err = index.Search(ctx, KindItem, []float32{1, 0}, Filter{Category: "shoes", Season: "winter"}, 10)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestSearchEmptyResultIsNotAnError(t *testing.T) {
	index := newTestIndex(t)

	matches, err := index.Search(context.Background(), KindItem, []float32{1, 0}, Filter{Category: "bottom"}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearchSeparatesKinds(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx, KindItem, 1, []float32{1, 0}, "top", "any"))
	require.NoError(t, index.Upsert(ctx, KindOutfit, 1, []float32{1, 0}, "", "any"))

	matches, err := index.Search(ctx, KindOutfit, []float32{1, 0}, Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, uint(1), matches[0].RecordID)
}

func TestUpsertReplacesAndKeepsInsertionOrder(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx, KindItem, 1, []float32{0, 1}, "top", "summer"))
	require.NoError(t, index.Upsert(ctx, KindItem, 2, []float32{0, 1}, "top", "summer"))
	// re-embed record 1, must not move it behind record 2 on ties
	require.NoError(t, index.Upsert(ctx, KindItem, 1, []float32{0, 1}, "top", "winter"))

	matches, err := index.Search(ctx, KindItem, []float32{0, 1}, Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, uint(1), matches[0].RecordID)

	matches, err = index.Search(ctx, KindItem, []float32{0, 1}, Filter{Season: "winter"}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, uint(1), matches[0].RecordID)
}

func TestDeleteRemovesRecord(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx, KindItem, 1, []float32{1, 0}, "top", "any"))
	require.NoError(t, index.Delete(ctx, KindItem, 1))

	matches, err := index.Search(ctx, KindItem, []float32{1, 0}, Filter{}, 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestVectorRoundTrip(t *testing.T) {
	original := []float32{0.25, -1.5, 3.75, 0}
	decoded := decodeVector(encodeVector(original))
	assert.Equal(t, original, decoded)
}
