package tasks

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"fitfinderapi/dbhelper"
	"fitfinderapi/models"
	"fitfinderapi/test"
	"fitfinderapi/vectorindex"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPhotoBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 200, B: 210, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHandleItemProcessingTask(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()

	index, err := vectorindex.NewSQLiteIndex(filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	defer index.Close()

	user := test.FakeUser(db)
	photo := testPhotoBytes(t)
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(photo)
	}))
	defer mockServer.Close()

	item := models.ClothingItem{
		OwnerID:          user.ID,
		ImageURL:         test.NewRefString("items/shirt.png"),
		ImageStatus:      "uploaded",
		ProcessingStatus: "pending",
	}
	db.Create(&item)

	task, err := NewItemProcessingTask(item.ID)
	require.NoError(t, err)

	awsServiceMock := &test.AWSProviderMock{MockUrl: mockServer.URL}
	err = HandleItemProcessingTask(context.Background(), task, db, &test.MockStylistLLM{}, test.MockEmbedder{}, index, awsServiceMock, nil)
	assert.NoError(t, err)

	var updated models.ClothingItem
	require.NoError(t, db.First(&updated, item.ID).Error)
	assert.Equal(t, "completed", updated.ProcessingStatus)
	require.NotNil(t, updated.Description)
	assert.Equal(t, "white cotton shirt with a relaxed fit", *updated.Description)
	assert.Equal(t, models.CategoryTop, updated.Category)
	assert.Equal(t, models.SeasonSummer, updated.Season)
	require.NotNil(t, updated.Color)
	assert.Equal(t, "white", *updated.Color)
	assert.Equal(t, []string{"casual", "cotton"}, []string(updated.Tags))
	assert.Nil(t, updated.ProcessErrorMessage)

	// the caption vector is searchable right after processing
	matches, err := index.Search(context.Background(), vectorindex.KindItem, test.EmbedWords("white cotton shirt"), vectorindex.Filter{Category: "top"}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, item.ID, matches[0].RecordID)
}

func TestHandleItemProcessingTaskDownloadFailure(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()

	index, err := vectorindex.NewSQLiteIndex(filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	defer index.Close()

	user := test.FakeUser(db)
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer mockServer.Close()

	item := models.ClothingItem{
		OwnerID:          user.ID,
		ImageURL:         test.NewRefString("items/broken.png"),
		ImageStatus:      "uploaded",
		ProcessingStatus: "pending",
	}
	db.Create(&item)

	task, err := NewItemProcessingTask(item.ID)
	require.NoError(t, err)

	awsServiceMock := &test.AWSProviderMock{MockUrl: mockServer.URL}
	err = HandleItemProcessingTask(context.Background(), task, db, &test.MockStylistLLM{}, test.MockEmbedder{}, index, awsServiceMock, nil)
	assert.Error(t, err)

	var updated models.ClothingItem
	require.NoError(t, db.First(&updated, item.ID).Error)
	assert.Equal(t, 1, updated.ProcessRetryTimes)
	require.NotNil(t, updated.ProcessErrorMessage)
	assert.Contains(t, *updated.ProcessErrorMessage, "Failed to read the item photo")
	assert.NotEqual(t, "completed", updated.ProcessingStatus)
}

func TestHandleItemProcessingTaskWithoutImageDoesNotRetry(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()

	index, err := vectorindex.NewSQLiteIndex(filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	defer index.Close()

	user := test.FakeUser(db)
	item := models.ClothingItem{
		OwnerID:          user.ID,
		ImageStatus:      "draft",
		ProcessingStatus: "pending",
	}
	db.Create(&item)

	task, err := NewItemProcessingTask(item.ID)
	require.NoError(t, err)

	// a nil error keeps asynq from retrying a task that can never succeed
	err = HandleItemProcessingTask(context.Background(), task, db, &test.MockStylistLLM{}, test.MockEmbedder{}, index, &test.AWSProviderMock{}, nil)
	assert.NoError(t, err)

	var updated models.ClothingItem
	require.NoError(t, db.First(&updated, item.ID).Error)
	assert.Equal(t, "failed", updated.ProcessingStatus)
}
