package agent

import (
	"context"
	"path/filepath"
	"testing"

	"fitfinderapi/dbhelper"
	"fitfinderapi/models"
	"fitfinderapi/test"
	"fitfinderapi/vectorindex"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type engineHarness struct {
	db     *gorm.DB
	index  *vectorindex.SQLiteIndex
	engine *Engine
	user   *models.UserAccount
}

func setupEngine(t *testing.T) *engineHarness {
	t.Helper()
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	t.Cleanup(cleaner)

	index, err := vectorindex.NewSQLiteIndex(filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })

	toolbox := NewToolbox(&test.MockStylistLLM{}, test.MockEmbedder{}, index, GormStore{DB: db})
	return &engineHarness{
		db:     db,
		index:  index,
		engine: NewEngine(toolbox),
		user:   test.FakeUser(db),
	}
}

func (h *engineHarness) seedItem(t *testing.T, description string, category models.Category, season models.Season) *models.ClothingItem {
	t.Helper()
	item := test.FakeItem(h.db, h.user.ID, description, category, season, nil)
	require.NoError(t, h.index.Upsert(
		context.Background(), vectorindex.KindItem, item.ID,
		test.EmbedWords(description), string(category), string(season),
	))
	return item
}

func TestAssembleOutfitFromAnchor(t *testing.T) {
	h := setupEngine(t)
	pants := h.seedItem(t, "white pants", models.CategoryBottom, models.SeasonAny)
	shirt := h.seedItem(t, "blue shirt", models.CategoryTop, models.SeasonAny)
	sneakers := h.seedItem(t, "white sneakers", models.CategoryShoes, models.SeasonAny)

	state, err := h.engine.Begin(context.Background(), h.user.ID, "an outfit with my white pants")
	require.NoError(t, err)
	assert.Equal(t, PhaseAwaitFeedback, state.Phase)
	assert.True(t, state.Complete())
	assert.Equal(t, models.SeasonAny, state.Season)

	// the anchor is the first selection, fill order follows priority
	require.Len(t, state.SelectedItems, 3)
	assert.Equal(t, pants.ID, state.SelectedItems[0].ID)
	assert.ElementsMatch(t, []uint{pants.ID, shirt.ID, sneakers.ID}, state.SelectedIDs())

	outfit, err := h.engine.Accept(context.Background(), h.user.ID, state, "Errands")
	require.NoError(t, err)
	assert.Equal(t, PhaseDone, state.Phase)

	var count int64
	h.db.Model(&models.Outfit{}).Count(&count)
	assert.Equal(t, int64(1), count)

	var persisted models.Outfit
	require.NoError(t, h.db.First(&persisted, outfit.ID).Error)
	assert.Equal(t, pants.ID, persisted.BottomItemID)
	assert.Equal(t, shirt.ID, persisted.TopItemID)
	assert.Equal(t, sneakers.ID, persisted.ShoesItemID)
}

func TestAnchorWithoutCandidatesIsIncomplete(t *testing.T) {
	h := setupEngine(t)
	// empty wardrobe

	_, err := h.engine.Begin(context.Background(), h.user.ID, "an outfit with my white pants")
	incomplete, ok := AsIncompleteOutfit(err)
	require.True(t, ok)
	assert.NotEmpty(t, incomplete.Reason)

	var count int64
	h.db.Model(&models.Outfit{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestMissingRequiredCategoryIsNeverPersisted(t *testing.T) {
	h := setupEngine(t)
	h.seedItem(t, "white pants", models.CategoryBottom, models.SeasonAny)
	h.seedItem(t, "blue shirt", models.CategoryTop, models.SeasonAny)
	// wardrobe holds no shoes at all

	state, err := h.engine.Begin(context.Background(), h.user.ID, "an outfit with my white pants")
	incomplete, ok := AsIncompleteOutfit(err)
	require.True(t, ok)
	assert.Equal(t, []models.Category{models.CategoryShoes}, incomplete.MissingCategories)

	// the engine must also refuse a direct persist attempt
	_, err = h.engine.Accept(context.Background(), h.user.ID, state, "")
	_, ok = AsIncompleteOutfit(err)
	require.True(t, ok)

	var count int64
	h.db.Model(&models.Outfit{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestSeasonIsInferredFromAnchor(t *testing.T) {
	h := setupEngine(t)
	h.seedItem(t, "white pants", models.CategoryBottom, models.SeasonSummer)
	h.seedItem(t, "linen shirt", models.CategoryTop, models.SeasonSummer)
	h.seedItem(t, "canvas espadrilles", models.CategoryShoes, models.SeasonSummer)
	winterShirt := h.seedItem(t, "wool shirt", models.CategoryTop, models.SeasonWinter)

	state, err := h.engine.Begin(context.Background(), h.user.ID, "an outfit with my white pants")
	require.NoError(t, err)
	assert.Equal(t, models.SeasonSummer, state.Season)
	assert.NotContains(t, state.SelectedIDs(), winterShirt.ID)
}

func TestFillRelaxesSeasonRatherThanFailing(t *testing.T) {
	h := setupEngine(t)
	h.seedItem(t, "white pants", models.CategoryBottom, models.SeasonSummer)
	h.seedItem(t, "linen shirt", models.CategoryTop, models.SeasonSummer)
	boots := h.seedItem(t, "leather boots", models.CategoryShoes, models.SeasonWinter)

	state, err := h.engine.Begin(context.Background(), h.user.ID, "an outfit with my white pants")
	require.NoError(t, err)
	assert.True(t, state.Complete())

	shoes, ok := state.ItemByCategory(models.CategoryShoes)
	require.True(t, ok)
	assert.Equal(t, boots.ID, shoes.ID)
	assert.True(t, state.SeasonRelaxed[models.CategoryShoes])
	// season itself stays what the anchor established
	assert.Equal(t, models.SeasonSummer, state.Season)
}

func TestAnySeasonItemsFillWithoutRelaxing(t *testing.T) {
	h := setupEngine(t)
	h.seedItem(t, "white pants", models.CategoryBottom, models.SeasonSummer)
	shirt := h.seedItem(t, "plain white tee", models.CategoryTop, models.SeasonAny)
	sneakers := h.seedItem(t, "white sneakers", models.CategoryShoes, models.SeasonAny)

	state, err := h.engine.Begin(context.Background(), h.user.ID, "an outfit with my white pants")
	require.NoError(t, err)
	require.True(t, state.Complete())
	assert.Equal(t, models.SeasonSummer, state.Season)

	// all-season items satisfy the seasonal search directly
	assert.Contains(t, state.SelectedIDs(), shirt.ID)
	assert.Contains(t, state.SelectedIDs(), sneakers.ID)
	assert.False(t, state.SeasonRelaxed[models.CategoryTop])
	assert.False(t, state.SeasonRelaxed[models.CategoryShoes])
}

func TestFeedbackSwapsTargetAndPreservesSeason(t *testing.T) {
	h := setupEngine(t)
	h.seedItem(t, "white pants", models.CategoryBottom, models.SeasonSummer)
	h.seedItem(t, "linen shirt", models.CategoryTop, models.SeasonSummer)
	sneakers := h.seedItem(t, "white canvas sneakers", models.CategoryShoes, models.SeasonSummer)
	formal := h.seedItem(t, "black formal leather shoes", models.CategoryShoes, models.SeasonSummer)

	state, err := h.engine.Begin(context.Background(), h.user.ID, "an outfit with my white pants")
	require.NoError(t, err)
	require.True(t, state.Complete())

	raw := "swap the shoes for something formal"
	require.NoError(t, h.engine.ApplyFeedback(context.Background(), h.user.ID, state, raw, ParseFeedback(raw)))

	shoes, ok := state.ItemByCategory(models.CategoryShoes)
	require.True(t, ok)
	assert.Equal(t, formal.ID, shoes.ID)
	assert.NotContains(t, state.SelectedIDs(), sneakers.ID)
	assert.Equal(t, models.SeasonSummer, state.Season)
	assert.Equal(t, []string{raw}, state.FeedbackLog)
	assert.True(t, state.Complete())
}

func TestFeedbackSeasonOverride(t *testing.T) {
	h := setupEngine(t)
	h.seedItem(t, "white pants", models.CategoryBottom, models.SeasonSummer)
	h.seedItem(t, "linen shirt", models.CategoryTop, models.SeasonSummer)
	h.seedItem(t, "canvas sneakers", models.CategoryShoes, models.SeasonSummer)
	wool := h.seedItem(t, "wool winter sweater", models.CategoryTop, models.SeasonWinter)

	state, err := h.engine.Begin(context.Background(), h.user.ID, "an outfit with my white pants")
	require.NoError(t, err)

	raw := "give me a winter top instead"
	require.NoError(t, h.engine.ApplyFeedback(context.Background(), h.user.ID, state, raw, ParseFeedback(raw)))

	assert.Equal(t, models.SeasonWinter, state.Season)
	top, ok := state.ItemByCategory(models.CategoryTop)
	require.True(t, ok)
	assert.Equal(t, wool.ID, top.ID)
}

func TestFeedbackRoundsAreCapped(t *testing.T) {
	h := setupEngine(t)
	h.seedItem(t, "white pants", models.CategoryBottom, models.SeasonAny)
	h.seedItem(t, "blue shirt", models.CategoryTop, models.SeasonAny)
	h.seedItem(t, "white sneakers", models.CategoryShoes, models.SeasonAny)

	state, err := h.engine.Begin(context.Background(), h.user.ID, "an outfit with my white pants")
	require.NoError(t, err)

	state.FeedbackRounds = h.engine.MaxFeedbackRounds
	raw := "swap the shoes"
	err = h.engine.ApplyFeedback(context.Background(), h.user.ID, state, raw, ParseFeedback(raw))
	incomplete, ok := AsIncompleteOutfit(err)
	require.True(t, ok)
	assert.Contains(t, incomplete.Reason, "refinement limit")
}
