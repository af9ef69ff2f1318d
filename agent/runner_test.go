package agent

import (
	"context"
	"path/filepath"
	"testing"

	"fitfinderapi/dbhelper"
	"fitfinderapi/models"
	"fitfinderapi/services"
	"fitfinderapi/test"
	"fitfinderapi/vectorindex"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type runnerHarness struct {
	db     *gorm.DB
	index  *vectorindex.SQLiteIndex
	llm    *test.MockStylistLLM
	runner *Runner
	user   *models.UserAccount
}

func setupRunner(t *testing.T, llm *test.MockStylistLLM) *runnerHarness {
	t.Helper()
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	t.Cleanup(cleaner)

	index, err := vectorindex.NewSQLiteIndex(filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })

	toolbox := NewToolbox(llm, test.MockEmbedder{}, index, GormStore{DB: db})
	return &runnerHarness{
		db:     db,
		index:  index,
		llm:    llm,
		runner: NewRunner(toolbox, test.URLCacheMock{}),
		user:   test.FakeUser(db),
	}
}

func (h *runnerHarness) seedItem(t *testing.T, description string, category models.Category, season models.Season) *models.ClothingItem {
	t.Helper()
	item := test.FakeItem(h.db, h.user.ID, description, category, season, nil)
	require.NoError(t, h.index.Upsert(
		context.Background(), vectorindex.KindItem, item.ID,
		test.EmbedWords(description), string(category), string(season),
	))
	return item
}

func TestToolLoopRunsScriptedSearch(t *testing.T) {
	llm := &test.MockStylistLLM{Actions: []services.AgentAction{
		{ToolCalls: []services.ToolCall{{Name: ToolSearchItems, Args: map[string]interface{}{"query": "white shirt"}}}},
		{Text: "You own one white shirt."},
	}}
	h := setupRunner(t, llm)
	h.seedItem(t, "white shirt", models.CategoryTop, models.SeasonSummer)

	response := h.runner.RunTurn(context.Background(), h.user.ID, "conv-1", models.ChatRequest{Prompt: "how many shirts do I own?"})

	assert.Equal(t, "You own one white shirt.", response.ResponseText)
	require.Len(t, llm.Histories, 2)
	// the tool result was fed back to the model before its final answer
	last := llm.Histories[1][len(llm.Histories[1])-1]
	assert.Equal(t, "tool", last.Role)
	assert.Equal(t, ToolSearchItems, last.ToolName)
	assert.Contains(t, last.ToolResult, "white shirt")
}

func TestToolLoopHonorsOnlyTheLastCall(t *testing.T) {
	llm := &test.MockStylistLLM{Actions: []services.AgentAction{
		{ToolCalls: []services.ToolCall{
			{Name: ToolEmbedText, Args: map[string]interface{}{"text": "blue jeans"}},
			{Name: ToolSearchItems, Args: map[string]interface{}{"query": "white shirt"}},
		}},
		{Text: "Done."},
	}}
	h := setupRunner(t, llm)
	h.seedItem(t, "white shirt", models.CategoryTop, models.SeasonSummer)

	h.runner.RunTurn(context.Background(), h.user.ID, "conv-1", models.ChatRequest{Prompt: "find my shirt"})

	require.Len(t, llm.Histories, 2)
	var toolMessages []services.ChatMessage
	for _, message := range llm.Histories[1] {
		if message.Role == "tool" {
			toolMessages = append(toolMessages, message)
		}
	}
	require.Len(t, toolMessages, 1)
	assert.Equal(t, ToolSearchItems, toolMessages[0].ToolName)
}

func TestUnknownToolFailsTheTurnWithoutMutation(t *testing.T) {
	llm := &test.MockStylistLLM{Actions: []services.AgentAction{
		{ToolCalls: []services.ToolCall{{Name: "drop_wardrobe", Args: map[string]interface{}{}}}},
	}}
	h := setupRunner(t, llm)

	response := h.runner.RunTurn(context.Background(), h.user.ID, "conv-1", models.ChatRequest{Prompt: "do something odd"})

	assert.Equal(t, ApologyMessage, response.ResponseText)
	// the model is never consulted again after the bad call
	assert.Len(t, llm.Histories, 1)
	var count int64
	h.db.Model(&models.Outfit{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestOutfitSessionAcceptFlow(t *testing.T) {
	h := setupRunner(t, &test.MockStylistLLM{})
	h.seedItem(t, "white pants", models.CategoryBottom, models.SeasonSummer)
	h.seedItem(t, "linen shirt", models.CategoryTop, models.SeasonSummer)
	h.seedItem(t, "canvas sneakers", models.CategoryShoes, models.SeasonSummer)

	provisional := h.runner.RunTurn(context.Background(), h.user.ID, "conv-1", models.ChatRequest{Prompt: "put together an outfit with my white pants"})
	assert.Contains(t, provisional.ResponseText, "Tell me what to swap")

	saved := h.runner.RunTurn(context.Background(), h.user.ID, "conv-1", models.ChatRequest{Prompt: "looks good, thanks!"})
	assert.Contains(t, saved.ResponseText, "Saved!")

	var count int64
	h.db.Model(&models.Outfit{}).Count(&count)
	assert.Equal(t, int64(1), count)

	// the session is retired with the save
	_, ok := h.runner.Sessions.Get("conv-1")
	assert.False(t, ok)
}

func TestOutfitSessionRefineFlow(t *testing.T) {
	h := setupRunner(t, &test.MockStylistLLM{})
	h.seedItem(t, "white pants", models.CategoryBottom, models.SeasonSummer)
	h.seedItem(t, "linen shirt", models.CategoryTop, models.SeasonSummer)
	h.seedItem(t, "white canvas sneakers", models.CategoryShoes, models.SeasonSummer)
	h.seedItem(t, "black formal leather shoes", models.CategoryShoes, models.SeasonSummer)

	h.runner.RunTurn(context.Background(), h.user.ID, "conv-1", models.ChatRequest{Prompt: "put together an outfit with my white pants"})
	refined := h.runner.RunTurn(context.Background(), h.user.ID, "conv-1", models.ChatRequest{Prompt: "swap the shoes for something formal"})

	assert.Contains(t, refined.ResponseText, "black formal leather shoes")
	assert.NotContains(t, refined.ResponseText, "sneakers")

	session, ok := h.runner.Sessions.Get("conv-1")
	require.True(t, ok)
	assert.Equal(t, []string{"swap the shoes for something formal"}, session.State.FeedbackLog)
}

func TestUnrelatedPromptDiscardsPendingOutfit(t *testing.T) {
	llm := &test.MockStylistLLM{Actions: []services.AgentAction{
		{Text: "You have three shirts."},
	}}
	h := setupRunner(t, llm)
	h.seedItem(t, "white pants", models.CategoryBottom, models.SeasonSummer)
	h.seedItem(t, "linen shirt", models.CategoryTop, models.SeasonSummer)
	h.seedItem(t, "canvas sneakers", models.CategoryShoes, models.SeasonSummer)

	h.runner.RunTurn(context.Background(), h.user.ID, "conv-1", models.ChatRequest{Prompt: "put together an outfit with my white pants"})
	response := h.runner.RunTurn(context.Background(), h.user.ID, "conv-1", models.ChatRequest{Prompt: "how many shirts do I own?"})

	assert.Equal(t, "You have three shirts.", response.ResponseText)
	_, ok := h.runner.Sessions.Get("conv-1")
	assert.False(t, ok)

	// a late acceptance has nothing to act on and must not persist anything
	h.runner.RunTurn(context.Background(), h.user.ID, "conv-1", models.ChatRequest{Prompt: "looks good"})
	var count int64
	h.db.Model(&models.Outfit{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestRejectionDoesNotPersistPendingOutfit(t *testing.T) {
	h := setupRunner(t, &test.MockStylistLLM{})
	h.seedItem(t, "white pants", models.CategoryBottom, models.SeasonSummer)
	h.seedItem(t, "linen shirt", models.CategoryTop, models.SeasonSummer)
	h.seedItem(t, "canvas sneakers", models.CategoryShoes, models.SeasonSummer)

	h.runner.RunTurn(context.Background(), h.user.ID, "conv-1", models.ChatRequest{Prompt: "put together an outfit with my white pants"})
	h.runner.RunTurn(context.Background(), h.user.ID, "conv-1", models.ChatRequest{Prompt: "this is unacceptable, change everything"})

	var count int64
	h.db.Model(&models.Outfit{}).Count(&count)
	assert.Equal(t, int64(0), count)
	_, ok := h.runner.Sessions.Get("conv-1")
	assert.False(t, ok)
}

func TestIncompleteOutfitIsExplainedNotErrored(t *testing.T) {
	h := setupRunner(t, &test.MockStylistLLM{})
	h.seedItem(t, "white pants", models.CategoryBottom, models.SeasonSummer)
	// no top, no shoes anywhere in the wardrobe

	response := h.runner.RunTurn(context.Background(), h.user.ID, "conv-1", models.ChatRequest{Prompt: "put together an outfit with my white pants"})

	assert.Contains(t, response.ResponseText, "couldn't put a full outfit together")
	assert.Contains(t, response.ResponseText, "top")
	assert.Contains(t, response.ResponseText, "shoes")
	assert.NotContains(t, response.ResponseText, "error")
}

func TestMatchingOutfitsCarryPresignedImages(t *testing.T) {
	llm := &test.MockStylistLLM{Actions: []services.AgentAction{
		{ToolCalls: []services.ToolCall{{Name: ToolSearchOutfits, Args: map[string]interface{}{"query": "summer festival look"}}}},
		{Text: "This one fits the occasion."},
	}}
	h := setupRunner(t, llm)
	top := h.seedItem(t, "linen shirt", models.CategoryTop, models.SeasonSummer)
	bottom := h.seedItem(t, "chino shorts", models.CategoryBottom, models.SeasonSummer)
	shoes := h.seedItem(t, "canvas sneakers", models.CategoryShoes, models.SeasonSummer)

	outfit := models.Outfit{
		Name:         "Festival",
		Description:  services.StrPointer("summer festival look"),
		Season:       models.SeasonSummer,
		TopItemID:    top.ID,
		BottomItemID: bottom.ID,
		ShoesItemID:  shoes.ID,
		OwnerID:      h.user.ID,
	}
	require.NoError(t, h.db.Create(&outfit).Error)
	require.NoError(t, h.index.Upsert(
		context.Background(), vectorindex.KindOutfit, outfit.ID,
		test.EmbedWords("summer festival look"), "", string(models.SeasonSummer),
	))

	response := h.runner.RunTurn(context.Background(), h.user.ID, "conv-1", models.ChatRequest{Prompt: "show me something for a festival"})

	assert.Equal(t, "This one fits the occasion.", response.ResponseText)
	require.Len(t, response.MatchingOutfits, 1)
	preview := response.MatchingOutfits[0]
	assert.Equal(t, outfit.ID, preview.ID)
	assert.Equal(t, "summer festival look", preview.Description)
	assert.Equal(t, "https://fakecdn.example.com/"+*top.ImageURL, preview.ImageURL)
}
