package agent

import (
	"fmt"

	"fitfinderapi/models"
)

// OutfitState is the mutable accumulator threaded through every assembly
// step. It has exactly one owner (the engine instance working the current
// conversation) and is never shared between concurrent turns; cross-turn
// survival goes through the runner's session store, which serializes access.
type OutfitState struct {
	// SelectedItems keeps insertion order: selection order is the display
	// order and the tie-break for audits.
	SelectedItems []models.ClothingItem

	// MissingCategories is recomputed after every mutation, never patched
	// incrementally, so it can not go stale.
	MissingCategories []models.Category

	// FeedbackLog is append-only, raw feedback strings in arrival order.
	FeedbackLog []string

	// Season is inferred once from the anchor and stays fixed unless
	// feedback explicitly overrides it.
	Season            models.Season
	AnchorDescription string

	// CurrentEmbedding is the query vector of the most recent embed step,
	// consumed by the search adapters.
	CurrentEmbedding []float32

	// ItemCandidates / OutfitCandidates hold the latest search results so
	// the formatter can render them when the model stops calling tools.
	ItemCandidates   []models.ClothingItem
	OutfitCandidates []models.Outfit

	// SeasonRelaxed marks members that were filled with the season filter
	// dropped, surfaced to the user in the provisional result.
	SeasonRelaxed map[models.Category]bool

	// FeedbackRounds counts applied refinements against the loop cap.
	FeedbackRounds int

	// Phase is maintained by the engine as it steps the state machine.
	Phase Phase
}

func NewOutfitState(anchorDescription string, season models.Season) *OutfitState {
	if season == "" {
		season = models.SeasonAny
	}
	state := &OutfitState{
		AnchorDescription: anchorDescription,
		Season:            season,
		SeasonRelaxed:     map[models.Category]bool{},
	}
	state.recomputeMissing()
	return state
}

func (s *OutfitState) recomputeMissing() {
	s.MissingCategories = s.MissingCategories[:0]
	for _, required := range models.RequiredCategories {
		if !s.HasCategory(required) {
			s.MissingCategories = append(s.MissingCategories, required)
		}
	}
}

func (s *OutfitState) HasCategory(category models.Category) bool {
	for _, item := range s.SelectedItems {
		if item.Category == category {
			return true
		}
	}
	return false
}

func (s *OutfitState) SelectedIDs() []uint {
	ids := make([]uint, len(s.SelectedItems))
	for i, item := range s.SelectedItems {
		ids[i] = item.ID
	}
	return ids
}

// AddItem appends a selection. Two items of the same category may never
// coexist; replacing goes through RemoveCategory first, never a blind append.
func (s *OutfitState) AddItem(item models.ClothingItem) error {
	if s.HasCategory(item.Category) {
		return fmt.Errorf("category %s already selected, remove it first", item.Category)
	}
	s.SelectedItems = append(s.SelectedItems, item)
	s.recomputeMissing()
	return nil
}

// RemoveCategory drops the member of the given category, if present, and
// recomputes the missing set. The relaxation flag for that slot resets since
// the slot will be refilled under the current constraints.
func (s *OutfitState) RemoveCategory(category models.Category) bool {
	for i, item := range s.SelectedItems {
		if item.Category == category {
			s.SelectedItems = append(s.SelectedItems[:i], s.SelectedItems[i+1:]...)
			delete(s.SeasonRelaxed, category)
			s.recomputeMissing()
			return true
		}
	}
	return false
}

func (s *OutfitState) AppendFeedback(feedback string) {
	s.FeedbackLog = append(s.FeedbackLog, feedback)
}

// Complete reports whether every required category is filled.
func (s *OutfitState) Complete() bool {
	return len(s.MissingCategories) == 0
}

// ItemByCategory returns the selected member for a category.
func (s *OutfitState) ItemByCategory(category models.Category) (models.ClothingItem, bool) {
	for _, item := range s.SelectedItems {
		if item.Category == category {
			return item, true
		}
	}
	return models.ClothingItem{}, false
}
