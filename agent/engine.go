package agent

import (
	"context"
	"fmt"

	"fitfinderapi/models"
	"fitfinderapi/vectorindex"
)

// Phase is the engine position of an OutfitState. The progression is
// Anchor -> FillMissing -> CheckComplete -> AwaitFeedback, then either
// ApplyFeedback (looping back to FillMissing) or Done.
type Phase int

const (
	PhaseAnchor Phase = iota
	PhaseFillMissing
	PhaseCheckComplete
	PhaseAwaitFeedback
	PhaseApplyFeedback
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseAnchor:
		return "anchor"
	case PhaseFillMissing:
		return "fill_missing"
	case PhaseCheckComplete:
		return "check_complete"
	case PhaseAwaitFeedback:
		return "await_feedback"
	case PhaseApplyFeedback:
		return "apply_feedback"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Engine assembles complete, season-consistent outfits. It owns the
// OutfitState it works on and runs its steps strictly sequentially: every
// external call is awaited before the next transition.
type Engine struct {
	Tools *Toolbox

	// MaxFeedbackRounds bounds the refinement loop so an interactive
	// session can not spin forever.
	MaxFeedbackRounds int
}

func NewEngine(tools *Toolbox) *Engine {
	return &Engine{Tools: tools, MaxFeedbackRounds: 10}
}

// Begin runs Anchor, FillMissing and CheckComplete for a fresh request and
// leaves the state in AwaitFeedback. When candidates run out before the
// required categories are filled it returns the state together with an
// IncompleteOutfitError; nothing is persisted either way.
func (e *Engine) Begin(ctx context.Context, ownerID uint, prompt string) (*OutfitState, error) {
	season := models.SeasonAny
	if parsed := ParseSeason(prompt); parsed != nil {
		season = *parsed
	}
	state := NewOutfitState(prompt, season)
	state.Phase = PhaseAnchor

	vector, err := retryOnce(func() ([]float32, error) {
		return e.Tools.Embedder.EmbedText(ctx, prompt)
	})
	if err != nil {
		return state, fmt.Errorf("%w: %v", ErrEmbeddingFailure, err)
	}
	state.CurrentEmbedding = vector

	anchor, relaxed, found, err := e.searchCandidate(ctx, ownerID, state, "")
	if err != nil {
		return state, err
	}
	if !found {
		// Scenario: the anchor itself has no match, so the whole request
		// terminates as a business outcome, not a crash.
		return state, &IncompleteOutfitError{
			Reason: "no wardrobe item matches the request",
		}
	}
	if err := state.AddItem(*anchor); err != nil {
		return state, err
	}
	if relaxed {
		state.SeasonRelaxed[anchor.Category] = true
	}
	// season is inferred exactly once, from the anchor, when the prompt
	// left it open
	if state.Season == models.SeasonAny && anchor.Season != models.SeasonAny {
		state.Season = anchor.Season
	}

	if err := e.fillMissing(ctx, ownerID, state); err != nil {
		return state, err
	}
	return state, e.checkComplete(state)
}

// ApplyFeedback performs one refinement round: remove the targeted members,
// log the feedback, refill and re-check. The established season survives
// unless the feedback names a new one.
func (e *Engine) ApplyFeedback(ctx context.Context, ownerID uint, state *OutfitState, raw string, feedback Feedback) error {
	state.Phase = PhaseApplyFeedback
	if state.FeedbackRounds >= e.MaxFeedbackRounds {
		return &IncompleteOutfitError{
			Reason: fmt.Sprintf("refinement limit of %d rounds reached, please start a new request", e.MaxFeedbackRounds),
		}
	}
	state.FeedbackRounds++
	state.AppendFeedback(raw)

	if feedback.Season != nil {
		state.Season = *feedback.Season
	}

	var optionalRefills []models.Category
	for _, category := range feedback.TargetCategories {
		removed := state.RemoveCategory(category)
		if !category.Required() && (removed || !state.HasCategory(category)) {
			optionalRefills = append(optionalRefills, category)
		}
	}

	// the replacement search is driven by the feedback wording; if the
	// embed fails we degrade to the previous query vector
	if feedback.StyleHint != "" {
		if vector, err := retryOnce(func() ([]float32, error) {
			return e.Tools.Embedder.EmbedText(ctx, feedback.StyleHint)
		}); err == nil {
			state.CurrentEmbedding = vector
		}
	}

	if err := e.fillMissing(ctx, ownerID, state); err != nil {
		return err
	}
	for _, category := range optionalRefills {
		item, relaxed, found, err := e.searchCandidate(ctx, ownerID, state, category)
		if err != nil {
			return err
		}
		if !found {
			continue // optional slot stays empty, completeness unaffected
		}
		if err := state.AddItem(*item); err != nil {
			return err
		}
		if relaxed {
			state.SeasonRelaxed[category] = true
		}
	}
	return e.checkComplete(state)
}

// Accept runs the Done state: persist through create_outfit and retire the
// state. Completeness is re-checked inside the persist path.
func (e *Engine) Accept(ctx context.Context, ownerID uint, state *OutfitState, name string) (*models.Outfit, error) {
	outfit, err := e.Tools.PersistOutfit(ctx, ownerID, state, name)
	if err != nil {
		return nil, err
	}
	state.Phase = PhaseDone
	return outfit, nil
}

// fillMissing walks the missing required categories in fixed priority order
// (top, bottom, shoes) and selects the best candidate for each. A category
// with no candidate at all simply stays missing for CheckComplete to report.
func (e *Engine) fillMissing(ctx context.Context, ownerID uint, state *OutfitState) error {
	state.Phase = PhaseFillMissing
	pending := append([]models.Category{}, state.MissingCategories...)
	for _, category := range pending {
		item, relaxed, found, err := e.searchCandidate(ctx, ownerID, state, category)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if err := state.AddItem(*item); err != nil {
			return err
		}
		if relaxed {
			state.SeasonRelaxed[category] = true
		}
	}
	return nil
}

func (e *Engine) checkComplete(state *OutfitState) error {
	state.Phase = PhaseCheckComplete
	if !state.Complete() {
		return &IncompleteOutfitError{
			MissingCategories: append([]models.Category{}, state.MissingCategories...),
			Reason:            "no matching items found for these categories",
		}
	}
	state.Phase = PhaseAwaitFeedback
	return nil
}

// searchCandidate finds the top-ranked item for a category that is not
// already selected. The established season constrains the search first; when
// nothing satisfies both, the season is relaxed rather than failing the
// turn, and the relaxation is reported back.
func (e *Engine) searchCandidate(ctx context.Context, ownerID uint, state *OutfitState, category models.Category) (*models.ClothingItem, bool, bool, error) {
	if len(state.CurrentEmbedding) == 0 {
		return nil, false, false, fmt.Errorf("%w: no query vector for candidate search", ErrEmbeddingFailure)
	}

	item, found, err := e.pickCandidate(ctx, ownerID, state, vectorindex.Filter{
		Category: string(category),
		Season:   seasonFilter(state.Season),
	})
	if err != nil || found {
		return item, false, found, err
	}

	if seasonFilter(state.Season) == "" {
		return nil, false, false, nil
	}
	// season relaxed: category-only retry
	item, found, err = e.pickCandidate(ctx, ownerID, state, vectorindex.Filter{
		Category: string(category),
	})
	return item, found, found, err
}

func (e *Engine) pickCandidate(ctx context.Context, ownerID uint, state *OutfitState, filter vectorindex.Filter) (*models.ClothingItem, bool, error) {
	matches, err := e.Tools.Index.Search(ctx, vectorindex.KindItem, state.CurrentEmbedding, filter, DefaultTopK)
	if err != nil {
		return nil, false, fmt.Errorf("candidate search failed: %w", err)
	}
	if len(matches) == 0 {
		return nil, false, nil
	}
	ids := make([]uint, len(matches))
	for i, match := range matches {
		ids[i] = match.RecordID
	}
	items, err := e.Tools.Store.GetItems(ctx, ownerID, ids)
	if err != nil {
		return nil, false, err
	}
	selected := map[uint]bool{}
	for _, id := range state.SelectedIDs() {
		selected[id] = true
	}
	for _, item := range items {
		if selected[item.ID] {
			continue
		}
		candidate := item
		return &candidate, true, nil
	}
	return nil, false, nil
}

func seasonFilter(season models.Season) string {
	if season == models.SeasonAny || season == "" {
		return ""
	}
	return string(season)
}
