package agent

import (
	"errors"
	"fmt"
	"strings"

	"fitfinderapi/models"
)

// Failure taxonomy of the orchestration core. Tool adapters wrap external
// failures with these sentinels so the runner can decide between retrying,
// degrading and aborting without inspecting provider error strings.
var (
	// ErrUnknownTool is a configuration bug: the model named a tool that
	// was never registered. The turn aborts, nothing is mutated.
	ErrUnknownTool = errors.New("unknown tool")

	ErrModelUnavailable   = errors.New("model unavailable")
	ErrEmbeddingFailure   = errors.New("embedding failure")
	ErrPersistenceFailure = errors.New("persistence failure")
	ErrInvalidImage       = errors.New("invalid image")
)

// IncompleteOutfitError is a business outcome, not a crash: the assembly
// engine exhausted candidates (or the refinement budget) before every
// required category was filled. It is rendered by the formatter and never
// causes a persisted outfit.
type IncompleteOutfitError struct {
	MissingCategories []models.Category
	Reason            string
}

func (e *IncompleteOutfitError) Error() string {
	if len(e.MissingCategories) == 0 {
		return fmt.Sprintf("incomplete outfit: %s", e.Reason)
	}
	names := make([]string, len(e.MissingCategories))
	for i, category := range e.MissingCategories {
		names[i] = string(category)
	}
	return fmt.Sprintf("incomplete outfit, missing %s: %s", strings.Join(names, ", "), e.Reason)
}

func AsIncompleteOutfit(err error) (*IncompleteOutfitError, bool) {
	var incomplete *IncompleteOutfitError
	if errors.As(err, &incomplete) {
		return incomplete, true
	}
	return nil, false
}
