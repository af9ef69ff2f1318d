package agent

import (
	"fmt"
	"strings"

	"fitfinderapi/models"
)

// Formatters shape raw records into the reply contract. They are pure: no
// state mutation, no I/O, and empty input renders as an explicit "no
// matches" reply instead of an error.

const ApologyMessage = "Sorry, something went wrong while working on that. Please try again."

func FormatItemSearch(items []models.ClothingItem) string {
	if len(items) == 0 {
		return "I couldn't find any matching items in your wardrobe."
	}
	var b strings.Builder
	b.WriteString("Here's what I found in your wardrobe:\n")
	for _, item := range items {
		b.WriteString(fmt.Sprintf("- %s (%s, %s)\n", descriptionOf(item), item.Category.Value(), item.Season.Value()))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatProvisionalOutfit renders the AwaitFeedback yield: the current
// members in selection order, with season relaxations called out.
func FormatProvisionalOutfit(state *OutfitState) string {
	if state == nil || len(state.SelectedItems) == 0 {
		return "I couldn't find any matching items in your wardrobe."
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Here's an outfit for %s:\n", seasonLabel(state.Season)))
	for _, item := range state.SelectedItems {
		line := fmt.Sprintf("- %s: %s", item.Category.Value(), descriptionOf(item))
		if state.SeasonRelaxed[item.Category] {
			line += " (picked outside the requested season, nothing matched it exactly)"
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("Tell me what to swap, or say it looks good and I'll save it.")
	return b.String()
}

func FormatCreation(outfit *models.Outfit) string {
	if outfit == nil {
		return ApologyMessage
	}
	return fmt.Sprintf("Saved! Your outfit %q is in your collection now.", outfit.Name)
}

// FormatIncomplete renders the engine's terminal-failure outcome. This is a
// normal business result with an explanation, never a raw error message.
func FormatIncomplete(incomplete *IncompleteOutfitError) string {
	if incomplete == nil {
		return ApologyMessage
	}
	if len(incomplete.MissingCategories) == 0 {
		return fmt.Sprintf("I couldn't put a full outfit together: %s.", incomplete.Reason)
	}
	names := make([]string, len(incomplete.MissingCategories))
	for i, category := range incomplete.MissingCategories {
		names[i] = string(category)
	}
	return fmt.Sprintf(
		"I couldn't put a full outfit together, your wardrobe has no match for: %s. Try adding items there or loosening the request.",
		strings.Join(names, ", "),
	)
}

// FormatOutfitPreviews shapes matched outfits for the structured reply
// payload. Image URLs are resolved by the caller and passed in, keyed by the
// outfit's top item id, so the formatter stays side-effect free.
func FormatOutfitPreviews(outfits []models.Outfit, imageURLs map[uint]string) []models.OutfitPreview {
	previews := make([]models.OutfitPreview, 0, len(outfits))
	for _, outfit := range outfits {
		description := outfit.Name
		if outfit.Description != nil {
			description = *outfit.Description
		}
		var tags []string
		for _, item := range []*models.ClothingItem{outfit.TopItem, outfit.BottomItem, outfit.ShoesItem, outfit.OuterwearItem, outfit.AccessoryItem} {
			if item != nil {
				tags = append(tags, item.Tags...)
			}
		}
		previews = append(previews, models.OutfitPreview{
			ID:          outfit.ID,
			Description: description,
			ImageURL:    imageURLs[outfit.ID],
			Tags:        tags,
		})
	}
	return previews
}

func seasonLabel(season models.Season) string {
	if season == models.SeasonAny || season == "" {
		return "any season"
	}
	return string(season)
}
