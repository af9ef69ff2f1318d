package agent

import (
	"strings"

	"fitfinderapi/models"
	"golang.org/x/text/cases"
)

// Feedback is the parsed form of a refinement message during AwaitFeedback.
type Feedback struct {
	// TargetCategories are the outfit slots the user wants swapped.
	TargetCategories []models.Category
	// Season is set only when the feedback explicitly asks for a season
	// change; otherwise the established season is preserved.
	Season *models.Season
	// Accepted marks an acceptance message ("looks good", "save it").
	Accepted bool
	// StyleHint is the folded feedback text, used as the replacement query.
	StyleHint string
}

var categoryKeywords = map[models.Category][]string{
	models.CategoryTop:       {"top", "shirt", "blouse", "tee", "t-shirt", "sweater", "hoodie"},
	models.CategoryBottom:    {"bottom", "pants", "trousers", "jeans", "skirt", "shorts"},
	models.CategoryShoes:     {"shoes", "shoe", "sneakers", "boots", "heels", "footwear", "sandals"},
	models.CategoryOuterwear: {"outerwear", "jacket", "coat", "blazer", "cardigan"},
	models.CategoryAccessory: {"accessory", "bag", "hat", "scarf", "belt", "jewelry"},
}

var seasonKeywords = map[models.Season][]string{
	models.SeasonSpring: {"spring"},
	models.SeasonSummer: {"summer"},
	models.SeasonFall:   {"fall", "autumn"},
	models.SeasonWinter: {"winter"},
}

var acceptancePhrases = []string{
	"accept", "accepted", "looks good", "looks great", "perfect", "love it",
	"save it", "keep it", "that works", "i'll take it",
}

var outfitIntentPhrases = []string{"outfit", "wear", "style", "dress me"}

// fold normalizes text for keyword scanning; case folding handles non-ASCII
// input the way plain ToLower does not.
func fold(text string) string {
	return cases.Fold().String(text)
}

func containsWord(folded string, keyword string) bool {
	index := strings.Index(folded, keyword)
	for index >= 0 {
		before := index == 0 || !isWordChar(folded[index-1])
		afterIdx := index + len(keyword)
		after := afterIdx >= len(folded) || !isWordChar(folded[afterIdx])
		if before && after {
			return true
		}
		next := strings.Index(folded[index+1:], keyword)
		if next < 0 {
			return false
		}
		index += 1 + next
	}
	return false
}

func isWordChar(c byte) bool {
	return c == '-' || c == '\'' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// ParseFeedback scans a refinement message for target categories, an
// explicit season override and acceptance phrasing.
func ParseFeedback(text string) Feedback {
	folded := fold(text)
	feedback := Feedback{StyleHint: strings.TrimSpace(folded)}

	// whole-word match so "unacceptable" does not read as acceptance
	for _, phrase := range acceptancePhrases {
		if containsWord(folded, phrase) {
			feedback.Accepted = true
			break
		}
	}

	for _, category := range append(append([]models.Category{}, models.RequiredCategories...), models.OptionalCategories...) {
		for _, keyword := range categoryKeywords[category] {
			if containsWord(folded, keyword) {
				feedback.TargetCategories = append(feedback.TargetCategories, category)
				break
			}
		}
	}

	if season := ParseSeason(text); season != nil {
		feedback.Season = season
	}

	return feedback
}

// ParseSeason extracts an explicitly named season from free text.
func ParseSeason(text string) *models.Season {
	folded := fold(text)
	for _, season := range []models.Season{models.SeasonSpring, models.SeasonSummer, models.SeasonFall, models.SeasonWinter} {
		for _, keyword := range seasonKeywords[season] {
			if containsWord(folded, keyword) {
				s := season
				return &s
			}
		}
	}
	return nil
}

// IsOutfitIntent reports whether a prompt asks for outfit assembly rather
// than a plain wardrobe question.
func IsOutfitIntent(prompt string) bool {
	folded := fold(prompt)
	for _, phrase := range outfitIntentPhrases {
		if strings.Contains(folded, phrase) {
			return true
		}
	}
	return false
}

// IsRefinement reports whether a message is plausibly feedback on a pending
// provisional outfit: it either targets a slot or changes the season.
func (f Feedback) IsRefinement() bool {
	return len(f.TargetCategories) > 0 || f.Season != nil
}
