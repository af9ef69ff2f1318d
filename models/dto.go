package models

// ChatRequest is the single-turn input contract of the assistant.
type ChatRequest struct {
	Prompt           string  `json:"prompt" validate:"required,max=2000"`
	OptionalImageURL *string `json:"optional_image_url" validate:"omitempty,max=500"`
}

// OutfitPreview is one entry of the matching_outfits payload.
type OutfitPreview struct {
	ID          uint     `json:"id"`
	Description string   `json:"description"`
	ImageURL    string   `json:"image_url"`
	Tags        []string `json:"tags"`
}

type ChatResponse struct {
	ResponseText    string          `json:"response_text"`
	MatchingOutfits []OutfitPreview `json:"matching_outfits,omitempty"`
}

type ItemResponse struct {
	ID          uint     `json:"id"`
	Description *string  `json:"description"`
	Category    string   `json:"category"`
	Season      string   `json:"season"`
	Tags        []string `json:"tags"`
	Uri         *string  `json:"uri,omitempty"`
	Status      string   `json:"status"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

type ItemCreatedResponse struct {
	Item          ItemResponse `json:"item"`
	FileUploadUrl string       `json:"file_upload_url"`
}

type ItemsListResponse struct {
	Tops        []ItemResponse `json:"tops"`
	Bottoms     []ItemResponse `json:"bottoms"`
	Shoes       []ItemResponse `json:"shoes"`
	Outerwear   []ItemResponse `json:"outerwear"`
	Accessories []ItemResponse `json:"accessories"`
}

type OutfitMemberResponse struct {
	Item          ItemResponse `json:"item"`
	SeasonRelaxed bool         `json:"season_relaxed,omitempty"`
}

type OutfitResponse struct {
	ID          uint                   `json:"id"`
	Name        string                 `json:"name"`
	Description *string                `json:"description"`
	Season      string                 `json:"season"`
	Members     []OutfitMemberResponse `json:"members"`
	CreatedAt   string                 `json:"created_at"`
}
