package models

import "github.com/lib/pq"

type ClothingItem struct {
	JsonModel
	Description *string        `gorm:"type:text" json:"description"`
	Category    Category       `json:"category"` // top, bottom, shoes, outerwear, accessory
	Season      Season         `json:"season"`   // spring, summer, fall, winter, any
	Tags        pq.StringArray `gorm:"type:text[]" json:"tags"`
	Color       *string        `json:"color"`
	Owner       UserAccount    `json:"-"`
	OwnerID     uint           `json:"-"`

	// object key in the image bucket, opaque to the agent core
	ImageURL *string `json:"image_url"`

	ImageStatus         string  `json:"image_status"`      // draft, uploaded
	ProcessingStatus    string  `json:"processing_status"` // pending, processing, completed, failed
	ProcessRetryTimes   int     `json:"process_retry_times"`
	ProcessErrorMessage *string `json:"process_error_message"`
	AlertWhenProcessed  bool    `json:"alert_when_processed"`
}

// Outfit is only ever persisted complete: top, bottom and shoes are
// mandatory members, outerwear and accessory optional. The assembly engine
// rejects incomplete selections before any insert happens.
type Outfit struct {
	JsonModel
	Name        string  `json:"name"`
	Description *string `gorm:"type:text" json:"description"`
	Season      Season  `json:"season"`

	TopItemID    uint          `json:"top_item_id"`
	TopItem      *ClothingItem `json:"top_item"`
	BottomItemID uint          `json:"bottom_item_id"`
	BottomItem   *ClothingItem `json:"bottom_item"`
	ShoesItemID  uint          `json:"shoes_item_id"`
	ShoesItem    *ClothingItem `json:"shoes_item"`

	OuterwearItemID *uint         `json:"outerwear_item_id"`
	OuterwearItem   *ClothingItem `json:"outerwear_item"`
	AccessoryItemID *uint         `json:"accessory_item_id"`
	AccessoryItem   *ClothingItem `json:"accessory_item"`

	Owner   UserAccount `json:"-"`
	OwnerID uint        `json:"-"`
}

// MemberItemIDs returns the member ids in the fixed category order,
// required members first. Optional members are skipped when absent.
func (o Outfit) MemberItemIDs() []uint {
	ids := []uint{o.TopItemID, o.BottomItemID, o.ShoesItemID}
	if o.OuterwearItemID != nil {
		ids = append(ids, *o.OuterwearItemID)
	}
	if o.AccessoryItemID != nil {
		ids = append(ids, *o.AccessoryItemID)
	}
	return ids
}

// ChatTurn keeps an audit record of every completed assistant turn.
type ChatTurn struct {
	JsonModel
	Prompt       string  `gorm:"type:text" json:"prompt"`
	ResponseText string  `gorm:"type:text" json:"response_text"`
	ImageURL     *string `json:"image_url"`
	Owner        UserAccount
	OwnerID      uint `json:"-"`
}
