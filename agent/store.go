package agent

import (
	"context"
	"fmt"

	"fitfinderapi/models"
	"gorm.io/gorm"
)

// Store is the structured record collaborator of the core. Writes are one
// logical insert per entity; atomicity per row is the store's job, the core
// does no locking of its own.
type Store interface {
	CreateItem(ctx context.Context, item *models.ClothingItem) error
	GetItems(ctx context.Context, ownerID uint, ids []uint) ([]models.ClothingItem, error)
	CreateOutfit(ctx context.Context, outfit *models.Outfit) error
	GetOutfits(ctx context.Context, ownerID uint, ids []uint) ([]models.Outfit, error)
}

type GormStore struct {
	DB *gorm.DB
}

func (s GormStore) CreateItem(ctx context.Context, item *models.ClothingItem) error {
	if result := s.DB.WithContext(ctx).Create(item); result.Error != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, result.Error)
	}
	return nil
}

func (s GormStore) GetItems(ctx context.Context, ownerID uint, ids []uint) ([]models.ClothingItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []models.ClothingItem
	result := s.DB.WithContext(ctx).Where("owner_id = ? AND id IN ?", ownerID, ids).Find(&items)
	if result.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, result.Error)
	}
	return orderItemsByIDs(items, ids), nil
}

func (s GormStore) CreateOutfit(ctx context.Context, outfit *models.Outfit) error {
	if result := s.DB.WithContext(ctx).Create(outfit); result.Error != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, result.Error)
	}
	return nil
}

func (s GormStore) GetOutfits(ctx context.Context, ownerID uint, ids []uint) ([]models.Outfit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var outfits []models.Outfit
	result := s.DB.WithContext(ctx).
		Preload("TopItem").Preload("BottomItem").Preload("ShoesItem").
		Preload("OuterwearItem").Preload("AccessoryItem").
		Where("owner_id = ? AND id IN ?", ownerID, ids).Find(&outfits)
	if result.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, result.Error)
	}
	return orderOutfitsByIDs(outfits, ids), nil
}

// IN queries lose ranking; restore the caller's id order.
func orderItemsByIDs(items []models.ClothingItem, ids []uint) []models.ClothingItem {
	byID := make(map[uint]models.ClothingItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	ordered := make([]models.ClothingItem, 0, len(items))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			ordered = append(ordered, item)
		}
	}
	return ordered
}

func orderOutfitsByIDs(outfits []models.Outfit, ids []uint) []models.Outfit {
	byID := make(map[uint]models.Outfit, len(outfits))
	for _, outfit := range outfits {
		byID[outfit.ID] = outfit
	}
	ordered := make([]models.Outfit, 0, len(outfits))
	for _, id := range ids {
		if outfit, ok := byID[id]; ok {
			ordered = append(ordered, outfit)
		}
	}
	return ordered
}
