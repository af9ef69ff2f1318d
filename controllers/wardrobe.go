package controllers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"

	"fitfinderapi/models"
	"fitfinderapi/services"
	"fitfinderapi/tasks"

	firebase "firebase.google.com/go/v4"
	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// Request structs for validation
type CreateItemIn struct {
	FileName           *string `json:"file_name" validate:"required,max=200"`
	Description        *string `json:"description" validate:"omitempty,max=500"`
	Category           *string `json:"category" validate:"omitempty,category"`
	Season             *string `json:"season" validate:"omitempty,season"`
	AlertWhenProcessed *bool   `json:"alert_when_processed"`
}

type WardrobeController struct {
	AWSService  services.AWSServiceProvider
	URLCache    services.URLCacheServiceProvider
	FirebaseApp *firebase.App
}

func (controller *WardrobeController) WardrobeRoutes(g *echo.Group) {
	g.POST("/items", controller.CreateItem)
	g.GET("/items", controller.ListItems)
	g.GET("/outfits", controller.ListOutfits)
	g.GET("/outfits/:outfitId", controller.GetOutfit)
}

// CreateItem registers an item shell, hands back a presigned upload link and
// schedules the ingestion pipeline. The caption worker fills in description,
// category and season once the photo is uploaded.
func (controller *WardrobeController) CreateItem(c echo.Context) error {
	var req CreateItemIn
	if err := c.Bind(&req); err != nil {
		fmt.Println(err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}
	asynqClient, ok := c.Get("__asynqclient").(*asynq.Client)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Service is not available, please try again a bit later"})
	}

	if req.FileName == nil || *req.FileName == "" {
		sentry.CaptureException(fmt.Errorf("Image was not provided when creating item, user %v", user.ID))
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Sorry, it seems image was not provided, please try again"})
	}

	item := models.ClothingItem{
		Description:      req.Description,
		OwnerID:          user.ID,
		ImageStatus:      "draft",
		ProcessingStatus: "pending",
	}
	if req.Category != nil {
		item.Category = models.Category(*req.Category)
	}
	if req.Season != nil {
		item.Season = models.Season(*req.Season)
	}
	if req.AlertWhenProcessed != nil {
		item.AlertWhenProcessed = *req.AlertWhenProcessed
	}

	var bucketName = services.GetEnv("R2_BUCKET_NAME", "")
	safeFileName := fmt.Sprintf("items/%s", *req.FileName)
	uploadUrl, presignErr := controller.AWSService.PresignLink(context.Background(), bucketName, safeFileName)
	if presignErr != nil {
		log.Printf("Unable to presign upload for item of user %v, %s", user.ID, presignErr)
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"message": "Error while creating item with attachment",
		})
	}
	item.ImageURL = &safeFileName

	if err := db.Create(&item).Error; err != nil {
		sentry.CaptureException(err)
		return err
	}

	task, err := tasks.NewItemProcessingTask(item.ID)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Sorry, could not process the item, please try again"})
	}
	info, err := asynqClient.Enqueue(task, asynq.MaxRetry(3), asynq.Queue("wardrobe"))
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Sorry, could not process the item, please try again"})
	}
	fmt.Println("[Queue] Process item task submitted, Item ID: ", item.ID, " Task ID: ", info.ID)

	response := models.ItemCreatedResponse{
		Item:          itemResponseOf(item, nil),
		FileUploadUrl: uploadUrl,
	}
	return c.JSON(http.StatusCreated, response)
}

func itemResponseOf(item models.ClothingItem, uri *string) models.ItemResponse {
	return models.ItemResponse{
		ID:          item.ID,
		Description: item.Description,
		Category:    item.Category.Value(),
		Season:      item.Season.Value(),
		Tags:        []string(item.Tags),
		Uri:         uri,
		Status:      item.ProcessingStatus,
		CreatedAt:   item.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:   item.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// populatePresignedItemImages enriches items with presigned read URLs
// concurrently, falling back to a direct R2 presign when the cache layer
// itself fails.
func (controller *WardrobeController) populatePresignedItemImages(ctx context.Context, items []models.ClothingItem) []models.ItemResponse {
	if len(items) == 0 {
		return []models.ItemResponse{}
	}

	var wg sync.WaitGroup
	responses := make([]models.ItemResponse, len(items))
	bucketName := services.GetEnv("R2_BUCKET_NAME", "")

	for i, clothingItem := range items {
		wg.Add(1)
		go func(index int, item models.ClothingItem) {
			defer wg.Done()

			var imageUrl string
			if item.ImageURL != nil && *item.ImageURL != "" {
				objectKey := *item.ImageURL
				url, err := controller.URLCache.GetReadURL(ctx, objectKey)
				if err == nil {
					imageUrl = url
				} else {
					log.Printf("CACHE WARNING: Cache system failed for key '%s': %v. Triggering manual R2 fallback.", objectKey, err)
					sentry.WithScope(func(scope *sentry.Scope) {
						scope.SetTag("failure_type", "cache_system")
						scope.SetExtra("objectKey", objectKey)
						sentry.CaptureException(err)
					})
					fallbackUrl, fallbackErr := controller.AWSService.GetPresignedR2FileReadURL(ctx, bucketName, objectKey)
					if fallbackErr != nil {
						log.Printf("CRITICAL: Manual R2 fallback also failed for key '%s': %v", objectKey, fallbackErr)
						sentry.CaptureException(fallbackErr)
					} else {
						imageUrl = fallbackUrl
					}
				}
			}
			responses[index] = itemResponseOf(item, &imageUrl)
		}(i, clothingItem)
	}

	wg.Wait()
	return responses
}

func (controller *WardrobeController) ListItems(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}

	var items []models.ClothingItem
	if err := db.Where("owner_id = ?", user.ID).Find(&items).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch items"})
	}
	processed := controller.populatePresignedItemImages(c.Request().Context(), items)

	response := models.ItemsListResponse{
		Tops:        []models.ItemResponse{},
		Bottoms:     []models.ItemResponse{},
		Shoes:       []models.ItemResponse{},
		Outerwear:   []models.ItemResponse{},
		Accessories: []models.ItemResponse{},
	}
	for _, resp := range processed {
		switch resp.Category {
		case "top":
			response.Tops = append(response.Tops, resp)
		case "bottom":
			response.Bottoms = append(response.Bottoms, resp)
		case "shoes":
			response.Shoes = append(response.Shoes, resp)
		case "outerwear":
			response.Outerwear = append(response.Outerwear, resp)
		case "accessory":
			response.Accessories = append(response.Accessories, resp)
		}
	}

	return c.JSON(http.StatusOK, response)
}

func (controller *WardrobeController) outfitResponseOf(ctx context.Context, outfit models.Outfit) models.OutfitResponse {
	response := models.OutfitResponse{
		ID:          outfit.ID,
		Name:        outfit.Name,
		Description: outfit.Description,
		Season:      outfit.Season.Value(),
		CreatedAt:   outfit.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
	var members []models.ClothingItem
	for _, item := range []*models.ClothingItem{outfit.TopItem, outfit.BottomItem, outfit.ShoesItem, outfit.OuterwearItem, outfit.AccessoryItem} {
		if item != nil {
			members = append(members, *item)
		}
	}
	processed := controller.populatePresignedItemImages(ctx, members)
	for i, member := range members {
		relaxed := member.Season != outfit.Season &&
			member.Season != models.SeasonAny && outfit.Season != models.SeasonAny
		response.Members = append(response.Members, models.OutfitMemberResponse{
			Item:          processed[i],
			SeasonRelaxed: relaxed,
		})
	}
	return response
}

func (controller *WardrobeController) ListOutfits(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}

	var outfits []models.Outfit
	err := db.Where("owner_id = ?", user.ID).
		Preload("TopItem").Preload("BottomItem").Preload("ShoesItem").
		Preload("OuterwearItem").Preload("AccessoryItem").
		Order("id desc").Find(&outfits).Error
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch outfits"})
	}

	response := make([]models.OutfitResponse, len(outfits))
	for i, outfit := range outfits {
		response[i] = controller.outfitResponseOf(c.Request().Context(), outfit)
	}
	return c.JSON(http.StatusOK, response)
}

func (controller *WardrobeController) GetOutfit(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}
	var outfitId uint
	if err := echo.PathParamsBinder(c).Uint("outfitId", &outfitId).BindError(); err != nil {
		return echo.ErrBadRequest
	}

	var outfit models.Outfit
	err := db.Where("id = ? AND owner_id = ?", outfitId, user.ID).
		Preload("TopItem").Preload("BottomItem").Preload("ShoesItem").
		Preload("OuterwearItem").Preload("AccessoryItem").
		First(&outfit).Error
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Outfit not found"})
	}

	return c.JSON(http.StatusOK, controller.outfitResponseOf(c.Request().Context(), outfit))
}
