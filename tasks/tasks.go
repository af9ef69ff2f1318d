package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"fitfinderapi/models"
	"fitfinderapi/services"
	"fitfinderapi/vectorindex"

	firebase "firebase.google.com/go/v4"
	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const TypeItemProcessing = "wardrobe:process_item"

type ItemProcessingPayload struct {
	ItemID uint `json:"item_id"`
}

// Client initializes an asynq client for enqueuing tasks
func NewClient() (*asynq.Client, error) {
	return asynq.NewClient(asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")}), nil
}

func NewItemProcessingTask(itemID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(ItemProcessingPayload{ItemID: itemID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeItemProcessing, payload), nil

}

func getFileForItem(awsService services.AWSServiceProvider, item models.ClothingItem) ([]byte, string, error) {
	bucketName := os.Getenv("R2_BUCKET_NAME")
	fmt.Printf("[Item: %v] Request presigned download url from bucket %s\n", item.ID, bucketName)
	if item.ImageURL == nil {
		return nil, "", fmt.Errorf("[Item: %v] Image URL is nil", item.ID)
	}
	fileUrl, err := awsService.GetPresignedR2FileReadURL(context.TODO(), bucketName, *item.ImageURL)
	fileName := filepath.Base(*item.ImageURL)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Item: %v] Error on getting presigned URL for file %s", item.ID, *item.ImageURL))
		return nil, fileName, err
	}
	fileBytes, err := services.ReadFileFromUrl(fileUrl)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Item: %v] Error on downloading file %s: %v", item.ID, *item.ImageURL, err))
		return nil, fileName, err
	}
	return fileBytes, fileName, nil
}

// HandleItemProcessingTask runs the wardrobe ingestion pipeline for one item:
// download the uploaded photo, normalize its background, caption it, embed the
// caption and index the vector for similarity search.
func HandleItemProcessingTask(
	ctx context.Context, t *asynq.Task, db *gorm.DB, llm services.StylistLLMProvider,
	embedder services.EmbeddingServiceProvider, index vectorindex.Index,
	awsService services.AWSServiceProvider, fbApp *firebase.App) error {
	var payload ItemProcessingPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	fmt.Printf("[Item: %v] Start Processing\n", payload.ItemID)

	var item models.ClothingItem
	res := db.First(&item, payload.ItemID)
	if res.Error != nil {
		sentry.CaptureException(fmt.Errorf("[QUEUE] Error on retrieving item for processing %v", payload.ItemID))
		return res.Error
	}
	if item.ProcessingStatus == "completed" {
		fmt.Printf("[Item: %v] Already processed\n", payload.ItemID)
		return nil
	}
	if item.ImageURL == nil {
		saveItemProcessingFail(db, item, "Item has no photo to analyze, please upload it again", false)
		sentry.CaptureException(fmt.Errorf("[Item: %v] Image URL is nil", payload.ItemID))
		return nil
	}

	item.ProcessingStatus = "processing"
	if err := db.Omit("alert_when_processed").Save(&item).Error; err != nil {
		sentry.CaptureException(fmt.Errorf("[Item: %v] Error on marking item as processing: %v", payload.ItemID, err))
		return err
	}

	fileBytes, fileName, err := getFileForItem(awsService, item)
	if err != nil {
		saveItemProcessingFail(db, item, "Failed to read the item photo, please upload it again", true)
		return err
	}
	fmt.Printf("[Item: %v] Downloaded file %s, size: %d bytes\n", payload.ItemID, fileName, len(fileBytes))

	// background cleanup is best effort, a noisy photo still gets captioned
	cleaned, err := services.NormalizeItemBackground(fileBytes, 230, 255, 0.6)
	if err != nil {
		fmt.Printf("[Item: %v] Background normalize failed, using original photo: %v\n", payload.ItemID, err)
		cleaned = fileBytes
	}

	mimeType := http.DetectContentType(cleaned)
	model := services.Flash25
	fmt.Printf("[Item: %v] Captioning with model %s\n", payload.ItemID, model.String())
	caption, err := llm.CaptionImage(ctx, cleaned, mimeType, model)
	if err != nil {
		saveItemProcessingFail(db, item, "Failed to analyze the item photo, please try again", true)
		sentry.CaptureException(fmt.Errorf("[Item: %v] Error on captioning image %s: %v", payload.ItemID, *item.ImageURL, err))
		return err
	}
	if caption == nil || caption.Description == "" {
		saveItemProcessingFail(db, item, "Could not recognize a clothing item in this photo", true)
		sentry.CaptureException(fmt.Errorf("[Item: %v] Caption is empty but no error provided for %s", payload.ItemID, *item.ImageURL))
		return fmt.Errorf("[Item: %v] Caption is empty but no error provided", payload.ItemID)
	}
	fmt.Printf("[Item: %v] Captioned: %q category=%s season=%s\n", payload.ItemID, caption.Description, caption.Category, caption.Season)

	item.Description = &caption.Description
	if models.Category(caption.Category).Valid() {
		item.Category = models.Category(caption.Category)
	}
	if models.Season(caption.Season).Valid() {
		item.Season = models.Season(caption.Season)
	}
	if caption.Color != "" {
		item.Color = &caption.Color
	}
	if len(caption.Tags) > 0 {
		var tags []string
		for _, tag := range caption.Tags {
			tags = append(tags, strings.TrimSpace(tag))
		}
		item.Tags = pq.StringArray(tags)
	}
	item.ProcessingStatus = "completed"
	item.ProcessErrorMessage = nil
	if err := db.Omit("alert_when_processed").Save(&item).Error; err != nil {
		sentry.CaptureException(fmt.Errorf("[QUEUE] Error on saving item %v", payload.ItemID))
		return err
	}

	vector, err := embedder.EmbedText(ctx, caption.Description)
	if err != nil {
		// the item stays completed, search just won't see it until a re-run
		fmt.Printf("[Item: %v] Error on embedding caption: %v\n", payload.ItemID, err)
		sentry.CaptureException(fmt.Errorf("[Item: %v] Error on embedding caption: %v", payload.ItemID, err))
		return err
	}
	if err := index.Upsert(ctx, vectorindex.KindItem, item.ID, vector, item.Category.Value(), item.Season.Value()); err != nil {
		fmt.Printf("[Item: %v] Error on indexing vector: %v\n", payload.ItemID, err)
		sentry.CaptureException(fmt.Errorf("[Item: %v] Error on indexing vector: %v", payload.ItemID, err))
		return err
	}

	fmt.Printf("[Item: %v] Processing finished succesfully..\n", payload.ItemID)
	if item.AlertWhenProcessed {
		fmt.Printf("[Item: %v] Sending notification to user %v\n", payload.ItemID, item.OwnerID)
		services.SendNotification(fbApp, db, item.OwnerID, "Item Ready", fmt.Sprintf("Your item %q is ready to style", caption.Description), map[string]string{"item_id": fmt.Sprintf("%d", item.ID), "type": "item_processed"})
	}
	return nil
}

func saveItemProcessingFail(db *gorm.DB, item models.ClothingItem, msg string, shouldRetry bool) error {
	item.ProcessRetryTimes = item.ProcessRetryTimes + 1
	item.ProcessErrorMessage = &msg
	if !shouldRetry || item.ProcessRetryTimes >= 3 {
		item.ProcessingStatus = "failed"
	}
	tx := db.Omit("alert_when_processed").Save(&item)
	if tx.Error != nil {
		sentry.CaptureException(fmt.Errorf("[Fail Item %v] Error on saving item for failed status", item.ID))
		return tx.Error
	}
	return nil
}
