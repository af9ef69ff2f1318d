package test

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	"fitfinderapi/models"
	"fitfinderapi/services"

	"github.com/golang-jwt/jwt/v4"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

func JsonString(model interface{}) string {
	bytes, _ := json.Marshal(model)
	return string(bytes)
}

func NewJSONRequest(method string, target string, param interface{}) *http.Request {

	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	return req
}

func GenerateUserToken(userPk string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userPk,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 72)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	t, err := token.SignedString([]byte(os.Getenv("JWT_SECRET")))
	if err != nil {
		log.Fatalf("Error when signing user token for %s. Error %s ", userPk, err)
	}
	return t
}

func NewJSONAuthRequest(method string, target string, userPk string, param interface{}) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	token := GenerateUserToken(userPk)
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", token))
	return req
}

func NewRefString(data string) *string {
	return &data
}

func FakeUser(db *gorm.DB) *models.UserAccount {
	user := &models.UserAccount{
		Name:      "OurName",
		Email:     "email@example.com",
		Platform:  models.PlatformIOS,
		LastIp:    "123.122.122.122",
		Status:    "FINISHED_AUTH",
		AvatarUrl: "pictureurl",
	}
	db.Create(&user)

	tokenDb := models.UserPushToken{
		UserAccountID: user.ID,
		Platform:      "android",
		Token:         "cX-UZ3zwQEiPt-2GJkG2gA:APA91bGqRflaGrJrnynhRwZ442HdgUjVcO7mWMFnx6IwAdJ9RRKopvSP4QU7hbvTmk1XAp8XGvtHZLvo5JmOPTVKBbGqqvhfbZWKlXA9csEjx1hgpNvrWepU",
		Active:        true,
	}
	db.Save(&tokenDb)
	return user
}

func FakeItem(db *gorm.DB, ownerID uint, description string, category models.Category, season models.Season, tags []string) *models.ClothingItem {
	item := &models.ClothingItem{
		Description:      NewRefString(description),
		Category:         category,
		Season:           season,
		Tags:             pq.StringArray(tags),
		OwnerID:          ownerID,
		ImageURL:         NewRefString(fmt.Sprintf("items/%s.jpg", strings.ReplaceAll(description, " ", "-"))),
		ImageStatus:      "uploaded",
		ProcessingStatus: "completed",
	}
	db.Create(item)
	return item
}

type AWSProviderMock struct {
	MockUrl string
}

func (awsService AWSProviderMock) InitPresignClient(ctx context.Context) error {
	return nil
}

func (awsService AWSProviderMock) PresignLink(ctx context.Context, bucketName string, fileName string) (string, error) {
	return fmt.Sprintf("https://fakebucketurl.com/%s", fileName), nil
}

func (awsService AWSProviderMock) GetPresignedR2FileReadURL(ctx context.Context, bucketName, fileKey string) (string, error) {
	return awsService.MockUrl, nil
}

func (awsService AWSProviderMock) UploadToPresignedURL(ctx context.Context, bucketName, url string, fileContent []byte) (string, int, error) {
	return url, 204, nil
}

type URLCacheMock struct{}

func (URLCacheMock) GetReadURL(ctx context.Context, objectKey string) (string, error) {
	if objectKey == "" {
		return "", nil
	}
	return "https://fakecdn.example.com/" + objectKey, nil
}

// MockEmbedder produces deterministic bag-of-words vectors: texts sharing
// words land close together, which makes similarity ranking predictable in
// tests without a live embedding model.
type MockEmbedder struct{}

func EmbedWords(text string) []float32 {
	vector := make([]float32, 16)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(word, ".,!?")))
		vector[h.Sum32()%16]++
	}
	return vector
}

func (MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return EmbedWords(text), nil
}

func (MockEmbedder) EmbedImage(ctx context.Context, imageBytes []byte, mimeType string) ([]float32, error) {
	return EmbedWords("clothing image"), nil
}

// MockStylistLLM replays a scripted sequence of model actions, then answers
// in plain text once the script runs out.
type MockStylistLLM struct {
	Actions []services.AgentAction
	Caption services.ItemCaption
	// Histories records the conversation passed to each NextAction call.
	Histories [][]services.ChatMessage

	calls int
}

func (m *MockStylistLLM) NextAction(ctx context.Context, history []services.ChatMessage, tools []services.ToolDefinition, modelName services.LLMModelName) (*services.AgentAction, error) {
	m.Histories = append(m.Histories, history)
	if m.calls < len(m.Actions) {
		action := m.Actions[m.calls]
		m.calls++
		return &action, nil
	}
	return &services.AgentAction{Text: "Anything else I can help with?"}, nil
}

func (m *MockStylistLLM) CaptionImage(ctx context.Context, imageBytes []byte, mimeType string, modelName services.LLMModelName) (*services.ItemCaption, error) {
	caption := m.Caption
	if caption.Description == "" {
		caption = services.ItemCaption{
			Description: "white cotton shirt with a relaxed fit",
			Category:    "top",
			Season:      "summer",
			Color:       "white",
			Tags:        []string{"casual", "cotton"},
		}
	}
	return &caption, nil
}
