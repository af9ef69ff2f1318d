package controllers

import (
	"fmt"
	"net/http"

	"fitfinderapi/agent"
	"fitfinderapi/models"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type AssistantController struct {
	Runner *agent.Runner
}

func (controller *AssistantController) AssistantRoutes(g *echo.Group) {
	g.POST("/chat", controller.Chat)
	g.GET("/history", controller.History)
}

// Chat runs one assistant turn. The reply always carries response_text;
// matching_outfits is attached only when outfit search produced results.
func (controller *AssistantController) Chat(c echo.Context) error {
	var req models.ChatRequest
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

	// one running conversation per user, pending outfits live under this key
	conversationID := fmt.Sprintf("user-%d", user.ID)
	response := controller.Runner.RunTurn(c.Request().Context(), user.ID, conversationID, req)

	turn := models.ChatTurn{
		Prompt:       req.Prompt,
		ResponseText: response.ResponseText,
		ImageURL:     req.OptionalImageURL,
		OwnerID:      user.ID,
	}
	if err := db.Create(&turn).Error; err != nil {
		// the reply is already computed, losing the audit row is not fatal
		fmt.Printf("[User: %v] Error on saving chat turn: %v\n", user.ID, err)
		sentry.CaptureException(err)
	}

	return c.JSON(http.StatusOK, response)
}

type ChatTurnResponse struct {
	ID           uint    `json:"id"`
	Prompt       string  `json:"prompt"`
	ResponseText string  `json:"response_text"`
	ImageURL     *string `json:"image_url,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

func (controller *AssistantController) History(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}

	var turns []models.ChatTurn
	if err := db.Where("owner_id = ?", user.ID).Order("id desc").Limit(50).Find(&turns).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch chat history"})
	}

	response := make([]ChatTurnResponse, len(turns))
	for i, turn := range turns {
		response[i] = ChatTurnResponse{
			ID:           turn.ID,
			Prompt:       turn.Prompt,
			ResponseText: turn.ResponseText,
			ImageURL:     turn.ImageURL,
			CreatedAt:    turn.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}
	return c.JSON(http.StatusOK, response)
}
