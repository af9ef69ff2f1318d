package controllers

import (
	"context"
	"log"
	"net/http"
	"os"

	"fitfinderapi/agent"
	"fitfinderapi/models"
	"fitfinderapi/services"
	"fitfinderapi/vectorindex"

	firebase "firebase.google.com/go/v4"
	"github.com/go-playground/validator"
	"github.com/hibiken/asynq"
	echojwt "github.com/labstack/echo-jwt"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func SetupServer(
	db *gorm.DB,
	llm services.StylistLLMProvider,
	embedder services.EmbeddingServiceProvider,
	index vectorindex.Index,
	awsService services.AWSServiceProvider,
	urlCache services.URLCacheServiceProvider,
	firebaseApp *firebase.App,
	asynqClient *asynq.Client,
) *echo.Echo {

	err := awsService.InitPresignClient(context.Background())
	if err != nil {
		log.Fatal("Failed to initialize AWS provider: S3")
	}

	e := echo.New()
	v := validator.New()
	v.RegisterValidation("platform", models.ValidatePlatform)
	v.RegisterValidation("category", models.ValidateCategory)
	v.RegisterValidation("season", models.ValidateSeason)
	e.Validator = &CustomValidator{validator: v}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("__db", db)
			c.Set("__asynqclient", asynqClient)
			return next(c)
		}
	})

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	toolbox := agent.NewToolbox(llm, embedder, index, agent.GormStore{DB: db})
	runner := agent.NewRunner(toolbox, urlCache)

	assistantController := AssistantController{Runner: runner}
	assistantGroup := e.Group("/assistant", echojwt.JWT([]byte(os.Getenv("JWT_SECRET"))), UserMiddleware)
	assistantController.AssistantRoutes(assistantGroup)

	wardrobeController := WardrobeController{AWSService: awsService, URLCache: urlCache, FirebaseApp: firebaseApp}
	wardrobeGroup := e.Group("/wardrobe", echojwt.JWT([]byte(os.Getenv("JWT_SECRET"))), UserMiddleware)
	wardrobeController.WardrobeRoutes(wardrobeGroup)

	return e
}
