package main

import (
	"context"
	"log"
	"os"
	"time"

	"fitfinderapi/agent"
	"fitfinderapi/controllers"
	"fitfinderapi/dbhelper"
	"fitfinderapi/services"
	"fitfinderapi/telegram"
	"fitfinderapi/vectorindex"

	firebase "firebase.google.com/go/v4"
	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              os.Getenv("SENTRY_DSN"),
		Environment:      services.GetEnv("ENV", "local"),
		Release:          "fitfinderapi@1.0.0",
		Debug:            false,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Recover()
	defer sentry.Flush(2 * time.Second)

	db := dbhelper.SetupDB()

	app, err := firebase.NewApp(context.Background(), nil)
	if err != nil {
		log.Fatalf("error initializing firebase app: %v\n", err)
		return
	}
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")})
	bucketName := services.GetEnv("R2_BUCKET_NAME", "")
	awsService := &services.AWSService{}
	urlCache, err := services.NewURLCacheService(awsService, bucketName)
	if err != nil {
		log.Fatal("Failed to initialize URL cache service")
	}

	llm := &services.GoogleStylistLLM{}
	embedder, err := services.NewCachedEmbeddingService(services.GoogleEmbeddingService{LLM: llm})
	if err != nil {
		log.Fatal("Failed to initialize embedding cache")
	}
	index, err := vectorindex.NewSQLiteIndex(services.GetEnv("VECTOR_INDEX_PATH", "vectors.db"))
	if err != nil {
		log.Fatalf("Failed to open vector index: %v", err)
	}

	e := controllers.SetupServer(
		db, llm, embedder, index, awsService, urlCache, app, asynqClient,
	)
	e.Debug = true

	if os.Getenv("TELEGRAM_BOT") == "true" {
		toolbox := agent.NewToolbox(llm, embedder, index, agent.GormStore{DB: db})
		runner := agent.NewRunner(toolbox, urlCache)
		telegram.RunStylistBot(db, runner)
	} else {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(3)))
		e.Use(middleware.Logger())
		e.Use(middleware.Recover())

		e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
		e.Logger.Fatal(e.Start(":8083"))
	}
}
