package main

import (
	"context"
	"log"
	"os"

	"fitfinderapi/dbhelper"
	"fitfinderapi/services"
	"fitfinderapi/tasks"
	"fitfinderapi/vectorindex"

	firebase "firebase.google.com/go/v4"
	"github.com/hibiken/asynq"
)

func main() {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")},
		asynq.Config{Concurrency: 10, Queues: map[string]int{
			"wardrobe": 7,
		}},
	)
	awsService := &services.AWSService{}
	err := awsService.InitPresignClient(context.Background())
	if err != nil {
		log.Fatal("[Queue] Failed to initialize AWS provider: S3")
	}
	app, err := firebase.NewApp(context.Background(), nil)
	if err != nil {
		log.Fatalf("error initializing firebase app: %v\n", err)
		return
	}

	llm := &services.GoogleStylistLLM{}
	embedder, err := services.NewCachedEmbeddingService(services.GoogleEmbeddingService{LLM: llm})
	if err != nil {
		log.Fatal("[Queue] Failed to initialize embedding cache")
	}
	index, err := vectorindex.NewSQLiteIndex(services.GetEnv("VECTOR_INDEX_PATH", "vectors.db"))
	if err != nil {
		log.Fatalf("[Queue] Failed to open vector index: %v", err)
	}

	mux := asynq.NewServeMux()
	db := dbhelper.SetupDB()
	mux.HandleFunc(tasks.TypeItemProcessing, func(ctx context.Context, t *asynq.Task) error {
		return tasks.HandleItemProcessingTask(ctx, t, db, llm, embedder, index, awsService, app)
	})

	if err := srv.Run(mux); err != nil {
		log.Fatal(err)
	}
}
