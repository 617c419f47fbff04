package main

import (
	"context"
	"log"
	"os"
	"time"

	"tasktrack/internal/api/handler"
	"tasktrack/internal/coordinator"
	"tasktrack/internal/core/postgres/repository"
	"tasktrack/internal/domain"
	infraredis "tasktrack/internal/infrastructure/redis"
	"tasktrack/internal/observability"
	"tasktrack/internal/service"
	"tasktrack/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. Load configuration (.env overrides nothing already in the env)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment as-is")
	}
	dsn := envOr("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=tasktrack port=5432 sslmode=disable")
	redisAddr := envOr("REDIS_ADDR", "localhost:6379")
	listenAddr := envOr("LISTEN_ADDR", ":8080")
	attemptTimeout := durationOr("ATTEMPT_TIMEOUT", 5*time.Minute)

	// 2. Set up database connection
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := db.AutoMigrate(&domain.Run{}); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// 3. Set up redis-backed queue and event bus
	redisClient, err := infraredis.NewRedisClient(context.Background(), redisAddr)
	if err != nil {
		log.Fatal("Failed to connect to redis:", err)
	}
	queue := infraredis.NewRunQueue(redisClient)
	bus := infraredis.NewRunEventBus(redisClient)

	// 4. Wire repositories, run types, and services
	runRepo := repository.NewRunRepository(db)
	runTypes := worker.InitRegistry()
	runSvc := service.NewRunService(runRepo, queue, runTypes)
	metrics := observability.NewMetrics()

	// 5. Start the coordinator loop
	coord := coordinator.NewCoordinator(runRepo, queue, bus, runTypes, worker.NewExecutor(), metrics, attemptTimeout)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coord.Start(ctx)

	// 6. Set up routes
	runHandler := handler.NewRunHandler(runSvc)
	router := gin.Default()

	api := router.Group("/api/v1")
	{
		api.POST("/runs", runHandler.SubmitRun)
		api.GET("/runs/:id", runHandler.GetRun)
	}
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// 7. Start server
	log.Println("Server starting on", listenAddr)
	if err := router.Run(listenAddr); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("Ignoring invalid %s=%q", key, v)
	}
	return fallback
}
