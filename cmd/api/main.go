package main

import (
	"context"
	"os"
	"time"

	"spendflow/internal/database"
	"spendflow/internal/event"
	"spendflow/internal/handler"
	"spendflow/internal/middleware"
	"spendflow/internal/repository"
	"spendflow/internal/service"
	"spendflow/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Spendflow API
// @version         1.0
// @description     Spend request approval workflow with inventory reservation.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Info().Msg("no configs/.env file found")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if os.Getenv("GIN_MODE") == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	dbHost := envOr("DB_HOST", "localhost")
	dbPort := envOr("DB_PORT", "5432")
	dbUser := envOr("DB_USER", "postgres")
	dbPassword := envOr("DB_PASSWORD", "postgres")
	dbName := envOr("DB_NAME", "spendflow")
	dbSslMode := envOr("DB_SSLMODE", "disable")

	dsn := "postgres://" + dbUser + ":" + dbPassword + "@" + dbHost + ":" + dbPort + "/" + dbName + "?sslmode=" + dbSslMode

	db, err := database.NewConnection(dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	log.Info().Msg("connected to PostgreSQL")

	// WebSocket hub and event bus
	wsHub := websocket.NewHub()
	go wsHub.Run()
	bus := event.NewBus(256)

	// Repositories
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	inventoryRepo := repository.NewInventoryRepository(db)
	checkoutRepo := repository.NewCheckoutRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Services
	userService := service.NewUserService(userRepo)
	inventoryService := service.NewInventoryService(inventoryRepo, txManager)
	requestService := service.NewRequestService(requestRepo, inventoryRepo, txManager, bus)
	approvalService := service.NewApprovalService(requestRepo, approvalRepo, inventoryService, txManager, bus)
	checkoutService := service.NewCheckoutService(checkoutRepo, inventoryService, txManager, bus)
	notificationService := service.NewNotificationService(notificationRepo)

	// Notification dispatcher consumes committed workflow events
	dispatcher := service.NewDispatcher(notificationRepo, userRepo, wsHub, bus)
	go dispatcher.Run(context.Background())

	// Handlers
	authHandler := handler.NewAuthHandler(userService)
	requestHandler := handler.NewRequestHandler(requestService, userService)
	approvalHandler := handler.NewApprovalHandler(approvalService, userService)
	inventoryHandler := handler.NewInventoryHandler(inventoryService, userService)
	checkoutHandler := handler.NewCheckoutHandler(checkoutService, userService)
	notificationHandler := handler.NewNotificationHandler(notificationService)

	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173", "http://localhost:5174"}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret())
	})

	// API routing
	authHandler.RegisterRoutes(router.Group(""))
	requestHandler.RegisterRoutes(router.Group(""))
	approvalHandler.RegisterRoutes(router.Group(""))
	inventoryHandler.RegisterRoutes(router.Group(""))
	checkoutHandler.RegisterRoutes(router.Group(""))
	notificationHandler.RegisterRoutes(router.Group(""))

	port := envOr("PORT", "8080")
	log.Info().Str("port", port).Msg("server listening")
	if err := router.Run(":" + port); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
