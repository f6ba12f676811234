package main

import (
	"log"

	"lingobattle/config"
	"lingobattle/handlers"
	"lingobattle/middleware"
	"lingobattle/models"
	"lingobattle/routes"
	"lingobattle/services"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database models
	err = db.AutoMigrate(
		&models.User{},
		&models.Question{},
		&models.SeasonRating{},
		&models.MatchResult{},
		&models.BattleRoom{},
	)
	if err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize Redis
	redisClient := config.InitRedis(cfg)

	// Initialize services and stores
	authService := services.NewAuthService(db, cfg.JWTSecret)
	questionService := services.NewQuestionService(db)
	ratingStore := services.NewGormRatingStore(db)
	outcomeStore := services.NewGormOutcomeStore(db)
	queueService := services.NewQueueService()

	// Initialize WebSocket hub and battle orchestrator; they reference each
	// other, so the hub is wired up after construction.
	hub := services.NewHub()
	battleService := services.NewBattleService(questionService, ratingStore, outcomeStore, hub, redisClient, cfg.Season)
	hub.SetBattleService(battleService)
	go hub.Run()

	roomService := services.NewRoomService(db, battleService)

	// Start the battle scheduler (queue sweeps, round timeouts, reaping)
	if _, err := services.StartBattleScheduler(queueService, battleService); err != nil {
		log.Fatal("Failed to start battle scheduler:", err)
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	questionHandler := handlers.NewQuestionHandler(questionService)
	battleHandler := handlers.NewBattleHandler(battleService, queueService, roomService, ratingStore, outcomeStore, cfg.Season)

	// Setup Gin router
	router := gin.Default()

	// Add CORS middleware
	router.Use(middleware.CORS())

	// Setup routes
	routes.SetupRoutes(router, authHandler, questionHandler, battleHandler, hub, battleService, cfg.JWTSecret)

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
