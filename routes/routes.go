package routes

import (
	"fmt"
	"log"
	"net/http"

	"lingobattle/handlers"
	"lingobattle/middleware"
	"lingobattle/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

func SetupRoutes(
	router *gin.Engine,
	authHandler *handlers.AuthHandler,
	questionHandler *handlers.QuestionHandler,
	battleHandler *handlers.BattleHandler,
	hub *services.Hub,
	battleService *services.BattleService,
	jwtSecret string,
) {
	// API routes
	api := router.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		// Protected routes
		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(jwtSecret))
		{
			// User profile
			protected.GET("/auth/profile", authHandler.GetProfile)

			// Question routes
			questions := protected.Group("/questions")
			{
				questions.GET("", questionHandler.GetQuestions)
				questions.POST("", questionHandler.CreateQuestion)
				questions.GET("/:id", questionHandler.GetQuestionByID)
				questions.PUT("/:id", questionHandler.UpdateQuestion)
				questions.DELETE("/:id", questionHandler.DeleteQuestion)
			}

			// Battle routes
			battles := protected.Group("/battles")
			{
				battles.POST("/queue", battleHandler.JoinQueue)
				battles.DELETE("/queue", battleHandler.LeaveQueue)
				battles.GET("/queue/status", battleHandler.QueueStatus)
				battles.GET("/history", battleHandler.GetHistory)
				battles.GET("/:matchId", battleHandler.GetMatch)
				battles.POST("/:matchId/answer", battleHandler.SubmitAnswer)
				battles.POST("/:matchId/surrender", battleHandler.Surrender)
			}

			// Friend room routes
			rooms := protected.Group("/rooms")
			{
				rooms.POST("", battleHandler.CreateRoom)
				rooms.POST("/:code/join", battleHandler.JoinRoom)
			}
		}
	}

	// WebSocket endpoint for real-time battle events
	router.GET("/ws/:matchId/:playerId", func(c *gin.Context) {
		matchID := c.Param("matchId")
		playerIDStr := c.Param("playerId")

		var playerID uint
		if _, err := fmt.Sscanf(playerIDStr, "%d", &playerID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid player ID"})
			return
		}

		// Only the two participants may attach to a match's event stream.
		if err := validatePlayerAccess(battleService, matchID, playerID); err != nil {
			log.Printf("Player access validation failed for match %s, player %d: %v", matchID, playerID, err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Player not part of match"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed for match %s, player %d: %v", matchID, playerID, err)
			return
		}

		log.Printf("WebSocket connection established for match %s, player %d", matchID, playerID)
		client := hub.RegisterClient(conn, matchID, playerID)
		hub.SendMatchSync(client)
	})

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// validatePlayerAccess checks that the player belongs to the match.
func validatePlayerAccess(battleService *services.BattleService, matchID string, playerID uint) error {
	snap, err := battleService.SnapshotFor(matchID)
	if err != nil {
		return fmt.Errorf("match not found: %w", err)
	}
	if snap.PlayerA != playerID && snap.PlayerB != playerID {
		return fmt.Errorf("player %d not part of match %s", playerID, matchID)
	}
	return nil
}
