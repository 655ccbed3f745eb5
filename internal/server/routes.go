package server

import (
	"strconv"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"crashgame/internal/game"
)

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api/v1")
	api.Get("/game/state", s.getGameStateHandler)
	api.Get("/game/history", s.getGameHistoryHandler)

	s.App.Get("/ws", websocket.New(s.gameWebSocketHandler))
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	cacheHealth := map[string]string{"status": "disabled"}
	if s.cache != nil {
		cacheHealth = s.cache.Health()
	}

	state := s.coordinator.GetState()
	return c.JSON(fiber.Map{
		"database": s.db.Health(),
		"cache":    cacheHealth,
		"game": fiber.Map{
			"role":              string(s.coordinator.Role()),
			"currentState":      state.CurrentState,
			"roundNumber":       state.RoundNumber,
			"connected_clients": s.hub.GetClientCount(),
		},
	})
}

// getGameStateHandler returns the current full snapshot.
func (s *FiberServer) getGameStateHandler(c *fiber.Ctx) error {
	return c.JSON(s.coordinator.GetState())
}

// getGameHistoryHandler returns recent rounds, newest first.
func (s *FiberServer) getGameHistoryHandler(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "10"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	if limit > game.HISTORY_LIMIT {
		limit = game.HISTORY_LIMIT
	}
	return c.JSON(s.coordinator.GetHistory(limit))
}
