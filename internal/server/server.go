package server

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	_ "github.com/joho/godotenv/autoload"

	"crashgame/internal/auth"
	"crashgame/internal/cache"
	"crashgame/internal/database"
	"crashgame/internal/game"
)

type FiberServer struct {
	*fiber.App

	db          database.Service
	cache       cache.Service
	hub         *game.Hub
	coordinator *game.Coordinator
	auth        *auth.Service
}

func New() *FiberServer {
	db := database.New()

	// Redis is optional for a single instance, required for leader/replica
	// deployments since it carries the sync channel.
	redisService, err := cache.New()
	if err != nil {
		log.Printf("[SERVER] Redis unavailable, running without replica sync: %v", err)
		redisService = nil
	}

	role := game.RoleReplica
	if getEnv("IS_LEADER", "true") == "true" {
		role = game.RoleLeader
	}
	instanceID := getEnv("INSTANCE_ID", fmt.Sprintf("crash-%s-%d", string(role), os.Getpid()))

	if role == game.RoleReplica && redisService == nil {
		log.Fatal("[SERVER] Replica role requires Redis for the sync channel")
	}

	hub := game.NewHub()

	var repl *game.Replicator
	if redisService != nil {
		repl = game.NewReplicator(redisService.GetClient(), instanceID)
	}

	var engine *game.Engine
	if role == game.RoleLeader {
		engine = game.NewEngine(game.DefaultConfig(), game.NewCrashPointGenerator())
	}

	coordinator := game.NewCoordinator(game.CoordinatorConfig{
		Role:       role,
		InstanceID: instanceID,
		Engine:     engine,
		Hub:        hub,
		Replicator: repl,
		Store:      db,
	})

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "crashgame",
			AppName:       "crashgame",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		db:          db,
		cache:       redisService,
		hub:         hub,
		coordinator: coordinator,
		auth:        auth.NewService(db),
	}

	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	go hub.Run()
	coordinator.Start()

	log.Printf("[SERVER] Started as %s (%s)", role, instanceID)

	return server
}

// ShutdownWithContext stops the round loop, closes shared connections and
// drains the HTTP server within the context deadline.
func (s *FiberServer) ShutdownWithContext(ctx context.Context) error {
	log.Println("[SERVER] Shutting down...")

	if s.coordinator != nil {
		s.coordinator.Stop()
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return s.App.ShutdownWithContext(ctx)
}

func (s *FiberServer) Shutdown() error {
	return s.ShutdownWithContext(context.Background())
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
