package server

import (
	"backend-waytrack/internal/config"
	"backend-waytrack/internal/session"
	"backend-waytrack/internal/snap"
	"backend-waytrack/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Stream   *stream.Hub
	Sessions *session.Service
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	hub := stream.NewHub(redisClient)
	s := &Server{
		App:      app,
		Cfg:      cfg,
		DB:       db,
		Redis:    redisClient,
		Stream:   hub,
		Sessions: session.NewService(db, hub, snap.FromConfig(cfg.SnapBaseURL, cfg.SnapAPIKey), cfg.Tuning()),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	session.RegisterRoutes(s.App.Group("/sessions"), s.Sessions)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
