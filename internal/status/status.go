// Package status serves the health and debug endpoints.
package status

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"guild-warden/internal/config"
	"guild-warden/internal/logger"
	"guild-warden/internal/scheduler"
)

// Processing is the dispatcher side of the debug output, implemented by *handler.Stats
type Processing interface {
	Snapshot() map[string]interface{}
	DetailedStatus() string
}

// Counter reports how many rows a table holds
type Counter func(ctx context.Context) (int64, error)

type Sources struct {
	Processing Processing
	Schedulers map[string]func() scheduler.Stats
	Records    map[string]Counter
	// Locks counts member locks held in this process, nil for the redis locker
	Locks func() int
}

type Server struct {
	app  *fiber.App
	addr string
	src  Sources
}

func New(cfg config.StatusConfig, src Sources) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "guild-warden",
		IdleTimeout:           30 * time.Second,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		DisableStartupMessage: true,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
	})
	app.Use(recover.New())

	s := &Server{app: app, addr: cfg.ListenAddr, src: src}

	debugPath := cfg.DebugPath
	if debugPath == "" {
		debugPath = "/debug"
	}
	app.Get("/healthz", s.health)
	app.Get(debugPath, s.debug)
	app.Get(debugPath+"/text", s.debugText)
	return s
}

// App exposes the fiber app for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens until Shutdown is called
func (s *Server) Start() error {
	logger.Infof("Starting status server on %s", s.addr)
	return s.app.Listen(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) debug(c *fiber.Ctx) error {
	out := fiber.Map{}
	if s.src.Processing != nil {
		out["processing"] = s.src.Processing.Snapshot()
	}

	schedulers := make(map[string]scheduler.Stats, len(s.src.Schedulers))
	for name, stats := range s.src.Schedulers {
		schedulers[name] = stats()
	}
	out["schedulers"] = schedulers

	records := make(map[string]int64, len(s.src.Records))
	for name, count := range s.src.Records {
		n, err := count(c.UserContext())
		if err != nil {
			logger.Warningf("Failed to count %s: %v", name, err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "database unavailable"})
		}
		records[name] = n
	}
	out["records"] = records
	if s.src.Locks != nil {
		out["locks_held"] = s.src.Locks()
	}

	return c.JSON(out)
}

func (s *Server) debugText(c *fiber.Ctx) error {
	if s.src.Processing == nil {
		return c.SendStatus(fiber.StatusNotFound)
	}
	return c.SendString(s.src.Processing.DetailedStatus())
}
