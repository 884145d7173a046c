package api

import (
	"context"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/nethserver/gitops-updater/internal/report"
)

// RunFunc executes one update run and returns its report.
type RunFunc func(ctx context.Context, dryRun bool) (*report.Report, error)

// Server wires the update runner into fiber routes. Only one run may be
// in flight at a time.
type Server struct {
	Hub *Hub
	run RunFunc

	mu      sync.Mutex
	running bool
	last    *report.Report
}

// NewServer creates a Server around the given runner.
func NewServer(run RunFunc) *Server {
	return &Server{Hub: NewHub(), run: run}
}

// Register mounts all routes on the fiber app.
func (s *Server) Register(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":          "ok",
			"running":         s.isRunning(),
			"progressClients": s.Hub.clientCount(),
		})
	})

	app.Post("/api/run", s.handleRun)
	app.Get("/api/report", s.handleReport)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/progress", websocket.New(s.Hub.ServeProgress))
}

// handleRun starts a run in the background and returns immediately.
// Progress is observable on the websocket; the result lands on
// /api/report.
func (s *Server) handleRun(c *fiber.Ctx) error {
	dryRun := c.QueryBool("dryRun")

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "a run is already in progress",
		})
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		rep, err := s.run(context.Background(), dryRun)
		s.mu.Lock()
		s.running = false
		if err == nil {
			s.last = rep
		}
		s.mu.Unlock()
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "started", "dryRun": dryRun})
}

func (s *Server) handleReport(c *fiber.Ctx) error {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()

	if last == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no run has completed yet"})
	}
	return c.JSON(last)
}

func (s *Server) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
