package main

import (
	"log"
	"net/http"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nethserver/gitops-updater/internal/api"
	"github.com/nethserver/gitops-updater/internal/engine"
	"github.com/nethserver/gitops-updater/internal/service"
)

func main() {
	addr := envOr("UPDATER_LISTEN", ":3000")
	metricsAddr := envOr("UPDATER_METRICS_LISTEN", ":9090")
	repoPath := envOr("UPDATER_REPO", ".")

	var server *api.Server
	s := service.New(service.Options{
		RepoPath: repoPath,
		GitToken: os.Getenv("GITHUB_TOKEN"),
		Commit:   os.Getenv("UPDATER_COMMIT") == "true",
		OnProgress: func(event engine.Event) {
			server.Hub.Broadcast(event)
		},
	})
	server = api.NewServer(s.Run)

	app := fiber.New()
	server.Register(app)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Printf("metrics listening on %s", metricsAddr)
		log.Fatal(http.ListenAndServe(metricsAddr, mux))
	}()

	log.Printf("listening on %s, repo %s", addr, repoPath)
	log.Fatal(app.Listen(addr))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
