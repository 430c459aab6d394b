package main

import (
	"github.com/joho/godotenv"

	"github.com/clinwest2000/hubspot-heic-webhook/internal/config"
	httpserver "github.com/clinwest2000/hubspot-heic-webhook/internal/http"
	"github.com/clinwest2000/hubspot-heic-webhook/internal/logging"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.New("info", "json").Fatalf("failed to load config: %v", err)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	srv, err := httpserver.NewServer(cfg, log)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	if err := srv.Run(); err != nil {
		log.Fatalf("server stopped with error: %v", err)
	}
}
