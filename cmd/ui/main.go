package main

import (
	"log"

	"datalens/adapters/ingest"
	"datalens/adapters/report"
	"datalens/app"
	"datalens/internal/config"
	"datalens/ui"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	sessions := app.NewSessionManager(cfg, ingest.NewReader(cfg.Data.DefaultSheet), report.NewBuilder())
	server := ui.NewServer(cfg, sessions)

	log.Printf("Starting datalens UI on http://localhost:%s", cfg.Server.Port)
	log.Fatal(server.Start())
}
