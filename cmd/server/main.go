package main

import (
	"flag"
	"net/http"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/homeroom/internal/app"
	"github.com/shrimpsizemoose/homeroom/internal/handlers"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML config")
	flag.Parse()

	service, err := app.NewService(*configPath)
	if err != nil {
		logger.Error.Fatalf("Failed to start service: %v", err)
	}
	defer service.Close()

	router, err := handlers.NewRouter(service)
	if err != nil {
		logger.Error.Fatalf("Failed to build router: %v", err)
	}

	logger.Info.Printf("Starting homeroom server on %s", service.Config.Server.Port)
	if service.Auth.Enabled() {
		logger.Debug.Printf("Sessions expire after %s of inactivity", service.Config.SessionTTL())
	} else {
		logger.Info.Printf("Auth disabled, identity is read from %s", service.Config.API.UserIDHeader)
	}
	if err := http.ListenAndServe(service.Config.Server.Port, router); err != nil {
		logger.Error.Fatalf("Homeroom server failed: %v", err)
	}
}
