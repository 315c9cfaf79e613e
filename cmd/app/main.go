package main

import (
	"log"

	"video-insights/internal/bootstrap"
)

// Development entry point: serves the frontend from ./frontend on disk so
// UI edits are picked up on reload without rebuilding.
func main() {
	app, err := bootstrap.New()
	if err != nil {
		log.Fatalf("bootstrap app: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("run app: %v", err)
	}
}
