package main

import (
	"log"
	"os"

	"github.com/existflow/duetask/internal/logger"
	"github.com/existflow/duetask/internal/remote"
	"github.com/existflow/duetask/server"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "postgres://localhost:5432/duetask?sslmode=disable"
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	if err := logger.Init(logger.Config{
		Level:   logger.ParseLevel(os.Getenv("LOG_LEVEL")),
		Console: true,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	var srv *server.Server
	if dbURL == "memory" {
		// Nothing survives a restart; for local development only.
		srv = server.NewWithStore(remote.NewMemory(nil), server.NewMemoryAccounts(), []byte(secret))
	} else {
		var err error
		srv, err = server.New(dbURL, []byte(secret))
		if err != nil {
			log.Fatalf("Failed to create server: %v", err)
		}
	}
	defer func() {
		if err := srv.Close(); err != nil {
			log.Printf("Error closing server: %v", err)
		}
	}()

	log.Printf("duetask server starting on :%s", port)
	if err := srv.Start(":" + port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
