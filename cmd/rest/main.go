package main

import (
	"context"
	"log"

	"multimodal-chat-be/internal/bootstrap"
	"multimodal-chat-be/internal/config"
	"multimodal-chat-be/internal/server"
	"multimodal-chat-be/internal/tracer"
	"multimodal-chat-be/pkg/database"

	"gorm.io/gorm"
)

func main() {
	// 0. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Database (only the pgvector backend needs it)
	var gormDB *gorm.DB
	if cfg.Vector.Backend == "pgvector" {
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
		gormDB = db
	}

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(gormDB, cfg)

	// 4. Start Background Services
	go func() {
		log.Println("Background: Starting Cleanup Service...")
		if err := container.CleanupService.Consume(context.Background()); err != nil {
			log.Printf("Background Cleanup Error: %v", err)
		}
	}()

	// 5. Initialize Server
	srv := server.New(cfg, container)

	// 6. Run Server
	log.Fatal(srv.Run())
}
