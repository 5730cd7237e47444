package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"moontale/internal/config"
	"moontale/internal/engine"
	"moontale/internal/llmlog"
	"moontale/internal/prompts"
	"moontale/internal/storage"
	"moontale/internal/web"
)

func main() {
	// .env is optional; environment wins over file values either way.
	_ = godotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Redis holds the authoritative story state; without it nothing works.
	redisStore, err := storage.NewRedisStore(cfg.Database.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisStore.Close()
	log.Println("Redis connected successfully")

	// MySQL is the optional durable archive.
	mysqlStore, err := storage.NewMySQLStore(cfg.Database.MySQL)
	if err != nil {
		log.Printf("Warning: Failed to connect to MySQL, running without archive: %v", err)
		mysqlStore = nil
	} else {
		defer mysqlStore.Close()
		log.Println("MySQL connected successfully")
	}

	if cfg.AI.OpenAI.APIKey == "" {
		log.Println("Warning: No OpenAI API key provided. Generation will fail.")
	}

	composer := prompts.NewComposer(prompts.Bands{
		ChapterMinChars: cfg.Story.ChapterMinChars,
		ChapterMaxChars: cfg.Story.ChapterMaxChars,
		TitleMinChars:   cfg.Story.TitleMinChars,
		TitleMaxChars:   cfg.Story.TitleMaxChars,
	})

	sink := llmlog.NewRedisSink(redisStore.GetClient(), cfg.Logging.LLMRetention, cfg.Logging.LLMBodyLimit)
	client := engine.NewOpenAIClient(cfg.AI.OpenAI, composer.SystemInstruction(), composer.SummarySystemInstruction())
	gen := llmlog.NewLoggedGenerator(client, sink, cfg.AI.OpenAI.Model)

	hub := web.NewChapterHub()
	go hub.Run()

	pipeline := engine.NewChapterPipeline(redisStore, gen, composer, redisStore).
		WithArchive(storage.NewArchive(mysqlStore)).
		WithBroadcaster(hub)

	handlers := web.NewHandlers(cfg, hub, pipeline, redisStore, sink, mysqlStore)
	r := web.NewRouter(handlers)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in background
	go func() {
		log.Printf("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
