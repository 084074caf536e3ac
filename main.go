package main

import (
	"context"
	"log"
	"os"
	"time"

	"facilityai/internal/api"
	"facilityai/internal/config"
	"facilityai/internal/models"
	"facilityai/internal/redis"
	"facilityai/internal/service/accounts"
	"facilityai/internal/service/admin"
	"facilityai/internal/service/agents"
	"facilityai/internal/service/ai"
	"facilityai/internal/service/chat"
	"facilityai/internal/service/knowledge"
	"facilityai/internal/service/retrieval"
	"facilityai/internal/storage"
	"facilityai/internal/worker"

	"github.com/gin-gonic/gin"
)

var systemAgents = []models.Agent{
	{Name: "Advogado", Specialty: "Jurídico", SystemInstruction: "Você é um advogado experiente. Responda com base na legislação brasileira."},
	{Name: "Contador", Specialty: "Contabilidade", SystemInstruction: "Você é um contador. Responda dúvidas fiscais e contábeis com precisão."},
	{Name: "Assistente", Specialty: "Geral", SystemInstruction: "Você é um assistente virtual útil e profissional."},
}

func main() {
	cfgPath := os.Getenv("FACILITYIA_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("FACILITYIA_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	// Cache is optional; without it the dashboard just recomputes.
	rdb, err := redis.NewClient(cfg)
	if err != nil {
		log.Printf("redis unavailable, caching disabled: %v", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}

	ctx := context.Background()

	// Missing generation credentials put the chat into offline mode instead
	// of refusing to start.
	var (
		gen      chat.Generation = chat.GenerationOffline{}
		embedder chat.Embedder
		ingest   knowledge.Embedder
	)
	aiClient, err := ai.NewClient(ctx, cfg)
	if err != nil {
		log.Printf("generation provider unavailable, running offline: %v", err)
	} else {
		gen = chat.GenerationLive{Client: aiClient}
		embedder = aiClient
		ingest = aiClient
	}

	var vectorStore retrieval.Store
	store, err := retrieval.NewPineconeStore(ctx, cfg)
	if err != nil {
		log.Printf("vector store unavailable, retrieval disabled: %v", err)
	} else {
		vectorStore = store
	}

	var searcher retrieval.Searcher
	if vectorStore != nil {
		searcher = vectorStore
	}

	chatService := chat.NewService(db, gen, embedder, searcher)
	agentService := agents.NewService(db)
	if err := agentService.Seed(ctx, systemAgents); err != nil {
		log.Fatalf("seed agents: %v", err)
	}
	knowledgeService := knowledge.NewService(db, ingest, vectorStore)
	adminService := admin.NewService(db, rdb)
	accountService := accounts.NewService(db)

	dispatcher := worker.NewDispatcher(worker.DispatcherConfig{
		Workers:   cfg.BasicConfig.IngestWorkers,
		QueueSize: cfg.BasicConfig.IngestQueueSize,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := dispatcher.Shutdown(shutdownCtx); err != nil {
			log.Printf("dispatcher shutdown: %v", err)
		}
	}()

	handlers := api.NewHandler(chatService, agentService, knowledgeService, adminService, accountService, dispatcher)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
