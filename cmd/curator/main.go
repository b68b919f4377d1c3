package main

import (
	"context"
	"fmt"
	"time"

	"github.com/lotuscatalog/curator/internal/adminlog"
	"github.com/lotuscatalog/curator/internal/agents"
	"github.com/lotuscatalog/curator/internal/catalog"
	"github.com/lotuscatalog/curator/internal/chat"
	curatorconfig "github.com/lotuscatalog/curator/internal/config"
	"github.com/lotuscatalog/curator/internal/duplicates"
	"github.com/lotuscatalog/curator/internal/orders"
	"github.com/lotuscatalog/curator/internal/similarity"
	"github.com/lotuscatalog/curator/internal/tools"
	"github.com/lotuscatalog/curator/internal/vision"
	"github.com/lotuscatalog/curator/pkg/config"
	"github.com/lotuscatalog/curator/pkg/database"
	"github.com/lotuscatalog/curator/pkg/llm"
	"github.com/lotuscatalog/curator/pkg/logging"
	"github.com/lotuscatalog/curator/pkg/middleware"
	"github.com/lotuscatalog/curator/pkg/monitoring"
	"github.com/lotuscatalog/curator/pkg/server"
	"github.com/lotuscatalog/curator/pkg/version"
)

// validateEmbeddingDimensions compares the model's reported vector width
// against the configured one. Zero configuration accepts any width.
func validateEmbeddingDimensions(probed, configured int) error {
	if configured > 0 && probed != configured {
		return fmt.Errorf("embedding model returns %d-dimensional vectors, configured for %d", probed, configured)
	}
	return nil
}

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("curator")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Curator (Bilingual Catalog Assistant API)")

	cfg := curatorconfig.LoadConfig()

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = cfg.DatabaseURL
	db := database.MustConnect(dbConfig, logger)
	defer func() { _ = db.Close() }()

	if config.GetEnvBool("CURATOR_APPLY_SCHEMA", false) {
		if err := database.ApplySchema(db, logger); err != nil {
			logger.WithError(err).Fatal("Failed to apply database schema")
		}
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("curator", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("curator", version.Version, version.GitCommit)

	// Add health checks
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL": cfg.DatabaseURL,
	}))
	if cfg.CLIPAPIURL != "" {
		healthChecker.AddCheck("clip", monitoring.HTTPServiceHealthCheck("clip", cfg.CLIPAPIURL))
	}

	// Audit trail: Postgres log with an optional Kafka mirror.
	auditStore := adminlog.NewStore(db, logger)
	auditLog, err := adminlog.NewPublisher(auditStore, adminlog.PublisherConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.AuditKafkaTopic,
		Source:  "curator",
		Logger:  logger,
	})
	if err != nil {
		logger.WithError(err).Warn("Failed to create audit Kafka mirror - audit events stay in Postgres only")
		auditLog, _ = adminlog.NewPublisher(auditStore, adminlog.PublisherConfig{Logger: logger})
	}
	defer func() { _ = auditLog.Close() }()
	if len(cfg.KafkaBrokers) == 0 {
		logger.Warn("KAFKA_BROKERS not set - audit events stay in Postgres only")
	}
	if producer := auditLog.Producer(); producer != nil {
		healthChecker.AddCheck("kafka", monitoring.KafkaProducerHealthCheck(producer.GetClient()))
	}

	llmProvider, err := llm.NewProvider(llm.LoadConfig())
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize LLM provider")
	}
	embeddingClient, err := llm.NewEmbeddingClient(llm.LoadEmbeddingConfig())
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize embedding client")
	}
	imageEmbedder, err := llm.NewCLIPClient(llm.LoadCLIPConfig())
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize CLIP client")
	}
	visionClient, err := llm.NewVisionClient(llm.LoadVisionConfig())
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize vision client")
	}

	probeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	dims, probeErr := llm.ProbeEmbeddingDimensions(probeCtx, embeddingClient)
	cancel()
	if probeErr != nil {
		logger.WithError(probeErr).Warn("Embedding dimension check skipped - model unreachable")
	} else if err := validateEmbeddingDimensions(dims, cfg.EmbeddingDimensions); err != nil {
		logger.WithError(err).Fatal("Embedding model does not match EMBEDDING_DIMENSIONS")
	} else {
		logger.WithField("dimensions", dims).Info("Embedding dimensions verified")
	}

	catalogStore := catalog.NewStore(db, logger)
	orderStore := orders.NewStore(db, logger)
	similarityStore := similarity.NewStore(db, logger)
	analyzer := vision.NewAnalyzer(visionClient, logger)
	engine := duplicates.NewEngine(similarityStore, catalogStore, analyzer, embeddingClient, imageEmbedder, logger)

	registry := tools.NewRegistry(auditLog, logger)
	tools.RegisterInventoryTools(registry, catalogStore, engine, similarityStore, embeddingClient, imageEmbedder, auditLog, logger)
	tools.RegisterOrderTools(registry, orderStore, logger)
	tools.RegisterVisionTools(registry, analyzer, logger)

	agentGraph := agents.NewRegistry()
	if err := agentGraph.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid agent graph")
	}

	orchestrator := chat.NewOrchestrator(llmProvider, registry, agentGraph, logger)
	orchestrator.SetMaxTurns(cfg.MaxTurns)
	chatHandler := chat.NewChatHandler(orchestrator, logger)

	backfiller := similarity.NewBackfiller(similarityStore, embeddingClient, imageEmbedder, logger)
	adminHandler := similarity.NewAdminHandler(backfiller, logger)

	// Setup router with unified monitoring (health/metrics only)
	router := server.SetupServiceRouter(logger, "curator", healthChecker, metricsCollector)
	apiGroup := router.Group("/api/curator")
	chat.RegisterRoutes(apiGroup, chatHandler)

	adminGroup := apiGroup.Group("/admin")
	adminGroup.Use(middleware.APIKeyMiddleware(cfg.AdminAPIKey))
	adminHandler.RegisterRoutes(adminGroup)
	if cfg.AdminAPIKey == "" {
		logger.Warn("CURATOR_API_KEY not set - admin endpoints disabled")
	}

	// Start HTTP server with graceful shutdown
	serverConfig := server.DefaultConfig("curator", cfg.Port)
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
