// server is the clinical NLQ API binary: it wires the pipeline's
// collaborators from configuration and serves the REST surface over HTTP.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"clinical-nlq/internal/api"
	"clinical-nlq/internal/cache"
	"clinical-nlq/internal/config"
	"clinical-nlq/internal/conversation"
	"clinical-nlq/internal/embedding"
	"clinical-nlq/internal/generation"
	"clinical-nlq/internal/logging"
	"clinical-nlq/internal/metadatastore"
	"clinical-nlq/internal/orchestrator"
	"clinical-nlq/internal/ports"
	"clinical-nlq/internal/retrieval"
	"clinical-nlq/internal/vectorstore"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP server address")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.NewEnhancedLogger("server")

	db, err := connectMetadataStore(cfg.Metadata)
	if err != nil {
		log.Fatalf("failed to connect to metadata store: %v", err)
	}
	defer db.Close()
	store := metadatastore.New(db)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	index, err := vectorstore.NewAdapter(ctx, vectorstore.Config{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		APIKey:     cfg.Qdrant.APIKey,
		UseTLS:     cfg.Qdrant.UseTLS,
		Collection: cfg.Qdrant.Collection,
		VectorSize: cfg.Embedding.Dimensions,
	})
	if err != nil {
		log.Fatalf("failed to connect to vector index: %v", err)
	}

	embedder := embedding.NewOpenAIProvider(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions)

	llmClient := newGenerationClient(cfg.Generator)
	agent := generation.NewAgent(llmClient)

	retrievalCache := cache.NewRetrievalCache(cfg.Cache.RetrievalCacheSize, cfg.Cache.RetrievalTTL)
	retriever := retrieval.NewRetriever(index, retrievalCache)

	orch := orchestrator.New(embedder, store, retriever, agent, orchestrator.Config{
		OverallDeadline: cfg.Pipeline.OverallDeadline,
	})

	sessions := conversation.NewManager()

	cleanup := cron.New()
	if _, err := cleanup.AddFunc(cronSpec(cfg.Pipeline.SessionCleanupPeriod), func() {
		sessions.CleanupExpiredSessions(time.Now())
	}); err != nil {
		log.Fatalf("failed to schedule session cleanup: %v", err)
	}
	cleanup.Start()
	defer cleanup.Stop()

	router := api.NewRouter(cfg, orch, sessions, store)

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info(fmt.Sprintf("clinical-nlq listening on %s", *addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil { //nolint:contextcheck // fresh context needed once the parent is cancelled
		logger.WithError(err).Error("graceful shutdown failed")
	}
}

// newGenerationClient selects the two-pass generation backend (spec.md
// section 4.16) from configuration.
func newGenerationClient(cfg config.GeneratorConfig) ports.LLMClient {
	switch cfg.Backend {
	case "anthropic":
		return generation.NewAnthropicClient(cfg.APIKey, cfg.Model)
	default:
		return generation.NewOpenAIClient(cfg.APIKey, cfg.Model)
	}
}

func connectMetadataStore(cfg config.MetadataConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening metadata store connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging metadata store: %w", err)
	}

	return db, nil
}

// cronSpec turns a cleanup period into an "@every" cron spec, following
// robfig/cron's duration-literal syntax.
func cronSpec(period time.Duration) string {
	if period <= 0 {
		period = 10 * time.Minute
	}
	return "@every " + period.String()
}
