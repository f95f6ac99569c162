// Command intelserver boots the intelligence-gathering HTTP surface:
// source clients, result cache, orchestrator, knowledge export/search,
// completion rotation, and the event bus wired to SSE streaming.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itsneelabh/intelcore/internal/config"
	"github.com/itsneelabh/intelcore/internal/corelog"
	"github.com/itsneelabh/intelcore/internal/rediswrap"
	"github.com/itsneelabh/intelcore/pkg/cache"
	"github.com/itsneelabh/intelcore/pkg/completion"
	"github.com/itsneelabh/intelcore/pkg/events"
	"github.com/itsneelabh/intelcore/pkg/httpapi"
	"github.com/itsneelabh/intelcore/pkg/intel"
	"github.com/itsneelabh/intelcore/pkg/knowledge"
	"github.com/itsneelabh/intelcore/pkg/sources"
	"github.com/itsneelabh/intelcore/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := cfg.ApplyYAMLFile("config/example.yaml"); err != nil {
		panic(err)
	}

	logger := corelog.NewJSONLogger("intelcore", cfg.LogLevel)
	bus := events.Get()

	telemetryProvider, err := telemetry.NewProvider("intelcore", cfg.Environment, telemetry.NoOpEndpoint())
	if err != nil {
		logger.Error("failed to init telemetry", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetryProvider.Shutdown(ctx)
	}()

	cacheRedis, err := rediswrap.New(rediswrap.Options{
		RedisURL:  cfg.CacheRedisURL,
		DB:        cfg.CacheRedisDB,
		Namespace: "intel",
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to connect to cache redis", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer cacheRedis.Close()

	knowledgeRedis, err := rediswrap.New(rediswrap.Options{
		RedisURL:  cfg.KnowledgeRedisURL,
		DB:        cfg.KnowledgeRedisDB,
		Namespace: "council",
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to connect to knowledge redis", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer knowledgeRedis.Close()

	neural := sources.NewNeuralSearch(cfg.ExaBaseURL, cfg.ExaAPIKey, bus, logger)
	news := sources.NewNewsSearch(cfg.TavilyBaseURL, cfg.TavilyAPIKey, bus, logger)
	scraper := sources.NewScraper(cfg.FirecrawlBaseURL, cfg.FirecrawlAPIKey, bus, logger)
	resultCache := cache.New(cacheRedis, logger)

	orchestrator := intel.New(neural, news, scraper, resultCache, bus, logger)

	embedder := knowledge.NewEmbedder("", cfg.JinaAPIKey, bus, logger)
	store := knowledge.New(knowledgeRedis, logger)
	exporter := knowledge.NewExporter(embedder, store)

	rotator := completion.NewRotator(nil, nil)
	_ = completion.NewClient("", cfg.OpenRouterAPIKey, rotator, bus, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.EnsureIndex(ctx); err != nil {
		logger.Warn("knowledge index setup failed", map[string]interface{}{"error": err.Error()})
	}
	cancel()

	server := httpapi.NewServer(orchestrator, exporter, store, embedder, bus, logger)

	mux := http.NewServeMux()
	server.Routes(mux)

	var handler http.Handler = mux
	handler = otelhttp.NewHandler(handler, "intelcore")
	handler = httpapi.LoggingMiddleware(logger, cfg.Environment == "development")(handler)
	handler = httpapi.CorrelationMiddleware(handler)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE connections stay open indefinitely
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("intelserver listening", map[string]interface{}{"port": cfg.Port})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down", nil)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", map[string]interface{}{"error": err.Error()})
	}
}
