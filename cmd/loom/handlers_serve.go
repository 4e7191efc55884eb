package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loomrun/loom/internal/agent"
	"github.com/loomrun/loom/internal/agent/providers"
	"github.com/loomrun/loom/internal/config"
	"github.com/loomrun/loom/internal/conversation"
	"github.com/loomrun/loom/internal/eventqueue"
	"github.com/loomrun/loom/internal/httpapi"
	"github.com/loomrun/loom/internal/observability"
	"github.com/loomrun/loom/internal/storage"
	"github.com/loomrun/loom/internal/streaming"
	"github.com/loomrun/loom/internal/tooldispatch"
	"github.com/loomrun/loom/internal/tools/files"
	"github.com/loomrun/loom/internal/tools/websearch"
)

// runServe implements the serve command: load config, wire the storage,
// driver, and tool stack into a Processor, start the worker pool that
// drains the task queue, and serve the HTTP API until a shutdown signal
// arrives. There is no gRPC surface to start alongside the HTTP one.
func runServe(ctx context.Context, configPath string, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	slog.Info("starting loom", "version", version, "commit", commit, "config", configPath, "debug", debug)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	stores, err := openStores(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer stores.Close()

	drivers, err := buildDriverRegistry(cfg)
	if err != nil {
		return fmt.Errorf("failed to build driver registry: %w", err)
	}

	dispatcher, err := buildDispatcher(cfg)
	if err != nil {
		return fmt.Errorf("failed to build tool dispatcher: %w", err)
	}

	metrics := observability.NewMetrics()
	events := eventqueue.NewMemoryQueue()
	queue := conversation.NewMemoryTaskQueue()
	queue.Metrics = metrics

	processor := &conversation.Processor{
		Agents:        stores.Agents,
		Conversations: stores.Conversations,
		Drivers:       drivers,
		Dispatcher:    dispatcher,
		Events:        events,
		Queue:         queue,
		Metrics:       metrics,
		TurnTimeout:   cfg.Session.TurnTimeout,
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	workerCount := cfg.Tools.Concurrency
	if workerCount <= 0 {
		workerCount = 1
	}
	for i := 0; i < workerCount; i++ {
		go runWorker(ctx, queue, processor, logger)
	}

	httpServer := &httpapi.Server{Processor: processor, Logger: logger, Metrics: metrics}
	streamHandler := &streaming.Handler{Conversations: stores.Conversations, Events: events, Logger: logger}

	mux := httpServer.Routes()
	mux.Handle("GET /conversations/{id}/stream", streamHandler)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("loom HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	go func() {
		slog.Info("loom metrics server listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	slog.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("metrics server shutdown failed", "error", err)
	}

	slog.Info("loom stopped gracefully")
	return nil
}

// runWorker repeatedly leases a conversation ID off queue and drives one
// turn for it via processor.Process, releasing the lease whether the turn
// succeeds or fails so the queue can hand the conversation to the next
// available worker for its next turn.
func runWorker(ctx context.Context, queue *conversation.MemoryTaskQueue, processor *conversation.Processor, logger *observability.Logger) {
	for {
		conversationID, release, err := queue.Lease(ctx)
		if err != nil {
			return
		}
		if err := processor.Process(ctx, conversationID); err != nil {
			logger.Error(ctx, "turn processing failed", "conversation_id", conversationID, "error", err)
		}
		release()
	}
}

// openStores connects to Postgres when database.url is configured,
// otherwise falls back to the in-memory stores for local development.
func openStores(cfg *config.Config) (storage.StoreSet, error) {
	if cfg.Database.URL == "" {
		return storage.NewMemoryStores(), nil
	}
	dbConfig := &storage.CockroachConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	}
	return storage.NewCockroachStoresFromDSN(cfg.Database.URL, dbConfig)
}

// buildDriverRegistry registers one Backend Driver per configured LLM
// provider, matching the provider key to the concrete driver it names.
func buildDriverRegistry(cfg *config.Config) (*conversation.DriverRegistry, error) {
	registry := conversation.NewDriverRegistry()
	for name, providerCfg := range cfg.LLM.Providers {
		driver, err := buildDriver(name, providerCfg)
		if err != nil {
			return nil, err
		}
		registry.Register(name, driver)
	}
	return registry, nil
}

func buildDriver(name string, providerCfg config.LLMProviderConfig) (agent.Driver, error) {
	switch name {
	case "anthropic":
		return providers.NewAnthropic(providers.AnthropicConfig{
			APIKey:       providerCfg.APIKey,
			BaseURL:      providerCfg.BaseURL,
			DefaultModel: providerCfg.DefaultModel,
		})
	case "openai":
		return providers.NewOpenAI(providers.OpenAIConfig{
			APIKey:       providerCfg.APIKey,
			BaseURL:      providerCfg.BaseURL,
			DefaultModel: providerCfg.DefaultModel,
		})
	case "ollama":
		return providers.NewOllama(providers.OllamaConfig{
			BaseURL:      providerCfg.BaseURL,
			DefaultModel: providerCfg.DefaultModel,
		}), nil
	case "vllm":
		return providers.NewVLLM(providers.VLLMConfig{
			BaseURL:      providerCfg.BaseURL,
			APIKey:       providerCfg.APIKey,
			DefaultModel: providerCfg.DefaultModel,
		})
	case "huggingface":
		return providers.NewHuggingFace(providers.HuggingFaceConfig{
			BaseURL:      providerCfg.BaseURL,
			APIKey:       providerCfg.APIKey,
			DefaultModel: providerCfg.DefaultModel,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", name)
	}
}

// buildDispatcher wires the Tool Dispatcher's built-in tools: web search and
// fetch need no local state, the file tools are rooted at the process's
// working directory.
func buildDispatcher(cfg *config.Config) (*tooldispatch.Dispatcher, error) {
	workspace, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	fileConfig := files.Config{Workspace: workspace}
	registry, err := tooldispatch.NewBuiltinRegistry(tooldispatch.BuiltinTools{
		WebSearch: websearch.NewWebSearchTool(&websearch.Config{}),
		WebFetch:  websearch.NewWebFetchTool(&websearch.FetchConfig{}),
		FileRead:  files.NewReadTool(fileConfig),
		FileWrite: files.NewWriteTool(fileConfig),
		FileEdit:  files.NewEditTool(fileConfig),
		FilePatch: files.NewApplyPatchTool(fileConfig),
	})
	if err != nil {
		return nil, err
	}

	return tooldispatch.New(registry, tooldispatch.Config{
		Concurrency:    cfg.Tools.Concurrency,
		PerToolTimeout: cfg.Tools.PerToolTimeout,
	}), nil
}
