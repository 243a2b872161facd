// Command speechgraphd is the main entry point for the speechgraph server:
// a websocket endpoint that turns a live audio stream into a per-session
// knowledge graph, plus a thin management HTTP surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/speechgraph/core/internal/config"
	"github.com/speechgraph/core/internal/feedback"
	"github.com/speechgraph/core/internal/graph"
	"github.com/speechgraph/core/internal/httpapi"
	"github.com/speechgraph/core/internal/observe"
	"github.com/speechgraph/core/internal/pipeline"
	"github.com/speechgraph/core/internal/resilience"
	"github.com/speechgraph/core/internal/session"
	"github.com/speechgraph/core/internal/transport"
	"github.com/speechgraph/core/pkg/cache"
	cachepg "github.com/speechgraph/core/pkg/cache/postgres"
	"github.com/speechgraph/core/pkg/objectstore"
	objectstorefs "github.com/speechgraph/core/pkg/objectstore/fs"
	"github.com/speechgraph/core/pkg/provider/llm"
	llmmock "github.com/speechgraph/core/pkg/provider/llm/mock"
	"github.com/speechgraph/core/pkg/provider/llm/openai"
	"github.com/speechgraph/core/pkg/provider/stt"
	sttmock "github.com/speechgraph/core/pkg/provider/stt/mock"
	"github.com/speechgraph/core/pkg/warehouse"
	warehousepg "github.com/speechgraph/core/pkg/warehouse/postgres"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ───────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "speechgraphd: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "speechgraphd: %v\n", err)
		}
		return 1
	}

	// ── Logger ───────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("speechgraphd starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "speechgraph"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown error", "err", err)
		}
	}()

	metrics := observe.DefaultMetrics()

	// ── Provider registry ────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, closers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer func() {
		for _, c := range closers {
			c()
		}
	}()

	// ── Core services ────────────────────────────────────────────────────
	backingStore := providers.cache
	if backingStore == nil {
		slog.Warn("no cache provider configured; session graphs will not survive a restart")
		backingStore = noopStore{}
	}
	guard := cache.NewGuard(backingStore)
	graphMgr := graph.NewManager(guard)
	sessions := session.NewRegistry()

	var feedbackWorkflow *feedback.Workflow
	if cfg.Feedback.Enabled {
		feedbackWorkflow = feedback.New(providers.objectStore, providers.warehouse, cfg.Feedback.WarehouseTable)
	}

	// Every provider call runs through a circuit breaker even with no
	// configured fallback backend, so a misbehaving recognizer or model
	// endpoint trips open instead of retrying into a cascading failure.
	var sttProvider stt.Provider
	if providers.stt != nil {
		sttProvider = resilience.NewSTTFallback(providers.stt, cfg.Providers.STT.Name, resilience.FallbackConfig{})
	}
	var llmProvider llm.Provider
	if providers.llm != nil {
		llmProvider = resilience.NewLLMFallback(providers.llm, cfg.Providers.LLM.Name, resilience.FallbackConfig{})
	}

	router := pipeline.NewRouter(
		sessions,
		graphMgr,
		sttProvider,
		llmProvider,
		feedbackWorkflow,
		cfg.Queues,
		cfg.Heartbeat,
		cfg.Extraction,
		metrics,
	)

	// ── HTTP wiring ──────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := transport.Accept(r.Context(), w, r, transport.AcceptOptions{})
		if err != nil {
			slog.Warn("websocket accept failed", "err", err)
			return
		}
		router.Handle(ctx, conn)
	})

	management := &httpapi.Handler{
		Sessions:        sessions,
		Graph:           graphMgr,
		DegradedChecker: guard,
		Warehouse:       providers.warehouse,
		FeedbackTable:   cfg.Feedback.WarehouseTable,
	}
	management.Register(mux)

	// Queue/heartbeat/extraction tuning and log level can be hot-reloaded;
	// provider selection cannot, so the watcher only ever touches the
	// router's already-exported tuning fields, read fresh by each new
	// connection and each newly spawned worker.
	watcher, err := config.NewWatcher(*configPath, func(old, updated *config.Config) {
		diff := config.Diff(old, updated)
		if diff.LogLevelChanged {
			slog.SetDefault(newLogger(diff.NewLogLevel))
			slog.Info("log level reloaded", "level", diff.NewLogLevel)
		}
		if diff.QueuesChanged {
			router.Queues = diff.NewQueues
			slog.Info("queue tuning reloaded")
		}
		if diff.HeartbeatChanged {
			router.Heartbeat = diff.NewHeartbeat
			slog.Info("heartbeat tuning reloaded")
		}
		if diff.ExtractionChanged {
			router.Extraction = diff.NewExtraction
			slog.Info("extraction tuning reloaded")
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: observe.Middleware(metrics)(mux),
	}

	go func() {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("listen error", "err", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ──────────────────────────────────────────────────────

// providerSet holds the instantiated providers the rest of the application
// consumes, resolved once at startup through the [config.Registry].
type providerSet struct {
	stt         stt.Provider
	llm         llm.Provider
	cache       graph.Store
	objectStore objectstore.Store
	warehouse   warehouse.Writer
}

// registerBuiltinProviders wires every factory this binary ships with into
// reg. "mock" providers exist for local development and demos where no
// external recognizer or model endpoint is configured; speech recognition
// and generation proper are out of scope (see the stt.Provider/llm.Provider
// interfaces these factories satisfy).
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{}, nil
	})
	reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})
	reg.RegisterCache("postgres", func(entry config.ProviderEntry) (cache.Store, error) {
		return cachepg.New(context.Background(), entry.BaseURL, embeddingDimensions(entry))
	})
	reg.RegisterObjectStore("fs", func(entry config.ProviderEntry) (objectstore.Store, error) {
		dir := entry.BaseURL
		if dir == "" {
			dir = "./data/objects"
		}
		return objectstorefs.New(dir)
	})
	reg.RegisterWarehouse("postgres", func(entry config.ProviderEntry) (warehouse.Writer, error) {
		return warehousepg.New(context.Background(), entry.BaseURL)
	})
}

// embeddingDimensions reads an optional "embedding_dimensions" option from a
// cache provider entry; 0 disables the pgvector column.
func embeddingDimensions(entry config.ProviderEntry) int {
	v, ok := entry.Options["embedding_dimensions"]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

// closerFunc releases a provider's resources at shutdown.
type closerFunc func()

func buildProviders(cfg *config.Config, reg *config.Registry) (*providerSet, []closerFunc, error) {
	ps := &providerSet{}
	var closers []closerFunc

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		ps.stt = p
		slog.Info("provider created", "kind", "stt", "name", name)
	}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		ps.llm = p
		slog.Info("provider created", "kind", "llm", "name", name)
	}

	if name := cfg.Providers.Cache.Name; name != "" {
		p, err := reg.CreateCache(cfg.Providers.Cache)
		if err != nil {
			return nil, nil, fmt.Errorf("create cache provider %q: %w", name, err)
		}
		ps.cache = p
		if c, ok := p.(interface{ Close() }); ok {
			closers = append(closers, c.Close)
		}
		slog.Info("provider created", "kind", "cache", "name", name)
	}

	if name := cfg.Providers.ObjectStore.Name; name != "" {
		p, err := reg.CreateObjectStore(cfg.Providers.ObjectStore)
		if err != nil {
			return nil, nil, fmt.Errorf("create object_store provider %q: %w", name, err)
		}
		ps.objectStore = p
		slog.Info("provider created", "kind", "object_store", "name", name)
	}

	if name := cfg.Providers.Warehouse.Name; name != "" {
		p, err := reg.CreateWarehouse(cfg.Providers.Warehouse)
		if err != nil {
			return nil, nil, fmt.Errorf("create warehouse provider %q: %w", name, err)
		}
		ps.warehouse = p
		if c, ok := p.(interface{ Close() }); ok {
			closers = append(closers, c.Close)
		}
		slog.Info("provider created", "kind", "warehouse", "name", name)
	}

	return ps, closers, nil
}

// noopStore backs the graph manager when no cache provider is configured;
// every load misses and every write is silently accepted, so a session's
// graph only ever lives in the [graph.Manager]'s in-memory copy.
type noopStore struct{}

func (noopStore) LoadGraph(context.Context, string) (*graph.SessionGraph, error) { return nil, nil }
func (noopStore) SaveGraph(context.Context, string, *graph.SessionGraph) error   { return nil }
func (noopStore) SaveSnapshot(context.Context, string, *graph.SessionGraph) error {
	return nil
}
func (noopStore) DeleteGraph(context.Context, string) error { return nil }

// ── Logger ───────────────────────────────────────────────────────────────

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
