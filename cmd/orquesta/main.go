// Command orquesta is the main entry point for the chat orchestration server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/jmvillota/orquesta/internal/config"
	"github.com/jmvillota/orquesta/internal/convo"
	"github.com/jmvillota/orquesta/internal/health"
	"github.com/jmvillota/orquesta/internal/httpapi"
	"github.com/jmvillota/orquesta/internal/observe"
	"github.com/jmvillota/orquesta/internal/orchestrator"
	"github.com/jmvillota/orquesta/internal/toolgw"
	"github.com/jmvillota/orquesta/pkg/provider/llm"
	"github.com/jmvillota/orquesta/pkg/provider/llm/anyllm"
	"github.com/jmvillota/orquesta/pkg/provider/llm/gemini"
	"github.com/jmvillota/orquesta/pkg/provider/llm/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "orquesta: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if level > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	slog.Info("orquesta starting",
		"listen_addr", cfg.ListenAddr,
		"provider", cfg.LLMProvider,
		"model", cfg.LLMModel,
		"tool_gateway", cfg.ToolGatewayURL,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "orquesta",
		ServiceVersion: httpapi.Version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Model gateway ─────────────────────────────────────────────────────────
	reg := llm.NewRegistry()
	registerBuiltinProviders(reg)

	gateway, err := reg.Create(ctx, cfg.LLMProvider, llm.Settings{
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		BaseURL: cfg.LLMBaseURL,
		Timeout: cfg.RequestTimeout,
	})
	if err != nil {
		slog.Error("failed to create model gateway", "provider", cfg.LLMProvider, "err", err,
			"known_providers", reg.Names())
		return 1
	}
	defer func() {
		if closer, ok := gateway.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				slog.Warn("model gateway close error", "err", err)
			}
		}
	}()

	// ── Collaborators ─────────────────────────────────────────────────────────
	store := convo.New()
	tools := toolgw.New(cfg.ToolGatewayURL,
		toolgw.WithTimeout(cfg.RequestTimeout),
		toolgw.WithLogger(logger),
	)

	orch, err := orchestrator.New(gateway, tools, store,
		orchestrator.WithMaxToolIterations(cfg.MaxToolIterations),
		orchestrator.WithProviderName(cfg.LLMProvider),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithLogger(logger),
	)
	if err != nil {
		slog.Error("failed to create orchestrator", "err", err)
		return 1
	}

	// A gateway outage here degrades the catalog to empty, it never blocks boot.
	orch.Init(ctx)

	// ── HTTP server ───────────────────────────────────────────────────────────
	checks := health.New(health.ToolGatewayChecker(tools))
	router := httpapi.New(orch, checks).Router(metrics)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server ready", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Periodic eviction of conversations idle past the retention window.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.EvictionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := store.EvictOlderThan(cfg.ConversationRetention); n > 0 {
					metrics.ActiveConversations.Add(gctx, int64(-n))
					slog.Info("evicted idle conversations", "count", n, "remaining", store.Len())
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires all built-in model gateway factories into
// reg. The provider key matches the LLM_PROVIDER setting.
func registerBuiltinProviders(reg *llm.Registry) {
	reg.Register("gemini", func(ctx context.Context, s llm.Settings) (llm.Gateway, error) {
		return gemini.New(ctx, s.APIKey, s.Model)
	})

	reg.Register("openai", func(_ context.Context, s llm.Settings) (llm.Gateway, error) {
		var opts []openai.Option
		if s.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(s.BaseURL))
		}
		if s.Timeout > 0 {
			opts = append(opts, openai.WithTimeout(s.Timeout))
		}
		return openai.New(s.APIKey, s.Model, opts...)
	})

	// The remaining backends ride the any-llm multiplexer: optional APIKey
	// plus optional BaseURL, same pattern for each.
	for _, backend := range []string{"anthropic", "deepseek", "mistral", "groq"} {
		backend := backend
		reg.Register(backend, func(_ context.Context, s llm.Settings) (llm.Gateway, error) {
			var opts []anyllmlib.Option
			if s.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(s.APIKey))
			}
			if s.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(s.BaseURL))
			}
			return anyllm.New(backend, s.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.Register("ollama", func(_ context.Context, s llm.Settings) (llm.Gateway, error) {
		var opts []anyllmlib.Option
		if s.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(s.BaseURL))
		}
		return anyllm.New("ollama", s.Model, opts...)
	})
}
