// Package main implements the fleetrag API server.
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
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fleetdesk/fleetrag/engine/domain"
	"github.com/fleetdesk/fleetrag/engine/ingest"
	"github.com/fleetdesk/fleetrag/engine/kb"
	"github.com/fleetdesk/fleetrag/engine/rag"
	"github.com/fleetdesk/fleetrag/pkg/config"
	"github.com/fleetdesk/fleetrag/pkg/fn"
	"github.com/fleetdesk/fleetrag/pkg/metrics"
	"github.com/fleetdesk/fleetrag/pkg/mid"
	"github.com/fleetdesk/fleetrag/pkg/ollama"
	"github.com/fleetdesk/fleetrag/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "fleetrag.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func ollamaConfig(cfg *config.Config) ollama.Config {
	return ollama.Config{
		BaseURL:     cfg.Ollama.URL,
		EmbedModel:  cfg.Ollama.EmbedModel,
		ChatModel:   cfg.Ollama.ChatModel,
		Timeout:     cfg.Ollama.Timeout,
		Temperature: cfg.Ollama.Temperature,
		Limiter:     resilience.LimiterOpts{Rate: cfg.Ollama.Rate, Burst: cfg.Ollama.Burst},
		Breaker:     resilience.BreakerOpts{FailThreshold: cfg.Ollama.FailThreshold, Timeout: 30 * time.Second},
		Retry: fn.RetryOpts{
			MaxAttempts: cfg.Ollama.Retries,
			InitialWait: 200 * time.Millisecond,
			MaxWait:     5 * time.Second,
			Jitter:      true,
		},
	}
}

// sources returns where each domain reads its records from.
type sources struct {
	orders   func(context.Context) ([]byte, error)
	vehicles func(context.Context) ([]byte, error)
}

func fileSources(cfg *config.Config) sources {
	return sources{
		orders:   ingest.FileSource(cfg.Data.OrdersPath),
		vehicles: ingest.FileSource(cfg.Data.VehiclesPath),
	}
}

// buildDomains wires one engine, store and ingestion pipeline per domain.
func buildDomains(cfg *config.Config, src sources, embed ingestEmbedder, gen rag.Generator, reg *metrics.Registry, logger *slog.Logger) (map[string]domainService, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	opts := rag.Options{TopK: cfg.Index.TopK, MaxMatches: cfg.Index.MaxMatches, Now: time.Now}
	deps := ingest.Deps{Embedder: embed, Logger: logger}
	retry := fn.RetryOpts{MaxAttempts: 2, InitialWait: 500 * time.Millisecond, MaxWait: 2 * time.Second, Retryable: ollama.Retryable}

	orders := rag.New(rag.OrderDomain(loc), &kb.Store[domain.Order]{}, embed, gen, opts, reg, logger)
	orderBuild := ingest.Builder(ingest.Config[domain.Order]{
		Domain:    orders.Domain(),
		Dim:       cfg.Index.Dimension,
		ChunkSize: cfg.Index.ChunkSize,
		Workers:   cfg.Index.Workers,
		Retry:     retry,
		Validate:  domain.ValidateOrder,
	}, deps, src.orders)

	vehicles := rag.New(rag.VehicleDomain(), &kb.Store[domain.Vehicle]{}, embed, gen, opts, reg, logger)
	vehicleBuild := ingest.Builder(ingest.Config[domain.Vehicle]{
		Domain:    vehicles.Domain(),
		Dim:       cfg.Index.Dimension,
		ChunkSize: cfg.Index.ChunkSize,
		Workers:   cfg.Index.Workers,
		Retry:     retry,
		Validate:  domain.ValidateVehicle,
	}, deps, src.vehicles)

	return map[string]domainService{
		orders.Domain():   newService(orders, orderBuild, reg, logger),
		vehicles.Domain(): newService(vehicles, vehicleBuild, reg, logger),
	}, nil
}

// ingestEmbedder is what both the dispatcher and ingestion need.
type ingestEmbedder interface {
	rag.Embedder
	ingest.Embedder
}

// checkModels warns when a configured model is not pulled on the Ollama
// server. It never blocks startup.
func checkModels(ctx context.Context, client *ollama.Client, cfg *config.Config, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	models, err := client.Models(ctx)
	if err != nil {
		logger.Warn("ollama unreachable at startup", "url", cfg.Ollama.URL, "err", err)
		return
	}
	for _, want := range missingModels(models, cfg.Ollama.EmbedModel, cfg.Ollama.ChatModel) {
		logger.Warn("ollama model not available", "model", want)
	}
}

// missingModels returns the wanted models absent from have. A wanted name
// without a tag matches any tag of that model.
func missingModels(have []string, want ...string) []string {
	var missing []string
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w || (!strings.Contains(w, ":") && strings.HasPrefix(h, w+":")) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, w)
		}
	}
	return missing
}

// newHandler assembles routes and middleware.
func newHandler(a *api, cfg *config.Config, reg *metrics.Registry, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	a.routes(mux)
	if cfg.Metrics.Port == "" {
		mux.Handle("GET /metrics", reg.Handler())
	}
	return mid.Chain(mux,
		mid.Recover(logger),
		mid.RequestID(),
		mid.Logger(logger),
		mid.Metrics(reg),
		mid.CORS(cfg.Server.CORSOrigin),
		mid.MaxBody(maxBodyBytes),
		mid.OTel("fleetrag-api"),
	)
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()

	// --- Ollama (embeddings + answers) ---
	client := ollama.New(ollamaConfig(cfg), logger)

	// --- Domains ---
	domains, err := buildDomains(cfg, fileSources(cfg), client, client, reg, logger)
	if err != nil {
		return err
	}

	ref := &refresher{domains: domains, subject: cfg.NATS.RefreshedSubject, log: logger}
	a := &api{domains: domains, refresher: ref, gen: client, breaker: client.BreakerState, log: logger}

	// --- NATS (optional refresh trigger and query responder) ---
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("fleetrag-api"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
		ref.nc = nc
		sub, err := ref.subscribe(cfg.NATS.RefreshSubject)
		if err != nil {
			return fmt.Errorf("nats subscribe %s: %w", cfg.NATS.RefreshSubject, err)
		}
		defer sub.Unsubscribe()
		logger.Info("listening for refresh requests", "subject", cfg.NATS.RefreshSubject)

		if cfg.NATS.QuerySubject != "" {
			qsub, err := serveQueries(nc, cfg.NATS.QuerySubject, domains, a)
			if err != nil {
				return fmt.Errorf("nats subscribe %s: %w", cfg.NATS.QuerySubject, err)
			}
			defer qsub.Unsubscribe()
			logger.Info("answering queries", "subject", cfg.NATS.QuerySubject)
		}
	}

	// Queries answer "not loaded" until the first build completes.
	go checkModels(ctx, client, cfg, logger)
	go ref.all(ctx)

	// --- Metrics ---
	if cfg.Metrics.Port != "" {
		go func() {
			if err := reg.Serve(ctx, ":"+cfg.Metrics.Port, logger); err != nil {
				logger.Error("metrics server failed", "err", err)
			}
		}()
	}

	// --- HTTP server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newHandler(a, cfg, reg, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
