package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"devicewatch/internal/cache"
	"devicewatch/internal/config"
	"devicewatch/internal/httpapi"
	"devicewatch/internal/openfda"
	"devicewatch/internal/profile"
	"devicewatch/internal/summarize"
	"devicewatch/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "devicewatch.yaml", "Path to config file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Tracing.Enabled {
		shutdown, err := telemetry.Setup(ctx, cfg.Tracing.Endpoint, "devicewatch")
		if err != nil {
			log.Fatalf("tracing setup failed: %v", err)
		}
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			_ = shutdown(flushCtx)
		}()
	}

	retriever := openfda.NewRetriever(openfda.RetrieverConfig{
		BaseURL:    cfg.OpenFDA.BaseURL,
		APIKey:     cfg.OpenFDA.APIKey,
		RateDelay:  cfg.OpenFDA.RateDelay(),
		MaxRecords: cfg.OpenFDA.MaxRecords,
		HTTPClient: &http.Client{Timeout: cfg.OpenFDA.Timeout()},
	})
	pipeline := profile.NewPipeline(retriever, profile.PipelineConfig{
		MaxRecordsPerSource: cfg.OpenFDA.MaxRecords,
		LookbackMonths:      cfg.OpenFDA.LookbackMonths,
	})

	opts := httpapi.Options{MaxRecords: cfg.OpenFDA.MaxRecords}
	if cfg.Cache.Enabled {
		store, err := cache.Open(cfg.Cache.Path, cfg.Cache.TTL())
		if err != nil {
			log.Fatalf("open cache: %v", err)
		}
		defer store.Close()
		opts.Cache = store
	}
	if cfg.LLM.Enabled {
		caller, err := summarize.NewAnthropicCallerFromEnv()
		if err != nil {
			log.Fatalf("llm setup failed: %v", err)
		}
		opts.Summarizer = summarize.NewSummarizer(caller)
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: httpapi.NewServer(pipeline, retriever, opts),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("devicewatch server listening addr=%s cache=%t llm=%t", cfg.Server.Addr, cfg.Cache.Enabled, cfg.LLM.Enabled)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
