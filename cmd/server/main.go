package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pharmacare/internal/cache"
	"pharmacare/internal/config"
	"pharmacare/internal/httpapi"
	"pharmacare/internal/metrics"
	"pharmacare/internal/service"
	"pharmacare/internal/store/memory"
	"pharmacare/internal/summary"
)

func main() {
	cfg := config.Load()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	loc, _ := cfg.Location()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 1)

	var repo *memory.Store
	if cfg.SeedCatalog {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory (seeded catalog)")
	} else {
		repo = memory.New()
		log.Println("repository: in-memory (empty catalog)")
	}

	cacheStore := cache.SummaryCache(cache.NoopSummaryCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSummaryCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
			_ = redisCache.Close()
		} else {
			cacheStore = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	summaries := summary.NewEngine(cacheStore, cfg.SummaryCacheTTL())
	m := metrics.New(prometheus.DefaultRegisterer)
	svc := service.New(repo, summaries, m, service.Options{
		Location:     loc,
		PharmacyName: cfg.PharmacyName,
	})
	api := httpapi.New(svc, httpapi.Options{
		AllowedOrigin:  cfg.AllowedOrigin,
		MetricsEnabled: cfg.MetricsEnabled,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("pharmacy POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateConfig(cfg config.Config) error {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", cfg.Port)
	}
	if _, err := cfg.Location(); err != nil {
		return fmt.Errorf("TIMEZONE %q is not a known time zone: %w", cfg.Timezone, err)
	}
	if cfg.RedisDB < 0 {
		return fmt.Errorf("REDIS_DB must not be negative")
	}
	if cfg.PharmacyName == "" {
		return fmt.Errorf("PHARMACY_NAME must not be empty")
	}
	return nil
}
