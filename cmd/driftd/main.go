package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"github.com/driftaudio/driftd/internal/api"
	"github.com/driftaudio/driftd/internal/cache"
	"github.com/driftaudio/driftd/internal/cleanup"
	"github.com/driftaudio/driftd/internal/config"
	"github.com/driftaudio/driftd/internal/fetch"
	"github.com/driftaudio/driftd/internal/metrics"
	"github.com/driftaudio/driftd/internal/pipeline"
	"github.com/driftaudio/driftd/internal/render"
	"github.com/driftaudio/driftd/internal/scheduler"
	"github.com/driftaudio/driftd/internal/search"
	"github.com/driftaudio/driftd/internal/shutdown"
	"github.com/driftaudio/driftd/internal/store"
)

func main() {
	cfgFile := flag.String("config", "", "config file path (YAML); defaults and DRIFTD_* env vars apply without one")
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Println("Starting driftd media processing service")
	log.Printf("Listen: %s", cfg.ListenAddr)
	log.Printf("Workers: %d (queue capacity %d)", cfg.Workers, cfg.QueueCapacity)
	log.Printf("Cache: %d entries, TTL %v", cfg.CacheMaxEntries, cfg.CacheTTL)

	for _, dir := range []string{cfg.CacheDir(), cfg.WorkDir(), cfg.OutputDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("Failed to create data directory %s: %v", dir, err)
		}
	}

	// Job store
	var jobs store.JobStore
	if cfg.DBPath != "" {
		log.Printf("Using SQLite job store: %s", cfg.DBPath)
		sqliteStore, sErr := store.NewSQLiteStore(cfg.DBPath)
		if sErr != nil {
			log.Fatalf("Failed to open SQLite store: %v", sErr)
		}
		jobs = sqliteStore
	} else {
		log.Println("WARNING: Using in-memory job store (jobs will not survive restarts)")
		jobs = store.NewMemoryStore()
	}

	m := metrics.New()

	mediaCache := cache.New(cache.Config{
		MaxEntries: cfg.CacheMaxEntries,
		TTL:        cfg.CacheTTL,
	}, m)

	fetcher := fetch.NewYTDLPFetcher(cfg.YTDLPBinary)
	renderer := render.NewFFmpegRenderer(cfg.FFmpegBinary, cfg.FFprobeBinary)
	searcher := search.NewYTDLPSearcher(cfg.YTDLPBinary)

	executor := pipeline.NewExecutor(pipeline.Config{
		CacheDir:      cfg.CacheDir(),
		WorkDir:       cfg.WorkDir(),
		OutputDir:     cfg.OutputDir(),
		FetchTimeout:  cfg.FetchTimeout,
		RenderTimeout: cfg.RenderTimeout,
	}, jobs, mediaCache, fetcher, renderer, m)

	sched := scheduler.New(scheduler.Config{
		Workers:       cfg.Workers,
		QueueCapacity: cfg.QueueCapacity,
	}, jobs, executor, m)
	sched.Start()

	sweeper := cleanup.NewSweeper(cleanup.Config{
		Enabled:   true,
		Retention: cfg.JobRetention,
		Interval:  cfg.SweepInterval,
	}, jobs)
	sweeper.Start()

	// Public API
	handler := api.NewHandler(sched, jobs, mediaCache, searcher)
	router := mux.NewRouter()

	limiter := api.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	router.Use(limiter.Middleware(api.IPKeyFunc))
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			limiter.Prune(time.Hour)
		}
	}()
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // downloads can be large
		IdleTimeout:  120 * time.Second,
	}

	// Metrics on a separate listener
	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", m.Handler()).Methods("GET")
	metricsSrv := &http.Server{
		Addr:         cfg.MetricsAddr,
		Handler:      metricsRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Metrics server listening on %s", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	go func() {
		log.Printf("API server listening on %s", cfg.ListenAddr)
		log.Println("Endpoints:")
		log.Println("  POST /process")
		log.Println("  POST /preview")
		log.Println("  GET  /status/{id}")
		log.Println("  GET  /download/{id}")
		log.Println("  GET  /jobs")
		log.Println("  GET  /cache-status")
		log.Println("  GET  /search?query=<text>")
		log.Println("  GET  /health")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server error: %v", err)
		}
	}()

	// Teardown order: stop accepting requests, drain workers, then close the
	// store everything else writes to.
	mgr := shutdown.New(30 * time.Second)
	mgr.Register("job store", shutdown.CloseResource(jobs))
	mgr.Register("retention sweeper", shutdown.StopComponent(sweeper.Stop))
	mgr.Register("scheduler", shutdown.StopComponent(sched.Stop))
	mgr.Register("metrics server", shutdown.StopHTTPServer(metricsSrv))
	mgr.Register("api server", shutdown.StopHTTPServer(srv))
	mgr.Wait()
}
