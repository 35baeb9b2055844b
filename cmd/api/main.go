package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go/rpc"

	"github.com/leafsii/blinks-backend/internal/actions"
	"github.com/leafsii/blinks-backend/internal/api"
	"github.com/leafsii/blinks-backend/internal/config"
	"github.com/leafsii/blinks-backend/internal/jobs"
	"github.com/leafsii/blinks-backend/internal/lending"
	"github.com/leafsii/blinks-backend/internal/listings"
	"github.com/leafsii/blinks-backend/internal/log"
	"github.com/leafsii/blinks-backend/internal/marketplace"
	"github.com/leafsii/blinks-backend/internal/metrics"
	"github.com/leafsii/blinks-backend/internal/onchain"
	"github.com/leafsii/blinks-backend/internal/registrar"
	"github.com/leafsii/blinks-backend/internal/store"
	"github.com/leafsii/blinks-backend/internal/upstream"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := log.NewSugar(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting blinks API server",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"network", cfg.Solana.Network,
	)

	// Setup metrics
	metricsObj, metricsHandler, err := metrics.Setup("blinks-api")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	// Collection cache is opt-in; without a TTL every purchase reads Tensor directly
	var cache *store.Cache
	var collectionCache marketplace.CollectionCache
	if cfg.CacheEnabled() {
		cache = store.NewCache(cfg.Cache.RedisAddr, cfg.Cache.CollectionTTL, logger, metricsObj)
		defer cache.Close()
		collectionCache = cache
		logger.Infow("Collection cache enabled",
			"ttl", cfg.Cache.CollectionTTL,
			"in_memory", cache.IsInMemoryMode(),
		)
	}

	chainClient := onchain.NewClient(cfg.Solana.RPCURL, onchain.ClientOptions{
		Commitment: rpc.CommitmentType(cfg.Solana.Commitment),
		Logger:     logger,
		Metrics:    metricsObj,
	})

	lendingCfg, err := cfg.Lending.Parse()
	if err != nil {
		logger.Fatalw("Invalid lending config", "error", err)
	}
	lendingAdapter := lending.NewAdapter(chainClient, lendingCfg, logger)

	registrarClient := registrar.NewClient(registrar.Options{
		BaseURL: cfg.Registrar.BaseURL,
		TLD:     cfg.Registrar.TLD,
		Logger:  logger,
		Metrics: metricsObj,
	})

	tensorClient := marketplace.NewClient(marketplace.Options{
		APIURL:  cfg.Marketplace.APIURL,
		APIKey:  cfg.Marketplace.APIKey,
		Cache:   collectionCache,
		Logger:  logger,
		Metrics: metricsObj,
	})

	listingStore := listings.NewStore(cfg.Marketplace.ListingsPath)
	if snap, err := listingStore.Load(); err != nil {
		// lookups re-read the file, so a fixed file is picked up without a restart
		logger.Warnw("Listings snapshot unavailable", "path", listingStore.Path(), "error", err)
	} else {
		logger.Infow("Listings snapshot loaded", "path", listingStore.Path(), "entries", len(snap.Entries()))
	}

	snapshotHealth := upstream.NewTracker("listings_snapshot")
	health := upstream.NewRegistry()
	health.Register(chainClient.Health())
	health.Register(registrarClient.Health())
	health.Register(tensorClient.Health())
	health.Register(snapshotHealth)

	// Create context for background services
	jobsCtx, jobsCancel := context.WithCancel(context.Background())
	defer jobsCancel()

	if cfg.Security.ProbeInterval > 0 {
		prober := jobs.NewProber(logger, jobs.ProberConfig{Interval: cfg.Security.ProbeInterval},
			jobs.Probe{
				Tracker: chainClient.Health(),
				Check: func(ctx context.Context) error {
					_, err := chainClient.LatestBlockhash(ctx)
					return err
				},
				SelfReporting: true,
			},
			jobs.Probe{
				Tracker: snapshotHealth,
				Check: func(ctx context.Context) error {
					_, err := listingStore.Load()
					return err
				},
			},
		)
		go func() {
			if err := prober.Start(jobsCtx); err != nil && err != context.Canceled {
				logger.Errorw("Upstream prober error", "error", err)
			}
		}()
	}

	descriptors := actions.NewDescriptors(cfg.PublicURL, cfg.Actions.IconURL, registrarClient.TLD())
	resolver := actions.NewResolver(actions.Dependencies{
		Lending:     lendingAdapter,
		Registrar:   registrarClient,
		Marketplace: tensorClient,
		Listings:    listingStore,
		Chain:       chainClient,
		Descriptors: descriptors,
		Logger:      logger,
	})

	// Setup API handler and middleware
	var cacheProbe api.CacheProbe
	if cache != nil {
		cacheProbe = cache
	}
	handler := api.NewHandler(resolver, descriptors, health, cacheProbe, logger, metricsObj)
	middleware := api.NewMiddleware(logger, metricsObj)

	router := handler.Routes(middleware, api.RouteOptions{
		CORSOrigins:    cfg.Security.CORSAllowedOrigins,
		RateLimitRPM:   cfg.Security.RateLimitRPM,
		RequestTimeout: cfg.Security.RequestTimeout,
		MetricsHandler: metricsHandler,
	})

	// Log configured CORS origins for easier debugging in dev
	logger.Infow("CORS configured for ops routes", "allowed_origins", cfg.Security.CORSAllowedOrigins)

	// Setup HTTP server
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Security.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("API server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatalw("Server startup failed", "error", err)
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}

		logger.Infow("Server stopped")
	}
}
