// API server entry point: wires postgres, redis, kafka, and the decision
// engine behind the HTTP surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/PriorityCraft/internal/application/prioritization"
	"github.com/turtacn/PriorityCraft/internal/config"
	"github.com/turtacn/PriorityCraft/internal/domain/weights"
	"github.com/turtacn/PriorityCraft/internal/enhancement"
	"github.com/turtacn/PriorityCraft/internal/infrastructure/database/postgres"
	"github.com/turtacn/PriorityCraft/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/PriorityCraft/internal/infrastructure/database/redis"
	"github.com/turtacn/PriorityCraft/internal/infrastructure/itemstore"
	"github.com/turtacn/PriorityCraft/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/prometheus"
	httpserver "github.com/turtacn/PriorityCraft/internal/interfaces/http"
	"github.com/turtacn/PriorityCraft/internal/interfaces/http/handlers"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}
	logging.SetDefault(logger)

	logger.Info("starting apiserver",
		logging.Int("port", cfg.Server.Port),
		logging.String("mode", cfg.Server.Mode),
	)

	if _, statErr := os.Stat(configPath); statErr == nil {
		config.Watch(configPath, func(next *config.Config) {
			logger.Info("configuration file changed; most settings apply on restart",
				logging.String("path", configPath),
				logging.String("log_level", next.Log.Level),
				logging.Bool("enhancement_enabled", next.Enhancement.Enabled),
			)
		})
	}

	// ── Storage ───────────────────────────────────────────────────────────────
	pg, err := postgres.NewConnection(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer pg.Close()
	if err := pg.RunMigrations(); err != nil {
		return err
	}

	weightsRepo := repositories.NewWeightVectorRepo(pg.DB(), logger)
	criterionRepo := repositories.NewCriterionRepo(pg.DB(), logger)
	runRepo := repositories.NewRunRepo(pg.DB(), logger)

	redisClient, err := redis.NewClient(cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	scoreCache := redis.NewScoreCache(redisClient, logger,
		redis.WithKeyPrefix(cfg.Redis.KeyPrefix),
		redis.WithTTL(cfg.Engine.CacheTTL),
	)

	// ── Messaging ─────────────────────────────────────────────────────────────
	if tm, err := kafka.NewTopicManager(cfg.Kafka.Brokers, logger); err != nil {
		logger.Warn("kafka topic manager unavailable, topics must pre-exist", logging.Err(err))
	} else {
		if err := tm.EnsureTopics(context.Background(), kafka.DefaultTopics()); err != nil {
			logger.Warn("failed to ensure kafka topics", logging.Err(err))
		}
		tm.Close()
	}
	publisher, err := kafka.NewPublisher(cfg.Kafka, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	// ── Metrics ───────────────────────────────────────────────────────────────
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            "prioritycraft",
		Subsystem:            "decision",
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, logger)
	if err != nil {
		return err
	}
	metrics := prometheus.NewDecisionMetrics(collector)

	// ── Item store ────────────────────────────────────────────────────────────
	store, err := itemstore.NewHTTPStore(itemstore.HTTPStoreConfig{
		BaseURL:     cfg.ItemStore.BaseURL,
		APIKey:      cfg.ItemStore.APIKey,
		HTTPTimeout: cfg.ItemStore.Timeout,
	}, nil, logger)
	if err != nil {
		return err
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	arena := weights.NewArena(cfg.Engine.RequiredApprovals)
	if err := restoreArena(arena, weightsRepo, logger); err != nil {
		return err
	}

	var chain *enhancement.Chain
	if cfg.Enhancement.Enabled {
		tiers := make([]enhancement.Tier, 0, 2)
		if cfg.Enhancement.AdvisorBaseURL != "" {
			tiers = append(tiers, enhancement.NewAdvisorTier(enhancement.AdvisorConfig{
				BaseURL: cfg.Enhancement.AdvisorBaseURL,
				APIKey:  cfg.Enhancement.AdvisorAPIKey,
				Model:   cfg.Enhancement.AdvisorModel,
			}, nil))
		}
		tiers = append(tiers, enhancement.NewHeuristicTier())
		chain = enhancement.NewChain(enhancement.ChainOptions{
			TierTimeout:      cfg.Enhancement.TierTimeout,
			BreakerThreshold: cfg.Enhancement.BreakerThreshold,
			BreakerCooldown:  cfg.Enhancement.BreakerCooldown,
			ConfidenceFloor:  cfg.Enhancement.ConfidenceFloor,
		}, logger, metrics, tiers...)
	}

	orchestrator := prioritization.NewOrchestrator(
		store, criterionRepo, arena, chain, scoreCache, runRepo,
		publisher, metrics, cfg.Engine, cfg.Enhancement, logger,
	)
	weightsService := prioritization.NewWeightsService(
		criterionRepo, arena, weightsRepo, publisher, orchestrator,
		cfg.Engine, logger,
	)
	weightsService.SetObserver(metrics)

	// ── HTTP ──────────────────────────────────────────────────────────────────
	health := handlers.NewHealthHandler(map[string]handlers.CheckFunc{
		"postgres":   pg.HealthCheck,
		"redis":      redisClient.Ping,
		"item_store": store.Ping,
	}, logger)

	router := httpserver.NewRouter(httpserver.RouterConfig{
		Weights:        handlers.NewWeightsHandler(weightsService, logger),
		Calculations:   handlers.NewCalculationHandler(orchestrator, logger),
		Items:          handlers.NewItemsHandler(publisher, logger),
		Health:         health,
		MetricsHandler: collector.Handler(),
		Metrics:        metrics,
		Mode:           cfg.Server.Mode,
		Logger:         logger,
	})
	server := httpserver.NewServer(cfg.Server, router, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutdown signal received", logging.String("signal", sig.String()))
	}

	if err := server.Stop(context.Background()); err != nil {
		logger.Error("http server shutdown failed", logging.Err(err))
	}
	logger.Info("apiserver stopped")
	return nil
}

// loadConfig reads the YAML file when present, otherwise falls back to
// PCRAFT_* environment variables.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err == nil {
		return config.Load(path)
	}
	fmt.Fprintf(os.Stderr, "config file %s not found, using environment\n", path)
	return config.LoadFromEnv()
}

// restoreArena rebuilds the in-memory weight arena from the repository so
// approved vectors survive restarts.  Vectors come back newest first; they
// restore in any order because Restore keys on version.
func restoreArena(arena *weights.Arena, repo *repositories.WeightVectorRepo, logger logging.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	vectors, err := repo.ListVectors(ctx, 500)
	if err != nil {
		return err
	}
	for _, wv := range vectors {
		approvals, err := repo.ListApprovals(ctx, wv.ID)
		if err != nil {
			return err
		}
		if err := arena.Restore(wv, approvals); err != nil {
			return err
		}
	}
	if len(vectors) > 0 {
		logger.Info("weight arena restored",
			logging.Int("vectors", len(vectors)),
			logging.Int("latest_version", arena.LatestVersion()),
		)
	}
	return nil
}
