// Background worker: consumes item-change events and drives incremental
// recalculations without going through the HTTP surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

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
	"github.com/turtacn/PriorityCraft/pkg/errors"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

const defaultConfigPath = "configs/config.yaml"

// itemChangeLockTTL bounds how long one replica holds the recalculation
// lock; runs extend it themselves while still scoring.
const itemChangeLockTTL = 10 * time.Minute

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
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
	logger = logger.Named("worker")

	logger.Info("starting worker",
		logging.Strings("brokers", cfg.Kafka.Brokers),
		logging.String("group_id", cfg.Kafka.GroupID),
	)

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
	publisher, err := kafka.NewPublisher(cfg.Kafka, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	// ── Metrics ───────────────────────────────────────────────────────────────
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            "prioritycraft",
		Subsystem:            "worker",
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

	// ── Consumers ─────────────────────────────────────────────────────────────
	// One consumer per concurrency slot; they share the group, so Kafka
	// spreads partitions across them.
	handler := itemsChangedHandler(orchestrator, redisClient, cfg, logger)
	consumers := make([]*kafka.Consumer, 0, cfg.Worker.Concurrency)
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		consumer, err := kafka.NewConsumer(cfg.Kafka, kafka.TopicItemsChanged, handler, logger,
			kafka.WithRetryPolicy(cfg.Worker.MaxRetries, cfg.Worker.RetryBackoff),
			kafka.WithDeadLetter(publisher))
		if err != nil {
			return err
		}
		consumers = append(consumers, consumer)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, consumer := range consumers {
		consumer := consumer
		g.Go(func() error { return consumer.Run(gctx) })
	}

	errCh := make(chan error, 1)
	go func() { errCh <- g.Wait() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutdown signal received", logging.String("signal", sig.String()))
	}

	var processed, dropped int64
	for _, consumer := range consumers {
		if err := consumer.Close(); err != nil {
			logger.Error("consumer close failed", logging.Err(err))
		}
		processed += consumer.Processed()
		dropped += consumer.Dropped()
	}
	cancel()
	<-errCh

	logger.Info("worker stopped",
		logging.Int64("processed", processed),
		logging.Int64("dropped", dropped),
	)
	return nil
}

// itemsChangedHandler turns one item-change event into an incremental
// calculation run.  A redis lock keeps replicas from racing: whichever
// worker wins the lock runs the recalculation, the rest commit and move on.
func itemsChangedHandler(
	orchestrator *prioritization.Orchestrator,
	redisClient *redis.Client,
	cfg *config.Config,
	logger logging.Logger,
) kafka.EventHandler {
	return func(ctx context.Context, env *kafka.EventEnvelope) error {
		var payload kafka.ItemsChangedPayload
		if err := env.DecodePayload(&payload); err != nil {
			return err
		}
		if len(payload.ItemIDs) == 0 {
			logger.Warn("item-change event carried no item IDs",
				logging.String("event_id", env.EventID))
			return nil
		}

		lock := redis.NewRunLock(redisClient, logger, "item-change", itemChangeLockTTL)
		held, err := lock.TryAcquire(ctx)
		if err != nil {
			return err
		}
		if !held {
			logger.Info("item-change recalculation already running elsewhere",
				logging.String("event_id", env.EventID))
			return nil
		}

		status, err := orchestrator.StartRun(ctx, decision.CalculationOptions{
			ChangedItemIDs:    payload.ItemIDs,
			Trigger:           decision.TriggerItemChange,
			EnableEnhancement: cfg.Enhancement.Enabled,
		})
		if err != nil {
			// Release immediately; there is no run to wait for.
			if rerr := lock.Release(ctx); rerr != nil {
				logger.Warn("failed to release run lock", logging.Err(rerr))
			}
			if errors.IsCode(err, errors.ErrCodeRunAlreadyActive) {
				logger.Info("skipping item-change event, run already active",
					logging.String("event_id", env.EventID))
				return nil
			}
			return err
		}

		logger.Info("incremental recalculation started",
			logging.String("run_id", status.RunID),
			logging.Int("changed_items", len(payload.ItemIDs)),
			logging.String("source", payload.Source),
		)

		// Hold the lock for the run's lifetime so a burst of change events
		// collapses into sequential runs instead of a conflict storm.
		go func() {
			waitCtx, cancel := context.WithTimeout(context.Background(), itemChangeLockTTL)
			defer cancel()
			defer func() {
				if rerr := lock.Release(waitCtx); rerr != nil {
					logger.Warn("failed to release run lock", logging.Err(rerr))
				}
			}()
			if _, err := orchestrator.Wait(waitCtx, status.RunID); err != nil {
				logger.Warn("incremental run did not complete cleanly",
					logging.String("run_id", status.RunID), logging.Err(err))
			}
		}()
		return nil
	}
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err == nil {
		return config.Load(path)
	}
	fmt.Fprintf(os.Stderr, "config file %s not found, using environment\n", path)
	return config.LoadFromEnv()
}

// restoreArena rebuilds the in-memory weight arena from the repository so
// the worker scores against the same approved versions as the API server.
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
