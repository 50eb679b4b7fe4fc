// Command driftkv runs one node of the replicated key-value store.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/driftkv/driftkv/internal/algorithm"
	"github.com/driftkv/driftkv/internal/client"
	"github.com/driftkv/driftkv/internal/config"
	"github.com/driftkv/driftkv/internal/handler"
	"github.com/driftkv/driftkv/internal/health"
	"github.com/driftkv/driftkv/internal/metrics"
	"github.com/driftkv/driftkv/internal/server"
	"github.com/driftkv/driftkv/internal/service"
	"github.com/driftkv/driftkv/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	nodeID := cfg.NodeID()
	logger.Info("Starting driftkv node",
		zap.String("node_id", nodeID),
		zap.Int("replication_factor", cfg.Replication.Factor),
		zap.Int("write_quorum", cfg.Replication.WriteQuorum),
		zap.Int("read_quorum", cfg.Replication.ReadQuorum))

	localStore, err := store.NewFileStore(cfg.Storage.DataDir, nodeID, logger)
	if err != nil {
		logger.Fatal("Failed to open local store", zap.Error(err))
	}
	defer localStore.Close()

	hintStore, err := newHintStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open hint store", zap.Error(err))
	}
	defer hintStore.Close()

	idemStore, err := newIdempotencyStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open idempotency store", zap.Error(err))
	}
	defer idemStore.Close()

	nodes := client.NewHTTPNodeClient(cfg.Replication.RPCTimeout)
	rings := service.NewRingManager(nodeID, cfg.Ring.VirtualNodes, logger)
	handoff := service.NewHandoffService(hintStore, nodes, cfg.Handoff, logger)
	coordinator := service.NewCoordinator(rings, localStore, nodes, handoff, cfg.Replication, logger)
	rebalancer := service.NewRebalanceService(localStore, nodes, nodeID, logger)
	idempotency := service.NewIdempotencyService(idemStore, cfg.Idempotency.TTL, logger)
	antiEntropy := service.NewAntiEntropyService(rings, localStore, nodes, handoff, cfg.AntiEntropy, logger)

	m := metrics.NewMetrics()

	rings.SetJoinHook(func(joined string, ring *algorithm.Ring) {
		m.SetRingSize(ring.Size())
		rebalancer.HandleJoin(context.Background(), joined, ring)
	})
	rings.SetLeaveHook(func(left string, ring *algorithm.Ring) {
		m.SetRingSize(ring.Size())
		handoff.ClearForNode(context.Background(), left)
	})

	var gossip *service.GossipService
	if cfg.Gossip.Enabled {
		gossip, err = service.NewGossipService(rings, cfg.Gossip, logger)
		if err != nil {
			logger.Fatal("Failed to start gossip", zap.Error(err))
		}
	}

	antiEntropy.Start()

	healthHandler := health.NewHandler(logger)
	healthHandler.Register("local_store", func(ctx context.Context) error {
		_, err := localStore.AllMeta(ctx)
		return err
	})
	healthHandler.Register("idempotency_store", idemStore.Ping)

	srv := server.New(cfg.Server, cfg.RateLimit, server.Handlers{
		KV:       handler.NewKVHandler(coordinator, idempotency, m, logger),
		Admin:    handler.NewAdminHandler(rings, logger),
		Internal: handler.NewInternalHandler(localStore, m, logger),
		Health:   healthHandler,
	}, m, logger)

	var metricsServer *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, logger)
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("Server failed", zap.Error(err))
	case sig := <-sigCh:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	antiEntropy.Stop()
	if gossip != nil {
		if err := gossip.Shutdown(); err != nil {
			logger.Warn("Gossip shutdown failed", zap.Error(err))
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown failed", zap.Error(err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	logger.Info("Node stopped", zap.String("node_id", nodeID))
}

func newHintStore(cfg *config.Config, logger *zap.Logger) (store.HintStore, error) {
	if cfg.Handoff.Backend == "postgres" {
		logger.Info("Using postgres hint store", zap.String("host", cfg.Database.Host))
		return store.NewPostgresHintStore(context.Background(),
			cfg.Database.Host, cfg.Database.Port, cfg.Database.Database,
			cfg.Database.User, cfg.Database.Password, cfg.Database.MaxConnections)
	}
	return store.NewMemoryHintStore(), nil
}

func newIdempotencyStore(cfg *config.Config, logger *zap.Logger) (store.IdempotencyStore, error) {
	if cfg.Redis.Enabled {
		logger.Info("Using redis idempotency store", zap.String("host", cfg.Redis.Host))
		return store.NewRedisIdempotencyStore(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	}
	return store.NewMemoryIdempotencyStore(), nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
