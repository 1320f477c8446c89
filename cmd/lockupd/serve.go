package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lockup-ledger/internal/api"
	"lockup-ledger/internal/clock"
	"lockup-ledger/internal/config"
	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/feed"
	"lockup-ledger/internal/lockup"
	"lockup-ledger/internal/observability"
	"lockup-ledger/internal/orchestrator"
	"lockup-ledger/internal/reporting"
	"lockup-ledger/internal/scheduler"
	"lockup-ledger/internal/storage"
	chstore "lockup-ledger/internal/storage/clickhouse"
	"lockup-ledger/internal/storage/memory"
	"lockup-ledger/internal/storage/migrations"
	pgstore "lockup-ledger/internal/storage/postgres"
	"lockup-ledger/internal/token"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var useMemory bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the event feed and scheduled checkpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			if !useMemory && (cfg.Storage.PostgresDSN == "" || cfg.Storage.ClickhouseDSN == "") {
				return errors.New("storage.postgres_dsn and storage.clickhouse_dsn are required (use --use-memory for in-memory storage)")
			}
			return serve(cfg, useMemory, logger)
		},
	}
	cmd.Flags().BoolVar(&useMemory, "use-memory", false, "keep checkpoints and the event journal in memory")
	return cmd
}

type stores struct {
	snapshots storage.SnapshotStore
	events    storage.EventStore
	name      string
	close     func()
}

func openStores(ctx context.Context, cfg *config.Config, useMemory bool, logger *zap.Logger) (*stores, error) {
	if useMemory {
		return &stores{
			snapshots: memory.NewSnapshotStore(),
			events:    memory.NewEventStore(),
			name:      "memory",
			close:     func() {},
		}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrations: %w", err)
	}
	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	logger.Info("storage ready", zap.Strings("postgres_migrations_applied", applied))

	return &stores{
		snapshots: pgstore.NewSnapshotStore(pool),
		events:    chstore.NewEventStore(conn),
		name:      "clickhouse",
		close: func() {
			conn.Close()
			pool.Close()
		},
	}, nil
}

// seedTokens builds the in-memory token ledger from the configured assets
// and grants the reward minter its role.
func seedTokens(cfg *config.Config, minter domain.Address) (*token.MemoryLedger, error) {
	tokens := token.NewMemoryLedger()
	rewardToken := domain.Address(cfg.Reward.Token)
	haveReward := false
	for _, a := range cfg.Assets {
		supply := a.Supply.Int
		if supply.IsNil() {
			supply = sdkmath.ZeroInt()
		}
		id := domain.Address(a.ID)
		if err := tokens.CreateAsset(id, a.Symbol, a.Decimals, domain.Address(a.Holder), supply); err != nil {
			return nil, fmt.Errorf("asset %s: %w", a.ID, err)
		}
		haveReward = haveReward || id == rewardToken
	}
	if !haveReward {
		if err := tokens.CreateAsset(rewardToken, "REWARD", 18, "", sdkmath.ZeroInt()); err != nil {
			return nil, fmt.Errorf("reward asset: %w", err)
		}
	}
	if err := tokens.AddMinter(rewardToken, minter); err != nil {
		return nil, err
	}
	return tokens, nil
}

func serve(cfg *config.Config, useMemory bool, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	defer close(done)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-done:
			return
		}
		select {
		case sig := <-sigCh:
			logger.Error("received second signal, forcing exit", zap.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(cfg.HTTP.ShutdownTimeout + 5*time.Second):
			logger.Error("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	custody, err := cfg.Custody()
	if err != nil {
		return err
	}
	minter, err := cfg.Minter()
	if err != nil {
		return err
	}
	tokens, err := seedTokens(cfg, minter)
	if err != nil {
		return err
	}

	st, err := openStores(ctx, cfg, useMemory, logger)
	if err != nil {
		return err
	}
	defer st.close()

	hubConfig := feed.DefaultHubConfig()
	hubConfig.History = st.events
	hubConfig.Logger = logger
	hub := feed.NewHub(hubConfig)

	genesis := cfg.Clock.Genesis
	if genesis.IsZero() {
		genesis = time.Now()
		logger.Warn("clock.genesis not set, block heights start now")
	}

	sys, err := orchestrator.New(orchestrator.Options{
		Tokens:    tokens,
		Clock:     clock.NewWall(genesis, cfg.Clock.BlockInterval),
		Owner:     domain.Address(cfg.Ledger.Owner),
		Fund:      domain.Address(cfg.Ledger.Fund),
		Custody:   custody,
		Minter:    minter,
		Reward:    cfg.RewardConfig(),
		Snapshots: st.snapshots,
		Events:    st.events,
		StoreName: st.name,
		Metrics:   observability.DefaultMetrics,
		Sinks:     []lockup.EventSink{hub},
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	opened, err := sys.Open(ctx, cfg.PoolSpecs())
	if err != nil {
		return err
	}
	logger.Info("ledger open",
		zap.Bool("restored", opened.Restored),
		zap.Uint64("last_seq", opened.LastEventSeq),
		zap.String("custody", custody.String()),
		zap.String("minter", minter.String()),
	)

	sched := scheduler.New(ctx, sys.Checkpoints, sys.Ledger, observability.DefaultMetrics, logger)
	if err := sched.Register(scheduler.Config{
		CheckpointCron:  config.CronSpec(cfg.Schedule.CheckpointCron),
		PoolMetricsCron: config.CronSpec(cfg.Schedule.PoolMetricsCron),
	}); err != nil {
		return err
	}
	sched.Start()

	srv, err := api.New(api.Options{
		Ledger:      sys.Ledger,
		Emitter:     sys.Emitter,
		Tokens:      tokens,
		Events:      st.events,
		Checkpoints: sys.Checkpoints,
		Reports:     reporting.NewGenerator(sys.Ledger, tokens),
		Feed:        hub,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		logger.Error("http server failed", zap.Error(runErr))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	hub.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	sched.Stop()
	if err := sys.Close(shutdownCtx); err != nil {
		logger.Error("final checkpoint", zap.Error(err))
		runErr = errors.Join(runErr, err)
	}
	logger.Info("shutdown complete")
	return runErr
}
