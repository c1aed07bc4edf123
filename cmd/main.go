package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/tipstark/internal/api"
	"github.com/rovshanmuradov/tipstark/internal/bot"
	"github.com/rovshanmuradov/tipstark/internal/cache"
	"github.com/rovshanmuradov/tipstark/internal/config"
	"github.com/rovshanmuradov/tipstark/internal/db"
	"github.com/rovshanmuradov/tipstark/internal/directory"
	"github.com/rovshanmuradov/tipstark/internal/ledger"
	"github.com/rovshanmuradov/tipstark/internal/logging"
	"github.com/rovshanmuradov/tipstark/internal/metrics"
	"github.com/rovshanmuradov/tipstark/internal/scheduler"
	"github.com/rovshanmuradov/tipstark/internal/store"
	"github.com/rovshanmuradov/tipstark/internal/store/memory"
	"github.com/rovshanmuradov/tipstark/internal/store/supabase"
	"github.com/rovshanmuradov/tipstark/internal/tipping"
	"github.com/rovshanmuradov/tipstark/internal/wallet"
	"github.com/rovshanmuradov/tipstark/pkg/starknet"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logging.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error("Service stopped with error", zap.Error(err))
		logging.Sync()
		os.Exit(1)
	}
	logging.Info("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.GetLogger()
	m := metrics.New()

	remote, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	snapshot, err := openSnapshot(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer snapshot.Close()

	chain := starknet.NewClient(cfg.StarknetRPCURL,
		starknet.WithTimeout(cfg.RPCTimeout),
		starknet.WithRateLimit(cfg.RPCRateLimit, int(cfg.RPCRateLimit)+1),
		starknet.WithObserver(m.ObserveRPC),
		starknet.WithLogger(logging.Named("starknet")),
	)
	if id, err := chain.ChainID(ctx); err != nil {
		logger.Warn("Could not read chain id from RPC node", zap.Error(err))
	} else if id != cfg.ChainID {
		logger.Warn("RPC node is on a different network", zap.String("node", id), zap.String("configured", cfg.ChainID))
	}

	sched := scheduler.New(logging.Named("scheduler"))
	sched.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sched.Stop(stopCtx)
	}()

	registry := wallet.NewRegistry()
	if cfg.SignerURL != "" {
		registry.Register(wallet.NewSignerConnector(wallet.SignerConfig{
			BaseURL: cfg.SignerURL,
			APIKey:  cfg.SignerAPIKey,
			Timeout: cfg.RPCTimeout,
		}))
	} else {
		logger.Warn("SIGNER_URL is not set, wallets cannot be connected")
	}

	dir := directory.New(directory.Config{
		TipContract:     cfg.TipContract,
		TokenDecimals:   cfg.TokenDecimals,
		RefreshInterval: cfg.TotalsInterval,
		CallTimeout:     cfg.RPCTimeout,
	}, chain, remote, snapshot, sched, logger, m)

	seed, err := directory.LoadSeed(cfg.SeedFile)
	if err != nil {
		return err
	}
	if err := dir.Load(ctx, seed); err != nil {
		logger.Warn("Creator directory loaded without remote profiles", zap.Error(err))
	}
	dir.StartRefresh(ctx)
	defer dir.StopRefresh()

	manager := tipping.NewManager(tipping.Config{
		Wallet: wallet.Config{
			ChainID:         cfg.ChainID,
			TokenAddress:    cfg.TokenAddress,
			TokenDecimals:   cfg.TokenDecimals,
			BalanceInterval: cfg.BalanceInterval,
			RPCTimeout:      cfg.RPCTimeout,
		},
		Ledger: ledger.Config{
			TipContract:        cfg.TipContract,
			TokenAddress:       cfg.TokenAddress,
			TokenDecimals:      cfg.TokenDecimals,
			RequireAllowance:   cfg.RequireAllowance,
			ReconcileInterval:  cfg.ReconcileInterval,
			ReceiptErrorPolicy: ledger.ReceiptErrorPolicy(cfg.ReceiptErrorPolicy),
			MaxReceiptErrors:   cfg.MaxReceiptErrors,
			DedupeWindow:       cfg.DedupeWindow,
			CallTimeout:        cfg.RPCTimeout,
		},
	}, tipping.Deps{
		Chain:     chain,
		Registry:  registry,
		Store:     remote,
		Directory: dir,
		Snapshot:  snapshot,
		Scheduler: sched,
		Logger:    logger,
		Metrics:   m,
	})
	defer manager.CloseAll()

	server := api.New(api.Config{
		Addr:           cfg.HTTPAddr,
		AllowedOrigins: cfg.AllowedOrigins(),
	}, manager, m, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })

	if cfg.TelegramToken != "" {
		b, err := bot.NewBot(cfg.TelegramToken, manager, wallet.DefaultSignerID, logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			go func() {
				<-gctx.Done()
				b.Stop()
			}()
			b.Start()
			return nil
		})
	}

	logger.Info("tipstark started",
		zap.String("store", cfg.StoreBackend),
		zap.Int("creators", dir.Len()),
		zap.Strings("connectors", registry.IDs()),
	)
	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.RemoteStore, func(), error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		s, err := db.Open(ctx, cfg.DatabaseURL, logging.Named("db"))
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		s.CheckSchema(ctx)
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warn("Failed to close database", zap.Error(err))
			}
		}, nil
	case config.StoreSupabase:
		client, err := supabase.NewClient(supabase.Config{URL: cfg.SupabaseURL, APIKey: cfg.SupabaseKey})
		if err != nil {
			return nil, nil, fmt.Errorf("supabase client: %w", err)
		}
		return supabase.NewStore(client, logging.Named("supabase")), func() {}, nil
	default:
		logger.Warn("Using in-memory store, data is lost on restart")
		return memory.New(), func() {}, nil
	}
}

func openSnapshot(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*cache.Snapshot, error) {
	var opts []cache.Option
	if cfg.EncryptionKey != "" {
		opts = append(opts, cache.WithEncryption(cfg.EncryptionKey))
	}
	if cfg.RedisURL == "" {
		return cache.New(cache.NewMemoryBackend(), opts...), nil
	}
	backend, err := cache.NewRedisBackend(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("Using redis snapshot cache")
	return cache.New(backend, opts...), nil
}
