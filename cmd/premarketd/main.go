package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"premarket/config"
	"premarket/core/events"
	"premarket/native/ledger"
	"premarket/native/market"
	"premarket/native/registry"
	"premarket/observability/logging"
	"premarket/rpc"
	"premarket/state"
	"premarket/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	memoryFlag := flag.Bool("memory", false, "DEV ONLY: keep all state in memory instead of the on-disk store")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("PREMARKET_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if env == "" {
		env = cfg.Env
	}
	logger := logging.Setup("premarketd", env, cfg.LogFile)

	var db storage.Database
	if *memoryFlag {
		db = storage.NewMemDB()
	} else {
		path := filepath.Join(cfg.DataDir, "premarket.db")
		leveldb, err := storage.NewLevelDB(path)
		if err != nil {
			logger.Error("Failed to open database", slog.String("path", path), slog.Any("error", err))
			os.Exit(1)
		}
		defer leveldb.Close()
		db = leveldb
	}

	manager := state.NewManager(db)
	store := market.NewStoreState(manager)
	recorder := events.NewRecorder(4096)

	reg := registry.NewEngine()
	reg.SetStorage(manager)
	reg.SetEmitter(recorder)
	reg.SetBasePlatformFeeRate(cfg.BasePlatformFeeBps)
	reg.SetTradeTaxCap(cfg.TradeTaxCapBps)
	if owner, ok, err := cfg.OwnerAddress(); err != nil {
		logger.Error("Failed to decode owner address", slog.Any("error", err))
		os.Exit(1)
	} else if ok {
		reg.SetOwner(owner)
	}

	custody := ledger.NewEngine()
	custody.SetStorage(manager)
	custody.SetEmitter(recorder)
	custody.SetPauses(reg)

	markets := market.NewEngine()
	markets.SetState(store)
	markets.SetRegistry(reg)
	markets.SetLedger(custody)
	markets.SetEmitter(recorder)
	markets.SetPauses(reg)

	delivery := market.NewDeliveryEngine()
	delivery.SetState(store)
	delivery.SetRegistry(reg)
	delivery.SetLedger(custody)
	delivery.SetEmitter(recorder)
	delivery.SetPauses(reg)

	if operator, ok, err := cfg.OperatorAddress(); err != nil {
		logger.Error("Failed to decode operator address", slog.Any("error", err))
		os.Exit(1)
	} else if ok {
		if owner, ownerSet, _ := cfg.OwnerAddress(); ownerSet {
			if err := manager.Transaction(func() error {
				return reg.SetOperator(owner, operator, true)
			}); err != nil {
				logger.Error("Failed to seed operator", slog.Any("error", err))
				os.Exit(1)
			}
		} else {
			logger.Warn("Operator configured without an owner; skipping seed")
		}
	}

	server := rpc.NewServer(rpc.Config{
		State:    manager,
		Store:    store,
		Market:   markets,
		Delivery: delivery,
		Registry: reg,
		Ledger:   custody,
		Events:   recorder,
		Logger:   logger,
	})

	logger.Info("premarketd starting",
		slog.String("rpc", cfg.RPCAddress),
		slog.String("dataDir", cfg.DataDir),
		slog.Bool("memory", *memoryFlag),
	)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server terminated", slog.Any("error", err))
		os.Exit(1)
	}
}
