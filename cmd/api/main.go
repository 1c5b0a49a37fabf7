package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"dealgate/account"
	"dealgate/bulk"
	"dealgate/config"
	"dealgate/db"
	"dealgate/distribution"
	"dealgate/funnel"
	"dealgate/ledger"
	"dealgate/listing"
	"dealgate/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		slog.Error("bootstrap database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	accountRepo := account.NewRepository(pool)
	accountSvc := account.NewService(accountRepo, cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenExpireHours)*time.Hour)

	ledgerSvc := ledger.NewService(pool, nil)

	listingRepo := listing.NewRepository(pool)
	listingSvc := listing.NewService(pool, listingRepo, nil, listing.NewDealRecorder(pool))

	distributionSvc := distribution.NewService(pool, distribution.NewRepository(pool), accountRepo)

	executor := bulk.NewExecutor(ledgerSvc, listingSvc).WithFanOut(cfg.Bulk.FanOut)

	server := &Server{
		accounts:      accountSvc,
		listings:      listingSvc,
		distributions: distributionSvc,
		entries:       ledgerSvc,
		ledgerReads:   ledger.NewReader(pool),
		funnels:       funnel.New(pool),
		executor:      executor,
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	slog.Info("api listening", "addr", addr)
	if err := http.ListenAndServe(addr, server.Handler()); err != nil {
		slog.Error("serve", "error", err)
		os.Exit(1)
	}
}
