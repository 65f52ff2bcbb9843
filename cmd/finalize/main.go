// cmd/finalize/main.go
// Finalizes every OPEN race whose start time has passed. Intended to run from
// cron; a failure on one race is logged and the sweep continues.
//
// Usage:
//
//	go run ./cmd/finalize
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/padraicbc/derby/config"
	bundb "github.com/padraicbc/derby/db"
	"github.com/padraicbc/derby/derby"
	"github.com/padraicbc/derby/handlers"
	"github.com/padraicbc/derby/lock"
	applog "github.com/padraicbc/derby/logger"
	"github.com/padraicbc/derby/models"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup completes first.
func run() int {
	cfg := config.Load()
	logger, err := applog.New(cfg.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db := bundb.Setup(cfg)
	defer db.Close()

	opts := []derby.Option{derby.WithLogger(logger)}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		opts = append(opts, derby.WithLocker(lock.NewRedis(rdb, cfg.FinalizeLockTTL, logger)))
	}
	svc := derby.NewService(bundb.NewStore(db), handlers.NewWalletAllowlist(cfg.AdminWallets), opts...)

	if failed := sweep(ctx, svc, logger); failed > 0 {
		return 1
	}
	return 0
}

type finalizer interface {
	ListDue(ctx context.Context) ([]models.Race, error)
	Finalize(ctx context.Context, raceID int64) (*derby.Settlement, error)
}

// sweep finalizes every due race and returns how many failed.
func sweep(ctx context.Context, svc finalizer, logger *zap.Logger) int {
	races, err := svc.ListDue(ctx)
	if err != nil {
		logger.Error("list due races failed", zap.Error(err))
		return 1
	}

	failed := 0
	for _, r := range races {
		res, err := svc.Finalize(ctx, r.RaceID)
		if err != nil {
			failed++
			logger.Error("finalize failed", zap.Int64("race_id", r.RaceID), zap.Error(err))
			continue
		}
		logger.Info("finalize swept",
			zap.Int64("race_id", r.RaceID),
			zap.String("status", string(res.Race.Status)),
			zap.Int("placings", len(res.History)),
		)
	}
	logger.Info("sweep complete", zap.Int("due", len(races)), zap.Int("failed", failed))
	return failed
}
