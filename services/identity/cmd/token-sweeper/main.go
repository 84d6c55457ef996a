// Command token-sweeper deletes expired refresh ledger entries once and
// exits. It is meant for cron-style schedulers.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	pkgconfig "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/config"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/database"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/logger"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/config"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/repository/postgres"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	if err := pkgconfig.LoadDotEnv(); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New("identity-token-sweeper", cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, 2*time.Minute)
	defer cancelTimeout()

	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPoolWithLogger(ctx, &pgCfg, log)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	n, err := service.NewSweeper(postgres.NewRefreshLedger(pool), cfg.RefreshSweepInterval, log).Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep refresh tokens: %w", err)
	}

	log.Info("token sweep complete", slog.Int64("deleted", n))
	return nil
}
