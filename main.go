package main

import (
	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/config"
	"auction-engine/internal/lifecycle"
	"auction-engine/internal/notify"
	"auction-engine/internal/repository"
	"auction-engine/internal/server"
	"auction-engine/utils"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "auction-engine",
		Usage: "time-bounded competitive bidding service",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the lifecycle clock",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "create the postgres schema",
				Action: migrate,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		utils.Fatal("auction-engine stopped", map[string]any{"error": err.Error()})
	}
}

func serve(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	utils.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepo(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	notifier, closeNotifier, err := openNotifier(cfg)
	if err != nil {
		return err
	}
	defer closeNotifier()

	policy, err := policyFrom(cfg)
	if err != nil {
		return err
	}

	clock := lifecycle.NewClock(repo, notifier)
	biddingSvc := bidding.NewBiddingService(repo, bidding.WithPolicy(policy), bidding.WithClock(clock))
	querySvc := bidding.NewQueryService(repo, bidding.WithClock(clock))

	router := server.SetupRouter(biddingSvc, querySvc, server.Options{
		JWTSecret: cfg.JWTSecret,
		BidRate:   cfg.BidRate,
		BidBurst:  cfg.BidBurst,
	})

	go clock.Run(ctx, cfg.SweepInterval)

	srv := &http.Server{Addr: cfg.Addr(), Handler: router}
	errCh := make(chan error, 1)
	go func() {
		utils.Info("starting auction server", map[string]any{"addr": cfg.Addr(), "store": cfg.Store, "notifier": cfg.Notifier})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	utils.Info("shutting down auction server", nil)
	return srv.Shutdown(shutdownCtx)
}

func migrate(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Store != config.StorePostgres {
		return fmt.Errorf("migrate: store %q has no schema", cfg.Store)
	}

	repo, err := repository.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer repo.Close()

	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()
	if err := repo.Migrate(ctx); err != nil {
		return err
	}
	utils.Info("auction schema is up to date", nil)
	return nil
}

func openRepo(ctx context.Context, cfg config.Config) (repository.AuctionDB, func(), error) {
	if cfg.Store != config.StorePostgres {
		return repository.NewMemoryRepo(), func() {}, nil
	}

	repo, err := repository.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		_ = repo.Close()
		return nil, nil, err
	}
	return repo, func() { _ = repo.Close() }, nil
}

func openNotifier(cfg config.Config) (notify.Notifier, func(), error) {
	if cfg.Notifier != config.NotifierAMQP {
		return notify.NewLogNotifier(), func() {}, nil
	}

	n, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		return nil, nil, err
	}
	return n, func() { _ = n.Close() }, nil
}

func policyFrom(cfg config.Config) (bidding.Policy, error) {
	pct, err := cfg.IncrementPercent()
	if err != nil {
		return bidding.Policy{}, err
	}
	policy := bidding.Policy{
		MinIncrement:        cfg.MinIncrement,
		MinIncrementPercent: pct,
		PreventSelfOutbid:   cfg.PreventSelfOutbid,
		MaxCommitAttempts:   cfg.MaxCommitAttempts,
		MaxBid:              cfg.MaxBid,
	}
	if err := policy.Validate(); err != nil {
		return bidding.Policy{}, err
	}
	return policy, nil
}
