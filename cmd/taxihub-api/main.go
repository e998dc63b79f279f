// README: Entry point; loads config, seeds the ledger, wires services and event sinks, starts the HTTP server.
package main

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"taxihub/internal/config"
	"taxihub/internal/events"
	httptransport "taxihub/internal/http"
	"taxihub/internal/ids"
	"taxihub/internal/infra"
	"taxihub/internal/modules/ledger"
	"taxihub/internal/modules/matching"
	"taxihub/internal/modules/pricing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := infra.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("taxihub-api stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	seed, err := ledger.LoadSeedFile(cfg.Seed.File)
	if err != nil {
		return err
	}
	store := ledger.NewStore()
	if err := store.Load(seed, time.Now()); err != nil {
		return err
	}

	randomSeed := cfg.RandomSeed
	if randomSeed == 0 {
		randomSeed = uint64(time.Now().UnixNano())
	}
	// Separate streams keep fares independent of how many drivers were scored.
	matchRNG := rand.New(rand.NewPCG(randomSeed, 1))
	fareRNG := rand.New(rand.NewPCG(randomSeed, 2))

	pricingSvc := pricing.NewService(pricing.Rate{
		MinFare:  cfg.Pricing.FareMin,
		MaxFare:  cfg.Pricing.FareMax,
		Currency: seed.Currency,
	}, fareRNG)
	if err := pricingSvc.Rate().Validate(); err != nil {
		return err
	}
	engine := matching.NewEngine(matchRNG, cfg.Matching.TopN)

	hub := events.NewHub(log)
	go hub.Run(ctx)
	sinks := events.Fanout{hub}

	if cfg.Redis.Addr != "" {
		rdb := infra.NewRedis(cfg.Redis.Addr)
		defer rdb.Close()
		if err := infra.PingRedis(ctx, rdb); err != nil {
			return err
		}
		sinks = append(sinks, events.NewRedisPublisher(rdb, cfg.Redis.Channel))
		log.Info("publishing ledger events to redis", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
	}

	ledgerSvc := ledger.NewService(store, ledger.ServiceDeps{
		IDs:         ids.New(cfg.IDScheme),
		Recommender: engine,
		Pricing:     pricingSvc,
		Publisher:   sinks,
		Logger:      log,
	})
	stats := ledgerSvc.Stats(ctx)
	log.Info("ledger seeded", "drivers", stats.Drivers, "customers", stats.Customers, "rides", stats.Rides, "random_seed", randomSeed)

	server := httptransport.NewServer(httptransport.ServerDeps{
		Addr:   cfg.HTTP.Addr,
		Ledger: ledgerSvc,
		Hub:    hub,
		Logger: log,
	})
	return server.Run(ctx)
}
