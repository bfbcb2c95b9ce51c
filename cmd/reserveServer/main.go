package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Layr-Labs/proof-of-reserve-go/pkg/config"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/logger"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/persistence"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/persistence/factory"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/reserve"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/scheduler"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/server"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/types"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// demoUserCount is the size of the dataset loaded by --seed-demo-data
const demoUserCount = 8

func main() {
	defaults := config.NewDefaultReserveServerConfig()

	app := &cli.App{
		Name:  "reserve-server",
		Usage: "Proof of Reserve merkle root server",
		Description: `Publishes a merkle root over all user balances and serves inclusion proofs.

This server:
- Rebuilds the merkle tree from the record store once a day (and on SIGHUP)
- Serves the current root and per-user inclusion proofs over HTTP
- Keeps the previous root published when a rebuild fails`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   defaults.Port,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvReservePort},
			},
			&cli.StringFlag{
				Name:    "leaf-tag",
				Value:   defaults.LeafTag,
				Usage:   "Tag for hashing leaves",
				EnvVars: []string{config.EnvReserveLeafTag},
			},
			&cli.StringFlag{
				Name:    "branch-tag",
				Value:   defaults.BranchTag,
				Usage:   "Tag for hashing branches",
				EnvVars: []string{config.EnvReserveBranchTag},
			},
			&cli.BoolFlag{
				Name:    "allow-shared-tag",
				Usage:   "Allow the same tag for leaves and branches",
				EnvVars: []string{config.EnvReserveAllowSharedTag},
			},
			&cli.StringFlag{
				Name:    "persistence-type",
				Value:   defaults.Persistence.Type.String(),
				Usage:   fmt.Sprintf("Record store backend: %s", config.GetSupportedPersistenceTypesString()),
				EnvVars: []string{config.EnvReservePersistenceType},
			},
			&cli.StringFlag{
				Name:    "badger-dir",
				Value:   defaults.Persistence.BadgerDir,
				Usage:   "Data directory for the badger backend",
				EnvVars: []string{config.EnvReserveBadgerDir},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Value:   defaults.Persistence.Redis.Address,
				Usage:   "Redis address (host:port) for the redis backend",
				EnvVars: []string{config.EnvReserveRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvReserveRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				EnvVars: []string{config.EnvReserveRedisDB},
			},
			&cli.StringFlag{
				Name:    "redis-key-prefix",
				Usage:   "Prefix for every Redis key",
				EnvVars: []string{config.EnvReserveRedisKeyPrefix},
			},
			&cli.IntFlag{
				Name:    "rebuild-hour",
				Value:   defaults.RebuildHourUTC,
				Usage:   "Hour of day (UTC) at which the merkle root is rebuilt",
				EnvVars: []string{config.EnvReserveRebuildHour},
			},
			&cli.Float64Flag{
				Name:    "rate-limit",
				Value:   defaults.RateLimit,
				Usage:   "Allowed requests per second",
				EnvVars: []string{config.EnvReserveRateLimit},
			},
			&cli.IntFlag{
				Name:    "rate-burst",
				Value:   defaults.RateBurst,
				Usage:   "Allowed request burst",
				EnvVars: []string{config.EnvReserveRateBurst},
			},
			&cli.BoolFlag{
				Name:    "seed-demo-data",
				Usage:   fmt.Sprintf("Load %d demo users into an empty record store", demoUserCount),
				EnvVars: []string{config.EnvReserveSeedDemoData},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvReserveVerbose},
			},
		},
		Action: runReserveServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runReserveServer(c *cli.Context) error {
	// Create logger
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	cfg := parseReserveConfig(c)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	mt, err := cfg.NewMerkleTree()
	if err != nil {
		return err
	}

	store, err := factory.NewPersistence(cfg.Persistence, l)
	if err != nil {
		return fmt.Errorf("failed to open persistence: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			l.Sugar().Errorw("Failed to close persistence", "error", err)
		}
	}()

	if cfg.SeedDemoData {
		if err := seedDemoData(store, l); err != nil {
			return err
		}
	}

	if latest, err := store.LoadLatestRootSnapshot(); err != nil {
		l.Sugar().Warnw("Failed to load last published root", "error", err)
	} else if latest != nil {
		l.Sugar().Infow("Last published root", "root", latest.RootHash, "version", latest.Version, "built_at", time.Unix(latest.BuiltAt, 0).UTC())
	}

	svc := reserve.NewService(mt, store, l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Build once at startup so the first query does not wait a day
	if _, err := svc.Rebuild(ctx); err != nil {
		l.Sugar().Warnw("Initial merkle build failed, serving without a root until the next rebuild", "error", err)
	}

	sched, err := scheduler.NewScheduler(svc, cfg.RebuildHourUTC, l)
	if err != nil {
		return err
	}
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	srv := server.NewServer(server.Config{
		Port:      cfg.Port,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	}, svc, l)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	if cfg.Verbose {
		l.Sugar().Infow("Reserve Server Configuration",
			"port", cfg.Port,
			"leaf_tag", cfg.LeafTag,
			"branch_tag", cfg.BranchTag,
			"persistence", cfg.Persistence.Type,
			"rebuild_hour_utc", cfg.RebuildHourUTC,
			"rate_limit", cfg.RateLimit,
			"rate_burst", cfg.RateBurst)
	}

	l.Sugar().Infow("Reserve Server running", "port", cfg.Port)
	l.Sugar().Infow("Available endpoints",
		"root", "GET /root",
		"history", "GET /root/history",
		"proof", "GET /proof?userId=<id>",
		"verify", "POST /verify",
		"records", "POST /admin/records",
		"rebuild", "POST /admin/rebuild",
		"health", "GET /health")
	l.Sugar().Info("Press Ctrl+C to stop")

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)

	for sig := range signals {
		if sig == syscall.SIGHUP {
			sched.Trigger("sighup")
			continue
		}
		l.Sugar().Infow("Shutting down", "signal", sig.String())
		break
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		l.Sugar().Errorw("Failed to stop HTTP server", "error", err)
	}

	cancel()
	<-schedDone
	return nil
}

func parseReserveConfig(c *cli.Context) *config.ReserveServerConfig {
	return &config.ReserveServerConfig{
		Port:           c.Int("port"),
		LeafTag:        c.String("leaf-tag"),
		BranchTag:      c.String("branch-tag"),
		AllowSharedTag: c.Bool("allow-shared-tag"),
		Persistence: config.PersistenceConfig{
			Type:      config.PersistenceType(c.String("persistence-type")),
			BadgerDir: c.String("badger-dir"),
			Redis: config.RedisSettings{
				Address:   c.String("redis-address"),
				Password:  c.String("redis-password"),
				DB:        c.Int("redis-db"),
				KeyPrefix: c.String("redis-key-prefix"),
			},
		},
		RebuildHourUTC: c.Int("rebuild-hour"),
		RateLimit:      c.Float64("rate-limit"),
		RateBurst:      c.Int("rate-burst"),
		SeedDemoData:   c.Bool("seed-demo-data"),
		Verbose:        c.Bool("verbose"),
	}
}

// seedDemoData loads users 1..8 with balance id*1111 when the store is empty
func seedDemoData(p persistence.IReservePersistence, l *zap.Logger) error {
	existing, err := p.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}
	if len(existing) > 0 {
		l.Sugar().Infow("Record store not empty, skipping demo data", "records", len(existing))
		return nil
	}

	records := make([]*types.UserRecord, 0, demoUserCount)
	for i := int64(1); i <= demoUserCount; i++ {
		records = append(records, &types.UserRecord{UserID: i, Balance: i * 1111})
	}
	if err := p.SaveRecords(records); err != nil {
		return fmt.Errorf("failed to seed demo data: %w", err)
	}
	l.Sugar().Infow("Seeded demo data", "records", len(records))
	return nil
}
