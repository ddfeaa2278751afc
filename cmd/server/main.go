package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	accesshandler "flowledger/internal/access/handler"
	accessmetrics "flowledger/internal/access/metrics"
	accessservice "flowledger/internal/access/service"
	accessstore "flowledger/internal/access/store"
	"flowledger/internal/audit"
	auditkafka "flowledger/internal/audit/publisher/kafka"
	auditmemory "flowledger/internal/audit/store/memory"
	"flowledger/internal/fees"
	insthandler "flowledger/internal/institution/handler"
	instmetrics "flowledger/internal/institution/metrics"
	instservice "flowledger/internal/institution/service"
	inststore "flowledger/internal/institution/store"
	"flowledger/internal/institution/statscache"
	"flowledger/internal/jwtauth"
	"flowledger/internal/platform/config"
	"flowledger/internal/platform/httpserver"
	"flowledger/internal/platform/logger"
	"flowledger/internal/platform/postgres"
	platformredis "flowledger/internal/platform/redis"
	"flowledger/internal/platform/serial"
	trendhandler "flowledger/internal/trend/handler"
	trendmetrics "flowledger/internal/trend/metrics"
	trendservice "flowledger/internal/trend/service"
	trendstore "flowledger/internal/trend/store"
	httptransport "flowledger/internal/transport/http"
)

// main wires storage, audit fan-out, and the three module services behind
// one HTTP router. Business logic lives in internal services packages.
func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends := make(map[string]httptransport.HealthChecker)

	var (
		reporters accessservice.ReporterStore
		state     accessservice.StateStore
		directory instservice.Directory
		ledger    trendservice.Ledger
	)
	if cfg.DatabaseDSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			log.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		pgState, err := accessstore.NewPostgresState(ctx, pool, cfg.InitialSnapshotFeeWei)
		if err != nil {
			log.Error("seeding access state failed", "error", err)
			os.Exit(1)
		}
		reporters = accessstore.NewPostgresReporters(pool)
		state = pgState
		directory = inststore.NewPostgresDirectory(pool)
		ledger = trendstore.NewPostgresLedger(pool)
		backends["postgres"] = poolHealth{pool: pool}
	} else {
		log.Warn("no database configured, using in-memory storage")
		reporters = accessstore.NewInMemoryReporters()
		state = accessstore.NewInMemoryState(cfg.InitialSnapshotFeeWei)
		directory = inststore.NewInMemoryDirectory()
		ledger = trendstore.NewInMemoryLedger()
	}

	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	var cache *statscache.Cache
	if redisClient != nil {
		defer redisClient.Close()
		cache = statscache.New(redisClient, config.StatsCacheTTL)
		backends["redis"] = redisClient
	}

	// Audit events are enqueued by the services and drained into the store
	// by a background worker; a Kafka sink mirrors them when configured.
	var auditStore audit.Store = auditmemory.New()
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := auditkafka.New(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("kafka unavailable", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		auditStore = audit.NewTee(auditStore, log, kafkaSink)
	}
	inbox := audit.NewInbox(auditStore, 256)
	worker := audit.NewWorker(auditStore, inbox.Events())
	publisher := audit.NewPublisher(inbox)

	var forwarder fees.Forwarder = fees.Noop{}
	if cfg.PaymentChannelURL != "" {
		forwarder = fees.NewHTTPForwarder(cfg.PaymentChannelURL)
	}

	gate := serial.NewGate()

	accessSvc := accessservice.New(cfg.Roles, reporters, state, gate,
		accessservice.WithLogger(log),
		accessservice.WithAuditPublisher(publisher),
		accessservice.WithMetrics(accessmetrics.New()),
	)

	instOpts := []instservice.Option{
		instservice.WithLogger(log),
		instservice.WithAuditPublisher(publisher),
		instservice.WithMetrics(instmetrics.New()),
	}
	if cache != nil {
		instOpts = append(instOpts, instservice.WithStatsCache(cache))
	}
	instSvc := instservice.New(directory, accessSvc, gate, instOpts...)

	trendSvc := trendservice.New(ledger, accessSvc, instSvc, forwarder, gate,
		trendservice.WithLogger(log),
		trendservice.WithAuditPublisher(publisher),
		trendservice.WithMetrics(trendmetrics.New()),
	)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:       log,
		Validator:    jwtauth.NewValidator(cfg.JWTSigningKey),
		Access:       accesshandler.New(accessSvc, log),
		Institutions: insthandler.New(instSvc, log),
		Trend:        trendhandler.New(trendSvc, log),
		Backends:     backends,
	})

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(ctx)
	})
	g.Go(func() error {
		log.Info("starting flowledger", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("flowledger stopped")
}

// poolHealth adapts pgxpool's Ping to the readiness probe contract.
type poolHealth struct {
	pool *pgxpool.Pool
}

func (p poolHealth) Health(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
