// Command server wires high-level dependencies and keeps the process
// lifecycle small. Business logic lives in the internal service packages.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"biobind/internal/audit"
	"biobind/internal/biometric/credential"
	"biobind/internal/biometric/engine"
	"biobind/internal/biometric/extractor"
	"biobind/internal/biometric/handler"
	biometrics "biobind/internal/biometric/metrics"
	"biobind/internal/biometric/models"
	"biobind/internal/biometric/ratelimit"
	"biobind/internal/biometric/service"
	"biobind/internal/biometric/session"
	"biobind/internal/biometric/signature"
	"biobind/internal/events"
	"biobind/internal/platform/config"
	"biobind/internal/platform/httpserver"
	"biobind/internal/platform/logger"
	"biobind/internal/platform/postgres"
	platformredis "biobind/internal/platform/redis"
	httpapi "biobind/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Audit pipeline: publisher feeds a bounded inbox, worker persists.
	auditPub := audit.NewPublisher(log, 1024)
	var auditStore audit.Store = audit.NewMemoryStore()

	db, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	var credStore credential.Store = credential.NewMemoryStore()
	if db != nil {
		defer db.Close()
		credStore = credential.NewPostgresStore(db)
		auditStore = audit.NewPostgresStore(db)
		log.Info("using postgres credential store")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}

	pipelineMetrics := biometrics.New(prometheus.DefaultRegisterer)

	var sessionStore session.Store
	var memorySessions *session.MemoryStore
	var ledger ratelimit.Store
	if redisClient != nil {
		defer redisClient.Close()
		sessionStore = session.NewRedisStore(redisClient.Client)
		ledger = ratelimit.NewRedisStore(redisClient.Client)
		log.Info("using redis session and attempt stores")
	} else {
		memorySessions = session.NewMemoryStore(log,
			session.WithEvictionObserver(pipelineMetrics.SessionsSwept))
		sessionStore = memorySessions
		ledger = ratelimit.NewMemoryStore()
	}

	limiter, err := ratelimit.New(ledger, log,
		ratelimit.WithConfig(ratelimit.Config{
			SoftThreshold: cfg.SoftLockThreshold,
			SoftWindow:    cfg.SoftLockWindow,
			HardThreshold: cfg.HardLockThreshold,
			HardWindow:    cfg.HardLockWindow,
		}),
		ratelimit.WithAuditPublisher(auditPub),
	)
	if err != nil {
		log.Error("limiter setup failed", "error", err)
		os.Exit(1)
	}

	var sink events.Sink = events.NewLogSink(log)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("kafka sink setup failed", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
		log.Info("publishing domain events to kafka", "topic", cfg.KafkaTopic)
	}

	registry := extractor.NewRegistry()
	baseline := extractor.NewBaseline()
	registry.Register(models.ModalityFacial, baseline)
	registry.Register(models.ModalityVoice, baseline)

	svc, err := service.New(
		sessionStore,
		credStore,
		limiter,
		signature.NewEd25519Gate(log, auditPub),
		registry,
		engine.New(cfg.QualityFloor, cfg.FastRejectThreshold),
		log,
		service.WithEventSink(sink),
		service.WithAuditPublisher(auditPub),
		service.WithMetrics(pipelineMetrics),
		service.WithSessionTTL(cfg.SessionTTL),
	)
	if err != nil {
		log.Error("service setup failed", "error", err)
		os.Exit(1)
	}

	router := httpapi.NewRouter(handler.New(svc, log))
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting biobind", "addr", cfg.Addr)
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

	// TTL sweep runs off the request path; redis enforces TTLs natively.
	if memorySessions != nil {
		g.Go(func() error {
			err := memorySessions.Sweep(ctx, cfg.SweepInterval)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		err := audit.NewWorker(auditStore, auditPub.Inbox(), log).Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
