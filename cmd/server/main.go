package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"op-atlas/internal/citizenship/attestation"
	citizenshipHandler "op-atlas/internal/citizenship/handler"
	citizenshipMetrics "op-atlas/internal/citizenship/metrics"
	citizenshipService "op-atlas/internal/citizenship/service"
	citizenshipStore "op-atlas/internal/citizenship/store"
	"op-atlas/internal/identity/cache"
	identityHandler "op-atlas/internal/identity/handler"
	identityMetrics "op-atlas/internal/identity/metrics"
	"op-atlas/internal/identity/provider"
	identityService "op-atlas/internal/identity/service"
	identityStore "op-atlas/internal/identity/store"
	"op-atlas/internal/identity/token"
	"op-atlas/internal/platform/config"
	"op-atlas/internal/platform/httpserver"
	"op-atlas/internal/platform/logger"
	"op-atlas/internal/platform/middleware"
	"op-atlas/internal/platform/redis"
	"op-atlas/internal/session"
	id "op-atlas/pkg/domain"
	"op-atlas/pkg/email"
	"op-atlas/pkg/platform/audit"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx := context.Background()

	db, pool, err := openDatabases(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database setup failed", "error", err.Error())
		os.Exit(1)
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis setup failed", "error", err.Error())
		os.Exit(1)
	}

	auditor, auditClose := newAuditPublisher(ctx, cfg.Kafka, log)

	sessions := session.NewService(cfg.Server.JWTSigningKey)
	codec := token.NewCodec(cfg.Server.JWTSigningKey, config.VerificationLinkTTL)
	sender := email.LogSender{Logger: log}

	identitySvc := newIdentityService(cfg, db, redisClient, sender, log, auditor)
	citizenshipSvc := newCitizenshipService(cfg, pool, sender, log, auditor)

	router := newRouter(cfg, identitySvc, citizenshipSvc, codec, sessions, log)
	srv := httpserver.New(cfg.Server.Addr, router)

	log.Info("starting op-atlas", "addr", cfg.Server.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err.Error())
	}
	auditClose()
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if pool != nil {
		pool.Close()
	}
	if db != nil {
		_ = db.Close()
	}
}

// openDatabases opens both handles over the same URL: database/sql with
// lib/pq for the identity store, pgxpool for the citizenship store. An unset
// URL means in-memory stores, for local development.
func openDatabases(ctx context.Context, url string) (*sql.DB, *pgxpool.Pool, error) {
	if url == "" {
		return nil, nil, nil
	}
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, nil, err
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, nil, err
	}
	return db, pool, nil
}

func newAuditPublisher(ctx context.Context, cfg config.Kafka, log *slog.Logger) (*audit.Publisher, func()) {
	if len(cfg.Brokers) == 0 {
		return audit.NewPublisher(audit.NewMemorySink(), log), func() {}
	}
	sink, err := audit.NewKafkaSink(ctx, cfg.Brokers, cfg.Topic)
	if err != nil {
		// Audit is log-and-continue by contract; a broken broker must not
		// block startup.
		log.Error("kafka audit sink unavailable, falling back to memory", "error", err.Error())
		return audit.NewPublisher(audit.NewMemorySink(), log), func() {}
	}
	return audit.NewPublisher(sink, log), sink.Close
}

// identityStores is the combined persistence surface the identity engine
// needs; both concrete stores implement it.
type identityStores interface {
	identityStore.IdentityStore
	identityStore.NotificationStore
}

func newIdentityService(cfg config.Config, db *sql.DB, redisClient *redis.Client, sender email.Sender, log *slog.Logger, auditor *audit.Publisher) *identityService.Service {
	var identities identityStores
	if db != nil {
		identities = identityStore.NewPostgres(db)
	} else {
		identities = identityStore.NewMemoryStore()
	}

	gateway := provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.Timeout)
	lookups := cache.NewCaseLookupCache(redisClient, time.Hour)

	return identityService.New(identityService.Config{
		KYCTemplateID: cfg.Provider.KYCTemplateID,
		KYBTemplateID: cfg.Provider.KYBTemplateID,
		InquiryTTL:    config.InquiryTTL,
		BatchCap:      config.ReminderBatchCap,
	}, identities, identities, gateway, sender, log,
		identityService.WithLookupCache(lookups),
		identityService.WithMetrics(identityMetrics.New()),
		identityService.WithAuditPublisher(auditor),
	)
}

func newCitizenshipService(cfg config.Config, pool *pgxpool.Pool, tagger email.ListTagger, log *slog.Logger, auditor *audit.Publisher) *citizenshipService.Service {
	var (
		registrations citizenshipStore.RegistrationStore
		seasons       citizenshipStore.SeasonStore
		evaluations   citizenshipStore.EvaluationStore
		directory     citizenshipService.Directory
	)
	if pool != nil {
		pg := citizenshipStore.NewPostgresStore(pool)
		registrations, seasons, evaluations = pg, pg, pg
		directory = citizenshipStore.NewPostgresDirectory(pool)
	} else {
		mem := citizenshipStore.NewMemoryStore()
		registrations, seasons, evaluations = mem, mem, mem
		directory = emptyDirectory{}
	}

	issuer := attestation.NewClient(cfg.Attestation.BaseURL, cfg.Attestation.APIKey, cfg.Attestation.Timeout)

	return citizenshipService.New(registrations, seasons, evaluations, issuer, directory, log,
		citizenshipService.WithMetrics(citizenshipMetrics.New()),
		citizenshipService.WithAuditPublisher(auditor),
		citizenshipService.WithListTagger(tagger),
	)
}

func newRouter(cfg config.Config, identitySvc *identityService.Service, citizenshipSvc *citizenshipService.Service, codec *token.Codec, sessions *session.Service, log *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Timeout(30 * time.Second))

	identityHandler.New(identitySvc, codec, cfg.Server.CronToken, 30*24*time.Hour, log).Register(r)

	r.Group(func(authed chi.Router) {
		authed.Use(session.RequireSession(sessions, log))
		citizenshipHandler.New(citizenshipSvc, log).Register(authed)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return r
}

// emptyDirectory is the no-database fallback: nobody holds admin rights or
// verified addresses, so only user subjects can resign.
type emptyDirectory struct{}

func (emptyDirectory) IsOrganizationAdmin(context.Context, id.UserID, id.OrganizationID) (bool, error) {
	return false, nil
}

func (emptyDirectory) IsProjectAdmin(context.Context, id.UserID, id.ProjectID) (bool, error) {
	return false, nil
}

func (emptyDirectory) VerifiedAddresses(context.Context, id.UserID) ([]id.GovernanceAddress, error) {
	return nil, nil
}
