package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wanpark/access-server-go/internal/config"
	"github.com/wanpark/access-server-go/internal/database"
	"github.com/wanpark/access-server-go/internal/entitlement"
	"github.com/wanpark/access-server-go/internal/handler"
	"github.com/wanpark/access-server-go/internal/jobs"
	"github.com/wanpark/access-server-go/internal/lock"
	"github.com/wanpark/access-server-go/internal/metrics"
	"github.com/wanpark/access-server-go/internal/redis"
	"github.com/wanpark/access-server-go/internal/repository"
	"github.com/wanpark/access-server-go/internal/service"
	"github.com/wanpark/access-server-go/internal/window"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	loc, _ := cfg.Location()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	m := metrics.New()

	registry, err := lock.LoadRegistry(cfg.LocksFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.LocksFile).Msg("failed to load lock registry")
	}
	var ttlock *lock.TTLockClient
	if cfg.TTLockConfigured() {
		ttlock = lock.NewTTLockClient(lock.TTLockConfig{
			BaseURL:      cfg.TTLockBaseURL,
			ClientID:     cfg.TTLockClientID,
			ClientSecret: cfg.TTLockClientSecret,
			Username:     cfg.TTLockUsername,
			Password:     cfg.TTLockPassword,
		}, nil)
	}
	router, closeLocks, err := lock.Build(registry, lock.BuildOptions{TTLock: ttlock, Metrics: m})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build lock drivers")
	}
	defer func() {
		if err := closeLocks(); err != nil {
			log.Error().Err(err).Msg("failed to release lock drivers")
		}
	}()
	controller := lock.NewRetrying(router, cfg.ActuationAttempts, cfg.ActuationBackoff(), m)
	log.Info().Int("locks", len(registry.Locks())).Msg("lock registry loaded")

	credentialRepo := repository.NewCredentialRepository(db)
	inviteRepo := repository.NewInviteRepository(db)
	entitlementRepo := repository.NewEntitlementRepository(db.DB)
	reservationRepo := repository.NewReservationRepository(db.DB)
	staffRepo := repository.NewStaffRepository(db.DB)

	var vaccinations entitlement.VaccinationSource
	if cfg.VaccinationRequired {
		vaccinations = repository.NewVaccinationRepository(db.DB)
	}

	gate := entitlement.NewGate(entitlementRepo, staffRepo, vaccinations)
	resolver := window.NewResolver(reservationRepo, cfg.CredentialTTL(), loc)

	credentialService := service.NewCredentialService(credentialRepo, registry, gate, resolver, controller, m)
	inviteService := service.NewInviteService(inviteRepo, registry, resolver, controller, m, cfg.InviteBaseURL)

	limiter := service.NewRateLimiter(redisClient)

	r := handler.NewRouter(handler.RouterConfig{
		Credentials:       credentialService,
		Invites:           inviteService,
		Limiter:           limiter,
		LookupLimiter:     limiter.FailOpen(),
		Metrics:           m,
		JWTSecret:         cfg.JWTSecret,
		FacilityTokenHash: cfg.FacilityTokenHash,
		VerifyLimitPerMin: cfg.VerifyRateLimitPerMin,
		IsProduction:      isProduction,
		Ping:              db.Ping,
	})

	cleanupJob := jobs.NewCleanupJob(credentialRepo, inviteRepo, config.CleanupRetention, config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerRequestTimeout + config.ServerReadTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Bool("production", isProduction).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
