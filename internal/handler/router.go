package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/wanpark/access-server-go/internal/config"
	"github.com/wanpark/access-server-go/internal/metrics"
	"github.com/wanpark/access-server-go/internal/middleware"
	"github.com/wanpark/access-server-go/internal/service"
)

type RouterConfig struct {
	Credentials       *service.CredentialService
	Invites           *service.InviteService
	Limiter           middleware.Limiter
	Metrics           *metrics.Registry
	JWTSecret         string
	FacilityTokenHash string
	VerifyLimitPerMin int
	IsProduction      bool

	// LookupLimiter throttles the public invite lookup. Nil means Limiter.
	LookupLimiter middleware.Limiter

	// Ping reports storage health. Nil means always healthy.
	Ping func(ctx context.Context) error
}

func NewRouter(cfg RouterConfig) chi.Router {
	credentialHandler := NewCredentialHandler(cfg.Credentials, cfg.Limiter, cfg.VerifyLimitPerMin)
	inviteHandler := NewInviteHandler(cfg.Invites)

	userAuth := middleware.NewJWTAuthMiddleware(cfg.JWTSecret)
	facilityAuth := middleware.NewFacilityAuthMiddleware(cfg.FacilityTokenHash)
	identityLimit := middleware.NewRateLimitMiddleware(cfg.Limiter, config.DefaultRateLimitPerMin, time.Minute, "user", middleware.KeyByIdentity)
	lookupLimiter := cfg.LookupLimiter
	if lookupLimiter == nil {
		lookupLimiter = cfg.Limiter
	}
	ipLimit := middleware.NewRateLimitMiddleware(lookupLimiter, config.DefaultRateLimitPerMin, time.Minute, "ip", middleware.KeyByIP)
	bodyLimit := middleware.NewBodyLimitMiddleware(0)
	securityHeaders := middleware.NewSecurityHeadersMiddleware(cfg.IsProduction)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if cfg.Ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
			defer cancel()
			if err := cfg.Ping(ctx); err != nil {
				log.Error().Err(err).Msg("health check: storage unreachable")
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		writeJSON(w, code, map[string]any{
			"status":    status,
			"timestamp": time.Now().UnixMilli(),
		})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(securityHeaders.Handler)
		r.Use(bodyLimit.Handler)

		r.Group(func(r chi.Router) {
			r.Use(userAuth.Handler)
			r.Use(identityLimit.Handler)

			r.Post("/credentials/issue", credentialHandler.Issue)
			r.Post("/invites/create", inviteHandler.Create)
			r.Post("/invites/redeem", inviteHandler.Redeem)
			r.Post("/invites/revoke", inviteHandler.Revoke)
		})

		r.With(facilityAuth.Handler).Post("/credentials/verify", credentialHandler.Verify)
		r.With(facilityAuth.Handler).Post("/locks/records", credentialHandler.LockRecord)
		r.With(ipLimit.Handler).Get("/invites/{token}", inviteHandler.Lookup)
	})

	return r
}
