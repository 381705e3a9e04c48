package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/freightlane/auth-core/internal/application/login"
	"github.com/freightlane/auth-core/internal/application/notify"
	"github.com/freightlane/auth-core/internal/application/recovery"
	"github.com/freightlane/auth-core/internal/application/registration"
	"github.com/freightlane/auth-core/internal/application/session"
	"github.com/freightlane/auth-core/internal/application/twofactor"
	"github.com/freightlane/auth-core/internal/config"
	"github.com/freightlane/auth-core/internal/metrics"
	"github.com/freightlane/auth-core/internal/transport/http/handler"
	appmiddleware "github.com/freightlane/auth-core/internal/transport/http/middleware"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	if cfg.TrustProxyHeaders {
		// only behind a proxy that overwrites X-Forwarded-For; otherwise clients pick their own rate limit key
		r.Use(chimiddleware.RealIP)
	}
	r.Use(appmiddleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(appmiddleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)

	dispatcher := deps.Notifier
	if dispatcher == nil {
		dispatcher = notify.NewDispatcher(deps.Mailer, deps.Events)
	}
	twoFactorSvc := twofactor.NewService(twofactor.ServiceDeps{
		Store:    deps.Accounts,
		Notifier: dispatcher,
		Now:      deps.Now,
	})
	loginSvc := login.NewService(login.ServiceDeps{
		Store:     deps.Accounts,
		TwoFactor: twoFactorSvc,
		Notifier:  dispatcher,
		Now:       deps.Now,
	})
	registrationSvc := registration.NewService(registration.ServiceDeps{
		Store:    deps.Accounts,
		Notifier: dispatcher,
		BaseURL:  cfg.AppBaseURL,
		Now:      deps.Now,
	})
	recoverySvc := recovery.NewService(recovery.ServiceDeps{
		Store:       deps.Accounts,
		Notifier:    dispatcher,
		FrontendURL: cfg.FrontendURL,
		Now:         deps.Now,
	})
	sessionDeps := session.ServiceDeps{Signer: deps.Signer, Store: deps.Accounts, Now: deps.Now}
	if deps.Denylist != nil {
		sessionDeps.Denylist = deps.Denylist
	}
	sessionSvc := session.NewService(sessionDeps)

	healthH := handler.NewHealthHandler()
	accountH := handler.NewAccountHandler(registrationSvc, sessionSvc)
	sessionH := handler.NewSessionHandler(loginSvc, sessionSvc)
	recoveryH := handler.NewPasswordRecoveryHandler(recoverySvc)
	twoFactorH := handler.NewTwoFactorHandler(twoFactorSvc, loginSvc, sessionSvc)

	r.Get("/health-check/{action}", healthH.Ping)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/auth", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/verify-email", accountH.VerifyEmail)
		r.Group(func(r chi.Router) {
			r.Use(sensitiveRL.Limit)

			r.Post("/register/{kind}", accountH.Register)
			r.Post("/login", sessionH.Login)
			r.Post("/resend-verification", accountH.ResendVerification)
			r.Post("/forgot-password", recoveryH.ForgotPassword)
			r.Post("/reset-password", recoveryH.ResetPassword)
			r.Post("/2fa/verify-backup", twoFactorH.VerifyBackupCode)
		})

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Auth(sessionSvc))

			r.Get("/me", accountH.Me)
			r.Post("/logout", sessionH.Logout)
			r.Post("/2fa/enable", twoFactorH.Enable)
			r.Post("/2fa/disable", twoFactorH.Disable)
		})
	})

	return r
}
