package http

import (
	"context"
	"net/http"
	"time"

	"accounts/internal/domain"
	"accounts/internal/netutil"
	obs "accounts/internal/observability/middleware"
	"accounts/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Deps struct {
	Auth     service.AuthService
	Tokens   service.TokenService
	Resets   service.ResetService
	Accounts service.AccountService

	// Ready backs /readyz; nil means always ready.
	Ready func(ctx context.Context) error
	// Metrics serves /metrics; nil falls back to the default registry.
	Metrics http.Handler

	CORSOrigins []string
	TrustProxy  bool
	// AuthRateLimit caps /auth requests per client IP per minute; 0 disables it.
	AuthRateLimit int
}

func NewRouter(d Deps) http.Handler {
	h := &handler{
		auth:       d.Auth,
		tokens:     d.Tokens,
		resets:     d.Resets,
		accounts:   d.Accounts,
		trustProxy: d.TrustProxy,
	}

	r := chi.NewRouter()
	if d.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Recoverer)
	r.Use(obs.WithRequestAndTrace)
	r.Use(obs.WithMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id", "X-Trace-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				writeError(w, r, domain.ErrStoreUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	metricsHandler := d.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	authn := Authenticate(d.Tokens, d.Accounts)

	r.Route("/auth", func(r chi.Router) {
		if d.AuthRateLimit > 0 {
			r.Use(httprate.Limit(d.AuthRateLimit, time.Minute,
				httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
					return netutil.ClientIP(r, d.TrustProxy), nil
				}),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate_limited", Message: "too many requests"})
				}),
			))
		}
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Post("/refresh", h.refresh)
		r.Post("/forgot-password", h.forgotPassword)
		r.Post("/reset-password", h.resetPassword)
		r.Post("/logout", h.logout)
		r.With(authn).Get("/me", h.me)
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(authn)
		r.With(RequireRole(domain.RoleAdmin, domain.RoleModerator)).Get("/", h.listAccounts)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getAccount)
			r.Patch("/", h.updateAccount)
			r.Post("/password", h.changePassword)

			r.Group(func(r chi.Router) {
				r.Use(RequireRole(domain.RoleAdmin))
				r.Post("/activate", h.activate)
				r.Post("/deactivate", h.deactivate)
				r.Post("/unlock", h.unlock)
				r.Put("/role", h.setRole)
				r.Delete("/", h.deleteAccount)
			})
		})
	})

	return r
}
