package routes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/harvestly/harvestly/internal/auth"
	"github.com/harvestly/harvestly/internal/handlers"
	middlewareCustom "github.com/harvestly/harvestly/internal/middleware"
	"github.com/harvestly/harvestly/internal/models"
	pkghttp "github.com/harvestly/harvestly/pkg/http"
)

// HealthChecker reports whether the backing store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RouterConfig carries the settings the router stack needs
type RouterConfig struct {
	Env            string
	AllowedOrigins []string
	RequestTimeout time.Duration
	AuthRateLimit  int
	IPs            *pkghttp.ClientIPResolver
	Logger         *slog.Logger
}

// NewRouter builds the middleware stack and registers every route
func NewRouter(
	cfg RouterConfig,
	userHandler *handlers.UserHandler,
	authHandler *handlers.AuthHandler,
	tokens auth.TokenVerifier,
	users auth.UserLoader,
	health HealthChecker,
) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Env}))
	router.Use(middlewareCustom.CORS(cfg.AllowedOrigins))
	if cfg.Logger != nil {
		router.Use(middlewareCustom.SecureLogger(cfg.Logger))
	}
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.RequestTimeout))

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteNotFound(w, "Route not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	router.Get("/health", Health(health))

	RegisterRoutes(router, userHandler, authHandler, auth.Authenticate(tokens, users),
		middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.AuthRateLimit}, cfg.IPs)

	return router
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	userHandler *handlers.UserHandler,
	authHandler *handlers.AuthHandler,
	authenticate func(http.Handler) http.Handler,
	rateLimitConfig middlewareCustom.RateLimitConfig,
	ips *pkghttp.ClientIPResolver,
) {
	limited := middlewareCustom.RateLimitByIP(rateLimitConfig, ips)

	// Public routes - no authentication required
	router.Group(func(r chi.Router) {
		r.Use(limited)
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/forgot-password", authHandler.ForgotPassword)
		r.Post("/auth/reset-password", authHandler.ResetPassword)
		r.Get("/auth/verify-email/{verificationToken}", authHandler.VerifyEmail)
	})

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(authenticate)

		// Any authenticated user
		r.Get("/auth/me", authHandler.Me)
		r.Post("/auth/logout-all", authHandler.LogoutAll)
		r.Get("/users/{id}", userHandler.GetUser)
		r.Put("/users/{id}", userHandler.UpdateUser)
		r.Put("/users/{id}/password", userHandler.ChangePassword)
		r.Put("/users/{id}/profile-picture", userHandler.UploadProfilePicture)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))
			r.Get("/users", userHandler.ListUsers)
			r.Delete("/users/{id}", userHandler.DeleteUser)
		})
	})
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// Health pings the store with a short deadline
func Health(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if checker != nil {
			if err := checker.HealthCheck(ctx); err != nil {
				pkghttp.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Database: "down"})
				return
			}
		}

		pkghttp.WriteJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Database: "up"})
	}
}
