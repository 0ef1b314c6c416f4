package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/sealnote/transfer-service/docs"
	"github.com/sealnote/transfer-service/internal/api/handler"
	"github.com/sealnote/transfer-service/internal/api/middleware"
	"github.com/sealnote/transfer-service/internal/core/domain"
	"github.com/sealnote/transfer-service/internal/core/ports"
	"github.com/sealnote/transfer-service/internal/infrastructure/http/handlers"
)

// Gateway authenticates requests and builds the body-dependent gates.
type Gateway interface {
	middleware.Authenticator
	handler.Gates
}

// Services groups the use cases exposed over HTTP.
type Services struct {
	Accounts  ports.AccountService
	APIKeys   ports.APIKeyService
	Transfers ports.TransferService
	Rotations ports.RotationService
}

// NewRouter builds and returns the Echo instance with all routes registered.
// checks feeds the readiness probe; nil means no external dependencies.
func NewRouter(svc Services, gw Gateway, checks map[string]handlers.Check, log zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(log))
	e.Use(echoprometheus.NewMiddleware("sealnote"))

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(svc.Accounts, gw)
	userHandler := handler.NewUserHandler(svc.Accounts, svc.Rotations, gw)
	keyHandler := handler.NewAPIKeyHandler(svc.APIKeys, gw)
	txHandler := handler.NewTransactionHandler(svc.Transfers, gw)

	authenticated := middleware.Auth(gw)
	userOnly := middleware.RBAC(domain.RoleUser)
	adminOnly := middleware.RBAC(domain.RoleAdmin)

	// --- Auth routes ---
	e.POST("/auth/register", authHandler.Register)
	e.POST("/auth/login", authHandler.Login)

	twoFactor := e.Group("/auth/2fa", authenticated)
	twoFactor.POST("/generate", authHandler.GenerateSecondFactor)
	twoFactor.POST("/confirm", authHandler.ConfirmSecondFactor)

	// --- Account routes ---
	users := e.Group("/users", authenticated)
	users.POST("/unregister", userHandler.Unregister)
	users.POST("/password", userHandler.ChangePassword)

	// --- API keys ---
	keys := e.Group("/api-keys", authenticated, userOnly)
	keys.GET("", keyHandler.List)
	keys.POST("", keyHandler.Create)
	keys.DELETE("/:id", keyHandler.Revoke)

	// --- Transactions ---
	txs := e.Group("/transactions", authenticated)
	txs.POST("", txHandler.Send)
	txs.GET("", txHandler.List)
	txs.POST("/decrypt", txHandler.Decrypt)

	// --- Admin ---
	admin := e.Group("/admin", authenticated, adminOnly)
	admin.GET("/users", userHandler.ListUsers)

	// --- Health probes, metrics and docs (no auth required) ---
	healthHandler := handlers.NewHealthHandler()
	healthDepsHandler := handlers.NewHealthDependenciesHandler(checks)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

// requestLogger writes one access log entry per request through zerolog.
// Only the route template is logged, never the query string.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogStatus:    true,
		LogMethod:    true,
		LogRoutePath: true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= 500 {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("route", v.RoutePath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
