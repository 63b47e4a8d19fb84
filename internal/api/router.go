package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/99minutos/identity-service/internal/api/docs"
	"github.com/99minutos/identity-service/internal/api/handler"
	"github.com/99minutos/identity-service/internal/api/middleware"
	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/ports"
)

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Auth    ports.AuthService
	Users   ports.UserService
	Codec   ports.TokenCodec
	Lookup  middleware.UserLookup
	Ledger  ports.TokenLedger
	Guard   *middleware.RoleGuard
	Health  map[string]handler.Pinger
	Cookies handler.CookieOptions
	Log     zerolog.Logger
	// Report receives unexpected errors. Nil disables reporting.
	Report Reporter
	// Registerer receives the HTTP request metrics. Nil means the default registry.
	Registerer prometheus.Registerer
}

// NewRouter builds and returns the Echo instance with all routes registered.
//
// @title                       Identity Service API
// @version                     1.0
// @description                 Accounts, sessions, email verification and password reset.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log, d.Report)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "identity",
		Subsystem:  "http",
		Registerer: d.Registerer,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))

	// --- Auth routes ---
	auth := handler.NewAuthHandler(d.Auth, d.Cookies)
	g := e.Group("/auth")
	g.POST("/signup", auth.Signup)
	g.POST("/login", auth.Login)
	g.GET("/verify-email/:id/:token", auth.VerifyEmail)
	g.POST("/forgot-password", auth.ForgotPassword)
	g.POST("/reset-password/:id/:token", auth.ResetPassword)
	g.POST("/refresh", auth.Refresh)
	g.POST("/logout", auth.Logout)

	// --- User routes (bearer required) ---
	users := handler.NewUserHandler(d.Users)
	u := e.Group("/users", middleware.Authenticate(d.Codec, d.Lookup, d.Ledger))
	u.GET("/me", users.Me)
	u.PATCH("/:id", users.Update)
	u.DELETE("/:id", users.Delete, d.Guard.RequireRole(domain.RoleAdmin))

	// --- Health probes, metrics and docs (no auth required) ---
	health := handler.NewHealthHandler(d.Health)
	e.GET("/health", health.Liveness)        // liveness  – is the process alive?
	e.GET("/health/ready", health.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

// requestLogger writes one zerolog line per request.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			log.Info().
				Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
