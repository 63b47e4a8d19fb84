package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/99minutos/identity-service/internal/api"
	"github.com/99minutos/identity-service/internal/api/handler"
	"github.com/99minutos/identity-service/internal/api/middleware"
	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/service"
	mongodb "github.com/99minutos/identity-service/internal/infrastructure/db/mongo"
	redisdb "github.com/99minutos/identity-service/internal/infrastructure/db/redis"
	"github.com/99minutos/identity-service/internal/infrastructure/mail"
	"github.com/99minutos/identity-service/internal/infrastructure/observability"
	"github.com/99minutos/identity-service/internal/infrastructure/queue"
	"github.com/99minutos/identity-service/internal/pkg/config"
	"github.com/99minutos/identity-service/internal/pkg/password"
	"github.com/99minutos/identity-service/internal/pkg/tokens"
	"github.com/99minutos/identity-service/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: cfg.App.Name,
		Env:     cfg.Env,
	})

	flushSentry, err := observability.InitSentry(cfg.Sentry, cfg.Env, cfg.App.Name)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise sentry")
	}
	defer flushSentry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Storage ---
	mongoClient, db, err := mongodb.Connect(ctx, cfg.Mongo, cfg.App.Name)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mongodb")
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(dctx)
	}()

	users := mongodb.NewUserRepository(db)
	ledger := mongodb.NewTokenLedger(db)
	if err := users.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to create user indexes")
	}
	if err := ledger.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to create token indexes")
	}

	rdb, err := redisdb.Connect(ctx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rdb.Close()

	// --- Mail ---
	mailer, err := mail.New(cfg.Mail, cfg.App.Name, logger.Component("mail"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure mailer")
	}
	dispatcher := queue.NewMailDispatcher(cfg.Mail.Workers, cfg.Mail.Timeout, mailer, logger.Component("mail_dispatcher"))
	dispatcher.Start(context.Background())

	// --- Core ---
	allowList, err := cfg.AllowList()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid role allow-lists")
	}
	guard := middleware.NewRoleGuard(allowList)
	allowListSizes(log.Info(), allowList).Msg("role allow-lists loaded")

	codec, err := tokens.NewCodec(tokens.Config{
		Issuer:        cfg.JWT.Issuer,
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		VerifyTTL:     cfg.JWT.VerifyTTL,
		ResetTTL:      cfg.JWT.ResetTTL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure token codec")
	}

	store, err := service.NewCredentialStore(users, password.NewHasher(cfg.Auth.BcryptCost))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build credential store")
	}
	authService := service.NewAuthService(
		store,
		ledger,
		codec,
		redisdb.NewRotationLock(rdb, cfg.Redis.LockTTL, logger.Component("rotation_lock")),
		dispatcher,
		guard,
		service.AuthOptions{
			PublicURL:            cfg.App.PublicURL,
			AutoVerifyPrivileged: cfg.Auth.AutoVerifyPrivileged,
			GenericResetResponse: cfg.Auth.GenericResetResponse,
		},
		logger.Component("auth"),
	)
	userService := service.NewUserService(store, ledger, guard, logger.Component("users"))

	e := api.NewRouter(api.Deps{
		Auth:   authService,
		Users:  userService,
		Codec:  codec,
		Lookup: store,
		Ledger: ledger,
		Guard:  guard,
		Health: map[string]handler.Pinger{
			"mongodb": handler.MongoPinger(db),
			"redis":   handler.RedisPinger(rdb),
		},
		Cookies: handler.CookieOptions{Secure: cfg.Auth.SecureCookies},
		Log:     logger.Component("http"),
		Report:  api.SentryReporter,
	})

	go reloadOnHangup(ctx, guard)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("identity service listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := dispatcher.Stop(sctx); err != nil {
		log.Warn().Err(err).Msg("mail queue not drained")
	}
}

// reloadOnHangup re-reads the role allow-lists from the environment on
// SIGHUP. An invalid configuration keeps the current lists.
func reloadOnHangup(ctx context.Context, guard *middleware.RoleGuard) {
	log := logger.Component("config")
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			_ = godotenv.Overload()
			cfg, err := config.LoadRoles(ctx)
			if err != nil {
				log.Error().Err(err).Msg("allow-list reload failed; keeping current lists")
				continue
			}
			guard.Reload(cfg)
			allowListSizes(log.Info(), cfg).Msg("role allow-lists reloaded")
		}
	}
}

// allowListSizes adds one field per privileged role with the number of
// emails listed for it.
func allowListSizes(ev *zerolog.Event, al *domain.RoleAllowList) *zerolog.Event {
	for _, role := range []domain.Role{
		domain.RoleAdmin, domain.RoleManager, domain.RoleSupervisor,
		domain.RoleModerator, domain.RoleGuide, domain.RoleClient,
	} {
		ev = ev.Int(string(role), al.Size(role))
	}
	return ev
}
