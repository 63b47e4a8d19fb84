package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/99minutos/identity-service/internal/core/domain"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	App    AppConfig
	JWT    JWTConfig
	Auth   AuthConfig
	Roles  RolesConfig
	Mail   MailConfig
	Sentry SentryConfig
	Mongo  MongoConfig
	Redis  RedisConfig
}

type AppConfig struct {
	Name      string `env:"APP_NAME,       default=identity-service"`
	PublicURL string `env:"APP_PUBLIC_URL, default=http://localhost:8080"`
}

type JWTConfig struct {
	Issuer        string        `env:"JWT_ISSUER,         default=identity-service"`
	AccessSecret  string        `env:"JWT_ACCESS_SECRET"`
	RefreshSecret string        `env:"JWT_REFRESH_SECRET"`
	AccessTTL     time.Duration `env:"JWT_ACCESS_TTL,     default=2h"`
	RefreshTTL    time.Duration `env:"JWT_REFRESH_TTL,    default=168h"`
	VerifyTTL     time.Duration `env:"JWT_VERIFY_TTL,     default=24h"`
	ResetTTL      time.Duration `env:"JWT_RESET_TTL,      default=1h"`
}

type AuthConfig struct {
	BcryptCost           int  `env:"AUTH_BCRYPT_COST,            default=12"`
	AutoVerifyPrivileged bool `env:"AUTH_AUTO_VERIFY_PRIVILEGED, default=true"`
	GenericResetResponse bool `env:"AUTH_GENERIC_RESET_RESPONSE, default=false"`
	SecureCookies        bool `env:"AUTH_SECURE_COOKIES,         default=false"`
}

// RolesConfig holds the comma separated allow-lists for privileged roles.
type RolesConfig struct {
	Admin      []string `env:"ADMIN_EMAILS"`
	Manager    []string `env:"MANAGER_EMAILS"`
	Supervisor []string `env:"SUPERVISOR_EMAILS"`
	Moderator  []string `env:"MODERATOR_EMAILS"`
	Guide      []string `env:"GUIDE_EMAILS"`
	Client     []string `env:"CLIENT_EMAILS"`
}

type MailConfig struct {
	Provider  string        `env:"MAIL_PROVIDER,   default=log"`
	FromEmail string        `env:"MAIL_FROM_EMAIL, default=noreply@example.com"`
	FromName  string        `env:"MAIL_FROM_NAME,  default=Identity Service"`
	Workers   int           `env:"MAIL_WORKERS,    default=4"`
	Timeout   time.Duration `env:"MAIL_TIMEOUT,    default=15s"`

	MailgunDomain string `env:"MAILGUN_DOMAIN"`
	MailgunKey    string `env:"MAILGUN_API_KEY"`
	MailgunAPIURL string `env:"MAILGUN_API_URL"`

	SendGridKey string `env:"SENDGRID_API_KEY"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     string `env:"SMTP_PORT, default=587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
}

type SentryConfig struct {
	DSN        string  `env:"SENTRY_DSN"`
	SampleRate float64 `env:"SENTRY_SAMPLE_RATE, default=1.0"`
}

type MongoConfig struct {
	URI            string        `env:"MONGO_URI,             default=mongodb://localhost:27017"`
	Database       string        `env:"MONGO_DB,              default=identity"`
	ConnectTimeout time.Duration `env:"MONGO_CONNECT_TIMEOUT, default=10s"`
	MaxPoolSize    uint64        `env:"MONGO_MAX_POOL_SIZE,   default=50"`
}

// RedisConfig backs the rotation lock. The pool only needs to cover
// concurrent refresh requests.
type RedisConfig struct {
	Addr        string        `env:"REDIS_ADDR,         default=localhost:6379"`
	Password    string        `env:"REDIS_PASSWORD"`
	DB          int           `env:"REDIS_DB,           default=0"`
	PoolSize    int           `env:"REDIS_POOL_SIZE,    default=10"`
	DialTimeout time.Duration `env:"REDIS_DIAL_TIMEOUT, default=5s"`
	LockTTL     time.Duration `env:"REDIS_LOCK_TTL,     default=5s"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	cfg, err := LoadWith(context.Background(), envconfig.OsLookuper())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}

// LoadWith processes and validates configuration from an arbitrary lookuper.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run safely with.
func (c *Config) Validate() error {
	var errs []error
	if c.JWT.AccessSecret == "" || c.JWT.RefreshSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required"))
	} else if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	for name, ttl := range map[string]time.Duration{
		"JWT_ACCESS_TTL":  c.JWT.AccessTTL,
		"JWT_REFRESH_TTL": c.JWT.RefreshTTL,
		"JWT_VERIFY_TTL":  c.JWT.VerifyTTL,
		"JWT_RESET_TTL":   c.JWT.ResetTTL,
	} {
		if ttl <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		errs = append(errs, errors.New("JWT_ACCESS_TTL must be shorter than JWT_REFRESH_TTL"))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, errors.New("AUTH_BCRYPT_COST must be between 4 and 31"))
	}
	return errors.Join(errs...)
}

// AllowList converts the configured email lists into a validated allow-list.
func (c *Config) AllowList() (*domain.RoleAllowList, error) {
	return domain.NewRoleAllowList(map[domain.Role][]string{
		domain.RoleAdmin:      c.Roles.Admin,
		domain.RoleManager:    c.Roles.Manager,
		domain.RoleSupervisor: c.Roles.Supervisor,
		domain.RoleModerator:  c.Roles.Moderator,
		domain.RoleGuide:      c.Roles.Guide,
		domain.RoleClient:     c.Roles.Client,
	})
}

// LoadRoles re-reads only the allow-list variables. Used for reloads, where
// the rest of the configuration stays as it was at startup.
func LoadRoles(ctx context.Context) (*domain.RoleAllowList, error) {
	return loadRoles(ctx, envconfig.OsLookuper())
}

func loadRoles(ctx context.Context, l envconfig.Lookuper) (*domain.RoleAllowList, error) {
	var c Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &c.Roles, Lookuper: l}); err != nil {
		return nil, err
	}
	return c.AllowList()
}

// IsDevelopment enables pretty logs and the log mailer fallback.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development") || strings.EqualFold(c.Env, "test")
}
