package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Stripe       StripeConfig
	Settlement   SettlementConfig
	Payouts      PayoutsConfig
	Bookings     BookingsConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"EXPERTRAIT_APP_ENV" required:"true"`
	Port         string `envconfig:"EXPERTRAIT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"EXPERTRAIT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"EXPERTRAIT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"EXPERTRAIT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"EXPERTRAIT_DB_DSN"`
	Driver string `envconfig:"EXPERTRAIT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"EXPERTRAIT_DB_HOST"`
	LegacyPort     int    `envconfig:"EXPERTRAIT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"EXPERTRAIT_DB_USER"`
	LegacyPassword string `envconfig:"EXPERTRAIT_DB_PASSWORD"`
	LegacyName     string `envconfig:"EXPERTRAIT_DB_NAME"`
	LegacySSLMode  string `envconfig:"EXPERTRAIT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"EXPERTRAIT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EXPERTRAIT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EXPERTRAIT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EXPERTRAIT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"EXPERTRAIT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"EXPERTRAIT_REDIS_ADDR"`
	Password     string        `envconfig:"EXPERTRAIT_REDIS_PASSWORD"`
	DB           int           `envconfig:"EXPERTRAIT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EXPERTRAIT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EXPERTRAIT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EXPERTRAIT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EXPERTRAIT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EXPERTRAIT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"EXPERTRAIT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"EXPERTRAIT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"EXPERTRAIT_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"EXPERTRAIT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"EXPERTRAIT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"EXPERTRAIT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"EXPERTRAIT_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"EXPERTRAIT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"EXPERTRAIT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	// Catalog events are produced by the catalog service; bookings are
	// ingested from its booking_created events.
	CatalogTopic        string `envconfig:"EXPERTRAIT_PUBSUB_CATALOG_TOPIC" required:"true"`
	CatalogSubscription string `envconfig:"EXPERTRAIT_PUBSUB_CATALOG_SUBSCRIPTION" required:"true"`

	// Domain events are our own outbox stream.
	DomainTopic        string `envconfig:"EXPERTRAIT_PUBSUB_DOMAIN_TOPIC" default:"et-domain-events"`
	DomainSubscription string `envconfig:"EXPERTRAIT_PUBSUB_DOMAIN_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"EXPERTRAIT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"EXPERTRAIT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"EXPERTRAIT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	APIKey string `envconfig:"EXPERTRAIT_STRIPE_API_KEY"`
	Secret string `envconfig:"EXPERTRAIT_STRIPE_SECRET"`
	Env    string `envconfig:"EXPERTRAIT_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SettlementConfig struct {
	// FeePercent is the platform fee withheld from each settlement,
	// expressed in percent. Zero credits the full booking price.
	FeePercent float64 `envconfig:"EXPERTRAIT_SETTLEMENT_FEE_PERCENT" default:"0"`
}

type PayoutsConfig struct {
	// SubmitTimeout bounds the processor call when submitting a payout.
	SubmitTimeout time.Duration `envconfig:"EXPERTRAIT_PAYOUT_SUBMIT_TIMEOUT" default:"10s"`
	// AccountCheckTimeout bounds the live payouts_enabled lookup.
	AccountCheckTimeout time.Duration `envconfig:"EXPERTRAIT_PAYOUT_ACCOUNT_CHECK_TIMEOUT" default:"5s"`
}

type RateLimitConfig struct {
	Window    time.Duration `envconfig:"EXPERTRAIT_RATE_LIMIT_WINDOW" default:"1m"`
	IPLimit   int           `envconfig:"EXPERTRAIT_RATE_LIMIT_IP" default:"120"`
	UserLimit int           `envconfig:"EXPERTRAIT_RATE_LIMIT_USER" default:"60"`
}

type BookingsConfig struct {
	// MaxCheckInDistanceMeters rejects check-ins recorded farther than
	// this from the booking's service address. Zero disables the gate.
	MaxCheckInDistanceMeters float64 `envconfig:"EXPERTRAIT_BOOKINGS_MAX_CHECKIN_DISTANCE_METERS" default:"0"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
