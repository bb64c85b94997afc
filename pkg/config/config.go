package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App            AppConfig
	Service        ServiceConfig
	HTTP           HTTPConfig
	DB             DBConfig
	Redis          RedisConfig
	FeatureFlags   FeatureFlagsConfig
	Intake         IntakeConfig
	Reconciliation ReconciliationConfig
	Outbox         OutboxConfig
	GCP            GCPConfig
	PubSub         PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SALESDESK_APP_ENV" required:"true"`
	Port         string `envconfig:"SALESDESK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SALESDESK_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"SALESDESK_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"SALESDESK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SALESDESK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SALESDESK_DB_DSN"`
	Driver string `envconfig:"SALESDESK_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"SALESDESK_DB_HOST"`
	Port     int    `envconfig:"SALESDESK_DB_PORT" default:"5432"`
	User     string `envconfig:"SALESDESK_DB_USER"`
	Password string `envconfig:"SALESDESK_DB_PASSWORD"`
	Name     string `envconfig:"SALESDESK_DB_NAME"`
	SSLMode  string `envconfig:"SALESDESK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SALESDESK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SALESDESK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SALESDESK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SALESDESK_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// LockTimeout caps how long a transaction waits on a row lock held by
	// another writer of the same stock entry or outbox batch.
	LockTimeout   time.Duration `envconfig:"SALESDESK_DB_LOCK_TIMEOUT" default:"5s"`
	SlowQueryWarn time.Duration `envconfig:"SALESDESK_DB_SLOW_QUERY_WARN" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SALESDESK_REDIS_URL"`
	Address      string        `envconfig:"SALESDESK_REDIS_ADDR"`
	Password     string        `envconfig:"SALESDESK_REDIS_PASSWORD"`
	DB           int           `envconfig:"SALESDESK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SALESDESK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SALESDESK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SALESDESK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SALESDESK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SALESDESK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// HTTPConfig tunes the API surface.
type HTTPConfig struct {
	CORSOrigins      []string      `envconfig:"SALESDESK_HTTP_CORS_ORIGINS"`
	IntakeRateLimit  int           `envconfig:"SALESDESK_HTTP_INTAKE_RATE_LIMIT" default:"120"`
	IntakeRateWindow time.Duration `envconfig:"SALESDESK_HTTP_INTAKE_RATE_WINDOW" default:"1m"`
	ReadTimeout      time.Duration `envconfig:"SALESDESK_HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout     time.Duration `envconfig:"SALESDESK_HTTP_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout  time.Duration `envconfig:"SALESDESK_HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SALESDESK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SALESDESK_AUTO_MIGRATE" default:"false"`
}

// IntakeConfig tunes the sale-intake coordinator.
type IntakeConfig struct {
	StepTimeout   time.Duration `envconfig:"SALESDESK_INTAKE_STEP_TIMEOUT" default:"5s"`
	MaxRetries    uint64        `envconfig:"SALESDESK_INTAKE_MAX_RETRIES" default:"4"`
	RetryBase     time.Duration `envconfig:"SALESDESK_INTAKE_RETRY_BASE" default:"25ms"`
	RetryCap      time.Duration `envconfig:"SALESDESK_INTAKE_RETRY_CAP" default:"500ms"`
	JitterPercent uint64        `envconfig:"SALESDESK_INTAKE_JITTER_PERCENT" default:"30"`
	HoldTTL       time.Duration `envconfig:"SALESDESK_INTAKE_HOLD_TTL" default:"10m"`
}

// ReconciliationConfig tunes the pending-stock sweep.
type ReconciliationConfig struct {
	SweepInterval time.Duration `envconfig:"SALESDESK_RECONCILIATION_SWEEP_INTERVAL" default:"5m"`
	BatchSize     int           `envconfig:"SALESDESK_RECONCILIATION_BATCH_SIZE" default:"50"`
	LockTTL       time.Duration `envconfig:"SALESDESK_RECONCILIATION_LOCK_TTL" default:"30s"`
	SettleGrace   time.Duration `envconfig:"SALESDESK_RECONCILIATION_SETTLE_GRACE" default:"15m"`
}

type OutboxConfig struct {
	BatchSize       int           `envconfig:"SALESDESK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS  int           `envconfig:"SALESDESK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts     int           `envconfig:"SALESDESK_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionWindow time.Duration `envconfig:"SALESDESK_OUTBOX_RETENTION" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"SALESDESK_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	SalesTopic string `envconfig:"SALESDESK_PUBSUB_SALES_TOPIC" default:"salesdesk-sale-events"`

	// ReconciliationTopic receives reconciliation events; empty means the sales topic.
	ReconciliationTopic string `envconfig:"SALESDESK_PUBSUB_RECONCILIATION_TOPIC"`
}

// Topics lists the configured topics without duplicates.
func (c PubSubConfig) Topics() []string {
	topics := []string{strings.TrimSpace(c.SalesTopic)}
	if recon := strings.TrimSpace(c.ReconciliationTopic); recon != "" && recon != topics[0] {
		topics = append(topics, recon)
	}
	return topics
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if db.DSN != "" {
		return nil
	}
	if sqlite {
		db.Driver = DriverSQLite
		db.DSN = defaultSQLiteDSN
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
