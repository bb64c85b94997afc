package config

// EnvPrefix is handed to envconfig; every field carries its full variable name.
const EnvPrefix = "SALESDESK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLiteDSN = "file:salesdesk.db?_busy_timeout=5000&_txlock=immediate"
)

const (
	EnvAppEnv   = "SALESDESK_APP_ENV"
	EnvPort     = "SALESDESK_APP_PORT"
	EnvLogLevel = "SALESDESK_LOG_LEVEL"

	EnvDBDSN  = "SALESDESK_DB_DSN"
	EnvDBHost = "SALESDESK_DB_HOST"
	EnvDBUser = "SALESDESK_DB_USER"
	EnvDBName = "SALESDESK_DB_NAME"

	EnvRedisURL  = "SALESDESK_REDIS_URL"
	EnvUseSQLite = "SALESDESK_USE_SQLITE"

	EnvIntakeMaxRetries  = "SALESDESK_INTAKE_MAX_RETRIES"
	EnvIntakeStepTimeout = "SALESDESK_INTAKE_STEP_TIMEOUT"
	EnvIntakeHoldTTL     = "SALESDESK_INTAKE_HOLD_TTL"
	EnvPubSubSalesTopic  = "SALESDESK_PUBSUB_SALES_TOPIC"
	EnvPubSubReconTopic  = "SALESDESK_PUBSUB_RECONCILIATION_TOPIC"

	EnvHTTPCORSOrigins     = "SALESDESK_HTTP_CORS_ORIGINS"
	EnvHTTPIntakeRateLimit = "SALESDESK_HTTP_INTAKE_RATE_LIMIT"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
