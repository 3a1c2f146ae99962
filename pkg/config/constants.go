package config

// EnvPrefix is the envconfig prefix for all service configuration.
const EnvPrefix = "expertrait"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv     = "EXPERTRAIT_APP_ENV"
	EnvPort       = "EXPERTRAIT_APP_PORT"
	EnvDBDSN      = "EXPERTRAIT_DB_DSN"
	EnvDBHost     = "EXPERTRAIT_DB_HOST"
	EnvDBUser     = "EXPERTRAIT_DB_USER"
	EnvDBName     = "EXPERTRAIT_DB_NAME"
	EnvRedisURL   = "EXPERTRAIT_REDIS_URL"
	EnvJWTSecret  = "EXPERTRAIT_JWT_SECRET"
	EnvJWTIssuer  = "EXPERTRAIT_JWT_ISSUER"
	EnvJWTExpMins = "EXPERTRAIT_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID       = "EXPERTRAIT_GCP_PROJECT_ID"
	EnvPubSubCatalogTopic = "EXPERTRAIT_PUBSUB_CATALOG_TOPIC"
	EnvPubSubCatalogSub   = "EXPERTRAIT_PUBSUB_CATALOG_SUBSCRIPTION"
	EnvPubSubDomainTopic  = "EXPERTRAIT_PUBSUB_DOMAIN_TOPIC"
	EnvPubSubDomainSub    = "EXPERTRAIT_PUBSUB_DOMAIN_SUBSCRIPTION"
)

// legacyDBEnvVars are the discrete connection vars accepted in place of a DSN.
var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
