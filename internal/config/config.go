package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPPort string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Ingestion tuning. EnrichmentBatchSize is clamped to [50, 500] so a
	// single run stays within external API quotas.
	EnrichmentBatchSize       int
	RetentionDays             int
	IngestIntervalHours       int
	RunTimeoutMinutes         int
	SourceWorkers             int
	ProviderMinIntervalMillis int

	Providers ProviderConfig
}

// ProviderConfig carries base URLs and credentials for external data providers.
// An empty key means the corresponding adapter degrades to a no-op with a
// single startup warning.
type ProviderConfig struct {
	ListingsFeedURL string
	ListingsFeedKey string

	EPCBaseURL   string
	EPCAuthToken string

	LandRegistryBaseURL string
	LandRegistryKey     string

	CompaniesHouseBaseURL string
	CompaniesHouseKey     string

	HMORegisterBaseURL string

	GeocoderBaseURL string
	GeocoderKey     string

	LicensingBaseURL string
	LicensingKey     string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "hmoscout"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		HTTPPort: getenv("HTTP_PORT", "8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "hmoscout"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		EnrichmentBatchSize:       clampInt(getenvInt("ENRICHMENT_BATCH_SIZE", 200), 50, 500),
		RetentionDays:             getenvInt("RETENTION_DAYS", 7),
		IngestIntervalHours:       getenvInt("INGEST_INTERVAL_HOURS", 6),
		RunTimeoutMinutes:         getenvInt("RUN_TIMEOUT_MINUTES", 30),
		SourceWorkers:             getenvInt("SOURCE_WORKERS", 4),
		ProviderMinIntervalMillis: getenvInt("PROVIDER_MIN_INTERVAL_MS", 1100),

		Providers: ProviderConfig{
			ListingsFeedURL: getenv("LISTINGS_FEED_URL", ""),
			ListingsFeedKey: strings.TrimSpace(getenv("LISTINGS_FEED_KEY", "")),

			EPCBaseURL:   getenv("EPC_BASE_URL", "https://epc.opendatacommunities.org/api/v1"),
			EPCAuthToken: strings.TrimSpace(getenv("EPC_AUTH_TOKEN", "")),

			LandRegistryBaseURL: getenv("LAND_REGISTRY_BASE_URL", ""),
			LandRegistryKey:     strings.TrimSpace(getenv("LAND_REGISTRY_KEY", "")),

			CompaniesHouseBaseURL: getenv("COMPANIES_HOUSE_BASE_URL", "https://api.company-information.service.gov.uk"),
			CompaniesHouseKey:     strings.TrimSpace(getenv("COMPANIES_HOUSE_KEY", "")),

			HMORegisterBaseURL: getenv("HMO_REGISTER_BASE_URL", ""),

			GeocoderBaseURL: getenv("GEOCODER_BASE_URL", ""),
			GeocoderKey:     strings.TrimSpace(getenv("GEOCODER_KEY", "")),

			LicensingBaseURL: getenv("LICENSING_BASE_URL", ""),
			LicensingKey:     strings.TrimSpace(getenv("LICENSING_KEY", "")),
		},
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
