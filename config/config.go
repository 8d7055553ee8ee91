package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "dev"
	EnvProduction  = "production"
)

type Config struct {
	ServerPort  int
	Environment string
	Database    DatabaseConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	MQ          MQConfig
	Storage     StorageConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

// AuthConfig holds token signing and credential hashing parameters.
type AuthConfig struct {
	JWTSecret    string
	SessionTTL   time.Duration
	LeadTokenTTL time.Duration
	BcryptCost   int
	CookieName   string
}

type RateLimitConfig struct {
	// RegisterPerHour is the number of registration attempts allowed per client IP per hour.
	RegisterPerHour int
}

// MQConfig selects the broker used to ship analytics events.
// An empty Backend disables publishing and events are only logged.
type MQConfig struct {
	Backend          string
	AnalyticsChannel string
	RabbitMQ         RabbitMQConfig
	PubSub           PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	Exchange        string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

// StorageConfig selects the object store that receives exported reports.
type StorageConfig struct {
	Backend      string
	ReportPrefix string
	Minio        MinioConfig
	GCS          GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	ProjectID       string
	Bucket          string
	CredentialsFile string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == EnvDevelopment {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "twelves"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "twelves_db"),
		UseSSL:   getEnvBool("DB_SSL", false),
	}

	authConfig := AuthConfig{
		JWTSecret:    strings.TrimSpace(getEnv("JWT_SECRET", "")),
		SessionTTL:   getEnvDuration("SESSION_TTL", 7*24*time.Hour),
		LeadTokenTTL: getEnvDuration("LEAD_TOKEN_TTL", 30*24*time.Hour),
		BcryptCost:   getEnvInt("BCRYPT_COST", 10),
		CookieName:   getEnv("SESSION_COOKIE", "token"),
	}

	mqConfig := MQConfig{
		Backend:          strings.ToLower(getEnv("MQ_BACKEND", "")),
		AnalyticsChannel: getEnv("ANALYTICS_CHANNEL", "lead-events"),
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			Exchange:        getEnv("RABBITMQ_EXCHANGE", ""),
			QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
	}

	storageConfig := StorageConfig{
		Backend:      strings.ToLower(getEnv("STORAGE_BACKEND", "")),
		ReportPrefix: getEnv("REPORT_PREFIX", "reports/conversion"),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "twelves-reports"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			Bucket:          getEnv("GCS_BUCKET", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
	}

	return Config{
		ServerPort:  getEnvInt("SERVER_PORT", 8080),
		Environment: getEnv("ENV", EnvDevelopment),
		Database:    dbConfig,
		Auth:        authConfig,
		RateLimit: RateLimitConfig{
			RegisterPerHour: getEnvInt("REGISTER_RATE_PER_HOUR", 5),
		},
		MQ:      mqConfig,
		Storage: storageConfig,
	}
}

// IsProduction reports whether cookies must be marked secure.
func (c Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// URL renders the postgres connection string used by both the driver and the migrator.
func (d DatabaseConfig) URL() string {
	sslmode := "disable"
	if d.UseSSL {
		sslmode = "require"
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		User:   url.UserPassword(d.User, d.Password),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := time.ParseDuration(strings.TrimSpace(valueStr))
		if err != nil || value <= 0 {
			return defaultValue
		}
		return value
	}
	return defaultValue
}
