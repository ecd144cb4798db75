package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort   int
	JWTSecret    string
	SecureCookie bool
	CORSOrigins  []string
	Database     DatabaseConfig
	Judge        JudgeConfig
	Redis        RedisConfig
	Storage      StorageConfig
	MQ           MQConfig
	Log          LogConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

// JudgeConfig points at a Judge0-compatible execution service.
type JudgeConfig struct {
	BaseURL         string
	AuthToken       string
	RapidAPIKey     string
	RapidAPIHost    string
	PollInterval    time.Duration
	MaxPollAttempts int
	HTTPTimeout     time.Duration
}

// RedisConfig is optional; an empty Addr disables the user cache.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	UserCacheTTL time.Duration
}

type StorageConfig struct {
	// Backend is one of "minio", "gcs" or empty to disable bundle archiving.
	Backend string
	Minio   MinioConfig
	GCS     GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

type MQConfig struct {
	// Backend is one of "pubsub", "rabbitmq", "kafka" or empty to disable events.
	Backend           string
	SubmissionChannel string
	PubSub            PubSubConfig
	RabbitMQ          RabbitMQConfig
	Kafka             KafkaConfig
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
}

type LogConfig struct {
	Level  string
	Format string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "intprep"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "intprep_db"),
		UseSSL:   getEnvBool("DB_USE_SSL", false),
	}

	judgeConfig := JudgeConfig{
		BaseURL:         strings.TrimRight(getEnv("JUDGE_API_URL", "http://localhost:2358"), "/"),
		AuthToken:       getEnv("JUDGE_AUTH_TOKEN", ""),
		RapidAPIKey:     getEnv("JUDGE_RAPIDAPI_KEY", ""),
		RapidAPIHost:    getEnv("JUDGE_RAPIDAPI_HOST", ""),
		PollInterval:    getEnvDuration("JUDGE_POLL_INTERVAL", time.Second),
		MaxPollAttempts: getEnvInt("JUDGE_POLL_MAX_ATTEMPTS", 30),
		HTTPTimeout:     getEnvDuration("JUDGE_HTTP_TIMEOUT", 10*time.Second),
	}

	redisConfig := RedisConfig{
		Addr:         getEnv("REDIS_ADDR", ""),
		Password:     getEnv("REDIS_PASSWORD", ""),
		DB:           getEnvInt("REDIS_DB", 0),
		UserCacheTTL: getEnvDuration("REDIS_USER_CACHE_TTL", 5*time.Minute),
	}

	storageConfig := StorageConfig{
		Backend: strings.ToLower(getEnv("STORAGE_BACKEND", "")),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "intprep"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
	}

	mqConfig := MQConfig{
		Backend:           strings.ToLower(getEnv("MQ_BACKEND", "")),
		SubmissionChannel: getEnv("MQ_SUBMISSION_CHANNEL", "submissions"),
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH_COUNT", 10),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", nil),
			GroupID: getEnv("KAFKA_GROUP_ID", "intprep-apiserver"),
		},
	}

	return Config{
		ServerPort:   getEnvInt("SERVER_PORT", 8080),
		JWTSecret:    strings.TrimSpace(getEnv("JWT_SECRET", "")),
		SecureCookie: getEnvBool("SECURE_COOKIE", false),
		CORSOrigins:  getEnvList("CORS_ORIGINS", []string{"http://localhost:5173"}),
		Database:     dbConfig,
		Judge:        judgeConfig,
		Redis:        redisConfig,
		Storage:      storageConfig,
		MQ:           mqConfig,
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
	}
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
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(valueStr)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := time.ParseDuration(strings.TrimSpace(valueStr))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

func getEnvList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}
