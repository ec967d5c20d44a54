package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Kafka     KafkaConfig
	HTTP      HTTPConfig
	Ingestion IngestionConfig
	Metrics   MetricsConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	DBName        string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	MigrationsDir string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CacheConfig controls the Redis-backed query cache in front of the read API.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

type KafkaConfig struct {
	Enabled           bool
	Brokers           []string
	TopicMeasurements string
	NumPartitions     int
}

type HTTPConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Addr returns the listen address for the read API.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf(":%d", h.Port)
}

type IngestionConfig struct {
	MeasurementsURL  string
	LocationsURL     string
	FetchTimeout     time.Duration
	Interval         time.Duration
	BatchSize        int
	VehicleClassSink bool
	RunOnStartup     bool
}

type MetricsConfig struct {
	Namespace string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnvAsInt("DB_PORT", 5432),
			User:          getEnv("DB_USER", "traffic_user"),
			Password:      getEnv("DB_PASSWORD", "traffic_pass"),
			DBName:        getEnv("DB_NAME", "traffic_db"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:  getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:  getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MigrationsDir: getEnv("DB_MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			Enabled: getEnvAsBool("CACHE_ENABLED", false),
			TTL:     getEnvAsDuration("CACHE_TTL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:           getEnvAsBool("KAFKA_ENABLED", false),
			Brokers:           strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicMeasurements: getEnv("KAFKA_TOPIC_MEASUREMENTS", "traffic.measurements"),
			NumPartitions:     getEnvAsInt("KAFKA_NUM_PARTITIONS", 6),
		},
		HTTP: HTTPConfig{
			Port:            getEnvAsInt("HTTP_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Ingestion: IngestionConfig{
			MeasurementsURL:  getEnv("FEED_MEASUREMENTS_URL", "http://miv.opendata.belfla.be/miv/verkeersdata"),
			LocationsURL:     getEnv("FEED_LOCATIONS_URL", "http://miv.opendata.belfla.be/miv/configuratie/xml"),
			FetchTimeout:     getEnvAsDuration("FEED_FETCH_TIMEOUT", 30*time.Second),
			Interval:         getEnvAsDuration("INGEST_INTERVAL", time.Minute),
			BatchSize:        getEnvAsInt("INGEST_BATCH_SIZE", 1000),
			VehicleClassSink: getEnvAsBool("INGEST_VEHICLE_CLASS_SINK", false),
			RunOnStartup:     getEnvAsBool("INGEST_ON_STARTUP", true),
		},
		Metrics: MetricsConfig{
			Namespace: getEnv("METRICS_NAMESPACE", "traffic_server"),
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.Ingestion.BatchSize <= 0 {
		return fmt.Errorf("INGEST_BATCH_SIZE must be positive, got %d", c.Ingestion.BatchSize)
	}
	if c.Ingestion.Interval <= 0 {
		return fmt.Errorf("INGEST_INTERVAL must be positive, got %s", c.Ingestion.Interval)
	}
	if c.Ingestion.MeasurementsURL == "" || c.Ingestion.LocationsURL == "" {
		return fmt.Errorf("feed URLs must not be empty")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
