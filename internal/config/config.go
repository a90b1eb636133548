package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the API process. Every
// backing service is optional: an empty address selects the in-process
// fallback so the binary runs locally without setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers        []string
	KafkaPositionsTopic string
	KafkaTrackingTopic  string

	PGDSN      string // booking store
	CatalogDSN string // service area catalog

	RabbitURL      string
	RabbitExchange string

	OSRMURL     string
	ETACacheTTL time.Duration

	AvgSpeedKmh       float64
	MaxDistanceMeters float64
	MaxResults        int

	TrackingDuration     time.Duration
	TrackingInterval     time.Duration
	DurationFromDistance bool

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:            ":8080",
		ReadTimeout:         5 * time.Second,
		WriteTimeout:        10 * time.Second,
		IdleTimeout:         120 * time.Second,
		ShutdownTimeout:     15 * time.Second,
		RedisGeoKey:         "providers_geo",
		KafkaPositionsTopic: "provider-locations",
		KafkaTrackingTopic:  "booking-tracking",
		RabbitExchange:      "roadside.events",
		ETACacheTTL:         time.Minute,
		AvgSpeedKmh:         40,
		MaxDistanceMeters:   50000,
		MaxResults:          5,
		TrackingDuration:    20 * time.Minute,
		TrackingInterval:    time.Second,
		LogLevel:            "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaPositionsTopic, "KAFKA_POSITIONS_TOPIC")
	setStringFromEnv(&cfg.KafkaTrackingTopic, "KAFKA_TRACKING_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")
	cfg.CatalogDSN = os.Getenv("CATALOG_DSN")

	cfg.RabbitURL = strings.TrimSpace(os.Getenv("RABBITMQ_URL"))
	setStringFromEnv(&cfg.RabbitExchange, "RABBITMQ_EXCHANGE")

	cfg.OSRMURL = strings.TrimSpace(os.Getenv("OSRM_URL"))
	setDurationFromEnv(&cfg.ETACacheTTL, "ETA_CACHE_TTL", &errs)

	setFloatFromEnv(&cfg.AvgSpeedKmh, "MATCHER_AVG_SPEED_KMH", &errs)
	setFloatFromEnv(&cfg.MaxDistanceMeters, "MATCHER_MAX_DISTANCE_M", &errs)
	setIntFromEnv(&cfg.MaxResults, "MATCHER_MAX_RESULTS", &errs)

	setDurationFromEnv(&cfg.TrackingDuration, "TRACKING_DURATION", &errs)
	setDurationFromEnv(&cfg.TrackingInterval, "TRACKING_INTERVAL", &errs)
	cfg.DurationFromDistance = strings.EqualFold(os.Getenv("TRACKING_DURATION_FROM_DISTANCE"), "true")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.AvgSpeedKmh <= 0 {
		errs = append(errs, fmt.Errorf("MATCHER_AVG_SPEED_KMH must be > 0"))
	}
	if cfg.MaxDistanceMeters <= 0 {
		errs = append(errs, fmt.Errorf("MATCHER_MAX_DISTANCE_M must be > 0"))
	}
	if cfg.MaxResults <= 0 {
		errs = append(errs, fmt.Errorf("MATCHER_MAX_RESULTS must be > 0"))
	}
	if cfg.TrackingDuration <= 0 {
		errs = append(errs, fmt.Errorf("TRACKING_DURATION must be > 0"))
	}
	if cfg.TrackingInterval <= 0 {
		errs = append(errs, fmt.Errorf("TRACKING_INTERVAL must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

// ConsumerConfig configures the position consumer process.
type ConsumerConfig struct {
	MetricsAddr   string
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroup    string
	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string
	Attempts      int
	RetryDelay    time.Duration
	LogLevel      string
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	cfg := ConsumerConfig{
		MetricsAddr:  ":2112",
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "provider-locations",
		KafkaGroup:   "roadside-position-consumer",
		RedisAddr:    "localhost:6379",
		RedisGeoKey:  "providers_geo",
		Attempts:     3,
		RetryDelay:   200 * time.Millisecond,
		LogLevel:     "info",
	}
	var errs []error

	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	if brokers := splitAndTrim(os.Getenv("KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.KafkaBrokers = brokers
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_POSITIONS_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")
	setIntFromEnv(&cfg.Attempts, "REDIS_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.RetryDelay, "REDIS_RETRY_DELAY", &errs)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.Attempts <= 0 {
		errs = append(errs, fmt.Errorf("REDIS_ATTEMPTS must be > 0"))
	}
	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
