package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kirinyoku/bustix/internal/credential"
)

const EnvProduction = "production"

var ErrInsecureSecret = errors.New("TICKET_SIGNING_SECRET must be set in production")

type Config struct {
	Env      string
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Tracing  TracingConfig
	Ticket   TicketConfig
	Auth     AuthConfig
	Booking  BookingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
	MaxConns int32
}

// DSN returns a libpq-style connection URL.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

type KafkaConfig struct {
	Brokers     []string // empty disables event publishing
	TicketTopic string
}

type TracingConfig struct {
	JaegerEndpoint string // empty disables tracing export
}

type TicketConfig struct {
	SigningSecret string
	CredentialTTL time.Duration
	// InsecureSecret is set when SigningSecret fell back to the public
	// development secret.
	InsecureSecret bool
	Location       *time.Location
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type BookingConfig struct {
	RateLimit  int
	RateWindow time.Duration
}

func (c *Config) Production() bool {
	return c.Env == EnvProduction
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	env := envOr("APP_ENV", "development")

	serverPort, err := envInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	serverCfg := ServerConfig{
		Host: envOr("SERVER_HOST", "localhost"),
		Port: serverPort,
	}

	postgresPort, err := envInt("POSTGRES_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	postgresMaxConns, err := envInt("POSTGRES_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	postgresUser := os.Getenv("POSTGRES_USER")
	if postgresUser == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
	}

	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	if postgresPassword == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
	}

	postgresDB := os.Getenv("POSTGRES_DB")
	if postgresDB == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
	}

	postgresCfg := PostgresConfig{
		User:     postgresUser,
		Password: postgresPassword,
		Name:     postgresDB,
		Host:     envOr("POSTGRES_HOST", "localhost"),
		Port:     postgresPort,
		SSLMode:  envOr("POSTGRES_SSLMODE", "disable"),
		MaxConns: int32(postgresMaxConns),
	}

	redisDB, err := envInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	redisCfg := RedisConfig{
		Addr:     envOr("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	}

	kafkaCfg := KafkaConfig{
		Brokers:     splitList(os.Getenv("KAFKA_BROKERS")),
		TicketTopic: envOr("KAFKA_TOPIC_TICKETS", "bustix.tickets"),
	}

	ticketCfg, err := ticketConfig(env)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	tokenTTL, err := envDuration("JWT_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("%s: missing JWT_SECRET", op)
	}

	rateLimit, err := envInt("BOOKING_RATE_LIMIT", 10)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	rateWindow, err := envDuration("BOOKING_RATE_WINDOW", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &Config{
		Env:      env,
		Server:   serverCfg,
		Postgres: postgresCfg,
		Redis:    redisCfg,
		Kafka:    kafkaCfg,
		Tracing:  TracingConfig{JaegerEndpoint: os.Getenv("JAEGER_ENDPOINT")},
		Ticket:   *ticketCfg,
		Auth:     AuthConfig{JWTSecret: jwtSecret, TokenTTL: tokenTTL},
		Booking:  BookingConfig{RateLimit: rateLimit, RateWindow: rateWindow},
	}, nil
}

func ticketConfig(env string) (*TicketConfig, error) {
	ttl, err := envDuration("TICKET_CREDENTIAL_TTL", credential.DefaultTTL)
	if err != nil {
		return nil, err
	}

	tz := envOr("VERIFIER_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid VERIFIER_TIMEZONE %q: %w", tz, err)
	}

	cfg := &TicketConfig{
		SigningSecret: os.Getenv("TICKET_SIGNING_SECRET"),
		CredentialTTL: ttl,
		Location:      loc,
	}

	if cfg.SigningSecret == "" || cfg.SigningSecret == credential.DevelopmentSecret {
		if env == EnvProduction {
			return nil, ErrInsecureSecret
		}
		cfg.SigningSecret = credential.DevelopmentSecret
		cfg.InsecureSecret = true
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}

	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
