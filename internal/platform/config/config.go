package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	wstrings "warden/pkg/platform/strings"
)

// DevSigningKey is the development default; rejected in production.
const DevSigningKey = "dev-secret-key-change-in-production"

// Audit sink kinds accepted in AUDIT_SINKS.
const (
	SinkMemory   = "memory"
	SinkPostgres = "postgres"
	SinkFile     = "file"
	SinkRedis    = "redis"
	SinkKafka    = "kafka"
)

var knownSinks = []string{SinkMemory, SinkPostgres, SinkFile, SinkRedis, SinkKafka}

// DefaultExemptPaths are reachable without a token.
var DefaultExemptPaths = []string{"/health", "/metrics", "/docs/**", "/swagger-ui/**", "/v3/api-docs/**"}

// Server captures process level configuration.
type Server struct {
	Addr        string         `yaml:"addr"`
	Environment string         `yaml:"environment"`
	LogLevel    string         `yaml:"log_level"`
	Auth        AuthConfig     `yaml:"auth"`
	Audit       AuditConfig    `yaml:"audit"`
	Database    DatabaseConfig `yaml:"database"`
	Redis       RedisConfig    `yaml:"redis"`
	Kafka       KafkaConfig    `yaml:"kafka"`
}

// AuthConfig configures the request gate.
type AuthConfig struct {
	SigningKey  string   `yaml:"signing_key"`
	Issuer      string   `yaml:"issuer"`
	ExemptPaths []string `yaml:"exempt_paths"`
}

// AuditConfig configures the recorder and its sinks.
type AuditConfig struct {
	Sinks            []string      `yaml:"sinks"`
	AsyncBuffer      int           `yaml:"async_buffer"`
	SinkTimeout      time.Duration `yaml:"sink_timeout"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
	FilePath         string        `yaml:"file_path"`
	RedisStream      string        `yaml:"redis_stream"`
}

// DatabaseConfig configures the Postgres pool.
type DatabaseConfig struct {
	URL          string        `yaml:"url"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	ConnMaxLife  time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig configures the Redis client.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// KafkaConfig configures the producer and the materializing consumer.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	ClientID      string   `yaml:"client_id"`
	AuditTopic    string   `yaml:"audit_topic"`
	ConsumerGroup string   `yaml:"consumer_group"`
	Materialize   bool     `yaml:"materialize"`
}

// IsProduction reports whether strict validation applies.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// HasSink reports whether kind is enabled.
func (a AuditConfig) HasSink(kind string) bool {
	return slices.Contains(a.Sinks, kind)
}

func defaults() Server {
	return Server{
		Addr:        ":8080",
		Environment: "development",
		LogLevel:    "info",
		Auth: AuthConfig{
			SigningKey:  DevSigningKey,
			ExemptPaths: slices.Clone(DefaultExemptPaths),
		},
		Audit: AuditConfig{
			Sinks:            []string{SinkMemory},
			SinkTimeout:      2 * time.Second,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
			RedisStream:      "warden:audit",
		},
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			ConnMaxLife:  30 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			ClientID:      "warden",
			AuditTopic:    "warden.audit.records",
			ConsumerGroup: "warden-audit-materializer",
		},
	}
}

// FromEnv builds a Server config from defaults, the optional YAML file named
// by WARDEN_CONFIG_FILE, then environment variables, in that order.
func FromEnv() (Server, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Server, error) {
	cfg := defaults()

	if path, ok := lookup("WARDEN_CONFIG_FILE"); ok && path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Server{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Server{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	e := envReader{lookup: lookup}
	e.str("WARDEN_ADDR", &cfg.Addr)
	e.str("WARDEN_ENV", &cfg.Environment)
	e.str("LOG_LEVEL", &cfg.LogLevel)

	e.str("JWT_SIGNING_KEY", &cfg.Auth.SigningKey)
	e.str("JWT_ISSUER", &cfg.Auth.Issuer)
	e.list("AUTH_EXEMPT_PATHS", &cfg.Auth.ExemptPaths)

	e.list("AUDIT_SINKS", &cfg.Audit.Sinks)
	e.integer("AUDIT_ASYNC_BUFFER", &cfg.Audit.AsyncBuffer)
	e.duration("AUDIT_SINK_TIMEOUT", &cfg.Audit.SinkTimeout)
	e.integer("AUDIT_BREAKER_THRESHOLD", &cfg.Audit.BreakerThreshold)
	e.duration("AUDIT_BREAKER_COOLDOWN", &cfg.Audit.BreakerCooldown)
	e.str("AUDIT_FILE_PATH", &cfg.Audit.FilePath)
	e.str("AUDIT_REDIS_STREAM", &cfg.Audit.RedisStream)

	e.str("DATABASE_URL", &cfg.Database.URL)
	e.integer("DATABASE_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)
	e.integer("DATABASE_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns)

	e.str("REDIS_URL", &cfg.Redis.URL)
	e.integer("REDIS_POOL_SIZE", &cfg.Redis.PoolSize)
	e.integer("REDIS_MIN_IDLE_CONNS", &cfg.Redis.MinIdleConns)
	e.duration("REDIS_DIAL_TIMEOUT", &cfg.Redis.DialTimeout)
	e.duration("REDIS_READ_TIMEOUT", &cfg.Redis.ReadTimeout)
	e.duration("REDIS_WRITE_TIMEOUT", &cfg.Redis.WriteTimeout)

	e.list("KAFKA_BROKERS", &cfg.Kafka.Brokers)
	e.str("KAFKA_CLIENT_ID", &cfg.Kafka.ClientID)
	e.str("KAFKA_AUDIT_TOPIC", &cfg.Kafka.AuditTopic)
	e.str("KAFKA_CONSUMER_GROUP", &cfg.Kafka.ConsumerGroup)
	e.boolean("KAFKA_MATERIALIZE", &cfg.Kafka.Materialize)

	cfg.Auth.ExemptPaths = wstrings.DedupeAndTrim(cfg.Auth.ExemptPaths)
	cfg.Audit.Sinks = wstrings.DedupeAndTrimLower(cfg.Audit.Sinks)
	cfg.Kafka.Brokers = wstrings.DedupeAndTrim(cfg.Kafka.Brokers)

	if err := errors.Join(e.errs...); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate collects every configuration problem.
func (s Server) Validate() error {
	var errs []error

	if s.Addr == "" {
		errs = append(errs, errors.New("WARDEN_ADDR must not be empty"))
	}
	switch {
	case s.Auth.SigningKey == "":
		errs = append(errs, errors.New("JWT_SIGNING_KEY is required"))
	case s.IsProduction() && s.Auth.SigningKey == DevSigningKey:
		errs = append(errs, errors.New("JWT_SIGNING_KEY must be set in production"))
	case s.IsProduction() && len(s.Auth.SigningKey) < 32:
		errs = append(errs, errors.New("JWT_SIGNING_KEY must be at least 32 bytes in production"))
	}

	if len(s.Audit.Sinks) == 0 {
		errs = append(errs, errors.New("AUDIT_SINKS must name at least one sink"))
	}
	for _, sink := range s.Audit.Sinks {
		if !slices.Contains(knownSinks, sink) {
			errs = append(errs, fmt.Errorf("AUDIT_SINKS: unknown sink %q", sink))
		}
	}
	if s.Audit.HasSink(SinkPostgres) && s.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required for the postgres audit sink"))
	}
	if s.Audit.HasSink(SinkRedis) && s.Redis.URL == "" {
		errs = append(errs, errors.New("REDIS_URL is required for the redis audit sink"))
	}
	if s.Audit.HasSink(SinkKafka) && len(s.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required for the kafka audit sink"))
	}
	if s.Audit.HasSink(SinkFile) && s.Audit.FilePath == "" {
		errs = append(errs, errors.New("AUDIT_FILE_PATH is required for the file audit sink"))
	}
	if s.Kafka.Materialize && (len(s.Kafka.Brokers) == 0 || s.Database.URL == "") {
		errs = append(errs, errors.New("KAFKA_MATERIALIZE requires KAFKA_BROKERS and DATABASE_URL"))
	}
	if s.Audit.AsyncBuffer < 0 {
		errs = append(errs, errors.New("AUDIT_ASYNC_BUFFER must not be negative"))
	}
	if s.Audit.BreakerThreshold < 0 {
		errs = append(errs, errors.New("AUDIT_BREAKER_THRESHOLD must not be negative"))
	}

	return errors.Join(errs...)
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

// list treats a set but empty variable as an empty list, so the environment
// can clear a default such as the exemption list.
func (e *envReader) list(key string, dst *[]string) {
	if v, ok := e.lookup(key); ok {
		*dst = wstrings.SplitList(v)
	}
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = b
}
