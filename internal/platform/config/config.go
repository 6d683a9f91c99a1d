package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	strutil "credence/pkg/platform/strings"
)

// Config holds runtime configuration for the server process.
// Empty backend URLs select the in-memory implementation of that backend.
type Config struct {
	Env      string
	LogLevel string
	Server   Server
	Database Database
	Redis    Redis
	Kafka    Kafka
	NATS     NATS
	Auth     Auth
	Issuer   Issuer
	Verify   Verification
	Delivery Delivery
	Outbox   Outbox
	Ledger   Ledger
	Inbound  Inbound
	Limits   RateLimit
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
	// WriteTimeout also bounds proof uploads, so it sits well above the
	// verification timeout.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Database struct {
	URL          string
	MaxOpenConns int
}

type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Kafka struct {
	Brokers           []string
	Topic             string
	Partitions        int32
	IssuerGroup       string
	NotificationGroup string
}

type NATS struct {
	URL string
}

type Auth struct {
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
}

// Issuer configures credential signing. An empty MasterSecret disables issuance.
type Issuer struct {
	MasterSecret    string
	KeyID           string
	DisabledTenants []string
}

type Verification struct {
	TransitionTimeout time.Duration
	BulkParallelism   int
	BulkMaxItems      int
}

type Delivery struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	ProcessedTTL   time.Duration
}

type Outbox struct {
	PollInterval time.Duration
	BatchSize    int
}

type Ledger struct {
	ScanInterval time.Duration
}

// Inbound configures signed integration requests. Secrets are "tenant_id:secret" pairs.
type Inbound struct {
	Secrets   map[string]string
	Tolerance time.Duration
}

// RateLimit sets per-minute request budgets. Zero disables a limit.
type RateLimit struct {
	InboundPerMinute int
	ActorPerMinute   int
}

// IsDevelopment reports whether the process runs with development defaults.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// RegisterFlags declares command-line overrides. Flags win over env and .env values.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("addr", ":8080", "HTTP listen address")
	fs.String("database-url", "", "Postgres DSN; empty uses in-memory stores")
	fs.String("redis-url", "", "Redis URL; empty uses in-memory idempotency markers")
	fs.StringSlice("kafka-brokers", nil, "Kafka seed brokers; empty uses the in-memory bus")
	fs.String("nats-url", "", "NATS URL; empty logs notifications instead")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
}

// Load reads configuration from flags, environment (CREDENCE_ prefix) and an optional .env file.
func Load(fs *pflag.FlagSet) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CREDENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if fs != nil {
		for flag, key := range map[string]string{
			"addr":          "server.addr",
			"database-url":  "database.url",
			"redis-url":     "redis.url",
			"kafka-brokers": "kafka.brokers",
			"nats-url":      "nats.url",
			"log-level":     "log.level",
		} {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
	}

	secrets, err := parseSecrets(v.GetStringSlice("inbound.secrets"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Env:      v.GetString("env"),
		LogLevel: v.GetString("log.level"),
		Server: Server{
			Addr:            v.GetString("server.addr"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			MaxUploadBytes:  v.GetInt64("server.max_upload_bytes"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
		},
		Database: Database{
			URL:          v.GetString("database.url"),
			MaxOpenConns: v.GetInt("database.max_open_conns"),
		},
		Redis: Redis{
			URL:          v.GetString("redis.url"),
			PoolSize:     v.GetInt("redis.pool_size"),
			MinIdleConns: v.GetInt("redis.min_idle_conns"),
			DialTimeout:  v.GetDuration("redis.dial_timeout"),
			ReadTimeout:  v.GetDuration("redis.read_timeout"),
			WriteTimeout: v.GetDuration("redis.write_timeout"),
		},
		Kafka: Kafka{
			Brokers:           nonEmpty(v.GetStringSlice("kafka.brokers")),
			Topic:             v.GetString("kafka.topic"),
			Partitions:        v.GetInt32("kafka.partitions"),
			IssuerGroup:       v.GetString("kafka.issuer_group"),
			NotificationGroup: v.GetString("kafka.notification_group"),
		},
		NATS: NATS{URL: v.GetString("nats.url")},
		Auth: Auth{
			JWTSigningKey: v.GetString("auth.jwt_signing_key"),
			JWTIssuer:     v.GetString("auth.jwt_issuer"),
			JWTAudience:   v.GetString("auth.jwt_audience"),
		},
		Issuer: Issuer{
			MasterSecret:    v.GetString("issuer.master_secret"),
			KeyID:           v.GetString("issuer.key_id"),
			DisabledTenants: nonEmpty(v.GetStringSlice("issuer.disabled_tenants")),
		},
		Verify: Verification{
			TransitionTimeout: v.GetDuration("verification.transition_timeout"),
			BulkParallelism:   v.GetInt("verification.bulk_parallelism"),
			BulkMaxItems:      v.GetInt("verification.bulk_max_items"),
		},
		Delivery: Delivery{
			MaxAttempts:    v.GetInt("delivery.max_attempts"),
			InitialBackoff: v.GetDuration("delivery.initial_backoff"),
			MaxBackoff:     v.GetDuration("delivery.max_backoff"),
			ProcessedTTL:   v.GetDuration("delivery.processed_ttl"),
		},
		Outbox: Outbox{
			PollInterval: v.GetDuration("outbox.poll_interval"),
			BatchSize:    v.GetInt("outbox.batch_size"),
		},
		Ledger: Ledger{ScanInterval: v.GetDuration("ledger.scan_interval")},
		Inbound: Inbound{
			Secrets:   secrets,
			Tolerance: v.GetDuration("inbound.tolerance"),
		},
		Limits: RateLimit{
			InboundPerMinute: v.GetInt("ratelimit.inbound_per_minute"),
			ActorPerMinute:   v.GetInt("ratelimit.actor_per_minute"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_upload_bytes", 10<<20)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("kafka.topic", "credence.activity-events")
	v.SetDefault("kafka.partitions", 12)
	v.SetDefault("kafka.issuer_group", "credence-credential-issuer")
	v.SetDefault("kafka.notification_group", "credence-notifications")
	v.SetDefault("auth.jwt_issuer", "credence-identity")
	v.SetDefault("auth.jwt_audience", "credence")
	v.SetDefault("issuer.key_id", "k1")
	v.SetDefault("verification.transition_timeout", 5*time.Second)
	v.SetDefault("verification.bulk_parallelism", 8)
	v.SetDefault("verification.bulk_max_items", 200)
	v.SetDefault("delivery.max_attempts", 8)
	v.SetDefault("delivery.initial_backoff", 200*time.Millisecond)
	v.SetDefault("delivery.max_backoff", 30*time.Second)
	v.SetDefault("delivery.processed_ttl", 7*24*time.Hour)
	v.SetDefault("outbox.poll_interval", 500*time.Millisecond)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("ledger.scan_interval", time.Hour)
	v.SetDefault("inbound.tolerance", 5*time.Minute)
	v.SetDefault("ratelimit.inbound_per_minute", 120)
	v.SetDefault("ratelimit.actor_per_minute", 600)
}

func (c Config) validate() error {
	if c.Auth.JWTSigningKey == "" {
		if !c.IsDevelopment() {
			return fmt.Errorf("auth.jwt_signing_key must be provided outside development")
		}
	}
	if c.Verify.TransitionTimeout <= 0 {
		return fmt.Errorf("verification.transition_timeout must be positive")
	}
	if c.Delivery.MaxAttempts <= 0 {
		return fmt.Errorf("delivery.max_attempts must be positive")
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("outbox.batch_size must be positive")
	}
	return nil
}

// parseSecrets turns "tenant:secret" entries into a lookup map.
func parseSecrets(entries []string) (map[string]string, error) {
	out := make(map[string]string, len(entries))
	for _, entry := range nonEmpty(entries) {
		tenant, secret, ok := strings.Cut(entry, ":")
		if !ok || strings.TrimSpace(tenant) == "" || secret == "" {
			return nil, fmt.Errorf("invalid inbound secret entry %q: want tenant:secret", entry)
		}
		out[strings.TrimSpace(tenant)] = secret
	}
	return out, nil
}

func nonEmpty(values []string) []string {
	return strutil.SplitDedupe(values)
}
