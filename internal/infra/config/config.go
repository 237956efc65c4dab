package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "CODEREVIEW"

// Reset store backends.
const (
	ResetStorePostgres = "postgres"
	ResetStoreRedis    = "redis"
)

const minSigningSecretLength = 32

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Session   SessionSettings   `mapstructure:"session"`
	Reset     ResetSettings     `mapstructure:"reset"`
	Notify    NotifySettings    `mapstructure:"notify"`
	Password  PasswordSettings  `mapstructure:"password"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// DevMode allows reset links to be returned in responses when no
	// notification channel is configured. Refused in production.
	DevMode         bool   `mapstructure:"dev_mode"`
	FrontendBaseURL string `mapstructure:"frontend_base_url"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	AutoMigrate       bool          `mapstructure:"auto_migrate"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// KafkaSettings configures the notification producer. An empty broker list
// disables outbound notifications.
type KafkaSettings struct {
	Brokers      []string      `mapstructure:"brokers"`
	TopicPrefix  string        `mapstructure:"topic_prefix"`
	ClientID     string        `mapstructure:"client_id"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type SessionSettings struct {
	SigningSecret string        `mapstructure:"signing_secret"`
	Issuer        string        `mapstructure:"issuer"`
	TTL           time.Duration `mapstructure:"ttl"`
}

type ResetSettings struct {
	Store            string        `mapstructure:"store"`
	NotifyTimeout    time.Duration `mapstructure:"notify_timeout"`
	ReservationLease time.Duration `mapstructure:"reservation_lease"`
	PurgeInterval    time.Duration `mapstructure:"purge_interval"`
	Retention        time.Duration `mapstructure:"retention"`
}

// NotifySettings sizes the background notification dispatcher.
type NotifySettings struct {
	Workers    int           `mapstructure:"workers"`
	QueueSize  int           `mapstructure:"queue_size"`
	JobTimeout time.Duration `mapstructure:"job_timeout"`
}

type PasswordSettings struct {
	MinLength        int `mapstructure:"min_length"`
	MaxLength        int `mapstructure:"max_length"`
	MinStrengthScore int `mapstructure:"min_strength_score"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// IsProduction reports whether the service runs with production settings.
func (s AppSettings) IsProduction() bool {
	return s.Env == "production"
}

var configKeys = []string{
	"app.name",
	"app.env",
	"app.host",
	"app.port",
	"app.dev_mode",
	"app.frontend_base_url",
	"postgres.host",
	"postgres.port",
	"postgres.user",
	"postgres.password",
	"postgres.database",
	"postgres.ssl_mode",
	"postgres.max_conns",
	"postgres.min_conns",
	"postgres.max_conn_lifetime",
	"postgres.max_conn_idle_time",
	"postgres.health_check_period",
	"postgres.auto_migrate",
	"redis.enabled",
	"redis.host",
	"redis.port",
	"redis.db",
	"redis.password",
	"redis.tls_enabled",
	"redis.key_prefix",
	"kafka.brokers",
	"kafka.topic_prefix",
	"kafka.client_id",
	"kafka.write_timeout",
	"session.signing_secret",
	"session.issuer",
	"session.ttl",
	"reset.store",
	"reset.notify_timeout",
	"reset.reservation_lease",
	"reset.purge_interval",
	"reset.retention",
	"notify.workers",
	"notify.queue_size",
	"notify.job_timeout",
	"password.min_length",
	"password.max_length",
	"password.min_strength_score",
	"argon2.memory",
	"argon2.iterations",
	"argon2.parallelism",
	"argon2.salt_length",
	"argon2.key_length",
	"telemetry.otlp_endpoint",
	"telemetry.service_name",
	"telemetry.sampling_rate",
}

// Load reads and validates the full service configuration.
func Load() (*AppConfig, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadPostgres reads only what the migration tool needs, so it runs
// without session secrets.
func LoadPostgres() (*PostgresSettings, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	return &cfg.Postgres, nil
}

func load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if err := bindEnvs(v, configKeys); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate rejects configurations the service must not start with.
func (c *AppConfig) Validate() error {
	var errs []error

	if len(c.Session.SigningSecret) < minSigningSecretLength {
		errs = append(errs, fmt.Errorf("session.signing_secret must be at least %d bytes", minSigningSecretLength))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	if c.App.DevMode && c.App.IsProduction() {
		errs = append(errs, errors.New("app.dev_mode cannot be enabled in production"))
	}
	if strings.TrimSpace(c.App.FrontendBaseURL) == "" {
		errs = append(errs, errors.New("app.frontend_base_url is required"))
	}

	switch c.Reset.Store {
	case ResetStorePostgres:
	case ResetStoreRedis:
		if !c.Redis.Enabled {
			errs = append(errs, errors.New("reset.store=redis requires redis.enabled"))
		}
	default:
		errs = append(errs, fmt.Errorf("reset.store %q is not supported", c.Reset.Store))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "codereview-auth")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.dev_mode", false)
	v.SetDefault("app.frontend_base_url", "http://localhost:3000")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "codereview")
	v.SetDefault("postgres.password", "codereview")
	v.SetDefault("postgres.database", "codereview")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.auto_migrate", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "codereview:reset")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "codereview")
	v.SetDefault("kafka.client_id", "codereview-auth")
	v.SetDefault("kafka.write_timeout", "3s")

	v.SetDefault("session.issuer", "codereview")
	v.SetDefault("session.ttl", "168h")

	v.SetDefault("reset.store", ResetStorePostgres)
	v.SetDefault("reset.notify_timeout", "5s")
	v.SetDefault("reset.reservation_lease", "30s")
	v.SetDefault("reset.purge_interval", "15m")
	v.SetDefault("reset.retention", "24h")

	v.SetDefault("notify.workers", 4)
	v.SetDefault("notify.queue_size", 256)
	v.SetDefault("notify.job_timeout", "10s")

	v.SetDefault("password.min_length", 6)
	v.SetDefault("password.max_length", 256)
	v.SetDefault("password.min_strength_score", 0)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "codereview-auth")
	v.SetDefault("telemetry.sampling_rate", 1.0)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
