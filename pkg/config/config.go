package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/workbench/pkg/auth"
	"github.com/platinummonkey/workbench/pkg/observability"
	"github.com/platinummonkey/workbench/pkg/storage"
)

// ConfigFileEnv names the optional YAML file read before the environment
const ConfigFileEnv = "WORKBENCH_CONFIG_FILE"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig           `yaml:"server"`
	Auth          AuthConfig             `yaml:"auth"`
	Database      storage.DatabaseConfig `yaml:"database"`
	Storage       storage.Config         `yaml:"storage"`
	Redis         storage.RedisConfig    `yaml:"redis"`
	Cache         CacheConfig            `yaml:"cache"`
	Web           WebConfig              `yaml:"web"`
	Janitor       JanitorConfig          `yaml:"janitor"`
	Observability ObservabilityConfig    `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// AuthConfig holds credential settings. The secret is read once at start.
type AuthConfig struct {
	Secret          string        `yaml:"secret"`
	PreviousSecrets []string      `yaml:"previous_secrets"`
	Issuer          string        `yaml:"issuer"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RememberMeTTL   time.Duration `yaml:"remember_me_ttl"`
	CookieSecure    bool          `yaml:"cookie_secure"`

	// Login attempts allowed per client IP per minute, with a burst
	LoginRatePerMinute int `yaml:"login_rate_per_minute"`
	LoginBurst         int `yaml:"login_burst"`
}

// CacheConfig sizes the membership cache
type CacheConfig struct {
	MembershipSize int           `yaml:"membership_size"`
	MembershipTTL  time.Duration `yaml:"membership_ttl"`
}

// WebConfig controls the server-rendered pages
type WebConfig struct {
	Enabled     bool   `yaml:"enabled"`
	TemplateDir string `yaml:"template_dir"`
}

// JanitorConfig controls the orphan blob sweep
type JanitorConfig struct {
	Schedule    string `yaml:"schedule"`
	Concurrency int    `yaml:"concurrency"`
	DryRun      bool   `yaml:"dry_run"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	// AuditDir, when set, also writes audit events as JSON lines under it
	AuditDir string `yaml:"audit_dir"`

	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// OTel converts the settings for observability.InitOTel
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Auth: AuthConfig{
			Issuer:             auth.DefaultIssuer,
			AccessTokenTTL:     24 * time.Hour,
			RememberMeTTL:      30 * 24 * time.Hour,
			CookieSecure:       true,
			LoginRatePerMinute: 10,
			LoginBurst:         5,
		},
		Database: storage.DatabaseConfig{
			MaxConns:    20,
			MinConns:    5,
			Timeout:     5 * time.Second,
			MaxLifetime: 30 * time.Minute,
			MaxIdleTime: 5 * time.Minute,
			Migrate:     true,
		},
		Storage: storage.Config{
			Type:           "filesystem",
			FilesystemRoot: "./data/blobs",
			S3Region:       "us-east-1",
			MaxUploadBytes: 50 << 20,
		},
		Cache: CacheConfig{
			MembershipSize: 4096,
			MembershipTTL:  time.Minute,
		},
		Web: WebConfig{Enabled: true},
		Janitor: JanitorConfig{
			Schedule:    "@hourly",
			Concurrency: 4,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "workbench",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1.0,
		},
	}
}

// LoadConfig loads configuration from the file named by WORKBENCH_CONFIG_FILE
// (if any) and then from WORKBENCH_* environment variables
func LoadConfig() (*Config, error) {
	return Load(os.Getenv(ConfigFileEnv))
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and the environment, in that order, then validates it
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto cfg. Keys missing from the
// file keep their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	s := &cfg.Server
	s.Host = getEnv("WORKBENCH_HOST", s.Host)
	s.Port = getEnv("WORKBENCH_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("WORKBENCH_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("WORKBENCH_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("WORKBENCH_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("WORKBENCH_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("WORKBENCH_HEALTH_PORT", s.HealthPort)

	a := &cfg.Auth
	a.Secret = getEnv("WORKBENCH_SECRET_KEY", a.Secret)
	a.PreviousSecrets = getEnvList("WORKBENCH_PREVIOUS_SECRET_KEYS", a.PreviousSecrets)
	a.Issuer = getEnv("WORKBENCH_TOKEN_ISSUER", a.Issuer)
	a.AccessTokenTTL = getEnvDuration("WORKBENCH_ACCESS_TOKEN_TTL", a.AccessTokenTTL)
	a.RememberMeTTL = getEnvDuration("WORKBENCH_REMEMBER_ME_TTL", a.RememberMeTTL)
	a.CookieSecure = getEnvBool("WORKBENCH_COOKIE_SECURE", a.CookieSecure)
	a.LoginRatePerMinute = getEnvInt("WORKBENCH_LOGIN_RATE_PER_MINUTE", a.LoginRatePerMinute)
	a.LoginBurst = getEnvInt("WORKBENCH_LOGIN_BURST", a.LoginBurst)

	d := &cfg.Database
	d.URL = getEnv("WORKBENCH_DATABASE_URL", d.URL)
	d.MaxConns = getEnvInt("WORKBENCH_DATABASE_MAX_CONNS", d.MaxConns)
	d.MinConns = getEnvInt("WORKBENCH_DATABASE_MIN_CONNS", d.MinConns)
	d.Timeout = getEnvDuration("WORKBENCH_DATABASE_TIMEOUT", d.Timeout)
	d.MaxLifetime = getEnvDuration("WORKBENCH_DATABASE_MAX_LIFETIME", d.MaxLifetime)
	d.MaxIdleTime = getEnvDuration("WORKBENCH_DATABASE_MAX_IDLE_TIME", d.MaxIdleTime)
	d.Migrate = getEnvBool("WORKBENCH_DATABASE_MIGRATE", d.Migrate)

	st := &cfg.Storage
	st.Type = getEnv("WORKBENCH_STORAGE_TYPE", st.Type)
	st.FilesystemRoot = getEnv("WORKBENCH_FILESYSTEM_ROOT", st.FilesystemRoot)
	st.S3Endpoint = getEnv("WORKBENCH_S3_ENDPOINT", st.S3Endpoint)
	st.S3Region = getEnv("WORKBENCH_S3_REGION", st.S3Region)
	st.S3Bucket = getEnv("WORKBENCH_S3_BUCKET", st.S3Bucket)
	st.S3AccessKey = getEnv("WORKBENCH_S3_ACCESS_KEY", st.S3AccessKey)
	st.S3SecretKey = getEnv("WORKBENCH_S3_SECRET_KEY", st.S3SecretKey)
	st.S3UsePathStyle = getEnvBool("WORKBENCH_S3_USE_PATH_STYLE", st.S3UsePathStyle)
	st.MaxUploadBytes = getEnvInt64("WORKBENCH_MAX_UPLOAD_BYTES", st.MaxUploadBytes)

	r := &cfg.Redis
	r.URL = getEnv("WORKBENCH_REDIS_URL", r.URL)
	r.Password = getEnv("WORKBENCH_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("WORKBENCH_REDIS_DB", r.DB)
	r.MaxRetries = getEnvInt("WORKBENCH_REDIS_MAX_RETRIES", r.MaxRetries)
	r.PoolSize = getEnvInt("WORKBENCH_REDIS_POOL_SIZE", r.PoolSize)

	c := &cfg.Cache
	c.MembershipSize = getEnvInt("WORKBENCH_MEMBERSHIP_CACHE_SIZE", c.MembershipSize)
	c.MembershipTTL = getEnvDuration("WORKBENCH_MEMBERSHIP_CACHE_TTL", c.MembershipTTL)

	w := &cfg.Web
	w.Enabled = getEnvBool("WORKBENCH_WEB_ENABLED", w.Enabled)
	w.TemplateDir = getEnv("WORKBENCH_TEMPLATE_DIR", w.TemplateDir)

	j := &cfg.Janitor
	j.Schedule = getEnv("WORKBENCH_JANITOR_SCHEDULE", j.Schedule)
	j.Concurrency = getEnvInt("WORKBENCH_JANITOR_CONCURRENCY", j.Concurrency)
	j.DryRun = getEnvBool("WORKBENCH_JANITOR_DRY_RUN", j.DryRun)

	o := &cfg.Observability
	o.LogLevel = getEnv("WORKBENCH_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("WORKBENCH_METRICS_ENABLED", o.MetricsEnabled)
	o.AuditDir = getEnv("WORKBENCH_AUDIT_DIR", o.AuditDir)
	o.OTelEnabled = getEnvBool("WORKBENCH_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("WORKBENCH_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("WORKBENCH_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("WORKBENCH_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("WORKBENCH_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("WORKBENCH_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if err := c.Auth.Validate(); err != nil {
		return err
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	switch c.Storage.Type {
	case "filesystem":
		if c.Storage.FilesystemRoot == "" {
			return fmt.Errorf("filesystem root is required for filesystem storage")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be filesystem or s3)", c.Storage.Type)
	}
	if c.Storage.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	return nil
}

// Validate checks the credential settings
func (a AuthConfig) Validate() error {
	if a.Secret == "" {
		return errors.New("secret key is required (WORKBENCH_SECRET_KEY)")
	}
	if len(a.Secret) < auth.MinSecretLength {
		return fmt.Errorf("secret key must be at least %d bytes", auth.MinSecretLength)
	}
	if a.AccessTokenTTL <= 0 {
		return errors.New("access token TTL must be positive")
	}
	if a.RememberMeTTL < a.AccessTokenTTL {
		return errors.New("remember-me TTL must not be shorter than the access token TTL")
	}
	if a.LoginRatePerMinute <= 0 || a.LoginBurst <= 0 {
		return errors.New("login rate and burst must be positive")
	}
	return nil
}

// KeySource builds the credential key source from the configured secrets
func (a AuthConfig) KeySource() (*auth.StaticKeySource, error) {
	return auth.NewStaticKeySource(a.Secret, a.PreviousSecrets...)
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
