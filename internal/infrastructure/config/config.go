package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bloodchain/backend/internal/domain/donation"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Ops       OpsConfig
	Scheduler SchedulerConfig
	Telemetry TelemetryConfig
	Policy    PolicyConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	Output     string // stdout, stderr, or file path
	TimeFormat string // iso8601, rfc3339, epoch
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name     string
	Env      string
	Timezone string
}

// DatabaseConfig holds database connection settings. Path is only read for
// the sqlite driver.
type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings. Redis only backs the
// scheduler's run lock.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// OpsConfig holds the operational HTTP server settings
type OpsConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// SchedulerConfig holds the daily expiry sweep settings
type SchedulerConfig struct {
	Enabled           bool
	ExpirySweepHour   int
	ExpirySweepMinute int
	CheckInterval     time.Duration // how often the trigger checks the wall clock
	LockTTL           time.Duration // how long one instance holds a day's run lock
	JobTimeout        time.Duration
}

// TelemetryConfig holds OpenTelemetry and profiling configuration
type TelemetryConfig struct {
	TracingEnabled    bool
	LogsEnabled       bool
	MetricsEnabled    bool
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string
	Insecure          bool // Use insecure (non-TLS) connection (development only)
	// Database tracing options
	DBTraceEnabled    bool
	DBLogFullSQL      bool          // dev only
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
	// OTLP push of the business metrics; /metrics is served regardless
	MetricsExportInterval time.Duration
	StockMetricsInterval  time.Duration
	// Continuous profiling
	ProfilingEnabled bool
	PyroscopeAddress string
}

// PolicyConfig holds the donor eligibility bounds
type PolicyConfig struct {
	DonationGapDays int
	MinAge          int
	MaxAge          int
	MinWeightKg     float64
}

// DonationPolicy converts the configured bounds to the domain policy.
func (p PolicyConfig) DonationPolicy() donation.Policy {
	return donation.Policy{
		MinAge:      p.MinAge,
		MaxAge:      p.MaxAge,
		GapDays:     p.DonationGapDays,
		MinWeightKg: decimal.NewFromFloat(p.MinWeightKg),
	}
}

// Load loads configuration from config.toml and environment variables
// Priority (highest to lowest):
// 1. Environment variables with BLOODCHAIN_ prefix (e.g., BLOODCHAIN_DATABASE_PASSWORD)
// 2. config.toml in ., ./config or /etc/bloodchain
// 3. Built-in defaults
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches the
// default locations.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/bloodchain")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("BLOODCHAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:     v.GetString("app.name"),
			Env:      v.GetString("app.env"),
			Timezone: v.GetString("app.timezone"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			Path:            v.GetString("database.path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Output:     v.GetString("log.output"),
			TimeFormat: v.GetString("log.time_format"),
		},
		Ops: OpsConfig{
			Port:         v.GetString("ops.port"),
			ReadTimeout:  v.GetDuration("ops.read_timeout"),
			WriteTimeout: v.GetDuration("ops.write_timeout"),
			IdleTimeout:  v.GetDuration("ops.idle_timeout"),
		},
		Scheduler: SchedulerConfig{
			Enabled:           v.GetBool("scheduler.enabled"),
			ExpirySweepHour:   v.GetInt("scheduler.expiry_sweep_hour"),
			ExpirySweepMinute: v.GetInt("scheduler.expiry_sweep_minute"),
			CheckInterval:     v.GetDuration("scheduler.check_interval"),
			LockTTL:           v.GetDuration("scheduler.lock_ttl"),
			JobTimeout:        v.GetDuration("scheduler.job_timeout"),
		},
		Telemetry: TelemetryConfig{
			TracingEnabled:        v.GetBool("telemetry.tracing_enabled"),
			LogsEnabled:           v.GetBool("telemetry.logs_enabled"),
			MetricsEnabled:        v.GetBool("telemetry.metrics_enabled"),
			CollectorEndpoint:     v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:         v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:           v.GetString("telemetry.service_name"),
			Insecure:              v.GetBool("telemetry.insecure"),
			DBTraceEnabled:        v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:          v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh:     v.GetDuration("telemetry.db_slow_query_threshold"),
			MetricsExportInterval: v.GetDuration("telemetry.metrics_export_interval"),
			StockMetricsInterval:  v.GetDuration("telemetry.stock_metrics_interval"),
			ProfilingEnabled:      v.GetBool("telemetry.profiling_enabled"),
			PyroscopeAddress:      v.GetString("telemetry.pyroscope_address"),
		},
		Policy: PolicyConfig{
			DonationGapDays: v.GetInt("policy.donation_gap_days"),
			MinAge:          v.GetInt("policy.min_age"),
			MaxAge:          v.GetInt("policy.max_age"),
			MinWeightKg:     v.GetFloat64("policy.min_weight_kg"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "bloodchain"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Timezone == "" {
		cfg.App.Timezone = "UTC"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "bloodchain"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "bloodchain.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Log.TimeFormat == "" {
		cfg.Log.TimeFormat = "iso8601"
	}
	if cfg.Ops.Port == "" {
		cfg.Ops.Port = "9090"
	}
	if cfg.Ops.ReadTimeout == 0 {
		cfg.Ops.ReadTimeout = 15 * time.Second
	}
	if cfg.Ops.WriteTimeout == 0 {
		// ledger verification walks the whole chain
		cfg.Ops.WriteTimeout = 60 * time.Second
	}
	if cfg.Ops.IdleTimeout == 0 {
		cfg.Ops.IdleTimeout = 60 * time.Second
	}
	// The sweep runs at 01:00 unless configured otherwise; hour 0 and minute 0
	// are valid values, so only the interval fields get zero-value defaults.
	if cfg.Scheduler.CheckInterval == 0 {
		cfg.Scheduler.CheckInterval = time.Minute
	}
	if cfg.Scheduler.LockTTL == 0 {
		cfg.Scheduler.LockTTL = 23 * time.Hour
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 30 * time.Minute
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Telemetry.MetricsExportInterval == 0 {
		cfg.Telemetry.MetricsExportInterval = 60 * time.Second
	}
	if cfg.Telemetry.StockMetricsInterval == 0 {
		cfg.Telemetry.StockMetricsInterval = 5 * time.Minute
	}
	if cfg.Telemetry.PyroscopeAddress == "" {
		cfg.Telemetry.PyroscopeAddress = "http://localhost:4040"
	}
	defaults := donation.DefaultPolicy()
	if cfg.Policy.DonationGapDays == 0 {
		cfg.Policy.DonationGapDays = defaults.GapDays
	}
	if cfg.Policy.MinAge == 0 {
		cfg.Policy.MinAge = defaults.MinAge
	}
	if cfg.Policy.MaxAge == 0 {
		cfg.Policy.MaxAge = defaults.MaxAge
	}
	if cfg.Policy.MinWeightKg == 0 {
		cfg.Policy.MinWeightKg = defaults.MinWeightKg.InexactFloat64()
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver)
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("database.port must be between 1 and 65535, got %d", c.Database.Port)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("app.timezone %q is not a known location: %w", c.App.Timezone, err)
	}

	if c.Scheduler.ExpirySweepHour < 0 || c.Scheduler.ExpirySweepHour > 23 {
		return fmt.Errorf("scheduler.expiry_sweep_hour must be between 0 and 23, got %d", c.Scheduler.ExpirySweepHour)
	}
	if c.Scheduler.ExpirySweepMinute < 0 || c.Scheduler.ExpirySweepMinute > 59 {
		return fmt.Errorf("scheduler.expiry_sweep_minute must be between 0 and 59, got %d", c.Scheduler.ExpirySweepMinute)
	}

	if c.Policy.MinAge >= c.Policy.MaxAge {
		return fmt.Errorf("policy.min_age (%d) must be below policy.max_age (%d)", c.Policy.MinAge, c.Policy.MaxAge)
	}
	if c.Policy.DonationGapDays < 0 {
		return fmt.Errorf("policy.donation_gap_days cannot be negative")
	}
	if c.Policy.MinWeightKg < 0 {
		return fmt.Errorf("policy.min_weight_kg cannot be negative")
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	if c.App.Env == "production" && c.Database.Driver == DriverPostgres {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
	}
	if c.App.Env == "production" && c.Telemetry.DBLogFullSQL {
		return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
	}

	return nil
}

// DSN returns the database connection string with properly escaped values.
// For sqlite it is the database file path.
func (d *DatabaseConfig) DSN() string {
	if d.Driver == DriverSQLite {
		return d.Path
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Location returns the configured time zone.
func (a AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
