package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Mongo       MongoConfig       `mapstructure:"mongo"`
	Appointment AppointmentConfig `mapstructure:"appointment"`
	Router      RouterConfig      `mapstructure:"router"`
	Oracle      OracleConfig      `mapstructure:"oracle"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Security    SecurityConfig    `mapstructure:"security"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	MiddlewareTimeout time.Duration `mapstructure:"middleware_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type AppointmentConfig struct {
	// Path to the embedded scheduling database. ":memory:" for tests.
	DBPath string `mapstructure:"db_path"`
}

// RouterConfig carries the dispatch-engine knobs: session lifecycle
// timeouts, classification thresholds, and per-turn handoff limits.
type RouterConfig struct {
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	HardCleanup        time.Duration `mapstructure:"hard_cleanup"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
	HandoffConfidence  float64       `mapstructure:"handoff_confidence"`
	FuzzyThreshold     float64       `mapstructure:"fuzzy_threshold"`
	MaxHandoffsPerTurn int           `mapstructure:"max_handoffs_per_turn"`
	HandlerTimeout     time.Duration `mapstructure:"handler_timeout"`
	HistoryWindow      int           `mapstructure:"history_window"`
}

type OracleConfig struct {
	Provider string        `mapstructure:"provider"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Gemini   GeminiConfig  `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type AuthConfig struct {
	JWTSecret        string        `mapstructure:"jwt_secret"`
	AccessTokenTTL   time.Duration `mapstructure:"access_token_ttl"`
	OperatorID       string        `mapstructure:"operator_id"`
	OperatorPassHash string        `mapstructure:"operator_pass_hash"`
}

type SecurityConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set config file path
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if _, statErr := os.Stat(configPath); statErr == nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
		// Config file not found, use defaults and env vars
	}

	// Override with environment variables
	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.middleware_timeout", "60s")

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "callrouter")
	v.SetDefault("database.database", "callrouter")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Mongo
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "hospital")
	v.SetDefault("mongo.collection", "medical_knowledge")

	// Appointment store
	v.SetDefault("appointment.db_path", "./data/appointments.db")

	// Router
	v.SetDefault("router.idle_timeout", "15m")
	v.SetDefault("router.hard_cleanup", "5m")
	v.SetDefault("router.sweep_interval", "1m")
	v.SetDefault("router.handoff_confidence", 0.6)
	v.SetDefault("router.fuzzy_threshold", 0.85)
	v.SetDefault("router.max_handoffs_per_turn", 2)
	v.SetDefault("router.handler_timeout", "20s")
	v.SetDefault("router.history_window", 5)

	// Oracle
	v.SetDefault("oracle.provider", "gemini")
	v.SetDefault("oracle.timeout", "2s")
	v.SetDefault("oracle.gemini.model", "gemini-2.5-flash")

	// Auth
	v.SetDefault("auth.access_token_ttl", "8h")
	v.SetDefault("auth.operator_id", "operator")

	// Security
	v.SetDefault("security.rate_limit.requests_per_minute", 60)
	v.SetDefault("security.rate_limit.burst", 10)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func bindEnvVars(v *viper.Viper) {
	// Database
	v.BindEnv("database.password", "POSTGRES_PASSWORD")

	// Redis
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Mongo
	v.BindEnv("mongo.uri", "MONGO_URI")

	// Auth
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("auth.operator_pass_hash", "OPERATOR_PASS_HASH")

	// Oracle
	v.BindEnv("oracle.gemini.api_key", "GEMINI_API_KEY")
}
