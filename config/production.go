// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
	JWT        JWTConfig        `json:"jwt"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Cache      CacheConfig      `json:"cache"`
	Query      QueryConfig      `json:"query"`
	Cosmology  CosmologyConfig  `json:"cosmology"`
	Deployment DeploymentConfig `json:"deployment"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryLog    bool          `json:"slow_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
	// StatementTimeout bounds every composed search statement on the server side
	StatementTimeout time.Duration `json:"statement_timeout"`
}

type ServerConfig struct {
	Host              string        `json:"host"`
	Port              int           `json:"port"`
	ReadTimeout       time.Duration `json:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	IdleTimeout       time.Duration `json:"idle_timeout"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout"`
	BodyLimit         int           `json:"body_limit"`
	AllowedOrigins    []string      `json:"allowed_origins"`
	GlobalRateLimit   int           `json:"global_rate_limit"` // requests per minute
	EnableCompression bool          `json:"enable_compression"`
}

type JWTConfig struct {
	SecretKey      string        `json:"secret_key"`
	AccessTokenTTL time.Duration `json:"access_token_ttl"`
	Issuer         string        `json:"issuer"`
	Audience       string        `json:"audience"`
}

type LoggingConfig struct {
	Level            string `json:"level"`  // debug, info, warn, error
	Format           string `json:"format"` // json, text
	Output           string `json:"output"` // stdout, file, both
	FilePath         string `json:"file_path"`
	MaxSize          int    `json:"max_size"` // MB
	MaxBackups       int    `json:"max_backups"`
	MaxAge           int    `json:"max_age"` // days
	Compress         bool   `json:"compress"`
	EnableCaller     bool   `json:"enable_caller"`
	EnableStacktrace bool   `json:"enable_stacktrace"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled     bool   `json:"enabled"`
	Provider    string `json:"provider"` // redis, memory, database
	RedisURL    string `json:"redis_url"`
	RedisDB     int    `json:"redis_db"`
	RedisPrefix string `json:"redis_prefix"`
	// QueryCacheTTLMinutes is how long an ordered result snapshot stays reusable
	QueryCacheTTLMinutes int           `json:"query_cache_ttl_minutes"`
	CleanupInterval      time.Duration `json:"cleanup_interval"`
}

// QueryTTL returns the snapshot lifetime as a duration.
func (c CacheConfig) QueryTTL() time.Duration {
	return time.Duration(c.QueryCacheTTLMinutes) * time.Minute
}

type QueryConfig struct {
	MaxSpatialCandidates int           `json:"max_spatial_candidates"`
	DefaultNumPerPage    int           `json:"default_num_per_page"`
	MaxNumPerPage        int           `json:"max_num_per_page"`
	MaxConeRadiusDeg     float64       `json:"max_cone_radius_deg"`
	RequestTimeout       time.Duration `json:"request_timeout"`
	// TilePartitionStart is the first month (YYYY-MM) with a dedicated localization tile partition
	TilePartitionStart       string `json:"tile_partition_start"`
	TilePartitionMonthsAhead int    `json:"tile_partition_months_ahead"`
}

type CosmologyConfig struct {
	H0  float64 `json:"h0"`
	Om0 float64 `json:"om0"`
}

type DeploymentConfig struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
	CommitHash  string `json:"commit_hash"`
	BuildTime   string `json:"build_time"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	// Load environment variables from .env file
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:             getEnvString("DB_HOST", "localhost"),
			Port:             getEnvInt("DB_PORT", 5432),
			Name:             getEnvString("DB_NAME", "skyportal"),
			User:             getEnvString("DB_USER", "skyportal"),
			Password:         getEnvString("DB_PASSWORD", ""),
			SSLMode:          getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:     getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:     getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime:  getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime:  getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryLog:     getEnvBool("DB_SLOW_QUERY_LOG", true),
			SlowQueryTime:    getEnvDuration("DB_SLOW_QUERY_TIME", 2*time.Second),
			StatementTimeout: getEnvDuration("DB_STATEMENT_TIMEOUT", 60*time.Second),
		},
		Server: ServerConfig{
			Host:              getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:              getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:       getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:      getEnvDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			IdleTimeout:       getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout:   getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:         getEnvInt("SERVER_BODY_LIMIT", 4*1024*1024), // 4MB
			AllowedOrigins:    getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5000"}),
			GlobalRateLimit:   getEnvInt("GLOBAL_RATE_LIMIT", 600),
			EnableCompression: getEnvBool("SERVER_ENABLE_COMPRESSION", true),
		},
		JWT: JWTConfig{
			SecretKey:      getEnvString("JWT_SECRET_KEY", ""),
			AccessTokenTTL: getEnvDuration("JWT_ACCESS_TOKEN_TTL", 24*time.Hour),
			Issuer:         getEnvString("JWT_ISSUER", "skyportal"),
			Audience:       getEnvString("JWT_AUDIENCE", "skyportal-api"),
		},
		Logging: LoggingConfig{
			Level:            getEnvString("LOG_LEVEL", "info"),
			Format:           getEnvString("LOG_FORMAT", "json"),
			Output:           getEnvString("LOG_OUTPUT", "stdout"),
			FilePath:         getEnvString("LOG_FILE_PATH", "/var/log/skyportal/query.log"),
			MaxSize:          getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups:       getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:           getEnvInt("LOG_MAX_AGE", 30),
			Compress:         getEnvBool("LOG_COMPRESS", true),
			EnableCaller:     getEnvBool("LOG_ENABLE_CALLER", true),
			EnableStacktrace: getEnvBool("LOG_ENABLE_STACKTRACE", false),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:              getEnvBool("CACHE_ENABLED", true),
			Provider:             getEnvString("CACHE_PROVIDER", "redis"),
			RedisURL:             getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:              getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix:          getEnvString("CACHE_REDIS_PREFIX", "skyportal:"),
			QueryCacheTTLMinutes: getEnvInt("QUERY_CACHE_TTL_MINUTES", 30),
			CleanupInterval:      getEnvDuration("CACHE_CLEANUP_INTERVAL", 10*time.Minute),
		},
		Query: QueryConfig{
			MaxSpatialCandidates:     getEnvInt("QUERY_MAX_SPATIAL_CANDIDATES", 50000),
			DefaultNumPerPage:        getEnvInt("QUERY_DEFAULT_NUM_PER_PAGE", 100),
			MaxNumPerPage:            getEnvInt("QUERY_MAX_NUM_PER_PAGE", 500),
			MaxConeRadiusDeg:         getEnvFloat("QUERY_MAX_CONE_RADIUS_DEG", 1.0),
			RequestTimeout:           getEnvDuration("QUERY_REQUEST_TIMEOUT", 75*time.Second),
			TilePartitionStart:       getEnvString("QUERY_TILE_PARTITION_START", "2023-04"),
			TilePartitionMonthsAhead: getEnvInt("QUERY_TILE_PARTITION_MONTHS_AHEAD", 12),
		},
		Cosmology: CosmologyConfig{
			H0:  getEnvFloat("COSMOLOGY_H0", 67.66),
			Om0: getEnvFloat("COSMOLOGY_OM0", 0.30966),
		},
		Deployment: DeploymentConfig{
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("VERSION", "1.0.0"),
			CommitHash:  getEnvString("COMMIT_HASH", "unknown"),
			BuildTime:   getEnvString("BUILD_TIME", "unknown"),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// TilePartitionStartTime parses QueryConfig.TilePartitionStart.
func (q QueryConfig) TilePartitionStartTime() (time.Time, error) {
	return time.Parse("2006-01", q.TilePartitionStart)
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := ".env"

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return nil
	}

	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		// Remove quotes if present
		if len(value) >= 2 && ((strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
			(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`))) {
			value = value[1 : len(value)-1]
		}

		// Set environment variable if not already set
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}
	if cfg.Database.Password == "" {
		errors = append(errors, "DB_PASSWORD is required")
	}
	if cfg.Database.StatementTimeout <= 0 {
		errors = append(errors, "DB_STATEMENT_TIMEOUT must be positive")
	}

	// Validate JWT configuration
	if len(cfg.JWT.SecretKey) < 32 {
		errors = append(errors, "JWT_SECRET_KEY must be at least 32 characters long")
	}
	if cfg.JWT.Issuer == "" {
		errors = append(errors, "JWT_ISSUER is required")
	}
	if cfg.JWT.Audience == "" {
		errors = append(errors, "JWT_AUDIENCE is required")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errors = append(errors, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errors = append(errors, "SERVER_WRITE_TIMEOUT must be positive")
	}

	// Validate logging configuration
	if cfg.Logging.Level != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		valid := false
		for _, level := range validLevels {
			if cfg.Logging.Level == level {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
		}
	}
	if cfg.Logging.Output == "file" || cfg.Logging.Output == "both" {
		if cfg.Logging.FilePath == "" {
			errors = append(errors, "LOG_FILE_PATH is required when logging to a file")
		}
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled {
		switch cfg.Cache.Provider {
		case "redis":
			if cfg.Cache.RedisURL == "" {
				errors = append(errors, "CACHE_REDIS_URL is required when cache is enabled with redis provider")
			}
		case "memory", "database":
		default:
			errors = append(errors, "CACHE_PROVIDER must be one of: redis, memory, database")
		}
		if cfg.Cache.QueryCacheTTLMinutes <= 0 {
			errors = append(errors, "QUERY_CACHE_TTL_MINUTES must be positive")
		}
	}

	// Validate query limits
	if cfg.Query.MaxSpatialCandidates <= 0 {
		errors = append(errors, "QUERY_MAX_SPATIAL_CANDIDATES must be positive")
	}
	if cfg.Query.DefaultNumPerPage <= 0 || cfg.Query.DefaultNumPerPage > cfg.Query.MaxNumPerPage {
		errors = append(errors, "QUERY_DEFAULT_NUM_PER_PAGE must be positive and not exceed QUERY_MAX_NUM_PER_PAGE")
	}
	if cfg.Query.MaxConeRadiusDeg <= 0 {
		errors = append(errors, "QUERY_MAX_CONE_RADIUS_DEG must be positive")
	}
	if _, err := cfg.Query.TilePartitionStartTime(); err != nil {
		errors = append(errors, "QUERY_TILE_PARTITION_START must be formatted as YYYY-MM")
	}
	if cfg.Cosmology.H0 <= 0 || cfg.Cosmology.Om0 < 0 || cfg.Cosmology.Om0 > 1 {
		errors = append(errors, "COSMOLOGY_H0 must be positive and COSMOLOGY_OM0 within [0, 1]")
	}

	// Return validation errors if any
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
