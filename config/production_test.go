package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("JWT_SECRET_KEY", "test-secret-key-for-jwt-signing-32-chars")
}

func TestLoadProductionConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadProductionConfig()
	require.NoError(t, err)

	assert.Equal(t, 50000, cfg.Query.MaxSpatialCandidates)
	assert.Equal(t, 1.0, cfg.Query.MaxConeRadiusDeg)
	assert.Equal(t, 30*time.Minute, cfg.Cache.QueryTTL())
	assert.Equal(t, 60*time.Second, cfg.Database.StatementTimeout)
	assert.Equal(t, "redis", cfg.Cache.Provider)

	start, err := cfg.Query.TilePartitionStartTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC), start)
}

func TestLoadProductionConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CACHE_PROVIDER", "memory")
	t.Setenv("QUERY_CACHE_TTL_MINUTES", "5")
	t.Setenv("QUERY_MAX_CONE_RADIUS_DEG", "0.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := LoadProductionConfig()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Cache.Provider)
	assert.Equal(t, 5*time.Minute, cfg.Cache.QueryTTL())
	assert.Equal(t, 0.5, cfg.Query.MaxConeRadiusDeg)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestValidateProductionConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *ProductionConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*ProductionConfig) {}},
		{
			name:    "unknown cache provider",
			mutate:  func(cfg *ProductionConfig) { cfg.Cache.Provider = "memcached" },
			wantErr: "CACHE_PROVIDER",
		},
		{
			name:    "bad partition start",
			mutate:  func(cfg *ProductionConfig) { cfg.Query.TilePartitionStart = "April 2023" },
			wantErr: "QUERY_TILE_PARTITION_START",
		},
		{
			name:    "default page larger than max",
			mutate:  func(cfg *ProductionConfig) { cfg.Query.DefaultNumPerPage = 1000 },
			wantErr: "QUERY_DEFAULT_NUM_PER_PAGE",
		},
		{
			name:    "short jwt secret",
			mutate:  func(cfg *ProductionConfig) { cfg.JWT.SecretKey = "short" },
			wantErr: "JWT_SECRET_KEY",
		},
		{
			name:    "file logging without path",
			mutate:  func(cfg *ProductionConfig) { cfg.Logging.Output = "file"; cfg.Logging.FilePath = "" },
			wantErr: "LOG_FILE_PATH",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := ValidateProductionConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func validConfig() *ProductionConfig {
	return &ProductionConfig{
		Database: DatabaseConfig{Host: "localhost", Port: 5432, Name: "skyportal", User: "skyportal", Password: "x", StatementTimeout: time.Minute},
		Server:   ServerConfig{Port: 8080, ReadTimeout: time.Second, WriteTimeout: time.Second},
		JWT:      JWTConfig{SecretKey: "test-secret-key-for-jwt-signing-32-chars", Issuer: "skyportal", Audience: "api"},
		Logging:  LoggingConfig{Level: "info", Output: "stdout"},
		Cache:    CacheConfig{Enabled: true, Provider: "memory", QueryCacheTTLMinutes: 10},
		Query: QueryConfig{
			MaxSpatialCandidates: 50000, DefaultNumPerPage: 100, MaxNumPerPage: 500,
			MaxConeRadiusDeg: 1, TilePartitionStart: "2023-04",
		},
		Cosmology: CosmologyConfig{H0: 67.66, Om0: 0.30966},
	}
}
