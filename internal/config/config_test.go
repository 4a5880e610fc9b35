package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, 168*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 64, cfg.FeedBuffer)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORAGE", " Postgres ")
	t.Setenv("DATABASE_URL", "postgres://localhost/feed")
	t.Setenv("REQUEST_TIMEOUT", "3s")
	t.Setenv("SEED", "true")

	v := viper.New()
	v.AutomaticEnv()
	cfg, err := load(v)
	require.NoError(t, err)

	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, "postgres://localhost/feed", cfg.DatabaseURL)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.Seed)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:           "8080",
			Storage:        StorageMemory,
			JWTSecret:      "secret",
			FeedBuffer:     64,
			RequestTimeout: time.Second,
			Env:            "development",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing port", func(c *Config) { c.Port = "" }, "PORT is required"},
		{"unknown storage", func(c *Config) { c.Storage = "sqlite" }, `unknown STORAGE "sqlite"`},
		{"postgres without dsn", func(c *Config) { c.Storage = StoragePostgres }, "DATABASE_URL is required for postgres storage"},
		{"production default secret", func(c *Config) {
			c.Env = "production"
			c.JWTSecret = defaultJWTSecret
		}, "JWT_SECRET must be changed from the default value in production"},
		{"production short secret", func(c *Config) {
			c.Env = "prod"
			c.JWTSecret = "short"
		}, "JWT_SECRET must be at least 32 characters in production"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}
