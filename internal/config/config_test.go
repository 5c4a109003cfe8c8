package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, 30*time.Second, cfg.SchoolAPITimeout)
	assert.Equal(t, "redis", cfg.SessionBackend)
	assert.True(t, cfg.AuditEnabled)
	assert.False(t, cfg.CloudinaryEnabled())
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
}

func TestLoadEnvAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	err := os.WriteFile(path, []byte("SCHOOL_API_URL=https://school.example/api\nRATE_LIMIT_PER_MIN=30\n"), 0o600)
	assert.NoError(t, err)
	t.Cleanup(func() {
		os.Unsetenv("SCHOOL_API_URL")
		os.Unsetenv("RATE_LIMIT_PER_MIN")
	})

	t.Setenv("APP_ENV", "production")
	t.Setenv("SESSION_TTL", "90m")
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("AUDIT_ENABLED", "off")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://console.school.example, ,http://localhost:5173")

	cfg := Load(path)
	assert.True(t, cfg.Production())
	assert.Equal(t, "https://school.example/api", cfg.SchoolAPIURL)
	assert.Equal(t, 30, cfg.RateLimitPerMin)
	assert.Equal(t, 90*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.False(t, cfg.AuditEnabled)
	assert.Equal(t, []string{"https://console.school.example", "http://localhost:5173"}, cfg.CORSOrigins)
}
