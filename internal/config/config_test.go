package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "3000", cfg.AppPort)
	assert.Equal(t, 6, cfg.OTP.Length)
	assert.Equal(t, 10*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, 5*time.Minute, cfg.OTP.SweepInterval)
	assert.Equal(t, 5, cfg.OTP.MaxAttempts)
	assert.Equal(t, BackendMemory, cfg.ExpiringBackend)
	assert.Equal(t, SnapshotFile, cfg.SnapshotSink)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("OTP_TTL", "90s")
	t.Setenv("OTP_MAX_ATTEMPTS", "3")
	t.Setenv("EXPIRING_BACKEND", BackendRedis)
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg := Load()
	assert.Equal(t, 90*time.Second, cfg.OTP.TTL)
	assert.Equal(t, 3, cfg.OTP.MaxAttempts)
	assert.Equal(t, BackendRedis, cfg.ExpiringBackend)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("OTP_TTL", "ten minutes")
	t.Setenv("OTP_LENGTH", "six")
	cfg := Load()
	assert.Equal(t, 10*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, 6, cfg.OTP.Length)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown backend", func(c *Config) { c.ExpiringBackend = "etcd" }, "EXPIRING_BACKEND"},
		{"s3 sink without bucket", func(c *Config) { c.SnapshotSink = SnapshotS3 }, "SNAPSHOT_BUCKET"},
		{"sns without topic", func(c *Config) { c.DeliveryChannel = DeliverySNS }, "SNS_TOPIC_ARN"},
		{"short code", func(c *Config) { c.OTP.Length = 3 }, "OTP_LENGTH"},
		{"zero ttl", func(c *Config) { c.OTP.TTL = 0 }, "OTP_TTL"},
		{"negative attempts", func(c *Config) { c.OTP.MaxAttempts = -1 }, "OTP_MAX_ATTEMPTS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}
