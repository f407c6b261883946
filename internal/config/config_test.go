package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/clinic")
	t.Setenv("ENV", "development")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Minute, cfg.SlotDuration())
	assert.Equal(t, 1, cfg.SlotCapacity)
	assert.Equal(t, 5*time.Second, cfg.DBTimeout)
	assert.Equal(t, 5*time.Minute, cfg.JobTimeout)
	assert.Equal(t, "0 0 * * 0", cfg.GenerateCron)
	assert.True(t, cfg.AutoMigrate)
	assert.False(t, cfg.NotificationsEnabled())
	assert.Empty(t, cfg.AllowedOrigins())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/clinic")
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("SLOT_DURATION_MINUTES", "20")
	t.Setenv("SLOT_CAPACITY", "3")
	t.Setenv("DB_TIMEOUT", "2s")
	t.Setenv("CLINIC_TIMEZONE", "Africa/Nairobi")
	t.Setenv("TELEGRAM_TOKEN", "token")
	t.Setenv("TELEGRAM_CHAT_ID", "-100123")
	t.Setenv("CORS_ORIGINS", "https://clinic.example, http://localhost:3000,")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 20*time.Minute, cfg.SlotDuration())
	assert.Equal(t, 3, cfg.SlotCapacity)
	assert.Equal(t, 2*time.Second, cfg.DBTimeout)
	assert.Equal(t, int64(-100123), cfg.TelegramChatID)
	assert.True(t, cfg.NotificationsEnabled())
	assert.False(t, cfg.IsDev())
	assert.Equal(t, []string{"https://clinic.example", "http://localhost:3000"}, cfg.AllowedOrigins())
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing dsn", map[string]string{"DB_DSN": ""}, "DB_DSN"},
		{"secret outside dev", map[string]string{"ENV": "production", "JWT_SECRET": ""}, "JWT_SECRET"},
		{"zero duration", map[string]string{"SLOT_DURATION_MINUTES": "0"}, "SLOT_DURATION_MINUTES"},
		{"zero capacity", map[string]string{"SLOT_CAPACITY": "0"}, "SLOT_CAPACITY"},
		{"bad timezone", map[string]string{"CLINIC_TIMEZONE": "Mars/Olympus"}, "CLINIC_TIMEZONE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DB_DSN", "postgres://localhost/clinic")
			t.Setenv("ENV", "development")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
