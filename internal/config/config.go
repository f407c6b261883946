package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Environment string `mapstructure:"ENV"`
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`
	CORSOrigins string `mapstructure:"CORS_ORIGINS"` // comma-separated, empty disables CORS

	DBDSN      string        `mapstructure:"DB_DSN"`
	DBMaxConns int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns int32         `mapstructure:"DB_MIN_CONNS"`
	DBTimeout  time.Duration `mapstructure:"DB_TIMEOUT"`

	JWTSecret string `mapstructure:"JWT_SECRET"`
	JWTIssuer string `mapstructure:"JWT_ISSUER"`

	Timezone            string        `mapstructure:"CLINIC_TIMEZONE"`
	SlotDurationMinutes int           `mapstructure:"SLOT_DURATION_MINUTES"`
	SlotCapacity        int           `mapstructure:"SLOT_CAPACITY"`
	GenerateCron        string        `mapstructure:"GENERATE_CRON"`
	PurgeCron           string        `mapstructure:"PURGE_CRON"`
	GenerateWeeksAhead  int           `mapstructure:"GENERATE_WEEKS_AHEAD"`
	JobTimeout          time.Duration `mapstructure:"JOB_TIMEOUT"`
	AutoMigrate         bool          `mapstructure:"AUTO_MIGRATE"`

	TelegramToken  string `mapstructure:"TELEGRAM_TOKEN"`
	TelegramChatID int64  `mapstructure:"TELEGRAM_CHAT_ID"`
}

var keys = []string{
	"ENV", "HTTP_ADDR", "CORS_ORIGINS",
	"DB_DSN", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_TIMEOUT",
	"JWT_SECRET", "JWT_ISSUER",
	"CLINIC_TIMEZONE", "SLOT_DURATION_MINUTES", "SLOT_CAPACITY",
	"GENERATE_CRON", "PURGE_CRON", "GENERATE_WEEKS_AHEAD", "JOB_TIMEOUT", "AUTO_MIGRATE",
	"TELEGRAM_TOKEN", "TELEGRAM_CHAT_ID",
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	return FromEnv()
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	// Устанавливаем дефолтные значения
	v.SetDefault("ENV", "development")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_TIMEOUT", "5s")
	v.SetDefault("JWT_ISSUER", "clinic")
	v.SetDefault("CLINIC_TIMEZONE", "UTC")
	v.SetDefault("SLOT_DURATION_MINUTES", 30)
	v.SetDefault("SLOT_CAPACITY", 1)
	v.SetDefault("GENERATE_CRON", "0 0 * * 0") // Sunday midnight
	v.SetDefault("PURGE_CRON", "30 0 * * *")   // daily
	v.SetDefault("GENERATE_WEEKS_AHEAD", 1)
	v.SetDefault("JOB_TIMEOUT", "5m")
	v.SetDefault("AUTO_MIGRATE", true)

	// Unmarshal видит только явно привязанные переменные
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет обязательные поля и диапазоны
func (c *Config) Validate() error {
	if c.DBDSN == "" {
		return fmt.Errorf("DB_DSN is required but not set")
	}
	if c.JWTSecret == "" && !c.IsDev() {
		return fmt.Errorf("JWT_SECRET is required outside development")
	}
	if c.SlotDurationMinutes <= 0 {
		return fmt.Errorf("SLOT_DURATION_MINUTES must be positive, got %d", c.SlotDurationMinutes)
	}
	if c.SlotCapacity <= 0 {
		return fmt.Errorf("SLOT_CAPACITY must be positive, got %d", c.SlotCapacity)
	}
	if c.DBTimeout <= 0 || c.JobTimeout <= 0 {
		return fmt.Errorf("DB_TIMEOUT and JOB_TIMEOUT must be positive")
	}
	if c.GenerateWeeksAhead < 0 {
		return fmt.Errorf("GENERATE_WEEKS_AHEAD must not be negative")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Environment == "development"
}

// Location returns the clinic time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) SlotDuration() time.Duration {
	return time.Duration(c.SlotDurationMinutes) * time.Minute
}

// NotificationsEnabled reports whether a Telegram chat is configured.
func (c *Config) NotificationsEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// AllowedOrigins splits CORS_ORIGINS into trimmed, non-empty origins.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (c *Config) GetDBDSN() string {
	return c.DBDSN
}
