package config

import (
	"strings"
	"time"

	"cinelog/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=cinelog port=5432 sslmode=disable TimeZone=UTC"

type Config struct {
	Env            string
	Port           string
	DatabaseURL    string
	SessionSecret  string
	SiteURL        string
	LogLevel       string
	LogFormat      string
	TMDBAPIKey     string
	TMDBBaseURL    string
	TMDBImageURL   string
	SMTPHost       string
	SMTPPort       string
	SMTPUser       string
	SMTPPass       string
	SMTPFrom       string
	AdminEmail     string
	AdminPassword  string
	RepairInterval time.Duration
}

// SetDefaults registers every known key with its fallback value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "local")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", defaultDSN)
	v.SetDefault("SESSION_SECRET", "secret_key_change_me")
	v.SetDefault("SITE_URL", "http://localhost:8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("TMDB_API_KEY", "")
	v.SetDefault("TMDB_BASE_URL", "https://api.themoviedb.org/3")
	v.SetDefault("TMDB_IMAGE_URL", "https://image.tmdb.org/t/p/w500")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", "")
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASS", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("ADMIN_EMAIL", "")
	v.SetDefault("ADMIN_PASSWORD", "")
	v.SetDefault("REPAIR_INTERVAL", "24h")
}

// Load reads .env (if any) and the process environment.
func Load() *Config {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		logger.For(nil).Debug("No .env file found, reading config from environment")
	}

	v := viper.New()
	SetDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return FromViper(v)
}

func FromViper(v *viper.Viper) *Config {
	interval := v.GetDuration("REPAIR_INTERVAL")
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	return &Config{
		Env:            v.GetString("ENV"),
		Port:           v.GetString("PORT"),
		DatabaseURL:    v.GetString("DATABASE_URL"),
		SessionSecret:  v.GetString("SESSION_SECRET"),
		SiteURL:        strings.TrimSuffix(v.GetString("SITE_URL"), "/"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		LogFormat:      v.GetString("LOG_FORMAT"),
		TMDBAPIKey:     v.GetString("TMDB_API_KEY"),
		TMDBBaseURL:    strings.TrimSuffix(v.GetString("TMDB_BASE_URL"), "/"),
		TMDBImageURL:   v.GetString("TMDB_IMAGE_URL"),
		SMTPHost:       v.GetString("SMTP_HOST"),
		SMTPPort:       v.GetString("SMTP_PORT"),
		SMTPUser:       v.GetString("SMTP_USER"),
		SMTPPass:       v.GetString("SMTP_PASS"),
		SMTPFrom:       v.GetString("SMTP_FROM"),
		AdminEmail:     v.GetString("ADMIN_EMAIL"),
		AdminPassword:  v.GetString("ADMIN_PASSWORD"),
		RepairInterval: interval,
	}
}
