package config

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	HISAPIBase         string        `mapstructure:"HIS_API_BASE"`
	CorrelationBaseURL string        `mapstructure:"CORRELATION_BASE_URL"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	HTTPTimeout        time.Duration `mapstructure:"HTTP_TIMEOUT"`
	SubmitTimeout      time.Duration `mapstructure:"SUBMIT_TIMEOUT"`
	BookingMethod      string        `mapstructure:"BOOKING_METHOD"`
	BookingFacility    string        `mapstructure:"BOOKING_FACILITY"`
	BookingService     string        `mapstructure:"BOOKING_SERVICE"`
	FallbackDestDir    string        `mapstructure:"FALLBACK_DEST_DIR"`
	UNCMountRoot       string        `mapstructure:"UNC_MOUNT_ROOT"`
	SubmitInterval     time.Duration `mapstructure:"SUBMIT_INTERVAL"`
	RedirectDelay      time.Duration `mapstructure:"REDIRECT_DELAY"`
	FlashTTL           time.Duration `mapstructure:"FLASH_TTL"`
	BackupFile         string        `mapstructure:"BACKUP_FILE"`
	LogFile            string        `mapstructure:"LOG_FILE"`
	RegistrationType   string        `mapstructure:"REGISTRATION_TYPE"`
	ProcedureCode      string        `mapstructure:"PROCEDURE_CODE"`
	DefaultOperator    string        `mapstructure:"DEFAULT_OPERATOR"`
	AuthSigningKey     string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	MaxUploadMB        int           `mapstructure:"MAX_UPLOAD_MB"`
}

var keys = []string{
	"PORT", "ENV", "HIS_API_BASE", "CORRELATION_BASE_URL", "DATABASE_URL",
	"DB_MAX_CONNS", "DB_MIN_CONNS", "HTTP_TIMEOUT", "SUBMIT_TIMEOUT",
	"BOOKING_METHOD", "BOOKING_FACILITY", "BOOKING_SERVICE",
	"FALLBACK_DEST_DIR", "UNC_MOUNT_ROOT", "SUBMIT_INTERVAL", "REDIRECT_DELAY",
	"FLASH_TTL", "BACKUP_FILE", "LOG_FILE", "REGISTRATION_TYPE", "PROCEDURE_CODE",
	"DEFAULT_OPERATOR", "AUTH_SIGNING_KEY", "CORS_ORIGINS", "MAX_UPLOAD_MB",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("HIS_API_BASE", "http://172.16.2.51:8070/Medihelp-api")
	v.SetDefault("DB_MAX_CONNS", 4)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("HTTP_TIMEOUT", "10s")
	v.SetDefault("SUBMIT_TIMEOUT", "15s")
	v.SetDefault("BOOKING_METHOD", http.MethodPut)
	v.SetDefault("BOOKING_FACILITY", "ARH01")
	v.SetDefault("BOOKING_SERVICE", "4")
	v.SetDefault("FALLBACK_DEST_DIR", `\\filemh01\USERS\digitalizacion`)
	v.SetDefault("SUBMIT_INTERVAL", "100ms")
	v.SetDefault("REDIRECT_DELAY", "1s")
	v.SetDefault("FLASH_TTL", "5s")
	v.SetDefault("BACKUP_FILE", "data/registros.txt")
	v.SetDefault("LOG_FILE", "logs/folio.log")
	v.SetDefault("CORS_ORIGINS", "http://127.0.0.1:8000")
	v.SetDefault("MAX_UPLOAD_MB", 100)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	cfg.HISAPIBase = strings.TrimRight(cfg.HISAPIBase, "/")
	if cfg.CorrelationBaseURL == "" {
		cfg.CorrelationBaseURL = cfg.HISAPIBase + "/hccom1/hiscsec"
	}
	cfg.BookingMethod = strings.ToUpper(strings.TrimSpace(cfg.BookingMethod))

	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		log.Println("WARNING: AUTH_SIGNING_KEY is empty; every request files as DEFAULT_OPERATOR.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the service is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// UsesDatabaseCorrelation reports whether identity correlation runs against
// the HIS database replica instead of the HTTP correlation endpoint.
func (c *Config) UsesDatabaseCorrelation() bool {
	return c.DatabaseURL != ""
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.HISAPIBase); err != nil {
		return fmt.Errorf("HIS_API_BASE is not a valid URL: %w", err)
	}
	if !c.UsesDatabaseCorrelation() {
		if _, err := url.ParseRequestURI(c.CorrelationBaseURL); err != nil {
			return fmt.Errorf("CORRELATION_BASE_URL is not a valid URL: %w", err)
		}
	}
	switch c.BookingMethod {
	case http.MethodGet, http.MethodPut, http.MethodPost:
	default:
		return fmt.Errorf("BOOKING_METHOD must be GET, PUT or POST, got %q", c.BookingMethod)
	}
	if c.BookingFacility == "" || c.BookingService == "" {
		return fmt.Errorf("BOOKING_FACILITY and BOOKING_SERVICE are required")
	}
	if strings.TrimSpace(c.FallbackDestDir) == "" {
		return fmt.Errorf("FALLBACK_DEST_DIR is required")
	}
	if c.SubmitInterval < 0 {
		return fmt.Errorf("SUBMIT_INTERVAL must not be negative")
	}
	if c.HTTPTimeout <= 0 || c.SubmitTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT and SUBMIT_TIMEOUT must be positive")
	}
	if c.IsProduction() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required in production")
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters, got %d", len(c.AuthSigningKey))
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	return nil
}
