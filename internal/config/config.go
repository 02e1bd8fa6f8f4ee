package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for our application
type Config struct {
	Port        string
	Origins     []string
	Environment string
	APIVersion  string
	LogLevel    string
	AppURL      string
	Database    DatabaseConfig
	JWT         JWTConfig
	Auth        AuthConfig
	Scheduling  SchedulingConfig
	Video       VideoConfig
	Mailer      MailerConfig
	RateLimit   RateLimitConfig
}

// DatabaseConfig holds database connection details
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Name     string
	DSN      string
}

// JWTConfig holds signing secrets and token constants.
type JWTConfig struct {
	Secret        string
	RefreshSecret string
	Issuer        string
	Audience      string
}

// AuthConfig holds lifetimes of the one-time codes.
type AuthConfig struct {
	OTPExpiry       time.Duration
	ResetCodeExpiry time.Duration
}

// SchedulingConfig holds booking rules.
type SchedulingConfig struct {
	Location     *time.Location
	SlotDuration time.Duration
}

// VideoConfig holds the video room provider settings.
type VideoConfig struct {
	DailyAPIKey string
	DailyAPIURL string
	Timeout     time.Duration
	FallbackURL string
}

// MailerConfig holds email service configuration
type MailerConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	DefaultFrom string
}

// RateLimitConfig selects the limiter backend.
type RateLimitConfig struct {
	Enabled  bool
	RedisURL string
}

// Development fallbacks for the signing secrets. LoadConfig rejects them in production.
const (
	defaultJWTSecret     = "default_jwt_secret"
	defaultRefreshSecret = "default_refresh_secret"
)

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "3306"),
		Username: getEnv("DB_USERNAME", "root"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "medvision"),
	}

	// Times are stored in UTC; business-local month math happens in the services.
	dbConfig.DSN = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		dbConfig.Username, dbConfig.Password, dbConfig.Host, dbConfig.Port, dbConfig.Name)

	otpMinutes, err := getInt("OTP_EXPIRY_MINUTES", 10)
	if err != nil {
		return nil, err
	}
	resetMinutes, err := getInt("PASSWORD_RESET_CODE_EXPIRY_MINUTES", 15)
	if err != nil {
		return nil, err
	}
	slotMinutes, err := getInt("SLOT_DURATION_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	if slotMinutes < 0 {
		return nil, fmt.Errorf("invalid SLOT_DURATION_MINUTES: must not be negative")
	}
	videoTimeout, err := getInt("VIDEO_TIMEOUT_SECONDS", 10)
	if err != nil {
		return nil, err
	}
	smtpPort, err := getInt("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}
	rateLimitEnabled, err := strconv.ParseBool(getEnv("RATE_LIMIT_ENABLED", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_ENABLED: %w", err)
	}

	tz := getEnv("BUSINESS_TIMEZONE", "America/Sao_Paulo")
	location, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid BUSINESS_TIMEZONE: %w", err)
	}

	cfg := &Config{
		Port:        getEnv("PORT", "3333"),
		Origins:     splitList(getEnv("ORIGIN", "http://localhost:5173")),
		Environment: getEnv("NODE_ENV", "development"),
		APIVersion:  getEnv("API_VERSION", "1"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		AppURL:      getEnv("APP_URL", "http://localhost:5173"),
		Database:    dbConfig,
		JWT: JWTConfig{
			Secret:        getEnv("JWT_SECRET", defaultJWTSecret),
			RefreshSecret: getEnv("JWT_REFRESH_SECRET", defaultRefreshSecret),
			Issuer:        getEnv("JWT_ISSUER", "medvision-auth"),
			Audience:      getEnv("JWT_AUDIENCE", "medvision"),
		},
		Auth: AuthConfig{
			OTPExpiry:       time.Duration(otpMinutes) * time.Minute,
			ResetCodeExpiry: time.Duration(resetMinutes) * time.Minute,
		},
		Scheduling: SchedulingConfig{
			Location:     location,
			SlotDuration: time.Duration(slotMinutes) * time.Minute,
		},
		Video: VideoConfig{
			DailyAPIKey: getEnv("DAILY_API_KEY", ""),
			DailyAPIURL: getEnv("DAILY_API_URL", "https://api.daily.co/v1"),
			Timeout:     time.Duration(videoTimeout) * time.Second,
			FallbackURL: getEnv("MEETING_FALLBACK_URL", "https://meet.medvision.local"),
		},
		Mailer: MailerConfig{
			Host:        getEnv("SMTP_HOST", ""),
			Port:        smtpPort,
			Username:    getEnv("SMTP_USERNAME", ""),
			Password:    getEnv("SMTP_PASSWORD", ""),
			DefaultFrom: getEnv("MAILER_DEFAULT_FROM", "MedVision <no-reply@medvision.local>"),
		},
		RateLimit: RateLimitConfig{
			Enabled:  rateLimitEnabled,
			RedisURL: getEnv("REDIS_URL", ""),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !c.IsProduction() {
		return nil
	}
	if c.JWT.Secret == "" || c.JWT.Secret == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	if c.JWT.RefreshSecret == "" || c.JWT.RefreshSecret == defaultRefreshSecret {
		return fmt.Errorf("JWT_REFRESH_SECRET must be set in production")
	}
	return nil
}

// IsProduction reports whether secure cookies should be issued.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Helper function to get environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
