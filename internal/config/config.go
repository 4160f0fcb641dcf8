package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string
	// LogFormat is "json" (default) or "text".
	LogFormat string

	SiteURL          string
	SalonName        string
	BusinessTimezone string

	GoogleServiceAccountJSON string
	CalendarIDAna            string
	CalendarIDGlenda         string
	// StaffConfigFile points at an optional YAML roster replacing the default
	// two-stylist roster.
	StaffConfigFile    string
	AvailabilitySource string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeDryRun        bool
	DepositAmount       int
	DepositCurrency     string

	RedisAddr           string
	RedisPassword       string
	CheckoutMaxPerEmail int
	CheckoutWindow      time.Duration

	CORSAllowedOrigins   []string
	TrustProxyHeaders    bool
	RateLimitRPS         float64
	RateLimitBurst       int
	EnableDebugEndpoints bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(strings.TrimSpace(getEnv("LOG_FORMAT", "json"))),

		SiteURL:          strings.TrimRight(getEnv("SITE_URL", ""), "/"),
		SalonName:        getEnv("SALON_NAME", "Copacabana Beauty"),
		BusinessTimezone: getEnv("BUSINESS_TIMEZONE", "Europe/London"),

		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		CalendarIDAna:            getEnv("CALENDAR_ID_ANA", ""),
		CalendarIDGlenda:         getEnv("CALENDAR_ID_GLENDA", ""),
		StaffConfigFile:          getEnv("STAFF_CONFIG_FILE", ""),
		AvailabilitySource:       strings.ToLower(strings.TrimSpace(getEnv("AVAILABILITY_SOURCE", "freebusy"))),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeDryRun:        getEnvAsBool("STRIPE_DRY_RUN", false),
		DepositAmount:       getEnvAsInt("DEPOSIT_AMOUNT", 2000),
		DepositCurrency:     strings.ToLower(getEnv("DEPOSIT_CURRENCY", "gbp")),

		RedisAddr:           getEnv("REDIS_ADDR", ""),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		CheckoutMaxPerEmail: getEnvAsInt("CHECKOUT_MAX_PER_EMAIL", 5),
		CheckoutWindow:      getEnvAsDuration("CHECKOUT_WINDOW", time.Hour),

		CORSAllowedOrigins:   getEnvAsList("CORS_ALLOWED_ORIGINS"),
		TrustProxyHeaders:    getEnvAsBool("TRUST_PROXY_HEADERS", false),
		RateLimitRPS:         getEnvAsFloat("RATE_LIMIT_RPS", 1),
		RateLimitBurst:       getEnvAsInt("RATE_LIMIT_BURST", 5),
		EnableDebugEndpoints: getEnvAsBool("ENABLE_DEBUG_ENDPOINTS", false),
	}
}

// Location resolves BusinessTimezone, falling back to UTC when unknown.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.BusinessTimezone)
	if err != nil {
		return time.UTC, err
	}
	return loc, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping empty entries.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
