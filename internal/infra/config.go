package infra

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the relay API configuration loaded from environment variables.
type Config struct {
	AppEnv                 string
	Port                   string
	AzureEndpoint          string
	AzureAPIKey            string
	DeploymentName         string
	APIVersion             string
	ImageSize              string
	ImageSaveFolder        string
	PublicBaseURL          string
	CORSAllowedOrigins     []string
	UpstreamConnectTimeout time.Duration
	UpstreamTimeout        time.Duration
	HTTPReadTimeout        time.Duration
	HTTPWriteTimeout       time.Duration
	HTTPIdleTimeout        time.Duration
}

// LoadConfig loads the relay configuration and fails fast when provider
// credentials are missing.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:                 getEnv("APP_ENV", "development"),
		Port:                   getEnv("PORT", "8000"),
		AzureEndpoint:          strings.TrimSpace(os.Getenv("AZURE_OPENAI_ENDPOINT")),
		AzureAPIKey:            strings.TrimSpace(os.Getenv("AZURE_OPENAI_KEY")),
		DeploymentName:         getEnv("DEPLOYMENT_NAME", "dall-e-3"),
		APIVersion:             getEnv("API_VERSION", "2024-02-01"),
		ImageSize:              getEnv("IMAGE_SIZE", "1024x1024"),
		ImageSaveFolder:        getEnv("IMAGE_SAVE_FOLDER", "generated_images"),
		PublicBaseURL:          strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/"),
		CORSAllowedOrigins:     splitCSV(os.Getenv("CORS_ALLOWED_ORIGINS")),
		UpstreamConnectTimeout: time.Second * time.Duration(getEnvInt("UPSTREAM_CONNECT_TIMEOUT_SECONDS", 10)),
		UpstreamTimeout:        upstreamTimeout(),
		HTTPReadTimeout:        time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:       time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 300)),
		HTTPIdleTimeout:        time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.AzureEndpoint == "" {
		return nil, fmt.Errorf("AZURE_OPENAI_ENDPOINT is required")
	}
	if cfg.AzureAPIKey == "" {
		return nil, fmt.Errorf("AZURE_OPENAI_KEY is required")
	}
	if cfg.UpstreamConnectTimeout <= 0 {
		cfg.UpstreamConnectTimeout = 10 * time.Second
	}

	return cfg, nil
}

// WebConfig represents the companion UI configuration.
type WebConfig struct {
	AppEnv            string
	Port              string
	BackendBaseURL    string
	PublicURL         string
	PaystackSecretKey string
	PaystackBaseURL   string
	SessionSecret     string
	CookieSecure      bool
	PaymentAmount     int64
	PaymentCurrency   string
	SessionTTL        time.Duration
	DatabaseURL       string
	GeoIPDBPath       string
	DefaultLocale     string
	BackendTimeout    time.Duration
	HTTPReadTimeout   time.Duration
	HTTPWriteTimeout  time.Duration
	HTTPIdleTimeout   time.Duration
}

// LoadWebConfig loads the UI configuration. The payment secret and the
// backend location have no defaults.
func LoadWebConfig() (*WebConfig, error) {
	cfg := &WebConfig{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              getEnv("WEB_PORT", "8501"),
		BackendBaseURL:    strings.TrimRight(strings.TrimSpace(os.Getenv("BACKEND_BASE_URL")), "/"),
		PublicURL:         strings.TrimRight(getEnv("WEB_PUBLIC_URL", "http://localhost:8501"), "/"),
		PaystackSecretKey: strings.TrimSpace(os.Getenv("PAYSTACK_SECRET_KEY")),
		PaystackBaseURL:   strings.TrimRight(getEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"), "/"),
		SessionSecret:     strings.TrimSpace(os.Getenv("SESSION_SECRET")),
		PaymentAmount:     int64(getEnvInt("PAYMENT_AMOUNT", 500000)),
		PaymentCurrency:   strings.ToUpper(getEnv("PAYMENT_CURRENCY", "NGN")),
		SessionTTL:        time.Minute * time.Duration(getEnvInt("SESSION_TTL_MINUTES", 120)),
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		GeoIPDBPath:       strings.TrimSpace(os.Getenv("GEOIP_DB_PATH")),
		DefaultLocale:     getEnv("DEFAULT_LOCALE", "en"),
		BackendTimeout:    time.Second * time.Duration(getEnvInt("BACKEND_TIMEOUT_SECONDS", 0)),
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 300)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.BackendBaseURL == "" {
		return nil, fmt.Errorf("BACKEND_BASE_URL is required")
	}
	if cfg.PaystackSecretKey == "" {
		return nil, fmt.Errorf("PAYSTACK_SECRET_KEY is required")
	}
	if cfg.PaymentAmount <= 0 {
		return nil, fmt.Errorf("PAYMENT_AMOUNT must be positive")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 2 * time.Hour
	}
	if cfg.SessionSecret == "" {
		// sessions live in memory, so a per-process key loses nothing on restart
		secret, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		cfg.SessionSecret = secret
	}
	cfg.CookieSecure = strings.HasPrefix(cfg.PublicURL, "https://")
	// the API makes two sequential upstream calls per generation
	if minimum := 2*upstreamTimeout() + backendTimeoutSlack; cfg.BackendTimeout < minimum || cfg.BackendTimeout > 2*maxUpstreamTimeout+backendTimeoutSlack {
		cfg.BackendTimeout = minimum
	}

	return cfg, nil
}

const (
	defaultUpstreamTimeout = 120 * time.Second
	maxUpstreamTimeout     = 10 * time.Minute
	backendTimeoutSlack    = 30 * time.Second
)

// upstreamTimeout reads UPSTREAM_TIMEOUT_SECONDS, shared by the API's
// provider calls and the UI's wait on the API.
func upstreamTimeout() time.Duration {
	d := time.Second * time.Duration(getEnvInt("UPSTREAM_TIMEOUT_SECONDS", 120))
	if d <= 0 || d > maxUpstreamTimeout {
		return defaultUpstreamTimeout
	}
	return d
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return fallback
}

func splitCSV(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
