package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// maxTransactionTTL bounds the lifetime of an in-flight OAuth transaction.
const maxTransactionTTL = 600 * time.Second

// OAuthClient holds a provider's client credentials.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
}

// Configured reports whether both halves of the credential pair are present.
func (c OAuthClient) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// VercelIntegration holds the Vercel integration registration.
type VercelIntegration struct {
	Slug         string
	ClientID     string
	ClientSecret string
	TeamID       string
}

// Configured reports whether a connect flow can be started.
func (v VercelIntegration) Configured() bool {
	return v.Slug != "" && v.ClientID != "" && v.ClientSecret != ""
}

// Vault holds the external secret store connection settings.
type Vault struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	WorkspaceID  string
	Environment  string
	Timeout      time.Duration
}

// Config contains runtime configuration values.
type Config struct {
	Environment          string
	HTTPPort             string
	DatabaseURL          string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	Vault                Vault
	Google               OAuthClient
	GitHub               OAuthClient
	Microsoft            OAuthClient
	MicrosoftTenant      string
	Vercel               VercelIntegration
	RedirectBaseURL      string
	AfterLoginURL        string
	SessionTTL           time.Duration
	APITokenTTL          time.Duration
	TransactionTTL       time.Duration
	ProviderTimeout      time.Duration
	SandboxEndpoint      string
	ServiceName          string
	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Secure reports whether cookies must carry the Secure attribute.
func (c Config) Secure() bool {
	return c.Environment != "development"
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:   getEnv("APP_ENV", "development"),
		HTTPPort:      getEnv("HTTP_PORT", "8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),
		Vault: Vault{
			BaseURL:      strings.TrimRight(getEnv("VAULT_URL", "https://vault.example/api"), "/"),
			ClientID:     strings.TrimSpace(os.Getenv("VAULT_CLIENT_ID")),
			ClientSecret: strings.TrimSpace(os.Getenv("VAULT_CLIENT_SECRET")),
			WorkspaceID:  strings.TrimSpace(os.Getenv("VAULT_WORKSPACE_ID")),
			Environment:  getEnv("VAULT_ENVIRONMENT", "prod"),
			Timeout:      getDuration("VAULT_TIMEOUT", 10*time.Second),
		},
		Google:          oauthClient("GOOGLE"),
		GitHub:          oauthClient("GITHUB"),
		Microsoft:       oauthClient("MICROSOFT"),
		MicrosoftTenant: getEnv("MICROSOFT_TENANT", "common"),
		Vercel: VercelIntegration{
			Slug:         strings.TrimSpace(os.Getenv("VERCEL_INTEGRATION_SLUG")),
			ClientID:     strings.TrimSpace(os.Getenv("VERCEL_CLIENT_ID")),
			ClientSecret: strings.TrimSpace(os.Getenv("VERCEL_CLIENT_SECRET")),
			TeamID:       strings.TrimSpace(os.Getenv("VERCEL_TEAM_ID")),
		},
		RedirectBaseURL:      strings.TrimRight(getEnv("AUTH_REDIRECT_BASE", "http://localhost:8080"), "/"),
		AfterLoginURL:        getEnv("AFTER_LOGIN_URL", "/"),
		SessionTTL:           getDuration("SESSION_TTL", 30*24*time.Hour),
		APITokenTTL:          getDuration("API_TOKEN_TTL", 90*24*time.Hour),
		TransactionTTL:       getDuration("OAUTH_TRANSACTION_TTL", maxTransactionTTL),
		ProviderTimeout:      getDuration("PROVIDER_TIMEOUT", 10*time.Second),
		SandboxEndpoint:      strings.TrimSpace(os.Getenv("SANDBOX_ENDPOINT")),
		ServiceName:          getEnv("SERVICE_NAME", "viagen-dashboard"),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type", "X-Organization"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", true),
	}

	if cfg.DatabaseURL == "" && cfg.Environment != "development" {
		return Config{}, fmt.Errorf("DATABASE_URL is required outside development")
	}
	if cfg.Vault.ClientID == "" || cfg.Vault.ClientSecret == "" {
		return Config{}, fmt.Errorf("VAULT_CLIENT_ID and VAULT_CLIENT_SECRET are required")
	}
	if cfg.Vault.WorkspaceID == "" {
		return Config{}, fmt.Errorf("VAULT_WORKSPACE_ID is required")
	}

	if cfg.TransactionTTL <= 0 || cfg.TransactionTTL > maxTransactionTTL {
		cfg.TransactionTTL = maxTransactionTTL
	}

	return cfg, nil
}

func oauthClient(prefix string) OAuthClient {
	return OAuthClient{
		ClientID:     strings.TrimSpace(os.Getenv(prefix + "_CLIENT_ID")),
		ClientSecret: strings.TrimSpace(os.Getenv(prefix + "_CLIENT_SECRET")),
	}
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
