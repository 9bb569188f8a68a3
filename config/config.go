package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

// ProviderFirestore is the only backend provider currently supported.
const ProviderFirestore = "firestore"

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	JWT       JWTConfig
	Cleanup   CleanupConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port        string
	Host        string
	Environment string
}

// BackendConfig selects and parameterizes the backend store, including the
// initialization retry policy.
type BackendConfig struct {
	Provider        string
	ProjectID       string
	CredentialsPath string

	MaxRetryAttempts int
	RetryBaseDelay   time.Duration
	ProbeTimeout     time.Duration
}

type JWTConfig struct {
	Secret                 string
	Expiration             time.Duration
	RefreshTokenExpiration time.Duration
}

// CleanupConfig parameterizes the session reconciliation loop.
type CleanupConfig struct {
	SessionTimeout time.Duration
	SweepInterval  time.Duration
	BatchSize      int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Host:        getEnv("HOST", "0.0.0.0"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Backend: BackendConfig{
			Provider:         getEnv("BACKEND_PROVIDER", ProviderFirestore),
			ProjectID:        getEnv("FIREBASE_PROJECT_ID", ""),
			CredentialsPath:  getEnv("FIREBASE_CREDENTIALS_PATH", "./serviceAccountKey.json"),
			MaxRetryAttempts: parseInt(getEnv("INIT_MAX_RETRY_ATTEMPTS", "3"), 3),
			RetryBaseDelay:   parseDuration(getEnv("INIT_RETRY_BASE_DELAY", "2s"), 2*time.Second),
			ProbeTimeout:     parseDuration(getEnv("INIT_PROBE_TIMEOUT", "10s"), 10*time.Second),
		},
		JWT: JWTConfig{
			Secret:                 getEnv("JWT_SECRET", "dev-secret-key"),
			Expiration:             parseDuration(getEnv("JWT_EXPIRATION", "30m"), 30*time.Minute),
			RefreshTokenExpiration: parseDuration(getEnv("REFRESH_TOKEN_EXPIRATION", "168h"), 7*24*time.Hour),
		},
		Cleanup: CleanupConfig{
			SessionTimeout: parseDuration(getEnv("SESSION_TIMEOUT", "24h"), 24*time.Hour),
			SweepInterval:  parseDuration(getEnv("SWEEP_INTERVAL", "1h"), time.Hour),
			BatchSize:      parseInt(getEnv("CLEANUP_BATCH_SIZE", "100"), 100),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseStringSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		},
		RateLimit: RateLimitConfig{
			Requests: parseInt(getEnv("RATE_LIMIT_REQUESTS", "100"), 100),
			Window:   parseDuration(getEnv("RATE_LIMIT_WINDOW", "60"), 60*time.Second),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, defaultValue int) int {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	return defaultValue
}

func parseDuration(s string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	// If it's just a number, assume seconds
	if i, err := strconv.Atoi(s); err == nil {
		return time.Duration(i) * time.Second
	}
	return defaultValue
}

func parseStringSlice(s string) []string {
	if s == "" {
		return []string{}
	}
	result := []string{}
	for i := 0; i < len(s); {
		end := i
		for end < len(s) && s[end] != ',' {
			end++
		}
		if i < end {
			result = append(result, s[i:end])
		}
		i = end + 1
	}
	return result
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// Validate exits on fatal misconfiguration of the serving surface. Backend
// connection settings are validated separately (see BackendConfig.Validate)
// so the initializer can classify them instead of killing the process.
func (c *Config) Validate() {
	if c.JWT.Secret == "dev-secret-key" && c.IsProduction() {
		log.Fatal("JWT_SECRET must be set in production")
	}
	if c.Cleanup.BatchSize <= 0 {
		log.Fatal("CLEANUP_BATCH_SIZE must be positive")
	}
	if c.Backend.MaxRetryAttempts <= 0 {
		log.Fatal("INIT_MAX_RETRY_ATTEMPTS must be positive")
	}
}

// Validate checks that the backend selection is usable. Returned errors are
// operator errors: non-retryable, with actionable guidance.
func (b *BackendConfig) Validate() error {
	if b.Provider == "" {
		return errors.New("no backend provider selected: set BACKEND_PROVIDER")
	}
	if b.Provider != ProviderFirestore {
		return fmt.Errorf("invalid backend provider %q: only %q is supported", b.Provider, ProviderFirestore)
	}
	if b.ProjectID == "" {
		return errors.New("missing backend project: set FIREBASE_PROJECT_ID")
	}
	if _, err := os.Stat(b.CredentialsPath); os.IsNotExist(err) {
		return fmt.Errorf("backend credentials file not found: %s", b.CredentialsPath)
	}
	return nil
}
