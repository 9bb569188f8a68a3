package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, ProviderFirestore, cfg.Backend.Provider)
	assert.Equal(t, 3, cfg.Backend.MaxRetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.Backend.RetryBaseDelay)
	assert.Equal(t, 10*time.Second, cfg.Backend.ProbeTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Cleanup.SessionTimeout)
	assert.Equal(t, time.Hour, cfg.Cleanup.SweepInterval)
	assert.Equal(t, 100, cfg.Cleanup.BatchSize)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORS.AllowedOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BACKEND_PROVIDER", "firestore")
	t.Setenv("FIREBASE_PROJECT_ID", "formkeeper-prod")
	t.Setenv("INIT_MAX_RETRY_ATTEMPTS", "5")
	t.Setenv("INIT_RETRY_BASE_DELAY", "500ms")
	t.Setenv("SESSION_TIMEOUT", "12h")
	t.Setenv("ALLOWED_ORIGINS", "https://surveys.example.com,https://admin.example.com")

	cfg := Load()

	assert.Equal(t, "formkeeper-prod", cfg.Backend.ProjectID)
	assert.Equal(t, 5, cfg.Backend.MaxRetryAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Backend.RetryBaseDelay)
	assert.Equal(t, 12*time.Hour, cfg.Cleanup.SessionTimeout)
	assert.Equal(t, []string{"https://surveys.example.com", "https://admin.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestParseDurationBareSeconds(t *testing.T) {
	// A bare number is read as seconds, matching how RATE_LIMIT_WINDOW is set.
	assert.Equal(t, 60*time.Second, parseDuration("60", time.Minute))
	assert.Equal(t, 90*time.Second, parseDuration("1m30s", 0))
	assert.Equal(t, 5*time.Second, parseDuration("garbage", 5*time.Second))
}

func TestBackendConfigValidate(t *testing.T) {
	creds := filepath.Join(t.TempDir(), "serviceAccountKey.json")
	require.NoError(t, os.WriteFile(creds, []byte("{}"), 0o600))

	tests := []struct {
		name    string
		cfg     BackendConfig
		wantErr string
	}{
		{
			name:    "no provider",
			cfg:     BackendConfig{},
			wantErr: "no backend provider selected",
		},
		{
			name:    "unsupported provider",
			cfg:     BackendConfig{Provider: "dynamodb"},
			wantErr: `invalid backend provider "dynamodb"`,
		},
		{
			name:    "missing project",
			cfg:     BackendConfig{Provider: ProviderFirestore},
			wantErr: "missing backend project",
		},
		{
			name:    "missing credentials file",
			cfg:     BackendConfig{Provider: ProviderFirestore, ProjectID: "p", CredentialsPath: "/nonexistent/key.json"},
			wantErr: "backend credentials file not found",
		},
		{
			name: "valid",
			cfg:  BackendConfig{Provider: ProviderFirestore, ProjectID: "p", CredentialsPath: creds},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
