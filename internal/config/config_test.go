package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "HUBSPOT_API_KEY", "HUBSPOT_BASE_URL", "HUBSPOT_UPLOAD_FOLDER",
		"CLOUDCONVERT_API_KEY", "CLOUDCONVERT_BASE_URL", "CLOUDCONVERT_SYNC_URL",
		"REQUEST_TIMEOUT_SECONDS", "JOB_WAIT_TIMEOUT_SECONDS", "MAX_BODY_KB",
		"LOG_LEVEL", "LOG_FORMAT", "CORS_ALLOWED_ORIGINS", "CONFIG_FILE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, "https://api.hubapi.com", cfg.HubSpotBaseURL)
	assert.Equal(t, "https://api.cloudconvert.com/v2", cfg.CloudConvertBaseURL)
	assert.Equal(t, "https://sync.api.cloudconvert.com/v2", cfg.CloudConvertSyncURL)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5*time.Minute, cfg.JobWaitTimeout)
	assert.Equal(t, int64(1024*1024), cfg.MaxBodyBytes)
	assert.Empty(t, cfg.CORSAllowedOrigins)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HUBSPOT_API_KEY")
	assert.Contains(t, err.Error(), "CLOUDCONVERT_API_KEY")
}

func TestLoadConfigFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8081")
	t.Setenv("HUBSPOT_API_KEY", "hs")
	t.Setenv("CLOUDCONVERT_API_KEY", "cc")
	t.Setenv("HUBSPOT_BASE_URL", "http://hubspot.local/")
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, "http://hubspot.local", cfg.HubSpotBaseURL)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoadConfigRejectsBadInteger(t *testing.T) {
	clearEnv(t)
	t.Setenv("JOB_WAIT_TIMEOUT_SECONDS", "soon")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JOB_WAIT_TIMEOUT_SECONDS")
}

func TestLoadConfigYAMLOverlay(t *testing.T) {
	clearEnv(t)
	t.Setenv("HUBSPOT_API_KEY", "from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "cloudconvert_api_key: from-file\njob_wait_timeout_seconds: 30\nhubspot_upload_folder: /converted\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.HubSpotAPIKey)
	assert.Equal(t, "from-file", cfg.CloudConvertAPIKey)
	assert.Equal(t, 30*time.Second, cfg.JobWaitTimeout)
	assert.Equal(t, "/converted", cfg.HubSpotUploadFolder)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigEmptyYAMLFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	t.Setenv("CONFIG_FILE", path)

	_, err := LoadConfig()
	require.Error(t, err)
}
