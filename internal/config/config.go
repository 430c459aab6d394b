package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port                string
	HubSpotAPIKey       string
	HubSpotBaseURL      string
	HubSpotUploadFolder string
	CloudConvertAPIKey  string
	CloudConvertBaseURL string
	CloudConvertSyncURL string
	RequestTimeout      time.Duration
	JobWaitTimeout      time.Duration
	MaxBodyBytes        int64
	LogLevel            string
	LogFormat           string
	CORSAllowedOrigins  []string
}

// fileConfig mirrors Config with pointer fields so the YAML overlay only
// replaces keys that are present in the file.
type fileConfig struct {
	Port                *string  `yaml:"port"`
	HubSpotAPIKey       *string  `yaml:"hubspot_api_key"`
	HubSpotBaseURL      *string  `yaml:"hubspot_base_url"`
	HubSpotUploadFolder *string  `yaml:"hubspot_upload_folder"`
	CloudConvertAPIKey  *string  `yaml:"cloudconvert_api_key"`
	CloudConvertBaseURL *string  `yaml:"cloudconvert_base_url"`
	CloudConvertSyncURL *string  `yaml:"cloudconvert_sync_url"`
	RequestTimeout      *int64   `yaml:"request_timeout_seconds"`
	JobWaitTimeout      *int64   `yaml:"job_wait_timeout_seconds"`
	MaxBodyKB           *int64   `yaml:"max_body_kb"`
	LogLevel            *string  `yaml:"log_level"`
	LogFormat           *string  `yaml:"log_format"`
	CORSAllowedOrigins  []string `yaml:"cors_allowed_origins"`
}

func LoadConfig() (Config, error) {
	cfg := Config{}

	cfg.Port = envOrDefault("PORT", "5000")
	cfg.HubSpotAPIKey = os.Getenv("HUBSPOT_API_KEY")
	cfg.HubSpotBaseURL = envOrDefault("HUBSPOT_BASE_URL", "https://api.hubapi.com")
	cfg.HubSpotUploadFolder = os.Getenv("HUBSPOT_UPLOAD_FOLDER")
	cfg.CloudConvertAPIKey = os.Getenv("CLOUDCONVERT_API_KEY")
	cfg.CloudConvertBaseURL = envOrDefault("CLOUDCONVERT_BASE_URL", "https://api.cloudconvert.com/v2")
	cfg.CloudConvertSyncURL = envOrDefault("CLOUDCONVERT_SYNC_URL", "https://sync.api.cloudconvert.com/v2")
	cfg.LogLevel = envOrDefault("LOG_LEVEL", "info")
	cfg.LogFormat = envOrDefault("LOG_FORMAT", "json")
	cfg.CORSAllowedOrigins = splitCSV(os.Getenv("CORS_ALLOWED_ORIGINS"))

	requestTimeoutSeconds, err := parseIntEnv("REQUEST_TIMEOUT_SECONDS", 60)
	if err != nil {
		return Config{}, fmt.Errorf("parse REQUEST_TIMEOUT_SECONDS: %w", err)
	}
	cfg.RequestTimeout = time.Duration(requestTimeoutSeconds) * time.Second

	jobWaitSeconds, err := parseIntEnv("JOB_WAIT_TIMEOUT_SECONDS", 300)
	if err != nil {
		return Config{}, fmt.Errorf("parse JOB_WAIT_TIMEOUT_SECONDS: %w", err)
	}
	cfg.JobWaitTimeout = time.Duration(jobWaitSeconds) * time.Second

	maxBodyKB, err := parseIntEnv("MAX_BODY_KB", 1024)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_BODY_KB: %w", err)
	}
	cfg.MaxBodyBytes = maxBodyKB * 1024

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := mergeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg.HubSpotBaseURL = strings.TrimSuffix(cfg.HubSpotBaseURL, "/")
	cfg.CloudConvertBaseURL = strings.TrimSuffix(cfg.CloudConvertBaseURL, "/")
	cfg.CloudConvertSyncURL = strings.TrimSuffix(cfg.CloudConvertSyncURL, "/")

	return cfg, nil
}

// Validate reports missing credentials and nonsensical limits.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HubSpotAPIKey) == "" {
		errs = append(errs, errors.New("HUBSPOT_API_KEY is required"))
	}
	if strings.TrimSpace(c.CloudConvertAPIKey) == "" {
		errs = append(errs, errors.New("CLOUDCONVERT_API_KEY is required"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.JobWaitTimeout <= 0 {
		errs = append(errs, errors.New("job wait timeout must be positive"))
	}
	return errors.Join(errs...)
}

func mergeFile(path string, base *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("config file is empty")
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}

	if fc.Port != nil {
		base.Port = *fc.Port
	}
	if fc.HubSpotAPIKey != nil {
		base.HubSpotAPIKey = *fc.HubSpotAPIKey
	}
	if fc.HubSpotBaseURL != nil {
		base.HubSpotBaseURL = *fc.HubSpotBaseURL
	}
	if fc.HubSpotUploadFolder != nil {
		base.HubSpotUploadFolder = *fc.HubSpotUploadFolder
	}
	if fc.CloudConvertAPIKey != nil {
		base.CloudConvertAPIKey = *fc.CloudConvertAPIKey
	}
	if fc.CloudConvertBaseURL != nil {
		base.CloudConvertBaseURL = *fc.CloudConvertBaseURL
	}
	if fc.CloudConvertSyncURL != nil {
		base.CloudConvertSyncURL = *fc.CloudConvertSyncURL
	}
	if fc.RequestTimeout != nil {
		base.RequestTimeout = time.Duration(*fc.RequestTimeout) * time.Second
	}
	if fc.JobWaitTimeout != nil {
		base.JobWaitTimeout = time.Duration(*fc.JobWaitTimeout) * time.Second
	}
	if fc.MaxBodyKB != nil {
		base.MaxBodyBytes = *fc.MaxBodyKB * 1024
	}
	if fc.LogLevel != nil {
		base.LogLevel = *fc.LogLevel
	}
	if fc.LogFormat != nil {
		base.LogFormat = *fc.LogFormat
	}
	if fc.CORSAllowedOrigins != nil {
		base.CORSAllowedOrigins = fc.CORSAllowedOrigins
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func parseIntEnv(key string, fallback int64) (int64, error) {
	value := envOrDefault(key, "")
	if value == "" {
		return fallback, nil
	}

	num, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return num, nil
}

func splitCSV(value string) []string {
	var result []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
