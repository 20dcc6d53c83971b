package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/GregMSThompson/budget-backend/internal/dto"
)

const (
	ClassifierVertex = "vertex"
	ClassifierGemini = "gemini"
)

type Config struct {
	ProjectID         string
	Region            string
	LogLevel          string
	Port              string
	PlaidClientID     string
	PlaidSecret       string
	PlaidSecretName   string
	PlaidEnvironment  dto.PlaidEnvironment
	PlaidWebhookURL   string
	PlaidCountryCodes []string
	KMSKeyName        string
	ClassifierBackend string
	VertexModel       string
	GeminiAPIKey      string
	GeminiModel       string

	SyncLeaseTTL            time.Duration
	CategorizeBatchSize     int
	CategorizeMinConfidence float64
	InitialChatQuota        int
	AssistantHistoryTTL     time.Duration
}

// New loads defaults, then the optional TOML file named by BUDGET_CONFIG,
// then environment variables (PROJECT_ID, PLAID_SECRET, ...).
func New() (*Config, error) {
	v := viper.New()

	v.SetDefault("region", "us-central1")
	v.SetDefault("log_level", "info")
	v.SetDefault("port", "8080")
	v.SetDefault("plaid_environment", "sandbox")
	v.SetDefault("plaid_country_codes", "US")
	v.SetDefault("classifier_backend", ClassifierVertex)
	v.SetDefault("vertex_model", "gemini-2.0-flash")
	v.SetDefault("gemini_model", "gemini-2.5-flash")
	v.SetDefault("sync_lease_ttl", "2m")
	v.SetDefault("categorize_batch_size", 50)
	v.SetDefault("categorize_min_confidence", 0.7)
	v.SetDefault("initial_chat_quota", 20)
	v.SetDefault("assistant_history_ttl", "24h")

	for _, key := range []string{
		"project_id", "plaid_client_id", "plaid_secret", "plaid_secret_name",
		"plaid_webhook_url", "kms_key_name", "gemini_api_key",
	} {
		v.SetDefault(key, "")
	}

	if path := os.Getenv("BUDGET_CONFIG"); path != "" {
		v.SetConfigType("toml")
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.AutomaticEnv()

	cfg := &Config{
		ProjectID:               v.GetString("project_id"),
		Region:                  v.GetString("region"),
		LogLevel:                v.GetString("log_level"),
		Port:                    v.GetString("port"),
		PlaidClientID:           v.GetString("plaid_client_id"),
		PlaidSecret:             v.GetString("plaid_secret"),
		PlaidSecretName:         v.GetString("plaid_secret_name"),
		PlaidEnvironment:        getPlaidEnvironment(v.GetString("plaid_environment")),
		PlaidWebhookURL:         v.GetString("plaid_webhook_url"),
		PlaidCountryCodes:       splitList(v.GetString("plaid_country_codes")),
		KMSKeyName:              v.GetString("kms_key_name"),
		ClassifierBackend:       strings.ToLower(v.GetString("classifier_backend")),
		VertexModel:             v.GetString("vertex_model"),
		GeminiAPIKey:            v.GetString("gemini_api_key"),
		GeminiModel:             v.GetString("gemini_model"),
		SyncLeaseTTL:            v.GetDuration("sync_lease_ttl"),
		CategorizeBatchSize:     v.GetInt("categorize_batch_size"),
		CategorizeMinConfidence: v.GetFloat64("categorize_min_confidence"),
		InitialChatQuota:        v.GetInt("initial_chat_quota"),
		AssistantHistoryTTL:     v.GetDuration("assistant_history_ttl"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.ClassifierBackend {
	case ClassifierVertex, ClassifierGemini:
	default:
		return fmt.Errorf("unknown classifier backend %q", c.ClassifierBackend)
	}
	if c.SyncLeaseTTL <= 0 {
		return fmt.Errorf("sync lease ttl must be positive, got %s", c.SyncLeaseTTL)
	}
	if c.CategorizeBatchSize <= 0 {
		return fmt.Errorf("categorize batch size must be positive, got %d", c.CategorizeBatchSize)
	}
	if c.CategorizeMinConfidence < 0 || c.CategorizeMinConfidence > 1 {
		return fmt.Errorf("categorize min confidence must be within [0,1], got %v", c.CategorizeMinConfidence)
	}
	if c.InitialChatQuota < 0 {
		return fmt.Errorf("initial chat quota must not be negative")
	}
	return nil
}

func getPlaidEnvironment(env string) dto.PlaidEnvironment {
	switch strings.ToLower(env) {
	case "sandbox":
		return dto.PlaidSandbox
	case "development":
		return dto.PlaidDevelopment
	default: // "production"
		return dto.PlaidProduction
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	return out
}
