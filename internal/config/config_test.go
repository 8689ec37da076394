package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"
  allowed_origins: ["https://appeal.example.com"]

database:
  url: "postgres://localhost/appeals?sslmode=disable"

webhook:
  payment_secret: "whsec_test"
  tolerance_seconds: 120

cities:
  source: dynamodb
  dynamodb_table: appeal-cities

llm:
  provider: openai

refinement:
  max_attempts: 4
  policy_retries: 2

storage:
  s3_bucket: appeal-photos
  max_photo_bytes: 2048

logging:
  level: debug
  redact_pii: false
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.Equal(t, []string{"https://appeal.example.com"}, cfg.Server.AllowedOrigins)

	assert.Equal(t, "whsec_test", cfg.Webhook.PaymentSecret)
	assert.Equal(t, 2*time.Minute, cfg.Webhook.Tolerance())

	assert.Equal(t, "dynamodb", cfg.Cities.Source)
	assert.Equal(t, "appeal-cities", cfg.Cities.DynamoDBTable)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)

	assert.Equal(t, 4, cfg.Refinement.MaxAttempts)
	assert.Equal(t, 2, cfg.Refinement.PolicyRetries)

	assert.Equal(t, int64(2048), cfg.Storage.MaxPhotoBytes)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Redact())

	require.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("{}"), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 5*time.Minute, cfg.Webhook.Tolerance())
	assert.Equal(t, "postgres", cfg.Dedupe.Backend)
	assert.Equal(t, "file", cfg.Cities.Source)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout())
	assert.Equal(t, 3, cfg.Refinement.MaxAttempts)
	assert.Equal(t, 1, cfg.Refinement.PolicyRetries)
	assert.Equal(t, int64(10<<20), cfg.Storage.MaxPhotoBytes)
	assert.Equal(t, []string{"image/jpeg", "image/png", "image/webp"}, cfg.Storage.AllowedTypes)
	assert.Equal(t, 5, cfg.Pipeline.StageAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Pipeline.StaleAfter())
	assert.True(t, cfg.Logging.Redact())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [unclosed"), 0644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/appeals")
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "whsec_env")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("JOB_QUEUE_URL", "https://sqs.us-west-2.amazonaws.com/1/appeal-jobs")
	t.Setenv("PORT", "7070")
	t.Setenv("AWS_ACCESS_KEY_ID", "minio")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "minio-secret")
	t.Setenv("PHOTO_S3_ENDPOINT", "http://localhost:9000")

	cfg, err := LoadFromEnv("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/appeals", cfg.Database.URL)
	assert.Equal(t, "whsec_env", cfg.Webhook.PaymentSecret)
	assert.True(t, cfg.Redis.Enabled())
	assert.True(t, cfg.Queue.Enabled)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "minio", cfg.Storage.AccessKeyID)
	assert.Equal(t, "minio-secret", cfg.Storage.SecretAccessKey)
	assert.Equal(t, "http://localhost:9000", cfg.Storage.Endpoint)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"no database", func(c *Config) { c.Database.URL = "" }, "database.url"},
		{"no secret", func(c *Config) { c.Webhook.PaymentSecret = "" }, "payment_secret"},
		{"redis dedupe without redis", func(c *Config) { c.Dedupe.Backend = "redis" }, "redis.addr"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "cohere" }, "llm.provider"},
		{"queue without url", func(c *Config) { c.Queue.Enabled = true }, "queue_url"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Database.URL = "postgres://localhost/appeals"
			cfg.Webhook.PaymentSecret = "whsec"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
