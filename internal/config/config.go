package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the appeal service
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Dedupe     DedupeConfig     `yaml:"dedupe"`
	Cities     CitiesConfig     `yaml:"cities"`
	LLM        LLMConfig        `yaml:"llm"`
	Refinement RefinementConfig `yaml:"refinement"`
	Carrier    CarrierConfig    `yaml:"carrier"`
	Storage    StorageConfig    `yaml:"storage"`
	Notify     NotifyConfig     `yaml:"notify"`
	Queue      QueueConfig      `yaml:"queue"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                 int      `yaml:"port"`
	Host                 string   `yaml:"host"`
	AllowedOrigins       []string `yaml:"allowed_origins"`
	ReadTimeoutSeconds   int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds  int      `yaml:"write_timeout_seconds"`
	ShutdownGraceSeconds int      `yaml:"shutdown_grace_seconds"`
	UploadRatePerMinute  int      `yaml:"upload_rate_per_minute"`
}

// Addr returns host:port
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ShutdownGrace returns the graceful shutdown window
func (c ServerConfig) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

// DatabaseConfig holds the Postgres connection settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the optional Redis connection. Empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled reports whether a Redis address is configured
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// WebhookConfig holds the shared secrets for inbound webhooks
type WebhookConfig struct {
	PaymentSecret    string `yaml:"payment_secret"`
	CarrierSecret    string `yaml:"carrier_secret"`
	ToleranceSeconds int    `yaml:"tolerance_seconds"` // 0 disables the timestamp check
	MaxBodyBytes     int64  `yaml:"max_body_bytes"`
}

// Tolerance returns the accepted clock skew for signed timestamps
func (c WebhookConfig) Tolerance() time.Duration {
	return time.Duration(c.ToleranceSeconds) * time.Second
}

// DedupeConfig selects the idempotency store backend ("postgres" or "redis")
type DedupeConfig struct {
	Backend string `yaml:"backend"`
}

// CitiesConfig selects where the eligibility registry is loaded from
type CitiesConfig struct {
	Source         string `yaml:"source"` // "file" or "dynamodb"
	File           string `yaml:"file"`
	DynamoDBTable  string `yaml:"dynamodb_table"`
	RefreshSeconds int    `yaml:"refresh_seconds"`
}

// RefreshInterval returns how long a loaded registry is served before reloading
func (c CitiesConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshSeconds) * time.Second
}

// LLMConfig holds the model provider configuration
type LLMConfig struct {
	Provider         string `yaml:"provider"` // "anthropic", "openai" or "bedrock"
	AnthropicAPIKey  string `yaml:"anthropic_api_key"`
	AnthropicBaseURL string `yaml:"anthropic_base_url"`
	OpenAIAPIKey     string `yaml:"openai_api_key"`
	OpenAIBaseURL    string `yaml:"openai_base_url"`
	BedrockRegion    string `yaml:"bedrock_region"`
	Model            string `yaml:"model"`
	MaxTokens        int    `yaml:"max_tokens"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-call timeout
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RefinementConfig bounds the statement refinement loop
type RefinementConfig struct {
	MaxAttempts        int `yaml:"max_attempts"`
	PolicyRetries      int `yaml:"policy_retries"`
	MaxStatementLength int `yaml:"max_statement_length"`
}

// CarrierConfig holds the physical mail carrier API settings
type CarrierConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
	PollSeconds    int    `yaml:"poll_seconds"`
}

// Timeout returns the per-request timeout
func (c CarrierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PollInterval returns the tracking poller interval
func (c CarrierConfig) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

// StorageConfig holds photo storage configuration
type StorageConfig struct {
	S3Bucket          string   `yaml:"s3_bucket"`
	AWSRegion         string   `yaml:"aws_region"`
	AWSProfile        string   `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
	AccessKeyID       string   `yaml:"access_key_id"`
	SecretAccessKey   string   `yaml:"secret_access_key"`
	Endpoint          string   `yaml:"endpoint"` // S3-compatible endpoint for local MinIO
	MaxPhotoBytes     int64    `yaml:"max_photo_bytes"`
	AllowedTypes      []string `yaml:"allowed_types"`
	PresignTTLSeconds int      `yaml:"presign_ttl_seconds"`
}

// PresignTTL returns the lifetime of presigned URLs
func (c StorageConfig) PresignTTL() time.Duration {
	return time.Duration(c.PresignTTLSeconds) * time.Second
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// NotifyConfig holds SES notification settings
type NotifyConfig struct {
	Enabled     bool   `yaml:"enabled"`
	FromAddress string `yaml:"from_address"`
	OpsAddress  string `yaml:"ops_address"`
	Region      string `yaml:"region"`
}

// QueueConfig enables the SQS job queue. When disabled jobs run in-process.
type QueueConfig struct {
	Enabled           bool   `yaml:"enabled"`
	QueueURL          string `yaml:"queue_url"`
	Region            string `yaml:"region"`
	WaitTimeSeconds   int32  `yaml:"wait_time_seconds"`
	VisibilitySeconds int32  `yaml:"visibility_seconds"`
}

// PipelineConfig bounds orchestrator retries and recovery
type PipelineConfig struct {
	StageAttempts           int `yaml:"stage_attempts"`
	Workers                 int `yaml:"workers"`
	StaleAfterSeconds       int `yaml:"stale_after_seconds"`
	RecoveryIntervalSeconds int `yaml:"recovery_interval_seconds"`
}

// StaleAfter returns how long a non-terminal intake may sit before recovery picks it up
func (c PipelineConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSeconds) * time.Second
}

// RecoveryInterval returns the recovery sweep interval
func (c PipelineConfig) RecoveryInterval() time.Duration {
	return time.Duration(c.RecoveryIntervalSeconds) * time.Second
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on. Defaults to true.
func (c LoggingConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with only defaults applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 30
	}
	if cfg.Server.ShutdownGraceSeconds == 0 {
		cfg.Server.ShutdownGraceSeconds = 20
	}
	if cfg.Server.UploadRatePerMinute == 0 {
		cfg.Server.UploadRatePerMinute = 30
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Webhook.ToleranceSeconds == 0 {
		cfg.Webhook.ToleranceSeconds = 300
	}
	if cfg.Webhook.MaxBodyBytes == 0 {
		cfg.Webhook.MaxBodyBytes = 1 << 20
	}
	if cfg.Dedupe.Backend == "" {
		cfg.Dedupe.Backend = "postgres"
	}
	if cfg.Cities.Source == "" {
		cfg.Cities.Source = "file"
	}
	if cfg.Cities.File == "" {
		cfg.Cities.File = "configs/cities.yaml"
	}
	if cfg.Cities.RefreshSeconds == 0 {
		cfg.Cities.RefreshSeconds = 300
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "anthropic"
	}
	if cfg.LLM.AnthropicBaseURL == "" {
		cfg.LLM.AnthropicBaseURL = "https://api.anthropic.com"
	}
	if cfg.LLM.OpenAIBaseURL == "" {
		cfg.LLM.OpenAIBaseURL = "https://api.openai.com"
	}
	if cfg.LLM.BedrockRegion == "" {
		cfg.LLM.BedrockRegion = "us-east-1"
	}
	if cfg.LLM.Model == "" {
		switch cfg.LLM.Provider {
		case "openai":
			cfg.LLM.Model = "gpt-4o"
		case "bedrock":
			cfg.LLM.Model = "anthropic.claude-3-haiku-20240307-v1:0"
		default:
			cfg.LLM.Model = "claude-3-5-haiku-latest"
		}
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 30
	}
	if cfg.Refinement.MaxAttempts == 0 {
		cfg.Refinement.MaxAttempts = 3
	}
	if cfg.Refinement.PolicyRetries == 0 {
		cfg.Refinement.PolicyRetries = 1
	}
	if cfg.Refinement.MaxStatementLength == 0 {
		cfg.Refinement.MaxStatementLength = 4000
	}
	if cfg.Carrier.BaseURL == "" {
		cfg.Carrier.BaseURL = "https://api.lob.com"
	}
	if cfg.Carrier.TimeoutSeconds == 0 {
		cfg.Carrier.TimeoutSeconds = 30
	}
	if cfg.Carrier.MaxRetries == 0 {
		cfg.Carrier.MaxRetries = 3
	}
	if cfg.Carrier.PollSeconds == 0 {
		cfg.Carrier.PollSeconds = 3600
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-west-2"
	}
	if cfg.Storage.MaxPhotoBytes == 0 {
		cfg.Storage.MaxPhotoBytes = 10 << 20
	}
	if len(cfg.Storage.AllowedTypes) == 0 {
		cfg.Storage.AllowedTypes = []string{"image/jpeg", "image/png", "image/webp"}
	}
	if cfg.Storage.PresignTTLSeconds == 0 {
		cfg.Storage.PresignTTLSeconds = 900
	}
	if cfg.Notify.Region == "" {
		cfg.Notify.Region = cfg.Storage.AWSRegion
	}
	if cfg.Queue.Region == "" {
		cfg.Queue.Region = cfg.Storage.AWSRegion
	}
	if cfg.Queue.WaitTimeSeconds == 0 {
		cfg.Queue.WaitTimeSeconds = 20
	}
	if cfg.Queue.VisibilitySeconds == 0 {
		cfg.Queue.VisibilitySeconds = 300
	}
	if cfg.Pipeline.StageAttempts == 0 {
		cfg.Pipeline.StageAttempts = 5
	}
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = 4
	}
	if cfg.Pipeline.StaleAfterSeconds == 0 {
		cfg.Pipeline.StaleAfterSeconds = 900
	}
	if cfg.Pipeline.RecoveryIntervalSeconds == 0 {
		cfg.Pipeline.RecoveryIntervalSeconds = 60
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars on ECS. An empty path skips the
// YAML file and starts from defaults.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		var err error
		cfg, err = Load(path)
		if err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PAYMENT_WEBHOOK_SECRET"); v != "" {
		cfg.Webhook.PaymentSecret = v
	}
	if v := os.Getenv("CARRIER_WEBHOOK_SECRET"); v != "" {
		cfg.Webhook.CarrierSecret = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.AnthropicAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.OpenAIAPIKey = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("CARRIER_API_KEY"); v != "" {
		cfg.Carrier.APIKey = v
	}
	if v := os.Getenv("CARRIER_BASE_URL"); v != "" {
		cfg.Carrier.BaseURL = v
	}
	if v := os.Getenv("PHOTO_S3_BUCKET"); v != "" {
		cfg.Storage.S3Bucket = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.Storage.AccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.Storage.SecretAccessKey = v
	}
	if v := os.Getenv("PHOTO_S3_ENDPOINT"); v != "" {
		cfg.Storage.Endpoint = v
	}
	if v := os.Getenv("JOB_QUEUE_URL"); v != "" {
		cfg.Queue.QueueURL = v
		cfg.Queue.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	return cfg, nil
}

// Validate checks the settings the service cannot start without.
func (cfg *Config) Validate() error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if cfg.Webhook.PaymentSecret == "" {
		return fmt.Errorf("webhook.payment_secret is required")
	}
	switch cfg.Dedupe.Backend {
	case "postgres":
	case "redis":
		if !cfg.Redis.Enabled() {
			return fmt.Errorf("dedupe.backend=redis requires redis.addr")
		}
	default:
		return fmt.Errorf("unknown dedupe.backend %q", cfg.Dedupe.Backend)
	}
	switch cfg.LLM.Provider {
	case "anthropic", "openai", "bedrock":
	default:
		return fmt.Errorf("unknown llm.provider %q", cfg.LLM.Provider)
	}
	if cfg.Queue.Enabled && cfg.Queue.QueueURL == "" {
		return fmt.Errorf("queue.enabled requires queue.queue_url")
	}
	return nil
}
