package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the alert service.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Storage    StorageConfig
	Intake     IntakeConfig
	Transcribe TranscribeConfig
	AI         AIConfig
	SMTP       SMTPConfig
	Delivery   DeliveryConfig
	Pipeline   PipelineConfig
}

type ServerConfig struct {
	Port              int
	Env               string
	RequestsPerMinute int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsPath  string
}

type RedisConfig struct {
	URL string
}

type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

type StorageConfig struct {
	Backend            string // "local" or "gcs"
	LocalDir           string
	GCSBucket          string
	GCSCredentialsFile string
}

type IntakeConfig struct {
	MaxFileBytes   int64
	MaxDuration    time.Duration
	AllowedFormats []string
	FFProbePath    string
}

type TranscribeConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	MaxAttempts      int
	Ollama           OllamaConfig
	VLLM             VLLMConfig
	OpenAI           OpenAIConfig
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type VLLMConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	APIKey string
	Model  string
}

type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
	TLSMode     string // "starttls", "implicit" or "none"
	Timeout     time.Duration
}

type DeliveryConfig struct {
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	SweepInterval  time.Duration
	SweepBatchSize int
	SendsPerSecond float64
	LockTTL        time.Duration
}

type PipelineConfig struct {
	TranscribeAttempts int
	RunTimeout         time.Duration
}

var validProviders = map[string]bool{
	"ollama": true,
	"vllm":   true,
	"openai": true,
}

var validTLSModes = map[string]bool{
	"starttls": true,
	"implicit": true,
	"none":     true,
}

var defaultFormats = []string{"m4a", "mp3", "wav", "webm", "ogg", "aac", "flac", "mp4"}

// Load reads configuration from environment variables (and a .env file when
// present) and returns a validated Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:              envInt("MINDALERT_PORT", 8080),
			Env:               envString("MINDALERT_ENV", "development"),
			RequestsPerMinute: envInt("MINDALERT_REQUESTS_PER_MINUTE", 60),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsPath:  envString("DATABASE_MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			JWTIssuer: envString("JWT_ISSUER", ""),
		},
		Storage: StorageConfig{
			Backend:            envString("STORAGE_BACKEND", "local"),
			LocalDir:           envString("STORAGE_LOCAL_DIR", "data/audio"),
			GCSBucket:          os.Getenv("STORAGE_GCS_BUCKET"),
			GCSCredentialsFile: os.Getenv("STORAGE_GCS_CREDENTIALS_FILE"),
		},
		Intake: IntakeConfig{
			MaxFileBytes:   int64(envInt("INTAKE_MAX_FILE_BYTES", 25<<20)),
			MaxDuration:    envDurationSecs("INTAKE_MAX_DURATION_SECS", 10*time.Minute),
			AllowedFormats: envList("INTAKE_ALLOWED_FORMATS", defaultFormats),
			FFProbePath:    envString("FFPROBE_PATH", "ffprobe"),
		},
		Transcribe: TranscribeConfig{
			BaseURL: envString("TRANSCRIBE_BASE_URL", "https://api.openai.com/v1"),
			APIKey:  envString("TRANSCRIBE_API_KEY", os.Getenv("OPENAI_API_KEY")),
			Model:   envString("TRANSCRIBE_MODEL", "whisper-1"),
			Timeout: envDurationSecs("TRANSCRIBE_TIMEOUT_SECS", 60*time.Second),
		},
		AI: AIConfig{
			Provider:         os.Getenv("AI_PROVIDER"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			MaxAttempts:      envInt("AI_MAX_ATTEMPTS", 2),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434/v1"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			VLLM: VLLMConfig{
				BaseURL: envString("VLLM_BASE_URL", "http://localhost:8000/v1"),
				Model:   envString("VLLM_MODEL", ""),
			},
			OpenAI: OpenAIConfig{
				APIKey: os.Getenv("OPENAI_API_KEY"),
				Model:  envString("OPENAI_MODEL", "gpt-4o-mini"),
			},
		},
		SMTP: SMTPConfig{
			Host:        os.Getenv("SMTP_HOST"),
			Port:        envInt("SMTP_PORT", 587),
			Username:    os.Getenv("SMTP_USERNAME"),
			Password:    os.Getenv("SMTP_PASSWORD"),
			FromAddress: os.Getenv("SMTP_FROM_ADDRESS"),
			FromName:    envString("SMTP_FROM_NAME", "MindAlert"),
			TLSMode:     envString("SMTP_TLS_MODE", "starttls"),
			Timeout:     envDurationSecs("SMTP_TIMEOUT_SECS", 30*time.Second),
		},
		Delivery: DeliveryConfig{
			MaxRetries:     envInt("ALERT_MAX_RETRIES", 3),
			BackoffBase:    envDuration("ALERT_BACKOFF_BASE", 30*time.Second),
			BackoffMax:     envDuration("ALERT_BACKOFF_MAX", 30*time.Minute),
			SweepInterval:  envDuration("ALERT_SWEEP_INTERVAL", 30*time.Second),
			SweepBatchSize: envInt("ALERT_SWEEP_BATCH_SIZE", 50),
			SendsPerSecond: envFloat("ALERT_SENDS_PER_SECOND", 5),
			LockTTL:        envDuration("ALERT_LOCK_TTL", 2*time.Minute),
		},
		Pipeline: PipelineConfig{
			TranscribeAttempts: envInt("PIPELINE_TRANSCRIBE_ATTEMPTS", 2),
			RunTimeout:         envDuration("PIPELINE_RUN_TIMEOUT", 10*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("STORAGE_LOCAL_DIR is required when STORAGE_BACKEND is local")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("STORAGE_GCS_BUCKET is required when STORAGE_BACKEND is gcs")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be one of local, gcs; got %q", c.Storage.Backend)
	}

	if c.Intake.MaxFileBytes <= 0 {
		return fmt.Errorf("INTAKE_MAX_FILE_BYTES must be positive")
	}
	if len(c.Intake.AllowedFormats) == 0 {
		return fmt.Errorf("INTAKE_ALLOWED_FORMATS must not be empty")
	}

	if !strings.HasPrefix(c.Transcribe.BaseURL, "http://") && !strings.HasPrefix(c.Transcribe.BaseURL, "https://") {
		return fmt.Errorf("TRANSCRIBE_BASE_URL must start with http:// or https://, got %q", c.Transcribe.BaseURL)
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of ollama, vllm, openai; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "vllm" && c.AI.VLLM.Model == "" {
		return fmt.Errorf("VLLM_MODEL is required when AI_PROVIDER is vllm")
	}

	if c.SMTP.Host == "" {
		return fmt.Errorf("SMTP_HOST is required")
	}
	if c.SMTP.FromAddress == "" {
		return fmt.Errorf("SMTP_FROM_ADDRESS is required")
	}
	if !validTLSModes[c.SMTP.TLSMode] {
		return fmt.Errorf("SMTP_TLS_MODE must be one of starttls, implicit, none; got %q", c.SMTP.TLSMode)
	}

	if c.Delivery.MaxRetries < 1 {
		return fmt.Errorf("ALERT_MAX_RETRIES must be at least 1, got %d", c.Delivery.MaxRetries)
	}
	if c.Delivery.BackoffBase <= 0 || c.Delivery.BackoffMax < c.Delivery.BackoffBase {
		return fmt.Errorf("ALERT_BACKOFF_BASE must be positive and not exceed ALERT_BACKOFF_MAX")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
