package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendFS = "fs"
	BackendS3 = "s3"
)

type Config struct {
	Server     ServerConfig
	Staging    StagingConfig
	S3         S3Config
	Classifier ClassifierConfig
	Gemini     GeminiConfig
	Upstream   UpstreamConfig
	App        AppConfig
	Log        LogConfig
}

type ServerConfig struct {
	Host string
	Port string
}

type StagingConfig struct {
	Backend string
	Dir     string
}

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	Region          string
	Prefix          string
}

type ClassifierConfig struct {
	URL   string
	Token string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

// UpstreamConfig bounds every outbound call: Timeout applies per attempt.
type UpstreamConfig struct {
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

type AppConfig struct {
	MaxUploadSize   int64
	AnalyzeFormats  []string
	CompressQuality int
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "4050")
	v.SetDefault("STAGING_BACKEND", BackendFS)
	v.SetDefault("STAGING_DIR", "./toanalyze")
	v.SetDefault("S3_ENDPOINT", "http://localhost:9000")
	v.SetDefault("S3_ACCESS_KEY_ID", "minioadmin")
	v.SetDefault("S3_SECRET_ACCESS_KEY", "minioadmin")
	v.SetDefault("S3_USE_SSL", false)
	v.SetDefault("S3_BUCKET_NAME", "plantcare")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_PREFIX", "toanalyze/")
	v.SetDefault("CLASSIFIER_URL", "http://127.0.0.1:5300/checkimages")
	v.SetDefault("CLASSIFIER_TOKEN", "")
	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_MODEL", "gemini-2.0-flash")
	v.SetDefault("UPSTREAM_TIMEOUT", 30*time.Second)
	v.SetDefault("UPSTREAM_MAX_RETRIES", 2)
	v.SetDefault("UPSTREAM_BACKOFF", 500*time.Millisecond)
	v.SetDefault("APP_MAX_UPLOAD_SIZE", 10*1024*1024) // 10MB
	v.SetDefault("APP_ANALYZE_FORMATS", ".jpg,.jpeg")
	v.SetDefault("APP_COMPRESS_QUALITY", 0)
	v.SetDefault("LOG_LEVEL", "info")

	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetString("SERVER_PORT"),
		},
		Staging: StagingConfig{
			Backend: v.GetString("STAGING_BACKEND"),
			Dir:     v.GetString("STAGING_DIR"),
		},
		S3: S3Config{
			Endpoint:        v.GetString("S3_ENDPOINT"),
			AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
			UseSSL:          v.GetBool("S3_USE_SSL"),
			BucketName:      v.GetString("S3_BUCKET_NAME"),
			Region:          v.GetString("S3_REGION"),
			Prefix:          v.GetString("S3_PREFIX"),
		},
		Classifier: ClassifierConfig{
			URL:   v.GetString("CLASSIFIER_URL"),
			Token: v.GetString("CLASSIFIER_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: v.GetString("GEMINI_API_KEY"),
			Model:  v.GetString("GEMINI_MODEL"),
		},
		Upstream: UpstreamConfig{
			Timeout:    v.GetDuration("UPSTREAM_TIMEOUT"),
			MaxRetries: v.GetInt("UPSTREAM_MAX_RETRIES"),
			Backoff:    v.GetDuration("UPSTREAM_BACKOFF"),
		},
		App: AppConfig{
			MaxUploadSize:   v.GetInt64("APP_MAX_UPLOAD_SIZE"),
			AnalyzeFormats:  ParseFormats(v.GetString("APP_ANALYZE_FORMATS")),
			CompressQuality: v.GetInt("APP_COMPRESS_QUALITY"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Staging.Backend == BackendFS {
		if err := os.MkdirAll(cfg.Staging.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create staging directory %s: %w", cfg.Staging.Dir, err)
		}
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Staging.Backend {
	case BackendFS:
		if c.Staging.Dir == "" {
			return fmt.Errorf("STAGING_DIR is required for the %q backend", BackendFS)
		}
	case BackendS3:
		if c.S3.BucketName == "" {
			return fmt.Errorf("S3_BUCKET_NAME is required for the %q backend", BackendS3)
		}
	default:
		return fmt.Errorf("unknown STAGING_BACKEND %q", c.Staging.Backend)
	}

	if c.Classifier.URL == "" {
		return fmt.Errorf("CLASSIFIER_URL is required")
	}
	if c.Upstream.MaxRetries < 0 {
		return fmt.Errorf("UPSTREAM_MAX_RETRIES must not be negative")
	}
	if c.App.CompressQuality < 0 || c.App.CompressQuality > 100 {
		return fmt.Errorf("APP_COMPRESS_QUALITY must be within 0..100")
	}
	if len(c.App.AnalyzeFormats) == 0 {
		return fmt.Errorf("APP_ANALYZE_FORMATS must list at least one extension")
	}

	return nil
}

// ParseFormats splits a comma-separated extension list such as
// "jpg, .JPEG" into dotted entries.
func ParseFormats(raw string) []string {
	var out []string
	for _, f := range strings.Split(raw, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if !strings.HasPrefix(f, ".") {
			f = "." + f
		}
		out = append(out, f)
	}
	return out
}
