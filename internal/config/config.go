// Package config loads runtime settings from an optional YAML file, the
// environment, and (for the server) AWS Secrets Manager.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/apresai/eduanim/internal/plan"
	"github.com/apresai/eduanim/internal/render"
	"github.com/apresai/eduanim/internal/style"
)

// ErrMissingCredential is returned by Validate when a required credential
// or resource name is absent. It is fatal at startup.
var ErrMissingCredential = errors.New("missing credential")

// Config holds every setting of the CLI and the server. API keys are never
// read from the YAML file.
type Config struct {
	Model      string `yaml:"model"`
	Style      string `yaml:"style"`
	Branding   string `yaml:"branding"`
	Complexity string `yaml:"complexity"`

	Quality       string        `yaml:"quality"`
	RenderTimeout time.Duration `yaml:"render_timeout"`
	ManimBinary   string        `yaml:"manim_binary"`

	MemorySize                  int  `yaml:"memory_size"`
	RefineAttempts              int  `yaml:"refine_attempts"`
	FallbackOnExtractionFailure bool `yaml:"fallback_on_extraction_failure"`

	// AllowedDomains restricts topics to those mentioning a keyword.
	// Empty allows everything.
	AllowedDomains []string `yaml:"allowed_domains"`

	WorkDir   string `yaml:"work_dir"`
	OutputDir string `yaml:"output_dir"`

	Narration Narration `yaml:"narration"`

	AWSRegion    string `yaml:"aws_region"`
	S3Bucket     string `yaml:"s3_bucket"`
	S3Prefix     string `yaml:"s3_prefix"`
	CDNBaseURL   string `yaml:"cdn_base_url"`
	TableName    string `yaml:"dynamodb_table"`
	SecretPrefix string `yaml:"secret_prefix"`

	Port        int    `yaml:"port"`
	MaxTasks    int    `yaml:"max_tasks"`
	Environment string `yaml:"environment"`
	// CORSOrigins lists the browser origins allowed to call the API.
	// Empty allows any origin.
	CORSOrigins []string `yaml:"cors_origins"`

	AnthropicAPIKey string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
}

// Narration configures the optional voice-over. An empty Provider
// disables it.
type Narration struct {
	Provider   string  `yaml:"provider"`
	Voice      string  `yaml:"voice"`
	Speed      float64 `yaml:"speed"`
	Pitch      float64 `yaml:"pitch"`
	Model      string  `yaml:"model"`
	GCPProject string  `yaml:"gcp_project"`
	GCPRegion  string  `yaml:"gcp_region"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Model:         "sonnet",
		Style:         string(style.Default),
		Branding:      style.DefaultBranding,
		Complexity:    string(plan.DefaultComplexity),
		Quality:       string(render.DefaultQuality),
		RenderTimeout: render.DefaultTimeout,
		MemorySize:    3,
		WorkDir:       os.TempDir(),
		OutputDir:     ".",
		AWSRegion:     "us-east-1",
		TableName:     "eduanim-videos",
		Port:          8000,
		MaxTasks:      3,
		Environment:   "production",
	}
}

// Load reads path (if non-empty) over the defaults, then applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Model = envOr("EDUANIM_MODEL", c.Model)
	c.Style = envOr("EDUANIM_STYLE", c.Style)
	c.Branding = envOr("EDUANIM_BRANDING", c.Branding)
	c.Quality = envOr("EDUANIM_QUALITY", c.Quality)
	c.ManimBinary = envOr("MANIM_BINARY", c.ManimBinary)
	c.WorkDir = envOr("EDUANIM_WORK_DIR", c.WorkDir)
	c.OutputDir = envOr("EDUANIM_OUTPUT_DIR", c.OutputDir)
	c.Narration.Provider = envOr("EDUANIM_TTS", c.Narration.Provider)
	c.Narration.Voice = envOr("EDUANIM_TTS_VOICE", c.Narration.Voice)
	c.Narration.GCPProject = envOr("GCP_PROJECT", c.Narration.GCPProject)
	c.Narration.GCPRegion = envOr("GCP_REGION", c.Narration.GCPRegion)
	c.AWSRegion = envOr("AWS_REGION", c.AWSRegion)
	c.S3Bucket = envOr("S3_BUCKET", c.S3Bucket)
	c.S3Prefix = envOr("S3_PREFIX", c.S3Prefix)
	c.CDNBaseURL = envOr("CDN_BASE_URL", c.CDNBaseURL)
	c.TableName = envOr("DYNAMODB_TABLE", c.TableName)
	c.SecretPrefix = envOr("SECRET_PREFIX", c.SecretPrefix)
	c.Environment = envOr("EDUANIM_ENV", c.Environment)
	c.AnthropicAPIKey = envOr("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.GeminiAPIKey = envOr("GEMINI_API_KEY", c.GeminiAPIKey)

	if v := os.Getenv("EDUANIM_ALLOWED_DOMAINS"); v != "" {
		c.AllowedDomains = strings.Split(v, ",")
	}
	if v := os.Getenv("EDUANIM_CORS_ORIGINS"); v != "" {
		c.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("EDUANIM_RENDER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("EDUANIM_RENDER_TIMEOUT: %w", err)
		}
		c.RenderTimeout = d
	}
	for key, dst := range map[string]*int{
		"PORT":                    &c.Port,
		"EDUANIM_MAX_TASKS":       &c.MaxTasks,
		"EDUANIM_MEMORY_SIZE":     &c.MemorySize,
		"EDUANIM_REFINE_ATTEMPTS": &c.RefineAttempts,
	} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}
	return nil
}

// Validate checks the settings every entry point needs: a known model
// with its credential, a known style and quality.
func (c Config) Validate() error {
	switch c.Model {
	case "haiku", "sonnet":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("%w: ANTHROPIC_API_KEY is required for model %s", ErrMissingCredential, c.Model)
		}
	case "gemini-flash", "gemini-pro":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY is required for model %s", ErrMissingCredential, c.Model)
		}
	case "nova-lite":
		if c.AWSRegion == "" {
			return fmt.Errorf("%w: AWS_REGION is required for model %s", ErrMissingCredential, c.Model)
		}
	default:
		return fmt.Errorf("unknown model %q", c.Model)
	}
	if _, err := style.Lookup(c.Style); err != nil {
		return err
	}
	if _, err := render.ParseQuality(c.Quality); err != nil {
		return err
	}
	if c.MaxTasks < 1 {
		return fmt.Errorf("max_tasks must be at least 1, got %d", c.MaxTasks)
	}
	return nil
}

// ValidateServer is Validate plus the storage settings the server cannot
// run without.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.S3Bucket == "" {
		return fmt.Errorf("%w: S3_BUCKET is required", ErrMissingCredential)
	}
	if c.TableName == "" {
		return fmt.Errorf("%w: DYNAMODB_TABLE is required", ErrMissingCredential)
	}
	return nil
}

// DomainPolicy builds the topic policy from AllowedDomains.
func (c Config) DomainPolicy() plan.DomainPolicy {
	return plan.KeywordPolicy(c.AllowedDomains...)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
