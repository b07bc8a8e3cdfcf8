package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"ANTHROPIC_API_KEY", "GEMINI_API_KEY", "S3_BUCKET", "EDUANIM_MODEL", "EDUANIM_STYLE", "AWS_REGION", "EDUANIM_ALLOWED_DOMAINS", "EDUANIM_RENDER_TIMEOUT", "EDUANIM_MAX_TASKS", "EDUANIM_CORS_ORIGINS", "PORT"} {
		t.Setenv(k, "")
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "eduanim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model: gemini-flash
style: whiteboard
render_timeout: 90s
allowed_domains: [physics, calculus]
narration:
  provider: polly
  voice: Joanna
`), 0644))
	t.Setenv("EDUANIM_STYLE", "segmented")
	t.Setenv("EDUANIM_MAX_TASKS", "7")
	t.Setenv("EDUANIM_CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini-flash", cfg.Model)
	assert.Equal(t, "segmented", cfg.Style)
	assert.Equal(t, 90*time.Second, cfg.RenderTimeout)
	assert.Equal(t, 7, cfg.MaxTasks)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, "polly", cfg.Narration.Provider)
	assert.Equal(t, "Joanna", cfg.Narration.Voice)
	assert.True(t, cfg.DomainPolicy().Allows("Intro to Calculus"))
	assert.False(t, cfg.DomainPolicy().Allows("Baking bread"))
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("PORT", "eighty")
	_, err = Load("")
	assert.ErrorContains(t, err, "PORT")
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.ErrorIs(t, cfg.Validate(), ErrMissingCredential)

	cfg.AnthropicAPIKey = "sk-test"
	require.NoError(t, cfg.Validate())
	assert.ErrorIs(t, cfg.ValidateServer(), ErrMissingCredential)

	cfg.S3Bucket = "videos"
	assert.NoError(t, cfg.ValidateServer())

	cfg.Style = "comic"
	assert.Error(t, cfg.Validate())

	cfg.Style = "classic"
	cfg.Model = "gpt"
	assert.Error(t, cfg.Validate())
}

type fakeSecrets map[string]string

func (f fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	v, ok := f[*in.SecretId]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func TestLoadSecrets(t *testing.T) {
	cfg := Default()
	cfg.SecretPrefix = "/eduanim/"
	cfg.GeminiAPIKey = "from-env"

	cfg.LoadSecrets(context.Background(), fakeSecrets{
		"/eduanim/ANTHROPIC_API_KEY": "from-secrets",
		"/eduanim/GEMINI_API_KEY":    "ignored",
	}, nil)
	assert.Equal(t, "from-secrets", cfg.AnthropicAPIKey)
	assert.Equal(t, "from-env", cfg.GeminiAPIKey)
}
