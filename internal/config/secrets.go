package config

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsAPI is the subset of the Secrets Manager client LoadSecrets uses.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// LoadSecrets fills missing API keys from secrets named prefix+KEY.
// Keys already set are kept. A missing secret is logged, not returned.
func (c *Config) LoadSecrets(ctx context.Context, client SecretsAPI, logger *slog.Logger) {
	if c.SecretPrefix == "" {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	secrets := []struct {
		name string
		dst  *string
	}{
		{"ANTHROPIC_API_KEY", &c.AnthropicAPIKey},
		{"GEMINI_API_KEY", &c.GeminiAPIKey},
	}
	for _, s := range secrets {
		if *s.dst != "" {
			continue
		}
		secretID := c.SecretPrefix + s.name
		result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: &secretID,
		})
		if err != nil {
			logger.Info("Secret not found", "secret_id", secretID, "error", err)
			continue
		}
		if result.SecretString != nil {
			*s.dst = *result.SecretString
			logger.Info("Loaded secret", "secret_id", secretID)
		}
	}
}
