// Package tts synthesizes lesson narration.
package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// AudioFormat represents the audio encoding returned by a provider.
type AudioFormat string

const (
	FormatMP3 AudioFormat = "mp3"
	FormatPCM AudioFormat = "pcm" // raw 24kHz 16-bit mono, needs FFmpeg conversion
	FormatWAV AudioFormat = "wav"
)

// Voice holds a provider-specific voice identifier.
type Voice struct {
	ID   string
	Name string
}

// AudioResult is the output of a synthesis call.
type AudioResult struct {
	Data   []byte
	Format AudioFormat
}

// Provider synthesizes speech from text.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text string, voice Voice) (AudioResult, error)
	DefaultVoice() Voice
	Close() error
}

// ProviderConfig carries provider settings. Zero values mean defaults.
type ProviderConfig struct {
	Voice      string
	Speed      float64
	Pitch      float64
	Model      string
	AWSRegion  string
	GCPProject string
	GCPRegion  string
	Logger     *slog.Logger
}

func (c ProviderConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// VoiceInfo describes an available voice.
type VoiceInfo struct {
	ID          string
	Name        string
	Gender      string
	Description string
	Default     bool
}

// Providers lists the provider names NewProvider accepts.
func Providers() []string {
	return []string{"google", "polly", "vertex"}
}

// AvailableVoices returns the voice catalog for the named provider.
func AvailableVoices(providerName string) ([]VoiceInfo, error) {
	switch providerName {
	case "google":
		return googleAvailableVoices(), nil
	case "polly":
		return pollyAvailableVoices(), nil
	case "vertex":
		return vertexAvailableVoices(), nil
	default:
		return nil, fmt.Errorf("unknown TTS provider %q", providerName)
	}
}

// Retry constants shared by all providers.
const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 1 * time.Second
	defaultBackoffMulti   = 2
	defaultMaxBackoff     = 10 * time.Second
)

// RetryableError signals that the operation can be retried.
type RetryableError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// WithRetry executes fn with exponential backoff on RetryableError.
func WithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	backoff := defaultInitialBackoff

	for attempt := 1; attempt <= defaultMaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var re *RetryableError
		if !errors.As(err, &re) {
			return err
		}
		lastErr = err

		if attempt < defaultMaxAttempts {
			wait := max(backoff, re.RetryAfter)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			backoff *= time.Duration(defaultBackoffMulti)
			if backoff > defaultMaxBackoff {
				backoff = defaultMaxBackoff
			}
		}
	}

	return lastErr
}

// NewProvider creates a TTS provider by name.
func NewProvider(ctx context.Context, name string, cfg ProviderConfig) (Provider, error) {
	switch name {
	case "google":
		return NewGoogleProvider(ctx, cfg)
	case "polly":
		return NewPollyProvider(ctx, cfg)
	case "vertex":
		return NewVertexProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown TTS provider %q: choose google, polly, or vertex", name)
	}
}
