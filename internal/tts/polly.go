package tts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
)

const pollyDefaultVoice = "Matthew"

// pollyVoiceLang maps voice IDs to their language codes.
var pollyVoiceLang = map[string]types.LanguageCode{
	"Matthew":  types.LanguageCodeEnUs,
	"Ruth":     types.LanguageCodeEnUs,
	"Stephen":  types.LanguageCodeEnUs,
	"Danielle": types.LanguageCodeEnUs,
	"Amy":      types.LanguageCodeEnGb,
	"Olivia":   types.LanguageCodeEnAu,
	"Kajal":    types.LanguageCodeEnIn,
}

// PollyProvider implements Provider using AWS Polly (Generative engine).
type PollyProvider struct {
	voice  Voice
	client *polly.Client
}

func NewPollyProvider(ctx context.Context, cfg ProviderConfig) (*PollyProvider, error) {
	voice := pollyDefaultVoice
	if cfg.Voice != "" {
		voice = cfg.Voice
	}

	var opts []func(*config.LoadOptions) error
	if cfg.AWSRegion != "" {
		opts = append(opts, config.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config for Polly: %w", err)
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	return &PollyProvider{
		voice:  Voice{ID: voice, Name: voice},
		client: polly.NewFromConfig(awsCfg),
	}, nil
}

func (p *PollyProvider) Name() string { return "polly" }

func (p *PollyProvider) DefaultVoice() Voice { return p.voice }

func (p *PollyProvider) Synthesize(ctx context.Context, text string, voice Voice) (AudioResult, error) {
	lang, ok := pollyVoiceLang[voice.ID]
	if !ok {
		lang = types.LanguageCodeEnUs
	}

	input := &polly.SynthesizeSpeechInput{
		Engine:       types.EngineGenerative,
		OutputFormat: types.OutputFormatMp3,
		SampleRate:   strPtr("24000"),
		Text:         &text,
		TextType:     types.TextTypeText,
		VoiceId:      types.VoiceId(voice.ID),
		LanguageCode: lang,
	}

	var data []byte
	err := WithRetry(ctx, func() error {
		resp, err := p.client.SynthesizeSpeech(ctx, input)
		if err != nil {
			var apiErr smithy.APIError
			if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ThrottlingException" {
				return &RetryableError{StatusCode: 429, Body: apiErr.ErrorMessage()}
			}
			return fmt.Errorf("Polly synthesize: %w", err)
		}
		defer resp.AudioStream.Close()

		data, err = io.ReadAll(resp.AudioStream)
		if err != nil {
			return fmt.Errorf("Polly read audio: %w", err)
		}
		return nil
	})
	if err != nil {
		return AudioResult{}, err
	}

	return AudioResult{Data: data, Format: FormatMP3}, nil
}

func (p *PollyProvider) Close() error { return nil }

func strPtr(s string) *string { return &s }

func pollyAvailableVoices() []VoiceInfo {
	return []VoiceInfo{
		{ID: "Matthew", Name: "Matthew", Gender: "male", Description: "en-US, Generative", Default: true},
		{ID: "Ruth", Name: "Ruth", Gender: "female", Description: "en-US, Generative"},
		{ID: "Amy", Name: "Amy", Gender: "female", Description: "en-GB, Generative"},
		{ID: "Stephen", Name: "Stephen", Gender: "male", Description: "en-US, Generative"},
		{ID: "Danielle", Name: "Danielle", Gender: "female", Description: "en-US, Generative"},
		{ID: "Olivia", Name: "Olivia", Gender: "female", Description: "en-AU, Generative"},
		{ID: "Kajal", Name: "Kajal", Gender: "female", Description: "en-IN, Generative"},
	}
}
