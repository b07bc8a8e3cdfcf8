package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	vertexDefaultModel  = "gemini-2.5-flash-tts"
	vertexDefaultRegion = "us-central1"
	vertexDefaultVoice  = "Charon"
)

// vertexRequest is the generateContent request body for speech output.
type vertexRequest struct {
	Contents         []vertexContent `json:"contents"`
	GenerationConfig vertexGenConfig `json:"generationConfig"`
}

type vertexContent struct {
	Parts []vertexPart `json:"parts"`
}

type vertexPart struct {
	Text string `json:"text,omitempty"`
}

type vertexGenConfig struct {
	ResponseModalities []string           `json:"responseModalities"`
	SpeechConfig       vertexSpeechConfig `json:"speechConfig"`
}

type vertexSpeechConfig struct {
	VoiceConfig vertexVoiceConfig `json:"voiceConfig"`
}

type vertexVoiceConfig struct {
	PrebuiltVoiceConfig vertexPrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type vertexPrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type vertexResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData,omitempty"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// VertexProvider implements Provider using Gemini TTS on Vertex AI with
// Application Default Credentials.
type VertexProvider struct {
	voice      Voice
	project    string
	region     string
	model      string
	endpoint   string
	tokens     oauth2.TokenSource
	httpClient *http.Client
	log        *slog.Logger
}

func NewVertexProvider(cfg ProviderConfig) (*VertexProvider, error) {
	voice := vertexDefaultVoice
	if cfg.Voice != "" {
		voice = cfg.Voice
	}
	model := vertexDefaultModel
	if cfg.Model != "" {
		model = cfg.Model
	}
	project := cfg.GCPProject
	if project == "" {
		project = os.Getenv("GCP_PROJECT")
	}
	if project == "" {
		return nil, fmt.Errorf("GCP_PROJECT is required for the vertex TTS provider")
	}
	region := cfg.GCPRegion
	if region == "" {
		region = os.Getenv("GCP_REGION")
	}
	if region == "" {
		region = vertexDefaultRegion
	}

	return &VertexProvider{
		voice:   Voice{ID: voice, Name: voice},
		project: project,
		region:  region,
		model:   model,
		endpoint: fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:generateContent",
			region, project, region, model),
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 70 * time.Second,
				IdleConnTimeout:       10 * time.Second,
				DisableKeepAlives:     true,
			},
		},
		log: cfg.logger(),
	}, nil
}

func (p *VertexProvider) Name() string { return "vertex" }

func (p *VertexProvider) DefaultVoice() Voice { return p.voice }

// accessToken obtains an OAuth2 token via Application Default Credentials.
func (p *VertexProvider) accessToken(ctx context.Context) (string, error) {
	if p.tokens == nil {
		ts, err := google.DefaultTokenSource(ctx, "https://www.googleapis.com/auth/cloud-platform")
		if err != nil {
			return "", fmt.Errorf("get default token source: %w (hint: run 'gcloud auth application-default login' or set GOOGLE_APPLICATION_CREDENTIALS)", err)
		}
		p.tokens = oauth2.ReuseTokenSource(nil, ts)
	}
	token, err := p.tokens.Token()
	if err != nil {
		return "", fmt.Errorf("get access token: %w", err)
	}
	return token.AccessToken, nil
}

// Synthesize returns raw 24kHz PCM for text.
func (p *VertexProvider) Synthesize(ctx context.Context, text string, voice Voice) (AudioResult, error) {
	req := vertexRequest{
		Contents: []vertexContent{{Parts: []vertexPart{{Text: text}}}},
		GenerationConfig: vertexGenConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: vertexSpeechConfig{
				VoiceConfig: vertexVoiceConfig{PrebuiltVoiceConfig: vertexPrebuiltVoice{VoiceName: voice.ID}},
			},
		},
	}

	var data []byte
	err := WithRetry(ctx, func() error {
		var err error
		data, err = p.doRequest(ctx, req)
		return err
	})
	if err != nil {
		return AudioResult{}, err
	}
	return AudioResult{Data: data, Format: FormatPCM}, nil
}

func (p *VertexProvider) doRequest(ctx context.Context, reqBody vertexRequest) ([]byte, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal Vertex request: %w", err)
	}

	token, err := p.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	res, err := p.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.log.Warn("vertex tts request failed", "error", err, "duration_ms", elapsed.Milliseconds())
		return nil, &RetryableError{StatusCode: 0, Body: fmt.Sprintf("network error after %s: %v", elapsed.Round(time.Millisecond), err)}
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError {
		errBody, _ := io.ReadAll(res.Body)
		var retryAfter time.Duration
		if ra := res.Header.Get("Retry-After"); ra != "" {
			if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		p.log.Warn("vertex tts retryable status", "status", res.StatusCode, "retry_after", retryAfter)
		return nil, &RetryableError{StatusCode: res.StatusCode, Body: string(errBody), RetryAfter: retryAfter}
	}
	if res.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("Vertex AI API error (status %d): %s", res.StatusCode, errBody)
	}

	var resp vertexResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("parse Vertex response: %w", err)
	}
	if len(resp.Candidates) == 0 ||
		len(resp.Candidates[0].Content.Parts) == 0 ||
		resp.Candidates[0].Content.Parts[0].InlineData == nil {
		return nil, fmt.Errorf("Vertex response contained no audio data")
	}

	audio, err := base64.StdEncoding.DecodeString(resp.Candidates[0].Content.Parts[0].InlineData.Data)
	if err != nil {
		return nil, fmt.Errorf("decode Vertex audio base64: %w", err)
	}
	p.log.Debug("vertex tts", "model", p.model, "audio_bytes", len(audio), "duration_ms", time.Since(start).Milliseconds())
	return audio, nil
}

func (p *VertexProvider) Close() error { return nil }

func vertexAvailableVoices() []VoiceInfo {
	return []VoiceInfo{
		{ID: "Charon", Name: "Charon", Gender: "male", Description: "Informative, clear", Default: true},
		{ID: "Kore", Name: "Kore", Gender: "female", Description: "Firm, confident"},
		{ID: "Leda", Name: "Leda", Gender: "female", Description: "Youthful, bright"},
		{ID: "Puck", Name: "Puck", Gender: "male", Description: "Upbeat, energetic"},
	}
}

var _ Provider = (*VertexProvider)(nil)
