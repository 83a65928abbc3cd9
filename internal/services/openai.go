package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/silano08/tokingtoking/internal/metrics"
	"github.com/silano08/tokingtoking/internal/models"
)

// OpenAIGateway serves completions from the OpenAI chat API.
type OpenAIGateway struct {
	client        *openai.Client
	chatModel     string
	speakingModel string
	metrics       *metrics.Metrics
}

func NewOpenAIGateway(apiKey, chatModel, speakingModel string, m *metrics.Metrics) *OpenAIGateway {
	return &OpenAIGateway{
		client:        openai.NewClient(apiKey),
		chatModel:     chatModel,
		speakingModel: speakingModel,
		metrics:       m,
	}
}

func (g *OpenAIGateway) model(mode string) string {
	if mode == models.ModeSpeaking {
		return g.speakingModel
	}
	return g.chatModel
}

func (g *OpenAIGateway) Complete(ctx context.Context, req ChatRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: req.SystemPrompt,
	})
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	temperature := req.Temperature
	if temperature == 0 {
		// go-openai drops a zero temperature as unset
		temperature = math.SmallestNonzeroFloat32
	}
	creq := openai.ChatCompletionRequest{
		Model:       g.model(req.Mode),
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, creq)
	g.metrics.ObserveUpstream("openai", "chat", err, time.Since(start))
	if err != nil {
		return "", upstream("openai", fmt.Errorf("OpenAI API error: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", upstream("openai", errors.New("OpenAI returned no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}

const (
	defaultGroqBaseURL = "https://api.groq.com/openai/v1"
	whisperModel       = "whisper-large-v3-turbo"
)

// WhisperTranscriber runs speech-to-text against Groq's OpenAI-compatible
// Whisper endpoint.
type WhisperTranscriber struct {
	client  *openai.Client
	metrics *metrics.Metrics
}

func NewWhisperTranscriber(apiKey, baseURL string, m *metrics.Metrics) *WhisperTranscriber {
	config := openai.DefaultConfig(apiKey)
	if baseURL == "" {
		baseURL = defaultGroqBaseURL
	}
	config.BaseURL = baseURL
	return &WhisperTranscriber{client: openai.NewClientWithConfig(config), metrics: m}
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	start := time.Now()
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    whisperModel,
		Reader:   bytes.NewReader(audio),
		FilePath: filename,
		Language: "en",
		Format:   openai.AudioResponseFormatText,
	})
	t.metrics.ObserveUpstream("groq", "transcription", err, time.Since(start))
	if err != nil {
		return "", upstream("groq", fmt.Errorf("Whisper transcription error: %w", err))
	}
	return strings.TrimSpace(resp.Text), nil
}
