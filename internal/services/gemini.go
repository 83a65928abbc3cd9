package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/silano08/tokingtoking/internal/metrics"
	"github.com/silano08/tokingtoking/internal/models"
)

// GeminiGateway serves completions and transcriptions from Gemini.
type GeminiGateway struct {
	client        *genai.Client
	chatModel     string
	speakingModel string
	metrics       *metrics.Metrics
}

func NewGeminiGateway(ctx context.Context, apiKey, chatModel, speakingModel string, m *metrics.Metrics) (*GeminiGateway, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiGateway{
		client:        client,
		chatModel:     chatModel,
		speakingModel: speakingModel,
		metrics:       m,
	}, nil
}

func (g *GeminiGateway) Close() {
	g.client.Close()
}

func (g *GeminiGateway) Complete(ctx context.Context, req ChatRequest) (string, error) {
	if len(req.Messages) == 0 {
		return "", errors.New("gemini: no messages to send")
	}

	name := g.chatModel
	if req.Mode == models.ModeSpeaking {
		name = g.speakingModel
	}
	model := g.client.GenerativeModel(name)
	model.SetTemperature(req.Temperature)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}
	model.SystemInstruction = genai.NewUserContent(genai.Text(req.SystemPrompt))

	cs := model.StartChat()
	cs.History = geminiHistory(req.Messages[:len(req.Messages)-1])
	last := req.Messages[len(req.Messages)-1]

	start := time.Now()
	resp, err := cs.SendMessage(ctx, genai.Text(last.Content))
	g.metrics.ObserveUpstream("gemini", "chat", err, time.Since(start))
	if err != nil {
		return "", upstream("gemini", fmt.Errorf("Gemini chat error: %w", err))
	}

	text := strings.TrimSpace(extractText(resp))
	if text == "" {
		return "", upstream("gemini", errors.New("Gemini returned an empty reply"))
	}
	return text, nil
}

// geminiHistory converts prior turns to Gemini contents. Gemini expects the
// history to open with a user turn, so a conversation that starts with the
// assistant's greeting gets the opening request replayed in front of it.
func geminiHistory(turns []ChatTurn) []*genai.Content {
	history := make([]*genai.Content, 0, len(turns)+1)
	if len(turns) > 0 && turns[0].Role == models.RoleAssistant {
		history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(openingUserPrompt)}})
	}
	for _, t := range turns {
		role := "user"
		if t.Role == models.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(t.Content)}})
	}
	return history
}

// Transcribe uses the Gemini File API to transcribe uploaded audio bytes.
func (g *GeminiGateway) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("audio payload is empty")
	}
	mimeType := audioMIMEType(filename)

	start := time.Now()
	text, err := g.transcribe(ctx, audio, mimeType)
	g.metrics.ObserveUpstream("gemini", "transcription", err, time.Since(start))
	if err != nil {
		return "", upstream("gemini", err)
	}
	return text, nil
}

func (g *GeminiGateway) transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	file, err := g.client.UploadFile(ctx, "", bytes.NewReader(audio), &genai.UploadFileOptions{
		DisplayName: "speaking-turn",
		MIMEType:    mimeType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload audio to Gemini: %w", err)
	}

	// Ensure remote file is cleaned up
	defer g.client.DeleteFile(context.Background(), file.Name)

	// Wait until file is active
	for i := 0; i < 20 && file.State != genai.FileStateActive; i++ {
		current, getErr := g.client.GetFile(ctx, file.Name)
		if getErr != nil {
			return "", fmt.Errorf("failed to get uploaded file status: %w", getErr)
		}

		if current.State == genai.FileStateActive {
			file = current
			break
		}
		if current.State == genai.FileStateFailed {
			return "", fmt.Errorf("Gemini failed to process uploaded audio file")
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	if file.State != genai.FileStateActive {
		return "", fmt.Errorf("audio file did not become active in time")
	}

	model := g.client.GenerativeModel(g.chatModel)
	model.SetTemperature(0)
	prompt := "Transcribe the provided English speech verbatim. Return plain text only, without markdown, headers, or explanations."

	resp, err := model.GenerateContent(ctx,
		genai.Text(prompt),
		genai.FileData{MIMEType: mimeType, URI: file.URI},
	)
	if err != nil {
		return "", fmt.Errorf("Gemini transcription error: %w", err)
	}

	return strings.TrimSpace(extractText(resp)), nil
}

func audioMIMEType(filename string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); strings.HasPrefix(t, "audio/") {
		return t
	}
	return "audio/webm"
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
