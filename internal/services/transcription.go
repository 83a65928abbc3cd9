package services

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/silano08/tokingtoking/internal/models"
)

const cleanupMaxTokens = 500

// SpeechToText turns recorded audio into raw text.
type SpeechToText interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// TranscriptionService transcribes a learner's recording and cleans the
// transcript up with the target words in mind.
type TranscriptionService struct {
	stt     SpeechToText
	llm     ChatGateway
	prompts *PromptBook
	log     *zap.Logger
}

func NewTranscriptionService(stt SpeechToText, llm ChatGateway, prompts *PromptBook, log *zap.Logger) *TranscriptionService {
	return &TranscriptionService{stt: stt, llm: llm, prompts: prompts, log: log}
}

func (s *TranscriptionService) TranscribeAndProcess(ctx context.Context, audio []byte, filename string, targetWords []string) (*models.TranscriptionResult, error) {
	if len(audio) == 0 {
		return nil, &ValidationError{
			Fields:  map[string]string{"audio": "Audio file is empty"},
			Message: "Audio file is empty",
		}
	}

	raw, err := s.stt.Transcribe(ctx, audio, filename)
	if err != nil {
		return nil, upstreamErr("stt", err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &ValidationError{Message: "Could not transcribe audio"}
	}

	processed, err := s.cleanup(ctx, raw, targetWords)
	if err != nil {
		// The raw transcript is still usable.
		s.log.Warn("Transcript cleanup failed, using raw transcript", zap.Error(err))
		processed = ""
	}

	text := processed
	if text == "" {
		text = raw
	}
	// Long recordings are cut to what a single turn accepts.
	text = strings.TrimSpace(truncateRunes(text, maxMessageRunes))
	return &models.TranscriptionResult{Raw: raw, Processed: processed, Text: text}, nil
}

func (s *TranscriptionService) cleanup(ctx context.Context, raw string, targetWords []string) (string, error) {
	system, user, err := s.prompts.CleanupPrompts(targetWords, raw)
	if err != nil {
		return "", err
	}
	out, err := s.llm.Complete(ctx, ChatRequest{
		Mode:         models.ModeChat,
		SystemPrompt: system,
		Messages:     []ChatTurn{{Role: models.RoleUser, Content: user}},
		Temperature:  0,
		MaxTokens:    cleanupMaxTokens,
	})
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("empty cleanup reply")
	}
	return out, nil
}
