package models

import (
	"time"

	"github.com/google/uuid"
)

// SpeakingFeedback is the per-turn coaching attached in speaking mode.
type SpeakingFeedback struct {
	Pronunciation string  `json:"pronunciation"`
	Grammar       string  `json:"grammar"`
	Vocabulary    string  `json:"vocabulary"`
	Score         float64 `json:"score"`
}

type ChatMessage struct {
	ID                int64             `json:"id"`
	SessionID         uuid.UUID         `json:"session_id"`
	Role              string            `json:"role"`
	Content           string            `json:"content"`
	Feedback          *SpeakingFeedback `json:"feedback"`
	WordUsageSnapshot WordUsage         `json:"word_usage"`
	CreatedAt         time.Time         `json:"created_at"`
}

type SendMessageRequest struct {
	SessionID uuid.UUID `json:"session_id"`
	Content   string    `json:"content"`
}

type SpeakingMessageRequest struct {
	SessionID       uuid.UUID `json:"session_id"`
	TranscribedText string    `json:"transcribed_text"`
	AudioDurationMS int       `json:"audio_duration_ms"`
}

type TranscriptionDetail struct {
	Raw       string `json:"raw"`
	Processed string `json:"processed"`
}

// SpeakingTurnResponse is a regular turn response plus the transcript the
// turn was built from.
type SpeakingTurnResponse struct {
	SendMessageResponse
	Transcription TranscriptionDetail `json:"transcription"`
}

